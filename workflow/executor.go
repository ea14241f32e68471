package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/songzhibin97/workflow-steps/rules"
	"github.com/songzhibin97/workflow-steps/types"
)

// Executor runs execution passes over an in-memory step set. It never
// touches storage.
type Executor struct {
	evaluator  rules.Evaluator
	actions    map[types.ActionType]Action
	mu         sync.RWMutex
	concurrent bool
	maxDepth   int
	logger     *slog.Logger
}

// NewExecutor creates an executor. A nil evaluator selects the native one.
func NewExecutor(evaluator rules.Evaluator, opts ...Option) *Executor {
	if evaluator == nil {
		evaluator = rules.NewNativeEvaluator()
	}
	s := newSettings(opts)
	return &Executor{
		evaluator:  evaluator,
		actions:    builtinActions(),
		concurrent: s.concurrent,
		maxDepth:   s.maxDepth,
		logger:     s.logger,
	}
}

// RegisterAction registers the action run by steps of the given action type.
func (x *Executor) RegisterAction(actionType types.ActionType, action Action) error {
	if actionType == "" || action == nil {
		return fmt.Errorf("action type and action are required")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.actions[actionType] = action
	return nil
}

// HasAction reports whether steps of the given action type can run.
func (x *Executor) HasAction(actionType types.ActionType) bool {
	_, ok := x.action(actionType)
	return ok
}

func (x *Executor) action(actionType types.ActionType) (Action, bool) {
	if actionType == "" {
		actionType = types.ActionTypeFixed
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	a, ok := x.actions[actionType]
	return a, ok
}

// branch is what one evaluated branch hands back to its parent: the keys it
// wrote and the timers it stopped at.
type branch struct {
	delta  types.Updates
	timers []*types.TimerStep
}

func (b *branch) absorb(child branch) {
	b.delta.Merge(child.delta)
	b.timers = append(b.timers, child.timers...)
}

// pass holds the state of one Execute call.
type pass struct {
	*Executor
	ctx      context.Context
	index    map[string]types.Step
	snapshot types.Updates
}

// Execute runs one pass. Without resumeTimerIDs it starts from every initial
// step; otherwise it starts from the followers of the named timers. The
// result holds initial overlaid with every branch's writes, later branches
// winning, and the timers reached, each reported once.
func (x *Executor) Execute(ctx context.Context, steps []types.Step, initial types.Updates, resumeTimerIDs []string) (*types.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if initial == nil {
		initial = types.Updates{}
	}

	p := &pass{
		Executor: x,
		ctx:      ctx,
		index:    types.IndexSteps(steps),
		snapshot: initial.Clone(),
	}

	start := p.startPoints(steps, resumeTimerIDs)
	x.logger.Debug("Executing workflow steps",
		"steps", len(steps),
		"start_points", len(start),
		"resumed_timers", len(resumeTimerIDs))

	merged, err := p.runAll(start, p.snapshot, 0)
	if err != nil {
		return nil, err
	}

	updates := initial.Clone()
	updates.Merge(merged.delta)
	return &types.Result{
		Updates:       updates,
		PendingTimers: dedupeTimers(merged.timers),
	}, nil
}

func (p *pass) startPoints(steps []types.Step, resumeTimerIDs []string) []types.Step {
	if len(resumeTimerIDs) == 0 {
		var start []types.Step
		for _, step := range steps {
			if step != nil && step.Base().IsInitialStep {
				start = append(start, step)
			}
		}
		return start
	}

	resume := make(map[string]bool, len(resumeTimerIDs))
	for _, id := range resumeTimerIDs {
		resume[id] = true
	}
	var start []types.Step
	for _, step := range steps {
		timer, ok := step.(*types.TimerStep)
		if !ok || !resume[timer.ID()] {
			continue
		}
		start = append(start, p.resolve(timer.FollowingStepIDs)...)
	}
	return start
}

// resolve maps ids to steps in declaration order, skipping unknown and
// repeated ids.
func (p *pass) resolve(ids []string) []types.Step {
	steps := make([]types.Step, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if step, ok := p.index[id]; ok {
			steps = append(steps, step)
		}
	}
	return steps
}

// runAll evaluates every step as a separate branch on its own copy of
// carried and merges the results in order.
func (p *pass) runAll(steps []types.Step, carried types.Updates, depth int) (branch, error) {
	merged := branch{delta: types.Updates{}}
	if len(steps) == 0 {
		return merged, nil
	}

	results := make([]branch, len(steps))
	if p.concurrent && len(steps) > 1 {
		g, ctx := errgroup.WithContext(p.ctx)
		child := *p
		child.ctx = ctx
		for i, step := range steps {
			i, step := i, step
			g.Go(func() error {
				b, err := child.evalStep(step, carried.Clone(), depth+1)
				results[i] = b
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return branch{}, err
		}
	} else {
		for i, step := range steps {
			b, err := p.evalStep(step, carried.Clone(), depth+1)
			if err != nil {
				return branch{}, err
			}
			results[i] = b
		}
	}

	for _, b := range results {
		merged.absorb(b)
	}
	return merged, nil
}

// evalStep evaluates step with the record carried down its branch and
// returns the keys the branch wrote.
func (p *pass) evalStep(step types.Step, carried types.Updates, depth int) (branch, error) {
	if err := p.ctx.Err(); err != nil {
		return branch{}, err
	}
	if depth > p.maxDepth {
		return branch{}, executionError(step.ID(), fmt.Errorf("%w: %d", ErrMaxDepthExceeded, p.maxDepth))
	}

	switch s := step.(type) {
	case *types.TimerStep:
		return branch{delta: types.Updates{}, timers: []*types.TimerStep{s}}, nil
	case *types.ActionStep:
		return p.evalAction(s, carried, depth)
	case *types.ConditionGroupStep:
		return p.evalConditionGroup(s, carried, depth)
	default:
		return branch{delta: types.Updates{}}, nil
	}
}

func (p *pass) evalAction(step *types.ActionStep, carried types.Updates, depth int) (branch, error) {
	value, err := p.runAction(step)
	if err != nil {
		return branch{}, executionError(step.ID(), err)
	}

	result := branch{delta: types.Updates{string(step.Data.ChangeType): value}}
	carried[string(step.Data.ChangeType)] = value

	children, err := p.runAll(p.resolve(step.FollowingStepIDs), carried, depth)
	if err != nil {
		return branch{}, err
	}
	result.absorb(children)
	return result, nil
}

func (p *pass) runAction(step *types.ActionStep) (value interface{}, err error) {
	action, ok := p.action(step.Data.ActionType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotRegistered, step.Data.ActionType)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", step.Data.ActionType, r)
		}
	}()
	return action.Execute(p.ctx, step.Data, p.snapshot.Clone())
}

// evalConditionGroup runs the followers of the first condition that holds,
// or of every condition that holds when RunAllValidCriteria is set, or the
// default steps when none holds. Conditions see the pass snapshot overlaid
// with the record carried into the group.
func (p *pass) evalConditionGroup(group *types.ConditionGroupStep, carried types.Updates, depth int) (branch, error) {
	record := p.snapshot.Clone()
	record.Merge(carried)

	result := branch{delta: types.Updates{}}
	matched := false
	for _, condition := range p.conditions(group) {
		ok, err := p.evaluator.Evaluate(condition.Data, record)
		if err != nil {
			return branch{}, executionError(condition.ID(), err)
		}
		if !ok {
			continue
		}
		matched = true

		// Later conditions build on what earlier matches wrote.
		accumulated := carried.Clone()
		accumulated.Merge(result.delta)
		children, err := p.runAll(p.resolve(condition.FollowingStepIDs), accumulated, depth)
		if err != nil {
			return branch{}, err
		}
		result.absorb(children)

		if !group.Data.RunAllValidCriteria {
			break
		}
	}

	if !matched && len(group.DefaultStepIDs) > 0 {
		children, err := p.runAll(p.resolve(group.DefaultStepIDs), carried, depth)
		if err != nil {
			return branch{}, err
		}
		result.absorb(children)
	}
	return result, nil
}

// conditions returns the condition followers of group ordered by sequence.
// Conditions without a sequence tie with every other condition.
func (p *pass) conditions(group *types.ConditionGroupStep) []*types.ConditionStep {
	var conditions []*types.ConditionStep
	for _, step := range p.resolve(group.FollowingStepIDs) {
		if c, ok := step.(*types.ConditionStep); ok {
			conditions = append(conditions, c)
		}
	}
	sort.SliceStable(conditions, func(i, j int) bool {
		a, b := conditions[i].Sequence, conditions[j].Sequence
		return a != nil && b != nil && *a < *b
	})
	return conditions
}

// dedupeTimers keeps the first occurrence of every timer step.
func dedupeTimers(timers []*types.TimerStep) []*types.TimerStep {
	seen := make(map[string]bool, len(timers))
	out := make([]*types.TimerStep, 0, len(timers))
	for _, t := range timers {
		if seen[t.ID()] {
			continue
		}
		seen[t.ID()] = true
		out = append(out, t)
	}
	return out
}
