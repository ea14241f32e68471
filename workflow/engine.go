// Package workflow persists workflow definitions as step connections and
// runs execution passes over their steps.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/workflow-steps/events"
	"github.com/songzhibin97/workflow-steps/graph"
	"github.com/songzhibin97/workflow-steps/rules"
	"github.com/songzhibin97/workflow-steps/storage"
	"github.com/songzhibin97/workflow-steps/types"
)

// WorkflowEngine defines workflows into storage and executes their steps.
type WorkflowEngine struct {
	repo       repository
	executor   *Executor
	reconciler *Reconciler
	validate   *validator.Validate
	eventBus   *events.EventBus
	logger     *slog.Logger
	now        func() time.Time
	// mu serializes definitions so two reconciliations never interleave.
	mu sync.Mutex
}

// NewWorkflowEngine creates a new WorkflowEngine. generate mints connection
// ids. A nil store selects a fresh MemoryStorage and a nil evaluator the
// native one.
func NewWorkflowEngine(generate generator.Generator, store storage.Storage, evaluator rules.Evaluator, opts ...Option) (*WorkflowEngine, error) {
	if generate == nil {
		return nil, errors.New("generator is required")
	}
	if store == nil {
		store = storage.NewMemoryStorage()
	}

	s := newSettings(opts)
	bus := s.eventBus
	if bus == nil {
		bus = events.NewEventBus(events.WithLogger(s.logger))
	}

	return &WorkflowEngine{
		repo:       repository{store: store},
		executor:   NewExecutor(evaluator, opts...),
		reconciler: NewReconciler(store, generate, s.logger),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		eventBus:   bus,
		logger:     s.logger,
		now:        s.now,
	}, nil
}

// SubscribeEvent subscribes an event handler to a specific event type.
func (e *WorkflowEngine) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// RegisterAction registers the action run by steps of the given action type.
func (e *WorkflowEngine) RegisterAction(actionType types.ActionType, action Action) error {
	return e.executor.RegisterAction(actionType, action)
}

// Define validates steps, stores them under workflowID and adds the
// connections they derive. Connections that already exist keep their ids,
// so defining the same steps twice changes nothing.
func (e *WorkflowEngine) Define(ctx context.Context, workflowID string, steps []types.Step) ([]types.Connection, error) {
	return e.define(ctx, workflowID, steps, false)
}

// Redefine is Define, except that the workflow's connections are replaced by
// exactly the derived set and steps no longer connected are deleted.
func (e *WorkflowEngine) Redefine(ctx context.Context, workflowID string, steps []types.Step) ([]types.Connection, error) {
	return e.define(ctx, workflowID, steps, true)
}

func (e *WorkflowEngine) define(ctx context.Context, workflowID string, steps []types.Step, replaceAll bool) ([]types.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if workflowID == "" {
		return nil, ErrEmptyWorkflowID
	}
	if err := e.Validate(steps); err != nil {
		return nil, err
	}

	stamped := make([]types.Step, len(steps))
	for i, step := range steps {
		stamped[i] = types.WithWorkflowID(step, workflowID)
	}
	derived, err := graph.DeriveConnections(workflowID, stamped)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, step := range stamped {
		if err := e.repo.saveStep(ctx, step); err != nil {
			return nil, err
		}
	}
	result, err := e.reconciler.Reconcile(ctx, workflowID, derived, replaceAll)
	if err != nil {
		return nil, err
	}

	eventType := events.WorkflowDefined
	if replaceAll {
		eventType = events.WorkflowRedefined
	}
	e.logger.Info("Workflow defined",
		"workflow_id", workflowID,
		"steps", len(stamped),
		"connections", len(result.Connections),
		"created", result.Created,
		"replace_all", replaceAll)
	e.publishEvent(ctx, eventType, workflowID, map[string]interface{}{
		"steps":       len(stamped),
		"connections": len(result.Connections),
		"created":     result.Created,
		"reused":      result.Reused,
	})
	if len(result.PrunedStepIDs) > 0 {
		e.logger.Info("Pruned disconnected steps", "workflow_id", workflowID, "step_ids", result.PrunedStepIDs)
		e.publishEvent(ctx, events.StepsPruned, workflowID, map[string]interface{}{
			"step_ids": result.PrunedStepIDs,
		})
	}
	return result.Connections, nil
}

// Validate checks the field constraints of every step: tags, condition
// trees, timer values, registered action types and matching step types.
// Graph structure is checked when connections are derived.
func (e *WorkflowEngine) Validate(steps []types.Step) error {
	for i, step := range steps {
		if step == nil {
			return fmt.Errorf("%w: step %d is nil", ErrInvalidStep, i)
		}
		if err := e.validateStep(step); err != nil {
			return invalidStep(step.ID(), err)
		}
	}
	return nil
}

func (e *WorkflowEngine) validateStep(step types.Step) error {
	if err := e.validate.Struct(step); err != nil {
		return err
	}

	var want types.StepType
	switch s := step.(type) {
	case *types.ConditionGroupStep:
		want = types.StepTypeConditionGroup
	case *types.ConditionStep:
		want = types.StepTypeCondition
		if s.Data == nil {
			return errors.New("condition is missing")
		}
		err := types.WalkExpression(s.Data, func(expr types.Expression) error {
			if expr == nil {
				return errors.New("condition is missing")
			}
			return e.validate.Struct(expr)
		})
		if err != nil {
			return err
		}
	case *types.ActionStep:
		want = types.StepTypeAction
		if !e.executor.HasAction(s.Data.ActionType) {
			return fmt.Errorf("%w: %s", ErrActionNotRegistered, s.Data.ActionType)
		}
	case *types.TimerStep:
		want = types.StepTypeTimer
		if _, err := s.Data.DueAt(e.now()); err != nil {
			return err
		}
	}
	if got := step.Base().StepType; got != want {
		return fmt.Errorf("step type %s does not match %s", got, want)
	}
	return nil
}

// Run executes steps against cardData. Without resumeTimerIDs the pass starts
// at the initial steps, otherwise at the followers of the given timers.
func (e *WorkflowEngine) Run(ctx context.Context, steps []types.Step, cardData types.Updates, resumeTimerIDs ...string) (*types.Result, error) {
	return e.run(ctx, "", steps, cardData, resumeTimerIDs)
}

// RunWorkflow loads the stored steps of workflowID and runs them.
func (e *WorkflowEngine) RunWorkflow(ctx context.Context, workflowID string, cardData types.Updates, resumeTimerIDs ...string) (*types.Result, error) {
	if workflowID == "" {
		return nil, ErrEmptyWorkflowID
	}
	steps, err := e.repo.steps(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, workflowID, steps, cardData, resumeTimerIDs)
}

func (e *WorkflowEngine) run(ctx context.Context, workflowID string, steps []types.Step, cardData types.Updates, resumeTimerIDs []string) (*types.Result, error) {
	result, err := e.executor.Execute(ctx, steps, cardData, resumeTimerIDs)
	if err != nil {
		e.logger.Warn("Workflow execution failed", "workflow_id", workflowID, "error", err)
		return nil, err
	}

	e.publishEvent(ctx, events.WorkflowExecuted, workflowID, map[string]interface{}{
		"resumed_timers": len(resumeTimerIDs),
		"pending_timers": len(result.PendingTimers),
	})
	now := e.now()
	for _, timer := range result.PendingTimers {
		data := map[string]interface{}{"timer_id": timer.ID(), "when": timer.Data.When}
		if dueAt, err := timer.Data.DueAt(now); err == nil {
			data["due_at"] = dueAt
		}
		e.publishEvent(ctx, events.TimerPending, workflowID, data)
	}
	return result, nil
}

// Steps returns the stored steps of a workflow.
func (e *WorkflowEngine) Steps(ctx context.Context, workflowID string) ([]types.Step, error) {
	if workflowID == "" {
		return nil, ErrEmptyWorkflowID
	}
	return e.repo.steps(ctx, workflowID)
}

// Connections returns the stored connections of a workflow.
func (e *WorkflowEngine) Connections(ctx context.Context, workflowID string) ([]types.Connection, error) {
	if workflowID == "" {
		return nil, ErrEmptyWorkflowID
	}
	return e.repo.connections(ctx, workflowID)
}

// publishEvent queues an event on the event bus. Events nobody listens to
// are dropped.
func (e *WorkflowEngine) publishEvent(ctx context.Context, eventType, workflowID string, data map[string]interface{}) {
	if !e.eventBus.HasSubscribers(eventType) {
		return
	}
	err := e.eventBus.Publish(ctx, events.Event{
		Type:       eventType,
		WorkflowID: workflowID,
		Data:       data,
	})
	if err != nil {
		e.logger.Debug("Event not published", "event_type", eventType, "workflow_id", workflowID, "error", err)
	}
}

// Stop gracefully stops the workflow engine.
func (e *WorkflowEngine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.eventBus.Stop()
		return nil
	}
}
