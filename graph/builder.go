// Package graph derives the connection list of a workflow from its steps and
// rejects malformed or cyclic definitions.
package graph

import (
	"github.com/songzhibin97/workflow-steps/types"
)

type builder struct {
	workflowID string
	index      map[string]types.Step
	visited    map[string]bool
	discovered []types.Connection
}

// DeriveConnections walks the steps depth first from every initial step and
// returns one connection per distinct (from, to) pair, in discovery order.
// Following and default ids that are not part of steps are ignored.
func DeriveConnections(workflowID string, steps []types.Step) ([]types.Connection, error) {
	if len(steps) == 0 {
		return []types.Connection{}, nil
	}

	index := make(map[string]types.Step, len(steps))
	var initial []types.Step
	for _, step := range steps {
		id := step.ID()
		if _, ok := index[id]; ok {
			return nil, stepError(id, ErrDuplicateStep)
		}
		index[id] = step
		if step.Base().IsInitialStep {
			initial = append(initial, step)
		}
	}
	if len(initial) == 0 {
		return nil, ErrNoInitialStep
	}

	b := &builder{
		workflowID: workflowID,
		index:      index,
		visited:    make(map[string]bool, len(steps)),
	}
	for _, step := range initial {
		if err := b.visit(step, nil, false); err != nil {
			return nil, err
		}
	}

	connections := dedupe(b.discovered)
	if err := checkCycles(connections, b.discovered); err != nil {
		return nil, err
	}
	return connections, nil
}

// visit records the edge previous -> current and expands current's followers.
// A node is not expanded again when both ends of the incoming edge have
// already been visited, which keeps shared subgraphs from being walked once
// per parent while still recording every incoming edge.
func (b *builder) visit(current, previous types.Step, isDefault bool) error {
	var previousID string
	if previous != nil {
		previousID = previous.ID()
	}
	b.discovered = append(b.discovered, types.Connection{
		WorkflowID:                  b.workflowID,
		FromStepID:                  previousID,
		ToStepID:                    current.ID(),
		IsConditionGroupDefaultStep: isDefault,
	})

	if _, ok := current.(*types.ConditionStep); ok {
		if _, fromGroup := previous.(*types.ConditionGroupStep); !fromGroup {
			return stepError(current.ID(), ErrInvalidConditionPlacement)
		}
	}

	if b.visited[current.ID()] && b.visited[previousID] {
		return nil
	}
	b.visited[current.ID()] = true

	followers := b.resolve(current.Base().FollowingStepIDs)

	group, ok := current.(*types.ConditionGroupStep)
	if !ok {
		for _, next := range followers {
			if err := b.visit(next, current, false); err != nil {
				return err
			}
		}
		return nil
	}

	for _, next := range followers {
		if _, isCondition := next.(*types.ConditionStep); !isCondition {
			return stepError(group.ID(), ErrInvalidConditionGroup)
		}
	}
	for _, next := range followers {
		if err := b.visit(next, current, false); err != nil {
			return err
		}
	}
	for _, next := range b.resolve(group.DefaultStepIDs) {
		if err := b.visit(next, current, true); err != nil {
			return err
		}
	}
	return nil
}

// resolve maps ids to steps in declaration order, skipping unknown and
// repeated ids.
func (b *builder) resolve(ids []string) []types.Step {
	steps := make([]types.Step, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if step, ok := b.index[id]; ok {
			steps = append(steps, step)
		}
	}
	return steps
}

// dedupe keeps the first connection found for every (from, to) pair.
func dedupe(discovered []types.Connection) []types.Connection {
	seen := make(map[types.EdgeKey]bool, len(discovered))
	out := make([]types.Connection, 0, len(discovered))
	for _, c := range discovered {
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		out = append(out, c)
	}
	return out
}
