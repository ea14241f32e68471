// Package testutil provides step builders and workflow fixtures for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/songzhibin97/workflow-steps/types"
)

// StepOption overrides a common field of a built step.
type StepOption func(*types.StepBase)

// Initial marks the step as a graph entry point.
func Initial() StepOption {
	return func(b *types.StepBase) {
		b.IsInitialStep = true
	}
}

// WithID replaces the generated step id.
func WithID(id string) StepOption {
	return func(b *types.StepBase) {
		b.WorkflowStepID = id
	}
}

// WithWorkflow sets the workflow id of the step.
func WithWorkflow(id string) StepOption {
	return func(b *types.StepBase) {
		b.WorkflowID = id
	}
}

func newBase(stepType types.StepType, opts []StepOption) types.StepBase {
	base := types.StepBase{
		WorkflowStepID:   uuid.NewString(),
		StepType:         stepType,
		FollowingStepIDs: []string{},
	}
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// NewAction creates an action step with a random id.
func NewAction(action types.Action, opts ...StepOption) *types.ActionStep {
	return &types.ActionStep{StepBase: newBase(types.StepTypeAction, opts), Data: action}
}

// NewConditionGroup creates a condition group step with a random id.
func NewConditionGroup(runAll bool, opts ...StepOption) *types.ConditionGroupStep {
	return &types.ConditionGroupStep{
		StepBase:       newBase(types.StepTypeConditionGroup, opts),
		DefaultStepIDs: []string{},
		Data:           types.ConditionGroupConfig{RunAllValidCriteria: runAll},
	}
}

// NewCondition creates a condition step. A negative sequence leaves it unset.
func NewCondition(expr types.Expression, sequence int, opts ...StepOption) *types.ConditionStep {
	step := &types.ConditionStep{StepBase: newBase(types.StepTypeCondition, opts), Data: expr}
	if sequence >= 0 {
		step.Sequence = &sequence
	}
	return step
}

// NewTimer creates a timer step with a random id.
func NewTimer(when string, opts ...StepOption) *types.TimerStep {
	return &types.TimerStep{StepBase: newBase(types.StepTypeTimer, opts), Data: types.Timer{When: when}}
}

// Link appends the ids of next to the following ids of step.
func Link(step types.Step, next ...types.Step) {
	base := baseOf(step)
	for _, n := range next {
		base.FollowingStepIDs = append(base.FollowingStepIDs, n.ID())
	}
}

// LinkDefault appends the ids of next to the default ids of group.
func LinkDefault(group *types.ConditionGroupStep, next ...types.Step) {
	for _, n := range next {
		group.DefaultStepIDs = append(group.DefaultStepIDs, n.ID())
	}
}

func baseOf(step types.Step) *types.StepBase {
	switch s := step.(type) {
	case *types.ConditionGroupStep:
		return &s.StepBase
	case *types.ConditionStep:
		return &s.StepBase
	case *types.ActionStep:
		return &s.StepBase
	case *types.TimerStep:
		return &s.StepBase
	default:
		panic("testutil: unknown step type")
	}
}

// Messages written by the loyalty card workflow.
const (
	MessageWelcome      = "Welcome to our store"
	MessageNotEnough    = "Sorry you don't have enough points to participate"
	MessageCongrats     = "Congrats! You'll receive a reward in a few minutes"
	MessageEarnedPoints = "You earned 100 points!"
	MessageCheating     = "We will take some of your points because you are probably cheating 🧐"
	MessageJustKidding  = "Just kidding! 😄"
)

// LoyaltyWorkflow is a loyalty card workflow: a welcome message, then a
// condition group rewarding cards with 200 < points <= 999 after a 5 minute
// timer and flagging cards above 999 after a 1 minute timer.
type LoyaltyWorkflow struct {
	Welcome       *types.ActionStep
	Group         *types.ConditionGroupStep
	NotEnough     *types.ActionStep
	PointsBetween *types.ConditionStep
	TooManyPoints *types.ConditionStep
	Congrats      *types.ActionStep
	RewardTimer   *types.TimerStep
	RewardMessage *types.ActionStep
	RewardPoints  *types.ActionStep
	Cheating      *types.ActionStep
	CheatingTimer *types.TimerStep

	// JustKidding follows CheatingTimer in the updated workflow only.
	JustKidding *types.ActionStep
}

// NewLoyaltyWorkflow builds the eleven step loyalty card workflow.
func NewLoyaltyWorkflow() *LoyaltyWorkflow {
	w := &LoyaltyWorkflow{
		Welcome:   NewAction(types.Action{ChangeType: types.ChangeTypeMessage, NewValue: MessageWelcome}, Initial()),
		Group:     NewConditionGroup(false),
		NotEnough: NewAction(types.Action{ChangeType: types.ChangeTypeMessage, NewValue: MessageNotEnough}),
		PointsBetween: NewCondition(types.And(
			types.Compare("points", types.OpGt, "200"),
			types.Compare("points", types.OpLe, "999"),
		), 1),
		TooManyPoints: NewCondition(types.And(
			types.Compare("points", types.OpGt, "999"),
		), 2),
		Congrats:      NewAction(types.Action{ChangeType: types.ChangeTypeMessage, NewValue: MessageCongrats}),
		RewardTimer:   NewTimer("5m"),
		RewardMessage: NewAction(types.Action{ChangeType: types.ChangeTypeMessage, NewValue: MessageEarnedPoints}),
		RewardPoints: NewAction(types.Action{
			ChangeType: types.ChangeTypePoints,
			ActionType: types.ActionTypeIncrement,
			NewValue:   100,
		}),
		Cheating:      NewAction(types.Action{ChangeType: types.ChangeTypeMessage, NewValue: MessageCheating}),
		CheatingTimer: NewTimer("1m"),
	}

	Link(w.Welcome, w.Group)
	Link(w.Group, w.PointsBetween, w.TooManyPoints)
	LinkDefault(w.Group, w.NotEnough)
	Link(w.PointsBetween, w.Congrats)
	Link(w.Congrats, w.RewardTimer)
	Link(w.RewardTimer, w.RewardMessage, w.RewardPoints)
	Link(w.TooManyPoints, w.Cheating)
	Link(w.Cheating, w.CheatingTimer)
	return w
}

// NewUpdatedLoyaltyWorkflow builds a fresh loyalty card workflow with an
// extra action after the 1 minute timer. Every step gets a new id.
func NewUpdatedLoyaltyWorkflow() *LoyaltyWorkflow {
	w := NewLoyaltyWorkflow()
	w.JustKidding = NewAction(types.Action{ChangeType: types.ChangeTypeMessage, NewValue: MessageJustKidding})
	Link(w.CheatingTimer, w.JustKidding)
	return w
}

// Steps returns the steps of the workflow in declaration order.
func (w *LoyaltyWorkflow) Steps() []types.Step {
	steps := []types.Step{
		w.Welcome,
		w.Group,
		w.NotEnough,
		w.PointsBetween,
		w.TooManyPoints,
		w.Congrats,
		w.RewardTimer,
		w.RewardMessage,
		w.RewardPoints,
		w.Cheating,
		w.CheatingTimer,
	}
	if w.JustKidding != nil {
		steps = append(steps, w.JustKidding)
	}
	return steps
}
