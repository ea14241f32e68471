package types

import "fmt"

// StepType identifies the variant of a workflow step.
type StepType int

const (
	StepTypeConditionGroup StepType = 100
	StepTypeCondition      StepType = 200
	StepTypeTimer          StepType = 300
	StepTypeAction         StepType = 400
)

func (t StepType) String() string {
	switch t {
	case StepTypeConditionGroup:
		return "condition_group"
	case StepTypeCondition:
		return "condition"
	case StepTypeTimer:
		return "timer"
	case StepTypeAction:
		return "action"
	default:
		return fmt.Sprintf("step_type(%d)", int(t))
	}
}

// Valid reports whether t is one of the known step types.
func (t StepType) Valid() bool {
	switch t {
	case StepTypeConditionGroup, StepTypeCondition, StepTypeTimer, StepTypeAction:
		return true
	}
	return false
}

// StepBase holds the fields shared by every step variant.
type StepBase struct {
	WorkflowID       string   `json:"workflowId,omitempty"`
	WorkflowStepID   string   `json:"workflowStepId" validate:"required"`
	StepType         StepType `json:"stepType" validate:"oneof=100 200 300 400"`
	FollowingStepIDs []string `json:"followingStepIds,omitempty" validate:"dive,required"`
	IsInitialStep    bool     `json:"isInitialStep,omitempty"`
}

// Base returns the common fields of the step.
func (b StepBase) Base() StepBase { return b }

// ID returns the workflow step id.
func (b StepBase) ID() string { return b.WorkflowStepID }

// Step is a node of a workflow definition. It is implemented by
// *ConditionGroupStep, *ConditionStep, *ActionStep and *TimerStep only.
type Step interface {
	Base() StepBase
	ID() string
	step()
}

// ConditionGroupConfig configures how a condition group picks branches.
type ConditionGroupConfig struct {
	RunAllValidCriteria bool `json:"runAllValidCriteria"`
}

// ConditionGroupStep evaluates its Condition followers in sequence order.
type ConditionGroupStep struct {
	StepBase
	DefaultStepIDs []string             `json:"defaultStepIds,omitempty" validate:"dive,required"`
	Data           ConditionGroupConfig `json:"data"`
}

// ConditionStep is a branch of a condition group.
type ConditionStep struct {
	StepBase
	Sequence *int       `json:"sequence,omitempty"`
	Data     Expression `json:"data" validate:"required"`
}

// ChangeType names the part of the record an action changes.
type ChangeType string

const (
	ChangeTypeStage       ChangeType = "stage"
	ChangeTypeMessage     ChangeType = "message"
	ChangeTypeData        ChangeType = "data"
	ChangeTypePoints      ChangeType = "points"
	ChangeTypeIntegration ChangeType = "integration"
)

// ActionType selects the action that computes the written value. Types
// other than fixed and increment must be registered with the engine.
type ActionType string

const (
	ActionTypeFixed     ActionType = "fixed"
	ActionTypeIncrement ActionType = "increment"
)

// Action describes a change to the record.
type Action struct {
	ChangeType ChangeType  `json:"changeType" validate:"oneof=stage message data points integration"`
	ActionType ActionType  `json:"actionType,omitempty"`
	Attribute  string      `json:"attribute,omitempty"`
	Path       string      `json:"path,omitempty"`
	NewValue   interface{} `json:"newValue,omitempty"`
}

// ActionStep writes Data.NewValue under Data.ChangeType.
type ActionStep struct {
	StepBase
	Data Action `json:"data"`
}

// TimerStep suspends the branch it sits on until the caller resumes it.
type TimerStep struct {
	StepBase
	Data Timer `json:"data"`
}

func (*ConditionGroupStep) step() {}
func (*ConditionStep) step()      {}
func (*ActionStep) step()         {}
func (*TimerStep) step()          {}

// IndexSteps maps step ids to steps. When an id repeats, the first step wins.
func IndexSteps(steps []Step) map[string]Step {
	index := make(map[string]Step, len(steps))
	for _, s := range steps {
		if s == nil {
			continue
		}
		if _, ok := index[s.ID()]; !ok {
			index[s.ID()] = s
		}
	}
	return index
}

// WithWorkflowID returns a shallow copy of s whose WorkflowID is set to id.
func WithWorkflowID(s Step, id string) Step {
	switch v := s.(type) {
	case *ConditionGroupStep:
		c := *v
		c.WorkflowID = id
		return &c
	case *ConditionStep:
		c := *v
		c.WorkflowID = id
		return &c
	case *ActionStep:
		c := *v
		c.WorkflowID = id
		return &c
	case *TimerStep:
		c := *v
		c.WorkflowID = id
		return &c
	default:
		return s
	}
}
