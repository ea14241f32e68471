package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownStepType is returned when a step's stepType is not recognised.
var ErrUnknownStepType = errors.New("unknown step type")

// UnmarshalJSON decodes a condition step, including its expression tree.
func (s *ConditionStep) UnmarshalJSON(data []byte) error {
	var raw struct {
		StepBase
		Sequence *int            `json:"sequence,omitempty"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.StepBase = raw.StepBase
	s.Sequence = raw.Sequence
	s.Data = nil
	if len(raw.Data) == 0 || bytes.Equal(bytes.TrimSpace(raw.Data), []byte("null")) {
		return nil
	}
	expr, err := ParseExpression(raw.Data)
	if err != nil {
		return fmt.Errorf("step %s: %w", raw.WorkflowStepID, err)
	}
	s.Data = expr
	return nil
}

// DecodeStep decodes a single step, choosing the variant from its stepType.
func DecodeStep(data []byte) (Step, error) {
	var head struct {
		WorkflowStepID string   `json:"workflowStepId"`
		StepType       StepType `json:"stepType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var step Step
	switch head.StepType {
	case StepTypeConditionGroup:
		step = &ConditionGroupStep{}
	case StepTypeCondition:
		step = &ConditionStep{}
	case StepTypeTimer:
		step = &TimerStep{}
	case StepTypeAction:
		step = &ActionStep{}
	default:
		return nil, fmt.Errorf("%w: %d (step %q)", ErrUnknownStepType, int(head.StepType), head.WorkflowStepID)
	}
	if err := json.Unmarshal(data, step); err != nil {
		return nil, fmt.Errorf("failed to decode step %q: %w", head.WorkflowStepID, err)
	}
	return step, nil
}

// DecodeSteps decodes a JSON array of steps.
func DecodeSteps(data []byte) ([]Step, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(raws))
	for _, raw := range raws {
		step, err := DecodeStep(raw)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}
