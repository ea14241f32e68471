package graph

import (
	"errors"
	"fmt"
)

// Structural errors raised while deriving connections.
var (
	ErrDuplicateStep             = errors.New("duplicated step id")
	ErrNoInitialStep             = errors.New("no initial steps configured")
	ErrInvalidConditionPlacement = errors.New("condition should be inside a condition group")
	ErrInvalidConditionGroup     = errors.New("condition group contains steps that are not conditions")
	ErrCyclicGraph               = errors.New("circular dependency detected")
)

// StepError ties a structural error to the step that caused it.
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(stepID string, err error) error {
	return &StepError{StepID: stepID, Err: err}
}
