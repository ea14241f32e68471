package workflow

import (
	"errors"
	"fmt"
)

// Standard error definitions
var (
	ErrEmptyWorkflowID     = errors.New("workflow ID cannot be empty")
	ErrInvalidStep         = errors.New("invalid workflow step")
	ErrActionNotRegistered = errors.New("action not registered")
	ErrInvalidIncrement    = errors.New("increment operands must be integers")
	ErrMaxDepthExceeded    = errors.New("maximum step depth exceeded")
)

// ExecutionError reports the step an execution pass failed on.
type ExecutionError struct {
	StepID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed at step %s: %v", e.StepID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// executionError wraps err unless it already names a step.
func executionError(stepID string, err error) error {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return &ExecutionError{StepID: stepID, Err: err}
}

func invalidStep(stepID string, err error) error {
	return fmt.Errorf("%w: step %q: %w", ErrInvalidStep, stepID, err)
}
