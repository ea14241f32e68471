package workflow

import (
	"context"
	"fmt"
	"math"

	"github.com/songzhibin97/workflow-steps/rules"
	"github.com/songzhibin97/workflow-steps/types"
)

// Action computes the value an action step writes under its change type.
// snapshot is the record the execution pass started from.
type Action interface {
	Execute(ctx context.Context, data types.Action, snapshot types.Updates) (interface{}, error)
}

// ActionFunc is a function adapter for Action.
type ActionFunc func(ctx context.Context, data types.Action, snapshot types.Updates) (interface{}, error)

// Execute implements the Action interface.
func (f ActionFunc) Execute(ctx context.Context, data types.Action, snapshot types.Updates) (interface{}, error) {
	return f(ctx, data, snapshot)
}

func builtinActions() map[types.ActionType]Action {
	return map[types.ActionType]Action{
		types.ActionTypeFixed:     ActionFunc(fixedAction),
		types.ActionTypeIncrement: ActionFunc(incrementAction),
	}
}

func fixedAction(_ context.Context, data types.Action, _ types.Updates) (interface{}, error) {
	return data.NewValue, nil
}

// incrementAction adds NewValue to the snapshot value of the change type.
// It always reads the snapshot, so two increments of one attribute in the
// same pass do not compound.
func incrementAction(_ context.Context, data types.Action, snapshot types.Updates) (interface{}, error) {
	attribute := string(data.ChangeType)
	base, err := toInt(snapshot[attribute])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidIncrement, attribute, err)
	}
	delta, err := toInt(data.NewValue)
	if err != nil {
		return nil, fmt.Errorf("%w: newValue: %v", ErrInvalidIncrement, err)
	}
	return base + delta, nil
}

// toInt truncates a numeric value or numeric string to an int.
func toInt(v interface{}) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("value is missing")
	}
	n, ok := rules.ToNumber(v)
	if !ok {
		return 0, fmt.Errorf("%v is not a number", v)
	}
	n = math.Trunc(n)
	if n > math.MaxInt64 || n < math.MinInt64 {
		return 0, fmt.Errorf("%v is out of range", v)
	}
	return int(n), nil
}
