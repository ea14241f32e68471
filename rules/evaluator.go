package rules

import (
	"fmt"

	"github.com/songzhibin97/workflow-steps/types"
)

// Evaluator defines the interface for evaluating condition trees.
type Evaluator interface {
	Evaluate(expr types.Expression, record map[string]interface{}) (bool, error)
}

// NativeEvaluator walks the condition tree directly.
type NativeEvaluator struct{}

// NewNativeEvaluator creates a NativeEvaluator.
func NewNativeEvaluator() *NativeEvaluator {
	return &NativeEvaluator{}
}

// Evaluate evaluates expr against record. A nil expression never holds.
// and/or short-circuit: children after the deciding one are not evaluated.
func (e *NativeEvaluator) Evaluate(expr types.Expression, record map[string]interface{}) (bool, error) {
	switch x := expr.(type) {
	case *types.Leaf:
		return Apply(x.Operator, record[x.Attribute], x.Value)
	case *types.Composite:
		switch x.Operator {
		case types.LogicAnd:
			for _, child := range x.Conditions {
				ok, err := e.Evaluate(child, record)
				if err != nil || !ok {
					return false, err
				}
			}
			return true, nil
		case types.LogicOr:
			for _, child := range x.Conditions {
				ok, err := e.Evaluate(child, record)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, fmt.Errorf("%w: %q", ErrUnknownOperator, x.Operator)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("unsupported expression type %T", expr)
	}
}
