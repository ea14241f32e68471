package rules

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/songzhibin97/workflow-steps/types"
)

// errorSink collects the first operator error raised while a program runs.
type errorSink struct {
	err error
}

// ExprEvaluator is an implementation of Evaluator using expr-lang/expr.
// Each condition tree is rendered into an expr program such as
//
//	(op_gt(record["points"], args[0], sink) && op_le(record["points"], args[1], sink))
//
// whose operators are the same functions the NativeEvaluator applies.
type ExprEvaluator struct {
	cache       map[string]*vm.Program
	mu          sync.RWMutex
	optionsFunc map[string]func(map[string]interface{}) interface{}
}

// NewExprEvaluator creates a new ExprEvaluator with an initialized cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{
		cache:       make(map[string]*vm.Program),
		optionsFunc: make(map[string]func(map[string]interface{}) interface{}),
	}
}

// AddOptionFunc registers a computed attribute. Before each evaluation f is
// called with the record and its result is exposed to conditions as name.
func (e *ExprEvaluator) AddOptionFunc(name string, f func(map[string]interface{}) interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.optionsFunc[name] = f
}

// Evaluate evaluates the condition tree against the provided record.
// The record passed in is never modified.
func (e *ExprEvaluator) Evaluate(condition types.Expression, record map[string]interface{}) (bool, error) {
	var args []interface{}
	source, err := render(condition, &args)
	if err != nil {
		return false, err
	}

	e.mu.RLock()
	scope := make(map[string]interface{}, len(record)+len(e.optionsFunc))
	for k, v := range record {
		scope[k] = v
	}
	for k, f := range e.optionsFunc {
		scope[k] = f(record)
	}
	program, ok := e.cache[source]
	e.mu.RUnlock()

	if !ok {
		e.mu.Lock()
		if program, ok = e.cache[source]; !ok {
			program, err = expr.Compile(source, compileOptions()...)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("failed to compile condition '%s': %w", source, err)
			}
			e.cache[source] = program
		}
		e.mu.Unlock()
	}

	sink := &errorSink{}
	result, err := expr.Run(program, map[string]interface{}{
		"record": scope,
		"args":   args,
		"sink":   sink,
	})
	if sink.err != nil {
		return false, sink.err
	}
	if err != nil {
		return false, err
	}

	if boolResult, ok := result.(bool); ok {
		return boolResult, nil
	}
	return false, fmt.Errorf("condition '%s' did not evaluate to a boolean, got %T", source, result)
}

// CacheSize returns the number of compiled programs held by the evaluator.
func (e *ExprEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func compileOptions() []expr.Option {
	opts := []expr.Option{
		expr.Env(map[string]interface{}{
			"record": map[string]interface{}{},
			"args":   []interface{}{},
			"sink":   &errorSink{},
		}),
	}
	for op := range operatorFuncs {
		op := op
		opts = append(opts, expr.Function(functionName(op), func(params ...any) (any, error) {
			if len(params) != 3 {
				return nil, fmt.Errorf("%s expects 3 arguments, got %d", functionName(op), len(params))
			}
			ok, err := Apply(op, params[0], params[1])
			if err != nil {
				if sink, isSink := params[2].(*errorSink); isSink && sink.err == nil {
					sink.err = err
				}
				return false, nil
			}
			return ok, nil
		}))
	}
	return opts
}

func functionName(op types.Operator) string {
	return "op_" + string(op)
}

// render turns a condition tree into expr source, appending leaf values to args.
func render(condition types.Expression, args *[]interface{}) (string, error) {
	switch x := condition.(type) {
	case *types.Leaf:
		if _, ok := operatorFuncs[x.Operator]; !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownOperator, x.Operator)
		}
		*args = append(*args, x.Value)
		return fmt.Sprintf("%s(record[%s], args[%d], sink)",
			functionName(x.Operator), strconv.Quote(x.Attribute), len(*args)-1), nil
	case *types.Composite:
		var joiner, empty string
		switch x.Operator {
		case types.LogicAnd:
			joiner, empty = " && ", "true"
		case types.LogicOr:
			joiner, empty = " || ", "false"
		default:
			return "", fmt.Errorf("%w: %q", ErrUnknownOperator, x.Operator)
		}
		if len(x.Conditions) == 0 {
			return empty, nil
		}
		parts := make([]string, 0, len(x.Conditions))
		for _, child := range x.Conditions {
			part, err := render(child, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	case nil:
		return "false", nil
	default:
		return "", fmt.Errorf("unsupported expression type %T", condition)
	}
}
