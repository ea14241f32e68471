package rules

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/workflow-steps/types"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		op   types.Operator
		a, b interface{}
		want bool
	}{
		{"eq numeric string", types.OpEq, 240, "240", true},
		{"eq json number", types.OpEq, json.Number("12.5"), 12.5, true},
		{"eq strings", types.OpEq, "abc", "abc", true},
		{"eq different strings", types.OpEq, "abc", "abd", false},
		{"eq missing against value", types.OpEq, nil, "abc", false},
		{"eq both missing", types.OpEq, nil, nil, true},
		{"eq bool against string", types.OpEq, true, "true", false},
		{"ne numbers", types.OpNe, 1, "2", true},
		{"ne equal numbers", types.OpNe, 3.0, 3, false},
		{"gt numeric", types.OpGt, 240, "200", true},
		{"gt numeric string left", types.OpGt, "240", 999, false},
		{"gt strings", types.OpGt, "b", "a", true},
		{"gt bools", types.OpGt, true, false, true},
		{"gt missing", types.OpGt, nil, 5, false},
		{"lt strings", types.OpLt, "apple", "banana", true},
		{"lt mixed types", types.OpLt, "apple", true, false},
		{"ge equal", types.OpGe, 999, "999", true},
		{"le equal", types.OpLe, "999", 999, true},
		{"le greater", types.OpLe, 1400, "999", false},
		{"le times", types.OpLe, time.UnixMilli(10), time.UnixMilli(20), true},
		{"in list", types.OpIn, "gold", []interface{}{"silver", "gold"}, true},
		{"in typed list", types.OpIn, "gold", []string{"silver", "gold"}, true},
		{"in numeric kinds", types.OpIn, 2, []interface{}{1.0, 2.0}, true},
		{"in string is not number", types.OpIn, "2", []interface{}{2}, false},
		{"in non list", types.OpIn, "x", "x", false},
		{"nin non list", types.OpNin, "x", "xyz", true},
		{"nin absent", types.OpNin, "bronze", []string{"gold"}, true},
		{"nin present", types.OpNin, "gold", []string{"gold"}, false},
		{"contains substring", types.OpContains, "hello world", "world", true},
		{"contains element", types.OpContains, []interface{}{"a", "b"}, "b", true},
		{"contains missing element", types.OpContains, []interface{}{"a", "b"}, "c", false},
		{"contains number in string", types.OpContains, "room 42", 42, true},
		{"ncontains substring", types.OpNContains, "hello", "z", true},
		{"ncontains element", types.OpNContains, []string{"a"}, "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.op, tt.a, tt.b)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("contains on unsupported operand", func(t *testing.T) {
		_, err := Apply(types.OpContains, 42, "4")
		assert.ErrorIs(t, err, ErrUnsupportedOperand)

		_, err = Apply(types.OpNContains, nil, "a")
		assert.ErrorIs(t, err, ErrUnsupportedOperand)
	})

	t.Run("unknown operator", func(t *testing.T) {
		_, err := Apply(types.Operator("regex"), "a", "a")
		assert.ErrorIs(t, err, ErrUnknownOperator)
	})
}

func TestToNumber(t *testing.T) {
	n, ok := ToNumber(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, 42.0, n)

	_, ok = ToNumber("")
	assert.False(t, ok)
	_, ok = ToNumber("12abc")
	assert.False(t, ok)
	_, ok = ToNumber("Inf")
	assert.False(t, ok)
	_, ok = ToNumber(true)
	assert.False(t, ok)
	_, ok = ToNumber([]int{1})
	assert.False(t, ok)

	n, ok = ToNumber(uint8(7))
	assert.True(t, ok)
	assert.Equal(t, 7.0, n)
}

// pointsBetween mirrors the first branch of the loyalty card workflow.
func pointsBetween() types.Expression {
	return types.And(
		types.Compare("points", types.OpGt, "200"),
		types.Compare("points", types.OpLe, "999"),
	)
}

func evaluators() map[string]Evaluator {
	return map[string]Evaluator{
		"native": NewNativeEvaluator(),
		"expr":   NewExprEvaluator(),
	}
}

func TestEvaluators(t *testing.T) {
	tests := []struct {
		name    string
		expr    types.Expression
		record  map[string]interface{}
		want    bool
		wantErr error
	}{
		{
			name:   "and holds",
			expr:   pointsBetween(),
			record: map[string]interface{}{"points": 240},
			want:   true,
		},
		{
			name:   "and fails",
			expr:   pointsBetween(),
			record: map[string]interface{}{"points": 1400},
			want:   false,
		},
		{
			name:   "missing attribute",
			expr:   pointsBetween(),
			record: map[string]interface{}{},
			want:   false,
		},
		{
			name: "or holds",
			expr: types.Or(
				types.Compare("tier", types.OpEq, "gold"),
				types.Compare("points", types.OpGt, 999),
			),
			record: map[string]interface{}{"tier": "silver", "points": 1400.0},
			want:   true,
		},
		{
			name: "nested",
			expr: types.And(
				types.Compare("stage", types.OpIn, []interface{}{"new", "active"}),
				types.Or(
					types.Compare("message", types.OpContains, "Welcome"),
					types.Compare("points", types.OpGe, 100),
				),
			),
			record: map[string]interface{}{"stage": "active", "message": "Hi!", "points": "150"},
			want:   true,
		},
		{
			name:   "empty and",
			expr:   types.And(),
			record: map[string]interface{}{},
			want:   true,
		},
		{
			name:   "empty or",
			expr:   types.Or(),
			record: map[string]interface{}{},
			want:   false,
		},
		{
			name: "and short-circuits before a failing operand",
			expr: types.And(
				types.Compare("points", types.OpGt, 1000),
				types.Compare("points", types.OpContains, "1"),
			),
			record: map[string]interface{}{"points": 5},
			want:   false,
		},
		{
			name: "or surfaces unsupported operand",
			expr: types.Or(
				types.Compare("points", types.OpContains, "1"),
				types.Compare("points", types.OpGt, 1),
			),
			record:  map[string]interface{}{"points": 5},
			wantErr: ErrUnsupportedOperand,
		},
		{
			name:    "unknown logic",
			expr:    &types.Composite{Operator: "xor"},
			record:  map[string]interface{}{},
			wantErr: ErrUnknownOperator,
		},
		{
			name:   "nil expression",
			expr:   nil,
			record: map[string]interface{}{},
			want:   false,
		},
	}

	for name, evaluator := range evaluators() {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := evaluator.Evaluate(tt.expr, tt.record)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestEvaluateDecodedExpression(t *testing.T) {
	raw := `{"operator":"and","conditions":[{"value":"999","operator":"gt","attribute":"points"}]}`
	expr, err := types.ParseExpression([]byte(raw))
	require.NoError(t, err)

	got, err := NewNativeEvaluator().Evaluate(expr, map[string]interface{}{"points": float64(1400)})
	require.NoError(t, err)
	assert.True(t, got)
}
