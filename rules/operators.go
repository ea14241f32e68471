package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/songzhibin97/workflow-steps/types"
)

var (
	// ErrUnknownOperator indicates a leaf or composite uses an operator that does not exist.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrUnsupportedOperand indicates the left operand of contains/ncontains is neither a string nor a list.
	ErrUnsupportedOperand = errors.New("operand does not support containment checks")
)

// OperatorFunc compares the record value a against the condition value b.
type OperatorFunc func(a, b interface{}) (bool, error)

var operatorFuncs = map[types.Operator]OperatorFunc{
	types.OpEq: func(a, b interface{}) (bool, error) {
		if x, y, ok := bothNumbers(a, b); ok {
			return x == y, nil
		}
		return sameValue(a, b), nil
	},
	types.OpNe: func(a, b interface{}) (bool, error) {
		if x, y, ok := bothNumbers(a, b); ok {
			return x != y, nil
		}
		return !sameValue(a, b), nil
	},
	types.OpGt: func(a, b interface{}) (bool, error) {
		return ordered(a, b, func(c int) bool { return c > 0 }), nil
	},
	types.OpLt: func(a, b interface{}) (bool, error) {
		return ordered(a, b, func(c int) bool { return c < 0 }), nil
	},
	types.OpGe: func(a, b interface{}) (bool, error) {
		return ordered(a, b, func(c int) bool { return c >= 0 }), nil
	},
	types.OpLe: func(a, b interface{}) (bool, error) {
		return ordered(a, b, func(c int) bool { return c <= 0 }), nil
	},
	types.OpIn: func(a, b interface{}) (bool, error) {
		found, isList := listContains(b, a)
		return isList && found, nil
	},
	types.OpNin: func(a, b interface{}) (bool, error) {
		found, isList := listContains(b, a)
		return !isList || !found, nil
	},
	types.OpContains: func(a, b interface{}) (bool, error) {
		return contains(a, b)
	},
	types.OpNContains: func(a, b interface{}) (bool, error) {
		found, err := contains(a, b)
		return !found, err
	},
}

// Apply runs the named operator against a and b.
func Apply(op types.Operator, a, b interface{}) (bool, error) {
	fn, ok := operatorFuncs[op]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
	return fn(a, b)
}

// ToNumber converts v to a finite float64. Numeric kinds, numeric strings,
// json.Number and time.Time (as Unix milliseconds) qualify; empty strings,
// booleans and nil do not.
func ToNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case time.Time:
		f = float64(n.UnixMilli())
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			f = float64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		default:
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func bothNumbers(a, b interface{}) (float64, float64, bool) {
	x, ok := ToNumber(a)
	if !ok {
		return 0, 0, false
	}
	y, ok := ToNumber(b)
	if !ok {
		return 0, 0, false
	}
	return x, y, true
}

// ordered compares a and b numerically when both are numbers, otherwise
// strings lexically and booleans false < true. Any other pairing is unordered
// and every ordering operator reports false for it.
func ordered(a, b interface{}, accept func(int) bool) bool {
	if x, y, ok := bothNumbers(a, b); ok {
		return accept(compareFloat(x, y))
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return accept(strings.Compare(x, y))
		}
	case bool:
		if y, ok := b.(bool); ok {
			return accept(compareBool(x, y))
		}
	}
	return false
}

func compareFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func compareBool(x, y bool) int {
	switch {
	case x == y:
		return 0
	case !x:
		return -1
	default:
		return 1
	}
}

// sameValue is strict equality: numbers of different Go kinds compare by
// value, a number never equals a string.
func sameValue(a, b interface{}) bool {
	if isNumericKind(a) && isNumericKind(b) {
		x, _ := ToNumber(a)
		y, _ := ToNumber(b)
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

func isNumericKind(v interface{}) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// listContains reports whether list holds item, and whether list is a list at all.
func listContains(list, item interface{}) (found bool, isList bool) {
	if list == nil {
		return false, false
	}
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false, false
	}
	for i := 0; i < rv.Len(); i++ {
		if sameValue(rv.Index(i).Interface(), item) {
			return true, true
		}
	}
	return false, true
}

func contains(haystack, needle interface{}) (bool, error) {
	if s, ok := haystack.(string); ok {
		n, ok := needle.(string)
		if !ok {
			n = fmt.Sprint(needle)
		}
		return strings.Contains(s, n), nil
	}
	found, isList := listContains(haystack, needle)
	if !isList {
		return false, fmt.Errorf("%w: %T", ErrUnsupportedOperand, haystack)
	}
	return found, nil
}
