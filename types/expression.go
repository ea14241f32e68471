package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Operator is a leaf comparison operator.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNe        Operator = "ne"
	OpGt        Operator = "gt"
	OpLt        Operator = "lt"
	OpGe        Operator = "ge"
	OpLe        Operator = "le"
	OpIn        Operator = "in"
	OpNin       Operator = "nin"
	OpContains  Operator = "contains"
	OpNContains Operator = "ncontains"
)

// Logic joins the children of a composite expression.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Expression is a boolean condition tree. It is implemented by *Leaf and
// *Composite only.
type Expression interface {
	expression()
}

// Leaf compares record[Attribute] against Value.
type Leaf struct {
	Attribute string      `json:"attribute" validate:"required"`
	Operator  Operator    `json:"operator" validate:"oneof=eq ne gt lt ge le in nin contains ncontains"`
	Value     interface{} `json:"value"`
}

// Composite combines child expressions with and/or.
type Composite struct {
	Operator   Logic        `json:"operator" validate:"oneof=and or"`
	Conditions []Expression `json:"conditions"`
}

func (*Leaf) expression()      {}
func (*Composite) expression() {}

// ErrInvalidExpression is returned when a condition tree cannot be decoded.
var ErrInvalidExpression = errors.New("invalid condition expression")

// And builds a composite requiring every child to hold.
func And(conditions ...Expression) *Composite {
	return &Composite{Operator: LogicAnd, Conditions: conditions}
}

// Or builds a composite requiring at least one child to hold.
func Or(conditions ...Expression) *Composite {
	return &Composite{Operator: LogicOr, Conditions: conditions}
}

// Compare builds a leaf expression.
func Compare(attribute string, op Operator, value interface{}) *Leaf {
	return &Leaf{Attribute: attribute, Operator: op, Value: value}
}

// UnmarshalJSON decodes the children of a composite expression.
func (c *Composite) UnmarshalJSON(data []byte) error {
	var raw struct {
		Operator   Logic             `json:"operator"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	c.Operator = raw.Operator
	c.Conditions = make([]Expression, 0, len(raw.Conditions))
	for _, item := range raw.Conditions {
		child, err := ParseExpression(item)
		if err != nil {
			return err
		}
		c.Conditions = append(c.Conditions, child)
	}
	return nil
}

// ParseExpression decodes a JSON condition tree. An object with a non-empty
// "attribute" is a leaf; anything else is a composite.
func ParseExpression(data []byte) (Expression, error) {
	var head struct {
		Attribute string `json:"attribute"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	if head.Attribute != "" {
		var leaf Leaf
		if err := json.Unmarshal(data, &leaf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
		}
		return &leaf, nil
	}
	var composite Composite
	if err := json.Unmarshal(data, &composite); err != nil {
		return nil, err
	}
	return &composite, nil
}

// WalkExpression calls fn for expr and every expression below it, depth first.
// Walking stops at the first error returned by fn.
func WalkExpression(expr Expression, fn func(Expression) error) error {
	if err := fn(expr); err != nil {
		return err
	}
	if c, ok := expr.(*Composite); ok {
		for _, child := range c.Conditions {
			if err := WalkExpression(child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
