package expr

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// LogicalOp is AND or OR.
type LogicalOp byte

const (
	AndOperator LogicalOp = iota
	OrOperator
)

// LogicalBinary implements SQL three-valued AND/OR: NULL behaves as
// "unknown", so e.g. `false AND NULL` is false (NULL can't change the
// outcome) but `true AND NULL` is NULL.
type LogicalBinary struct {
	Op          LogicalOp
	Left, Right Node
}

func NewLogicalBinary(op LogicalOp, left, right Node) *LogicalBinary {
	return &LogicalBinary{Op: op, Left: left, Right: right}
}

func (n *LogicalBinary) ResultType(*Context) (variant.Type, error) { return variant.TypeBool, nil }

func (n *LogicalBinary) Validate(ctx *Context) error {
	if lt, err := n.Left.ResultType(ctx); err != nil {
		return err
	} else if lt != variant.TypeBool && lt != variant.TypeNull {
		return storage.NewError(storage.CodeSyntax, "logical operand is not boolean")
	}
	if rt, err := n.Right.ResultType(ctx); err != nil {
		return err
	} else if rt != variant.TypeBool && rt != variant.TypeNull {
		return storage.NewError(storage.CodeSyntax, "logical operand is not boolean")
	}
	if err := n.Left.Validate(ctx); err != nil {
		return err
	}
	return n.Right.Validate(ctx)
}

func (n *LogicalBinary) Evaluate(ctx *Context) (variant.Variant, error) {
	l, err := n.Left.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	r, err := n.Right.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	if n.Op == AndOperator {
		if (!l.IsNull() && !l.Bool()) || (!r.IsNull() && !r.Bool()) {
			return variant.NewBool(false), nil
		}
		if l.IsNull() || r.IsNull() {
			return variant.Null, nil
		}
		return variant.NewBool(true), nil
	}
	if (!l.IsNull() && l.Bool()) || (!r.IsNull() && r.Bool()) {
		return variant.NewBool(true), nil
	}
	if l.IsNull() || r.IsNull() {
		return variant.Null, nil
	}
	return variant.NewBool(false), nil
}

func (n *LogicalBinary) SerializedSize() int {
	return 1 + 1 + childrenSize(n.Left, n.Right)
}

func (n *LogicalBinary) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagLogicalBinary); err != nil {
		return err
	}
	if err := writeTag(w, byte(n.Op)); err != nil {
		return err
	}
	return serializeChildren(w, n.Left, n.Right)
}

func deserializeLogicalBinary(c *codec.Cursor) (Node, error) {
	opB, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	left, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	right, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &LogicalBinary{Op: LogicalOp(opB[0]), Left: left, Right: right}, nil
}

// LogicalNot is NOT. NOT NULL is NULL.
type LogicalNot struct {
	Operand Node
}

func NewLogicalNot(operand Node) *LogicalNot { return &LogicalNot{Operand: operand} }

func (n *LogicalNot) ResultType(*Context) (variant.Type, error) { return variant.TypeBool, nil }

func (n *LogicalNot) Validate(ctx *Context) error {
	if t, err := n.Operand.ResultType(ctx); err != nil {
		return err
	} else if t != variant.TypeBool && t != variant.TypeNull {
		return storage.NewError(storage.CodeSyntax, "NOT operand is not boolean")
	}
	return n.Operand.Validate(ctx)
}

func (n *LogicalNot) Evaluate(ctx *Context) (variant.Variant, error) {
	v, err := n.Operand.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	if v.IsNull() {
		return variant.Null, nil
	}
	return variant.NewBool(!v.Bool()), nil
}

func (n *LogicalNot) SerializedSize() int { return 1 + n.Operand.SerializedSize() }

func (n *LogicalNot) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagLogicalNot); err != nil {
		return err
	}
	return n.Operand.Serialize(w)
}

func deserializeLogicalNot(c *codec.Cursor) (Node, error) {
	operand, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &LogicalNot{Operand: operand}, nil
}
