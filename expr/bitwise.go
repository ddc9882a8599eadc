package expr

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// BitwiseOp is a bitwise binary operator.
type BitwiseOp byte

const (
	BitwiseAndOperator BitwiseOp = iota
	BitwiseOrOperator
	BitwiseXorOperator
	ShiftLeftOperator
	ShiftRightOperator
)

// BitwiseBinary is and/or/xor/shl/shr over integer operands; the result
// type is the wider of the two, for shifts as well.
type BitwiseBinary struct {
	Op          BitwiseOp
	Left, Right Node
}

func NewBitwiseBinary(op BitwiseOp, left, right Node) *BitwiseBinary {
	return &BitwiseBinary{Op: op, Left: left, Right: right}
}

func (n *BitwiseBinary) ResultType(ctx *Context) (variant.Type, error) {
	lt, err := n.Left.ResultType(ctx)
	if err != nil {
		return 0, err
	}
	rt, err := n.Right.ResultType(ctx)
	if err != nil {
		return 0, err
	}
	if !lt.IsInteger() || !rt.IsInteger() {
		return 0, storage.NewError(storage.CodeSyntax, "bitwise operand is not an integer")
	}
	return variant.PromoteBitwise(lt, rt), nil
}

func (n *BitwiseBinary) Validate(ctx *Context) error {
	if err := n.Left.Validate(ctx); err != nil {
		return err
	}
	if err := n.Right.Validate(ctx); err != nil {
		return err
	}
	_, err := n.ResultType(ctx)
	return err
}

func (n *BitwiseBinary) Evaluate(ctx *Context) (variant.Variant, error) {
	result, err := n.ResultType(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	l, err := n.Left.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	r, err := n.Right.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	if l.IsNull() || r.IsNull() {
		return variant.Null, nil
	}
	if result.IsUnsigned() {
		lv, rv := l.UInt64(), r.UInt64()
		return numericVariant(result, 0, applyBitwiseUnsigned(n.Op, lv, rv), 0), nil
	}
	lv, rv := l.Int64(), r.Int64()
	return numericVariant(result, applyBitwiseSigned(n.Op, lv, rv), 0, 0), nil
}

func applyBitwiseUnsigned(op BitwiseOp, l, r uint64) uint64 {
	switch op {
	case BitwiseAndOperator:
		return l & r
	case BitwiseOrOperator:
		return l | r
	case BitwiseXorOperator:
		return l ^ r
	case ShiftLeftOperator:
		return l << (r & 63)
	case ShiftRightOperator:
		return l >> (r & 63)
	default:
		return 0
	}
}

func applyBitwiseSigned(op BitwiseOp, l, r int64) int64 {
	switch op {
	case BitwiseAndOperator:
		return l & r
	case BitwiseOrOperator:
		return l | r
	case BitwiseXorOperator:
		return l ^ r
	case ShiftLeftOperator:
		return l << (uint64(r) & 63)
	case ShiftRightOperator:
		return l >> (uint64(r) & 63)
	default:
		return 0
	}
}

func (n *BitwiseBinary) SerializedSize() int {
	return 1 + 1 + childrenSize(n.Left, n.Right)
}

func (n *BitwiseBinary) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagBitwiseBinary); err != nil {
		return err
	}
	if err := writeTag(w, byte(n.Op)); err != nil {
		return err
	}
	return serializeChildren(w, n.Left, n.Right)
}

func deserializeBitwiseBinary(c *codec.Cursor) (Node, error) {
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
	return &BitwiseBinary{Op: BitwiseOp(opB[0]), Left: left, Right: right}, nil
}

// BitwiseUnary is the bitwise complement `~x`. Integer promotion applies
// to the operand first, so complementing a sub-32-bit integer yields
// Int32.
type BitwiseUnary struct {
	Operand Node
}

func NewBitwiseUnary(operand Node) *BitwiseUnary { return &BitwiseUnary{Operand: operand} }

func (n *BitwiseUnary) ResultType(ctx *Context) (variant.Type, error) {
	t, err := n.Operand.ResultType(ctx)
	if err != nil {
		return 0, err
	}
	if !t.IsInteger() {
		return 0, storage.NewError(storage.CodeSyntax, "bitwise complement operand is not an integer")
	}
	return variant.PromoteUnary(t), nil
}

func (n *BitwiseUnary) Validate(ctx *Context) error {
	if err := n.Operand.Validate(ctx); err != nil {
		return err
	}
	_, err := n.ResultType(ctx)
	return err
}

func (n *BitwiseUnary) Evaluate(ctx *Context) (variant.Variant, error) {
	result, err := n.ResultType(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	v, err := n.Operand.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	if v.IsNull() {
		return variant.Null, nil
	}
	if result.IsUnsigned() {
		return numericVariant(result, 0, ^v.UInt64(), 0), nil
	}
	return numericVariant(result, ^v.Int64(), 0, 0), nil
}

func (n *BitwiseUnary) SerializedSize() int { return 1 + n.Operand.SerializedSize() }

func (n *BitwiseUnary) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagBitwiseUnary); err != nil {
		return err
	}
	return n.Operand.Serialize(w)
}

func deserializeBitwiseUnary(c *codec.Cursor) (Node, error) {
	operand, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &BitwiseUnary{Operand: operand}, nil
}
