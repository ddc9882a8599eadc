package expr

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// ArithOp is an arithmetic binary operator. SubtractOperator is the
// canonical spelling for subtraction (not Sub/Substract).
type ArithOp byte

const (
	AddOperator ArithOp = iota
	SubtractOperator
	MultiplyOperator
	DivideOperator
	ModuloOperator
)

// ArithBinary is add/sub/mul/div/mod with numeric type promotion:
// integers narrower than 32 bits first widen to Int32 (so u8+u16 gives
// Int32); two integers of the same signedness promote to the larger; mixed
// signedness promotes to signed of the next wider category; any float
// operand forces Float or Double.
type ArithBinary struct {
	Op          ArithOp
	Left, Right Node
}

func NewArithBinary(op ArithOp, left, right Node) *ArithBinary {
	return &ArithBinary{Op: op, Left: left, Right: right}
}

func (n *ArithBinary) ResultType(ctx *Context) (variant.Type, error) {
	lt, err := n.Left.ResultType(ctx)
	if err != nil {
		return 0, err
	}
	rt, err := n.Right.ResultType(ctx)
	if err != nil {
		return 0, err
	}
	if !lt.IsNumeric() || !rt.IsNumeric() {
		return 0, storage.NewError(storage.CodeSyntax, "arithmetic operand is not numeric")
	}
	return variant.Promote(lt, rt), nil
}

func (n *ArithBinary) Validate(ctx *Context) error {
	if err := n.Left.Validate(ctx); err != nil {
		return err
	}
	if err := n.Right.Validate(ctx); err != nil {
		return err
	}
	_, err := n.ResultType(ctx)
	return err
}

func (n *ArithBinary) Evaluate(ctx *Context) (variant.Variant, error) {
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
	if result.IsFloating() {
		lv, rv := l.AsFloat64(), r.AsFloat64()
		f, err := applyFloat(n.Op, lv, rv)
		if err != nil {
			return variant.Variant{}, err
		}
		return numericVariant(result, 0, 0, f), nil
	}
	if result.IsUnsigned() {
		lv, rv := l.UInt64(), r.UInt64()
		u, err := applyUnsigned(n.Op, lv, rv)
		if err != nil {
			return variant.Variant{}, err
		}
		return numericVariant(result, 0, u, 0), nil
	}
	lv, rv := l.Int64(), r.Int64()
	i, err := applySigned(n.Op, lv, rv)
	if err != nil {
		return variant.Variant{}, err
	}
	return numericVariant(result, i, 0, 0), nil
}

func applyFloat(op ArithOp, l, r float64) (float64, error) {
	switch op {
	case AddOperator:
		return l + r, nil
	case SubtractOperator:
		return l - r, nil
	case MultiplyOperator:
		return l * r, nil
	case DivideOperator:
		if r == 0 {
			return 0, storage.NewError(storage.CodeValueOutOfRange, "division by zero")
		}
		return l / r, nil
	case ModuloOperator:
		if r == 0 {
			return 0, storage.NewError(storage.CodeValueOutOfRange, "division by zero")
		}
		m := l - r*float64(int64(l/r))
		return m, nil
	default:
		return 0, storage.NewError(storage.CodeInvariantViolated, "unknown arithmetic operator %d", op)
	}
}

func applyUnsigned(op ArithOp, l, r uint64) (uint64, error) {
	switch op {
	case AddOperator:
		return l + r, nil
	case SubtractOperator:
		return l - r, nil
	case MultiplyOperator:
		return l * r, nil
	case DivideOperator:
		if r == 0 {
			return 0, storage.NewError(storage.CodeValueOutOfRange, "division by zero")
		}
		return l / r, nil
	case ModuloOperator:
		if r == 0 {
			return 0, storage.NewError(storage.CodeValueOutOfRange, "division by zero")
		}
		return l % r, nil
	default:
		return 0, storage.NewError(storage.CodeInvariantViolated, "unknown arithmetic operator %d", op)
	}
}

func applySigned(op ArithOp, l, r int64) (int64, error) {
	switch op {
	case AddOperator:
		return l + r, nil
	case SubtractOperator:
		return l - r, nil
	case MultiplyOperator:
		return l * r, nil
	case DivideOperator:
		if r == 0 {
			return 0, storage.NewError(storage.CodeValueOutOfRange, "division by zero")
		}
		return l / r, nil
	case ModuloOperator:
		if r == 0 {
			return 0, storage.NewError(storage.CodeValueOutOfRange, "division by zero")
		}
		return l % r, nil
	default:
		return 0, storage.NewError(storage.CodeInvariantViolated, "unknown arithmetic operator %d", op)
	}
}

// numericVariant narrows i/u/f to t's representation, constructing the
// matching Variant.
func numericVariant(t variant.Type, i int64, u uint64, f float64) variant.Variant {
	switch t {
	case variant.TypeInt8:
		return variant.NewInt8(int8(i))
	case variant.TypeUInt8:
		return variant.NewUInt8(uint8(u))
	case variant.TypeInt16:
		return variant.NewInt16(int16(i))
	case variant.TypeUInt16:
		return variant.NewUInt16(uint16(u))
	case variant.TypeInt32:
		return variant.NewInt32(int32(i))
	case variant.TypeUInt32:
		return variant.NewUInt32(uint32(u))
	case variant.TypeInt64:
		return variant.NewInt64(i)
	case variant.TypeUInt64:
		return variant.NewUInt64(u)
	case variant.TypeFloat:
		return variant.NewFloat(float32(f))
	case variant.TypeDouble:
		return variant.NewDouble(f)
	default:
		return variant.Null
	}
}

func (n *ArithBinary) SerializedSize() int {
	return 1 + 1 + childrenSize(n.Left, n.Right)
}

func (n *ArithBinary) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagArithBinary); err != nil {
		return err
	}
	if err := writeTag(w, byte(n.Op)); err != nil {
		return err
	}
	return serializeChildren(w, n.Left, n.Right)
}

func deserializeArithBinary(c *codec.Cursor) (Node, error) {
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
	return &ArithBinary{Op: ArithOp(opB[0]), Left: left, Right: right}, nil
}

// UnaryArithOp is a unary arithmetic operator (unary complement is
// bitwise, not arithmetic; see BitwiseUnary).
type UnaryArithOp byte

const (
	UnaryPlusOperator UnaryArithOp = iota
	UnaryMinusOperator
)

// ArithUnary is unary plus/minus. Both apply integer promotion first, so
// an integer operand narrower than 32 bits comes out as Int32 even under
// unary plus; float operands pass through unchanged. Minus additionally
// promotes an unsigned operand to a signed type wide enough to represent
// a negative result.
type ArithUnary struct {
	Op      UnaryArithOp
	Operand Node
}

func NewArithUnary(op UnaryArithOp, operand Node) *ArithUnary {
	return &ArithUnary{Op: op, Operand: operand}
}

func (n *ArithUnary) ResultType(ctx *Context) (variant.Type, error) {
	t, err := n.Operand.ResultType(ctx)
	if err != nil {
		return 0, err
	}
	if !t.IsNumeric() {
		return 0, storage.NewError(storage.CodeSyntax, "unary arithmetic operand is not numeric")
	}
	if t.IsFloating() {
		return t, nil
	}
	t = variant.PromoteUnary(t)
	if n.Op == UnaryMinusOperator {
		return signedEquivalent(t), nil
	}
	return t, nil
}

func signedEquivalent(t variant.Type) variant.Type {
	switch t {
	case variant.TypeUInt8, variant.TypeUInt16:
		return variant.TypeInt32
	case variant.TypeUInt32:
		return variant.TypeInt64
	case variant.TypeUInt64:
		return variant.TypeDouble
	default:
		return t
	}
}

func (n *ArithUnary) Validate(ctx *Context) error {
	if err := n.Operand.Validate(ctx); err != nil {
		return err
	}
	_, err := n.ResultType(ctx)
	return err
}

func (n *ArithUnary) Evaluate(ctx *Context) (variant.Variant, error) {
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
	if n.Op == UnaryPlusOperator {
		if v.Type == result {
			return v, nil
		}
		// Integer promotion changed the type; re-materialize the value.
		if result.IsFloating() {
			return numericVariant(result, 0, 0, v.AsFloat64()), nil
		}
		if result.IsUnsigned() {
			return numericVariant(result, 0, v.UInt64(), 0), nil
		}
		return numericVariant(result, v.Int64(), 0, 0), nil
	}
	if result.IsFloating() {
		return numericVariant(result, 0, 0, -v.AsFloat64()), nil
	}
	return numericVariant(result, -v.Int64(), 0, 0), nil
}

func (n *ArithUnary) SerializedSize() int { return 1 + 1 + n.Operand.SerializedSize() }

func (n *ArithUnary) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagArithUnary); err != nil {
		return err
	}
	if err := writeTag(w, byte(n.Op)); err != nil {
		return err
	}
	return n.Operand.Serialize(w)
}

func deserializeArithUnary(c *codec.Cursor) (Node, error) {
	opB, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	operand, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &ArithUnary{Op: UnaryArithOp(opB[0]), Operand: operand}, nil
}
