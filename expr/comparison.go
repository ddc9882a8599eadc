package expr

import (
	"bytes"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// CompareOp is a comparison operator.
type CompareOp byte

const (
	EqualOperator CompareOp = iota
	NotEqualOperator
	LessOperator
	LessEqualOperator
	GreaterOperator
	GreaterEqualOperator
)

// Comparison evaluates one of = <> < <= > >=. Numeric operands promote
// the same way ArithBinary does; strings compare byte-wise; DateTime
// compares by instant, with a String operand parsed against the fixed
// DateTime layouts before comparing.
type Comparison struct {
	Op          CompareOp
	Left, Right Node
}

func NewComparison(op CompareOp, left, right Node) *Comparison {
	return &Comparison{Op: op, Left: left, Right: right}
}

func (n *Comparison) ResultType(*Context) (variant.Type, error) { return variant.TypeBool, nil }

func (n *Comparison) Validate(ctx *Context) error {
	if err := n.Left.Validate(ctx); err != nil {
		return err
	}
	return n.Right.Validate(ctx)
}

func (n *Comparison) Evaluate(ctx *Context) (variant.Variant, error) {
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
	cmp, err := compareValues(l, r)
	if err != nil {
		return variant.Variant{}, err
	}
	return variant.NewBool(satisfies(n.Op, cmp)), nil
}

func satisfies(op CompareOp, cmp int) bool {
	switch op {
	case EqualOperator:
		return cmp == 0
	case NotEqualOperator:
		return cmp != 0
	case LessOperator:
		return cmp < 0
	case LessEqualOperator:
		return cmp <= 0
	case GreaterOperator:
		return cmp > 0
	case GreaterEqualOperator:
		return cmp >= 0
	default:
		return false
	}
}

// compareValues returns -1/0/1 following the usual ordering contract.
func compareValues(l, r variant.Variant) (int, error) {
	if l.Type == variant.TypeDateTime || r.Type == variant.TypeDateTime {
		ld, err := asDateTime(l)
		if err != nil {
			return 0, err
		}
		rd, err := asDateTime(r)
		if err != nil {
			return 0, err
		}
		return ld.Compare(rd), nil
	}
	if l.Type == variant.TypeString && r.Type == variant.TypeString {
		return bytes.Compare([]byte(l.String_()), []byte(r.String_())), nil
	}
	if l.Type.IsNumeric() && r.Type.IsNumeric() {
		return compareNumeric(l, r), nil
	}
	if l.Type == variant.TypeBool && r.Type == variant.TypeBool {
		return boolCmp(l.Bool(), r.Bool()), nil
	}
	if l.Type == variant.TypeBinary && r.Type == variant.TypeBinary {
		return bytes.Compare(l.Binary(), r.Binary()), nil
	}
	return 0, storage.NewError(storage.CodeSyntax, "cannot compare %v and %v", l.Type, r.Type)
}

func asDateTime(v variant.Variant) (variant.DateTime, error) {
	switch v.Type {
	case variant.TypeDateTime:
		return v.DateTimeValue(), nil
	case variant.TypeString:
		return variant.ParseDateTime(v.String_())
	default:
		return variant.DateTime{}, storage.NewError(storage.CodeSyntax, "cannot compare %v to a date/time value", v.Type)
	}
}

func compareNumeric(l, r variant.Variant) int {
	t := variant.Promote(l.Type, r.Type)
	if t.IsFloating() {
		lf, rf := l.AsFloat64(), r.AsFloat64()
		switch {
		case lf < rf:
			return -1
		case lf > rf:
			return 1
		default:
			return 0
		}
	}
	if t.IsUnsigned() {
		lu, ru := l.UInt64(), r.UInt64()
		switch {
		case lu < ru:
			return -1
		case lu > ru:
			return 1
		default:
			return 0
		}
	}
	li, ri := l.Int64(), r.Int64()
	switch {
	case li < ri:
		return -1
	case li > ri:
		return 1
	default:
		return 0
	}
}

func boolCmp(l, r bool) int {
	if l == r {
		return 0
	}
	if !l && r {
		return -1
	}
	return 1
}

func (n *Comparison) SerializedSize() int {
	return 1 + 1 + childrenSize(n.Left, n.Right)
}

func (n *Comparison) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagComparison); err != nil {
		return err
	}
	if err := writeTag(w, byte(n.Op)); err != nil {
		return err
	}
	return serializeChildren(w, n.Left, n.Right)
}

func deserializeComparison(c *codec.Cursor) (Node, error) {
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
	return &Comparison{Op: CompareOp(opB[0]), Left: left, Right: right}, nil
}
