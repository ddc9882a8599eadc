package expr

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/variant"
)

// Concat is the `||` string concatenation operator. Non-string operands
// coerce via their CanonicalString representation; the result type is
// always String.
type Concat struct {
	Left, Right Node
}

func NewConcat(left, right Node) *Concat { return &Concat{Left: left, Right: right} }

func (n *Concat) ResultType(*Context) (variant.Type, error) { return variant.TypeString, nil }

func (n *Concat) Validate(ctx *Context) error {
	if err := n.Left.Validate(ctx); err != nil {
		return err
	}
	return n.Right.Validate(ctx)
}

func (n *Concat) Evaluate(ctx *Context) (variant.Variant, error) {
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
	return variant.NewString(asString(l) + asString(r)), nil
}

func asString(v variant.Variant) string {
	if v.Type == variant.TypeString {
		return v.String_()
	}
	return v.CanonicalString()
}

func (n *Concat) SerializedSize() int {
	return 1 + childrenSize(n.Left, n.Right)
}

func (n *Concat) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagConcat); err != nil {
		return err
	}
	return serializeChildren(w, n.Left, n.Right)
}

func deserializeConcat(c *codec.Cursor) (Node, error) {
	left, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	right, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &Concat{Left: left, Right: right}, nil
}
