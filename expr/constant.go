package expr

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/variant"
)

// Constant wraps a literal Variant; its result type is the variant's own
// type and it never touches a data set.
type Constant struct {
	Value variant.Variant
}

func NewConstant(v variant.Variant) *Constant { return &Constant{Value: v} }

func (n *Constant) ResultType(*Context) (variant.Type, error) { return n.Value.Type, nil }

func (n *Constant) Validate(*Context) error { return nil }

func (n *Constant) Evaluate(*Context) (variant.Variant, error) { return n.Value, nil }

func (n *Constant) SerializedSize() int {
	size, _ := codec.SerializedSize(n.Value)
	return 1 + 1 + size // tag + variant-type byte + payload
}

func (n *Constant) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagConstant); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(n.Value.Type)}); err != nil {
		return err
	}
	return codec.Write(w, n.Value)
}

func deserializeConstant(c *codec.Cursor) (Node, error) {
	tb, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	t := variant.Type(tb[0])
	v, err := codec.Decode(c, t, codec.DefaultLimits, nil)
	if err != nil {
		return nil, err
	}
	return &Constant{Value: v}, nil
}
