package expr

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// Is implements IS [NOT] — NULL-safe equality against either NULL,
// TRUE, or FALSE, the only right-hand operands IS accepts.
type Is struct {
	Operand Node
	Target  IsTarget
	Negated bool
}

// IsTarget is the right-hand side of IS: NULL, TRUE, or FALSE.
type IsTarget byte

const (
	IsNull IsTarget = iota
	IsTrue
	IsFalse
)

func NewIs(operand Node, target IsTarget, negated bool) *Is {
	return &Is{Operand: operand, Target: target, Negated: negated}
}

func (n *Is) ResultType(*Context) (variant.Type, error) { return variant.TypeBool, nil }

func (n *Is) Validate(ctx *Context) error { return n.Operand.Validate(ctx) }

func (n *Is) Evaluate(ctx *Context) (variant.Variant, error) {
	v, err := n.Operand.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	var result bool
	switch n.Target {
	case IsNull:
		result = v.IsNull()
	case IsTrue:
		result = !v.IsNull() && v.Bool()
	case IsFalse:
		result = !v.IsNull() && !v.Bool()
	}
	if n.Negated {
		result = !result
	}
	return variant.NewBool(result), nil
}

func (n *Is) SerializedSize() int { return 1 + 1 + n.Operand.SerializedSize() }

func (n *Is) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagIs); err != nil {
		return err
	}
	flags := byte(n.Target)
	if n.Negated {
		flags |= 0x80
	}
	if err := writeTag(w, flags); err != nil {
		return err
	}
	return n.Operand.Serialize(w)
}

func deserializeIs(c *codec.Cursor) (Node, error) {
	flagsB, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	operand, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &Is{Operand: operand, Target: IsTarget(flagsB[0] &^ 0x80), Negated: flagsB[0]&0x80 != 0}, nil
}

// Between implements [NOT] BETWEEN, inclusive of both bounds. NULL in
// any of the three operands yields NULL.
type Between struct {
	Operand, Low, High Node
	Negated            bool
}

func NewBetween(operand, low, high Node, negated bool) *Between {
	return &Between{Operand: operand, Low: low, High: high, Negated: negated}
}

func (n *Between) ResultType(*Context) (variant.Type, error) { return variant.TypeBool, nil }

func (n *Between) Validate(ctx *Context) error {
	if err := n.Operand.Validate(ctx); err != nil {
		return err
	}
	if err := n.Low.Validate(ctx); err != nil {
		return err
	}
	return n.High.Validate(ctx)
}

func (n *Between) Evaluate(ctx *Context) (variant.Variant, error) {
	v, err := n.Operand.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	lo, err := n.Low.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	hi, err := n.High.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	if v.IsNull() || lo.IsNull() || hi.IsNull() {
		return variant.Null, nil
	}
	cmpLo, err := compareValues(v, lo)
	if err != nil {
		return variant.Variant{}, err
	}
	cmpHi, err := compareValues(v, hi)
	if err != nil {
		return variant.Variant{}, err
	}
	result := cmpLo >= 0 && cmpHi <= 0
	if n.Negated {
		result = !result
	}
	return variant.NewBool(result), nil
}

func (n *Between) SerializedSize() int {
	return 1 + 1 + childrenSize(n.Operand, n.Low, n.High)
}

func (n *Between) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagBetween); err != nil {
		return err
	}
	if err := writeBool(w, n.Negated); err != nil {
		return err
	}
	return serializeChildren(w, n.Operand, n.Low, n.High)
}

func deserializeBetween(c *codec.Cursor) (Node, error) {
	negB, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	operand, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	low, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	high, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &Between{Operand: operand, Low: low, High: high, Negated: negB[0] != 0}, nil
}

// In implements [NOT] IN over a fixed list of candidate nodes. NULL in
// the probe yields NULL; NULL among the candidates yields NULL only if
// no non-NULL candidate matched (per SQL's three-valued IN semantics).
type In struct {
	Operand    Node
	Candidates []Node
	Negated    bool
}

func NewIn(operand Node, candidates []Node, negated bool) *In {
	return &In{Operand: operand, Candidates: candidates, Negated: negated}
}

func (n *In) ResultType(*Context) (variant.Type, error) { return variant.TypeBool, nil }

func (n *In) Validate(ctx *Context) error {
	if err := n.Operand.Validate(ctx); err != nil {
		return err
	}
	for _, c := range n.Candidates {
		if err := c.Validate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *In) Evaluate(ctx *Context) (variant.Variant, error) {
	v, err := n.Operand.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	if v.IsNull() {
		return variant.Null, nil
	}
	sawNull := false
	matched := false
	for _, c := range n.Candidates {
		cv, err := c.Evaluate(ctx)
		if err != nil {
			return variant.Variant{}, err
		}
		if cv.IsNull() {
			sawNull = true
			continue
		}
		cmp, err := compareValues(v, cv)
		if err != nil {
			return variant.Variant{}, err
		}
		if cmp == 0 {
			matched = true
			break
		}
	}
	if matched {
		return variant.NewBool(!n.Negated), nil
	}
	if sawNull {
		return variant.Null, nil
	}
	return variant.NewBool(n.Negated), nil
}

func (n *In) SerializedSize() int {
	size := 1 + 1 + n.Operand.SerializedSize()
	size += len(codec.AppendVarint32(nil, uint32(len(n.Candidates))))
	size += childrenSize(n.Candidates...)
	return size
}

func (n *In) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagIn); err != nil {
		return err
	}
	if err := writeBool(w, n.Negated); err != nil {
		return err
	}
	if err := n.Operand.Serialize(w); err != nil {
		return err
	}
	if err := codec.WriteVarint32(w, uint32(len(n.Candidates))); err != nil {
		return err
	}
	return serializeChildren(w, n.Candidates...)
}

func deserializeIn(c *codec.Cursor) (Node, error) {
	negB, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	operand, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	count, err := c.ReadVarint()
	if err != nil {
		return nil, err
	}
	candidates := make([]Node, 0, count)
	for i := uint64(0); i < count; i++ {
		cand, err := Deserialize(c)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return &In{Operand: operand, Candidates: candidates, Negated: negB[0] != 0}, nil
}

// Like implements [NOT] LIKE with SQL's `%`/`_` wildcards, matched
// case-sensitively over raw bytes.
type Like struct {
	Operand, Pattern Node
	Negated          bool
}

func NewLike(operand, pattern Node, negated bool) *Like {
	return &Like{Operand: operand, Pattern: pattern, Negated: negated}
}

func (n *Like) ResultType(*Context) (variant.Type, error) { return variant.TypeBool, nil }

func (n *Like) Validate(ctx *Context) error {
	if err := n.Operand.Validate(ctx); err != nil {
		return err
	}
	return n.Pattern.Validate(ctx)
}

func (n *Like) Evaluate(ctx *Context) (variant.Variant, error) {
	v, err := n.Operand.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	p, err := n.Pattern.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	if v.IsNull() || p.IsNull() {
		return variant.Null, nil
	}
	if v.Type != variant.TypeString || p.Type != variant.TypeString {
		return variant.Variant{}, storage.NewError(storage.CodeSyntax, "LIKE operands must be strings")
	}
	result := likeMatch(v.String_(), p.String_())
	if n.Negated {
		result = !result
	}
	return variant.NewBool(result), nil
}

// likeMatch matches s against pattern using `%` (any run, including
// empty) and `_` (exactly one byte) wildcards.
func likeMatch(s, pattern string) bool {
	return likeMatchBytes([]byte(s), []byte(pattern))
}

func likeMatchBytes(s, p []byte) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			for len(p) > 0 && p[0] == '%' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatchBytes(s[i:], p) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			s, p = s[1:], p[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			s, p = s[1:], p[1:]
		}
	}
	return len(s) == 0
}

func (n *Like) SerializedSize() int {
	return 1 + 1 + childrenSize(n.Operand, n.Pattern)
}

func (n *Like) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagLike); err != nil {
		return err
	}
	if err := writeBool(w, n.Negated); err != nil {
		return err
	}
	return serializeChildren(w, n.Operand, n.Pattern)
}

func deserializeLike(c *codec.Cursor) (Node, error) {
	negB, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	operand, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	pattern, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &Like{Operand: operand, Pattern: pattern, Negated: negB[0] != 0}, nil
}

func writeBool(w codec.CodedOutputStream, b bool) error {
	v := byte(0)
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}
