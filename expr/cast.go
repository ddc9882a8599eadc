package expr

import (
	"math"
	"strconv"
	"strings"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// Cast implements an explicit CAST(expr AS type). Lossy numeric
// conversions succeed only when the source value fits the target's
// representable range; anything that doesn't fit is a runtime error
// rather than silent truncation.
type Cast struct {
	Operand Node
	Target  variant.Type
}

func NewCast(operand Node, target variant.Type) *Cast {
	return &Cast{Operand: operand, Target: target}
}

func (n *Cast) ResultType(*Context) (variant.Type, error) { return n.Target, nil }

func (n *Cast) Validate(ctx *Context) error { return n.Operand.Validate(ctx) }

func (n *Cast) Evaluate(ctx *Context) (variant.Variant, error) {
	v, err := n.Operand.Evaluate(ctx)
	if err != nil {
		return variant.Variant{}, err
	}
	return castTo(v, n.Target)
}

func castTo(v variant.Variant, target variant.Type) (variant.Variant, error) {
	if v.IsNull() {
		return variant.Null, nil
	}
	if v.Type == target {
		return v, nil
	}
	switch {
	case target == variant.TypeString:
		return variant.NewString(asString(v)), nil
	case target == variant.TypeBool:
		return castToBool(v)
	case target == variant.TypeDateTime:
		return castToDateTime(v)
	case target.IsNumeric():
		return castToNumeric(v, target)
	default:
		return variant.Variant{}, storage.NewError(storage.CodeSyntax, "cannot cast %v to %v", v.Type, target)
	}
}

func castToBool(v variant.Variant) (variant.Variant, error) {
	switch {
	case v.Type.IsNumeric():
		return variant.NewBool(v.AsFloat64() != 0), nil
	case v.Type == variant.TypeString:
		switch strings.ToLower(strings.TrimSpace(v.String_())) {
		case "true", "1":
			return variant.NewBool(true), nil
		case "false", "0":
			return variant.NewBool(false), nil
		}
		return variant.Variant{}, storage.NewError(storage.CodeSyntax, "cannot cast %q to bool", v.String_())
	default:
		return variant.Variant{}, storage.NewError(storage.CodeSyntax, "cannot cast %v to bool", v.Type)
	}
}

func castToDateTime(v variant.Variant) (variant.Variant, error) {
	if v.Type != variant.TypeString {
		return variant.Variant{}, storage.NewError(storage.CodeSyntax, "cannot cast %v to a date/time value", v.Type)
	}
	dt, err := variant.ParseDateTime(v.String_())
	if err != nil {
		return variant.Variant{}, storage.WrapError(storage.CodeSyntax, err, "cannot cast %q to a date/time value", v.String_())
	}
	return variant.NewDateTime(dt), nil
}

func castToNumeric(v variant.Variant, target variant.Type) (variant.Variant, error) {
	var f float64
	switch {
	case v.Type.IsNumeric():
		f = v.AsFloat64()
	case v.Type == variant.TypeBool:
		if v.Bool() {
			f = 1
		}
	case v.Type == variant.TypeString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.String_()), 64)
		if err != nil {
			return variant.Variant{}, storage.WrapError(storage.CodeSyntax, err, "cannot cast %q to %v", v.String_(), target)
		}
		f = parsed
	default:
		return variant.Variant{}, storage.NewError(storage.CodeSyntax, "cannot cast %v to %v", v.Type, target)
	}
	if target.IsFloating() {
		return numericVariant(target, 0, 0, f), nil
	}
	if !fitsRange(target, f) {
		return variant.Variant{}, storage.NewError(storage.CodeValueOutOfRange, "value %v does not fit %v", f, target)
	}
	if target.IsUnsigned() {
		return numericVariant(target, 0, uint64(f), 0), nil
	}
	return numericVariant(target, int64(f), 0, 0), nil
}

func fitsRange(t variant.Type, f float64) bool {
	lo, hi := rangeOf(t)
	return f >= lo && f <= hi && f == math.Trunc(f)
}

func rangeOf(t variant.Type) (float64, float64) {
	switch t {
	case variant.TypeInt8:
		return math.MinInt8, math.MaxInt8
	case variant.TypeUInt8:
		return 0, math.MaxUint8
	case variant.TypeInt16:
		return math.MinInt16, math.MaxInt16
	case variant.TypeUInt16:
		return 0, math.MaxUint16
	case variant.TypeInt32:
		return math.MinInt32, math.MaxInt32
	case variant.TypeUInt32:
		return 0, math.MaxUint32
	case variant.TypeInt64:
		return math.MinInt64, math.MaxInt64
	case variant.TypeUInt64:
		return 0, math.MaxUint64
	default:
		return 0, 0
	}
}

func (n *Cast) SerializedSize() int { return 1 + 1 + n.Operand.SerializedSize() }

func (n *Cast) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagCast); err != nil {
		return err
	}
	if err := writeTag(w, byte(n.Target)); err != nil {
		return err
	}
	return n.Operand.Serialize(w)
}

func deserializeCast(c *codec.Cursor) (Node, error) {
	targetB, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	operand, err := Deserialize(c)
	if err != nil {
		return nil, err
	}
	return &Cast{Operand: operand, Target: variant.Type(targetB[0])}, nil
}
