package expr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/variant"
)

func serializeRoundTrip(t *testing.T, n Node) Node {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, n.Serialize(&buf))
	assert.Equal(t, n.SerializedSize(), buf.Len())
	out, err := Deserialize(&codec.Cursor{Buf: buf.Bytes()})
	require.NoError(t, err)
	return out
}

func TestConstantSerializeRoundTrip(t *testing.T) {
	n := NewConstant(variant.NewInt32(-42))
	out := serializeRoundTrip(t, n)
	v, err := out.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v.Int64())
}

func TestComparisonSerializeRoundTrip(t *testing.T) {
	n := NewComparison(GreaterOperator, NewConstant(variant.NewInt32(5)), NewConstant(variant.NewInt32(3)))
	out := serializeRoundTrip(t, n)
	rt, err := out.ResultType(nil)
	require.NoError(t, err)
	assert.Equal(t, variant.TypeBool, rt)
	v, err := out.Evaluate(nil)
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

func TestComparisonNullPropagates(t *testing.T) {
	n := NewComparison(EqualOperator, NewConstant(variant.Null), NewConstant(variant.NewInt32(1)))
	v, err := n.Evaluate(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestComparisonStringOrdering(t *testing.T) {
	n := NewComparison(LessOperator, NewConstant(variant.NewString("abc")), NewConstant(variant.NewString("abd")))
	v, err := n.Evaluate(nil)
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

func TestLogicalBinaryThreeValued(t *testing.T) {
	falseConst := NewConstant(variant.NewBool(false))
	trueConst := NewConstant(variant.NewBool(true))
	nullConst := NewConstant(variant.Null)

	cases := []struct {
		name     string
		n        Node
		wantNull bool
		want     bool
	}{
		{"false AND null is false", NewLogicalBinary(AndOperator, falseConst, nullConst), false, false},
		{"true AND null is null", NewLogicalBinary(AndOperator, trueConst, nullConst), true, false},
		{"true OR null is true", NewLogicalBinary(OrOperator, trueConst, nullConst), false, true},
		{"false OR null is null", NewLogicalBinary(OrOperator, falseConst, nullConst), true, false},
		{"true AND true is true", NewLogicalBinary(AndOperator, trueConst, trueConst), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := tc.n.Evaluate(nil)
			require.NoError(t, err)
			if tc.wantNull {
				assert.True(t, v.IsNull())
				return
			}
			assert.Equal(t, tc.want, v.Bool())
		})
	}
}

func TestLogicalNotNull(t *testing.T) {
	n := NewLogicalNot(NewConstant(variant.Null))
	v, err := n.Evaluate(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

// Arithmetic on integer operands narrower than 32 bits promotes to
// Int32, regardless of signedness.
func TestArithmeticNarrowIntegerPromotion(t *testing.T) {
	u8 := func(v uint8) Node { return NewConstant(variant.NewUInt8(v)) }
	u16 := func(v uint16) Node { return NewConstant(variant.NewUInt16(v)) }

	cases := []struct {
		name string
		n    Node
		want int64
	}{
		{"255(u8) + 1(u16)", NewArithBinary(AddOperator, u8(255), u16(1)), 256},
		{"255(u8) - 1(u16)", NewArithBinary(SubtractOperator, u8(255), u16(1)), 254},
		{"255(u8) * 1(u16)", NewArithBinary(MultiplyOperator, u8(255), u16(1)), 255},
		{"255(u8) / 1(u16)", NewArithBinary(DivideOperator, u8(255), u16(1)), 255},
		{"+(-4)(i8)", NewArithUnary(UnaryPlusOperator, NewConstant(variant.NewInt8(-4))), -4},
		{"-(4)(u8)", NewArithUnary(UnaryMinusOperator, u8(4)), -4},
		{"~(12465)(u16)", NewBitwiseUnary(u16(12465)), ^int64(12465)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt, err := tc.n.ResultType(nil)
			require.NoError(t, err)
			assert.Equal(t, variant.TypeInt32, rt)
			v, err := tc.n.Evaluate(nil)
			require.NoError(t, err)
			assert.Equal(t, variant.TypeInt32, v.Type)
			assert.Equal(t, tc.want, v.Int64())
		})
	}
}

// Float/double operands pass through unary operators without promotion.
func TestUnaryFloatPassesThrough(t *testing.T) {
	n := NewArithUnary(UnaryPlusOperator, NewConstant(variant.NewFloat(-4)))
	rt, err := n.ResultType(nil)
	require.NoError(t, err)
	assert.Equal(t, variant.TypeFloat, rt)
	v, err := n.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, variant.TypeFloat, v.Type)
	assert.Equal(t, float32(-4), v.Float32())

	d := NewArithUnary(UnaryMinusOperator, NewConstant(variant.NewDouble(2.5)))
	dv, err := d.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, variant.TypeDouble, dv.Type)
	assert.Equal(t, -2.5, dv.Float64())
}

func TestArithmeticDoubleWins(t *testing.T) {
	n := NewArithBinary(SubtractOperator, NewConstant(variant.NewUInt64(255000000000000)), NewConstant(variant.NewDouble(-10234334532453)))
	rt, err := n.ResultType(nil)
	require.NoError(t, err)
	assert.Equal(t, variant.TypeDouble, rt)
	v, err := n.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, float64(255000000000000)+10234334532453, v.Float64())
}

func TestDeserializeUnknownTag(t *testing.T) {
	c := codec.Cursor{Buf: []byte{0xFF}}
	_, err := Deserialize(&c)
	assert.ErrorIs(t, err, ErrUnknownTag)
}
