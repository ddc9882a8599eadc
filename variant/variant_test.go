package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeClassification(t *testing.T) {
	assert.True(t, TypeUInt32.IsInteger())
	assert.True(t, TypeUInt32.IsUnsigned())
	assert.False(t, TypeInt32.IsUnsigned())
	assert.True(t, TypeFloat.IsFloating())
	assert.True(t, TypeDouble.IsNumeric())
	assert.True(t, TypeClob.IsLOB())
	assert.False(t, TypeString.IsLOB())
	assert.Equal(t, "UINT64", TypeUInt64.String())
}

func TestIntegerWideningNarrowing(t *testing.T) {
	v := NewUInt8(200)
	assert.Equal(t, uint64(200), v.UInt64())
	assert.Equal(t, int64(200), v.Int64())

	s := NewInt16(-5)
	assert.Equal(t, int64(-5), s.Int64())
	// UInt64 on a signed variant reinterprets the two's-complement bits.
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFB), s.UInt64())
}

func TestAsFloat64Coercion(t *testing.T) {
	assert.Equal(t, 3.5, NewDouble(3.5).AsFloat64())
	assert.InDelta(t, 1.5, NewFloat(1.5).AsFloat64(), 1e-6)
	assert.Equal(t, float64(7), NewInt32(7).AsFloat64())
	assert.Equal(t, float64(7), NewUInt32(7).AsFloat64())
	assert.Equal(t, float64(0), NewString("x").AsFloat64())
}

func TestCanonicalString(t *testing.T) {
	assert.Equal(t, "", Null.CanonicalString())
	assert.Equal(t, "true", NewBool(true).CanonicalString())
	assert.Equal(t, "42", NewInt32(42).CanonicalString())
	assert.Equal(t, "42", NewUInt64(42).CanonicalString())
	assert.Equal(t, "hello", NewString("hello").CanonicalString())

	dt, err := ParseDateTime("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", NewDateTime(dt).CanonicalString())
}

func TestEqual(t *testing.T) {
	assert.True(t, NewInt32(5).Equal(NewInt32(5)))
	assert.False(t, NewInt32(5).Equal(NewInt32(6)))
	assert.False(t, NewInt32(5).Equal(NewUInt32(5)), "different Type never compares equal")
	assert.True(t, Null.Equal(Null))
	assert.True(t, NewBinary([]byte("ab")).Equal(NewBinary([]byte("ab"))))
}

func TestDateTimeRoundTrip(t *testing.T) {
	dt, err := ParseDateTime("2024-03-05 10:20:30")
	require.NoError(t, err)
	assert.True(t, dt.HasTime)
	assert.Equal(t, "2024-03-05 10:20:30", dt.Canonical())

	dateOnly, err := ParseDateTime("2024-03-05")
	require.NoError(t, err)
	assert.False(t, dateOnly.HasTime)
	assert.Equal(t, -1, dateOnly.Compare(dt))

	_, err = ParseDateTime("not a date")
	assert.Error(t, err)
}
