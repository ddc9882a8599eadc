package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeByName(t *testing.T) {
	for typ := TypeNull; typ <= TypeBlob; typ++ {
		got, ok := TypeByName(typ.String())
		require.True(t, ok, typ.String())
		assert.Equal(t, typ, got)
	}
	_, ok := TypeByName("NOT A TYPE")
	assert.False(t, ok)
}

func TestParseCanonicalRoundTrip(t *testing.T) {
	dt, err := ParseDateTime("2024-03-05 10:20:30")
	require.NoError(t, err)
	values := []Variant{
		NewBool(true),
		NewBool(false),
		NewInt8(-7),
		NewUInt16(65535),
		NewInt32(-123456),
		NewUInt64(1 << 60),
		NewDouble(3.25),
		NewDateTime(dt),
		NewString("hello"),
	}
	for _, v := range values {
		out, err := ParseCanonical(v.Type, v.CanonicalString())
		require.NoError(t, err, v.Type.String())
		assert.True(t, v.Equal(out), "%s: %q", v.Type, v.CanonicalString())
	}
}

func TestParseCanonicalMalformed(t *testing.T) {
	_, err := ParseCanonical(TypeInt32, "not a number")
	assert.Error(t, err)
	_, err = ParseCanonical(TypeBool, "yes")
	assert.Error(t, err)
	_, err = ParseCanonical(TypeClob, "anything")
	assert.Error(t, err)
}
