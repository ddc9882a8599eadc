package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basestored/core/variant"
)

func roundTrip(t *testing.T, v variant.Variant) variant.Variant {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, v))
	c := &Cursor{Buf: buf.Bytes()}
	out, err := Decode(c, v.Type, DefaultLimits, nil)
	require.NoError(t, err)
	assert.Equal(t, buf.Len(), c.Pos, "decode must consume exactly what Write emitted")
	return out
}

func TestRoundTripScalars(t *testing.T) {
	assert.True(t, roundTrip(t, variant.NewBool(true)).Bool())
	assert.Equal(t, int64(-7), roundTrip(t, variant.NewInt32(-7)).Int64())
	assert.Equal(t, uint64(300), roundTrip(t, variant.NewUInt32(300)).UInt64())
	assert.Equal(t, int64(-123456789), roundTrip(t, variant.NewInt64(-123456789)).Int64())
	assert.Equal(t, uint64(123456789), roundTrip(t, variant.NewUInt64(123456789)).UInt64())
	assert.InDelta(t, 1.5, float64(roundTrip(t, variant.NewFloat(1.5)).Float32()), 1e-6)
	assert.Equal(t, 3.25, roundTrip(t, variant.NewDouble(3.25)).Float64())
}

func TestRoundTripStringAndBinary(t *testing.T) {
	s := roundTrip(t, variant.NewString("hello, world"))
	assert.Equal(t, "hello, world", s.String_())

	b := roundTrip(t, variant.NewBinary([]byte{1, 2, 3, 0, 255}))
	assert.Equal(t, []byte{1, 2, 3, 0, 255}, b.Binary())
}

func TestRoundTripDateTime(t *testing.T) {
	dt, err := variant.ParseDateTime("2024-03-05 10:20:30")
	require.NoError(t, err)
	out := roundTrip(t, variant.NewDateTime(dt))
	assert.Equal(t, dt.Year, out.DateTimeValue().Year)
	assert.Equal(t, dt.Hour, out.DateTimeValue().Hour)
	assert.True(t, out.DateTimeValue().HasTime)

	dateOnly, err := variant.ParseDateTime("2024-03-05")
	require.NoError(t, err)
	out2 := roundTrip(t, variant.NewDateTime(dateOnly))
	assert.False(t, out2.DateTimeValue().HasTime)
}

func TestRoundTripClobMemoryLOB(t *testing.T) {
	v := variant.NewClob(NewMemoryLOB([]byte("a clob payload")))
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, v))

	c := &Cursor{Buf: buf.Bytes()}
	out, err := Decode(c, variant.TypeClob, DefaultLimits, nil)
	require.NoError(t, err)
	lob := out.LOBValue()
	got := make([]byte, lob.Remaining())
	n, _ := lob.Read(got)
	assert.Equal(t, "a clob payload", string(got[:n]))
}

func TestTruncateByOneAlwaysFails(t *testing.T) {
	dt, err := variant.ParseDateTime("2024-03-05 10:20:30")
	require.NoError(t, err)
	values := []variant.Variant{
		variant.NewBool(true),
		variant.NewInt8(-1),
		variant.NewUInt16(512),
		variant.NewInt32(-100000),
		variant.NewUInt64(1 << 40),
		variant.NewFloat(1.5),
		variant.NewDouble(2.5),
		variant.NewDateTime(dt),
		variant.NewString("truncate me"),
		variant.NewBinary([]byte{9, 8, 7}),
	}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, v))
		full := buf.Bytes()
		c := &Cursor{Buf: full[:len(full)-1]}
		_, err := Decode(c, v.Type, DefaultLimits, nil)
		assert.Error(t, err, v.Type.String())
	}
}

func TestDecodeTruncatedInput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, variant.NewUInt64(999999)))
	truncated := buf.Bytes()[:0]
	c := &Cursor{Buf: truncated}
	_, err := Decode(c, variant.TypeUInt64, DefaultLimits, nil)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadLenPrefixedRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, variant.NewString("0123456789")))
	c := &Cursor{Buf: buf.Bytes()}
	_, err := Decode(c, variant.TypeString, Limits{MaxStringLen: 4}, nil)
	assert.Error(t, err)
}

func TestSerializedSizeMatchesWrittenLength(t *testing.T) {
	v := variant.NewString("measure me")
	size, err := SerializedSize(v)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, v))
	assert.Equal(t, size, buf.Len())
}

func TestCursorFixedWidthHelpers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFixed32(&buf, 0xDEADBEEF))
	require.NoError(t, WriteFixed64(&buf, 0x0102030405060708))

	c := &Cursor{Buf: buf.Bytes()}
	v32, err := c.ReadFixed32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	v64, err := c.ReadFixed64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v64)
}
