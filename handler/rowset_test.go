package handler

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/variant"
)

// Set null-mask bits plus serialized values must account for every
// column in the schema.
func TestBinaryRowsetNullMask(t *testing.T) {
	schema := []ColumnDescription{
		{Name: "A", Type: variant.TypeInt32, Nullable: true},
		{Name: "B", Type: variant.TypeInt32, Nullable: true},
		{Name: "C", Type: variant.TypeInt32, Nullable: true},
	}
	var buf bytes.Buffer
	rw := NewBinaryRowsetWriter(&buf, schema)
	require.NoError(t, rw.WriteRow([]variant.Variant{
		variant.NewInt32(1),
		variant.Null,
		variant.NewInt32(3),
	}))
	require.NoError(t, rw.Close())

	c := &codec.Cursor{Buf: buf.Bytes()}
	rowLen, err := c.ReadVarint()
	require.NoError(t, err)
	body, err := c.ReadBytes(int(rowLen))
	require.NoError(t, err)

	mask := body[0]
	nullBits := 0
	for i := 0; i < len(schema); i++ {
		if mask&(1<<uint(i)) != 0 {
			nullBits++
		}
	}
	bc := &codec.Cursor{Buf: body[1:]}
	decoded := 0
	for bc.Pos < len(bc.Buf) {
		_, err := codec.Decode(bc, variant.TypeInt32, codec.DefaultLimits, nil)
		require.NoError(t, err)
		decoded++
	}
	assert.Equal(t, len(schema), nullBits+decoded)
	assert.Equal(t, 1, nullBits)

	// The terminator after the row is a single varint64 zero.
	term, err := c.ReadVarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), term)
}

// A schema with no nullable column omits the mask entirely.
func TestBinaryRowsetOmitsMaskWhenNoNullableColumn(t *testing.T) {
	schema := []ColumnDescription{{Name: "A", Type: variant.TypeUInt8, Nullable: false}}
	var buf bytes.Buffer
	rw := NewBinaryRowsetWriter(&buf, schema)
	require.NoError(t, rw.WriteRow([]variant.Variant{variant.NewUInt8(7)}))

	c := &codec.Cursor{Buf: buf.Bytes()}
	rowLen, err := c.ReadVarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rowLen, "one unsigned byte, no mask")
}
