package jsonstream

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringEscapingRoundTrips(t *testing.T) {
	inputs := []string{
		"plain",
		"with \"quotes\" and \\backslash\\",
		"line\nbreak\ttab",
		"control\x01\x1fchars",
		"café",
		"日本語",
		"emoji 🎉 above the BMP",
	}
	for _, in := range inputs {
		var buf bytes.Buffer
		w := New(&buf)
		require.NoError(t, w.String(in))
		var roundTripped string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &roundTripped))
		assert.Equal(t, in, roundTripped)
	}
}

func TestStringEscapingPassesUTF8Through(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.String("café 日本語"))
	// Multi-byte UTF-8 is written through verbatim, never as \uXXXX.
	assert.Equal(t, `"café 日本語"`, buf.String())
}

func TestStringEscapingControlBytes(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.String("a\x01b\x0bc"))
	assert.Equal(t, `"a\u0001b\vc"`, buf.String())
}

func TestStringEscapingInvalidUTF8PassesThrough(t *testing.T) {
	in := "valid\xffbyte"
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.String(in))
	// Bytes >= 0x20 are never rewritten, valid UTF-8 or not.
	assert.Equal(t, []byte(`"`+in+`"`), buf.Bytes())
}

func TestObjectArrayFraming(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.BeginObject())
	require.NoError(t, w.FieldName("status"))
	require.NoError(t, w.Int(200))
	require.NoError(t, w.FieldName("rows"))
	require.NoError(t, w.BeginArray())
	require.NoError(t, w.BeginObject())
	require.NoError(t, w.FieldName("NAME"))
	require.NoError(t, w.String("TEST1"))
	require.NoError(t, w.EndObject())
	require.NoError(t, w.EndArray())
	require.NoError(t, w.EndObject())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(200), decoded["status"])
	rows := decoded["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "TEST1", row["NAME"])
}

func TestHexBytesLowercase(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.HexBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	assert.Equal(t, `"deadbeef"`, buf.String())
}
