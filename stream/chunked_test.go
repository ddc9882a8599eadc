package stream

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedChunkedRoundTrip(t *testing.T) {
	mem := NewDynamicMemoryOutputStream(0)
	out := NewBufferedChunkedOutputStream(mem, 4)
	_, err := out.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, out.Close())

	in := NewChunkedInputStream(NewMemoryInputStream(mem.Bytes()))
	buf := make([]byte, 0, 32)
	tmp := make([]byte, 3)
	for {
		n, err := in.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	assert.Equal(t, "hello world", string(buf))
}

func TestChunkedInputEmptyIsEOF(t *testing.T) {
	// a single zero-length chunk
	in := NewChunkedInputStream(NewMemoryInputStream([]byte{0}))
	buf := make([]byte, 4)
	n, err := in.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}
