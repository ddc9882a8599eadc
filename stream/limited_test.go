package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedInputStreamStopsAtBudget(t *testing.T) {
	lim := NewLimitedInputStream(strings.NewReader("hello world"), 5)
	buf := make([]byte, 16)
	n, err := lim.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, int64(0), lim.Remaining())

	_, err = lim.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLimitedInputStreamShortSource(t *testing.T) {
	lim := NewLimitedInputStream(strings.NewReader("ab"), 10)
	buf := make([]byte, 16)
	n, err := lim.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(8), lim.Remaining())
}

func TestLimitedInputStreamClose(t *testing.T) {
	lim := NewLimitedInputStream(strings.NewReader("abc"), 3)
	require.NoError(t, lim.Close())
	assert.False(t, lim.IsValid())
	_, err := lim.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
}
