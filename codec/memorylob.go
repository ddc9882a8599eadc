package codec

import (
	"io"

	"github.com/basestored/core/variant"
)

// MemoryLOB is an in-memory variant.LOB, used for small LOB values decoded
// without a backing block store (round-trip tests, the REST JSON decode
// path for inline POST bodies).
type MemoryLOB struct {
	buf []byte
	pos int
}

func NewMemoryLOB(buf []byte) *MemoryLOB { return &MemoryLOB{buf: buf} }

func (m *MemoryLOB) Remaining() int64 { return int64(len(m.buf) - m.pos) }

func (m *MemoryLOB) Read(p []byte) (int, error) {
	if m.pos >= len(m.buf) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += n
	return n, nil
}

func (m *MemoryLOB) Clone() (variant.LOB, error) {
	return &MemoryLOB{buf: m.buf, pos: m.pos}, nil
}

func (m *MemoryLOB) Close() error { return nil }

var _ variant.LOB = (*MemoryLOB)(nil)
