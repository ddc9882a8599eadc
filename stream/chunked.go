package stream

import (
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// ChunkedInputStream consumes a framed sequence of <varuint64 length><bytes>
// chunks from an underlying Reader and exposes them as one contiguous
// stream. A zero-length chunk marks end-of-stream.
type ChunkedInputStream struct {
	underlying Reader
	current    []byte // unread tail of the current chunk
	eof        bool
	valid      bool
}

func NewChunkedInputStream(underlying Reader) *ChunkedInputStream {
	return &ChunkedInputStream{underlying: underlying, valid: true}
}

func (s *ChunkedInputStream) IsValid() bool { return s.valid }

func (s *ChunkedInputStream) Close() error {
	s.valid = false
	return s.underlying.Close()
}

// readVarint reads a single varuint64-prefixed length from the underlying
// stream, byte by byte (chunk lengths are small; this keeps the framing
// logic independent of any read-ahead buffering the caller may add).
func (s *ChunkedInputStream) readVarint() (uint64, error) {
	var scratch []byte
	one := make([]byte, 1)
	for {
		n, err := s.underlying.Read(one)
		if n == 0 && err != nil {
			return 0, err
		}
		scratch = append(scratch, one[0])
		if one[0] < 0x80 {
			break
		}
		if len(scratch) > 10 {
			s.valid = false
			return 0, ErrMalformedVarint
		}
	}
	v, n := protowire.ConsumeVarint(scratch)
	if n < 0 {
		s.valid = false
		return 0, ErrMalformedVarint
	}
	return v, nil
}

func (s *ChunkedInputStream) fillChunk() error {
	for len(s.current) == 0 && !s.eof {
		length, err := s.readVarint()
		if err != nil {
			s.valid = false
			return err
		}
		if length == 0 {
			s.eof = true
			return nil
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(toIOReader(s.underlying), buf); err != nil {
			s.valid = false
			return ErrShortChunk
		}
		s.current = buf
	}
	return nil
}

func (s *ChunkedInputStream) Read(p []byte) (int, error) {
	if !s.valid {
		return 0, ErrClosed
	}
	if err := s.fillChunk(); err != nil {
		return 0, err
	}
	if s.eof && len(s.current) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.current)
	s.current = s.current[n:]
	return n, nil
}

func (s *ChunkedInputStream) Skip(n int64) (int64, error) {
	return SkipByReading(s, n)
}

// toIOReader adapts our Reader to io.Reader for io.ReadFull, translating
// io.EOF mid-buffer into the caller's concern (io.ReadFull already does the
// right thing with ErrUnexpectedEOF semantics via n < len(buf)).
type ioReaderAdapter struct{ r Reader }

func (a ioReaderAdapter) Read(p []byte) (int, error) { return a.r.Read(p) }

func toIOReader(r Reader) io.Reader { return ioReaderAdapter{r} }

// BufferedChunkedOutputStream wraps a Writer, accumulating writes into a
// fixed-size buffer and emitting one <varuint32 length><bytes> chunk per
// flush. Close emits any pending buffer plus a terminating zero-length
// chunk.
type BufferedChunkedOutputStream struct {
	underlying Writer
	bufSize    int
	buf        []byte
	valid      bool
	closed     bool
}

func NewBufferedChunkedOutputStream(underlying Writer, bufSize int) *BufferedChunkedOutputStream {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &BufferedChunkedOutputStream{underlying: underlying, bufSize: bufSize, valid: true}
}

func (s *BufferedChunkedOutputStream) IsValid() bool { return s.valid }

func (s *BufferedChunkedOutputStream) Write(p []byte) (int, error) {
	if !s.valid {
		return 0, ErrClosed
	}
	total := 0
	for len(p) > 0 {
		room := s.bufSize - len(s.buf)
		n := len(p)
		if n > room {
			n = room
		}
		s.buf = append(s.buf, p[:n]...)
		p = p[n:]
		total += n
		if len(s.buf) == s.bufSize {
			if err := s.Flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Flush emits the pending buffer as one chunk, even if partially filled.
func (s *BufferedChunkedOutputStream) Flush() error {
	if !s.valid {
		return ErrClosed
	}
	if len(s.buf) == 0 {
		return nil
	}
	if err := s.writeChunk(s.buf); err != nil {
		return err
	}
	s.buf = s.buf[:0]
	return nil
}

func (s *BufferedChunkedOutputStream) writeChunk(p []byte) error {
	prefix := protowire.AppendVarint(nil, uint64(len(p)))
	if _, err := s.underlying.Write(prefix); err != nil {
		s.valid = false
		return err
	}
	if len(p) == 0 {
		return nil
	}
	if _, err := s.underlying.Write(p); err != nil {
		s.valid = false
		return err
	}
	return nil
}

// Close flushes any pending buffer, writes the terminating zero-length
// chunk, and closes the underlying writer.
func (s *BufferedChunkedOutputStream) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.writeChunk(nil); err != nil {
		return err
	}
	s.valid = false
	if closer, ok := s.underlying.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
