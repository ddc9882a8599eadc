package stream

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// FileStream wraps an *os.File with the Stream/Reader/Writer contract,
// retrying on EINTR per the injected ErrnoChecker and poisoning itself on
// any other error.
type FileStream struct {
	f       *os.File
	checker ErrnoChecker
	valid   bool
}

func NewFileStream(f *os.File, checker ErrnoChecker) *FileStream {
	if checker == nil {
		checker = DefaultErrnoChecker{}
	}
	return &FileStream{f: f, checker: checker, valid: true}
}

func (s *FileStream) IsValid() bool { return s.valid }

func (s *FileStream) Close() error {
	if !s.valid {
		return ErrClosed
	}
	s.valid = false
	return s.f.Close()
}

func (s *FileStream) Read(p []byte) (int, error) {
	for {
		n, err := s.f.Read(p)
		if err == nil || errors.Is(err, io.EOF) {
			return n, err
		}
		if s.checker.Check(err) == Retry {
			continue
		}
		s.valid = false
		return n, err
	}
}

func (s *FileStream) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := s.f.Write(p[total:])
		total += n
		if err == nil {
			continue
		}
		if s.checker.Check(err) == Retry {
			continue
		}
		s.valid = false
		return total, err
	}
	return total, nil
}

func (s *FileStream) Skip(n int64) (int64, error) {
	if !s.valid {
		return 0, ErrClosed
	}
	pos, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return SkipByReading(s, n)
	}
	end, err := s.f.Seek(0, io.SeekEnd)
	if err != nil {
		return SkipByReading(s, n)
	}
	remaining := end - pos
	if n > remaining {
		n = remaining
	}
	if _, err := s.f.Seek(pos+n, io.SeekStart); err != nil {
		return 0, err
	}
	return n, nil
}

// WriteAt writes p at the given absolute file offset, retrying partial
// writes and honoring the same EINTR policy as Write. Used by the column
// block store for positioned appends instead of a stateful seek+write.
func (s *FileStream) WriteAt(offset int64, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := s.f.WriteAt(p[total:], offset+int64(total))
		total += n
		if err == nil {
			continue
		}
		if s.checker.Check(err) == Retry {
			continue
		}
		s.valid = false
		return total, err
	}
	return total, nil
}

// ReadAt reads into p starting at the given absolute file offset.
func (s *FileStream) ReadAt(offset int64, p []byte) (int, error) {
	for {
		n, err := s.f.ReadAt(p, offset)
		if err == nil || errors.Is(err, io.EOF) {
			return n, err
		}
		if s.checker.Check(err) == Retry {
			continue
		}
		s.valid = false
		return n, err
	}
}

// Sync issues an fsync on the underlying file descriptor. The storage
// engine calls this at the end of every DDL statement and at block
// rotation boundaries.
func (s *FileStream) Sync() error {
	if !s.valid {
		return ErrClosed
	}
	return s.f.Sync()
}

// LockExclusive takes an advisory BSD flock on the file, used to guard a
// single data directory against concurrent server processes.
func LockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func Unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
