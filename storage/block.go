package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/stream"
)

// MaxBlockSize bounds a single block file; once a column's current block
// would exceed this, a new block is rotated in.
const MaxBlockSize = 64 << 20

// Block is an append-only fixed-capacity file holding one column's
// serialized, ciphertext-wrapped records. Offsets already published via
// freeOffset are immutable and safe to read without a lock.
type Block struct {
	id         BlockID
	path       string
	file       *stream.FileStream
	freeOffset atomic.Uint64
	writeMu    sync.Mutex // serializes writers; readers below freeOffset are lock-free

	cipher  Cipher
	cipherKey []byte
}

// Cipher is the narrow Seal/Open contract Block needs; satisfied by
// cipher.Cipher without importing package cipher here — storage stays
// agnostic to which concrete cipher backs a database.
type Cipher interface {
	Seal(key, plaintext []byte) ([]byte, error)
	Open(key, ciphertext []byte) ([]byte, error)
}

func openBlock(path string, id BlockID, freeOffset uint64, c Cipher, key []byte, checker stream.ErrnoChecker) (*Block, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, WrapError(CodeIOBase, err, "open block file %s", path)
	}
	b := &Block{
		id:        id,
		path:      path,
		file:      stream.NewFileStream(f, checker),
		cipher:    c,
		cipherKey: key,
	}
	b.freeOffset.Store(freeOffset)
	return b, nil
}

// Full reports whether the block has reached MaxBlockSize and should be
// rotated out for a fresh one.
func (b *Block) Full() bool { return b.freeOffset.Load() >= MaxBlockSize }

// Append seals plaintext and appends <varuint32 len><ciphertext> at the
// block's current free offset, returning the offset the record starts at.
func (b *Block) Append(plaintext []byte) (uint64, error) {
	ciphertext, err := b.cipher.Seal(b.cipherKey, plaintext)
	if err != nil {
		return 0, WrapError(CodeWriteFailed, err, "seal block record")
	}
	prefix := codec.AppendVarint32(nil, uint32(len(ciphertext)))
	record := append(prefix, ciphertext...)

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	offset := b.freeOffset.Load()
	if _, err := seekWrite(b.file, int64(offset), record); err != nil {
		return 0, WrapError(CodeWriteFailed, err, "append block record")
	}
	b.freeOffset.Store(offset + uint64(len(record)))
	return offset, nil
}

// ReadAt reads and opens the record starting at offset. Offsets must be
// less than the currently-published free mark; reading past it or at an
// offset the registry never recorded is a corruption error.
func (b *Block) ReadAt(offset uint64) ([]byte, error) {
	if offset >= b.freeOffset.Load() {
		return nil, NewError(CodeCorruptBlock, "offset %d past block %d free mark", offset, b.id)
	}
	lenBuf := make([]byte, 5) // max varint32 size
	n, err := readAt(b.file, int64(offset), lenBuf)
	if err != nil && n == 0 {
		// A partial read near end of file is fine: the prefix may be
		// shorter than the 5-byte probe.
		return nil, WrapError(CodeIOBase, err, "read block %d length prefix", b.id)
	}
	cur := &codec.Cursor{Buf: lenBuf[:n]}
	length, err := cur.ReadVarint()
	if err != nil {
		return nil, WrapError(CodeCorruptBlock, err, "decode block %d record length", b.id)
	}
	payload := make([]byte, length)
	if _, err := readAt(b.file, int64(offset)+int64(cur.Pos), payload); err != nil {
		return nil, WrapError(CodeShortRead, err, "read block %d record payload", b.id)
	}
	plaintext, err := b.cipher.Open(b.cipherKey, payload)
	if err != nil {
		return nil, WrapError(CodeCorruptBlock, err, "decrypt block %d record", b.id)
	}
	return plaintext, nil
}

// Flush fsyncs the block file. Called at block rotation boundaries, at the
// end of each DDL statement, and from the block cache's OnEvict hook.
func (b *Block) Flush() error {
	return b.file.Sync()
}

func (b *Block) Close() error { return b.file.Close() }

func blockFileName(columnDir string, id BlockID) string {
	return filepath.Join(columnDir, fmt.Sprintf("block-%010d.dat", id))
}

// seekWrite/readAt are small helpers giving blocks offset-addressed
// access through stream.FileStream's WriteAt/ReadAt, which do positioned
// I/O on the *os.File the FileStream wraps.
func seekWrite(f *stream.FileStream, offset int64, p []byte) (int, error) {
	return f.WriteAt(offset, p)
}

func readAt(f *stream.FileStream, offset int64, p []byte) (int, error) {
	return f.ReadAt(offset, p)
}
