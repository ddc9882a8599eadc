package storage

import (
	"os"
	"path/filepath"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/stream"
)

// registryEntry is one append-only record in a column's block registry
// file: block-id -> filename, plus the most recently persisted free
// offset. Replaying the log and keeping the
// last record per block-id reconstructs the live state.
type registryEntry struct {
	id         BlockID
	filename   string
	freeOffset uint64
}

// BlockRegistry is the per-column append-only index mapping block-id to
// physical filename and the next free offset per block.
type BlockRegistry struct {
	dir  string
	file *stream.FileStream
}

func openRegistry(columnDir string, checker stream.ErrnoChecker) (*BlockRegistry, []registryEntry, error) {
	path := filepath.Join(columnDir, "registry.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, nil, WrapError(CodeIOBase, err, "open block registry %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, WrapError(CodeIOBase, err, "stat block registry %s", path)
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil && info.Size() > 0 {
		f.Close()
		return nil, nil, WrapError(CodeShortRead, err, "read block registry %s", path)
	}
	entries, err := replayRegistry(buf)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if _, err := f.Seek(0, 2); err != nil {
		f.Close()
		return nil, nil, WrapError(CodeIOBase, err, "seek block registry %s", path)
	}
	return &BlockRegistry{dir: columnDir, file: stream.NewFileStream(f, checker)}, entries, nil
}

func replayRegistry(buf []byte) ([]registryEntry, error) {
	byID := map[BlockID]*registryEntry{}
	var order []BlockID
	c := &codec.Cursor{Buf: buf}
	for c.Pos < len(buf) {
		idRaw, err := c.ReadVarint()
		if err != nil {
			return nil, WrapError(CodeCorruptBlock, err, "decode registry block id")
		}
		nameLen, err := c.ReadVarint()
		if err != nil {
			return nil, WrapError(CodeCorruptBlock, err, "decode registry filename length")
		}
		name, err := c.ReadBytes(int(nameLen))
		if err != nil {
			return nil, WrapError(CodeCorruptBlock, err, "decode registry filename")
		}
		freeOffset, err := c.ReadVarint()
		if err != nil {
			return nil, WrapError(CodeCorruptBlock, err, "decode registry free offset")
		}
		id := BlockID(idRaw)
		if e, ok := byID[id]; ok {
			e.freeOffset = freeOffset
		} else {
			e := &registryEntry{id: id, filename: string(name), freeOffset: freeOffset}
			byID[id] = e
			order = append(order, id)
		}
	}
	result := make([]registryEntry, 0, len(order))
	for _, id := range order {
		result = append(result, *byID[id])
	}
	return result, nil
}

// appendRecord appends one (block-id, filename, free-offset) record. Used
// both when a block is first created (rotation) and when its free offset
// is persisted at flush time.
func (r *BlockRegistry) appendRecord(id BlockID, filename string, freeOffset uint64) error {
	var buf []byte
	buf = codec.AppendVarint32(buf, uint32(id))
	buf = codec.AppendVarint32(buf, uint32(len(filename)))
	buf = append(buf, filename...)
	buf = codec.AppendVarint64(buf, freeOffset)
	if _, err := r.file.Write(buf); err != nil {
		return WrapError(CodeWriteFailed, err, "append block registry record")
	}
	return r.file.Sync()
}
