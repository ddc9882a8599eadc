package storage

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/basestored/core/stream"
)

// MainIndex is the master column's persistent ordered index keyed by
// 8-byte big-endian TRID, mapping to the row's current Address. Point
// find and in-order range scan are both supported; at most one value per
// key — Find returning more than one is a corruption condition carrying
// (database, table) identifiers.
type MainIndex struct {
	mu      sync.RWMutex
	file    *stream.FileStream
	entries map[uint64]Address
	sorted  []uint64 // kept sorted; TRIDs are monotonically increasing on insert

	database, table string // for corruption error context only
}

func openMainIndex(dir, database, table string, checker stream.ErrnoChecker) (*MainIndex, error) {
	path := filepath.Join(dir, "index.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, WrapError(CodeIOBase, err, "open main index %s", path)
	}
	idx := &MainIndex{
		file:     stream.NewFileStream(f, checker),
		entries:  make(map[uint64]Address),
		database: database,
		table:    table,
	}
	if err := idx.replay(f); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, 2); err != nil {
		return nil, WrapError(CodeIOBase, err, "seek main index %s", path)
	}
	return idx, nil
}

const indexRecordSize = 8 + 8 // TRID big-endian + packed address

func (idx *MainIndex) replay(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return WrapError(CodeIOBase, err, "stat main index")
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil && info.Size() > 0 {
		return WrapError(CodeShortRead, err, "read main index")
	}
	for off := 0; off+indexRecordSize <= len(buf); off += indexRecordSize {
		trid := beUint64(buf[off : off+8])
		var packed [8]byte
		copy(packed[:], buf[off+8:off+16])
		addr := UnpackAddress(packed)
		if _, existed := idx.entries[trid]; !existed {
			idx.sorted = append(idx.sorted, trid)
		}
		idx.entries[trid] = addr
	}
	sort.Slice(idx.sorted, func(i, j int) bool { return idx.sorted[i] < idx.sorted[j] })
	return nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// Put inserts or overwrites the address TRID maps to, appending a durable
// record into the main column's primary index.
func (idx *MainIndex) Put(trid uint64, addr Address) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var rec [indexRecordSize]byte
	for i := 0; i < 8; i++ {
		rec[i] = byte(trid >> (8 * (7 - i)))
	}
	packed := addr.Pack()
	copy(rec[8:], packed[:])
	if _, err := idx.file.Write(rec[:]); err != nil {
		return WrapError(CodeWriteFailed, err, "append main index record")
	}
	if _, existed := idx.entries[trid]; !existed {
		i := sort.Search(len(idx.sorted), func(i int) bool { return idx.sorted[i] >= trid })
		idx.sorted = append(idx.sorted, 0)
		copy(idx.sorted[i+1:], idx.sorted[i:])
		idx.sorted[i] = trid
	}
	idx.entries[trid] = addr
	return nil
}

// Delete removes trid from the index by recording DeletedAddress, mirroring
// Put's append-only durability.
func (idx *MainIndex) Delete(trid uint64) error {
	return idx.Put(trid, DeletedAddress)
}

// Find looks up trid's current address. ok is false if the TRID was never
// written or has been deleted.
func (idx *MainIndex) Find(trid uint64) (Address, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	addr, ok := idx.entries[trid]
	if !ok || addr.IsDeleted() {
		return Address{}, false
	}
	return addr, true
}

// RangeScan calls fn for every live (non-deleted) TRID in ascending order,
// stopping early if fn returns false.
func (idx *MainIndex) RangeScan(fn func(trid uint64, addr Address) bool) {
	idx.mu.RLock()
	trids := append([]uint64(nil), idx.sorted...)
	idx.mu.RUnlock()
	for _, trid := range trids {
		idx.mu.RLock()
		addr, ok := idx.entries[trid]
		idx.mu.RUnlock()
		if !ok || addr.IsDeleted() {
			continue
		}
		if !fn(trid, addr) {
			return
		}
	}
}

func (idx *MainIndex) Close() error { return idx.file.Close() }
