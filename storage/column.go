package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/basestored/core/cache"
	"github.com/basestored/core/stream"
	"github.com/basestored/core/variant"
)

// ConstraintKind enumerates the kinds of constraint a column can carry.
type ConstraintKind int

const (
	ConstraintNotNull ConstraintKind = iota
	ConstraintDefault
	ConstraintUserDefined
)

// Constraint is one mutable constraint attached to a Column.
type Constraint struct {
	Kind       ConstraintKind
	Default    variant.Variant // meaningful when Kind == ConstraintDefault
	Definition string          // meaningful when Kind == ConstraintUserDefined
}

// ColumnDef is the immutable identity of a column within a column set:
// position, name, and data type never change after the column set that
// introduced them is superseded.
type ColumnDef struct {
	ID       uint32
	Position int
	Name     string
	Type     variant.Type
	Nullable bool
}

// Column is typed storage for one column's values: an immutable type
// (carried on ColumnDef) and an append-only sequence of blocks on disk.
// The distinguished master column (position 0) additionally owns the
// MainIndex. Open block file handles are capacity-bounded by a block
// cache: a block cannot be evicted while a write to it is in progress or
// while it is the column's current (still-being-appended-to) block; on
// eviction the block is flushed and its file handle closed, reopened on
// demand from the durable registry metadata in meta.
type Column struct {
	def         ColumnDef
	constraints []Constraint
	dir         string

	mu       sync.Mutex // guards meta/blocks/current/registry; append path takes it exclusively
	meta     map[BlockID]registryEntry
	order    []BlockID
	blocks   *cache.Ordered[BlockID, *Block]
	current  *Block
	registry *BlockRegistry
	nextID   BlockID

	cipher    Cipher
	cipherKey []byte
	checker   stream.ErrnoChecker
}

const defaultBlockCacheCapacity = 64

func openColumn(dir string, def ColumnDef, c Cipher, key []byte, checker stream.ErrnoChecker) (*Column, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, WrapError(CodeIOBase, err, "create column dir %s", dir)
	}
	reg, entries, err := openRegistry(dir, checker)
	if err != nil {
		return nil, err
	}
	col := &Column{
		def:       def,
		dir:       dir,
		meta:      make(map[BlockID]registryEntry),
		registry:  reg,
		cipher:    c,
		cipherKey: key,
		checker:   checker,
	}
	// The block cache is the ordered cache variant, keyed by block id, so
	// flush and close walk open blocks in id order.
	col.blocks = cache.NewOrdered[BlockID, *Block](defaultBlockCacheCapacity, &blockCacheHooks{col: col},
		func(a, b BlockID) bool { return a < b })
	for _, e := range entries {
		col.meta[e.id] = e
		col.order = append(col.order, e.id)
		if e.id >= col.nextID {
			col.nextID = e.id + 1
		}
	}
	if len(col.order) > 0 {
		last := col.order[len(col.order)-1]
		b, err := col.openBlockFile(last)
		if err != nil {
			return nil, err
		}
		if !b.Full() {
			col.current = b
		}
	}
	if col.current == nil {
		if err := col.rotate(); err != nil {
			return nil, err
		}
	}
	return col, nil
}

// blockCacheHooks implements the block cache's eviction policy: a block
// cannot be evicted while it is the column's current block or while a
// write to it is in progress (detected via a non-blocking lock attempt);
// eviction flushes the block and closes its file handle.
type blockCacheHooks struct {
	col *Column
}

func (h *blockCacheHooks) CanEvict(id BlockID, b *Block) bool {
	if h.col.current != nil && id == h.col.current.id {
		return false
	}
	if !b.writeMu.TryLock() {
		return false
	}
	b.writeMu.Unlock()
	return true
}

func (h *blockCacheHooks) OnEvict(_ BlockID, b *Block, _ bool) {
	_ = b.Flush()
	_ = b.Close()
}

func (h *blockCacheHooks) OnLastChanceCleanup() bool { return false }

// openBlockFile opens (or returns the already-cached handle for) block
// id, reopening its file from durable registry metadata if it had been
// evicted from the block cache. Caller must hold c.mu.
func (c *Column) openBlockFile(id BlockID) (*Block, error) {
	if b, ok := c.blocks.Get(id); ok {
		return b, nil
	}
	e, ok := c.meta[id]
	if !ok {
		return nil, NewError(CodeCorruptBlock, "column %s: block %d not in registry", c.def.Name, id)
	}
	b, err := openBlock(filepath.Join(c.dir, e.filename), e.id, e.freeOffset, c.cipher, c.cipherKey, c.checker)
	if err != nil {
		return nil, err
	}
	if !c.blocks.Emplace(id, b, true) {
		return nil, NewError(CodeInvariantViolated, "block cache full: cannot admit block %d", id)
	}
	return b, nil
}

// setDir repoints the column at a renamed parent directory.
func (c *Column) setDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir = dir
}

// rotate flushes the current block (if any) and creates a fresh one,
// recording it in the registry at the block rotation boundary.
func (c *Column) rotate() error {
	if c.current != nil {
		if err := c.current.Flush(); err != nil {
			return err
		}
		if err := c.registry.appendRecord(c.current.id, filepath.Base(c.current.path), c.current.freeOffset.Load()); err != nil {
			return err
		}
		c.meta[c.current.id] = registryEntry{id: c.current.id, filename: filepath.Base(c.current.path), freeOffset: c.current.freeOffset.Load()}
	}
	id := c.nextID
	c.nextID++
	filename := filepath.Base(blockFileName(c.dir, id))
	b, err := openBlock(filepath.Join(c.dir, filename), id, 0, c.cipher, c.cipherKey, c.checker)
	if err != nil {
		return err
	}
	if err := c.registry.appendRecord(id, filename, 0); err != nil {
		return err
	}
	c.meta[id] = registryEntry{id: id, filename: filename, freeOffset: 0}
	if !c.blocks.Emplace(id, b, true) {
		return NewError(CodeInvariantViolated, "block cache full: cannot admit block %d", id)
	}
	c.order = append(c.order, id)
	c.current = b
	return nil
}

// Append serializes a plaintext record into the column's current block,
// rotating to a new block first if the current one is full, and returns
// the resulting Address.
func (c *Column) Append(plaintext []byte) (Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.Full() {
		if err := c.rotate(); err != nil {
			return Address{}, err
		}
	}
	offset, err := c.current.Append(plaintext)
	if err != nil {
		return Address{}, err
	}
	return Address{Block: c.current.id, Offset: offset}, nil
}

// ReadAt resolves addr.Block (reopening it from registry metadata if it
// was evicted from the block cache) and reads the plaintext record at
// addr.Offset. A block with no registry metadata at all is a corruption
// condition.
func (c *Column) ReadAt(addr Address) ([]byte, error) {
	c.mu.Lock()
	b, err := c.openBlockFile(addr.Block)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.ReadAt(addr.Offset)
}

// FlushAll fsyncs every currently open block and persists its free offset,
// called at the end of a DDL statement.
func (c *Column) FlushAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	c.blocks.RangeScan(0, c.nextID, func(id BlockID, b *Block) bool {
		if err := b.Flush(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		if err := c.registry.appendRecord(id, filepath.Base(b.path), b.freeOffset.Load()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		c.meta[id] = registryEntry{id: id, filename: filepath.Base(b.path), freeOffset: b.freeOffset.Load()}
		return true
	})
	return firstErr
}

func (c *Column) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks.RangeScan(0, c.nextID, func(_ BlockID, b *Block) bool {
		_ = b.Close()
		return true
	})
	return nil
}
