package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/stream"
	"github.com/basestored/core/variant"
)

// MasterColumnID is the stable column id of the distinguished master
// column occupying position 0.
const MasterColumnID uint32 = 0

// ColumnSet is the list of columns active for new row writes. ADD/DROP/
// RENAME/ALTER COLUMN each produce a new ColumnSet with a fresh ID; older
// MCRs remain readable against it via default substitution for any column
// id it lists that an old MCR predates.
type ColumnSet struct {
	ID      uint64
	Columns []ColumnDef // ordered by Position; Position 0 is always absent here (master is tracked separately)
}

// ByID returns the column definition with the given stable id, if present
// in this set.
func (cs *ColumnSet) ByID(id uint32) (ColumnDef, bool) {
	for _, c := range cs.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return ColumnDef{}, false
}

func (cs *ColumnSet) ByName(name string) (ColumnDef, bool) {
	for _, c := range cs.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// Table is an ordered collection of columns, position 0 always the master
// column. Owns a monotonic TRID generator used as the row id
// source (actually the table's own TRID counter; Database owns the
// separate transaction-id generator consumed by every row write).
type Table struct {
	Database string
	Name     string
	dir      string

	mu          sync.RWMutex // guards currentSet/columns/nextColumnID — "table catalog" lock
	currentSet  *ColumnSet
	nextColSetID uint64
	nextColumnID uint32
	columns      map[uint32]*Column // non-master columns by id, open handles

	columnDefaults map[uint32]variant.Variant

	rowMu      sync.RWMutex // append cursor + main index: writers exclusive, readers shared
	master     *Column
	mainIndex  *MainIndex
	nextTRID   atomic.Uint64

	cipher    Cipher
	cipherKey []byte
	checker   stream.ErrnoChecker

	// useCount tracks open DataSets referencing this table, consulted by
	// the table cache's CanEvict hook.
	useCount atomic.Int32
}

func openTable(parentDir, database, name string, c Cipher, key []byte, checker stream.ErrnoChecker) (*Table, error) {
	dir := filepath.Join(parentDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, WrapError(CodeIOBase, err, "create table dir %s", dir)
	}
	master, err := openColumn(filepath.Join(dir, "col-0-master"), ColumnDef{ID: MasterColumnID, Position: 0, Name: "TRID", Type: variant.TypeUInt64}, c, key, checker)
	if err != nil {
		return nil, err
	}
	idx, err := openMainIndex(dir, database, name, checker)
	if err != nil {
		return nil, err
	}
	t := &Table{
		Database:  database,
		Name:      name,
		dir:       dir,
		currentSet: &ColumnSet{ID: 0},
		nextColSetID: 1,
		nextColumnID: 1,
		columns:    make(map[uint32]*Column),
		master:     master,
		mainIndex:  idx,
		cipher:     c,
		cipherKey:  key,
		checker:    checker,
	}
	var maxTRID uint64
	idx.RangeScan(func(trid uint64, _ Address) bool {
		if trid > maxTRID {
			maxTRID = trid
		}
		return true
	})
	t.nextTRID.Store(maxTRID + 1)
	return t, nil
}

// ColumnCount returns the table's total column count including the master
// column.
func (t *Table) ColumnCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.currentSet.Columns) + 1
}

func (t *Table) CurrentSet() *ColumnSet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cs := *t.currentSet
	cs.Columns = append([]ColumnDef(nil), t.currentSet.Columns...)
	return &cs
}

func (t *Table) ColumnByName(name string) (ColumnDef, bool) {
	if name == "TRID" {
		return ColumnDef{ID: MasterColumnID, Position: 0, Name: "TRID", Type: variant.TypeUInt64}, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentSet.ByName(name)
}

// AddColumn creates a new column set with def appended at the next dense
// position.
func (t *Table) AddColumn(name string, typ variant.Type, nullable bool, def variant.Variant) (ColumnDef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.currentSet.ByName(name); ok {
		return ColumnDef{}, NewError(CodeDuplicateName, "column %q already exists on table %s", name, t.Name)
	}
	id := t.nextColumnID
	t.nextColumnID++
	cd := ColumnDef{ID: id, Position: len(t.currentSet.Columns) + 1, Name: name, Type: typ, Nullable: nullable}
	col, err := openColumn(t.columnDir(id), cd, t.cipher, t.cipherKey, t.checker)
	if err != nil {
		return ColumnDef{}, err
	}
	t.columns[id] = col
	newCols := append(append([]ColumnDef(nil), t.currentSet.Columns...), cd)
	t.currentSet = &ColumnSet{ID: t.nextColSetID, Columns: newCols}
	t.nextColSetID++
	if !def.IsNull() {
		t.defaults(id, def)
	}
	return cd, nil
}

func (t *Table) defaults(id uint32, def variant.Variant) {
	if t.columnDefaults == nil {
		t.columnDefaults = make(map[uint32]variant.Variant)
	}
	t.columnDefaults[id] = def
}

// DropColumn removes name from the current column set; storage
// for already-written values is left in place, but reads always go through
// the current column set, so the dropped column no longer appears for any
// row.
func (t *Table) DropColumn(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var newCols []ColumnDef
	found := false
	for _, c := range t.currentSet.Columns {
		if c.Name == name {
			found = true
			continue
		}
		newCols = append(newCols, c)
	}
	if !found {
		return NewError(CodeSchemaNotFound, "column %q not found on table %s", name, t.Name)
	}
	t.currentSet = &ColumnSet{ID: t.nextColSetID, Columns: renumberPositions(newCols)}
	t.nextColSetID++
	return nil
}

func renumberPositions(cols []ColumnDef) []ColumnDef {
	for i := range cols {
		cols[i].Position = i + 1
	}
	return cols
}

// RenameColumn renames a column in place, creating a new column set.
func (t *Table) RenameColumn(oldName, newName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.currentSet.ByName(newName); ok {
		return NewError(CodeDuplicateName, "column %q already exists on table %s", newName, t.Name)
	}
	newCols := append([]ColumnDef(nil), t.currentSet.Columns...)
	found := false
	for i, c := range newCols {
		if c.Name == oldName {
			newCols[i].Name = newName
			found = true
			break
		}
	}
	if !found {
		return NewError(CodeSchemaNotFound, "column %q not found on table %s", oldName, t.Name)
	}
	t.currentSet = &ColumnSet{ID: t.nextColSetID, Columns: newCols}
	t.nextColSetID++
	return nil
}

// defaultsSnapshot copies the table's registered DEFAULT values for the
// schema stash.
func (t *Table) defaultsSnapshot() map[uint32]variant.Variant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.columnDefaults) == 0 {
		return nil
	}
	out := make(map[uint32]variant.Variant, len(t.columnDefaults))
	for id, v := range t.columnDefaults {
		out[id] = v
	}
	return out
}

// rebase repoints the table and its open column handles at a renamed
// table directory. Already-open block file handles stay valid across the
// rename; only paths used for future opens change.
func (t *Table) rebase(newDir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dir = newDir
	t.master.setDir(filepath.Join(newDir, "col-0-master"))
	for id, col := range t.columns {
		col.setDir(filepath.Join(newDir, fmt.Sprintf("col-%d", id)))
	}
}

// columnDir names a column's on-disk directory by stable column id alone,
// so renaming a column never moves its blocks.
func (t *Table) columnDir(id uint32) string {
	return filepath.Join(t.dir, fmt.Sprintf("col-%d", id))
}

// NextTRID returns the TRID the next inserted row will receive.
func (t *Table) NextTRID() uint64 { return t.nextTRID.Load() }

// SetNextTRID moves the TRID generator forward to n; moving it backward
// would hand out TRIDs the main index already maps and is rejected.
func (t *Table) SetNextTRID(n uint64) error {
	for {
		cur := t.nextTRID.Load()
		if n < cur {
			return NewError(CodeValueOutOfRange, "next TRID %d is behind the current generator value %d", n, cur)
		}
		if t.nextTRID.CompareAndSwap(cur, n) {
			return nil
		}
	}
}

// RestoreColumnSet installs the column set recorded in the catalog when
// reopening an existing table: the set id, every column definition with
// its original stable id, and any DEFAULT values. Generator state
// (next column id, next set id) resumes past the restored values.
func (t *Table) RestoreColumnSet(setID uint64, cols []ColumnDef, defaults map[uint32]variant.Variant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentSet = &ColumnSet{ID: setID, Columns: append([]ColumnDef(nil), cols...)}
	t.nextColSetID = setID + 1
	for _, cd := range cols {
		if cd.ID >= t.nextColumnID {
			t.nextColumnID = cd.ID + 1
		}
	}
	t.columnDefaults = nil
	for id, def := range defaults {
		if t.columnDefaults == nil {
			t.columnDefaults = make(map[uint32]variant.Variant)
		}
		t.columnDefaults[id] = def
	}
}

func (t *Table) columnDefault(id uint32) (variant.Variant, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.columnDefaults[id]
	return v, ok
}

// ColumnDefault returns the DEFAULT value registered for column id, if
// any. Exported for the request handler's INSERT default-filling path.
func (t *Table) ColumnDefault(id uint32) (variant.Variant, bool) { return t.columnDefault(id) }

func (t *Table) openColumnHandle(cd ColumnDef) (*Column, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if col, ok := t.columns[cd.ID]; ok {
		return col, nil
	}
	col, err := openColumn(t.columnDir(cd.ID), cd, t.cipher, t.cipherKey, t.checker)
	if err != nil {
		return nil, err
	}
	t.columns[cd.ID] = col
	return col, nil
}

// InsertRow appends one row under the given values (keyed by column id;
// sparse maps are filled by the caller with defaults beforehand),
// returning the generated TRID.
func (t *Table) InsertRow(values map[uint32]variant.Variant, txnID, userID uint64) (uint64, error) {
	t.rowMu.Lock()
	defer t.rowMu.Unlock()

	set := t.CurrentSet()
	var addrs []ColumnAddr
	for _, cd := range set.Columns {
		v, ok := values[cd.ID]
		if !ok {
			v = variant.Null
		}
		col, err := t.openColumnHandle(cd)
		if err != nil {
			return 0, err
		}
		var buf bytes.Buffer
		if err := codec.Write(&buf, v); err != nil {
			return 0, WrapError(CodeWriteFailed, err, "encode column %s", cd.Name)
		}
		addr, err := col.Append(buf.Bytes())
		if err != nil {
			return 0, err
		}
		addrs = append(addrs, ColumnAddr{ColumnID: cd.ID, Addr: addr})
	}

	trid := t.nextTRID.Add(1) - 1
	mcr := &MCR{TRID: trid, TxnID: txnID, UserID: userID, ColumnAddrs: addrs}
	addr, err := t.master.Append(mcr.serialize())
	if err != nil {
		return 0, err
	}
	if err := t.mainIndex.Put(trid, addr); err != nil {
		return 0, err
	}
	return trid, nil
}

// ReadRow reads TRID's current value set, substituting defaults for any
// column in the current set the stored MCR predates.
func (t *Table) ReadRow(trid uint64) (map[uint32]variant.Variant, error) {
	t.rowMu.RLock()
	addr, ok := t.mainIndex.Find(trid)
	t.rowMu.RUnlock()
	if !ok {
		return nil, NewError(CodeSchemaNotFound, "row %d not found", trid)
	}
	raw, err := t.master.ReadAt(addr)
	if err != nil {
		return nil, err
	}
	mcr, err := deserializeMCR(raw)
	if err != nil {
		return nil, err
	}
	if mcr.Tombstone {
		return nil, NewError(CodeSchemaNotFound, "row %d deleted", trid)
	}
	byID := make(map[uint32]Address, len(mcr.ColumnAddrs))
	for _, ca := range mcr.ColumnAddrs {
		byID[ca.ColumnID] = ca.Addr
	}

	set := t.CurrentSet()
	result := make(map[uint32]variant.Variant, len(set.Columns))
	for _, cd := range set.Columns {
		if addr, ok := byID[cd.ID]; ok {
			col, err := t.openColumnHandle(cd)
			if err != nil {
				return nil, err
			}
			raw, err := col.ReadAt(addr)
			if err != nil {
				return nil, err
			}
			cur := &codec.Cursor{Buf: raw}
			v, err := codec.Decode(cur, cd.Type, codec.DefaultLimits, nil)
			if err != nil {
				return nil, WrapError(CodeCorruptBlock, err, "decode column %s", cd.Name)
			}
			result[cd.ID] = v
		} else if def, ok := t.columnDefault(cd.ID); ok {
			result[cd.ID] = def
		} else {
			result[cd.ID] = variant.Null
		}
	}
	return result, nil
}

// UpdateRow rewrites only the columns named in changed, builds a new MCR
// merging unchanged addresses from the prior MCR, and bumps the main
// index entry.
func (t *Table) UpdateRow(trid uint64, changed map[uint32]variant.Variant, txnID, userID uint64) error {
	t.rowMu.Lock()
	defer t.rowMu.Unlock()

	addr, ok := t.mainIndex.Find(trid)
	if !ok {
		return NewError(CodeSchemaNotFound, "row %d not found", trid)
	}
	raw, err := t.master.ReadAt(addr)
	if err != nil {
		return err
	}
	oldMCR, err := deserializeMCR(raw)
	if err != nil {
		return err
	}
	byID := make(map[uint32]Address, len(oldMCR.ColumnAddrs))
	for _, ca := range oldMCR.ColumnAddrs {
		byID[ca.ColumnID] = ca.Addr
	}

	set := t.CurrentSet()
	var newAddrs []ColumnAddr
	for _, cd := range set.Columns {
		if v, isChanged := changed[cd.ID]; isChanged {
			col, err := t.openColumnHandle(cd)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := codec.Write(&buf, v); err != nil {
				return WrapError(CodeWriteFailed, err, "encode column %s", cd.Name)
			}
			newAddr, err := col.Append(buf.Bytes())
			if err != nil {
				return err
			}
			newAddrs = append(newAddrs, ColumnAddr{ColumnID: cd.ID, Addr: newAddr})
		} else if old, ok := byID[cd.ID]; ok {
			newAddrs = append(newAddrs, ColumnAddr{ColumnID: cd.ID, Addr: old})
		}
	}

	mcr := &MCR{TRID: trid, TxnID: txnID, UserID: userID, ColumnAddrs: newAddrs}
	newMCRAddr, err := t.master.Append(mcr.serialize())
	if err != nil {
		return err
	}
	return t.mainIndex.Put(trid, newMCRAddr)
}

// DeleteRow appends a tombstone MCR and removes trid from the main index.
func (t *Table) DeleteRow(trid uint64, txnID, userID uint64) error {
	t.rowMu.Lock()
	defer t.rowMu.Unlock()
	if _, ok := t.mainIndex.Find(trid); !ok {
		return NewError(CodeSchemaNotFound, "row %d not found", trid)
	}
	tomb := &MCR{TRID: trid, TxnID: txnID, UserID: userID, Tombstone: true}
	if _, err := t.master.Append(tomb.serialize()); err != nil {
		return err
	}
	return t.mainIndex.Delete(trid)
}

// Flush fsyncs every open column and the main index, per the "end of each
// DDL statement" fsync point.
func (t *Table) Flush() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.master.FlushAll(); err != nil {
		return err
	}
	if err := t.mainIndex.file.Sync(); err != nil {
		return err
	}
	for _, col := range t.columns {
		if err := col.FlushAll(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.master.Close()
	_ = t.mainIndex.Close()
	for _, c := range t.columns {
		_ = c.Close()
	}
	return nil
}
