package handler

import (
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// sysRow appends one row to a system table given its values by column
// name, filling any column the caller omits with Null. Catalog writes go
// through the same row API user tables use: SYS_TABLES/SYS_COLUMNS/etc.
// are ordinary tables read back through the same DataSet cursor as user
// data.
func sysRow(t *storage.Table, txnID, userID uint64, values map[string]variant.Variant) (uint64, error) {
	byID := make(map[uint32]variant.Variant, len(values))
	for _, cd := range t.CurrentSet().Columns {
		if v, ok := values[cd.Name]; ok {
			byID[cd.ID] = v
		}
	}
	return t.InsertRow(byID, txnID, userID)
}

// deleteSysRowsWhere tombstones every row of t for which match returns
// true, returning the count removed.
func deleteSysRowsWhere(t *storage.Table, userID uint64, nextTxn func() uint64, match func(map[string]variant.Variant) bool) (int, error) {
	ds, err := storage.NewDataSet(t, nil, nextTxn)
	if err != nil {
		return 0, err
	}
	ds.ResetCursor()
	n := 0
	for ds.MoveToNextRow() {
		row, err := ds.ReadCurrentRow()
		if err != nil {
			return n, err
		}
		if !match(byName(t, row)) {
			continue
		}
		if err := ds.DeleteCurrentRow(userID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// byName re-keys a row (column-id -> value, as returned by Table.ReadRow)
// by column name for catalog predicates that only know names.
func byName(t *storage.Table, row map[uint32]variant.Variant) map[string]variant.Variant {
	out := make(map[string]variant.Variant, len(row))
	for _, cd := range t.CurrentSet().Columns {
		if v, ok := row[cd.ID]; ok {
			out[cd.Name] = v
		}
	}
	return out
}

func eqString(row map[string]variant.Variant, col, want string) bool {
	v, ok := row[col]
	return ok && !v.IsNull() && v.String_() == want
}

// sysTable pins the reserved system database and returns one of its
// global catalog tables (SYS_DATABASES, SYS_USERS, SYS_PERMISSIONS),
// releasing the pin is the caller's responsibility via releaseSys.
func (h *Handler) sysTable(name string) (*storage.Database, *storage.Table, error) {
	sysDB, err := h.Instance.Database(storage.SystemDatabaseName)
	if err != nil {
		return nil, nil, err
	}
	t, err := sysDB.Table(name)
	if err != nil {
		h.Instance.ReleaseDatabase(sysDB)
		return nil, nil, err
	}
	return sysDB, t, nil
}

func (h *Handler) releaseSys(db *storage.Database) { h.Instance.ReleaseDatabase(db) }
