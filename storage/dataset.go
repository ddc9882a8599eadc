package storage

import "github.com/basestored/core/variant"

// DataSet is a cursor over a table's rows with a subset of columns bound
// to positions. The expression
// evaluator consumes a vector of data sets and indexes them for
// cross-table column references.
type DataSet struct {
	table   *Table
	columns []ColumnDef // the bound subset, in bind order
	nextTxn func() uint64

	trids  []uint64
	cursor int // -1 before the first row; len(trids) after the last

	currentRow map[uint32]variant.Variant
	rowErr     error
}

// NewDataSet binds columnNames (in order) against table's current column
// set. An empty columnNames binds every column including TRID.
func NewDataSet(table *Table, columnNames []string, nextTxn func() uint64) (*DataSet, error) {
	ds := &DataSet{table: table, nextTxn: nextTxn, cursor: -1}
	if len(columnNames) == 0 {
		ds.columns = append(ds.columns, ColumnDef{ID: MasterColumnID, Position: 0, Name: "TRID", Type: variant.TypeUInt64})
		ds.columns = append(ds.columns, table.CurrentSet().Columns...)
		return ds, nil
	}
	for _, name := range columnNames {
		cd, ok := table.ColumnByName(name)
		if !ok {
			return nil, NewError(CodeSchemaNotFound, "column %q not found on table %s", name, table.Name)
		}
		ds.columns = append(ds.columns, cd)
	}
	return ds, nil
}

// ResetCursor rewinds to before the first row, taking a fresh snapshot of
// live TRIDs in ascending order.
func (ds *DataSet) ResetCursor() {
	ds.trids = nil
	ds.table.mainIndex.RangeScan(func(trid uint64, _ Address) bool {
		ds.trids = append(ds.trids, trid)
		return true
	})
	ds.cursor = -1
	ds.currentRow = nil
	ds.rowErr = nil
}

// HasCurrentRow reports whether the cursor currently addresses a row.
func (ds *DataSet) HasCurrentRow() bool {
	return ds.cursor >= 0 && ds.cursor < len(ds.trids)
}

// MoveToNextRow advances the cursor, skipping TRIDs deleted since
// ResetCursor was called, and returns whether a row is now current.
func (ds *DataSet) MoveToNextRow() bool {
	for {
		ds.cursor++
		if ds.cursor >= len(ds.trids) {
			ds.currentRow = nil
			return false
		}
		row, err := ds.table.ReadRow(ds.trids[ds.cursor])
		if err != nil {
			continue // deleted concurrently between snapshot and read
		}
		ds.currentRow = row
		ds.rowErr = nil
		return true
	}
}

// CurrentTRID returns the TRID of the row currently under the cursor.
func (ds *DataSet) CurrentTRID() (uint64, bool) {
	if !ds.HasCurrentRow() {
		return 0, false
	}
	return ds.trids[ds.cursor], true
}

// ReadCurrentRow decodes every bound column's value for the current row.
func (ds *DataSet) ReadCurrentRow() (map[uint32]variant.Variant, error) {
	if !ds.HasCurrentRow() {
		return nil, NewError(CodeInvariantViolated, "data set cursor has no current row")
	}
	return ds.currentRow, nil
}

// GetValue returns the bound column at idx's value for the current row.
func (ds *DataSet) GetValue(idx int) (variant.Variant, error) {
	if !ds.HasCurrentRow() {
		return variant.Variant{}, NewError(CodeInvariantViolated, "data set cursor has no current row")
	}
	if idx < 0 || idx >= len(ds.columns) {
		return variant.Variant{}, NewError(CodeInvariantViolated, "data set column index %d out of range", idx)
	}
	cd := ds.columns[idx]
	if cd.ID == MasterColumnID {
		trid, _ := ds.CurrentTRID()
		return variant.NewUInt64(trid), nil
	}
	v, ok := ds.currentRow[cd.ID]
	if !ok {
		return variant.Null, nil
	}
	return v, nil
}

// ColumnCount returns the number of columns bound to this data set.
func (ds *DataSet) ColumnCount() int { return len(ds.columns) }

// Column returns the bound column definition at idx.
func (ds *DataSet) Column(idx int) ColumnDef { return ds.columns[idx] }

// DeleteCurrentRow tombstones the row under the cursor, assigning a fresh transaction id.
func (ds *DataSet) DeleteCurrentRow(userID uint64) error {
	trid, ok := ds.CurrentTRID()
	if !ok {
		return NewError(CodeInvariantViolated, "data set cursor has no current row")
	}
	return ds.table.DeleteRow(trid, ds.nextTxn(), userID)
}

// UpdateCurrentRow rewrites the named bound-column positions for the row
// under the cursor, assigning a fresh
// transaction id, and refreshes the cursor's cached row.
func (ds *DataSet) UpdateCurrentRow(values []variant.Variant, columnPositions []int, userID uint64) error {
	trid, ok := ds.CurrentTRID()
	if !ok {
		return NewError(CodeInvariantViolated, "data set cursor has no current row")
	}
	if len(values) != len(columnPositions) {
		return NewError(CodeInvariantViolated, "update_current_row: values/positions length mismatch")
	}
	changed := make(map[uint32]variant.Variant, len(values))
	for i, pos := range columnPositions {
		if pos < 0 || pos >= len(ds.columns) {
			return NewError(CodeInvariantViolated, "update_current_row: column position %d out of range", pos)
		}
		changed[ds.columns[pos].ID] = values[i]
	}
	if err := ds.table.UpdateRow(trid, changed, ds.nextTxn(), userID); err != nil {
		return err
	}
	row, err := ds.table.ReadRow(trid)
	if err != nil {
		return err
	}
	ds.currentRow = row
	return nil
}
