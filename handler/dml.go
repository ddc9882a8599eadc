package handler

import (
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// fillDefaults fills any non-nullable column missing from values with its
// column default, erroring if none exists.
func fillDefaults(t *storage.Table, values map[uint32]variant.Variant) (map[uint32]variant.Variant, error) {
	set := t.CurrentSet()
	filled := make(map[uint32]variant.Variant, len(set.Columns))
	for _, cd := range set.Columns {
		if v, ok := values[cd.ID]; ok {
			filled[cd.ID] = v
			continue
		}
		if def, ok := t.ColumnDefault(cd.ID); ok {
			filled[cd.ID] = def
			continue
		}
		if !cd.Nullable {
			return nil, storage.NewError(storage.CodeValueOutOfRange, "column %q has no value and no default", cd.Name)
		}
		filled[cd.ID] = variant.Null
	}
	return filled, nil
}

// executeInsert runs every row of req.InsertRows under a single
// transaction id, returning the generated TRIDs as the rowset.
func (h *Handler) executeInsert(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivInsert); err != nil {
		return nil, err
	}
	t, err := db.Table(req.Table)
	if err != nil {
		return nil, err
	}
	colDefs := make([]storage.ColumnDef, len(req.InsertColumns))
	for i, name := range req.InsertColumns {
		cd, ok := t.ColumnByName(name)
		if !ok {
			return nil, storage.NewError(storage.CodeSchemaNotFound, "column %q not found on table %s", name, t.Name)
		}
		colDefs[i] = cd
	}

	txn := db.NextTxnID()
	trids := make([]uint64, 0, len(req.InsertRows))
	for _, sparse := range req.InsertRows {
		values := make(map[uint32]variant.Variant, len(sparse))
		for idx, v := range sparse {
			if idx < 0 || idx >= len(colDefs) {
				return nil, storage.NewError(storage.CodeSyntax, "insert: column index %d out of range", idx)
			}
			values[colDefs[idx].ID] = v
		}
		filled, err := fillDefaults(t, values)
		if err != nil {
			return nil, err
		}
		trid, err := t.InsertRow(filled, txn, h.UserID)
		if err != nil {
			return nil, err
		}
		trids = append(trids, trid)
	}

	resp := simpleResponse(requestID, responseID, responseCount, uint64(len(trids)))
	resp.GeneratedTRIDs = trids
	return resp, nil
}

// executeUpdate rewrites only the columns named in req.UpdateColumns for
// the row identified by req.TRID.
func (h *Handler) executeUpdate(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivUpdate); err != nil {
		return nil, err
	}
	t, err := db.Table(req.Table)
	if err != nil {
		return nil, err
	}
	if len(req.UpdateColumns) != len(req.UpdateValues) {
		return nil, storage.NewError(storage.CodeSyntax, "update: columns/values length mismatch")
	}
	changed := make(map[uint32]variant.Variant, len(req.UpdateColumns))
	for i, name := range req.UpdateColumns {
		cd, ok := t.ColumnByName(name)
		if !ok {
			return nil, storage.NewError(storage.CodeSchemaNotFound, "column %q not found on table %s", name, t.Name)
		}
		changed[cd.ID] = req.UpdateValues[i]
	}
	if err := t.UpdateRow(req.TRID, changed, db.NextTxnID(), h.UserID); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

// executeDelete tombstones the row identified by req.TRID.
func (h *Handler) executeDelete(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivDelete); err != nil {
		return nil, err
	}
	t, err := db.Table(req.Table)
	if err != nil {
		return nil, err
	}
	if err := t.DeleteRow(req.TRID, db.NextTxnID(), h.UserID); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}
