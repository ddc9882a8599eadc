package handler

import (
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// executeCreateDatabase creates db and mirrors it into SYS.SYS_DATABASES
// so the CLI dump tool's `CREATE DATABASE ... WITH CIPHER_ID=...` can be
// reconstructed from the catalog alone.
func (h *Handler) executeCreateDatabase(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	if err := h.requirePermission("", "", storage.ObjectDatabase, storage.PrivCreate); err != nil {
		return nil, err
	}
	cipherID := req.CipherID
	if cipherID == "" {
		cipherID = "none"
	}
	db, err := h.Instance.CreateDatabase(req.Database, cipherID)
	if err != nil {
		return nil, err
	}
	sysDB, sysTbl, err := h.sysTable("SYS_DATABASES")
	if err != nil {
		return nil, err
	}
	defer h.releaseSys(sysDB)
	if _, err := sysRow(sysTbl, sysDB.NextTxnID(), h.UserID, map[string]variant.Variant{
		"NAME":            variant.NewString(db.Name),
		"CIPHER_ID":       variant.NewString(db.CipherID),
		"CIPHER_KEY_SEED": variant.NewBinary(db.CipherKeySeed),
		"NEXT_TRID":       variant.NewUInt64(0),
	}); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) executeDropDatabase(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	if err := h.requirePermission(req.Database, "", storage.ObjectDatabase, storage.PrivDrop); err != nil {
		return nil, err
	}
	if err := h.Instance.DropDatabase(req.Database); err != nil {
		return nil, err
	}
	sysDB, sysTbl, err := h.sysTable("SYS_DATABASES")
	if err != nil {
		return nil, err
	}
	defer h.releaseSys(sysDB)
	if _, err := deleteSysRowsWhere(sysTbl, h.UserID, sysDB.NextTxnID, func(row map[string]variant.Variant) bool {
		return eqString(row, "NAME", req.Database)
	}); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

// executeAlterDatabase rejects every ALTER DATABASE request with
// CodeNotImplemented. Re-keying the cipher would require re-encrypting
// every block, and renaming is not offered because databases are
// identified by directory name and renaming would orphan open handles.
func (h *Handler) executeAlterDatabase(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	return nil, storage.NewError(storage.CodeNotImplemented, "ALTER DATABASE %s: no alterable database-level property is supported", req.Database)
}

func (h *Handler) executeCreateTable(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, "", storage.ObjectDatabase, storage.PrivCreate); err != nil {
		return nil, err
	}
	t, err := db.CreateTable(req.Table)
	if err != nil {
		return nil, err
	}
	for _, cs := range req.Columns {
		if _, err := t.AddColumn(cs.Name, cs.Type, cs.Nullable, cs.Default); err != nil {
			return nil, err
		}
	}
	if err := h.mirrorTableCatalog(db, t); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

// mirrorTableCatalog replaces t's SYS_TABLES/SYS_COLUMNS/
// SYS_COLUMN_CONSTRAINTS rows in db with the current column set — called
// after any DDL that changes t's schema.
func (h *Handler) mirrorTableCatalog(db *storage.Database, t *storage.Table) error {
	sysTables, err := db.Table("SYS_TABLES")
	if err != nil {
		return err
	}
	sysColumns, err := db.Table("SYS_COLUMNS")
	if err != nil {
		return err
	}
	sysConstraints, err := db.Table("SYS_COLUMN_CONSTRAINTS")
	if err != nil {
		return err
	}
	txn := db.NextTxnID()
	if _, err := deleteSysRowsWhere(sysTables, h.UserID, db.NextTxnID, func(row map[string]variant.Variant) bool {
		return eqString(row, "DATABASE_NAME", db.Name) && eqString(row, "TABLE_NAME", t.Name)
	}); err != nil {
		return err
	}
	if _, err := deleteSysRowsWhere(sysColumns, h.UserID, db.NextTxnID, func(row map[string]variant.Variant) bool {
		return eqString(row, "DATABASE_NAME", db.Name) && eqString(row, "TABLE_NAME", t.Name)
	}); err != nil {
		return err
	}
	if _, err := deleteSysRowsWhere(sysConstraints, h.UserID, db.NextTxnID, func(row map[string]variant.Variant) bool {
		return eqString(row, "DATABASE_NAME", db.Name) && eqString(row, "TABLE_NAME", t.Name)
	}); err != nil {
		return err
	}
	set := t.CurrentSet()
	if _, err := sysRow(sysTables, txn, h.UserID, map[string]variant.Variant{
		"DATABASE_NAME": variant.NewString(db.Name),
		"TABLE_NAME":    variant.NewString(t.Name),
		"COLUMN_SET_ID": variant.NewUInt64(set.ID),
		"NEXT_TRID":     variant.NewUInt64(t.NextTRID()),
	}); err != nil {
		return err
	}
	if _, err := sysRow(sysColumns, txn, h.UserID, map[string]variant.Variant{
		"DATABASE_NAME": variant.NewString(db.Name),
		"TABLE_NAME":    variant.NewString(t.Name),
		"COLUMN_SET_ID": variant.NewUInt64(set.ID),
		"COLUMN_ID":     variant.NewUInt32(storage.MasterColumnID),
		"POSITION":      variant.NewUInt32(0),
		"NAME":          variant.NewString("TRID"),
		"DATA_TYPE":     variant.NewString(variant.TypeUInt64.String()),
		"NULLABLE":      variant.NewBool(false),
	}); err != nil {
		return err
	}
	for _, cd := range set.Columns {
		if _, err := sysRow(sysColumns, txn, h.UserID, map[string]variant.Variant{
			"DATABASE_NAME": variant.NewString(db.Name),
			"TABLE_NAME":    variant.NewString(t.Name),
			"COLUMN_SET_ID": variant.NewUInt64(set.ID),
			"COLUMN_ID":     variant.NewUInt32(cd.ID),
			"POSITION":      variant.NewUInt32(uint32(cd.Position)),
			"NAME":          variant.NewString(cd.Name),
			"DATA_TYPE":     variant.NewString(cd.Type.String()),
			"NULLABLE":      variant.NewBool(cd.Nullable),
		}); err != nil {
			return err
		}
		if !cd.Nullable {
			if _, err := sysRow(sysConstraints, txn, h.UserID, map[string]variant.Variant{
				"DATABASE_NAME": variant.NewString(db.Name),
				"TABLE_NAME":    variant.NewString(t.Name),
				"COLUMN_SET_ID": variant.NewUInt64(set.ID),
				"COLUMN_NAME":   variant.NewString(cd.Name),
				"KIND":          variant.NewString("NOT NULL"),
				"DEFINITION":    variant.NewString(""),
			}); err != nil {
				return err
			}
		}
		if def, ok := t.ColumnDefault(cd.ID); ok {
			if _, err := sysRow(sysConstraints, txn, h.UserID, map[string]variant.Variant{
				"DATABASE_NAME": variant.NewString(db.Name),
				"TABLE_NAME":    variant.NewString(t.Name),
				"COLUMN_SET_ID": variant.NewUInt64(set.ID),
				"COLUMN_NAME":   variant.NewString(cd.Name),
				"KIND":          variant.NewString("DEFAULT"),
				"DEFINITION":    variant.NewString(def.CanonicalString()),
			}); err != nil {
				return err
			}
		}
	}
	return db.Flush()
}

func (h *Handler) executeDropTable(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivDrop); err != nil {
		return nil, err
	}
	if err := db.DropTable(req.Table); err != nil {
		return nil, err
	}
	if err := h.clearTableCatalog(db, req.Table); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) clearTableCatalog(db *storage.Database, table string) error {
	sysTables, err := db.Table("SYS_TABLES")
	if err != nil {
		return err
	}
	sysColumns, err := db.Table("SYS_COLUMNS")
	if err != nil {
		return err
	}
	sysConstraints, err := db.Table("SYS_COLUMN_CONSTRAINTS")
	if err != nil {
		return err
	}
	match := func(row map[string]variant.Variant) bool {
		return eqString(row, "DATABASE_NAME", db.Name) && eqString(row, "TABLE_NAME", table)
	}
	if _, err := deleteSysRowsWhere(sysTables, h.UserID, db.NextTxnID, match); err != nil {
		return err
	}
	if _, err := deleteSysRowsWhere(sysColumns, h.UserID, db.NextTxnID, match); err != nil {
		return err
	}
	if _, err := deleteSysRowsWhere(sysConstraints, h.UserID, db.NextTxnID, match); err != nil {
		return err
	}
	return nil
}

func (h *Handler) executeRenameTable(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivAlter); err != nil {
		return nil, err
	}
	if err := db.RenameTable(req.Table, req.NewName); err != nil {
		return nil, err
	}
	t, err := db.Table(req.NewName)
	if err != nil {
		return nil, err
	}
	if err := h.clearTableCatalog(db, req.Table); err != nil {
		return nil, err
	}
	if err := h.mirrorTableCatalog(db, t); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

// executeAlterTable covers table-level (not column-level) alterations.
// The one supported form is SET NEXT_TRID, which a dump replay uses to
// resume the TRID generator past the rows it is about to re-insert.
func (h *Handler) executeAlterTable(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	if req.NextTRID == 0 {
		return nil, storage.NewError(storage.CodeNotImplemented, "ALTER TABLE %s: only SET NEXT_TRID is supported", req.Table)
	}
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivAlter); err != nil {
		return nil, err
	}
	t, err := db.Table(req.Table)
	if err != nil {
		return nil, err
	}
	if err := t.SetNextTRID(req.NextTRID); err != nil {
		return nil, err
	}
	if err := h.mirrorTableCatalog(db, t); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) executeAddColumn(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivAlter); err != nil {
		return nil, err
	}
	t, err := db.Table(req.Table)
	if err != nil {
		return nil, err
	}
	if len(req.Columns) != 1 {
		return nil, storage.NewError(storage.CodeSyntax, "ADD COLUMN expects exactly one column")
	}
	cs := req.Columns[0]
	if _, err := t.AddColumn(cs.Name, cs.Type, cs.Nullable, cs.Default); err != nil {
		return nil, err
	}
	if err := h.mirrorTableCatalog(db, t); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) executeDropColumn(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivAlter); err != nil {
		return nil, err
	}
	t, err := db.Table(req.Table)
	if err != nil {
		return nil, err
	}
	if err := t.DropColumn(req.ColumnName); err != nil {
		return nil, err
	}
	if err := h.mirrorTableCatalog(db, t); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) executeRenameColumn(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)
	if err := h.requirePermission(db.Name, req.Table, storage.ObjectTable, storage.PrivAlter); err != nil {
		return nil, err
	}
	t, err := db.Table(req.Table)
	if err != nil {
		return nil, err
	}
	if err := t.RenameColumn(req.ColumnName, req.NewName); err != nil {
		return nil, err
	}
	if err := h.mirrorTableCatalog(db, t); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

// executeAlterColumn covers type/nullability/default changes beyond
// add/drop/rename; the storage engine's column-set model only supports
// adding, dropping and renaming columns, so a type or nullability
// change is rejected rather than silently reinterpreted.
func (h *Handler) executeAlterColumn(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	return nil, storage.NewError(storage.CodeNotImplemented, "ALTER COLUMN %s.%s: only ADD/DROP/RENAME COLUMN are supported", req.Table, req.ColumnName)
}

// executeCreateIndex/executeDropIndex: secondary indices are outside the
// storage engine's scope — query planning here is a straight nested-loop
// scan, so an index would exist only to accelerate planning this core
// doesn't do — so these return not-implemented rather than silently
// accepting and ignoring the request.
func (h *Handler) executeCreateIndex(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	return nil, storage.NewError(storage.CodeNotImplemented, "CREATE INDEX %s: secondary indices are not implemented", req.IndexName)
}

func (h *Handler) executeDropIndex(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	return nil, storage.NewError(storage.CodeNotImplemented, "DROP INDEX %s: secondary indices are not implemented", req.IndexName)
}

// executeAttachDatabase/executeDetachDatabase: every database already
// lives under the instance's data directory and is opened on first
// reference (storage.Instance.Database), so both reduce to validating
// the database exists. Neither moves files, and neither holds a pin past
// the request — a pin held across requests would leak when the
// connection drops without a matching DETACH.
func (h *Handler) executeAttachDatabase(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.Instance.Database(req.Database)
	if err != nil {
		return nil, err
	}
	h.Instance.ReleaseDatabase(db)
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) executeDetachDatabase(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.Instance.Database(req.Database)
	if err != nil {
		return nil, err
	}
	h.Instance.ReleaseDatabase(db)
	if h.CurrentDatabase == req.Database {
		h.CurrentDatabase = ""
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) executeUseDatabase(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.Instance.Database(req.Database)
	if err != nil {
		return nil, err
	}
	h.Instance.ReleaseDatabase(db)
	h.CurrentDatabase = req.Database
	return simpleResponse(requestID, responseID, responseCount, 0), nil
}
