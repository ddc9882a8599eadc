package storage

import (
	"sort"

	"github.com/basestored/core/variant"
)

// loadCatalog rebuilds the in-memory instance state from the system
// catalog when the data directory already holds one: users and their
// grants from SYS.SYS_USERS/SYS_PERMISSIONS, every database from
// SYS.SYS_DATABASES, and each database's table column sets from its own
// SYS_TABLES/SYS_COLUMNS/SYS_COLUMN_CONSTRAINTS. A fresh directory has
// empty catalog tables and this is a no-op.
func (inst *Instance) loadCatalog(sysDB *Database) error {
	if err := inst.restoreUsers(sysDB); err != nil {
		return err
	}
	if err := inst.restorePermissions(sysDB); err != nil {
		return err
	}
	return inst.restoreDatabases(sysDB)
}

// scanRows reads every live row of one catalog table into name-keyed
// maps. Catalog tables are small and bounded, so there is no need to
// stream them.
func scanRows(db *Database, tableName string) ([]map[string]variant.Variant, error) {
	t, err := db.Table(tableName)
	if err != nil {
		return nil, err
	}
	ds, err := NewDataSet(t, nil, db.NextTxnID)
	if err != nil {
		return nil, err
	}
	ds.ResetCursor()
	var rows []map[string]variant.Variant
	for ds.MoveToNextRow() {
		row := make(map[string]variant.Variant, ds.ColumnCount())
		for i := 0; i < ds.ColumnCount(); i++ {
			v, err := ds.GetValue(i)
			if err != nil {
				return nil, err
			}
			row[ds.Column(i).Name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (inst *Instance) restoreUsers(sysDB *Database) error {
	rows, err := scanRows(sysDB, "SYS_USERS")
	if err != nil {
		return err
	}
	var maxID uint64
	for _, row := range rows {
		id := row["USER_ID"].UInt64()
		name := row["NAME"].String_()
		u, err := RestoreUser(id, name, row["IS_SUPERUSER"].Bool(), []byte(row["PASSWORD_HASH"].String_()))
		if err != nil {
			return err
		}
		if !inst.users.Emplace(name, u, false) {
			return NewError(CodeInvariantViolated, "user cache full: cannot restore %s", name)
		}
		if id > maxID {
			maxID = id
		}
	}
	inst.nextUID.Store(maxID)
	return nil
}

func (inst *Instance) restorePermissions(sysDB *Database) error {
	rows, err := scanRows(sysDB, "SYS_PERMISSIONS")
	if err != nil {
		return err
	}
	for _, row := range rows {
		u, ok := inst.users.Peek(row["USER_NAME"].String_())
		if !ok {
			continue // grantee dropped without revoking; nothing to restore
		}
		objType, ok := ObjectTypeByName(row["OBJECT_TYPE"].String_())
		if !ok {
			return NewError(CodeIndexCorruption, "SYS_PERMISSIONS: unknown object type %q", row["OBJECT_TYPE"].String_())
		}
		key := PermissionKey{ObjectType: objType, ObjectID: row["OBJECT_ID"].UInt64()}
		if dbName := row["DATABASE_NAME"].String_(); dbName != "" {
			key.DatabaseID = NameID(dbName)
		}
		inst.permissions.Grant(u.ID, key,
			Privilege(row["GRANTED"].UInt64()), Privilege(row["GRANT_OPTION"].UInt64()))
	}
	return nil
}

func (inst *Instance) restoreDatabases(sysDB *Database) error {
	rows, err := scanRows(sysDB, "SYS_DATABASES")
	if err != nil {
		return err
	}
	for _, row := range rows {
		name := row["NAME"].String_()
		db, err := inst.openDB(name, row["CIPHER_ID"].String_(), row["CIPHER_KEY_SEED"].Binary())
		if err != nil {
			return err
		}
		if err := restoreTables(db); err != nil {
			return err
		}
		if !inst.dbs.Emplace(name, db, false) {
			return NewError(CodeInvariantViolated, "database cache full: cannot restore %s", name)
		}
	}
	return nil
}

// restoreTables stashes the persisted schema of every user table recorded
// in db's local catalog — stable column ids from SYS_COLUMNS, DEFAULT
// values from SYS_COLUMN_CONSTRAINTS — so each table reopens lazily on
// first reference with its column set intact.
func restoreTables(db *Database) error {
	tableRows, err := scanRows(db, "SYS_TABLES")
	if err != nil {
		return err
	}
	columnRows, err := scanRows(db, "SYS_COLUMNS")
	if err != nil {
		return err
	}
	constraintRows, err := scanRows(db, "SYS_COLUMN_CONSTRAINTS")
	if err != nil {
		return err
	}
	for _, tr := range tableRows {
		tableName := tr["TABLE_NAME"].String_()
		setID := tr["COLUMN_SET_ID"].UInt64()

		var cols []ColumnDef
		for _, cr := range columnRows {
			if cr["TABLE_NAME"].String_() != tableName || cr["COLUMN_SET_ID"].UInt64() != setID {
				continue
			}
			pos := int(cr["POSITION"].UInt64())
			if pos == 0 {
				continue // the master column is implicit
			}
			typ, ok := variant.TypeByName(cr["DATA_TYPE"].String_())
			if !ok {
				return NewError(CodeIndexCorruption, "SYS_COLUMNS: unknown data type %q for %s.%s",
					cr["DATA_TYPE"].String_(), tableName, cr["NAME"].String_())
			}
			cols = append(cols, ColumnDef{
				ID:       uint32(cr["COLUMN_ID"].UInt64()),
				Position: pos,
				Name:     cr["NAME"].String_(),
				Type:     typ,
				Nullable: cr["NULLABLE"].Bool(),
			})
		}
		sort.Slice(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })

		var defaults map[uint32]variant.Variant
		for _, kr := range constraintRows {
			if kr["TABLE_NAME"].String_() != tableName || kr["KIND"].String_() != "DEFAULT" {
				continue
			}
			colName := kr["COLUMN_NAME"].String_()
			for _, cd := range cols {
				if cd.Name != colName {
					continue
				}
				v, err := variant.ParseCanonical(cd.Type, kr["DEFINITION"].String_())
				if err != nil {
					return WrapError(CodeIndexCorruption, err, "SYS_COLUMN_CONSTRAINTS: bad DEFAULT for %s.%s", tableName, colName)
				}
				if defaults == nil {
					defaults = make(map[uint32]variant.Variant)
				}
				defaults[cd.ID] = v
				break
			}
		}
		db.schemaMu.Lock()
		db.schemas[tableName] = savedSchema{
			setID:    setID,
			cols:     cols,
			defaults: defaults,
			nextTRID: tr["NEXT_TRID"].UInt64(),
		}
		db.schemaMu.Unlock()
	}
	return nil
}
