package storage

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/basestored/core/cache"
	"github.com/basestored/core/stream"
	"github.com/basestored/core/variant"
)

// SystemDatabaseName is the reserved system database housing the
// instance-wide SYS_* catalog tree.
const SystemDatabaseName = "SYS"

// localSystemTableNames lists the system tables every database owns,
// tracking that database's own user tables/columns/constraints.
var localSystemTableNames = []string{
	"SYS_TABLES", "SYS_COLUMNS", "SYS_COLUMN_CONSTRAINTS",
}

// globalSystemTableNames lists the additional system tables only the
// reserved SYS database owns: the instance-wide database/user/permission
// catalogs that `SELECT * FROM SYS.SYS_DATABASES` and the CLI dump tool
// read.
var globalSystemTableNames = []string{
	"SYS_DATABASES", "SYS_USERS", "SYS_PERMISSIONS",
}

// systemTableNames is every system table name, local or global, used
// wherever a name just needs recognizing as "system" (Table lookup,
// DropTable guard, RenameTable guard, the TableNames filter).
var systemTableNames = append(append([]string{}, localSystemTableNames...), globalSystemTableNames...)

// sysColumnSpec is one column of a system table's fixed schema.
type sysColumnSpec struct {
	name string
	typ  variant.Type
}

var systemTableSchemas = map[string][]sysColumnSpec{
	"SYS_TABLES": {
		{"DATABASE_NAME", variant.TypeString}, {"TABLE_NAME", variant.TypeString},
		{"COLUMN_SET_ID", variant.TypeUInt64}, {"NEXT_TRID", variant.TypeUInt64},
	},
	"SYS_COLUMNS": {
		{"DATABASE_NAME", variant.TypeString}, {"TABLE_NAME", variant.TypeString},
		{"COLUMN_SET_ID", variant.TypeUInt64}, {"COLUMN_ID", variant.TypeUInt32},
		{"POSITION", variant.TypeUInt32},
		{"NAME", variant.TypeString}, {"DATA_TYPE", variant.TypeString},
		{"NULLABLE", variant.TypeBool},
	},
	"SYS_COLUMN_CONSTRAINTS": {
		{"DATABASE_NAME", variant.TypeString}, {"TABLE_NAME", variant.TypeString},
		{"COLUMN_SET_ID", variant.TypeUInt64}, {"COLUMN_NAME", variant.TypeString},
		{"KIND", variant.TypeString}, {"DEFINITION", variant.TypeString},
	},
	"SYS_DATABASES": {
		{"NAME", variant.TypeString}, {"CIPHER_ID", variant.TypeString},
		{"CIPHER_KEY_SEED", variant.TypeBinary}, {"NEXT_TRID", variant.TypeUInt64},
	},
	"SYS_USERS": {
		{"USER_ID", variant.TypeUInt64}, {"NAME", variant.TypeString},
		{"IS_SUPERUSER", variant.TypeBool}, {"PASSWORD_HASH", variant.TypeString},
	},
	"SYS_PERMISSIONS": {
		{"DATABASE_NAME", variant.TypeString}, {"OBJECT_TYPE", variant.TypeString},
		{"OBJECT_ID", variant.TypeUInt64}, {"USER_NAME", variant.TypeString},
		{"GRANTED", variant.TypeUInt32}, {"GRANT_OPTION", variant.TypeUInt32},
	},
}

// Database owns tables by name, a transaction-id generator, a cipher
// identity, and a fixed set of system tables.
type Database struct {
	Name            string
	CipherID        string
	CipherKeySeed   []byte
	dir             string

	cipher    Cipher
	cipherKey []byte
	checker   stream.ErrnoChecker

	mu     sync.RWMutex // protects tables map: writers (DDL) exclusive, readers shared
	tables *cache.Cache[string, *Table]

	// schemas keeps each known table's column set while the table itself
	// is out of the table cache, so an evicted table can be reopened with
	// its stable column ids and defaults intact. Guarded by its own mutex
	// because eviction hooks run while mu is already held.
	schemaMu sync.Mutex
	schemas  map[string]savedSchema

	nextTxnID atomic.Uint64
	useCount  atomic.Int32
}

// savedSchema is the catalog-equivalent snapshot of one table's current
// column set, stashed at eviction time and installed again on reopen.
type savedSchema struct {
	setID    uint64
	cols     []ColumnDef
	defaults map[uint32]variant.Variant
	nextTRID uint64
}

func openDatabase(dataDir, name, cipherID string, keySeed []byte, c Cipher, cacheCap int, checker stream.ErrnoChecker) (*Database, error) {
	dir := filepath.Join(dataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, WrapError(CodeIOBase, err, "create database dir %s", dir)
	}
	db := &Database{
		Name:          name,
		CipherID:      cipherID,
		CipherKeySeed: keySeed,
		dir:           dir,
		cipher:        c,
		checker:       checker,
		schemas:       make(map[string]savedSchema),
	}
	db.tables = cache.New[string, *Table](cacheCap, &tableCacheHooks{db: db})
	tableNames := localSystemTableNames
	if name == SystemDatabaseName {
		tableNames = append(append([]string{}, localSystemTableNames...), globalSystemTableNames...)
	}
	for _, sysName := range tableNames {
		t, err := db.openOrCreateTable(sysName)
		if err != nil {
			return nil, err
		}
		if err := ensureSystemColumns(t, sysName); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// ensureSystemColumns adds t's fixed schema the first time it is created
// (ColumnCount()==1 means only the master column exists yet); reopening an
// existing system table on restart is a no-op.
func ensureSystemColumns(t *Table, name string) error {
	if t.ColumnCount() > 1 {
		return nil
	}
	for _, c := range systemTableSchemas[name] {
		if _, err := t.AddColumn(c.name, c.typ, true, variant.Null); err != nil {
			return err
		}
	}
	return nil
}

// tableCacheHooks implements the table cache's eviction policy.
type tableCacheHooks struct {
	db *Database
}

func (h *tableCacheHooks) CanEvict(_ string, t *Table) bool {
	return t.useCount.Load() == 0
}

func (h *tableCacheHooks) OnEvict(_ string, t *Table, _ bool) {
	h.db.stashSchema(t)
	_ = t.Flush()
	_ = t.Close()
}

// stashSchema records t's current column set so the table can be
// reopened after eviction without consulting the catalog tables.
func (db *Database) stashSchema(t *Table) {
	set := t.CurrentSet()
	db.schemaMu.Lock()
	defer db.schemaMu.Unlock()
	db.schemas[t.Name] = savedSchema{
		setID:    set.ID,
		cols:     set.Columns,
		defaults: t.defaultsSnapshot(),
		nextTRID: t.NextTRID(),
	}
}

func (db *Database) savedSchemaFor(name string) (savedSchema, bool) {
	db.schemaMu.Lock()
	defer db.schemaMu.Unlock()
	ss, ok := db.schemas[name]
	return ss, ok
}

func (db *Database) dropSchema(name string) {
	db.schemaMu.Lock()
	defer db.schemaMu.Unlock()
	delete(db.schemas, name)
}

func (h *tableCacheHooks) OnLastChanceCleanup() bool { return false }

// NextTxnID returns the next monotonically increasing transaction id,
// assigned at the start of every row-modifying operation.
func (db *Database) NextTxnID() uint64 { return db.nextTxnID.Add(1) }

func (db *Database) openOrCreateTable(name string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables.Get(name); ok {
		return t, nil
	}
	t, err := openTable(db.dir, db.Name, name, db.cipher, db.cipherKey, db.checker)
	if err != nil {
		return nil, err
	}
	if !db.tables.Emplace(name, t, true) {
		return nil, NewError(CodeInvariantViolated, "table cache full: cannot admit %s.%s", db.Name, name)
	}
	return t, nil
}

// CreateTable creates a new, empty user table holding only its master
// column; user columns are added afterwards.
// Every user table's metadata is mirrored into SYS_TABLES / SYS_COLUMNS by
// the request handler's DDL path; storage itself only creates the on-disk
// table.
func (db *Database) CreateTable(name string) (*Table, error) {
	db.mu.RLock()
	_, exists := db.tables.Peek(name)
	db.mu.RUnlock()
	if !exists {
		_, exists = db.savedSchemaFor(name)
	}
	if exists {
		return nil, NewError(CodeDuplicateName, "table %s.%s already exists", db.Name, name)
	}
	return db.openOrCreateTable(name)
}

// Table looks up an existing table by name, shared-locking the table
// map. A table evicted from the table cache is reopened from its stashed
// schema transparently.
func (db *Database) Table(name string) (*Table, error) {
	if isSystemTable(name) {
		return db.openOrCreateTable(name)
	}
	db.mu.RLock()
	t, ok := db.tables.Get(name)
	db.mu.RUnlock()
	if ok {
		return t, nil
	}
	ss, known := db.savedSchemaFor(name)
	if !known {
		return nil, NewError(CodeSchemaNotFound, "table %s.%s does not exist", db.Name, name)
	}
	t, err := db.openOrCreateTable(name)
	if err != nil {
		return nil, err
	}
	t.RestoreColumnSet(ss.setID, ss.cols, ss.defaults)
	if ss.nextTRID > t.NextTRID() {
		if err := t.SetNextTRID(ss.nextTRID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func isSystemTable(name string) bool {
	for _, n := range systemTableNames {
		if n == name {
			return true
		}
	}
	return false
}

// DropTable removes name, refusing to drop a system table. The table may
// be resident in the table cache or known only from its stashed schema.
func (db *Database) DropTable(name string) error {
	if isSystemTable(name) {
		return NewError(CodePermissionDenied, "system table %s cannot be dropped", name)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	dir := filepath.Join(db.dir, name)
	if t, ok := db.tables.Peek(name); ok {
		if t.useCount.Load() != 0 {
			return NewError(CodeInvariantViolated, "table %s.%s is in use", db.Name, name)
		}
		dir = t.dir
		db.tables.Erase(name)
	} else if _, known := db.savedSchemaFor(name); !known {
		return NewError(CodeSchemaNotFound, "table %s.%s does not exist", db.Name, name)
	}
	db.dropSchema(name)
	return os.RemoveAll(dir)
}

// RenameTable renames a table, refusing system tables, and moves its
// on-disk directory so the name-keyed layout stays truthful.
func (db *Database) RenameTable(oldName, newName string) error {
	if isSystemTable(oldName) || isSystemTable(newName) {
		return NewError(CodePermissionDenied, "system tables cannot be renamed")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.tables.Peek(newName); exists {
		return NewError(CodeDuplicateName, "table %s.%s already exists", db.Name, newName)
	}
	if _, exists := db.savedSchemaFor(newName); exists {
		return NewError(CodeDuplicateName, "table %s.%s already exists", db.Name, newName)
	}
	newDir := filepath.Join(db.dir, newName)
	t, resident := db.tables.Peek(oldName)
	if !resident {
		ss, known := db.savedSchemaFor(oldName)
		if !known {
			return NewError(CodeSchemaNotFound, "table %s.%s does not exist", db.Name, oldName)
		}
		if err := os.Rename(filepath.Join(db.dir, oldName), newDir); err != nil {
			return WrapError(CodeIOBase, err, "rename table directory %s", oldName)
		}
		db.dropSchema(oldName)
		db.schemaMu.Lock()
		db.schemas[newName] = ss
		db.schemaMu.Unlock()
		return nil
	}
	if err := os.Rename(t.dir, newDir); err != nil {
		return WrapError(CodeIOBase, err, "rename table directory %s", oldName)
	}
	db.tables.Remove(oldName)
	db.dropSchema(oldName)
	t.Name = newName
	t.rebase(newDir)
	db.tables.Emplace(newName, t, true)
	return nil
}

// TableNames lists every user (non-system) table, cache-resident or not.
func (db *Database) TableNames() []string {
	seen := map[string]bool{}
	db.mu.RLock()
	db.tables.ForwardEach(func(name string, _ *Table) bool {
		if !isSystemTable(name) {
			seen[name] = true
		}
		return true
	})
	db.mu.RUnlock()
	db.schemaMu.Lock()
	for name := range db.schemas {
		if !isSystemTable(name) {
			seen[name] = true
		}
	}
	db.schemaMu.Unlock()
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Flush fsyncs every open table, for the end-of-DDL-statement fsync point.
func (db *Database) Flush() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var firstErr error
	db.tables.ForwardEach(func(_ string, t *Table) bool {
		if err := t.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

func (db *Database) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables.Clear()
}
