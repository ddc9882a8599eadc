package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/basestored/core/cache"
	"github.com/basestored/core/cipher"
	"github.com/basestored/core/config"
	"github.com/basestored/core/stream"
)

// Instance is the top-level object a running server holds: it owns every
// database, user, and permission grant, and the four capacity-bounded
// caches (users, databases, tables, blocks) sitting in front of them. The
// cipher registry, options, and logger are explicit constructor arguments
// rather than process-wide globals.
type Instance struct {
	opts     config.Options
	ciphers  *cipher.Registry
	log      *slog.Logger

	// shuttingDown feeds the exit-aware errno checker every file stream in
	// this instance uses: once set, an EINTR delivered to a blocked read or
	// write is terminal instead of retried, so handler threads unwind
	// promptly at shutdown.
	shuttingDown atomic.Bool
	checker      stream.ErrnoChecker

	lockFile *os.File // advisory flock guarding the data directory

	usersMu sync.RWMutex
	users   *cache.Cache[string, *User]
	nextUID atomic.Uint64

	permissions *PermissionTable

	dbMu sync.RWMutex
	dbs  *cache.Cache[string, *Database]
}

// NewInstance validates opts, prepares the data directory, and wires the
// four caches with their domain-specific eviction policies.
func NewInstance(opts config.Options, ciphers *cipher.Registry, log *slog.Logger) (*Instance, error) {
	if err := opts.Validate(); err != nil {
		return nil, NewError(CodeValueOutOfRange, "%s", err)
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, WrapError(CodeIOBase, err, "create data directory %s", opts.DataDir)
	}
	if log == nil {
		log = slog.Default()
	}
	inst := &Instance{opts: opts, ciphers: ciphers, log: log, permissions: NewPermissionTable()}
	inst.checker = stream.NewExitAwareErrnoChecker(&inst.shuttingDown)
	inst.users = cache.New[string, *User](opts.UserCacheSize, cache.NopHooks[string, *User]{})
	inst.dbs = cache.New[string, *Database](opts.DatabaseCacheSize, &databaseCacheHooks{inst: inst})

	lockFile, err := os.OpenFile(filepath.Join(opts.DataDir, ".lock"), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, WrapError(CodeIOBase, err, "open data directory lock file")
	}
	if err := stream.LockExclusive(lockFile); err != nil {
		lockFile.Close()
		return nil, WrapError(CodeIOBase, err, "data directory %s is in use by another process", opts.DataDir)
	}
	inst.lockFile = lockFile

	noneCipher, err := ciphers.Lookup("none")
	if err != nil {
		return nil, WrapError(CodeInvariantViolated, err, "bootstrap cipher registry")
	}
	sysDB, err := openDatabase(opts.DataDir, SystemDatabaseName, "none", nil, noneCipher, opts.TableCacheSize, inst.checker)
	if err != nil {
		return nil, err
	}
	inst.dbs.Emplace(SystemDatabaseName, sysDB, true)
	if err := inst.loadCatalog(sysDB); err != nil {
		return nil, err
	}
	return inst, nil
}

// openDB resolves cipherID, derives the database's block cipher key from
// keySeed, and opens the on-disk database. Shared by CreateDatabase and
// the catalog bootstrap path.
func (inst *Instance) openDB(name, cipherID string, keySeed []byte) (*Database, error) {
	c, err := inst.ciphers.Lookup(cipherID)
	if err != nil {
		return nil, NewError(CodeValueOutOfRange, "%s", err)
	}
	var key []byte
	if c.KeyLen() > 0 {
		key, err = cipher.DeriveKey(keySeed, c.KeyLen(), name)
		if err != nil {
			return nil, WrapError(CodeInvariantViolated, err, "derive key for database %s", name)
		}
	}
	db, err := openDatabase(inst.opts.DataDir, name, cipherID, keySeed, c, inst.opts.TableCacheSize, inst.checker)
	if err != nil {
		return nil, err
	}
	db.cipherKey = key
	return db, nil
}

// databaseCacheHooks implements the database cache's eviction policy: a
// database cannot be evicted while its use-count is nonzero; last-chance
// cleanup sweeps zombie entries with a stuck use-count before giving up.
type databaseCacheHooks struct {
	inst *Instance
}

func (h *databaseCacheHooks) CanEvict(name string, db *Database) bool {
	return name != SystemDatabaseName && db.useCount.Load() == 0
}

func (h *databaseCacheHooks) OnEvict(_ string, db *Database, _ bool) {
	_ = db.Flush()
	db.Close()
}

// OnLastChanceCleanup clamps any use-count that went negative back to
// zero — the only way a legitimate use-count can get stuck — and retries
// the scan once. A use-count that is positive and correct is never swept.
func (h *databaseCacheHooks) OnLastChanceCleanup() bool {
	swept := false
	h.inst.dbs.ForwardEach(func(_ string, db *Database) bool {
		if db.useCount.Load() < 0 {
			db.useCount.Store(0)
			swept = true
		}
		return true
	})
	return swept
}

// CreateUser registers a new user with a generated id.
func (inst *Instance) CreateUser(name string, superuser bool, password string) (*User, error) {
	inst.usersMu.Lock()
	defer inst.usersMu.Unlock()
	if _, ok := inst.users.Peek(name); ok {
		return nil, NewError(CodeDuplicateName, "user %q already exists", name)
	}
	id := inst.nextUID.Add(1)
	u, err := NewUser(id, name, superuser, password)
	if err != nil {
		return nil, err
	}
	if !inst.users.Emplace(name, u, true) {
		return nil, NewError(CodeInvariantViolated, "user cache full: cannot admit %s", name)
	}
	return u, nil
}

func (inst *Instance) User(name string) (*User, error) {
	inst.usersMu.RLock()
	defer inst.usersMu.RUnlock()
	u, ok := inst.users.Get(name)
	if !ok {
		return nil, NewError(CodeSchemaNotFound, "user %q does not exist", name)
	}
	return u, nil
}

func (inst *Instance) DropUser(name string) error {
	inst.usersMu.Lock()
	defer inst.usersMu.Unlock()
	if !inst.users.Erase(name) {
		return NewError(CodeSchemaNotFound, "user %q does not exist", name)
	}
	return nil
}

func (inst *Instance) Permissions() *PermissionTable { return inst.permissions }

// CreateDatabase creates and registers a new database with its own cipher
// identity and key seed.
func (inst *Instance) CreateDatabase(name, cipherID string) (*Database, error) {
	if name == SystemDatabaseName {
		return nil, NewError(CodePermissionDenied, "database name %q is reserved", name)
	}
	c, err := inst.ciphers.Lookup(cipherID)
	if err != nil {
		return nil, NewError(CodeValueOutOfRange, "%s", err)
	}
	inst.dbMu.Lock()
	defer inst.dbMu.Unlock()
	if _, ok := inst.dbs.Peek(name); ok {
		return nil, NewError(CodeDuplicateName, "database %q already exists", name)
	}
	var keySeed []byte
	if c.KeyLen() > 0 {
		keySeed, err = cipher.NewKeySeed()
		if err != nil {
			return nil, WrapError(CodeInvariantViolated, err, "generate key seed for database %s", name)
		}
	}
	db, err := inst.openDB(name, cipherID, keySeed)
	if err != nil {
		return nil, err
	}
	if !inst.dbs.Emplace(name, db, true) {
		return nil, NewError(CodeInvariantViolated, "database cache full: cannot admit %s", name)
	}
	return db, nil
}

// Database looks up an existing database, pinning it (incrementing its
// use-count) for the duration the caller holds it; ReleaseDatabase must be
// called exactly once per successful Database call.
func (inst *Instance) Database(name string) (*Database, error) {
	inst.dbMu.RLock()
	db, ok := inst.dbs.Get(name)
	inst.dbMu.RUnlock()
	if !ok {
		return nil, NewError(CodeSchemaNotFound, "database %q does not exist", name)
	}
	db.useCount.Add(1)
	return db, nil
}

// ReleaseDatabase unpins a database obtained from Database.
func (inst *Instance) ReleaseDatabase(db *Database) {
	db.useCount.Add(-1)
}

// DropDatabase removes name, refusing the reserved system database and any
// database still in use.
func (inst *Instance) DropDatabase(name string) error {
	if name == SystemDatabaseName {
		return NewError(CodePermissionDenied, "system database cannot be dropped")
	}
	inst.dbMu.Lock()
	defer inst.dbMu.Unlock()
	db, ok := inst.dbs.Peek(name)
	if !ok {
		return NewError(CodeSchemaNotFound, "database %q does not exist", name)
	}
	if db.useCount.Load() != 0 {
		return NewError(CodeInvariantViolated, "database %q is in use", name)
	}
	inst.dbs.Erase(name)
	return os.RemoveAll(filepath.Join(inst.opts.DataDir, name))
}

func (inst *Instance) Logger() *slog.Logger { return inst.log }

func (inst *Instance) Close() {
	inst.shuttingDown.Store(true)
	inst.dbMu.Lock()
	defer inst.dbMu.Unlock()
	inst.dbs.Clear()
	if inst.lockFile != nil {
		_ = stream.Unlock(inst.lockFile)
		_ = inst.lockFile.Close()
		inst.lockFile = nil
	}
}
