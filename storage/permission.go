package storage

import "hash/fnv"

// ObjectType enumerates the kinds of objects a Permission can target.
type ObjectType int

const (
	ObjectDatabase ObjectType = iota
	ObjectTable
	ObjectColumn
)

func (t ObjectType) String() string {
	switch t {
	case ObjectDatabase:
		return "DATABASE"
	case ObjectTable:
		return "TABLE"
	case ObjectColumn:
		return "COLUMN"
	default:
		return "UNKNOWN"
	}
}

// ObjectTypeByName resolves the name String renders back to the
// ObjectType value, for SYS_PERMISSIONS rows that store the type by name.
func ObjectTypeByName(name string) (ObjectType, bool) {
	for _, t := range []ObjectType{ObjectDatabase, ObjectTable, ObjectColumn} {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

// NameID derives a stable fixed-width identifier for a database or table
// name from its FNV-1a hash. Databases and tables are named by string
// alone; PermissionKey wants a fixed-width id so a grant check is an
// integer compare per grant rather than a string compare.
func NameID(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// Privilege bits, combined into the granted/grant-option bitmasks a
// Permission carries.
type Privilege uint32

const (
	PrivSelect Privilege = 1 << iota
	PrivInsert
	PrivUpdate
	PrivDelete
	PrivCreate
	PrivDrop
	PrivAlter
	PrivAll = PrivSelect | PrivInsert | PrivUpdate | PrivDelete | PrivCreate | PrivDrop | PrivAlter
)

// PermissionKey identifies what a Permission governs: a zero DatabaseID is
// a wildcard ("in any database"); a zero ObjectID is a wildcard ("all
// objects of this type").
type PermissionKey struct {
	DatabaseID uint64
	ObjectType ObjectType
	ObjectID   uint64
}

// Permission maps a (user, key) pair to a granted privilege bitmask and a
// grant-option bitmask (privileges the user may in turn grant to others).
type Permission struct {
	Key         PermissionKey
	UserID      uint64
	Granted     Privilege
	GrantOption Privilege
}

// PermissionTable holds every Permission granted to a user, keyed by
// (user, key) so lookups can match wildcards without a linear scan of
// every grant in the system.
type PermissionTable struct {
	byUser map[uint64][]*Permission
}

func NewPermissionTable() *PermissionTable {
	return &PermissionTable{byUser: make(map[uint64][]*Permission)}
}

// Grant records a (possibly additive) permission for userID, merging into
// an existing entry for the same key if present.
func (pt *PermissionTable) Grant(userID uint64, key PermissionKey, granted, grantOption Privilege) {
	for _, p := range pt.byUser[userID] {
		if p.Key == key {
			p.Granted |= granted
			p.GrantOption |= grantOption
			return
		}
	}
	pt.byUser[userID] = append(pt.byUser[userID], &Permission{Key: key, UserID: userID, Granted: granted, GrantOption: grantOption})
}

// Revoke clears the named bits from any entry matching key for userID.
func (pt *PermissionTable) Revoke(userID uint64, key PermissionKey, revoked Privilege) {
	for _, p := range pt.byUser[userID] {
		if p.Key == key {
			p.Granted &^= revoked
			p.GrantOption &^= revoked
		}
	}
}

// Check reports whether userID holds every bit of want on key, honoring
// the wildcard rules on PermissionKey.DatabaseID/ObjectID. superuser
// always passes.
func (pt *PermissionTable) Check(userID uint64, superuser bool, key PermissionKey, want Privilege) bool {
	if superuser {
		return true
	}
	var have Privilege
	for _, p := range pt.byUser[userID] {
		if p.Key.ObjectType != key.ObjectType {
			continue
		}
		if p.Key.DatabaseID != 0 && p.Key.DatabaseID != key.DatabaseID {
			continue
		}
		if p.Key.ObjectID != 0 && p.Key.ObjectID != key.ObjectID {
			continue
		}
		have |= p.Granted
	}
	return have&want == want
}

// CanGrant reports whether userID may grant want on key to someone else.
func (pt *PermissionTable) CanGrant(userID uint64, superuser bool, key PermissionKey, want Privilege) bool {
	if superuser {
		return true
	}
	var have Privilege
	for _, p := range pt.byUser[userID] {
		if p.Key.ObjectType != key.ObjectType {
			continue
		}
		if p.Key.DatabaseID != 0 && p.Key.DatabaseID != key.DatabaseID {
			continue
		}
		if p.Key.ObjectID != 0 && p.Key.ObjectID != key.ObjectID {
			continue
		}
		have |= p.GrantOption
	}
	return have&want == want
}
