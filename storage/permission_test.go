package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionGrantAndCheck(t *testing.T) {
	pt := NewPermissionTable()
	key := PermissionKey{DatabaseID: 1, ObjectType: ObjectTable, ObjectID: 7}

	assert.False(t, pt.Check(100, false, key, PrivSelect))

	pt.Grant(100, key, PrivSelect, 0)
	assert.True(t, pt.Check(100, false, key, PrivSelect))
	assert.False(t, pt.Check(100, false, key, PrivInsert))

	pt.Grant(100, key, PrivInsert, 0)
	assert.True(t, pt.Check(100, false, key, PrivSelect|PrivInsert))
}

func TestPermissionRevoke(t *testing.T) {
	pt := NewPermissionTable()
	key := PermissionKey{DatabaseID: 1, ObjectType: ObjectTable, ObjectID: 7}
	pt.Grant(100, key, PrivSelect|PrivInsert, 0)
	pt.Revoke(100, key, PrivInsert)
	assert.True(t, pt.Check(100, false, key, PrivSelect))
	assert.False(t, pt.Check(100, false, key, PrivInsert))
}

func TestPermissionWildcardDatabase(t *testing.T) {
	pt := NewPermissionTable()
	// DatabaseID 0 on the grant means "every database".
	wildcard := PermissionKey{DatabaseID: 0, ObjectType: ObjectTable, ObjectID: 7}
	pt.Grant(100, wildcard, PrivSelect, 0)

	specific := PermissionKey{DatabaseID: 42, ObjectType: ObjectTable, ObjectID: 7}
	assert.True(t, pt.Check(100, false, specific, PrivSelect))
}

func TestPermissionSuperuserBypassesEverything(t *testing.T) {
	pt := NewPermissionTable()
	key := PermissionKey{DatabaseID: 1, ObjectType: ObjectDatabase}
	assert.True(t, pt.Check(999, true, key, PrivAll))
	assert.True(t, pt.CanGrant(999, true, key, PrivAll))
}

func TestPermissionCanGrantTracksGrantOptionSeparately(t *testing.T) {
	pt := NewPermissionTable()
	key := PermissionKey{DatabaseID: 1, ObjectType: ObjectTable, ObjectID: 7}
	pt.Grant(100, key, PrivSelect, PrivSelect)

	assert.True(t, pt.Check(100, false, key, PrivSelect))
	assert.True(t, pt.CanGrant(100, false, key, PrivSelect))
	assert.False(t, pt.CanGrant(100, false, key, PrivInsert))
}
