package handler

import (
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// permissionKey builds the PermissionKey a GRANT/REVOKE request targets:
// a zero DatabaseID/ObjectID is the PermissionTable's wildcard, so an
// empty req.Database or req.Table naturally grants "every database" or
// "every object of this type".
func permissionKey(req *Request) storage.PermissionKey {
	key := storage.PermissionKey{ObjectType: req.ObjectType}
	if req.Database != "" {
		key.DatabaseID = storage.NameID(req.Database)
	}
	if req.ObjectType != storage.ObjectDatabase && req.Table != "" {
		key.ObjectID = storage.NameID(req.Database + "." + req.Table)
	}
	return key
}

func (h *Handler) executeGrantPermission(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	grantee, err := h.Instance.User(req.GrantUserName)
	if err != nil {
		return nil, err
	}
	key := permissionKey(req)
	perms := h.Instance.Permissions()
	if !perms.CanGrant(h.UserID, h.IsSuperuser, key, req.Privileges) {
		return nil, storage.NewError(storage.CodePermissionDenied, "user lacks grant option for the requested privileges")
	}
	perms.Grant(grantee.ID, key, req.Privileges, req.GrantOption)

	sysDB, sysTbl, err := h.sysTable("SYS_PERMISSIONS")
	if err != nil {
		return nil, err
	}
	defer h.releaseSys(sysDB)
	if _, err := sysRow(sysTbl, sysDB.NextTxnID(), h.UserID, map[string]variant.Variant{
		"DATABASE_NAME": variant.NewString(req.Database),
		"OBJECT_TYPE":   variant.NewString(req.ObjectType.String()),
		"OBJECT_ID":     variant.NewUInt64(key.ObjectID),
		"USER_NAME":     variant.NewString(grantee.Name),
		"GRANTED":       variant.NewUInt32(uint32(req.Privileges)),
		"GRANT_OPTION":  variant.NewUInt32(uint32(req.GrantOption)),
	}); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) executeRevokePermission(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	grantee, err := h.Instance.User(req.GrantUserName)
	if err != nil {
		return nil, err
	}
	key := permissionKey(req)
	perms := h.Instance.Permissions()
	if !perms.CanGrant(h.UserID, h.IsSuperuser, key, req.Privileges) {
		return nil, storage.NewError(storage.CodePermissionDenied, "user lacks grant option for the requested privileges")
	}
	perms.Revoke(grantee.ID, key, req.Privileges)

	sysDB, sysTbl, err := h.sysTable("SYS_PERMISSIONS")
	if err != nil {
		return nil, err
	}
	defer h.releaseSys(sysDB)
	if _, err := deleteSysRowsWhere(sysTbl, h.UserID, sysDB.NextTxnID, func(row map[string]variant.Variant) bool {
		return eqString(row, "USER_NAME", grantee.Name) && eqString(row, "DATABASE_NAME", req.Database)
	}); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}
