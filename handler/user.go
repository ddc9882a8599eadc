package handler

import (
	"encoding/hex"

	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// executeCreateUser registers req.UserName and mirrors it into
// SYS.SYS_USERS so the CLI dump tool can reconstruct `CREATE USER` from
// the catalog alone.
func (h *Handler) executeCreateUser(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	u, err := h.Instance.CreateUser(req.UserName, req.IsSuperuser, req.Password)
	if err != nil {
		return nil, err
	}
	sysDB, sysTbl, err := h.sysTable("SYS_USERS")
	if err != nil {
		return nil, err
	}
	defer h.releaseSys(sysDB)
	if _, err := sysRow(sysTbl, sysDB.NextTxnID(), h.UserID, map[string]variant.Variant{
		"USER_ID":       variant.NewUInt64(u.ID),
		"NAME":          variant.NewString(u.Name),
		"IS_SUPERUSER":  variant.NewBool(u.IsSuperuser),
		"PASSWORD_HASH": variant.NewString(string(u.PasswordHash())),
	}); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

func (h *Handler) executeDropUser(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	if err := h.Instance.DropUser(req.UserName); err != nil {
		return nil, err
	}
	sysDB, sysTbl, err := h.sysTable("SYS_USERS")
	if err != nil {
		return nil, err
	}
	defer h.releaseSys(sysDB)
	if _, err := deleteSysRowsWhere(sysTbl, h.UserID, sysDB.NextTxnID, func(row map[string]variant.Variant) bool {
		return eqString(row, "NAME", req.UserName)
	}); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

// executeAlterUser supports changing the password and/or the superuser
// flag; req.Password empty means "leave unchanged".
func (h *Handler) executeAlterUser(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	u, err := h.Instance.User(req.UserName)
	if err != nil {
		return nil, err
	}
	if req.Password != "" {
		if err := u.SetPassword(req.Password); err != nil {
			return nil, err
		}
	}
	u.SetSuperuser(req.IsSuperuser)
	sysDB, sysTbl, err := h.sysTable("SYS_USERS")
	if err != nil {
		return nil, err
	}
	defer h.releaseSys(sysDB)
	if _, err := deleteSysRowsWhere(sysTbl, h.UserID, sysDB.NextTxnID, func(row map[string]variant.Variant) bool {
		return eqString(row, "NAME", u.Name)
	}); err != nil {
		return nil, err
	}
	if _, err := sysRow(sysTbl, sysDB.NextTxnID(), h.UserID, map[string]variant.Variant{
		"USER_ID":       variant.NewUInt64(u.ID),
		"NAME":          variant.NewString(u.Name),
		"IS_SUPERUSER":  variant.NewBool(u.IsSuperuser),
		"PASSWORD_HASH": variant.NewString(string(u.PasswordHash())),
	}); err != nil {
		return nil, err
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}

// executeUserAccessKey handles both KindAddUserAccessKey (mint a fresh
// key, returned once as GeneratedSecret) and KindDropUserAccessKey
// (invalidate the current key by rotating to one the caller never sees).
func (h *Handler) executeUserAccessKey(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	u, err := h.Instance.User(req.UserName)
	if err != nil {
		return nil, err
	}
	if err := u.ResetAccessKey(); err != nil {
		return nil, err
	}
	resp := simpleResponse(requestID, responseID, responseCount, 1)
	if req.Kind == KindAddUserAccessKey {
		resp.GeneratedSecret = hex.EncodeToString(u.AccessKey())
	}
	return resp, nil
}

// executeUserToken handles both KindAddUserToken (mint a fresh session
// token) and KindDropUserToken (revoke the current one).
func (h *Handler) executeUserToken(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	u, err := h.Instance.User(req.UserName)
	if err != nil {
		return nil, err
	}
	resp := simpleResponse(requestID, responseID, responseCount, 1)
	if req.Kind == KindDropUserToken {
		u.RevokeToken()
		return resp, nil
	}
	token, err := u.GenerateToken()
	if err != nil {
		return nil, err
	}
	resp.GeneratedSecret = token
	return resp, nil
}

func (h *Handler) executeCheckUserToken(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	u, err := h.Instance.User(req.UserName)
	if err != nil {
		return nil, err
	}
	if !u.CheckToken(req.Token) {
		return nil, storage.NewError(storage.CodePermissionDenied, "invalid session token for user %s", req.UserName)
	}
	return simpleResponse(requestID, responseID, responseCount, 1), nil
}
