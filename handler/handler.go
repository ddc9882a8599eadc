package handler

import (
	"log/slog"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
)

// Handler is one connection's dispatcher: the instance it executes
// against, the current user id, and the current database name (mutated
// by USE DATABASE). The output stream the response header and row stream
// are written to is passed to each Execute call. One Handler exists per
// connection; the
// front-end constructs a fresh one per accepted socket.
type Handler struct {
	Instance        *storage.Instance
	UserID          uint64
	IsSuperuser     bool
	CurrentDatabase string

	log *slog.Logger
}

func New(inst *storage.Instance) *Handler {
	return &Handler{Instance: inst, log: inst.Logger()}
}

// Execute is the single entry point every request kind flows through.
// requestID/responseID/responseCount identify this response frame
// within a (possibly streamed) sequence of responses for one request.
// The response header is always written; for request kinds that stream
// a rowset, the row stream follows on w until the terminating marker.
func (h *Handler) Execute(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) error {
	resp, rowsErr := h.dispatch(req, w, requestID, responseID, responseCount)
	if rowsErr != nil {
		h.logError(req, rowsErr)
		return errorResponse(requestID, responseID, responseCount, rowsErr).WriteTo(w)
	}
	if resp.AlreadyWritten {
		return nil
	}
	return resp.WriteTo(w)
}

// ExecuteREST runs req and hands back the Response directly rather than
// writing the binary wire header — the REST front door builds its HTTP
// body from RESTStatusCode/AffectedRowCount/GeneratedTRIDs itself. w is only consulted by the streaming (GET) Kinds; it is safe to
// pass nil for POST/PATCH/DELETE requests.
func (h *Handler) ExecuteREST(req *Request, w codec.CodedOutputStream) (*Response, error) {
	resp, err := h.dispatch(req, w, 0, 0, 1)
	if err != nil {
		h.logError(req, err)
		return nil, err
	}
	return resp, nil
}

func (h *Handler) logError(req *Request, err error) {
	se, ok := err.(*storage.Error)
	if !ok || !se.Code.IsInternalError() {
		return
	}
	h.log.Error("request failed", "kind", req.Kind, "database", req.Database, "table", req.Table, "code", se.Code, "error", err)
}

// dispatch fans out by Kind. Any Kind reaching the default case is a
// protocol error: the decoder only ever produces a known Kind, so an
// unrecognized value here means the wire bytes themselves are bad.
func (h *Handler) dispatch(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	switch req.Kind {
	case KindCreateDatabase:
		return h.executeCreateDatabase(req, requestID, responseID, responseCount)
	case KindDropDatabase:
		return h.executeDropDatabase(req, requestID, responseID, responseCount)
	case KindAlterDatabase:
		return h.executeAlterDatabase(req, requestID, responseID, responseCount)
	case KindCreateTable:
		return h.executeCreateTable(req, requestID, responseID, responseCount)
	case KindDropTable:
		return h.executeDropTable(req, requestID, responseID, responseCount)
	case KindRenameTable:
		return h.executeRenameTable(req, requestID, responseID, responseCount)
	case KindAlterTable:
		return h.executeAlterTable(req, requestID, responseID, responseCount)
	case KindAddColumn:
		return h.executeAddColumn(req, requestID, responseID, responseCount)
	case KindDropColumn:
		return h.executeDropColumn(req, requestID, responseID, responseCount)
	case KindRenameColumn:
		return h.executeRenameColumn(req, requestID, responseID, responseCount)
	case KindAlterColumn:
		return h.executeAlterColumn(req, requestID, responseID, responseCount)
	case KindCreateIndex:
		return h.executeCreateIndex(req, requestID, responseID, responseCount)
	case KindDropIndex:
		return h.executeDropIndex(req, requestID, responseID, responseCount)
	case KindAttachDatabase:
		return h.executeAttachDatabase(req, requestID, responseID, responseCount)
	case KindDetachDatabase:
		return h.executeDetachDatabase(req, requestID, responseID, responseCount)
	case KindUseDatabase:
		return h.executeUseDatabase(req, requestID, responseID, responseCount)

	case KindInsert:
		return h.executeInsert(req, requestID, responseID, responseCount)
	case KindUpdate:
		return h.executeUpdate(req, requestID, responseID, responseCount)
	case KindDelete:
		return h.executeDelete(req, requestID, responseID, responseCount)

	case KindSelect:
		return h.executeSelect(req, w, requestID, responseID, responseCount)
	case KindShowDatabases:
		return h.executeShowDatabases(req, w, requestID, responseID, responseCount)
	case KindShowTables:
		return h.executeShowTables(req, w, requestID, responseID, responseCount)
	case KindShowPermissions:
		return h.executeShowPermissions(req, w, requestID, responseID, responseCount)
	case KindDescribeTable:
		return h.executeDescribeTable(req, w, requestID, responseID, responseCount)

	case KindBegin, KindCommit, KindRollback, KindSavepoint, KindRelease:
		return nil, storage.NotImplemented(tclName(req.Kind))

	case KindCreateUser:
		return h.executeCreateUser(req, requestID, responseID, responseCount)
	case KindDropUser:
		return h.executeDropUser(req, requestID, responseID, responseCount)
	case KindAlterUser:
		return h.executeAlterUser(req, requestID, responseID, responseCount)
	case KindAddUserAccessKey, KindDropUserAccessKey:
		return h.executeUserAccessKey(req, requestID, responseID, responseCount)
	case KindAddUserToken, KindDropUserToken:
		return h.executeUserToken(req, requestID, responseID, responseCount)
	case KindCheckUserToken:
		return h.executeCheckUserToken(req, requestID, responseID, responseCount)

	case KindGrantPermission:
		return h.executeGrantPermission(req, requestID, responseID, responseCount)
	case KindRevokePermission:
		return h.executeRevokePermission(req, requestID, responseID, responseCount)

	case KindRestGetDatabases:
		return h.executeShowDatabases(req, w, requestID, responseID, responseCount)
	case KindRestGetTables:
		return h.executeShowTables(req, w, requestID, responseID, responseCount)
	case KindRestGetAllRows:
		return h.executeRestGetRows(req, w, requestID, responseID, responseCount)
	case KindRestGetRow:
		return h.executeRestGetRow(req, w, requestID, responseID, responseCount)
	case KindRestPostRows:
		return h.executeRestPostRows(req, requestID, responseID, responseCount)
	case KindRestPatchRow:
		return h.executeRestPatchRow(req, requestID, responseID, responseCount)
	case KindRestDeleteRow:
		return h.executeRestDeleteRow(req, requestID, responseID, responseCount)
	case KindRestQuery:
		return h.executeSelect(req, w, requestID, responseID, responseCount)

	default:
		return nil, storage.NewError(storage.CodeSyntax, "unrecognized request kind %d", req.Kind)
	}
}

func tclName(k Kind) string {
	switch k {
	case KindBegin:
		return "BEGIN"
	case KindCommit:
		return "COMMIT"
	case KindRollback:
		return "ROLLBACK"
	case KindSavepoint:
		return "SAVEPOINT"
	case KindRelease:
		return "RELEASE"
	default:
		return "transaction control"
	}
}

// requirePermission enforces the permission-check contract for a row- or
// schema-touching operation: superuser bypasses, otherwise the user must
// hold every bit of want on the (database, object) key, with zero ids as
// wildcards.
func (h *Handler) requirePermission(database, table string, objType storage.ObjectType, want storage.Privilege) error {
	key := storage.PermissionKey{ObjectType: objType}
	if database != "" {
		key.DatabaseID = storage.NameID(database)
	}
	if objType != storage.ObjectDatabase && table != "" {
		key.ObjectID = storage.NameID(database + "." + table)
	}
	if !h.Instance.Permissions().Check(h.UserID, h.IsSuperuser, key, want) {
		target := database
		if table != "" {
			target = database + "." + table
		}
		return storage.NewError(storage.CodePermissionDenied, "permission denied on %s", target)
	}
	return nil
}

// resolveDatabase picks req.Database, falling back to h.CurrentDatabase,
// and pins it via Instance.Database — callers must release it.
func (h *Handler) resolveDatabase(req *Request) (*storage.Database, error) {
	name := req.Database
	if name == "" {
		name = h.CurrentDatabase
	}
	if name == "" {
		return nil, storage.NewError(storage.CodeSyntax, "no database selected")
	}
	return h.Instance.Database(name)
}

func simpleResponse(requestID uint64, responseID, responseCount uint32, affected uint64) *Response {
	return &Response{
		RequestID:        requestID,
		ResponseID:       responseID,
		ResponseCount:    responseCount,
		AffectedRowCount: affected,
		HasAffectedRows:  true,
	}
}
