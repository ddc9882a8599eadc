// Package handler implements the request dispatcher: one Handler per
// connection, holding the instance, the current user id, and the current
// database name; the output stream a response and its row stream are
// written to is passed to each Execute call. Execute is the single entry point every request kind
// — DDL, DML, DQL, TCL, user/permission management, and REST — flows
// through, fanned out to one execute method per request kind.
package handler

import (
	"github.com/basestored/core/expr"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// Kind tags a Request the way expr's wire tags tag a node: exhaustively,
// one value per dispatchable operation the front-end can originate.
type Kind int

const (
	KindCreateDatabase Kind = iota
	KindDropDatabase
	KindAlterDatabase
	KindCreateTable
	KindDropTable
	KindRenameTable
	KindAlterTable
	KindAddColumn
	KindDropColumn
	KindRenameColumn
	KindAlterColumn
	KindCreateIndex
	KindDropIndex
	KindAttachDatabase
	KindDetachDatabase
	KindUseDatabase

	KindInsert
	KindUpdate
	KindDelete

	KindSelect
	KindShowDatabases
	KindShowTables
	KindShowPermissions
	KindDescribeTable

	KindBegin
	KindCommit
	KindRollback
	KindSavepoint
	KindRelease

	KindCreateUser
	KindDropUser
	KindAlterUser
	KindAddUserAccessKey
	KindDropUserAccessKey
	KindAddUserToken
	KindDropUserToken
	KindCheckUserToken

	KindGrantPermission
	KindRevokePermission

	KindRestGetDatabases
	KindRestGetTables
	KindRestGetAllRows
	KindRestGetRow
	KindRestPostRows
	KindRestPatchRow
	KindRestDeleteRow
	KindRestQuery
)

// ColumnSpec names one column in a CREATE TABLE or ADD COLUMN request.
type ColumnSpec struct {
	Name     string
	Type     variant.Type
	Nullable bool
	Default  variant.Variant // Null means "no default"
}

// TableRef is one FROM-clause entry: a table name and its binding
// alias (equal to Table when the query supplies no explicit alias).
type TableRef struct {
	Database string // empty means the request/current database
	Table    string
	Alias    string
}

// ResultColumn is one entry of a SELECT's result list. Expr is set for
// an ordinary expression; Star is set instead for a bare `*` or `t.*`
// entry, expanded by Handler.executeSelect into column references
// before the output schema is built.
type ResultColumn struct {
	Expr  expr.Node
	Alias string
	Star  *expr.AllColumns
}

// RowsetFormat selects the rowset writer SELECT/REST opens.
type RowsetFormat int

const (
	FormatBinary RowsetFormat = iota
	FormatJSON
)

// Request is every request kind the handler accepts, as one flat
// tagged struct rather than one type per Kind — the fields a given
// Kind doesn't use are simply left zero, mirroring how the wire
// DatabaseEngineRequest body is one flat field sequence that
// DecodeRequest reads for every Kind.
type Request struct {
	Kind Kind

	Database string
	Table    string
	NewName  string

	Columns    []ColumnSpec
	ColumnName string

	IndexName    string
	IndexColumns []string

	// NextTRID carries ALTER TABLE ... SET NEXT_TRID's operand, used when
	// replaying a dump to resume the TRID generator past existing rows.
	NextTRID uint64

	CipherID string

	From          []TableRef
	ResultColumns []ResultColumn
	Where         expr.Node
	Limit         expr.Node
	Offset        expr.Node
	Format        RowsetFormat

	InsertColumns []string
	InsertRows    []map[int]variant.Variant

	TRID          uint64
	UpdateColumns []string
	UpdateValues  []variant.Variant

	UserName    string
	Password    string
	IsSuperuser bool
	KeyName     string
	Token       string

	GrantUserName string
	ObjectType    storage.ObjectType
	Privileges    storage.Privilege
	GrantOption   storage.Privilege
}
