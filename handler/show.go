package handler

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/expr"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// eqFilter builds `column = value` for a SHOW/DESCRIBE query's implicit
// WHERE clause over a system catalog table.
func eqFilter(column string, value variant.Variant) expr.Node {
	return expr.NewComparison(expr.EqualOperator, expr.NewColumnRef("", column), expr.NewConstant(value))
}

func andFilter(left, right expr.Node) expr.Node {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return expr.NewLogicalBinary(expr.AndOperator, left, right)
}

// executeShowDatabases lists every row of SYS.SYS_DATABASES — SHOW
// DATABASES and the REST `/databases` endpoint share this.
func (h *Handler) executeShowDatabases(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	sel := &Request{
		Kind:     KindSelect,
		Database: storage.SystemDatabaseName,
		From:     []TableRef{{Table: "SYS_DATABASES"}},
		Format:   req.Format,
	}
	return h.executeSelect(sel, w, requestID, responseID, responseCount)
}

// executeShowTables lists SYS_TABLES rows for req.Database (or the
// current database) — SHOW TABLES and the REST `/tables` endpoint share
// this.
func (h *Handler) executeShowTables(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	dbName := req.Database
	if dbName == "" {
		dbName = h.CurrentDatabase
	}
	if dbName == "" {
		return nil, storage.NewError(storage.CodeSyntax, "no database selected")
	}
	sel := &Request{
		Kind:     KindSelect,
		Database: dbName,
		From:     []TableRef{{Table: "SYS_TABLES"}},
		Where:    eqFilter("DATABASE_NAME", variant.NewString(dbName)),
		Format:   req.Format,
	}
	return h.executeSelect(sel, w, requestID, responseID, responseCount)
}

// executeShowPermissions lists SYS.SYS_PERMISSIONS, optionally narrowed
// to req.UserName.
func (h *Handler) executeShowPermissions(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	sel := &Request{
		Kind:     KindSelect,
		Database: storage.SystemDatabaseName,
		From:     []TableRef{{Table: "SYS_PERMISSIONS"}},
		Format:   req.Format,
	}
	if req.UserName != "" {
		sel.Where = eqFilter("USER_NAME", variant.NewString(req.UserName))
	}
	return h.executeSelect(sel, w, requestID, responseID, responseCount)
}

// executeDescribeTable lists req.Table's columns from SYS_COLUMNS, in
// the database req.Database (or the current database) names.
func (h *Handler) executeDescribeTable(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	dbName := req.Database
	if dbName == "" {
		dbName = h.CurrentDatabase
	}
	if dbName == "" {
		return nil, storage.NewError(storage.CodeSyntax, "no database selected")
	}
	sel := &Request{
		Kind:     KindSelect,
		Database: dbName,
		From:     []TableRef{{Table: "SYS_COLUMNS"}},
		Where: andFilter(
			eqFilter("DATABASE_NAME", variant.NewString(dbName)),
			eqFilter("TABLE_NAME", variant.NewString(req.Table)),
		),
		Format: req.Format,
	}
	return h.executeSelect(sel, w, requestID, responseID, responseCount)
}
