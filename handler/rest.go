package handler

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/variant"
)

// executeRestGetRows streams every row of req.Table as the REST-JSON
// rowset — equivalent to `SELECT * FROM req.Table`.
func (h *Handler) executeRestGetRows(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	sel := &Request{
		Kind:     KindSelect,
		Database: req.Database,
		From:     []TableRef{{Table: req.Table}},
		Format:   FormatJSON,
	}
	return h.executeSelect(sel, w, requestID, responseID, responseCount)
}

// executeRestGetRow streams the single row identified by req.TRID, or an
// empty rowset if it doesn't exist (or was deleted concurrently).
func (h *Handler) executeRestGetRow(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	sel := &Request{
		Kind:     KindSelect,
		Database: req.Database,
		From:     []TableRef{{Table: req.Table}},
		Where:    eqFilter("TRID", variant.NewUInt64(req.TRID)),
		Format:   FormatJSON,
	}
	return h.executeSelect(sel, w, requestID, responseID, responseCount)
}

// executeRestPostRows inserts req.InsertRows and reports the result as
// an HTTP 201 carrying the generated TRIDs — the outer REST front-end
// reads RESTStatusCode/GeneratedTRIDs/AffectedRowCount to build the
// `{"status":201,"affectedRowCount":N,"trids":[...]}` body.
func (h *Handler) executeRestPostRows(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	resp, err := h.executeInsert(req, requestID, responseID, responseCount)
	if err != nil {
		return nil, err
	}
	resp.HasRESTStatus = true
	resp.RESTStatusCode = 201
	return resp, nil
}

// executeRestPatchRow updates the named columns of the row identified by
// req.TRID and reports an HTTP 200.
func (h *Handler) executeRestPatchRow(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	resp, err := h.executeUpdate(req, requestID, responseID, responseCount)
	if err != nil {
		return nil, err
	}
	resp.HasRESTStatus = true
	resp.RESTStatusCode = 200
	return resp, nil
}

// executeRestDeleteRow tombstones the row identified by req.TRID and
// reports an HTTP 200.
func (h *Handler) executeRestDeleteRow(req *Request, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	resp, err := h.executeDelete(req, requestID, responseID, responseCount)
	if err != nil {
		return nil, err
	}
	resp.HasRESTStatus = true
	resp.RESTStatusCode = 200
	return resp, nil
}
