package handler

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// MessageType is the varuint32 tag preceding every framed protocol
// message: Command, ServerResponse, DatabaseEngineRequest, and
// DatabaseEngineResponse, plus auth/session messages the core consumes
// but never originates.
type MessageType uint32

const (
	MessageCommand MessageType = iota + 1
	MessageServerResponse
	MessageDatabaseEngineRequest
	MessageDatabaseEngineResponse
)

// ErrorMessage is one (code, text) pair carried in a response header.
type ErrorMessage struct {
	Code storage.Code
	Text string
}

// ColumnDescription names one column of a SELECT's output schema.
type ColumnDescription struct {
	Name     string
	Type     variant.Type
	Nullable bool
}

// Response is the header that precedes a SELECT/DML/DDL's row stream:
// request/response identity, affected-row count, any error messages,
// the output schema (SELECT only), and — only when the request
// originated over REST — an HTTP status code.
type Response struct {
	RequestID        uint64
	ResponseID       uint32
	ResponseCount    uint32
	AffectedRowCount uint64
	HasAffectedRows  bool
	Messages         []ErrorMessage
	Columns          []ColumnDescription
	RESTStatusCode   int
	HasRESTStatus    bool
	// GeneratedTRIDs lists the row ids an INSERT produced, in request
	// order — the REST POST payload's "trids" array and the binary
	// protocol equivalent both read from this field.
	GeneratedTRIDs []uint64
	// AlreadyWritten marks a response whose header (and, for rowset
	// kinds, row stream) was already written directly to the output
	// stream by its execute method — Execute must not write it again.
	AlreadyWritten bool
	// GeneratedSecret carries the one-time plaintext of a freshly issued
	// access key or session token — set only by the user-management
	// operations that mint one, and never persisted or logged.
	GeneratedSecret string
}

// WriteTo frames r as a MessageDatabaseEngineResponse: a varuint32 type
// tag, a varuint32 body length, then the body. The body itself is a
// flat field sequence rather than a generic TLV scheme, matching the
// fixed-message-shape, varint-framed style of the wire protocol.
func (r *Response) WriteTo(w codec.CodedOutputStream) error {
	body, err := r.marshalBody()
	if err != nil {
		return err
	}
	if err := codec.WriteVarint32(w, uint32(MessageDatabaseEngineResponse)); err != nil {
		return err
	}
	if err := codec.WriteVarint32(w, uint32(len(body))); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func (r *Response) marshalBody() ([]byte, error) {
	var buf []byte
	buf = codec.AppendVarint64(buf, r.RequestID)
	buf = codec.AppendVarint32(buf, r.ResponseID)
	buf = codec.AppendVarint32(buf, r.ResponseCount)
	if r.HasAffectedRows {
		buf = append(buf, 1)
		buf = codec.AppendVarint64(buf, r.AffectedRowCount)
	} else {
		buf = append(buf, 0)
	}
	buf = codec.AppendVarint32(buf, uint32(len(r.Messages)))
	for _, m := range r.Messages {
		buf = codec.AppendVarint32(buf, uint32(m.Code))
		buf = codec.AppendVarint32(buf, uint32(len(m.Text)))
		buf = append(buf, m.Text...)
	}
	buf = codec.AppendVarint32(buf, uint32(len(r.Columns)))
	for _, cd := range r.Columns {
		buf = codec.AppendVarint32(buf, uint32(len(cd.Name)))
		buf = append(buf, cd.Name...)
		buf = append(buf, byte(cd.Type))
		if cd.Nullable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	if r.HasRESTStatus {
		buf = append(buf, 1)
		buf = codec.AppendVarint32(buf, uint32(r.RESTStatusCode))
	} else {
		buf = append(buf, 0)
	}
	buf = codec.AppendVarint32(buf, uint32(len(r.GeneratedTRIDs)))
	for _, trid := range r.GeneratedTRIDs {
		buf = codec.AppendVarint64(buf, trid)
	}
	buf = codec.AppendVarint32(buf, uint32(len(r.GeneratedSecret)))
	buf = append(buf, r.GeneratedSecret...)
	return buf, nil
}

// errorResponse builds a single-error, no-rows response for a request
// that failed before any row was written, as opposed to a request that
// fails partway through streaming rows and must report AlreadyWritten.
func errorResponse(requestID uint64, responseID, responseCount uint32, err error) *Response {
	code := storage.CodeUserGeneric
	if se, ok := err.(*storage.Error); ok {
		code = se.Code
	}
	return &Response{
		RequestID:     requestID,
		ResponseID:    responseID,
		ResponseCount: responseCount,
		Messages:      []ErrorMessage{{Code: code, Text: err.Error()}},
	}
}
