package handler

import (
	"io"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/jsonstream"
	"github.com/basestored/core/variant"
)

// RowsetWriter emits a SELECT's materialized rows, one at a time, and a
// terminating marker once the rowset is exhausted. WriteRow receives
// exactly len(schema) values (schema fixed at Open time); both concrete
// writers are pluggable behind the same interface.
type RowsetWriter interface {
	WriteRow(values []variant.Variant) error
	Close() error
}

// BinaryRowsetWriter implements the wire protocol's row format: a
// varint64 row length, a null-bitmask (one bit per nullable column,
// omitted entirely if no column in the schema is nullable), then each
// non-null value's codec payload with no per-value type tag (the
// reader already knows every column's type from the schema preamble).
// A varint64 zero row-length is the end-of-rowset marker.
type BinaryRowsetWriter struct {
	w      codec.CodedOutputStream
	schema []ColumnDescription
}

func NewBinaryRowsetWriter(w codec.CodedOutputStream, schema []ColumnDescription) *BinaryRowsetWriter {
	return &BinaryRowsetWriter{w: w, schema: schema}
}

func (rw *BinaryRowsetWriter) hasNullable() bool {
	for _, c := range rw.schema {
		if c.Nullable {
			return true
		}
	}
	return false
}

func (rw *BinaryRowsetWriter) WriteRow(values []variant.Variant) error {
	var body []byte
	if rw.hasNullable() {
		var nullable []int
		for i, c := range rw.schema {
			if c.Nullable {
				nullable = append(nullable, i)
			}
		}
		mask := make([]byte, (len(nullable)+7)/8)
		for bit, i := range nullable {
			if i < len(values) && values[i].IsNull() {
				mask[bit/8] |= 1 << uint(bit%8)
			}
		}
		body = append(body, mask...)
	}
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		size, err := codec.SerializedSize(v)
		if err != nil {
			return err
		}
		buf := make([]byte, 0, size)
		w := &appendWriter{buf: buf}
		if err := codec.Write(w, v); err != nil {
			return err
		}
		body = append(body, w.buf...)
	}
	if err := codec.WriteVarint64(rw.w, uint64(len(body))); err != nil {
		return err
	}
	_, err := rw.w.Write(body)
	return err
}

func (rw *BinaryRowsetWriter) Close() error {
	return codec.WriteVarint64(rw.w, 0)
}

// appendWriter is the minimal io.Writer codec.Write needs to build a
// value's payload into a pre-sized slice before it's length-prefixed
// into the row body.
type appendWriter struct{ buf []byte }

func (w *appendWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// JSONRowsetWriter implements the REST-JSON rowset: a top-level
// `{"status":<code>,"rows":[...]}` object, each row an object keyed by
// column name. LOBs stream as escaped strings (CLOB) or lowercase-hex
// (BLOB) via the jsonstream Writer's chunked helpers rather than being
// materialized whole.
type JSONRowsetWriter struct {
	jw       *jsonstream.Writer
	schema   []ColumnDescription
	rowCount int
}

func NewJSONRowsetWriter(jw *jsonstream.Writer, schema []ColumnDescription, statusCode int) (*JSONRowsetWriter, error) {
	rw := &JSONRowsetWriter{jw: jw, schema: schema}
	if err := jw.BeginObject(); err != nil {
		return nil, err
	}
	if err := jw.FieldName("status"); err != nil {
		return nil, err
	}
	if err := jw.Int(int64(statusCode)); err != nil {
		return nil, err
	}
	if err := jw.FieldName("rows"); err != nil {
		return nil, err
	}
	if err := jw.BeginArray(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *JSONRowsetWriter) WriteRow(values []variant.Variant) error {
	if err := rw.jw.BeginObject(); err != nil {
		return err
	}
	for i, v := range values {
		if err := rw.jw.FieldName(rw.schema[i].Name); err != nil {
			return err
		}
		if err := writeJSONValue(rw.jw, v); err != nil {
			return err
		}
	}
	if err := rw.jw.EndObject(); err != nil {
		return err
	}
	rw.rowCount++
	return nil
}

func writeJSONValue(jw *jsonstream.Writer, v variant.Variant) error {
	if v.IsNull() {
		return jw.Null()
	}
	switch v.Type {
	case variant.TypeBool:
		return jw.Bool(v.Bool())
	case variant.TypeInt8, variant.TypeInt16, variant.TypeInt32, variant.TypeInt64:
		return jw.Int(v.Int64())
	case variant.TypeUInt8, variant.TypeUInt16, variant.TypeUInt32, variant.TypeUInt64:
		return jw.Uint(v.UInt64())
	case variant.TypeFloat:
		return jw.Float(float64(v.Float32()))
	case variant.TypeDouble:
		return jw.Float(v.Float64())
	case variant.TypeDateTime, variant.TypeString:
		return jw.String(v.CanonicalString())
	case variant.TypeBinary:
		return jw.HexBytes(v.Binary())
	case variant.TypeBlob:
		return streamBlob(jw, v)
	case variant.TypeClob:
		return streamClob(jw, v)
	default:
		return jw.Null()
	}
}

func streamClob(jw *jsonstream.Writer, v variant.Variant) error {
	lob := v.LOBValue()
	defer lob.Close()
	if err := jw.BeginStreamedString(); err != nil {
		return err
	}
	buf := make([]byte, codec.MaxLOBChunk)
	for {
		n, err := lob.Read(buf)
		if n > 0 {
			if werr := jw.StringChunk(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return jw.EndStreamedString()
}

func streamBlob(jw *jsonstream.Writer, v variant.Variant) error {
	lob := v.LOBValue()
	defer lob.Close()
	if err := jw.BeginStreamedString(); err != nil {
		return err
	}
	buf := make([]byte, codec.MaxLOBChunk)
	for {
		n, err := lob.Read(buf)
		if n > 0 {
			if werr := jw.HexChunk(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return jw.EndStreamedString()
}

func (rw *JSONRowsetWriter) Close() error {
	if err := rw.jw.EndArray(); err != nil {
		return err
	}
	return rw.jw.EndObject()
}
