// Package codec implements the binary value codec: a serialized-size
// function and a write routine per variant.Type, appending to an abstract
// CodedOutputStream built on protowire's varint/fixed primitives — the
// same abstraction used by the wire protocol framing in package stream.
// Decoding is the exact inverse.
package codec

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/basestored/core/variant"
)

// ErrTruncated is returned by any Read* helper when the input ends before a
// complete value could be decoded.
var ErrTruncated = errors.New("codec: truncated input")

// ErrUnknownType is returned when a type tag byte does not match any known
// variant.Type. This is fatal for the row currently being decoded.
var ErrUnknownType = errors.New("codec: unknown type tag")

// MaxLOBChunk is the chunk size LOB payloads are written in.
const MaxLOBChunk = 4096

// Limits bounds the maximum encodable size of String/Binary and
// Clob/Blob values.
type Limits struct {
	MaxStringLen int64
	MaxBinaryLen int64
}

// DefaultLimits is the default cap on encodable String/Binary length: 16 MiB.
var DefaultLimits = Limits{MaxStringLen: 16 << 20, MaxBinaryLen: 16 << 20}

// CodedOutputStream is the minimal sink the codec writes to: varint32/64,
// fixed32/64 little-endian, and raw byte runs. *bytes.Buffer and
// *stream.DynamicMemoryOutputStream both satisfy io.Writer, which is all
// the helpers below need; the type exists only to name that contract.
type CodedOutputStream = io.Writer

// AppendVarint32 appends n to dst as a protobuf-style varint, returning the extended slice.
func AppendVarint32(dst []byte, n uint32) []byte {
	return protowire.AppendVarint(dst, uint64(n))
}

// AppendVarint64 appends n to dst as a varuint64, returning the extended
// slice.
func AppendVarint64(dst []byte, n uint64) []byte {
	return protowire.AppendVarint(dst, n)
}

// WriteVarint32 appends n as a protobuf-style varint.
func WriteVarint32(w CodedOutputStream, n uint32) error {
	_, err := w.Write(protowire.AppendVarint(nil, uint64(n)))
	return err
}

// WriteVarint64 appends n as a varuint64.
func WriteVarint64(w CodedOutputStream, n uint64) error {
	_, err := w.Write(protowire.AppendVarint(nil, n))
	return err
}

// WriteZigzag64 appends a signed n as a zigzag-encoded varint, used for
// Int64/Int32 so small negative values stay compact.
func WriteZigzag64(w CodedOutputStream, n int64) error {
	return WriteVarint64(w, protowire.EncodeZigZag(n))
}

func WriteFixed32(w CodedOutputStream, n uint32) error {
	var buf [4]byte
	buf[0] = byte(n)
	buf[1] = byte(n >> 8)
	buf[2] = byte(n >> 16)
	buf[3] = byte(n >> 24)
	_, err := w.Write(buf[:])
	return err
}

func WriteFixed64(w CodedOutputStream, n uint64) error {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(n >> (8 * i))
	}
	_, err := w.Write(buf[:])
	return err
}

// Cursor tracks a decode position within a byte slice; the read helpers
// below advance Pos so nested decoders can share one cursor.
type Cursor struct {
	Buf []byte
	Pos int
}

func (c *Cursor) remaining() []byte { return c.Buf[c.Pos:] }

func (c *Cursor) ReadVarint() (uint64, error) {
	v, n := protowire.ConsumeVarint(c.remaining())
	if n < 0 {
		return 0, ErrTruncated
	}
	c.Pos += n
	return v, nil
}

func (c *Cursor) ReadZigzag64() (int64, error) {
	u, err := c.ReadVarint()
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(u), nil
}

func (c *Cursor) ReadFixed32() (uint32, error) {
	if len(c.remaining()) < 4 {
		return 0, ErrTruncated
	}
	b := c.remaining()
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	c.Pos += 4
	return v, nil
}

func (c *Cursor) ReadFixed64() (uint64, error) {
	if len(c.remaining()) < 8 {
		return 0, ErrTruncated
	}
	b := c.remaining()
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	c.Pos += 8
	return v, nil
}

func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || len(c.remaining()) < n {
		return nil, ErrTruncated
	}
	b := c.remaining()[:n]
	c.Pos += n
	return b, nil
}

// typeTag maps a variant.Type to its on-the-wire 1-byte tag. Values must
// never be renumbered once persisted to disk; they are distinct from
// variant.Type's own numbering only by convention (kept identical here for
// simplicity, but referenced through this table rather than the raw
// variant.Type value so the two can diverge later without a data migration
// surprising every call site).
func typeTag(t variant.Type) byte { return byte(t) }

func tagToType(b byte) (variant.Type, bool) {
	t := variant.Type(b)
	if t > variant.TypeBlob {
		return 0, false
	}
	return t, true
}

// SerializedSize returns the number of bytes Write would emit for v,
// excluding the leading type tag (callers that frame a row with a null
// bitmask do not repeat the tag per value).
func SerializedSize(v variant.Variant) (int, error) {
	switch v.Type {
	case variant.TypeNull:
		return 0, nil
	case variant.TypeBool, variant.TypeInt8, variant.TypeUInt8:
		return 1, nil
	case variant.TypeInt16, variant.TypeUInt16:
		return 2, nil
	case variant.TypeInt32:
		return len(protowire.AppendVarint(nil, protowire.EncodeZigZag(v.Int64()))), nil
	case variant.TypeUInt32:
		return len(protowire.AppendVarint(nil, v.UInt64())), nil
	case variant.TypeInt64:
		return len(protowire.AppendVarint(nil, protowire.EncodeZigZag(v.Int64()))), nil
	case variant.TypeUInt64:
		return len(protowire.AppendVarint(nil, v.UInt64())), nil
	case variant.TypeFloat:
		return 4, nil
	case variant.TypeDouble:
		return 8, nil
	case variant.TypeDateTime:
		if v.DateTimeValue().HasTime {
			return 12, nil
		}
		return 6, nil
	case variant.TypeString:
		s := v.String_()
		return len(protowire.AppendVarint(nil, uint64(len(s)))) + len(s), nil
	case variant.TypeBinary:
		b := v.Binary()
		return len(protowire.AppendVarint(nil, uint64(len(b)))) + len(b), nil
	case variant.TypeClob, variant.TypeBlob:
		l := v.LOBValue()
		if l == nil {
			return 0, fmt.Errorf("codec: nil LOB for %s value", v.Type)
		}
		n := l.Remaining()
		return len(protowire.AppendVarint(nil, uint64(n))) + int(n), nil
	default:
		return 0, ErrUnknownType
	}
}

// Write appends v's payload (no type tag) to w. LOB values are streamed in
// MaxLOBChunk-sized reads from the underlying LOB reader.
func Write(w CodedOutputStream, v variant.Variant) error {
	switch v.Type {
	case variant.TypeNull:
		return nil
	case variant.TypeBool:
		b := byte(0)
		if v.Bool() {
			b = 1
		}
		_, err := w.Write([]byte{b})
		return err
	case variant.TypeInt8:
		_, err := w.Write([]byte{byte(int8(v.Int64()))})
		return err
	case variant.TypeUInt8:
		_, err := w.Write([]byte{byte(v.UInt64())})
		return err
	case variant.TypeInt16:
		n := uint16(int16(v.Int64()))
		_, err := w.Write([]byte{byte(n), byte(n >> 8)})
		return err
	case variant.TypeUInt16:
		n := uint16(v.UInt64())
		_, err := w.Write([]byte{byte(n), byte(n >> 8)})
		return err
	case variant.TypeInt32:
		return WriteZigzag64(w, int64(int32(v.Int64())))
	case variant.TypeUInt32:
		return WriteVarint32(w, uint32(v.UInt64()))
	case variant.TypeInt64:
		return WriteZigzag64(w, v.Int64())
	case variant.TypeUInt64:
		return WriteVarint64(w, v.UInt64())
	case variant.TypeFloat:
		return WriteFixed32(w, float32bits(v.Float32()))
	case variant.TypeDouble:
		return WriteFixed64(w, float64bits(v.Float64()))
	case variant.TypeDateTime:
		return writeDateTime(w, v.DateTimeValue())
	case variant.TypeString:
		return writeLenPrefixed(w, []byte(v.String_()))
	case variant.TypeBinary:
		return writeLenPrefixed(w, v.Binary())
	case variant.TypeClob, variant.TypeBlob:
		return writeLOB(w, v.LOBValue())
	default:
		return ErrUnknownType
	}
}

func writeLenPrefixed(w CodedOutputStream, b []byte) error {
	if err := WriteVarint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeLOB(w CodedOutputStream, l variant.LOB) error {
	if l == nil {
		return errors.New("codec: nil LOB")
	}
	if err := WriteVarint64(w, uint64(l.Remaining())); err != nil {
		return err
	}
	buf := make([]byte, MaxLOBChunk)
	for {
		n, err := l.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Date-only values occupy 6 bytes: discriminator 0, year (LE uint16),
// month, day, day-of-week. Full date+time values occupy 12: discriminator
// 1, year, month, day, hour, minute, second, nanos (LE uint32).
func writeDateTime(w CodedOutputStream, dt variant.DateTime) error {
	disc := byte(0)
	if dt.HasTime {
		disc = 1
	}
	buf := []byte{disc, byte(dt.Year), byte(dt.Year >> 8), byte(dt.Month), byte(dt.Day)}
	if dt.HasTime {
		buf = append(buf, byte(dt.Hour), byte(dt.Minute), byte(dt.Second))
		nanos32 := uint32(dt.Nanos)
		buf = append(buf, byte(nanos32), byte(nanos32>>8), byte(nanos32>>16), byte(nanos32>>24))
	} else {
		buf = append(buf, byte(dt.ToTime().Weekday()))
	}
	_, err := w.Write(buf)
	return err
}

// Decode reads a typed payload given an already-known variant.Type. The
// caller — typically the MCR column-value reader or the rowset reader —
// learns the type from column metadata/schema rather than a leading tag.
func Decode(c *Cursor, t variant.Type, limits Limits, lobOpen func(size int64, c *Cursor) (variant.LOB, error)) (variant.Variant, error) {
	switch t {
	case variant.TypeNull:
		return variant.Null, nil
	case variant.TypeBool:
		b, err := c.ReadBytes(1)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewBool(b[0] != 0), nil
	case variant.TypeInt8:
		b, err := c.ReadBytes(1)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewInt8(int8(b[0])), nil
	case variant.TypeUInt8:
		b, err := c.ReadBytes(1)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewUInt8(b[0]), nil
	case variant.TypeInt16:
		b, err := c.ReadBytes(2)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewInt16(int16(uint16(b[0]) | uint16(b[1])<<8)), nil
	case variant.TypeUInt16:
		b, err := c.ReadBytes(2)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewUInt16(uint16(b[0]) | uint16(b[1])<<8), nil
	case variant.TypeInt32:
		n, err := c.ReadZigzag64()
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewInt32(int32(n)), nil
	case variant.TypeUInt32:
		n, err := c.ReadVarint()
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewUInt32(uint32(n)), nil
	case variant.TypeInt64:
		n, err := c.ReadZigzag64()
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewInt64(n), nil
	case variant.TypeUInt64:
		n, err := c.ReadVarint()
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewUInt64(n), nil
	case variant.TypeFloat:
		n, err := c.ReadFixed32()
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewFloat(float32frombits(n)), nil
	case variant.TypeDouble:
		n, err := c.ReadFixed64()
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewDouble(float64frombits(n)), nil
	case variant.TypeDateTime:
		return decodeDateTime(c)
	case variant.TypeString:
		b, err := readLenPrefixed(c, limits.MaxStringLen)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewString(string(b)), nil
	case variant.TypeBinary:
		b, err := readLenPrefixed(c, limits.MaxBinaryLen)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewBinary(b), nil
	case variant.TypeClob, variant.TypeBlob:
		n, err := c.ReadVarint()
		if err != nil {
			return variant.Variant{}, err
		}
		if lobOpen == nil {
			b, err := c.ReadBytes(int(n))
			if err != nil {
				return variant.Variant{}, err
			}
			lob := NewMemoryLOB(b)
			if t == variant.TypeClob {
				return variant.NewClob(lob), nil
			}
			return variant.NewBlob(lob), nil
		}
		lob, err := lobOpen(int64(n), c)
		if err != nil {
			return variant.Variant{}, err
		}
		if t == variant.TypeClob {
			return variant.NewClob(lob), nil
		}
		return variant.NewBlob(lob), nil
	default:
		return variant.Variant{}, ErrUnknownType
	}
}

func readLenPrefixed(c *Cursor, max int64) ([]byte, error) {
	n, err := c.ReadVarint()
	if err != nil {
		return nil, err
	}
	if max > 0 && int64(n) > max {
		return nil, fmt.Errorf("codec: value of %d bytes exceeds limit %d", n, max)
	}
	return c.ReadBytes(int(n))
}

func decodeDateTime(c *Cursor) (variant.Variant, error) {
	disc, err := c.ReadBytes(1)
	if err != nil {
		return variant.Variant{}, err
	}
	hasTime := disc[0] != 0
	need := 5
	if hasTime {
		need = 11
	}
	b, err := c.ReadBytes(need)
	if err != nil {
		return variant.Variant{}, err
	}
	dt := variant.DateTime{
		Year:    int(uint16(b[0]) | uint16(b[1])<<8),
		Month:   int(b[2]),
		Day:     int(b[3]),
		HasTime: hasTime,
	}
	if hasTime {
		dt.Hour, dt.Minute, dt.Second = int(b[4]), int(b[5]), int(b[6])
		dt.Nanos = int(uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16 | uint32(b[10])<<24)
	}
	return variant.NewDateTime(dt), nil
}
