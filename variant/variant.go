// Package variant implements the discriminated union of every value type
// the storage engine and expression evaluator operate on: Null, Bool, the
// signed/unsigned integer family, Float, Double, DateTime, String, Binary,
// and the two LOB stream kinds (Clob, Blob).
package variant

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type is the discriminator tag. Values are stable across the lifetime of
// the wire protocol and the on-disk codec — do not renumber existing
// entries.
type Type uint8

const (
	TypeNull Type = iota
	TypeBool
	TypeInt8
	TypeUInt8
	TypeInt16
	TypeUInt16
	TypeInt32
	TypeUInt32
	TypeInt64
	TypeUInt64
	TypeFloat
	TypeDouble
	TypeDateTime
	TypeString
	TypeBinary
	TypeClob
	TypeBlob
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeBool:
		return "BOOL"
	case TypeInt8:
		return "INT8"
	case TypeUInt8:
		return "UINT8"
	case TypeInt16:
		return "INT16"
	case TypeUInt16:
		return "UINT16"
	case TypeInt32:
		return "INT32"
	case TypeUInt32:
		return "UINT32"
	case TypeInt64:
		return "INT64"
	case TypeUInt64:
		return "UINT64"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeDateTime:
		return "DATETIME"
	case TypeString:
		return "STRING"
	case TypeBinary:
		return "BINARY"
	case TypeClob:
		return "CLOB"
	case TypeBlob:
		return "BLOB"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// IsInteger reports whether t is one of the (u)int8/16/32/64 kinds.
func (t Type) IsInteger() bool {
	switch t {
	case TypeInt8, TypeUInt8, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32, TypeInt64, TypeUInt64:
		return true
	}
	return false
}

// IsUnsigned reports whether t is one of the unsigned integer kinds.
func (t Type) IsUnsigned() bool {
	switch t {
	case TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64:
		return true
	}
	return false
}

// IsFloating reports whether t is Float or Double.
func (t Type) IsFloating() bool {
	return t == TypeFloat || t == TypeDouble
}

// IsNumeric reports whether t is an integer or floating-point kind.
func (t Type) IsNumeric() bool {
	return t.IsInteger() || t.IsFloating()
}

// IsLOB reports whether t is Clob or Blob.
func (t Type) IsLOB() bool {
	return t == TypeClob || t == TypeBlob
}

// DateTime is the wire/storage representation of a date or date+time value.
// HasTime distinguishes a 6-byte date-only encoding from the 12-byte
// date+time encoding.
type DateTime struct {
	Year    int
	Month   int
	Day     int
	Hour    int
	Minute  int
	Second  int
	Nanos   int
	HasTime bool
}

// DateTimeLayout is the fixed format used to parse a string operand being
// compared against a DateTime value.
const DateTimeLayout = "2006-01-02 15:04:05.999999999"

// DateLayout is used when the string has no time component.
const DateLayout = "2006-01-02"

// ParseDateTime parses s using the fixed layouts, trying date+time first.
func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateTimeLayout, s); err == nil {
		return FromTime(t, true), nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return FromTime(t, false), nil
	}
	return DateTime{}, fmt.Errorf("variant: malformed date/time literal %q", s)
}

// FromTime builds a DateTime from a time.Time, truncating to date-only when
// hasTime is false.
func FromTime(t time.Time, hasTime bool) DateTime {
	dt := DateTime{Year: t.Year(), Month: int(t.Month()), Day: t.Day(), HasTime: hasTime}
	if hasTime {
		dt.Hour, dt.Minute, dt.Second, dt.Nanos = t.Hour(), t.Minute(), t.Second(), t.Nanosecond()
	}
	return dt
}

// ToTime converts back to a time.Time in UTC, for instant comparison.
func (d DateTime) ToTime() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, d.Second, d.Nanos, time.UTC)
}

// Canonical returns the default string representation used by concatenation
// coercion: "YYYY-MM-DD" for date-only, full timestamp
// otherwise.
func (d DateTime) Canonical() string {
	if !d.HasTime {
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// Compare returns -1, 0, 1 comparing the instant represented by d and o.
func (d DateTime) Compare(o DateTime) int {
	a, b := d.ToTime(), o.ToTime()
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// LOB is the minimal contract a CLOB/BLOB stream exposes to the evaluator
// and rowset writers: an opaque, cloneable, forward-read-only byte
// producer with a known remaining size. The concrete implementation in
// this module is codec.MemoryLOB (in-memory).
type LOB interface {
	// Remaining returns the number of unread bytes.
	Remaining() int64
	// Read pulls up to len(p) bytes; io.EOF once exhausted.
	Read(p []byte) (int, error)
	// Clone returns an independent reader positioned at the same offset
	// this LOB is currently at; advancing one must not affect the other.
	Clone() (LOB, error)
	// Close releases any pinned resource (e.g. a pinned block in the
	// block cache).
	Close() error
}

// Variant is the tagged union. Exactly one of the typed fields is
// meaningful, selected by Type; Null carries no payload.
type Variant struct {
	Type Type

	boolV   bool
	intV    int64  // signed integer kinds
	uintV   uint64 // unsigned integer kinds
	floatV  float32
	doubleV float64
	dt      DateTime
	strV    string
	binV    []byte
	lobV    LOB
}

// Null is the singleton NULL variant.
var Null = Variant{Type: TypeNull}

func (v Variant) IsNull() bool { return v.Type == TypeNull }

func NewBool(b bool) Variant { return Variant{Type: TypeBool, boolV: b} }
func NewInt8(n int8) Variant { return Variant{Type: TypeInt8, intV: int64(n)} }
func NewUInt8(n uint8) Variant { return Variant{Type: TypeUInt8, uintV: uint64(n)} }
func NewInt16(n int16) Variant { return Variant{Type: TypeInt16, intV: int64(n)} }
func NewUInt16(n uint16) Variant { return Variant{Type: TypeUInt16, uintV: uint64(n)} }
func NewInt32(n int32) Variant { return Variant{Type: TypeInt32, intV: int64(n)} }
func NewUInt32(n uint32) Variant { return Variant{Type: TypeUInt32, uintV: uint64(n)} }
func NewInt64(n int64) Variant { return Variant{Type: TypeInt64, intV: n} }
func NewUInt64(n uint64) Variant { return Variant{Type: TypeUInt64, uintV: n} }
func NewFloat(f float32) Variant { return Variant{Type: TypeFloat, floatV: f} }
func NewDouble(f float64) Variant { return Variant{Type: TypeDouble, doubleV: f} }
func NewDateTime(dt DateTime) Variant { return Variant{Type: TypeDateTime, dt: dt} }
func NewString(s string) Variant { return Variant{Type: TypeString, strV: s} }
func NewBinary(b []byte) Variant { return Variant{Type: TypeBinary, binV: b} }
func NewClob(l LOB) Variant { return Variant{Type: TypeClob, lobV: l} }
func NewBlob(l LOB) Variant { return Variant{Type: TypeBlob, lobV: l} }

func (v Variant) Bool() bool         { return v.boolV }
func (v Variant) DateTimeValue() DateTime { return v.dt }
func (v Variant) String_() string    { return v.strV }
func (v Variant) Binary() []byte     { return v.binV }
func (v Variant) LOBValue() LOB      { return v.lobV }

// Int64 returns the value widened/narrowed to int64, reinterpreting an
// unsigned payload. Callers on numeric-kind variants only.
func (v Variant) Int64() int64 {
	if v.Type.IsUnsigned() {
		return int64(v.uintV)
	}
	return v.intV
}

// UInt64 returns the value widened to uint64.
func (v Variant) UInt64() uint64 {
	if v.Type.IsUnsigned() {
		return v.uintV
	}
	return uint64(v.intV)
}

func (v Variant) Float32() float32 { return v.floatV }

func (v Variant) Float64() float64 {
	switch v.Type {
	case TypeDouble:
		return v.doubleV
	case TypeFloat:
		return float64(v.floatV)
	default:
		return 0
	}
}

// AsFloat64 coerces any numeric variant to float64, used by the evaluator
// once it has decided the result type is Float/Double.
func (v Variant) AsFloat64() float64 {
	switch {
	case v.Type == TypeDouble:
		return v.doubleV
	case v.Type == TypeFloat:
		return float64(v.floatV)
	case v.Type.IsUnsigned():
		return float64(v.uintV)
	case v.Type.IsInteger():
		return float64(v.intV)
	default:
		return 0
	}
}

// CanonicalString renders a non-string scalar using the default string
// representation used by the `||` concatenation operator:
// float with 7 significant digits, double with 16, date/time canonical.
func (v Variant) CanonicalString() string {
	switch v.Type {
	case TypeNull:
		return ""
	case TypeBool:
		if v.boolV {
			return "true"
		}
		return "false"
	case TypeFloat:
		return strconv.FormatFloat(float64(v.floatV), 'g', 7, 32)
	case TypeDouble:
		return strconv.FormatFloat(v.doubleV, 'g', 16, 64)
	case TypeDateTime:
		return v.dt.Canonical()
	case TypeString:
		return v.strV
	case TypeBinary:
		return string(v.binV)
	default:
		if v.Type.IsUnsigned() {
			return strconv.FormatUint(v.uintV, 10)
		}
		if v.Type.IsInteger() {
			return strconv.FormatInt(v.intV, 10)
		}
		return ""
	}
}

// Equal reports raw-value equality for same-typed, non-LOB variants; used
// by IN/IS and cache-key style comparisons. LOB equality is never defined.
func (v Variant) Equal(o Variant) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeBool:
		return v.boolV == o.boolV
	case TypeFloat:
		return v.floatV == o.floatV
	case TypeDouble:
		return v.doubleV == o.doubleV
	case TypeDateTime:
		return v.dt == o.dt
	case TypeString:
		return v.strV == o.strV
	case TypeBinary:
		return string(v.binV) == string(o.binV)
	default:
		if v.Type.IsUnsigned() {
			return v.uintV == o.uintV
		}
		if v.Type.IsInteger() {
			return v.intV == o.intV
		}
		return false
	}
}
