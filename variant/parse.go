package variant

import (
	"fmt"
	"strconv"
)

// TypeByName resolves the name Type.String() renders back to the Type
// value, for catalog columns that store a data type by name.
func TypeByName(name string) (Type, bool) {
	for t := TypeNull; t <= TypeBlob; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

// ParseCanonical parses the CanonicalString rendering of a scalar value
// back into a Variant of type t. LOB types have no canonical text form.
func ParseCanonical(t Type, s string) (Variant, error) {
	switch t {
	case TypeNull:
		return Null, nil
	case TypeBool:
		switch s {
		case "true":
			return NewBool(true), nil
		case "false":
			return NewBool(false), nil
		}
		return Variant{}, fmt.Errorf("variant: malformed bool literal %q", s)
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Variant{}, fmt.Errorf("variant: malformed float literal %q", s)
		}
		return NewFloat(float32(f)), nil
	case TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Variant{}, fmt.Errorf("variant: malformed double literal %q", s)
		}
		return NewDouble(f), nil
	case TypeDateTime:
		dt, err := ParseDateTime(s)
		if err != nil {
			return Variant{}, err
		}
		return NewDateTime(dt), nil
	case TypeString:
		return NewString(s), nil
	case TypeBinary:
		return NewBinary([]byte(s)), nil
	default:
		if t.IsUnsigned() {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return Variant{}, fmt.Errorf("variant: malformed integer literal %q", s)
			}
			switch t {
			case TypeUInt8:
				return NewUInt8(uint8(n)), nil
			case TypeUInt16:
				return NewUInt16(uint16(n)), nil
			case TypeUInt32:
				return NewUInt32(uint32(n)), nil
			case TypeUInt64:
				return NewUInt64(n), nil
			}
		}
		if t.IsInteger() {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return Variant{}, fmt.Errorf("variant: malformed integer literal %q", s)
			}
			switch t {
			case TypeInt8:
				return NewInt8(int8(n)), nil
			case TypeInt16:
				return NewInt16(int16(n)), nil
			case TypeInt32:
				return NewInt32(int32(n)), nil
			case TypeInt64:
				return NewInt64(n), nil
			}
		}
		return Variant{}, fmt.Errorf("variant: %s has no canonical text form", t)
	}
}
