package expr

import (
	"github.com/basestored/core/codec"
)

// lenPrefixedSize, writeLenPrefixedString and readLenPrefixedString frame
// a plain string the same way codec frames a String variant, for node
// payloads that are not themselves Variant values (aliases, column
// names).
func lenPrefixedSize(s string) int {
	return len(codec.AppendVarint32(nil, uint32(len(s)))) + len(s)
}

func writeLenPrefixedString(w codec.CodedOutputStream, s string) error {
	if err := codec.WriteVarint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readLenPrefixedString(c *codec.Cursor) (string, error) {
	n, err := c.ReadVarint()
	if err != nil {
		return "", err
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
