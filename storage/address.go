package storage

import "github.com/basestored/core/codec"

// BlockID identifies a block within a column's block registry.
type BlockID uint32

// Address is a (block-id, offset) pair locating a byte range within a
// column block. The main index stores it packed into a single fixed-width
// 8-byte field: the top 16 bits are the block id, the low 48 bits the
// offset. This keeps the main index's per-entry record fixed-size while
// supporting blocks well beyond a realistic rotation count and offsets up
// to 256 TiB per block.
type Address struct {
	Block  BlockID
	Offset uint64
}

const addrOffsetBits = 48
const addrOffsetMask = (uint64(1) << addrOffsetBits) - 1

// DeletedAddress is the sentinel main-index value marking a TRID as
// logically deleted. The all-ones value survives Pack/Unpack unchanged:
// the block id must fit the 16 packed bits.
var DeletedAddress = Address{Block: 0xFFFF, Offset: addrOffsetMask}

func (a Address) IsDeleted() bool { return a == DeletedAddress }

// Pack encodes a into the fixed 8-byte plain representation the main
// index stores.
func (a Address) Pack() [8]byte {
	packed := (uint64(a.Block) << addrOffsetBits) | (a.Offset & addrOffsetMask)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(packed >> (8 * (7 - i)))
	}
	return b
}

func UnpackAddress(b [8]byte) Address {
	var packed uint64
	for i := 0; i < 8; i++ {
		packed = (packed << 8) | uint64(b[i])
	}
	return Address{Block: BlockID(packed >> addrOffsetBits), Offset: packed & addrOffsetMask}
}

// ColumnAddr is one (column-id, address) pair inside an MCR.
type ColumnAddr struct {
	ColumnID uint32
	Addr     Address
}

func writeAddress(w codec.CodedOutputStream, a Address) error {
	if err := codec.WriteVarint32(w, uint32(a.Block)); err != nil {
		return err
	}
	return codec.WriteVarint64(w, a.Offset)
}

func readAddress(c *codec.Cursor) (Address, error) {
	b, err := c.ReadVarint()
	if err != nil {
		return Address{}, err
	}
	o, err := c.ReadVarint()
	if err != nil {
		return Address{}, err
	}
	return Address{Block: BlockID(b), Offset: o}, nil
}
