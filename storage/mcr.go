package storage

import (
	"bytes"

	"github.com/basestored/core/codec"
)

// MCR is the master-column record: a per-row record
// stored in the master column whose payload locates every non-master
// column's value, plus the row's TRID and transaction metadata.
type MCR struct {
	TRID        uint64
	TxnID       uint64
	UserID      uint64
	Tombstone   bool
	ColumnAddrs []ColumnAddr
}

// serialize encodes the MCR as:
// [TRID, transaction-id, user-id, tombstone-flag, column-count,
// (column-id, address)*].
func (m *MCR) serialize() []byte {
	var buf bytes.Buffer
	codec.WriteVarint64(&buf, m.TRID)
	codec.WriteVarint64(&buf, m.TxnID)
	codec.WriteVarint64(&buf, m.UserID)
	tomb := byte(0)
	if m.Tombstone {
		tomb = 1
	}
	buf.WriteByte(tomb)
	codec.WriteVarint32(&buf, uint32(len(m.ColumnAddrs)))
	for _, ca := range m.ColumnAddrs {
		codec.WriteVarint32(&buf, ca.ColumnID)
		writeAddress(&buf, ca.Addr)
	}
	return buf.Bytes()
}

func deserializeMCR(raw []byte) (*MCR, error) {
	c := &codec.Cursor{Buf: raw}
	trid, err := c.ReadVarint()
	if err != nil {
		return nil, WrapError(CodeCorruptBlock, err, "decode MCR TRID")
	}
	txn, err := c.ReadVarint()
	if err != nil {
		return nil, WrapError(CodeCorruptBlock, err, "decode MCR transaction id")
	}
	user, err := c.ReadVarint()
	if err != nil {
		return nil, WrapError(CodeCorruptBlock, err, "decode MCR user id")
	}
	tomb, err := c.ReadBytes(1)
	if err != nil {
		return nil, WrapError(CodeCorruptBlock, err, "decode MCR tombstone flag")
	}
	count, err := c.ReadVarint()
	if err != nil {
		return nil, WrapError(CodeCorruptBlock, err, "decode MCR column count")
	}
	mcr := &MCR{TRID: trid, TxnID: txn, UserID: user, Tombstone: tomb[0] != 0}
	for i := uint64(0); i < count; i++ {
		colID, err := c.ReadVarint()
		if err != nil {
			return nil, WrapError(CodeCorruptBlock, err, "decode MCR column id")
		}
		addr, err := readAddress(c)
		if err != nil {
			return nil, WrapError(CodeCorruptBlock, err, "decode MCR column address")
		}
		mcr.ColumnAddrs = append(mcr.ColumnAddrs, ColumnAddr{ColumnID: uint32(colID), Addr: addr})
	}
	return mcr, nil
}
