package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCRSerializeRoundTrip(t *testing.T) {
	m := &MCR{
		TRID:   12,
		TxnID:  3,
		UserID: 7,
		ColumnAddrs: []ColumnAddr{
			{ColumnID: 1, Addr: Address{Block: 2, Offset: 100}},
			{ColumnID: 2, Addr: Address{Block: 2, Offset: 140}},
		},
	}
	out, err := deserializeMCR(m.serialize())
	require.NoError(t, err)
	assert.Equal(t, m.TRID, out.TRID)
	assert.Equal(t, m.TxnID, out.TxnID)
	assert.Equal(t, m.UserID, out.UserID)
	assert.False(t, out.Tombstone)
	assert.Equal(t, m.ColumnAddrs, out.ColumnAddrs)
}

func TestMCRTombstoneRoundTrip(t *testing.T) {
	m := &MCR{TRID: 1, TxnID: 1, UserID: 1, Tombstone: true}
	out, err := deserializeMCR(m.serialize())
	require.NoError(t, err)
	assert.True(t, out.Tombstone)
	assert.Empty(t, out.ColumnAddrs)
}

func TestDeserializeMCRTruncated(t *testing.T) {
	m := &MCR{TRID: 1, TxnID: 1, UserID: 1}
	raw := m.serialize()
	_, err := deserializeMCR(raw[:1])
	assert.Error(t, err)
}

func TestAddressPackUnpack(t *testing.T) {
	a := Address{Block: 0x1234, Offset: 0xABCDEF}
	out := UnpackAddress(a.Pack())
	assert.Equal(t, a, out)
}

func TestDeletedAddressSentinel(t *testing.T) {
	assert.True(t, DeletedAddress.IsDeleted())
	assert.False(t, (Address{Block: 1, Offset: 1}).IsDeleted())
}
