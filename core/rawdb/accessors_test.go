// Copyright 2018 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rawdb

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/params"
)

func testHeader(number int64) *types.Header {
	return &types.Header{
		Number:      big.NewInt(number),
		GasLimit:    30_000_000,
		Time:        uint64(1000 + number),
		Difficulty:  new(big.Int),
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Extra:       []byte("rawdb test header"),
	}
}

// Tests block header storage and retrieval operations.
func TestHeaderStorage(t *testing.T) {
	db := NewMemoryDatabase()

	header := testHeader(42)
	assert.Nil(t, ReadHeader(db, header.Hash(), header.Number.Uint64()), "non existent header returned")

	WriteHeader(db, header)
	entry := ReadHeader(db, header.Hash(), header.Number.Uint64())
	require.NotNil(t, entry, "stored header not found")
	assert.Equal(t, header.Hash(), entry.Hash())
	assert.True(t, HasHeader(db, header.Hash(), 42))

	number := ReadHeaderNumber(db, header.Hash())
	require.NotNil(t, number)
	assert.Equal(t, uint64(42), *number)
	assert.Equal(t, []common.Hash{header.Hash()}, ReadAllHashes(db, 42))
}

// Tests that canonical numbers can be mapped to hashes and retrieved.
func TestCanonicalMappingStorage(t *testing.T) {
	db := NewMemoryDatabase()

	hash, number := common.Hash{0: 0xff}, uint64(314)
	assert.Equal(t, common.Hash{}, ReadCanonicalHash(db, number))

	WriteCanonicalHash(db, hash, number)
	assert.Equal(t, hash, ReadCanonicalHash(db, number))

	DeleteCanonicalHash(db, number)
	assert.Equal(t, common.Hash{}, ReadCanonicalHash(db, number))
}

// Tests block storage and retrieval operations, including the head markers.
func TestBlockStorage(t *testing.T) {
	db := NewMemoryDatabase()

	to := common.HexToAddress("0x0100000000000000000000000000000000000000")
	tx := &types.Transaction{
		Type:      types.DynamicFeeTxType,
		ChainID:   uint256.NewInt(1),
		Nonce:     1,
		GasTipCap: uint256.NewInt(1),
		GasFeeCap: uint256.NewInt(10),
		Gas:       21000,
		To:        &to,
		Value:     uint256.NewInt(5),
	}
	block := types.NewBlock(testHeader(1), &types.Body{Transactions: types.Transactions{tx}})
	assert.Nil(t, ReadBlock(db, block.Hash(), 1))

	WriteBlock(db, block)
	assert.True(t, HasBody(db, block.Hash(), 1))
	entry := ReadBlock(db, block.Hash(), 1)
	require.NotNil(t, entry)
	assert.Equal(t, block.Hash(), entry.Hash())
	require.Len(t, entry.Transactions(), 1)
	assert.Equal(t, tx.Hash(), entry.Transactions()[0].Hash())

	WriteHeadBlockHash(db, block.Hash())
	WriteHeadHeaderHash(db, block.Hash())
	assert.Equal(t, block.Hash(), ReadHeadBlock(db).Hash())
	assert.Equal(t, block.Hash(), ReadHeadHeader(db).Hash())

	receipts := types.Receipts{{Status: types.ReceiptStatusSuccessful, CumulativeGasUsed: 21000}}
	WriteReceipts(db, block.Hash(), 1, receipts)
	assert.True(t, HasReceipts(db, block.Hash(), 1))
	stored := ReadReceipts(db, block.Hash(), 1)
	require.Len(t, stored, 1)
	assert.Equal(t, tx.Hash(), stored[0].TxHash)
	assert.Equal(t, uint64(21000), stored[0].GasUsed)
}

func TestFlatStateStorage(t *testing.T) {
	db := NewMemoryDatabase()

	addrHash := crypto.Keccak256Hash(common.HexToAddress("0x01").Bytes())
	acct := types.NewEmptyStateAccount()
	acct.Nonce = 7
	WriteAccountSnapshot(db, addrHash, acct.EncodeRLP())
	assert.True(t, HasAccountSnapshot(db, addrHash))

	dec, err := types.DecodeStateAccount(ReadAccountSnapshot(db, addrHash))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), dec.Nonce)

	slotA, slotB := common.Hash{1}, common.Hash{2}
	WriteStorageSnapshot(db, addrHash, slotB, []byte{0x02})
	WriteStorageSnapshot(db, addrHash, slotA, []byte{0x01})
	WriteStorageSnapshot(db, common.Hash{0xff}, slotA, []byte{0x03})

	it := IterateStorageSnapshots(db, addrHash, common.Hash{})
	var values []byte
	for it.Next() {
		values = append(values, it.Value()...)
	}
	it.Release()
	assert.Equal(t, []byte{0x01, 0x02}, values, "iteration must stay within the account and follow slot order")

	DeleteStorageSnapshot(db, addrHash, slotA)
	assert.False(t, HasStorageSnapshot(db, addrHash, slotA))

	code := []byte{0x60, 0x00}
	codeHash := crypto.Keccak256Hash(code)
	WriteCode(db, codeHash, code)
	assert.True(t, HasCode(db, codeHash))
	assert.Equal(t, code, ReadCode(db, codeHash))
}

func TestMetadataStorage(t *testing.T) {
	db := NewMemoryDatabase()

	assert.Nil(t, ReadDatabaseVersion(db))
	WriteDatabaseVersion(db, 9)
	assert.Equal(t, uint64(9), *ReadDatabaseVersion(db))

	genesis := common.Hash{0x0a}
	WriteChainConfig(db, genesis, params.TestChainConfig)
	cfg := ReadChainConfig(db, genesis)
	require.NotNil(t, cfg)
	assert.Equal(t, params.TestChainConfig.ChainID, cfg.ChainID)

	assert.Equal(t, StateSyncUnknown, ReadSnapSyncStatusFlag(db))
	WriteSnapSyncStatusFlag(db, StateSyncRunning)
	assert.Equal(t, StateSyncRunning, ReadSnapSyncStatusFlag(db))
}

func TestInspectDatabase(t *testing.T) {
	db := NewMemoryDatabase()
	WriteHeader(db, testHeader(1))
	WriteCode(db, common.Hash{1}, []byte{0x00})

	stats, err := InspectDatabase(db)
	require.NoError(t, err)

	counts := make(map[string]uint64)
	for _, s := range stats {
		counts[s.Category] = s.Count
	}
	assert.Equal(t, uint64(1), counts["Headers"])
	assert.Equal(t, uint64(1), counts["Block number->hash"])
	assert.Equal(t, uint64(1), counts["Contract codes"])
}

func TestCrashListEncoding(t *testing.T) {
	for _, c := range []*crashList{
		{},
		{Discarded: 3, Recent: []uint64{1, 1700000000}},
	} {
		db := NewMemoryDatabase()
		require.NoError(t, writeCrashList(db, c))
		dec, err := readCrashList(db)
		require.NoError(t, err)
		assert.Equal(t, c.Discarded, dec.Discarded)
		assert.Equal(t, len(c.Recent), len(dec.Recent))
		for i := range c.Recent {
			assert.Equal(t, c.Recent[i], dec.Recent[i])
		}
	}
}

func TestCrashListCorrupt(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Put(uncleanShutdownKey, []byte{0x01}))
	_, err := readCrashList(db)
	assert.Error(t, err)
}

func TestUncleanShutdownMarkers(t *testing.T) {
	db := NewMemoryDatabase()

	previous, discarded, err := PushUncleanShutdownMarker(db)
	require.NoError(t, err)
	assert.Empty(t, previous)
	assert.Zero(t, discarded)

	UpdateUncleanShutdownMarker(db)
	PopUncleanShutdownMarker(db)

	previous, _, err = PushUncleanShutdownMarker(db)
	require.NoError(t, err)
	assert.Empty(t, previous)

	previous, _, err = PushUncleanShutdownMarker(db)
	require.NoError(t, err)
	assert.Len(t, previous, 1)
}
