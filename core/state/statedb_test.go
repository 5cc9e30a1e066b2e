// Copyright 2016 The go-ethereum Authors
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

package state

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

var (
	testAddr  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testAddr2 = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testSlot  = common.HexToHash("0x01")
)

func newTestState() (*CachingDB, *StateDB) {
	db := NewDatabase(rawdb.NewMemoryDatabase())
	return db, New(db)
}

// Tests that balance, nonce and storage changes are undone by reverting to
// a snapshot, while earlier changes survive.
func TestSnapshotRevert(t *testing.T) {
	_, state := newTestState()

	state.SetBalance(testAddr, uint256.NewInt(10))
	state.SetNonce(testAddr, 1)
	id := state.Snapshot()

	state.SetBalance(testAddr, uint256.NewInt(20))
	state.SetNonce(testAddr, 2)
	state.SetState(testAddr, testSlot, common.HexToHash("0xaa"))
	state.AddRefund(100)
	state.AddLog(&types.Log{Address: testAddr})
	state.CreateAccount(testAddr2)

	state.RevertToSnapshot(id)
	assert.Equal(t, uint256.NewInt(10), state.GetBalance(testAddr))
	assert.Equal(t, uint64(1), state.GetNonce(testAddr))
	assert.Equal(t, common.Hash{}, state.GetState(testAddr, testSlot))
	assert.Equal(t, uint64(0), state.GetRefund())
	assert.Empty(t, state.Logs())
	assert.False(t, state.Exist(testAddr2))
}

// Tests nested snapshots revert independently of each other.
func TestNestedSnapshots(t *testing.T) {
	_, state := newTestState()

	outer := state.Snapshot()
	state.SetState(testAddr, testSlot, common.HexToHash("0x01"))
	inner := state.Snapshot()
	state.SetState(testAddr, testSlot, common.HexToHash("0x02"))

	state.RevertToSnapshot(inner)
	assert.Equal(t, common.HexToHash("0x01"), state.GetState(testAddr, testSlot))

	state.RevertToSnapshot(outer)
	assert.Equal(t, common.Hash{}, state.GetState(testAddr, testSlot))
	assert.False(t, state.Exist(testAddr))
}

// Tests that the committed value of a slot is the value at the start of the
// transaction, not the one at the start of the block or the current one.
func TestCommittedState(t *testing.T) {
	db, state := newTestState()
	state.SetNonce(testAddr, 1)
	state.SetState(testAddr, testSlot, common.HexToHash("0x01"))
	require.NoError(t, state.Commit(true))

	state = New(db)
	state.SetState(testAddr, testSlot, common.HexToHash("0x02"))
	assert.Equal(t, common.HexToHash("0x01"), state.GetCommittedState(testAddr, testSlot))
	assert.Equal(t, common.HexToHash("0x02"), state.GetState(testAddr, testSlot))

	// Transaction boundary, the written value becomes the original one.
	state.Finalise(true)
	state.SetState(testAddr, testSlot, common.HexToHash("0x03"))
	assert.Equal(t, common.HexToHash("0x02"), state.GetCommittedState(testAddr, testSlot))
	assert.Equal(t, common.HexToHash("0x03"), state.GetState(testAddr, testSlot))
}

// Tests that transient storage survives reverts and is reset when the next
// transaction is prepared.
// 临时存储不受回滚影响，仅在 Prepare 时清空。
func TestTransientStorage(t *testing.T) {
	_, state := newTestState()
	rules := params.RulesForFork(forks.Cancun, big.NewInt(1))

	state.Prepare(rules, testAddr, common.Address{}, &testAddr2, nil, nil)
	state.SetTransientState(testAddr2, testSlot, common.HexToHash("0x01"))

	id := state.Snapshot()
	state.SetTransientState(testAddr2, testSlot, common.HexToHash("0x02"))
	state.RevertToSnapshot(id)
	assert.Equal(t, common.HexToHash("0x02"), state.GetTransientState(testAddr2, testSlot))

	state.Prepare(rules, testAddr, common.Address{}, &testAddr2, nil, nil)
	assert.Equal(t, common.Hash{}, state.GetTransientState(testAddr2, testSlot))
}

// Tests the access list population of Prepare and that warm entries stay warm
// after a revert.
func TestAccessList(t *testing.T) {
	_, state := newTestState()
	var (
		coinbase    = common.HexToAddress("0xc0ffee")
		precompile  = common.BytesToAddress([]byte{0x01})
		listed      = common.HexToAddress("0xaaaa")
		listedSlot  = common.HexToHash("0xbb")
		shanghai    = params.RulesForFork(forks.Shanghai, big.NewInt(1))
		list        = types.AccessList{{Address: listed, StorageKeys: []common.Hash{listedSlot}}}
		unlistedKey = common.HexToHash("0xcc")
	)
	state.Prepare(shanghai, testAddr, coinbase, &testAddr2, []common.Address{precompile}, list)

	for _, addr := range []common.Address{testAddr, testAddr2, precompile, listed, coinbase} {
		assert.True(t, state.AddressInAccessList(addr), "address %x not warm", addr)
	}
	addrOk, slotOk := state.SlotInAccessList(listed, listedSlot)
	assert.True(t, addrOk)
	assert.True(t, slotOk)

	id := state.Snapshot()
	state.AddSlotToAccessList(testAddr2, unlistedKey)
	state.AddAddressToAccessList(common.HexToAddress("0xdead"))
	state.RevertToSnapshot(id)

	_, slotOk = state.SlotInAccessList(testAddr2, unlistedKey)
	assert.True(t, slotOk)
	assert.True(t, state.AddressInAccessList(common.HexToAddress("0xdead")))

	// Coinbase is only warmed from Shanghai on.
	state.Prepare(params.RulesForFork(forks.London, big.NewInt(1)), testAddr, coinbase, &testAddr2, nil, nil)
	assert.False(t, state.AddressInAccessList(coinbase))
	assert.False(t, state.AddressInAccessList(common.HexToAddress("0xdead")))
}

// Tests that committed accounts, code and storage can be read back, and that
// zeroed slots and deleted accounts leave the flat state.
func TestCommitRoundTrip(t *testing.T) {
	db, state := newTestState()
	code := []byte{0x60, 0x00, 0x60, 0x00, 0xf3}

	state.SetBalance(testAddr, uint256.NewInt(42))
	state.SetNonce(testAddr, 7)
	state.SetCode(testAddr, code)
	state.SetState(testAddr, testSlot, common.HexToHash("0x1234"))
	require.NoError(t, state.Commit(true))

	state = New(db)
	assert.Equal(t, uint256.NewInt(42), state.GetBalance(testAddr))
	assert.Equal(t, uint64(7), state.GetNonce(testAddr))
	assert.Equal(t, code, state.GetCode(testAddr))
	assert.Equal(t, crypto.Keccak256Hash(code), state.GetCodeHash(testAddr))
	assert.Equal(t, common.HexToHash("0x1234"), state.GetState(testAddr, testSlot))

	var (
		addrHash = crypto.Keccak256Hash(testAddr.Bytes())
		slotHash = crypto.Keccak256Hash(testSlot.Bytes())
	)
	assert.True(t, rawdb.HasStorageSnapshot(db.DiskDB(), addrHash, slotHash))

	state.SetState(testAddr, testSlot, common.Hash{})
	require.NoError(t, state.Commit(true))
	assert.False(t, rawdb.HasStorageSnapshot(db.DiskDB(), addrHash, slotHash))

	// Empty accounts are removed when touched under EIP-161 rules.
	state = New(db)
	state.SetBalance(testAddr2, uint256.NewInt(1))
	require.NoError(t, state.Commit(true))
	state = New(db)
	state.SubBalance(testAddr2, uint256.NewInt(1))
	require.NoError(t, state.Commit(true))
	assert.False(t, rawdb.HasAccountSnapshot(db.DiskDB(), crypto.Keccak256Hash(testAddr2.Bytes())))
	assert.False(t, New(db).Exist(testAddr2))
}

// Tests that a self-destructed account is removed together with its storage.
func TestSelfDestructWipesStorage(t *testing.T) {
	db, state := newTestState()
	state.SetBalance(testAddr, uint256.NewInt(5))
	state.SetState(testAddr, testSlot, common.HexToHash("0x01"))
	require.NoError(t, state.Commit(true))

	state = New(db)
	prev := state.SelfDestruct(testAddr)
	assert.Equal(t, uint64(5), prev.Uint64())
	assert.True(t, state.HasSelfDestructed(testAddr))
	assert.True(t, state.GetBalance(testAddr).IsZero())
	require.NoError(t, state.Commit(true))

	state = New(db)
	assert.False(t, state.Exist(testAddr))
	assert.Equal(t, common.Hash{}, state.GetState(testAddr, testSlot))

	it := rawdb.IterateStorageSnapshots(db.DiskDB(), crypto.Keccak256Hash(testAddr.Bytes()), common.Hash{})
	defer it.Release()
	assert.False(t, it.Next())
}

// Tests that EIP-6780 self-destruct only applies to contracts created in the
// same transaction.
func TestSelfDestruct6780(t *testing.T) {
	db, state := newTestState()
	state.SetBalance(testAddr, uint256.NewInt(5))
	require.NoError(t, state.Commit(true))

	state = New(db)
	_, destructed := state.SelfDestruct6780(testAddr)
	assert.False(t, destructed)

	state.CreateAccount(testAddr2)
	state.CreateContract(testAddr2)
	_, destructed = state.SelfDestruct6780(testAddr2)
	assert.True(t, destructed)
}

// Tests the missing-data flow of a partial database: reads of unknown
// records are reported, and the same read succeeds once the record has been
// inserted.
// 部分数据库：缺失记录被报告，插入后重新执行即可读取。
func TestPartialStateMissingData(t *testing.T) {
	db := NewPartialDatabase(rawdb.NewMemoryDatabase())

	state := New(db)
	assert.True(t, state.GetBalance(testAddr).IsZero())
	missing := state.MissingData()
	require.NotNil(t, missing)
	assert.Equal(t, AccountData, missing.Kind)
	assert.Equal(t, testAddr, missing.Address)
	assert.Error(t, state.Commit(true))

	db.InsertAccount(testAddr, &types.StateAccount{Balance: uint256.NewInt(9), CodeHash: types.EmptyCodeHash.Bytes()})
	state = New(db)
	assert.Equal(t, uint256.NewInt(9), state.GetBalance(testAddr))
	assert.Nil(t, state.MissingData())

	assert.Equal(t, common.Hash{}, state.GetState(testAddr, testSlot))
	missing = state.MissingData()
	require.NotNil(t, missing)
	assert.Equal(t, StorageData, missing.Kind)
	assert.Equal(t, testSlot, missing.Slot)

	db.InsertStorage(testAddr, testSlot, common.HexToHash("0x77"))
	state = New(db)
	assert.Equal(t, common.HexToHash("0x77"), state.GetState(testAddr, testSlot))
	assert.NoError(t, state.Error())

	// Known absent accounts do not trigger a request.
	db.InsertAccount(testAddr2, nil)
	state = New(db)
	assert.False(t, state.Exist(testAddr2))
	assert.NoError(t, state.Error())
}

// Tests that a reset partial database forgets every account and slot, while
// codes stay readable.
func TestPartialStateReset(t *testing.T) {
	db := NewPartialDatabase(rawdb.NewMemoryDatabase())
	code := []byte{0x00}
	hash := db.InsertCode(code)
	db.InsertAccount(testAddr, &types.StateAccount{Balance: uint256.NewInt(9), CodeHash: hash.Bytes()})
	db.InsertStorage(testAddr, testSlot, common.HexToHash("0x77"))
	db.InsertAccount(testAddr2, nil)

	state := New(db)
	assert.Equal(t, uint256.NewInt(9), state.GetBalance(testAddr))
	require.NoError(t, db.Reset())

	state = New(db)
	assert.True(t, state.GetBalance(testAddr).IsZero())
	missing := state.MissingData()
	require.NotNil(t, missing)
	assert.Equal(t, AccountData, missing.Kind)

	state = New(db)
	state.GetBalance(testAddr2)
	require.NotNil(t, state.MissingData())

	db.InsertAccount(testAddr, &types.StateAccount{Balance: uint256.NewInt(9), CodeHash: hash.Bytes()})
	state = New(db)
	assert.Equal(t, code, state.GetCode(testAddr))
	assert.Equal(t, common.Hash{}, state.GetState(testAddr, testSlot))
	missing = state.MissingData()
	require.NotNil(t, missing)
	assert.Equal(t, StorageData, missing.Kind)
}

// Tests that missing code is reported with its hash.
func TestPartialStateMissingCode(t *testing.T) {
	db := NewPartialDatabase(rawdb.NewMemoryDatabase())
	code := []byte{0x00}
	hash := crypto.Keccak256Hash(code)
	db.InsertAccount(testAddr, &types.StateAccount{Balance: new(uint256.Int), CodeHash: hash.Bytes()})

	state := New(db)
	assert.Nil(t, state.GetCode(testAddr))
	missing := state.MissingData()
	require.NotNil(t, missing)
	assert.Equal(t, CodeData, missing.Kind)
	assert.Equal(t, hash, missing.CodeHash)

	assert.Equal(t, hash, db.InsertCode(code))
	state = New(db)
	assert.Equal(t, code, state.GetCode(testAddr))
	assert.Equal(t, 1, state.GetCodeSize(testAddr))
}

// Tests that zeroed slots are kept as known-empty markers in partial mode.
func TestPartialCommitMarkers(t *testing.T) {
	db := NewPartialDatabase(rawdb.NewMemoryDatabase())
	db.InsertAccount(testAddr, types.NewEmptyStateAccount())
	db.InsertStorage(testAddr, testSlot, common.HexToHash("0x01"))

	state := New(db)
	state.SetBalance(testAddr, uint256.NewInt(1))
	state.SetState(testAddr, testSlot, common.Hash{})
	require.NoError(t, state.Commit(true))

	addrHash, slotHash := crypto.Keccak256Hash(testAddr.Bytes()), crypto.Keccak256Hash(testSlot.Bytes())
	assert.True(t, rawdb.HasStorageSnapshot(db.DiskDB(), addrHash, slotHash))
	assert.Empty(t, rawdb.ReadStorageSnapshot(db.DiskDB(), addrHash, slotHash))

	state = New(db)
	assert.Equal(t, common.Hash{}, state.GetState(testAddr, testSlot))
	assert.Nil(t, state.MissingData())
}

// Tests that a copied state is independent of the original.
func TestCopy(t *testing.T) {
	_, orig := newTestState()
	orig.SetBalance(testAddr, uint256.NewInt(1))
	orig.SetState(testAddr, testSlot, common.HexToHash("0x01"))

	cpy := orig.Copy()
	cpy.SetBalance(testAddr, uint256.NewInt(2))
	cpy.SetState(testAddr, testSlot, common.HexToHash("0x02"))

	assert.Equal(t, uint256.NewInt(1), orig.GetBalance(testAddr))
	assert.Equal(t, common.HexToHash("0x01"), orig.GetState(testAddr, testSlot))
	assert.Equal(t, uint256.NewInt(2), cpy.GetBalance(testAddr))
	assert.Equal(t, common.HexToHash("0x02"), cpy.GetState(testAddr, testSlot))
}

func TestDump(t *testing.T) {
	db, state := newTestState()
	state.SetBalance(testAddr, uint256.NewInt(3))
	state.SetState(testAddr, testSlot, common.HexToHash("0xff"))
	require.NoError(t, state.Commit(true))

	dump := state.RawDump(nil)
	require.Len(t, dump.Accounts, 1)
	account, ok := dump.Accounts[testAddr.Hex()]
	require.True(t, ok)
	assert.Equal(t, "3", account.Balance)
	assert.Equal(t, "ff", account.Storage[crypto.Keccak256Hash(testSlot.Bytes())])

	// A fresh state does not know the address, the hash is used instead.
	dump = New(db).RawDump(&DumpConfig{SkipStorage: true})
	_, ok = dump.Accounts[crypto.Keccak256Hash(testAddr.Bytes()).Hex()]
	assert.True(t, ok)
}
