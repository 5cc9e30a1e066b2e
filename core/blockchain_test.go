// Copyright 2025 The go-ethereum Authors
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

package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/consensus/beacon"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
	"github.com/sunyihoo/evmsync/rlp"
)

var (
	bcSender    = common.HexToAddress("0x71562b71999873db5b286df957af199ec94617f7")
	bcRecipient = common.HexToAddress("0x703c4b2bd70c169f5717101caee543299fc946c7")
	bcCoinbase  = common.HexToAddress("0xc014ba5e")
)

func newTestGenesis() *Genesis {
	return &Genesis{
		Config: params.ConfigForFork(forks.Prague, big.NewInt(1337)),
		Alloc: GenesisAlloc{
			bcSender: {Balance: big.NewInt(params.Ether)},
		},
	}
}

// newTransferChain generates n blocks with one value transfer each.
func newTransferChain(t *testing.T, gspec *Genesis, n int) ([]*types.Block, []types.Receipts) {
	t.Helper()
	_, blocks, receipts := GenerateChainWithGenesis(gspec, n, func(i int, b *BlockGen) {
		b.SetCoinbase(bcCoinbase)
		b.AddTx(&types.Transaction{
			Type:      types.DynamicFeeTxType,
			ChainID:   uint256.NewInt(1337),
			Nonce:     b.TxNonce(bcSender),
			GasTipCap: uint256.NewInt(1),
			GasFeeCap: new(uint256.Int).AddUint64(uint256.MustFromBig(b.BaseFee()), 1),
			Gas:       params.TxGas,
			To:        &bcRecipient,
			Value:     uint256.NewInt(1000),
			From:      bcSender,
		})
	})
	return blocks, receipts
}

func newTestBlockChain(t *testing.T, gspec *Genesis, cfg *BlockChainConfig) *BlockChain {
	t.Helper()
	bc, err := NewBlockChain(rawdb.NewMemoryDatabase(), gspec, beacon.New(), cfg)
	require.NoError(t, err)
	t.Cleanup(bc.Stop)
	return bc
}

func headersOf(blocks []*types.Block) []*types.Header {
	headers := make([]*types.Header, len(blocks))
	for i, block := range blocks {
		headers[i] = block.Header()
	}
	return headers
}

func TestHeaderChainExtension(t *testing.T) {
	gspec := newTestGenesis()
	bc := newTestBlockChain(t, gspec, nil)
	headers := makeHeaderChain(gspec.Config, bc.Genesis().Header(), 5, rawdb.NewMemoryDatabase(), 1)

	n, err := bc.InsertHeaderChain(headers[:3])
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, headers[2].Hash(), bc.CurrentHeader().Hash())

	// Re-importing known headers is a no-op.
	_, err = bc.InsertHeaderChain(headers[:3])
	require.NoError(t, err)
	assert.Equal(t, headers[2].Hash(), bc.CurrentHeader().Hash())

	_, err = bc.InsertHeaderChain(headers[3:])
	require.NoError(t, err)
	for _, header := range headers {
		assert.Equal(t, header.Hash(), bc.GetCanonicalHash(header.Number.Uint64()))
		assert.True(t, bc.HasHeader(header.Hash(), header.Number.Uint64()))
	}
	assert.Equal(t, headers[4].Hash(), bc.GetHeaderByNumber(5).Hash())
	assert.Equal(t, uint64(0), bc.CurrentBlock().Number.Uint64())
}

// Tests that the longest header chain wins, and that an equally long side
// chain does not replace the first one seen.
func TestHeaderChainReorg(t *testing.T) {
	gspec := newTestGenesis()
	bc := newTestBlockChain(t, gspec, nil)
	genesis := bc.Genesis().Header()

	short := makeHeaderChain(gspec.Config, genesis, 3, rawdb.NewMemoryDatabase(), 1)
	long := makeHeaderChain(gspec.Config, genesis, 5, rawdb.NewMemoryDatabase(), 2)
	tie := makeHeaderChain(gspec.Config, genesis, 5, rawdb.NewMemoryDatabase(), 3)

	_, err := bc.InsertHeaderChain(short)
	require.NoError(t, err)
	_, err = bc.InsertHeaderChain(long)
	require.NoError(t, err)
	assert.Equal(t, long[4].Hash(), bc.CurrentHeader().Hash())
	for _, header := range long {
		assert.Equal(t, header.Hash(), bc.GetCanonicalHash(header.Number.Uint64()))
	}
	// The replaced headers stay retrievable by hash.
	assert.NotNil(t, bc.GetHeaderByHash(short[2].Hash()))

	_, err = bc.InsertHeaderChain(tie)
	require.NoError(t, err)
	assert.Equal(t, long[4].Hash(), bc.CurrentHeader().Hash())

	// Going back to the short chain only happens once it is longer.
	longer := makeHeaderChain(gspec.Config, short[2], 3, rawdb.NewMemoryDatabase(), 1)
	_, err = bc.InsertHeaderChain(longer)
	require.NoError(t, err)
	assert.Equal(t, longer[2].Hash(), bc.CurrentHeader().Hash())
	assert.Equal(t, short[0].Hash(), bc.GetCanonicalHash(1))
	assert.Equal(t, uint64(6), bc.CurrentHeader().Number.Uint64())
}

func TestHeaderChainRejects(t *testing.T) {
	gspec := newTestGenesis()
	bc := newTestBlockChain(t, gspec, nil)
	headers := makeHeaderChain(gspec.Config, bc.Genesis().Header(), 4, rawdb.NewMemoryDatabase(), 1)

	_, err := bc.InsertHeaderChain(headers[2:])
	assert.ErrorIs(t, err, ErrUnknownAncestor)

	_, err = bc.InsertHeaderChain([]*types.Header{headers[0], headers[2]})
	assert.Error(t, err)

	bad := types.CopyHeader(headers[1])
	bad.Time = headers[0].Time
	n, err := bc.InsertHeaderChain([]*types.Header{headers[0], bad})
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(0), bc.CurrentHeader().Number.Uint64())
}

func TestInsertChainExecutes(t *testing.T) {
	gspec := newTestGenesis()
	blocks, receipts := newTransferChain(t, gspec, 3)
	bc := newTestBlockChain(t, gspec, nil)

	heads := make(chan ChainHeadEvent, 4)
	sub := bc.SubscribeChainHeadEvent(heads)
	defer sub.Unsubscribe()

	// Bodies are only accepted on top of canonical headers.
	_, err := bc.InsertChain(blocks)
	assert.ErrorIs(t, err, ErrNotCanonical)

	_, err = bc.InsertHeaderChain(headersOf(blocks))
	require.NoError(t, err)
	select {
	case ev := <-heads:
		assert.Equal(t, blocks[2].Hash(), ev.Header.Hash())
	case <-time.After(time.Second):
		t.Fatal("no head event after header import")
	}

	n, err := bc.InsertChain(blocks)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, blocks[2].Hash(), bc.CurrentBlock().Hash())
	assert.Equal(t, blocks[2].Hash(), bc.CurrentSnapBlock().Hash())

	statedb := bc.State()
	assert.Equal(t, uint256.NewInt(3000), statedb.GetBalance(bcRecipient))
	assert.Equal(t, uint64(3), statedb.GetNonce(bcSender))
	assert.False(t, statedb.GetBalance(bcCoinbase).IsZero())

	for i, block := range blocks {
		stored := bc.GetReceiptsByHash(block.Hash())
		require.Len(t, stored, 1)
		assert.Equal(t, types.ReceiptStatusSuccessful, stored[0].Status)
		assert.Equal(t, receipts[i].Hash(), stored.Hash())
		assert.Equal(t, block.Hash(), bc.GetBlockByNumber(block.NumberU64()).Hash())
	}
	// Blocks at or below the head are skipped.
	n, err = bc.InsertChain(blocks[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, blocks[2].Hash(), bc.CurrentBlock().Hash())
}

func TestInsertChainRequiresParentState(t *testing.T) {
	gspec := newTestGenesis()
	blocks, _ := newTransferChain(t, gspec, 3)
	bc := newTestBlockChain(t, gspec, nil)

	_, err := bc.InsertHeaderChain(headersOf(blocks))
	require.NoError(t, err)
	n, err := bc.InsertChain(blocks[1:])
	assert.ErrorIs(t, err, ErrUnknownAncestor)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint64(0), bc.CurrentBlock().Number.Uint64())
}

func TestInsertChainBodiesOnly(t *testing.T) {
	gspec := newTestGenesis()
	blocks, _ := newTransferChain(t, gspec, 3)
	bc := newTestBlockChain(t, gspec, &BlockChainConfig{})

	_, err := bc.InsertHeaderChain(headersOf(blocks))
	require.NoError(t, err)

	// A gap keeps the body head in place.
	_, err = bc.InsertChain(blocks[1:2])
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bc.CurrentBlock().Number.Uint64())
	assert.True(t, bc.HasBlock(blocks[1].Hash(), 2))

	_, err = bc.InsertChain(blocks[:1])
	require.NoError(t, err)
	assert.Equal(t, blocks[1].Hash(), bc.CurrentBlock().Hash())

	body := bc.GetBody(blocks[0].Hash())
	require.NotNil(t, body)
	require.Len(t, body.Transactions, 1)
	assert.Equal(t, blocks[0].Transactions()[0].Hash(), body.Transactions[0].Hash())

	// Nothing was executed.
	assert.True(t, bc.State().GetBalance(bcRecipient).IsZero())
}

func TestInsertBodyChain(t *testing.T) {
	gspec := newTestGenesis()
	blocks, _ := newTransferChain(t, gspec, 3)
	bc := newTestBlockChain(t, gspec, &BlockChainConfig{})

	// Bodies of unknown headers are refused.
	_, err := bc.InsertBodyChain(blocks[:1])
	assert.ErrorIs(t, err, ErrNotCanonical)

	_, err = bc.InsertHeaderChain(headersOf(blocks))
	require.NoError(t, err)
	n, err := bc.InsertBodyChain(blocks)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Stored, but no head moved.
	for _, block := range blocks {
		assert.True(t, bc.HasBlock(block.Hash(), block.NumberU64()))
	}
	assert.Equal(t, uint64(0), bc.CurrentBlock().Number.Uint64())
	assert.Equal(t, uint64(0), bc.CurrentSnapBlock().Number.Uint64())
}

func TestInsertReceiptChain(t *testing.T) {
	gspec := newTestGenesis()
	blocks, receipts := newTransferChain(t, gspec, 3)
	bc := newTestBlockChain(t, gspec, &BlockChainConfig{})

	_, err := bc.InsertHeaderChain(headersOf(blocks))
	require.NoError(t, err)

	_, err = bc.InsertReceiptChain(blocks[:1], []types.Receipts{nil})
	assert.ErrorIs(t, err, ErrReceiptsMismatch)
	_, err = bc.InsertReceiptChain(blocks, receipts[:1])
	assert.ErrorIs(t, err, ErrReceiptsMismatch)

	n, err := bc.InsertReceiptChain(blocks, receipts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, blocks[2].Hash(), bc.CurrentSnapBlock().Hash())
	assert.Equal(t, uint64(0), bc.CurrentBlock().Number.Uint64())

	stored := bc.GetReceiptsByHash(blocks[1].Hash())
	require.Len(t, stored, 1)
	assert.Equal(t, blocks[1].Hash(), stored[0].BlockHash)
	assert.Equal(t, uint64(2), stored[0].BlockNumber.Uint64())
}

// Tests the snap sync flow: state ranges are written directly and the pivot
// becomes the head block once committed.
func TestSnapSyncCommitHead(t *testing.T) {
	gspec := newTestGenesis()
	blocks, receipts := newTransferChain(t, gspec, 3)
	bc := newTestBlockChain(t, gspec, &BlockChainConfig{})

	_, err := bc.InsertHeaderChain(headersOf(blocks))
	require.NoError(t, err)
	assert.ErrorIs(t, bc.SnapSyncCommitHead(common.Hash{1}), ErrNotCanonical)
	assert.Error(t, bc.SnapSyncCommitHead(blocks[2].Hash()))

	_, err = bc.InsertReceiptChain(blocks, receipts)
	require.NoError(t, err)

	code := []byte{0x60, 0x2a, 0x60, 0x00, 0x55}
	codeHash := crypto.Keccak256Hash(code)
	account := &types.StateAccount{Nonce: 1, Balance: uint256.NewInt(77), CodeHash: codeHash[:]}
	accountHash := crypto.Keccak256Hash(bcRecipient[:])
	require.NoError(t, bc.InsertAccountRange([]common.Hash{accountHash}, [][]byte{account.EncodeRLP()}))
	assert.Error(t, bc.InsertAccountRange([]common.Hash{accountHash}, nil))
	assert.Error(t, bc.InsertAccountRange([]common.Hash{accountHash}, [][]byte{{0x01}}))

	slot := common.HexToHash("0x01")
	value := common.HexToHash("0x2a")
	slotHash := crypto.Keccak256Hash(slot[:])
	blob := rlp.AppendString(nil, common.TrimLeftZeroes(value[:]))
	require.NoError(t, bc.InsertStorageRange(accountHash, []common.Hash{slotHash}, [][]byte{blob}))
	bc.InsertCodes([][]byte{code})

	require.NoError(t, bc.SnapSyncCommitHead(blocks[2].Hash()))
	assert.Equal(t, blocks[2].Hash(), bc.CurrentBlock().Hash())
	pivot := rawdb.ReadLastPivotNumber(bc.db)
	require.NotNil(t, pivot)
	assert.Equal(t, uint64(3), *pivot)

	statedb := bc.State()
	assert.Equal(t, uint256.NewInt(77), statedb.GetBalance(bcRecipient))
	assert.Equal(t, uint64(1), statedb.GetNonce(bcRecipient))
	assert.Equal(t, code, statedb.GetCode(bcRecipient))
	assert.Equal(t, value, statedb.GetState(bcRecipient, slot))
}

// Tests that committing a pivot over a wiped state leaves no genesis record
// behind: the first read of the pivot state is reported as missing instead of
// returning the stale genesis balance.
func TestResetStateBeforePivotCommit(t *testing.T) {
	gspec := newTestGenesis()
	blocks, receipts := newTransferChain(t, gspec, 3)

	full := newTestBlockChain(t, gspec, nil)
	assert.Error(t, full.ResetState())

	bc := newTestBlockChain(t, gspec, &BlockChainConfig{Execute: true, PartialState: true})
	assert.Equal(t, uint256.NewInt(params.Ether), bc.State().GetBalance(bcSender))

	_, err := bc.InsertHeaderChain(headersOf(blocks))
	require.NoError(t, err)
	_, err = bc.InsertReceiptChain(blocks, receipts)
	require.NoError(t, err)
	require.NoError(t, bc.ResetState())
	require.NoError(t, bc.SnapSyncCommitHead(blocks[2].Hash()))

	statedb := bc.State()
	statedb.GetNonce(bcSender)
	missing := statedb.MissingData()
	require.NotNil(t, missing)
	assert.Equal(t, bcSender, missing.Address)
}

// Tests that the chain head survives a restart on the same database.
func TestBlockChainReopen(t *testing.T) {
	gspec := newTestGenesis()
	blocks, _ := newTransferChain(t, gspec, 2)
	db := rawdb.NewMemoryDatabase()

	bc, err := NewBlockChain(db, gspec, beacon.New(), nil)
	require.NoError(t, err)
	_, err = bc.InsertHeaderChain(headersOf(blocks))
	require.NoError(t, err)
	_, err = bc.InsertChain(blocks)
	require.NoError(t, err)
	bc.Stop()

	_, err = bc.InsertChain(blocks)
	assert.ErrorIs(t, err, errChainStopped)

	bc, err = NewBlockChain(db, nil, beacon.New(), nil)
	require.NoError(t, err)
	defer bc.Stop()
	assert.Equal(t, blocks[1].Hash(), bc.CurrentBlock().Hash())
	assert.Equal(t, blocks[1].Hash(), bc.CurrentHeader().Hash())
	assert.Equal(t, uint256.NewInt(2000), bc.State().GetBalance(bcRecipient))
}
