// Copyright 2014 The go-ethereum Authors
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

package downloader

import (
	"context"
	"math/big"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/consensus/beacon"
	"github.com/sunyihoo/evmsync/core"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
	"github.com/sunyihoo/evmsync/eth/protocols/snap"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

var (
	testSender    = common.HexToAddress("0x71562b71999873db5b286df957af199ec94617f7")
	testRecipient = common.HexToAddress("0x703c4b2bd70c169f5717101caee543299fc946c7")
	testCoinbase  = common.HexToAddress("0xc014ba5e")
	testContract  = common.HexToAddress("0xc0de")

	// PUSH1 0 SLOAD STOP
	testCode = []byte{0x60, 0x00, 0x54, 0x00}
)

func newTestGenesis() *core.Genesis {
	return &core.Genesis{
		Config: params.ConfigForFork(forks.Prague, big.NewInt(1337)),
		Alloc: core.GenesisAlloc{
			testSender: {Balance: big.NewInt(params.Ether)},
			testContract: {
				Balance: big.NewInt(1),
				Code:    testCode,
				Storage: map[common.Hash]common.Hash{
					common.HexToHash("0x01"): common.HexToHash("0xaa"),
					common.HexToHash("0x02"): common.HexToHash("0xbb"),
				},
			},
		},
	}
}

// newTestBlocks generates n blocks with one value transfer each.
func newTestBlocks(t *testing.T, gspec *core.Genesis, n int) []*types.Block {
	t.Helper()
	_, blocks, _ := core.GenerateChainWithGenesis(gspec, n, func(i int, b *core.BlockGen) {
		b.SetCoinbase(testCoinbase)
		b.AddTx(&types.Transaction{
			Type:      types.DynamicFeeTxType,
			ChainID:   uint256.NewInt(1337),
			Nonce:     b.TxNonce(testSender),
			GasTipCap: uint256.NewInt(1),
			GasFeeCap: new(uint256.Int).AddUint64(uint256.MustFromBig(b.BaseFee()), 1),
			Gas:       params.TxGas,
			To:        &testRecipient,
			Value:     uint256.NewInt(1000),
			From:      testSender,
		})
	})
	return blocks
}

func newTestChain(t *testing.T, gspec *core.Genesis, cfg *core.BlockChainConfig, blocks []*types.Block) *core.BlockChain {
	t.Helper()
	chain, err := core.NewBlockChain(rawdb.NewMemoryDatabase(), gspec, beacon.New(), cfg)
	require.NoError(t, err)
	t.Cleanup(chain.Stop)

	if len(blocks) > 0 {
		insertBlocks(t, chain, blocks)
	}
	return chain
}

func newTestDownloader(t *testing.T, chain BlockChain, cfg Config, drop peerDropFn) *Downloader {
	t.Helper()
	cfg.PollInterval = 10 * time.Millisecond
	d := New(cfg, chain, drop)
	t.Cleanup(d.Stop)
	return d
}

// testPeer serves chain data and head state straight from a local chain.
type testPeer struct {
	id    string
	chain *core.BlockChain
}

func newTestPeer(id string, chain *core.BlockChain) *testPeer {
	return &testPeer{id: id, chain: chain}
}

func (p *testPeer) register(t *testing.T, d *Downloader) {
	t.Helper()
	require.NoError(t, d.RegisterPeer(p.id, p))
	require.NoError(t, d.RegisterSnapPeer(p.id, p))
}

func (p *testPeer) ID() string { return p.id }

func (p *testPeer) Head() (common.Hash, uint64) {
	head := p.chain.CurrentBlock()
	return head.Hash(), head.Number.Uint64()
}

func (p *testPeer) RequestHeaders(_ context.Context, req *eth.GetBlockHeadersRequest) ([]*types.Header, error) {
	return eth.ServiceGetBlockHeadersQuery(p.chain, req), nil
}

func (p *testPeer) RequestBlocks(_ context.Context, req *eth.BlocksRequest) error {
	bodies := make([]*types.Body, len(req.BodyHeaders))
	for i, header := range req.BodyHeaders {
		bodies[i] = p.chain.GetBody(header.Hash())
	}
	receipts := make([]types.Receipts, len(req.ReceiptHeaders))
	for i, header := range req.ReceiptHeaders {
		if res := eth.ServiceGetReceiptsQuery(p.chain, []common.Hash{header.Hash()}); len(res) > 0 {
			receipts[i] = res[0]
		}
	}
	if err := req.SetBodies(bodies); err != nil {
		return err
	}
	return req.SetReceipts(receipts)
}

func (p *testPeer) RequestAccountRange(_ context.Context, req *snap.AccountRangeRequest) ([]common.Hash, [][]byte, error) {
	res := &snap.AccountRangePacket{
		Accounts: snap.ServiceGetAccountRangeQuery(p.chain, &snap.GetAccountRangePacket{
			Root: req.Root, Origin: req.Origin, Limit: req.Limit, Bytes: req.Bytes,
		}),
	}
	hashes, accounts := res.Unpack()
	return hashes, accounts, nil
}

func (p *testPeer) RequestStorageRanges(_ context.Context, req *snap.StorageRangeRequest) ([][]common.Hash, [][][]byte, error) {
	res := &snap.StorageRangesPacket{
		Slots: snap.ServiceGetStorageRangesQuery(p.chain, &snap.GetStorageRangesPacket{
			Root: req.Root, Accounts: req.Accounts, Origin: req.Origin, Limit: req.Limit, Bytes: req.Bytes,
		}),
	}
	hashes, slots := res.Unpack()
	return hashes, slots, nil
}

func (p *testPeer) RequestByteCodes(_ context.Context, hashes []common.Hash, bytes uint64) ([][]byte, error) {
	return snap.ServiceGetByteCodesQuery(p.chain, &snap.GetByteCodesPacket{Hashes: hashes, Bytes: bytes}), nil
}

// truncatingPeer answers header requests with one header too few.
type truncatingPeer struct {
	*testPeer
}

func (p *truncatingPeer) RequestHeaders(ctx context.Context, req *eth.GetBlockHeadersRequest) ([]*types.Header, error) {
	headers, err := p.testPeer.RequestHeaders(ctx, req)
	if len(headers) > 0 {
		headers = headers[:len(headers)-1]
	}
	return headers, err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 30*time.Second, 10*time.Millisecond, "timed out waiting for %s", what)
}

func headAt(chain *core.BlockChain, number uint64) func() bool {
	return func() bool { return chain.CurrentBlock().Number.Uint64() >= number }
}

func TestFullSync(t *testing.T) {
	gspec := newTestGenesis()
	blocks := newTestBlocks(t, gspec, 300)
	source := newTestChain(t, gspec, nil, blocks)
	local := newTestChain(t, gspec, nil, nil)

	d := newTestDownloader(t, local, Config{}, nil)
	assert.True(t, d.Mode().Has(Disconnected))
	assert.Equal(t, Syncing, d.Status())

	newTestPeer("source", source).register(t, d)
	require.NoError(t, d.Start())
	require.ErrorIs(t, d.Start(), errFeedRunning)

	waitFor(t, "block import", headAt(local, 300))
	assert.Equal(t, source.CurrentBlock().Hash(), local.CurrentBlock().Hash())
	assert.Equal(t, source.State().GetBalance(testRecipient), local.State().GetBalance(testRecipient))
	assert.Equal(t, source.State().GetNonce(testSender), local.State().GetNonce(testSender))

	waitFor(t, "synced status", d.Synced)
	mode := d.Mode()
	assert.True(t, mode.Has(Full|WaitingForBlock))
	assert.False(t, mode.Has(Disconnected))
	assert.False(t, mode.Has(FastBlocks))

	progress := d.Progress()
	assert.Zero(t, progress.StartingBlock)
	assert.Equal(t, uint64(300), progress.CurrentBlock)
	assert.Equal(t, uint64(300), progress.HighestBlock)
	assert.Zero(t, progress.PivotBlock)
}

func TestSnapSync(t *testing.T) {
	gspec := newTestGenesis()
	blocks := newTestBlocks(t, gspec, 50)
	source := newTestChain(t, gspec, nil, blocks[:40])
	local := newTestChain(t, gspec, &core.BlockChainConfig{Execute: true, PartialState: true}, nil)

	d := newTestDownloader(t, local, Config{SnapSync: true, Headers: true, Bodies: true, Receipts: true}, nil)
	newTestPeer("source", source).register(t, d)
	require.NoError(t, d.Start())

	waitFor(t, "pivot commit", headAt(local, 40))
	require.NotNil(t, d.Pivot())
	assert.Equal(t, source.CurrentBlock().Hash(), d.Pivot().Hash())
	assert.Equal(t, source.CurrentBlock().Hash(), local.CurrentBlock().Hash())

	progress := d.Progress()
	assert.Equal(t, uint64(40), progress.PivotBlock)
	assert.Equal(t, uint64(4), progress.SyncedAccounts)
	assert.Equal(t, uint64(2), progress.SyncedStorage)
	assert.Equal(t, uint64(1), progress.SyncedBytecodes)

	want, have := source.State(), local.State()
	for _, addr := range []common.Address{testSender, testRecipient, testCoinbase, testContract} {
		assert.Equal(t, want.GetBalance(addr), have.GetBalance(addr), "balance of %x", addr)
		assert.Equal(t, want.GetNonce(addr), have.GetNonce(addr), "nonce of %x", addr)
	}
	assert.Equal(t, testCode, have.GetCode(testContract))
	assert.Equal(t, common.HexToHash("0xbb"), have.GetState(testContract, common.HexToHash("0x02")))
	require.NoError(t, have.Error())

	// Blocks arriving after the pivot are executed on the downloaded state.
	insertBlocks(t, source, blocks[40:])
	waitFor(t, "block import", headAt(local, 50))
	assert.Equal(t, source.CurrentBlock().Hash(), local.CurrentBlock().Hash())
	assert.Equal(t, source.State().GetBalance(testRecipient), local.State().GetBalance(testRecipient))

	waitFor(t, "block data", func() bool { return local.CurrentSnapBlock().Number.Uint64() >= 50 })
	waitFor(t, "synced status", d.Synced)
	mode := d.Mode()
	assert.False(t, mode.HaveNotSyncedPivot())
	assert.False(t, mode.HaveNotSyncedState())
	assert.False(t, mode.HaveNotSyncedBodies())
	assert.Zero(t, d.Progress().HealedRecords)
	for n := uint64(1); n <= 40; n++ {
		hash := local.GetCanonicalHash(n)
		assert.NotNil(t, local.GetReceiptsByHash(hash), "receipts of #%d", n)
	}
}

func TestFastSyncHealsState(t *testing.T) {
	gspec := newTestGenesis()
	blocks := newTestBlocks(t, gspec, 21)
	behind := newTestChain(t, gspec, nil, blocks[:20])
	ahead := newTestChain(t, gspec, nil, blocks)
	local := newTestChain(t, gspec, &core.BlockChainConfig{Execute: true, PartialState: true}, nil)

	d := newTestDownloader(t, local, Config{FastSync: true, Headers: true, Bodies: true, Receipts: true}, nil)
	newTestPeer("behind", behind).register(t, d)
	require.NoError(t, d.Start())

	// Without snap the pivot is committed with no state at all.
	waitFor(t, "pivot commit", headAt(local, 20))
	assert.Zero(t, d.Progress().SyncedAccounts)

	newTestPeer("ahead", ahead).register(t, d)
	waitFor(t, "block import", headAt(local, 21))
	assert.Equal(t, ahead.CurrentBlock().Hash(), local.CurrentBlock().Hash())
	assert.NotZero(t, d.Progress().HealedRecords)

	want, have := ahead.State(), local.State()
	assert.Equal(t, want.GetBalance(testRecipient), have.GetBalance(testRecipient))
	assert.Equal(t, want.GetNonce(testSender), have.GetNonce(testSender))
	assert.Equal(t, want.GetBalance(testCoinbase), have.GetBalance(testCoinbase))
}

func TestBadPeerDropped(t *testing.T) {
	gspec := newTestGenesis()
	source := newTestChain(t, gspec, nil, newTestBlocks(t, gspec, 10))
	local := newTestChain(t, gspec, nil, nil)

	var (
		lock    sync.Mutex
		dropped []string
	)
	drop := func(id string) {
		lock.Lock()
		defer lock.Unlock()
		dropped = append(dropped, id)
	}
	d := newTestDownloader(t, local, Config{}, drop)
	require.NoError(t, d.RegisterPeer("bad", &truncatingPeer{newTestPeer("bad", source)}))
	require.NoError(t, d.Start())

	waitFor(t, "peer drop", func() bool {
		lock.Lock()
		defer lock.Unlock()
		return slices.Contains(dropped, "bad")
	})
	assert.Zero(t, local.CurrentBlock().Number.Uint64())
}

func TestPeerRegistration(t *testing.T) {
	gspec := newTestGenesis()
	source := newTestChain(t, gspec, nil, nil)
	d := newTestDownloader(t, newTestChain(t, gspec, nil, nil), Config{NoSync: true}, nil)

	peer := newTestPeer("peer", source)
	require.ErrorIs(t, d.RegisterSnapPeer(peer.id, peer), errNotRegistered)
	require.NoError(t, d.RegisterPeer(peer.id, peer))
	require.ErrorIs(t, d.RegisterPeer(peer.id, peer), errAlreadyRegistered)
	assert.False(t, d.Mode().Has(Disconnected))

	require.NoError(t, d.UnregisterPeer(peer.id))
	require.ErrorIs(t, d.UnregisterPeer(peer.id), errNotRegistered)
	assert.True(t, d.Mode().Has(Disconnected))

	// With syncing disabled no feed runs.
	require.NoError(t, d.Start())
	assert.Zero(t, d.Mode()&^Disconnected)
}

// insertBlocks imports blocks the way the sync feeds do: headers first, then
// the full blocks on top of the canonical headers.
func insertBlocks(t *testing.T, chain *core.BlockChain, blocks []*types.Block) {
	t.Helper()
	headers := make([]*types.Header, len(blocks))
	for i, block := range blocks {
		headers[i] = block.Header()
	}
	_, err := chain.InsertHeaderChain(headers)
	require.NoError(t, err)
	_, err = chain.InsertChain(blocks)
	require.NoError(t, err)
}
