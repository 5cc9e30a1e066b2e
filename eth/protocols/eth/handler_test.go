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

package eth

import (
	"context"
	"math/big"
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
	"github.com/sunyihoo/evmsync/p2p"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
	"github.com/sunyihoo/evmsync/rlp"
)

var (
	testSender    = common.HexToAddress("0x71562b71999873db5b286df957af199ec94617f7")
	testRecipient = common.HexToAddress("0x703c4b2bd70c169f5717101caee543299fc946c7")
)

const testNetwork = 1337

func testGenesis() *core.Genesis {
	return &core.Genesis{
		Config: params.ConfigForFork(forks.Prague, big.NewInt(testNetwork)),
		Alloc: core.GenesisAlloc{
			testSender: {Balance: big.NewInt(params.Ether)},
		},
	}
}

// newTestChain creates an executing chain with n blocks of one transfer each.
func newTestChain(t *testing.T, n int) (*core.BlockChain, []*types.Block) {
	t.Helper()
	gspec := testGenesis()
	_, blocks, _ := core.GenerateChainWithGenesis(gspec, n, func(i int, b *core.BlockGen) {
		b.AddTx(&types.Transaction{
			Type:      types.DynamicFeeTxType,
			ChainID:   uint256.NewInt(testNetwork),
			Nonce:     b.TxNonce(testSender),
			GasTipCap: uint256.NewInt(1),
			GasFeeCap: new(uint256.Int).AddUint64(uint256.MustFromBig(b.BaseFee()), 1),
			Gas:       params.TxGas,
			To:        &testRecipient,
			Value:     uint256.NewInt(1),
			From:      testSender,
		})
	})
	chain, err := core.NewBlockChain(rawdb.NewMemoryDatabase(), testGenesis(), beacon.New(), nil)
	require.NoError(t, err)
	t.Cleanup(chain.Stop)

	if n > 0 {
		insertBlocks(t, chain, blocks)
	}
	return chain, blocks
}

// newEmptyChain creates a chain holding only the test genesis.
func newEmptyChain(t *testing.T) *core.BlockChain {
	chain, _ := newTestChain(t, 0)
	return chain
}

type testBackend struct {
	chain Chain
}

func (b *testBackend) Chain() Chain { return b.chain }

func (b *testBackend) RunPeer(peer *Peer, handler Handler) error { return handler(peer) }

func (b *testBackend) PeerInfo(id string) interface{} { return nil }

// newTestPeers connects a client peer to a server peer over a message pipe.
// Both sides run the message handler; the server serves from chain.
func newTestPeers(t *testing.T, client, server Chain) *Peer {
	t.Helper()
	app, net := p2p.MsgPipe()
	local := NewPeer(ETH69, p2p.NewPeer(common.Hash{1}, "client", nil), app)
	remote := NewPeer(ETH69, p2p.NewPeer(common.Hash{2}, "server", nil), net)

	go Handle(&testBackend{chain: server}, remote)
	go Handle(&testBackend{chain: client}, local)

	t.Cleanup(func() {
		app.Close()
		local.Close()
		remote.Close()
	})
	return local
}

func numbersOf(headers []*types.Header) []uint64 {
	numbers := make([]uint64, len(headers))
	for i, h := range headers {
		numbers[i] = h.Number.Uint64()
	}
	return numbers
}

func TestServiceGetBlockHeadersQuery(t *testing.T) {
	chain, blocks := newTestChain(t, 10)
	hashOf := func(n int) common.Hash { return blocks[n-1].Hash() }

	tests := []struct {
		name  string
		query *GetBlockHeadersRequest
		want  []uint64
	}{
		{"empty", &GetBlockHeadersRequest{Origin: HashOrNumber{Number: 1}}, nil},
		{"contiguous by number", NewHeadersRequest(HashOrNumber{Number: 2}, 3, false), []uint64{2, 3, 4}},
		{"contiguous by hash", NewHeadersRequest(HashOrNumber{Hash: hashOf(2)}, 3, false), []uint64{2, 3, 4}},
		{"reverse by number", NewHeadersRequest(HashOrNumber{Number: 5}, 3, true), []uint64{5, 4, 3}},
		{"reverse by hash", NewHeadersRequest(HashOrNumber{Hash: hashOf(5)}, 3, true), []uint64{5, 4, 3}},
		{"beyond head", NewHeadersRequest(HashOrNumber{Number: 9}, 5, false), []uint64{9, 10}},
		{"reverse past genesis", NewHeadersRequest(HashOrNumber{Number: 1}, 5, true), []uint64{1, 0}},
		{"unknown origin", NewHeadersRequest(HashOrNumber{Number: 11}, 1, false), nil},
		{"skip by number", &GetBlockHeadersRequest{Origin: HashOrNumber{Number: 0}, Amount: 3, Skip: 1}, []uint64{0, 2, 4}},
		{"skip by hash", &GetBlockHeadersRequest{Origin: HashOrNumber{Hash: hashOf(2)}, Amount: 3, Skip: 2}, []uint64{2, 5, 8}},
		{"skip reverse by hash", &GetBlockHeadersRequest{Origin: HashOrNumber{Hash: hashOf(9)}, Amount: 4, Skip: 2, Reverse: true}, []uint64{9, 6, 3, 0}},
		{"skip reverse by number", &GetBlockHeadersRequest{Origin: HashOrNumber{Number: 7}, Amount: 5, Skip: 3, Reverse: true}, []uint64{7, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := tt.query.Origin
			headers := ServiceGetBlockHeadersQuery(chain, tt.query)
			if tt.want == nil {
				assert.Empty(t, headers)
			} else {
				assert.Equal(t, tt.want, numbersOf(headers))
			}
			assert.Equal(t, origin, tt.query.Origin, "query must not be modified")
		})
	}
}

func TestServiceGetBlockBodiesQuery(t *testing.T) {
	chain, blocks := newTestChain(t, 3)

	bodies := ServiceGetBlockBodiesQuery(chain, []common.Hash{blocks[0].Hash(), {0xde, 0xad}, blocks[2].Hash()})
	require.Len(t, bodies, 2)
	assert.Equal(t, blocks[0].TxHash(), types.Transactions(bodies[0].Transactions).Hash())
	assert.Equal(t, blocks[2].TxHash(), types.Transactions(bodies[1].Transactions).Hash())
}

func TestServiceGetReceiptsQuery(t *testing.T) {
	chain, blocks := newTestChain(t, 2)

	receipts := ServiceGetReceiptsQuery(chain, []common.Hash{chain.Genesis().Hash(), {0xbe, 0xef}, blocks[1].Hash()})
	require.Len(t, receipts, 2)
	assert.Empty(t, receipts[0], "genesis has an empty receipt list")
	assert.Equal(t, blocks[1].ReceiptHash(), receipts[1].Hash())
}

func TestNewSkeletonRequest(t *testing.T) {
	_, err := NewSkeletonRequest(0, 0, 10, false)
	assert.ErrorIs(t, err, ErrInvalidStride)

	req, err := NewSkeletonRequest(100, 4, 10, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), req.Skip)
	assert.Equal(t, uint64(4), req.Stride())
	assert.Equal(t, uint64(100), req.Origin.Number)
}

func TestAlignBodies(t *testing.T) {
	_, blocks := newTestChain(t, 3)
	headers := make([]*types.Header, len(blocks))
	for i, b := range blocks {
		headers[i] = b.Header()
	}
	aligned := alignBodies(headers, []*types.Body{blocks[0].Body(), blocks[2].Body()})
	require.Len(t, aligned, 3)
	assert.NotNil(t, aligned[0])
	assert.Nil(t, aligned[1])
	assert.NotNil(t, aligned[2])

	req := NewBlocksRequest(headers, nil)
	assert.ErrorIs(t, req.SetBodies(aligned[:2]), ErrResponseAlignment)
	require.NoError(t, req.SetBodies(aligned))
	require.NoError(t, req.SetReceipts(nil))
	assert.False(t, req.Complete())

	require.NoError(t, req.SetBodies(alignBodies(headers, []*types.Body{blocks[0].Body(), blocks[1].Body(), blocks[2].Body()})))
	assert.True(t, req.Complete())
}

func TestGetBlockHeadersPacketEncoding(t *testing.T) {
	for _, pkt := range []*GetBlockHeadersPacket{
		{RequestId: 7, GetBlockHeadersRequest: &GetBlockHeadersRequest{Origin: HashOrNumber{Number: 314}, Amount: 10, Skip: 2, Reverse: true}},
		{RequestId: 8, GetBlockHeadersRequest: &GetBlockHeadersRequest{Origin: HashOrNumber{Hash: common.Hash{1, 2, 3}}, Amount: 1}},
	} {
		enc, err := rlp.EncodeToBytes(pkt)
		require.NoError(t, err)
		dec := new(GetBlockHeadersPacket)
		require.NoError(t, rlp.DecodeBytes(enc, dec))
		assert.Equal(t, pkt, dec)
	}
	// [1, [314, 10, 2, 1]]
	enc, err := rlp.EncodeToBytes(&GetBlockHeadersPacket{RequestId: 1, GetBlockHeadersRequest: &GetBlockHeadersRequest{Origin: HashOrNumber{Number: 314}, Amount: 10, Skip: 2, Reverse: true}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc8, 0x01, 0xc6, 0x82, 0x01, 0x3a, 0x0a, 0x02, 0x01}, enc)

	// A direction other than 0 or 1 is rejected.
	bad := []byte{0xc8, 0x01, 0xc6, 0x01, 0x01, 0x80, 0x02, 0x80, 0x80}
	assert.Error(t, rlp.DecodeBytes(bad, new(GetBlockHeadersPacket)))

	// Origins must be a hash or fit into 64 bits.
	origin := append([]byte{0x94}, make([]byte, 20)...)
	var hn HashOrNumber
	assert.ErrorContains(t, rlp.DecodeBytes(origin, &hn), "invalid input size 20")
}

func TestHandleMalformedPacket(t *testing.T) {
	chain, _ := newTestChain(t, 1)
	app, net := p2p.MsgPipe()
	defer app.Close()
	peer := NewPeer(ETH69, p2p.NewPeer(common.Hash{1}, "remote", nil), net)

	go p2p.Send(app, GetBlockBodiesMsg, []interface{}{uint64(1), []byte{0x01}})
	err := handleMessage(&testBackend{chain: chain}, peer)
	assert.ErrorIs(t, err, errDecode)
}

func TestHandshake(t *testing.T) {
	chain, blocks := newTestChain(t, 2)
	empty := newEmptyChain(t)

	app, net := p2p.MsgPipe()
	defer app.Close()
	local := NewPeer(ETH69, p2p.NewPeer(common.Hash{1}, "local", nil), app)
	remote := NewPeer(ETH69, p2p.NewPeer(common.Hash{2}, "remote", nil), net)

	errc := make(chan error, 1)
	go func() { errc <- remote.Handshake(testNetwork, chain) }()
	require.NoError(t, local.Handshake(testNetwork, empty))
	require.NoError(t, <-errc)

	hash, number := local.Head()
	assert.Equal(t, blocks[1].Hash(), hash)
	assert.Equal(t, uint64(2), number)
	assert.True(t, local.KnownBlock(hash))

	hash, number = remote.Head()
	assert.Equal(t, empty.Genesis().Hash(), hash)
	assert.Zero(t, number)
}

func TestHandshakeNetworkMismatch(t *testing.T) {
	chain := newEmptyChain(t)

	app, net := p2p.MsgPipe()
	defer app.Close()
	local := NewPeer(ETH69, p2p.NewPeer(common.Hash{1}, "local", nil), app)
	remote := NewPeer(ETH69, p2p.NewPeer(common.Hash{2}, "remote", nil), net)

	errc := make(chan error, 1)
	go func() { errc <- remote.Handshake(testNetwork+1, chain) }()
	assert.ErrorIs(t, local.Handshake(testNetwork, chain), errNetworkIDMismatch)
	assert.ErrorIs(t, <-errc, errNetworkIDMismatch)
}

func TestRequestHeadersAndBlocks(t *testing.T) {
	chain, blocks := newTestChain(t, 4)
	peer := newTestPeers(t, newEmptyChain(t), chain)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	headers, err := peer.RequestHeaders(ctx, NewHeadersRequest(HashOrNumber{Number: 1}, 4, false))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, numbersOf(headers))
	assert.True(t, peer.KnownBlock(blocks[3].Hash()))

	unknown := &types.Header{Number: big.NewInt(99), TxHash: common.Hash{9}, ReceiptHash: common.Hash{9}}
	req := NewBlocksRequest([]*types.Header{headers[0], unknown, headers[2]}, headers[1:2])
	require.NoError(t, peer.RequestBlocks(ctx, req))
	assert.NotNil(t, req.Bodies[0])
	assert.Nil(t, req.Bodies[1])
	assert.NotNil(t, req.Bodies[2])
	require.Len(t, req.Receipts, 1)
	assert.Equal(t, blocks[1].ReceiptHash(), req.Receipts[0].Hash())
	assert.False(t, req.Complete())
}

func TestRequestCancelled(t *testing.T) {
	app, _ := p2p.MsgPipe()
	defer app.Close()
	peer := NewPeer(ETH69, p2p.NewPeer(common.Hash{1}, "local", nil), app)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := peer.RequestHeaders(ctx, NewHeadersRequest(HashOrNumber{Number: 1}, 1, false))
	assert.Error(t, err)
}

func TestDeliverUnsolicited(t *testing.T) {
	app, _ := p2p.MsgPipe()
	defer app.Close()
	peer := NewPeer(ETH69, p2p.NewPeer(common.Hash{1}, "local", nil), app)

	err := peer.deliver(BlockHeadersMsg, 42, &BlockHeadersPacket{RequestId: 42})
	assert.ErrorIs(t, err, errUnsolicitedAnswer)
}

func TestKnownCache(t *testing.T) {
	cache := newKnownCache(2)
	cache.Add(common.Hash{1}, common.Hash{2})
	cache.Add(common.Hash{3})
	assert.Equal(t, 2, cache.Cardinality())
	assert.True(t, cache.Contains(common.Hash{3}))
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
