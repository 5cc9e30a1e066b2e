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
	"github.com/sunyihoo/evmsync/eth/downloader"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
	"github.com/sunyihoo/evmsync/eth/protocols/snap"
	"github.com/sunyihoo/evmsync/p2p"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
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

// newTestHandler creates a handler over a chain holding n generated blocks.
func newTestHandler(t *testing.T, n int, sync downloader.Config) *handler {
	t.Helper()
	_, blocks, _ := core.GenerateChainWithGenesis(testGenesis(), n, func(i int, b *core.BlockGen) {
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
	sync.PollInterval = 10 * time.Millisecond

	h, err := newHandler(&handlerConfig{Chain: chain, Network: testNetwork, Sync: sync})
	require.NoError(t, err)
	return h
}

// connectEth links two handlers over an in-memory `eth` connection and
// returns the peer as seen by the client.
func connectEth(t *testing.T, client, server *handler) *eth.Peer {
	t.Helper()
	app, net := p2p.MsgPipe()
	local := eth.NewPeer(eth.ETH69, p2p.NewPeerPipe(common.Hash{2}, "server", nil, app), app)
	remote := eth.NewPeer(eth.ETH69, p2p.NewPeerPipe(common.Hash{1}, "client", nil, net), net)

	run := func(h *handler, peer *eth.Peer) {
		backend := (*ethHandler)(h)
		backend.RunPeer(peer, func(peer *eth.Peer) error {
			return eth.Handle(backend, peer)
		})
	}
	go run(server, remote)
	go run(client, local)

	t.Cleanup(func() { app.Close() })
	return local
}

func TestHandlerFullSync(t *testing.T) {
	server := newTestHandler(t, 8, downloader.Config{NoSync: true})
	client := newTestHandler(t, 0, downloader.Config{Headers: true, Bodies: true, Receipts: true})
	require.NoError(t, client.Start())
	defer client.Stop()

	connectEth(t, client, server)

	require.Eventually(t, func() bool {
		return client.chain.CurrentBlock().Number.Uint64() == 8
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, server.chain.CurrentBlock().Hash(), client.chain.CurrentBlock().Hash())
	assert.True(t, client.downloader.Synced())
}

func TestHandlerPeerLifecycle(t *testing.T) {
	server := newTestHandler(t, 2, downloader.Config{NoSync: true})
	client := newTestHandler(t, 0, downloader.Config{NoSync: true})

	peer := connectEth(t, client, server)
	require.Eventually(t, func() bool { return client.peers.len() == 1 }, 5*time.Second, 10*time.Millisecond)

	info, ok := (*ethHandler)(client).PeerInfo(peer.ID()).(*eth.PeerInfo)
	require.True(t, ok)
	assert.Equal(t, uint64(2), info.Number)
	assert.Nil(t, (*ethHandler)(client).PeerInfo("unknown"))

	// Dropping a misbehaving peer tears down the connection on both ends.
	client.removePeer(peer.ID())
	require.Eventually(t, func() bool {
		return client.peers.len() == 0 && server.peers.len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHandlerAnnouncesHead(t *testing.T) {
	server := newTestHandler(t, 0, downloader.Config{NoSync: true})
	require.NoError(t, server.Start())
	defer server.Stop()
	client := newTestHandler(t, 0, downloader.Config{NoSync: true})

	peer := connectEth(t, client, server)
	require.Eventually(t, func() bool { return server.peers.len() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, blocks, _ := core.GenerateChainWithGenesis(testGenesis(), 3, nil)
	insertBlocks(t, server.chain, blocks)

	require.Eventually(t, func() bool {
		hash, number := peer.Head()
		return number == 3 && hash == blocks[2].Hash()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPeerSetSnapBeforeEth(t *testing.T) {
	ps := newPeerSet()

	app, net := p2p.MsgPipe()
	defer app.Close()
	p2pPeer := p2p.NewPeer(common.Hash{7}, "remote", nil)
	sp := snap.NewPeer(snap.SNAP1, p2pPeer, app)
	ep := eth.NewPeer(eth.ETH69, p2pPeer, net)

	joined, err := ps.registerSnapPeer(sp)
	require.NoError(t, err)
	assert.False(t, joined)
	_, err = ps.registerSnapPeer(sp)
	assert.ErrorIs(t, err, errPeerAlreadyRegistered)

	waiting, err := ps.registerEthPeer(ep)
	require.NoError(t, err)
	assert.Same(t, sp, waiting)
	assert.Equal(t, 1, ps.len())
	assert.Equal(t, 1, ps.snapLen())

	require.NoError(t, ps.unregisterSnapPeer(sp.ID()))
	require.NoError(t, ps.unregisterEthPeer(ep.ID()))
	assert.ErrorIs(t, ps.unregisterEthPeer(ep.ID()), errPeerNotRegistered)

	ps.close()
	_, err = ps.registerEthPeer(ep)
	assert.ErrorIs(t, err, errPeerSetClosed)
}

func TestPeerSetEthBeforeSnap(t *testing.T) {
	ps := newPeerSet()

	app, net := p2p.MsgPipe()
	defer app.Close()
	p2pPeer := p2p.NewPeer(common.Hash{8}, "remote", nil)
	ep := eth.NewPeer(eth.ETH69, p2pPeer, net)
	sp := snap.NewPeer(snap.SNAP1, p2pPeer, app)

	waiting, err := ps.registerEthPeer(ep)
	require.NoError(t, err)
	assert.Nil(t, waiting)

	joined, err := ps.registerSnapPeer(sp)
	require.NoError(t, err)
	assert.True(t, joined)
	assert.Same(t, sp, ps.snapPeer(ep.ID()))
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
