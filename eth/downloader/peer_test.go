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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
)

// staticPeer announces a fixed head and serves nothing.
type staticPeer struct {
	id   string
	head uint64
}

func (p *staticPeer) ID() string { return p.id }

func (p *staticPeer) Head() (common.Hash, uint64) {
	return common.BigToHash(new(big.Int).SetUint64(p.head)), p.head
}

func (p *staticPeer) RequestHeaders(context.Context, *eth.GetBlockHeadersRequest) ([]*types.Header, error) {
	return nil, nil
}

func (p *staticPeer) RequestBlocks(context.Context, *eth.BlocksRequest) error { return nil }

func newStaticPeerSet(t *testing.T, heads map[string]uint64) *peerSet {
	t.Helper()
	ps := newPeerSet(rate.Inf)
	for id, head := range heads {
		require.NoError(t, ps.Register(id, &staticPeer{id: id, head: head}))
	}
	return ps
}

func ids(peers []*peerConnection) []string {
	var list []string
	for _, p := range peers {
		list = append(list, p.id)
	}
	return list
}

func TestPeerSetOrder(t *testing.T) {
	ps := newStaticPeerSet(t, map[string]uint64{"a": 10, "b": 30, "c": 20, "d": 30})

	assert.Equal(t, []string{"b", "d", "c", "a"}, ids(ps.AllPeers()))
	assert.Equal(t, "b", ps.best().id)
	assert.Equal(t, uint64(30), ps.highest())
	assert.Equal(t, 4, ps.Len())

	require.NoError(t, ps.Unregister("b"))
	assert.Equal(t, "d", ps.best().id)
	assert.Nil(t, ps.Peer("b"))

	empty := newPeerSet(rate.Inf)
	assert.Nil(t, empty.best())
	assert.Zero(t, empty.highest())
}

func TestPeerSetReserve(t *testing.T) {
	ps := newStaticPeerSet(t, map[string]uint64{"a": 10, "b": 30})
	atLeast := func(n uint64) func(*peerConnection) bool {
		return func(p *peerConnection) bool {
			_, head := p.Head()
			return head >= n
		}
	}
	p := ps.reserve(atLeast(20))
	require.NotNil(t, p)
	assert.Equal(t, "b", p.id)
	assert.Equal(t, 1, ps.idle())

	// The only other peer is too far behind.
	assert.Nil(t, ps.reserve(atLeast(20)))
	q := ps.reserve(nil)
	require.NotNil(t, q)
	assert.Equal(t, "a", q.id)
	assert.Zero(t, ps.idle())
	assert.Nil(t, ps.reserve(nil))

	ps.release(p)
	assert.Equal(t, "b", ps.reserve(atLeast(20)).id)
}

func TestPeerRateLimit(t *testing.T) {
	p := newPeerConnection("p", &staticPeer{id: "p"}, rate.Limit(1), nil)
	require.NoError(t, p.wait(context.Background()))

	// The burst is spent, the next token is a second away.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.wait(ctx))
}
