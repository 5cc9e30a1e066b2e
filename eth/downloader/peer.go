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

// Contains the active peer-set of the downloader, tracking which peers are
// busy so that concurrent feeds spread their requests.

package downloader

import (
	"context"
	"errors"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/time/rate"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
	"github.com/sunyihoo/evmsync/eth/protocols/snap"
	"github.com/sunyihoo/evmsync/log"
)

var (
	errAlreadyRegistered = errors.New("peer is already registered")
	errNotRegistered     = errors.New("peer is not registered")
	errNoPeers           = errors.New("no suitable peer available")
)

// Peer encapsulates the methods required to synchronise chain data with a
// remote full peer.
// Peer 封装了向远端全节点同步链数据所需的方法。
type Peer interface {
	ID() string
	Head() (common.Hash, uint64)

	RequestHeaders(ctx context.Context, req *eth.GetBlockHeadersRequest) ([]*types.Header, error)
	RequestBlocks(ctx context.Context, req *eth.BlocksRequest) error
}

// SnapPeer encapsulates the methods required to download flat state from a
// remote peer running the snap protocol.
type SnapPeer interface {
	RequestAccountRange(ctx context.Context, req *snap.AccountRangeRequest) ([]common.Hash, [][]byte, error)
	RequestStorageRanges(ctx context.Context, req *snap.StorageRangeRequest) ([][]common.Hash, [][][]byte, error)
	RequestByteCodes(ctx context.Context, hashes []common.Hash, bytes uint64) ([][]byte, error)
}

// peerConnection represents an active peer from which headers, blocks and
// state are retrieved.
type peerConnection struct {
	id string // Unique identifier of the peer

	peer    Peer
	snap    SnapPeer      // Nil unless the peer also runs snap
	limiter *rate.Limiter // Paces the requests sent to the peer

	log  log.Logger // Contextual logger to add extra infos to peer logs
	lock sync.RWMutex
}

func newPeerConnection(id string, peer Peer, limit rate.Limit, logger log.Logger) *peerConnection {
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}
	return &peerConnection{
		id:      id,
		peer:    peer,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger,
	}
}

// Head returns the latest block announced by the peer.
func (p *peerConnection) Head() (common.Hash, uint64) {
	return p.peer.Head()
}

// Snap returns the snap half of the peer, if any.
func (p *peerConnection) Snap() SnapPeer {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.snap
}

func (p *peerConnection) setSnap(sp SnapPeer) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.snap = sp
}

// wait blocks until the rate limiter allows another request.
func (p *peerConnection) wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// peerSet represents the collection of active peers participating in the
// chain download procedure.
// peerSet 表示参与下载的活跃节点集合，busy 集合记录正在处理请求的节点。
type peerSet struct {
	peers map[string]*peerConnection
	busy  mapset.Set[string]
	limit rate.Limit

	lock sync.RWMutex
}

// newPeerSet creates a new peer set to track the active download sources.
func newPeerSet(limit rate.Limit) *peerSet {
	return &peerSet{
		peers: make(map[string]*peerConnection),
		busy:  mapset.NewSet[string](),
		limit: limit,
	}
}

// Register injects a new peer into the working set, or returns an error if
// the peer is already known.
func (ps *peerSet) Register(id string, peer Peer) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if _, ok := ps.peers[id]; ok {
		return errAlreadyRegistered
	}
	ps.peers[id] = newPeerConnection(id, peer, ps.limit, log.New("peer", id))
	return nil
}

// RegisterSnap attaches the snap half to an already registered peer.
func (ps *peerSet) RegisterSnap(id string, sp SnapPeer) error {
	ps.lock.RLock()
	p, ok := ps.peers[id]
	ps.lock.RUnlock()
	if !ok {
		return errNotRegistered
	}
	p.setSnap(sp)
	return nil
}

// Unregister removes a remote peer from the active set.
func (ps *peerSet) Unregister(id string) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if _, ok := ps.peers[id]; !ok {
		return errNotRegistered
	}
	delete(ps.peers, id)
	ps.busy.Remove(id)
	return nil
}

// Peer retrieves the registered peer with the given id.
func (ps *peerSet) Peer(id string) *peerConnection {
	ps.lock.RLock()
	defer ps.lock.RUnlock()
	return ps.peers[id]
}

// Len returns if the current number of peers in the set.
func (ps *peerSet) Len() int {
	ps.lock.RLock()
	defer ps.lock.RUnlock()
	return len(ps.peers)
}

// AllPeers retrieves a flat list of all the peers within the set, ordered by
// announced head, highest first.
func (ps *peerSet) AllPeers() []*peerConnection {
	ps.lock.RLock()
	list := make([]*peerConnection, 0, len(ps.peers))
	for _, p := range ps.peers {
		list = append(list, p)
	}
	ps.lock.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		_, ni := list[i].Head()
		_, nj := list[j].Head()
		if ni != nj {
			return ni > nj
		}
		return list[i].id < list[j].id
	})
	return list
}

// best returns the peer with the highest announced head.
func (ps *peerSet) best() *peerConnection {
	peers := ps.AllPeers()
	if len(peers) == 0 {
		return nil
	}
	return peers[0]
}

// highest returns the highest block number announced by any peer.
func (ps *peerSet) highest() uint64 {
	if p := ps.best(); p != nil {
		_, number := p.Head()
		return number
	}
	return 0
}

// reserve picks the idle peer with the highest head that passes the filter
// and marks it busy. It returns nil if there is none.
func (ps *peerSet) reserve(filter func(*peerConnection) bool) *peerConnection {
	for _, p := range ps.AllPeers() {
		if filter != nil && !filter(p) {
			continue
		}
		if ps.busy.Add(p.id) {
			return p
		}
	}
	return nil
}

// release marks a reserved peer idle again.
func (ps *peerSet) release(p *peerConnection) {
	ps.busy.Remove(p.id)
}

// idle returns the number of peers not currently serving a request.
func (ps *peerSet) idle() int {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	n := 0
	for id := range ps.peers {
		if !ps.busy.Contains(id) {
			n++
		}
	}
	return n
}
