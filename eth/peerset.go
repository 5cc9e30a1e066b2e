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
	"errors"
	"sync"
	"time"

	"github.com/sunyihoo/evmsync/eth/protocols/eth"
	"github.com/sunyihoo/evmsync/eth/protocols/snap"
	"github.com/sunyihoo/evmsync/p2p"
)

var (
	// errPeerSetClosed is returned if a peer is attempted to be added or removed
	// from the peer set after it has been terminated.
	errPeerSetClosed = errors.New("peerset closed")

	// errPeerAlreadyRegistered is returned if a peer is attempted to be added
	// to the peer set, but one with the same id already exists.
	errPeerAlreadyRegistered = errors.New("peer already registered")

	// errPeerNotRegistered is returned if a peer is attempted to be removed from
	// a peer set, but no peer with the given id exists.
	errPeerNotRegistered = errors.New("peer not registered")

	// ethConnectTimeout is the `snap` timeout for `eth` to connect too.
	ethConnectTimeout = 3 * time.Second
)

// snapPeer is the `snap` half of a connection, with the timer dropping it if
// the `eth` half never shows up.
type snapPeer struct {
	*snap.Peer

	ethDrop *time.Timer
}

// peerSet represents the set of active peers currently participating in the
// `eth` or `snap` protocols. A connection is only handed to the downloader as
// a snap source once both halves are present.
// peerSet 记录当前参与 eth 或 snap 协议的节点；只有两个协议都已连接时才作为 snap 数据源。
type peerSet struct {
	ethPeers  map[string]*eth.Peer
	snapPeers map[string]*snapPeer

	lock   sync.RWMutex
	closed bool
}

// newPeerSet creates a new peer set to track the active participants.
func newPeerSet() *peerSet {
	return &peerSet{
		ethPeers:  make(map[string]*eth.Peer),
		snapPeers: make(map[string]*snapPeer),
	}
}

// registerEthPeer injects a new `eth` peer into the working set. If the `snap`
// half of the connection arrived first it is returned so the caller can finish
// joining the two.
func (ps *peerSet) registerEthPeer(peer *eth.Peer) (*snap.Peer, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if ps.closed {
		return nil, errPeerSetClosed
	}
	id := peer.ID()
	if _, ok := ps.ethPeers[id]; ok {
		return nil, errPeerAlreadyRegistered
	}
	ps.ethPeers[id] = peer

	sp, ok := ps.snapPeers[id]
	if !ok {
		return nil, nil
	}
	if sp.ethDrop != nil {
		sp.ethDrop.Stop()
		sp.ethDrop = nil
	}
	return sp.Peer, nil
}

// unregisterEthPeer removes an `eth` peer from the active set.
func (ps *peerSet) unregisterEthPeer(id string) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if _, ok := ps.ethPeers[id]; !ok {
		return errPeerNotRegistered
	}
	delete(ps.ethPeers, id)
	return nil
}

// registerSnapPeer injects a new `snap` peer into the working set and reports
// whether its `eth` half is already connected. A lone `snap` connection is
// dropped unless `eth` joins within ethConnectTimeout.
// registerSnapPeer 注册 snap 节点；若 eth 未在超时时间内连接则断开该节点。
func (ps *peerSet) registerSnapPeer(peer *snap.Peer) (bool, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if ps.closed {
		return false, errPeerSetClosed
	}
	id := peer.ID()
	if _, ok := ps.snapPeers[id]; ok {
		return false, errPeerAlreadyRegistered
	}
	sp := &snapPeer{Peer: peer}
	ps.snapPeers[id] = sp

	if _, ok := ps.ethPeers[id]; ok {
		return true, nil
	}
	sp.ethDrop = time.AfterFunc(ethConnectTimeout, func() {
		peer.Log().Warn("Snapshot peer missing eth, dropping", "addr", peer.RemoteAddr())
		peer.Disconnect(p2p.DiscUselessPeer)
	})
	return false, nil
}

// unregisterSnapPeer removes a `snap` peer from the active set.
func (ps *peerSet) unregisterSnapPeer(id string) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	sp, ok := ps.snapPeers[id]
	if !ok {
		return errPeerNotRegistered
	}
	delete(ps.snapPeers, id)

	if sp.ethDrop != nil {
		sp.ethDrop.Stop()
		sp.ethDrop = nil
	}
	return nil
}

// ethPeer retrieves the registered `eth` peer with the given id.
func (ps *peerSet) ethPeer(id string) *eth.Peer {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	return ps.ethPeers[id]
}

// snapPeer retrieves the registered `snap` peer with the given id.
func (ps *peerSet) snapPeer(id string) *snap.Peer {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	if sp := ps.snapPeers[id]; sp != nil {
		return sp.Peer
	}
	return nil
}

// allEthPeers returns the connected `eth` peers.
func (ps *peerSet) allEthPeers() []*eth.Peer {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	list := make([]*eth.Peer, 0, len(ps.ethPeers))
	for _, p := range ps.ethPeers {
		list = append(list, p)
	}
	return list
}

// len returns if the current number of `eth` peers in the set. Since the `snap`
// peers are tied to the existence of an `eth` connection, that will always be a
// subset of `eth`.
func (ps *peerSet) len() int {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	return len(ps.ethPeers)
}

// snapLen returns the number of `snap` peers in the set.
func (ps *peerSet) snapLen() int {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	return len(ps.snapPeers)
}

// close disconnects all peers.
func (ps *peerSet) close() {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	for _, p := range ps.ethPeers {
		p.Disconnect(p2p.DiscQuitting)
	}
	for _, p := range ps.snapPeers {
		if p.ethDrop != nil {
			p.ethDrop.Stop()
		}
		p.Disconnect(p2p.DiscQuitting)
	}
	ps.closed = true
}
