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

	"github.com/sunyihoo/evmsync/core"
	"github.com/sunyihoo/evmsync/eth/downloader"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
	"github.com/sunyihoo/evmsync/eth/protocols/snap"
	"github.com/sunyihoo/evmsync/event"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/p2p"
)

// handlerConfig is the collection of initialization parameters to create a full
// node network handler.
type handlerConfig struct {
	Chain   *core.BlockChain  // Blockchain to serve data from and sync into
	Network uint64            // Network identifier to advertise
	Sync    downloader.Config // Settings of the chain downloader
}

// handler ties the `eth` and `snap` protocol peers to the chain downloader and
// keeps the peers informed about the local head.
// handler 将 eth 与 snap 协议的节点接入下载器，并向节点通告本地链头。
type handler struct {
	networkID uint64

	chain      *core.BlockChain
	downloader *downloader.Downloader
	peers      *peerSet

	// peerLock serialises peer registration, so the snap half of a connection
	// is only attached to the downloader after its eth half.
	peerLock sync.Mutex

	headCh  chan core.ChainHeadEvent
	headSub event.Subscription

	quitSync chan struct{}
	wg       sync.WaitGroup
	log      log.Logger
}

// newHandler returns a handler for all Ethereum chain management protocol.
func newHandler(config *handlerConfig) (*handler, error) {
	if config.Chain == nil {
		return nil, errors.New("missing blockchain")
	}
	h := &handler{
		networkID: config.Network,
		chain:     config.Chain,
		peers:     newPeerSet(),
		quitSync:  make(chan struct{}),
		log:       log.New("module", "handler"),
	}
	h.downloader = downloader.New(config.Sync, h.chain, h.removePeer)
	return h, nil
}

// runEthPeer registers an eth peer into the joint eth/snap peerset, adds it to
// various subsystems and starts handling messages.
// runEthPeer 完成握手后将 eth 节点注册到节点集合与下载器，然后处理其消息。
func (h *handler) runEthPeer(peer *eth.Peer, handler eth.Handler) error {
	if err := peer.Handshake(h.networkID, h.chain); err != nil {
		peer.Log().Debug("Ethereum handshake failed", "err", err)
		return err
	}
	peer.Log().Debug("Ethereum peer connected", "name", peer.Name())

	if err := h.registerEthPeer(peer); err != nil {
		peer.Log().Error("Ethereum peer registration failed", "err", err)
		return err
	}
	defer h.unregisterPeer(peer.ID())

	return handler(peer)
}

// registerEthPeer adds the peer to the peerset and the downloader. A snap half
// which connected earlier is attached as well.
func (h *handler) registerEthPeer(peer *eth.Peer) error {
	h.peerLock.Lock()
	defer h.peerLock.Unlock()

	sp, err := h.peers.registerEthPeer(peer)
	if err != nil {
		return err
	}
	if err := h.downloader.RegisterPeer(peer.ID(), peer); err != nil {
		h.peers.unregisterEthPeer(peer.ID())
		return err
	}
	if sp != nil {
		return h.downloader.RegisterSnapPeer(peer.ID(), sp)
	}
	return nil
}

// runSnapPeer registers a snap peer into the joint eth/snap peerset and
// starts handling inbound messages. As snap is only a satellite protocol to
// eth, the peer is only used for syncing once eth is connected too.
func (h *handler) runSnapPeer(peer *snap.Peer, handler snap.Handler) error {
	if err := h.registerSnapPeer(peer); err != nil {
		peer.Log().Warn("Snapshot peer registration failed", "err", err)
		return err
	}
	defer h.unregisterSnapPeer(peer.ID())

	return handler(peer)
}

func (h *handler) registerSnapPeer(peer *snap.Peer) error {
	h.peerLock.Lock()
	defer h.peerLock.Unlock()

	joined, err := h.peers.registerSnapPeer(peer)
	if err != nil {
		return err
	}
	if joined {
		return h.downloader.RegisterSnapPeer(peer.ID(), peer)
	}
	return nil
}

func (h *handler) unregisterSnapPeer(id string) {
	h.peerLock.Lock()
	defer h.peerLock.Unlock()

	if err := h.peers.unregisterSnapPeer(id); err != nil {
		h.log.Debug("Snap peer removal failed", "peer", id, "err", err)
		return
	}
	if h.peers.ethPeer(id) != nil {
		h.downloader.UnregisterSnapPeer(id)
	}
}

// unregisterPeer removes a peer from the downloader and the local peer set.
func (h *handler) unregisterPeer(id string) {
	h.peerLock.Lock()
	defer h.peerLock.Unlock()

	logger := h.log.New("peer", id)
	if err := h.peers.unregisterEthPeer(id); err != nil {
		logger.Error("Ethereum peer removal failed", "err", err)
		return
	}
	h.downloader.UnregisterPeer(id)
	logger.Debug("Removed Ethereum peer")
}

// removePeer requests disconnection of a peer.
func (h *handler) removePeer(id string) {
	if peer := h.peers.ethPeer(id); peer != nil {
		peer.Log().Debug("Dropping misbehaving peer")
		peer.Disconnect(p2p.DiscUselessPeer)
	}
}

// Start begins the chain sync and the head announcements.
func (h *handler) Start() error {
	if err := h.downloader.Start(); err != nil {
		return err
	}
	h.headCh = make(chan core.ChainHeadEvent, 16)
	h.headSub = h.chain.SubscribeChainHeadEvent(h.headCh)

	h.wg.Add(1)
	go h.headLoop()
	return nil
}

// Stop terminates the sync and disconnects every peer.
func (h *handler) Stop() {
	if h.headSub != nil {
		h.headSub.Unsubscribe()
	}
	close(h.quitSync)
	h.downloader.Stop()

	// Disconnect existing sessions.
	// This also closes the gate for any new registrations on the peer set.
	// sessions which are already established but not added to h.peers yet
	// will exit when they try to register.
	h.peers.close()
	h.wg.Wait()

	h.log.Info("Ethereum protocol stopped")
}

// headLoop announces the served block range to every eth peer whenever the
// local head block advances.
// headLoop 在本地链头前进时向所有 eth 节点通告可服务的区块范围。
func (h *handler) headLoop() {
	defer h.wg.Done()

	var last uint64
	for {
		select {
		case ev := <-h.headCh:
			if ev.Block == nil || ev.Block.Number.Uint64() <= last {
				continue
			}
			last = ev.Block.Number.Uint64()
			for _, peer := range h.peers.allEthPeers() {
				if err := peer.SendBlockRangeUpdate(0, last, ev.Block.Hash()); err != nil {
					peer.Log().Debug("Failed to announce block range", "err", err)
				}
			}
		case <-h.headSub.Err():
			return
		case <-h.quitSync:
			return
		}
	}
}
