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

// Package downloader contains the chain synchronisation: the sync phase
// flags, the feeds downloading headers, bodies, receipts and state, and the
// manager starting them.
package downloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/log"
)

var (
	MaxHeaderFetch   = 192 // Amount of block headers to be fetched per retrieval request
	MaxBlockFetch    = 128 // Amount of block bodies to be fetched per retrieval request
	MaxReceiptFetch  = 256 // Amount of transaction receipts to allow fetching per request
	MaxSkeletonSize  = 16  // Number of header fetches needed for a skeleton assembly
	accountBatchSize = 128 // Number of contract accounts per storage request
)

var (
	errCanceled    = errors.New("syncing canceled (requested)")
	errBadPeer     = errors.New("action from bad peer ignored")
	errFeedRunning = errors.New("feed already running")
)

// Config contains the downloader settings.
type Config struct {
	NoSync   bool // Disables every feed
	FastSync bool // Downloads chain data up to a pivot without executing it
	SnapSync bool // Additionally downloads the flat state of the pivot
	Headers  bool // Downloads headers below the pivot, required by bodies and receipts
	Bodies   bool // Downloads bodies below the pivot
	Receipts bool // Downloads receipts below the pivot

	MaxDistance  uint64        // Distance to the highest head still counted as synced
	RequestRate  float64       // Requests per second sent to a single peer, 0 for unlimited
	PollInterval time.Duration // Delay between checks when a feed has nothing to do
}

// DefaultConfig contains the default downloader settings.
var DefaultConfig = Config{
	Headers:      true,
	Bodies:       true,
	Receipts:     true,
	MaxDistance:  DefaultMaxDistance,
	RequestRate:  20,
	PollInterval: time.Second,
}

// BlockChain encapsulates functions required to sync a (full or fast)
// blockchain. It is the single writer of downloaded data.
type BlockChain interface {
	// CurrentHeader retrieves the head header from the local chain.
	CurrentHeader() *types.Header

	// CurrentBlock retrieves the head block from the local chain.
	CurrentBlock() *types.Header

	// CurrentSnapBlock retrieves the head block with receipts.
	CurrentSnapBlock() *types.Header

	// GetHeaderByNumber retrieves a canonical header from the local chain.
	GetHeaderByNumber(number uint64) *types.Header

	// HasBlock verifies a block's presence in the local chain.
	HasBlock(hash common.Hash, number uint64) bool

	// GetBody retrieves a block body from the local chain.
	GetBody(hash common.Hash) *types.Body

	// InsertHeaderChain inserts a batch of headers into the local chain.
	InsertHeaderChain(headers []*types.Header) (int, error)

	// InsertChain inserts a batch of blocks into the local chain.
	InsertChain(blocks types.Blocks) (int, error)

	// InsertBodyChain stores bodies below the pivot.
	InsertBodyChain(blocks types.Blocks) (int, error)

	// InsertReceiptChain inserts a batch of receipts into the local chain.
	InsertReceiptChain(blocks types.Blocks, receipts []types.Receipts) (int, error)

	// InsertAccountRange stores flat accounts.
	InsertAccountRange(hashes []common.Hash, accounts [][]byte) error

	// InsertStorageRange stores flat storage slots of one account.
	InsertStorageRange(account common.Hash, slots []common.Hash, values [][]byte) error

	// InsertCodes stores contract codes.
	InsertCodes(codes [][]byte)

	// ResetState wipes the flat state before it is downloaded again.
	ResetState() error

	// SnapSyncCommitHead directly commits the head block to a certain entity.
	SnapSyncCommitHead(hash common.Hash) error

	// StateCache returns the state database of the chain.
	StateCache() *state.CachingDB
}

// peerDropFn is a callback type for dropping a peer detected as malicious.
type peerDropFn func(id string)

// SyncProgress gives progress indications when the node is synchronising.
type SyncProgress struct {
	StartingBlock uint64 // Block number where sync began
	CurrentBlock  uint64 // Current block number where sync is at
	HighestBlock  uint64 // Highest alleged block number in the chain
	PivotBlock    uint64 // Pivot block of fast sync, zero without one

	SyncedAccounts  uint64 // Number of accounts downloaded
	SyncedStorage   uint64 // Number of storage slots downloaded
	SyncedBytecodes uint64 // Number of bytecodes downloaded
	HealedRecords   uint64 // Number of state records fetched on demand

	Mode SyncMode // Phases still running
}

// Downloader drives chain synchronisation through a set of feeds.
// Downloader 通过一组 feed 驱动链同步，并对外报告进度与同步状态。
type Downloader struct {
	cfg   Config
	chain BlockChain
	peers *peerSet
	drop  peerDropFn

	mode  atomic.Uint32 // Phases still running, see SyncMode
	feeds *FeedManager

	pivot     atomic.Pointer[types.Header] // Fast sync pivot block
	snapDone  chan struct{}                // Closed once the pivot state is downloaded
	committed chan struct{}                // Closed once the pivot is the head block
	heals     chan *healRequest            // Missing state records reported by execution

	// Statistics
	startBlock      uint64
	syncedAccounts  atomic.Uint64
	syncedStorage   atomic.Uint64
	syncedBytecodes atomic.Uint64
	healedRecords   atomic.Uint64

	cancel   context.CancelFunc
	lock     sync.Mutex
	snapOnce sync.Once
	commOnce sync.Once
	log      log.Logger
}

// New creates a new downloader over chain. The drop callback is invoked with
// the id of peers delivering invalid data.
func New(cfg Config, chain BlockChain, drop peerDropFn) *Downloader {
	if cfg.MaxDistance == 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultConfig.PollInterval
	}
	limit := rate.Inf
	if cfg.RequestRate > 0 {
		limit = rate.Limit(cfg.RequestRate)
	}
	if drop == nil {
		drop = func(string) {}
	}
	d := &Downloader{
		cfg:       cfg,
		chain:     chain,
		peers:     newPeerSet(limit),
		drop:      drop,
		snapDone:  make(chan struct{}),
		committed: make(chan struct{}),
		heals:     make(chan *healRequest),
		log:       log.New("module", "downloader"),
	}
	d.mode.Store(uint32(Disconnected))

	d.feeds = NewFeedManager(ComputeStartupMask(&cfg), map[SyncMode]Feed{
		Full:         newFullFeed(d),
		FastHeaders:  newHeaderFeed(d),
		FastBodies:   newBodyFeed(d),
		FastReceipts: newReceiptFeed(d),
		FastBlocks:   newPivotFeed(d),
		SnapSync:     newSnapFeed(d),
		StateNodes:   newStateFeed(d),
	})
	return d
}

// Start launches the configured feeds.
func (d *Downloader) Start() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.cancel != nil {
		return errFeedRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.startBlock = d.chain.CurrentBlock().Number.Uint64()

	mask := d.feeds.Mask()
	pending := mask
	if mask.Has(FastBlocks) {
		pending |= FastSync
	} else {
		d.markCommitted()
	}
	d.setPhase(pending)

	started, err := d.feeds.Start(ctx)
	if err != nil {
		// Phases that never started are not pending.
		unstarted := mask &^ started
		if unstarted.Has(FastBlocks) {
			unstarted |= FastSync
			d.markCommitted()
		}
		d.clearPhase(unstarted)
		return err
	}
	d.log.Info("Started chain sync", "mode", started, "head", d.startBlock)
	return nil
}

// Stop terminates every running feed.
func (d *Downloader) Stop() {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.cancel == nil {
		return
	}
	d.cancel()
	d.feeds.Stop()
	d.cancel = nil
	d.log.Info("Stopped chain sync")
}

// RegisterPeer injects a new download peer into the set of block sources.
func (d *Downloader) RegisterPeer(id string, peer Peer) error {
	if err := d.peers.Register(id, peer); err != nil {
		d.log.Error("Failed to register sync peer", "peer", id, "err", err)
		return err
	}
	d.clearPhase(Disconnected)
	d.log.Trace("Registering sync peer", "peer", id)
	return nil
}

// RegisterSnapPeer attaches the snap protocol half of a registered peer.
func (d *Downloader) RegisterSnapPeer(id string, peer SnapPeer) error {
	return d.peers.RegisterSnap(id, peer)
}

// UnregisterSnapPeer detaches the snap half of a peer, leaving its block
// source registered.
func (d *Downloader) UnregisterSnapPeer(id string) error {
	return d.peers.RegisterSnap(id, nil)
}

// UnregisterPeer removes a peer from the known list.
func (d *Downloader) UnregisterPeer(id string) error {
	if err := d.peers.Unregister(id); err != nil {
		return err
	}
	if d.peers.Len() == 0 {
		d.setPhase(Disconnected)
	}
	d.log.Trace("Unregistered sync peer", "peer", id)
	return nil
}

// Mode returns the phases still running.
func (d *Downloader) Mode() SyncMode {
	return SyncMode(d.mode.Load())
}

// setPhase marks phases as running.
func (d *Downloader) setPhase(flags SyncMode) {
	for {
		old := d.mode.Load()
		if d.mode.CompareAndSwap(old, old|uint32(flags)) {
			return
		}
	}
}

// clearPhase marks phases as finished. The FastBlocks umbrella bit is only
// cleared once no fast sub-phase is left and the pivot is committed.
// clearPhase 清除已完成的阶段；只有所有快速子阶段结束且枢轴已提交时才清除 FastBlocks。
func (d *Downloader) clearPhase(flags SyncMode) {
	for {
		old := SyncMode(d.mode.Load())
		mode := old &^ (flags &^ FastBlocks)
		if mode&(fastBits|FastSync) == 0 {
			mode &^= FastBlocks
		}
		if d.mode.CompareAndSwap(uint32(old), uint32(mode)) {
			return
		}
	}
}

// Pivot returns the fast sync pivot, or nil before one is chosen.
func (d *Downloader) Pivot() *types.Header {
	return d.pivot.Load()
}

func (d *Downloader) markSnapDone() {
	d.snapOnce.Do(func() { close(d.snapDone) })
}

func (d *Downloader) markCommitted() {
	d.commOnce.Do(func() { close(d.committed) })
}

// isCommitted reports whether execution may proceed past the pivot.
func (d *Downloader) isCommitted() bool {
	select {
	case <-d.committed:
		return true
	default:
		return false
	}
}

// highest returns the highest block known locally or announced by a peer.
func (d *Downloader) highest() uint64 {
	highest := d.peers.highest()
	if head := d.chain.CurrentHeader().Number.Uint64(); head > highest {
		highest = head
	}
	return highest
}

// Progress retrieves the synchronisation boundaries and counters.
func (d *Downloader) Progress() SyncProgress {
	progress := SyncProgress{
		StartingBlock:   d.startBlock,
		CurrentBlock:    d.chain.CurrentBlock().Number.Uint64(),
		HighestBlock:    d.highest(),
		SyncedAccounts:  d.syncedAccounts.Load(),
		SyncedStorage:   d.syncedStorage.Load(),
		SyncedBytecodes: d.syncedBytecodes.Load(),
		HealedRecords:   d.healedRecords.Load(),
		Mode:            d.Mode(),
	}
	if pivot := d.pivot.Load(); pivot != nil {
		progress.PivotBlock = pivot.Number.Uint64()
	}
	return progress
}

// Status resolves whether the node is synced with the network.
func (d *Downloader) Status() SyncStatus {
	var highest uint64
	if d.peers.Len() > 0 {
		highest = d.highest()
	}
	return ToSyncStatus(d.Mode(), d.chain.CurrentBlock().Number.Uint64(), highest, d.cfg.MaxDistance)
}

// Synced reports whether Status is NotSyncing.
func (d *Downloader) Synced() bool {
	return d.Status() == NotSyncing
}
