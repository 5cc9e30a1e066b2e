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
	"errors"
	"fmt"
	"sync"

	"github.com/sunyihoo/evmsync/log"
)

var errFeedMissing = errors.New("no feed registered for sync phase")

// Feed is one independently startable download pipeline.
// Feed 是一条可独立启动的下载流水线。
type Feed interface {
	Name() string

	// Start launches the feed. It must not block on the work itself.
	Start(ctx context.Context) error

	// Stop terminates the feed and waits for it to exit.
	Stop()
}

// feedOrder is the order feeds are started in. Later feeds consume what the
// earlier ones produce.
var feedOrder = []SyncMode{Full, FastHeaders, FastBodies, FastReceipts, FastBlocks, SnapSync, StateNodes}

// ComputeStartupMask returns the flags of the feeds to run for the given
// configuration. The full feed always runs unless syncing is disabled. Fast
// and snap sync add the pivot, state and header feeds. The body and receipt
// feeds follow their own toggles and only run when header download is on.
// ComputeStartupMask 根据配置计算需要启动的 feed 集合。
func ComputeStartupMask(cfg *Config) SyncMode {
	if cfg.NoSync {
		return 0
	}
	mask := Full
	if cfg.FastSync || cfg.SnapSync {
		mask |= FastBlocks | StateNodes | FastHeaders
		if cfg.SnapSync {
			mask |= SnapSync
		}
		if cfg.Headers && cfg.Bodies {
			mask |= FastBodies
		}
		if cfg.Headers && cfg.Receipts {
			mask |= FastReceipts
		}
	}
	return mask
}

// FeedManager starts the feeds selected by a mask in dependency order. It
// does not retry: the first failure aborts the sequence, and feeds started
// before it keep running until Stop.
// FeedManager 按依赖顺序启动被选中的 feed。首个失败会中止后续启动，已启动的 feed 继续运行。
type FeedManager struct {
	mask    SyncMode
	feeds   map[SyncMode]Feed
	started []Feed

	lock sync.Mutex
	log  log.Logger
}

// NewFeedManager creates a manager for the given feeds, keyed by the flag of
// the phase they run.
func NewFeedManager(mask SyncMode, feeds map[SyncMode]Feed) *FeedManager {
	return &FeedManager{
		mask:  mask,
		feeds: feeds,
		log:   log.New("module", "feeds"),
	}
}

// Mask returns the flags of the feeds the manager was configured to run.
func (m *FeedManager) Mask() SyncMode {
	return m.mask
}

// Start launches the selected feeds in order and returns the bits of those
// that started. Feeds not in the mask are skipped.
func (m *FeedManager) Start(ctx context.Context) (SyncMode, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	var started SyncMode
	for _, flag := range feedOrder {
		if !m.mask.Has(flag) {
			continue
		}
		feed := m.feeds[flag]
		if feed == nil {
			return started, fmt.Errorf("%w: %v", errFeedMissing, flag)
		}
		if err := feed.Start(ctx); err != nil {
			m.log.Error("Failed to start sync feed", "feed", feed.Name(), "err", err)
			return started, fmt.Errorf("feed %s: %w", feed.Name(), err)
		}
		m.log.Debug("Started sync feed", "feed", feed.Name())
		m.started = append(m.started, feed)
		started |= feedBit(flag)
	}
	return started, nil
}

// feedBit returns the bit owned by a single feed. Composite flags share the
// FastBlocks bit with the pivot feed, which owns it.
func feedBit(flag SyncMode) SyncMode {
	if flag&fastBits != 0 {
		return flag &^ FastBlocks
	}
	return flag
}

// Stop terminates the started feeds in reverse start order.
func (m *FeedManager) Stop() {
	m.lock.Lock()
	defer m.lock.Unlock()

	for i := len(m.started) - 1; i >= 0; i-- {
		m.started[i].Stop()
	}
	m.started = nil
}
