// Copyright 2021 The go-ethereum Authors
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

// Package shutdowncheck keeps a list of recent unclean shutdowns in the chain
// database and reports them when the node boots.
package shutdowncheck

import (
	"time"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/log"
)

// updateInterval is how often the marker of the running instance is refreshed.
const updateInterval = 5 * time.Minute

// ShutdownTracker is a service that reports previous unclean shutdowns
// upon start. It needs to be started after a successful start-up and stopped
// after a successful shutdown, just before the db is closed.
// ShutdownTracker 在启动时报告之前的非正常关机，须在数据库关闭前停止。
type ShutdownTracker struct {
	db     ethdb.KeyValueStore
	stopCh chan struct{}
	done   chan struct{}
}

// NewShutdownTracker creates a new ShutdownTracker instance and has
// no other side-effect.
func NewShutdownTracker(db ethdb.KeyValueStore) *ShutdownTracker {
	return &ShutdownTracker{
		db:     db,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// MarkStartup pushes a startup marker for this instance and logs the markers
// left behind by instances that never shut down cleanly.
func (t *ShutdownTracker) MarkStartup() []uint64 {
	uncleanShutdowns, discards, err := rawdb.PushUncleanShutdownMarker(t.db)
	if err != nil {
		log.Error("Could not update unclean-shutdown-marker list", "error", err)
		return nil
	}
	if discards > 0 {
		log.Warn("Old unclean shutdowns found", "count", discards)
	}
	for _, tstamp := range uncleanShutdowns {
		booted := time.Unix(int64(tstamp), 0)
		log.Warn("Unclean shutdown detected", "booted", booted, "age", common.PrettyAge(booted))
	}
	return uncleanShutdowns
}

// Start runs an event loop that refreshes the current marker's timestamp.
func (t *ShutdownTracker) Start() {
	go func() {
		defer close(t.done)

		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rawdb.UpdateUncleanShutdownMarker(t.db)
			case <-t.stopCh:
				return
			}
		}
	}()
}

// Stop stops the update loop and clears the current marker.
// Stop 停止更新循环并清除本次运行的标记。
func (t *ShutdownTracker) Stop() {
	close(t.stopCh)
	<-t.done
	rawdb.PopUncleanShutdownMarker(t.db)
}
