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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncModeComposites(t *testing.T) {
	for _, flag := range []SyncMode{FastHeaders, FastBodies, FastReceipts} {
		assert.True(t, flag.Has(FastBlocks), "%v lacks the umbrella bit", flag)
	}
	assert.False(t, FastBlocks.HaveNotSyncedHeaders())
	assert.True(t, FastHeaders.HaveNotSyncedHeaders())
	assert.False(t, FastHeaders.HaveNotSyncedBodies())
	assert.True(t, (FastBodies | FastReceipts).HaveNotSyncedReceipts())
	assert.True(t, FastSync.HaveNotSyncedPivot())
	assert.True(t, UpdatingPivot.HaveNotSyncedState())
	assert.False(t, Full.HaveNotSyncedState())

	for _, n := range modeNames {
		assert.True(t, All.Has(n.flag), "All lacks %s", n.name)
	}
	assert.Zero(t, All&^(1<<len(modeNames)-1))
}

func TestSyncModeString(t *testing.T) {
	tests := []struct {
		mode SyncMode
		want string
	}{
		{0, "none"},
		{Full, "full"},
		{FastBodies, "fast_blocks|fast_bodies"},
		{Full | SnapSync | WaitingForBlock, "waiting_for_block|full|snap"},
		{1 << 20, "0x100000"},
		{Disconnected | 1<<20, "disconnected|0x100000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mode.String())
	}
}

func TestToSyncStatus(t *testing.T) {
	tests := []struct {
		name    string
		mode    SyncMode
		current uint64
		highest uint64
		want    SyncStatus
	}{
		{"no network head", Full, 0, 0, Syncing},
		{"at head", Full | WaitingForBlock, 1000, 1000, NotSyncing},
		{"within distance", Full, 1000, 1008, NotSyncing},
		{"beyond distance", Full, 1000, 1009, Syncing},
		{"ahead of peers", Full, 1010, 1000, NotSyncing},
		{"bodies pending", FastBodies, 1000, 1005, Syncing},
		{"receipts pending", FastReceipts, 1000, 1005, Syncing},
		{"headers pending", FastHeaders, 1000, 1005, NotSyncing},
		{"state pending", SnapSync | StateNodes, 1000, 1005, NotSyncing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSyncStatus(tt.mode, tt.current, tt.highest, DefaultMaxDistance))
		})
	}
	assert.Equal(t, "synced", NotSyncing.String())
	assert.Equal(t, "syncing", Syncing.String())
}
