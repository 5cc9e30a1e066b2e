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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStartupMask(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want SyncMode
	}{
		{"disabled", Config{NoSync: true, FastSync: true}, 0},
		{"full", Config{}, Full},
		{"fast headers only", Config{FastSync: true, Headers: true}, Full | FastBlocks | StateNodes | FastHeaders},
		{"fast", Config{FastSync: true, Headers: true, Bodies: true, Receipts: true},
			Full | StateNodes | FastHeaders | FastBodies | FastReceipts},
		{"snap", Config{SnapSync: true, Headers: true, Bodies: true},
			Full | StateNodes | FastHeaders | FastBodies | SnapSync},
		{"bodies without headers", Config{SnapSync: true, Bodies: true, Receipts: true},
			Full | FastBlocks | StateNodes | FastHeaders | SnapSync},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStartupMask(&tt.cfg))
		})
	}
}

type traceFeed struct {
	name  string
	trace *[]string
	err   error
}

func (f *traceFeed) Name() string { return f.name }

func (f *traceFeed) Start(context.Context) error {
	if f.err != nil {
		return f.err
	}
	*f.trace = append(*f.trace, "start "+f.name)
	return nil
}

func (f *traceFeed) Stop() { *f.trace = append(*f.trace, "stop "+f.name) }

func newTraceFeeds(trace *[]string) map[SyncMode]Feed {
	return map[SyncMode]Feed{
		Full:         &traceFeed{name: "full", trace: trace},
		FastHeaders:  &traceFeed{name: "headers", trace: trace},
		FastBodies:   &traceFeed{name: "bodies", trace: trace},
		FastReceipts: &traceFeed{name: "receipts", trace: trace},
		FastBlocks:   &traceFeed{name: "fast_blocks", trace: trace},
		SnapSync:     &traceFeed{name: "snap", trace: trace},
		StateNodes:   &traceFeed{name: "state", trace: trace},
	}
}

func TestFeedManagerOrder(t *testing.T) {
	var trace []string
	mask := ComputeStartupMask(&Config{SnapSync: true, Headers: true, Bodies: true, Receipts: true})
	m := NewFeedManager(mask, newTraceFeeds(&trace))

	started, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mask, started)
	assert.Equal(t, []string{
		"start full", "start headers", "start bodies", "start receipts",
		"start fast_blocks", "start snap", "start state",
	}, trace)

	trace = nil
	m.Stop()
	assert.Equal(t, []string{
		"stop state", "stop snap", "stop fast_blocks", "stop receipts",
		"stop bodies", "stop headers", "stop full",
	}, trace)
}

func TestFeedManagerSkipsUnmasked(t *testing.T) {
	var trace []string
	mask := ComputeStartupMask(&Config{FastSync: true})
	m := NewFeedManager(mask, newTraceFeeds(&trace))

	started, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mask, started)
	assert.Equal(t, []string{"start full", "start headers", "start fast_blocks", "start state"}, trace)
}

func TestFeedManagerStartFailure(t *testing.T) {
	var (
		trace []string
		feeds = newTraceFeeds(&trace)
		fail  = errors.New("boom")
	)
	feeds[FastHeaders].(*traceFeed).err = fail

	m := NewFeedManager(ComputeStartupMask(&Config{FastSync: true, Headers: true, Bodies: true}), feeds)
	started, err := m.Start(context.Background())
	require.ErrorIs(t, err, fail)
	assert.Equal(t, Full, started)
	assert.Equal(t, []string{"start full"}, trace)

	trace = nil
	m.Stop()
	assert.Equal(t, []string{"stop full"}, trace)
}

func TestFeedManagerMissingFeed(t *testing.T) {
	var trace []string
	feeds := newTraceFeeds(&trace)
	delete(feeds, SnapSync)

	m := NewFeedManager(ComputeStartupMask(&Config{SnapSync: true}), feeds)
	started, err := m.Start(context.Background())
	require.ErrorIs(t, err, errFeedMissing)
	assert.False(t, started.Has(SnapSync))
	assert.True(t, started.Has(FastBlocks))
}

func TestFeedBit(t *testing.T) {
	assert.Equal(t, fastBodiesBit, feedBit(FastBodies))
	assert.Equal(t, FastBlocks, feedBit(FastBlocks))
	assert.Equal(t, SnapSync, feedBit(SnapSync))
}
