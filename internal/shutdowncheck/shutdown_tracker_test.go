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

package shutdowncheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/core/rawdb"
)

func TestShutdownTracker(t *testing.T) {
	db := rawdb.NewMemoryDatabase()

	// A clean run leaves nothing behind.
	tracker := NewShutdownTracker(db)
	assert.Empty(t, tracker.MarkStartup())
	tracker.Start()
	tracker.Stop()

	tracker = NewShutdownTracker(db)
	assert.Empty(t, tracker.MarkStartup())
	tracker.Start()
	// Simulate a crash: the marker is never popped.

	tracker = NewShutdownTracker(db)
	unclean := tracker.MarkStartup()
	require.Len(t, unclean, 1)
	assert.NotZero(t, unclean[0])
	tracker.Start()
	tracker.Stop()

	// The crash is still reported on the next boot.
	assert.Len(t, NewShutdownTracker(db).MarkStartup(), 1)
}

func TestUncleanShutdownMarkersCapped(t *testing.T) {
	db := rawdb.NewMemoryDatabase()
	for i := 0; i < 15; i++ {
		_, _, err := rawdb.PushUncleanShutdownMarker(db)
		require.NoError(t, err)
	}
	previous, discarded, err := rawdb.PushUncleanShutdownMarker(db)
	require.NoError(t, err)
	assert.Len(t, previous, 11)
	assert.Equal(t, uint64(4), discarded)
}
