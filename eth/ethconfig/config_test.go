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

package ethconfig

import (
	"testing"

	"github.com/naoina/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/eth/downloader"
)

func TestSyncModeText(t *testing.T) {
	for _, mode := range []SyncMode{FullSync, FastSync, SnapSync, NoSync} {
		text, err := mode.MarshalText()
		require.NoError(t, err)

		var back SyncMode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, mode, back)
	}
	var mode SyncMode
	assert.Error(t, mode.UnmarshalText([]byte("light")))
	_, err := SyncMode(9).MarshalText()
	assert.Error(t, err)
}

func TestDownloaderConfig(t *testing.T) {
	tests := []struct {
		mode               SyncMode
		noSync, fast, snap bool
		partial            bool
	}{
		{FullSync, false, false, false, false},
		{FastSync, false, true, false, true},
		{SnapSync, false, true, true, true},
		{NoSync, true, false, false, false},
	}
	for _, tt := range tests {
		cfg := Defaults
		cfg.SyncMode = tt.mode

		dl := cfg.DownloaderConfig()
		assert.Equal(t, tt.noSync, dl.NoSync, tt.mode.String())
		assert.Equal(t, tt.fast, dl.FastSync, tt.mode.String())
		assert.Equal(t, tt.snap, dl.SnapSync, tt.mode.String())
		assert.True(t, dl.Headers)
		assert.True(t, dl.Bodies)
		assert.Equal(t, Defaults.MaxSyncDistance, dl.MaxDistance)

		bc := cfg.BlockChainConfig()
		assert.True(t, bc.Execute)
		assert.Equal(t, tt.partial, bc.PartialState, tt.mode.String())
	}
}

func TestConfigTOML(t *testing.T) {
	input := `
NetworkId = 7
SyncMode = "fast"
SyncHeaders = false
SyncBodies = false
SyncReceipts = true
MaxSyncDistance = 16
PeerRequestRate = 5.0
RPCGasCap = 1000
`
	var cfg Config
	require.NoError(t, toml.Unmarshal([]byte(input), &cfg))
	assert.Equal(t, uint64(7), cfg.NetworkId)
	assert.Equal(t, FastSync, cfg.SyncMode)
	assert.False(t, cfg.SyncBodies)
	assert.False(t, cfg.SyncHeaders)
	assert.True(t, cfg.SyncReceipts)

	dl := cfg.DownloaderConfig()
	assert.False(t, dl.Headers)
	mask := downloader.ComputeStartupMask(&dl)
	assert.Equal(t, downloader.FastHeaders, mask&downloader.FastHeaders)
	assert.NotEqual(t, downloader.FastReceipts, mask&downloader.FastReceipts)
	assert.Equal(t, uint64(16), cfg.MaxSyncDistance)
	assert.Equal(t, 5.0, cfg.PeerRequestRate)
}
