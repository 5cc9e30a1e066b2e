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

// Package ethconfig contains the configuration of the eth service.
package ethconfig

import (
	"fmt"
	"time"

	"github.com/sunyihoo/evmsync/core"
	"github.com/sunyihoo/evmsync/core/vm"
	"github.com/sunyihoo/evmsync/eth/downloader"
)

// SyncMode selects how the node catches up with the network.
// SyncMode 选择节点追赶网络的方式。
type SyncMode uint32

const (
	// FullSync imports every block from genesis and executes it.
	FullSync SyncMode = iota

	// FastSync downloads headers, bodies and receipts up to a pivot without
	// executing them. State is then fetched on demand while executing past it.
	FastSync

	// SnapSync is FastSync plus a download of the flat state at the pivot.
	SnapSync

	// NoSync disables every sync feed.
	NoSync
)

func (m SyncMode) IsValid() bool {
	return m <= NoSync
}

func (m SyncMode) String() string {
	switch m {
	case FullSync:
		return "full"
	case FastSync:
		return "fast"
	case SnapSync:
		return "snap"
	case NoSync:
		return "none"
	default:
		return fmt.Sprintf("invalid SyncMode(%d)", m)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m SyncMode) MarshalText() ([]byte, error) {
	if m.IsValid() {
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("unknown sync mode %d", m)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SyncMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "full":
		*m = FullSync
	case "fast":
		*m = FastSync
	case "snap":
		*m = SnapSync
	case "none":
		*m = NoSync
	default:
		return fmt.Errorf(`unknown sync mode %q, want "full", "fast", "snap" or "none"`, text)
	}
	return nil
}

// Defaults contains default settings for use on the Ethereum main net.
var Defaults = Config{
	NetworkId:       1337,
	SyncMode:        SnapSync,
	SyncHeaders:     true,
	SyncBodies:      true,
	SyncReceipts:    true,
	MaxSyncDistance: downloader.DefaultMaxDistance,
	PeerRequestRate: 20,
	DatabaseCache:   512,
	RPCGasCap:       50000000,
	RPCEVMTimeout:   5 * time.Second,
}

// Config contains configuration options for the eth protocol.
type Config struct {
	// The genesis block, which is inserted if the database is empty.
	// If nil, the developer genesis is used.
	Genesis *core.Genesis `toml:",omitempty"`

	// Protocol options
	NetworkId uint64
	SyncMode  SyncMode

	// SyncHeaders, SyncBodies and SyncReceipts select the chain data
	// downloaded below the pivot in fast and snap mode. Bodies and receipts
	// are skipped when SyncHeaders is off.
	SyncHeaders  bool
	SyncBodies   bool
	SyncReceipts bool

	// MaxSyncDistance is the distance to the best peer head within which the
	// node reports itself as synced.
	MaxSyncDistance uint64

	// PeerRequestRate caps the requests per second sent to one peer.
	PeerRequestRate float64

	// Database options
	DatabaseHandles int `toml:"-"`
	DatabaseCache   int

	// RPCGasCap is the global gas cap for eth-call variants.
	RPCGasCap uint64

	// RPCEVMTimeout is the global timeout for eth-call.
	RPCEVMTimeout time.Duration
}

// DownloaderConfig derives the feed selection of the downloader.
// DownloaderConfig 根据同步模式推导下载器启用的数据流。
func (c *Config) DownloaderConfig() downloader.Config {
	cfg := downloader.DefaultConfig
	cfg.NoSync = c.SyncMode == NoSync
	cfg.FastSync = c.SyncMode == FastSync || c.SyncMode == SnapSync
	cfg.SnapSync = c.SyncMode == SnapSync
	cfg.Headers = c.SyncHeaders
	cfg.Bodies = c.SyncBodies
	cfg.Receipts = c.SyncReceipts
	if c.MaxSyncDistance != 0 {
		cfg.MaxDistance = c.MaxSyncDistance
	}
	cfg.RequestRate = c.PeerRequestRate
	return cfg
}

// BlockChainConfig derives the chain settings. State below a fast sync
// pivot is incomplete, so those modes run the chain in partial state mode.
func (c *Config) BlockChainConfig() *core.BlockChainConfig {
	return &core.BlockChainConfig{
		Execute:      true,
		PartialState: c.SyncMode == FastSync || c.SyncMode == SnapSync,
		VMConfig:     vm.Config{},
	}
}
