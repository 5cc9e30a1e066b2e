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
	"fmt"
	"strings"
)

// SyncMode is a set of sync phase flags. Several phases run at the same time,
// so the downloader state is the union of the flags of every phase that still
// has work left.
// SyncMode 是同步阶段的位标志集合。多个阶段可以同时进行，状态是所有未完成阶段标志的并集。
type SyncMode uint32

const (
	WaitingForBlock SyncMode = 1 << iota // No peer announced a block beyond the local head
	Disconnected                         // No peers to sync from
	FastBlocks                           // Chain data below the pivot is being downloaded
	FastSync                             // A pivot is chosen but not committed yet
	StateNodes                           // State records are fetched on demand
	Full                                 // Blocks are fetched and executed
	DBLoad                               // The local database is being loaded
	fastHeadersBit
	fastBodiesBit
	fastReceiptsBit
	SnapSync      // Flat state ranges of the pivot are being downloaded
	BeaconHeaders // Headers announced by the consensus client are pending
	UpdatingPivot // The pivot moved and state ranges restart

	// Composite flags carry the FastBlocks bit they belong to.
	FastHeaders  = FastBlocks | fastHeadersBit
	FastBodies   = FastBlocks | fastBodiesBit
	FastReceipts = FastBlocks | fastReceiptsBit

	// All is the union of every named flag.
	All = WaitingForBlock | Disconnected | FastBlocks | FastSync | StateNodes | Full | DBLoad |
		FastHeaders | FastBodies | FastReceipts | SnapSync | BeaconHeaders | UpdatingPivot
)

// fastBits are the sub-phases living under the FastBlocks umbrella bit.
const fastBits = fastHeadersBit | fastBodiesBit | fastReceiptsBit

var modeNames = []struct {
	flag SyncMode
	name string
}{
	{WaitingForBlock, "waiting_for_block"},
	{Disconnected, "disconnected"},
	{FastBlocks, "fast_blocks"},
	{FastSync, "fast_sync"},
	{StateNodes, "state_nodes"},
	{Full, "full"},
	{DBLoad, "db_load"},
	{fastHeadersBit, "fast_headers"},
	{fastBodiesBit, "fast_bodies"},
	{fastReceiptsBit, "fast_receipts"},
	{SnapSync, "snap"},
	{BeaconHeaders, "beacon_headers"},
	{UpdatingPivot, "updating_pivot"},
}

// Has reports whether every bit of flags is set.
func (m SyncMode) Has(flags SyncMode) bool {
	return m&flags == flags
}

// HaveNotSyncedHeaders reports whether headers below the pivot are pending.
func (m SyncMode) HaveNotSyncedHeaders() bool { return m.Has(FastHeaders) }

// HaveNotSyncedBodies reports whether bodies below the pivot are pending.
func (m SyncMode) HaveNotSyncedBodies() bool { return m.Has(FastBodies) }

// HaveNotSyncedReceipts reports whether receipts below the pivot are pending.
func (m SyncMode) HaveNotSyncedReceipts() bool { return m.Has(FastReceipts) }

// HaveNotSyncedPivot reports whether the pivot block is yet to be committed.
func (m SyncMode) HaveNotSyncedPivot() bool { return m.Has(FastSync) }

// HaveNotSyncedState reports whether the state ranges of the pivot are still
// being downloaded.
func (m SyncMode) HaveNotSyncedState() bool {
	return m&(SnapSync|UpdatingPivot) != 0
}

// String implements fmt.Stringer, listing the set flags separated by '|'.
func (m SyncMode) String() string {
	if m == 0 {
		return "none"
	}
	var (
		names []string
		rest  = m
	)
	for _, n := range modeNames {
		if m&n.flag != 0 {
			names = append(names, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// SyncStatus is the externally visible sync state of the node.
type SyncStatus int

const (
	NotSyncing SyncStatus = iota
	Syncing
)

func (s SyncStatus) String() string {
	switch s {
	case NotSyncing:
		return "synced"
	case Syncing:
		return "syncing"
	default:
		return fmt.Sprintf("SyncStatus(%d)", int(s))
	}
}

// DefaultMaxDistance is the block distance to the highest known head within
// which the node counts as synced.
const DefaultMaxDistance = 8

// ToSyncStatus resolves the sync state from the phase flags and the local and
// highest known block numbers. Without any known network head the node is
// considered syncing. Otherwise it is syncing when it trails the head by more
// than maxDistance blocks, or while bodies or receipts are still pending.
// Pending headers or state alone do not make the node syncing.
// ToSyncStatus 根据阶段标志与本地/网络最高区块号判断同步状态。仅有区块头或状态阶段未完成时不视为同步中。
func ToSyncStatus(mode SyncMode, current, highest, maxDistance uint64) SyncStatus {
	if highest == 0 {
		return Syncing
	}
	if highest > current && highest-current > maxDistance {
		return Syncing
	}
	if mode&(fastBodiesBit|fastReceiptsBit) != 0 {
		return Syncing
	}
	return NotSyncing
}
