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

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/eth/protocols/snap"
)

var errNoHealer = errors.New("state feed not running")

// healRequest asks the state feed for one record execution found missing.
type healRequest struct {
	missing *state.MissingDataError
	done    chan error
}

// heal hands a missing record to the state feed and waits until it is stored.
// heal 将缺失的状态记录交给 state feed，并等待其写入完成。
func (d *Downloader) heal(ctx context.Context, missing *state.MissingDataError) error {
	if !d.feeds.Mask().Has(StateNodes) {
		return errNoHealer
	}
	req := &healRequest{missing: missing, done: make(chan error, 1)}
	select {
	case d.heals <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stateFeed fetches single state records on demand. Peers only hold the state
// of their head block, so peers sitting at the local head block are asked
// first: they hold exactly the state the next block executes on. Without one,
// any snap peer serves the record from its own head state.
// stateFeed 按需拉取单条状态记录。优先选择链头与本地链头相同的节点，否则由任意快照节点按其链头状态提供。
type stateFeed struct {
	*feedWorker
}

func newStateFeed(d *Downloader) *stateFeed {
	f := new(stateFeed)
	f.feedWorker = newFeedWorker(d, "state", f.loop)
	return f
}

func (f *stateFeed) loop(ctx context.Context) error {
	defer f.d.clearPhase(StateNodes)

	for {
		select {
		case req := <-f.d.heals:
			err := f.fetch(ctx, req.missing)
			if err == nil {
				f.d.healedRecords.Add(1)
			}
			req.done <- err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func hasSnap(p *peerConnection) bool { return p.Snap() != nil }

// server returns the filter selecting the peers to heal from.
func (f *stateFeed) server() func(*peerConnection) bool {
	exact := serving(f.d.chain.CurrentBlock().Hash())
	for _, p := range f.d.peers.AllPeers() {
		if exact(p) {
			return exact
		}
	}
	return hasSnap
}

func (f *stateFeed) fetch(ctx context.Context, missing *state.MissingDataError) error {
	f.log.Debug("Healing state record", "missing", missing)
	switch missing.Kind {
	case state.AccountData:
		return f.fetchAccount(ctx, missing.Address)
	case state.StorageData:
		return f.fetchSlot(ctx, missing.Address, missing.Slot)
	case state.CodeData:
		return f.fetchCode(ctx, missing.CodeHash)
	default:
		return fmt.Errorf("unknown missing record %v", missing.Kind)
	}
}

// fetchAccount requests the account range starting at the account hash. If
// the first returned account is another one, the account does not exist.
func (f *stateFeed) fetchAccount(ctx context.Context, addr common.Address) error {
	hash := crypto.Keccak256Hash(addr.Bytes())
	blob, err := request(ctx, f.feedWorker, "account", f.server(), func(ctx context.Context, p *peerConnection) ([]byte, error) {
		root, _ := p.Head()
		hashes, blobs, err := p.Snap().RequestAccountRange(ctx, snap.NewAccountRangeRequest(root, hash, common.MaxHash, 1))
		if err != nil {
			return nil, err
		}
		if len(hashes) > 0 && hashes[0] == hash {
			return blobs[0], nil
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	if blob == nil {
		f.d.chain.StateCache().InsertAccount(addr, nil)
		return nil
	}
	return f.d.chain.InsertAccountRange([]common.Hash{hash}, [][]byte{blob})
}

// fetchSlot requests the storage range of one account starting at the slot
// hash. An absent slot is stored as zero.
func (f *stateFeed) fetchSlot(ctx context.Context, addr common.Address, slot common.Hash) error {
	var (
		accHash  = crypto.Keccak256Hash(addr.Bytes())
		slotHash = crypto.Keccak256Hash(slot.Bytes())
	)
	blob, err := request(ctx, f.feedWorker, "slot", f.server(), func(ctx context.Context, p *peerConnection) ([]byte, error) {
		root, _ := p.Head()
		hashes, slots, err := p.Snap().RequestStorageRanges(ctx, snap.NewStorageRangeRequest(root, []common.Hash{accHash}, slotHash[:], nil, 1))
		if err != nil {
			return nil, err
		}
		if len(hashes) > 0 && len(hashes[0]) > 0 && hashes[0][0] == slotHash {
			return slots[0][0], nil
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	if blob == nil {
		f.d.chain.StateCache().InsertStorage(addr, slot, common.Hash{})
		return nil
	}
	return f.d.chain.InsertStorageRange(accHash, []common.Hash{slotHash}, [][]byte{blob})
}

// fetchCode requests one byte code and checks it against its hash.
func (f *stateFeed) fetchCode(ctx context.Context, hash common.Hash) error {
	code, err := request(ctx, f.feedWorker, "code", f.server(), func(ctx context.Context, p *peerConnection) ([]byte, error) {
		codes, err := p.Snap().RequestByteCodes(ctx, []common.Hash{hash}, 0)
		if err != nil {
			return nil, err
		}
		for _, code := range codes {
			if crypto.Keccak256Hash(code) == hash {
				return code, nil
			}
		}
		return nil, fmt.Errorf("%w: code %x", errEmptyDelivery, hash)
	})
	if err != nil {
		return err
	}
	f.d.chain.InsertCodes([][]byte{code})
	return nil
}
