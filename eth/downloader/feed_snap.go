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
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/eth/protocols/snap"
)

var errPivotStale = errors.New("no peer serves the pivot state")

// maxCodeFetch is the number of byte codes requested at once.
var maxCodeFetch = 128

// snapFeed downloads the flat state of the pivot block: every account, the
// storage of every contract and the contract codes. Peers only serve the
// state of their head block, so the pivot follows the peers when they move
// on and the download restarts.
// snapFeed 下载枢轴区块的扁平状态：所有账户、合约存储与合约代码。节点只提供其链头状态，节点前进时枢轴随之更新并重新开始。
type snapFeed struct {
	*feedWorker
}

func newSnapFeed(d *Downloader) *snapFeed {
	f := new(snapFeed)
	f.feedWorker = newFeedWorker(d, "snap", f.loop)
	return f
}

func (f *snapFeed) loop(ctx context.Context) error {
	defer f.d.clearPhase(SnapSync | UpdatingPivot)

	for {
		if f.d.isCommitted() {
			return nil
		}
		pivot := f.d.Pivot()
		if pivot == nil {
			if err := f.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		err := f.sync(ctx, pivot.Hash())
		switch {
		case err == nil:
			f.d.markSnapDone()
			f.log.Info("State download finished", "pivot", pivot.Number, "accounts", f.d.syncedAccounts.Load(),
				"slots", f.d.syncedStorage.Load(), "codes", f.d.syncedBytecodes.Load())
			return nil

		case errors.Is(err, errPivotStale):
			f.d.setPhase(UpdatingPivot)
			if err := f.d.updatePivot(ctx, f.feedWorker); err != nil {
				f.log.Debug("Pivot update failed", "err", err)
			}
			f.d.clearPhase(UpdatingPivot)

		case ctx.Err() != nil:
			return ctx.Err()

		default:
			f.log.Warn("State download failed", "pivot", pivot.Number, "err", err)
		}
		if err := f.sleep(ctx); err != nil {
			return err
		}
	}
}

// serving returns a filter accepting snap peers whose head state is root.
func serving(root common.Hash) func(*peerConnection) bool {
	return func(p *peerConnection) bool {
		head, _ := p.Head()
		return p.Snap() != nil && head == root
	}
}

// anyServing reports whether some peer serves the state of root.
func (f *snapFeed) anyServing(root common.Hash) bool {
	filter := serving(root)
	for _, p := range f.d.peers.AllPeers() {
		if filter(p) {
			return true
		}
	}
	return false
}

// sync downloads the whole account range of root, together with the storage
// and codes of the contracts found in each account batch.
func (f *snapFeed) sync(ctx context.Context, root common.Hash) error {
	if !f.anyServing(root) {
		return errPivotStale
	}
	// Entries of an earlier head or pivot must not outlive the download.
	if err := f.d.chain.ResetState(); err != nil {
		return err
	}
	var origin common.Hash
	for {
		if !f.anyServing(root) {
			return errPivotStale
		}
		req := snap.NewAccountRangeRequest(root, origin, common.MaxHash, 0)
		hashes, blobs, err := fetchAccounts(ctx, f.feedWorker, req)
		if err != nil {
			return err
		}
		if len(hashes) == 0 {
			return nil
		}
		if err := f.d.chain.InsertAccountRange(hashes, blobs); err != nil {
			return err
		}
		f.d.syncedAccounts.Add(uint64(len(hashes)))

		var (
			contracts []common.Hash
			codes     = make(map[common.Hash]struct{})
		)
		for i, blob := range blobs {
			account, err := types.DecodeStateAccount(blob)
			if err != nil {
				return err
			}
			codeHash := common.BytesToHash(account.CodeHash)
			if codeHash == types.EmptyCodeHash {
				continue
			}
			contracts = append(contracts, hashes[i])
			codes[codeHash] = struct{}{}
		}
		var g errgroup.Group
		g.Go(func() error { return f.syncStorage(ctx, root, contracts) })
		g.Go(func() error { return f.syncCodes(ctx, codes) })
		if err := g.Wait(); err != nil {
			return err
		}
		last := hashes[len(hashes)-1]
		next, ok := incHash(last)
		if !ok {
			return nil
		}
		origin = next
		f.log.Debug("Downloaded account range", "count", len(hashes), "last", last)
	}
}

// fetchAccounts retrieves one account range. An empty answer from a peer
// that moved past the root is reported as a stale pivot.
func fetchAccounts(ctx context.Context, w *feedWorker, req *snap.AccountRangeRequest) ([]common.Hash, [][]byte, error) {
	type accounts struct {
		hashes []common.Hash
		blobs  [][]byte
	}
	res, err := request(ctx, w, "accounts", serving(req.Root), func(ctx context.Context, p *peerConnection) (accounts, error) {
		hashes, blobs, err := p.Snap().RequestAccountRange(ctx, req)
		if err != nil {
			return accounts{}, err
		}
		if len(hashes) == 0 {
			if head, _ := p.Head(); head != req.Root {
				return accounts{}, backoff.Permanent(errPivotStale)
			}
		}
		for i, hash := range hashes {
			if bytes.Compare(hash[:], req.Origin[:]) < 0 || (i > 0 && bytes.Compare(hash[:], hashes[i-1][:]) <= 0) {
				return accounts{}, fmt.Errorf("%w: account %x out of order", errBadPeer, hash)
			}
		}
		return accounts{hashes, blobs}, nil
	})
	return res.hashes, res.blobs, err
}

// syncStorage downloads the storage of the given accounts. The last slot set
// of a response may be cut short by the byte budget, so that account is
// continued on its own from its last slot.
func (f *snapFeed) syncStorage(ctx context.Context, root common.Hash, accounts []common.Hash) error {
	for len(accounts) > 0 {
		batch := accounts[:min(len(accounts), accountBatchSize)]
		hashes, slots, err := fetchStorage(ctx, f.feedWorker, root, batch, nil)
		if err != nil {
			return err
		}
		for i := range hashes {
			if err := f.d.chain.InsertStorageRange(batch[i], hashes[i], slots[i]); err != nil {
				return err
			}
			f.d.syncedStorage.Add(uint64(len(hashes[i])))
		}
		last := len(hashes) - 1
		if n := len(hashes[last]); n > 0 {
			if next, ok := incHash(hashes[last][n-1]); ok {
				if err := f.syncLargeStorage(ctx, root, batch[last], next); err != nil {
					return err
				}
			}
		}
		accounts = accounts[len(hashes):]
	}
	return nil
}

// syncLargeStorage continues the storage of one account from origin until
// an empty range comes back.
func (f *snapFeed) syncLargeStorage(ctx context.Context, root common.Hash, account common.Hash, origin common.Hash) error {
	for {
		hashes, slots, err := fetchStorage(ctx, f.feedWorker, root, []common.Hash{account}, origin[:])
		if err != nil {
			return err
		}
		if len(hashes[0]) == 0 {
			return nil
		}
		if err := f.d.chain.InsertStorageRange(account, hashes[0], slots[0]); err != nil {
			return err
		}
		f.d.syncedStorage.Add(uint64(len(hashes[0])))

		next, ok := incHash(hashes[0][len(hashes[0])-1])
		if !ok {
			return nil
		}
		origin = next
	}
}

// fetchStorage retrieves the storage ranges of accounts. A peer serving the
// root always answers with at least one slot set.
func fetchStorage(ctx context.Context, w *feedWorker, root common.Hash, accounts []common.Hash, origin []byte) ([][]common.Hash, [][][]byte, error) {
	type storage struct {
		hashes [][]common.Hash
		slots  [][][]byte
	}
	res, err := request(ctx, w, "storage", serving(root), func(ctx context.Context, p *peerConnection) (storage, error) {
		hashes, slots, err := p.Snap().RequestStorageRanges(ctx, snap.NewStorageRangeRequest(root, accounts, origin, nil, 0))
		if err != nil {
			return storage{}, err
		}
		if len(hashes) == 0 {
			return storage{}, backoff.Permanent(errPivotStale)
		}
		return storage{hashes, slots}, nil
	})
	return res.hashes, res.slots, err
}

// syncCodes downloads the given byte codes. Each delivered code is checked
// against its hash.
func (f *snapFeed) syncCodes(ctx context.Context, wanted map[common.Hash]struct{}) error {
	pending := make([]common.Hash, 0, len(wanted))
	for hash := range wanted {
		pending = append(pending, hash)
	}
	for len(pending) > 0 {
		batch := pending[:min(len(pending), maxCodeFetch)]
		codes, err := request(ctx, f.feedWorker, "codes", func(p *peerConnection) bool { return p.Snap() != nil },
			func(ctx context.Context, p *peerConnection) ([][]byte, error) {
				return p.Snap().RequestByteCodes(ctx, batch, 0)
			})
		if err != nil {
			return err
		}
		delivered := make(map[common.Hash]struct{})
		var valid [][]byte
		for _, code := range codes {
			hash := crypto.Keccak256Hash(code)
			if _, ok := wanted[hash]; ok {
				delivered[hash] = struct{}{}
				valid = append(valid, code)
			}
		}
		if len(valid) == 0 {
			return fmt.Errorf("none of %d requested codes delivered", len(batch))
		}
		f.d.chain.InsertCodes(valid)
		f.d.syncedBytecodes.Add(uint64(len(valid)))

		var rest []common.Hash
		for _, hash := range pending {
			if _, ok := delivered[hash]; !ok {
				rest = append(rest, hash)
			}
		}
		pending = rest
	}
	return nil
}

// incHash returns h+1, or false if h is the largest hash.
func incHash(h common.Hash) (common.Hash, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		h[i]++
		if h[i] != 0 {
			return h, true
		}
	}
	return h, false
}
