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
	"fmt"

	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
)

// pivotFeed picks the fast sync pivot and commits it as the head block once
// its header, body and (with snap sync) state are in place. Execution by the
// full feed resumes on top of it.
// pivotFeed 选择快速同步枢轴，在其区块头、区块体以及（快照同步时）状态就绪后将其提交为链头。
type pivotFeed struct {
	*feedWorker
}

func newPivotFeed(d *Downloader) *pivotFeed {
	f := new(pivotFeed)
	f.feedWorker = newFeedWorker(d, "fast_blocks", f.loop)
	return f
}

func (f *pivotFeed) loop(ctx context.Context) error {
	defer f.d.clearPhase(FastSync)

	for f.d.Pivot() == nil {
		err := f.d.updatePivot(ctx, f.feedWorker)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Debug("Pivot selection failed", "err", err)
		if err := f.sleep(ctx); err != nil {
			return err
		}
	}
	for {
		pivot := f.d.Pivot()
		if f.d.chain.CurrentBlock().Number.Cmp(pivot.Number) >= 0 {
			f.log.Info("Local chain is past the pivot", "pivot", pivot.Number)
			f.d.markCommitted()
			return nil
		}
		ready, err := f.ready(ctx, pivot)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("Pivot block download failed", "number", pivot.Number, "err", err)
		}
		if ready {
			// Without snap nothing was downloaded, the flat state still holds
			// the old head and healing refills it on demand.
			if !f.d.feeds.Mask().Has(SnapSync) {
				if err := f.d.chain.ResetState(); err != nil {
					return err
				}
			}
			if err := f.d.chain.SnapSyncCommitHead(pivot.Hash()); err != nil {
				return err
			}
			f.d.markCommitted()
			f.log.Info("Committed pivot block", "number", pivot.Number, "hash", pivot.Hash())
			return nil
		}
		if err := f.sleep(ctx); err != nil {
			return err
		}
	}
}

// ready reports whether pivot can be committed, fetching its body when the
// header is already canonical.
func (f *pivotFeed) ready(ctx context.Context, pivot *types.Header) (bool, error) {
	number := pivot.Number.Uint64()
	if header := f.d.chain.GetHeaderByNumber(number); header == nil || header.Hash() != pivot.Hash() {
		return false, nil
	}
	if f.d.feeds.Mask().Has(SnapSync) {
		select {
		case <-f.d.snapDone:
		default:
			return false, nil
		}
	}
	if f.d.chain.HasBlock(pivot.Hash(), number) {
		return true, nil
	}
	req, err := fetchBlocks(ctx, f.feedWorker, "pivot body", eth.NewBlocksRequest([]*types.Header{pivot}, nil), number)
	if err != nil {
		return false, err
	}
	if req.Bodies[0] == nil {
		return false, nil
	}
	block, err := types.NewBlockWithHeader(pivot, req.Bodies[0])
	if err != nil {
		return false, err
	}
	if _, err := f.d.chain.InsertBodyChain(types.Blocks{block}); err != nil {
		return false, err
	}
	return true, nil
}

// updatePivot moves the pivot to the head of the best peer. The pivot never
// moves backwards.
// updatePivot 将枢轴移动到最佳节点的链头，枢轴不会后退。
func (d *Downloader) updatePivot(ctx context.Context, w *feedWorker) error {
	best := d.peers.best()
	if best == nil {
		return errNoPeers
	}
	hash, number := best.Head()
	if current := d.Pivot(); current != nil && current.Number.Uint64() >= number {
		return nil
	}
	req := eth.NewHeadersRequest(eth.HashOrNumber{Hash: hash}, 1, false)
	header, err := request(ctx, w, "pivot", headersFrom(number), func(ctx context.Context, p *peerConnection) (*types.Header, error) {
		headers, err := p.peer.RequestHeaders(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(headers) != 1 || headers[0].Hash() != hash {
			return nil, fmt.Errorf("pivot header %x not delivered", hash)
		}
		return headers[0], nil
	})
	if err != nil {
		return err
	}
	d.pivot.Store(header)
	d.log.Info("Updated sync pivot", "number", header.Number, "hash", hash)
	return nil
}
