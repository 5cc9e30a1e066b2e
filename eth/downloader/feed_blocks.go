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

	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
)

var errEmptyDelivery = errors.New("peer delivered none of the requested items")

// blockDataFeed downloads block data below the pivot for the headers handed
// out by its queue. The body and receipt feeds differ only in what they ask
// for and how they store it.
// blockDataFeed 为队列交出的区块头下载枢轴以下的区块数据。区块体与收据 feed 只在请求内容和写入方式上不同。
type blockDataFeed struct {
	*feedWorker

	phase SyncMode
	batch int
	queue func() *fetchQueue
	fetch func(ctx context.Context, headers []*types.Header) (missing []*types.Header, err error)
}

func (f *blockDataFeed) loop(ctx context.Context) error {
	defer f.d.clearPhase(f.phase)

	queue := f.queue()
	for {
		pivot := f.d.Pivot()
		if pivot == nil {
			if err := f.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		limit := pivot.Number.Uint64()
		if queue.done(limit) {
			if f.d.isCommitted() {
				f.log.Info("Block data download finished", "number", limit)
				return nil
			}
			if err := f.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		headers := queue.reserve(limit, f.batch)
		if len(headers) == 0 {
			// Headers have not reached this far yet.
			if err := f.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		missing, err := f.fetch(ctx, headers)
		if err != nil {
			queue.requeue(headers)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("Block data download failed", "from", headers[0].Number, "count", len(headers), "err", err)
			if err := f.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		queue.requeue(missing)
	}
}

// fetchBlocks fills req from a peer holding all of its headers. A response
// without any requested item counts as a failure so another peer is tried.
func fetchBlocks(ctx context.Context, w *feedWorker, what string, req *eth.BlocksRequest, last uint64) (*eth.BlocksRequest, error) {
	return request(ctx, w, what, headersFrom(last), func(ctx context.Context, p *peerConnection) (*eth.BlocksRequest, error) {
		if err := p.peer.RequestBlocks(ctx, req); err != nil {
			return nil, err
		}
		for _, body := range req.Bodies {
			if body != nil {
				return req, nil
			}
		}
		for _, receipts := range req.Receipts {
			if receipts != nil {
				return req, nil
			}
		}
		if len(req.BodyHeaders)+len(req.ReceiptHeaders) == 0 {
			return req, nil
		}
		return nil, errEmptyDelivery
	})
}

// newBodyFeed creates the feed storing bodies below the pivot.
func newBodyFeed(d *Downloader) *blockDataFeed {
	f := &blockDataFeed{phase: FastBodies, batch: MaxBlockFetch}
	f.feedWorker = newFeedWorker(d, "bodies", f.loop)
	f.queue = func() *fetchQueue {
		return newFetchQueue(d.chain, d.chain.CurrentBlock().Number.Uint64()+1, func(h *types.Header) bool {
			return !d.chain.HasBlock(h.Hash(), h.Number.Uint64())
		})
	}
	f.fetch = func(ctx context.Context, headers []*types.Header) ([]*types.Header, error) {
		last := headers[len(headers)-1].Number.Uint64()
		req, err := fetchBlocks(ctx, f.feedWorker, "bodies", eth.NewBlocksRequest(headers, nil), last)
		if err != nil {
			return nil, err
		}
		var (
			blocks  types.Blocks
			missing []*types.Header
		)
		for i, header := range headers {
			if req.Bodies[i] == nil {
				missing = append(missing, header)
				continue
			}
			block, err := types.NewBlockWithHeader(header, req.Bodies[i])
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
		if len(blocks) == 0 {
			return missing, nil
		}
		if n, err := d.chain.InsertBodyChain(blocks); err != nil {
			return nil, fmt.Errorf("body #%d: %w", blocks[n].Number(), err)
		}
		f.log.Debug("Inserted block bodies", "count", len(blocks), "missing", len(missing))
		return missing, nil
	}
	return f
}

// newReceiptFeed creates the feed storing receipts below the pivot. Bodies
// not yet stored locally are requested together with the receipts.
func newReceiptFeed(d *Downloader) *blockDataFeed {
	f := &blockDataFeed{phase: FastReceipts, batch: MaxReceiptFetch}
	f.feedWorker = newFeedWorker(d, "receipts", f.loop)
	f.queue = func() *fetchQueue {
		return newFetchQueue(d.chain, d.chain.CurrentSnapBlock().Number.Uint64()+1, func(*types.Header) bool {
			return true
		})
	}
	f.fetch = func(ctx context.Context, headers []*types.Header) ([]*types.Header, error) {
		var (
			local     = make(map[int]*types.Body)
			bodyHeads []*types.Header
		)
		for i, header := range headers {
			if body := d.chain.GetBody(header.Hash()); body != nil {
				local[i] = body
			} else {
				bodyHeads = append(bodyHeads, header)
			}
		}
		last := headers[len(headers)-1].Number.Uint64()
		req, err := fetchBlocks(ctx, f.feedWorker, "receipts", eth.NewBlocksRequest(bodyHeads, headers), last)
		if err != nil {
			return nil, err
		}
		var (
			blocks   types.Blocks
			receipts []types.Receipts
			missing  []*types.Header
			next     int
		)
		for i, header := range headers {
			body, ok := local[i]
			if !ok {
				body = req.Bodies[next]
				next++
			}
			if body == nil || req.Receipts[i] == nil {
				missing = append(missing, header)
				continue
			}
			block, err := types.NewBlockWithHeader(header, body)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
			receipts = append(receipts, req.Receipts[i])
		}
		if len(blocks) == 0 {
			return missing, nil
		}
		if n, err := d.chain.InsertReceiptChain(blocks, receipts); err != nil {
			return nil, fmt.Errorf("receipts #%d: %w", blocks[n].Number(), err)
		}
		f.log.Debug("Inserted block receipts", "count", len(blocks), "missing", len(missing))
		return missing, nil
	}
	return f
}
