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

	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
)

// fullFeed downloads and executes blocks on top of the local head block. It
// starts once the pivot is committed (at once when fast sync is off) and runs
// until the downloader stops, following the best peer. State records missing
// during execution are healed through the state feed and the failing block is
// retried.
// fullFeed 在本地链头之上下载并执行区块。执行中缺失的状态记录交由 state feed 补齐后重试。
type fullFeed struct {
	*feedWorker
}

func newFullFeed(d *Downloader) *fullFeed {
	f := new(fullFeed)
	f.feedWorker = newFeedWorker(d, "full", f.loop)
	return f
}

func (f *fullFeed) loop(ctx context.Context) error {
	select {
	case <-f.d.committed:
	case <-ctx.Done():
		return ctx.Err()
	}
	f.log.Info("Block execution started", "head", f.d.chain.CurrentBlock().Number)

	for {
		best := f.d.peers.best()
		current := f.d.chain.CurrentBlock().Number.Uint64()
		if best == nil {
			f.d.setPhase(WaitingForBlock)
		} else if _, head := best.Head(); head <= current {
			f.d.setPhase(WaitingForBlock)
		} else {
			f.d.clearPhase(WaitingForBlock)
			err := f.step(ctx, current, head)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("Block import failed", "head", current, "err", err)
		}
		if err := f.sleep(ctx); err != nil {
			return err
		}
	}
}

// step imports the next batch of at most MaxBlockFetch blocks towards head.
// Headers already in the local header chain are reused.
func (f *fullFeed) step(ctx context.Context, current, head uint64) error {
	var (
		count   = min(head-current, uint64(MaxBlockFetch))
		local   = f.d.chain.CurrentHeader().Number.Uint64()
		headers []*types.Header
	)
	if local > current {
		for n := current + 1; n <= min(current+count, local); n++ {
			header := f.d.chain.GetHeaderByNumber(n)
			if header == nil {
				break
			}
			headers = append(headers, header)
		}
	}
	if len(headers) == 0 {
		fetched, err := fetchHeaders(ctx, f.feedWorker, current+1, count)
		if err != nil {
			return err
		}
		if n, err := f.d.chain.InsertHeaderChain(fetched); err != nil {
			return fmt.Errorf("header #%d: %w", fetched[n].Number, err)
		}
		headers = fetched
	}
	last := headers[len(headers)-1].Number.Uint64()
	req, err := fetchBlocks(ctx, f.feedWorker, "blocks", eth.NewBlocksRequest(headers, nil), last)
	if err != nil {
		return err
	}
	var blocks types.Blocks
	for i, header := range headers {
		if req.Bodies[i] == nil {
			break
		}
		block, err := types.NewBlockWithHeader(header, req.Bodies[i])
		if err != nil {
			return err
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return errEmptyDelivery
	}
	return f.insert(ctx, blocks)
}

// insert executes blocks, healing missing state records and retrying from
// the block that hit them.
func (f *fullFeed) insert(ctx context.Context, blocks types.Blocks) error {
	for len(blocks) > 0 {
		n, err := f.d.chain.InsertChain(blocks)
		if err == nil {
			f.log.Debug("Imported blocks", "count", len(blocks), "head", blocks[len(blocks)-1].Number())
			return nil
		}
		var missing *state.MissingDataError
		if !errors.As(err, &missing) {
			return fmt.Errorf("block #%d: %w", blocks[n].Number(), err)
		}
		if err := f.d.heal(ctx, missing); err != nil {
			return fmt.Errorf("block #%d: %w (heal: %v)", blocks[n].Number(), missing, err)
		}
		blocks = blocks[n:]
	}
	return nil
}
