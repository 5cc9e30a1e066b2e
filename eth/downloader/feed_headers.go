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
)

// headerFeed downloads the canonical header chain up to the fast sync pivot,
// following it until the pivot is committed.
type headerFeed struct {
	*feedWorker
}

func newHeaderFeed(d *Downloader) *headerFeed {
	f := new(headerFeed)
	f.feedWorker = newFeedWorker(d, "headers", f.loop)
	return f
}

func (f *headerFeed) loop(ctx context.Context) error {
	defer f.d.clearPhase(FastHeaders)

	for {
		pivot := f.d.Pivot()
		if pivot == nil {
			if err := f.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		local := f.d.chain.CurrentHeader().Number.Uint64()
		target := pivot.Number.Uint64()
		if local >= target {
			// The pivot may still move forward until it is committed.
			if f.d.isCommitted() {
				f.log.Info("Header download finished", "number", local)
				return nil
			}
			if err := f.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		if err := f.step(ctx, local, target); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("Header download failed", "from", local+1, "err", err)
			if err := f.sleep(ctx); err != nil {
				return err
			}
		}
	}
}

// step downloads and inserts the next run of headers after local.
func (f *headerFeed) step(ctx context.Context, local, target uint64) error {
	var (
		stride = uint64(MaxHeaderFetch)
		gap    = target - local
	)
	var (
		headers []*types.Header
		err     error
	)
	if gap <= stride {
		headers, err = fetchHeaders(ctx, f.feedWorker, local+1, gap)
	} else {
		headers, err = fetchSkeleton(ctx, f.feedWorker, local, min(uint64(MaxSkeletonSize), gap/stride))
	}
	if err != nil {
		return err
	}
	if n, err := f.d.chain.InsertHeaderChain(headers); err != nil {
		return fmt.Errorf("header #%d: %w", headers[n].Number, err)
	}
	f.log.Debug("Inserted headers", "count", len(headers), "head", headers[len(headers)-1].Number)
	return nil
}
