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

// Contains the block data scheduler handing out canonical headers whose
// bodies or receipts are still missing locally.

package downloader

import (
	"sync"

	"github.com/sunyihoo/evmsync/core/types"
)

// fetchQueue walks the canonical header chain from a cursor and hands out
// batches of headers whose data is missing. Batches that fail to deliver are
// returned and handed out again before the cursor moves on.
// fetchQueue 从游标开始遍历规范区块头，分批交出本地缺少数据的区块头；失败的批次会被优先重新分配。
type fetchQueue struct {
	chain   BlockChain
	missing func(*types.Header) bool // Whether the data of a header still needs fetching

	next    uint64          // Number of the next header to inspect
	pending []*types.Header // Headers returned after a failed delivery
	lock    sync.Mutex
}

func newFetchQueue(chain BlockChain, from uint64, missing func(*types.Header) bool) *fetchQueue {
	return &fetchQueue{chain: chain, missing: missing, next: from}
}

// reserve returns up to max headers numbered at most limit whose data is
// missing. An empty result means every header up to limit has been handed
// out, or the canonical chain does not reach further yet.
func (q *fetchQueue) reserve(limit uint64, max int) []*types.Header {
	q.lock.Lock()
	defer q.lock.Unlock()

	var batch []*types.Header
	for len(q.pending) > 0 && len(batch) < max {
		batch = append(batch, q.pending[0])
		q.pending = q.pending[1:]
	}
	for len(batch) < max && q.next <= limit {
		header := q.chain.GetHeaderByNumber(q.next)
		if header == nil {
			break
		}
		if q.missing(header) {
			batch = append(batch, header)
		}
		q.next++
	}
	return batch
}

// requeue hands headers back for another delivery attempt.
func (q *fetchQueue) requeue(headers []*types.Header) {
	if len(headers) == 0 {
		return
	}
	q.lock.Lock()
	defer q.lock.Unlock()
	q.pending = append(append([]*types.Header(nil), headers...), q.pending...)
}

// done reports whether the cursor passed limit with nothing left to retry.
func (q *fetchQueue) done(limit uint64) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.pending) == 0 && q.next > limit
}
