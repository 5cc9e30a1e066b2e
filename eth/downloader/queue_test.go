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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/core/types"
)

func numbers(headers []*types.Header) []uint64 {
	var nums []uint64
	for _, header := range headers {
		nums = append(nums, header.Number.Uint64())
	}
	return nums
}

func TestFetchQueue(t *testing.T) {
	gspec := newTestGenesis()
	blocks := newTestBlocks(t, gspec, 10)
	chain := newTestChain(t, gspec, nil, nil)

	headers := make([]*types.Header, len(blocks))
	for i, block := range blocks {
		headers[i] = block.Header()
	}
	_, err := chain.InsertHeaderChain(headers)
	require.NoError(t, err)

	q := newFetchQueue(chain, 1, func(h *types.Header) bool {
		return !chain.HasBlock(h.Hash(), h.Number.Uint64())
	})
	assert.Equal(t, []uint64{1, 2, 3}, numbers(q.reserve(5, 3)))
	assert.Equal(t, []uint64{4, 5}, numbers(q.reserve(5, 3)))
	assert.Empty(t, q.reserve(5, 3))
	assert.True(t, q.done(5))
	assert.False(t, q.done(6))

	// Failed headers are handed out again first.
	q.requeue([]*types.Header{headers[1], headers[3]})
	assert.False(t, q.done(5))
	assert.Equal(t, []uint64{2, 4, 6}, numbers(q.reserve(10, 3)))
	assert.Equal(t, []uint64{7, 8, 9, 10}, numbers(q.reserve(20, 8)))
	assert.Empty(t, q.reserve(20, 8))
	assert.False(t, q.done(20))
	assert.True(t, q.done(10))
}

func TestFetchQueueSkipsPresent(t *testing.T) {
	gspec := newTestGenesis()
	blocks := newTestBlocks(t, gspec, 4)
	chain := newTestChain(t, gspec, nil, blocks)

	q := newFetchQueue(chain, 1, func(h *types.Header) bool {
		return !chain.HasBlock(h.Hash(), h.Number.Uint64())
	})
	assert.Empty(t, q.reserve(4, 10))
	assert.True(t, q.done(4))
}
