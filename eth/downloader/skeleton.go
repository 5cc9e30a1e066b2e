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

	"golang.org/x/sync/errgroup"

	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
)

// headersFrom returns a filter accepting peers whose head is at least number.
func headersFrom(number uint64) func(*peerConnection) bool {
	return func(p *peerConnection) bool {
		_, head := p.Head()
		return head >= number
	}
}

// fetchHeaders retrieves count contiguous headers starting at from. The
// response must be complete and linked, otherwise the peer is at fault.
// fetchHeaders 拉取从 from 开始的 count 个连续区块头，响应必须完整且首尾相连。
func fetchHeaders(ctx context.Context, w *feedWorker, from, count uint64) ([]*types.Header, error) {
	req := eth.NewHeadersRequest(eth.HashOrNumber{Number: from}, count, false)
	return request(ctx, w, "headers", headersFrom(from+count-1), func(ctx context.Context, p *peerConnection) ([]*types.Header, error) {
		headers, err := p.peer.RequestHeaders(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := checkHeaderRun(headers, from, count); err != nil {
			return nil, err
		}
		return headers, nil
	})
}

// checkHeaderRun verifies that headers are exactly count linked headers
// starting at from.
func checkHeaderRun(headers []*types.Header, from, count uint64) error {
	if uint64(len(headers)) != count {
		return fmt.Errorf("%w: %d headers delivered, %d requested", errBadPeer, len(headers), count)
	}
	for i, header := range headers {
		if header.Number.Uint64() != from+uint64(i) {
			return fmt.Errorf("%w: header #%d at position %d", errBadPeer, header.Number, i)
		}
		if i > 0 && header.ParentHash != headers[i-1].Hash() {
			return fmt.Errorf("%w: header #%d not linked to its parent", errBadPeer, header.Number)
		}
	}
	return nil
}

// fetchSkeleton retrieves the headers between local and up to count skeleton
// points, MaxHeaderFetch blocks apart. The skeleton comes from a single peer
// and the gaps are filled concurrently by any peers, each fill checked to end
// at its skeleton header.
// fetchSkeleton 先从单个节点获取骨架区块头（每 MaxHeaderFetch 个区块一个），再并发填充各段并校验段尾与骨架一致。
func fetchSkeleton(ctx context.Context, w *feedWorker, local uint64, count uint64) ([]*types.Header, error) {
	stride := uint64(MaxHeaderFetch)
	req, err := eth.NewSkeletonRequest(local+stride, stride, count, false)
	if err != nil {
		return nil, err
	}
	last := local + stride*count
	skeleton, err := request(ctx, w, "skeleton", headersFrom(last), func(ctx context.Context, p *peerConnection) ([]*types.Header, error) {
		headers, err := p.peer.RequestHeaders(ctx, req)
		if err != nil {
			return nil, err
		}
		if uint64(len(headers)) != count {
			return nil, fmt.Errorf("%w: %d skeleton headers, %d requested", errBadPeer, len(headers), count)
		}
		for i, header := range headers {
			if want := local + stride*uint64(i+1); header.Number.Uint64() != want {
				return nil, fmt.Errorf("%w: skeleton header #%d, want #%d", errBadPeer, header.Number, want)
			}
		}
		return headers, nil
	})
	if err != nil {
		return nil, err
	}
	w.log.Debug("Filling up skeleton", "from", local+1, "count", count)

	var (
		segments = make([][]*types.Header, count)
		g, gctx  = errgroup.WithContext(ctx)
	)
	g.SetLimit(max(1, w.d.peers.Len()))
	for i := range segments {
		g.Go(func() error {
			from := local + stride*uint64(i) + 1
			headers, err := fetchHeaders(gctx, w, from, stride)
			if err != nil {
				return err
			}
			if headers[len(headers)-1].Hash() != skeleton[i].Hash() {
				return fmt.Errorf("segment #%d does not end at its skeleton header", from)
			}
			segments[i] = headers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	filled := make([]*types.Header, 0, stride*count)
	for _, segment := range segments {
		filled = append(filled, segment...)
	}
	return filled, nil
}
