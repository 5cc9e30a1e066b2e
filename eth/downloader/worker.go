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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/log"
)

var (
	retryInitial = 100 * time.Millisecond // Delay before the first retry of a failed request
	retryMax     = 5 * time.Second        // Upper bound of the retry delay
	retryLimit   = uint64(8)              // Retries of one request before giving up

	requestTimeout = 10 * time.Second // Time allowance for a single peer request
)

// feedWorker is the lifecycle shared by all feeds: Start launches the run
// loop in the background, Stop cancels it and waits for it to exit.
// feedWorker 是各 feed 共用的生命周期：Start 在后台运行循环，Stop 取消并等待退出。
type feedWorker struct {
	name string
	d    *Downloader
	run  func(ctx context.Context) error
	log  log.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
	lock   sync.Mutex
}

func newFeedWorker(d *Downloader, name string, run func(ctx context.Context) error) *feedWorker {
	return &feedWorker{name: name, d: d, run: run, log: log.New("feed", name)}
}

// Name implements Feed.
func (w *feedWorker) Name() string { return w.name }

// Start implements Feed.
func (w *feedWorker) Start(ctx context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.cancel != nil {
		return errFeedRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.group = new(errgroup.Group)
	w.group.Go(func() error {
		err := w.run(ctx)
		switch {
		case err == nil:
			w.log.Debug("Sync feed finished")
		case errors.Is(err, context.Canceled):
			w.log.Debug("Sync feed stopped")
		default:
			w.log.Error("Sync feed failed", "err", err)
		}
		return err
	})
	return nil
}

// Stop implements Feed.
func (w *feedWorker) Stop() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.cancel == nil {
		return
	}
	w.cancel()
	w.group.Wait()
	w.cancel, w.group = nil, nil
}

// sleep waits for the poll interval or until ctx is done.
func (w *feedWorker) sleep(ctx context.Context) error {
	timer := time.NewTimer(w.d.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request runs op against a reserved peer passing the filter, retrying with
// exponential backoff on another peer when it fails. The peer is released
// after each attempt.
// request 选择一个空闲节点执行 op，失败时以指数退避换节点重试。
func request[T any](ctx context.Context, w *feedWorker, what string, filter func(*peerConnection) bool, op func(ctx context.Context, p *peerConnection) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitial
	bo.MaxInterval = retryMax
	bo.MaxElapsedTime = 0

	attempt := func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		p := w.d.peers.reserve(filter)
		if p == nil {
			return zero, errNoPeers
		}
		defer w.d.peers.release(p)

		if err := p.wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		rctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		res, err := op(rctx, p)
		if err != nil {
			if errors.Is(err, errBadPeer) {
				p.log.Debug("Dropping misbehaving sync peer", "what", what, "err", err)
				w.d.drop(p.id)
			}
			return zero, err
		}
		return res, nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, retryLimit), ctx)
	return backoff.RetryNotifyWithData(attempt, policy, func(err error, next time.Duration) {
		w.log.Trace("Sync request failed", "what", what, "err", err, "retry", common.PrettyDuration(next))
	})
}
