// Copyright 2016 The go-ethereum Authors
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

// Package event implements typed one-to-many event delivery.
// event 包实现带类型的一对多事件分发。
package event

import "sync"

// Subscription represents a stream of events. The carrier of the events is a
// channel owned by the subscriber.
//
// The error channel is closed when Unsubscribe is called. Unsubscribe may be
// called any number of times.
type Subscription interface {
	Err() <-chan error // returns the error channel
	Unsubscribe()      // cancels sending of events, closing the error channel
}

// FeedOf implements one-to-many subscriptions where the carrier of events is a
// channel. Values sent to a feed are delivered to every subscribed channel.
//
// The zero value is ready to use.
// FeedOf 实现一对多订阅：发送到 feed 的值会投递给所有订阅的 channel，零值即可使用。
type FeedOf[T any] struct {
	sendMu sync.Mutex // serialises Send so subscribers see values in order

	mu   sync.Mutex
	subs map[*feedSub[T]]struct{}
}

// Subscribe adds a channel to the feed. Future sends are delivered on the
// channel until the subscription is cancelled.
func (f *FeedOf[T]) Subscribe(channel chan<- T) Subscription {
	sub := &feedSub[T]{
		feed:    f,
		channel: channel,
		quit:    make(chan struct{}),
		err:     make(chan error, 1),
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subs == nil {
		f.subs = make(map[*feedSub[T]]struct{})
	}
	f.subs[sub] = struct{}{}
	return sub
}

// Send delivers value to all subscribed channels and returns the number of
// subscribers it was delivered to. It blocks until every subscriber accepted
// the value or unsubscribed.
// Send 将值投递给所有订阅者，阻塞直到每个订阅者接收或取消订阅，返回成功投递的数量。
func (f *FeedOf[T]) Send(value T) (nsent int) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	f.mu.Lock()
	targets := make([]*feedSub[T], 0, len(f.subs))
	for sub := range f.subs {
		targets = append(targets, sub)
	}
	f.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.channel <- value:
			nsent++
		case <-sub.quit:
		}
	}
	return nsent
}

func (f *FeedOf[T]) remove(sub *feedSub[T]) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
}

type feedSub[T any] struct {
	feed    *FeedOf[T]
	channel chan<- T
	once    sync.Once
	quit    chan struct{}
	err     chan error
}

func (sub *feedSub[T]) Unsubscribe() {
	sub.once.Do(func() {
		sub.feed.remove(sub)
		close(sub.quit)
		close(sub.err)
	})
}

func (sub *feedSub[T]) Err() <-chan error {
	return sub.err
}
