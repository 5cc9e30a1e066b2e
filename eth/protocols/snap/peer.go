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

package snap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/p2p"
)

var (
	errPeerClosed        = errors.New("peer closed")
	errUnexpectedPacket  = errors.New("unexpected response packet")
	errUnsolicitedAnswer = errors.New("response to unknown request")
)

// Peer is a collection of relevant information we have about a `snap` peer.
type Peer struct {
	id string // Unique ID for the peer, cached

	*p2p.Peer                   // The embedded P2P package peer
	rw        p2p.MsgReadWriter // Input/output streams for snap
	version   uint              // Protocol version negotiated

	reqID   atomic.Uint64
	pending map[uint64]*request

	logger log.Logger // Contextual logger with the peer id injected
	term   chan struct{}
	lock   sync.Mutex
}

type request struct {
	code uint64
	res  chan Packet
}

// NewPeer creates a wrapper for a network connection and negotiated protocol
// version.
func NewPeer(version uint, p *p2p.Peer, rw p2p.MsgReadWriter) *Peer {
	return &Peer{
		id:      p.ID().Hex(),
		Peer:    p,
		rw:      rw,
		version: version,
		pending: make(map[uint64]*request),
		logger:  log.New("peer", p.ID().TerminalString()),
		term:    make(chan struct{}),
	}
}

// Close signals the peer to terminate. Waiting requests return errPeerClosed.
func (p *Peer) Close() {
	close(p.term)
}

// ID retrieves the peer's unique identifier.
func (p *Peer) ID() string {
	return p.id
}

// Version retrieves the peer's negotiated `snap` protocol version.
func (p *Peer) Version() uint {
	return p.version
}

// Log overrides the P2P logger with the higher level one containing only the id.
func (p *Peer) Log() log.Logger {
	return p.logger
}

// RequestAccountRange fetches a batch of accounts rooted in a specific block
// hash, starting with the origin.
// RequestAccountRange 拉取一段账户，返回并行的哈希列表和账户编码列表。
func (p *Peer) RequestAccountRange(ctx context.Context, req *AccountRangeRequest) ([]common.Hash, [][]byte, error) {
	p.logger.Trace("Fetching range of accounts", "root", req.Root, "origin", req.Origin, "limit", req.Limit, "bytes", common.StorageSize(req.Bytes))

	id := p.reqID.Add(1)
	res, err := p.dispatch(ctx, id, AccountRangeMsg, GetAccountRangeMsg, req.packet(id))
	if err != nil {
		return nil, nil, err
	}
	hashes, accounts := res.(*AccountRangePacket).Unpack()
	return hashes, accounts, nil
}

// RequestStorageRanges fetches a batch of storage slots belonging to one or
// more accounts. If slots from only one account is requested, an origin marker
// may also be used to retrieve from there.
func (p *Peer) RequestStorageRanges(ctx context.Context, req *StorageRangeRequest) ([][]common.Hash, [][][]byte, error) {
	if len(req.Accounts) == 1 && req.Origin != nil {
		p.logger.Trace("Fetching range of large storage slots", "root", req.Root, "account", req.Accounts[0], "origin", common.BytesToHash(req.Origin), "limit", common.BytesToHash(req.Limit), "bytes", common.StorageSize(req.Bytes))
	} else {
		p.logger.Trace("Fetching ranges of small storage slots", "root", req.Root, "accounts", len(req.Accounts), "bytes", common.StorageSize(req.Bytes))
	}
	id := p.reqID.Add(1)
	res, err := p.dispatch(ctx, id, StorageRangesMsg, GetStorageRangesMsg, req.packet(id))
	if err != nil {
		return nil, nil, err
	}
	slots := res.(*StorageRangesPacket)
	if len(slots.Slots) > len(req.Accounts) {
		return nil, nil, fmt.Errorf("%w: %d slot sets for %d accounts", errUnexpectedPacket, len(slots.Slots), len(req.Accounts))
	}
	hashes, values := slots.Unpack()
	return hashes, values, nil
}

// RequestByteCodes fetches a batch of bytecodes by hash.
func (p *Peer) RequestByteCodes(ctx context.Context, hashes []common.Hash, bytes uint64) ([][]byte, error) {
	p.logger.Trace("Fetching set of byte codes", "hashes", len(hashes), "bytes", common.StorageSize(bytes))

	id := p.reqID.Add(1)
	pkt := &GetByteCodesPacket{ID: id, Hashes: hashes, Bytes: bytes}
	res, err := p.dispatch(ctx, id, ByteCodesMsg, GetByteCodesMsg, pkt)
	if err != nil {
		return nil, err
	}
	return res.(*ByteCodesPacket).Codes, nil
}

// dispatch sends a request and waits for the matching response.
func (p *Peer) dispatch(ctx context.Context, id uint64, resCode, reqCode uint64, pkt Packet) (Packet, error) {
	req := &request{code: resCode, res: make(chan Packet, 1)}
	p.lock.Lock()
	p.pending[id] = req
	p.lock.Unlock()

	defer func() {
		p.lock.Lock()
		delete(p.pending, id)
		p.lock.Unlock()
	}()
	errc := make(chan error, 1)
	go func() { errc <- p2p.Send(p.rw, reqCode, pkt) }()
	for {
		select {
		case err := <-errc:
			if err != nil {
				return nil, err
			}
			errc = nil
		case res := <-req.res:
			return res, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.term:
			return nil, errPeerClosed
		}
	}
}

// deliver hands a response packet to the request waiting for it.
func (p *Peer) deliver(code uint64, id uint64, pkt Packet) error {
	p.lock.Lock()
	req := p.pending[id]
	p.lock.Unlock()

	if req == nil {
		return fmt.Errorf("%w: id %d", errUnsolicitedAnswer, id)
	}
	if req.code != code {
		return fmt.Errorf("%w: have code %d, want %d", errUnexpectedPacket, code, req.code)
	}
	select {
	case req.res <- pkt:
	default:
	}
	return nil
}
