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

package eth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/p2p"
)

const (
	// maxKnownBlocks is the maximum block hashes to keep in the known list
	// before starting to randomly evict them.
	maxKnownBlocks = 1024
)

var (
	errPeerClosed        = errors.New("peer closed")
	errUnexpectedPacket  = errors.New("unexpected response packet")
	errUnsolicitedAnswer = errors.New("response to unknown request")
)

// Peer is a collection of relevant information we have about a `eth` peer.
// Peer 保存一个 eth 对等节点的相关信息，并跟踪其未完成的请求。
type Peer struct {
	id string // Unique ID for the peer, cached

	*p2p.Peer                   // The embedded P2P package peer
	rw        p2p.MsgReadWriter // Input/output streams for eth
	version   uint              // Protocol version negotiated

	head     common.Hash // Latest advertised head block hash
	number   uint64      // Latest advertised head block number
	earliest uint64      // Earliest block the peer serves

	knownBlocks *knownCache // Set of block hashes known to be known by this peer

	reqID   atomic.Uint64
	pending map[uint64]*request // In-flight requests by ID

	logger log.Logger
	term   chan struct{} // Termination channel to stop waiting requests
	lock   sync.RWMutex  // Mutex protecting the internal fields
}

// request is a pending query waiting for its response packet.
type request struct {
	code uint64      // Expected response message code
	res  chan Packet // Delivery channel, buffered by one
}

// NewPeer creates a wrapper for a network connection and negotiated protocol
// version.
func NewPeer(version uint, p *p2p.Peer, rw p2p.MsgReadWriter) *Peer {
	return &Peer{
		id:          p.ID().Hex(),
		Peer:        p,
		rw:          rw,
		version:     version,
		knownBlocks: newKnownCache(maxKnownBlocks),
		pending:     make(map[uint64]*request),
		logger:      log.New("peer", p.ID().TerminalString()),
		term:        make(chan struct{}),
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

// Version retrieves the peer's negotiated `eth` protocol version.
func (p *Peer) Version() uint {
	return p.version
}

// Log overrides the P2P logger with the higher level one containing only the id.
func (p *Peer) Log() log.Logger {
	return p.logger
}

// Head retrieves the current head hash and number of the peer.
func (p *Peer) Head() (hash common.Hash, number uint64) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.head, p.number
}

// SetHead updates the head hash and number of the peer.
func (p *Peer) SetHead(hash common.Hash, number uint64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.head, p.number = hash, number
}

// BlockRange returns the range of blocks the peer serves.
func (p *Peer) BlockRange() (earliest, latest uint64) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.earliest, p.number
}

// KnownBlock returns whether peer is known to already have a block.
func (p *Peer) KnownBlock(hash common.Hash) bool {
	return p.knownBlocks.Contains(hash)
}

// markBlock marks a block as known for the peer, ensuring that the block will
// never be propagated to this particular peer.
func (p *Peer) markBlock(hash common.Hash) {
	p.knownBlocks.Add(hash)
}

// SendBlockRangeUpdate announces the locally served block range.
func (p *Peer) SendBlockRangeUpdate(earliest, latest uint64, latestHash common.Hash) error {
	pkt := &BlockRangeUpdatePacket{EarliestBlock: earliest, LatestBlock: latest, LatestBlockHash: latestHash}
	return p2p.Send(p.rw, BlockRangeUpdateMsg, pkt)
}

// RequestHeaders fetches a batch of headers described by req.
// RequestHeaders 按请求描述拉取一批区块头，阻塞直到收到响应或上下文结束。
func (p *Peer) RequestHeaders(ctx context.Context, req *GetBlockHeadersRequest) ([]*types.Header, error) {
	p.Log().Trace("Fetching batch of headers", "count", req.Amount, "from", req.Origin.String(), "skip", req.Skip, "reverse", req.Reverse)

	id := p.reqID.Add(1)
	pkt := &GetBlockHeadersPacket{RequestId: id, GetBlockHeadersRequest: req}
	res, err := p.dispatch(ctx, id, BlockHeadersMsg, GetBlockHeadersMsg, pkt)
	if err != nil {
		return nil, err
	}
	headers := res.(*BlockHeadersPacket).Headers
	if uint64(len(headers)) > req.Amount {
		return nil, fmt.Errorf("%w: %d headers for %d requested", errUnexpectedPacket, len(headers), req.Amount)
	}
	for _, h := range headers {
		p.markBlock(h.Hash())
	}
	return headers, nil
}

// RequestBodies fetches the bodies of the given headers. The result is
// aligned with the headers, nil marking a body the peer did not deliver.
func (p *Peer) RequestBodies(ctx context.Context, headers []*types.Header) ([]*types.Body, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	hashes := make([]common.Hash, len(headers))
	for i, h := range headers {
		hashes[i] = h.Hash()
	}
	p.Log().Trace("Fetching batch of block bodies", "count", len(hashes))

	id := p.reqID.Add(1)
	pkt := &GetBlockBodiesPacket{RequestId: id, Hashes: hashes}
	res, err := p.dispatch(ctx, id, BlockBodiesMsg, GetBlockBodiesMsg, pkt)
	if err != nil {
		return nil, err
	}
	return alignBodies(headers, res.(*BlockBodiesPacket).Bodies), nil
}

// RequestReceipts fetches the receipts of the given headers, aligned with
// the headers like RequestBodies.
func (p *Peer) RequestReceipts(ctx context.Context, headers []*types.Header) ([]types.Receipts, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	hashes := make([]common.Hash, len(headers))
	for i, h := range headers {
		hashes[i] = h.Hash()
	}
	p.Log().Trace("Fetching batch of receipts", "count", len(hashes))

	id := p.reqID.Add(1)
	pkt := &GetReceiptsPacket{RequestId: id, Hashes: hashes}
	res, err := p.dispatch(ctx, id, ReceiptsMsg, GetReceiptsMsg, pkt)
	if err != nil {
		return nil, err
	}
	return alignReceipts(headers, res.(*ReceiptsPacket).Receipts), nil
}

// RequestBlocks fills both halves of a BlocksRequest.
// RequestBlocks 依次请求区块体和收据，并按槽位写入 BlocksRequest。
func (p *Peer) RequestBlocks(ctx context.Context, req *BlocksRequest) error {
	bodies, err := p.RequestBodies(ctx, req.BodyHeaders)
	if err != nil {
		return err
	}
	if err := req.SetBodies(bodies); err != nil {
		return err
	}
	receipts, err := p.RequestReceipts(ctx, req.ReceiptHeaders)
	if err != nil {
		return err
	}
	return req.SetReceipts(receipts)
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
	// Writes may block on a slow connection, so the send also races the
	// context.
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
	p.lock.RLock()
	req := p.pending[id]
	p.lock.RUnlock()

	if req == nil {
		return fmt.Errorf("%w: id %d", errUnsolicitedAnswer, id)
	}
	if req.code != code {
		return fmt.Errorf("%w: have code %d, want %d", errUnexpectedPacket, code, req.code)
	}
	select {
	case req.res <- pkt:
	default:
		// A duplicate response for the same ID is dropped.
	}
	return nil
}

// knownCache is a cache for known hashes.
type knownCache struct {
	hashes mapset.Set[common.Hash]
	max    int
}

// newKnownCache creates a new knownCache with a max capacity.
func newKnownCache(max int) *knownCache {
	return &knownCache{
		max:    max,
		hashes: mapset.NewSet[common.Hash](),
	}
}

// Add adds a list of elements to the set.
func (k *knownCache) Add(hashes ...common.Hash) {
	for k.hashes.Cardinality() > max(0, k.max-len(hashes)) {
		k.hashes.Pop()
	}
	for _, hash := range hashes {
		k.hashes.Add(hash)
	}
}

// Contains returns whether the given item is in the set.
func (k *knownCache) Contains(hash common.Hash) bool {
	return k.hashes.Contains(hash)
}

// Cardinality returns the number of elements in the set.
func (k *knownCache) Cardinality() int {
	return k.hashes.Cardinality()
}
