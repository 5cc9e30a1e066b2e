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
	"fmt"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/p2p"
	"github.com/sunyihoo/evmsync/params"
)

// Handler is a callback to invoke from an outside runner after the boilerplate
// exchanges have passed.
type Handler func(peer *Peer) error

// Backend defines the data retrieval methods to serve remote requests and the
// callback methods to invoke on remote deliveries.
// Backend 定义了应答远端请求所需的数据接口，以及对等节点生命周期回调。
type Backend interface {
	// Chain retrieves the blockchain object to serve data.
	Chain() Chain

	// RunPeer is invoked when a peer joins on the `eth` protocol. The handler
	// should do any peer maintenance work, handshakes and validations. If all
	// is passed, control should be given back to the `handler` to process the
	// inbound messages going forward.
	RunPeer(peer *Peer, handler Handler) error

	// PeerInfo retrieves all known `eth` information about a peer.
	PeerInfo(id string) interface{}
}

// MakeProtocols constructs the P2P protocol definitions for `eth`.
func MakeProtocols(backend Backend, network uint64, config *params.ChainConfig) []p2p.Protocol {
	protocols := make([]p2p.Protocol, 0, len(ProtocolVersions))
	for _, version := range ProtocolVersions {
		protocols = append(protocols, p2p.Protocol{
			Name:    ProtocolName,
			Version: version,
			Length:  protocolLengths[version],
			Run: func(p *p2p.Peer, rw p2p.MsgReadWriter) error {
				peer := NewPeer(version, p, rw)
				defer peer.Close()

				return backend.RunPeer(peer, func(peer *Peer) error {
					return Handle(backend, peer)
				})
			},
			NodeInfo: func() interface{} {
				return nodeInfo(backend.Chain(), network, config)
			},
			PeerInfo: func(id string) interface{} {
				return backend.PeerInfo(id)
			},
		})
	}
	return protocols
}

// NodeInfo represents a short summary of the `eth` sub-protocol metadata
// known about the host peer.
type NodeInfo struct {
	Network uint64              `json:"network"` // Ethereum network ID
	Genesis common.Hash         `json:"genesis"` // SHA3 hash of the host's genesis block
	Config  *params.ChainConfig `json:"config"`  // Chain configuration for the fork rules
	Head    common.Hash         `json:"head"`    // Hex hash of the host's best owned block
	Number  uint64              `json:"number"`  // Number of the host's best owned block
}

// nodeInfo retrieves some `eth` protocol metadata about the running host node.
func nodeInfo(chain Chain, network uint64, config *params.ChainConfig) *NodeInfo {
	head := chain.CurrentBlock()
	return &NodeInfo{
		Network: network,
		Genesis: chain.Genesis().Hash(),
		Config:  config,
		Head:    head.Hash(),
		Number:  head.Number.Uint64(),
	}
}

// PeerInfo represents a short summary of the `eth` sub-protocol metadata known
// about a connected peer.
type PeerInfo struct {
	Version  uint        `json:"version"`  // Ethereum protocol version negotiated
	Head     common.Hash `json:"head"`     // Hex hash of the peer's best owned block
	Number   uint64      `json:"number"`   // Number of the peer's best owned block
	Earliest uint64      `json:"earliest"` // Earliest block the peer serves
}

// Info gathers and returns some `eth` protocol metadata known about a peer.
func (p *Peer) Info() *PeerInfo {
	hash, number := p.Head()
	earliest, _ := p.BlockRange()
	return &PeerInfo{
		Version:  p.version,
		Head:     hash,
		Number:   number,
		Earliest: earliest,
	}
}

// Handle is invoked whenever an `eth` connection is made that successfully passes
// the protocol handshake. This method will keep processing messages until the
// connection is torn down.
func Handle(backend Backend, peer *Peer) error {
	for {
		if err := handleMessage(backend, peer); err != nil {
			peer.Log().Debug("Message handling failed in `eth`", "err", err)
			return err
		}
	}
}

// handleMessage is invoked whenever an inbound message is received from a remote
// peer. The remote connection is torn down upon returning any error.
// handleMessage 处理一条入站消息：请求类消息直接应答，响应类消息交给等待中的请求。
func handleMessage(backend Backend, peer *Peer) error {
	// Read the next message from the remote peer, and ensure it's fully consumed
	msg, err := peer.rw.ReadMsg()
	if err != nil {
		return err
	}
	if msg.Size > maxMessageSize {
		return fmt.Errorf("%w: %v > %v", errMsgTooLarge, msg.Size, maxMessageSize)
	}
	defer msg.Discard()

	chain := backend.Chain()

	switch msg.Code {
	case StatusMsg:
		// Status messages should never arrive after the handshake
		return fmt.Errorf("%w: uncontrolled status message", errDecode)

	case GetBlockHeadersMsg:
		var query GetBlockHeadersPacket
		if err := msg.Decode(&query); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		headers := ServiceGetBlockHeadersQuery(chain, query.GetBlockHeadersRequest)
		return p2p.Send(peer.rw, BlockHeadersMsg, &BlockHeadersPacket{RequestId: query.RequestId, Headers: headers})

	case BlockHeadersMsg:
		var res BlockHeadersPacket
		if err := msg.Decode(&res); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		return peer.deliver(msg.Code, res.RequestId, &res)

	case GetBlockBodiesMsg:
		var query GetBlockBodiesPacket
		if err := msg.Decode(&query); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		bodies := ServiceGetBlockBodiesQuery(chain, query.Hashes)
		return p2p.Send(peer.rw, BlockBodiesMsg, &BlockBodiesPacket{RequestId: query.RequestId, Bodies: bodies})

	case BlockBodiesMsg:
		var res BlockBodiesPacket
		if err := msg.Decode(&res); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		return peer.deliver(msg.Code, res.RequestId, &res)

	case GetReceiptsMsg:
		var query GetReceiptsPacket
		if err := msg.Decode(&query); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		receipts := ServiceGetReceiptsQuery(chain, query.Hashes)
		return p2p.Send(peer.rw, ReceiptsMsg, &ReceiptsPacket{RequestId: query.RequestId, Receipts: receipts})

	case ReceiptsMsg:
		var res ReceiptsPacket
		if err := msg.Decode(&res); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		return peer.deliver(msg.Code, res.RequestId, &res)

	case BlockRangeUpdateMsg:
		var update BlockRangeUpdatePacket
		if err := msg.Decode(&update); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		if update.EarliestBlock > update.LatestBlock {
			return fmt.Errorf("%w: earliest %d > latest %d", errBadBlockRange, update.EarliestBlock, update.LatestBlock)
		}
		peer.lock.Lock()
		peer.head, peer.number, peer.earliest = update.LatestBlockHash, update.LatestBlock, update.EarliestBlock
		peer.lock.Unlock()
		peer.markBlock(update.LatestBlockHash)
		return nil

	case NewBlockHashesMsg, TransactionsMsg, NewBlockMsg, NewPooledTransactionHashesMsg,
		GetPooledTransactionsMsg, PooledTransactionsMsg:
		// Block and transaction gossip is not tracked; the payload is dropped.
		return nil

	default:
		return fmt.Errorf("%w: %v", errInvalidMsgCode, msg.Code)
	}
}
