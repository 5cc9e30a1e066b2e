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
	"errors"
	"fmt"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/rlp"
)

// Constants to match up protocol versions and messages
const (
	ETH69 = 69
)

// ProtocolName is the official short name of the `eth` protocol used during
// devp2p capability negotiation.
const ProtocolName = "eth"

// ProtocolVersions are the supported versions of the `eth` protocol (first
// is primary).
var ProtocolVersions = []uint{ETH69}

// protocolLengths are the number of implemented message corresponding to
// different protocol versions.
var protocolLengths = map[uint]uint64{ETH69: 18}

// maxMessageSize is the maximum cap on the size of a protocol message.
const maxMessageSize = 10 * 1024 * 1024

const (
	StatusMsg                     = 0x00
	NewBlockHashesMsg             = 0x01
	TransactionsMsg               = 0x02
	GetBlockHeadersMsg            = 0x03
	BlockHeadersMsg               = 0x04
	GetBlockBodiesMsg             = 0x05
	BlockBodiesMsg                = 0x06
	NewBlockMsg                   = 0x07
	NewPooledTransactionHashesMsg = 0x08
	GetPooledTransactionsMsg      = 0x09
	PooledTransactionsMsg         = 0x0a
	GetReceiptsMsg                = 0x0f
	ReceiptsMsg                   = 0x10
	BlockRangeUpdateMsg           = 0x11
)

var (
	errNoStatusMsg             = errors.New("no status message")
	errMsgTooLarge             = errors.New("message too long")
	errDecode                  = errors.New("invalid message")
	errInvalidMsgCode          = errors.New("invalid message code")
	errProtocolVersionMismatch = errors.New("protocol version mismatch")
	errNetworkIDMismatch       = errors.New("network ID mismatch")
	errGenesisMismatch         = errors.New("genesis mismatch")
	errBadBlockRange           = errors.New("bad block range")

	// ErrInvalidStride is returned when a skeleton header request is built
	// with a zero stride.
	ErrInvalidStride = errors.New("header request stride must be at least 1")

	// ErrResponseAlignment is returned when a response list does not line up
	// with the request it answers.
	ErrResponseAlignment = errors.New("response list length differs from request")
)

// HashOrNumber is a combined field for specifying an origin block.
// HashOrNumber 用于指定起始区块：按哈希或按编号，二者只能取其一。
type HashOrNumber struct {
	Hash   common.Hash // Block hash from which to retrieve headers (excludes Number)
	Number uint64      // Block number from which to retrieve headers (excludes Hash)
}

// EncodeRLP is a specialized encoder for HashOrNumber to encode only one of the
// two contained union fields. A set hash wins over the number.
// EncodeRLP 只编码两个字段之一：哈希非零时编码哈希，否则编码编号。
func (hn *HashOrNumber) EncodeRLP() []byte {
	if hn.Hash == (common.Hash{}) {
		return rlp.AppendUint64(nil, hn.Number)
	}
	return rlp.AppendString(nil, hn.Hash[:])
}

// DecodeRLP is a specialized decoder for HashOrNumber to decode the contents
// into either a block hash or a block number.
func (hn *HashOrNumber) DecodeRLP(s *rlp.Stream) error {
	_, size, err := s.Kind()
	switch {
	case err != nil:
		return err
	case size == common.HashLength:
		hn.Number = 0
		return s.Decode(&hn.Hash)
	case size <= 8:
		hn.Hash = common.Hash{}
		hn.Number, err = s.Uint64()
		return err
	default:
		return fmt.Errorf("invalid input size %d for origin", size)
	}
}

func (hn *HashOrNumber) String() string {
	if hn.Hash != (common.Hash{}) {
		return hn.Hash.TerminalString()
	}
	return fmt.Sprintf("#%d", hn.Number)
}

// GetBlockHeadersRequest represents a block header query. Headers are
// returned starting at Origin, every Skip+1 blocks, up to Amount of them.
// GetBlockHeadersRequest 表示区块头查询：从 Origin 开始，每隔 Skip+1 个区块取一个，最多 Amount 个。
type GetBlockHeadersRequest struct {
	Origin  HashOrNumber // Block from which to retrieve headers
	Amount  uint64       // Maximum number of headers to retrieve
	Skip    uint64       // Blocks to skip between consecutive headers
	Reverse bool         // Query direction (false = rising towards latest, true = falling towards genesis)
}

// NewHeadersRequest creates a contiguous header request.
func NewHeadersRequest(origin HashOrNumber, amount uint64, reverse bool) *GetBlockHeadersRequest {
	return &GetBlockHeadersRequest{Origin: origin, Amount: amount, Reverse: reverse}
}

// NewSkeletonRequest creates a header request fetching every stride-th block
// starting at from. A stride of zero cannot be expressed and is rejected.
// NewSkeletonRequest 创建骨架区块头请求，每 stride 个区块取一个；stride 为 0 时返回错误。
func NewSkeletonRequest(from uint64, stride uint64, count uint64, reverse bool) (*GetBlockHeadersRequest, error) {
	if stride == 0 {
		return nil, ErrInvalidStride
	}
	return &GetBlockHeadersRequest{
		Origin:  HashOrNumber{Number: from},
		Amount:  count,
		Skip:    stride - 1,
		Reverse: reverse,
	}, nil
}

// Stride returns the distance between two consecutive requested headers.
func (req *GetBlockHeadersRequest) Stride() uint64 {
	return req.Skip + 1
}

// BlocksRequest asks for the bodies and receipts belonging to two lists of
// headers. Responses are stored slot by slot: entry i answers header i, and a
// nil entry marks an item the peer did not deliver.
// BlocksRequest 请求两组区块头对应的区块体和收据。响应按槽位一一对应，nil 表示该项缺失。
type BlocksRequest struct {
	BodyHeaders    []*types.Header
	ReceiptHeaders []*types.Header

	Bodies   []*types.Body
	Receipts []types.Receipts
}

// NewBlocksRequest creates a request for the given body and receipt headers.
func NewBlocksRequest(bodyHeaders, receiptHeaders []*types.Header) *BlocksRequest {
	return &BlocksRequest{BodyHeaders: bodyHeaders, ReceiptHeaders: receiptHeaders}
}

// SetBodies stores the body response. The list must have exactly one entry
// per body header.
func (req *BlocksRequest) SetBodies(bodies []*types.Body) error {
	if len(bodies) != len(req.BodyHeaders) {
		return fmt.Errorf("%w: %d bodies for %d headers", ErrResponseAlignment, len(bodies), len(req.BodyHeaders))
	}
	req.Bodies = bodies
	return nil
}

// SetReceipts stores the receipt response. The list must have exactly one
// entry per receipt header.
func (req *BlocksRequest) SetReceipts(receipts []types.Receipts) error {
	if len(receipts) != len(req.ReceiptHeaders) {
		return fmt.Errorf("%w: %d receipt lists for %d headers", ErrResponseAlignment, len(receipts), len(req.ReceiptHeaders))
	}
	req.Receipts = receipts
	return nil
}

// Complete reports whether every requested item has been delivered.
func (req *BlocksRequest) Complete() bool {
	if len(req.Bodies) != len(req.BodyHeaders) || len(req.Receipts) != len(req.ReceiptHeaders) {
		return false
	}
	for _, b := range req.Bodies {
		if b == nil {
			return false
		}
	}
	for _, r := range req.Receipts {
		if r == nil {
			return false
		}
	}
	return true
}

// alignBodies lines up a delivered body list with the requested headers.
// Peers omit bodies they do not have, so each delivered body is matched to
// the next header whose transaction root it hashes to.
// alignBodies 将对端返回的区块体按交易根与请求的区块头对齐，缺失的槽位为 nil。
func alignBodies(headers []*types.Header, bodies []*types.Body) []*types.Body {
	aligned := make([]*types.Body, len(headers))
	next := 0
	for i, header := range headers {
		if next >= len(bodies) {
			break
		}
		if types.Transactions(bodies[next].Transactions).Hash() == header.TxHash {
			aligned[i] = bodies[next]
			next++
		}
	}
	return aligned
}

// alignReceipts lines up a delivered receipt list with the requested headers
// by receipt root.
func alignReceipts(headers []*types.Header, receipts []types.Receipts) []types.Receipts {
	aligned := make([]types.Receipts, len(headers))
	next := 0
	for i, header := range headers {
		if next >= len(receipts) {
			break
		}
		if receipts[next].Hash() == header.ReceiptHash {
			aligned[i] = receipts[next]
			next++
		}
	}
	return aligned
}

// StatusPacket is the network packet for the status message. Fork
// identifiers are not exchanged; peers match on network and genesis.
// StatusPacket 是握手状态消息，双方按网络 ID 和创世哈希匹配。
type StatusPacket struct {
	ProtocolVersion uint32
	NetworkID       uint64
	Genesis         common.Hash
	EarliestBlock   uint64
	LatestBlock     uint64
	LatestBlockHash common.Hash
}

// BlockRangeUpdatePacket announces a change of the served block range.
type BlockRangeUpdatePacket struct {
	EarliestBlock   uint64
	LatestBlock     uint64
	LatestBlockHash common.Hash
}

// GetBlockHeadersPacket represents a block header query with request ID wrapping.
type GetBlockHeadersPacket struct {
	RequestId uint64
	*GetBlockHeadersRequest
}

// BlockHeadersPacket represents a block header response over with request ID wrapping.
type BlockHeadersPacket struct {
	RequestId uint64
	Headers   []*types.Header
}

// GetBlockBodiesPacket represents a block body query with request ID wrapping.
type GetBlockBodiesPacket struct {
	RequestId uint64
	Hashes    []common.Hash
}

// BlockBodiesPacket is the network packet for block content distribution with
// request ID wrapping.
type BlockBodiesPacket struct {
	RequestId uint64
	Bodies    []*types.Body
}

// GetReceiptsPacket represents a block receipts query with request ID wrapping.
type GetReceiptsPacket struct {
	RequestId uint64
	Hashes    []common.Hash
}

// ReceiptsPacket is the network packet for block receipts distribution with
// request ID wrapping.
type ReceiptsPacket struct {
	RequestId uint64
	Receipts  []types.Receipts
}

// Packet represents a p2p message in the `eth` protocol.
type Packet interface {
	Name() string // Name returns a string corresponding to the message type.
	Kind() byte   // Kind returns the message type.
}

func (*StatusPacket) Name() string { return "Status" }
func (*StatusPacket) Kind() byte   { return StatusMsg }

func (*BlockRangeUpdatePacket) Name() string { return "BlockRangeUpdate" }
func (*BlockRangeUpdatePacket) Kind() byte   { return BlockRangeUpdateMsg }

func (*GetBlockHeadersPacket) Name() string { return "GetBlockHeaders" }
func (*GetBlockHeadersPacket) Kind() byte   { return GetBlockHeadersMsg }

func (*BlockHeadersPacket) Name() string { return "BlockHeaders" }
func (*BlockHeadersPacket) Kind() byte   { return BlockHeadersMsg }

func (*GetBlockBodiesPacket) Name() string { return "GetBlockBodies" }
func (*GetBlockBodiesPacket) Kind() byte   { return GetBlockBodiesMsg }

func (*BlockBodiesPacket) Name() string { return "BlockBodies" }
func (*BlockBodiesPacket) Kind() byte   { return BlockBodiesMsg }

func (*GetReceiptsPacket) Name() string { return "GetReceipts" }
func (*GetReceiptsPacket) Kind() byte   { return GetReceiptsMsg }

func (*ReceiptsPacket) Name() string { return "Receipts" }
func (*ReceiptsPacket) Kind() byte   { return ReceiptsMsg }
