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

// Package types contains data types related to Ethereum consensus.
package types

import (
	"errors"
	"math/big"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/rlp"
)

var errBodyMismatch = errors.New("body does not match header")

// Header represents a block header in the Ethereum blockchain.
// Header 表示以太坊区块链中的区块头。
type Header struct {
	ParentHash  common.Hash    `json:"parentHash"       gencodec:"required"`
	Coinbase    common.Address `json:"miner"`
	Root        common.Hash    `json:"stateRoot"        gencodec:"required"`
	TxHash      common.Hash    `json:"transactionsRoot" gencodec:"required"`
	ReceiptHash common.Hash    `json:"receiptsRoot"     gencodec:"required"`
	Difficulty  *big.Int       `json:"difficulty"       gencodec:"required"`
	Number      *big.Int       `json:"number"           gencodec:"required"`
	GasLimit    uint64         `json:"gasLimit"         gencodec:"required"`
	GasUsed     uint64         `json:"gasUsed"          gencodec:"required"`
	Time        uint64         `json:"timestamp"        gencodec:"required"`
	Extra       []byte         `json:"extraData"        gencodec:"required"`
	MixDigest   common.Hash    `json:"mixHash"`

	// BaseFee was added by EIP-1559 and is ignored in legacy headers.
	BaseFee *big.Int `json:"baseFeePerGas"`

	// ExcessBlobGas was added by EIP-4844 and is ignored in legacy headers.
	ExcessBlobGas *uint64 `json:"excessBlobGas"`
}

// Hash returns the block hash of the header, which is simply the keccak256 hash of its
// RLP encoding.
// Hash 返回区块头的哈希，即其 RLP 编码的 keccak256 哈希。
func (h *Header) Hash() common.Hash {
	return crypto.Keccak256Hash(h.EncodeRLP())
}

// EncodeRLP returns the RLP encoding of the header. Optional trailing fields
// are only emitted when set.
func (h *Header) EncodeRLP() []byte {
	var payload []byte
	payload = rlp.AppendString(payload, h.ParentHash[:])
	payload = rlp.AppendString(payload, h.Coinbase[:])
	payload = rlp.AppendString(payload, h.Root[:])
	payload = rlp.AppendString(payload, h.TxHash[:])
	payload = rlp.AppendString(payload, h.ReceiptHash[:])
	payload = rlp.AppendBig(payload, bigOrZero(h.Difficulty))
	payload = rlp.AppendBig(payload, bigOrZero(h.Number))
	payload = rlp.AppendUint64(payload, h.GasLimit)
	payload = rlp.AppendUint64(payload, h.GasUsed)
	payload = rlp.AppendUint64(payload, h.Time)
	payload = rlp.AppendString(payload, h.Extra)
	payload = rlp.AppendString(payload, h.MixDigest[:])
	if h.BaseFee != nil || h.ExcessBlobGas != nil {
		payload = rlp.AppendBig(payload, bigOrZero(h.BaseFee))
	}
	if h.ExcessBlobGas != nil {
		payload = rlp.AppendUint64(payload, *h.ExcessBlobGas)
	}
	return rlp.AppendList(nil, payload)
}

// DecodeHeader parses an RLP encoded header.
// DecodeHeader 解析 RLP 编码的区块头。
func DecodeHeader(b []byte) (*Header, error) {
	content, rest, err := rlp.SplitList(b)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, rlp.ErrMoreThanOneValue
	}
	var (
		h   = new(Header)
		raw []byte
	)
	if raw, content, err = rlp.SplitString(content); err != nil {
		return nil, err
	}
	h.ParentHash = common.BytesToHash(raw)
	if raw, content, err = rlp.SplitString(content); err != nil {
		return nil, err
	}
	h.Coinbase = common.BytesToAddress(raw)
	for _, dst := range []*common.Hash{&h.Root, &h.TxHash, &h.ReceiptHash} {
		if raw, content, err = rlp.SplitString(content); err != nil {
			return nil, err
		}
		*dst = common.BytesToHash(raw)
	}
	if h.Difficulty, content, err = rlp.SplitBig(content); err != nil {
		return nil, err
	}
	if h.Number, content, err = rlp.SplitBig(content); err != nil {
		return nil, err
	}
	for _, dst := range []*uint64{&h.GasLimit, &h.GasUsed, &h.Time} {
		if *dst, content, err = rlp.SplitUint64(content); err != nil {
			return nil, err
		}
	}
	if raw, content, err = rlp.SplitString(content); err != nil {
		return nil, err
	}
	h.Extra = common.CopyBytes(raw)
	if raw, content, err = rlp.SplitString(content); err != nil {
		return nil, err
	}
	h.MixDigest = common.BytesToHash(raw)
	if len(content) > 0 {
		if h.BaseFee, content, err = rlp.SplitBig(content); err != nil {
			return nil, err
		}
	}
	if len(content) > 0 {
		var excess uint64
		if excess, _, err = rlp.SplitUint64(content); err != nil {
			return nil, err
		}
		h.ExcessBlobGas = &excess
	}
	return h, nil
}

// DecodeRLP implements rlp.Decoder.
func (h *Header) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Raw()
	if err != nil {
		return err
	}
	dec, err := DecodeHeader(raw)
	if err != nil {
		return err
	}
	*h = *dec
	return nil
}

// Body is a simple (mutable, non-safe) data container for storing and moving
// a block's data contents (transactions) together.
// Body 是一个简单的数据容器，用于存储和传输区块的内容（交易）。
type Body struct {
	Transactions []*Transaction
}

// EncodeRLP returns the RLP encoding of the body.
func (b *Body) EncodeRLP() []byte {
	var payload []byte
	for _, tx := range b.Transactions {
		payload = append(payload, tx.EncodeRLP()...)
	}
	return rlp.AppendList(nil, rlp.AppendList(nil, payload))
}

// DecodeBody parses an RLP encoded body.
func DecodeBody(b []byte) (*Body, error) {
	outer, _, err := rlp.SplitList(b)
	if err != nil {
		return nil, err
	}
	txs, _, err := rlp.SplitList(outer)
	if err != nil {
		return nil, err
	}
	body := new(Body)
	for len(txs) > 0 {
		var tx *Transaction
		if tx, txs, err = DecodeTransaction(txs); err != nil {
			return nil, err
		}
		body.Transactions = append(body.Transactions, tx)
	}
	return body, nil
}

// DecodeRLP implements rlp.Decoder.
func (b *Body) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Raw()
	if err != nil {
		return err
	}
	dec, err := DecodeBody(raw)
	if err != nil {
		return err
	}
	*b = *dec
	return nil
}

// Block represents an Ethereum block.
// Block 表示一个以太坊区块。
type Block struct {
	header       *Header
	transactions Transactions
}

// NewBlock creates a new block. The input data is copied, changes to header and to the
// field values will not affect the block.
//
// The body's transaction hash is written into the copied header.
func NewBlock(header *Header, body *Body) *Block {
	b := &Block{header: CopyHeader(header)}
	if body != nil && len(body.Transactions) > 0 {
		b.transactions = make(Transactions, len(body.Transactions))
		copy(b.transactions, body.Transactions)
		b.header.TxHash = b.transactions.Hash()
	} else {
		b.header.TxHash = EmptyTxsHash
	}
	return b
}

// NewBlockWithHeader creates a block with the given header data and body,
// checking that the body matches the transaction hash committed to by the header.
func NewBlockWithHeader(header *Header, body *Body) (*Block, error) {
	var txs Transactions
	if body != nil {
		txs = body.Transactions
	}
	want := EmptyTxsHash
	if len(txs) > 0 {
		want = txs.Hash()
	}
	if want != header.TxHash {
		return nil, errBodyMismatch
	}
	return &Block{header: CopyHeader(header), transactions: txs}, nil
}

// CopyHeader creates a deep copy of a block header.
func CopyHeader(h *Header) *Header {
	cpy := *h
	if cpy.Difficulty = new(big.Int); h.Difficulty != nil {
		cpy.Difficulty.Set(h.Difficulty)
	}
	if cpy.Number = new(big.Int); h.Number != nil {
		cpy.Number.Set(h.Number)
	}
	if h.BaseFee != nil {
		cpy.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	if len(h.Extra) > 0 {
		cpy.Extra = make([]byte, len(h.Extra))
		copy(cpy.Extra, h.Extra)
	}
	if h.ExcessBlobGas != nil {
		cpy.ExcessBlobGas = new(uint64)
		*cpy.ExcessBlobGas = *h.ExcessBlobGas
	}
	return &cpy
}

func (b *Block) Transactions() Transactions { return b.transactions }
func (b *Block) Number() *big.Int           { return new(big.Int).Set(b.header.Number) }
func (b *Block) NumberU64() uint64          { return b.header.Number.Uint64() }
func (b *Block) GasLimit() uint64           { return b.header.GasLimit }
func (b *Block) GasUsed() uint64            { return b.header.GasUsed }
func (b *Block) Time() uint64               { return b.header.Time }
func (b *Block) Coinbase() common.Address   { return b.header.Coinbase }
func (b *Block) ParentHash() common.Hash    { return b.header.ParentHash }
func (b *Block) TxHash() common.Hash        { return b.header.TxHash }
func (b *Block) ReceiptHash() common.Hash   { return b.header.ReceiptHash }
func (b *Block) BaseFee() *big.Int {
	if b.header.BaseFee == nil {
		return nil
	}
	return new(big.Int).Set(b.header.BaseFee)
}

// Header returns the block header (as a copy).
func (b *Block) Header() *Header { return CopyHeader(b.header) }

// Body returns the non-header content of the block.
func (b *Block) Body() *Body { return &Body{Transactions: b.transactions} }

// Hash returns the keccak256 hash of b's header.
func (b *Block) Hash() common.Hash { return b.header.Hash() }

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Blocks is a list of blocks.
type Blocks []*Block
