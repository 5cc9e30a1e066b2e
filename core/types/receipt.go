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

package types

import (
	"errors"
	"math/big"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/rlp"
)

const (
	// ReceiptStatusFailed is the status code of a transaction if execution failed.
	ReceiptStatusFailed = uint64(0)

	// ReceiptStatusSuccessful is the status code of a transaction if execution succeeded.
	ReceiptStatusSuccessful = uint64(1)
)

var errInvalidReceipt = errors.New("invalid receipt encoding")

// Receipt represents the results of a transaction.
// Receipt 表示交易执行的结果。
type Receipt struct {
	// Consensus fields: These fields are defined by the Yellow Paper
	Type              uint8  `json:"type,omitempty"`
	Status            uint64 `json:"status"`
	CumulativeGasUsed uint64 `json:"cumulativeGasUsed" gencodec:"required"`
	Logs              []*Log `json:"logs"              gencodec:"required"`

	// Implementation fields: These fields are added by the node when processing a transaction.
	TxHash          common.Hash    `json:"transactionHash" gencodec:"required"`
	ContractAddress common.Address `json:"contractAddress"`
	GasUsed         uint64         `json:"gasUsed" gencodec:"required"`

	// Inclusion information: These fields provide information about the inclusion of the
	// transaction corresponding to this receipt.
	BlockHash        common.Hash `json:"blockHash,omitempty"`
	BlockNumber      *big.Int    `json:"blockNumber,omitempty"`
	TransactionIndex uint        `json:"transactionIndex"`
}

// EncodeRLP encodes the consensus fields of the receipt.
func (r *Receipt) EncodeRLP() []byte {
	var logs []byte
	for _, l := range r.Logs {
		logs = append(logs, l.EncodeRLP()...)
	}
	var payload []byte
	payload = rlp.AppendUint64(payload, uint64(r.Type))
	payload = rlp.AppendUint64(payload, r.Status)
	payload = rlp.AppendUint64(payload, r.CumulativeGasUsed)
	payload = rlp.AppendList(payload, logs)
	return rlp.AppendList(nil, payload)
}

// decodeReceipt parses the consensus fields of a receipt.
func decodeReceipt(b []byte) (*Receipt, []byte, error) {
	content, rest, err := rlp.SplitList(b)
	if err != nil {
		return nil, b, err
	}
	var (
		r   = new(Receipt)
		typ uint64
	)
	if typ, content, err = rlp.SplitUint64(content); err != nil {
		return nil, b, err
	}
	if typ > SetCodeTxType {
		return nil, b, errInvalidReceipt
	}
	r.Type = uint8(typ)
	if r.Status, content, err = rlp.SplitUint64(content); err != nil {
		return nil, b, err
	}
	if r.CumulativeGasUsed, content, err = rlp.SplitUint64(content); err != nil {
		return nil, b, err
	}
	logs, _, err := rlp.SplitList(content)
	if err != nil {
		return nil, b, err
	}
	for len(logs) > 0 {
		var l *Log
		if l, logs, err = decodeLog(logs); err != nil {
			return nil, b, err
		}
		r.Logs = append(r.Logs, l)
	}
	return r, rest, nil
}

// Receipts implements DerivableList for receipts.
type Receipts []*Receipt

// Hash returns the list hash of the receipts.
func (rs Receipts) Hash() common.Hash {
	if len(rs) == 0 {
		return EmptyReceiptsHash
	}
	items := make([][]byte, len(rs))
	for i, r := range rs {
		items[i] = r.EncodeRLP()
	}
	return DeriveListHash(items)
}

// EncodeRLP encodes the receipt list for storage.
func (rs Receipts) EncodeRLP() []byte {
	var payload []byte
	for _, r := range rs {
		payload = append(payload, r.EncodeRLP()...)
	}
	return rlp.AppendList(nil, payload)
}

// DecodeReceipts parses a receipt list produced by Receipts.EncodeRLP.
func DecodeReceipts(b []byte) (Receipts, error) {
	content, _, err := rlp.SplitList(b)
	if err != nil {
		return nil, err
	}
	rs := Receipts{}
	for len(content) > 0 {
		var r *Receipt
		if r, content, err = decodeReceipt(content); err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, nil
}

// DecodeRLP implements rlp.Decoder.
func (rs *Receipts) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Raw()
	if err != nil {
		return err
	}
	dec, err := DecodeReceipts(raw)
	if err != nil {
		return err
	}
	*rs = dec
	return nil
}

// DeriveFields fills the receipts with their computed fields based on consensus
// data and contextual infos like containing block and transactions.
// DeriveFields 根据共识数据以及所属区块和交易等上下文信息，填充收据的计算字段。
func (rs Receipts) DeriveFields(hash common.Hash, number uint64, txs []*Transaction) error {
	if len(txs) != len(rs) {
		return errors.New("transaction and receipt count mismatch")
	}
	logIndex := uint(0)
	for i := 0; i < len(rs); i++ {
		rs[i].TxHash = txs[i].Hash()
		rs[i].BlockHash = hash
		rs[i].BlockNumber = new(big.Int).SetUint64(number)
		rs[i].TransactionIndex = uint(i)
		if i == 0 {
			rs[i].GasUsed = rs[i].CumulativeGasUsed
		} else {
			rs[i].GasUsed = rs[i].CumulativeGasUsed - rs[i-1].CumulativeGasUsed
		}
		for j := 0; j < len(rs[i].Logs); j++ {
			rs[i].Logs[j].BlockNumber = number
			rs[i].Logs[j].BlockHash = hash
			rs[i].Logs[j].TxHash = rs[i].TxHash
			rs[i].Logs[j].TxIndex = uint(i)
			rs[i].Logs[j].Index = logIndex
			logIndex++
		}
	}
	return nil
}
