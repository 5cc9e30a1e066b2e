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

	"github.com/holiman/uint256"
	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/rlp"
)

var (
	ErrGasFeeCapTooLow    = errors.New("fee cap less than base fee")
	ErrTxTypeNotSupported = errors.New("transaction type not supported")
)

// Transaction types.
const (
	LegacyTxType     = 0x00
	AccessListTxType = 0x01
	DynamicFeeTxType = 0x02
	BlobTxType       = 0x03
	SetCodeTxType    = 0x04
)

// Transaction is an Ethereum transaction as carried in block bodies. The
// sender is stored alongside the payload: signature recovery happens at the
// wire boundary before a body is handed to the chain.
// Transaction 是区块体中携带的交易。发送者地址在进入链之前已由网络层恢复并随交易一起保存。
type Transaction struct {
	Type       uint8
	ChainID    *uint256.Int
	Nonce      uint64
	GasTipCap  *uint256.Int // a.k.a. gasPrice for legacy and access list transactions
	GasFeeCap  *uint256.Int
	Gas        uint64
	To         *common.Address // nil means contract creation
	Value      *uint256.Int
	Data       []byte
	AccessList AccessList
	AuthList   []SetCodeAuthorization
	BlobFeeCap *uint256.Int
	BlobHashes []common.Hash
	From       common.Address
}

// Hash returns the transaction hash.
// Hash 返回交易哈希。
func (tx *Transaction) Hash() common.Hash {
	return crypto.Keccak256Hash(tx.EncodeRLP())
}

// GasPrice returns the gas price of a legacy transaction, or the fee cap of
// dynamic fee transactions.
func (tx *Transaction) GasPrice() *uint256.Int {
	if tx.Type == LegacyTxType || tx.Type == AccessListTxType {
		return orZero(tx.GasTipCap)
	}
	return orZero(tx.GasFeeCap)
}

// EffectiveGasTip returns the effective miner gasTipCap for the given base fee.
// If the fee cap is below the base fee, ErrGasFeeCapTooLow is returned.
// EffectiveGasTip 返回在给定基础费用下矿工实际获得的小费。
func (tx *Transaction) EffectiveGasTip(baseFee *uint256.Int) (*uint256.Int, error) {
	tip := orZero(tx.GasTipCap)
	feeCap := tx.GasPrice()
	if tx.Type == LegacyTxType || tx.Type == AccessListTxType {
		tip = feeCap
	}
	if baseFee == nil {
		return tip.Clone(), nil
	}
	if feeCap.Lt(baseFee) {
		return new(uint256.Int), ErrGasFeeCapTooLow
	}
	gap := new(uint256.Int).Sub(feeCap, baseFee)
	if gap.Lt(tip) {
		return gap, nil
	}
	return tip.Clone(), nil
}

// EncodeRLP returns the storage encoding of the transaction.
func (tx *Transaction) EncodeRLP() []byte {
	var payload []byte
	payload = rlp.AppendUint64(payload, uint64(tx.Type))
	payload = rlp.AppendUint256(payload, orZero(tx.ChainID))
	payload = rlp.AppendUint64(payload, tx.Nonce)
	payload = rlp.AppendUint256(payload, orZero(tx.GasTipCap))
	payload = rlp.AppendUint256(payload, orZero(tx.GasFeeCap))
	payload = rlp.AppendUint64(payload, tx.Gas)
	if tx.To == nil {
		payload = rlp.AppendString(payload, nil)
	} else {
		payload = rlp.AppendString(payload, tx.To[:])
	}
	payload = rlp.AppendUint256(payload, orZero(tx.Value))
	payload = rlp.AppendString(payload, tx.Data)
	payload = tx.AccessList.appendRLP(payload)

	var auths []byte
	for i := range tx.AuthList {
		auths = tx.AuthList[i].appendRLP(auths)
	}
	payload = rlp.AppendList(payload, auths)
	payload = rlp.AppendUint256(payload, orZero(tx.BlobFeeCap))

	var hashes []byte
	for _, h := range tx.BlobHashes {
		hashes = rlp.AppendString(hashes, h[:])
	}
	payload = rlp.AppendList(payload, hashes)
	payload = rlp.AppendString(payload, tx.From[:])
	return rlp.AppendList(nil, payload)
}

// DecodeTransaction parses a transaction produced by EncodeRLP and returns
// the input following it.
func DecodeTransaction(b []byte) (*Transaction, []byte, error) {
	content, rest, err := rlp.SplitList(b)
	if err != nil {
		return nil, b, err
	}
	var (
		tx  = new(Transaction)
		typ uint64
		raw []byte
	)
	if typ, content, err = rlp.SplitUint64(content); err != nil {
		return nil, b, err
	}
	if typ > SetCodeTxType {
		return nil, b, ErrTxTypeNotSupported
	}
	tx.Type = uint8(typ)
	if tx.ChainID, content, err = rlp.SplitUint256(content); err != nil {
		return nil, b, err
	}
	if tx.Nonce, content, err = rlp.SplitUint64(content); err != nil {
		return nil, b, err
	}
	if tx.GasTipCap, content, err = rlp.SplitUint256(content); err != nil {
		return nil, b, err
	}
	if tx.GasFeeCap, content, err = rlp.SplitUint256(content); err != nil {
		return nil, b, err
	}
	if tx.Gas, content, err = rlp.SplitUint64(content); err != nil {
		return nil, b, err
	}
	if raw, content, err = rlp.SplitString(content); err != nil {
		return nil, b, err
	}
	if len(raw) > 0 {
		to := common.BytesToAddress(raw)
		tx.To = &to
	}
	if tx.Value, content, err = rlp.SplitUint256(content); err != nil {
		return nil, b, err
	}
	if raw, content, err = rlp.SplitString(content); err != nil {
		return nil, b, err
	}
	tx.Data = common.CopyBytes(raw)
	if tx.AccessList, content, err = decodeAccessList(content); err != nil {
		return nil, b, err
	}
	if tx.AuthList, content, err = decodeAuthList(content); err != nil {
		return nil, b, err
	}
	if tx.BlobFeeCap, content, err = rlp.SplitUint256(content); err != nil {
		return nil, b, err
	}
	if raw, content, err = rlp.SplitList(content); err != nil {
		return nil, b, err
	}
	for len(raw) > 0 {
		var h []byte
		if h, raw, err = rlp.SplitString(raw); err != nil {
			return nil, b, err
		}
		tx.BlobHashes = append(tx.BlobHashes, common.BytesToHash(h))
	}
	if raw, _, err = rlp.SplitString(content); err != nil {
		return nil, b, err
	}
	tx.From = common.BytesToAddress(raw)
	return tx, rest, nil
}

// DecodeRLP implements rlp.Decoder.
func (tx *Transaction) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Raw()
	if err != nil {
		return err
	}
	dec, _, err := DecodeTransaction(raw)
	if err != nil {
		return err
	}
	*tx = *dec
	return nil
}

// Transactions implements DerivableList for transactions.
type Transactions []*Transaction

// Hash returns the list hash of the transactions.
func (s Transactions) Hash() common.Hash {
	items := make([][]byte, len(s))
	for i, tx := range s {
		items[i] = tx.EncodeRLP()
	}
	return DeriveListHash(items)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
