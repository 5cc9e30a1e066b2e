// Copyright 2021 The go-ethereum Authors
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
	"github.com/holiman/uint256"
	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/rlp"
)

// StateAccount is the Ethereum consensus representation of accounts in the
// flat state layout: nonce, balance and code hash. Storage slots are kept as
// separate entries keyed by account and slot hash.
// StateAccount 是扁平状态布局中的账户表示：nonce、余额与代码哈希。
type StateAccount struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash []byte
}

// NewEmptyStateAccount constructs an empty state account.
func NewEmptyStateAccount() *StateAccount {
	return &StateAccount{
		Balance:  new(uint256.Int),
		CodeHash: EmptyCodeHash.Bytes(),
	}
}

// Copy returns a deep-copied state account object.
func (acct *StateAccount) Copy() *StateAccount {
	var balance *uint256.Int
	if acct.Balance != nil {
		balance = new(uint256.Int).Set(acct.Balance)
	}
	return &StateAccount{
		Nonce:    acct.Nonce,
		Balance:  balance,
		CodeHash: common.CopyBytes(acct.CodeHash),
	}
}

// EncodeRLP returns the RLP encoding of the account.
func (acct *StateAccount) EncodeRLP() []byte {
	var payload []byte
	payload = rlp.AppendUint64(payload, acct.Nonce)
	payload = rlp.AppendUint256(payload, orZero(acct.Balance))
	payload = rlp.AppendString(payload, acct.CodeHash)
	return rlp.AppendList(nil, payload)
}

// DecodeStateAccount parses an RLP encoded account.
// DecodeStateAccount 解析 RLP 编码的账户。
func DecodeStateAccount(b []byte) (*StateAccount, error) {
	content, _, err := rlp.SplitList(b)
	if err != nil {
		return nil, err
	}
	acct := new(StateAccount)
	if acct.Nonce, content, err = rlp.SplitUint64(content); err != nil {
		return nil, err
	}
	if acct.Balance, content, err = rlp.SplitUint256(content); err != nil {
		return nil, err
	}
	codeHash, _, err := rlp.SplitString(content)
	if err != nil {
		return nil, err
	}
	acct.CodeHash = common.CopyBytes(codeHash)
	return acct, nil
}
