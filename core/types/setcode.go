// Copyright 2024 The go-ethereum Authors
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
	"bytes"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/holiman/uint256"
	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/rlp"
)

// DelegationPrefix is used by code to denote the account is delegating to
// another account.
// DelegationPrefix 被代码用来表示账户正在委托给另一个账户。
var DelegationPrefix = []byte{0xef, 0x01, 0x00}

// ParseDelegation tries to parse the address from a delegation slice.
// ParseDelegation 尝试从委托字节切片中解析出地址。
func ParseDelegation(b []byte) (common.Address, bool) {
	if len(b) != 23 || !bytes.HasPrefix(b, DelegationPrefix) {
		return common.Address{}, false
	}
	return common.BytesToAddress(b[len(DelegationPrefix):]), true
}

// AddressToDelegation adds the delegation prefix to the specified address.
// AddressToDelegation 将委托前缀添加到指定地址。
func AddressToDelegation(addr common.Address) []byte {
	return append(common.CopyBytes(DelegationPrefix), addr.Bytes()...)
}

// SetCodeAuthorization is an authorization from an account to deploy code at its address.
// SetCodeAuthorization 是账户授权在其地址上部署（委托）代码的签名凭证。
type SetCodeAuthorization struct {
	ChainID uint256.Int    `json:"chainId"`
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
	V       uint8          `json:"yParity"`
	R       uint256.Int    `json:"r"`
	S       uint256.Int    `json:"s"`
}

// SignSetCode creates a signed the SetCode authorization.
func SignSetCode(prv *secp256k1.PrivateKey, auth SetCodeAuthorization) (SetCodeAuthorization, error) {
	sighash := auth.SigHash()
	sig, err := crypto.Sign(sighash[:], prv)
	if err != nil {
		return SetCodeAuthorization{}, err
	}
	auth.R.SetBytes(sig[:32])
	auth.S.SetBytes(sig[32:64])
	auth.V = sig[64]
	return auth, nil
}

// SigHash returns the hash of SetCodeAuthorization for signing:
// keccak256(0x05 || rlp([chain_id, address, nonce])).
// SigHash 返回授权的签名哈希。
func (a *SetCodeAuthorization) SigHash() common.Hash {
	var payload []byte
	payload = rlp.AppendUint256(payload, &a.ChainID)
	payload = rlp.AppendString(payload, a.Address[:])
	payload = rlp.AppendUint64(payload, a.Nonce)
	return crypto.Keccak256Hash([]byte{0x05}, rlp.AppendList(nil, payload))
}

// Authority recovers the authorizing account of an authorization.
// Authority 恢复签署此授权的账户地址。
func (a *SetCodeAuthorization) Authority() (common.Address, error) {
	sighash := a.SigHash()
	if !crypto.ValidateSignatureValues(a.V, &a.R, &a.S, true) {
		return common.Address{}, errors.New("invalid signature")
	}
	// encode the signature in uncompressed format
	var sig [crypto.SignatureLength]byte
	a.R.WriteToSlice(sig[:32])
	a.S.WriteToSlice(sig[32:64])
	sig[64] = a.V
	return crypto.RecoverAddress(sighash[:], sig[:])
}

func (a *SetCodeAuthorization) appendRLP(b []byte) []byte {
	var payload []byte
	payload = rlp.AppendUint256(payload, &a.ChainID)
	payload = rlp.AppendString(payload, a.Address[:])
	payload = rlp.AppendUint64(payload, a.Nonce)
	payload = rlp.AppendUint64(payload, uint64(a.V))
	payload = rlp.AppendUint256(payload, &a.R)
	payload = rlp.AppendUint256(payload, &a.S)
	return rlp.AppendList(b, payload)
}

func decodeAuthList(b []byte) ([]SetCodeAuthorization, []byte, error) {
	content, rest, err := rlp.SplitList(b)
	if err != nil {
		return nil, b, err
	}
	var list []SetCodeAuthorization
	for len(content) > 0 {
		var (
			item []byte
			auth SetCodeAuthorization
			v    uint64
			word *uint256.Int
			addr []byte
		)
		if item, content, err = rlp.SplitList(content); err != nil {
			return nil, b, err
		}
		if word, item, err = rlp.SplitUint256(item); err != nil {
			return nil, b, err
		}
		auth.ChainID = *word
		if addr, item, err = rlp.SplitString(item); err != nil {
			return nil, b, err
		}
		auth.Address = common.BytesToAddress(addr)
		if auth.Nonce, item, err = rlp.SplitUint64(item); err != nil {
			return nil, b, err
		}
		if v, item, err = rlp.SplitUint64(item); err != nil {
			return nil, b, err
		}
		auth.V = uint8(v)
		if word, item, err = rlp.SplitUint256(item); err != nil {
			return nil, b, err
		}
		auth.R = *word
		if word, _, err = rlp.SplitUint256(item); err != nil {
			return nil, b, err
		}
		auth.S = *word
		list = append(list, auth)
	}
	return list, rest, nil
}
