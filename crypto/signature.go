// Copyright 2017 The go-ethereum Authors
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

package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	decred_ecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/holiman/uint256"
	"github.com/sunyihoo/evmsync/common"
)

var (
	secp256k1N     = new(uint256.Int).SetBytes(common.FromHex("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141"))
	secp256k1halfN = new(uint256.Int).Rsh(secp256k1N, 1)

	errInvalidSignature = errors.New("invalid signature")
)

// Ecrecover returns the uncompressed public key that created the given signature.
// Ecrecover 返回创建给定签名的未压缩公钥。
func Ecrecover(hash, sig []byte) ([]byte, error) {
	pub, err := sigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	return pub.SerializeUncompressed(), nil
}

// RecoverAddress returns the address of the key that produced sig over hash.
func RecoverAddress(hash, sig []byte) (common.Address, error) {
	pub, err := Ecrecover(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	return PubkeyBytesToAddress(pub)
}

// sigToPub 从签名和哈希恢复 secp256k1 公钥。
func sigToPub(hash, sig []byte) (*secp256k1.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, errInvalidSignature
	}
	if len(hash) != DigestLength {
		return nil, fmt.Errorf("hash is required to be exactly %d bytes (%d)", DigestLength, len(hash))
	}
	// Convert to secp256k1 input format with 'recovery id' v at the beginning.
	// 转换为 secp256k1 输入格式，v 在开头
	btcsig := make([]byte, SignatureLength)
	btcsig[0] = sig[RecoveryIDOffset] + 27
	copy(btcsig[1:], sig)

	pub, _, err := decred_ecdsa.RecoverCompact(btcsig, hash)
	return pub, err
}

// Sign calculates an ECDSA signature.
//
// The produced signature is in the [R || S || V] format where V is 0 or 1.
// Sign 计算 ECDSA 签名，格式为 [R || S || V]，V 为 0 或 1。
func Sign(hash []byte, prv *secp256k1.PrivateKey) ([]byte, error) {
	if len(hash) != DigestLength {
		return nil, fmt.Errorf("hash is required to be exactly %d bytes (%d)", DigestLength, len(hash))
	}
	sig := decred_ecdsa.SignCompact(prv, hash, false)
	// Convert to Ethereum signature format with 'recovery id' v at the end.
	v := sig[0] - 27
	copy(sig, sig[1:])
	sig[RecoveryIDOffset] = v
	return sig, nil
}

// HexToKey parses a hex encoded secp256k1 private key.
func HexToKey(hexkey string) (*secp256k1.PrivateKey, error) {
	b, err := hex.DecodeString(hexkey)
	if byteErr, ok := err.(hex.InvalidByteError); ok {
		return nil, fmt.Errorf("invalid hex character %q in private key", byte(byteErr))
	} else if err != nil {
		return nil, errors.New("invalid hex data for private key")
	}
	if len(b) != 32 {
		return nil, errors.New("invalid length, need 256 bits")
	}
	var priv secp256k1.PrivateKey
	if overflow := priv.Key.SetByteSlice(b); overflow || priv.Key.IsZero() {
		return nil, errors.New("invalid private key")
	}
	return &priv, nil
}

// KeyToAddress returns the address controlled by the private key.
func KeyToAddress(prv *secp256k1.PrivateKey) common.Address {
	addr, _ := PubkeyBytesToAddress(prv.PubKey().SerializeUncompressed())
	return addr
}

// ValidateSignatureValues verifies whether the signature values are valid with
// the given chain rules. The v value is assumed to be either 0 or 1.
// ValidateSignatureValues 校验签名的 r、s、v 是否合法；homestead 之后要求 s 位于曲线阶的下半部分。
func ValidateSignatureValues(v byte, r, s *uint256.Int, homestead bool) bool {
	if r.IsZero() || s.IsZero() {
		return false
	}
	// reject upper range of s values (ECDSA malleability)
	// see discussion in secp256k1/libsecp256k1/include/secp256k1.h
	if homestead && s.Gt(secp256k1halfN) {
		return false
	}
	// Frontier: allow s to be in full N range
	return r.Lt(secp256k1N) && s.Lt(secp256k1N) && (v == 0 || v == 1)
}
