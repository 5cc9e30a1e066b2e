// Copyright 2023 The go-ethereum Authors
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
	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/rlp"
)

var (
	// EmptyCodeHash is the known hash of the empty EVM bytecode.
	// EmptyCodeHash 是空字节码的哈希。
	EmptyCodeHash = crypto.Keccak256Hash(nil) // c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470

	// EmptyListHash is the hash of an RLP encoded empty list. Bodies without
	// transactions and blocks without receipts carry it.
	EmptyListHash = crypto.Keccak256Hash(rlp.EmptyList) // 1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347

	// EmptyTxsHash is the transaction list hash of an empty block.
	EmptyTxsHash = EmptyListHash

	// EmptyReceiptsHash is the receipt list hash of an empty block.
	EmptyReceiptsHash = EmptyListHash
)

// DeriveListHash hashes the RLP list of the given encoded items. It stands in
// for the trie root of a list; the flat state layout keeps no tries.
// DeriveListHash 计算编码项 RLP 列表的哈希。
func DeriveListHash(items [][]byte) common.Hash {
	var payload []byte
	for _, item := range items {
		payload = append(payload, item...)
	}
	return crypto.Keccak256Hash(rlp.AppendList(nil, payload))
}
