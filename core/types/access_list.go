// Copyright 2020 The go-ethereum Authors
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
	"github.com/sunyihoo/evmsync/rlp"
)

// AccessList is an EIP-2930 access list.
// AccessList 是 EIP-2930 访问列表。
type AccessList []AccessTuple

// AccessTuple is the element type of an access list.
type AccessTuple struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storageKeys"`
}

// StorageKeys returns the total number of storage keys in the access list.
func (al AccessList) StorageKeys() int {
	sum := 0
	for _, tuple := range al {
		sum += len(tuple.StorageKeys)
	}
	return sum
}

func (al AccessList) appendRLP(b []byte) []byte {
	var tuples []byte
	for _, tuple := range al {
		var keys []byte
		for _, key := range tuple.StorageKeys {
			keys = rlp.AppendString(keys, key[:])
		}
		var payload []byte
		payload = rlp.AppendString(payload, tuple.Address[:])
		payload = rlp.AppendList(payload, keys)
		tuples = rlp.AppendList(tuples, payload)
	}
	return rlp.AppendList(b, tuples)
}

func decodeAccessList(b []byte) (AccessList, []byte, error) {
	content, rest, err := rlp.SplitList(b)
	if err != nil {
		return nil, b, err
	}
	var al AccessList
	for len(content) > 0 {
		var tuple []byte
		if tuple, content, err = rlp.SplitList(content); err != nil {
			return nil, b, err
		}
		addr, tuple, err := rlp.SplitString(tuple)
		if err != nil {
			return nil, b, err
		}
		keys, _, err := rlp.SplitList(tuple)
		if err != nil {
			return nil, b, err
		}
		entry := AccessTuple{Address: common.BytesToAddress(addr)}
		for len(keys) > 0 {
			var key []byte
			if key, keys, err = rlp.SplitString(keys); err != nil {
				return nil, b, err
			}
			entry.StorageKeys = append(entry.StorageKeys, common.BytesToHash(key))
		}
		al = append(al, entry)
	}
	return al, rest, nil
}
