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

package state

import (
	"fmt"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/rlp"
)

// Reader defines the interface for accessing accounts, storage slots and
// contract code associated with a specific state.
// Reader 定义访问账户、存储槽和合约代码的接口。
type Reader interface {
	// Account retrieves the account associated with a particular address.
	//
	// - Returns a nil account if it does not exist
	// - Returns a *MissingDataError if the backend does not hold the record
	// - The returned account is safe to modify after the call
	Account(addr common.Address) (*types.StateAccount, error)

	// Storage retrieves the storage slot associated with a particular account
	// address and slot key.
	//
	// - Returns an empty slot if it does not exist
	// - Returns a *MissingDataError if the backend does not hold the record
	Storage(addr common.Address, slot common.Hash) (common.Hash, error)

	// Code retrieves the contract code associated with a particular account
	// address and code hash.
	Code(addr common.Address, codeHash common.Hash) ([]byte, error)
}

// flatReader reads the flat account and storage layout maintained in rawdb,
// going through the clean caches of the owning CachingDB.
type flatReader struct {
	db     *CachingDB
	hasher crypto.KeccakState
}

func newFlatReader(db *CachingDB) *flatReader {
	return &flatReader{db: db, hasher: crypto.NewKeccakState()}
}

// Account implements Reader.
func (r *flatReader) Account(addr common.Address) (*types.StateAccount, error) {
	hash := crypto.HashData(r.hasher, addr.Bytes())
	if blob, ok := r.db.accountCache.HasGet(nil, hash[:]); ok {
		return decodeAccount(blob)
	}
	blob := rawdb.ReadAccountSnapshot(r.db.disk, hash)
	if len(blob) == 0 && r.db.partial && !rawdb.HasAccountSnapshot(r.db.disk, hash) {
		return nil, &MissingDataError{Kind: AccountData, Address: addr}
	}
	r.db.accountCache.Set(hash[:], blob)
	return decodeAccount(blob)
}

// Storage implements Reader.
func (r *flatReader) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	var (
		addrHash = crypto.HashData(r.hasher, addr.Bytes())
		slotHash = crypto.HashData(r.hasher, slot.Bytes())
		key      = append(addrHash.Bytes(), slotHash.Bytes()...)
	)
	if blob, ok := r.db.storageCache.HasGet(nil, key); ok {
		return decodeStorage(blob)
	}
	blob := rawdb.ReadStorageSnapshot(r.db.disk, addrHash, slotHash)
	if len(blob) == 0 && r.db.partial && !rawdb.HasStorageSnapshot(r.db.disk, addrHash, slotHash) {
		return common.Hash{}, &MissingDataError{Kind: StorageData, Address: addr, Slot: slot}
	}
	r.db.storageCache.Set(key, blob)
	return decodeStorage(blob)
}

// Code implements Reader.
func (r *flatReader) Code(addr common.Address, codeHash common.Hash) ([]byte, error) {
	if codeHash == types.EmptyCodeHash {
		return nil, nil
	}
	if code, ok := r.db.codeCache.Get(codeHash); ok {
		return code, nil
	}
	code := rawdb.ReadCode(r.db.disk, codeHash)
	if len(code) == 0 {
		if r.db.partial {
			return nil, &MissingDataError{Kind: CodeData, Address: addr, CodeHash: codeHash}
		}
		return nil, fmt.Errorf("code %x of account %x not found", codeHash, addr)
	}
	r.db.codeCache.Add(codeHash, code)
	return code, nil
}

// decodeAccount decodes a flat account entry. An empty entry denotes an account
// that is known not to exist.
func decodeAccount(blob []byte) (*types.StateAccount, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	return types.DecodeStateAccount(blob)
}

// encodeStorage encodes a slot value the way the flat state stores it: the RLP
// string of the value without leading zeroes.
// 零值编码为空，写入时转为删除或"已知为零"标记。
func encodeStorage(value common.Hash) []byte {
	if value == (common.Hash{}) {
		return nil
	}
	return rlp.AppendString(nil, common.TrimLeftZeroes(value[:]))
}

func decodeStorage(blob []byte) (common.Hash, error) {
	if len(blob) == 0 {
		return common.Hash{}, nil
	}
	content, _, err := rlp.SplitString(blob)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(content), nil
}
