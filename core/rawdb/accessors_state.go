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

package rawdb

import (
	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/log"
)

// ReadCode retrieves the contract code of the provided code hash.
// ReadCode 检索给定代码哈希对应的合约代码。
func ReadCode(db ethdb.KeyValueReader, hash common.Hash) []byte {
	data, _ := db.Get(codeKey(hash))
	return data
}

// HasCode checks if the contract code corresponding to the
// provided code hash is present in the db.
func HasCode(db ethdb.KeyValueReader, hash common.Hash) bool {
	ok, _ := db.Has(codeKey(hash))
	return ok
}

// WriteCode writes the provided contract code database.
func WriteCode(db ethdb.KeyValueWriter, hash common.Hash, code []byte) {
	if err := db.Put(codeKey(hash), code); err != nil {
		log.Crit("Failed to store contract code", "err", err)
	}
}

// ReadAccountSnapshot retrieves the encoded account from the flat state.
// 返回 nil 表示账户不在数据库中。
func ReadAccountSnapshot(db ethdb.KeyValueReader, hash common.Hash) []byte {
	data, _ := db.Get(accountSnapshotKey(hash))
	return data
}

// HasAccountSnapshot reports whether the flat state holds an entry for the account.
func HasAccountSnapshot(db ethdb.KeyValueReader, hash common.Hash) bool {
	ok, _ := db.Has(accountSnapshotKey(hash))
	return ok
}

// WriteAccountSnapshot stores the encoded account into the flat state.
func WriteAccountSnapshot(db ethdb.KeyValueWriter, hash common.Hash, entry []byte) {
	if err := db.Put(accountSnapshotKey(hash), entry); err != nil {
		log.Crit("Failed to store account snapshot", "err", err)
	}
}

// DeleteAccountSnapshot removes the account from the flat state.
func DeleteAccountSnapshot(db ethdb.KeyValueWriter, hash common.Hash) {
	if err := db.Delete(accountSnapshotKey(hash)); err != nil {
		log.Crit("Failed to delete account snapshot", "err", err)
	}
}

// ReadStorageSnapshot retrieves the storage slot value from the flat state.
func ReadStorageSnapshot(db ethdb.KeyValueReader, accountHash, storageHash common.Hash) []byte {
	data, _ := db.Get(storageSnapshotKey(accountHash, storageHash))
	return data
}

// HasStorageSnapshot reports whether the flat state holds an entry for the slot.
// 存储值为零的槽不会被写入，因此 false 既可能表示零值，也可能表示缺失数据，由调用方区分。
func HasStorageSnapshot(db ethdb.KeyValueReader, accountHash, storageHash common.Hash) bool {
	ok, _ := db.Has(storageSnapshotKey(accountHash, storageHash))
	return ok
}

// WriteStorageSnapshot stores the storage slot value into the flat state.
func WriteStorageSnapshot(db ethdb.KeyValueWriter, accountHash, storageHash common.Hash, entry []byte) {
	if err := db.Put(storageSnapshotKey(accountHash, storageHash), entry); err != nil {
		log.Crit("Failed to store storage snapshot", "err", err)
	}
}

// DeleteStorageSnapshot removes the storage slot from the flat state.
func DeleteStorageSnapshot(db ethdb.KeyValueWriter, accountHash, storageHash common.Hash) {
	if err := db.Delete(storageSnapshotKey(accountHash, storageHash)); err != nil {
		log.Crit("Failed to delete storage snapshot", "err", err)
	}
}

// IterateAccountSnapshots returns an iterator over the flat account entries,
// starting at the given account hash.
func IterateAccountSnapshots(db ethdb.Iteratee, start common.Hash) ethdb.Iterator {
	return db.NewIterator(SnapshotAccountPrefix, start.Bytes())
}

// IterateStorageSnapshots returns an iterator over the flat storage entries of
// a single account, starting at the given slot hash.
func IterateStorageSnapshots(db ethdb.Iteratee, accountHash common.Hash, start common.Hash) ethdb.Iterator {
	return db.NewIterator(storageSnapshotsKey(accountHash), start.Bytes())
}
