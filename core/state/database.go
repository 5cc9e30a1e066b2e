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

package state

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/log"
)

const (
	// Number of codehash->code associations to keep.
	codeCacheSize = 4096

	// Default size of the clean account and storage caches in bytes.
	// 账户与存储干净缓存的默认大小（字节）。
	defaultCleanCacheSize = 32 * 1024 * 1024
)

// CachingDB is the state backend: the flat account and storage layout kept in
// the key-value store, fronted by clean caches.
//
// A partial CachingDB treats records absent from disk as unknown rather than
// empty, reporting them through *MissingDataError. Records inserted with the
// Insert* methods become known, including known-empty ones.
// CachingDB 是状态后端：键值存储中的扁平账户与存储布局，前面加上干净缓存。
type CachingDB struct {
	disk    ethdb.Database
	partial bool

	accountCache *fastcache.Cache // addrHash -> encoded account
	storageCache *fastcache.Cache // addrHash ++ slotHash -> encoded slot
	codeCache    *lru.Cache[common.Hash, []byte]
}

// NewDatabase creates a state database over a complete flat state: records
// absent from disk are empty.
func NewDatabase(disk ethdb.Database) *CachingDB {
	return newCachingDB(disk, false, defaultCleanCacheSize)
}

// NewPartialDatabase creates a state database over an incomplete flat state:
// records absent from disk are reported as missing data.
// NewPartialDatabase 创建基于不完整扁平状态的数据库：磁盘上缺失的记录会报告为缺失数据。
func NewPartialDatabase(disk ethdb.Database) *CachingDB {
	return newCachingDB(disk, true, defaultCleanCacheSize)
}

func newCachingDB(disk ethdb.Database, partial bool, cacheSize int) *CachingDB {
	codeCache, err := lru.New[common.Hash, []byte](codeCacheSize)
	if err != nil {
		panic(err) // only fails on a non-positive size
	}
	return &CachingDB{
		disk:         disk,
		partial:      partial,
		accountCache: fastcache.New(cacheSize / 2),
		storageCache: fastcache.New(cacheSize / 2),
		codeCache:    codeCache,
	}
}

// Reader returns a state reader over the current flat state.
func (db *CachingDB) Reader() Reader {
	return newFlatReader(db)
}

// DiskDB returns the underlying key-value disk database.
func (db *CachingDB) DiskDB() ethdb.Database {
	return db.disk
}

// Partial reports whether absent records are treated as missing data.
func (db *CachingDB) Partial() bool {
	return db.partial
}

// InsertAccount stores an account fetched from elsewhere. A nil account
// records that the address is known not to exist.
func (db *CachingDB) InsertAccount(addr common.Address, acct *types.StateAccount) {
	hash := crypto.Keccak256Hash(addr.Bytes())
	var blob []byte
	if acct != nil {
		blob = acct.EncodeRLP()
	}
	rawdb.WriteAccountSnapshot(db.disk, hash, blob)
	db.accountCache.Set(hash[:], blob)
}

// InsertStorage stores a storage slot fetched from elsewhere. Zero values are
// recorded as known-empty slots.
func (db *CachingDB) InsertStorage(addr common.Address, slot common.Hash, value common.Hash) {
	addrHash, slotHash := crypto.Keccak256Hash(addr.Bytes()), crypto.Keccak256Hash(slot.Bytes())
	blob := encodeStorage(value)
	rawdb.WriteStorageSnapshot(db.disk, addrHash, slotHash, blob)
	db.storageCache.Set(append(addrHash.Bytes(), slotHash.Bytes()...), blob)
}

// InsertCode stores contract code fetched from elsewhere and returns its hash.
func (db *CachingDB) InsertCode(code []byte) common.Hash {
	hash := crypto.Keccak256Hash(code)
	rawdb.WriteCode(db.disk, hash, code)
	db.codeCache.Add(hash, code)
	return hash
}

// InsertAccountRange stores flat account entries keyed by account hash, the
// shape snap sync delivers them in. Every entry must decode as an account.
// InsertAccountRange 按账户哈希写入一段扁平账户记录（快照同步的交付形式）。
func (db *CachingDB) InsertAccountRange(hashes []common.Hash, blobs [][]byte) error {
	if len(hashes) != len(blobs) {
		return fmt.Errorf("account range misaligned: %d hashes, %d accounts", len(hashes), len(blobs))
	}
	batch := db.disk.NewBatch()
	for i, hash := range hashes {
		if _, err := types.DecodeStateAccount(blobs[i]); err != nil {
			return fmt.Errorf("invalid account %x: %w", hash, err)
		}
		rawdb.WriteAccountSnapshot(batch, hash, blobs[i])
	}
	if err := batch.Write(); err != nil {
		return err
	}
	for i, hash := range hashes {
		db.accountCache.Set(hash[:], blobs[i])
	}
	return nil
}

// InsertStorageRange stores flat storage entries of one account keyed by slot
// hash. Values use the flat storage encoding.
func (db *CachingDB) InsertStorageRange(account common.Hash, slots []common.Hash, blobs [][]byte) error {
	if len(slots) != len(blobs) {
		return fmt.Errorf("storage range misaligned: %d slots, %d values", len(slots), len(blobs))
	}
	batch := db.disk.NewBatch()
	for i, slot := range slots {
		if _, err := decodeStorage(blobs[i]); err != nil {
			return fmt.Errorf("invalid slot %x of %x: %w", slot, account, err)
		}
		rawdb.WriteStorageSnapshot(batch, account, slot, blobs[i])
	}
	if err := batch.Write(); err != nil {
		return err
	}
	for i, slot := range slots {
		db.storageCache.Set(append(account.Bytes(), slot.Bytes()...), blobs[i])
	}
	return nil
}

// Reset deletes every flat account and storage entry and drops the clean
// caches. Contract codes are content addressed and survive. A partial database
// afterwards reports every account and slot as missing data.
// Reset 删除所有扁平账户与存储记录并清空缓存，代码按哈希寻址因而保留。
func (db *CachingDB) Reset() error {
	var (
		batch   = db.disk.NewBatch()
		deleted int
	)
	for _, table := range []struct {
		prefix []byte
		keyLen int
	}{
		{rawdb.SnapshotAccountPrefix, len(rawdb.SnapshotAccountPrefix) + common.HashLength},
		{rawdb.SnapshotStoragePrefix, len(rawdb.SnapshotStoragePrefix) + 2*common.HashLength},
	} {
		it := db.disk.NewIterator(table.prefix, nil)
		for it.Next() {
			if len(it.Key()) != table.keyLen {
				continue
			}
			if err := batch.Delete(it.Key()); err != nil {
				it.Release()
				return err
			}
			deleted++
			if batch.ValueSize() >= ethdb.IdealBatchSize {
				if err := batch.Write(); err != nil {
					it.Release()
					return err
				}
				batch.Reset()
			}
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	db.accountCache.Reset()
	db.storageCache.Reset()
	log.Debug("Wiped flat state", "entries", deleted)
	return nil
}

// commit flushes a state update into the disk database within one batch and
// refreshes the clean caches.
// commit 在一个批次内将状态更新写入磁盘，并刷新干净缓存。
func (db *CachingDB) commit(update *stateUpdate) error {
	batch := db.disk.NewBatch()

	// Wipe the storage of destructed accounts first, they may be resurrected
	// below with fresh slots.
	for addrHash := range update.destructs {
		if err := db.wipeStorage(batch, addrHash); err != nil {
			return err
		}
	}
	for hash, code := range update.codes {
		rawdb.WriteCode(batch, hash, code)
		db.codeCache.Add(hash, code)
	}
	for addrHash, blob := range update.accounts {
		if blob == nil && !db.partial {
			rawdb.DeleteAccountSnapshot(batch, addrHash)
		} else {
			rawdb.WriteAccountSnapshot(batch, addrHash, blob)
		}
		db.accountCache.Set(addrHash[:], blob)
	}
	for addrHash, slots := range update.storages {
		for slotHash, blob := range slots {
			if blob == nil && !db.partial {
				rawdb.DeleteStorageSnapshot(batch, addrHash, slotHash)
			} else {
				rawdb.WriteStorageSnapshot(batch, addrHash, slotHash, blob)
			}
			db.storageCache.Set(append(addrHash.Bytes(), slotHash.Bytes()...), blob)
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	log.Debug("Committed state update", "accounts", len(update.accounts), "storages", len(update.storages),
		"codes", len(update.codes), "destructs", len(update.destructs))
	return nil
}

// wipeStorage removes every flat storage entry of an account.
func (db *CachingDB) wipeStorage(batch ethdb.Batch, addrHash common.Hash) error {
	it := rawdb.IterateStorageSnapshots(db.disk, addrHash, common.Hash{})
	defer it.Release()

	for it.Next() {
		key := it.Key()
		slotHash := common.BytesToHash(key[len(key)-common.HashLength:])
		rawdb.DeleteStorageSnapshot(batch, addrHash, slotHash)
		db.storageCache.Del(append(addrHash.Bytes(), slotHash.Bytes()...))
	}
	return it.Error()
}
