// Copyright 2018 The go-ethereum Authors
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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/ethdb/memorydb"
)

// nofreezedb is a database wrapper that marks the store as chain-data capable.
// 链数据直接存放在键值存储中，没有冷存储。
type nofreezedb struct {
	ethdb.KeyValueStore
}

// NewDatabase creates a high level database on top of a given key-value data
// store.
func NewDatabase(db ethdb.KeyValueStore) ethdb.Database {
	return &nofreezedb{KeyValueStore: db}
}

// NewMemoryDatabase creates an ephemeral in-memory key-value database.
// NewMemoryDatabase 创建一个临时的内存键值数据库。
func NewMemoryDatabase() ethdb.Database {
	return NewDatabase(memorydb.New())
}

const (
	DBPebble  = "pebble"
	DBLeveldb = "leveldb"
	DBMemory  = "memory"
)

// PreexistingDatabase checks the given data directory whether a database is already
// instantiated at that location, and if so, returns the type of database (or the
// empty string).
func PreexistingDatabase(path string) string {
	if _, err := os.Stat(filepath.Join(path, "CURRENT")); err != nil {
		return "" // No pre-existing db
	}
	if matches, err := filepath.Glob(filepath.Join(path, "OPTIONS*")); len(matches) > 0 || err != nil {
		if err != nil {
			panic(err) // only possible if the pattern is malformed
		}
		return DBPebble
	}
	return DBLeveldb
}

// Stat is the size accumulated for one category of database records.
type Stat struct {
	Category string
	Count    uint64
	Size     common.StorageSize
}

// InspectDatabase traverses the entire database and returns the size of each
// record category, sorted by category name.
// InspectDatabase 遍历整个数据库并统计各类记录的数量与大小。
func InspectDatabase(db ethdb.Iteratee) ([]Stat, error) {
	it := db.NewIterator(nil, nil)
	defer it.Release()

	stats := make(map[string]*Stat)
	add := func(category string, size int) {
		s, ok := stats[category]
		if !ok {
			s = &Stat{Category: category}
			stats[category] = s
		}
		s.Count++
		s.Size += common.StorageSize(size)
	}
	for it.Next() {
		var (
			key  = it.Key()
			size = len(key) + len(it.Value())
		)
		switch {
		case bytes.HasPrefix(key, headerPrefix) && len(key) == len(headerPrefix)+8+common.HashLength:
			add("Headers", size)
		case bytes.HasPrefix(key, headerPrefix) && bytes.HasSuffix(key, headerHashSuffix) && len(key) == len(headerPrefix)+8+len(headerHashSuffix):
			add("Canonical hashes", size)
		case bytes.HasPrefix(key, headerNumberPrefix) && len(key) == len(headerNumberPrefix)+common.HashLength:
			add("Block number->hash", size)
		case bytes.HasPrefix(key, blockBodyPrefix) && len(key) == len(blockBodyPrefix)+8+common.HashLength:
			add("Bodies", size)
		case bytes.HasPrefix(key, blockReceiptsPrefix) && len(key) == len(blockReceiptsPrefix)+8+common.HashLength:
			add("Receipts", size)
		case bytes.HasPrefix(key, SnapshotAccountPrefix) && len(key) == len(SnapshotAccountPrefix)+common.HashLength:
			add("Accounts", size)
		case bytes.HasPrefix(key, SnapshotStoragePrefix) && len(key) == len(SnapshotStoragePrefix)+2*common.HashLength:
			add("Storage", size)
		case bytes.HasPrefix(key, CodePrefix) && len(key) == len(CodePrefix)+common.HashLength:
			add("Contract codes", size)
		default:
			add("Metadata", size)
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("database iteration failed: %w", err)
	}
	result := make([]Stat, 0, len(stats))
	for _, s := range stats {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Category < result[j].Category })
	return result, nil
}
