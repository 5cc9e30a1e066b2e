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

// Package memorydb implements the key-value database layer on top of an
// in-memory B-tree, keeping keys ordered so prefix scans over flat state do
// not need to sort.
// Package memorydb 基于内存 B 树实现键值数据库层，键始终有序。
package memorydb

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/ethdb"
)

// degree of the backing B-tree.
const degree = 32

var (
	// errMemorydbClosed is returned if a memory database was already closed at the
	// invocation of a data access operation.
	errMemorydbClosed = errors.New("database closed")

	// errMemorydbNotFound is returned if a key is requested that is not found in
	// the provided memory database.
	// 请求的键不存在时返回。
	errMemorydbNotFound = errors.New("not found")
)

type item struct {
	key   string
	value []byte
}

func itemLess(a, b item) bool { return a.key < b.key }

// Database is an ephemeral key-value store ordered by key.
type Database struct {
	tree *btree.BTreeG[item]
	size int // total bytes of keys and values held
	lock sync.RWMutex
}

// New returns an empty memory database.
func New() *Database {
	return &Database{tree: btree.NewG(degree, itemLess)}
}

// Close drops the content; any later access fails with errMemorydbClosed.
func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.tree, db.size = nil, 0
	return nil
}

// Has retrieves if a key is present in the key-value store.
func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return false, errMemorydbClosed
	}
	return db.tree.Has(item{key: string(key)}), nil
}

// Get retrieves a copy of the value stored under key.
func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return nil, errMemorydbClosed
	}
	if it, ok := db.tree.Get(item{key: string(key)}); ok {
		return common.CopyBytes(it.value), nil
	}
	return nil, errMemorydbNotFound
}

// Put stores a copy of value, so later changes to the slice do not leak in.
// Put 存入值的副本，调用方之后修改切片不影响已存数据。
func (db *Database) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return errMemorydbClosed
	}
	db.put(string(key), common.CopyBytes(value))
	return nil
}

// Delete removes the key from the key-value store.
func (db *Database) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return errMemorydbClosed
	}
	db.remove(string(key))
	return nil
}

// DeleteRange deletes all keys in [start, end).
func (db *Database) DeleteRange(start, end []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return errMemorydbClosed
	}
	var doomed []string
	db.tree.AscendRange(item{key: string(start)}, item{key: string(end)}, func(it item) bool {
		doomed = append(doomed, it.key)
		return true
	})
	for _, key := range doomed {
		db.remove(key)
	}
	return nil
}

// put and remove expect the write lock to be held.
func (db *Database) put(key string, value []byte) {
	if old, ok := db.tree.ReplaceOrInsert(item{key, value}); ok {
		db.size -= len(old.key) + len(old.value)
	}
	db.size += len(key) + len(value)
}

func (db *Database) remove(key string) {
	if old, ok := db.tree.Delete(item{key: key}); ok {
		db.size -= len(old.key) + len(old.value)
	}
}

// NewBatch creates a write-only key-value store that buffers changes to its host
// database until a final write is called.
func (db *Database) NewBatch() ethdb.Batch {
	return &batch{db: db}
}

// NewBatchWithSize creates a write-only database batch with pre-allocated buffer.
func (db *Database) NewBatchWithSize(size int) ethdb.Batch {
	return &batch{db: db, ops: make([]op, 0, size)}
}

// NewIterator walks the keys with the given prefix in ascending order,
// starting at prefix+start. The iterator works on the entries present at the
// time of the call.
// 迭代器持有创建时刻的快照，之后的写入不可见。
func (db *Database) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	it := &iterator{index: -1}
	if db.tree == nil {
		it.err = errMemorydbClosed
		return it
	}
	pr := string(prefix)
	from := item{key: pr + string(start)}
	db.tree.AscendGreaterOrEqual(from, func(e item) bool {
		if !strings.HasPrefix(e.key, pr) {
			return false
		}
		it.items = append(it.items, e)
		return true
	})
	return it
}

// Stat reports the number of entries and their total size.
func (db *Database) Stat() (string, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return "", errMemorydbClosed
	}
	return fmt.Sprintf("entries: %d, size: %v", db.tree.Len(), common.StorageSize(db.size)), nil
}

// Compact is a no-op, the tree never holds dead entries.
func (db *Database) Compact(start []byte, limit []byte) error {
	return nil
}

// Len returns the number of entries currently present in the memory database.
func (db *Database) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return 0
	}
	return db.tree.Len()
}

// op is a single queued batch write.
type op struct {
	key   string
	value []byte
	del   bool
}

// batch queues writes and applies them atomically on Write. A batch cannot
// be used concurrently.
type batch struct {
	db   *Database
	ops  []op
	size int
}

// Put inserts the given value into the batch for later committing.
func (b *batch) Put(key, value []byte) error {
	b.ops = append(b.ops, op{key: string(key), value: common.CopyBytes(value)})
	b.size += len(key) + len(value)
	return nil
}

// Delete inserts the key removal into the batch for later committing.
func (b *batch) Delete(key []byte) error {
	b.ops = append(b.ops, op{key: string(key), del: true})
	b.size += len(key)
	return nil
}

// ValueSize retrieves the amount of data queued up for writing.
func (b *batch) ValueSize() int {
	return b.size
}

// Write applies the queued operations under a single lock.
func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	if b.db.tree == nil {
		return errMemorydbClosed
	}
	for _, o := range b.ops {
		if o.del {
			b.db.remove(o.key)
		} else {
			b.db.put(o.key, o.value)
		}
	}
	return nil
}

// Reset resets the batch for reuse.
func (b *batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

// Replay replays the batch contents.
func (b *batch) Replay(w ethdb.KeyValueWriter) error {
	for _, o := range b.ops {
		var err error
		if o.del {
			err = w.Delete([]byte(o.key))
		} else {
			err = w.Put([]byte(o.key), o.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// iterator walks a copied slice of tree entries.
type iterator struct {
	index int
	items []item
	err   error
}

func (it *iterator) Next() bool {
	if it.err != nil || it.index >= len(it.items) {
		return false
	}
	it.index++
	return it.index < len(it.items)
}

func (it *iterator) Error() error {
	return it.err
}

// Key returns the key of the current entry, or nil if done.
func (it *iterator) Key() []byte {
	if it.index < 0 || it.index >= len(it.items) {
		return nil
	}
	return []byte(it.items[it.index].key)
}

// Value returns the value of the current entry, or nil if done.
func (it *iterator) Value() []byte {
	if it.index < 0 || it.index >= len(it.items) {
		return nil
	}
	return it.items[it.index].value
}

// Release drops the copied entries. It can be called multiple times.
func (it *iterator) Release() {
	it.index, it.items = -1, nil
}
