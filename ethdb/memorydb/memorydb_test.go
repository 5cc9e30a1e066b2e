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

package memorydb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/ethdb/dbtest"
)

func TestMemoryDB(t *testing.T) {
	t.Run("DatabaseSuite", func(t *testing.T) {
		dbtest.TestDatabaseSuite(t, func() ethdb.KeyValueStore {
			return New()
		})
	})
}

// 迭代器创建之后的写入不可见。
func TestIteratorSnapshot(t *testing.T) {
	db := New()
	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	it := db.NewIterator(nil, nil)
	defer it.Release()
	require.NoError(t, db.Put([]byte("b"), []byte("2")))

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"a"}, keys)
	assert.Equal(t, 2, db.Len())
}

func TestGetMissing(t *testing.T) {
	db := New()
	_, err := db.Get([]byte("missing"))
	assert.ErrorIs(t, err, errMemorydbNotFound)
}

func TestPrefixScanStopsAtPrefixEnd(t *testing.T) {
	db := New()
	for _, k := range []string{"a1", "b1", "b2", "b3", "c1"} {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}
	it := db.NewIterator([]byte("b"), []byte("2"))
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"b2", "b3"}, keys)
	assert.NoError(t, it.Error())
}

func TestStatTracksSize(t *testing.T) {
	db := New()
	require.NoError(t, db.Put([]byte("ab"), []byte("cdef")))
	require.NoError(t, db.Put([]byte("ab"), []byte("c")))
	stat, err := db.Stat()
	require.NoError(t, err)
	assert.Equal(t, "entries: 1, size: 3.00 B", stat)

	require.NoError(t, db.DeleteRange([]byte("a"), []byte("b")))
	stat, err = db.Stat()
	require.NoError(t, err)
	assert.Equal(t, "entries: 0, size: 0.00 B", stat)
}

func TestClosedDatabase(t *testing.T) {
	db := New()
	require.NoError(t, db.Close())

	_, err := db.Get([]byte("a"))
	assert.ErrorIs(t, err, errMemorydbClosed)
	assert.ErrorIs(t, db.NewBatch().Write(), errMemorydbClosed)

	it := db.NewIterator(nil, nil)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Error(), errMemorydbClosed)
}
