// Copyright 2014 The go-ethereum Authors
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
	"bytes"

	jsoniter "github.com/json-iterator/go"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/common/hexutil"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DumpConfig is a set of options to control what portions of the state will be
// iterated and collected.
// DumpConfig 控制状态转储时收集哪些部分。
type DumpConfig struct {
	SkipCode    bool
	SkipStorage bool
	Start       []byte // Starting account hash for the iteration
	Max         uint64 // Maximum number of accounts to dump, zero means unlimited
}

// DumpAccount represents an account in the state.
type DumpAccount struct {
	Balance     string                 `json:"balance"`
	Nonce       uint64                 `json:"nonce"`
	CodeHash    hexutil.Bytes          `json:"codeHash"`
	Code        hexutil.Bytes          `json:"code,omitempty"`
	Storage     map[common.Hash]string `json:"storage,omitempty"`
	Address     *common.Address        `json:"address,omitempty"` // Address only present in iterative (line-by-line) mode
	AddressHash hexutil.Bytes          `json:"key,omitempty"`     // If we don't have address, we can output the key
}

// Dump represents the full dump in a collected format, as one large map.
// The flat state is keyed by address hash: accounts touched by the current
// StateDB also carry their address.
type Dump struct {
	Accounts map[string]DumpAccount `json:"accounts"`
	// Next can be set to represent that this dump is only partial, and Next
	// is where an iterator should be positioned in order to continue the dump.
	Next []byte `json:"next,omitempty"` // nil if no more accounts
}

// RawDump collects the committed flat state. Mutations that have not been
// committed yet are not part of the dump.
// RawDump 收集已提交的扁平状态，未提交的修改不包含在内。
func (s *StateDB) RawDump(conf *DumpConfig) Dump {
	if conf == nil {
		conf = new(DumpConfig)
	}
	var (
		dump    = Dump{Accounts: make(map[string]DumpAccount)}
		known   = make(map[common.Hash]common.Address, len(s.stateObjects))
		disk    = s.db.DiskDB()
		start   common.Hash
		count   uint64
		skipped int
	)
	for addr, obj := range s.stateObjects {
		known[obj.addrHash] = addr
	}
	if len(conf.Start) > 0 {
		start = common.BytesToHash(conf.Start)
	}
	it := rawdb.IterateAccountSnapshots(disk, start)
	defer it.Release()

	for it.Next() {
		key := it.Key()
		if len(key) != len(rawdb.SnapshotAccountPrefix)+common.HashLength {
			continue
		}
		hash := common.BytesToHash(key[len(rawdb.SnapshotAccountPrefix):])
		if conf.Max > 0 && count == conf.Max {
			dump.Next = hash.Bytes()
			break
		}
		acct, err := decodeAccount(it.Value())
		if err != nil {
			log.Error("Failed to decode state account", "hash", hash, "err", err)
			skipped++
			continue
		}
		if acct == nil {
			// Known-absent marker of a partial database.
			continue
		}
		account := DumpAccount{
			Balance:     acct.Balance.ToBig().String(),
			Nonce:       acct.Nonce,
			CodeHash:    acct.CodeHash,
			AddressHash: hash.Bytes(),
		}
		name := hash.Hex()
		if addr, ok := known[hash]; ok {
			account.Address = &addr
			name = addr.Hex()
		}
		if !conf.SkipCode && !bytes.Equal(acct.CodeHash, types.EmptyCodeHash.Bytes()) {
			account.Code = rawdb.ReadCode(disk, common.BytesToHash(acct.CodeHash))
		}
		if !conf.SkipStorage {
			account.Storage = dumpStorage(disk, hash)
		}
		dump.Accounts[name] = account
		count++
	}
	if err := it.Error(); err != nil {
		log.Error("Failed to iterate flat state", "err", err)
	}
	if skipped > 0 {
		log.Warn("Dump skipped undecodable accounts", "count", skipped)
	}
	log.Debug("Dumped state", "accounts", count)
	return dump
}

func dumpStorage(disk ethdb.Iteratee, accountHash common.Hash) map[common.Hash]string {
	storage := make(map[common.Hash]string)
	it := rawdb.IterateStorageSnapshots(disk, accountHash, common.Hash{})
	defer it.Release()

	for it.Next() {
		value, err := decodeStorage(it.Value())
		if err != nil || value == (common.Hash{}) {
			continue
		}
		key := it.Key()
		storage[common.BytesToHash(key[len(key)-common.HashLength:])] = common.Bytes2Hex(common.TrimLeftZeroes(value[:]))
	}
	if len(storage) == 0 {
		return nil
	}
	return storage
}

// Dump returns a JSON string representing the entire committed state as a
// single json-object.
func (s *StateDB) Dump(conf *DumpConfig) []byte {
	dump := s.RawDump(conf)
	out, err := json.MarshalIndent(dump, "", "    ")
	if err != nil {
		log.Error("Error dumping state", "err", err)
	}
	return out
}
