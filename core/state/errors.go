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
)

// DataKind identifies the kind of state record a backend could not provide.
type DataKind uint8

const (
	AccountData DataKind = iota // account nonce, balance and code hash
	StorageData                 // single storage slot
	CodeData                    // contract bytecode by hash
)

func (k DataKind) String() string {
	switch k {
	case AccountData:
		return "account"
	case StorageData:
		return "storage"
	case CodeData:
		return "code"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// MissingDataError is returned by a partial state backend when a record is not
// available locally. Execution does not block on it: the state database keeps
// the first such error, and the caller is expected to fetch the record, insert
// it with the CachingDB.Insert* methods and run the message again.
// MissingDataError 表示本地缺少某条状态记录。执行不会阻塞，调用方取回数据后插入并重新执行。
type MissingDataError struct {
	Kind     DataKind
	Address  common.Address
	Slot     common.Hash // set for StorageData
	CodeHash common.Hash // set for CodeData
}

func (e *MissingDataError) Error() string {
	switch e.Kind {
	case StorageData:
		return fmt.Sprintf("missing storage data: address %x slot %x", e.Address, e.Slot)
	case CodeData:
		return fmt.Sprintf("missing code data: address %x hash %x", e.Address, e.CodeHash)
	default:
		return fmt.Sprintf("missing %v data: address %x", e.Kind, e.Address)
	}
}
