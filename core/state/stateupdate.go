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

import "github.com/sunyihoo/evmsync/common"

// stateUpdate represents the difference between two states resulting from
// state execution. It contains the encoded post-state of every mutated account,
// keyed by address hash. A nil account or slot blob denotes a deletion.
// stateUpdate 表示状态执行产生的差异，nil 表示删除。
type stateUpdate struct {
	accounts  map[common.Hash][]byte                 // addrHash -> encoded account
	storages  map[common.Hash]map[common.Hash][]byte // addrHash -> slotHash -> encoded slot
	codes     map[common.Hash][]byte                 // codeHash -> code
	destructs map[common.Hash]struct{}               // addrHash of accounts whose storage is wiped
}

func newStateUpdate() *stateUpdate {
	return &stateUpdate{
		accounts:  make(map[common.Hash][]byte),
		storages:  make(map[common.Hash]map[common.Hash][]byte),
		codes:     make(map[common.Hash][]byte),
		destructs: make(map[common.Hash]struct{}),
	}
}

// empty returns a flag indicating the state transition is empty or not.
func (sc *stateUpdate) empty() bool {
	return len(sc.accounts) == 0 && len(sc.codes) == 0 && len(sc.destructs) == 0
}
