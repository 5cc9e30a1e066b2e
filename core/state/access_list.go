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

package state

import (
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/sunyihoo/evmsync/common"
)

// accessList tracks the addresses and storage slots warmed during the current
// transaction. Membership is monotonic within a transaction: entries are never
// removed by a call revert, only by starting a new transaction.
// accessList 记录当前交易中已预热的地址和存储槽。交易内只增不减，调用回滚不会移除条目。
type accessList struct {
	addresses map[common.Address]mapset.Set[common.Hash] // nil set means no slots yet
}

func newAccessList() *accessList {
	return &accessList{
		addresses: make(map[common.Address]mapset.Set[common.Hash]),
	}
}

// ContainsAddress returns true if the address is in the access list.
func (al *accessList) ContainsAddress(address common.Address) bool {
	_, ok := al.addresses[address]
	return ok
}

// Contains checks if a slot within an account is present in the access list,
// returning separate flags for the presence of the account and the slot
// respectively.
func (al *accessList) Contains(address common.Address, slot common.Hash) (addressPresent bool, slotPresent bool) {
	slots, ok := al.addresses[address]
	if !ok {
		return false, false
	}
	if slots == nil {
		return true, false
	}
	return true, slots.Contains(slot)
}

// Copy creates an independent copy of an accessList.
func (al *accessList) Copy() *accessList {
	cp := newAccessList()
	for addr, slots := range al.addresses {
		if slots != nil {
			slots = slots.Clone()
		}
		cp.addresses[addr] = slots
	}
	return cp
}

// AddAddress adds an address to the access list, and returns 'true' if the
// operation caused a change (addr was not previously in the list).
func (al *accessList) AddAddress(address common.Address) bool {
	if _, present := al.addresses[address]; present {
		return false
	}
	al.addresses[address] = nil
	return true
}

// AddSlot adds the specified (addr, slot) combo to the access list.
// Return values are:
// - address added
// - slot added
func (al *accessList) AddSlot(address common.Address, slot common.Hash) (addrChange bool, slotChange bool) {
	slots, addrPresent := al.addresses[address]
	if slots == nil {
		slots = mapset.NewThreadUnsafeSet[common.Hash]()
		al.addresses[address] = slots
	}
	return !addrPresent, slots.Add(slot)
}

// PrettyPrint prints the contents of the access list in a human-readable form
func (al *accessList) PrettyPrint() string {
	out := new(strings.Builder)
	var sortedAddrs []common.Address
	for addr := range al.addresses {
		sortedAddrs = append(sortedAddrs, addr)
	}
	slices.SortFunc(sortedAddrs, common.Address.Cmp)
	for _, addr := range sortedAddrs {
		fmt.Fprintf(out, "%#x\n", addr)
		if slots := al.addresses[addr]; slots != nil {
			keys := slots.ToSlice()
			slices.SortFunc(keys, common.Hash.Cmp)
			for _, h := range keys {
				fmt.Fprintf(out, "    %#x\n", h)
			}
		}
	}
	return out.String()
}
