// Copyright 2025 The go-ethereum Authors
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

package vm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/crypto"
)

func u256(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestJumpDestAnalysis(t *testing.T) {
	tests := []struct {
		code  []byte
		exp   byte
		which int
	}{
		{[]byte{byte(PUSH1), 0x01, 0x01, 0x01}, 0b0000_0010, 0},
		{[]byte{byte(PUSH1), byte(PUSH1), byte(PUSH1), byte(PUSH1)}, 0b0000_1010, 0},
		{[]byte{byte(PUSH2), 0x01, 0x01, 0x01}, 0b0000_0110, 0},
		{[]byte{0x00, byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(PUSH1)}, 0b0101_0100, 0},
		{[]byte{byte(PUSH8), 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01}, 0b1111_1110, 0},
		{[]byte{byte(PUSH8), 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01}, 0b0000_0001, 1},
		{[]byte{byte(PUSH32)}, 0b1111_1110, 0},
		{[]byte{byte(PUSH32)}, 0b1111_1111, 2},
		{[]byte{byte(PUSH32)}, 0b0000_0001, 4},
	}
	for i, test := range tests {
		ret := codeBitmap(test.code)
		assert.Equal(t, test.exp, ret[test.which], "test %d: %x", i, test.code)
	}
}

// Tests that a 0x5b byte inside push data is not a jump destination.
func TestJumpDestInPushData(t *testing.T) {
	code := []byte{byte(PUSH1), byte(JUMPDEST), byte(JUMPDEST), byte(STOP)}
	contract := NewContract(testCaller, testContract, nil, 0, NewJumpDestCache(4))
	contract.SetCallCode(crypto.Keccak256Hash(code), code)

	assert.False(t, contract.validJumpdest(u256(1)))
	assert.True(t, contract.validJumpdest(u256(2)))
	assert.False(t, contract.validJumpdest(u256(0)))
	assert.False(t, contract.validJumpdest(u256(100)))
}

// Tests that deployed code is analysed once and served from the cache,
// while initcode never enters it.
func TestJumpDestCache(t *testing.T) {
	cache := NewJumpDestCache(2)
	code := []byte{byte(JUMPDEST), byte(STOP)}
	hash := crypto.Keccak256Hash(code)

	contract := NewContract(testCaller, testContract, nil, 0, cache)
	contract.SetCallCode(hash, code)
	require.True(t, contract.validJumpdest(u256(0)))
	_, ok := cache.Load(hash)
	assert.True(t, ok)

	initcode := NewContract(testCaller, testContract, nil, 0, cache)
	initcode.SetCallCode(common.Hash{}, code)
	require.True(t, initcode.validJumpdest(u256(0)))
	_, ok = cache.Load(common.Hash{})
	assert.False(t, ok)

	// The least recently used analysis is evicted first.
	cache.Store(common.Hash{1}, codeBitmap(code))
	cache.Store(common.Hash{2}, codeBitmap(code))
	_, ok = cache.Load(hash)
	assert.False(t, ok)
	_, ok = cache.Load(common.Hash{2})
	assert.True(t, ok)
}

func TestMemoryExpansionCost(t *testing.T) {
	cost, err := MemoryExpansionCost(0, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(319), cost)

	cost, err = MemoryExpansionCost(100, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(359), cost)

	cost, err = MemoryExpansionCost(200, 100)
	require.NoError(t, err)
	assert.Zero(t, cost)

	_, err = MemoryExpansionCost(0, maxMemoryWords+1)
	assert.ErrorIs(t, err, ErrGasUintOverflow)
}

func TestMemoryGrowsInWords(t *testing.T) {
	mem := NewMemory()
	defer mem.Free()

	fee, err := memoryGasCost(mem, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), fee)
	mem.Resize(32)
	mem.Set32(0, u256(0x2a))
	assert.Equal(t, 32, mem.Len())
	assert.Equal(t, byte(0x2a), mem.GetCopy(31, 1)[0])

	// Staying within the same word is free.
	fee, err = memoryGasCost(mem, 32)
	require.NoError(t, err)
	assert.Zero(t, fee)
}
