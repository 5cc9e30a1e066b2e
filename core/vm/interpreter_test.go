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
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

var (
	testCaller   = common.HexToAddress("0xca11e4")
	testContract = common.HexToAddress("0xc0de")
)

func newTestEVM(fork forks.Fork) (*EVM, *state.StateDB) {
	statedb := state.New(state.NewDatabase(rawdb.NewMemoryDatabase()))
	ctx := BlockContext{
		CanTransfer: func(db StateDB, addr common.Address, amount *uint256.Int) bool {
			return db.GetBalance(addr).Cmp(amount) >= 0
		},
		Transfer: func(db StateDB, sender, recipient common.Address, amount *uint256.Int) {
			db.SubBalance(sender, amount)
			db.AddBalance(recipient, amount)
		},
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		BlockNumber: big.NewInt(1),
		Difficulty:  new(big.Int),
		GasLimit:    params.GenesisGasLimit,
		BaseFee:     big.NewInt(params.InitialBaseFee),
		BlobBaseFee: big.NewInt(1),
		Random:      &common.Hash{},
	}
	evm := NewEVM(ctx, statedb, params.ConfigForFork(fork, big.NewInt(1)), Config{})
	evm.SetTxContext(TxContext{Origin: testCaller, GasPrice: new(big.Int)})
	return evm, statedb
}

// runCode installs code at testContract and calls it with gas.
func runCode(t *testing.T, fork forks.Fork, code []byte, gas uint64) ([]byte, uint64, error) {
	t.Helper()
	evm, statedb := newTestEVM(fork)
	statedb.SetCode(testContract, code)
	rules := evm.Rules()
	statedb.Prepare(rules, testCaller, common.Address{}, &testContract, ActivePrecompiles(rules), nil)
	return evm.Call(testCaller, testContract, nil, gas, new(uint256.Int))
}

// Tests the basic arithmetic program: 2 + 3 stored to memory and returned.
func TestInterpreterAddAndReturn(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x02, byte(PUSH1), 0x03, byte(ADD),
		byte(PUSH1), 0x00, byte(MSTORE),
		byte(PUSH1), 0x20, byte(PUSH1), 0x00, byte(RETURN),
	}
	ret, left, err := runCode(t, forks.Prague, code, 100000)
	require.NoError(t, err)
	require.Len(t, ret, 32)
	assert.Equal(t, uint64(5), new(uint256.Int).SetBytes(ret).Uint64())
	// Five pushes, ADD, MSTORE and one word of memory.
	assert.Equal(t, uint64(100000-24), left)
}

func TestInterpreterFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		gas  uint64
		want error
	}{
		{"out of gas", []byte{byte(PUSH1), 0x01, byte(PUSH1), 0x01, byte(ADD)}, 8, ErrOutOfGas},
		{"jump into push data", []byte{byte(PUSH1), 0x5b, byte(PUSH1), 0x01, byte(JUMP)}, 100000, ErrInvalidJump},
		{"jump past code", []byte{byte(PUSH1), 0xff, byte(JUMP)}, 100000, ErrInvalidJump},
		{"memory overflow", []byte{byte(PUSH1), 0x01, byte(PUSH8), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, byte(MSTORE)}, 100000, ErrGasUintOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, left, err := runCode(t, forks.Prague, tt.code, tt.gas)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, left)
		})
	}
	t.Run("stack underflow", func(t *testing.T) {
		_, left, err := runCode(t, forks.Prague, []byte{byte(ADD)}, 100000)
		var underflow *ErrStackUnderflow
		assert.ErrorAs(t, err, &underflow)
		assert.Zero(t, left)
	})
	t.Run("invalid opcode", func(t *testing.T) {
		_, _, err := runCode(t, forks.Prague, []byte{0xfe}, 100000)
		var invalid *ErrInvalidOpCode
		assert.ErrorAs(t, err, &invalid)
	})
	t.Run("push0 before shanghai", func(t *testing.T) {
		_, _, err := runCode(t, forks.London, []byte{byte(PUSH0)}, 100000)
		var invalid *ErrInvalidOpCode
		assert.ErrorAs(t, err, &invalid)

		_, _, err = runCode(t, forks.Shanghai, []byte{byte(PUSH0)}, 100000)
		assert.NoError(t, err)
	})
}

func TestInterpreterValidJump(t *testing.T) {
	code := []byte{byte(PUSH1), 0x04, byte(JUMP), byte(INVALID), byte(JUMPDEST), byte(STOP)}
	_, _, err := runCode(t, forks.Prague, code, 100000)
	assert.NoError(t, err)
}

func TestRevertKeepsGas(t *testing.T) {
	code := []byte{byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(REVERT)}
	_, left, err := runCode(t, forks.Prague, code, 100000)
	assert.ErrorIs(t, err, ErrExecutionReverted)
	assert.Equal(t, uint64(100000-6), left)
}

func TestStaticCallWriteProtection(t *testing.T) {
	evm, statedb := newTestEVM(forks.Prague)
	statedb.SetCode(testContract, []byte{byte(PUSH1), 0x01, byte(PUSH1), 0x00, byte(SSTORE)})
	_, left, err := evm.StaticCall(testCaller, testContract, nil, 100000)
	assert.ErrorIs(t, err, ErrWriteProtection)
	assert.Zero(t, left)
	assert.Equal(t, common.Hash{}, statedb.GetState(testContract, common.Hash{}))
}

// Tests that storage written by a reverted frame is rolled back while the
// caller's own writes survive.
func TestNestedRevertRollsBackStorage(t *testing.T) {
	evm, statedb := newTestEVM(forks.Prague)
	inner := common.HexToAddress("0x1111")
	statedb.SetCode(inner, []byte{
		byte(PUSH1), 0x01, byte(PUSH1), 0x00, byte(SSTORE),
		byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(REVERT),
	})
	outer := []byte{
		byte(PUSH1), 0x02, byte(PUSH1), 0x00, byte(SSTORE),
		// CALL(gas, inner, 0, 0, 0, 0, 0)
		byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(PUSH1), 0x00, byte(PUSH1), 0x00,
		byte(PUSH2), 0x11, 0x11, byte(GAS), byte(CALL),
		// Store the call status in slot 1.
		byte(PUSH1), 0x01, byte(SSTORE),
	}
	statedb.SetCode(testContract, outer)
	_, _, err := evm.Call(testCaller, testContract, nil, 200000, new(uint256.Int))
	require.NoError(t, err)

	assert.Equal(t, common.BigToHash(big.NewInt(2)), statedb.GetState(testContract, common.Hash{}))
	assert.Equal(t, common.Hash{}, statedb.GetState(testContract, common.BigToHash(big.NewInt(1))))
	assert.Equal(t, common.Hash{}, statedb.GetState(inner, common.Hash{}))
}

// Tests that the abort flag stops a running loop.
func TestInterpreterCancel(t *testing.T) {
	evm, statedb := newTestEVM(forks.Prague)
	statedb.SetCode(testContract, []byte{byte(JUMPDEST), byte(PUSH1), 0x00, byte(JUMP)})
	evm.Cancel()
	assert.True(t, evm.Cancelled())
	_, _, err := evm.Call(testCaller, testContract, nil, 1_000_000, new(uint256.Int))
	assert.ErrorIs(t, err, errAborted)
}

func TestCreateDeploysCode(t *testing.T) {
	evm, statedb := newTestEVM(forks.Prague)
	statedb.SetBalance(testCaller, uint256.NewInt(1))
	runtime := []byte{byte(PUSH1), 0x2a, byte(PUSH1), 0x00, byte(MSTORE), byte(PUSH1), 0x20, byte(PUSH1), 0x00, byte(RETURN)}
	// Initcode copying the runtime from its own tail.
	initcode := append([]byte{
		byte(PUSH1), byte(len(runtime)), byte(PUSH1), 0x0c, byte(PUSH1), 0x00, byte(CODECOPY),
		byte(PUSH1), byte(len(runtime)), byte(PUSH1), 0x00, byte(RETURN),
	}, runtime...)
	_, addr, _, err := evm.Create(testCaller, initcode, 200000, uint256.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, runtime, statedb.GetCode(addr))
	assert.Equal(t, uint64(1), statedb.GetNonce(testCaller))
	assert.Equal(t, uint64(1), statedb.GetNonce(addr))
	assert.Equal(t, uint256.NewInt(1), statedb.GetBalance(addr))

	ret, _, err := evm.Call(testCaller, addr, nil, 100000, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2a), new(uint256.Int).SetBytes(ret).Uint64())
}
