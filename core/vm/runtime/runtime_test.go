// Copyright 2015 The go-ethereum Authors
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

package runtime

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/vm"
	"github.com/sunyihoo/evmsync/core/vm/program"
)

func TestDefaults(t *testing.T) {
	cfg := new(Config)
	setDefaults(cfg)

	assert.NotNil(t, cfg.ChainConfig)
	assert.NotNil(t, cfg.Difficulty)
	assert.NotNil(t, cfg.GasPrice)
	assert.NotNil(t, cfg.Value)
	assert.NotNil(t, cfg.BlockNumber)
	assert.NotNil(t, cfg.GetHashFn)
	assert.NotNil(t, cfg.BaseFee)
	assert.NotNil(t, cfg.BlobBaseFee)
	assert.NotNil(t, cfg.Random)
	assert.NotZero(t, cfg.GasLimit)
}

func TestExecute(t *testing.T) {
	code := program.New().Push(2).Push(3).Op(vm.ADD).ReturnTop().Bytes()
	ret, _, err := Execute(code, nil, &Config{GasLimit: 100000})
	require.NoError(t, err)
	assert.Equal(t, common.LeftPadBytes([]byte{5}, 32), ret)
}

func TestExecuteCallData(t *testing.T) {
	// Return the first calldata word plus one.
	code := program.New().Push(0).Op(vm.CALLDATALOAD).Push(1).Op(vm.ADD).ReturnTop().Bytes()
	ret, _, err := Execute(code, common.LeftPadBytes([]byte{41}, 32), nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), new(big.Int).SetBytes(ret))
}

func TestExecuteReturnsState(t *testing.T) {
	code := program.New().Sstore(1, 0xaa).Bytes()
	_, statedb, err := Execute(code, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash([]byte{0xaa}), statedb.GetState(contractAddress, common.BytesToHash([]byte{1})))
}

func TestCall(t *testing.T) {
	_, statedb, err := Execute(nil, nil, nil)
	require.NoError(t, err)

	target := common.HexToAddress("0x0a")
	statedb.SetCode(target, program.New().Push(7).ReturnTop().Bytes())

	ret, _, err := Call(target, nil, &Config{State: statedb})
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(7).Bytes32(), [32]byte(ret))
}

func TestCreate(t *testing.T) {
	runtimeCode := program.New().Push(9).ReturnTop().Bytes()
	initCode := program.New().ReturnViaCodeCopy(runtimeCode).Bytes()

	cfg := &Config{GasLimit: 1000000}
	ret, addr, _, err := Create(initCode, cfg)
	require.NoError(t, err)
	assert.Equal(t, runtimeCode, ret)
	assert.Equal(t, runtimeCode, cfg.State.GetCode(addr))

	out, _, err := Call(addr, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, common.LeftPadBytes([]byte{9}, 32), out)
}

func TestExecuteRevert(t *testing.T) {
	code := program.New().Sstore(1, 1).Revert(0, 0).Bytes()
	_, statedb, err := Execute(code, nil, nil)
	assert.ErrorIs(t, err, vm.ErrExecutionReverted)
	assert.Equal(t, common.Hash{}, statedb.GetState(contractAddress, common.BytesToHash([]byte{1})))
}
