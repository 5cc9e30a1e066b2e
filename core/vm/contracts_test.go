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

package vm

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

func precompile(t *testing.T, fork forks.Fork, addr byte) PrecompiledContract {
	t.Helper()
	p, ok := ActivePrecompiledContracts(params.RulesForFork(fork, common.Big1))[common.BytesToAddress([]byte{addr})]
	require.True(t, ok, "precompile %#x missing at %v", addr, fork)
	return p
}

func TestActivePrecompiles(t *testing.T) {
	assert.Len(t, ActivePrecompiles(params.RulesForFork(forks.Homestead, common.Big1)), 4)
	assert.Len(t, ActivePrecompiles(params.RulesForFork(forks.Byzantium, common.Big1)), 5)
	assert.Len(t, ActivePrecompiles(params.RulesForFork(forks.Prague, common.Big1)), 5)

	// The returned set is a copy.
	set := ActivePrecompiledContracts(params.RulesForFork(forks.Berlin, common.Big1))
	delete(set, common.BytesToAddress([]byte{1}))
	assert.Len(t, ActivePrecompiledContracts(params.RulesForFork(forks.Berlin, common.Big1)), 5)
}

func TestSha256Precompile(t *testing.T) {
	p := precompile(t, forks.Prague, 2)
	assert.Equal(t, uint64(60), p.RequiredGas(nil))
	assert.Equal(t, uint64(84), p.RequiredGas(make([]byte, 33)))

	ret, gas, err := RunPrecompiledContract(p, nil, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), gas)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hex.EncodeToString(ret))
}

func TestRipemd160Precompile(t *testing.T) {
	ret, _, err := RunPrecompiledContract(precompile(t, forks.Prague, 3), nil, params.Ripemd160BaseGas)
	require.NoError(t, err)
	require.Len(t, ret, 32)
	assert.Equal(t, make([]byte, 12), ret[:12])
	assert.Equal(t, "9c1185a5c5e9fc54612808977ee8f548b2258d31", hex.EncodeToString(ret[12:]))
}

func TestIdentityPrecompile(t *testing.T) {
	p := precompile(t, forks.Prague, 4)
	input := []byte("hello")
	assert.Equal(t, uint64(18), p.RequiredGas(input))

	ret, gas, err := RunPrecompiledContract(p, input, 18)
	require.NoError(t, err)
	assert.Zero(t, gas)
	assert.Equal(t, input, ret)

	// The output does not alias the input.
	ret[0] = 'j'
	assert.Equal(t, byte('h'), input[0])

	_, _, err = RunPrecompiledContract(p, input, 17)
	assert.ErrorIs(t, err, ErrOutOfGas)
}

func TestEcrecoverPrecompile(t *testing.T) {
	key, err := crypto.HexToKey("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	hash := crypto.Keccak256([]byte("evmsync"))
	sig, err := crypto.Sign(hash, key)
	require.NoError(t, err)

	input := make([]byte, 128)
	copy(input, hash)
	input[63] = sig[64] + 27
	copy(input[64:], sig[:64])

	p := precompile(t, forks.Prague, 1)
	ret, gas, err := RunPrecompiledContract(p, input, params.EcrecoverGas)
	require.NoError(t, err)
	assert.Zero(t, gas)
	assert.Equal(t, common.LeftPadBytes(crypto.KeyToAddress(key).Bytes(), 32), ret)

	// An out of range v yields empty output, not an error.
	input[63] = 29
	ret, _, err = RunPrecompiledContract(p, input, params.EcrecoverGas)
	require.NoError(t, err)
	assert.Empty(t, ret)
}

func TestModExpPrecompile(t *testing.T) {
	// 3 ** 2 mod 5, all lengths one byte.
	input := make([]byte, 96+3)
	input[31], input[63], input[95] = 1, 1, 1
	input[96], input[97], input[98] = 3, 2, 5

	p := precompile(t, forks.Berlin, 5)
	assert.Equal(t, uint64(200), p.RequiredGas(input))
	ret, _, err := RunPrecompiledContract(p, input, 200)
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, ret)

	// Zero modulus returns modLen zero bytes.
	input[98] = 0
	ret, err = p.Run(input)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, ret)

	// Empty base and modulus return nothing.
	ret, err = p.Run(make([]byte, 96))
	require.NoError(t, err)
	assert.Empty(t, ret)
}
