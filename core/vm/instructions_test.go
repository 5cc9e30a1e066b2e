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
	"github.com/sunyihoo/evmsync/params"
)

const (
	wordMax  = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	wordMin  = "8000000000000000000000000000000000000000000000000000000000000000"
	wordZero = "00"
)

// twoOperandTest describes op(a, b) where a is the top of the stack.
type twoOperandTest struct {
	a, b, expected string
}

func testTwoOperandOp(t *testing.T, tests []twoOperandTest, opFn executionFunc) {
	t.Helper()
	var (
		evm   = NewEVM(BlockContext{BlockNumber: big.NewInt(0)}, nil, params.TestChainConfig, Config{})
		stack = newstack()
		pc    = uint64(0)
		scope = &ScopeContext{Stack: stack}
	)
	for i, test := range tests {
		a := new(uint256.Int).SetBytes(common.FromHex(test.a))
		b := new(uint256.Int).SetBytes(common.FromHex(test.b))
		expected := new(uint256.Int).SetBytes(common.FromHex(test.expected))
		stack.push(b)
		stack.push(a)
		_, err := opFn(&pc, evm.interpreter, scope)
		require.NoError(t, err)
		require.Equal(t, 1, stack.len(), "testcase %d", i)
		actual := stack.pop()
		assert.Equal(t, expected, &actual, "testcase %d: %s, %s", i, test.a, test.b)
	}
}

func TestWrappingArithmetic(t *testing.T) {
	testTwoOperandOp(t, []twoOperandTest{
		{wordMax, "01", wordZero},
		{"02", "03", "05"},
	}, opAdd)
	testTwoOperandOp(t, []twoOperandTest{
		{wordZero, "01", wordMax},
		{"05", "03", "02"},
	}, opSub)
	testTwoOperandOp(t, []twoOperandTest{
		{wordMin, "02", wordZero},
	}, opMul)
	testTwoOperandOp(t, []twoOperandTest{
		{"0a", wordZero, wordZero},
		{"0a", "03", "03"},
	}, opDiv)
	testTwoOperandOp(t, []twoOperandTest{
		{"0a", wordZero, wordZero},
		{"0a", "03", "01"},
	}, opMod)
}

func TestSignedArithmetic(t *testing.T) {
	minusOne := wordMax
	minusTwo := "fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe"
	minusFour := "fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc"

	testTwoOperandOp(t, []twoOperandTest{
		{minusFour, "02", minusTwo},
		{minusFour, wordZero, wordZero},
		// The one overflowing case: -2^255 / -1 wraps back to -2^255.
		{wordMin, minusOne, wordMin},
	}, opSdiv)
	testTwoOperandOp(t, []twoOperandTest{
		{minusFour, "03", minusOne},
		{"04", minusOne, wordZero},
		{minusFour, wordZero, wordZero},
	}, opSmod)
	testTwoOperandOp(t, []twoOperandTest{
		{minusOne, "01", "01"},
		{"01", minusOne, wordZero},
	}, opSlt)
}

// Tests that SAR keeps the sign of negative values where SHR does not.
func TestShiftRight(t *testing.T) {
	minusTwo := "fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe"
	testTwoOperandOp(t, []twoOperandTest{
		{"01", minusTwo, wordMax},
		{"ff", wordMin, wordMax},
		{"0100", wordMin, wordMax},
		{"0100", "7fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", wordZero},
		{"01", "04", "02"},
	}, opSAR)
	testTwoOperandOp(t, []twoOperandTest{
		{"01", minusTwo, "7fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{"ff", wordMin, "01"},
		{"0100", wordMin, wordZero},
		{"01", "04", "02"},
	}, opSHR)
	testTwoOperandOp(t, []twoOperandTest{
		{"01", wordMin, wordZero},
		{"04", "01", "10"},
	}, opSHL)
}

func TestByteAndSignExtend(t *testing.T) {
	value := "1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	testTwoOperandOp(t, []twoOperandTest{
		{wordZero, value, "12"},
		{"1f", value, "ef"},
		{"20", value, wordZero},
		{wordMax, value, wordZero},
	}, opByte)
	testTwoOperandOp(t, []twoOperandTest{
		{wordZero, "ff", wordMax},
		{wordZero, "7f", "7f"},
		{"01", "8000", "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff8000"},
		{"1f", value, value},
		{wordMax, "ff", "ff"},
	}, opSignExtend)
}

func TestAddmodMulmod(t *testing.T) {
	var (
		evm   = NewEVM(BlockContext{BlockNumber: big.NewInt(0)}, nil, params.TestChainConfig, Config{})
		stack = newstack()
		pc    = uint64(0)
		scope = &ScopeContext{Stack: stack}
	)
	// (2^256-1 + 2) mod 3 is computed without intermediate wrapping.
	stack.push(uint256.NewInt(3))
	stack.push(uint256.NewInt(2))
	stack.push(new(uint256.Int).SetAllOne())
	_, err := opAddmod(&pc, evm.interpreter, scope)
	require.NoError(t, err)
	res := stack.pop()
	assert.Equal(t, uint64(2), res.Uint64())

	stack.push(new(uint256.Int))
	stack.push(uint256.NewInt(2))
	stack.push(uint256.NewInt(3))
	_, err = opMulmod(&pc, evm.interpreter, scope)
	require.NoError(t, err)
	res = stack.pop()
	assert.True(t, res.IsZero())
}
