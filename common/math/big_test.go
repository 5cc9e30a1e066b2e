// Copyright 2017 The go-ethereum Authors
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

package math

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeArithmetic(t *testing.T) {
	_, overflow := SafeAdd(MaxUint64, 1)
	assert.True(t, overflow)
	sum, overflow := SafeAdd(1, 2)
	assert.False(t, overflow)
	assert.Equal(t, uint64(3), sum)

	_, overflow = SafeMul(1<<33, 1<<33)
	assert.True(t, overflow)
	_, overflow = SafeSub(1, 2)
	assert.True(t, overflow)
}

func TestSignedRoundTrip(t *testing.T) {
	values := []*big.Int{
		big.NewInt(0), big.NewInt(1), big.NewInt(-1),
		new(big.Int).Neg(BigPow(2, 255)),
		new(big.Int).Sub(BigPow(2, 255), big.NewInt(1)),
		big.NewInt(-123456789),
	}
	for _, x := range values {
		u := U256(new(big.Int).Set(x))
		assert.True(t, u.Sign() >= 0, "U256(%v) negative", x)
		assert.Equal(t, 0, S256(u).Cmp(x), "round trip of %v", x)
	}
}

func TestParseUint64(t *testing.T) {
	tests := []struct {
		input string
		num   uint64
		ok    bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"0x0", 0, true},
		{"12345678", 12345678, true},
		{"0x12345678", 0x12345678, true},
		{"0X12345678", 0x12345678, true},
		{"0123456789", 123456789, true},
		{"0x", 0, false},
		{"0x0x", 0, false},
		{"ffffffffffffffff", 0, false},
	}
	for _, test := range tests {
		num, ok := ParseUint64(test.input)
		assert.Equal(t, test.ok, ok, test.input)
		if ok {
			assert.Equal(t, test.num, num, test.input)
		}
	}
}

func TestParseBig256(t *testing.T) {
	tests := []struct {
		input string
		num   *big.Int
		ok    bool
	}{
		{"", big.NewInt(0), true},
		{"0", big.NewInt(0), true},
		{"0x0", big.NewInt(0), true},
		{"12345678", big.NewInt(12345678), true},
		{"0x12345678", big.NewInt(0x12345678), true},
		{"0X12345678", big.NewInt(0x12345678), true},
		{"0x", nil, false},
		{"0x0x", nil, false},
		{"0x" + "ff" + "0000000000000000000000000000000000000000000000000000000000000000", nil, false},
		{"0x" + "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", tt256m1, true},
	}
	for _, test := range tests {
		num, ok := ParseBig256(test.input)
		assert.Equal(t, test.ok, ok, test.input)
		if ok {
			assert.Equal(t, 0, test.num.Cmp(num), test.input)
		}
	}
}
