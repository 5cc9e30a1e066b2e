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

package rlp

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeToBytes(t *testing.T) {
	tests := []struct {
		val    interface{}
		output []byte
	}{
		{uint64(0), []byte{0x80}},
		{uint64(127), []byte{0x7F}},
		{uint64(128), []byte{0x81, 0x80}},
		{uint64(0x0400), []byte{0x82, 0x04, 0x00}},
		{[]byte{}, []byte{0x80}},
		{[]byte{0x7E}, []byte{0x7E}},
		{[]byte{0x80}, []byte{0x81, 0x80}},
		{"dog", []byte{0x83, 'd', 'o', 'g'}},
		{[]interface{}{}, []byte{0xC0}},
		{[]interface{}{"cat", "dog"}, []byte{0xc8, 0x83, 'c', 'a', 't', 0x83, 'd', 'o', 'g'}},
		{big.NewInt(0), []byte{0x80}},
		{uint256.NewInt(0x100), []byte{0x82, 0x01, 0x00}},
		{true, []byte{0x01}},
		{false, []byte{0x80}},
	}
	for i, test := range tests {
		out, err := EncodeToBytes(test.val)
		require.NoError(t, err, "test %d", i)
		assert.Equal(t, test.output, out, "test %d", i)
	}
}

func TestEncodeLongString(t *testing.T) {
	s := bytes.Repeat([]byte{'a'}, 56)
	out, err := EncodeToBytes(s)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xB8, 56}, out[:2])
	assert.Equal(t, s, out[2:])

	content, rest, err := SplitString(out)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, s, content)
}

func TestSplitRoundTrip(t *testing.T) {
	var payload []byte
	payload = AppendUint64(payload, 1024)
	payload = AppendString(payload, []byte("hello"))
	payload = AppendUint256(payload, new(uint256.Int).Lsh(uint256.NewInt(1), 200))
	enc := AppendList(nil, payload)

	content, rest, err := SplitList(enc)
	require.NoError(t, err)
	assert.Empty(t, rest)

	n, err := CountValues(content)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	num, content, err := SplitUint64(content)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), num)

	str, content, err := SplitString(content)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), str)

	word, content, err := SplitUint256(content)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Lsh(uint256.NewInt(1), 200), word)
	assert.Empty(t, content)
}

func TestSplitErrors(t *testing.T) {
	_, _, err := SplitUint64([]byte{0x82, 0x00, 0x01})
	assert.ErrorIs(t, err, ErrCanonInt)

	_, _, err = SplitList([]byte{0x83, 'd', 'o', 'g'})
	assert.ErrorIs(t, err, ErrExpectedList)

	_, _, err = SplitString([]byte{0x81, 0x05})
	assert.ErrorIs(t, err, ErrCanonSize)

	_, _, err = SplitString([]byte{0x85, 'a'})
	assert.ErrorIs(t, err, ErrValueTooLarge)
}
