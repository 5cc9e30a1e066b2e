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

package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
)

func TestBlockNumberJSONUnmarshal(t *testing.T) {
	tests := []struct {
		input    string
		mustFail bool
		expected BlockNumber
	}{
		{`"0x"`, true, BlockNumber(0)},
		{`"0x0"`, false, BlockNumber(0)},
		{`"0X1"`, false, BlockNumber(1)},
		{`"0x00"`, true, BlockNumber(0)},
		{`"0x01"`, true, BlockNumber(0)},
		{`"0x1"`, false, BlockNumber(1)},
		{`"0x12"`, false, BlockNumber(18)},
		{`"0x7fffffffffffffff"`, false, BlockNumber(0x7fffffffffffffff)},
		{`"0x8000000000000000"`, true, BlockNumber(0)},
		{"0", true, BlockNumber(0)},
		{`"ff"`, true, BlockNumber(0)},
		{`"pending"`, false, PendingBlockNumber},
		{`"latest"`, false, LatestBlockNumber},
		{`"earliest"`, false, EarliestBlockNumber},
		{`"safe"`, false, SafeBlockNumber},
		{`"finalized"`, false, FinalizedBlockNumber},
		{`someString`, true, BlockNumber(0)},
		{`""`, true, BlockNumber(0)},
	}
	for i, test := range tests {
		var num BlockNumber
		err := jsonAPI.Unmarshal([]byte(test.input), &num)
		if test.mustFail {
			assert.Error(t, err, "test %d: %s", i, test.input)
			continue
		}
		require.NoError(t, err, "test %d: %s", i, test.input)
		assert.Equal(t, test.expected, num, "test %d: %s", i, test.input)
	}
}

func TestBlockNumberOrHashUnmarshal(t *testing.T) {
	hash := common.HexToHash("0x02")
	tests := []struct {
		input    string
		mustFail bool
		number   *BlockNumber
		hash     *common.Hash
	}{
		{`"0x0"`, false, blockNumberPtr(0), nil},
		{`"0x12"`, false, blockNumberPtr(18), nil},
		{`"latest"`, false, blockNumberPtr(LatestBlockNumber), nil},
		{`"` + hash.Hex() + `"`, false, nil, &hash},
		{`{"blockNumber":"0x1"}`, false, blockNumberPtr(1), nil},
		{`{"blockHash":"` + hash.Hex() + `"}`, false, nil, &hash},
		{`{"blockNumber":"0x1","blockHash":"` + hash.Hex() + `"}`, true, nil, nil},
		{`"0x123"` + `x`, true, nil, nil},
		{`"notATag"`, true, nil, nil},
	}
	for i, test := range tests {
		var bnh BlockNumberOrHash
		err := jsonAPI.Unmarshal([]byte(test.input), &bnh)
		if test.mustFail {
			assert.Error(t, err, "test %d: %s", i, test.input)
			continue
		}
		require.NoError(t, err, "test %d: %s", i, test.input)
		assert.Equal(t, test.number, bnh.BlockNumber, "test %d", i)
		assert.Equal(t, test.hash, bnh.BlockHash, "test %d", i)
	}
}

func TestBlockNumberOrHashAccessors(t *testing.T) {
	bnh := BlockNumberOrHashWithNumber(LatestBlockNumber)
	num, ok := bnh.Number()
	assert.True(t, ok)
	assert.Equal(t, LatestBlockNumber, num)
	_, ok = bnh.Hash()
	assert.False(t, ok)
	assert.Equal(t, "latest", bnh.String())

	hash := common.HexToHash("0xabcd")
	bnh = BlockNumberOrHashWithHash(hash, true)
	got, ok := bnh.Hash()
	assert.True(t, ok)
	assert.Equal(t, hash, got)
	assert.True(t, bnh.RequireCanonical)
	assert.Equal(t, hash.String(), bnh.String())
}

func TestBlockNumberMarshalText(t *testing.T) {
	tests := []struct {
		number BlockNumber
		want   string
	}{
		{0, "earliest"},
		{1, "0x1"},
		{0x2a, "0x2a"},
		{LatestBlockNumber, "latest"},
		{PendingBlockNumber, "pending"},
		{SafeBlockNumber, "safe"},
		{FinalizedBlockNumber, "finalized"},
	}
	for _, test := range tests {
		text, err := test.number.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, test.want, string(text))
	}
}

func blockNumberPtr(n BlockNumber) *BlockNumber {
	return &n
}
