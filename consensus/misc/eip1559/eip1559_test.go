// Copyright 2021 The go-ethereum Authors
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

package eip1559

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

func TestCalcBaseFee(t *testing.T) {
	config := params.ConfigForFork(forks.London, big.NewInt(1))
	tests := []struct {
		parentBaseFee   int64
		parentGasLimit  uint64
		parentGasUsed   uint64
		expectedBaseFee int64
	}{
		{params.InitialBaseFee, 20000000, 10000000, params.InitialBaseFee}, // usage == target
		{params.InitialBaseFee, 20000000, 9000000, 987500000},              // usage below target
		{params.InitialBaseFee, 20000000, 11000000, 1012500000},            // usage above target
	}
	for i, test := range tests {
		parent := &types.Header{
			Number:   big.NewInt(32),
			GasLimit: test.parentGasLimit,
			GasUsed:  test.parentGasUsed,
			BaseFee:  big.NewInt(test.parentBaseFee),
		}
		assert.Equal(t, big.NewInt(test.expectedBaseFee), CalcBaseFee(config, parent), "test %d", i)
	}
}

func TestCalcBaseFeeBeforeLondon(t *testing.T) {
	config := params.ConfigForFork(forks.Berlin, big.NewInt(1))
	parent := &types.Header{Number: big.NewInt(1), GasLimit: 8000000}
	assert.Equal(t, big.NewInt(params.InitialBaseFee), CalcBaseFee(config, parent))
}
