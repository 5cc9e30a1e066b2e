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

package params

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/evmsync/params/forks"
)

func TestMainnetLatestFork(t *testing.T) {
	c := MainnetChainConfig
	require.NoError(t, c.CheckConfigForkOrder())

	tests := []struct {
		num  uint64
		time uint64
		want forks.Fork
	}{
		{0, 0, forks.Frontier},
		{1_150_000, 0, forks.Homestead},
		{2_463_000, 0, forks.TangerineWhistle},
		{4_370_000, 0, forks.Byzantium},
		{7_280_000, 0, forks.Petersburg},
		{12_965_000, 0, forks.London},
		{15_537_393, 1681338455, forks.GrayGlacier}, // timestamps ignored before the merge block
		{15_537_394, 0, forks.Paris},
		{17_034_870, 1681338455, forks.Shanghai},
		{19_426_587, 1710338135, forks.Cancun},
		{22_431_084, 1746612311, forks.Prague},
	}
	for _, test := range tests {
		got := c.LatestFork(new(big.Int).SetUint64(test.num), test.time)
		assert.Equal(t, test.want, got, "block %d time %d", test.num, test.time)
	}
}

func TestRulesDerivedFromFork(t *testing.T) {
	r := MainnetChainConfig.Rules(big.NewInt(12_965_000), 0)
	assert.Equal(t, forks.London, r.Fork)
	assert.True(t, r.IsLondon)
	assert.True(t, r.IsBerlin)
	assert.True(t, r.IsEIP158)
	assert.False(t, r.IsMerge)
	assert.False(t, r.IsShanghai)

	r = RulesForFork(forks.Istanbul, big.NewInt(5))
	assert.True(t, r.IsIstanbul)
	assert.False(t, r.IsBerlin)
	assert.Equal(t, int64(5), r.ChainID.Int64())
}

func TestConfigForFork(t *testing.T) {
	c := ConfigForFork(forks.Berlin, big.NewInt(1))
	require.NoError(t, c.CheckConfigForkOrder())
	assert.Equal(t, forks.Berlin, c.LatestFork(big.NewInt(100), 100))
	assert.Nil(t, c.LondonBlock)

	all := TestChainConfig
	assert.Equal(t, forks.Latest, all.LatestFork(big.NewInt(0), 0))
}

func TestCheckConfigForkOrder(t *testing.T) {
	c := ConfigForFork(forks.London, big.NewInt(1))
	c.BerlinBlock = nil
	assert.Error(t, c.CheckConfigForkOrder())

	c = ConfigForFork(forks.London, big.NewInt(1))
	c.BerlinBlock = big.NewInt(10)
	c.LondonBlock = big.NewInt(5)
	assert.Error(t, c.CheckConfigForkOrder())

	// Optional forks may be skipped.
	c = ConfigForFork(forks.London, big.NewInt(1))
	c.MuirGlacierBlock = nil
	assert.NoError(t, c.CheckConfigForkOrder())
}
