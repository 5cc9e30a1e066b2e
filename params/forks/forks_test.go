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

package forks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkOrdering(t *testing.T) {
	assert.True(t, London.IsAtLeast(Berlin))
	assert.True(t, London.IsAtLeast(London))
	assert.False(t, Berlin.IsAtLeast(London))
	assert.True(t, Latest.IsAtLeast(Cancun))

	for f := Frontier; f < Latest; f++ {
		assert.True(t, (f + 1).IsAtLeast(f), "%v after %v", f+1, f)
		assert.NotContains(t, f.String(), "Fork(")
	}
}

func TestParse(t *testing.T) {
	f, err := Parse("london")
	require.NoError(t, err)
	assert.Equal(t, London, f)

	f, err = Parse("Merge")
	require.NoError(t, err)
	assert.Equal(t, Paris, f)

	_, err = Parse("osaka-next")
	assert.Error(t, err)
}
