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

package common

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashFormat(t *testing.T) {
	h := HexToHash("0x00000000000000000000000000000000000000000000000000000000deadbeef")
	raw := strings.Repeat("00", 28) + "deadbeef"

	assert.Equal(t, raw, fmt.Sprintf("%x", h))
	assert.Equal(t, "0x"+raw, fmt.Sprintf("%#x", h))
	assert.Equal(t, strings.ToUpper(raw), fmt.Sprintf("%X", h))
	assert.Equal(t, "0x"+raw, fmt.Sprintf("%v", h))
	assert.Equal(t, "0x"+raw, fmt.Sprintf("%s", h))
	assert.Equal(t, `"0x`+raw+`"`, fmt.Sprintf("%q", h))
	assert.Equal(t, "[0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 222 173 190 239]", fmt.Sprintf("%d", h))
	assert.Equal(t, "%!o(hash="+raw+")", fmt.Sprintf("%o", h))

	// Formatting through an error keeps the raw digits.
	err := fmt.Errorf("unknown block %x", h)
	assert.Equal(t, "unknown block "+raw, err.Error())
}

func TestAddressFormat(t *testing.T) {
	addr := HexToAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	assert.Equal(t, "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", fmt.Sprintf("%x", addr))
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", fmt.Sprintf("%#x", addr))
	assert.Equal(t, "5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", fmt.Sprintf("%X", addr))
	assert.Equal(t, checksummed, fmt.Sprintf("%v", addr))
	assert.Equal(t, checksummed, fmt.Sprintf("%s", addr))
	assert.Equal(t, `"`+checksummed+`"`, fmt.Sprintf("%q", addr))
	assert.Equal(t, checksummed, addr.Hex())
}
