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

package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/evmsync/common"
)

const testPrivHex = "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"

func TestKeccak256Hash(t *testing.T) {
	msg := []byte("abc")
	exp, _ := hex.DecodeString("4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45")
	assert.Equal(t, exp, Keccak256(msg))
	assert.Equal(t, common.BytesToHash(exp), Keccak256Hash(msg))
}

func TestEmptyCodeHash(t *testing.T) {
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256Hash(nil).Hex())
}

func TestCreateAddress(t *testing.T) {
	// Widely cited CREATE vectors for sender 0x6ac7ea33f8831ea9dcc53393aaa88b25a785dbf0.
	sender := common.HexToAddress("0x6ac7ea33f8831ea9dcc53393aaa88b25a785dbf0")
	assert.Equal(t, common.HexToAddress("0xcd234a471b72ba2f1ccf0a70fcaba648a5eecd8d"), CreateAddress(sender, 0))
	assert.Equal(t, common.HexToAddress("0x343c43a37d37dff08ae8c4a11544c718abb4fcf8"), CreateAddress(sender, 1))
}

func TestCreateAddress2(t *testing.T) {
	// EIP-1014 example 0
	addr := CreateAddress2(common.Address{}, [32]byte{}, Keccak256([]byte{0x00}))
	assert.Equal(t, common.HexToAddress("0x4D1A2e2bB4F88F0250f26Ffff098B0b30B26BF38"), addr)
}

func TestSignAndRecover(t *testing.T) {
	key, err := HexToKey(testPrivHex)
	require.NoError(t, err)
	addr := KeyToAddress(key)
	assert.Equal(t, common.HexToAddress("0x970E8128AB834E8EAC17Ab8E3812F010678CF791"), addr)

	msg := Keccak256([]byte("foo"))
	sig, err := Sign(msg, key)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)

	recovered, err := RecoverAddress(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)

	_, err = Ecrecover(msg, sig[:64])
	assert.Error(t, err)
}

func TestValidateSignatureValues(t *testing.T) {
	one := uint256.NewInt(1)
	zero := uint256.NewInt(0)
	assert.True(t, ValidateSignatureValues(0, one, one, true))
	assert.True(t, ValidateSignatureValues(1, one, one, true))
	assert.False(t, ValidateSignatureValues(2, one, one, true))
	assert.False(t, ValidateSignatureValues(0, zero, one, true))
	assert.False(t, ValidateSignatureValues(0, one, zero, true))

	// s just above half N is only allowed before homestead
	upper := new(uint256.Int).AddUint64(secp256k1halfN, 1)
	assert.False(t, ValidateSignatureValues(0, one, upper, true))
	assert.True(t, ValidateSignatureValues(0, one, upper, false))
	assert.False(t, ValidateSignatureValues(0, secp256k1N, one, false))
}
