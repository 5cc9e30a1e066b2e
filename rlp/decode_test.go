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
	"io"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type simpleStruct struct {
	A uint64
	B string
}

type optionalStruct struct {
	A uint64
	B uint64 `rlp:"optional"`
	C []byte `rlp:"optional"`
}

type tailStruct struct {
	A    uint64
	Tail []uint64 `rlp:"tail"`
}

type nilStruct struct {
	X *uint64       `rlp:"nil"`
	Y *simpleStruct `rlp:"nil"`
}

type ignoredStruct struct {
	A       uint64
	Skipped string `rlp:"-"`
	B       uint64
}

// sumValue decodes a list of integers into their sum.
type sumValue struct {
	total uint64
}

func (v *sumValue) EncodeRLP() []byte {
	return AppendList(nil, AppendUint64(nil, v.total))
}

func (v *sumValue) DecodeRLP(s *Stream) error {
	if _, err := s.List(); err != nil {
		return err
	}
	for {
		n, err := s.Uint64()
		if err == EOL {
			break
		} else if err != nil {
			return err
		}
		v.total += n
	}
	return s.ListEnd()
}

func TestDecodeBasicValues(t *testing.T) {
	var u uint64
	require.NoError(t, DecodeBytes([]byte{0x82, 0x04, 0x00}, &u))
	assert.Equal(t, uint64(1024), u)

	var small uint8
	require.NoError(t, DecodeBytes([]byte{0x7F}, &small))
	assert.Equal(t, uint8(127), small)

	var s string
	require.NoError(t, DecodeBytes([]byte{0x83, 'd', 'o', 'g'}, &s))
	assert.Equal(t, "dog", s)

	var b bool
	require.NoError(t, DecodeBytes([]byte{0x01}, &b))
	assert.True(t, b)

	var blob []byte
	require.NoError(t, DecodeBytes([]byte{0x82, 0xAA, 0xBB}, &blob))
	assert.Equal(t, []byte{0xAA, 0xBB}, blob)

	var arr [3]byte
	require.NoError(t, DecodeBytes([]byte{0x83, 1, 2, 3}, &arr))
	assert.Equal(t, [3]byte{1, 2, 3}, arr)

	var bi *big.Int
	require.NoError(t, DecodeBytes([]byte{0x82, 0x01, 0x00}, &bi))
	assert.Zero(t, bi.Cmp(big.NewInt(256)))

	var word uint256.Int
	require.NoError(t, DecodeBytes([]byte{0x82, 0x01, 0x00}, &word))
	assert.Equal(t, uint64(256), word.Uint64())

	var list []uint64
	require.NoError(t, DecodeBytes([]byte{0xC3, 0x01, 0x02, 0x03}, &list))
	assert.Equal(t, []uint64{1, 2, 3}, list)

	var iface interface{}
	require.NoError(t, DecodeBytes([]byte{0xC8, 0x83, 'c', 'a', 't', 0x83, 'd', 'o', 'g'}, &iface))
	assert.Equal(t, []interface{}{[]byte("cat"), []byte("dog")}, iface)
}

func TestDecodeErrors(t *testing.T) {
	var u uint64
	assert.EqualError(t, DecodeBytes([]byte{0x00}, &u), "rlp: non-canonical integer (leading zero bytes) for uint64")
	assert.EqualError(t, DecodeBytes([]byte{0x89, 1, 2, 3, 4, 5, 6, 7, 8, 9}, &u), "rlp: input string too long for uint64")
	assert.EqualError(t, DecodeBytes([]byte{0xC0}, &u), "rlp: expected input string or byte for uint64")
	assert.ErrorIs(t, DecodeBytes([]byte{0x05, 0x06}, &u), ErrMoreThanOneValue)
	assert.ErrorIs(t, Decode(bytes.NewReader([]byte{0x05}), u), errNoPointer)
	assert.ErrorIs(t, DecodeBytes([]byte{0x05}, nil), errDecodeIntoNil)

	var arr [4]byte
	assert.EqualError(t, DecodeBytes([]byte{0x83, 1, 2, 3}, &arr), "rlp: input string too short for [4]uint8")

	var st simpleStruct
	assert.EqualError(t, DecodeBytes([]byte{0xC1, 0x01}, &st), "rlp: too few elements for rlp.simpleStruct")
	assert.EqualError(t, DecodeBytes([]byte{0xC3, 0x01, 0x80, 0x02}, &st), "rlp: input list has too many elements for rlp.simpleStruct")

	var nested []simpleStruct
	err := DecodeBytes([]byte{0xC3, 0xC2, 0x01, 0xC0}, &nested)
	assert.EqualError(t, err, "rlp: expected input string or byte for string, decoding into ([]rlp.simpleStruct)[0].B")

	var list []uint64
	assert.ErrorIs(t, DecodeBytes([]byte{0xC3, 0x01, 0x02}, &list), ErrValueTooLarge)
}

func TestStructRoundTrip(t *testing.T) {
	tests := []struct {
		val  interface{}
		enc  []byte
		into interface{}
	}{
		{
			val:  &simpleStruct{A: 3, B: "a"},
			enc:  []byte{0xC2, 0x03, 0x61},
			into: new(simpleStruct),
		},
		{
			val:  &optionalStruct{A: 1},
			enc:  []byte{0xC1, 0x01},
			into: &optionalStruct{B: 9, C: []byte{9}},
		},
		{
			val:  &optionalStruct{A: 1, C: []byte{2}},
			enc:  []byte{0xC3, 0x01, 0x80, 0x02},
			into: new(optionalStruct),
		},
		{
			val:  &tailStruct{A: 1, Tail: []uint64{2, 3}},
			enc:  []byte{0xC3, 0x01, 0x02, 0x03},
			into: new(tailStruct),
		},
		{
			val:  &nilStruct{},
			enc:  []byte{0xC2, 0x80, 0xC0},
			into: new(nilStruct),
		},
		{
			val:  &ignoredStruct{A: 1, Skipped: "x", B: 2},
			enc:  []byte{0xC2, 0x01, 0x02},
			into: new(ignoredStruct),
		},
	}
	for i, test := range tests {
		enc, err := EncodeToBytes(test.val)
		require.NoError(t, err, "test %d", i)
		assert.Equal(t, test.enc, enc, "test %d", i)

		require.NoError(t, DecodeBytes(enc, test.into), "test %d", i)
		if ig, ok := test.into.(*ignoredStruct); ok {
			assert.Equal(t, &ignoredStruct{A: 1, B: 2}, ig)
			continue
		}
		assert.Equal(t, test.val, test.into, "test %d", i)
	}
}

func TestInvalidStructTags(t *testing.T) {
	type tailNotLast struct {
		A []uint64 `rlp:"tail"`
		B uint64
	}
	type optionalGap struct {
		A uint64 `rlp:"optional"`
		B uint64
	}
	type nilNonPointer struct {
		A uint64 `rlp:"nil"`
	}
	_, err := EncodeToBytes(&tailNotLast{})
	assert.ErrorContains(t, err, `"tail"`)
	_, err = EncodeToBytes(&optionalGap{})
	assert.ErrorContains(t, err, "must be optional")
	assert.ErrorContains(t, DecodeBytes([]byte{0xC1, 0x01}, new(nilNonPointer)), "field is not a pointer")
}

func TestCustomCodec(t *testing.T) {
	var sums []sumValue
	input := []byte{0xC6, 0xC2, 0x01, 0x02, 0xC2, 0x03, 0x04}
	require.NoError(t, DecodeBytes(input, &sums))
	require.Len(t, sums, 2)
	assert.Equal(t, uint64(3), sums[0].total)
	assert.Equal(t, uint64(7), sums[1].total)

	enc, err := EncodeToBytes(sums)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC4, 0xC1, 0x03, 0xC1, 0x07}, enc)

	enc, err = EncodeToBytes(sumValue{total: 5})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC1, 0x05}, enc)
}

func TestRawValue(t *testing.T) {
	var items []RawValue
	require.NoError(t, DecodeBytes([]byte{0xC6, 0x01, 0x82, 0xAA, 0xBB, 0xC1, 0x02}, &items))
	assert.Equal(t, []RawValue{{0x01}, {0x82, 0xAA, 0xBB}, {0xC1, 0x02}}, items)

	enc, err := EncodeToBytes(items)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC6, 0x01, 0x82, 0xAA, 0xBB, 0xC1, 0x02}, enc)
}

func TestEncodeNegativeBigInt(t *testing.T) {
	_, err := EncodeToBytes(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrNegativeBigInt)
}

func TestEncodeLongList(t *testing.T) {
	list := make([]string, 20)
	for i := range list {
		list[i] = "abc"
	}
	enc, err := EncodeToBytes(list)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF8, 80}, enc[:2])

	var out []string
	require.NoError(t, DecodeBytes(enc, &out))
	assert.Equal(t, list, out)
}

func TestStreamList(t *testing.T) {
	s := NewStream(bytes.NewReader([]byte{0xC6, 0x01, 0x02, 0xC3, 0x03, 0x04, 0x05}), 0)

	size, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), size)
	for _, want := range []uint64{1, 2} {
		v, err := s.Uint64()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	assert.True(t, s.MoreDataInList())
	raw, err := s.Raw()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC3, 0x03, 0x04, 0x05}, raw)

	_, err = s.Uint64()
	assert.Equal(t, EOL, err)
	require.NoError(t, s.ListEnd())
	assert.Equal(t, errNotInList, s.ListEnd())

	_, _, err = s.Kind()
	assert.Equal(t, io.EOF, err)
}

func TestStreamElemTooLarge(t *testing.T) {
	// The list claims one byte of payload but its element needs three.
	s := NewStream(bytes.NewReader([]byte{0xC1, 0x82, 0x01, 0x02}), 0)
	_, err := s.List()
	require.NoError(t, err)
	_, err = s.Bytes()
	assert.Equal(t, ErrElemTooLarge, err)
}
