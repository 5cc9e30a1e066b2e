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

/*
Package rlp implements the RLP serialization format.

The purpose of RLP (Recursive Linear Prefix) is to encode arbitrarily nested arrays of
binary data, and RLP is the main encoding method used to serialize objects in Ethereum.
The only purpose of RLP is to encode structure; encoding specific atomic data types (eg.
strings, ints, floats) is left up to higher-order protocols.

# Encoding Rules

EncodeToBytes uses reflection. Types implementing the Encoder interface produce their
own encoding. Unsigned integers, booleans, strings, byte slices and byte arrays,
big.Int and uint256.Int are encoded as RLP strings. Slices, arrays and structs are
encoded as lists of their elements or public fields. Nil pointers encode as an empty
string or empty list depending on the element type.

# Decoding Rules

Decode, DecodeBytes and Stream.Decode mirror the encoding rules. Struct fields are
decoded in declaration order, integers must be canonical, and values implementing
Decoder read themselves from the Stream. RawValue captures an encoded value without
decoding it.

# Struct Tags

	rlp:"-"          ignores the field.
	rlp:"nil"        decodes an empty value of the element kind as a nil pointer.
	rlp:"optional"   allows the field to be missing at the end of the list; zero
	                 trailing optional fields are omitted when encoding.
	rlp:"tail"       makes the last slice field swallow the remaining list elements.

The Append and Split helpers work on byte slices directly for callers that build or
parse encodings by hand.

Package rlp 实现 RLP 序列化格式。EncodeToBytes 与 Decode 通过反射处理任意类型，
Append/Split 系列函数供手工编解码使用。
*/
package rlp
