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
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"reflect"

	"github.com/holiman/uint256"
)

var (
	// EmptyString is the encoding of an empty string.
	EmptyString = []byte{0x80}
	// EmptyList is the encoding of an empty list.
	EmptyList = []byte{0xC0}

	// ErrNegativeBigInt is returned when encoding a negative big integer.
	ErrNegativeBigInt = errors.New("rlp: cannot encode negative big.Int")
)

// Encoder is implemented by types that produce their own RLP encoding.
type Encoder interface {
	EncodeRLP() []byte
}

// AppendUint64 appends the RLP encoding of i to b, and returns the resulting slice.
// AppendUint64 将 i 的 RLP 编码追加到 b。
func AppendUint64(b []byte, i uint64) []byte {
	if i == 0 {
		return append(b, 0x80)
	} else if i < 128 {
		return append(b, byte(i))
	}
	size := (bits.Len64(i) + 7) / 8
	b = append(b, 0x80+byte(size))
	for s := size - 1; s >= 0; s-- {
		b = append(b, byte(i>>(8*uint(s))))
	}
	return b
}

// AppendString appends the RLP encoding of the byte string s to b.
// AppendString 将字节串 s 的 RLP 编码追加到 b。
func AppendString(b []byte, s []byte) []byte {
	if len(s) == 1 && s[0] < 0x80 {
		return append(b, s[0])
	}
	b = appendHead(b, 0x80, 0xB7, uint64(len(s)))
	return append(b, s...)
}

// AppendUint256 appends the RLP encoding of a 256-bit integer to b.
func AppendUint256(b []byte, i *uint256.Int) []byte {
	if i.IsUint64() {
		return AppendUint64(b, i.Uint64())
	}
	return AppendString(b, i.Bytes())
}

// AppendBig appends the RLP encoding of a non-negative big integer to b.
func AppendBig(b []byte, i *big.Int) []byte {
	if i.IsUint64() {
		return AppendUint64(b, i.Uint64())
	}
	return AppendString(b, i.Bytes())
}

// AppendList wraps the already encoded payload into a list header and
// appends it to b.
// AppendList 给已编码的 payload 加上列表头并追加到 b。
func AppendList(b []byte, payload []byte) []byte {
	b = appendHead(b, 0xC0, 0xF7, uint64(len(payload)))
	return append(b, payload...)
}

// EncodeToBytes returns the RLP encoding of val.
//
// Values implementing Encoder produce their own encoding. Otherwise unsigned
// integers, booleans, strings, byte slices and arrays, big.Int and uint256.Int
// are encoded as strings, and slices, arrays and structs as lists. A nil
// pointer encodes as the empty value of its element kind and a nil interface
// as an empty list.
// EncodeToBytes 返回 val 的 RLP 编码：实现 Encoder 的类型自行编码，其余按反射规则编码。
func EncodeToBytes(val interface{}) ([]byte, error) {
	return appendValue(nil, val)
}

func appendValue(b []byte, val interface{}) ([]byte, error) {
	if val == nil {
		return append(b, 0xC0), nil
	}
	rval := reflect.ValueOf(val)
	w, err := cachedWriter(rval.Type())
	if err != nil {
		return nil, err
	}
	return w(b, rval)
}

// makeWriter creates a writer function for the given type.
func makeWriter(typ reflect.Type, ts tags) (writer, error) {
	kind := typ.Kind()
	switch {
	case typ == rawValueType:
		return writeRawValue, nil
	case typ.AssignableTo(reflect.PointerTo(bigInt)):
		return writeBigIntPtr, nil
	case typ.AssignableTo(bigInt):
		return writeBigIntNoPtr, nil
	case typ == reflect.PointerTo(u256Int):
		return writeU256IntPtr, nil
	case typ == u256Int:
		return writeU256IntNoPtr, nil
	case kind == reflect.Ptr:
		return makePtrWriter(typ, ts)
	case reflect.PointerTo(typ).Implements(encoderInterface):
		return makeEncoderWriter(typ), nil
	case isUint(kind):
		return writeUint, nil
	case kind == reflect.Bool:
		return writeBool, nil
	case kind == reflect.String:
		return writeString, nil
	case kind == reflect.Slice && isByte(typ.Elem()):
		return writeBytes, nil
	case kind == reflect.Array && isByte(typ.Elem()):
		return writeByteArray, nil
	case kind == reflect.Slice || kind == reflect.Array:
		return makeSliceWriter(typ, ts)
	case kind == reflect.Struct:
		return makeStructWriter(typ)
	case kind == reflect.Interface:
		return writeInterface, nil
	default:
		return nil, fmt.Errorf("rlp: type %v is not RLP-serializable", typ)
	}
}

func writeRawValue(b []byte, val reflect.Value) ([]byte, error) {
	return append(b, val.Bytes()...), nil
}

func writeUint(b []byte, val reflect.Value) ([]byte, error) {
	return AppendUint64(b, val.Uint()), nil
}

func writeBool(b []byte, val reflect.Value) ([]byte, error) {
	if val.Bool() {
		return append(b, 0x01), nil
	}
	return append(b, 0x80), nil
}

func writeBigIntPtr(b []byte, val reflect.Value) ([]byte, error) {
	ptr := val.Interface().(*big.Int)
	if ptr == nil {
		return append(b, 0x80), nil
	}
	if ptr.Sign() == -1 {
		return nil, ErrNegativeBigInt
	}
	return AppendBig(b, ptr), nil
}

func writeBigIntNoPtr(b []byte, val reflect.Value) ([]byte, error) {
	i := val.Interface().(big.Int)
	if i.Sign() == -1 {
		return nil, ErrNegativeBigInt
	}
	return AppendBig(b, &i), nil
}

func writeU256IntPtr(b []byte, val reflect.Value) ([]byte, error) {
	ptr := val.Interface().(*uint256.Int)
	if ptr == nil {
		return append(b, 0x80), nil
	}
	return AppendUint256(b, ptr), nil
}

func writeU256IntNoPtr(b []byte, val reflect.Value) ([]byte, error) {
	i := val.Interface().(uint256.Int)
	return AppendUint256(b, &i), nil
}

func writeBytes(b []byte, val reflect.Value) ([]byte, error) {
	return AppendString(b, val.Bytes()), nil
}

func writeByteArray(b []byte, val reflect.Value) ([]byte, error) {
	if !val.CanAddr() {
		// Slicing the array requires an addressable value.
		cpy := reflect.New(val.Type()).Elem()
		cpy.Set(val)
		val = cpy
	}
	return AppendString(b, byteArrayBytes(val)), nil
}

func writeString(b []byte, val reflect.Value) ([]byte, error) {
	return AppendString(b, []byte(val.String())), nil
}

func writeInterface(b []byte, val reflect.Value) ([]byte, error) {
	if val.IsNil() {
		// nil interface values encode as an empty list.
		return append(b, 0xC0), nil
	}
	eval := val.Elem()
	w, err := cachedWriter(eval.Type())
	if err != nil {
		return nil, err
	}
	return w(b, eval)
}

func makeSliceWriter(typ reflect.Type, ts tags) (writer, error) {
	etypeinfo := theTC.infoWhileGenerating(typ.Elem(), tags{})
	if etypeinfo.writerErr != nil {
		return nil, etypeinfo.writerErr
	}
	return func(b []byte, val reflect.Value) ([]byte, error) {
		start := len(b)
		var err error
		for i := 0; i < val.Len(); i++ {
			if b, err = etypeinfo.writer(b, val.Index(i)); err != nil {
				return nil, err
			}
		}
		if ts.tail {
			// Tail elements are part of the enclosing list.
			return b, nil
		}
		return wrapList(b, start), nil
	}, nil
}

func makeStructWriter(typ reflect.Type) (writer, error) {
	fields, err := structFields(typ)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.info.writerErr != nil {
			return nil, structFieldError{typ, f.index, f.info.writerErr}
		}
	}
	firstOpt := firstOptionalField(fields)
	return func(b []byte, val reflect.Value) ([]byte, error) {
		// Trailing optional fields holding their zero value are omitted.
		last := len(fields) - 1
		for ; last >= firstOpt; last-- {
			if !val.Field(fields[last].index).IsZero() {
				break
			}
		}
		start := len(b)
		var err error
		for i := 0; i <= last; i++ {
			f := fields[i]
			if b, err = f.info.writer(b, val.Field(f.index)); err != nil {
				return nil, err
			}
		}
		return wrapList(b, start), nil
	}, nil
}

// makePtrWriter writes the element of a pointer. Nil pointers encode as the
// empty string or empty list, depending on the element type and tags.
func makePtrWriter(typ reflect.Type, ts tags) (writer, error) {
	nilEncoding := byte(0xC0)
	if typeNilKind(typ.Elem(), ts) == String {
		nilEncoding = 0x80
	}
	etypeinfo := theTC.infoWhileGenerating(typ.Elem(), tags{})
	if etypeinfo.writerErr != nil {
		return nil, etypeinfo.writerErr
	}
	return func(b []byte, val reflect.Value) ([]byte, error) {
		if val.IsNil() {
			return append(b, nilEncoding), nil
		}
		return etypeinfo.writer(b, val.Elem())
	}, nil
}

func makeEncoderWriter(typ reflect.Type) writer {
	if typ.Implements(encoderInterface) {
		return func(b []byte, val reflect.Value) ([]byte, error) {
			return append(b, val.Interface().(Encoder).EncodeRLP()...), nil
		}
	}
	return func(b []byte, val reflect.Value) ([]byte, error) {
		if !val.CanAddr() {
			// EncodeRLP has a pointer receiver, call it on a copy.
			cpy := reflect.New(val.Type()).Elem()
			cpy.Set(val)
			val = cpy
		}
		return append(b, val.Addr().Interface().(Encoder).EncodeRLP()...), nil
	}
}

// wrapList turns everything written after start into a list payload by
// placing a list header in front of it.
// wrapList 为 b[start:] 插入列表头。
func wrapList(b []byte, start int) []byte {
	size := len(b) - start
	head := appendHead(nil, 0xC0, 0xF7, uint64(size))
	b = append(b, head...)
	copy(b[start+len(head):], b[start:start+size])
	copy(b[start:], head)
	return b
}

// appendHead appends a string or list header for a payload of the given size.
func appendHead(b []byte, smalltag, largetag byte, size uint64) []byte {
	if size < 56 {
		return append(b, smalltag+byte(size))
	}
	sizesize := (bits.Len64(size) + 7) / 8
	b = append(b, largetag+byte(sizesize))
	for s := sizesize - 1; s >= 0; s-- {
		b = append(b, byte(size>>(8*uint(s))))
	}
	return b
}
