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
	"fmt"
	"maps"
	"math/big"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"
)

// typeinfo is an entry in the type cache.
type typeinfo struct {
	decoder    decoder
	decoderErr error // error from makeDecoder
	writer     writer
	writerErr  error // error from makeWriter
}

// tags represents struct tags.
// tags 表示结构体字段上的 rlp 标签。
type tags struct {
	// rlp:"nil" controls whether empty input results in a nil pointer.
	// nilKind is the kind of empty value allowed for the field.
	nilKind Kind
	nilOK   bool

	// rlp:"optional" allows for a field to be missing in the input list.
	// If this is set, all subsequent fields must also be optional.
	optional bool

	// rlp:"tail" controls whether this field swallows additional list elements. It can
	// only be set for the last field, which must be of slice type.
	tail bool

	// rlp:"-" ignores fields.
	ignored bool
}

// typekey is the key of a type in typeCache. It includes the struct tags because
// they might generate a different decoder.
type typekey struct {
	reflect.Type
	tags
}

type decoder func(*Stream, reflect.Value) error

type writer func([]byte, reflect.Value) ([]byte, error)

var theTC = newTypeCache()

// typeCache holds the decoders and writers generated so far. Readers load the
// current map without locking, generation copies it under mu.
// typeCache 缓存已生成的编解码器：读取无锁，生成时在互斥锁下复制整个映射。
type typeCache struct {
	cur atomic.Value

	// This lock synchronizes writers.
	mu   sync.Mutex
	next map[typekey]*typeinfo
}

func newTypeCache() *typeCache {
	c := new(typeCache)
	c.cur.Store(make(map[typekey]*typeinfo))
	return c
}

func cachedDecoder(typ reflect.Type) (decoder, error) {
	info := theTC.info(typ)
	return info.decoder, info.decoderErr
}

func cachedWriter(typ reflect.Type) (writer, error) {
	info := theTC.info(typ)
	return info.writer, info.writerErr
}

func (c *typeCache) info(typ reflect.Type) *typeinfo {
	key := typekey{Type: typ}
	if info := c.cur.Load().(map[typekey]*typeinfo)[key]; info != nil {
		return info
	}
	// Not in the cache, need to generate info for this type.
	return c.generate(typ, tags{})
}

func (c *typeCache) generate(typ reflect.Type, tags tags) *typeinfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur.Load().(map[typekey]*typeinfo)
	if info := cur[typekey{typ, tags}]; info != nil {
		return info
	}
	c.next = maps.Clone(cur)
	info := c.infoWhileGenerating(typ, tags)
	c.cur.Store(c.next)
	c.next = nil
	return info
}

// infoWhileGenerating returns the entry of typ, creating it if needed. The
// entry is registered before it is filled so recursive types resolve to it.
func (c *typeCache) infoWhileGenerating(typ reflect.Type, tags tags) *typeinfo {
	key := typekey{typ, tags}
	if info := c.next[key]; info != nil {
		return info
	}
	info := new(typeinfo)
	c.next[key] = info
	info.generate(typ, tags)
	return info
}

func (i *typeinfo) generate(typ reflect.Type, tags tags) {
	i.decoder, i.decoderErr = makeDecoder(typ, tags)
	i.writer, i.writerErr = makeWriter(typ, tags)
}

type field struct {
	index    int
	info     *typeinfo
	optional bool
}

// structFields resolves the typeinfo of all public fields in a struct type.
// structFields 解析结构体所有导出字段的编解码信息。
func structFields(typ reflect.Type) (fields []field, err error) {
	var (
		lastPublic  = lastPublicField(typ)
		anyOptional bool
		firstOpt    string
	)
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		ts, err := parseTag(typ, f, i, lastPublic)
		if err != nil {
			return nil, err
		}
		if ts.ignored {
			continue
		}
		if anyOptional && !ts.optional && !ts.tail {
			return nil, fmt.Errorf("rlp: invalid struct tag for %v.%s (must be optional because preceding field %q is optional)", typ, f.Name, firstOpt)
		}
		if ts.optional && !anyOptional {
			anyOptional, firstOpt = true, f.Name
		}
		info := theTC.infoWhileGenerating(f.Type, ts)
		fields = append(fields, field{i, info, ts.optional})
	}
	return fields, nil
}

// firstOptionalField returns the index of the first field with "optional" tag.
func firstOptionalField(fields []field) int {
	for i, f := range fields {
		if f.optional {
			return i
		}
	}
	return len(fields)
}

type structFieldError struct {
	typ   reflect.Type
	field int
	err   error
}

func (e structFieldError) Error() string {
	return fmt.Sprintf("%v (struct field %v.%s)", e.err, e.typ, e.typ.Field(e.field).Name)
}

func parseTag(typ reflect.Type, f reflect.StructField, index, lastPublic int) (tags, error) {
	var ts tags
	for _, t := range strings.Split(f.Tag.Get("rlp"), ",") {
		switch t = strings.TrimSpace(t); t {
		case "":
		case "-":
			ts.ignored = true
		case "nil", "nilString", "nilList":
			ts.nilOK = true
			if f.Type.Kind() != reflect.Ptr {
				return ts, fmt.Errorf("rlp: invalid struct tag %q for %v.%s (field is not a pointer)", t, typ, f.Name)
			}
			switch t {
			case "nil":
				ts.nilKind = defaultNilKind(f.Type.Elem())
			case "nilString":
				ts.nilKind = String
			case "nilList":
				ts.nilKind = List
			}
		case "optional":
			if ts.tail {
				return ts, fmt.Errorf(`rlp: invalid struct tag "optional" for %v.%s (also has "tail" tag)`, typ, f.Name)
			}
			ts.optional = true
		case "tail":
			if index != lastPublic {
				return ts, fmt.Errorf(`rlp: invalid struct tag "tail" for %v.%s (must be on last field)`, typ, f.Name)
			}
			if ts.optional {
				return ts, fmt.Errorf(`rlp: invalid struct tag "tail" for %v.%s (also has "optional" tag)`, typ, f.Name)
			}
			if f.Type.Kind() != reflect.Slice {
				return ts, fmt.Errorf(`rlp: invalid struct tag "tail" for %v.%s (field type is not slice)`, typ, f.Name)
			}
			ts.tail = true
		default:
			return ts, fmt.Errorf("rlp: unknown struct tag %q on %v.%s", t, typ, f.Name)
		}
	}
	return ts, nil
}

func lastPublicField(typ reflect.Type) int {
	last := 0
	for i := 0; i < typ.NumField(); i++ {
		if typ.Field(i).IsExported() {
			last = i
		}
	}
	return last
}

// defaultNilKind determines whether a nil pointer to typ encodes/decodes
// as an empty string or empty list.
// defaultNilKind 决定指向 typ 的空指针编码为空字符串还是空列表。
func defaultNilKind(typ reflect.Type) Kind {
	k := typ.Kind()
	if isUint(k) || k == reflect.String || k == reflect.Bool || isByteArray(typ) ||
		typ == bigInt || typ == u256Int {
		return String
	}
	return List
}

func typeNilKind(typ reflect.Type, ts tags) Kind {
	if ts.nilOK {
		return ts.nilKind
	}
	return defaultNilKind(typ)
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isByte(typ reflect.Type) bool {
	return typ.Kind() == reflect.Uint8 && !typ.Implements(encoderInterface)
}

func isByteArray(typ reflect.Type) bool {
	return (typ.Kind() == reflect.Slice || typ.Kind() == reflect.Array) && isByte(typ.Elem())
}

var (
	encoderInterface = reflect.TypeOf(new(Encoder)).Elem()
	decoderInterface = reflect.TypeOf(new(Decoder)).Elem()
	rawValueType     = reflect.TypeOf(RawValue{})
	bigInt           = reflect.TypeOf(big.Int{})
	u256Int          = reflect.TypeOf(uint256.Int{})
)
