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

package vm

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sunyihoo/evmsync/common"
)

// bitvec is a bit vector which maps bytes in a program.
// An unset bit means the byte is an opcode, a set bit means
// it's data (i.e. argument of PUSHxx).
// bitvec 按字节标记程序：置位表示该字节是 PUSH 的立即数，未置位表示是操作码。
type bitvec []byte

func (bits bitvec) set1(pos uint64) {
	bits[pos/8] |= 1 << (pos % 8)
}

// setN marks n consecutive data bytes starting at pos.
func (bits bitvec) setN(pos uint64, n uint64) {
	for ; n > 0 && pos%8 != 0; n, pos = n-1, pos+1 {
		bits.set1(pos)
	}
	for ; n >= 8; n, pos = n-8, pos+8 {
		bits[pos/8] = 0xff
	}
	for ; n > 0; n, pos = n-1, pos+1 {
		bits.set1(pos)
	}
}

// codeSegment checks if the position is in a code segment.
func (bits bitvec) codeSegment(pos uint64) bool {
	return ((bits[pos/8] >> (pos % 8)) & 1) == 0
}

// codeBitmap collects data locations in code with a single forward scan that
// skips over the immediates of every PUSH instruction.
// codeBitmap 单次前向扫描代码，跳过每条 PUSH 指令的立即数区间并将其标记为数据。
func codeBitmap(code []byte) bitvec {
	// The bitmap is 4 bytes longer than necessary, in case the code
	// ends with a PUSH32, the algorithm will set bits on the
	// bitvector outside the bounds of the actual code.
	bits := make(bitvec, len(code)/8+1+4)
	for pc := uint64(0); pc < uint64(len(code)); {
		op := OpCode(code[pc])
		pc++
		if n := op.Immediates(); n > 0 {
			bits.setN(pc, uint64(n))
			pc += uint64(n)
		}
	}
	return bits
}

// JumpDestCache stores the JUMPDEST analysis of deployed code by code hash.
// JumpDestCache 按代码哈希缓存已部署代码的 JUMPDEST 分析结果。
type JumpDestCache interface {
	Load(codeHash common.Hash) (bitvec, bool)
	Store(codeHash common.Hash, vec bitvec)
}

const analysisCacheSize = 4096

// lruJumpDests is an LRU backed JumpDestCache, safe for concurrent use.
type lruJumpDests struct {
	cache *lru.Cache[common.Hash, bitvec]
}

// NewJumpDestCache creates an LRU cache holding up to size analyses.
func NewJumpDestCache(size int) JumpDestCache {
	if size <= 0 {
		size = analysisCacheSize
	}
	cache, _ := lru.New[common.Hash, bitvec](size)
	return &lruJumpDests{cache: cache}
}

func (c *lruJumpDests) Load(codeHash common.Hash) (bitvec, bool) {
	return c.cache.Get(codeHash)
}

func (c *lruJumpDests) Store(codeHash common.Hash, vec bitvec) {
	c.cache.Add(codeHash, vec)
}

// sharedJumpDests is used by every EVM that is not configured with its own cache.
var sharedJumpDests = NewJumpDestCache(analysisCacheSize)
