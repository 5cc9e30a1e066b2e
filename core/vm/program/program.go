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

// Package program is a small bytecode assembler used to build EVM programs in
// tests. Construction errors panic, so it must not be fed untrusted input.
// program 包是测试用的简易字节码汇编器，构造错误会直接 panic。
package program

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/sunyihoo/evmsync/core/vm"
)

// Program is a simple bytecode container.
type Program struct {
	code []byte
}

// New creates an empty Program.
func New() *Program {
	return &Program{code: make([]byte, 0)}
}

// pushValue emits the shortest PUSHn carrying val. Zero is encoded as
// PUSH1 0 so the output also runs before Shanghai.
func (p *Program) pushValue(val *uint256.Int) {
	if val == nil {
		val = new(uint256.Int)
	}
	b := val.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	p.code = append(p.code, byte(vm.PUSH1)-1+byte(len(b)))
	p.code = append(p.code, b...)
}

// Append appends raw bytes to the code.
func (p *Program) Append(data []byte) *Program {
	p.code = append(p.code, data...)
	return p
}

// Bytes returns the bytecode. It is not a copy.
func (p *Program) Bytes() []byte { return p.code }

// Hex returns the bytecode as a hex string without prefix.
func (p *Program) Hex() string { return fmt.Sprintf("%02x", p.code) }

// Size returns the current code length.
func (p *Program) Size() int { return len(p.code) }

// Op appends the given opcodes.
func (p *Program) Op(ops ...vm.OpCode) *Program {
	for _, op := range ops {
		p.code = append(p.code, byte(op))
	}
	return p
}

// Push appends a PUSHn instruction for val. Integers, big and uint256
// numbers, byte slices and anything with a Bytes method are accepted.
func (p *Program) Push(val any) *Program {
	switch v := val.(type) {
	case int:
		p.pushValue(new(uint256.Int).SetUint64(uint64(v)))
	case uint64:
		p.pushValue(new(uint256.Int).SetUint64(v))
	case uint32:
		p.pushValue(new(uint256.Int).SetUint64(uint64(v)))
	case byte:
		p.pushValue(new(uint256.Int).SetUint64(uint64(v)))
	case *big.Int:
		p.pushValue(uint256.MustFromBig(v))
	case *uint256.Int:
		p.pushValue(v)
	case []byte:
		p.pushValue(new(uint256.Int).SetBytes(v))
	case interface{ Bytes() []byte }:
		p.pushValue(new(uint256.Int).SetBytes(v.Bytes()))
	case nil:
		p.pushValue(nil)
	default:
		panic(fmt.Sprintf("unsupported type %T", v))
	}
	return p
}

// Push0 appends PUSH0.
func (p *Program) Push0() *Program {
	return p.Op(vm.PUSH0)
}

// call emits the shared tail of the CALL family: memory window, optional
// value, target and gas. A nil gas forwards everything via GAS.
func (p *Program) call(op vm.OpCode, gas *uint256.Int, address, value, inOffset, inSize, outOffset, outSize any) *Program {
	p.Push(outSize).Push(outOffset).Push(inSize).Push(inOffset)
	if op == vm.CALL || op == vm.CALLCODE {
		p.Push(value)
	}
	p.Push(address)
	if gas == nil {
		p.Op(vm.GAS)
	} else {
		p.pushValue(gas)
	}
	return p.Op(op)
}

// Call appends a CALL.
func (p *Program) Call(gas *uint256.Int, address, value, inOffset, inSize, outOffset, outSize any) *Program {
	return p.call(vm.CALL, gas, address, value, inOffset, inSize, outOffset, outSize)
}

// CallCode appends a CALLCODE.
func (p *Program) CallCode(gas *uint256.Int, address, value, inOffset, inSize, outOffset, outSize any) *Program {
	return p.call(vm.CALLCODE, gas, address, value, inOffset, inSize, outOffset, outSize)
}

// DelegateCall appends a DELEGATECALL.
func (p *Program) DelegateCall(gas *uint256.Int, address, inOffset, inSize, outOffset, outSize any) *Program {
	return p.call(vm.DELEGATECALL, gas, address, nil, inOffset, inSize, outOffset, outSize)
}

// StaticCall appends a STATICCALL.
func (p *Program) StaticCall(gas *uint256.Int, address, inOffset, inSize, outOffset, outSize any) *Program {
	return p.call(vm.STATICCALL, gas, address, nil, inOffset, inSize, outOffset, outSize)
}

// Label returns the pc of the next instruction.
func (p *Program) Label() uint64 {
	return uint64(len(p.code))
}

// Jumpdest appends a JUMPDEST and returns its pc.
func (p *Program) Jumpdest() (*Program, uint64) {
	here := p.Label()
	p.Op(vm.JUMPDEST)
	return p, here
}

// Jump appends an unconditional jump to loc.
func (p *Program) Jump(loc any) *Program {
	return p.Push(loc).Op(vm.JUMP)
}

// JumpIf appends a jump to loc taken when condition is non-zero.
func (p *Program) JumpIf(loc any, condition any) *Program {
	return p.Push(condition).Push(loc).Op(vm.JUMPI)
}

// Mstore writes data into memory starting at memStart, a word at a time
// and byte-wise for the tail.
// Mstore 将数据写入内存：整字用 MSTORE，尾部字节用 MSTORE8。
func (p *Program) Mstore(data []byte, memStart uint32) *Program {
	idx := 0
	for ; idx+32 <= len(data); idx += 32 {
		p.Push(data[idx : idx+32]).Push(uint32(idx) + memStart).Op(vm.MSTORE)
	}
	for ; idx < len(data); idx++ {
		p.Push(data[idx]).Push(uint32(idx) + memStart).Op(vm.MSTORE8)
	}
	return p
}

// Sstore appends SSTORE(slot, value).
func (p *Program) Sstore(slot any, value any) *Program {
	return p.Push(value).Push(slot).Op(vm.SSTORE)
}

// Sload appends SLOAD(slot).
func (p *Program) Sload(slot any) *Program {
	return p.Push(slot).Op(vm.SLOAD)
}

// Tstore appends TSTORE(slot, value).
func (p *Program) Tstore(slot any, value any) *Program {
	return p.Push(value).Push(slot).Op(vm.TSTORE)
}

// Return appends RETURN(offset, size).
func (p *Program) Return(offset, size int) *Program {
	return p.Push(size).Push(offset).Op(vm.RETURN)
}

// ReturnData stores data at memory zero and returns it.
func (p *Program) ReturnData(data []byte) *Program {
	return p.Mstore(data, 0).Return(0, len(data))
}

// ReturnTop stores the top stack word at memory zero and returns it.
func (p *Program) ReturnTop() *Program {
	return p.Push(0).Op(vm.MSTORE).Return(0, 32)
}

// Revert appends REVERT(offset, size).
func (p *Program) Revert(offset, size int) *Program {
	return p.Push(size).Push(offset).Op(vm.REVERT)
}

// ReturnViaCodeCopy returns data appended after the program body, which is
// the usual shape of initcode deploying a fixed runtime.
// ReturnViaCodeCopy 生成典型的部署代码：通过 CODECOPY 拷贝附加在末尾的运行时代码并返回。
func (p *Program) ReturnViaCodeCopy(data []byte) *Program {
	p.Push(len(data))
	p.Op(vm.PUSH2)
	offsetPos := p.Size()
	p.Append([]byte{0, 0})
	p.Push(0)
	p.Op(vm.CODECOPY)
	p.Return(0, len(data))
	offset := p.Size()
	p.Append(data)

	p.code[offsetPos] = byte(offset >> 8)
	p.code[offsetPos+1] = byte(offset)
	return p
}

// Create2 places code in memory and runs CREATE2 with the given salt,
// leaving the new address on the stack.
func (p *Program) Create2(code []byte, salt any) *Program {
	p.Mstore(code, 0)
	return p.Push(salt).Push(len(code)).Push(0).Push(0).Op(vm.CREATE2)
}

// Selfdestruct appends SELFDESTRUCT(beneficiary).
func (p *Program) Selfdestruct(beneficiary any) *Program {
	return p.Push(beneficiary).Op(vm.SELFDESTRUCT)
}
