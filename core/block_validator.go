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

package core

import (
	"fmt"

	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/params"
)

// BlockValidator is responsible for validating block bodies and processed
// state.
//
// BlockValidator implements Validator.
// BlockValidator 负责校验区块体以及执行后的结果。
type BlockValidator struct {
	config *params.ChainConfig // Chain configuration options
	bc     *BlockChain         // Canonical block chain
}

// NewBlockValidator returns a new block validator which is safe for re-use
func NewBlockValidator(config *params.ChainConfig, blockchain *BlockChain) *BlockValidator {
	return &BlockValidator{
		config: config,
		bc:     blockchain,
	}
}

// ValidateBody verifies the block header's transaction root against the
// transactions in the body and checks the header is already canonical.
// ValidateBody 校验区块体交易与区块头承诺的交易哈希一致，且区块头已是规范链的一部分。
func (v *BlockValidator) ValidateBody(block *types.Block) error {
	header := block.Header()
	if hash := block.Transactions().Hash(); hash != header.TxHash {
		return fmt.Errorf("%w: transaction root hash mismatch (header value %x, calculated %x)", ErrBodyMismatch, header.TxHash, hash)
	}
	if v.bc.GetCanonicalHash(block.NumberU64()) != block.Hash() {
		return fmt.Errorf("%w: block #%d [%x]", ErrNotCanonical, block.NumberU64(), block.Hash())
	}
	return nil
}

// ValidateState validates the gas used and receipts produced by executing the
// block against the values committed to by its header.
func (v *BlockValidator) ValidateState(block *types.Block, statedb *state.StateDB, res *ProcessResult) error {
	if res == nil {
		return fmt.Errorf("nil ProcessResult value")
	}
	header := block.Header()
	if block.GasUsed() != res.GasUsed {
		return fmt.Errorf("%w: have %d, want %d", ErrGasUsedMismatch, res.GasUsed, block.GasUsed())
	}
	if hash := res.Receipts.Hash(); hash != header.ReceiptHash {
		return fmt.Errorf("%w: have %x, want %x", ErrReceiptsMismatch, hash, header.ReceiptHash)
	}
	if err := statedb.Error(); err != nil {
		return fmt.Errorf("state access failed: %w", err)
	}
	return nil
}
