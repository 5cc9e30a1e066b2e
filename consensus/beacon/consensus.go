// Copyright 2021 The go-ethereum Authors
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

// Package beacon implements the header rules of a chain whose blocks are
// sealed by an external consensus client. Seals and difficulty are not
// checked before the merge; the remaining header rules apply throughout.
// beacon 包实现由外部共识客户端出块的链的区块头规则。
package beacon

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/consensus"
	"github.com/sunyihoo/evmsync/consensus/misc"
	"github.com/sunyihoo/evmsync/consensus/misc/eip1559"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

var errInvalidDifficulty = errors.New("non-zero difficulty after the merge")

// Beacon is a consensus engine that only verifies the execution-layer parts
// of headers.
type Beacon struct{}

// New creates a consensus engine.
func New() *Beacon {
	return &Beacon{}
}

// VerifyHeader checks whether a header conforms to the consensus rules.
func (beacon *Beacon) VerifyHeader(chain consensus.ChainHeaderReader, header *types.Header) error {
	parent := chain.GetHeader(header.ParentHash, header.Number.Uint64()-1)
	if parent == nil {
		return consensus.ErrUnknownAncestor
	}
	return beacon.verifyHeader(chain, header, parent)
}

// VerifyHeaders is similar to VerifyHeader, but verifies a batch of headers
// concurrently. The method returns a quit channel to abort the operations and
// a results channel to retrieve the async verifications.
// VerifyHeaders 在后台按顺序校验一批区块头，结果按输入顺序写入 results。
func (beacon *Beacon) VerifyHeaders(chain consensus.ChainHeaderReader, headers []*types.Header) (chan<- struct{}, <-chan error) {
	var (
		abort   = make(chan struct{})
		results = make(chan error, len(headers))
	)
	go func() {
		for i, header := range headers {
			var parent *types.Header
			if i == 0 {
				parent = chain.GetHeader(headers[0].ParentHash, headers[0].Number.Uint64()-1)
			} else if headers[i-1].Hash() == headers[i].ParentHash {
				parent = headers[i-1]
			}
			err := consensus.ErrUnknownAncestor
			if parent != nil {
				err = beacon.verifyHeader(chain, header, parent)
			}
			select {
			case <-abort:
				return
			case results <- err:
			}
		}
	}()
	return abort, results
}

// verifyHeader checks whether a header conforms to the consensus rules of the
// stock Ethereum consensus engine, given its parent.
func (beacon *Beacon) verifyHeader(chain consensus.ChainHeaderReader, header, parent *types.Header) error {
	config := chain.Config()

	// Ensure that the header's extra-data section is of a reasonable size
	if len(header.Extra) > int(params.MaximumExtraDataSize) {
		return fmt.Errorf("extra-data longer than 32 bytes (%d)", len(header.Extra))
	}
	if header.Time <= parent.Time {
		return consensus.ErrInvalidTimestamp
	}
	if config.IsActive(forks.Paris, header.Number, header.Time) && header.Difficulty != nil && header.Difficulty.Sign() != 0 {
		return errInvalidDifficulty
	}
	// Verify that the gas limit is <= 2^63-1
	if header.GasLimit > params.MaxGasLimit {
		return fmt.Errorf("invalid gasLimit: have %v, max %v", header.GasLimit, params.MaxGasLimit)
	}
	if header.GasUsed > header.GasLimit {
		return fmt.Errorf("invalid gasUsed: have %d, gasLimit %d", header.GasUsed, header.GasLimit)
	}
	// Verify that the block number is parent's +1
	if diff := new(big.Int).Sub(header.Number, parent.Number); diff.Cmp(common.Big1) != 0 {
		return consensus.ErrInvalidNumber
	}
	if !config.IsLondon(header.Number) {
		if header.BaseFee != nil {
			return fmt.Errorf("invalid baseFee before fork: have %d, want <nil>", header.BaseFee)
		}
		if err := misc.VerifyGaslimit(parent.GasLimit, header.GasLimit); err != nil {
			return err
		}
	} else if err := eip1559.VerifyEIP1559Header(config, parent, header); err != nil {
		return err
	}
	cancun := config.IsActive(forks.Cancun, header.Number, header.Time)
	if !cancun && header.ExcessBlobGas != nil {
		return fmt.Errorf("invalid excessBlobGas: have %d, expected nil", *header.ExcessBlobGas)
	}
	if cancun && header.ExcessBlobGas == nil {
		return errors.New("header is missing excessBlobGas")
	}
	return nil
}
