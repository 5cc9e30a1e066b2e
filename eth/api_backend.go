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

package eth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/core/vm"
	"github.com/sunyihoo/evmsync/eth/downloader"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/rpc"
)

var (
	errHeaderNotFound = errors.New("header not found")
	errNotCanonical   = errors.New("hash is not currently canonical")
)

// EthAPIBackend implements ethapi.Backend for full nodes
// EthAPIBackend 基于本地区块链和下载器实现 RPC 后端。
// 状态只在当前链头区块上可查询，同步期间缺失的记录以错误返回。
type EthAPIBackend struct {
	extRPCEnabled bool
	eth           *Ethereum
}

// ChainConfig returns the active chain configuration.
func (b *EthAPIBackend) ChainConfig() *params.ChainConfig {
	return b.eth.blockchain.Config()
}

func (b *EthAPIBackend) CurrentHeader() *types.Header {
	return b.eth.blockchain.CurrentHeader()
}

func (b *EthAPIBackend) CurrentBlock() *types.Header {
	return b.eth.blockchain.CurrentBlock()
}

// HeaderByNumber resolves a block number or tag. Without a consensus client
// reporting finality, the safe and finalized tags resolve to the head block.
func (b *EthAPIBackend) HeaderByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Header, error) {
	switch number {
	case rpc.PendingBlockNumber, rpc.LatestBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
		return b.eth.blockchain.CurrentBlock(), nil
	}
	if number < 0 {
		return nil, fmt.Errorf("invalid block number %d", number)
	}
	return b.eth.blockchain.GetHeaderByNumber(uint64(number)), nil
}

func (b *EthAPIBackend) HeaderByNumberOrHash(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*types.Header, error) {
	if blockNr, ok := blockNrOrHash.Number(); ok {
		return b.HeaderByNumber(ctx, blockNr)
	}
	if hash, ok := blockNrOrHash.Hash(); ok {
		header := b.eth.blockchain.GetHeaderByHash(hash)
		if header == nil {
			return nil, errors.New("header for hash not found")
		}
		if blockNrOrHash.RequireCanonical && b.eth.blockchain.GetCanonicalHash(header.Number.Uint64()) != hash {
			return nil, errNotCanonical
		}
		return header, nil
	}
	return nil, errors.New("invalid arguments; neither block nor hash specified")
}

func (b *EthAPIBackend) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return b.eth.blockchain.GetHeaderByHash(hash), nil
}

func (b *EthAPIBackend) BlockByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Block, error) {
	header, err := b.HeaderByNumber(ctx, number)
	if header == nil || err != nil {
		return nil, err
	}
	return b.eth.blockchain.GetBlock(header.Hash(), header.Number.Uint64()), nil
}

func (b *EthAPIBackend) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	return b.eth.blockchain.GetBlockByHash(hash), nil
}

// StateAndHeaderByNumberOrHash returns the state at the requested block. Only
// the flat state of the current head block is kept, so any other block fails.
// StateAndHeaderByNumberOrHash 返回指定区块的状态；本地只保存链头区块的扁平状态。
func (b *EthAPIBackend) StateAndHeaderByNumberOrHash(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*state.StateDB, *types.Header, error) {
	header, err := b.HeaderByNumberOrHash(ctx, blockNrOrHash)
	if err != nil {
		return nil, nil, err
	}
	if header == nil {
		return nil, nil, errHeaderNotFound
	}
	head := b.eth.blockchain.CurrentBlock()
	if header.Hash() != head.Hash() {
		return nil, nil, fmt.Errorf("state of block %d is not available, only head block %d is served", header.Number, head.Number)
	}
	return b.eth.blockchain.State(), header, nil
}

// GetEVM builds an EVM executing on top of header with the given state.
func (b *EthAPIBackend) GetEVM(ctx context.Context, state *state.StateDB, header *types.Header, vmConfig *vm.Config) *vm.EVM {
	if vmConfig == nil {
		vmConfig = new(vm.Config)
	}
	context := core.NewEVMBlockContext(header, b.eth.blockchain, nil)
	return vm.NewEVM(context, state, b.ChainConfig(), *vmConfig)
}

func (b *EthAPIBackend) SyncProgress() downloader.SyncProgress {
	return b.eth.Downloader().Progress()
}

func (b *EthAPIBackend) SyncStatus() downloader.SyncStatus {
	return b.eth.Downloader().Status()
}

func (b *EthAPIBackend) ChainDb() ethdb.Database {
	return b.eth.ChainDb()
}

func (b *EthAPIBackend) ExtRPCEnabled() bool {
	return b.extRPCEnabled
}

func (b *EthAPIBackend) RPCGasCap() uint64 {
	return b.eth.config.RPCGasCap
}

func (b *EthAPIBackend) RPCEVMTimeout() time.Duration {
	return b.eth.config.RPCEVMTimeout
}
