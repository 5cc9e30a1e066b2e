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

// Package core implements the Ethereum consensus protocol.
package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/consensus"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/core/vm"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/event"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/params"
)

// BlockChainConfig contains the configuration values of the block chain.
type BlockChainConfig struct {
	// Execute runs the transactions of inserted blocks and keeps the flat
	// state at the head block. Without it bodies are only stored.
	Execute bool

	// PartialState treats state records absent from disk as unknown rather
	// than empty. Execution then reports them as *state.MissingDataError.
	PartialState bool

	VMConfig vm.Config
}

// DefaultConfig returns the configuration of a fully executing chain.
func DefaultConfig() *BlockChainConfig {
	return &BlockChainConfig{Execute: true}
}

// BlockChain represents the canonical chain given a database with a genesis
// block. It is the single writer of chain data: headers, bodies, receipts
// and flat state all enter the database through it.
//
// Importing headers makes them canonical when they extend the longest known
// header chain. Bodies and receipts are only accepted for canonical headers.
// In executing mode, bodies are additionally run through the StateProcessor
// and the resulting state, gas and receipts are validated.
//
// The BlockChain also helps in returning blocks from **any** chain included
// in the database as well as blocks that represents the canonical chain.
// BlockChain 表示规范链，是链数据的唯一写入者：区块头、区块体、收据和扁平状态都经由它写入数据库。
// 区块体和收据只在对应区块头已是规范链时才会被接受。
type BlockChain struct {
	chainConfig *params.ChainConfig // Chain & network configuration
	cfg         *BlockChainConfig   // Chain behaviour configuration

	db      ethdb.Database    // Low level persistent database to store final content in
	hc      *HeaderChain      // Header chain, canonical markers and head header
	statedb *state.CachingDB  // State database to reuse between imports (contains state cache)
	engine  consensus.Engine  // Header verification rules
	genesis *types.Block      // Genesis block of the chain

	chainHeadFeed event.FeedOf[ChainHeadEvent]

	// chainmu serialises every chain write. Readers never take it.
	chainmu sync.Mutex

	currentBlock     atomic.Pointer[types.Header] // Current head of the chain with bodies (executed in executing mode)
	currentSnapBlock atomic.Pointer[types.Header] // Current head of the chain with receipts

	validator Validator // Block and state validator interface
	processor Processor // Block transaction processor interface

	stopping atomic.Bool // false if chain is running, true when stopped
}

// NewBlockChain returns a fully initialised block chain using information
// available in the database. A nil genesis writes the developer genesis into
// an empty database.
// NewBlockChain 基于数据库中的信息创建完整初始化的区块链。
func NewBlockChain(db ethdb.Database, genesis *Genesis, engine consensus.Engine, cfg *BlockChainConfig) (*BlockChain, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	chainConfig, genesisHash, err := SetupGenesisBlock(db, genesis)
	if err != nil {
		return nil, err
	}
	log.Info("Initialised chain configuration", "chainid", chainConfig.ChainID, "genesis", genesisHash,
		"fork", chainConfig.LatestFork(common.Big0, 0), "execute", cfg.Execute)

	bc := &BlockChain{
		chainConfig: chainConfig,
		cfg:         cfg,
		db:          db,
		engine:      engine,
	}
	if cfg.PartialState {
		bc.statedb = state.NewPartialDatabase(db)
	} else {
		bc.statedb = state.NewDatabase(db)
	}
	bc.hc, err = NewHeaderChain(db, chainConfig, engine, bc.insertStopped)
	if err != nil {
		return nil, err
	}
	bc.validator = NewBlockValidator(chainConfig, bc)
	bc.processor = NewStateProcessor(chainConfig, bc.hc)

	bc.genesis = bc.GetBlockByNumber(0)
	if bc.genesis == nil {
		return nil, ErrNoGenesis
	}
	bc.loadLastState()
	return bc, nil
}

// loadLastState loads the last known chain state from the database.
func (bc *BlockChain) loadLastState() {
	genesis := bc.genesis.Header()

	bc.currentBlock.Store(genesis)
	if head := bc.GetHeaderByHash(rawdb.ReadHeadBlockHash(bc.db)); head != nil {
		bc.currentBlock.Store(head)
	}
	bc.currentSnapBlock.Store(genesis)
	if head := bc.GetHeaderByHash(rawdb.ReadHeadFastBlockHash(bc.db)); head != nil {
		bc.currentSnapBlock.Store(head)
	}
	var (
		headHeader = bc.CurrentHeader()
		headBlock  = bc.CurrentBlock()
		snapBlock  = bc.CurrentSnapBlock()
	)
	log.Info("Loaded most recent local header", "number", headHeader.Number, "hash", headHeader.Hash(), "age", common.PrettyAge(time.Unix(int64(headHeader.Time), 0)))
	log.Info("Loaded most recent local block", "number", headBlock.Number, "hash", headBlock.Hash())
	log.Info("Loaded most recent local snap block", "number", snapBlock.Number, "hash", snapBlock.Hash())
}

// InsertHeaderChain attempts to insert the given header chain into the local
// chain. Headers must be ordered and linked, and the first one must have a
// known parent. It returns the index of the failing header on error.
// InsertHeaderChain 插入一段有序且相连的区块头，第一个头的父区块必须已知。
func (bc *BlockChain) InsertHeaderChain(chain []*types.Header) (int, error) {
	if len(chain) == 0 {
		return 0, nil
	}
	start := time.Now()
	if i, err := bc.hc.ValidateHeaderChain(chain); err != nil {
		return i, err
	}
	bc.chainmu.Lock()
	status, err := bc.hc.InsertHeaderChain(chain, start)
	bc.chainmu.Unlock()
	if err != nil {
		return 0, err
	}
	if status == CanonStatTy {
		bc.chainHeadFeed.Send(ChainHeadEvent{Header: bc.CurrentHeader(), Block: bc.CurrentBlock()})
	}
	return 0, nil
}

// InsertChain attaches bodies to canonical headers. Blocks whose header is not
// canonical are rejected with ErrNotCanonical. In executing mode each block
// must extend the current block and is executed before it is written.
//
// It returns the index of the failing block on error.
// InsertChain 为规范链上的区块头写入区块体；执行模式下区块必须接在当前区块之后，并在写入前执行。
func (bc *BlockChain) InsertChain(chain types.Blocks) (int, error) {
	if len(chain) == 0 {
		return 0, nil
	}
	bc.chainmu.Lock()
	n, err := bc.insertChain(chain)
	bc.chainmu.Unlock()

	if n > 0 {
		bc.chainHeadFeed.Send(ChainHeadEvent{Header: bc.CurrentHeader(), Block: bc.CurrentBlock()})
	}
	return n, err
}

// insertChain is the internal implementation of InsertChain, which assumes
// that the chain mutex is held. It returns the number of blocks processed.
func (bc *BlockChain) insertChain(chain types.Blocks) (int, error) {
	var (
		start     = time.Now()
		processed int
		txs       int
		gas       uint64
	)
	for i, block := range chain {
		if bc.insertStopped() {
			return i, errChainStopped
		}
		if err := bc.validator.ValidateBody(block); err != nil {
			return i, err
		}
		if bc.cfg.Execute {
			res, err := bc.executeBlock(block)
			if err != nil {
				var missing *state.MissingDataError
				if errors.As(err, &missing) {
					log.Debug("Block needs missing state", "number", block.Number(), "missing", missing)
				} else {
					log.Error("Failed to process block", "number", block.Number(), "hash", block.Hash(), "err", err)
				}
				return i, err
			}
			if res != nil {
				gas += res.GasUsed
			}
		} else {
			bc.storeBody(block)
		}
		processed++
		txs += len(block.Transactions())
	}
	last := chain[len(chain)-1]
	log.Info("Imported new chain segment", "number", last.Number(), "hash", last.Hash(), "blocks", processed,
		"txs", txs, "mgas", float64(gas)/1000000, "elapsed", common.PrettyDuration(time.Since(start)))
	return processed, nil
}

// executeBlock runs a block on top of the current head and writes the body,
// receipts and state. Blocks already at or below the head are skipped.
func (bc *BlockChain) executeBlock(block *types.Block) (*ProcessResult, error) {
	head := bc.CurrentBlock()
	if block.NumberU64() <= head.Number.Uint64() {
		return nil, nil
	}
	if block.ParentHash() != head.Hash() {
		return nil, fmt.Errorf("%w: block #%d parent %x, head #%d [%x]", ErrUnknownAncestor,
			block.NumberU64(), block.ParentHash(), head.Number, head.Hash())
	}
	statedb := state.New(bc.statedb)
	res, err := bc.processor.Process(block, statedb, bc.cfg.VMConfig)
	if err != nil {
		return nil, err
	}
	if err := bc.validator.ValidateState(block, statedb, res); err != nil {
		return nil, err
	}
	rules := bc.chainConfig.Rules(block.Number(), block.Time())
	if err := statedb.Commit(rules.IsEIP158); err != nil {
		return nil, err
	}
	var (
		hash   = block.Hash()
		number = block.NumberU64()
		header = block.Header()
		batch  = bc.db.NewBatch()
	)
	rawdb.WriteBody(batch, hash, number, block.Body())
	rawdb.WriteReceipts(batch, hash, number, res.Receipts)
	rawdb.WriteHeadBlockHash(batch, hash)
	if bc.CurrentSnapBlock().Number.Uint64() < number {
		rawdb.WriteHeadFastBlockHash(batch, hash)
	}
	if err := batch.Write(); err != nil {
		log.Crit("Failed to write block into disk", "err", err)
	}
	bc.currentBlock.Store(header)
	if bc.CurrentSnapBlock().Number.Uint64() < number {
		bc.currentSnapBlock.Store(header)
	}
	return res, nil
}

// storeBody writes a block body without executing it and advances the body
// head over every contiguous canonical block that has one.
func (bc *BlockChain) storeBody(block *types.Block) {
	rawdb.WriteBody(bc.db, block.Hash(), block.NumberU64(), block.Body())

	head := bc.CurrentBlock()
	for {
		number := head.Number.Uint64() + 1
		hash := bc.GetCanonicalHash(number)
		if hash == (common.Hash{}) || !rawdb.HasBody(bc.db, hash, number) {
			break
		}
		head = bc.GetHeader(hash, number)
	}
	if head.Hash() != bc.CurrentBlock().Hash() {
		rawdb.WriteHeadBlockHash(bc.db, head.Hash())
		bc.currentBlock.Store(head)
	}
}

// InsertBodyChain stores bodies of canonical blocks without executing them
// and without moving any head marker. Fast sync uses it to fill bodies below
// the pivot ahead of their receipts.
// InsertBodyChain 只为规范链区块保存区块体，不执行也不移动任何链头标记。
func (bc *BlockChain) InsertBodyChain(chain types.Blocks) (int, error) {
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	batch := bc.db.NewBatch()
	for i, block := range chain {
		if bc.insertStopped() {
			return i, errChainStopped
		}
		if err := bc.validator.ValidateBody(block); err != nil {
			return i, err
		}
		rawdb.WriteBody(batch, block.Hash(), block.NumberU64(), block.Body())
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}
	return len(chain), nil
}

// InsertReceiptChain stores bodies and receipts of canonical blocks without
// executing them. Receipts must hash to the header's receipt root.
// InsertReceiptChain 为规范链区块写入区块体和收据而不执行，收据哈希必须与区块头一致。
func (bc *BlockChain) InsertReceiptChain(blockChain types.Blocks, receiptChain []types.Receipts) (int, error) {
	if len(blockChain) != len(receiptChain) {
		return 0, fmt.Errorf("%w: %d blocks, %d receipt lists", ErrReceiptsMismatch, len(blockChain), len(receiptChain))
	}
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	batch := bc.db.NewBatch()
	for i, block := range blockChain {
		if bc.insertStopped() {
			return i, errChainStopped
		}
		if err := bc.validator.ValidateBody(block); err != nil {
			return i, err
		}
		header := block.Header()
		if hash := receiptChain[i].Hash(); hash != header.ReceiptHash {
			return i, fmt.Errorf("%w: block #%d have %x, want %x", ErrReceiptsMismatch, block.NumberU64(), hash, header.ReceiptHash)
		}
		rawdb.WriteBody(batch, block.Hash(), block.NumberU64(), block.Body())
		rawdb.WriteReceipts(batch, block.Hash(), block.NumberU64(), receiptChain[i])
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}
	// Advance the snap head over every contiguous block that has receipts.
	head := bc.CurrentSnapBlock()
	for {
		number := head.Number.Uint64() + 1
		hash := bc.GetCanonicalHash(number)
		if hash == (common.Hash{}) || !rawdb.HasReceipts(bc.db, hash, number) {
			break
		}
		head = bc.GetHeader(hash, number)
	}
	if head.Hash() != bc.CurrentSnapBlock().Hash() {
		rawdb.WriteHeadFastBlockHash(bc.db, head.Hash())
		bc.currentSnapBlock.Store(head)
	}
	log.Debug("Imported new block receipts", "count", len(blockChain), "snaphead", head.Number)
	return len(blockChain), nil
}

// InsertAccountRange stores a range of flat accounts delivered by snap sync.
func (bc *BlockChain) InsertAccountRange(hashes []common.Hash, accounts [][]byte) error {
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()
	return bc.statedb.InsertAccountRange(hashes, accounts)
}

// InsertStorageRange stores a range of flat storage slots of one account
// delivered by snap sync.
func (bc *BlockChain) InsertStorageRange(account common.Hash, slots []common.Hash, values [][]byte) error {
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()
	return bc.statedb.InsertStorageRange(account, slots, values)
}

// InsertCodes stores contract byte codes delivered by snap sync.
func (bc *BlockChain) InsertCodes(codes [][]byte) {
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()
	for _, code := range codes {
		bc.statedb.InsertCode(code)
	}
}

// ResetState wipes the flat state ahead of a state download. Only a chain
// running over partial state may drop its state, the records are then fetched
// again through snap sync or healing.
// ResetState 在状态下载前清空扁平状态，仅允许在部分状态模式下调用。
func (bc *BlockChain) ResetState() error {
	if !bc.statedb.Partial() {
		return errors.New("state reset requires partial state")
	}
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()
	return bc.statedb.Reset()
}

// SnapSyncCommitHead sets the current head block to the one defined by the
// hash, once its state has been synced. Execution resumes on top of it.
// SnapSyncCommitHead 在状态同步完成后，将当前区块头设为给定哈希的区块。
func (bc *BlockChain) SnapSyncCommitHead(hash common.Hash) error {
	number := bc.hc.GetBlockNumber(hash)
	if number == nil || bc.GetCanonicalHash(*number) != hash {
		return fmt.Errorf("%w: pivot [%x]", ErrNotCanonical, hash)
	}
	if !rawdb.HasBody(bc.db, hash, *number) {
		return fmt.Errorf("non existent block [%x..]", hash[:4])
	}
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	header := bc.GetHeader(hash, *number)
	batch := bc.db.NewBatch()
	rawdb.WriteHeadBlockHash(batch, hash)
	rawdb.WriteLastPivotNumber(batch, *number)
	if err := batch.Write(); err != nil {
		return err
	}
	bc.currentBlock.Store(header)
	log.Info("Committed new head block", "number", header.Number, "hash", hash)
	return nil
}

// Stop stops the blockchain service. Pending inserts return errChainStopped.
func (bc *BlockChain) Stop() {
	if !bc.stopping.CompareAndSwap(false, true) {
		return
	}
	// Wait for in-flight writes to finish.
	bc.chainmu.Lock()
	bc.chainmu.Unlock()
	log.Info("Blockchain stopped")
}

// insertStopped returns true after Stop has been called.
func (bc *BlockChain) insertStopped() bool {
	return bc.stopping.Load()
}
