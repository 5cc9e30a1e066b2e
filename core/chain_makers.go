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
	"math/big"

	"github.com/holiman/uint256"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/consensus/misc/eip1559"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/core/vm"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

// BlockGen creates blocks for testing.
// See GenerateChain for a detailed explanation.
// BlockGen 用于在测试中构造区块，详见 GenerateChain。
type BlockGen struct {
	i       int
	cm      *chainMaker
	parent  *types.Block
	header  *types.Header
	statedb *state.StateDB

	gasPool  *GasPool
	txs      []*types.Transaction
	receipts []*types.Receipt
}

// SetCoinbase sets the coinbase of the generated block.
// It can be called at most once.
func (b *BlockGen) SetCoinbase(addr common.Address) {
	if b.gasPool != nil {
		if len(b.txs) > 0 {
			panic("coinbase must be set before adding transactions")
		}
		panic("coinbase can only be set once")
	}
	b.header.Coinbase = addr
	b.gasPool = NewGasPool(b.header.GasLimit)
}

// SetExtra sets the extra data field of the generated block.
func (b *BlockGen) SetExtra(data []byte) {
	b.header.Extra = data
}

func (b *BlockGen) addTx(vmConfig vm.Config, tx *types.Transaction) {
	if b.gasPool == nil {
		b.SetCoinbase(common.Address{})
	}
	b.statedb.SetTxContext(tx.Hash(), len(b.txs))

	blockContext := NewEVMBlockContext(b.header, b.cm, &b.header.Coinbase)
	evm := vm.NewEVM(blockContext, b.statedb, b.cm.config, vmConfig)
	receipt, err := ApplyTransaction(evm, b.gasPool, b.statedb, b.header, tx, &b.header.GasUsed)
	if err != nil {
		panic(err)
	}
	b.txs = append(b.txs, tx)
	b.receipts = append(b.receipts, receipt)
}

// AddTx adds a transaction to the generated block. If no coinbase has
// been set, the block's coinbase is set to the zero address.
//
// AddTx panics if the transaction cannot be executed. In addition to the
// protocol-imposed limitations (gas limit, etc.), there are some
// further limitations on the content of transactions that can be
// added. Notably, contract code relying on the BLOCKHASH instruction
// will panic during execution if it attempts to access a block number outside
// of the range created by GenerateChain.
func (b *BlockGen) AddTx(tx *types.Transaction) {
	b.addTx(vm.Config{}, tx)
}

// AddTxWithVMConfig adds a transaction to the generated block with the given
// interpreter configuration.
func (b *BlockGen) AddTxWithVMConfig(tx *types.Transaction, config vm.Config) {
	b.addTx(config, tx)
}

// GetBalance returns the balance of the given address at the generated block.
func (b *BlockGen) GetBalance(addr common.Address) *uint256.Int {
	return b.statedb.GetBalance(addr)
}

// Number returns the block number of the block being generated.
func (b *BlockGen) Number() *big.Int {
	return new(big.Int).Set(b.header.Number)
}

// Timestamp returns the timestamp of the block being generated.
func (b *BlockGen) Timestamp() uint64 {
	return b.header.Time
}

// BaseFee returns the EIP-1559 base fee of the block being generated.
func (b *BlockGen) BaseFee() *big.Int {
	if b.header.BaseFee == nil {
		return nil
	}
	return new(big.Int).Set(b.header.BaseFee)
}

// Gas returns the amount of gas left in the current block.
func (b *BlockGen) Gas() uint64 {
	return b.header.GasLimit - b.header.GasUsed
}

// TxNonce returns the next valid transaction nonce for the
// account at addr. It panics if the account does not exist.
func (b *BlockGen) TxNonce(addr common.Address) uint64 {
	if !b.statedb.Exist(addr) {
		panic("account does not exist")
	}
	return b.statedb.GetNonce(addr)
}

// PrevBlock returns a previously generated block by number. It panics if
// num is greater or equal to the number of the block being generated.
// For index -1, PrevBlock returns the parent block given to GenerateChain.
func (b *BlockGen) PrevBlock(index int) *types.Block {
	if index >= b.i {
		panic(fmt.Errorf("block index %d out of range (%d,%d)", index, -1, b.i))
	}
	if index == -1 {
		return b.cm.bottom
	}
	return b.cm.chain[index]
}

// OffsetTime modifies the time instance of a block, implicitly changing its
// associated difficulty. It's useful to test scenarios where forking is not
// tied to chain length directly.
func (b *BlockGen) OffsetTime(seconds int64) {
	b.header.Time += uint64(seconds)
	if b.header.Time <= b.cm.bottom.Header().Time {
		panic("block time out of range")
	}
}

// GenerateChain creates a chain of n blocks. The first block's
// parent will be the provided parent. db is used to store
// intermediate states and should contain the parent's state.
//
// The generator function is called with a new block generator for
// every block. Any transactions added to the generator
// become part of the block. If gen is nil, the blocks will be empty
// and their coinbase will be the zero address.
//
// Blocks created by GenerateChain do not contain valid proof of work
// values. Inserting them into BlockChain requires use of the beacon
// engine, which does not check seals.
// GenerateChain 在 parent 之上生成 n 个区块，db 需包含父区块的扁平状态，生成过程中会被就地更新。
func GenerateChain(config *params.ChainConfig, parent *types.Block, db ethdb.Database, n int, gen func(int, *BlockGen)) ([]*types.Block, []types.Receipts) {
	if config == nil {
		config = params.TestChainConfig
	}
	if n <= 0 {
		return nil, nil
	}
	cm := newChainMaker(parent, config)
	genblock := func(i int, parent *types.Block, statedb *state.StateDB) (*types.Block, types.Receipts) {
		b := &BlockGen{i: i, cm: cm, parent: parent, statedb: statedb}
		b.header = cm.makeHeader(parent)

		// Execute any user modifications to the block
		if gen != nil {
			gen(i, b)
		}
		b.header.ReceiptHash = types.Receipts(b.receipts).Hash()

		rules := config.Rules(b.header.Number, b.header.Time)
		if err := statedb.Commit(rules.IsEIP158); err != nil {
			panic(fmt.Sprintf("state write error: %v", err))
		}
		block := types.NewBlock(b.header, &types.Body{Transactions: b.txs})
		receipts := types.Receipts(b.receipts)
		if err := receipts.DeriveFields(block.Hash(), block.NumberU64(), block.Transactions()); err != nil {
			panic(err)
		}
		return block, receipts
	}
	statedb := state.New(state.NewDatabase(db))
	for i := 0; i < n; i++ {
		block, receipts := genblock(i, parent, statedb)
		cm.add(block, receipts)
		parent = block
	}
	return cm.chain, cm.receipts
}

// GenerateChainWithGenesis is a wrapper of GenerateChain which will initialize
// genesis block to database first according to the provided genesis specification
// then generate chain on top.
func GenerateChainWithGenesis(genesis *Genesis, n int, gen func(int, *BlockGen)) (ethdb.Database, []*types.Block, []types.Receipts) {
	db := rawdb.NewMemoryDatabase()
	block := genesis.MustCommit(db)
	blocks, receipts := GenerateChain(genesis.Config, block, db, n, gen)
	return db, blocks, receipts
}

func (cm *chainMaker) makeHeader(parent *types.Block) *types.Header {
	header := &types.Header{
		ParentHash:  parent.Hash(),
		Coinbase:    parent.Coinbase(),
		Difficulty:  new(big.Int),
		GasLimit:    parent.GasLimit(),
		Number:      new(big.Int).Add(parent.Number(), common.Big1),
		Time:        parent.Time() + 10,
		ReceiptHash: types.EmptyReceiptsHash,
	}
	if cm.config.IsLondon(header.Number) {
		header.BaseFee = eip1559.CalcBaseFee(cm.config, parent.Header())
		if !cm.config.IsLondon(parent.Number()) {
			header.GasLimit = parent.GasLimit() * params.ElasticityMultiplier
		}
	}
	if cm.config.IsActive(forks.Cancun, header.Number, header.Time) {
		excess := uint64(0)
		if parent.Header().ExcessBlobGas != nil {
			excess = *parent.Header().ExcessBlobGas
		}
		header.ExcessBlobGas = &excess
	}
	return header
}

// makeHeaderChain creates a deterministic chain of headers rooted at parent.
func makeHeaderChain(chainConfig *params.ChainConfig, parent *types.Header, n int, db ethdb.Database, seed int) []*types.Header {
	blocks := makeBlockChain(chainConfig, types.NewBlock(parent, nil), n, db, seed)
	headers := make([]*types.Header, len(blocks))
	for i, block := range blocks {
		headers[i] = block.Header()
	}
	return headers
}

// makeBlockChain creates a deterministic chain of blocks rooted at parent.
func makeBlockChain(chainConfig *params.ChainConfig, parent *types.Block, n int, db ethdb.Database, seed int) []*types.Block {
	blocks, _ := GenerateChain(chainConfig, parent, db, n, func(i int, b *BlockGen) {
		b.SetCoinbase(common.Address{0: byte(seed), 19: byte(i)})
	})
	return blocks
}

// chainMaker contains the state of chain generation.
type chainMaker struct {
	bottom      *types.Block
	config      *params.ChainConfig
	chain       []*types.Block
	chainByHash map[common.Hash]*types.Block
	receipts    []types.Receipts
}

func newChainMaker(bottom *types.Block, config *params.ChainConfig) *chainMaker {
	return &chainMaker{
		bottom:      bottom,
		config:      config,
		chainByHash: make(map[common.Hash]*types.Block),
	}
}

func (cm *chainMaker) add(b *types.Block, r []*types.Receipt) {
	cm.chain = append(cm.chain, b)
	cm.chainByHash[b.Hash()] = b
	cm.receipts = append(cm.receipts, r)
}

// Config returns the chain configuration; chainMaker implements ChainContext.
func (cm *chainMaker) Config() *params.ChainConfig {
	return cm.config
}

// GetHeader returns a header of the generated chain or its bottom block.
func (cm *chainMaker) GetHeader(hash common.Hash, number uint64) *types.Header {
	if hash == cm.bottom.Hash() {
		return cm.bottom.Header()
	}
	if b, ok := cm.chainByHash[hash]; ok {
		return b.Header()
	}
	return nil
}
