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

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/holiman/uint256"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

// GenesisAccount is an account in the state of the genesis block.
type GenesisAccount struct {
	Code    []byte                      `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
	Balance *big.Int                    `json:"balance" gencodec:"required"`
	Nonce   uint64                      `json:"nonce,omitempty"`
}

// GenesisAlloc specifies the initial state of a genesis block.
type GenesisAlloc map[common.Address]GenesisAccount

// Genesis specifies the header fields, state of a genesis block. It also defines hard
// fork switch-over blocks through the chain configuration.
// Genesis 指定创世区块的头字段与初始状态，并通过链配置定义硬分叉切换点。
type Genesis struct {
	Config     *params.ChainConfig `json:"config"`
	Timestamp  uint64              `json:"timestamp"`
	ExtraData  []byte              `json:"extraData"`
	GasLimit   uint64              `json:"gasLimit"   gencodec:"required"`
	Difficulty *big.Int            `json:"difficulty" gencodec:"required"`
	Mixhash    common.Hash         `json:"mixHash"`
	Coinbase   common.Address      `json:"coinbase"`
	Alloc      GenesisAlloc        `json:"alloc"      gencodec:"required"`

	BaseFee       *big.Int `json:"baseFeePerGas"` // EIP-1559
	ExcessBlobGas *uint64  `json:"excessBlobGas"` // EIP-4844
}

var errGenesisNoConfig = errors.New("genesis has no chain configuration")

// ReadGenesis retrieves the genesis header fields and chain configuration
// stored in the database. The allocation is not persisted separately and is
// left empty.
// ReadGenesis 从数据库读取创世区块头字段和链配置，分配表不会被单独保存。
func ReadGenesis(db ethdb.Database) (*Genesis, error) {
	stored := rawdb.ReadCanonicalHash(db, 0)
	if (stored == common.Hash{}) {
		return nil, fmt.Errorf("invalid genesis hash in database: %x", stored)
	}
	config := rawdb.ReadChainConfig(db, stored)
	if config == nil {
		return nil, errors.New("genesis config missing from db")
	}
	header := rawdb.ReadHeader(db, stored, 0)
	if header == nil {
		return nil, errors.New("genesis block missing from db")
	}
	return &Genesis{
		Config:        config,
		Timestamp:     header.Time,
		ExtraData:     header.Extra,
		GasLimit:      header.GasLimit,
		Difficulty:    header.Difficulty,
		Mixhash:       header.MixDigest,
		Coinbase:      header.Coinbase,
		BaseFee:       header.BaseFee,
		ExcessBlobGas: header.ExcessBlobGas,
	}, nil
}

// LoadGenesis reads a JSON genesis specification from file.
func LoadGenesis(path string) (*Genesis, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	genesis := new(Genesis)
	if err := json.Unmarshal(blob, genesis); err != nil {
		return nil, fmt.Errorf("invalid genesis file %s: %w", path, err)
	}
	return genesis, nil
}

// ToBlock returns the genesis block according to genesis specification.
// ToBlock 根据创世规范构造创世区块。
func (g *Genesis) ToBlock() *types.Block {
	head := &types.Header{
		Number:      new(big.Int),
		Time:        g.Timestamp,
		ParentHash:  common.Hash{},
		Extra:       g.ExtraData,
		GasLimit:    g.GasLimit,
		Difficulty:  g.Difficulty,
		MixDigest:   g.Mixhash,
		Coinbase:    g.Coinbase,
		ReceiptHash: types.EmptyReceiptsHash,
		BaseFee:     g.BaseFee,
	}
	if g.GasLimit == 0 {
		head.GasLimit = params.GenesisGasLimit
	}
	if g.Difficulty == nil {
		head.Difficulty = new(big.Int)
	}
	if g.Config != nil {
		if g.Config.IsLondon(common.Big0) && head.BaseFee == nil {
			head.BaseFee = big.NewInt(params.InitialBaseFee)
		}
		if g.Config.IsActive(forks.Cancun, common.Big0, g.Timestamp) {
			excess := uint64(0)
			if g.ExcessBlobGas != nil {
				excess = *g.ExcessBlobGas
			}
			head.ExcessBlobGas = &excess
		}
	}
	return types.NewBlock(head, nil)
}

// Commit writes the block and state of a genesis specification to the database.
// The block is committed as the canonical head block.
// Commit 将创世区块及其状态写入数据库，并设为规范链头。
func (g *Genesis) Commit(db ethdb.Database) (*types.Block, error) {
	if g.Config == nil {
		return nil, errGenesisNoConfig
	}
	if err := g.Config.CheckConfigForkOrder(); err != nil {
		return nil, err
	}
	if err := g.Alloc.flush(db); err != nil {
		return nil, err
	}
	block := g.ToBlock()
	hash := block.Hash()

	batch := db.NewBatch()
	rawdb.WriteBlock(batch, block)
	rawdb.WriteReceipts(batch, hash, 0, nil)
	rawdb.WriteCanonicalHash(batch, hash, 0)
	rawdb.WriteHeadBlockHash(batch, hash)
	rawdb.WriteHeadFastBlockHash(batch, hash)
	rawdb.WriteHeadHeaderHash(batch, hash)
	rawdb.WriteChainConfig(batch, hash, g.Config)
	if err := batch.Write(); err != nil {
		return nil, err
	}
	return block, nil
}

// MustCommit writes the genesis block and state to db, panicking on error.
func (g *Genesis) MustCommit(db ethdb.Database) *types.Block {
	block, err := g.Commit(db)
	if err != nil {
		panic(err)
	}
	return block
}

// flush writes the allocation into the flat state of db.
func (ga GenesisAlloc) flush(db ethdb.Database) error {
	statedb := state.New(state.NewDatabase(db))
	for addr, account := range ga {
		if account.Balance != nil {
			balance, overflow := uint256.FromBig(account.Balance)
			if overflow {
				return fmt.Errorf("genesis balance of %x overflows", addr)
			}
			statedb.SetBalance(addr, balance)
		}
		statedb.SetCode(addr, account.Code)
		statedb.SetNonce(addr, account.Nonce)
		for key, value := range account.Storage {
			statedb.SetState(addr, key, value)
		}
	}
	return statedb.Commit(false)
}

// SetupGenesisBlock writes or updates the genesis block in db.
//
//	                     genesis == nil       genesis != nil
//	                  +------------------------------------------
//	db has no genesis |  developer genesis | genesis
//	db has genesis    |  from DB           | from DB (if hashes match)
//
// SetupGenesisBlock 在数据库中写入或校验创世区块，返回生效的链配置与创世哈希。
func SetupGenesisBlock(db ethdb.Database, genesis *Genesis) (*params.ChainConfig, common.Hash, error) {
	stored := rawdb.ReadCanonicalHash(db, 0)
	if (stored == common.Hash{}) {
		if genesis == nil {
			log.Info("Writing developer genesis block")
			genesis = DeveloperGenesisBlock(params.GenesisGasLimit, nil)
		} else {
			log.Info("Writing custom genesis block")
		}
		block, err := genesis.Commit(db)
		if err != nil {
			return nil, common.Hash{}, err
		}
		return genesis.Config, block.Hash(), nil
	}
	if genesis != nil {
		if hash := genesis.ToBlock().Hash(); hash != stored {
			return nil, common.Hash{}, &GenesisMismatchError{Stored: stored, New: hash}
		}
	}
	config := rawdb.ReadChainConfig(db, stored)
	if config == nil {
		return nil, common.Hash{}, errors.New("found genesis block without chain config")
	}
	return config, stored, nil
}

// GenesisMismatchError is raised when trying to overwrite an existing
// genesis block with an incompatible one.
type GenesisMismatchError struct {
	Stored, New common.Hash
}

func (e *GenesisMismatchError) Error() string {
	return fmt.Sprintf("database contains incompatible genesis (have %x, new %x)", e.Stored, e.New)
}

// DeveloperGenesisBlock returns the 'evmsync --dev' genesis block. All forks
// are active and the precompiles are funded so they are never empty.
// DeveloperGenesisBlock 返回开发模式的创世区块：所有分叉均已激活。
func DeveloperGenesisBlock(gasLimit uint64, faucet *common.Address) *Genesis {
	config := *params.AllDevChainProtocolChanges
	genesis := &Genesis{
		Config:     &config,
		GasLimit:   gasLimit,
		BaseFee:    big.NewInt(params.InitialBaseFee),
		Difficulty: big.NewInt(0),
		Alloc: GenesisAlloc{
			common.BytesToAddress([]byte{1}): {Balance: big.NewInt(1)}, // ECRecover
			common.BytesToAddress([]byte{2}): {Balance: big.NewInt(1)}, // SHA256
			common.BytesToAddress([]byte{3}): {Balance: big.NewInt(1)}, // RIPEMD
			common.BytesToAddress([]byte{4}): {Balance: big.NewInt(1)}, // Identity
			common.BytesToAddress([]byte{5}): {Balance: big.NewInt(1)}, // ModExp
		},
	}
	if faucet != nil {
		genesis.Alloc[*faucet] = GenesisAccount{Balance: new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(9))}
	}
	return genesis
}
