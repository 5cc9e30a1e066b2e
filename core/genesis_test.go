// Copyright 2025 The go-ethereum Authors
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
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

func TestGenesisToBlock(t *testing.T) {
	gspec := &Genesis{Config: params.ConfigForFork(forks.Cancun, big.NewInt(1))}
	block := gspec.ToBlock()
	head := block.Header()

	assert.Equal(t, uint64(0), block.NumberU64())
	assert.Equal(t, params.GenesisGasLimit, head.GasLimit)
	assert.Equal(t, big.NewInt(params.InitialBaseFee), head.BaseFee)
	require.NotNil(t, head.ExcessBlobGas)
	assert.Zero(t, *head.ExcessBlobGas)
	assert.Equal(t, types.EmptyReceiptsHash, head.ReceiptHash)
	assert.Equal(t, types.EmptyTxsHash, head.TxHash)

	// Pre-London genesis carries no base fee, pre-Cancun no blob fields.
	gspec = &Genesis{Config: params.ConfigForFork(forks.Berlin, big.NewInt(1)), GasLimit: 8_000_000}
	head = gspec.ToBlock().Header()
	assert.Nil(t, head.BaseFee)
	assert.Nil(t, head.ExcessBlobGas)
	assert.Equal(t, uint64(8_000_000), head.GasLimit)
}

func TestGenesisCommit(t *testing.T) {
	slot := common.HexToHash("0x01")
	gspec := &Genesis{
		Config: params.ConfigForFork(forks.Prague, big.NewInt(1337)),
		Alloc: GenesisAlloc{
			bcSender: {
				Balance: big.NewInt(params.Ether),
				Nonce:   3,
				Code:    []byte{0x60, 0x00},
				Storage: map[common.Hash]common.Hash{slot: common.HexToHash("0x2a")},
			},
		},
	}
	db := rawdb.NewMemoryDatabase()
	block, err := gspec.Commit(db)
	require.NoError(t, err)

	hash := block.Hash()
	assert.Equal(t, hash, rawdb.ReadCanonicalHash(db, 0))
	assert.Equal(t, hash, rawdb.ReadHeadBlockHash(db))
	assert.Equal(t, hash, rawdb.ReadHeadHeaderHash(db))
	assert.Equal(t, gspec.Config.ChainID, rawdb.ReadChainConfig(db, hash).ChainID)

	statedb := state.New(state.NewDatabase(db))
	assert.Equal(t, uint256.NewInt(params.Ether), statedb.GetBalance(bcSender))
	assert.Equal(t, uint64(3), statedb.GetNonce(bcSender))
	assert.Equal(t, []byte{0x60, 0x00}, statedb.GetCode(bcSender))
	assert.Equal(t, common.HexToHash("0x2a"), statedb.GetState(bcSender, slot))

	stored, err := ReadGenesis(db)
	require.NoError(t, err)
	assert.Equal(t, hash, stored.ToBlock().Hash())
	assert.Empty(t, stored.Alloc)

	_, err = (&Genesis{}).Commit(rawdb.NewMemoryDatabase())
	assert.ErrorIs(t, err, errGenesisNoConfig)
}

func TestSetupGenesisBlock(t *testing.T) {
	db := rawdb.NewMemoryDatabase()

	// An empty database with no genesis gets the developer chain.
	config, hash, err := SetupGenesisBlock(db, nil)
	require.NoError(t, err)
	assert.Equal(t, params.AllDevChainProtocolChanges.ChainID, config.ChainID)
	assert.Equal(t, DeveloperGenesisBlock(params.GenesisGasLimit, nil).ToBlock().Hash(), hash)

	// Reopening with or without the same genesis is fine.
	_, again, err := SetupGenesisBlock(db, nil)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
	_, again, err = SetupGenesisBlock(db, DeveloperGenesisBlock(params.GenesisGasLimit, nil))
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	// A different genesis is refused.
	other := DeveloperGenesisBlock(params.GenesisGasLimit, nil)
	other.ExtraData = []byte("other")
	_, _, err = SetupGenesisBlock(db, other)
	var mismatch *GenesisMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, hash, mismatch.Stored)
}

func TestLoadGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	blob := `{
		"config": {"chainId": 1337},
		"gasLimit": 30000000,
		"difficulty": 0,
		"alloc": {
			"0x71562b71999873db5b286df957af199ec94617f7": {"balance": 1000}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	gspec, err := LoadGenesis(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(30_000_000), gspec.GasLimit)
	assert.Equal(t, big.NewInt(1337), gspec.Config.ChainID)
	assert.Equal(t, big.NewInt(1000), gspec.Alloc[bcSender].Balance)

	_, err = LoadGenesis(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
