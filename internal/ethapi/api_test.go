// Copyright 2023 The go-ethereum Authors
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

package ethapi

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/common/hexutil"
	"github.com/sunyihoo/evmsync/consensus/beacon"
	"github.com/sunyihoo/evmsync/core"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/core/vm"
	"github.com/sunyihoo/evmsync/core/vm/program"
	"github.com/sunyihoo/evmsync/eth/downloader"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
	"github.com/sunyihoo/evmsync/rpc"
)

var (
	testAccount  = common.HexToAddress("0x71562b71999873db5b286df957af199ec94617f7")
	testReturner = common.HexToAddress("0x1000")
	testReverter = common.HexToAddress("0x2000")
	testStore    = common.HexToAddress("0x3000")
)

// revertPayload encodes Error(reason) the way solidity does for short reasons.
func revertPayload(reason string) []byte {
	payload := append([]byte{}, revertSelector...)
	payload = append(payload, common.LeftPadBytes([]byte{0x20}, 32)...)
	payload = append(payload, common.LeftPadBytes([]byte{byte(len(reason))}, 32)...)
	return append(payload, common.RightPadBytes([]byte(reason), 32)...)
}

type testBackend struct {
	chain  *core.BlockChain
	status downloader.SyncStatus
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	reverting := revertPayload("boom")
	genesis := &core.Genesis{
		Config: params.ConfigForFork(forks.Prague, big.NewInt(1337)),
		Alloc: core.GenesisAlloc{
			testAccount:  {Balance: big.NewInt(params.Ether), Nonce: 3},
			testReturner: {Balance: new(big.Int), Code: program.New().Push(42).ReturnTop().Bytes()},
			testReverter: {Balance: new(big.Int), Code: program.New().Mstore(reverting, 0).Revert(0, len(reverting)).Bytes()},
			testStore: {
				Balance: new(big.Int),
				Code:    []byte{byte(vm.STOP)},
				Storage: map[common.Hash]common.Hash{{31: 1}: {31: 7}},
			},
		},
	}
	chain, err := core.NewBlockChain(rawdb.NewMemoryDatabase(), genesis, beacon.New(), nil)
	require.NoError(t, err)
	t.Cleanup(chain.Stop)
	return &testBackend{chain: chain}
}

func (b *testBackend) SyncProgress() downloader.SyncProgress {
	return downloader.SyncProgress{StartingBlock: 1, CurrentBlock: 2, HighestBlock: 10, Mode: downloader.Full}
}
func (b *testBackend) SyncStatus() downloader.SyncStatus { return b.status }
func (b *testBackend) ChainDb() ethdb.Database           { return b.chain.Database() }
func (b *testBackend) RPCGasCap() uint64                 { return 50_000_000 }
func (b *testBackend) RPCEVMTimeout() time.Duration      { return time.Second }
func (b *testBackend) CurrentHeader() *types.Header      { return b.chain.CurrentHeader() }
func (b *testBackend) CurrentBlock() *types.Header       { return b.chain.CurrentBlock() }
func (b *testBackend) ChainConfig() *params.ChainConfig  { return b.chain.Config() }

func (b *testBackend) HeaderByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Header, error) {
	if number < 0 {
		return b.chain.CurrentBlock(), nil
	}
	return b.chain.GetHeaderByNumber(uint64(number)), nil
}

func (b *testBackend) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return b.chain.GetHeaderByHash(hash), nil
}

func (b *testBackend) HeaderByNumberOrHash(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*types.Header, error) {
	if number, ok := blockNrOrHash.Number(); ok {
		return b.HeaderByNumber(ctx, number)
	}
	hash, _ := blockNrOrHash.Hash()
	return b.HeaderByHash(ctx, hash)
}

func (b *testBackend) BlockByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Block, error) {
	header, _ := b.HeaderByNumber(ctx, number)
	if header == nil {
		return nil, nil
	}
	return b.chain.GetBlock(header.Hash(), header.Number.Uint64()), nil
}

func (b *testBackend) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	return b.chain.GetBlockByHash(hash), nil
}

func (b *testBackend) StateAndHeaderByNumberOrHash(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*state.StateDB, *types.Header, error) {
	header, err := b.HeaderByNumberOrHash(ctx, blockNrOrHash)
	if header == nil || err != nil {
		return nil, nil, errors.New("header not found")
	}
	return b.chain.State(), header, nil
}

func (b *testBackend) GetEVM(ctx context.Context, statedb *state.StateDB, header *types.Header, vmConfig *vm.Config) *vm.EVM {
	return vm.NewEVM(core.NewEVMBlockContext(header, b.chain, nil), statedb, b.chain.Config(), *vmConfig)
}

var latest = rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)

func TestAccountQueries(t *testing.T) {
	var (
		api = NewBlockChainAPI(newTestBackend(t))
		ctx = context.Background()
	)
	balance, err := api.GetBalance(ctx, testAccount, latest)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(params.Ether), balance.ToInt())

	code, err := api.GetCode(ctx, testStore, latest)
	require.NoError(t, err)
	assert.Equal(t, hexutil.Bytes{byte(vm.STOP)}, code)

	slot, err := api.GetStorageAt(ctx, testStore, "0x1", latest)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{31: 7}.Bytes(), []byte(slot))

	_, err = api.GetStorageAt(ctx, testStore, "0xzz", latest)
	assert.Error(t, err)

	assert.Equal(t, hexutil.Uint64(0), api.BlockNumber())
	assert.Equal(t, big.NewInt(1337), api.ChainId().ToInt())
}

func TestTransactionCount(t *testing.T) {
	api := NewTransactionAPI(newTestBackend(t))
	nonce, err := api.GetTransactionCount(context.Background(), testAccount, latest)
	require.NoError(t, err)
	assert.Equal(t, hexutil.Uint64(3), *nonce)
}

func TestGetBlock(t *testing.T) {
	var (
		backend = newTestBackend(t)
		api     = NewBlockChainAPI(backend)
		ctx     = context.Background()
	)
	genesis := backend.chain.Genesis()
	fields, err := api.GetBlockByNumber(ctx, rpc.EarliestBlockNumber)
	require.NoError(t, err)
	assert.Equal(t, genesis.Hash(), fields["hash"])
	assert.Equal(t, []common.Hash{}, fields["transactions"])

	byHash, err := api.GetBlockByHash(ctx, genesis.Hash())
	require.NoError(t, err)
	assert.Equal(t, fields, byHash)

	header := api.GetHeaderByHash(ctx, genesis.Hash())
	require.NotNil(t, header)
	assert.Equal(t, (*hexutil.Big)(genesis.BaseFee()), header["baseFeePerGas"])

	missing, err := api.GetBlockByNumber(ctx, 5)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCall(t *testing.T) {
	var (
		api = NewBlockChainAPI(newTestBackend(t))
		ctx = context.Background()
	)
	out, err := api.Call(ctx, TransactionArgs{From: &testAccount, To: &testReturner}, nil)
	require.NoError(t, err)
	assert.Equal(t, common.LeftPadBytes([]byte{42}, 32), []byte(out))

	_, err = api.Call(ctx, TransactionArgs{From: &testAccount, To: &testReverter}, &latest)
	var revert *revertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, 3, revert.ErrorCode())
	assert.Equal(t, "execution reverted: boom", revert.Error())
	assert.Equal(t, hexutil.Encode(revertPayload("boom")), revert.ErrorData())
}

func TestCallErrors(t *testing.T) {
	var (
		api   = NewBlockChainAPI(newTestBackend(t))
		ctx   = context.Background()
		empty = common.HexToAddress("0xdead")
	)
	// Value transfers from an empty account are rejected before execution.
	_, err := api.Call(ctx, TransactionArgs{From: &empty, To: &testReturner, Value: (*hexutil.Big)(big.NewInt(1))}, nil)
	var txErr *invalidTxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, errCodeInsufficientFunds, txErr.ErrorCode())

	// Mixing fee styles is invalid.
	price := (*hexutil.Big)(big.NewInt(1))
	_, err = api.Call(ctx, TransactionArgs{To: &testReturner, GasPrice: price, MaxFeePerGas: price}, nil)
	var paramsErr *invalidParamsError
	require.ErrorAs(t, err, &paramsErr)
	assert.Equal(t, errCodeInvalidParams, paramsErr.ErrorCode())

	// A foreign chain id is refused.
	_, err = api.Call(ctx, TransactionArgs{To: &testReturner, ChainID: (*hexutil.Big)(big.NewInt(1))}, nil)
	require.ErrorAs(t, err, &paramsErr)

	// Conflicting calldata fields.
	data, input := hexutil.Bytes{1}, hexutil.Bytes{2}
	_, err = api.Call(ctx, TransactionArgs{To: &testReturner, Data: &data, Input: &input}, nil)
	require.ErrorAs(t, err, &paramsErr)
}

func TestSyncing(t *testing.T) {
	backend := newTestBackend(t)
	api := NewEthereumAPI(backend)

	res, err := api.Syncing()
	require.NoError(t, err)
	assert.Equal(t, false, res)

	backend.status = downloader.Syncing
	res, err = api.Syncing()
	require.NoError(t, err)
	progress, ok := res.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, hexutil.Uint64(10), progress["highestBlock"])
	assert.Equal(t, hexutil.Uint64(2), progress["currentBlock"])
	assert.Equal(t, downloader.Full.String(), progress["syncMode"])
}

func TestUnpackRevert(t *testing.T) {
	tests := []struct {
		data   []byte
		reason string
		ok     bool
	}{
		{revertPayload("boom"), "boom", true},
		{revertPayload(""), "", true},
		{nil, "", false},
		{[]byte{0xde, 0xad, 0xbe, 0xef}, "", false},
		{revertPayload("boom")[:40], "", false},
		// offset pointing past the payload
		{append(append([]byte{}, revertSelector...), append(common.LeftPadBytes([]byte{0xff}, 32), make([]byte, 32)...)...), "", false},
	}
	for i, tt := range tests {
		reason, ok := unpackRevert(tt.data)
		assert.Equal(t, tt.ok, ok, "test %d", i)
		assert.Equal(t, tt.reason, reason, "test %d", i)
	}
}

func TestTxValidationError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{core.ErrNonceTooHigh, errCodeNonceTooHigh},
		{core.ErrNonceTooLow, errCodeNonceTooLow},
		{core.ErrSenderNoEOA, errCodeSenderIsNotEOA},
		{core.ErrIntrinsicGas, errCodeIntrinsicGas},
		{core.ErrFloorDataGas, errCodeIntrinsicGas},
		{core.ErrInsufficientFunds, errCodeInsufficientFunds},
		{core.ErrMaxInitCodeSizeExceeded, errCodeMaxInitCodeSizeExceeded},
		{core.ErrFeeCapTooLow, errCodeInvalidParams},
		{errors.New("other"), errCodeInternalError},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("%w: detail", tt.err)
		assert.Equal(t, tt.code, txValidationError(wrapped).ErrorCode(), tt.err.Error())
	}
	assert.Nil(t, txValidationError(nil))
}

func TestStateErrorCode(t *testing.T) {
	missing := &state.MissingDataError{Address: testAccount}
	err := &stateUnavailableError{missing}
	assert.Equal(t, errCodeStateUnavailable, err.ErrorCode())
	assert.Contains(t, err.Error(), "state not available")
}
