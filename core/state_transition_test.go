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
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/core/vm"
	"github.com/sunyihoo/evmsync/core/vm/program"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

var (
	stSender   = common.HexToAddress("0x71562b71999873db5b286df957af199ec94617f7")
	stContract = common.HexToAddress("0xc0de")
	stCoinbase = common.HexToAddress("0xc014ba5e")

	stBaseFee = big.NewInt(params.GWei)
	stFeeCap  = big.NewInt(2 * params.GWei)
)

func TestIntrinsicGas(t *testing.T) {
	nonZero := make([]byte, 33)
	for i := range nonZero {
		nonZero[i] = 0xff
	}
	tests := []struct {
		name     string
		data     []byte
		list     types.AccessList
		auths    []types.SetCodeAuthorization
		create   bool
		istanbul bool
		shanghai bool
		want     uint64
	}{
		{name: "transfer", want: 21000},
		{name: "create", create: true, want: 53000},
		{name: "frontier data", data: []byte{0, 1}, want: 21000 + 4 + 68},
		{name: "istanbul data", data: []byte{0, 1}, istanbul: true, want: 21000 + 4 + 16},
		{name: "initcode words", data: nonZero, create: true, istanbul: true, shanghai: true, want: 53000 + 33*16 + 2*2},
		{
			name: "access list",
			list: types.AccessList{{Address: stContract, StorageKeys: []common.Hash{{1}, {2}}}},
			want: 21000 + 2400 + 2*1900,
		},
		{name: "authorization", auths: make([]types.SetCodeAuthorization, 2), want: 21000 + 2*25000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gas, err := IntrinsicGas(tt.data, tt.list, tt.auths, tt.create, true, tt.istanbul, tt.shanghai)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gas)
		})
	}
}

func TestFloorDataGas(t *testing.T) {
	gas, err := FloorDataGas([]byte{0, 1}, false)
	require.NoError(t, err)
	assert.Zero(t, gas)

	// One zero byte is one token, one non-zero byte is four.
	gas, err = FloorDataGas([]byte{0, 1}, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000+5*10), gas)

	gas, err = FloorDataGas(nil, true)
	require.NoError(t, err)
	assert.Equal(t, params.TxGas, gas)
}

// newTransitionEnv returns an EVM on top of a state with a funded sender.
func newTransitionEnv(t *testing.T, config *params.ChainConfig, prepare func(*state.StateDB)) (*vm.EVM, *state.StateDB) {
	t.Helper()
	db := state.NewDatabase(rawdb.NewMemoryDatabase())
	pre := state.New(db)
	pre.SetBalance(stSender, uint256.NewInt(params.Ether))
	if prepare != nil {
		prepare(pre)
	}
	require.NoError(t, pre.Commit(true))

	statedb := state.New(db)
	blockCtx := vm.BlockContext{
		CanTransfer: CanTransfer,
		Transfer:    Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    stCoinbase,
		GasLimit:    params.GenesisGasLimit,
		BlockNumber: big.NewInt(1),
		Difficulty:  new(big.Int),
		BaseFee:     stBaseFee,
		BlobBaseFee: big.NewInt(1),
		Random:      &common.Hash{},
	}
	return vm.NewEVM(blockCtx, statedb, config, vm.Config{}), statedb
}

func newTransitionMsg(to *common.Address, nonce, gas uint64) *Message {
	return &Message{
		From:      stSender,
		To:        to,
		Nonce:     nonce,
		Value:     new(big.Int),
		GasLimit:  gas,
		GasPrice:  stFeeCap,
		GasFeeCap: stFeeCap,
		GasTipCap: stBaseFee,
	}
}

// Tests that clearing an originally non-zero slot earns the EIP-3529 refund,
// and that fees are split between sender and coinbase accordingly.
func TestApplyMessageSstoreRefund(t *testing.T) {
	config := params.ConfigForFork(forks.Prague, big.NewInt(1337))
	code := program.New().Sstore(0, 0).Op(vm.STOP).Bytes()
	evm, statedb := newTransitionEnv(t, config, func(s *state.StateDB) {
		s.SetCode(stContract, code)
		s.SetState(stContract, common.Hash{}, common.BigToHash(big.NewInt(100)))
	})
	gp := NewGasPool(params.GenesisGasLimit)
	res, err := ApplyMessage(evm, newTransitionMsg(&stContract, 0, 100000), gp)
	require.NoError(t, err)
	require.NoError(t, res.Err)

	// 21000 intrinsic, two pushes and a cold clearing SSTORE (2100 + 2900).
	peak := uint64(21000 + 3 + 3 + 5000)
	assert.Equal(t, peak, res.MaxUsedGas)
	assert.Equal(t, params.SstoreClearsScheduleRefundEIP3529, res.RefundedGas)
	assert.Equal(t, peak-params.SstoreClearsScheduleRefundEIP3529, res.UsedGas)

	assert.Equal(t, common.Hash{}, statedb.GetState(stContract, common.Hash{}))
	assert.Equal(t, uint64(1), statedb.GetNonce(stSender))
	assert.Equal(t, params.GenesisGasLimit-res.UsedGas, gp.Gas())

	paid := new(uint256.Int).Mul(uint256.NewInt(res.UsedGas), uint256.NewInt(2*params.GWei))
	want := new(uint256.Int).Sub(uint256.NewInt(params.Ether), paid)
	assert.Equal(t, want, statedb.GetBalance(stSender))
	tip := new(uint256.Int).Mul(uint256.NewInt(res.UsedGas), uint256.NewInt(params.GWei))
	assert.Equal(t, tip, statedb.GetBalance(stCoinbase))
}

// Tests that transaction-fatal errors leave the state untouched.
func TestApplyMessageRejected(t *testing.T) {
	config := params.ConfigForFork(forks.Prague, big.NewInt(1337))

	t.Run("nonce too low", func(t *testing.T) {
		evm, statedb := newTransitionEnv(t, config, func(s *state.StateDB) { s.SetNonce(stSender, 5) })
		gp := NewGasPool(params.GenesisGasLimit)
		_, err := ApplyMessage(evm, newTransitionMsg(&stContract, 4, 21000), gp)
		assert.ErrorIs(t, err, ErrNonceTooLow)
		assert.Equal(t, uint64(5), statedb.GetNonce(stSender))
		assert.Equal(t, uint256.NewInt(params.Ether), statedb.GetBalance(stSender))
		assert.Equal(t, params.GenesisGasLimit, gp.Gas())
	})
	t.Run("nonce too high", func(t *testing.T) {
		evm, _ := newTransitionEnv(t, config, nil)
		_, err := ApplyMessage(evm, newTransitionMsg(&stContract, 1, 21000), NewGasPool(params.GenesisGasLimit))
		assert.ErrorIs(t, err, ErrNonceTooHigh)
	})
	t.Run("insufficient funds", func(t *testing.T) {
		evm, statedb := newTransitionEnv(t, config, nil)
		msg := newTransitionMsg(&stContract, 0, 21000)
		msg.Value = new(big.Int).SetUint64(params.Ether)
		_, err := ApplyMessage(evm, msg, NewGasPool(params.GenesisGasLimit))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, uint64(0), statedb.GetNonce(stSender))
		assert.Equal(t, uint256.NewInt(params.Ether), statedb.GetBalance(stSender))
	})
	t.Run("intrinsic gas", func(t *testing.T) {
		evm, _ := newTransitionEnv(t, config, nil)
		_, err := ApplyMessage(evm, newTransitionMsg(&stContract, 0, 20999), NewGasPool(params.GenesisGasLimit))
		assert.ErrorIs(t, err, ErrIntrinsicGas)
	})
	t.Run("floor data gas", func(t *testing.T) {
		evm, _ := newTransitionEnv(t, config, nil)
		msg := newTransitionMsg(&stContract, 0, 21000+16*100)
		msg.Data = make([]byte, 100)
		for i := range msg.Data {
			msg.Data[i] = 1
		}
		_, err := ApplyMessage(evm, msg, NewGasPool(params.GenesisGasLimit))
		assert.ErrorIs(t, err, ErrFloorDataGas)
	})
	t.Run("fee cap below base fee", func(t *testing.T) {
		evm, _ := newTransitionEnv(t, config, nil)
		msg := newTransitionMsg(&stContract, 0, 21000)
		msg.GasFeeCap = big.NewInt(1)
		msg.GasTipCap = big.NewInt(1)
		_, err := ApplyMessage(evm, msg, NewGasPool(params.GenesisGasLimit))
		assert.ErrorIs(t, err, ErrFeeCapTooLow)
	})
	t.Run("sender has code", func(t *testing.T) {
		evm, _ := newTransitionEnv(t, config, func(s *state.StateDB) { s.SetCode(stSender, []byte{0x00}) })
		_, err := ApplyMessage(evm, newTransitionMsg(&stContract, 0, 21000), NewGasPool(params.GenesisGasLimit))
		assert.ErrorIs(t, err, ErrSenderNoEOA)
	})
	t.Run("block gas limit", func(t *testing.T) {
		evm, _ := newTransitionEnv(t, config, nil)
		_, err := ApplyMessage(evm, newTransitionMsg(&stContract, 0, 21000), NewGasPool(20000))
		assert.ErrorIs(t, err, ErrGasLimitReached)
	})
}

// Tests that a reverted frame still consumes gas and bumps the nonce.
func TestApplyMessageRevert(t *testing.T) {
	config := params.ConfigForFork(forks.Prague, big.NewInt(1337))
	code := program.New().Sstore(1, 1).Mstore([]byte{0xde, 0xad}, 0).Revert(0, 2).Bytes()
	evm, statedb := newTransitionEnv(t, config, func(s *state.StateDB) { s.SetCode(stContract, code) })

	res, err := ApplyMessage(evm, newTransitionMsg(&stContract, 0, 100000), NewGasPool(params.GenesisGasLimit))
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, vm.ErrExecutionReverted)
	assert.True(t, res.Failed())
	assert.Equal(t, []byte{0xde, 0xad}, res.Revert())
	assert.Nil(t, res.Return())
	assert.Equal(t, common.Hash{}, statedb.GetState(stContract, common.BigToHash(big.NewInt(1))))
	assert.Equal(t, uint64(1), statedb.GetNonce(stSender))
	assert.Greater(t, res.UsedGas, params.TxGas)
}

// Tests that a TSTORE made inside a reverted call is still visible to a
// sibling call into the same contract, and that the next transaction starts
// from empty transient storage.
func TestTransientStorageSurvivesRevert(t *testing.T) {
	config := params.ConfigForFork(forks.Prague, big.NewInt(1337))
	inner := common.HexToAddress("0x1111")

	// Without calldata inner writes slot 1 and reverts, with calldata it
	// returns the transient value of slot 1.
	write := program.New().Tstore(1, 7).Revert(0, 0).Bytes()
	read := uint64(4 + len(write))
	prog := program.New().Op(vm.CALLDATASIZE).Push(read).Op(vm.JUMPI).Append(write)
	_, dest := prog.Jumpdest()
	require.Equal(t, read, dest)
	innerCode := prog.Push(1).Op(vm.TLOAD).ReturnTop().Bytes()

	outerCode := program.New().
		Call(nil, inner, 0, 0, 0, 0, 0).Op(vm.POP).
		Call(nil, inner, 0, 0, 1, 0, 32).Op(vm.POP).
		Push(0).Op(vm.MLOAD).Push(0).Op(vm.SSTORE).
		Bytes()
	evm, statedb := newTransitionEnv(t, config, func(s *state.StateDB) {
		s.SetCode(inner, innerCode)
		s.SetCode(stContract, outerCode)
	})
	res, err := ApplyMessage(evm, newTransitionMsg(&stContract, 0, 200000), NewGasPool(params.GenesisGasLimit))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, common.BigToHash(big.NewInt(7)), statedb.GetState(stContract, common.Hash{}))
	assert.Equal(t, common.BigToHash(big.NewInt(7)), statedb.GetTransientState(inner, common.BigToHash(big.NewInt(1))))

	// Any following transaction starts from empty transient storage.
	res, err = ApplyMessage(evm, newTransitionMsg(&stCoinbase, 1, 21000), NewGasPool(params.GenesisGasLimit))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, common.Hash{}, statedb.GetTransientState(inner, common.BigToHash(big.NewInt(1))))
}

// Tests that an EIP-7702 authorization installs a delegation and the call
// runs the delegate's code against the authority's storage.
func TestApplyMessageSetCode(t *testing.T) {
	config := params.ConfigForFork(forks.Prague, big.NewInt(1337))
	key, err := crypto.HexToKey("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	authority := crypto.KeyToAddress(key)
	delegate := common.HexToAddress("0xde1e9a7e")

	evm, statedb := newTransitionEnv(t, config, func(s *state.StateDB) {
		s.SetCode(delegate, program.New().Sstore(1, 0x2a).Op(vm.STOP).Bytes())
	})
	auth, err := types.SignSetCode(key, types.SetCodeAuthorization{
		ChainID: *uint256.NewInt(1337),
		Address: delegate,
		Nonce:   1, // the sender nonce is bumped before authorizations apply
	})
	require.NoError(t, err)
	bad, err := types.SignSetCode(key, types.SetCodeAuthorization{
		ChainID: *uint256.NewInt(1),
		Address: stContract,
		Nonce:   1,
	})
	require.NoError(t, err)

	msg := newTransitionMsg(&authority, 0, 200000)
	msg.SetCodeAuthorizations = []types.SetCodeAuthorization{auth, bad}
	res, err := ApplyMessage(evm, msg, NewGasPool(params.GenesisGasLimit))
	require.NoError(t, err)
	require.NoError(t, res.Err)

	assert.Equal(t, types.AddressToDelegation(delegate), statedb.GetCode(authority))
	assert.Equal(t, uint64(2), statedb.GetNonce(authority))
	assert.Equal(t, common.BigToHash(big.NewInt(0x2a)), statedb.GetState(authority, common.BigToHash(big.NewInt(1))))
	assert.Equal(t, common.Hash{}, statedb.GetState(delegate, common.BigToHash(big.NewInt(1))))
	assert.GreaterOrEqual(t, res.MaxUsedGas, uint64(21000+2*25000))
}

func TestApplyMessageSetCodeRejected(t *testing.T) {
	config := params.ConfigForFork(forks.Prague, big.NewInt(1337))
	evm, _ := newTransitionEnv(t, config, nil)

	msg := newTransitionMsg(&stContract, 0, 100000)
	msg.SetCodeAuthorizations = []types.SetCodeAuthorization{}
	_, err := ApplyMessage(evm, msg, NewGasPool(params.GenesisGasLimit))
	assert.ErrorIs(t, err, ErrEmptyAuthList)

	msg = newTransitionMsg(nil, 0, 100000)
	msg.SetCodeAuthorizations = []types.SetCodeAuthorization{{}}
	_, err = ApplyMessage(evm, msg, NewGasPool(params.GenesisGasLimit))
	assert.ErrorIs(t, err, ErrSetCodeTxCreate)
}

// Tests that a read of an unknown record in partial mode surfaces as a
// MissingDataError instead of a result.
func TestApplyMessageMissingData(t *testing.T) {
	config := params.ConfigForFork(forks.Prague, big.NewInt(1337))
	statedb := state.New(state.NewPartialDatabase(rawdb.NewMemoryDatabase()))
	evm := vm.NewEVM(vm.BlockContext{
		CanTransfer: CanTransfer,
		Transfer:    Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		BlockNumber: big.NewInt(1),
		Difficulty:  new(big.Int),
		BaseFee:     stBaseFee,
		Random:      &common.Hash{},
		GasLimit:    params.GenesisGasLimit,
	}, statedb, config, vm.Config{})

	_, err := ApplyMessage(evm, newTransitionMsg(&stContract, 0, 21000), NewGasPool(params.GenesisGasLimit))
	var missing *state.MissingDataError
	require.ErrorAs(t, err, &missing)
}
