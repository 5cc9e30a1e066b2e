// Copyright 2017 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/common/hexutil"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/state"
	"github.com/sunyihoo/evmsync/core/vm/runtime"
	"github.com/sunyihoo/evmsync/internal/flags"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
)

var (
	senderAddress   = common.BytesToAddress([]byte("sender"))
	receiverAddress = common.BytesToAddress([]byte("receiver"))
)

// execResult is the outcome of a single run.
// execResult 记录一次执行的输出、消耗的 gas 与错误。
type execResult struct {
	output  []byte
	gasUsed uint64
	elapsed time.Duration
	err     error
}

// runConfig collects the inputs of the run command.
type runConfig struct {
	code  []byte
	input []byte
	gas   uint64
	value *big.Int
	fork  forks.Fork
}

// execute installs the code at the receiver and calls it from the sender.
// The returned state has the run committed to it.
func execute(rc *runConfig) (*execResult, *state.StateDB) {
	statedb := state.New(state.NewDatabase(rawdb.NewMemoryDatabase()))
	statedb.CreateAccount(senderAddress)
	statedb.CreateAccount(receiverAddress)
	statedb.SetCode(receiverAddress, rc.code)

	value := rc.value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 {
		// Fund the sender so the transfer can succeed.
		statedb.AddBalance(senderAddress, uint256.MustFromBig(value))
	}
	cfg := &runtime.Config{
		ChainConfig: params.ConfigForFork(rc.fork, big.NewInt(1)),
		Origin:      senderAddress,
		GasLimit:    rc.gas,
		Value:       value,
		State:       statedb,
	}
	start := time.Now()
	output, leftOverGas, err := runtime.Call(receiverAddress, rc.input, cfg)
	res := &execResult{
		output:  output,
		gasUsed: rc.gas - leftOverGas,
		elapsed: time.Since(start),
		err:     err,
	}
	if cerr := statedb.Commit(true); cerr != nil && res.err == nil {
		res.err = cerr
	}
	return res, statedb
}

// parseRunConfig reads the run flags. The code may be given either with
// --code or as the first argument.
func parseRunConfig(ctx *cli.Context) (*runConfig, error) {
	codeHex := ctx.String(CodeFlag.Name)
	if codeHex == "" {
		codeHex = ctx.Args().First()
	}
	if codeHex == "" {
		return nil, fmt.Errorf("no code given, use --%s", CodeFlag.Name)
	}
	code, err := decodeHex(codeHex)
	if err != nil {
		return nil, fmt.Errorf("invalid code: %v", err)
	}
	input, err := decodeHex(ctx.String(InputFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid input: %v", err)
	}
	fork, err := forks.Parse(ctx.String(ForkFlag.Name))
	if err != nil {
		return nil, err
	}
	return &runConfig{
		code:  code,
		input: input,
		gas:   ctx.Uint64(GasFlag.Name),
		value: flags.GlobalBig(ctx, ValueFlag.Name),
		fork:  fork,
	}, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hexutil.Decode("0x" + s)
}

func printResult(w io.Writer, res *execResult) {
	fmt.Fprintf(w, "%#x\n", res.output)
	fmt.Fprintf(w, "gas used: %d\n", res.gasUsed)
	fmt.Fprintf(w, "execution time: %v\n", res.elapsed)
	if res.err != nil {
		fmt.Fprintf(w, "error: %v\n", res.err)
	}
}

func runCmd(ctx *cli.Context) error {
	rc, err := parseRunConfig(ctx)
	if err != nil {
		return err
	}
	res, statedb := execute(rc)
	if ctx.Bool(DumpFlag.Name) {
		spew.Fdump(ctx.App.Writer, statedb.RawDump(nil))
	}
	printResult(ctx.App.Writer, res)
	return nil
}
