// Copyright 2014 The go-ethereum Authors
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

// evmsync is a sync node that follows an Ethereum network over the eth and
// snap protocols and serves the synced chain over JSON-RPC.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sunyihoo/evmsync/cmd/utils"
	"github.com/sunyihoo/evmsync/internal/debug"
	"github.com/sunyihoo/evmsync/internal/flags"
	"github.com/sunyihoo/evmsync/log"
)

const (
	clientIdentifier = "evmsync" // Client identifier to advertise over the network
)

var (
	nodeFlags = []cli.Flag{
		configFileFlag,
		utils.DataDirFlag,
		utils.DBEngineFlag,
		utils.NetworkIdFlag,
		utils.GenesisFlag,
		utils.SyncModeFlag,
		utils.SnapSyncFlag,
		utils.NoSyncFlag,
		utils.CacheFlag,
		utils.MaxPeersFlag,
		utils.ListenPortFlag,
		utils.StaticNodesFlag,
	}
	rpcFlags = []cli.Flag{
		utils.HTTPEnabledFlag,
		utils.HTTPListenAddrFlag,
		utils.HTTPPortFlag,
		utils.HTTPCORSDomainFlag,
		utils.HTTPApiFlag,
		utils.WSEnabledFlag,
		utils.WSListenAddrFlag,
		utils.WSPortFlag,
		utils.AuthPortFlag,
		utils.JWTSecretFlag,
		utils.RPCGlobalGasCapFlag,
		utils.RPCGlobalEVMTimeoutFlag,
	}
)

var app = flags.NewApp("the evmsync command line interface")

func init() {
	app.Action = evmsync
	app.Commands = []*cli.Command{
		dumpConfigCommand,
		dbCommand,
	}
	app.Flags = append(append(append([]cli.Flag{}, nodeFlags...), rpcFlags...), debug.Flags...)

	app.Before = func(ctx *cli.Context) error {
		if err := flags.CheckExclusive(ctx); err != nil {
			return err
		}
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// prepare logs the selected sync mode for convenience.
func prepare(ctx *cli.Context) {
	switch {
	case ctx.Bool(utils.NoSyncFlag.Name):
		log.Info("Starting evmsync without chain sync...")
	case ctx.Bool(utils.SnapSyncFlag.Name):
		log.Info("Starting evmsync in snap sync mode...")
	default:
		log.Info("Starting evmsync...", "syncmode", ctx.String(utils.SyncModeFlag.Name))
	}
}

// evmsync is the main entry point into the system if no special subcommand is
// run. It creates a default node based on the command line arguments and runs
// it in blocking mode, waiting for it to be shut down.
func evmsync(ctx *cli.Context) error {
	if args := ctx.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	prepare(ctx)
	stack := makeFullNode(ctx)
	defer stack.Close()

	utils.StartNode(stack)
	stack.Wait()
	return nil
}
