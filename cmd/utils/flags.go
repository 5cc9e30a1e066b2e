// Copyright 2015 The go-ethereum Authors
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

// Package utils contains internal helper functions for evmsync commands.
package utils

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/eth/ethconfig"
	"github.com/sunyihoo/evmsync/internal/flags"
	"github.com/sunyihoo/evmsync/node"
)

var (
	// General settings
	DataDirFlag = &flags.DirectoryFlag{
		Name:     "datadir",
		Usage:    "Data directory for the databases and keys",
		Value:    flags.DirectoryString(node.DefaultDataDir()),
		Category: flags.EthCategory,
	}
	DBEngineFlag = &cli.StringFlag{
		Name:     "db.engine",
		Usage:    "Backing database implementation to use ('pebble', 'leveldb' or 'memory')",
		Value:    node.DefaultConfig.DBEngine,
		Category: flags.EthCategory,
	}
	NetworkIdFlag = &cli.Uint64Flag{
		Name:     "networkid",
		Usage:    "Explicitly set network id (integer), zero selects the chain id",
		Value:    ethconfig.Defaults.NetworkId,
		Category: flags.EthCategory,
	}
	GenesisFlag = &cli.StringFlag{
		Name:     "genesis",
		Usage:    "JSON genesis file used when the database is empty",
		Category: flags.EthCategory,
	}

	// Sync settings
	SyncModeFlag = &cli.StringFlag{
		Name:     "syncmode",
		Usage:    `Blockchain sync mode ("full", "fast", "snap" or "none")`,
		Value:    ethconfig.Defaults.SyncMode.String(),
		Category: flags.SyncCategory,
	}
	SnapSyncFlag = &cli.BoolFlag{
		Name:     "snap",
		Usage:    "Shorthand for --syncmode=snap",
		Category: flags.SyncCategory,
	}
	NoSyncFlag = &cli.BoolFlag{
		Name:     "nosync",
		Usage:    "Disables every sync feed, the node only serves its local chain",
		Category: flags.SyncCategory,
	}

	// Performance tuning settings
	CacheFlag = &cli.IntFlag{
		Name:     "cache",
		Usage:    "Megabytes of memory allocated to the database caches",
		Value:    ethconfig.Defaults.DatabaseCache,
		Category: flags.PerfCategory,
	}

	// RPC settings
	HTTPEnabledFlag = &cli.BoolFlag{
		Name:     "http",
		Usage:    "Enable the HTTP-RPC server",
		Category: flags.APICategory,
	}
	HTTPListenAddrFlag = &cli.StringFlag{
		Name:     "http.addr",
		Usage:    "HTTP-RPC server listening interface",
		Value:    node.DefaultHTTPHost,
		Category: flags.APICategory,
	}
	HTTPPortFlag = &cli.IntFlag{
		Name:     "http.port",
		Usage:    "HTTP-RPC server listening port",
		Value:    node.DefaultHTTPPort,
		Category: flags.APICategory,
	}
	HTTPCORSDomainFlag = &cli.StringFlag{
		Name:     "http.corsdomain",
		Usage:    "Comma separated list of domains from which to accept cross origin requests (browser enforced)",
		Value:    "",
		Category: flags.APICategory,
	}
	HTTPApiFlag = &cli.StringFlag{
		Name:     "http.api",
		Usage:    "API's offered over the HTTP-RPC interface",
		Value:    "",
		Category: flags.APICategory,
	}
	WSEnabledFlag = &cli.BoolFlag{
		Name:     "ws",
		Usage:    "Enable the WS-RPC server",
		Category: flags.APICategory,
	}
	WSListenAddrFlag = &cli.StringFlag{
		Name:     "ws.addr",
		Usage:    "WS-RPC server listening interface",
		Value:    node.DefaultWSHost,
		Category: flags.APICategory,
	}
	WSPortFlag = &cli.IntFlag{
		Name:     "ws.port",
		Usage:    "WS-RPC server listening port",
		Value:    node.DefaultWSPort,
		Category: flags.APICategory,
	}
	AuthPortFlag = &cli.IntFlag{
		Name:     "authrpc.port",
		Usage:    "Listening port for authenticated APIs",
		Value:    node.DefaultAuthPort,
		Category: flags.APICategory,
	}
	JWTSecretFlag = &flags.DirectoryFlag{
		Name:     "authrpc.jwtsecret",
		Usage:    "Path to a JWT secret to use for authenticated RPC endpoints",
		Category: flags.APICategory,
	}
	RPCGlobalGasCapFlag = &cli.Uint64Flag{
		Name:     "rpc.gascap",
		Usage:    "Sets a cap on gas that can be used in eth_call (0=infinite)",
		Value:    ethconfig.Defaults.RPCGasCap,
		Category: flags.APICategory,
	}
	RPCGlobalEVMTimeoutFlag = &cli.DurationFlag{
		Name:     "rpc.evmtimeout",
		Usage:    "Sets a timeout used for eth_call (0=infinite)",
		Value:    ethconfig.Defaults.RPCEVMTimeout,
		Category: flags.APICategory,
	}

	// Network Settings
	MaxPeersFlag = &cli.IntFlag{
		Name:     "maxpeers",
		Usage:    "Maximum number of network peers (network disabled if set to 0)",
		Value:    node.DefaultConfig.P2P.MaxPeers,
		Category: flags.NetworkingCategory,
	}
	ListenPortFlag = &cli.IntFlag{
		Name:     "port",
		Usage:    "Network listening port",
		Value:    30303,
		Category: flags.NetworkingCategory,
	}
	StaticNodesFlag = &cli.StringFlag{
		Name:     "staticnodes",
		Usage:    "Comma separated host:port addresses of peers to keep connected",
		Value:    "",
		Category: flags.NetworkingCategory,
	}
)

// Fatalf formats a message to standard error and exits the program.
// The message is also printed to standard output if standard error
// is redirected to a different file.
func Fatalf(format string, args ...interface{}) {
	w := io.MultiWriter(os.Stdout, os.Stderr)
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		}
	}
	fmt.Fprintf(w, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// SetNodeConfig applies node-related command line flags to the config.
// SetNodeConfig 将节点相关的命令行标志写入配置。
func SetNodeConfig(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(DataDirFlag.Name) {
		cfg.DataDir = ctx.String(DataDirFlag.Name)
	}
	if ctx.IsSet(DBEngineFlag.Name) {
		engine := ctx.String(DBEngineFlag.Name)
		if engine != rawdb.DBLeveldb && engine != rawdb.DBPebble && engine != rawdb.DBMemory {
			Fatalf("Invalid choice for db.engine '%s', allowed 'leveldb', 'pebble' or 'memory'", engine)
		}
		cfg.DBEngine = engine
	}
	setHTTP(ctx, cfg)
	setWS(ctx, cfg)
	setAuth(ctx, cfg)
	setP2P(ctx, cfg)
}

// setHTTP creates the HTTP RPC listener interface string from the set
// command line flags, returning empty if the HTTP endpoint is disabled.
func setHTTP(ctx *cli.Context, cfg *node.Config) {
	if ctx.Bool(HTTPEnabledFlag.Name) {
		if cfg.HTTP.Host == "" {
			cfg.HTTP.Host = node.DefaultHTTPHost
		}
		if ctx.IsSet(HTTPListenAddrFlag.Name) {
			cfg.HTTP.Host = ctx.String(HTTPListenAddrFlag.Name)
		}
	}
	if ctx.IsSet(HTTPPortFlag.Name) {
		cfg.HTTP.Port = ctx.Int(HTTPPortFlag.Name)
	}
	if ctx.IsSet(HTTPCORSDomainFlag.Name) {
		cfg.HTTP.Cors = SplitAndTrim(ctx.String(HTTPCORSDomainFlag.Name))
	}
	if ctx.IsSet(HTTPApiFlag.Name) {
		cfg.HTTP.Modules = SplitAndTrim(ctx.String(HTTPApiFlag.Name))
	}
}

// setWS creates the WebSocket RPC listener interface string from the set
// command line flags, returning empty if the HTTP endpoint is disabled.
func setWS(ctx *cli.Context, cfg *node.Config) {
	if ctx.Bool(WSEnabledFlag.Name) {
		if cfg.WS.Host == "" {
			cfg.WS.Host = node.DefaultWSHost
		}
		if ctx.IsSet(WSListenAddrFlag.Name) {
			cfg.WS.Host = ctx.String(WSListenAddrFlag.Name)
		}
	}
	if ctx.IsSet(WSPortFlag.Name) {
		cfg.WS.Port = ctx.Int(WSPortFlag.Name)
	}
}

func setAuth(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(AuthPortFlag.Name) {
		cfg.Auth.Port = ctx.Int(AuthPortFlag.Name)
	}
	if ctx.IsSet(JWTSecretFlag.Name) {
		cfg.Auth.JWTSecret = ctx.String(JWTSecretFlag.Name)
	}
}

func setP2P(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(MaxPeersFlag.Name) {
		cfg.P2P.MaxPeers = ctx.Int(MaxPeersFlag.Name)
	}
	if ctx.IsSet(ListenPortFlag.Name) {
		cfg.P2P.ListenAddr = fmt.Sprintf(":%d", ctx.Int(ListenPortFlag.Name))
	}
	if ctx.IsSet(StaticNodesFlag.Name) {
		cfg.P2P.StaticNodes = SplitAndTrim(ctx.String(StaticNodesFlag.Name))
	}
	if cfg.P2P.MaxPeers == 0 {
		cfg.P2P.ListenAddr = ""
		cfg.P2P.NoDial = true
	}
}

// SetEthConfig applies eth-related command line flags to the config.
// SetEthConfig 将同步与 RPC 相关的命令行标志写入 eth 配置。
func SetEthConfig(ctx *cli.Context, cfg *ethconfig.Config) {
	switch {
	case ctx.Bool(SnapSyncFlag.Name):
		cfg.SyncMode = ethconfig.SnapSync
	case ctx.Bool(NoSyncFlag.Name):
		cfg.SyncMode = ethconfig.NoSync
	case ctx.IsSet(SyncModeFlag.Name):
		if err := cfg.SyncMode.UnmarshalText([]byte(ctx.String(SyncModeFlag.Name))); err != nil {
			Fatalf("invalid --syncmode flag: %v", err)
		}
	}
	if ctx.IsSet(NetworkIdFlag.Name) {
		cfg.NetworkId = ctx.Uint64(NetworkIdFlag.Name)
	}
	if ctx.IsSet(CacheFlag.Name) {
		cfg.DatabaseCache = ctx.Int(CacheFlag.Name)
	}
	cfg.DatabaseHandles = MakeDatabaseHandles()

	if ctx.IsSet(RPCGlobalGasCapFlag.Name) {
		cfg.RPCGasCap = ctx.Uint64(RPCGlobalGasCapFlag.Name)
	}
	if ctx.IsSet(RPCGlobalEVMTimeoutFlag.Name) {
		cfg.RPCEVMTimeout = ctx.Duration(RPCGlobalEVMTimeoutFlag.Name)
	}
}

// MakeDatabaseHandles returns the number of file descriptors handed to the
// database. A fixed allowance is used, the databases cap it further.
func MakeDatabaseHandles() int {
	return 2048
}
