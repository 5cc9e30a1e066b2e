// Copyright 2019 The go-ethereum Authors
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

package utils

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/sunyihoo/evmsync/eth/ethconfig"
	"github.com/sunyihoo/evmsync/node"
)

var allFlags = []cli.Flag{
	DataDirFlag, DBEngineFlag, NetworkIdFlag, GenesisFlag,
	SyncModeFlag, SnapSyncFlag, NoSyncFlag, CacheFlag,
	HTTPEnabledFlag, HTTPListenAddrFlag, HTTPPortFlag, HTTPCORSDomainFlag, HTTPApiFlag,
	WSEnabledFlag, WSListenAddrFlag, WSPortFlag,
	AuthPortFlag, JWTSecretFlag,
	RPCGlobalGasCapFlag, RPCGlobalEVMTimeoutFlag,
	MaxPeersFlag, ListenPortFlag, StaticNodesFlag,
}

func newContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range allFlags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , b ,,c ", []string{"a", "b", "c"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitAndTrim(tt.input), "input %q", tt.input)
	}
}

func TestSetEthConfigSyncMode(t *testing.T) {
	tests := []struct {
		args []string
		want ethconfig.SyncMode
	}{
		{nil, ethconfig.Defaults.SyncMode},
		{[]string{"--snap"}, ethconfig.SnapSync},
		{[]string{"--nosync"}, ethconfig.NoSync},
		{[]string{"--syncmode", "full"}, ethconfig.FullSync},
		{[]string{"--syncmode", "fast"}, ethconfig.FastSync},
		{[]string{"--snap", "--syncmode", "full"}, ethconfig.SnapSync},
	}
	for _, tt := range tests {
		cfg := ethconfig.Defaults
		SetEthConfig(newContext(t, tt.args...), &cfg)
		assert.Equal(t, tt.want, cfg.SyncMode, "args %v", tt.args)
	}
}

func TestSetEthConfig(t *testing.T) {
	cfg := ethconfig.Defaults
	ctx := newContext(t, "--networkid", "5", "--cache", "64", "--rpc.gascap", "1000", "--rpc.evmtimeout", "2s")
	SetEthConfig(ctx, &cfg)

	assert.Equal(t, uint64(5), cfg.NetworkId)
	assert.Equal(t, 64, cfg.DatabaseCache)
	assert.Equal(t, MakeDatabaseHandles(), cfg.DatabaseHandles)
	assert.Equal(t, uint64(1000), cfg.RPCGasCap)
	assert.Equal(t, 2*time.Second, cfg.RPCEVMTimeout)
}

func TestSetNodeConfig(t *testing.T) {
	cfg := node.DefaultConfig
	cfg.HTTP.Host = ""
	ctx := newContext(t,
		"--datadir", "/tmp/evmsync-test",
		"--db.engine", "memory",
		"--http", "--http.port", "9545", "--http.corsdomain", "a.com, b.com", "--http.api", "eth,net",
		"--ws", "--ws.addr", "0.0.0.0",
		"--authrpc.port", "9551",
		"--port", "30999", "--staticnodes", "enode://a@1.2.3.4:30303",
	)
	SetNodeConfig(ctx, &cfg)

	assert.Equal(t, "/tmp/evmsync-test", cfg.DataDir)
	assert.Equal(t, "memory", cfg.DBEngine)
	assert.Equal(t, node.DefaultHTTPHost, cfg.HTTP.Host)
	assert.Equal(t, 9545, cfg.HTTP.Port)
	assert.Equal(t, []string{"a.com", "b.com"}, cfg.HTTP.Cors)
	assert.Equal(t, []string{"eth", "net"}, cfg.HTTP.Modules)
	assert.Equal(t, "0.0.0.0", cfg.WS.Host)
	assert.Equal(t, 9551, cfg.Auth.Port)
	assert.Equal(t, ":30999", cfg.P2P.ListenAddr)
	assert.Equal(t, []string{"enode://a@1.2.3.4:30303"}, cfg.P2P.StaticNodes)
}

func TestSetNodeConfigNoPeers(t *testing.T) {
	cfg := node.DefaultConfig
	SetNodeConfig(newContext(t, "--maxpeers", "0"), &cfg)

	assert.Zero(t, cfg.P2P.MaxPeers)
	assert.Empty(t, cfg.P2P.ListenAddr)
	assert.True(t, cfg.P2P.NoDial)
}
