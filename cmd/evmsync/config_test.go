// Copyright 2020 The go-ethereum Authors
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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/eth/ethconfig"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func TestLoadConfig(t *testing.T) {
	file := writeConfig(t, `
[Eth]
NetworkId = 5
SyncMode = "full"
DatabaseCache = 128

[Node]
DataDir = "/tmp/evmsync"

[Node.HTTP]
Port = 9545

[Node.P2P]
MaxPeers = 7
ListenAddr = ":30305"
`)
	cfg := evmsyncConfig{Eth: ethconfig.Defaults, Node: defaultNodeConfig()}
	require.NoError(t, loadConfig(file, &cfg))

	assert.Equal(t, uint64(5), cfg.Eth.NetworkId)
	assert.Equal(t, ethconfig.FullSync, cfg.Eth.SyncMode)
	assert.Equal(t, 128, cfg.Eth.DatabaseCache)
	assert.Equal(t, ethconfig.Defaults.RPCGasCap, cfg.Eth.RPCGasCap)
	assert.Equal(t, "/tmp/evmsync", cfg.Node.DataDir)
	assert.Equal(t, 9545, cfg.Node.HTTP.Port)
	assert.Equal(t, 7, cfg.Node.P2P.MaxPeers)
	assert.Equal(t, ":30305", cfg.Node.P2P.ListenAddr)
	assert.Equal(t, clientIdentifier, cfg.Node.Name)
}

func TestLoadConfigUnknownField(t *testing.T) {
	file := writeConfig(t, "[Eth]\nNoSuchOption = 1\n")
	cfg := evmsyncConfig{Eth: ethconfig.Defaults}
	err := loadConfig(file, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchOption")
	assert.Contains(t, err.Error(), file)
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg evmsyncConfig
	assert.Error(t, loadConfig(filepath.Join(t.TempDir(), "absent.toml"), &cfg))
}

func TestDefaultNodeConfig(t *testing.T) {
	cfg := defaultNodeConfig()
	assert.Equal(t, clientIdentifier, cfg.Name)
	assert.NotEmpty(t, cfg.Version)
	assert.Contains(t, cfg.HTTP.Modules, "eth")
	assert.Contains(t, cfg.WS.Modules, "eth")
}
