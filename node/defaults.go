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

package node

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/sunyihoo/evmsync/p2p"
	"github.com/sunyihoo/evmsync/rpc"
)

const (
	DefaultHTTPHost = "localhost" // Default host interface for the HTTP RPC server
	DefaultHTTPPort = 8545        // Default TCP port for the HTTP RPC server
	DefaultWSHost   = "localhost" // Default host interface for the websocket RPC server
	DefaultWSPort   = 8546        // Default TCP port for the websocket RPC server
	DefaultAuthHost = "localhost" // Default host interface for the authenticated apis
	DefaultAuthPort = 8551        // Default port for the authenticated apis
)

// Engine endpoint limits. Consensus clients send large payload batches, so
// these are fixed rather than following the public endpoint settings.
// engine 端点的固定限制，不跟随公开端点的配置。
const (
	engineAPIBatchItemLimit         = 2000
	engineAPIBatchResponseSizeLimit = 250 * 1000 * 1000
	engineAPIBodyLimit              = 128 * 1024 * 1024
)

// The engine endpoint only answers local consensus clients.
var (
	authCors    = []string{"localhost"}
	authOrigins = []string{"localhost"}
	authModules = []string{"eth", "engine"}
)

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	DataDir: DefaultDataDir(),
	HTTP: HTTPConfig{
		Port:         DefaultHTTPPort,
		Modules:      []string{"net", "web3"},
		VirtualHosts: []string{"localhost"},
		Timeouts:     rpc.DefaultHTTPTimeouts,
	},
	WS: WSConfig{
		Port:    DefaultWSPort,
		Modules: []string{"net", "web3"},
	},
	Auth: AuthConfig{
		Addr:         DefaultAuthHost,
		Port:         DefaultAuthPort,
		VirtualHosts: []string{"localhost"},
	},
	BatchRequestLimit:    1000,
	BatchResponseMaxSize: 25 * 1000 * 1000,
	P2P: p2p.Config{
		ListenAddr: ":30303",
		MaxPeers:   50,
	},
}

// DefaultDataDir returns the platform data directory below the user's home,
// or "" when no home directory can be found.
// DefaultDataDir 返回默认数据目录。
func DefaultDataDir() string {
	home := homeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Evmsync")
	case "windows":
		if appdata := os.Getenv("LOCALAPPDATA"); appdata != "" {
			return filepath.Join(appdata, "Evmsync")
		}
		return filepath.Join(home, "AppData", "Roaming", "Evmsync")
	default:
		return filepath.Join(home, ".evmsync")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
