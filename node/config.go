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
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/p2p"
	"github.com/sunyihoo/evmsync/rpc"
)

const (
	datadirPrivateKey = "nodekey"   // Path within the datadir to the node's private key
	datadirJWTKey     = "jwtsecret" // Path within the datadir to the node's jwt secret
)

// Config holds the settings of the protocol stack: identity, data directory,
// devp2p networking and the three RPC endpoint groups.
// Config 是协议栈配置：节点标识、数据目录、p2p 网络以及 HTTP/WS/认证三组 RPC 端点。
type Config struct {
	// Name is the instance name used in the devp2p node identifier and as the
	// instance directory below DataDir. It defaults to the executable name.
	Name string `toml:"-"`

	// UserIdent, if set, is used as an additional component in the devp2p node identifier.
	UserIdent string `toml:",omitempty"`

	// Version is reported in the devp2p node identifier.
	Version string `toml:"-"`

	// DataDir is the root folder for persistent data. An empty DataDir runs
	// the node fully in memory.
	// DataDir 为空时节点完全运行在内存中。
	DataDir string

	// DBEngine selects the key-value store: "leveldb", "pebble" or "memory".
	// An empty value keeps whatever exists and defaults to pebble.
	DBEngine string `toml:",omitempty"`

	P2P  p2p.Config
	HTTP HTTPConfig
	WS   WSConfig
	Auth AuthConfig

	// BatchRequestLimit is the maximum number of requests in a batch on the
	// public endpoints.
	BatchRequestLimit int `toml:",omitempty"`

	// BatchResponseMaxSize is the maximum number of bytes returned from a
	// batched call on the public endpoints.
	BatchResponseMaxSize int `toml:",omitempty"`

	// Logger is a custom logger to use with the p2p.Server.
	Logger log.Logger `toml:"-"`
}

// HTTPConfig configures the public JSON-RPC over HTTP endpoint. An empty Host
// disables it.
type HTTPConfig struct {
	Host         string
	Port         int              `toml:",omitempty"`
	Cors         []string         `toml:",omitempty"` // Allowed cross-origin domains
	VirtualHosts []string         `toml:",omitempty"` // Allowed Host header values, IPs always pass
	Modules      []string         // API namespaces served, empty serves every public one
	Timeouts     rpc.HTTPTimeouts // Server read/write/idle timeouts
	PathPrefix   string           `toml:",omitempty"`
}

// WSConfig configures the public JSON-RPC over WebSocket endpoint. An empty
// Host disables it. When it shares the HTTP port both are served together.
type WSConfig struct {
	Host       string
	Port       int      `toml:",omitempty"`
	Origins    []string `toml:",omitempty"` // Allowed Origin header values
	Modules    []string
	PathPrefix string `toml:",omitempty"`
}

// AuthConfig configures the JWT-authenticated engine endpoint. It is started
// whenever a registered API is not public.
// AuthConfig 配置需要 JWT 认证的 engine 端点，存在非公开 API 时启动。
type AuthConfig struct {
	Addr         string   `toml:",omitempty"`
	Port         int      `toml:",omitempty"`
	VirtualHosts []string `toml:",omitempty"`

	// JWTSecret is the path to the hex-encoded secret. Empty selects the
	// jwtsecret file in the instance directory.
	JWTSecret string `toml:",omitempty"`
}

// Endpoint returns host:port of the HTTP server, or "" when disabled.
func (c HTTPConfig) Endpoint() string {
	if c.Host == "" {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Endpoint returns host:port of the WebSocket server, or "" when disabled.
func (c WSConfig) Endpoint() string {
	if c.Host == "" {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ExtRPCEnabled reports whether a public RPC endpoint is configured.
func (c *Config) ExtRPCEnabled() bool {
	return c.HTTP.Host != "" || c.WS.Host != ""
}

// NodeName returns the devp2p node identifier.
// NodeName 返回 devp2p 节点标识，形如 evmsync/v0.1.0/linux-amd64/go1.22。
func (c *Config) NodeName() string {
	parts := []string{c.name()}
	if c.UserIdent != "" {
		parts = append(parts, c.UserIdent)
	}
	if c.Version != "" {
		parts = append(parts, "v"+c.Version)
	}
	parts = append(parts, runtime.GOOS+"-"+runtime.GOARCH, runtime.Version())
	return strings.Join(parts, "/")
}

func (c *Config) name() string {
	if c.Name != "" {
		return c.Name
	}
	progname := strings.TrimSuffix(filepath.Base(os.Args[0]), ".exe")
	if progname == "" {
		panic("empty executable name, set Config.Name")
	}
	return progname
}

// ResolvePath resolves path in the instance directory. Absolute paths are
// returned as is, and everything resolves to "" on an ephemeral node.
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.instanceDir(), path)
}

func (c *Config) instanceDir() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, c.name())
}

// NodeKey returns the devp2p identity key. An explicitly configured key wins,
// then the nodekey file of the instance directory. Otherwise a fresh key is
// generated and, unless the node is ephemeral, written to that file.
// NodeKey 返回节点私钥：优先使用显式配置的密钥，其次读取数据目录中的 nodekey，都没有时生成新密钥。
func (c *Config) NodeKey() *secp256k1.PrivateKey {
	if c.P2P.PrivateKey != nil {
		return c.P2P.PrivateKey
	}
	keyfile := c.ResolvePath(datadirPrivateKey)
	if keyfile != "" {
		key, err := loadNodeKey(keyfile)
		if err == nil {
			return key
		}
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Ignoring invalid node key", "file", keyfile, "err", err)
		}
	}
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		log.Crit("Failed to generate node key", "err", err)
	}
	if keyfile == "" {
		return key
	}
	if err := storeNodeKey(c.instanceDir(), keyfile, key); err != nil {
		log.Error("Failed to persist node key", "file", keyfile, "err", err)
	}
	return key
}

func loadNodeKey(file string) (*secp256k1.PrivateKey, error) {
	blob, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return crypto.HexToKey(strings.TrimSpace(string(blob)))
}

func storeNodeKey(dir, file string, key *secp256k1.PrivateKey) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(file, []byte(fmt.Sprintf("%x", key.Serialize())), 0600)
}
