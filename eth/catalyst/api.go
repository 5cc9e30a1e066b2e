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

// Package catalyst implements the engine API endpoints served to a consensus
// client on the authenticated RPC port.
package catalyst

import (
	"strings"

	"github.com/sunyihoo/evmsync/beacon/engine"
	"github.com/sunyihoo/evmsync/eth"
	"github.com/sunyihoo/evmsync/internal/version"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/node"
	"github.com/sunyihoo/evmsync/rpc"
)

// Register adds the engine API to the full node.
func Register(stack *node.Node, backend *eth.Ethereum) error {
	log.Warn("Engine API enabled", "protocol", "eth")
	stack.RegisterAPIs([]rpc.API{
		{
			Namespace:     "engine",
			Service:       NewConsensusAPI(backend),
			Authenticated: true,
		},
	})
	return nil
}

// caps lists the engine methods this node serves.
var caps = []string{
	"engine_exchangeCapabilities",
	"engine_getClientVersionV1",
}

// ConsensusAPI serves the engine namespace.
type ConsensusAPI struct {
	eth *eth.Ethereum
}

// NewConsensusAPI creates a new consensus api for the given backend.
func NewConsensusAPI(eth *eth.Ethereum) *ConsensusAPI {
	return &ConsensusAPI{eth: eth}
}

// ExchangeCapabilities returns the current methods provided by this node.
func (api *ConsensusAPI) ExchangeCapabilities([]string) []string {
	return caps
}

// GetClientVersionV1 exchanges client version data of this node. The
// identity of the consensus client is logged once it passed validation.
// GetClientVersionV1 交换客户端版本信息：校验并记录共识客户端身份，返回本节点的唯一身份。
func (api *ConsensusAPI) GetClientVersionV1(info engine.ClientVersionV1) ([]engine.ClientVersionV1, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	log.Info("Client version exchanged", "client", info.String())
	return []engine.ClientVersionV1{clientVersion()}, nil
}

// clientVersion builds the identity of this executable. Without embedded VCS
// data the commit is reported as zero.
func clientVersion() engine.ClientVersionV1 {
	commit := "0x00000000"
	if vcs, ok := version.VCS(); ok && len(vcs.Commit) >= 8 {
		commit = "0x" + strings.ToLower(vcs.Commit[:8])
	}
	return engine.ClientVersionV1{
		Code:    engine.ClientCode,
		Name:    engine.ClientName,
		Version: version.WithMeta,
		Commit:  commit,
	}
}
