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

// Package eth implements the Ethereum protocol.
package eth

import (
	"fmt"

	"github.com/sunyihoo/evmsync/consensus"
	"github.com/sunyihoo/evmsync/consensus/beacon"
	"github.com/sunyihoo/evmsync/core"
	"github.com/sunyihoo/evmsync/eth/downloader"
	"github.com/sunyihoo/evmsync/eth/ethconfig"
	"github.com/sunyihoo/evmsync/eth/protocols/eth"
	"github.com/sunyihoo/evmsync/eth/protocols/snap"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/internal/ethapi"
	"github.com/sunyihoo/evmsync/internal/shutdowncheck"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/node"
	"github.com/sunyihoo/evmsync/p2p"
	"github.com/sunyihoo/evmsync/rpc"
)

// Ethereum implements the Ethereum sync node service.
// Ethereum 实现同步节点服务：持有链、数据库与网络处理器。
type Ethereum struct {
	config *ethconfig.Config

	// Handlers
	blockchain *core.BlockChain
	handler    *handler

	// DB interfaces
	chainDb ethdb.Database

	engine     consensus.Engine
	APIBackend *EthAPIBackend

	networkID uint64
	p2pServer *p2p.Server

	shutdownTracker *shutdowncheck.ShutdownTracker // Tracks if and when the node has shutdown ungracefully
}

// New creates a new Ethereum object (including the initialisation of the common
// Ethereum object) and registers it with the node.
// New 创建 Ethereum 服务，并将其 API、协议和生命周期注册到节点。
func New(stack *node.Node, config *ethconfig.Config) (*Ethereum, error) {
	if !config.SyncMode.IsValid() {
		return nil, fmt.Errorf("invalid sync mode %d", config.SyncMode)
	}
	log.Info("Allocated cache and file handles", "database", stack.ResolvePath("chaindata"), "cache", config.DatabaseCache, "handles", config.DatabaseHandles)

	chainDb, err := stack.OpenDatabase("chaindata", config.DatabaseCache, config.DatabaseHandles, "eth/db/chaindata/", false)
	if err != nil {
		return nil, err
	}
	eth := &Ethereum{
		config:          config,
		chainDb:         chainDb,
		engine:          beacon.New(),
		p2pServer:       stack.Server(),
		shutdownTracker: shutdowncheck.NewShutdownTracker(chainDb),
	}
	eth.blockchain, err = core.NewBlockChain(chainDb, config.Genesis, eth.engine, config.BlockChainConfig())
	if err != nil {
		chainDb.Close()
		return nil, err
	}
	chainConfig := eth.blockchain.Config()

	eth.networkID = config.NetworkId
	if eth.networkID == 0 && chainConfig.ChainID != nil {
		eth.networkID = chainConfig.ChainID.Uint64()
	}
	log.Info("Initialising Ethereum protocol", "network", eth.networkID, "syncmode", config.SyncMode)

	eth.handler, err = newHandler(&handlerConfig{
		Chain:   eth.blockchain,
		Network: eth.networkID,
		Sync:    config.DownloaderConfig(),
	})
	if err != nil {
		eth.blockchain.Stop()
		chainDb.Close()
		return nil, err
	}
	eth.APIBackend = &EthAPIBackend{stack.Config().ExtRPCEnabled(), eth}

	// Register the backend on the node
	stack.RegisterAPIs(eth.APIs())
	stack.RegisterProtocols(eth.Protocols())
	stack.RegisterLifecycle(eth)
	return eth, nil
}

// APIs return the collection of RPC services the ethereum package offers.
func (s *Ethereum) APIs() []rpc.API {
	apis := ethapi.GetAPIs(s.APIBackend)
	return append(apis, rpc.API{
		Namespace: "net",
		Service:   ethapi.NewNetAPI(s.p2pServer, s.networkID),
	})
}

func (s *Ethereum) BlockChain() *core.BlockChain       { return s.blockchain }
func (s *Ethereum) Engine() consensus.Engine           { return s.engine }
func (s *Ethereum) ChainDb() ethdb.Database            { return s.chainDb }
func (s *Ethereum) Downloader() *downloader.Downloader { return s.handler.downloader }
func (s *Ethereum) Synced() bool                       { return s.handler.downloader.Synced() }
func (s *Ethereum) SyncMode() ethconfig.SyncMode       { return s.config.SyncMode }
func (s *Ethereum) NetVersion() uint64                 { return s.networkID }

// Protocols returns all the currently configured
// network protocols to start.
func (s *Ethereum) Protocols() []p2p.Protocol {
	protos := eth.MakeProtocols((*ethHandler)(s.handler), s.networkID, s.blockchain.Config())
	return append(protos, snap.MakeProtocols((*snapHandler)(s.handler))...)
}

// Start implements node.Lifecycle, starting all internal goroutines needed by the
// Ethereum protocol implementation.
func (s *Ethereum) Start() error {
	s.shutdownTracker.MarkStartup()
	s.shutdownTracker.Start()
	return s.handler.Start()
}

// Stop implements node.Lifecycle, terminating all internal goroutines used by the
// Ethereum protocol.
// Stop 依次停止网络处理器、区块链并关闭数据库。
func (s *Ethereum) Stop() error {
	s.handler.Stop()
	s.blockchain.Stop()

	// Clean shutdown marker as the last thing before closing db
	s.shutdownTracker.Stop()
	s.chainDb.Close()
	return nil
}
