// Copyright 2016 The go-ethereum Authors
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

/*
Package node sets up an evmsync node.

A node is a collection of services which use shared resources to provide RPC
APIs. Services can also offer devp2p protocols, which are wired up to the
devp2p network when the node instance is started.

# Node Lifecycle

The Node object has a lifecycle consisting of three basic states, INITIALIZING, RUNNING
and CLOSED.

	●───────┐
	     New()
	        │
	        ▼
	  INITIALIZING ────Start()─┐
	        │                  │
	        │                  ▼
	    Close()             RUNNING
	        │                  │
	        ▼                  │
	     CLOSED ◀──────Close()─┘

Creating a Node allocates basic resources such as the data directory and returns the node
in its INITIALIZING state. Lifecycle objects, RPC APIs and peer-to-peer networking
protocols can be registered in this state. Opening a key-value database is permitted
while initializing.

Starting the node starts the p2p server, the RPC endpoints and then all registered
Lifecycle objects in registration order. Closing a running node stops the lifecycles in
reverse order, shuts down RPC and networking, closes databases still held open and
releases the data directory lock.

You must always call Close on Node, even if the node was not started.

# Resources Managed By Node

All file-system resources live in the instance directory, <datadir>/<name>. It holds
the node key, the JWT secret of the authenticated engine endpoint and the databases
opened through OpenDatabase. Without a data directory the node key is ephemeral and
databases are kept in memory.

	data-directory/
		evmsync/
			LOCK         -- instance lock, held while the node is open
			nodekey      -- hex encoded secp256k1 node key
			jwtsecret    -- hex encoded engine API secret
			chaindata/   -- chain database (pebble or leveldb)

JSON-RPC is served over HTTP and WebSocket. The HTTP and WebSocket servers may share a
port. APIs marked Authenticated are only reachable on the JWT protected auth port.
*/
package node

// node 包负责组装节点：数据目录锁、p2p 服务器、HTTP/WebSocket RPC 端点以及注册的服务生命周期。
