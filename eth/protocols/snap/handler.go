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

package snap

import (
	"bytes"
	"fmt"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/p2p"
)

const (
	// softResponseLimit is the target maximum size of replies to data retrievals.
	softResponseLimit = 2 * 1024 * 1024

	// maxCodeLookups is the maximum number of bytecodes to serve. This number is
	// there to limit the number of disk lookups.
	maxCodeLookups = 1024
)

// Chain is the data source serving snap queries: the current head block
// identifies the flat state held in the database.
// Chain 是 snap 查询的数据源：当前区块标识数据库中的扁平状态。
type Chain interface {
	CurrentBlock() *types.Header
	Database() ethdb.Database
}

// Handler is a callback to invoke from an outside runner after the boilerplate
// exchanges have passed.
type Handler func(peer *Peer) error

// Backend defines the data retrieval methods to serve remote requests and the
// callback methods to invoke on remote deliveries.
type Backend interface {
	// Chain retrieves the blockchain object to serve data.
	Chain() Chain

	// RunPeer is invoked when a peer joins on the `snap` protocol. The handler
	// should do any peer maintenance work, handshakes and validations. If all
	// is passed, control should be given back to the `handler` to process the
	// inbound messages going forward.
	RunPeer(peer *Peer, handler Handler) error

	// PeerInfo retrieves all known `snap` information about a peer.
	PeerInfo(id string) interface{}
}

// MakeProtocols constructs the P2P protocol definitions for `snap`.
func MakeProtocols(backend Backend) []p2p.Protocol {
	protocols := make([]p2p.Protocol, 0, len(ProtocolVersions))
	for _, version := range ProtocolVersions {
		protocols = append(protocols, p2p.Protocol{
			Name:    ProtocolName,
			Version: version,
			Length:  protocolLengths[version],
			Run: func(p *p2p.Peer, rw p2p.MsgReadWriter) error {
				peer := NewPeer(version, p, rw)
				defer peer.Close()

				return backend.RunPeer(peer, func(peer *Peer) error {
					return Handle(backend, peer)
				})
			},
			NodeInfo: func() interface{} {
				return nodeInfo(backend.Chain())
			},
			PeerInfo: func(id string) interface{} {
				return backend.PeerInfo(id)
			},
		})
	}
	return protocols
}

// Handle is the callback invoked to manage the life cycle of a `snap` peer.
// When this function terminates, the peer is disconnected.
func Handle(backend Backend, peer *Peer) error {
	for {
		if err := HandleMessage(backend, peer); err != nil {
			peer.Log().Debug("Message handling failed in `snap`", "err", err)
			return err
		}
	}
}

// HandleMessage is invoked whenever an inbound message is received from a
// remote peer on the `snap` protocol. The remote connection is torn down upon
// returning any error.
// HandleMessage 处理一条 snap 入站消息：请求直接应答，响应交给等待中的请求。
func HandleMessage(backend Backend, peer *Peer) error {
	// Read the next message from the remote peer, and ensure it's fully consumed
	msg, err := peer.rw.ReadMsg()
	if err != nil {
		return err
	}
	if msg.Size > maxMessageSize {
		return fmt.Errorf("%w: %v > %v", errMsgTooLarge, msg.Size, maxMessageSize)
	}
	defer msg.Discard()

	switch msg.Code {
	case GetAccountRangeMsg:
		var req GetAccountRangePacket
		if err := msg.Decode(&req); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		accounts := ServiceGetAccountRangeQuery(backend.Chain(), &req)
		return p2p.Send(peer.rw, AccountRangeMsg, &AccountRangePacket{ID: req.ID, Accounts: accounts, Proof: [][]byte{}})

	case AccountRangeMsg:
		res := new(AccountRangePacket)
		if err := msg.Decode(res); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		// Ensure the range is monotonically increasing
		for i := 1; i < len(res.Accounts); i++ {
			if bytes.Compare(res.Accounts[i-1].Hash[:], res.Accounts[i].Hash[:]) >= 0 {
				return fmt.Errorf("accounts not monotonically increasing: #%d [%x] vs #%d [%x]", i-1, res.Accounts[i-1].Hash[:], i, res.Accounts[i].Hash[:])
			}
		}
		return peer.deliver(msg.Code, res.ID, res)

	case GetStorageRangesMsg:
		var req GetStorageRangesPacket
		if err := msg.Decode(&req); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		// Slot bounds are hashes, anything longer is malformed.
		if len(req.Origin) > common.HashLength || len(req.Limit) > common.HashLength {
			return fmt.Errorf("%w: slot bounds %d/%d bytes", errBadRequest, len(req.Origin), len(req.Limit))
		}
		slots := ServiceGetStorageRangesQuery(backend.Chain(), &req)
		return p2p.Send(peer.rw, StorageRangesMsg, &StorageRangesPacket{ID: req.ID, Slots: slots, Proof: [][]byte{}})

	case StorageRangesMsg:
		res := new(StorageRangesPacket)
		if err := msg.Decode(res); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		// Ensure the ranges are monotonically increasing
		for i, slots := range res.Slots {
			for j := 1; j < len(slots); j++ {
				if bytes.Compare(slots[j-1].Hash[:], slots[j].Hash[:]) >= 0 {
					return fmt.Errorf("storage slots not monotonically increasing for account #%d: #%d [%x] vs #%d [%x]", i, j-1, slots[j-1].Hash[:], j, slots[j].Hash[:])
				}
			}
		}
		return peer.deliver(msg.Code, res.ID, res)

	case GetByteCodesMsg:
		var req GetByteCodesPacket
		if err := msg.Decode(&req); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		codes := ServiceGetByteCodesQuery(backend.Chain(), &req)
		return p2p.Send(peer.rw, ByteCodesMsg, &ByteCodesPacket{ID: req.ID, Codes: codes})

	case ByteCodesMsg:
		res := new(ByteCodesPacket)
		if err := msg.Decode(res); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		return peer.deliver(msg.Code, res.ID, res)

	case GetTrieNodesMsg:
		var req GetTrieNodesPacket
		if err := msg.Decode(&req); err != nil {
			return fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
		}
		return p2p.Send(peer.rw, TrieNodesMsg, &TrieNodesPacket{ID: req.ID, Nodes: [][]byte{}})

	case TrieNodesMsg:
		// Trie nodes are never requested.
		return nil

	default:
		return fmt.Errorf("%w: %v", errInvalidMsgCode, msg.Code)
	}
}

// ServiceGetAccountRangeQuery assembles the response to an account range query.
// It is exposed to allow external packages to test protocol behavior.
// ServiceGetAccountRangeQuery 组装账户范围查询的响应：从 Origin 开始，超过 Limit 或字节预算即停止。
func ServiceGetAccountRangeQuery(chain Chain, req *GetAccountRangePacket) []*AccountData {
	if req.Bytes == 0 || req.Bytes > softResponseLimit {
		req.Bytes = softResponseLimit
	}
	// Only the state of the current head block is held on disk.
	if head := chain.CurrentBlock(); head == nil || head.Hash() != req.Root {
		return nil
	}
	it := rawdb.IterateAccountSnapshots(chain.Database(), req.Origin)
	defer it.Release()

	var (
		size     uint64
		accounts []*AccountData
	)
	for it.Next() {
		key := it.Key()
		if len(key) != len(rawdb.SnapshotAccountPrefix)+common.HashLength {
			continue
		}
		hash := common.BytesToHash(key[len(rawdb.SnapshotAccountPrefix):])
		if bytes.Compare(hash[:], req.Limit[:]) > 0 {
			break
		}
		// Empty entries mark accounts known to be absent.
		blob := it.Value()
		if len(blob) == 0 {
			continue
		}
		accounts = append(accounts, &AccountData{Hash: hash, Body: common.CopyBytes(blob)})
		size += uint64(common.HashLength + len(blob))
		if size >= req.Bytes {
			break
		}
	}
	return accounts
}

// ServiceGetStorageRangesQuery assembles the response to a storage ranges
// query. Origin applies to the first account and Limit to the last one. When
// the byte budget runs out the final slot list may be incomplete, and the
// requester continues it with a follow-up query.
// ServiceGetStorageRangesQuery 组装存储范围查询的响应；预算耗尽时最后一个账户的槽位列表可能不完整。
func ServiceGetStorageRangesQuery(chain Chain, req *GetStorageRangesPacket) [][]*StorageData {
	if req.Bytes == 0 || req.Bytes > softResponseLimit {
		req.Bytes = softResponseLimit
	}
	if head := chain.CurrentBlock(); head == nil || head.Hash() != req.Root {
		return nil
	}
	var (
		db    = chain.Database()
		size  uint64
		slots [][]*StorageData
	)
	for i, account := range req.Accounts {
		// If we've exceeded the requested data limit, abort without opening
		// a new storage range (that we'd need to prove due to exceeded size)
		if size >= req.Bytes {
			break
		}
		var origin, limit common.Hash
		if i == 0 && len(req.Origin) > 0 {
			origin = common.BytesToHash(req.Origin)
		}
		limit = common.MaxHash
		if i == len(req.Accounts)-1 && len(req.Limit) > 0 {
			limit = common.BytesToHash(req.Limit)
		}
		prefixLen := len(rawdb.SnapshotStoragePrefix) + common.HashLength

		var storage []*StorageData
		it := rawdb.IterateStorageSnapshots(db, account, origin)
		for it.Next() {
			key := it.Key()
			if len(key) != prefixLen+common.HashLength {
				continue
			}
			hash := common.BytesToHash(key[prefixLen:])
			if bytes.Compare(hash[:], limit[:]) > 0 {
				break
			}
			blob := it.Value()
			if len(blob) == 0 {
				continue
			}
			storage = append(storage, &StorageData{Hash: hash, Body: common.CopyBytes(blob)})
			size += uint64(common.HashLength + len(blob))
			if size >= req.Bytes {
				break
			}
		}
		it.Release()
		slots = append(slots, storage)
	}
	return slots
}

// ServiceGetByteCodesQuery assembles the response to a byte codes query.
// Unknown codes are skipped.
func ServiceGetByteCodesQuery(chain Chain, req *GetByteCodesPacket) [][]byte {
	if req.Bytes == 0 || req.Bytes > softResponseLimit {
		req.Bytes = softResponseLimit
	}
	if len(req.Hashes) > maxCodeLookups {
		req.Hashes = req.Hashes[:maxCodeLookups]
	}
	var (
		db    = chain.Database()
		codes [][]byte
		bytes uint64
	)
	for _, hash := range req.Hashes {
		if hash == types.EmptyCodeHash {
			// Peers should not request the empty code, but if they do, at
			// least sent them back a correct response without db lookups
			codes = append(codes, []byte{})
		} else if blob := rawdb.ReadCode(db, hash); len(blob) > 0 {
			codes = append(codes, blob)
			bytes += uint64(len(blob))
		}
		if bytes > req.Bytes {
			break
		}
	}
	return codes
}

// NodeInfo represents a short summary of the `snap` sub-protocol metadata
// known about the host peer.
type NodeInfo struct{}

// nodeInfo retrieves some `snap` protocol metadata about the running host node.
func nodeInfo(chain Chain) *NodeInfo {
	return &NodeInfo{}
}
