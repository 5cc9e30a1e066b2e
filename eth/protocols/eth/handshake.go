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

package eth

import (
	"fmt"
	"time"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/p2p"
)

const (
	// handshakeTimeout is the maximum allowed time for the `eth` handshake to
	// complete before dropping the connection as malicious.
	handshakeTimeout = 5 * time.Second
)

// Handshake executes the eth protocol handshake, negotiating version number,
// network IDs and genesis blocks. The remote head and served range are
// recorded on success.
// Handshake 执行 eth 协议握手：交换状态并校验版本、网络 ID 与创世哈希。
func (p *Peer) Handshake(network uint64, chain Chain) error {
	var (
		genesis = chain.Genesis().Hash()
		latest  = chain.CurrentBlock()
	)
	status := &StatusPacket{
		ProtocolVersion: uint32(p.version),
		NetworkID:       network,
		Genesis:         genesis,
		EarliestBlock:   0,
		LatestBlock:     latest.Number.Uint64(),
		LatestBlockHash: latest.Hash(),
	}
	// Send out own handshake in a new thread
	errc := make(chan error, 2)
	go func() {
		errc <- p2p.Send(p.rw, StatusMsg, status)
	}()
	var remote *StatusPacket
	go func() {
		var err error
		remote, err = p.readStatus(network, genesis)
		errc <- err
	}()
	timeout := time.NewTimer(handshakeTimeout)
	defer timeout.Stop()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errc:
			if err != nil {
				return err
			}
		case <-timeout.C:
			return p2p.DiscReadTimeout
		}
	}
	p.lock.Lock()
	p.head, p.number, p.earliest = remote.LatestBlockHash, remote.LatestBlock, remote.EarliestBlock
	p.lock.Unlock()
	p.markBlock(remote.LatestBlockHash)
	return nil
}

// readStatus reads the remote handshake message.
func (p *Peer) readStatus(network uint64, genesis common.Hash) (*StatusPacket, error) {
	msg, err := p.rw.ReadMsg()
	if err != nil {
		return nil, err
	}
	defer msg.Discard()

	if msg.Code != StatusMsg {
		return nil, fmt.Errorf("%w: first msg has code %x (!= %x)", errNoStatusMsg, msg.Code, StatusMsg)
	}
	if msg.Size > maxMessageSize {
		return nil, fmt.Errorf("%w: %v > %v", errMsgTooLarge, msg.Size, maxMessageSize)
	}
	status := new(StatusPacket)
	if err := msg.Decode(status); err != nil {
		return nil, fmt.Errorf("%w: message %v: %v", errDecode, msg, err)
	}
	if status.NetworkID != network {
		return nil, fmt.Errorf("%w: %d (!= %d)", errNetworkIDMismatch, status.NetworkID, network)
	}
	if uint(status.ProtocolVersion) != p.version {
		return nil, fmt.Errorf("%w: %d (!= %d)", errProtocolVersionMismatch, status.ProtocolVersion, p.version)
	}
	if status.Genesis != genesis {
		return nil, fmt.Errorf("%w: %x (!= %x)", errGenesisMismatch, status.Genesis, genesis)
	}
	if status.EarliestBlock > status.LatestBlock {
		return nil, fmt.Errorf("%w: earliest %d > latest %d", errBadBlockRange, status.EarliestBlock, status.LatestBlock)
	}
	return status, nil
}
