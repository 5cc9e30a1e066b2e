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

package p2p

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/p2p/rlpx"
	"github.com/sunyihoo/evmsync/rlp"
)

const (
	// total timeout for the protocol handshake in both directions.
	handshakeTimeout = 5 * time.Second

	// This is the timeout for sending the disconnect reason.
	// This is shorter than the usual timeout because we don't want
	// to wait if the connection is known to be bad anyway.
	discWriteTimeout = 1 * time.Second

	frameReadTimeout  = 30 * time.Second
	frameWriteTimeout = 20 * time.Second
)

var errInvalidHandshake = errors.New("invalid handshake")

// protoHandshake is the protocol handshake, exchanged as
// [version, name, [[cap-name, cap-version], ...], listen-port, id].
// Trailing list elements are kept in Rest for forward compatibility.
// protoHandshake 是协议握手消息，末尾多余的字段存入 Rest 以保持向前兼容。
type protoHandshake struct {
	Version    uint64
	Name       string
	Caps       []Cap
	ListenPort uint64
	ID         []byte // uncompressed secp256k1 public key without prefix

	// Ignore additional fields (for forward compatibility).
	Rest []rlp.RawValue `rlp:"tail"`
}

// rlpxTransport is the transport used by actual (non-test) connections.
// It wraps an RLPx connection with locks and read/write deadlines.
// rlpxTransport 是真实连接使用的传输层，为 RLPx 连接加上读写锁和超时。
type rlpxTransport struct {
	rmu, wmu sync.Mutex
	wbuf     bytes.Buffer
	conn     *rlpx.Conn
}

func newRLPX(conn net.Conn) transport {
	return &rlpxTransport{conn: rlpx.NewConn(conn)}
}

func (t *rlpxTransport) ReadMsg() (Msg, error) {
	t.rmu.Lock()
	defer t.rmu.Unlock()

	var msg Msg
	t.conn.SetReadDeadline(time.Now().Add(frameReadTimeout))
	code, data, _, err := t.conn.Read()
	if err == nil {
		// Protocol messages are dispatched to subprotocol handlers asynchronously,
		// but package rlpx may reuse the returned 'data' buffer on the next call
		// to Read. Copy the message data to avoid this being an issue.
		data = common.CopyBytes(data)
		msg = Msg{
			ReceivedAt: time.Now(),
			Code:       code,
			Size:       uint32(len(data)),
			Payload:    bytes.NewReader(data),
		}
	}
	return msg, err
}

func (t *rlpxTransport) WriteMsg(msg Msg) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	// Copy message data to write buffer.
	t.wbuf.Reset()
	if _, err := io.CopyN(&t.wbuf, msg.Payload, int64(msg.Size)); err != nil {
		return err
	}
	t.conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	_, err := t.conn.Write(msg.Code, t.wbuf.Bytes())
	return err
}

func (t *rlpxTransport) close(err error) {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	// Tell the remote end why we're disconnecting if possible.
	if reason, ok := err.(DiscReason); ok && reason != DiscNetworkError {
		deadline := time.Now().Add(discWriteTimeout)
		if err := t.conn.SetWriteDeadline(deadline); err == nil {
			t.conn.Write(discMsg, encodeDisconnectMessage(reason))
		}
	}
	t.conn.Close()
}

// doProtoHandshake exchanges hello messages. Snappy compression is switched
// on once both sides advertise a version that supports it.
// doProtoHandshake 交换握手消息，双方版本均支持时启用 Snappy 压缩。
func (t *rlpxTransport) doProtoHandshake(our *protoHandshake) (their *protoHandshake, err error) {
	t.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer t.conn.SetDeadline(time.Time{})

	// Writing our handshake happens concurrently, we prefer
	// returning the handshake read error. If the remote side
	// disconnects us early with a valid reason, we should return it
	// as the error so it can be tracked elsewhere.
	werr := make(chan error, 1)
	go func() { werr <- Send(t, handshakeMsg, our) }()
	if their, err = readProtocolHandshake(t); err != nil {
		<-werr // make sure the write terminates too
		return nil, err
	}
	if err := <-werr; err != nil {
		return nil, fmt.Errorf("write error: %v", err)
	}
	t.conn.SetSnappy(our.Version >= snappyProtocolVersion && their.Version >= snappyProtocolVersion)
	return their, nil
}

func readProtocolHandshake(rw MsgReader) (*protoHandshake, error) {
	msg, err := rw.ReadMsg()
	if err != nil {
		return nil, err
	}
	if msg.Size > baseProtocolMaxMsgSize {
		return nil, errors.New("message too big")
	}
	if msg.Code == discMsg {
		// Disconnect before protocol handshake is valid according to the
		// devp2p rules and we send it ourself if the post-handshake checks fail.
		return nil, decodeDisconnectMessage(msg)
	}
	if msg.Code != handshakeMsg {
		return nil, fmt.Errorf("expected handshake, got %x", msg.Code)
	}
	var hs protoHandshake
	if err := msg.Decode(&hs); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidHandshake, err)
	}
	if len(hs.ID) != 64 || allZero(hs.ID) {
		return nil, DiscInvalidIdentity
	}
	return &hs, nil
}

func allZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
