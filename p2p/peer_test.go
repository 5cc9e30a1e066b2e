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
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/rlp"
)

var discard = Protocol{
	Name:   "discard",
	Length: 1,
	Run: func(p *Peer, rw MsgReadWriter) error {
		for {
			msg, err := rw.ReadMsg()
			if err != nil {
				return err
			}
			if err = msg.Discard(); err != nil {
				return err
			}
		}
	},
}

func testPeer(protos []Protocol) (func(), *conn, *Peer, <-chan error) {
	var (
		fd1, fd2 = net.Pipe()
		c1       = &conn{fd: fd1, transport: newRLPX(fd1), done: make(chan struct{})}
		c2       = &conn{fd: fd2, transport: newRLPX(fd2)}
	)
	for _, p := range protos {
		c1.caps = append(c1.caps, p.cap())
	}
	peer := newPeer(log.Root(), c1, protos)
	errc := make(chan error, 1)
	go func() {
		_, err := peer.run()
		errc <- err
	}()
	closer := func() { c2.close(errors.New("close func called")) }
	return closer, c2, peer, errc
}

func TestPeerProtoReadMsg(t *testing.T) {
	proto := Protocol{
		Name:   "a",
		Length: 5,
		Run: func(peer *Peer, rw MsgReadWriter) error {
			if err := ExpectMsg(rw, 2, []byte{1}); err != nil {
				return err
			}
			if err := ExpectMsg(rw, 3, []byte{2}); err != nil {
				return err
			}
			return ExpectMsg(rw, 4, []byte{3})
		},
	}
	closer, rw, _, errc := testPeer([]Protocol{proto})
	defer closer()

	require.NoError(t, Send(rw, baseProtocolLength+2, []byte{1}))
	require.NoError(t, Send(rw, baseProtocolLength+3, []byte{2}))
	require.NoError(t, Send(rw, baseProtocolLength+4, []byte{3}))

	go func() {
		// Drain the disconnect notice so the close does not wait for its deadline.
		rw.ReadMsg()
	}()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, errProtocolReturned)
	case <-time.After(2 * time.Second):
		t.Fatal("receive timeout")
	}
}

func TestPeerProtoWriteOffset(t *testing.T) {
	proto := Protocol{
		Name:   "a",
		Length: 2,
		Run: func(peer *Peer, rw MsgReadWriter) error {
			if err := Send(rw, 2, []byte{0xff}); err == nil {
				return errors.New("expected error for out-of-range code")
			}
			if err := Send(rw, 1, []byte{0x42}); err != nil {
				return err
			}
			_, err := rw.ReadMsg()
			return err
		},
	}
	closer, rw, _, _ := testPeer([]Protocol{proto})
	defer closer()

	assert.NoError(t, ExpectMsg(rw, baseProtocolLength+1, []byte{0x42}))
}

func TestPeerDisconnect(t *testing.T) {
	closer, rw, peer, errc := testPeer([]Protocol{discard})
	defer closer()

	go peer.Disconnect(DiscQuitting)
	msg, err := rw.ReadMsg()
	require.NoError(t, err)
	require.EqualValues(t, discMsg, msg.Code)
	assert.Equal(t, DiscQuitting, decodeDisconnectMessage(msg))

	select {
	case err := <-errc:
		assert.Equal(t, error(DiscQuitting), err)
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not return")
	}
}

func TestPeerRemoteDisconnect(t *testing.T) {
	closer, rw, _, errc := testPeer([]Protocol{discard})
	defer closer()

	require.NoError(t, Send(rw, discMsg, []DiscReason{DiscTooManyPeers}))
	go rw.ReadMsg()
	select {
	case err := <-errc:
		assert.Equal(t, error(DiscTooManyPeers), err)
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not return")
	}
}

func TestNewPeer(t *testing.T) {
	name := "nodename"
	caps := []Cap{{"foo", 2}, {"bar", 3}}
	id := common.Hash{1, 2, 3}
	p := NewPeer(id, name, caps)

	assert.Equal(t, id, p.ID())
	assert.Equal(t, name, p.Name())
	assert.Equal(t, caps, p.Caps())
	assert.True(t, p.RunningCap("foo", []uint{1, 2}))
	assert.False(t, p.RunningCap("bar", []uint{1, 2}))

	p.Disconnect(DiscAlreadyConnected) // Should not hang
}

func TestMatchProtocols(t *testing.T) {
	protos := []Protocol{
		{Name: "a", Version: 1, Length: 5},
		{Name: "a", Version: 2, Length: 6},
		{Name: "b", Version: 1, Length: 3},
		{Name: "c", Version: 1, Length: 1},
	}
	caps := []Cap{{"b", 1}, {"a", 2}, {"a", 1}, {"d", 1}}
	result := matchProtocols(protos, caps, nil)

	require.Len(t, result, 2)
	assert.EqualValues(t, 2, result["a"].Version)
	assert.EqualValues(t, baseProtocolLength, result["a"].offset)
	assert.EqualValues(t, baseProtocolLength+6, result["b"].offset)
	assert.Equal(t, 3, countMatchingProtocols(protos, caps))
}

func TestDecodeDisconnectMessage(t *testing.T) {
	tests := []struct {
		payload []byte
		want    DiscReason
	}{
		{encodeDisconnectMessage(DiscTooManyPeers), DiscTooManyPeers},
		{rlp.AppendUint64(nil, uint64(DiscSelf)), DiscSelf}, // legacy bare value
		{[]byte{0x81, 0x00}, DiscInvalid},
		{[]byte{0xc2, 0x82, 0x01}, DiscInvalid},
	}
	for _, tt := range tests {
		msg := Msg{Code: discMsg, Size: uint32(len(tt.payload)), Payload: bytesReader(tt.payload)}
		assert.Equal(t, tt.want, decodeDisconnectMessage(msg), "payload %x", tt.payload)
	}
}

func TestDiscReasonForError(t *testing.T) {
	assert.Equal(t, DiscSelf, discReasonForError(DiscSelf))
	assert.Equal(t, DiscQuitting, discReasonForError(errProtocolReturned))
	assert.Equal(t, DiscProtocolError, discReasonForError(newPeerError(errInvalidMsg, "bad")))
	assert.Equal(t, DiscSubprotocolError, discReasonForError(io.EOF))
	assert.Equal(t, "unknown disconnect reason 200", DiscReason(200).String())
}
