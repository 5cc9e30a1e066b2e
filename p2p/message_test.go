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
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func TestMsgPipe(t *testing.T) {
	rw1, rw2 := MsgPipe()
	done := make(chan error, 1)
	go func() {
		done <- Send(rw1, 8, []byte{0, 0})
	}()
	require.NoError(t, ExpectMsg(rw2, 8, []byte{0, 0}))
	require.NoError(t, <-done)

	// A nil value goes out as an empty list.
	go func() { done <- Send(rw2, 1, nil) }()
	require.NoError(t, ExpectMsg(rw1, 1, []interface{}{}))
	require.NoError(t, <-done)
}

func TestMsgPipeUnblockWrite(t *testing.T) {
	rw1, rw2 := MsgPipe()
	done := make(chan error, 1)
	go func() {
		done <- Send(rw1, 4, []byte{1})
	}()
	time.Sleep(50 * time.Millisecond)
	rw2.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrPipeClosed)
	case <-time.After(time.Second):
		t.Fatal("write not unblocked by close")
	}
	_, err := rw1.ReadMsg()
	assert.ErrorIs(t, err, ErrPipeClosed)
}

func TestExpectMsgMismatch(t *testing.T) {
	rw1, rw2 := MsgPipe()
	defer rw1.Close()
	go Send(rw1, 3, []byte{1, 2})
	assert.Error(t, ExpectMsg(rw2, 4, nil))

	go Send(rw1, 3, []byte{1, 2})
	assert.Error(t, ExpectMsg(rw2, 3, []byte{1, 3}))
}

func TestSendItems(t *testing.T) {
	rw1, rw2 := MsgPipe()
	defer rw1.Close()
	go SendItems(rw1, 1, uint64(1), []byte{0xaa})
	assert.NoError(t, ExpectMsg(rw2, 1, []interface{}{uint64(1), []byte{0xaa}}))
}

func TestMsgDecode(t *testing.T) {
	rw1, rw2 := MsgPipe()
	defer rw1.Close()

	type item struct {
		ID   uint64
		Name string
	}
	go Send(rw1, 2, &item{ID: 7, Name: "x"})
	msg, err := rw2.ReadMsg()
	require.NoError(t, err)
	var got item
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, item{ID: 7, Name: "x"}, got)

	go Send(rw1, 2, []byte{1, 2})
	msg, err = rw2.ReadMsg()
	require.NoError(t, err)
	err = msg.Decode(&got)
	assert.ErrorContains(t, err, "invalid message")
	msg.Discard()
}
