// Copyright 2015 The go-ethereum Authors
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

// Package rlpx implements the framing layer of the devp2p transport: every
// message is written as a 24-bit frame size followed by the RLP encoded
// message code and the (optionally snappy compressed) payload.
// rlpx 包实现 devp2p 传输的分帧层：每条消息由 24 位帧长度、RLP 编码的消息码和负载组成，负载可选 snappy 压缩。
package rlpx

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/golang/snappy"

	"github.com/sunyihoo/evmsync/rlp"
)

// Conn is an RLPx network connection. It wraps a low-level network connection. The
// underlying connection should not be used for other activity when it is wrapped by Conn.
//
// This type is not generally safe for concurrent use, but reading and writing of
// messages may happen concurrently.
// Conn 是一个 RLPx 网络连接，读和写可以在不同 goroutine 中并发进行。
type Conn struct {
	conn net.Conn

	rbuf readBuffer
	wbuf writeBuffer

	// These are the buffers for snappy compression.
	// Compression is enabled if they are non-nil.
	snappyReadBuffer  []byte
	snappyWriteBuffer []byte
}

var (
	// errPlainMessageTooLarge is returned if a decompressed message length exceeds
	// the allowed 24 bits (i.e. length >= 16MB).
	errPlainMessageTooLarge = errors.New("message length >= 16MB")
)

// NewConn wraps the given network connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// SetSnappy enables or disables snappy compression of messages. This is usually called
// after the devp2p Hello message exchange when the negotiated version indicates that
// compression is available on both ends of the connection.
func (c *Conn) SetSnappy(snappy bool) {
	if snappy {
		c.snappyReadBuffer = []byte{}
		c.snappyWriteBuffer = []byte{}
	} else {
		c.snappyReadBuffer = nil
		c.snappyWriteBuffer = nil
	}
}

// SetReadDeadline sets the deadline for all future read operations.
func (c *Conn) SetReadDeadline(time time.Time) error {
	return c.conn.SetReadDeadline(time)
}

// SetWriteDeadline sets the deadline for all future write operations.
func (c *Conn) SetWriteDeadline(time time.Time) error {
	return c.conn.SetWriteDeadline(time)
}

// SetDeadline sets the deadline for all future read and write operations.
func (c *Conn) SetDeadline(time time.Time) error {
	return c.conn.SetDeadline(time)
}

// Read reads a message from the connection.
// The returned data buffer is valid until the next call to Read.
//
// With compression enabled the announced decompressed length is validated
// before any decoding happens.
// Read 从连接读取一条消息；启用压缩时，先校验 snappy 前导中的解压长度再解压。
func (c *Conn) Read() (code uint64, data []byte, wireSize int, err error) {
	frame, err := c.readFrame(c.conn)
	if err != nil {
		return 0, nil, 0, err
	}
	code, data, err = rlp.SplitUint64(frame)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("invalid message code: %v", err)
	}
	wireSize = len(data)

	// If snappy is enabled, verify and decompress message.
	if c.snappyReadBuffer != nil {
		var actualSize int
		actualSize, err = snappy.DecodedLen(data)
		if err != nil {
			return code, nil, 0, err
		}
		if actualSize > maxUint24 {
			return code, nil, 0, errPlainMessageTooLarge
		}
		c.snappyReadBuffer = growslice(c.snappyReadBuffer, actualSize)
		data, err = snappy.Decode(c.snappyReadBuffer, data)
	}
	return code, data, wireSize, err
}

func (c *Conn) readFrame(conn io.Reader) ([]byte, error) {
	c.rbuf.reset()

	// Read the frame header.
	header, err := c.rbuf.read(conn, frameHeaderSize)
	if err != nil {
		return nil, err
	}
	fsize := readUint24(header)
	if fsize == 0 {
		return nil, errors.New("empty frame")
	}
	// Read the frame content.
	return c.rbuf.read(conn, int(fsize))
}

// Write writes a message to the connection.
//
// Write returns the written size of the message data. This may be less than or equal to
// len(data) depending on whether snappy compression is enabled.
func (c *Conn) Write(code uint64, data []byte) (uint32, error) {
	if len(data) > maxUint24 {
		return 0, errPlainMessageTooLarge
	}
	if c.snappyWriteBuffer != nil {
		// Ensure the buffer has sufficient size.
		// Package snappy will allocate its own buffer if the provided
		// one is smaller than MaxEncodedLen.
		c.snappyWriteBuffer = growslice(c.snappyWriteBuffer, snappy.MaxEncodedLen(len(data)))
		data = snappy.Encode(c.snappyWriteBuffer, data)
	}
	wireSize := uint32(len(data))
	err := c.writeFrame(c.conn, code, data)
	return wireSize, err
}

func (c *Conn) writeFrame(conn io.Writer, code uint64, data []byte) error {
	c.wbuf.reset()

	c.wbuf.appendZero(frameHeaderSize)
	offset := len(c.wbuf.data)
	c.wbuf.data = rlp.AppendUint64(c.wbuf.data, code)
	c.wbuf.Write(data)

	fsize := len(c.wbuf.data) - offset
	if fsize > maxUint24 {
		return errPlainMessageTooLarge
	}
	putUint24(uint32(fsize), c.wbuf.data[:frameHeaderSize])

	_, err := conn.Write(c.wbuf.data)
	return err
}

// Close closes the underlying network connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// frameHeaderSize is the length of the frame size prefix.
const frameHeaderSize = 3
