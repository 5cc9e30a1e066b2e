// Copyright 2022 The go-ethereum Authors
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

// Package engine holds the data types shared between the engine API server
// and its consensus client.
package engine

import (
	"fmt"

	"github.com/sunyihoo/evmsync/rpc"
)

// EngineAPIError is a standardized error message between consensus and execution
// clients, also containing any custom error message Geth might include.
// EngineAPIError 是共识客户端与执行客户端之间的标准错误，可附带自定义错误信息。
type EngineAPIError struct {
	code int
	msg  string
	err  error
}

func (e *EngineAPIError) ErrorCode() int { return e.code }
func (e *EngineAPIError) Error() string  { return e.msg }
func (e *EngineAPIError) ErrorData() interface{} {
	if e.err == nil {
		return nil
	}
	return struct {
		Error string `json:"err"`
	}{e.err.Error()}
}

// With returns a copy of the error with a new embedded custom data field.
func (e *EngineAPIError) With(err error) *EngineAPIError {
	return &EngineAPIError{
		code: e.code,
		msg:  e.msg,
		err:  err,
	}
}

var (
	_ rpc.Error     = new(EngineAPIError)
	_ rpc.DataError = new(EngineAPIError)
)

var (
	GenericServerError = &EngineAPIError{code: -32000, msg: "Server error"}
	TooLargeRequest    = &EngineAPIError{code: -38004, msg: "Too large request"}
	InvalidParams      = &EngineAPIError{code: -32602, msg: "Invalid parameters"}
)

// invalidClientVersion is attached to InvalidParams for malformed client identities.
func invalidClientVersion(v *ClientVersionV1) error {
	return fmt.Errorf("invalid client version %q", v.String())
}
