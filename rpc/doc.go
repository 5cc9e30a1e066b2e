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

/*
Package rpc implements a JSON-RPC 2.0 server exposing the exported methods of
registered objects.

Methods are registered per namespace with Server.RegisterName and called as
"namespace_method", where the method name has its first letter lower-cased.
To be exposed a method must be exported and return either nothing, a single
value, an error, or a value followed by an error. An optional first argument
of type context.Context receives the request context.

	type CalcService struct{}

	func (s *CalcService) Add(a, b int) int {
		return a + b
	}

	func (s *CalcService) Div(a, b int) (int, error) {
		if b == 0 {
			return 0, errors.New("divide by zero")
		}
		return a / b, nil
	}

	server := rpc.NewServer()
	server.RegisterName("calc", new(CalcService))

Requests without an id are notifications: they are executed but never answered.
Batches are answered with one entry per call; a batch holding only
notifications produces no response at all, and an empty batch is answered with
a single invalid request error.

The server is served over HTTP (Server.ServeHTTP) and WebSocket
(Server.WebsocketHandler).
*/
package rpc
