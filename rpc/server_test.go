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

package rpc

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// post sends body to the server and returns the raw response.
func post(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("content-type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *jsonrpcMessage {
	t.Helper()
	var msg jsonrpcMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg), "body: %s", rec.Body.String())
	return &msg
}

func decodeBatch(t *testing.T, rec *httptest.ResponseRecorder) []*jsonrpcMessage {
	t.Helper()
	var msgs []*jsonrpcMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs), "body: %s", rec.Body.String())
	return msgs
}

func TestServerRegisterName(t *testing.T) {
	server := NewServer()
	service := new(testService)

	require.NoError(t, server.RegisterName("test", service))
	svc, ok := server.services.services["test"]
	require.True(t, ok, "service not found after registration")

	for _, name := range []string{"echo", "echoWithCtx", "noArgsRets", "returnError", "panic", "bump"} {
		assert.Contains(t, svc.callbacks, name)
	}
	assert.Error(t, server.RegisterName("", service))
	assert.Error(t, server.RegisterName("empty", new(struct{})))
}

func TestServerCall(t *testing.T) {
	server := newTestServer()
	rec := post(t, server, `{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["hello",7,{"S":"x"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentType, rec.Header().Get("content-type"))

	msg := decodeResponse(t, rec)
	assert.Nil(t, msg.Error)
	assert.JSONEq(t, `1`, string(msg.ID))
	assert.JSONEq(t, `{"String":"hello","Int":7,"Args":{"S":"x"}}`, string(msg.Result))

	// Optional pointer arguments may be left out.
	msg = decodeResponse(t, post(t, server, `{"jsonrpc":"2.0","id":"a","method":"test_echoWithCtx","params":["hi",1]}`))
	assert.JSONEq(t, `"a"`, string(msg.ID))
	assert.JSONEq(t, `{"String":"hi","Int":1,"Args":null}`, string(msg.Result))

	msg = decodeResponse(t, post(t, server, `{"jsonrpc":"2.0","id":2,"method":"test_noArgsRets"}`))
	assert.Nil(t, msg.Error)
	assert.JSONEq(t, `null`, string(msg.Result))
}

func TestServerErrors(t *testing.T) {
	server := newTestServer()
	tests := []struct {
		name string
		body string
		code int
		msg  string
		data interface{}
	}{
		{"not found", `{"jsonrpc":"2.0","id":1,"method":"test_missing"}`, -32601, "the method test_missing does not exist/is not available", nil},
		{"no namespace", `{"jsonrpc":"2.0","id":1,"method":"echo"}`, -32601, "the method echo does not exist/is not available", nil},
		{"too many params", `{"jsonrpc":"2.0","id":1,"method":"test_noArgsRets","params":[1]}`, -32602, "too many arguments, want at most 0", nil},
		{"missing param", `{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["x"]}`, -32602, "missing value for required argument 1", nil},
		{"null param", `{"jsonrpc":"2.0","id":1,"method":"test_echo","params":[null,1]}`, -32602, "missing value for required argument 0", nil},
		{"non array", `{"jsonrpc":"2.0","id":1,"method":"test_echo","params":{"a":1}}`, -32602, "non-array args", nil},
		{"coded error", `{"jsonrpc":"2.0","id":1,"method":"test_returnError"}`, 444, "testError", "testError data"},
		{"plain error", `{"jsonrpc":"2.0","id":1,"method":"test_fail"}`, -32000, "plain failure", nil},
		{"panic", `{"jsonrpc":"2.0","id":1,"method":"test_panic"}`, -32603, "method handler crashed", nil},
		{"bad version", `{"jsonrpc":"1.0","id":1,"method":"test_echo"}`, -32600, "invalid request", nil},
		{"no method", `{"jsonrpc":"2.0","id":1}`, -32600, "invalid request", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := decodeResponse(t, post(t, server, tt.body))
			require.NotNil(t, msg.Error)
			assert.Equal(t, tt.code, msg.Error.Code)
			assert.Equal(t, tt.msg, msg.Error.Message)
			assert.Equal(t, tt.data, msg.Error.Data)
			assert.Nil(t, msg.Result)
		})
	}
}

func TestServerParseError(t *testing.T) {
	server := newTestServer()
	msg := decodeResponse(t, post(t, server, `{invalid}`))
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32700, msg.Error.Code)
	assert.JSONEq(t, `null`, string(msg.ID))
}

func TestServerNotification(t *testing.T) {
	server := NewServer()
	service := new(testService)
	require.NoError(t, server.RegisterName("test", service))

	rec := post(t, server, `{"jsonrpc":"2.0","method":"test_bump"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, int64(1), service.Bumps())

	// Failing notifications are not answered either.
	rec = post(t, server, `{"jsonrpc":"2.0","method":"test_missing"}`)
	assert.Empty(t, rec.Body.String())
}

func TestServerBatch(t *testing.T) {
	server := NewServer()
	service := new(testService)
	require.NoError(t, server.RegisterName("test", service))

	body := `[
		{"jsonrpc":"2.0","id":1,"method":"test_bump"},
		{"jsonrpc":"2.0","method":"test_bump"},
		{"jsonrpc":"2.0","id":2,"method":"test_missing"},
		5
	]`
	msgs := decodeBatch(t, post(t, server, body))
	require.Len(t, msgs, 3)

	assert.JSONEq(t, `1`, string(msgs[0].ID))
	assert.JSONEq(t, `1`, string(msgs[0].Result))
	assert.JSONEq(t, `2`, string(msgs[1].ID))
	assert.Equal(t, -32601, msgs[1].Error.Code)
	assert.Equal(t, -32600, msgs[2].Error.Code)

	// Calls of a batch run in order.
	assert.Equal(t, int64(2), service.Bumps())
}

func TestServerBatchOnlyNotifications(t *testing.T) {
	server := NewServer()
	service := new(testService)
	require.NoError(t, server.RegisterName("test", service))

	rec := post(t, server, `[{"jsonrpc":"2.0","method":"test_bump"},{"jsonrpc":"2.0","method":"test_bump"}]`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, int64(2), service.Bumps())
}

func TestServerEmptyBatch(t *testing.T) {
	server := newTestServer()
	rec := post(t, server, `[]`)

	// An empty batch is answered with a single error object, not an array.
	msg := decodeResponse(t, rec)
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32600, msg.Error.Code)
	assert.Equal(t, "empty batch", msg.Error.Message)
}

func TestServerBatchLimits(t *testing.T) {
	server := newTestServer()
	server.SetBatchLimits(2, 0)

	msgs := decodeBatch(t, post(t, server, `[
		{"jsonrpc":"2.0","method":"test_bump"},
		{"jsonrpc":"2.0","id":7,"method":"test_bump"},
		{"jsonrpc":"2.0","id":8,"method":"test_bump"}
	]`))
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `7`, string(msgs[0].ID))
	assert.Equal(t, errcodeBatchTooLarge, msgs[0].Error.Code)

	server.SetBatchLimits(0, 10)
	msgs = decodeBatch(t, post(t, server, `[
		{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["a long enough string",1]},
		{"jsonrpc":"2.0","id":2,"method":"test_echo","params":["b",2]},
		{"jsonrpc":"2.0","method":"test_bump"}
	]`))
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].Error)
	assert.Equal(t, errcodeResponseTooLarge, msgs[1].Error.Code)
	assert.JSONEq(t, `2`, string(msgs[1].ID))
}

func TestRPCModules(t *testing.T) {
	server := newTestServer()
	msg := decodeResponse(t, post(t, server, `{"jsonrpc":"2.0","id":1,"method":"rpc_modules"}`))
	assert.JSONEq(t, `{"rpc":"1.0","test":"1.0"}`, string(msg.Result))
}

func TestServerStopped(t *testing.T) {
	server := newTestServer()
	server.Stop()
	rec := post(t, server, `{"jsonrpc":"2.0","id":1,"method":"test_bump"}`)
	assert.Empty(t, rec.Body.String())
}

func TestServeCodec(t *testing.T) {
	server := newTestServer()
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		server.ServeCodec(NewCodec(serverConn))
		close(done)
	}()

	clientConn.SetDeadline(time.Now().Add(5 * time.Second))
	dec := json.NewDecoder(clientConn)
	for i, tt := range []struct {
		req, result string
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"test_bump"}`, `1`},
		{`{"jsonrpc":"2.0","method":"test_bump"}`, ``},
		{`{"jsonrpc":"2.0","id":3,"method":"test_echo","params":["x",3]}`, `{"String":"x","Int":3,"Args":null}`},
	} {
		_, err := clientConn.Write([]byte(tt.req))
		require.NoError(t, err, "request %d", i)
		if tt.result == "" {
			continue // notifications get no answer
		}
		var msg jsonrpcMessage
		require.NoError(t, dec.Decode(&msg), "request %d", i)
		assert.JSONEq(t, tt.result, string(msg.Result), "request %d", i)
	}

	clientConn.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ServeCodec did not return after the connection closed")
	}
}
