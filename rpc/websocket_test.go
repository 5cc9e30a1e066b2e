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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebsocket(t *testing.T, origins []string) (*Server, *httptest.Server) {
	t.Helper()
	server := newTestServer()
	httpsrv := httptest.NewServer(server.WebsocketHandler(origins))
	t.Cleanup(func() {
		httpsrv.Close()
		server.Stop()
	})
	return server, httpsrv
}

func wsURL(httpsrv *httptest.Server) string {
	return "ws:" + strings.TrimPrefix(httpsrv.URL, "http:")
}

func dialWebsocket(t *testing.T, url string, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := make(http.Header)
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func wsRoundTrip(t *testing.T, conn *websocket.Conn, request string) *jsonrpcMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg jsonrpcMessage
	require.NoError(t, jsonAPI.Unmarshal(data, &msg), "message: %s", data)
	return &msg
}

func TestWebsocketCall(t *testing.T) {
	_, httpsrv := newTestWebsocket(t, []string{"*"})
	conn, _, err := dialWebsocket(t, wsURL(httpsrv), "")
	require.NoError(t, err)

	msg := wsRoundTrip(t, conn, `{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["ws",3]}`)
	require.Nil(t, msg.Error)
	assert.JSONEq(t, `{"String":"ws","Int":3,"Args":null}`, string(msg.Result))

	msg = wsRoundTrip(t, conn, `{"jsonrpc":"2.0","id":2,"method":"test_peerInfo"}`)
	var info PeerInfo
	require.NoError(t, jsonAPI.Unmarshal(msg.Result, &info))
	assert.Equal(t, "ws", info.Transport)
	assert.NotEmpty(t, info.RemoteAddr)
}

func TestWebsocketParseErrorKeepsConnection(t *testing.T) {
	_, httpsrv := newTestWebsocket(t, []string{"*"})
	conn, _, err := dialWebsocket(t, wsURL(httpsrv), "")
	require.NoError(t, err)

	msg := wsRoundTrip(t, conn, `{invalid}`)
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32700, msg.Error.Code)

	// The connection is still usable after the bad frame.
	msg = wsRoundTrip(t, conn, `{"jsonrpc":"2.0","id":5,"method":"test_bump"}`)
	require.Nil(t, msg.Error)
	assert.JSONEq(t, `5`, string(msg.ID))
	assert.JSONEq(t, `1`, string(msg.Result))
}

func TestWebsocketBatch(t *testing.T) {
	_, httpsrv := newTestWebsocket(t, []string{"*"})
	conn, _, err := dialWebsocket(t, wsURL(httpsrv), "")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[{"jsonrpc":"2.0","id":1,"method":"test_bump"},{"jsonrpc":"2.0","method":"test_bump"}]`)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msgs []*jsonrpcMessage
	require.NoError(t, jsonAPI.Unmarshal(data, &msgs))
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `1`, string(msgs[0].ID))
}

func TestWebsocketOriginCheck(t *testing.T) {
	_, httpsrv := newTestWebsocket(t, []string{"http://example.com"})

	_, resp, err := dialWebsocket(t, wsURL(httpsrv), "http://evil.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dialWebsocket(t, wsURL(httpsrv), "http://example.com")
	require.NoError(t, err)
	msg := wsRoundTrip(t, conn, `{"jsonrpc":"2.0","id":1,"method":"test_noArgsRets"}`)
	assert.Nil(t, msg.Error)

	// Non-browser clients send no origin and are let through.
	_, _, err = dialWebsocket(t, wsURL(httpsrv), "")
	assert.NoError(t, err)
}

func TestRuleAllowsOrigin(t *testing.T) {
	tests := []struct {
		rule, origin string
		allowed      bool
	}{
		{"http://localhost", "http://localhost", true},
		{"http://localhost", "https://localhost", false},
		{"localhost", "https://localhost", true},
		{"http://localhost:8540", "http://localhost:8540", true},
		{"http://localhost:8540", "http://localhost:9000", false},
		{"http://localhost", "http://localhost:9000", true},
		{"example.com", "http://example.com", true},
		{"example.com", "http://evil.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, ruleAllowsOrigin(tt.rule, tt.origin), "rule %q origin %q", tt.rule, tt.origin)
	}
}
