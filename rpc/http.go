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
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"time"
)

const (
	defaultBodyLimit = 5 * 1024 * 1024
	contentType      = "application/json"
)

// acceptedContentTypes lists the media types a POST body may declare.
var acceptedContentTypes = []string{contentType, "application/json-rpc", "application/jsonrequest"}

// HTTPTimeouts holds the timeouts of an HTTP RPC server. See http.Server for
// the meaning of each field.
type HTTPTimeouts struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// DefaultHTTPTimeouts represents the default timeout values used if further
// configuration is not provided.
var DefaultHTTPTimeouts = HTTPTimeouts{
	ReadTimeout:       30 * time.Second,
	ReadHeaderTimeout: 30 * time.Second,
	WriteTimeout:      30 * time.Second,
	IdleTimeout:       120 * time.Second,
}

// Apply copies the timeouts onto srv.
func (t HTTPTimeouts) Apply(srv *http.Server) {
	srv.ReadTimeout = t.ReadTimeout
	srv.ReadHeaderTimeout = t.ReadHeaderTimeout
	srv.WriteTimeout = t.WriteTimeout
	srv.IdleTimeout = t.IdleTimeout
}

// httpError is a request rejected before any JSON-RPC processing.
type httpError struct {
	code int
	err  error
}

// httpConn adapts one request/response pair to the codec transport. It is
// never closed by the codec, the HTTP server owns the connection.
type httpConn struct {
	io.Reader
	io.Writer
	remote string
}

func (c *httpConn) Close() error                     { return nil }
func (c *httpConn) RemoteAddr() string               { return c.remote }
func (c *httpConn) SetWriteDeadline(time.Time) error { return nil }

// ServeHTTP serves JSON-RPC requests over HTTP.
// ServeHTTP 通过 HTTP 提供 JSON-RPC 服务，每个请求体承载一条消息或一个批量请求。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Empty GET requests are load balancer health checks.
	if r.Method == http.MethodGet && r.ContentLength == 0 && r.URL.RawQuery == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if herr := s.checkHTTPRequest(r); herr != nil {
		http.Error(w, herr.err.Error(), herr.code)
		return
	}
	codec := s.newHTTPCodec(w, r)
	defer codec.close()

	w.Header().Set("content-type", contentType)
	ctx := context.WithValue(r.Context(), peerInfoContextKey{}, codec.peerInfo())
	s.serveSingleRequest(ctx, codec)
}

// checkHTTPRequest rejects requests by method, declared size and media type.
// OPTIONS requests skip the media type check.
func (s *Server) checkHTTPRequest(r *http.Request) *httpError {
	switch r.Method {
	case http.MethodPut, http.MethodDelete:
		return &httpError{http.StatusMethodNotAllowed, errors.New("method not allowed")}
	}
	if limit := int64(s.httpBodyLimit); r.ContentLength > limit {
		return &httpError{http.StatusRequestEntityTooLarge, fmt.Errorf("content length too large (%d>%d)", r.ContentLength, limit)}
	}
	if r.Method == http.MethodOptions {
		return nil
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("content-type"))
	if err != nil || !slices.Contains(acceptedContentTypes, mt) {
		return &httpError{http.StatusUnsupportedMediaType, fmt.Errorf("invalid content type, only %s is supported", contentType)}
	}
	return nil
}

// newHTTPCodec builds a codec reading the size-limited request body and
// writing to w. Error responses are written in one piece with an explicit
// length and flushed, so they reach the client before the server's write
// timeout cuts the connection.
func (s *Server) newHTTPCodec(w http.ResponseWriter, r *http.Request) ServerCodec {
	conn := &httpConn{
		Reader: io.LimitReader(r.Body, int64(s.httpBodyLimit)),
		Writer: w,
		remote: r.RemoteAddr,
	}
	encode := func(v any, isErrorResponse bool) error {
		if !isErrorResponse {
			return jsonAPI.NewEncoder(conn).Encode(v)
		}
		data, err := jsonAPI.Marshal(v)
		if err != nil {
			return err
		}
		h := w.Header()
		h.Set("content-length", strconv.Itoa(len(data)))
		h.Set("transfer-encoding", "identity")
		if _, err = w.Write(data); err == nil {
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		return err
	}
	codec := newFuncCodec(conn, encode, jsonAPI.NewDecoder(conn).Decode)
	codec.info = PeerInfo{Transport: "http", RemoteAddr: r.RemoteAddr}
	codec.info.HTTP.Version = r.Proto
	codec.info.HTTP.UserAgent = r.Header.Get("User-Agent")
	codec.info.HTTP.Origin = r.Header.Get("Origin")
	codec.info.HTTP.Host = r.Host
	return codec
}
