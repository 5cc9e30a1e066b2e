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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sunyihoo/evmsync/log"
)

// handler handles JSON-RPC messages. There is one handler per connection. Calls
// run on their own goroutines, so a slow method never blocks reading the next
// message of a long lived connection.
//
// The entry points for incoming messages are:
//
//	h.handleMsg(message)
//	h.handleBatch(message)
//
// Outgoing messages are written through the connection's jsonWriter.
// handler 负责单个连接上的 JSON-RPC 消息处理，每个调用在独立的 goroutine 中执行。
type handler struct {
	reg        *serviceRegistry
	conn       jsonWriter
	rootCtx    context.Context // canceled by close()
	cancelRoot func()          // cancel function for rootCtx
	callWG     sync.WaitGroup  // pending call goroutines
	log        log.Logger

	batchRequestLimit    int
	batchResponseMaxSize int
}

func newHandler(connCtx context.Context, conn jsonWriter, reg *serviceRegistry, batchRequestLimit, batchResponseMaxSize int) *handler {
	rootCtx, cancelRoot := context.WithCancel(connCtx)
	h := &handler{
		reg:                  reg,
		conn:                 conn,
		rootCtx:              rootCtx,
		cancelRoot:           cancelRoot,
		log:                  log.Root(),
		batchRequestLimit:    batchRequestLimit,
		batchResponseMaxSize: batchResponseMaxSize,
	}
	if conn.remoteAddr() != "" {
		h.log = h.log.New("conn", conn.remoteAddr())
	}
	return h
}

// handleBatch executes all messages in a batch and returns the responses.
// Notifications are run but produce no entry; when nothing is left to answer,
// nothing is written at all.
// handleBatch 执行批量请求中的每条消息；通知不产生响应，全部为通知时不写出任何内容。
func (h *handler) handleBatch(msgs []*jsonrpcMessage) {
	// Emit error response for empty batches:
	if len(msgs) == 0 {
		h.startCallProc(func(ctx context.Context) {
			resp := errorMessage(&invalidRequestError{"empty batch"})
			h.conn.writeJSON(ctx, resp, true)
		})
		return
	}
	// Apply limit on total number of requests.
	if h.batchRequestLimit != 0 && len(msgs) > h.batchRequestLimit {
		h.startCallProc(func(ctx context.Context) {
			h.respondWithBatchTooLarge(ctx, msgs)
		})
		return
	}

	h.startCallProc(func(ctx context.Context) {
		var (
			answers       = make([]*jsonrpcMessage, 0, len(msgs))
			responseBytes int
		)
		for i, msg := range msgs {
			resp := h.handleCallMsg(ctx, msg)
			if resp == nil {
				continue
			}
			answers = append(answers, resp)
			if h.batchResponseMaxSize != 0 {
				responseBytes += len(resp.Result)
				if responseBytes > h.batchResponseMaxSize {
					answers = append(answers, respondWithError(msgs[i+1:], &internalServerError{errcodeResponseTooLarge, errMsgResponseTooLarge})...)
					break
				}
			}
		}
		if len(answers) > 0 {
			h.conn.writeJSON(ctx, answers, false)
		}
	})
}

// respondWithError answers the remaining calls of a batch with err.
func respondWithError(rest []*jsonrpcMessage, err error) []*jsonrpcMessage {
	var answers []*jsonrpcMessage
	for _, msg := range rest {
		if msg.isCall() {
			answers = append(answers, msg.errorResponse(err))
		}
	}
	return answers
}

func (h *handler) respondWithBatchTooLarge(ctx context.Context, batch []*jsonrpcMessage) {
	resp := errorMessage(&internalServerError{errcodeBatchTooLarge, errMsgBatchTooLarge})
	// Find the first call and add its "id" field to the error.
	// This is the best we can do, given that the protocol doesn't have a way
	// of reporting an error for the entire batch.
	for _, msg := range batch {
		if msg.isCall() {
			resp.ID = msg.ID
			break
		}
	}
	h.conn.writeJSON(ctx, []*jsonrpcMessage{resp}, true)
}

// handleMsg handles a single non-batch message.
func (h *handler) handleMsg(msg *jsonrpcMessage) {
	h.startCallProc(func(ctx context.Context) {
		if resp := h.handleCallMsg(ctx, msg); resp != nil {
			h.conn.writeJSON(ctx, resp, resp.Error != nil)
		}
	})
}

// close waits for the running calls, then cancels the connection context.
func (h *handler) close() {
	h.callWG.Wait()
	h.cancelRoot()
}

// startCallProc runs fn in a new goroutine and starts tracking it in the h.calls wait group.
func (h *handler) startCallProc(fn func(context.Context)) {
	h.callWG.Add(1)
	go func() {
		ctx, cancel := context.WithCancel(h.rootCtx)
		defer h.callWG.Done()
		defer cancel()
		fn(ctx)
	}()
}

// handleCallMsg executes a call message and returns the answer. Notifications
// are executed too, but yield no answer.
func (h *handler) handleCallMsg(ctx context.Context, msg *jsonrpcMessage) *jsonrpcMessage {
	start := time.Now()
	switch {
	case msg.isNotification():
		resp := h.handleCall(ctx, msg)
		logctx := []interface{}{"duration", time.Since(start)}
		if resp.Error != nil {
			logctx = append(logctx, "err", resp.Error.Message)
		}
		h.log.Debug("Served notification "+msg.Method, logctx...)
		return nil

	case msg.isCall():
		resp := h.handleCall(ctx, msg)
		logctx := []interface{}{"reqid", idForLog{msg.ID}, "duration", time.Since(start)}
		if resp.Error != nil {
			logctx = append(logctx, "err", resp.Error.Message)
			if resp.Error.Data != nil {
				logctx = append(logctx, "errdata", formatErrorData(resp.Error.Data))
			}
		}
		h.log.Debug("Served "+msg.Method, logctx...)
		return resp

	case msg.hasValidID():
		return msg.errorResponse(&invalidRequestError{"invalid request"})

	default:
		return errorMessage(&invalidRequestError{"invalid request"})
	}
}

// handleCall processes method calls.
func (h *handler) handleCall(ctx context.Context, msg *jsonrpcMessage) *jsonrpcMessage {
	callb := h.reg.callback(msg.Method)
	if callb == nil {
		return msg.errorResponse(&methodNotFoundError{method: msg.Method})
	}
	args, err := parsePositionalArguments(msg.Params, callb.argTypes)
	if err != nil {
		return msg.errorResponse(&invalidParamsError{err.Error()})
	}
	result, err := callb.call(ctx, msg.Method, args)
	if err != nil {
		return msg.errorResponse(err)
	}
	return msg.response(result)
}

type idForLog struct{ json.RawMessage }

func (id idForLog) String() string {
	if s, err := strconv.Unquote(string(id.RawMessage)); err == nil {
		return s
	}
	return string(id.RawMessage)
}

var errTruncatedOutput = errors.New("truncated output")

type limitedBuffer struct {
	output []byte
	limit  int
}

func (buf *limitedBuffer) Write(data []byte) (int, error) {
	avail := max(buf.limit-len(buf.output), 0)
	if len(data) <= avail {
		buf.output = append(buf.output, data...)
		return len(data), nil
	}
	buf.output = append(buf.output, data[:avail]...)
	return avail, errTruncatedOutput
}

// formatErrorData renders error data for logging, cut at 1KB.
func formatErrorData(v any) string {
	buf := limitedBuffer{limit: 1024}
	err := jsonAPI.NewEncoder(&buf).Encode(v)
	switch {
	case err == nil:
		return string(bytes.TrimRight(buf.output, "\n"))
	case errors.Is(err, errTruncatedOutput):
		return fmt.Sprintf("%s... (truncated)", buf.output)
	default:
		return fmt.Sprintf("bad error data (err=%v)", err)
	}
}
