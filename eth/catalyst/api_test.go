// Copyright 2024 The go-ethereum Authors
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

package catalyst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/beacon/engine"
	"github.com/sunyihoo/evmsync/eth"
	"github.com/sunyihoo/evmsync/eth/ethconfig"
	"github.com/sunyihoo/evmsync/internal/version"
	"github.com/sunyihoo/evmsync/node"
)

func newConsensusAPI(t *testing.T) *ConsensusAPI {
	t.Helper()
	stack, err := node.New(&node.Config{Name: "evmsync-test"})
	require.NoError(t, err)
	t.Cleanup(func() { stack.Close() })

	config := ethconfig.Defaults
	config.SyncMode = ethconfig.NoSync
	backend, err := eth.New(stack, &config)
	require.NoError(t, err)
	require.NoError(t, Register(stack, backend))
	return NewConsensusAPI(backend)
}

func TestGetClientVersion(t *testing.T) {
	api := newConsensusAPI(t)
	peer := engine.ClientVersionV1{Code: "TK", Name: "teku", Version: "1.0.0", Commit: "0x12345678"}

	infos, err := api.GetClientVersionV1(peer)
	require.NoError(t, err)
	require.NoError(t, engine.ValidateClientVersions(infos))

	info := infos[0]
	assert.Equal(t, engine.ClientCode, info.Code)
	assert.Equal(t, engine.ClientName, info.Name)
	assert.Equal(t, version.WithMeta, info.Version)
}

func TestGetClientVersionInvalidPeer(t *testing.T) {
	api := newConsensusAPI(t)
	_, err := api.GetClientVersionV1(engine.ClientVersionV1{Code: "T", Name: "teku", Version: "1.0.0", Commit: "0x12345678"})
	var apiErr *engine.EngineAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, engine.InvalidParams.ErrorCode(), apiErr.ErrorCode())
}

func TestExchangeCapabilities(t *testing.T) {
	api := newConsensusAPI(t)
	caps := api.ExchangeCapabilities([]string{"engine_newPayloadV4"})
	assert.Contains(t, caps, "engine_getClientVersionV1")
	assert.Contains(t, caps, "engine_exchangeCapabilities")
}
