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

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientVersionValidate(t *testing.T) {
	valid := ClientVersionV1{Code: "LH", Name: "Lighthouse", Version: "v5.1.0", Commit: "0xa1b2c3d4"}
	require.NoError(t, valid.Validate())

	tests := []ClientVersionV1{
		{Code: "L", Name: "Lighthouse", Version: "v5.1.0", Commit: "0xa1b2c3d4"},
		{Code: "lh", Name: "Lighthouse", Version: "v5.1.0", Commit: "0xa1b2c3d4"},
		{Code: "LHX", Name: "Lighthouse", Version: "v5.1.0", Commit: "0xa1b2c3d4"},
		{Code: "LH", Name: "", Version: "v5.1.0", Commit: "0xa1b2c3d4"},
		{Code: "LH", Name: "Lighthouse", Version: "", Commit: "0xa1b2c3d4"},
		{Code: "LH", Name: "Lighthouse", Version: "v5.1.0", Commit: "a1b2c3d4"},
		{Code: "LH", Name: "Lighthouse", Version: "v5.1.0", Commit: "0xa1b2c3"},
		{Code: "LH", Name: "Lighthouse", Version: "v5.1.0", Commit: "0xa1b2c3zz"},
	}
	for _, v := range tests {
		err := v.Validate()
		require.Error(t, err, v.String())
		var apiErr *EngineAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, InvalidParams.ErrorCode(), apiErr.ErrorCode())
		assert.NotNil(t, apiErr.ErrorData())
	}
}

func TestValidateClientVersions(t *testing.T) {
	v := ClientVersionV1{Code: ClientCode, Name: ClientName, Version: "0.3.0", Commit: "0x00000000"}
	assert.NoError(t, ValidateClientVersions([]ClientVersionV1{v}))
	assert.Error(t, ValidateClientVersions(nil))
	assert.Error(t, ValidateClientVersions([]ClientVersionV1{v, v}))
}

func TestEngineAPIErrorWith(t *testing.T) {
	assert.Nil(t, GenericServerError.ErrorData())
	assert.Equal(t, "Server error", GenericServerError.Error())
	assert.Equal(t, -38004, TooLargeRequest.ErrorCode())
}
