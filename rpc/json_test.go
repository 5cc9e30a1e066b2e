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

package rpc

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePositionalArguments(t *testing.T) {
	var (
		str  = reflect.TypeOf("")
		num  = reflect.TypeOf(0)
		opt  = reflect.TypeOf((*int)(nil))
		sign = []reflect.Type{str, num, opt}
	)
	tests := []struct {
		args string
		err  string
	}{
		{`["a",1,2]`, ""},
		{`["a",1]`, ""},
		{`["a",1,null]`, ""},
		{`[null,1]`, "missing value for required argument 0"},
		{`["a",null]`, "missing value for required argument 1"},
		{`["a"]`, "missing value for required argument 1"},
		{`[1,1]`, "invalid argument 0: "},
		{`["a",1,2,3]`, "too many arguments, want at most 3"},
		{`{"a":1}`, "non-array args"},
	}
	for _, tt := range tests {
		args, err := parsePositionalArguments(json.RawMessage(tt.args), sign)
		if tt.err != "" {
			require.Error(t, err, tt.args)
			assert.Contains(t, err.Error(), tt.err, tt.args)
			continue
		}
		require.NoError(t, err, tt.args)
		require.Len(t, args, 3)
		assert.Equal(t, "a", args[0].String())
		assert.Equal(t, int64(1), args[1].Int())
	}
}
