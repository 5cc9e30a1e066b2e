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

package engine

import (
	"fmt"
	"regexp"
)

// Client identifiers to support ClientVersionV1.
const (
	ClientCode = "ES"
	ClientName = "evmsync"
)

// clientCodeRe matches the two letter client codes of the engine API.
var clientCodeRe = regexp.MustCompile(`^[A-Z]{2}$`)

// ClientVersionV1 contains information which identifies a client implementation.
type ClientVersionV1 struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func (v *ClientVersionV1) String() string {
	return fmt.Sprintf("%s-%s-%s-%s", v.Code, v.Name, v.Version, v.Commit)
}

// Validate checks the identity reported by the consensus client. The code must
// be two upper case letters and the commit a 0x prefixed four byte hex string.
// Validate 校验共识客户端上报的身份：code 为两个大写字母，commit 为 0x 前缀的 4 字节十六进制串。
func (v *ClientVersionV1) Validate() error {
	if !clientCodeRe.MatchString(v.Code) {
		return InvalidParams.With(invalidClientVersion(v))
	}
	if v.Name == "" || v.Version == "" {
		return InvalidParams.With(invalidClientVersion(v))
	}
	if len(v.Commit) != 10 || v.Commit[:2] != "0x" {
		return InvalidParams.With(invalidClientVersion(v))
	}
	for _, c := range v.Commit[2:] {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return InvalidParams.With(invalidClientVersion(v))
		}
	}
	return nil
}

// ValidateClientVersions checks an engine_getClientVersionV1 response. The
// execution layer answers with exactly one identity.
// ValidateClientVersions 校验 engine_getClientVersionV1 的响应：必须恰好包含一个合法身份。
func ValidateClientVersions(versions []ClientVersionV1) error {
	if len(versions) != 1 {
		return InvalidParams.With(fmt.Errorf("expected 1 client version, got %d", len(versions)))
	}
	return versions[0].Validate()
}
