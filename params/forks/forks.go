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

package forks

import (
	"fmt"
	"strings"
)

// 以太坊通过硬分叉引入协议变更。Fork 的数值顺序就是激活顺序，
// 所有按分叉切换的规则（gas 表、指令集、交易校验）都通过 IsAtLeast 比较。

// Fork is a numerical identifier of specific network upgrades (forks).
// Fork 是特定网络升级（分叉）的数字标识符。
type Fork int

const (
	Frontier Fork = iota
	FrontierThawing
	Homestead
	DAO
	TangerineWhistle // EIP-150
	SpuriousDragon   // EIP-155, EIP-158
	Byzantium
	Constantinople
	Petersburg
	Istanbul
	MuirGlacier
	Berlin
	London
	ArrowGlacier
	GrayGlacier
	Paris
	Shanghai
	Cancun
	Prague
)

// Latest is the newest fork known to this build.
const Latest = Prague

var names = [...]string{
	Frontier:         "Frontier",
	FrontierThawing:  "FrontierThawing",
	Homestead:        "Homestead",
	DAO:              "DAO",
	TangerineWhistle: "TangerineWhistle",
	SpuriousDragon:   "SpuriousDragon",
	Byzantium:        "Byzantium",
	Constantinople:   "Constantinople",
	Petersburg:       "Petersburg",
	Istanbul:         "Istanbul",
	MuirGlacier:      "MuirGlacier",
	Berlin:           "Berlin",
	London:           "London",
	ArrowGlacier:     "ArrowGlacier",
	GrayGlacier:      "GrayGlacier",
	Paris:            "Paris",
	Shanghai:         "Shanghai",
	Cancun:           "Cancun",
	Prague:           "Prague",
}

// IsAtLeast reports whether f is the same fork as other or activates after it.
// IsAtLeast 判断 f 是否等于或晚于 other。
func (f Fork) IsAtLeast(other Fork) bool {
	return f >= other
}

// String implements fmt.Stringer.
func (f Fork) String() string {
	if f < 0 || int(f) >= len(names) {
		return fmt.Sprintf("Fork(%d)", int(f))
	}
	return names[f]
}

// Parse returns the fork with the given name. Matching is case-insensitive and
// also accepts the common aliases "Merge" and "EIP150"/"EIP158".
func Parse(name string) (Fork, error) {
	for f, n := range names {
		if strings.EqualFold(n, name) {
			return Fork(f), nil
		}
	}
	switch strings.ToLower(name) {
	case "merge":
		return Paris, nil
	case "eip150":
		return TangerineWhistle, nil
	case "eip155", "eip158":
		return SpuriousDragon, nil
	}
	return 0, fmt.Errorf("unknown fork %q", name)
}
