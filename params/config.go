// Copyright 2016 The go-ethereum Authors
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

package params

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/sunyihoo/evmsync/params/forks"
)

func newUint64(val uint64) *uint64 { return &val }

var (
	// MainnetChainConfig is the chain parameters to run a node on the main network.
	// MainnetChainConfig 是在主网上运行节点的链参数。
	MainnetChainConfig = &ChainConfig{
		ChainID:             big.NewInt(1),
		HomesteadBlock:      big.NewInt(1_150_000),
		DAOForkBlock:        big.NewInt(1_920_000),
		EIP150Block:         big.NewInt(2_463_000),
		EIP158Block:         big.NewInt(2_675_000),
		ByzantiumBlock:      big.NewInt(4_370_000),
		ConstantinopleBlock: big.NewInt(7_280_000),
		PetersburgBlock:     big.NewInt(7_280_000),
		IstanbulBlock:       big.NewInt(9_069_000),
		MuirGlacierBlock:    big.NewInt(9_200_000),
		BerlinBlock:         big.NewInt(12_244_000),
		LondonBlock:         big.NewInt(12_965_000),
		ArrowGlacierBlock:   big.NewInt(13_773_000),
		GrayGlacierBlock:    big.NewInt(15_050_000),
		MergeNetsplitBlock:  big.NewInt(15_537_394),
		ShanghaiTime:        newUint64(1681338455),
		CancunTime:          newUint64(1710338135),
		PragueTime:          newUint64(1746612311),
	}

	// AllDevChainProtocolChanges contains every protocol change introduced
	// and accepted by the Ethereum core developers, all active from genesis.
	// AllDevChainProtocolChanges 包含所有已接受的协议变更，并且从创世块开始全部激活。
	AllDevChainProtocolChanges = ConfigForFork(forks.Latest, big.NewInt(1337))

	// TestChainConfig contains every protocol change introduced and accepted
	// by the Ethereum core developers for testing purposes.
	TestChainConfig = ConfigForFork(forks.Latest, big.NewInt(1))
)

// ChainConfig is the core config which determines the blockchain settings.
//
// ChainConfig is stored in the database on a per block basis. This means
// that any network, identified by its genesis block, can have its own
// set of configuration options.
// ChainConfig 是决定区块链设置的核心配置。
type ChainConfig struct {
	ChainID *big.Int `json:"chainId" toml:",omitempty"` // chainId identifies the current chain and is used for replay protection

	HomesteadBlock      *big.Int `json:"homesteadBlock,omitempty" toml:",omitempty"`      // Homestead switch block (nil = no fork, 0 = already homestead)
	DAOForkBlock        *big.Int `json:"daoForkBlock,omitempty" toml:",omitempty"`        // TheDAO hard-fork switch block (nil = no fork)
	EIP150Block         *big.Int `json:"eip150Block,omitempty" toml:",omitempty"`         // EIP150 HF block (nil = no fork)
	EIP158Block         *big.Int `json:"eip158Block,omitempty" toml:",omitempty"`         // EIP158 HF block
	ByzantiumBlock      *big.Int `json:"byzantiumBlock,omitempty" toml:",omitempty"`      // Byzantium switch block (nil = no fork, 0 = already on byzantium)
	ConstantinopleBlock *big.Int `json:"constantinopleBlock,omitempty" toml:",omitempty"` // Constantinople switch block (nil = no fork, 0 = already activated)
	PetersburgBlock     *big.Int `json:"petersburgBlock,omitempty" toml:",omitempty"`     // Petersburg switch block (nil = same as Constantinople)
	IstanbulBlock       *big.Int `json:"istanbulBlock,omitempty" toml:",omitempty"`       // Istanbul switch block (nil = no fork, 0 = already on istanbul)
	MuirGlacierBlock    *big.Int `json:"muirGlacierBlock,omitempty" toml:",omitempty"`    // Eip-2384 (bomb delay) switch block (nil = no fork, 0 = already activated)
	BerlinBlock         *big.Int `json:"berlinBlock,omitempty" toml:",omitempty"`         // Berlin switch block (nil = no fork, 0 = already on berlin)
	LondonBlock         *big.Int `json:"londonBlock,omitempty" toml:",omitempty"`         // London switch block (nil = no fork, 0 = already on london)
	ArrowGlacierBlock   *big.Int `json:"arrowGlacierBlock,omitempty" toml:",omitempty"`   // Eip-4345 (bomb delay) switch block (nil = no fork, 0 = already activated)
	GrayGlacierBlock    *big.Int `json:"grayGlacierBlock,omitempty" toml:",omitempty"`    // Eip-5133 (bomb delay) switch block (nil = no fork, 0 = already activated)
	MergeNetsplitBlock  *big.Int `json:"mergeNetsplitBlock,omitempty" toml:",omitempty"`  // Virtual fork after The Merge to use as a network splitter

	// Fork scheduling was switched from blocks to timestamps here
	// 分叉调度从这里开始由区块号切换为时间戳

	ShanghaiTime *uint64 `json:"shanghaiTime,omitempty" toml:",omitempty"` // Shanghai switch time (nil = no fork, 0 = already on shanghai)
	CancunTime   *uint64 `json:"cancunTime,omitempty" toml:",omitempty"`   // Cancun switch time (nil = no fork, 0 = already on cancun)
	PragueTime   *uint64 `json:"pragueTime,omitempty" toml:",omitempty"`   // Prague switch time (nil = no fork, 0 = already on prague)
}

// forkActivation ties a fork to the config field that schedules it. Exactly
// one of block or time is set.
type forkActivation struct {
	fork     forks.Fork
	block    func(c *ChainConfig) *big.Int
	time     func(c *ChainConfig) *uint64
	optional bool // if true, the fork may be nil and next fork is still allowed
}

// forkSchedule is the ordered activation table used both for rule derivation
// and for configuration validation.
// forkSchedule 是有序的分叉激活表，规则推导和配置校验都只读取这一张表。
var forkSchedule = []forkActivation{
	{fork: forks.Homestead, block: func(c *ChainConfig) *big.Int { return c.HomesteadBlock }},
	{fork: forks.DAO, block: func(c *ChainConfig) *big.Int { return c.DAOForkBlock }, optional: true},
	{fork: forks.TangerineWhistle, block: func(c *ChainConfig) *big.Int { return c.EIP150Block }},
	{fork: forks.SpuriousDragon, block: func(c *ChainConfig) *big.Int { return c.EIP158Block }},
	{fork: forks.Byzantium, block: func(c *ChainConfig) *big.Int { return c.ByzantiumBlock }},
	{fork: forks.Constantinople, block: func(c *ChainConfig) *big.Int { return c.ConstantinopleBlock }},
	{fork: forks.Petersburg, block: func(c *ChainConfig) *big.Int { return c.PetersburgBlock }},
	{fork: forks.Istanbul, block: func(c *ChainConfig) *big.Int { return c.IstanbulBlock }},
	{fork: forks.MuirGlacier, block: func(c *ChainConfig) *big.Int { return c.MuirGlacierBlock }, optional: true},
	{fork: forks.Berlin, block: func(c *ChainConfig) *big.Int { return c.BerlinBlock }},
	{fork: forks.London, block: func(c *ChainConfig) *big.Int { return c.LondonBlock }},
	{fork: forks.ArrowGlacier, block: func(c *ChainConfig) *big.Int { return c.ArrowGlacierBlock }, optional: true},
	{fork: forks.GrayGlacier, block: func(c *ChainConfig) *big.Int { return c.GrayGlacierBlock }, optional: true},
	{fork: forks.Paris, block: func(c *ChainConfig) *big.Int { return c.MergeNetsplitBlock }},
	{fork: forks.Shanghai, time: func(c *ChainConfig) *uint64 { return c.ShanghaiTime }},
	{fork: forks.Cancun, time: func(c *ChainConfig) *uint64 { return c.CancunTime }},
	{fork: forks.Prague, time: func(c *ChainConfig) *uint64 { return c.PragueTime }},
}

// ConfigForFork returns a chain configuration with every fork up to and
// including f active from genesis and all later forks disabled.
// ConfigForFork 返回一个配置：f 及之前的分叉都从创世块激活，之后的分叉全部关闭。
func ConfigForFork(f forks.Fork, chainID *big.Int) *ChainConfig {
	c := &ChainConfig{ChainID: new(big.Int).Set(chainID)}
	for _, act := range forkSchedule {
		if !f.IsAtLeast(act.fork) {
			break
		}
		c.set(act.fork, 0)
	}
	return c
}

// set activates fork f at the given block number or timestamp.
func (c *ChainConfig) set(f forks.Fork, at uint64) {
	switch f {
	case forks.Homestead:
		c.HomesteadBlock = new(big.Int).SetUint64(at)
	case forks.DAO:
		c.DAOForkBlock = new(big.Int).SetUint64(at)
	case forks.TangerineWhistle:
		c.EIP150Block = new(big.Int).SetUint64(at)
	case forks.SpuriousDragon:
		c.EIP158Block = new(big.Int).SetUint64(at)
	case forks.Byzantium:
		c.ByzantiumBlock = new(big.Int).SetUint64(at)
	case forks.Constantinople:
		c.ConstantinopleBlock = new(big.Int).SetUint64(at)
	case forks.Petersburg:
		c.PetersburgBlock = new(big.Int).SetUint64(at)
	case forks.Istanbul:
		c.IstanbulBlock = new(big.Int).SetUint64(at)
	case forks.MuirGlacier:
		c.MuirGlacierBlock = new(big.Int).SetUint64(at)
	case forks.Berlin:
		c.BerlinBlock = new(big.Int).SetUint64(at)
	case forks.London:
		c.LondonBlock = new(big.Int).SetUint64(at)
	case forks.ArrowGlacier:
		c.ArrowGlacierBlock = new(big.Int).SetUint64(at)
	case forks.GrayGlacier:
		c.GrayGlacierBlock = new(big.Int).SetUint64(at)
	case forks.Paris:
		c.MergeNetsplitBlock = new(big.Int).SetUint64(at)
	case forks.Shanghai:
		c.ShanghaiTime = newUint64(at)
	case forks.Cancun:
		c.CancunTime = newUint64(at)
	case forks.Prague:
		c.PragueTime = newUint64(at)
	}
}

// Description returns a human-readable description of ChainConfig.
// Description 返回 ChainConfig 的可读描述。
func (c *ChainConfig) Description() string {
	var banner strings.Builder
	banner.WriteString(fmt.Sprintf("Chain ID:  %v\n", c.ChainID))
	banner.WriteString("Hard forks:\n")
	for _, act := range forkSchedule {
		switch {
		case act.block != nil && act.block(c) != nil:
			banner.WriteString(fmt.Sprintf(" - %-17s #%v\n", act.fork.String()+":", act.block(c)))
		case act.time != nil && act.time(c) != nil:
			banner.WriteString(fmt.Sprintf(" - %-17s @%d\n", act.fork.String()+":", *act.time(c)))
		}
	}
	return banner.String()
}

// LatestFork returns the latest fork active at the given block number and
// timestamp. Timestamp based forks are only considered once the merge block
// has been reached.
// LatestFork 返回在给定区块号和时间戳处已激活的最新分叉。
func (c *ChainConfig) LatestFork(num *big.Int, time uint64) forks.Fork {
	latest := forks.Frontier
	for _, act := range forkSchedule {
		switch {
		case act.block != nil && isBlockForked(act.block(c), num):
			latest = act.fork
		case act.time != nil && latest.IsAtLeast(forks.Paris) && isTimestampForked(act.time(c), time):
			latest = act.fork
		case act.optional:
			continue
		default:
			return latest
		}
	}
	return latest
}

// IsActive reports whether fork f is active at the given block and time.
func (c *ChainConfig) IsActive(f forks.Fork, num *big.Int, time uint64) bool {
	return c.LatestFork(num, time).IsAtLeast(f)
}

// IsLondon returns whether num is either equal to the London fork block or greater.
func (c *ChainConfig) IsLondon(num *big.Int) bool {
	return isBlockForked(c.LondonBlock, num)
}

// CheckConfigForkOrder checks that we don't "skip" any forks, evmsync isn't pluggable enough
// to guarantee that forks can be implemented in a different order than on official networks
// CheckConfigForkOrder 检查分叉顺序：不允许跳过必选分叉，也不允许激活点倒序。
func (c *ChainConfig) CheckConfigForkOrder() error {
	var (
		lastFork    forks.Fork
		lastBlock   *big.Int
		lastTime    *uint64
		haveLast    bool
		missingFork = -1
	)
	for _, act := range forkSchedule {
		var (
			block *big.Int
			ts    *uint64
		)
		if act.block != nil {
			block = act.block(c)
		} else {
			ts = act.time(c)
		}
		if block == nil && ts == nil {
			if !act.optional && missingFork < 0 {
				missingFork = int(act.fork)
			}
			continue
		}
		if missingFork >= 0 {
			return fmt.Errorf("unsupported fork ordering: %v not enabled, but %v enabled", forks.Fork(missingFork), act.fork)
		}
		if haveLast {
			if block != nil && lastBlock != nil && lastBlock.Cmp(block) > 0 {
				return fmt.Errorf("unsupported fork ordering: %v enabled at block %v, but %v enabled at block %v",
					lastFork, lastBlock, act.fork, block)
			}
			if ts != nil && lastTime != nil && *lastTime > *ts {
				return fmt.Errorf("unsupported fork ordering: %v enabled at timestamp %d, but %v enabled at timestamp %d",
					lastFork, *lastTime, act.fork, *ts)
			}
		}
		lastFork, haveLast = act.fork, true
		if block != nil {
			lastBlock = block
		} else {
			lastTime = ts
		}
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return errors.New("invalid chain id")
	}
	return nil
}

// isBlockForked returns whether a fork scheduled at block s is active at the
// given head block.
func isBlockForked(s, head *big.Int) bool {
	if s == nil || head == nil {
		return false
	}
	return s.Cmp(head) <= 0
}

// isTimestampForked returns whether a fork scheduled at timestamp s is active
// at the given head timestamp.
func isTimestampForked(s *uint64, head uint64) bool {
	if s == nil {
		return false
	}
	return *s <= head
}

// Rules wraps ChainConfig and is merely syntactic sugar or can be used for functions
// that do not have or require information about the block.
//
// Rules is a one time interface meaning that it shouldn't be used in between transition
// phases. Every flag is derived from Fork, so the flags can never disagree with
// each other.
// Rules 是某个区块上生效规则的快照，所有布尔开关都由 Fork 推导。
type Rules struct {
	ChainID                                                 *big.Int
	Fork                                                    forks.Fork
	IsHomestead, IsEIP150, IsEIP158                         bool
	IsByzantium, IsConstantinople, IsPetersburg, IsIstanbul bool
	IsBerlin, IsLondon                                      bool
	IsMerge, IsShanghai, IsCancun, IsPrague                 bool
}

// Rules ensures c's ChainID is not nil.
func (c *ChainConfig) Rules(num *big.Int, timestamp uint64) Rules {
	chainID := c.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return RulesForFork(c.LatestFork(num, timestamp), chainID)
}

// RulesForFork derives the rule set of a given fork.
func RulesForFork(f forks.Fork, chainID *big.Int) Rules {
	return Rules{
		ChainID:          new(big.Int).Set(chainID),
		Fork:             f,
		IsHomestead:      f.IsAtLeast(forks.Homestead),
		IsEIP150:         f.IsAtLeast(forks.TangerineWhistle),
		IsEIP158:         f.IsAtLeast(forks.SpuriousDragon),
		IsByzantium:      f.IsAtLeast(forks.Byzantium),
		IsConstantinople: f.IsAtLeast(forks.Constantinople),
		IsPetersburg:     f.IsAtLeast(forks.Petersburg),
		IsIstanbul:       f.IsAtLeast(forks.Istanbul),
		IsBerlin:         f.IsAtLeast(forks.Berlin),
		IsLondon:         f.IsAtLeast(forks.London),
		IsMerge:          f.IsAtLeast(forks.Paris),
		IsShanghai:       f.IsAtLeast(forks.Shanghai),
		IsCancun:         f.IsAtLeast(forks.Cancun),
		IsPrague:         f.IsAtLeast(forks.Prague),
	}
}
