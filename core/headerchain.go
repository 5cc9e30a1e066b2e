// Copyright 2015 The go-ethereum Authors
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

package core

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/consensus"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/params"
)

const (
	headerCacheLimit = 512
	numberCacheLimit = 2048
)

// WriteStatus status of write
type WriteStatus byte

const (
	NonStatTy WriteStatus = iota
	CanonStatTy
	SideStatTy
)

var errChainStopped = errors.New("blockchain is stopped")

// HeaderChain implements the basic block header chain logic. It is not thread
// safe for writes; the owning BlockChain serialises them.
//
// The canonical chain is the longest known header chain. Ties keep the chain
// that reached the height first.
// HeaderChain 实现区块头链的基本逻辑，规范链是已知最长的头链，等高时保留先到达者。
type HeaderChain struct {
	config        *params.ChainConfig
	chainDb       ethdb.Database
	genesisHeader *types.Header
	engine        consensus.Engine

	currentHeader     atomic.Pointer[types.Header] // Current head of the header chain (maybe above the block chain!)
	currentHeaderHash common.Hash                  // Hash of the current head of the header chain (prevent recomputing all the time)

	headerCache *lru.Cache[common.Hash, *types.Header]
	numberCache *lru.Cache[common.Hash, uint64] // most recent block numbers

	procInterrupt func() bool
}

// NewHeaderChain creates a new HeaderChain structure. ProcInterrupt points
// to the parent's interrupt semaphore.
func NewHeaderChain(chainDb ethdb.Database, config *params.ChainConfig, engine consensus.Engine, procInterrupt func() bool) (*HeaderChain, error) {
	headerCache, _ := lru.New[common.Hash, *types.Header](headerCacheLimit)
	numberCache, _ := lru.New[common.Hash, uint64](numberCacheLimit)

	hc := &HeaderChain{
		config:        config,
		chainDb:       chainDb,
		engine:        engine,
		headerCache:   headerCache,
		numberCache:   numberCache,
		procInterrupt: procInterrupt,
	}
	hc.genesisHeader = hc.GetHeaderByNumber(0)
	if hc.genesisHeader == nil {
		return nil, ErrNoGenesis
	}
	hc.currentHeader.Store(hc.genesisHeader)
	if head := rawdb.ReadHeadHeaderHash(chainDb); head != (common.Hash{}) {
		if chead := hc.GetHeaderByHash(head); chead != nil {
			hc.currentHeader.Store(chead)
		}
	}
	hc.currentHeaderHash = hc.CurrentHeader().Hash()
	return hc, nil
}

// GetBlockNumber retrieves the block number belonging to the given hash
// from the cache or database
func (hc *HeaderChain) GetBlockNumber(hash common.Hash) *uint64 {
	if cached, ok := hc.numberCache.Get(hash); ok {
		return &cached
	}
	number := rawdb.ReadHeaderNumber(hc.chainDb, hash)
	if number != nil {
		hc.numberCache.Add(hash, *number)
	}
	return number
}

// ValidateHeaderChain checks that the headers are ordered, linked and valid
// under the consensus rules. It returns the index of the first failing header.
// ValidateHeaderChain 检查区块头有序、相互链接并符合共识规则，返回首个失败头的下标。
func (hc *HeaderChain) ValidateHeaderChain(chain []*types.Header) (int, error) {
	// Do a sanity check that the provided chain is actually ordered and linked
	for i := 1; i < len(chain); i++ {
		if chain[i].Number.Uint64() != chain[i-1].Number.Uint64()+1 || chain[i].ParentHash != chain[i-1].Hash() {
			hash := chain[i].Hash()
			parentHash := chain[i-1].Hash()
			log.Error("Non contiguous header insert", "number", chain[i].Number, "hash", hash,
				"parent", chain[i].ParentHash, "prevnumber", chain[i-1].Number, "prevhash", parentHash)

			return 0, fmt.Errorf("non contiguous insert: item %d is #%d [%x..], item %d is #%d [%x..] (parent [%x..])", i-1, chain[i-1].Number,
				parentHash.Bytes()[:4], i, chain[i].Number, hash.Bytes()[:4], chain[i].ParentHash[:4])
		}
	}
	if !hc.HasHeader(chain[0].ParentHash, chain[0].Number.Uint64()-1) {
		return 0, ErrUnknownAncestor
	}
	abort, results := hc.engine.VerifyHeaders(hc, chain)
	defer close(abort)

	for i := range chain {
		if hc.procInterrupt() {
			log.Debug("Premature abort during headers verification")
			return 0, errChainStopped
		}
		if err := <-results; err != nil {
			return i, err
		}
	}
	return 0, nil
}

// headerWriteResult summarises a header import.
type headerWriteResult struct {
	status     WriteStatus
	ignored    int
	imported   int
	lastHash   common.Hash
	lastHeader *types.Header
}

// writeHeaders stores the headers that are not yet known. Headers are written
// in one batch; the canonical markers are left untouched.
func (hc *HeaderChain) writeHeaders(headers []*types.Header) (*headerWriteResult, error) {
	var (
		batch  = hc.chainDb.NewBatch()
		result = &headerWriteResult{status: SideStatTy}
	)
	for _, header := range headers {
		hash, number := header.Hash(), header.Number.Uint64()
		if hc.HasHeader(hash, number) {
			result.ignored++
			continue
		}
		rawdb.WriteHeader(batch, header)
		hc.headerCache.Add(hash, header)
		hc.numberCache.Add(hash, number)
		result.imported++
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}
	last := headers[len(headers)-1]
	result.lastHeader, result.lastHash = last, last.Hash()
	return result, nil
}

// Reorg reorgs the local canonical chain into the specified chain. The reorg
// can be classified into two cases: (a) extend the local chain (b) switch the
// head to the given header.
// Reorg 将本地规范链切换到给定的头链：直接延长当前链，或回溯到分叉点后重写规范编号。
func (hc *HeaderChain) Reorg(headers []*types.Header) error {
	if len(headers) == 0 {
		return nil
	}
	var (
		first = headers[0]
		last  = headers[len(headers)-1]
		batch = hc.chainDb.NewBatch()
	)
	if first.ParentHash != hc.currentHeaderHash {
		// Delete any canonical number assignments above the new head
		for i := last.Number.Uint64() + 1; ; i++ {
			hash := rawdb.ReadCanonicalHash(hc.chainDb, i)
			if hash == (common.Hash{}) {
				break
			}
			rawdb.DeleteCanonicalHash(batch, i)
		}
		// Overwrite any stale canonical number assignments, going backwards
		// from the parent of the first header until the two chains meet.
		var (
			headNumber = first.Number.Uint64() - 1
			headHash   = first.ParentHash
		)
		for rawdb.ReadCanonicalHash(hc.chainDb, headNumber) != headHash {
			rawdb.WriteCanonicalHash(batch, headHash, headNumber)
			if headNumber == 0 {
				break
			}
			header := hc.GetHeader(headHash, headNumber)
			if header == nil {
				return fmt.Errorf("missing parent %d %x", headNumber, headHash)
			}
			headHash, headNumber = header.ParentHash, headNumber-1
		}
	}
	// Extend the canonical chain with the new headers
	for _, header := range headers {
		rawdb.WriteCanonicalHash(batch, header.Hash(), header.Number.Uint64())
	}
	lastHash := last.Hash()
	rawdb.WriteHeadHeaderHash(batch, lastHash)

	if err := batch.Write(); err != nil {
		return err
	}
	hc.currentHeaderHash = lastHash
	hc.currentHeader.Store(types.CopyHeader(last))
	return nil
}

// InsertHeaderChain inserts the given headers and does the reorganisations.
//
// The validity of the headers is NOT CHECKED by this method, i.e. they need to be
// validated by ValidateHeaderChain before calling InsertHeaderChain.
//
// The returned 'write status' says if the inserted headers are part of the canonical chain
// or a side chain.
func (hc *HeaderChain) InsertHeaderChain(chain []*types.Header, start time.Time) (WriteStatus, error) {
	if hc.procInterrupt() {
		return NonStatTy, errChainStopped
	}
	res, err := hc.writeHeaders(chain)
	if err != nil {
		return NonStatTy, err
	}
	if res.lastHeader.Number.Cmp(hc.CurrentHeader().Number) > 0 {
		if err := hc.Reorg(chain); err != nil {
			return NonStatTy, err
		}
		res.status = CanonStatTy
	} else if hc.GetCanonicalHash(res.lastHeader.Number.Uint64()) == res.lastHash {
		res.status = CanonStatTy
	}
	context := []interface{}{
		"count", res.imported,
		"elapsed", common.PrettyDuration(time.Since(start)),
		"number", res.lastHeader.Number, "hash", res.lastHash,
	}
	if timestamp := time.Unix(int64(res.lastHeader.Time), 0); time.Since(timestamp) > time.Minute {
		context = append(context, "age", common.PrettyAge(timestamp))
	}
	if res.ignored > 0 {
		context = append(context, "ignored", res.ignored)
	}
	log.Debug("Imported new block headers", context...)
	return res.status, nil
}

// GetHeader retrieves a block header from the database by hash and number,
// caching it if found.
func (hc *HeaderChain) GetHeader(hash common.Hash, number uint64) *types.Header {
	if header, ok := hc.headerCache.Get(hash); ok {
		return header
	}
	header := rawdb.ReadHeader(hc.chainDb, hash, number)
	if header == nil {
		return nil
	}
	hc.headerCache.Add(hash, header)
	return header
}

// GetHeaderByHash retrieves a block header from the database by hash, caching it if
// found.
func (hc *HeaderChain) GetHeaderByHash(hash common.Hash) *types.Header {
	number := hc.GetBlockNumber(hash)
	if number == nil {
		return nil
	}
	return hc.GetHeader(hash, *number)
}

// HasHeader checks if a block header is present in the database or not.
func (hc *HeaderChain) HasHeader(hash common.Hash, number uint64) bool {
	if hc.numberCache.Contains(hash) || hc.headerCache.Contains(hash) {
		return true
	}
	return rawdb.HasHeader(hc.chainDb, hash, number)
}

// GetHeaderByNumber retrieves a block header from the database by number,
// caching it (associated with its hash) if found.
func (hc *HeaderChain) GetHeaderByNumber(number uint64) *types.Header {
	hash := rawdb.ReadCanonicalHash(hc.chainDb, number)
	if hash == (common.Hash{}) {
		return nil
	}
	return hc.GetHeader(hash, number)
}

// GetCanonicalHash returns the canonical hash at the given height.
func (hc *HeaderChain) GetCanonicalHash(number uint64) common.Hash {
	return rawdb.ReadCanonicalHash(hc.chainDb, number)
}

// CurrentHeader retrieves the current head header of the canonical chain. The
// header is retrieved from the HeaderChain's internal cache.
func (hc *HeaderChain) CurrentHeader() *types.Header {
	return hc.currentHeader.Load()
}

// Config retrieves the header chain's chain configuration.
func (hc *HeaderChain) Config() *params.ChainConfig { return hc.config }
