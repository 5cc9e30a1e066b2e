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

package eth

import (
	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/log"
)

const (
	// softResponseLimit is the target maximum size of replies to data retrievals.
	softResponseLimit = 2 * 1024 * 1024

	// estHeaderSize is the approximate size of an RLP encoded block header.
	estHeaderSize = 500

	// maxHeadersServe is the maximum number of block headers to serve. This number
	// is there to limit the number of disk lookups.
	maxHeadersServe = 1024

	// maxBodiesServe is the maximum number of block bodies to serve. This number
	// is mostly there to limit the number of disk lookups. With 24KB block sizes
	// nowadays, the practical limit will always be softResponseLimit.
	maxBodiesServe = 1024

	// maxReceiptsServe is the maximum number of block receipts to serve. This
	// number is mostly there to limit the number of disk lookups. With block
	// containing 200+ transactions nowadays, the practical limit will always
	// be softResponseLimit.
	maxReceiptsServe = 1024
)

// Chain is the chain data a peer needs to answer queries and to handshake.
// Chain 是应答查询与握手所需的链数据接口，由 core.BlockChain 实现。
type Chain interface {
	CurrentHeader() *types.Header
	CurrentBlock() *types.Header
	Genesis() *types.Block
	GetHeader(hash common.Hash, number uint64) *types.Header
	GetHeaderByHash(hash common.Hash) *types.Header
	GetHeaderByNumber(number uint64) *types.Header
	GetCanonicalHash(number uint64) common.Hash
	GetBody(hash common.Hash) *types.Body
	GetReceiptsByHash(hash common.Hash) types.Receipts
}

// ServiceGetBlockHeadersQuery assembles the response to a header query. It is
// exposed to allow external packages to test protocol behavior.
// ServiceGetBlockHeadersQuery 组装区块头查询的响应。
func ServiceGetBlockHeadersQuery(chain Chain, query *GetBlockHeadersRequest) []*types.Header {
	if query.Amount == 0 {
		return nil
	}
	if query.Skip == 0 {
		// The fast path: when the request is for a contiguous segment of headers.
		return serviceContiguousBlockHeaderQuery(chain, query)
	}
	return serviceNonContiguousBlockHeaderQuery(chain, query)
}

func serviceNonContiguousBlockHeaderQuery(chain Chain, q *GetBlockHeadersRequest) []*types.Header {
	// Copy the query so the caller's request is not modified while walking.
	query := *q
	hashMode := query.Origin.Hash != (common.Hash{})
	first := true
	maxNonCanonical := uint64(100)

	// Gather headers until the fetch or network limits is reached
	var (
		bytes   common.StorageSize
		headers []*types.Header
		unknown bool
		lookups int
	)
	for !unknown && len(headers) < int(query.Amount) && bytes < softResponseLimit &&
		len(headers) < maxHeadersServe && lookups < 2*maxHeadersServe {
		lookups++
		// Retrieve the next header satisfying the query
		var origin *types.Header
		if hashMode {
			if first {
				first = false
				origin = chain.GetHeaderByHash(query.Origin.Hash)
				if origin != nil {
					query.Origin.Number = origin.Number.Uint64()
				}
			} else {
				origin = chain.GetHeader(query.Origin.Hash, query.Origin.Number)
			}
		} else {
			origin = chain.GetHeaderByNumber(query.Origin.Number)
		}
		if origin == nil {
			break
		}
		headers = append(headers, origin)
		bytes += estHeaderSize

		// Advance to the next header of the query
		switch {
		case hashMode && query.Reverse:
			// Hash based traversal towards the genesis block
			ancestor := query.Skip + 1
			if ancestor == 0 {
				unknown = true
			} else {
				query.Origin.Hash, query.Origin.Number = getAncestor(chain, query.Origin.Hash, query.Origin.Number, ancestor, &maxNonCanonical)
				unknown = (query.Origin.Hash == common.Hash{})
			}
		case hashMode && !query.Reverse:
			// Hash based traversal towards the leaf block
			var (
				current = origin.Number.Uint64()
				next    = current + query.Skip + 1
			)
			if next <= current {
				log.Warn("GetBlockHeaders skip overflow attack", "current", current, "skip", query.Skip, "next", next)
				unknown = true
			} else {
				if header := chain.GetHeaderByNumber(next); header != nil {
					nextHash := header.Hash()
					expOldHash, _ := getAncestor(chain, nextHash, next, query.Skip+1, &maxNonCanonical)
					if expOldHash == query.Origin.Hash {
						query.Origin.Hash, query.Origin.Number = nextHash, next
					} else {
						unknown = true
					}
				} else {
					unknown = true
				}
			}
		case query.Reverse:
			// Number based traversal towards the genesis block
			if query.Origin.Number >= query.Skip+1 {
				query.Origin.Number -= query.Skip + 1
			} else {
				unknown = true
			}
		case !query.Reverse:
			// Number based traversal towards the leaf block
			next := query.Origin.Number + query.Skip + 1
			if next <= query.Origin.Number {
				unknown = true
			} else {
				query.Origin.Number = next
			}
		}
	}
	return headers
}

// getAncestor retrieves the Nth ancestor of a given block. Canonical blocks
// are resolved by number, side chain blocks by walking parent links which
// consumes maxNonCanonical. A zero hash means the ancestor is unknown.
// getAncestor 返回给定区块的第 N 个祖先；非规范链上的回溯会消耗 maxNonCanonical 预算。
func getAncestor(chain Chain, hash common.Hash, number, ancestor uint64, maxNonCanonical *uint64) (common.Hash, uint64) {
	if ancestor > number {
		return common.Hash{}, 0
	}
	if ancestor == 1 {
		// in this case it is cheaper to just read the header
		if header := chain.GetHeader(hash, number); header != nil {
			return header.ParentHash, number - 1
		}
		return common.Hash{}, 0
	}
	for ancestor != 0 {
		if chain.GetCanonicalHash(number) == hash {
			ancestorHash := chain.GetCanonicalHash(number - ancestor)
			if chain.GetCanonicalHash(number) == hash {
				number -= ancestor
				return ancestorHash, number
			}
		}
		if *maxNonCanonical == 0 {
			return common.Hash{}, 0
		}
		*maxNonCanonical--
		ancestor--
		header := chain.GetHeader(hash, number)
		if header == nil {
			return common.Hash{}, 0
		}
		hash = header.ParentHash
		number--
	}
	return hash, number
}

func serviceContiguousBlockHeaderQuery(chain Chain, query *GetBlockHeadersRequest) []*types.Header {
	count := query.Amount
	if count > maxHeadersServe {
		count = maxHeadersServe
	}
	var origin *types.Header
	if query.Origin.Hash == (common.Hash{}) {
		origin = chain.GetHeaderByNumber(query.Origin.Number)
	} else {
		origin = chain.GetHeaderByHash(query.Origin.Hash)
	}
	if origin == nil {
		return nil
	}
	headers := []*types.Header{origin}
	num := origin.Number.Uint64()
	if !query.Reverse {
		// Headers towards the head must be on the canonical chain, so a
		// non-canonical origin ends the response after itself.
		if chain.GetCanonicalHash(num) != origin.Hash() {
			return headers
		}
		for i := uint64(1); i < count; i++ {
			header := chain.GetHeaderByNumber(num + i)
			if header == nil {
				break
			}
			headers = append(headers, header)
		}
		return headers
	}
	// Walk parents towards genesis, which works on side chains too.
	for uint64(len(headers)) < count && origin.Number.Sign() > 0 {
		origin = chain.GetHeader(origin.ParentHash, origin.Number.Uint64()-1)
		if origin == nil {
			break
		}
		headers = append(headers, origin)
	}
	return headers
}

// ServiceGetBlockBodiesQuery collects the bodies of the requested blocks.
// Unknown hashes are skipped.
// ServiceGetBlockBodiesQuery 收集请求的区块体，未知哈希被跳过。
func ServiceGetBlockBodiesQuery(chain Chain, hashes []common.Hash) []*types.Body {
	var (
		bytes  int
		bodies []*types.Body
	)
	for lookups, hash := range hashes {
		if bytes >= softResponseLimit || len(bodies) >= maxBodiesServe ||
			lookups >= 2*maxBodiesServe {
			break
		}
		if body := chain.GetBody(hash); body != nil {
			bodies = append(bodies, body)
			bytes += len(body.EncodeRLP())
		}
	}
	return bodies
}

// ServiceGetReceiptsQuery collects the receipts of the requested blocks.
// Blocks without stored receipts are skipped unless the header proves the
// receipt list is empty.
// ServiceGetReceiptsQuery 收集请求区块的收据；若区块头表明收据为空，则返回空列表。
func ServiceGetReceiptsQuery(chain Chain, hashes []common.Hash) []types.Receipts {
	var (
		bytes    int
		receipts []types.Receipts
	)
	for lookups, hash := range hashes {
		if bytes >= softResponseLimit || len(receipts) >= maxReceiptsServe ||
			lookups >= 2*maxReceiptsServe {
			break
		}
		results := chain.GetReceiptsByHash(hash)
		if results == nil {
			header := chain.GetHeaderByHash(hash)
			if header == nil || header.ReceiptHash != types.EmptyReceiptsHash {
				continue
			}
			results = types.Receipts{}
		}
		receipts = append(receipts, results)
		bytes += len(results.EncodeRLP())
	}
	return receipts
}
