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

package snap

import (
	"bytes"
	"context"
	"math/big"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/consensus/beacon"
	"github.com/sunyihoo/evmsync/core"
	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/core/types"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/p2p"
	"github.com/sunyihoo/evmsync/params"
	"github.com/sunyihoo/evmsync/params/forks"
	"github.com/sunyihoo/evmsync/rlp"
)

var (
	testContract = common.HexToAddress("0xc0de")
	testCode     = []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00}
	testAccounts = []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
		common.HexToAddress("0x03"),
		testContract,
	}
)

// newTestChain creates a chain whose genesis holds the test accounts and one
// contract with three storage slots.
func newTestChain(t *testing.T) *core.BlockChain {
	t.Helper()
	alloc := core.GenesisAlloc{}
	for _, addr := range testAccounts {
		alloc[addr] = core.GenesisAccount{Balance: big.NewInt(1)}
	}
	alloc[testContract] = core.GenesisAccount{
		Balance: big.NewInt(1),
		Code:    testCode,
		Storage: map[common.Hash]common.Hash{
			{1}: {0x11},
			{2}: {0x22},
			{3}: {0x33},
		},
	}
	gspec := &core.Genesis{
		Config: params.ConfigForFork(forks.Prague, big.NewInt(1337)),
		Alloc:  alloc,
	}
	chain, err := core.NewBlockChain(rawdb.NewMemoryDatabase(), gspec, beacon.New(), nil)
	require.NoError(t, err)
	t.Cleanup(chain.Stop)
	return chain
}

func sortedAccountHashes() []common.Hash {
	hashes := make([]common.Hash, len(testAccounts))
	for i, addr := range testAccounts {
		hashes[i] = crypto.Keccak256Hash(addr.Bytes())
	}
	slices.SortFunc(hashes, func(a, b common.Hash) int { return bytes.Compare(a[:], b[:]) })
	return hashes
}

func TestNewAccountRangeRequest(t *testing.T) {
	req := NewAccountRangeRequest(common.Hash{1}, common.Hash{}, common.MaxHash, 0)
	assert.Equal(t, uint64(softResponseLimit), req.Bytes)

	req = NewAccountRangeRequest(common.Hash{1}, common.Hash{}, common.MaxHash, 500)
	assert.Equal(t, uint64(500), req.Bytes)

	pkt := req.packet(7)
	assert.Equal(t, &GetAccountRangePacket{ID: 7, Root: common.Hash{1}, Limit: common.MaxHash, Bytes: 500}, pkt)
}

func TestNewStorageRangeRequest(t *testing.T) {
	accounts := []common.Hash{{7}}
	req := NewStorageRangeRequest(common.Hash{1}, accounts, nil, nil, 0)
	assert.Equal(t, uint64(softResponseLimit), req.Bytes)

	req = NewStorageRangeRequest(common.Hash{1}, accounts, []byte{1}, common.MaxHash[:], 64)
	assert.Equal(t, uint64(64), req.Bytes)
	assert.Equal(t, &GetStorageRangesPacket{ID: 2, Root: common.Hash{1}, Accounts: accounts, Origin: []byte{1}, Limit: common.MaxHash[:], Bytes: 64}, req.packet(2))
}

func TestServiceGetAccountRangeQuery(t *testing.T) {
	chain := newTestChain(t)
	root := chain.CurrentBlock().Hash()
	want := sortedAccountHashes()

	query := func(origin, limit common.Hash, bytes uint64) []common.Hash {
		pkt := NewAccountRangeRequest(root, origin, limit, bytes).packet(1)
		res := &AccountRangePacket{Accounts: ServiceGetAccountRangeQuery(chain, pkt)}
		hashes, accounts := res.Unpack()
		for _, blob := range accounts {
			_, err := types.DecodeStateAccount(blob)
			require.NoError(t, err)
		}
		return hashes
	}
	assert.Equal(t, want, query(common.Hash{}, common.MaxHash, 0))
	assert.Equal(t, want[:2], query(common.Hash{}, want[1], 0))
	assert.Equal(t, want[1:], query(want[1], common.MaxHash, 0))
	assert.Equal(t, want[:1], query(common.Hash{}, common.MaxHash, 1))

	// Unknown state roots are answered empty.
	pkt := NewAccountRangeRequest(common.Hash{0xff}, common.Hash{}, common.MaxHash, 0).packet(1)
	assert.Empty(t, ServiceGetAccountRangeQuery(chain, pkt))
}

func TestServiceGetStorageRangesQuery(t *testing.T) {
	chain := newTestChain(t)
	root := chain.CurrentBlock().Hash()
	account := crypto.Keccak256Hash(testContract.Bytes())

	full := ServiceGetStorageRangesQuery(chain, &GetStorageRangesPacket{Root: root, Accounts: []common.Hash{account}, Bytes: softResponseLimit})
	require.Len(t, full, 1)
	require.Len(t, full[0], 3)
	for i := 1; i < len(full[0]); i++ {
		assert.Equal(t, -1, bytes.Compare(full[0][i-1].Hash[:], full[0][i].Hash[:]))
	}
	partial := ServiceGetStorageRangesQuery(chain, &GetStorageRangesPacket{Root: root, Accounts: []common.Hash{account}, Bytes: 1})
	require.Len(t, partial, 1)
	assert.Len(t, partial[0], 1)

	resumed := ServiceGetStorageRangesQuery(chain, &GetStorageRangesPacket{Root: root, Accounts: []common.Hash{account}, Origin: full[0][1].Hash[:], Bytes: softResponseLimit})
	require.Len(t, resumed, 1)
	assert.Equal(t, full[0][1:], resumed[0])

	// Accounts without storage yield empty sets.
	eoa := crypto.Keccak256Hash(testAccounts[0].Bytes())
	sets := ServiceGetStorageRangesQuery(chain, &GetStorageRangesPacket{Root: root, Accounts: []common.Hash{eoa, account}, Bytes: softResponseLimit})
	require.Len(t, sets, 2)
	assert.Empty(t, sets[0])
	assert.Len(t, sets[1], 3)
}

func TestServiceGetByteCodesQuery(t *testing.T) {
	chain := newTestChain(t)
	codes := ServiceGetByteCodesQuery(chain, &GetByteCodesPacket{
		Hashes: []common.Hash{crypto.Keccak256Hash(testCode), {0xde, 0xad}, types.EmptyCodeHash},
		Bytes:  softResponseLimit,
	})
	require.Len(t, codes, 2)
	assert.Equal(t, testCode, codes[0])
	assert.Empty(t, codes[1])
}

func TestPacketEncoding(t *testing.T) {
	roundTrip := func(in, out Packet) {
		t.Helper()
		enc, err := rlp.EncodeToBytes(in)
		require.NoError(t, err)
		require.NoError(t, rlp.DecodeBytes(enc, out))
		assert.Equal(t, in, out)
	}
	roundTrip(&GetAccountRangePacket{ID: 3, Root: common.Hash{1}, Origin: common.Hash{2}, Limit: common.MaxHash, Bytes: 4096}, new(GetAccountRangePacket))

	acct := types.NewEmptyStateAccount()
	roundTrip(&AccountRangePacket{
		ID:       3,
		Accounts: []*AccountData{{Hash: common.Hash{5}, Body: acct.EncodeRLP()}},
		Proof:    [][]byte{},
	}, new(AccountRangePacket))

	roundTrip(&GetStorageRangesPacket{ID: 4, Root: common.Hash{1}, Accounts: []common.Hash{{7}}, Origin: []byte{1}, Limit: common.MaxHash[:], Bytes: 10}, new(GetStorageRangesPacket))
	roundTrip(&StorageRangesPacket{
		ID:    4,
		Slots: [][]*StorageData{{{Hash: common.Hash{8}, Body: []byte{0x2a}}}, {}},
		Proof: [][]byte{},
	}, new(StorageRangesPacket))

	roundTrip(&ByteCodesPacket{ID: 5, Codes: [][]byte{{0x60}, {0x61, 0x62}}}, new(ByteCodesPacket))
	roundTrip(&GetTrieNodesPacket{ID: 6, Root: common.Hash{1}, Paths: []TrieNodePathSet{{{0x01}, {0x02, 0x03}}}, Bytes: 100}, new(GetTrieNodesPacket))

	// The account body is carried verbatim rather than as a string.
	enc, err := rlp.EncodeToBytes(&AccountData{Hash: common.Hash{5}, Body: acct.EncodeRLP()})
	require.NoError(t, err)
	content, _, err := rlp.SplitList(enc)
	require.NoError(t, err)
	assert.Equal(t, acct.EncodeRLP(), content[1+common.HashLength:])
}

func TestHandleMalformedRequests(t *testing.T) {
	chain := newTestChain(t)
	backend := &testBackend{chain: chain}

	send := func(code uint64, data interface{}) error {
		app, net := p2p.MsgPipe()
		defer app.Close()
		remote := NewPeer(SNAP1, p2p.NewPeer(common.Hash{2}, "remote", nil), net)
		defer remote.Close()

		errc := make(chan error, 1)
		go func() { errc <- HandleMessage(backend, remote) }()
		if err := p2p.Send(app, code, data); err != nil {
			return err
		}
		return <-errc
	}
	// Root must be a 32 byte hash.
	err := send(GetAccountRangeMsg, []interface{}{uint64(1), []byte{0x01}, common.Hash{}, common.MaxHash, uint64(0)})
	assert.ErrorIs(t, err, errDecode)

	// Slot bounds longer than a hash are rejected.
	err = send(GetStorageRangesMsg, &GetStorageRangesPacket{ID: 1, Root: common.Hash{1}, Accounts: []common.Hash{{7}}, Origin: make([]byte, 33)})
	assert.ErrorIs(t, err, errBadRequest)
}

type testBackend struct {
	chain Chain
}

func (b *testBackend) Chain() Chain                              { return b.chain }
func (b *testBackend) RunPeer(peer *Peer, handler Handler) error { return handler(peer) }
func (b *testBackend) PeerInfo(id string) interface{}            { return nil }

func TestRequestsOverPipe(t *testing.T) {
	chain := newTestChain(t)
	root := chain.CurrentBlock().Hash()

	app, net := p2p.MsgPipe()
	local := NewPeer(SNAP1, p2p.NewPeer(common.Hash{1}, "local", nil), app)
	remote := NewPeer(SNAP1, p2p.NewPeer(common.Hash{2}, "remote", nil), net)
	go Handle(&testBackend{chain: chain}, remote)
	go Handle(&testBackend{chain: chain}, local)
	defer func() {
		app.Close()
		local.Close()
		remote.Close()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hashes, accounts, err := local.RequestAccountRange(ctx, NewAccountRangeRequest(root, common.Hash{}, common.MaxHash, 0))
	require.NoError(t, err)
	assert.Equal(t, sortedAccountHashes(), hashes)
	assert.Len(t, accounts, len(hashes))

	account := crypto.Keccak256Hash(testContract.Bytes())
	slotHashes, slots, err := local.RequestStorageRanges(ctx, NewStorageRangeRequest(root, []common.Hash{account}, nil, nil, 0))
	require.NoError(t, err)
	require.Len(t, slotHashes, 1)
	assert.Len(t, slotHashes[0], 3)
	assert.Len(t, slots[0], 3)

	codes, err := local.RequestByteCodes(ctx, []common.Hash{crypto.Keccak256Hash(testCode)}, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{testCode}, codes)
}
