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

package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyihoo/evmsync/log"
)

func startTestServer(t *testing.T, name string, protos []Protocol, static ...string) *Server {
	srv := &Server{
		Config: Config{
			Name:        name,
			MaxPeers:    10,
			ListenAddr:  "127.0.0.1:0",
			Protocols:   protos,
			StaticNodes: static,
			Logger:      log.New("server", name),
		},
	}
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func waitPeerEvent(t *testing.T, ch <-chan *PeerEvent, typ PeerEventType) *PeerEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s event", typ)
			return nil
		}
	}
}

func TestServerStaticDial(t *testing.T) {
	remote := startTestServer(t, "remote", []Protocol{discard})
	events := make(chan *PeerEvent, 4)
	sub := remote.SubscribeEvents(events)
	defer sub.Unsubscribe()

	local := startTestServer(t, "local", []Protocol{discard}, remote.ListenAddr)

	ev := waitPeerEvent(t, events, PeerEventTypeAdd)
	assert.Equal(t, local.Self(), ev.Peer)
	require.Eventually(t, func() bool { return local.PeerCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	peers := local.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, remote.Self(), peers[0].ID())
	assert.Equal(t, "remote", peers[0].Fullname())
	assert.True(t, peers[0].RunningCap("discard", []uint{0}))

	infos := local.PeersInfo()
	require.Len(t, infos, 1)
	assert.Equal(t, []string{"discard/0"}, infos[0].Caps)
	assert.True(t, infos[0].Network.Static)
}

func TestServerRejectsSelf(t *testing.T) {
	srv := startTestServer(t, "self", []Protocol{discard})
	err := srv.AddPeer(srv.ListenAddr)
	assert.ErrorIs(t, err, DiscSelf)
	assert.Equal(t, 0, srv.PeerCount())
}

func TestServerRejectsUselessPeer(t *testing.T) {
	other := discard
	other.Name = "other"
	remote := startTestServer(t, "remote", []Protocol{discard})
	local := startTestServer(t, "local", []Protocol{other})

	err := local.AddPeer(remote.ListenAddr)
	assert.ErrorIs(t, err, DiscUselessPeer)
	assert.Equal(t, 0, local.PeerCount())
}

func TestServerStopDropsPeers(t *testing.T) {
	remote := startTestServer(t, "remote", []Protocol{discard})
	events := make(chan *PeerEvent, 4)
	sub := remote.SubscribeEvents(events)
	defer sub.Unsubscribe()

	local := startTestServer(t, "local", []Protocol{discard})
	require.NoError(t, local.AddPeer(remote.ListenAddr))
	waitPeerEvent(t, events, PeerEventTypeAdd)

	local.Stop()
	assert.Equal(t, 0, local.PeerCount())
	ev := waitPeerEvent(t, events, PeerEventTypeDrop)
	assert.Equal(t, local.Self(), ev.Peer)
}

func TestServerNodeInfo(t *testing.T) {
	srv := startTestServer(t, "info", []Protocol{discard})
	info := srv.NodeInfo()
	assert.Equal(t, srv.Self().Hex(), info.ID)
	assert.Equal(t, "unknown", info.Protocols["discard"])
	assert.NotNil(t, srv.Addr())
}
