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

// Package p2p implements the Ethereum p2p network protocols.
// p2p 包实现节点之间的连接管理与子协议多路复用。
package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/crypto"
	"github.com/sunyihoo/evmsync/event"
	"github.com/sunyihoo/evmsync/log"
)

const (
	defaultDialTimeout = 15 * time.Second

	// Maximum number of concurrently handshaking inbound connections.
	defaultMaxPendingPeers = 50

	// Upper bound of the wait between two attempts to reach a static node.
	maxStaticRedialInterval = 2 * time.Minute
)

var (
	errServerStopped       = errors.New("server stopped")
	errProtoHandshakeError = errors.New("rlpx proto error")
)

// Config holds Server options.
// Config 保存 P2P 服务器的配置项。
type Config struct {
	// PrivateKey is the node key. A random key is generated when unset.
	PrivateKey *secp256k1.PrivateKey `toml:"-"`

	// MaxPeers is the maximum number of peers that can be
	// connected. It must be greater than zero.
	MaxPeers int

	// MaxPendingPeers is the maximum number of peers that can be pending in the
	// handshake phase. Zero defaults to preset values.
	MaxPendingPeers int `toml:",omitempty"`

	// Name sets the node name of this server.
	Name string `toml:"-"`

	// Static nodes are used as pre-configured connections which are always
	// maintained and re-connected on disconnects. Entries are host:port.
	StaticNodes []string

	// Protocols should contain the protocols supported
	// by the server. Matching protocols are launched for
	// each peer.
	Protocols []Protocol `toml:"-" json:"-"`

	// If ListenAddr is set to a non-empty address, the server
	// will listen for incoming connections.
	//
	// If the port is zero, the operating system will pick a port.
	ListenAddr string

	// If NoDial is true, the server will not dial any peers.
	NoDial bool `toml:",omitempty"`

	// Logger is a custom logger to use with the p2p.Server.
	Logger log.Logger `toml:"-"`
}

// Server manages all peer connections.
// Server 管理所有对等连接：监听入站连接、维护静态节点并为每个连接运行子协议。
type Server struct {
	// Config fields may not be modified while the server is running.
	Config

	// Hooks for testing. These are useful because we can inhibit
	// the whole protocol stack.
	newTransport func(net.Conn) transport
	newPeerHook  func(*Peer)
	dialer       func(ctx context.Context, network, addr string) (net.Conn, error)

	lock    sync.Mutex // protects running
	running bool

	listener     net.Listener
	ourHandshake *protoHandshake
	localID      common.Hash
	loopWG       sync.WaitGroup // loop, listenLoop, static dialers
	peerFeed     event.FeedOf[*PeerEvent]
	log          log.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	peerCount    atomic.Int32

	// Channels into the run loop.
	quit              chan struct{}
	peerOp            chan peerOpFunc
	peerOpDone        chan struct{}
	delpeer           chan peerDrop
	checkpointAddPeer chan *conn
}

type peerOpFunc func(map[common.Hash]*Peer)

type peerDrop struct {
	*Peer
	err       error
	requested bool // true if signaled by the peer
}

type connFlag int32

const (
	dynDialedConn connFlag = 1 << iota
	staticDialedConn
	inboundConn
)

// conn wraps a network connection with information gathered
// during the handshake.
type conn struct {
	fd net.Conn
	transport
	id    common.Hash
	flags connFlag
	cont  chan error    // The run loop uses cont to signal errors to SetupConn.
	done  chan struct{} // closed when the peer running on this conn has exited
	caps  []Cap         // valid after the protocol handshake
	name  string        // valid after the protocol handshake
}

type transport interface {
	doProtoHandshake(our *protoHandshake) (*protoHandshake, error)
	MsgReadWriter
	// transports must provide Close because we use MsgPipe in some of
	// the tests. Closing the actual network connection doesn't do
	// anything in those tests because MsgPipe doesn't use it.
	close(err error)
}

func (c *conn) String() string {
	s := c.flags.String()
	if (c.id != common.Hash{}) {
		s += " " + c.id.TerminalString()
	}
	s += " " + c.fd.RemoteAddr().String()
	return s
}

func (f connFlag) String() string {
	s := ""
	if f&dynDialedConn != 0 {
		s += "-dyndial"
	}
	if f&staticDialedConn != 0 {
		s += "-staticdial"
	}
	if f&inboundConn != 0 {
		s += "-inbound"
	}
	if s != "" {
		s = s[1:]
	}
	return s
}

func (c *conn) is(f connFlag) bool {
	flags := connFlag(atomic.LoadInt32((*int32)(&c.flags)))
	return flags&f != 0
}

// Peers returns all connected peers.
func (srv *Server) Peers() []*Peer {
	var ps []*Peer
	srv.doPeerOp(func(peers map[common.Hash]*Peer) {
		for _, p := range peers {
			ps = append(ps, p)
		}
	})
	return ps
}

// PeerCount returns the number of connected peers.
func (srv *Server) PeerCount() int {
	return int(srv.peerCount.Load())
}

// AddPeer dials the given host:port once and, on success, keeps the
// connection as a dynamic peer.
// AddPeer 拨号给定地址一次，成功后作为动态节点保持连接。
func (srv *Server) AddPeer(addr string) error {
	fd, err := srv.dial(addr)
	if err != nil {
		return err
	}
	_, err = srv.SetupConn(fd, dynDialedConn)
	return err
}

// SubscribeEvents subscribes the given channel to peer events
func (srv *Server) SubscribeEvents(ch chan<- *PeerEvent) event.Subscription {
	return srv.peerFeed.Subscribe(ch)
}

// Self returns the local node identifier.
func (srv *Server) Self() common.Hash {
	return srv.localID
}

// Addr returns the listener address, or nil when not listening.
func (srv *Server) Addr() net.Addr {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Running reports whether the server has been started and not yet stopped.
func (srv *Server) Running() bool {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	return srv.running
}

// Stop terminates the server and all active peer connections.
// It blocks until all active connections have been closed.
func (srv *Server) Stop() {
	srv.lock.Lock()
	if !srv.running {
		srv.lock.Unlock()
		return
	}
	srv.running = false
	if srv.listener != nil {
		// this unblocks listener Accept
		srv.listener.Close()
	}
	srv.cancel()
	close(srv.quit)
	srv.lock.Unlock()
	srv.loopWG.Wait()
}

// Start starts running the server.
// Servers can not be re-used after stopping.
// Start 启动服务器，停止后不可复用。
func (srv *Server) Start() (err error) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.running {
		return errors.New("server already running")
	}
	srv.running = true
	srv.log = srv.Logger
	if srv.log == nil {
		srv.log = log.Root()
	}
	if srv.NoDial && srv.ListenAddr == "" {
		srv.log.Warn("P2P server will be useless, neither dialing nor listening")
	}
	if srv.MaxPeers <= 0 {
		return errors.New("Server.MaxPeers must be positive")
	}
	if srv.PrivateKey == nil {
		if srv.PrivateKey, err = secp256k1.GeneratePrivateKey(); err != nil {
			return err
		}
		srv.log.Info("Generated ephemeral node key")
	}
	if srv.newTransport == nil {
		srv.newTransport = newRLPX
	}
	if srv.dialer == nil {
		d := &net.Dialer{Timeout: defaultDialTimeout}
		srv.dialer = d.DialContext
	}
	srv.ctx, srv.cancel = context.WithCancel(context.Background())
	srv.quit = make(chan struct{})
	srv.delpeer = make(chan peerDrop)
	srv.checkpointAddPeer = make(chan *conn)
	srv.peerOp = make(chan peerOpFunc)
	srv.peerOpDone = make(chan struct{})

	srv.setupLocalNode()
	if srv.ListenAddr != "" {
		if err := srv.setupListening(); err != nil {
			return err
		}
	}
	srv.loopWG.Add(1)
	go srv.run()

	if !srv.NoDial {
		for _, addr := range srv.StaticNodes {
			srv.loopWG.Add(1)
			go srv.staticDialLoop(addr)
		}
	}
	return nil
}

func (srv *Server) setupLocalNode() {
	pubkey := srv.PrivateKey.PubKey().SerializeUncompressed()[1:]
	srv.localID = crypto.Keccak256Hash(pubkey)
	srv.ourHandshake = &protoHandshake{Version: baseProtocolVersion, Name: srv.Name, ID: pubkey}
	for _, p := range srv.Protocols {
		srv.ourHandshake.Caps = append(srv.ourHandshake.Caps, p.cap())
	}
	slices.SortFunc(srv.ourHandshake.Caps, Cap.Cmp)
}

func (srv *Server) setupListening() error {
	listener, err := net.Listen("tcp", srv.ListenAddr)
	if err != nil {
		return err
	}
	srv.listener = listener
	srv.ListenAddr = listener.Addr().String()
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		srv.ourHandshake.ListenPort = uint64(tcp.Port)
	}
	srv.loopWG.Add(1)
	go srv.listenLoop()
	return nil
}

func (srv *Server) dial(addr string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(srv.ctx, defaultDialTimeout)
	defer cancel()
	return srv.dialer(ctx, "tcp", addr)
}

// staticDialLoop keeps a connection to addr alive. Failed dials and dropped
// connections are retried with exponential backoff until the server stops.
// staticDialLoop 维持到静态节点的连接，拨号失败或断开后以指数退避重试。
func (srv *Server) staticDialLoop(addr string) {
	defer srv.loopWG.Done()

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxStaticRedialInterval
	bo.MaxElapsedTime = 0 // retry forever
	for {
		var c *conn
		err := backoff.Retry(func() error {
			fd, err := srv.dial(addr)
			if err != nil {
				srv.log.Trace("Static dial failed", "addr", addr, "err", err)
				return err
			}
			c, err = srv.SetupConn(fd, staticDialedConn)
			switch {
			case errors.Is(err, DiscSelf), errors.Is(err, errServerStopped):
				return backoff.Permanent(err)
			case errors.Is(err, DiscAlreadyConnected):
				// The remote side dialed us first, keep that connection.
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(bo, srv.ctx))
		if err != nil {
			if !errors.Is(err, DiscAlreadyConnected) || srv.ctx.Err() != nil {
				srv.log.Debug("Giving up on static node", "addr", addr, "err", err)
				return
			}
			// Wait a little and check again in case the inbound peer drops.
			select {
			case <-time.After(bo.NextBackOff()):
				continue
			case <-srv.quit:
				return
			}
		}
		bo.Reset()
		select {
		case <-c.done:
		case <-srv.quit:
			return
		}
	}
}

type tempError interface {
	Temporary() bool
}

// listenLoop runs in its own goroutine and accepts
// inbound connections.
func (srv *Server) listenLoop() {
	srv.log.Debug("TCP listener up", "addr", srv.listener.Addr())

	tokens := srv.MaxPendingPeers
	if tokens <= 0 {
		tokens = defaultMaxPendingPeers
	}
	slots := make(chan struct{}, tokens)
	for i := 0; i < tokens; i++ {
		slots <- struct{}{}
	}

	// Wait for slots to be returned on exit. This ensures all connection goroutines
	// are down before listenLoop returns.
	defer srv.loopWG.Done()
	defer func() {
		for i := 0; i < cap(slots); i++ {
			<-slots
		}
	}()

	for {
		// Wait for a free slot before accepting.
		<-slots

		var (
			fd  net.Conn
			err error
		)
		for {
			fd, err = srv.listener.Accept()
			if netErr, ok := err.(tempError); ok && netErr.Temporary() {
				srv.log.Debug("Temporary read error", "err", err)
				continue
			} else if err != nil {
				srv.log.Debug("Read error", "err", err)
				slots <- struct{}{}
				return
			}
			break
		}
		go func() {
			srv.SetupConn(fd, inboundConn)
			slots <- struct{}{}
		}()
	}
}

// SetupConn runs the handshakes and attempts to add the connection
// as a peer. It returns when the connection has been added as a peer
// or the handshakes have failed.
// SetupConn 执行握手并尝试将连接加入对等节点集合。
func (srv *Server) SetupConn(fd net.Conn, flags connFlag) (*conn, error) {
	c := &conn{fd: fd, flags: flags, cont: make(chan error), done: make(chan struct{})}
	c.transport = srv.newTransport(fd)
	err := srv.setupConn(c)
	if err != nil {
		c.close(err)
		close(c.done)
		return nil, err
	}
	return c, nil
}

func (srv *Server) setupConn(c *conn) error {
	srv.lock.Lock()
	running := srv.running
	srv.lock.Unlock()
	if !running {
		return errServerStopped
	}
	phs, err := c.doProtoHandshake(srv.ourHandshake)
	if err != nil {
		srv.log.Trace("Failed p2p handshake", "addr", c.fd.RemoteAddr(), "conn", c.flags, "err", err)
		if r, ok := err.(DiscReason); ok {
			return r
		}
		return fmt.Errorf("%w: %v", errProtoHandshakeError, err)
	}
	c.id = crypto.Keccak256Hash(phs.ID)
	c.caps, c.name = phs.Caps, phs.Name
	return srv.checkpoint(c, srv.checkpointAddPeer)
}

// checkpoint sends the conn to run, which performs the
// post-handshake checks for the stage (posthandshake, addpeer).
func (srv *Server) checkpoint(c *conn, stage chan<- *conn) error {
	select {
	case stage <- c:
	case <-srv.quit:
		return errServerStopped
	}
	return <-c.cont
}

func (srv *Server) doPeerOp(fn peerOpFunc) {
	select {
	case srv.peerOp <- fn:
		<-srv.peerOpDone
	case <-srv.quit:
	}
}

// run is the main loop of the server.
func (srv *Server) run() {
	defer srv.loopWG.Done()
	srv.log.Info("Started P2P networking", "self", srv.localID.TerminalString())

	peers := make(map[common.Hash]*Peer)

running:
	for {
		select {
		case <-srv.quit:
			// The server was stopped. Run the cleanup logic.
			break running

		case op := <-srv.peerOp:
			// This channel is used by Peers and PeerCount.
			op(peers)
			srv.peerOpDone <- struct{}{}

		case c := <-srv.checkpointAddPeer:
			// At this point the connection is past the protocol handshake.
			// Its capabilities are known and the remote identity is verified.
			err := srv.addPeerChecks(peers, c)
			if err == nil {
				// The handshakes are done and it passed all checks.
				p := srv.launchPeer(c)
				peers[c.id] = p
				srv.peerCount.Store(int32(len(peers)))
				srv.log.Debug("Adding p2p peer", "peercount", len(peers), "id", p.ID().TerminalString(), "conn", c.flags, "addr", p.RemoteAddr(), "name", p.Name())
			}
			c.cont <- err

		case pd := <-srv.delpeer:
			// A peer disconnected.
			d := time.Since(pd.created)
			delete(peers, pd.ID())
			srv.peerCount.Store(int32(len(peers)))
			srv.log.Debug("Removing p2p peer", "peercount", len(peers), "id", pd.ID().TerminalString(), "duration", common.PrettyDuration(d), "req", pd.requested, "err", pd.err)
			close(pd.rw.done)
		}
	}

	srv.log.Trace("P2P networking is spinning down")

	// Disconnect all peers.
	for _, p := range peers {
		p.Disconnect(DiscQuitting)
	}
	// Wait for peers to shut down. Pending connections and tasks are
	// not handled here and will terminate soon-ish because srv.quit
	// is closed.
	for len(peers) > 0 {
		p := <-srv.delpeer
		p.log.Trace("<-delpeer (spindown)")
		delete(peers, p.ID())
		close(p.rw.done)
	}
	srv.peerCount.Store(0)
}

func (srv *Server) addPeerChecks(peers map[common.Hash]*Peer, c *conn) error {
	// Drop connections with no matching protocols.
	if len(srv.Protocols) > 0 && countMatchingProtocols(srv.Protocols, c.caps) == 0 {
		return DiscUselessPeer
	}
	switch {
	case c.id == srv.localID:
		return DiscSelf
	case len(peers) >= srv.MaxPeers && !c.is(staticDialedConn):
		return DiscTooManyPeers
	case peers[c.id] != nil:
		return DiscAlreadyConnected
	}
	return nil
}

func (srv *Server) launchPeer(c *conn) *Peer {
	p := newPeer(srv.log, c, srv.Protocols)
	go srv.runPeer(p)
	return p
}

// runPeer runs in its own goroutine for each peer.
func (srv *Server) runPeer(p *Peer) {
	if srv.newPeerHook != nil {
		srv.newPeerHook(p)
	}
	srv.peerFeed.Send(&PeerEvent{
		Type:          PeerEventTypeAdd,
		Peer:          p.ID(),
		RemoteAddress: p.RemoteAddr().String(),
		LocalAddress:  p.LocalAddr().String(),
	})

	// Run the per-peer main loop.
	remoteRequested, err := p.run()

	// Announce disconnect on the main loop to update the peer set.
	// The main loop waits for existing peers to be sent on srv.delpeer
	// before returning, so this send should not select on srv.quit.
	srv.delpeer <- peerDrop{p, err, remoteRequested}

	// Broadcast peer drop to external subscribers. This needs to be
	// after the send to delpeer so subscribers have a consistent view of
	// the peer set (i.e. Server.Peers() doesn't include the peer when the
	// event is received).
	srv.peerFeed.Send(&PeerEvent{
		Type:          PeerEventTypeDrop,
		Peer:          p.ID(),
		Error:         err.Error(),
		RemoteAddress: p.RemoteAddr().String(),
		LocalAddress:  p.LocalAddr().String(),
	})
}

// NodeInfo represents a short summary of the information known about the host.
type NodeInfo struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	ListenAddr string                 `json:"listenAddr"`
	Protocols  map[string]interface{} `json:"protocols"`
}

// NodeInfo gathers and returns a collection of metadata known about the host.
func (srv *Server) NodeInfo() *NodeInfo {
	info := &NodeInfo{
		ID:         srv.localID.Hex(),
		Name:       srv.Name,
		ListenAddr: srv.ListenAddr,
		Protocols:  make(map[string]interface{}),
	}
	for _, proto := range srv.Protocols {
		if _, ok := info.Protocols[proto.Name]; !ok {
			nodeInfo := interface{}("unknown")
			if query := proto.NodeInfo; query != nil {
				nodeInfo = proto.NodeInfo()
			}
			info.Protocols[proto.Name] = nodeInfo
		}
	}
	return info
}

// PeersInfo returns an array of metadata objects describing connected peers.
func (srv *Server) PeersInfo() []*PeerInfo {
	infos := make([]*PeerInfo, 0, srv.PeerCount())
	for _, peer := range srv.Peers() {
		if peer != nil {
			infos = append(infos, peer.Info())
		}
	}
	slices.SortFunc(infos, func(a, b *PeerInfo) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return infos
}
