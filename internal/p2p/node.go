package p2p

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"p2p-directory/internal/netx"
	"p2p-directory/internal/telemetry"
)

const defaultHandshakeTimeout = 5 * time.Second

var (
	ErrNodeClosed       = errors.New("node closed")
	ErrPeerMismatch     = errors.New("remote identity does not match expected peer")
	ErrProtocolMismatch = errors.New("protocol mismatch")
	ErrSelfConnection   = errors.New("connection to self")
	ErrDuplicateSession = errors.New("session with peer already open")
)

type NodeConfig struct {
	Name             string           // user-facing name, sent in the handshake
	Network          netx.Network     // transport implementation
	BindAddr         string           // e.g. ":0" to choose random port
	Protocol         string           // both sides must agree
	Identity         *Identity        // nil generates an ephemeral identity
	Handler          Handler          // serves inbound sessions
	Logger           telemetry.Logger // system logger
	Debug            bool             // flag for showing hidden logs to debug
	HandshakeTimeout time.Duration
}

type Node struct {
	cfg  NodeConfig
	id   *Identity
	addr netx.Addr

	mu        sync.RWMutex
	sessions  map[netx.PeerID]*Session
	notifiees []Notifiee

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan Event
}

func NewNode(cfg NodeConfig) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Handler == nil {
		cfg.Handler = HandlerFunc(drainSession)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	id := cfg.Identity
	if id == nil {
		var err error
		if id, err = NewIdentity(); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:      cfg,
		id:       id,
		sessions: make(map[netx.PeerID]*Session),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, 128),
	}, nil
}

// ID returns this node's peer ID.
func (n *Node) ID() netx.PeerID { return n.id.ID }

// Identity returns the node's static keypair.
func (n *Node) Identity() *Identity { return n.id }

// ListenAddr returns where this node is listening.
func (n *Node) ListenAddr() netx.Addr { return n.addr }

// Name returns this node's name
func (n *Node) Name() string { return n.cfg.Name }

// Events returns a channel of lifecycle events for UIs. Events are dropped
// when nobody drains it.
func (n *Node) Events() <-chan Event { return n.events }

// Notify registers a Notifiee. Register before Start so no session is missed.
func (n *Node) Notify(nf Notifiee) {
	n.mu.Lock()
	n.notifiees = append(n.notifiees, nf)
	n.mu.Unlock()
}

// Start brings the node online.
func (n *Node) Start() error {
	addr, err := n.cfg.Network.Listen(n.cfg.BindAddr)
	if err != nil {
		return err
	}
	n.addr = addr
	n.Logf("listening on %s, peerID=%s", n.addr, n.id.ID)

	n.wg.Add(1)
	go n.acceptLoop()
	return nil
}

// Stop closes the listener and every open session, then waits for inbound
// handlers to return.
func (n *Node) Stop() error {
	n.cancel()
	err := n.cfg.Network.Close()

	n.mu.RLock()
	open := make([]*Session, 0, len(n.sessions))
	for _, s := range n.sessions {
		open = append(open, s)
	}
	n.mu.RUnlock()

	for _, s := range open {
		if s.info.Inbound {
			// the handler notices the closed stream and runs cleanup itself
			_ = s.conn.Close()
		} else {
			_ = s.Close()
		}
	}
	n.wg.Wait()
	return err
}

func (n *Node) notifyConnected(info PeerInfo) {
	n.mu.RLock()
	nfs := append([]Notifiee(nil), n.notifiees...)
	n.mu.RUnlock()
	for _, nf := range nfs {
		nf.Connected(info)
	}
	n.emit(Event{Type: EventPeerConnected, PeerID: info.ID, PeerAddr: string(info.ListenAddr), PeerName: info.Name, Inbound: info.Inbound})
}

func (n *Node) notifyDisconnected(info PeerInfo) {
	n.mu.RLock()
	nfs := append([]Notifiee(nil), n.notifiees...)
	n.mu.RUnlock()
	for _, nf := range nfs {
		nf.Disconnected(info)
	}
	n.emit(Event{Type: EventPeerDisconnected, PeerID: info.ID, PeerAddr: string(info.ListenAddr), PeerName: info.Name, Inbound: info.Inbound})
}
