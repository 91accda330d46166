package p2p

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"p2p-directory/internal/crypto/noiseconn"
	"p2p-directory/internal/netx"
	"p2p-directory/internal/proto"
)

// Session is one authenticated, encrypted connection to a remote peer carrying
// length-prefixed text messages.
type Session struct {
	node *Node
	info PeerInfo
	conn *noiseconn.SecureConn
	raw  netx.Conn
	r    *bufio.Reader

	wmu  sync.Mutex
	rtmu sync.Mutex

	once sync.Once
	done chan struct{}
}

func (n *Node) establishSession(rawConn netx.Conn, inbound bool, expect netx.PeerID) (*Session, error) {
	payload, err := json.Marshal(proto.Hello{
		Name:     n.cfg.Name,
		Listen:   string(n.addr),
		Protocol: n.cfg.Protocol,
	})
	if err != nil {
		return nil, err
	}

	_ = rawConn.SetDeadline(time.Now().Add(n.cfg.HandshakeTimeout))
	var hs *noiseconn.HandshakeResult
	if inbound {
		hs, err = noiseconn.NewSecureServer(rawConn, n.id.NoisePriv[:], n.id.NoisePub[:], payload)
	} else {
		hs, err = noiseconn.NewSecureClient(rawConn, n.id.NoisePriv[:], n.id.NoisePub[:], payload)
	}
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	_ = rawConn.SetDeadline(time.Time{})

	remote := PeerIDFromPub(hs.RemoteStatic)
	if expect != "" && remote != expect {
		return nil, fmt.Errorf("%w: got %s want %s", ErrPeerMismatch, remote.Short(), expect.Short())
	}
	if remote == n.id.ID {
		return nil, ErrSelfConnection
	}

	var hello proto.Hello
	if err := json.Unmarshal(hs.RemotePayload, &hello); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	if hello.Protocol != n.cfg.Protocol {
		return nil, fmt.Errorf("%w: remote speaks %q", ErrProtocolMismatch, hello.Protocol)
	}

	s := &Session{
		node: n,
		info: PeerInfo{
			ID:         remote,
			Name:       hello.Name,
			ListenAddr: netx.Addr(hello.Listen),
			RemoteAddr: rawConn.RemoteAddr(),
			Inbound:    inbound,
		},
		conn: hs.Conn,
		raw:  rawConn,
		r:    bufio.NewReader(hs.Conn),
		done: make(chan struct{}),
	}
	if !n.addSession(s) {
		_ = hs.Conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, remote.Short())
	}
	n.notifyConnected(s.info)
	return s, nil
}

func (s *Session) PeerID() netx.PeerID   { return s.info.ID }
func (s *Session) Name() string          { return s.info.Name }
func (s *Session) ListenAddr() netx.Addr { return s.info.ListenAddr }
func (s *Session) RemoteAddr() netx.Addr { return s.info.RemoteAddr }
func (s *Session) Info() PeerInfo        { return s.info }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// DialAddr is the address other peers should use to reach this peer. An
// advertised listen address with an empty or unspecified host is completed
// with the host the socket was observed from.
func (s *Session) DialAddr() netx.Addr {
	host, port, err := net.SplitHostPort(string(s.info.ListenAddr))
	if err != nil {
		return s.info.ListenAddr
	}
	if host == "" || net.ParseIP(host).IsUnspecified() {
		if rhost, _, err := net.SplitHostPort(string(s.info.RemoteAddr)); err == nil {
			return netx.Addr(net.JoinHostPort(rhost, port))
		}
	}
	return s.info.ListenAddr
}

// ReadMessage blocks for the next message. Only one goroutine may read.
func (s *Session) ReadMessage() (string, error) {
	return proto.ReadFrame(s.r)
}

// WriteMessage is safe for concurrent use.
func (s *Session) WriteMessage(msg string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return proto.WriteFrame(s.conn, msg)
}

// RoundTrip writes msg and waits for the next message as its reply. Concurrent
// RoundTrips are serialized. When ctx ends first the stream is left in an
// undefined state and the session should be closed.
func (s *Session) RoundTrip(ctx context.Context, msg string) (string, error) {
	s.rtmu.Lock()
	defer s.rtmu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	// expire the socket once ctx is done so the blocked read returns
	stop := context.AfterFunc(ctx, func() { _ = s.raw.SetDeadline(time.Now()) })
	defer stop()

	if err := s.WriteMessage(msg); err != nil {
		return "", ctxErr(ctx, err)
	}
	reply, err := s.ReadMessage()
	if err != nil {
		return "", ctxErr(ctx, err)
	}
	return reply, nil
}

func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %v", cerr, err)
	}
	return err
}

// Close tears the session down exactly once and notifies Notifiees. The
// session stays registered until they return, so the same identity cannot
// reconnect while its old state is still being cleaned up.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close()
		s.node.notifyDisconnected(s.info)
		s.node.removeSession(s)
		close(s.done)
		s.node.Logf("session closed id=%s inbound=%v", s.info.ID.Short(), s.info.Inbound)
	})
	return err
}
