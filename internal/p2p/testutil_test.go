package p2p

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"p2p-directory/internal/netx"
)

type nodeTestOpt func(*NodeConfig)

// WithLogger lets you override the logger (default is io.Discard).
func WithLogger(l *log.Logger) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Logger = l }
}

// WithProtocol overrides the protocol string (default "test/0").
func WithProtocol(p string) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Protocol = p }
}

func WithHandler(h Handler) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Handler = h }
}

func WithIdentity(id *Identity) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Identity = id }
}

// newTestNode spins up a node bound to an ephemeral localhost port and auto-stops it.
func newTestNode(t *testing.T, name string, opts ...nodeTestOpt) *Node {
	t.Helper()

	cfg := NodeConfig{
		Name:     name,
		Network:  netx.NewTCPNetwork(),
		BindAddr: "127.0.0.1:0",
		Protocol: "test/0",
		Logger:   log.New(io.Discard, "", log.LstdFlags),
		Debug:    true,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	n, err := NewNode(cfg)
	if err != nil {
		t.Fatalf("NewNode(%s) error: %v", name, err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start(%s) error: %v", name, err)
	}

	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func waitPeers(t *testing.T, n *Node, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if n.PeerCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for peers: node=%s have=%d want=%d", n.Name(), n.PeerCount(), want)
}

func dial(t *testing.T, from, to *Node) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s, err := from.Dial(ctx, to.ListenAddr(), to.ID())
	if err != nil {
		t.Fatalf("%s.Dial(%s) error: %v", from.Name(), to.Name(), err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// echoHandler answers every message with "echo:" + message.
var echoHandler = HandlerFunc(func(_ context.Context, s *Session) {
	for {
		msg, err := s.ReadMessage()
		if err != nil {
			return
		}
		if err := s.WriteMessage("echo:" + msg); err != nil {
			return
		}
	}
})

// recordingNotifiee captures lifecycle callbacks in order.
type recordingNotifiee struct {
	mu    sync.Mutex
	calls []string
	ch    chan string
}

func newRecordingNotifiee() *recordingNotifiee {
	return &recordingNotifiee{ch: make(chan string, 16)}
}

func (r *recordingNotifiee) Connected(p PeerInfo) {
	r.record("connected:" + p.Name)
}

func (r *recordingNotifiee) Disconnected(p PeerInfo) {
	r.record("disconnected:" + p.Name)
}

func (r *recordingNotifiee) record(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *recordingNotifiee) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for notification")
		return ""
	}
}
