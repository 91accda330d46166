package auth

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-directory/internal/app/accounts"
	"p2p-directory/internal/app/directory"
	"p2p-directory/internal/app/session"
	"p2p-directory/internal/netx"
	"p2p-directory/internal/p2p"
	"p2p-directory/internal/storage/accountsjson"
)

const testProtocol = "directory-test/1"

type server struct {
	node *p2p.Node
	dir  *directory.Directory
	sess *session.Manager
}

func startServer(t *testing.T) *server {
	t.Helper()
	st, err := accountsjson.Open(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	reg, err := accounts.Open(st)
	require.NoError(t, err)

	dir := directory.New(nil)
	sess := session.NewManager(dir, nil, nil, false)

	var node *p2p.Node
	h := NewHandler(Config{
		Accounts:  reg,
		Directory: dir,
		Addrs:     addrsFunc(func(id netx.PeerID) (netx.Addr, bool) { return node.PeerDialAddr(id) }),
	})
	node, err = p2p.NewNode(p2p.NodeConfig{
		Name:     "directory",
		Network:  netx.NewTCPNetwork(),
		BindAddr: "127.0.0.1:0",
		Protocol: testProtocol,
		Handler:  h,
		Logger:   log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	node.Notify(sess)
	require.NoError(t, node.Start())
	t.Cleanup(func() { _ = node.Stop() })
	return &server{node: node, dir: dir, sess: sess}
}

type addrsFunc func(netx.PeerID) (netx.Addr, bool)

func (f addrsFunc) PeerDialAddr(id netx.PeerID) (netx.Addr, bool) { return f(id) }

type peer struct {
	node *p2p.Node
	s    *p2p.Session
}

func connectPeer(t *testing.T, srv *server, name string) *peer {
	t.Helper()
	n, err := p2p.NewNode(p2p.NodeConfig{
		Name:     name,
		Network:  netx.NewTCPNetwork(),
		BindAddr: "127.0.0.1:0",
		Protocol: testProtocol,
		Logger:   log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() { _ = n.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s, err := n.Dial(ctx, srv.node.ListenAddr(), srv.node.ID())
	require.NoError(t, err)
	return &peer{node: n, s: s}
}

func (p *peer) send(t *testing.T, msg string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	reply, err := p.s.RoundTrip(ctx, msg)
	require.NoError(t, err)
	return reply
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEndToEndRegisterLoginDisconnect(t *testing.T) {
	srv := startServer(t)

	p1 := connectPeer(t, srv, "p1")
	assert.Equal(t, "OK", p1.send(t, "REGISTER:alice|pw1|2024-01-01"))
	require.NoError(t, p1.s.Close())
	waitFor(t, func() bool { return srv.dir.Len() == 0 })

	p2 := connectPeer(t, srv, "p2")
	assert.Equal(t, "ERR", p2.send(t, "REGISTER:alice|pw2|2024-02-02"))

	p3 := connectPeer(t, srv, "p3")
	assert.Equal(t, "OK", p3.send(t, "LOGIN:alice|pw1"))
	id, ok := srv.dir.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, p3.node.ID(), id)

	// p2 sees alice with p3's identity
	assert.Equal(t, "LIST:alice="+string(p3.node.ID()), p2.send(t, "LIST"))
	// and can resolve where to reach her
	reply := p2.send(t, "RESOLVE:alice")
	assert.Equal(t, "RESOLVE:alice="+string(p3.node.ID())+"@"+string(p3.node.ListenAddr()), reply)

	require.NoError(t, p3.s.Close())
	waitFor(t, func() bool {
		_, ok := srv.dir.Lookup("alice")
		return !ok
	})
	assert.Equal(t, "LIST:", p2.send(t, "LIST"))
}

func TestEndToEndSupersession(t *testing.T) {
	srv := startServer(t)

	x := connectPeer(t, srv, "x")
	require.Equal(t, "OK", x.send(t, "REGISTER:alice|pw1|2024-01-01"))

	y := connectPeer(t, srv, "y")
	require.Equal(t, "OK", y.send(t, "LOGIN:alice|pw1"))

	id, ok := srv.dir.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, y.node.ID(), id)

	require.NoError(t, x.s.Close())
	waitFor(t, func() bool { return srv.sess.Live() == 1 })

	id, ok = srv.dir.Lookup("alice")
	require.True(t, ok, "X's disconnect must not evict Y")
	assert.Equal(t, y.node.ID(), id)
}

func TestEndToEndLogoutThenDisconnect(t *testing.T) {
	srv := startServer(t)

	p := connectPeer(t, srv, "p")
	require.Equal(t, "OK", p.send(t, "REGISTER:bob|pw|2024-01-01"))
	require.Equal(t, "OK", p.send(t, "LOGOUT:bob"))
	assert.Equal(t, 0, srv.dir.Len())

	require.NoError(t, p.s.Close())
	waitFor(t, func() bool { return srv.sess.Live() == 0 })
	assert.Equal(t, 0, srv.dir.Len())
}

func TestEndToEndInvalidUTF8KeepsSessionAndBinding(t *testing.T) {
	srv := startServer(t)

	p := connectPeer(t, srv, "p")
	require.Equal(t, "OK", p.send(t, "REGISTER:alice|pw1|2024-01-01"))
	other := connectPeer(t, srv, "other")
	require.Equal(t, "OK", other.send(t, "REGISTER:bob|pw2|2024-01-01"))

	assert.Equal(t, "ERR", p.send(t, "LOGIN:al\xffice|pw1"))
	assert.Equal(t, "ERR", p.send(t, "\xfe\xff"))

	// same connection, same state
	assert.Equal(t, "LIST:bob="+string(other.node.ID()), p.send(t, "LIST"))
	id, ok := srv.dir.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, p.node.ID(), id)
	assert.Equal(t, 2, srv.sess.Live())
}
