package auth

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-directory/internal/app/accounts"
	"p2p-directory/internal/app/directory"
	"p2p-directory/internal/netx"
	"p2p-directory/internal/proto"
	"p2p-directory/internal/storage/accountsjson"
)

type staticAddrs map[netx.PeerID]netx.Addr

func (s staticAddrs) PeerDialAddr(id netx.PeerID) (netx.Addr, bool) {
	a, ok := s[id]
	return a, ok
}

type requestCounter struct {
	mu sync.Mutex
	n  map[string]int
}

func (r *requestCounter) IncRequest(cmd, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == nil {
		r.n = make(map[string]int)
	}
	r.n[cmd+"/"+result]++
}

type fixture struct {
	h       *Handler
	reg     *accounts.Registry
	dir     *directory.Directory
	metrics *requestCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := accountsjson.Open(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	reg, err := accounts.Open(st)
	require.NoError(t, err)
	dir := directory.New(nil)
	m := &requestCounter{}
	h := NewHandler(Config{
		Accounts:  reg,
		Directory: dir,
		Addrs:     staticAddrs{"X": "10.0.0.1:4001", "Y": "10.0.0.2:4001"},
		Metrics:   m,
		Debug:     true,
	})
	return &fixture{h: h, reg: reg, dir: dir, metrics: m}
}

func TestRegisterAuthenticatesAndBinds(t *testing.T) {
	f := newFixture(t)
	c := newConn("X")

	assert.Equal(t, "OK", f.h.handle(c, "REGISTER:alice|pw1|2024-01-01"))
	assert.Equal(t, Authenticated, c.state)
	assert.Equal(t, "alice", c.username)

	id, ok := f.dir.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, netx.PeerID("X"), id)
	assert.Equal(t, 1, f.metrics.n["REGISTER/ok"])
}

func TestRegisterDuplicateStaysUnauthenticated(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "OK", f.h.handle(newConn("X"), "REGISTER:alice|pw1|2024-01-01"))

	c := newConn("Y")
	assert.Equal(t, "ERR", f.h.handle(c, "REGISTER:alice|pw2|2024-01-02"))
	assert.Equal(t, Unauthenticated, c.state)

	id, _ := f.dir.Lookup("alice")
	assert.Equal(t, netx.PeerID("X"), id)
}

func TestLoginErrorsAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Register("alice", "pw1", "2024-01-01")
	require.NoError(t, err)

	c := newConn("X")
	assert.Equal(t, "ERR", f.h.handle(c, "LOGIN:alice|wrong"))
	assert.Equal(t, "ERR", f.h.handle(c, "LOGIN:nobody|pw1"))
	assert.Equal(t, Unauthenticated, c.state)
	assert.Equal(t, 0, f.dir.Len())

	assert.Equal(t, "OK", f.h.handle(c, "LOGIN:ALICE|pw1"))
	assert.Equal(t, "alice", c.username, "registered spelling is kept")
}

func TestOutOfStateRequestsAreRejected(t *testing.T) {
	f := newFixture(t)
	c := newConn("X")

	assert.Equal(t, "ERR", f.h.handle(c, "LOGOUT:alice"), "logout before login")

	require.Equal(t, "OK", f.h.handle(c, "REGISTER:alice|pw1|2024-01-01"))
	assert.Equal(t, "ERR", f.h.handle(c, "REGISTER:bob|pw|2024-01-01"))
	assert.Equal(t, "ERR", f.h.handle(c, "LOGIN:alice|pw1"))
	assert.Equal(t, "ERR", f.h.handle(c, "LOGOUT:bob"), "only the bound username")
	assert.Equal(t, Authenticated, c.state)

	_, ok := f.reg.Lookup("bob")
	assert.False(t, ok)
}

func TestMalformedKeepsState(t *testing.T) {
	f := newFixture(t)
	c := newConn("X")
	for _, raw := range []string{"", "HELLO", "REGISTER:alice", "LOGIN:", "LIST:x", "REGISTER:a b|pw|2024-01-01"} {
		assert.Equal(t, "ERR", f.h.handle(c, raw), "input %q", raw)
		assert.Equal(t, Unauthenticated, c.state)
	}
	assert.Equal(t, 0, f.reg.Len())
	assert.Equal(t, 5, f.metrics.n[commandMalformed+"/err"])
}

func TestLogoutThenLoginAgain(t *testing.T) {
	f := newFixture(t)
	c := newConn("X")
	require.Equal(t, "OK", f.h.handle(c, "REGISTER:alice|pw1|2024-01-01"))

	assert.Equal(t, "OK", f.h.handle(c, "LOGOUT:Alice"))
	assert.Equal(t, Unauthenticated, c.state)
	_, ok := f.dir.Lookup("alice")
	assert.False(t, ok)

	assert.Equal(t, "OK", f.h.handle(c, "LOGIN:alice|pw1"))
	_, ok = f.dir.Lookup("alice")
	assert.True(t, ok)
}

func TestSupersededLogoutKeepsSuccessor(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Register("alice", "pw1", "2024-01-01")
	require.NoError(t, err)

	x, y := newConn("X"), newConn("Y")
	require.Equal(t, "OK", f.h.handle(x, "LOGIN:alice|pw1"))
	require.Equal(t, "OK", f.h.handle(y, "LOGIN:alice|pw1"))

	id, _ := f.dir.Lookup("alice")
	assert.Equal(t, netx.PeerID("Y"), id)

	assert.Equal(t, "OK", f.h.handle(x, "LOGOUT:alice"))
	id, ok := f.dir.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, netx.PeerID("Y"), id)
}

func TestListExcludesSelfAndIsOrdered(t *testing.T) {
	f := newFixture(t)
	users := []struct {
		name string
		peer netx.PeerID
	}{{"carol", "id3"}, {"Bob", "id2"}, {"alice", "id1"}}
	for _, u := range users {
		c := newConn(u.peer)
		require.Equal(t, "OK", f.h.handle(c, fmt.Sprintf("REGISTER:%s|pw|2024-01-01", u.name)))
	}

	anon := newConn("Z")
	assert.Equal(t, "LIST:alice=id1,Bob=id2,carol=id3", f.h.handle(anon, "LIST"))

	alice := newConn("id1")
	require.Equal(t, "OK", f.h.handle(alice, "LOGIN:alice|pw"))
	assert.Equal(t, "LIST:Bob=id2,carol=id3", f.h.handle(alice, "LIST"))
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "OK", f.h.handle(newConn("Y"), "REGISTER:Bob|pw|2024-01-01"))

	c := newConn("X")
	assert.Equal(t, "RESOLVE:Bob=Y@10.0.0.2:4001", f.h.handle(c, "RESOLVE:bob"))
	assert.Equal(t, "ERR", f.h.handle(c, "RESOLVE:nobody"))

	// online but no address known
	require.Equal(t, "OK", f.h.handle(newConn("W"), "REGISTER:walt|pw|2024-01-01"))
	assert.Equal(t, "ERR", f.h.handle(c, "RESOLVE:walt"))
}

func TestFitListTruncatesToFrame(t *testing.T) {
	var entries []proto.ListEntry
	for i := range 3000 {
		entries = append(entries, proto.ListEntry{
			Username: fmt.Sprintf("user%04d", i),
			Peer:     netx.PeerID(strings.Repeat("a", 64)),
		})
	}
	out := fitList(entries)
	assert.LessOrEqual(t, len(out), proto.MaxFrameLen)

	parsed, err := proto.ParseList(out)
	require.NoError(t, err)
	assert.NotEmpty(t, parsed)
	assert.Less(t, len(parsed), len(entries))
	assert.Equal(t, entries[:len(parsed)], parsed)

	small := entries[:2]
	assert.Equal(t, proto.FormatList(small), fitList(small))
}

func TestFailedAttemptsAreThrottledPerSource(t *testing.T) {
	f := newFixture(t)
	lim, clk := newClockedLimiter(0.5, 2)
	f.h.limiter = lim
	require.Equal(t, "OK", f.h.handle(newConn("Y"), "REGISTER:bob|pw2|2024-01-01"))

	c := newConn("X")
	c.source = "10.0.0.9"
	assert.Equal(t, "ERR", f.h.handle(c, "LOGIN:bob|nope"))
	assert.Equal(t, "ERR", f.h.handle(c, "LOGIN:bob|nope"))

	// budget spent: even the right password is refused
	assert.Equal(t, "ERR", f.h.handle(c, "LOGIN:bob|pw2"))
	assert.Equal(t, Unauthenticated, c.state)

	// another connection from the same host shares the budget
	c2 := newConn("Z")
	c2.source = "10.0.0.9"
	assert.Equal(t, "ERR", f.h.handle(c2, "REGISTER:zed|pw|2024-01-01"))

	clk.advance(2 * time.Second)
	assert.Equal(t, "OK", f.h.handle(c, "LOGIN:bob|pw2"))
	assert.Equal(t, Authenticated, c.state)
}

func TestSourceOfStripsPort(t *testing.T) {
	assert.Equal(t, "10.0.0.7", sourceOf("10.0.0.7:51234"))
	assert.Equal(t, "::1", sourceOf("[::1]:4001"))
	assert.Equal(t, "weird", sourceOf("weird"))
}
