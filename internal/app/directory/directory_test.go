package directory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-directory/internal/netx"
)

type fakeMetrics struct {
	mu          sync.Mutex
	online      int
	supersessed int
}

func (f *fakeMetrics) SetOnline(n int) {
	f.mu.Lock()
	f.online = n
	f.mu.Unlock()
}

func (f *fakeMetrics) IncSupersession() {
	f.mu.Lock()
	f.supersessed++
	f.mu.Unlock()
}

func TestPutThenLookup(t *testing.T) {
	d := New(nil)
	d.Put("alice", "X")

	id, ok := d.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, netx.PeerID("X"), id)

	id, ok = d.Lookup("ALICE")
	require.True(t, ok, "lookup folds case")
	assert.Equal(t, netx.PeerID("X"), id)

	d.RemoveByUsername("alice")
	_, ok = d.Lookup("alice")
	assert.False(t, ok)
}

func TestPutSupersedesSameUsername(t *testing.T) {
	m := &fakeMetrics{}
	d := New(m)
	assert.False(t, d.Put("alice", "X"))
	assert.True(t, d.Put("alice", "Y"))

	id, _ := d.Lookup("alice")
	assert.Equal(t, netx.PeerID("Y"), id)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1, m.supersessed)

	// the superseded peer's disconnect is a no-op
	d.RemoveByPeer("X")
	id, ok := d.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, netx.PeerID("Y"), id)
}

func TestPutMovesPeerToNewUsername(t *testing.T) {
	d := New(nil)
	d.Put("alice", "X")
	d.Put("bob", "X")

	_, ok := d.Lookup("alice")
	assert.False(t, ok, "one username per peer")
	id, ok := d.Lookup("bob")
	require.True(t, ok)
	assert.Equal(t, netx.PeerID("X"), id)
	assert.Equal(t, 1, d.Len())
}

func TestRePutSamePeerIsNotSupersession(t *testing.T) {
	m := &fakeMetrics{}
	d := New(m)
	d.Put("alice", "X")
	assert.False(t, d.Put("Alice", "X"))
	assert.Equal(t, 0, m.supersessed)

	user, ok := d.UsernameOf("X")
	require.True(t, ok)
	assert.Equal(t, "Alice", user)
}

func TestRemovalIsIdempotent(t *testing.T) {
	d := New(nil)
	d.Put("alice", "X")
	d.Put("bob", "Y")

	d.RemoveByPeer("X")
	d.RemoveByPeer("X")
	assert.Equal(t, []string{"bob"}, d.List(""))

	d.RemoveByUsername("bob")
	d.RemoveByPeer("Y")
	d.RemoveByUsername("bob")
	assert.Empty(t, d.List(""))
	assert.Equal(t, 0, d.Len())
}

func TestReleaseOnlyRemovesOwnBinding(t *testing.T) {
	d := New(nil)
	d.Put("alice", "X")
	d.Put("alice", "Y")

	assert.False(t, d.Release("alice", "X"))
	id, ok := d.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, netx.PeerID("Y"), id)

	assert.True(t, d.Release("ALICE", "Y"))
	assert.False(t, d.Release("alice", "Y"))
	_, ok = d.Lookup("alice")
	assert.False(t, ok)
}

func TestListOrderAndExclusion(t *testing.T) {
	m := &fakeMetrics{}
	d := New(m)
	d.Put("carol", "id3")
	d.Put("Bob", "id2")
	d.Put("alice", "id1")

	assert.Equal(t, []string{"alice", "Bob", "carol"}, d.List(""))
	assert.Equal(t, []string{"Bob", "carol"}, d.List("alice"))
	assert.Equal(t, []string{"alice", "carol"}, d.List("bob"))
	assert.Equal(t, []string{"alice", "carol"}, d.List("BOB"))
	assert.Equal(t, []string{"alice", "Bob", "carol"}, d.List("nobody"))
	assert.Equal(t, 3, m.online)

	snap := d.Snapshot("alice")
	assert.Equal(t, []Entry{{"Bob", "id2"}, {"carol", "id3"}}, snap)
}

func TestListIndependentOfInsertionOrder(t *testing.T) {
	orders := [][]string{
		{"dave", "Carol", "bob", "Alice"},
		{"Alice", "bob", "Carol", "dave"},
		{"bob", "dave", "Alice", "Carol"},
	}
	for _, order := range orders {
		d := New(nil)
		for i, u := range order {
			d.Put(u, netx.PeerID(fmt.Sprintf("id%d", i)))
		}
		assert.Equal(t, []string{"Alice", "bob", "Carol", "dave"}, d.List(""))
	}
}
