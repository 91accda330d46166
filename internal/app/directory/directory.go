// Package directory is the live mapping of online usernames to the peer
// identity of the session that authenticated them.
package directory

import (
	"sort"
	"sync"

	"p2p-directory/internal/app/names"
	"p2p-directory/internal/netx"
)

// Entry is one online binding.
type Entry struct {
	Username string
	Peer     netx.PeerID
}

// Metrics is a tiny metrics interface. Implementations must be thread-safe.
type Metrics interface {
	SetOnline(n int)
	IncSupersession()
}

type NoopMetrics struct{}

func (NoopMetrics) SetOnline(int)    {}
func (NoopMetrics) IncSupersession() {}

// Directory keeps both directions of the binding under one lock, so every
// operation is atomic with respect to every other: at most one entry per
// username and at most one username per peer.
type Directory struct {
	metrics Metrics

	mu     sync.RWMutex
	byName map[string]Entry      // names.Key(username) -> entry
	byPeer map[netx.PeerID]string // peer -> names.Key(username)
}

func New(m Metrics) *Directory {
	if m == nil {
		m = NoopMetrics{}
	}
	return &Directory{
		metrics: m,
		byName:  make(map[string]Entry),
		byPeer:  make(map[netx.PeerID]string),
	}
}

// Put binds username to peer. Any other username peer held is dropped first,
// and any other peer holding username is superseded: the last login wins.
// It reports whether a different peer was displaced.
func (d *Directory) Put(username string, peer netx.PeerID) (superseded bool) {
	key := names.Key(username)

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byPeer[peer]; ok && old != key {
		delete(d.byName, old)
	}
	if prev, ok := d.byName[key]; ok && prev.Peer != peer {
		delete(d.byPeer, prev.Peer)
		superseded = true
	}
	d.byName[key] = Entry{Username: username, Peer: peer}
	d.byPeer[peer] = key

	if superseded {
		d.metrics.IncSupersession()
	}
	d.metrics.SetOnline(len(d.byName))
	return superseded
}

// RemoveByUsername is idempotent.
func (d *Directory) RemoveByUsername(username string) {
	key := names.Key(username)

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.byName[key]; ok {
		delete(d.byName, key)
		delete(d.byPeer, e.Peer)
		d.metrics.SetOnline(len(d.byName))
	}
}

// RemoveByPeer is idempotent.
func (d *Directory) RemoveByPeer(peer netx.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if key, ok := d.byPeer[peer]; ok {
		delete(d.byPeer, peer)
		delete(d.byName, key)
		d.metrics.SetOnline(len(d.byName))
	}
}

// Release removes username only while peer still holds it, so a superseded
// session cannot log its successor out. It reports whether anything was
// removed.
func (d *Directory) Release(username string, peer netx.PeerID) bool {
	key := names.Key(username)

	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.byName[key]
	if !ok || e.Peer != peer {
		return false
	}
	delete(d.byName, key)
	delete(d.byPeer, peer)
	d.metrics.SetOnline(len(d.byName))
	return true
}

// Lookup returns the peer currently bound to username.
func (d *Directory) Lookup(username string) (netx.PeerID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byName[names.Key(username)]
	return e.Peer, ok
}

// UsernameOf returns the username peer is bound to.
func (d *Directory) UsernameOf(peer netx.PeerID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.byPeer[peer]
	if !ok {
		return "", false
	}
	return d.byName[key].Username, true
}

// Snapshot returns every entry sorted case-insensitively by username,
// omitting exclude (compared case-insensitively) when it is non-empty.
func (d *Directory) Snapshot(exclude string) []Entry {
	skip := ""
	if exclude != "" {
		skip = names.Key(exclude)
	}

	d.mu.RLock()
	out := make([]Entry, 0, len(d.byName))
	for key, e := range d.byName {
		if skip != "" && key == skip {
			continue
		}
		out = append(out, e)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return names.Less(out[i].Username, out[j].Username) })
	return out
}

// List is Snapshot reduced to usernames.
func (d *Directory) List(exclude string) []string {
	snap := d.Snapshot(exclude)
	out := make([]string, len(snap))
	for i, e := range snap {
		out[i] = e.Username
	}
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byName)
}
