// Package session reconciles transport lifecycle with the directory: when a
// peer's session ends, whatever username it held goes offline.
package session

import (
	"sync"

	"p2p-directory/internal/netx"
	"p2p-directory/internal/p2p"
	"p2p-directory/internal/telemetry"
)

// Directory is the slice of the directory the manager needs.
type Directory interface {
	RemoveByPeer(peer netx.PeerID)
}

type Metrics interface {
	SetConnections(n int)
}

type NoopMetrics struct{}

func (NoopMetrics) SetConnections(int) {}

// Manager implements p2p.Notifiee.
type Manager struct {
	dir     Directory
	logger  telemetry.Logger
	metrics Metrics
	debug   bool

	mu   sync.Mutex
	live map[netx.PeerID]p2p.PeerInfo
}

func NewManager(dir Directory, logger telemetry.Logger, m Metrics, debug bool) *Manager {
	if logger == nil {
		logger = telemetry.Discard
	}
	if m == nil {
		m = NoopMetrics{}
	}
	return &Manager{
		dir:     dir,
		logger:  logger,
		metrics: m,
		debug:   debug,
		live:    make(map[netx.PeerID]p2p.PeerInfo),
	}
}

func (m *Manager) Connected(p p2p.PeerInfo) {
	m.mu.Lock()
	m.live[p.ID] = p
	n := len(m.live)
	m.mu.Unlock()

	m.metrics.SetConnections(n)
	m.logf("peer %s (%s) connected from %s", p.ID.Short(), p.Name, p.RemoteAddr)
}

// Disconnected drops any directory entry bound to the peer. It runs after the
// session's handler returned, so no later Put from that session can follow.
func (m *Manager) Disconnected(p p2p.PeerInfo) {
	m.dir.RemoveByPeer(p.ID)

	m.mu.Lock()
	delete(m.live, p.ID)
	n := len(m.live)
	m.mu.Unlock()

	m.metrics.SetConnections(n)
	m.logf("peer %s disconnected", p.ID.Short())
}

// Live returns the number of open sessions.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) logf(format string, args ...any) {
	if m.debug {
		m.logger.Printf("[session] "+format, args...)
	}
}
