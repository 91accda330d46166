package p2p

import "p2p-directory/internal/netx"

// addSession refuses a second session for the same identity and anything
// arriving after Stop.
func (n *Node) addSession(s *Session) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ctx.Err() != nil {
		return false
	}
	if _, exists := n.sessions[s.info.ID]; exists {
		return false
	}
	n.sessions[s.info.ID] = s
	return true
}

func (n *Node) removeSession(s *Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur := n.sessions[s.info.ID]; cur == s {
		delete(n.sessions, s.info.ID)
	}
}

// PeerCount returns the current number of open sessions.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sessions)
}

// Peers returns a snapshot of open sessions.
func (n *Node) Peers() []PeerInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]PeerInfo, 0, len(n.sessions))
	for _, s := range n.sessions {
		out = append(out, s.info)
	}
	return out
}

// PeerDialAddr returns the dialable address of a connected peer.
func (n *Node) PeerDialAddr(id netx.PeerID) (netx.Addr, bool) {
	n.mu.RLock()
	s, ok := n.sessions[id]
	n.mu.RUnlock()
	if !ok {
		return "", false
	}
	addr := s.DialAddr()
	return addr, addr != ""
}

// PeerDisplayName returns the peer's advertised name, or its short id.
func (n *Node) PeerDisplayName(id netx.PeerID) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if s, ok := n.sessions[id]; ok && s.info.Name != "" {
		return s.info.Name
	}
	return id.Short()
}
