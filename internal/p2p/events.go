package p2p

import "p2p-directory/internal/netx"

type EventType string

const (
	EventPeerConnected    EventType = "peer_connected"
	EventPeerDisconnected EventType = "peer_disconnected"
)

type Event struct {
	Type     EventType
	PeerID   netx.PeerID
	PeerAddr string
	PeerName string
	Inbound  bool
}

// PeerInfo describes the remote end of a session as learned during the
// handshake.
type PeerInfo struct {
	ID         netx.PeerID
	Name       string
	ListenAddr netx.Addr // what the peer advertised
	RemoteAddr netx.Addr // what the socket observed
	Inbound    bool
}

// Notifiee is told about session lifecycle. Callbacks run synchronously on the
// session's goroutine: Disconnected for an inbound session is delivered only
// after its Handler has returned.
type Notifiee interface {
	Connected(PeerInfo)
	Disconnected(PeerInfo)
}

func (n *Node) emit(e Event) {
	select {
	case n.events <- e:
	default:
		// drop rather than block the session on a slow UI
	}
}
