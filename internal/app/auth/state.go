package auth

import (
	"net"

	"github.com/google/uuid"

	"p2p-directory/internal/netx"
)

// State is where a connection is in the authentication state machine.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// conn is the per-session handler context.
type conn struct {
	id       string // correlation id for logs
	peer     netx.PeerID
	source   string // remote host, keys the failure limiter
	state    State
	username string // registered spelling, set while Authenticated
}

func newConn(peer netx.PeerID) *conn {
	return &conn{id: uuid.NewString(), peer: peer, state: Unauthenticated}
}

func (c *conn) bind(username string) {
	c.state = Authenticated
	c.username = username
}

func (c *conn) unbind() {
	c.state = Unauthenticated
	c.username = ""
}

// sourceKey falls back to the peer identity when the remote host is unknown.
func (c *conn) sourceKey() string {
	if c.source != "" {
		return c.source
	}
	return string(c.peer)
}

// sourceOf strips the port: identities are free to mint, hosts are not.
func sourceOf(addr netx.Addr) string {
	host, _, err := net.SplitHostPort(string(addr))
	if err != nil {
		return string(addr)
	}
	return host
}
