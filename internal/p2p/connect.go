package p2p

import (
	"context"

	"p2p-directory/internal/netx"
)

// Dial opens an outbound session to addr. When expect is non-empty the remote
// static key must hash to that peer ID or the session is refused. The caller
// owns the returned session and must Close it.
func (n *Node) Dial(ctx context.Context, addr netx.Addr, expect netx.PeerID) (*Session, error) {
	if n.ctx.Err() != nil {
		return nil, ErrNodeClosed
	}
	conn, err := n.cfg.Network.Dial(ctx, addr)
	if err != nil {
		n.Logf("dial %s failed: %v", addr, err)
		return nil, err
	}

	// abort the handshake if ctx is cancelled mid-way
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	s, err := n.establishSession(conn, false, expect)
	if !stop() && err == nil {
		_ = s.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	n.Logf("session open id=%s name=%s addr=%s inbound=false", s.info.ID.Short(), s.info.Name, addr)
	return s, nil
}
