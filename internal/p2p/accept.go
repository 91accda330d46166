package p2p

import "p2p-directory/internal/netx"

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.cfg.Network.Accept()
		if err != nil {
			if n.ctx.Err() == nil {
				n.Logf("accept error: %v", err)
			}
			return
		}
		n.wg.Add(1)
		go n.handleConn(conn)
	}
}

// handleConn runs the server side of the handshake, then hands the session to
// the configured Handler. Cleanup (and Disconnected) happens after the handler
// returns.
func (n *Node) handleConn(rawConn netx.Conn) {
	defer n.wg.Done()

	s, err := n.establishSession(rawConn, true, "")
	if err != nil {
		n.Logf("inbound setup from %s failed: %v", rawConn.RemoteAddr(), err)
		_ = rawConn.Close()
		return
	}
	defer s.Close()

	n.Logf("session open id=%s name=%s addr=%s inbound=true", s.info.ID.Short(), s.info.Name, s.info.ListenAddr)
	n.cfg.Handler.ServeSession(n.ctx, s)
}
