package chatpeer

import (
	"p2p-directory/internal/p2p"
	"p2p-directory/internal/relay"
)

func (a *App) printMessage(m relay.Message) {
	ts := dim("[" + m.At.Format("15:04:05") + "]")
	a.ui.Printf("%s %s: %s\n", ts, formatName(a.senderName(m.From), ""), m.Text)
}

// senderName prefers the username the directory last reported for the peer.
// Unknown peers are shown by their handshake name and short id.
func (a *App) senderName(from p2p.PeerInfo) string {
	a.mu.Lock()
	u, ok := a.names[from.ID]
	a.mu.Unlock()
	if ok {
		return u
	}
	if from.Name == "" {
		return from.ID.Short()
	}
	return from.Name + "~" + from.ID.Short()
}
