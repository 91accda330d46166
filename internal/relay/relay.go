// Package relay delivers one chat line to an already resolved peer: dial,
// send, wait for the "." acknowledgement, close.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"p2p-directory/internal/p2p"
	"p2p-directory/internal/proto"
)

// Ack is the receiver's acknowledgement of a delivered line.
const Ack = "."

var ErrNoAck = errors.New("peer did not acknowledge")

// Message is a delivered chat line.
type Message struct {
	From p2p.PeerInfo
	Text string
	At   time.Time
}

const dupRetries = 5

// Send dials to.Peer at to.Addr, refusing any other identity, and delivers text.
func Send(ctx context.Context, node *p2p.Node, to proto.Resolution, text string) error {
	var s *p2p.Session
	var err error
	for i := 0; ; i++ {
		s, err = node.Dial(ctx, to.Addr, to.Peer)
		// a previous exchange with the same peer may still be tearing down
		if errors.Is(err, p2p.ErrDuplicateSession) && i < dupRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 20 * time.Millisecond):
			}
			continue
		}
		break
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", to.Username, err)
	}
	defer s.Close()

	reply, err := s.RoundTrip(ctx, text)
	if err != nil {
		return err
	}
	if reply != Ack {
		return fmt.Errorf("%w: got %q", ErrNoAck, reply)
	}
	return nil
}

// Handler serves inbound relay sessions: one message in, one Ack out.
type Handler struct {
	deliver func(Message)
}

func NewHandler(deliver func(Message)) *Handler {
	return &Handler{deliver: deliver}
}

func (h *Handler) ServeSession(_ context.Context, s *p2p.Session) {
	text, err := s.ReadMessage()
	if err != nil {
		return
	}
	h.deliver(Message{From: s.Info(), Text: text, At: time.Now()})
	_ = s.WriteMessage(Ack)
}
