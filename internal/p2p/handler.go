package p2p

import "context"

// Handler serves one inbound session. The session is torn down when
// ServeSession returns.
type Handler interface {
	ServeSession(ctx context.Context, s *Session)
}

type HandlerFunc func(ctx context.Context, s *Session)

func (f HandlerFunc) ServeSession(ctx context.Context, s *Session) { f(ctx, s) }

// drainSession keeps a session open, discarding input, until the peer goes away.
func drainSession(_ context.Context, s *Session) {
	for {
		if _, err := s.ReadMessage(); err != nil {
			return
		}
	}
}
