package p2p

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestSessionRaceHarness is a small scenario designed to exercise concurrency
// under `go test -race`, not to assert business logic.
func TestSessionRaceHarness(t *testing.T) {
	srv := newTestNode(t, "srv", WithHandler(echoHandler))

	const clients = 8
	const loops = 50

	var wg sync.WaitGroup
	wg.Add(clients + 1)

	for i := range clients {
		cli := newTestNode(t, fmt.Sprintf("cli%d", i))
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s, err := cli.Dial(ctx, srv.ListenAddr(), srv.ID())
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer s.Close()
			for j := range loops {
				msg := fmt.Sprintf("m%d", j)
				reply, err := s.RoundTrip(ctx, msg)
				if err != nil {
					t.Errorf("round trip: %v", err)
					return
				}
				if reply != "echo:"+msg {
					t.Errorf("reply = %q", reply)
					return
				}
			}
		}()
	}

	// Also hammer the session table concurrently to exercise the RWMutex.
	go func() {
		defer wg.Done()
		deadline := time.Now().Add(1 * time.Second)
		for time.Now().Before(deadline) {
			for _, p := range srv.Peers() {
				_, _ = srv.PeerDialAddr(p.ID)
				_ = srv.PeerDisplayName(p.ID)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	wg.Wait()
	waitPeers(t, srv, 0, 3*time.Second)
}
