package chatpeer

import (
	"context"
	"sort"
	"time"

	"p2p-directory/internal/netx"
	"p2p-directory/internal/proto"
)

// fetchList asks the directory who is online and refreshes the local view.
func (a *App) fetchList(ctx context.Context) ([]proto.ListEntry, error) {
	c, err := a.directory(ctx)
	if err != nil {
		return nil, err
	}
	rctx, cancel := a.requestContext(ctx)
	defer cancel()
	entries, err := c.List(rctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		a.remember(e.Username, e.Peer)
	}
	return entries, nil
}

// pollLoop prints arrivals and departures while the user is logged in.
func (a *App) pollLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if a.username() == "" {
			continue
		}
		entries, err := a.fetchList(ctx)
		if err != nil {
			a.logf("poll: %v", err)
			continue
		}
		came, left := a.updateOnline(entries)
		for _, u := range came {
			a.ui.Printf("[DIR] %s is online\n", formatName(u, ""))
		}
		for _, u := range left {
			a.ui.Printf("[DIR] %s went offline\n", formatName(u, ""))
		}
	}
}

// updateOnline stores entries as the current online set and returns who
// appeared and who vanished since the previous call. The first call only sets
// the baseline.
func (a *App) updateOnline(entries []proto.ListEntry) (came, left []string) {
	next := make(map[string]netx.PeerID, len(entries))
	for _, e := range entries {
		next[e.Username] = e.Peer
	}

	a.mu.Lock()
	prev := a.online
	a.online = next
	a.mu.Unlock()

	if prev == nil {
		return nil, nil
	}
	for u := range next {
		if _, ok := prev[u]; !ok {
			came = append(came, u)
		}
	}
	for u := range prev {
		if _, ok := next[u]; !ok {
			left = append(left, u)
		}
	}
	sort.Strings(came)
	sort.Strings(left)
	return came, left
}

func (a *App) remember(username string, peer netx.PeerID) {
	a.mu.Lock()
	a.names[peer] = username
	a.mu.Unlock()
}
