package bootstrap

import (
	"context"

	"p2p-directory/internal/netx"
)

// StaticSource yields configured addresses, all pinned to ID when it is set.
type StaticSource struct {
	Addrs []netx.Addr
	ID    netx.PeerID
	Label string
}

func (s StaticSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "static"
}

func (s StaticSource) Discover(context.Context) ([]Candidate, error) {
	out := make([]Candidate, 0, len(s.Addrs))
	for _, a := range s.Addrs {
		out = append(out, Candidate{Addr: a, ID: s.ID})
	}
	return out, nil
}
