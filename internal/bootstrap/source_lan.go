package bootstrap

import (
	"context"

	"p2p-directory/internal/discovery"
)

// LANSource asks the local network for directories speaking Protocol. The
// identity each one announces is pinned.
type LANSource struct {
	Cfg      discovery.LANConfig
	Protocol string
}

func (s LANSource) Name() string { return "lan" }

func (s LANSource) Discover(ctx context.Context) ([]Candidate, error) {
	found, err := discovery.DiscoverLAN(ctx, s.Cfg, s.Protocol)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(found))
	for _, a := range found {
		out = append(out, Candidate{Addr: a.Addr, ID: a.ID})
	}
	return out, nil
}
