package bootstrap

import (
	"context"

	"p2p-directory/internal/netx"
)

// Candidate is a place a directory might be reached. ID, when set, pins the
// identity the session must present.
type Candidate struct {
	Addr netx.Addr
	ID   netx.PeerID
}

type PeerSource interface {
	// Discover returns candidate directories to connect to.
	Discover(ctx context.Context) ([]Candidate, error)
	Name() string
}
