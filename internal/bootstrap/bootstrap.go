package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"p2p-directory/internal/p2p"
	"p2p-directory/internal/telemetry"
)

var ErrNoDirectory = errors.New("no directory reachable")

type Config struct {
	MaxAttempts    int
	PerAddrTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    12,
		PerAddrTimeout: 2 * time.Second,
	}
}

// Candidates gathers candidates from every source, shuffled and deduplicated
// by address. A failing source is logged and skipped.
func Candidates(ctx context.Context, logger telemetry.Logger, sources ...PeerSource) []Candidate {
	cands := make([]Candidate, 0, 16)
	for _, s := range sources {
		found, err := s.Discover(ctx)
		if err != nil {
			if logger != nil {
				logger.Printf("[bootstrap] %s discover error: %v", s.Name(), err)
			}
			continue
		}
		cands = append(cands, found...)
	}

	// Shuffle to avoid everyone hitting the same directory in the same order.
	rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

	seen := make(map[string]struct{}, len(cands))
	out := cands[:0]
	for _, c := range cands {
		key := string(c.Addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Connect dials candidates until one yields a session.
func Connect(ctx context.Context, n *p2p.Node, cfg Config, logger telemetry.Logger, sources ...PeerSource) (*p2p.Session, error) {
	cands := Candidates(ctx, logger, sources...)
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrNoDirectory)
	}

	var lastErr error
	for i, c := range cands {
		if cfg.MaxAttempts > 0 && i >= cfg.MaxAttempts {
			break
		}
		dctx, cancel := context.WithTimeout(ctx, cfg.PerAddrTimeout)
		s, err := n.Dial(dctx, c.Addr, c.ID)
		cancel()
		if err == nil {
			return s, nil
		}
		lastErr = err
		n.Logf("[bootstrap] %s unreachable: %v", c.Addr, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrNoDirectory, lastErr)
}
