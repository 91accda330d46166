package bootstrap

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-directory/internal/netx"
	"p2p-directory/internal/p2p"
)

type failingSource struct{}

func (failingSource) Name() string { return "broken" }
func (failingSource) Discover(context.Context) ([]Candidate, error) {
	return nil, errors.New("boom")
}

func startNode(t *testing.T, name string) *p2p.Node {
	t.Helper()
	n, err := p2p.NewNode(p2p.NodeConfig{
		Name:     name,
		Network:  netx.NewTCPNetwork(),
		BindAddr: "127.0.0.1:0",
		Protocol: "bootstrap-test/1",
		Logger:   log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func TestCandidatesDedupesAndSkipsFailures(t *testing.T) {
	a := StaticSource{Addrs: []netx.Addr{"h1:1", "h2:2", "h1:1"}}
	b := StaticSource{Addrs: []netx.Addr{"h2:2", "h3:3"}, ID: "pin", Label: "cfg"}

	got := Candidates(context.Background(), log.New(io.Discard, "", 0), a, failingSource{}, b)
	addrs := make([]string, 0, len(got))
	for _, c := range got {
		addrs = append(addrs, string(c.Addr))
	}
	assert.ElementsMatch(t, []string{"h1:1", "h2:2", "h3:3"}, addrs)
	assert.Equal(t, "cfg", b.Name())
	assert.Equal(t, "static", a.Name())
}

func TestConnectSkipsDeadAndWrongIdentity(t *testing.T) {
	dir := startNode(t, "directory")
	decoy := startNode(t, "decoy")
	cli := startNode(t, "cli")

	src := StaticSource{Addrs: []netx.Addr{"127.0.0.1:1", decoy.ListenAddr(), dir.ListenAddr()}, ID: dir.ID()}
	cfg := Config{MaxAttempts: 5, PerAddrTimeout: time.Second}

	s, err := Connect(context.Background(), cli, cfg, nil, src)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, dir.ID(), s.PeerID())
}

func TestConnectNoCandidates(t *testing.T) {
	cli := startNode(t, "cli")
	_, err := Connect(context.Background(), cli, DefaultConfig(), nil, failingSource{})
	assert.ErrorIs(t, err, ErrNoDirectory)
}
