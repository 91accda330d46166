// Package chatpeer is the terminal chat client. It keeps one session to a
// directory node, runs the slash commands the user types and prints chat
// lines relayed from other peers.
package chatpeer

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"p2p-directory/internal/bootstrap"
	"p2p-directory/internal/client"
	"p2p-directory/internal/config"
	"p2p-directory/internal/netx"
	"p2p-directory/internal/p2p"
	"p2p-directory/internal/relay"
	"p2p-directory/internal/telemetry"
)

type App struct {
	cfg    config.Peer
	ui     Printer
	logger telemetry.Logger
	boot   bootstrap.Config

	Node *p2p.Node

	// dialMu serializes reconnects so the poller and a command never race to
	// open two sessions to the same directory.
	dialMu sync.Mutex

	mu     sync.Mutex
	dir    *client.Client
	user   string                 // "" while logged out
	online map[string]netx.PeerID // last LIST result, nil before the first one
	names  map[netx.PeerID]string // peer -> username, for labelling inbound chat
}

type Option func(*App)

// WithPrinter replaces the stdout printer.
func WithPrinter(p Printer) Option { return func(a *App) { a.ui = p } }

// WithBootstrap overrides how hard the app tries to reach a directory.
func WithBootstrap(c bootstrap.Config) Option { return func(a *App) { a.boot = c } }

func New(cfg config.Peer, logger telemetry.Logger, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		ui:     NewStdPrinter(os.Stdout),
		logger: logger,
		boot:   bootstrap.DefaultConfig(),
		names:  make(map[netx.PeerID]string),
	}
	for _, opt := range opts {
		opt(a)
	}

	var id *p2p.Identity
	if cfg.IdentityFile != "" {
		var err error
		if id, err = p2p.LoadOrCreateIdentity(cfg.IdentityFile); err != nil {
			return nil, err
		}
	}

	n, err := p2p.NewNode(p2p.NodeConfig{
		Name:     cfg.Name,
		Network:  netx.NewTCPNetwork(),
		BindAddr: cfg.Listen,
		Protocol: cfg.Protocol,
		Identity: id,
		Handler:  relay.NewHandler(a.printMessage),
		Logger:   logger,
		Debug:    cfg.Debug,
	})
	if err != nil {
		return nil, err
	}
	a.Node = n
	return a, nil
}

// Start brings the node online and opens the first directory session.
func (a *App) Start(ctx context.Context) error {
	if err := a.Node.Start(); err != nil {
		return err
	}
	if _, err := a.directory(ctx); err != nil {
		_ = a.Node.Stop()
		return err
	}
	return nil
}

// Run reads commands from in until /quit, EOF or ctx ends.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	PrintBanner(a.ui, a.Node)

	go a.printEvents(ctx)
	if a.cfg.PollInterval > 0 {
		go a.pollLoop(ctx, a.cfg.PollInterval)
	}

	lines := make(chan string)
	go readLines(ctx, in, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !a.handleCommand(ctx, line) {
				return nil
			}
		}
	}
}

// Close logs out if needed, drops the directory session and stops the node.
func (a *App) Close() error {
	a.mu.Lock()
	c, user := a.dir, a.user
	a.dir, a.user = nil, ""
	a.mu.Unlock()

	if c != nil {
		if user != "" {
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
			if err := c.Logout(ctx, user); err != nil {
				a.logf("logout on close: %v", err)
			}
			cancel()
		}
		_ = c.Close()
	}
	return a.Node.Stop()
}

func (a *App) sources() []bootstrap.PeerSource {
	var srcs []bootstrap.PeerSource
	if a.cfg.Directory != "" {
		srcs = append(srcs, bootstrap.StaticSource{
			Addrs: []netx.Addr{netx.Addr(a.cfg.Directory)},
			ID:    netx.PeerID(a.cfg.DirectoryID),
			Label: "config",
		})
	}
	if a.cfg.LAN.Enabled {
		srcs = append(srcs, bootstrap.LANSource{Cfg: a.cfg.LAN.LANConfig, Protocol: a.cfg.Protocol})
	}
	return srcs
}

// directory returns the live directory client, reconnecting when the last
// session has ended. A new session starts logged out.
func (a *App) directory(ctx context.Context) (*client.Client, error) {
	a.dialMu.Lock()
	defer a.dialMu.Unlock()

	a.mu.Lock()
	c := a.dir
	a.mu.Unlock()
	if c != nil {
		select {
		case <-c.Done():
			a.ui.Println("[DIR] lost the directory session, reconnecting")
		default:
			return c, nil
		}
	}

	s, err := bootstrap.Connect(ctx, a.Node, a.boot, a.logger, a.sources()...)
	if err != nil {
		return nil, err
	}
	c = client.New(s)

	a.mu.Lock()
	a.dir = c
	a.user = ""
	a.online = nil
	a.mu.Unlock()

	a.ui.Printf("[DIR] connected to directory %s at %s\n", s.PeerID().Short(), s.RemoteAddr())
	return c, nil
}

func (a *App) username() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

func (a *App) setUser(u string) {
	a.mu.Lock()
	a.user = u
	a.mu.Unlock()
}

func (a *App) printEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.Node.Events():
			if !a.cfg.Debug {
				continue
			}
			switch ev.Type {
			case p2p.EventPeerConnected:
				a.ui.Printf("[NET] peer connected: %s (%s)\n", formatName(ev.PeerName, ev.PeerID.Short()), ev.PeerAddr)
			case p2p.EventPeerDisconnected:
				a.ui.Printf("[NET] peer disconnected: %s\n", ev.PeerID.Short())
			}
		}
	}
}

func (a *App) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.RequestTimeout)
}

func (a *App) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf("[chat] "+format, args...)
	}
}

// now is replaced in tests that pin the default registration date.
var now = time.Now
