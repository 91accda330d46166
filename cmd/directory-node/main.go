package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"p2p-directory/internal/app/accounts"
	"p2p-directory/internal/app/auth"
	"p2p-directory/internal/app/directory"
	"p2p-directory/internal/app/session"
	"p2p-directory/internal/config"
	"p2p-directory/internal/discovery"
	"p2p-directory/internal/metrics"
	"p2p-directory/internal/netx"
	"p2p-directory/internal/p2p"
	"p2p-directory/internal/paths"
	"p2p-directory/internal/storage/accountsbolt"
	"p2p-directory/internal/storage/accountsjson"
	"p2p-directory/internal/telemetry"
)

func main() {
	cfg, err := config.LoadServer(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if _, err := paths.EnsureDir(cfg.DataDir); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	logger, closeLog, err := telemetry.NewLogger("[directory] ", cfg.Log)
	if err != nil {
		log.Fatalf("log: %v", err)
	}
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Printf("fatal: %v", err)
		closeLog.Close()
		os.Exit(1)
	}
}

func openStore(cfg config.StoreConfig) (accounts.Store, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		return accountsbolt.Open(cfg.Path)
	default:
		return accountsjson.Open(cfg.Path)
	}
}

func run(ctx context.Context, cfg config.Server, logger *log.Logger) error {
	st, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store %s: %w", cfg.Store.Backend, cfg.Store.Path, err)
	}
	m := metrics.New(true)
	reg, err := accounts.Open(st, accounts.WithLogger(logger), accounts.WithMetrics(m))
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("load accounts: %w", err)
	}
	defer reg.Close()
	logger.Printf("loaded %d accounts from %s", reg.Len(), cfg.Store.Path)

	id, err := p2p.LoadOrCreateIdentity(cfg.IdentityFile)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	dir := directory.New(m)
	sessions := session.NewManager(dir, logger, m, cfg.Debug)

	var limiter auth.Limiter
	if cfg.AuthLimit.Burst > 0 {
		limiter = auth.NewAttemptLimiter(cfg.AuthLimit.PerMinute/60, cfg.AuthLimit.Burst)
	}

	var node *p2p.Node
	handler := auth.NewHandler(auth.Config{
		Accounts:  reg,
		Directory: dir,
		Addrs:     addrBook{&node},
		Logger:    logger,
		Metrics:   m,
		Limiter:   limiter,
		Debug:     cfg.Debug,
	})
	node, err = p2p.NewNode(p2p.NodeConfig{
		Name:             cfg.Name,
		Network:          netx.NewTCPNetworkKeepAlive(cfg.KeepAlive),
		BindAddr:         cfg.Listen,
		Protocol:         cfg.Protocol,
		Identity:         id,
		Handler:          handler,
		Logger:           logger,
		Debug:            cfg.Debug,
		HandshakeTimeout: cfg.HandshakeTimeout,
	})
	if err != nil {
		return err
	}
	node.Notify(sessions)
	if err := node.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer node.Stop()
	logger.Printf("directory %q listening on %s id=%s", cfg.Name, node.ListenAddr(), node.ID())

	if cfg.LAN.Enabled {
		self := discovery.Self{Name: cfg.Name, Listen: node.ListenAddr(), ID: node.ID(), Protocol: cfg.Protocol}
		if err := discovery.StartLANResponder(ctx, cfg.LAN.LANConfig, self); err != nil {
			// peers can still reach us by address
			logger.Printf("LAN responder failed: %v", err)
		}
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server: %v", err)
			}
		}()
		logger.Printf("metrics on http://%s/metrics", cfg.MetricsAddr)
	}

	<-ctx.Done()
	logger.Printf("shutting down")
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
	return nil
}

// addrBook defers to the node once it exists; the handler is built first
// because the node needs it.
type addrBook struct{ n **p2p.Node }

func (a addrBook) PeerDialAddr(id netx.PeerID) (netx.Addr, bool) {
	return (*a.n).PeerDialAddr(id)
}
