package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"p2p-directory/internal/chatpeer"
	"p2p-directory/internal/config"
	"p2p-directory/internal/paths"
	"p2p-directory/internal/telemetry"
)

func main() {
	cfg, err := config.LoadPeer(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if _, err := paths.EnsureDir(cfg.DataDir); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	logger, closeLog, err := telemetry.NewLogger("", cfg.Log)
	if err != nil {
		log.Fatalf("log: %v", err)
	}
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := chatpeer.New(cfg, logger)
	if err != nil {
		logger.Fatalf("create peer: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		logger.Fatalf("start: %v", err)
	}
	defer app.Close()

	if err := app.Run(ctx, os.Stdin); err != nil {
		logger.Printf("run: %v", err)
	}
}
