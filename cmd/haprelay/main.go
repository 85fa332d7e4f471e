package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matheus3301/haptalk/internal/config"
	"github.com/matheus3301/haptalk/internal/logging"
	"github.com/matheus3301/haptalk/internal/profile"
	"github.com/matheus3301/haptalk/internal/relay"
	"go.uber.org/zap"
)

func main() {
	listenFlag := flag.String("listen", "", "listen address (overrides config relay_listen)")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	addr := cfg.RelayListen
	if *listenFlag != "" {
		addr = *listenFlag
	}

	logger, err := logging.New(logging.Options{Console: true, Debug: *debugFlag, Component: "relay"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := relay.NewServer(relay.NewHub(logger), logger)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logger.Error("relay stopped", zap.Error(err))
		os.Exit(1)
	}
}
