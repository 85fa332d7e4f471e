package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/haptalk/internal/chat"
	"github.com/matheus3301/haptalk/internal/client"
	"github.com/matheus3301/haptalk/internal/config"
	"github.com/matheus3301/haptalk/internal/profile"
	"github.com/matheus3301/haptalk/internal/tui"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	endpointFlag := flag.String("endpoint", "", "relay WebSocket URL (overrides config endpoint)")
	headlessFlag := flag.Bool("headless", false, "read messages from stdin instead of starting the TUI")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *endpointFlag != "" {
		cfg.Endpoint = *endpointFlag
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	var core *chat.Core
	app := fx.New(
		client.Module(client.Params{
			Profile:  profileName,
			Endpoint: cfg.Endpoint,
			Console:  *headlessFlag,
			Debug:    *debugFlag,
		}),
		fx.Populate(&core),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *headlessFlag {
		err = tui.RunHeadless(ctx, core, os.Stdin, os.Stdout)
	} else {
		ui := tui.NewApp(core, profileName)
		go func() {
			<-ctx.Done()
			ui.Stop()
		}()
		err = ui.Run()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := app.Stop(stopCtx); stopErr != nil && err == nil {
		err = stopErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
