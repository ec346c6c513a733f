package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taxoclaim/cmd"
	"taxoclaim/internal/conf"
	"taxoclaim/internal/logging"
)

// Build-time variables, set via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	// An interrupt cancels the run context so the walk stops cleanly
	// between units instead of mid-edit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
