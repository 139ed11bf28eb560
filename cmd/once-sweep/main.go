package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tendant/once/pkg/once/config"
	"github.com/tendant/once/pkg/once/sweeper"
)

// once-sweep runs a single cleanup pass and exits, for deployments that
// schedule sweeps outside the server.
func main() {
	if err := run(); err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.WithDotEnv(), config.WithEnv())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := cfg.BuildService(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer rt.Close()

	scheduler, err := sweeper.New(rt.Service, cfg.SweepSchedule, sweeper.WithLogger(logger))
	if err != nil {
		return err
	}

	result, err := scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d served entries could not be purged", result.Failed, result.Scanned)
	}
	return nil
}
