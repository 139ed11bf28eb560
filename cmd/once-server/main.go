package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/once/pkg/once/api"
	"github.com/tendant/once/pkg/once/config"
	"github.com/tendant/once/pkg/once/sweeper"
)

func main() {
	if err := run(); err != nil {
		slog.Error("once server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from .env and the environment
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

	scheduler, err := sweeper.New(rt.Service, cfg.SweepSchedule,
		sweeper.WithLogger(logger),
		sweeper.WithObserver(rt.Metrics),
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(cfg.RouterConfig(rt, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("once server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"base_url", cfg.BaseURL,
			"sweep_schedule", cfg.SweepSchedule,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Create a deadline to wait for
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("server exiting")
	return nil
}
