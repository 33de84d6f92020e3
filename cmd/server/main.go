package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/better-wallet/agent-custody/internal/api"
	"github.com/better-wallet/agent-custody/internal/app"
	"github.com/better-wallet/agent-custody/internal/config"
	"github.com/better-wallet/agent-custody/internal/logger"
	"github.com/better-wallet/agent-custody/internal/metrics"
	"github.com/better-wallet/agent-custody/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.LogFormat, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("custody server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// run serves until ctx is cancelled or the listener fails, then drains within cfg.ShutdownTimeout
func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.StorageDriver, err)
	}
	slog.Info("connected to storage", "driver", cfg.StorageDriver)

	rt, err := app.NewRuntime(ctx, cfg, stores, metrics.New())
	if err != nil {
		_ = stores.Close()
		return fmt.Errorf("init runtime: %w", err)
	}
	defer rt.Close()

	if !rt.Custody.Configured() {
		slog.Warn("MASTER_SECRET not set, agent key operations are disabled")
	}

	server := api.NewServerFromRuntime(rt)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown requested")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(drainCtx); err != nil {
		slog.Warn("forcing shutdown", "error", err)
	}
	if err := shutdownTracing(drainCtx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}
	return nil
}
