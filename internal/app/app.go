// Package app provides the top-level application lifecycle management for the
// rebalancing agent. It wires together all dependencies (stores, caches, the
// vault binding, venue adapters, feeds, and notifications) and starts the
// appropriate goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vaultpilot/vaultpilot/internal/config"
	"github.com/vaultpilot/vaultpilot/internal/telemetry"
)

// recorderLimit bounds the in-memory telemetry ring.
const recorderLimit = 1024

// App is the root application object. It owns the configuration, logger,
// telemetry recorder, and a list of cleanup functions that are called in
// reverse order on shutdown.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder *telemetry.Recorder
	closers  []func()
}

// New creates a new App from the given configuration and logger. The logger's
// handler is teed into the telemetry recorder so the log API serves the same
// lines the process emits.
func New(cfg *config.Config, logger *slog.Logger) *App {
	rec := telemetry.NewRecorder(recorderLimit)
	teed := slog.New(telemetry.NewHandler(logger.Handler(), rec))
	slog.SetDefault(teed)
	return &App{
		cfg:      cfg,
		logger:   teed.With(slog.String("component", "app")),
		recorder: rec,
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting agent",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	mode := strings.ToLower(a.cfg.Mode)
	if mode == "dry-run" {
		return a.DryRunMode(ctx)
	}

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case "run":
		return a.RunMode(ctx, deps)
	case "observe":
		return a.ObserveMode(ctx, deps)
	case "server":
		return a.ServerMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down agent")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
