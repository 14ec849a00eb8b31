package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/vaultpilot/vaultpilot/internal/server"
	"github.com/vaultpilot/vaultpilot/internal/server/handler"
	"github.com/vaultpilot/vaultpilot/internal/strategy"
)

// buildScheduler constructs the configured plugin set and the cycle scheduler
// around it. execute false keeps the monitor/rank half of the cycle and skips
// every Execute call.
func (a *App) buildScheduler(deps *Dependencies, execute bool) (*strategy.Scheduler, error) {
	reg := strategy.NewRegistry()
	plugins, err := reg.Build(a.cfg.Agent.Plugins, strategy.Deps{
		Vault:            deps.Vault,
		Gateway:          deps.Gateway,
		Lending:          deps.Lending,
		Keys:             deps.Keystore,
		Observer:         deps.Observer,
		Positions:        deps.Positions,
		PendingBridges:   deps.PendingBridges,
		GatewayPositions: deps.GatewayPositions,
		LendingPositions: deps.LendingPositions,
		Cfg:              strategyConfig(a.cfg),
		Logger:           a.logger,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	opts := strategy.SchedulerOptions{
		Interval: a.cfg.Agent.Interval.Duration,
		Execute:  execute,
		Actions:  deps.Actions,
		Sink:     a.recorder,
	}
	if deps.Notifier != nil {
		opts.Notifier = deps.Notifier
	}
	return strategy.NewScheduler(plugins, opts, a.logger), nil
}

// RunMode starts the full agent: the yield stream, the rebalance scheduler
// with execution enabled, the archive cron, and the telemetry API.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode")

	sched, err := a.buildScheduler(deps, true)
	if err != nil {
		return fmt.Errorf("run mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if deps.Stream != nil {
		if err := deps.Stream.Connect(ctx); err != nil {
			a.logger.WarnContext(ctx, "yield stream connect failed, relying on polls",
				slog.String("error", err.Error()),
			)
		} else {
			a.closers = append(a.closers, func() { _ = deps.Stream.Close() })
		}
	}

	g.Go(func() error {
		defer sched.Close()
		return sched.Run(ctx)
	})

	if deps.Archiver != nil {
		if err := a.startArchiveCron(ctx, deps); err != nil {
			return fmt.Errorf("run mode: %w", err)
		}
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, sched)
	}

	return g.Wait()
}

// ObserveMode runs monitor and rank cycles without executing anything. No
// operator key, no archive; the telemetry API reflects what the agent would
// have seen.
func (a *App) ObserveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting observe mode")

	sched, err := a.buildScheduler(deps, false)
	if err != nil {
		return fmt.Errorf("observe mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if deps.Stream != nil {
		if err := deps.Stream.Connect(ctx); err != nil {
			a.logger.WarnContext(ctx, "yield stream connect failed, relying on polls",
				slog.String("error", err.Error()),
			)
		} else {
			a.closers = append(a.closers, func() { _ = deps.Stream.Close() })
		}
	}

	g.Go(func() error {
		defer sched.Close()
		return sched.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, sched)
	}

	return g.Wait()
}

// ServerMode serves the telemetry API over the persisted state only. No
// cycles run; the snapshot stays idle.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	idle := strategy.NewScheduler(nil, strategy.SchedulerOptions{
		Interval: a.cfg.Agent.Interval.Duration,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, idle)
	return g.Wait()
}

// startHTTPServer registers the telemetry routes and runs the server under
// the group, shutting it down when the group context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, sched *strategy.Scheduler) {
	var stats handler.StatsProvider
	if deps.Vault != nil {
		stats = deps.Vault
	}
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Health, a.logger),
		Logs:   handler.NewLogsHandler(a.recorder, a.logger),
		State:  handler.NewStateHandler(sched, a.recorder, stats, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// actionArchiver is the slice of the blob archiver the cron entry consumes.
type actionArchiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// archiveOnce exports actions older than the retention window. A failed
// export is never fatal; it is retried on the next tick since the rows are
// only pruned after a successful upload.
func (a *App) archiveOnce(ctx context.Context, archiver actionArchiver, retention time.Duration) {
	cutoff := time.Now().UTC().Add(-retention)
	archived, err := archiver.ArchiveBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error("action archive failed",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return
	}
	if archived > 0 {
		a.logger.Info("actions archived",
			slog.Int64("count", archived),
			slog.Time("cutoff", cutoff),
		)
	}
}

// startArchiveCron schedules the action archive export.
func (a *App) startArchiveCron(ctx context.Context, deps *Dependencies) error {
	c := cron.New()
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	_, err := c.AddFunc(a.cfg.Archive.Cron, func() {
		a.archiveOnce(ctx, deps.Archiver, retention)
	})
	if err != nil {
		return fmt.Errorf("archive cron %q: %w", a.cfg.Archive.Cron, err)
	}
	c.Start()
	a.closers = append(a.closers, func() { <-c.Stop().Done() })
	a.logger.Info("archive cron scheduled",
		slog.String("spec", a.cfg.Archive.Cron),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
	return nil
}
