package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// cycleState is the scheduler's per-cycle state machine.
type cycleState string

const (
	stateIdle       cycleState = "idle"
	stateMonitoring cycleState = "monitoring"
	stateRanking    cycleState = "ranking"
	stateExecuting  cycleState = "executing"
)

// ActionSink receives every executed action for telemetry.
type ActionSink interface {
	RecordAction(a domain.RebalanceAction)
}

// Notifier pushes operator alerts. May be nil.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Scheduler drives the monitor → rank → evaluate/execute loop. Plugins run
// strictly sequentially within a cycle: they may share a signing identity on
// the same venue, and concurrent nonce allocation would race. The first cycle
// runs immediately on start; afterwards a single-shot timer is re-armed only
// once a cycle completes, so cycles can never overlap.
type Scheduler struct {
	plugins  []Plugin
	interval time.Duration
	execute  bool // false in observe mode: monitor and rank only
	actions  domain.ActionStore
	sink     ActionSink
	notifier Notifier
	logger   *slog.Logger

	mu          sync.Mutex
	state       cycleState
	lastRanking Ranking
	lastActions []domain.RebalanceAction
	lastCycle   time.Time
	cycles      uint64
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Interval time.Duration
	Execute  bool
	Actions  domain.ActionStore
	Sink     ActionSink
	Notifier Notifier
}

// NewScheduler creates a Scheduler over the given ordered plugin set.
func NewScheduler(plugins []Plugin, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		plugins:  plugins,
		interval: opts.Interval,
		execute:  opts.Execute,
		actions:  opts.Actions,
		sink:     opts.Sink,
		notifier: opts.Notifier,
		logger:   logger.With(slog.String("component", "scheduler")),
		state:    stateIdle,
	}
}

// Run blocks until ctx is cancelled. An in-flight cycle is allowed to finish;
// cancellation is only observed between cycles and at plugin suspension
// points.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		slog.Duration("interval", s.interval),
		slog.Int("plugins", len(s.plugins)),
		slog.Bool("execute", s.execute),
	)
	defer s.logger.Info("scheduler stopped")

	s.runCycle(ctx)

	for {
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.runCycle(ctx)
		}
	}
}

// RunOnce executes a single cycle. Used by the dry-run mode and tests.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.setState(stateMonitoring)
	defer s.setState(stateIdle)

	// Monitor every plugin. A failing monitor contributes nothing; it never
	// aborts the cycle.
	var merged []domain.YieldOpportunity
	for _, p := range s.plugins {
		opps, err := s.safeMonitor(ctx, p)
		if err != nil {
			s.logger.Warn("plugin monitor failed",
				slog.String("plugin", p.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		merged = append(merged, opps...)
	}

	s.setState(stateRanking)
	ranking := Rank(merged)
	if ranking.Best != nil {
		s.logger.Info("cycle best opportunity",
			slog.String("venue", ranking.Best.Venue),
			slog.Float64("yield_pct", ranking.Best.YieldPct),
			slog.String("source", ranking.Best.Source),
		)
	}

	s.setState(stateExecuting)
	var executed []domain.RebalanceAction
	for _, p := range s.plugins {
		act, err := s.safeEvaluate(ctx, p, ranking)
		if err != nil {
			s.logger.Warn("plugin evaluate failed",
				slog.String("plugin", p.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !act {
			continue
		}
		if !s.execute {
			s.logger.Info("observe mode: execution skipped", slog.String("plugin", p.Name()))
			continue
		}
		actions, err := s.safeExecute(ctx, p)
		if err != nil {
			s.logger.Error("plugin execute failed",
				slog.String("plugin", p.Name()),
				slog.String("error", err.Error()),
			)
			s.notify(ctx, "cycle_error", "execute failed",
				fmt.Sprintf("plugin %s: %v", p.Name(), err))
			continue
		}
		executed = append(executed, actions...)
		s.record(ctx, p.Name(), actions)
	}

	s.mu.Lock()
	s.lastRanking = ranking
	s.lastActions = executed
	s.lastCycle = start
	s.cycles++
	s.mu.Unlock()

	s.logger.Info("cycle complete",
		slog.Int("opportunities", len(merged)),
		slog.Int("actions", len(executed)),
		slog.Duration("took", time.Since(start)),
	)
}

// safeMonitor isolates plugin panics as errors so one plugin cannot take the
// cycle down.
func (s *Scheduler) safeMonitor(ctx context.Context, p Plugin) (opps []domain.YieldOpportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor panic: %v", r)
		}
	}()
	return p.Monitor(ctx)
}

func (s *Scheduler) safeEvaluate(ctx context.Context, p Plugin, ranking Ranking) (act bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate panic: %v", r)
		}
	}()
	return p.Evaluate(ctx, ranking)
}

func (s *Scheduler) safeExecute(ctx context.Context, p Plugin) (actions []domain.RebalanceAction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execute panic: %v", r)
		}
	}()
	return p.Execute(ctx)
}

func (s *Scheduler) record(ctx context.Context, plugin string, actions []domain.RebalanceAction) {
	for _, a := range actions {
		if s.sink != nil {
			s.sink.RecordAction(a)
		}
		if s.actions != nil {
			if err := s.actions.Insert(ctx, a); err != nil {
				s.logger.Warn("persist action failed",
					slog.String("action_id", a.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		s.notify(ctx, "action_executed", string(a.Kind),
			fmt.Sprintf("[%s] %s %s on %s amount=%d", plugin, a.Kind, a.Depositor, a.Venue, a.Amount))
	}
}

func (s *Scheduler) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.Debug("notify failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) setState(st cycleState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.Debug("cycle state", slog.String("state", string(st)))
}

// Snapshot is the scheduler's externally visible state for the telemetry API.
type Snapshot struct {
	State       string                   `json:"state"`
	Cycles      uint64                   `json:"cycles"`
	LastCycle   time.Time                `json:"last_cycle"`
	Ranking     []domain.YieldOpportunity `json:"signals"`
	LastActions []domain.RebalanceAction `json:"last_actions"`
}

// Snapshot returns a copy of the last cycle's outcome.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:     string(s.state),
		Cycles:    s.cycles,
		LastCycle: s.lastCycle,
	}
	snap.Ranking = append(snap.Ranking, s.lastRanking.All...)
	snap.LastActions = append(snap.LastActions, s.lastActions...)
	return snap
}

// Close shuts down every plugin.
func (s *Scheduler) Close() {
	for _, p := range s.plugins {
		if err := p.Close(); err != nil {
			s.logger.Warn("plugin close failed",
				slog.String("plugin", p.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
