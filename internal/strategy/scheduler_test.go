package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/store/memory"
)

// stubPlugin is a scriptable Plugin for scheduler tests.
type stubPlugin struct {
	name     string
	opps     []domain.YieldOpportunity
	act      bool
	actions  []domain.RebalanceAction
	panics   bool
	executed int
}

func (p *stubPlugin) Name() string { return p.name }

func (p *stubPlugin) Monitor(context.Context) ([]domain.YieldOpportunity, error) {
	if p.panics {
		panic("monitor boom")
	}
	return p.opps, nil
}

func (p *stubPlugin) Evaluate(context.Context, Ranking) (bool, error) {
	return p.act, nil
}

func (p *stubPlugin) Execute(context.Context) ([]domain.RebalanceAction, error) {
	p.executed++
	return p.actions, nil
}

func (p *stubPlugin) Close() error { return nil }

type recordingSink struct {
	actions []domain.RebalanceAction
}

func (s *recordingSink) RecordAction(a domain.RebalanceAction) {
	s.actions = append(s.actions, a)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_CycleExecutesAndRecords(t *testing.T) {
	action := domain.RebalanceAction{
		ID: "a1", Kind: domain.ActionBorrow, Venue: VenueHome,
		Depositor: "dep1", Amount: 500, CreatedAt: time.Now().UTC(),
	}
	p := &stubPlugin{
		name: "stub",
		opps: []domain.YieldOpportunity{{Venue: "home", YieldPct: 4.2}},
		act:  true, actions: []domain.RebalanceAction{action},
	}
	sink := &recordingSink{}
	store := memory.NewActionStore()

	s := NewScheduler([]Plugin{p}, SchedulerOptions{
		Interval: time.Hour,
		Execute:  true,
		Actions:  store,
		Sink:     sink,
	}, testLogger())
	s.RunOnce(context.Background())

	assert.Equal(t, 1, p.executed)
	require.Len(t, sink.actions, 1)
	assert.Equal(t, "a1", sink.actions[0].ID)

	persisted, err := store.ListRecent(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, persisted, 1)

	snap := s.Snapshot()
	assert.Equal(t, uint64(1), snap.Cycles)
	require.Len(t, snap.Ranking, 1)
	require.Len(t, snap.LastActions, 1)
	assert.False(t, snap.LastCycle.IsZero())
}

func TestScheduler_ObserveModeSkipsExecute(t *testing.T) {
	p := &stubPlugin{
		name: "stub",
		opps: []domain.YieldOpportunity{{Venue: "home", YieldPct: 4.2}},
		act:  true, actions: []domain.RebalanceAction{{ID: "a1"}},
	}
	sink := &recordingSink{}

	s := NewScheduler([]Plugin{p}, SchedulerOptions{
		Interval: time.Hour,
		Execute:  false,
		Sink:     sink,
	}, testLogger())
	s.RunOnce(context.Background())

	assert.Zero(t, p.executed)
	assert.Empty(t, sink.actions)

	// Monitoring still happened.
	snap := s.Snapshot()
	require.Len(t, snap.Ranking, 1)
}

func TestScheduler_PanicIsolatedPerPlugin(t *testing.T) {
	bad := &stubPlugin{name: "bad", panics: true}
	good := &stubPlugin{
		name: "good",
		opps: []domain.YieldOpportunity{{Venue: "home", YieldPct: 3.0}},
		act:  true, actions: []domain.RebalanceAction{{ID: "g1"}},
	}

	s := NewScheduler([]Plugin{bad, good}, SchedulerOptions{
		Interval: time.Hour,
		Execute:  true,
	}, testLogger())
	s.RunOnce(context.Background())

	assert.Equal(t, 1, good.executed)
	snap := s.Snapshot()
	require.Len(t, snap.Ranking, 1)
	assert.Equal(t, "home", snap.Ranking[0].Venue)
}

func TestScheduler_RunFirstCycleImmediate(t *testing.T) {
	p := &stubPlugin{name: "stub", act: true, actions: []domain.RebalanceAction{{ID: "a1"}}}

	s := NewScheduler([]Plugin{p}, SchedulerOptions{
		Interval: time.Hour, // far beyond the test deadline
		Execute:  true,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return s.Snapshot().Cycles == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestScheduler_CancelledContextSkipsCycle(t *testing.T) {
	p := &stubPlugin{name: "stub", act: true}
	s := NewScheduler([]Plugin{p}, SchedulerOptions{Interval: time.Hour, Execute: true}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)

	assert.Zero(t, p.executed)
	assert.Zero(t, s.Snapshot().Cycles)
}
