package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/store/memory"
)

func homeTestDeps(vault *fakeVault, yield float64) (Deps, *memory.PositionStore) {
	positions := memory.NewPositionStore()
	return Deps{
		Vault:     vault,
		Positions: positions,
		Observer:  fakeObserver{yields: map[string]float64{VenueHome: yield}},
		Cfg: Config{
			MinHold:           24 * time.Hour,
			YieldThresholdPct: 3.0,
			BorrowUtilization: 0.5,
			AmountCap:         1_000_000_000,
			BridgePollTimeout: time.Second,
		},
		Logger: testLogger(),
	}, positions
}

func runCycle(t *testing.T, p Plugin) []domain.RebalanceAction {
	t.Helper()
	ctx := context.Background()

	opps, err := p.Monitor(ctx)
	require.NoError(t, err)
	act, err := p.Evaluate(ctx, Rank(opps))
	require.NoError(t, err)
	if !act {
		return nil
	}
	actions, err := p.Execute(ctx)
	require.NoError(t, err)
	return actions
}

func TestHomeRebalance_EntersWithUtilizationShare(t *testing.T) {
	vault := newFakeVault()
	vault.deposits["dep1"] = 10_000
	vault.policies["dep1"] = domain.DepositorPolicy{Enabled: true, MaxBorrow: 100_000}

	deps, positions := homeTestDeps(vault, 4.0)
	h, err := NewHomeRebalance(deps)
	require.NoError(t, err)

	actions := runCycle(t, h)

	// Half the deposit is well under the policy cap.
	require.Len(t, actions, 2)
	assert.Equal(t, domain.ActionBorrow, actions[0].Kind)
	assert.Equal(t, int64(5_000), actions[0].Amount)
	assert.Equal(t, domain.ActionDeposit, actions[1].Kind)
	assert.Equal(t, int64(5_000), actions[1].Amount)

	pos, err := positions.GetActive(context.Background(), "dep1", VenueHome)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), pos.Principal)
}

func TestHomeRebalance_BorrowCappedByPolicy(t *testing.T) {
	vault := newFakeVault()
	vault.deposits["dep1"] = 10_000
	vault.policies["dep1"] = domain.DepositorPolicy{Enabled: true, MaxBorrow: 2_000}

	deps, _ := homeTestDeps(vault, 4.0)
	h, err := NewHomeRebalance(deps)
	require.NoError(t, err)

	actions := runCycle(t, h)

	require.NotEmpty(t, actions)
	assert.Equal(t, int64(2_000), actions[0].Amount)
}

func TestHomeRebalance_ResumesOutstandingBorrow(t *testing.T) {
	vault := newFakeVault()
	vault.deposits["dep1"] = 10_000
	vault.borrowed["dep1"] = 700 // prior cycle died between borrow and deposit
	vault.policies["dep1"] = domain.DepositorPolicy{Enabled: true, MaxBorrow: 100_000}

	deps, positions := homeTestDeps(vault, 4.0)
	h, err := NewHomeRebalance(deps)
	require.NoError(t, err)

	actions := runCycle(t, h)

	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionDeposit, actions[0].Kind)
	assert.Equal(t, int64(700), actions[0].Amount)
	assert.Empty(t, vault.borrowCalls)

	pos, err := positions.GetActive(context.Background(), "dep1", VenueHome)
	require.NoError(t, err)
	assert.Equal(t, int64(700), pos.Principal)
}

func TestHomeRebalance_SkipsBelowThreshold(t *testing.T) {
	vault := newFakeVault()
	vault.deposits["dep1"] = 10_000
	vault.policies["dep1"] = domain.DepositorPolicy{Enabled: true, MaxBorrow: 100_000}

	deps, _ := homeTestDeps(vault, 2.0)
	h, err := NewHomeRebalance(deps)
	require.NoError(t, err)

	actions := runCycle(t, h)
	assert.Empty(t, actions)
	assert.Empty(t, vault.borrowCalls)
}

func TestHomeRebalance_SkipsDisabledAndForeignTag(t *testing.T) {
	vault := newFakeVault()
	vault.deposits["off"] = 10_000
	vault.policies["off"] = domain.DepositorPolicy{Enabled: false, MaxBorrow: 100_000}
	vault.deposits["tagged"] = 10_000
	vault.policies["tagged"] = domain.DepositorPolicy{Enabled: true, MaxBorrow: 100_000, StrategyTag: "gateway"}

	deps, _ := homeTestDeps(vault, 4.0)
	h, err := NewHomeRebalance(deps)
	require.NoError(t, err)

	actions := runCycle(t, h)
	assert.Empty(t, actions)
}

func TestHomeRebalance_HoldGateBlocksUnwind(t *testing.T) {
	vault := newFakeVault()
	vault.deposits["dep1"] = 10_000
	vault.policies["dep1"] = domain.DepositorPolicy{Enabled: true, MaxBorrow: 100_000}

	deps, positions := homeTestDeps(vault, 4.0)
	require.NoError(t, positions.Create(context.Background(), domain.Position{
		ID: "p1", Depositor: "dep1", Venue: VenueHome,
		Principal: 5_000, PoolShares: 5_000,
		Status: domain.PositionStatusActive, OpenedAt: time.Now().UTC(),
	}))

	h, err := NewHomeRebalance(deps)
	require.NoError(t, err)

	actions := runCycle(t, h)
	assert.Empty(t, actions)

	_, err = positions.GetActive(context.Background(), "dep1", VenueHome)
	assert.NoError(t, err)
}

func TestHomeRebalance_UnwindsMaturePosition(t *testing.T) {
	vault := newFakeVault()
	vault.deposits["dep1"] = 10_000
	vault.borrowed["dep1"] = 5_000
	vault.policies["dep1"] = domain.DepositorPolicy{Enabled: true, MaxBorrow: 100_000}
	vault.withdrawReturn = 5_100

	deps, positions := homeTestDeps(vault, 4.0)
	require.NoError(t, positions.Create(context.Background(), domain.Position{
		ID: "p1", Depositor: "dep1", Venue: VenueHome,
		Principal: 5_000, PoolShares: 5_000,
		Status:   domain.PositionStatusActive,
		OpenedAt: time.Now().UTC().Add(-25 * time.Hour),
	}))

	h, err := NewHomeRebalance(deps)
	require.NoError(t, err)

	actions := runCycle(t, h)

	require.Len(t, actions, 3)
	assert.Equal(t, domain.ActionOrder, actions[0].Kind)
	assert.Equal(t, domain.ActionWithdraw, actions[1].Kind)
	assert.Equal(t, int64(5_100), actions[1].Amount)
	// Repay is capped to the outstanding borrow, not the returned amount.
	assert.Equal(t, domain.ActionRepay, actions[2].Kind)
	assert.Equal(t, int64(5_000), actions[2].Amount)

	_, err = positions.GetActive(context.Background(), "dep1", VenueHome)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
