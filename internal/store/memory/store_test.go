package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

func TestPositionStore_AtMostOneActivePerVenue(t *testing.T) {
	s := NewPositionStore()
	ctx := context.Background()

	err := s.Create(ctx, domain.Position{
		ID: "p1", Depositor: "dep1", Venue: "gateway:aurora",
		Status: domain.PositionStatusActive, OpenedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	err = s.Create(ctx, domain.Position{
		ID: "p2", Depositor: "dep1", Venue: "gateway:aurora",
		Status: domain.PositionStatusActive, OpenedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// A different venue family is fine.
	err = s.Create(ctx, domain.Position{
		ID: "p3", Depositor: "dep1", Venue: "home",
		Status: domain.PositionStatusActive, OpenedAt: time.Now().UTC(),
	})
	assert.NoError(t, err)
}

func TestPositionStore_CloseFreesTheSlot(t *testing.T) {
	s := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.Position{
		ID: "p1", Depositor: "dep1", Venue: "home",
		Status: domain.PositionStatusActive, OpenedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.Close(ctx, "p1"))

	_, err := s.GetActive(ctx, "dep1", "home")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Closing twice returns not found, and a new active row is allowed.
	assert.ErrorIs(t, s.Close(ctx, "p1"), domain.ErrNotFound)
	assert.NoError(t, s.Create(ctx, domain.Position{
		ID: "p2", Depositor: "dep1", Venue: "home",
		Status: domain.PositionStatusActive, OpenedAt: time.Now().UTC(),
	}))
}

func TestPositionStore_UpdateAmounts(t *testing.T) {
	s := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.Position{
		ID: "p1", Depositor: "dep1", Venue: "home",
		Principal: 100, PoolShares: 100,
		Status: domain.PositionStatusActive, OpenedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.UpdateAmounts(ctx, "p1", 250, 240))

	pos, err := s.GetActive(ctx, "dep1", "home")
	require.NoError(t, err)
	assert.Equal(t, int64(250), pos.Principal)
	assert.Equal(t, int64(240), pos.PoolShares)

	assert.ErrorIs(t, s.UpdateAmounts(ctx, "missing", 1, 1), domain.ErrNotFound)
}

func TestPendingBridgeStore_DeleteDetectsDoubleDrain(t *testing.T) {
	s := NewPendingBridgeStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.PendingBridge{
		ID: "b1", Depositor: "dep1", TargetPoolKey: "usdc-main",
		Amount: 5_000, StartedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.Delete(ctx, "b1"))
	assert.ErrorIs(t, s.Delete(ctx, "b1"), domain.ErrNotFound)
}

func TestPendingBridgeStore_OnePerDepositorAndPool(t *testing.T) {
	s := NewPendingBridgeStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.PendingBridge{
		ID: "b1", Depositor: "dep1", TargetPoolKey: "usdc-main", Amount: 1,
	}))
	assert.ErrorIs(t, s.Create(ctx, domain.PendingBridge{
		ID: "b2", Depositor: "dep1", TargetPoolKey: "usdc-main", Amount: 2,
	}), domain.ErrAlreadyExists)

	// Another pool is a separate transit slot.
	assert.NoError(t, s.Create(ctx, domain.PendingBridge{
		ID: "b3", Depositor: "dep1", TargetPoolKey: "eth-main", Amount: 3,
	}))

	rows, err := s.List(ctx, "usdc-main")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestKeyStore_PutIsInsertOnly(t *testing.T) {
	s := NewKeyStore()
	ctx := context.Background()

	rec := domain.CustodialKey{Depositor: "dep1", Address: "0xA", EncryptedSecret: []byte{1}}
	require.NoError(t, s.Put(ctx, rec))

	rec.Address = "0xB"
	assert.ErrorIs(t, s.Put(ctx, rec), domain.ErrAlreadyExists)

	got, err := s.Get(ctx, "dep1")
	require.NoError(t, err)
	assert.Equal(t, "0xA", got.Address)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestActionStore_ListRecentAndArchivalCut(t *testing.T) {
	s := NewActionStore()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, domain.RebalanceAction{
			ID:        fmt.Sprintf("a%d", i),
			Depositor: "dep1",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	recent, err := s.ListRecent(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "a4", recent[0].ID)

	old, err := s.ListBefore(ctx, base.Add(2*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, "a0", old[0].ID)

	removed, err := s.DeleteBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rest, err := s.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestYieldCache_GetDampensToCachedSource(t *testing.T) {
	ctx := context.Background()
	c := NewYieldCache()

	require.NoError(t, c.SetYield(ctx, domain.YieldOpportunity{
		Venue: "gateway:aurora", YieldPct: 7.5, Confidence: 1.0, Source: domain.SourceLive, StrategyTag: "gateway",
	}))

	o, err := c.GetYield(ctx, "gateway:aurora")
	require.NoError(t, err)
	assert.Equal(t, 7.5, o.YieldPct)
	assert.Equal(t, 0.5, o.Confidence)
	assert.Equal(t, domain.SourceCached, o.Source)
	assert.Equal(t, "gateway", o.StrategyTag)

	_, err = c.GetYield(ctx, "gateway:base")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
