package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

func TestSimGateway_ShortBalanceIsInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	g := newSimGateway()

	_, err := g.ReleaseToPool(ctx, "addr-1", "usdc-main", 1_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = g.RedeemFromPool(ctx, "addr-1", "usdc-main", 1_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = g.ReturnToHome(ctx, "addr-1", 1_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestSimLending_RedeemAboveSupplyIsInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := newSimLending()

	_, err := l.Supply(ctx, "acct", "burrow", "usdc", 500)
	require.NoError(t, err)

	_, _, err = l.Redeem(ctx, "acct", "burrow", "usdc", 1_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}
