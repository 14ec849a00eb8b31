package strategy

import (
	"context"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// Plugin is the contract every venue adapter implements.
//
// Monitor is pure observation and must not mutate shared state; when a live
// data source is unavailable it degrades to a cached or synthetic value
// instead of failing the cycle. Evaluate decides whether the plugin should
// act this cycle, and must also return true whenever the plugin holds
// positions that are independently ready for return, regardless of the yield
// comparison. Execute performs the multi-step transitions and must be
// idempotent with respect to already-recorded Position and PendingBridge
// state, so a re-run after a partial failure never double-spends.
type Plugin interface {
	Name() string
	Monitor(ctx context.Context) ([]domain.YieldOpportunity, error)
	Evaluate(ctx context.Context, ranked Ranking) (bool, error)
	Execute(ctx context.Context) ([]domain.RebalanceAction, error)
	Close() error
}

// VaultAPI is the slice of the vault capability contract the plugins consume.
type VaultAPI interface {
	Depositors(ctx context.Context) ([]string, error)
	BalanceOf(ctx context.Context, depositor string) (int64, error)
	PolicyOf(ctx context.Context, depositor string) (domain.DepositorPolicy, error)
	OutstandingBorrow(ctx context.Context, depositor string) (int64, error)
	BorrowOnBehalfOf(ctx context.Context, depositor string, amount int64) (string, error)
	RepayOnBehalfOf(ctx context.Context, depositor string, amount int64) (string, error)
	DepositFor(ctx context.Context, depositor string, amount int64) (string, error)
	RequestWithdraw(ctx context.Context, depositor string, amount int64) (string, error)
	ProcessWithdraw(ctx context.Context, depositor string) (int64, string, error)
	Stats(ctx context.Context) (domain.VaultStats, error)
}

// GatewayAPI is the unified-balance bridge protocol client.
type GatewayAPI interface {
	Initiate(ctx context.Context, depositor, destAddress string, amount int64, targetPoolKey string) (string, error)
	UnifiedBalance(ctx context.Context, destAddress string) (int64, error)
	ReleaseToPool(ctx context.Context, destAddress, poolKey string, amount int64) (string, error)
	RedeemFromPool(ctx context.Context, destAddress, poolKey string, shares int64) (int64, error)
	ReturnToHome(ctx context.Context, destAddress string, amount int64) (string, error)
	ProtocolFee(ctx context.Context) (int64, error)
}

// LendingAPI is the external lending-market client.
type LendingAPI interface {
	Supply(ctx context.Context, account, protocol, asset string, amount int64) (string, error)
	Redeem(ctx context.Context, account, protocol, asset string, amount int64) (int64, string, error)
	SupplyBalance(ctx context.Context, account, protocol, asset string) (int64, error)
}

// KeyProvider resolves custodial keys for secondary venues.
type KeyProvider interface {
	EnsureKey(ctx context.Context, depositor string) (domain.CustodialKey, error)
}

// Observer produces one yield observation per venue, handling the degraded
// cached/synthetic fallbacks internally.
type Observer interface {
	Observe(ctx context.Context, venue, strategyTag string) domain.YieldOpportunity
}
