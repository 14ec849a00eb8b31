package domain

import (
	"context"
	"time"
)

// PositionStore persists cross-venue positions. Implementations must reject
// a second active position for the same depositor and venue family with
// ErrAlreadyExists.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	GetActive(ctx context.Context, depositor, venue string) (Position, error)
	ListActive(ctx context.Context, venue string) ([]Position, error)
	UpdateAmounts(ctx context.Context, id string, principal, poolShares int64) error
	Close(ctx context.Context, id string) error
}

// PendingBridgeStore persists in-flight bridge transfers. At most one pending
// bridge per depositor and target pool.
type PendingBridgeStore interface {
	Create(ctx context.Context, b PendingBridge) error
	GetByDepositor(ctx context.Context, depositor, targetPoolKey string) (PendingBridge, error)
	List(ctx context.Context, targetPoolKey string) ([]PendingBridge, error)
	Delete(ctx context.Context, id string) error
}

// GatewayPositionStore persists unified-balance bridge positions, keyed by
// depositor and destination venue.
type GatewayPositionStore interface {
	Upsert(ctx context.Context, g GatewayPosition) error
	Get(ctx context.Context, depositor, destVenue string) (GatewayPosition, error)
	List(ctx context.Context) ([]GatewayPosition, error)
	Delete(ctx context.Context, depositor, destVenue string) error
}

// LendingPositionStore persists external lending-market supply positions,
// keyed by depositor, chain, and protocol.
type LendingPositionStore interface {
	Upsert(ctx context.Context, p LendingPosition) error
	Get(ctx context.Context, depositor, chain, protocol string) (LendingPosition, error)
	ListActive(ctx context.Context) ([]LendingPosition, error)
	Delete(ctx context.Context, depositor, chain, protocol string) error
}

// KeyStore persists sealed custodial key records. Put is insert-only and
// returns ErrAlreadyExists for a duplicate depositor, which is how the
// at-most-once generation guarantee survives concurrent ensure calls.
type KeyStore interface {
	Put(ctx context.Context, k CustodialKey) error
	Get(ctx context.Context, depositor string) (CustodialKey, error)
}

// ActionStore persists executed rebalance actions for telemetry and archival.
type ActionStore interface {
	Insert(ctx context.Context, a RebalanceAction) error
	ListRecent(ctx context.Context, depositor string, limit int) ([]RebalanceAction, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]RebalanceAction, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// YieldCache holds the last observed yield per venue so monitors can fall
// back to a stale value when the live feed is unreachable.
type YieldCache interface {
	SetYield(ctx context.Context, o YieldOpportunity) error
	GetYield(ctx context.Context, venue string) (YieldOpportunity, error)
}
