package domain

import "time"

// PositionStatus tracks whether a cross-venue position is live.
type PositionStatus string

const (
	PositionStatusActive PositionStatus = "active"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is the durable record of a depositor's funds parked at a venue
// family. A depositor holds at most one active Position per venue family;
// creation follows a successful deposit into the venue and closing follows
// the matching return-and-repay sequence.
type Position struct {
	ID          string
	Depositor   string
	Venue       string // venue family, e.g. "home", "gateway:aurora"
	Principal   int64  // minor units moved into the venue
	PoolShares  int64  // venue-side share units received for the deposit
	BridgeTxRef string
	Status      PositionStatus
	OpenedAt    time.Time
	ClosedAt    *time.Time
}

// HoldRemaining returns how much of the minimum hold time is still left.
// Zero or negative means the position may be returned.
func (p Position) HoldRemaining(now time.Time, minHold time.Duration) time.Duration {
	return p.OpenedAt.Add(minHold).Sub(now)
}

// PendingBridge represents funds in transit between venues through an
// asynchronous bridge. Arrival is observed by polling the destination
// balance; the record exists only between successful bridge initiation and
// the confirmed follow-on deposit, and is removed exactly once.
type PendingBridge struct {
	ID            string
	Depositor     string
	DestAddress   string
	Amount        int64 // expected minor units at the destination
	TargetPoolKey string
	ExpectedAPY   float64
	TxRef         string
	StartedAt     time.Time
}

// GatewayStatus tracks a unified-balance bridge position.
type GatewayStatus string

const (
	GatewayStatusActive  GatewayStatus = "active"
	GatewayStatusBlocked GatewayStatus = "blocked"
)

// GatewayPosition records funds sitting in the cross-chain unified balance,
// typically because the release into the destination pool failed and will be
// retried. LastError carries the most recent failure for operators.
type GatewayPosition struct {
	Depositor   string
	DestVenue   string
	Amount      int64
	Status      GatewayStatus
	LastAttempt time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LendingStatus tracks an external lending-market supply position.
type LendingStatus string

const (
	LendingStatusActive  LendingStatus = "active"
	LendingStatusBlocked LendingStatus = "blocked"
)

// LendingPosition records a supply position in an external lending market.
// Keyed by depositor+chain+protocol so one depositor can hold positions in
// several protocols at once.
type LendingPosition struct {
	Depositor string
	Chain     string
	Protocol  string
	Asset     string
	Amount    int64
	YieldPct  float64
	Status    LendingStatus
	OpenedAt  time.Time
	UpdatedAt time.Time
}
