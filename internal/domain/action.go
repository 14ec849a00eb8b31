package domain

import "time"

// ActionKind identifies the on-chain operation an executed action performed.
type ActionKind string

const (
	ActionBorrow   ActionKind = "borrow"
	ActionBridge   ActionKind = "bridge"
	ActionDeposit  ActionKind = "deposit"
	ActionOrder    ActionKind = "order"
	ActionWithdraw ActionKind = "withdraw"
	ActionRepay    ActionKind = "repay"
)

// RebalanceAction records one executed state transition. Actions are immutable
// once recorded; amounts are integer minor units of the settlement asset.
type RebalanceAction struct {
	ID        string
	Kind      ActionKind
	Venue     string
	Depositor string
	Amount    int64
	Details   map[string]string
	TxRef     string
	CreatedAt time.Time
}
