package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// VenueHome is the venue family for on-vault rebalancing.
const VenueHome = "home"

// HomeRebalance borrows against enabled depositors' balances and supplies the
// borrowed funds into the vault's home yield reserve. No bridging is involved,
// so positions move straight between NONE and DEPOSITED.
type HomeRebalance struct {
	vault     VaultAPI
	positions domain.PositionStore
	observer  Observer
	cfg       Config
	logger    *slog.Logger

	lastYield float64
	ranked    Ranking
}

// NewHomeRebalance constructs the home-chain rebalance plugin.
func NewHomeRebalance(d Deps) (*HomeRebalance, error) {
	if d.Vault == nil || d.Positions == nil || d.Observer == nil {
		return nil, errors.New("home_rebalance: vault, positions, and observer are required")
	}
	return &HomeRebalance{
		vault:     d.Vault,
		positions: d.Positions,
		observer:  d.Observer,
		cfg:       d.Cfg,
		logger:    d.Logger.With(slog.String("plugin", "home_rebalance")),
	}, nil
}

// Name returns the plugin identifier.
func (h *HomeRebalance) Name() string { return string(KindHomeRebalance) }

// Monitor observes the home venue's reserve yield.
func (h *HomeRebalance) Monitor(ctx context.Context) ([]domain.YieldOpportunity, error) {
	o := h.observer.Observe(ctx, VenueHome, "")
	h.lastYield = o.YieldPct
	return []domain.YieldOpportunity{o}, nil
}

// Evaluate acts when a held position is past its hold gate, or when the home
// venue leads its bucket at a yield worth entering.
func (h *HomeRebalance) Evaluate(ctx context.Context, ranked Ranking) (bool, error) {
	h.ranked = ranked
	active, err := h.positions.ListActive(ctx, VenueHome)
	if err != nil {
		return false, fmt.Errorf("home_rebalance: list active: %w", err)
	}
	now := time.Now().UTC()
	for _, p := range active {
		if p.HoldRemaining(now, h.cfg.MinHold) <= 0 {
			return true, nil
		}
	}
	return ranked.Leads("", VenueHome) && h.lastYield >= h.cfg.YieldThresholdPct, nil
}

// Execute unwinds mature positions and opens new ones for eligible
// depositors. Each depositor is handled independently; a failure for one is
// logged and never blocks the rest.
func (h *HomeRebalance) Execute(ctx context.Context) ([]domain.RebalanceAction, error) {
	depositors, err := h.vault.Depositors(ctx)
	if err != nil {
		return nil, fmt.Errorf("home_rebalance: list depositors: %w", err)
	}

	var actions []domain.RebalanceAction
	for _, dep := range depositors {
		acts, err := h.executeFor(ctx, dep)
		if err != nil {
			h.logger.Warn("depositor step failed",
				slog.String("depositor", dep),
				slog.String("error", err.Error()),
			)
			continue
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

func (h *HomeRebalance) executeFor(ctx context.Context, dep string) ([]domain.RebalanceAction, error) {
	pos, err := h.positions.GetActive(ctx, dep, VenueHome)
	switch {
	case err == nil:
		return h.unwind(ctx, dep, pos)
	case errors.Is(err, domain.ErrNotFound):
		return h.enter(ctx, dep)
	default:
		return nil, fmt.Errorf("get active position: %w", err)
	}
}

// enter borrows min(policy cap, utilization share of the deposit) and
// supplies it into the home reserve.
func (h *HomeRebalance) enter(ctx context.Context, dep string) ([]domain.RebalanceAction, error) {
	policy, err := h.vault.PolicyOf(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if !policy.Enabled || !h.handles(policy.StrategyTag) {
		return nil, nil
	}
	threshold := policy.YieldThresholdPct
	if threshold == 0 {
		threshold = h.cfg.YieldThresholdPct
	}
	if h.lastYield < threshold {
		return nil, nil
	}

	// A leftover borrow with no recorded position means a prior cycle failed
	// between borrow and deposit; resume with the outstanding amount instead
	// of borrowing again.
	outstanding, err := h.vault.OutstandingBorrow(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("outstanding borrow: %w", err)
	}

	var actions []domain.RebalanceAction
	amount := outstanding
	if amount == 0 {
		deposit, err := h.vault.BalanceOf(ctx, dep)
		if err != nil {
			return nil, fmt.Errorf("balance: %w", err)
		}
		amount = minInt64(policy.MaxBorrow, int64(float64(deposit)*h.cfg.BorrowUtilization))
		if amount <= 0 {
			return nil, nil
		}
		tx, err := h.vault.BorrowOnBehalfOf(ctx, dep, amount)
		if err != nil {
			return nil, fmt.Errorf("borrow: %w", err)
		}
		actions = append(actions, newAction(domain.ActionBorrow, VenueHome, dep, amount, tx, nil))
	} else {
		h.logger.Info("resuming interrupted entry",
			slog.String("depositor", dep),
			slog.Int64("outstanding", outstanding),
		)
	}

	tx, err := h.vault.DepositFor(ctx, dep, amount)
	if err != nil {
		return actions, fmt.Errorf("deposit: %w", err)
	}
	now := time.Now().UTC()
	if err := h.positions.Create(ctx, domain.Position{
		ID:         uuid.NewString(),
		Depositor:  dep,
		Venue:      VenueHome,
		Principal:  amount,
		PoolShares: amount,
		Status:     domain.PositionStatusActive,
		OpenedAt:   now,
	}); err != nil {
		return actions, fmt.Errorf("record position: %w", err)
	}
	actions = append(actions, newAction(domain.ActionDeposit, VenueHome, dep, amount, tx, nil))
	return actions, nil
}

// unwind requests and processes the withdraw, then repays capped to the
// outstanding borrow. A position before its hold gate only logs the wait.
func (h *HomeRebalance) unwind(ctx context.Context, dep string, pos domain.Position) ([]domain.RebalanceAction, error) {
	now := time.Now().UTC()
	if rem := pos.HoldRemaining(now, h.cfg.MinHold); rem > 0 {
		h.logger.Info("hold time active, skipping return",
			slog.String("depositor", dep),
			slog.Duration("remaining", rem),
		)
		return nil, nil
	}

	reqTx, err := h.vault.RequestWithdraw(ctx, dep, pos.Principal)
	if err != nil {
		return nil, fmt.Errorf("request withdraw: %w", err)
	}
	returned, procTx, err := h.vault.ProcessWithdraw(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("process withdraw: %w", err)
	}
	actions := []domain.RebalanceAction{
		newAction(domain.ActionOrder, VenueHome, dep, pos.Principal, reqTx,
			map[string]string{"order": "withdraw_request"}),
		newAction(domain.ActionWithdraw, VenueHome, dep, returned, procTx, nil),
	}

	outstanding, err := h.vault.OutstandingBorrow(ctx, dep)
	if err != nil {
		return actions, fmt.Errorf("outstanding borrow: %w", err)
	}
	if repay := minInt64(returned, outstanding); repay > 0 {
		tx, err := h.vault.RepayOnBehalfOf(ctx, dep, repay)
		if err != nil {
			return actions, fmt.Errorf("repay: %w", err)
		}
		actions = append(actions, newAction(domain.ActionRepay, VenueHome, dep, repay, tx, nil))
	}

	if err := h.positions.Close(ctx, pos.ID); err != nil {
		return actions, fmt.Errorf("close position: %w", err)
	}
	return actions, nil
}

// handles reports whether this plugin is responsible for the policy tag.
// The home plugin takes untagged depositors.
func (h *HomeRebalance) handles(tag string) bool {
	return tag == "" || tag == domain.DefaultBucket
}

// Close is a no-op.
func (h *HomeRebalance) Close() error { return nil }

func newAction(kind domain.ActionKind, venue, dep string, amount int64, tx string, details map[string]string) domain.RebalanceAction {
	return domain.RebalanceAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Venue:     venue,
		Depositor: dep,
		Amount:    amount,
		Details:   details,
		TxRef:     tx,
		CreatedAt: time.Now().UTC(),
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
