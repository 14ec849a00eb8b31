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

// GatewayYield moves borrowed funds to an external venue through the
// unified-balance bridge, deposits them into the target pool, and brings them
// home after the hold gate. Bridge arrival is observed by polling the
// destination's unified balance, never by callback, so the plugin's execute
// is a drain/return/enter sequence over durable PendingBridge and Position
// records and is safe to re-run after any partial failure.
type GatewayYield struct {
	vault     VaultAPI
	gateway   GatewayAPI
	keys      KeyProvider
	positions domain.PositionStore
	pending   domain.PendingBridgeStore
	parked    domain.GatewayPositionStore
	observer  Observer
	cfg       Config
	logger    *slog.Logger

	lastYield float64
	ranked    Ranking
}

// NewGatewayYield constructs the cross-chain gateway yield plugin.
func NewGatewayYield(d Deps) (*GatewayYield, error) {
	if d.Vault == nil || d.Gateway == nil || d.Keys == nil {
		return nil, errors.New("gateway_yield: vault, gateway, and keys are required")
	}
	if d.Positions == nil || d.PendingBridges == nil || d.GatewayPositions == nil || d.Observer == nil {
		return nil, errors.New("gateway_yield: stores and observer are required")
	}
	return &GatewayYield{
		vault:     d.Vault,
		gateway:   d.Gateway,
		keys:      d.Keys,
		positions: d.Positions,
		pending:   d.PendingBridges,
		parked:    d.GatewayPositions,
		observer:  d.Observer,
		cfg:       d.Cfg,
		logger:    d.Logger.With(slog.String("plugin", "gateway_yield")),
	}, nil
}

// Name returns the plugin identifier.
func (g *GatewayYield) Name() string { return string(KindGatewayYield) }

// venue returns the venue family string, e.g. "gateway:aurora".
func (g *GatewayYield) venue() string { return "gateway:" + g.cfg.GatewayVenue }

// Monitor observes the target pool's yield on the destination venue.
func (g *GatewayYield) Monitor(ctx context.Context) ([]domain.YieldOpportunity, error) {
	o := g.observer.Observe(ctx, g.venue(), g.cfg.GatewayTag)
	g.lastYield = o.YieldPct
	return []domain.YieldOpportunity{o}, nil
}

// Evaluate acts when bridges are awaiting arrival, when a position is past
// its hold gate, or when the venue leads its bucket at an attractive yield.
func (g *GatewayYield) Evaluate(ctx context.Context, ranked Ranking) (bool, error) {
	g.ranked = ranked

	pendings, err := g.pending.List(ctx, g.cfg.TargetPoolKey)
	if err != nil {
		return false, fmt.Errorf("gateway_yield: list pending: %w", err)
	}
	ready, err := g.redemptionReady(ctx, pendings)
	if err != nil {
		return false, err
	}
	if len(pendings) > 0 || ready {
		return true, nil
	}
	return ranked.Leads(g.cfg.GatewayTag, g.venue()) && g.lastYield >= g.cfg.YieldThresholdPct, nil
}

// redemptionReady reports whether any held position has cleared the minimum
// hold time. The hold clock for a bridge that has not arrived yet runs from
// StartedAt; positions and pendings still inside the gate log their
// remaining wait.
func (g *GatewayYield) redemptionReady(ctx context.Context, pendings []domain.PendingBridge) (bool, error) {
	active, err := g.positions.ListActive(ctx, g.venue())
	if err != nil {
		return false, fmt.Errorf("gateway_yield: list active: %w", err)
	}
	now := time.Now().UTC()
	for _, b := range pendings {
		if rem := b.StartedAt.Add(g.cfg.MinHold).Sub(now); rem > 0 {
			g.logger.Info("hold time active",
				slog.String("depositor", b.Depositor),
				slog.Duration("remaining", rem),
			)
		}
	}
	ready := false
	for _, p := range active {
		if rem := p.HoldRemaining(now, g.cfg.MinHold); rem > 0 {
			g.logger.Info("hold time active",
				slog.String("depositor", p.Depositor),
				slog.Duration("remaining", rem),
			)
			continue
		}
		ready = true
	}
	return ready, nil
}

// Execute drains arrived bridges, returns mature positions, then opens new
// bridges for eligible depositors, in that order.
func (g *GatewayYield) Execute(ctx context.Context) ([]domain.RebalanceAction, error) {
	var actions []domain.RebalanceAction

	drained, err := g.drainPending(ctx)
	if err != nil {
		return actions, err
	}
	actions = append(actions, drained...)

	returned, err := g.returnMature(ctx)
	if err != nil {
		return actions, err
	}
	actions = append(actions, returned...)

	entered, err := g.enterNew(ctx)
	if err != nil {
		return actions, err
	}
	actions = append(actions, entered...)

	return actions, nil
}

// drainPending polls each pending bridge's destination balance and, on
// arrival, releases the funds into the target pool. The pending record is
// deleted exactly once, only after the follow-on deposit succeeded. A poll
// timeout or a short balance leaves the record pending for a later cycle.
func (g *GatewayYield) drainPending(ctx context.Context) ([]domain.RebalanceAction, error) {
	pendings, err := g.pending.List(ctx, g.cfg.TargetPoolKey)
	if err != nil {
		return nil, fmt.Errorf("gateway_yield: list pending: %w", err)
	}

	var actions []domain.RebalanceAction
	for _, b := range pendings {
		pollCtx, cancel := context.WithTimeout(ctx, g.cfg.BridgePollTimeout)
		observed, err := g.gateway.UnifiedBalance(pollCtx, b.DestAddress)
		cancel()
		if err != nil {
			// Timeout is not failure: the transfer is simply not observable
			// yet. The record stays pending.
			g.logger.Info("arrival poll did not complete",
				slog.String("depositor", b.Depositor),
				slog.String("error", err.Error()),
			)
			continue
		}
		if observed < b.Amount {
			g.logger.Info("bridge still in transit",
				slog.String("depositor", b.Depositor),
				slog.Int64("observed", observed),
				slog.Int64("expected", b.Amount),
			)
			continue
		}

		amount := minInt64(minInt64(b.Amount, observed), g.cfg.AmountCap)
		tx, err := g.gateway.ReleaseToPool(ctx, b.DestAddress, b.TargetPoolKey, amount)
		if err != nil {
			// Funds arrived but the pool release failed: park them as a
			// blocked gateway position and retry next cycle.
			g.markBlocked(ctx, b, err)
			continue
		}

		now := time.Now().UTC()
		err = g.positions.Create(ctx, domain.Position{
			ID:          uuid.NewString(),
			Depositor:   b.Depositor,
			Venue:       g.venue(),
			Principal:   amount,
			PoolShares:  amount,
			BridgeTxRef: b.TxRef,
			Status:      domain.PositionStatusActive,
			OpenedAt:    now,
		})
		if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return actions, fmt.Errorf("gateway_yield: record position for %s: %w", b.Depositor, err)
		}
		if err := g.pending.Delete(ctx, b.ID); err != nil {
			return actions, fmt.Errorf("gateway_yield: delete pending %s: %w", b.ID, err)
		}
		_ = g.parked.Delete(ctx, b.Depositor, g.cfg.GatewayVenue)

		actions = append(actions, newAction(domain.ActionDeposit, g.venue(), b.Depositor, amount, tx,
			map[string]string{"pool": b.TargetPoolKey}))
	}
	return actions, nil
}

func (g *GatewayYield) markBlocked(ctx context.Context, b domain.PendingBridge, cause error) {
	now := time.Now().UTC()
	if err := g.parked.Upsert(ctx, domain.GatewayPosition{
		Depositor:   b.Depositor,
		DestVenue:   g.cfg.GatewayVenue,
		Amount:      b.Amount,
		Status:      domain.GatewayStatusBlocked,
		LastAttempt: now,
		LastError:   cause.Error(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		g.logger.Warn("record blocked gateway position failed",
			slog.String("depositor", b.Depositor),
			slog.String("error", err.Error()),
		)
	}
	g.logger.Warn("pool release failed, funds parked in unified balance",
		slog.String("depositor", b.Depositor),
		slog.String("error", cause.Error()),
	)
}

// returnMature redeems positions past the hold gate, bridges the funds home
// with the fee clamp applied, and repays capped to the outstanding borrow.
func (g *GatewayYield) returnMature(ctx context.Context) ([]domain.RebalanceAction, error) {
	active, err := g.positions.ListActive(ctx, g.venue())
	if err != nil {
		return nil, fmt.Errorf("gateway_yield: list active: %w", err)
	}

	now := time.Now().UTC()
	var actions []domain.RebalanceAction
	for _, pos := range active {
		if rem := pos.HoldRemaining(now, g.cfg.MinHold); rem > 0 {
			g.logger.Info("hold time active, skipping return",
				slog.String("depositor", pos.Depositor),
				slog.Duration("remaining", rem),
			)
			continue
		}
		acts, err := g.returnOne(ctx, pos)
		if err != nil {
			g.logger.Warn("return failed, will retry",
				slog.String("depositor", pos.Depositor),
				slog.String("error", err.Error()),
			)
			continue
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

func (g *GatewayYield) returnOne(ctx context.Context, pos domain.Position) ([]domain.RebalanceAction, error) {
	key, err := g.keys.EnsureKey(ctx, pos.Depositor)
	if err != nil {
		return nil, fmt.Errorf("resolve key: %w", err)
	}

	redeemed, err := g.gateway.RedeemFromPool(ctx, key.Address, g.cfg.TargetPoolKey, pos.PoolShares)
	if err != nil {
		return nil, fmt.Errorf("redeem: %w", err)
	}
	actions := []domain.RebalanceAction{
		newAction(domain.ActionOrder, g.venue(), pos.Depositor, pos.PoolShares, "",
			map[string]string{"order": "redeem", "pool": g.cfg.TargetPoolKey}),
	}

	// Fee clamp: the amount sent home is reduced so the unified balance can
	// still cover the destination-side protocol fee.
	fee, err := g.gateway.ProtocolFee(ctx)
	if err != nil {
		return actions, fmt.Errorf("protocol fee: %w", err)
	}
	unified, err := g.gateway.UnifiedBalance(ctx, key.Address)
	if err != nil {
		return actions, fmt.Errorf("unified balance: %w", err)
	}
	ret := minInt64(redeemed, unified-fee)
	if ret <= 0 {
		g.logger.Info("return amount non-positive after fee clamp, retrying next cycle",
			slog.String("depositor", pos.Depositor),
			slog.Int64("redeemed", redeemed),
			slog.Int64("unified", unified),
			slog.Int64("fee", fee),
		)
		return actions, nil
	}

	tx, err := g.gateway.ReturnToHome(ctx, key.Address, ret)
	if err != nil {
		return actions, fmt.Errorf("return transfer: %w", err)
	}
	actions = append(actions, newAction(domain.ActionBridge, g.venue(), pos.Depositor, ret, tx,
		map[string]string{"direction": "return"}))

	outstanding, err := g.vault.OutstandingBorrow(ctx, pos.Depositor)
	if err != nil {
		return actions, fmt.Errorf("outstanding borrow: %w", err)
	}
	if repay := minInt64(ret, outstanding); repay > 0 {
		rtx, err := g.vault.RepayOnBehalfOf(ctx, pos.Depositor, repay)
		if err != nil {
			return actions, fmt.Errorf("repay: %w", err)
		}
		actions = append(actions, newAction(domain.ActionRepay, VenueHome, pos.Depositor, repay, rtx, nil))
	}

	if err := g.positions.Close(ctx, pos.ID); err != nil {
		return actions, fmt.Errorf("close position: %w", err)
	}
	return actions, nil
}

// enterNew borrows and bridges for policy-enabled depositors that hold
// neither an active position nor a pending bridge. The PendingBridge record
// is written only after the source-side transfer succeeded.
func (g *GatewayYield) enterNew(ctx context.Context) ([]domain.RebalanceAction, error) {
	if !g.ranked.Leads(g.cfg.GatewayTag, g.venue()) {
		return nil, nil
	}

	depositors, err := g.vault.Depositors(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway_yield: list depositors: %w", err)
	}

	var actions []domain.RebalanceAction
	for _, dep := range depositors {
		acts, err := g.enterOne(ctx, dep)
		if err != nil {
			g.logger.Warn("entry failed",
				slog.String("depositor", dep),
				slog.String("error", err.Error()),
			)
			continue
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

func (g *GatewayYield) enterOne(ctx context.Context, dep string) ([]domain.RebalanceAction, error) {
	policy, err := g.vault.PolicyOf(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if !policy.Enabled || policy.StrategyTag != g.cfg.GatewayTag {
		return nil, nil
	}
	threshold := policy.YieldThresholdPct
	if threshold == 0 {
		threshold = g.cfg.YieldThresholdPct
	}
	if g.lastYield < threshold {
		return nil, nil
	}

	if _, err := g.positions.GetActive(ctx, dep, g.venue()); err == nil {
		return nil, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get active: %w", err)
	}
	if _, err := g.pending.GetByDepositor(ctx, dep, g.cfg.TargetPoolKey); err == nil {
		return nil, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get pending: %w", err)
	}

	key, err := g.keys.EnsureKey(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("ensure key: %w", err)
	}

	outstanding, err := g.vault.OutstandingBorrow(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("outstanding borrow: %w", err)
	}

	var actions []domain.RebalanceAction
	amount := outstanding
	if amount == 0 {
		deposit, err := g.vault.BalanceOf(ctx, dep)
		if err != nil {
			return nil, fmt.Errorf("balance: %w", err)
		}
		amount = minInt64(policy.MaxBorrow, int64(float64(deposit)*g.cfg.BorrowUtilization))
		amount = minInt64(amount, g.cfg.AmountCap)
		if amount <= 0 {
			return nil, nil
		}
		tx, err := g.vault.BorrowOnBehalfOf(ctx, dep, amount)
		if err != nil {
			return nil, fmt.Errorf("borrow: %w", err)
		}
		actions = append(actions, newAction(domain.ActionBorrow, VenueHome, dep, amount, tx, nil))
	} else {
		g.logger.Info("resuming interrupted bridge entry",
			slog.String("depositor", dep),
			slog.Int64("outstanding", outstanding),
		)
		amount = minInt64(amount, g.cfg.AmountCap)
	}

	tx, err := g.gateway.Initiate(ctx, dep, key.Address, amount, g.cfg.TargetPoolKey)
	if err != nil {
		// No record is written: the borrow is resumed next cycle through the
		// outstanding-borrow check.
		return actions, fmt.Errorf("bridge initiate: %w", err)
	}
	if err := g.pending.Create(ctx, domain.PendingBridge{
		ID:            uuid.NewString(),
		Depositor:     dep,
		DestAddress:   key.Address,
		Amount:        amount,
		TargetPoolKey: g.cfg.TargetPoolKey,
		ExpectedAPY:   g.lastYield,
		TxRef:         tx,
		StartedAt:     time.Now().UTC(),
	}); err != nil {
		return actions, fmt.Errorf("record pending bridge: %w", err)
	}
	actions = append(actions, newAction(domain.ActionBridge, g.venue(), dep, amount, tx,
		map[string]string{"direction": "outbound", "dest": key.Address}))
	return actions, nil
}

// Close is a no-op.
func (g *GatewayYield) Close() error { return nil }
