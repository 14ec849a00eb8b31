package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// PoolYield supplies borrowed funds into an external lending market under the
// depositor's custodial account. Positions are keyed depositor+chain+protocol
// so several protocols can be held at once; a failed redemption marks the
// record blocked and is retried on later cycles.
type PoolYield struct {
	vault    VaultAPI
	lending  LendingAPI
	keys     KeyProvider
	store    domain.LendingPositionStore
	observer Observer
	cfg      Config
	logger   *slog.Logger

	lastYield float64
	ranked    Ranking
}

// NewPoolYield constructs the external liquidity-pool yield plugin.
func NewPoolYield(d Deps) (*PoolYield, error) {
	if d.Vault == nil || d.Lending == nil || d.Keys == nil || d.LendingPositions == nil || d.Observer == nil {
		return nil, errors.New("pool_yield: vault, lending, keys, store, and observer are required")
	}
	return &PoolYield{
		vault:    d.Vault,
		lending:  d.Lending,
		keys:     d.Keys,
		store:    d.LendingPositions,
		observer: d.Observer,
		cfg:      d.Cfg,
		logger:   d.Logger.With(slog.String("plugin", "pool_yield")),
	}, nil
}

// Name returns the plugin identifier.
func (p *PoolYield) Name() string { return string(KindPoolYield) }

// venue returns the venue string, e.g. "base:aave".
func (p *PoolYield) venue() string { return p.cfg.LendingChain + ":" + p.cfg.LendingProtocol }

// Monitor observes the lending market's supply rate.
func (p *PoolYield) Monitor(ctx context.Context) ([]domain.YieldOpportunity, error) {
	o := p.observer.Observe(ctx, p.venue(), p.cfg.LendingTag)
	p.lastYield = o.YieldPct
	return []domain.YieldOpportunity{o}, nil
}

// Evaluate acts when any held supply is past the hold gate or blocked, or
// when the market leads its bucket at an attractive rate.
func (p *PoolYield) Evaluate(ctx context.Context, ranked Ranking) (bool, error) {
	p.ranked = ranked
	held, err := p.store.ListActive(ctx)
	if err != nil {
		return false, fmt.Errorf("pool_yield: list positions: %w", err)
	}
	now := time.Now().UTC()
	for _, pos := range held {
		if pos.Status == domain.LendingStatusBlocked {
			return true, nil
		}
		if now.Sub(pos.OpenedAt) >= p.cfg.MinHold {
			return true, nil
		}
	}
	return ranked.Leads(p.cfg.LendingTag, p.venue()) && p.lastYield >= p.cfg.YieldThresholdPct, nil
}

// Execute redeems mature or blocked supplies first, then opens new ones.
func (p *PoolYield) Execute(ctx context.Context) ([]domain.RebalanceAction, error) {
	var actions []domain.RebalanceAction

	redeemed, err := p.redeemMature(ctx)
	if err != nil {
		return actions, err
	}
	actions = append(actions, redeemed...)

	entered, err := p.enterNew(ctx)
	if err != nil {
		return actions, err
	}
	actions = append(actions, entered...)

	return actions, nil
}

func (p *PoolYield) redeemMature(ctx context.Context) ([]domain.RebalanceAction, error) {
	held, err := p.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool_yield: list positions: %w", err)
	}

	now := time.Now().UTC()
	var actions []domain.RebalanceAction
	for _, pos := range held {
		if pos.Chain != p.cfg.LendingChain || pos.Protocol != p.cfg.LendingProtocol {
			continue
		}
		if pos.Status != domain.LendingStatusBlocked && now.Sub(pos.OpenedAt) < p.cfg.MinHold {
			p.logger.Info("hold time active, skipping redeem",
				slog.String("depositor", pos.Depositor),
				slog.Duration("remaining", pos.OpenedAt.Add(p.cfg.MinHold).Sub(now)),
			)
			continue
		}
		acts, err := p.redeemOne(ctx, pos)
		if err != nil {
			p.logger.Warn("redeem failed, marking blocked",
				slog.String("depositor", pos.Depositor),
				slog.String("error", err.Error()),
			)
			pos.Status = domain.LendingStatusBlocked
			pos.UpdatedAt = now
			if uerr := p.store.Upsert(ctx, pos); uerr != nil {
				p.logger.Warn("mark blocked failed", slog.String("error", uerr.Error()))
			}
			continue
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

func (p *PoolYield) redeemOne(ctx context.Context, pos domain.LendingPosition) ([]domain.RebalanceAction, error) {
	key, err := p.keys.EnsureKey(ctx, pos.Depositor)
	if err != nil {
		return nil, fmt.Errorf("resolve key: %w", err)
	}
	returned, tx, err := p.lending.Redeem(ctx, key.Address, pos.Protocol, pos.Asset, pos.Amount)
	if err != nil {
		return nil, fmt.Errorf("redeem: %w", err)
	}
	actions := []domain.RebalanceAction{
		newAction(domain.ActionWithdraw, p.venue(), pos.Depositor, returned, tx,
			map[string]string{"protocol": pos.Protocol, "asset": pos.Asset}),
	}

	outstanding, err := p.vault.OutstandingBorrow(ctx, pos.Depositor)
	if err != nil {
		return actions, fmt.Errorf("outstanding borrow: %w", err)
	}
	if repay := minInt64(returned, outstanding); repay > 0 {
		rtx, err := p.vault.RepayOnBehalfOf(ctx, pos.Depositor, repay)
		if err != nil {
			return actions, fmt.Errorf("repay: %w", err)
		}
		actions = append(actions, newAction(domain.ActionRepay, VenueHome, pos.Depositor, repay, rtx, nil))
	}

	if err := p.store.Delete(ctx, pos.Depositor, pos.Chain, pos.Protocol); err != nil {
		return actions, fmt.Errorf("delete position: %w", err)
	}
	return actions, nil
}

func (p *PoolYield) enterNew(ctx context.Context) ([]domain.RebalanceAction, error) {
	if !p.ranked.Leads(p.cfg.LendingTag, p.venue()) {
		return nil, nil
	}

	depositors, err := p.vault.Depositors(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool_yield: list depositors: %w", err)
	}

	var actions []domain.RebalanceAction
	for _, dep := range depositors {
		acts, err := p.enterOne(ctx, dep)
		if err != nil {
			p.logger.Warn("entry failed",
				slog.String("depositor", dep),
				slog.String("error", err.Error()),
			)
			continue
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

func (p *PoolYield) enterOne(ctx context.Context, dep string) ([]domain.RebalanceAction, error) {
	policy, err := p.vault.PolicyOf(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if !policy.Enabled || policy.StrategyTag != p.cfg.LendingTag {
		return nil, nil
	}
	threshold := policy.YieldThresholdPct
	if threshold == 0 {
		threshold = p.cfg.YieldThresholdPct
	}
	if p.lastYield < threshold {
		return nil, nil
	}

	if _, err := p.store.Get(ctx, dep, p.cfg.LendingChain, p.cfg.LendingProtocol); err == nil {
		return nil, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get position: %w", err)
	}

	key, err := p.keys.EnsureKey(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("ensure key: %w", err)
	}

	outstanding, err := p.vault.OutstandingBorrow(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("outstanding borrow: %w", err)
	}

	var actions []domain.RebalanceAction
	amount := outstanding
	if amount == 0 {
		deposit, err := p.vault.BalanceOf(ctx, dep)
		if err != nil {
			return nil, fmt.Errorf("balance: %w", err)
		}
		amount = minInt64(policy.MaxBorrow, int64(float64(deposit)*p.cfg.BorrowUtilization))
		amount = minInt64(amount, p.cfg.AmountCap)
		if amount <= 0 {
			return nil, nil
		}
		tx, err := p.vault.BorrowOnBehalfOf(ctx, dep, amount)
		if err != nil {
			return nil, fmt.Errorf("borrow: %w", err)
		}
		actions = append(actions, newAction(domain.ActionBorrow, VenueHome, dep, amount, tx, nil))
	} else {
		p.logger.Info("resuming interrupted supply",
			slog.String("depositor", dep),
			slog.Int64("outstanding", outstanding),
		)
		amount = minInt64(amount, p.cfg.AmountCap)
	}

	tx, err := p.lending.Supply(ctx, key.Address, p.cfg.LendingProtocol, p.cfg.LendingAsset, amount)
	if err != nil {
		return actions, fmt.Errorf("supply: %w", err)
	}
	now := time.Now().UTC()
	if err := p.store.Upsert(ctx, domain.LendingPosition{
		Depositor: dep,
		Chain:     p.cfg.LendingChain,
		Protocol:  p.cfg.LendingProtocol,
		Asset:     p.cfg.LendingAsset,
		Amount:    amount,
		YieldPct:  p.lastYield,
		Status:    domain.LendingStatusActive,
		OpenedAt:  now,
		UpdatedAt: now,
	}); err != nil {
		return actions, fmt.Errorf("record position: %w", err)
	}
	actions = append(actions, newAction(domain.ActionDeposit, p.venue(), dep, amount, tx,
		map[string]string{"protocol": p.cfg.LendingProtocol, "asset": p.cfg.LendingAsset}))
	return actions, nil
}

// Close is a no-op.
func (p *PoolYield) Close() error { return nil }
