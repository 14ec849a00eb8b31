package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	vpcrypto "github.com/vaultpilot/vaultpilot/internal/crypto"
	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/feeds"
	"github.com/vaultpilot/vaultpilot/internal/keystore"
	"github.com/vaultpilot/vaultpilot/internal/store/memory"
	"github.com/vaultpilot/vaultpilot/internal/strategy"
)

// dryRunCycles bounds a dry run to a handful of cycles: one to enter, one to
// drain the instant bridges, one to show the steady state.
const dryRunCycles = 3

// DryRunMode exercises the full rebalance loop against in-memory stores and
// deterministic venue simulators. Nothing leaves the process; the run prints
// every action the agent would have taken and exits.
func (a *App) DryRunMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting dry run", slog.Int("cycles", dryRunCycles))

	deps, err := a.simDependencies()
	if err != nil {
		return fmt.Errorf("dry run: %w", err)
	}

	sched, err := a.buildScheduler(deps, true)
	if err != nil {
		return fmt.Errorf("dry run: %w", err)
	}
	defer sched.Close()

	for i := 0; i < dryRunCycles; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sched.RunOnce(ctx)
	}

	snap := sched.Snapshot()
	a.logger.InfoContext(ctx, "dry run complete",
		slog.Uint64("cycles", snap.Cycles),
		slog.Int("signals", len(snap.Ranking)),
		slog.Int("last_actions", len(snap.LastActions)),
	)
	return nil
}

// simDependencies assembles the dependency bundle for a dry run: memory
// stores, venue simulators, and a synthetic-only observer.
func (a *App) simDependencies() (*Dependencies, error) {
	cfg := a.cfg

	// The configured master key is used when present so custody behaves as
	// it would in production; otherwise an ephemeral key is generated, since
	// dry-run state is discarded anyway.
	masterKey, err := vpcrypto.DeriveMasterKey(cfg.Keystore.MasterKeyHex, cfg.Keystore.Passphrase, cfg.Keystore.Salt)
	if err != nil {
		return nil, err
	}
	if masterKey == nil {
		masterKey = make([]byte, vpcrypto.MasterKeyLen)
		if _, err := rand.Read(masterKey); err != nil {
			return nil, fmt.Errorf("ephemeral master key: %w", err)
		}
	}

	records := memory.NewKeyStore()
	cache := memory.NewYieldCache()

	// Seed yields so the synthetic observer sees each venue above and below
	// the default threshold.
	baseline := map[string]float64{strategy.VenueHome: 1.5}
	baseline["gateway:"+cfg.Gateway.Venue] = cfg.Gateway.SyntheticYield
	baseline[cfg.Lending.Chain+":"+cfg.Lending.Protocol] = cfg.Agent.YieldThresholdPct + 0.5
	for venue, pct := range cfg.Feeds.SyntheticYield {
		baseline[venue] = pct
	}

	deps := &Dependencies{
		Positions:        memory.NewPositionStore(),
		PendingBridges:   memory.NewPendingBridgeStore(),
		GatewayPositions: memory.NewGatewayPositionStore(),
		LendingPositions: memory.NewLendingPositionStore(),
		KeyRecords:       records,
		Actions:          memory.NewActionStore(),
		YieldCache:       cache,
		Vault:            newSimVault(cfg.Gateway.StrategyTag, cfg.Lending.StrategyTag),
		Gateway:          newSimGateway(),
		Lending:          newSimLending(),
		Keystore:         keystore.New(masterKey, records, a.logger),
		Observer:         feeds.NewObserver(nil, cache, baseline, cfg.Feeds.FallbackYield, a.logger),
	}
	return deps, nil
}

// simVault is an in-memory stand-in for the vault capability contract.
type simVault struct {
	mu       sync.Mutex
	deposits map[string]int64
	borrowed map[string]int64
	policies map[string]domain.DepositorPolicy
	reserve  int64
	seq      int
}

func newSimVault(gatewayTag, lendingTag string) *simVault {
	return &simVault{
		deposits: map[string]int64{
			"0x1000000000000000000000000000000000000001": 5_000_000_000,
			"0x2000000000000000000000000000000000000002": 12_000_000_000,
			"0x3000000000000000000000000000000000000003": 800_000_000,
		},
		borrowed: map[string]int64{},
		policies: map[string]domain.DepositorPolicy{
			"0x1000000000000000000000000000000000000001": {
				YieldThresholdPct: 2.0, MaxBorrow: 2_000_000_000, Enabled: true, StrategyTag: gatewayTag,
			},
			"0x2000000000000000000000000000000000000002": {
				YieldThresholdPct: 3.0, MaxBorrow: 4_000_000_000, Enabled: true, StrategyTag: lendingTag,
			},
			"0x3000000000000000000000000000000000000003": {
				Enabled: false,
			},
		},
	}
}

func (v *simVault) txRef() string {
	v.seq++
	return fmt.Sprintf("sim-vault-%04d", v.seq)
}

func (v *simVault) Depositors(ctx context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.deposits))
	for dep := range v.deposits {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out, nil
}

func (v *simVault) BalanceOf(ctx context.Context, depositor string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deposits[depositor], nil
}

func (v *simVault) PolicyOf(ctx context.Context, depositor string) (domain.DepositorPolicy, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.policies[depositor], nil
}

func (v *simVault) OutstandingBorrow(ctx context.Context, depositor string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.borrowed[depositor], nil
}

func (v *simVault) BorrowOnBehalfOf(ctx context.Context, depositor string, amount int64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.borrowed[depositor] += amount
	return v.txRef(), nil
}

func (v *simVault) RepayOnBehalfOf(ctx context.Context, depositor string, amount int64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount > v.borrowed[depositor] {
		amount = v.borrowed[depositor]
	}
	v.borrowed[depositor] -= amount
	return v.txRef(), nil
}

func (v *simVault) DepositFor(ctx context.Context, depositor string, amount int64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reserve += amount
	return v.txRef(), nil
}

func (v *simVault) RequestWithdraw(ctx context.Context, depositor string, amount int64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txRef(), nil
}

func (v *simVault) ProcessWithdraw(ctx context.Context, depositor string) (int64, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	amount := v.reserve
	v.reserve = 0
	return amount, v.txRef(), nil
}

func (v *simVault) Stats(ctx context.Context) (domain.VaultStats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var s domain.VaultStats
	for _, d := range v.deposits {
		s.TVL += d
	}
	for _, b := range v.borrowed {
		s.TotalBorrowed += b
	}
	return s, nil
}

// simGateway settles bridges instantly: the full amount is visible in the
// unified balance right after Initiate, and the protocol fee is charged on
// the way home.
type simGateway struct {
	mu      sync.Mutex
	unified map[string]int64
	pools   map[string]int64
	seq     int
}

const simGatewayFee = 1_000_000

func newSimGateway() *simGateway {
	return &simGateway{
		unified: map[string]int64{},
		pools:   map[string]int64{},
	}
}

func (g *simGateway) txRef() string {
	g.seq++
	return fmt.Sprintf("sim-gw-%04d", g.seq)
}

func (g *simGateway) Initiate(ctx context.Context, depositor, destAddress string, amount int64, targetPoolKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unified[destAddress] += amount
	return g.txRef(), nil
}

func (g *simGateway) UnifiedBalance(ctx context.Context, destAddress string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unified[destAddress], nil
}

func (g *simGateway) ReleaseToPool(ctx context.Context, destAddress, poolKey string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unified[destAddress] < amount {
		return "", fmt.Errorf("sim gateway: unified balance %d below release %d: %w", g.unified[destAddress], amount, domain.ErrInsufficientFunds)
	}
	g.unified[destAddress] -= amount
	g.pools[destAddress+"|"+poolKey] += amount
	return g.txRef(), nil
}

func (g *simGateway) RedeemFromPool(ctx context.Context, destAddress, poolKey string, shares int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := destAddress + "|" + poolKey
	if g.pools[key] < shares {
		return 0, fmt.Errorf("sim gateway: pool holds %d shares, redeem asked %d: %w", g.pools[key], shares, domain.ErrInsufficientFunds)
	}
	g.pools[key] -= shares
	// 1% simulated accrual.
	redeemed := shares + shares/100
	g.unified[destAddress] += redeemed
	return redeemed, nil
}

func (g *simGateway) ReturnToHome(ctx context.Context, destAddress string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := amount + simGatewayFee
	if g.unified[destAddress] < total {
		return "", fmt.Errorf("sim gateway: unified balance %d below return %d plus fee: %w", g.unified[destAddress], amount, domain.ErrInsufficientFunds)
	}
	g.unified[destAddress] -= total
	return g.txRef(), nil
}

func (g *simGateway) ProtocolFee(ctx context.Context) (int64, error) {
	return simGatewayFee, nil
}

// simLending is an in-memory lending market with a flat 1% accrual on redeem.
type simLending struct {
	mu       sync.Mutex
	supplies map[string]int64
	seq      int
}

func newSimLending() *simLending {
	return &simLending{supplies: map[string]int64{}}
}

func (l *simLending) key(account, protocol, asset string) string {
	return account + "|" + protocol + "|" + asset
}

func (l *simLending) txRef() string {
	l.seq++
	return fmt.Sprintf("sim-lend-%04d", l.seq)
}

func (l *simLending) Supply(ctx context.Context, account, protocol, asset string, amount int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supplies[l.key(account, protocol, asset)] += amount
	return l.txRef(), nil
}

func (l *simLending) Redeem(ctx context.Context, account, protocol, asset string, amount int64) (int64, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(account, protocol, asset)
	if l.supplies[k] < amount {
		return 0, "", fmt.Errorf("sim lending: supplied %d below redeem %d: %w", l.supplies[k], amount, domain.ErrInsufficientFunds)
	}
	l.supplies[k] -= amount
	return amount + amount/100, l.txRef(), nil
}

func (l *simLending) SupplyBalance(ctx context.Context, account, protocol, asset string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supplies[l.key(account, protocol, asset)], nil
}

var (
	_ strategy.VaultAPI   = (*simVault)(nil)
	_ strategy.GatewayAPI = (*simGateway)(nil)
	_ strategy.LendingAPI = (*simLending)(nil)
)
