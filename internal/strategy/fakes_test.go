package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// fakeVault is a scriptable VaultAPI for plugin tests.
type fakeVault struct {
	mu       sync.Mutex
	deposits map[string]int64
	borrowed map[string]int64
	policies map[string]domain.DepositorPolicy

	withdrawReturn int64 // amount ProcessWithdraw reports
	borrowErr      error

	borrowCalls  []int64
	repayCalls   []int64
	depositCalls []int64
	seq          int
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		deposits: map[string]int64{},
		borrowed: map[string]int64{},
		policies: map[string]domain.DepositorPolicy{},
	}
}

func (v *fakeVault) tx() string {
	v.seq++
	return fmt.Sprintf("tx-%d", v.seq)
}

func (v *fakeVault) Depositors(context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.deposits))
	for dep := range v.deposits {
		out = append(out, dep)
	}
	return out, nil
}

func (v *fakeVault) BalanceOf(_ context.Context, dep string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deposits[dep], nil
}

func (v *fakeVault) PolicyOf(_ context.Context, dep string) (domain.DepositorPolicy, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.policies[dep], nil
}

func (v *fakeVault) OutstandingBorrow(_ context.Context, dep string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.borrowed[dep], nil
}

func (v *fakeVault) BorrowOnBehalfOf(_ context.Context, dep string, amount int64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.borrowErr != nil {
		return "", v.borrowErr
	}
	v.borrowed[dep] += amount
	v.borrowCalls = append(v.borrowCalls, amount)
	return v.tx(), nil
}

func (v *fakeVault) RepayOnBehalfOf(_ context.Context, dep string, amount int64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.borrowed[dep] -= amount
	v.repayCalls = append(v.repayCalls, amount)
	return v.tx(), nil
}

func (v *fakeVault) DepositFor(_ context.Context, dep string, amount int64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.depositCalls = append(v.depositCalls, amount)
	return v.tx(), nil
}

func (v *fakeVault) RequestWithdraw(_ context.Context, dep string, amount int64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tx(), nil
}

func (v *fakeVault) ProcessWithdraw(_ context.Context, dep string) (int64, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.withdrawReturn, v.tx(), nil
}

func (v *fakeVault) Stats(context.Context) (domain.VaultStats, error) {
	return domain.VaultStats{}, nil
}

// fakeGateway is a scriptable GatewayAPI.
type fakeGateway struct {
	mu      sync.Mutex
	unified map[string]int64
	fee     int64

	releaseErr error
	redeemOut  int64

	initiated []int64
	released  []int64
	returned  []int64
	seq       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{unified: map[string]int64{}}
}

func (g *fakeGateway) tx() string {
	g.seq++
	return fmt.Sprintf("gw-%d", g.seq)
}

func (g *fakeGateway) Initiate(_ context.Context, dep, dest string, amount int64, pool string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initiated = append(g.initiated, amount)
	return g.tx(), nil
}

func (g *fakeGateway) UnifiedBalance(_ context.Context, dest string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unified[dest], nil
}

func (g *fakeGateway) ReleaseToPool(_ context.Context, dest, pool string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.releaseErr != nil {
		return "", g.releaseErr
	}
	g.unified[dest] -= amount
	g.released = append(g.released, amount)
	return g.tx(), nil
}

func (g *fakeGateway) RedeemFromPool(_ context.Context, dest, pool string, shares int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.redeemOut
	if out == 0 {
		out = shares
	}
	g.unified[dest] += out
	return out, nil
}

func (g *fakeGateway) ReturnToHome(_ context.Context, dest string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unified[dest] -= amount
	g.returned = append(g.returned, amount)
	return g.tx(), nil
}

func (g *fakeGateway) ProtocolFee(context.Context) (int64, error) {
	return g.fee, nil
}

// fakeLending is a scriptable LendingAPI.
type fakeLending struct {
	mu        sync.Mutex
	redeemErr error
	accrual   int64

	supplied []int64
	redeemed []int64
	seq      int
}

func (l *fakeLending) tx() string {
	l.seq++
	return fmt.Sprintf("lend-%d", l.seq)
}

func (l *fakeLending) Supply(_ context.Context, account, protocol, asset string, amount int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supplied = append(l.supplied, amount)
	return l.tx(), nil
}

func (l *fakeLending) Redeem(_ context.Context, account, protocol, asset string, amount int64) (int64, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.redeemErr != nil {
		return 0, "", l.redeemErr
	}
	l.redeemed = append(l.redeemed, amount)
	return amount + l.accrual, l.tx(), nil
}

func (l *fakeLending) SupplyBalance(context.Context, string, string, string) (int64, error) {
	return 0, nil
}

// fakeKeys hands out deterministic custodial addresses.
type fakeKeys struct{}

func (fakeKeys) EnsureKey(_ context.Context, dep string) (domain.CustodialKey, error) {
	return domain.CustodialKey{Depositor: dep, Address: "addr-" + dep}, nil
}

// fakeObserver returns fixed yields per venue.
type fakeObserver struct {
	yields map[string]float64
}

func (o fakeObserver) Observe(_ context.Context, venue, tag string) domain.YieldOpportunity {
	return domain.YieldOpportunity{
		Venue:       venue,
		YieldPct:    o.yields[venue],
		Confidence:  1,
		Source:      domain.SourceLive,
		StrategyTag: tag,
		ObservedAt:  time.Now(),
	}
}

var (
	_ VaultAPI    = (*fakeVault)(nil)
	_ GatewayAPI  = (*fakeGateway)(nil)
	_ LendingAPI  = (*fakeLending)(nil)
	_ KeyProvider = fakeKeys{}
	_ Observer    = fakeObserver{}
)
