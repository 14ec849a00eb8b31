package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/strategy"
)

// vaultABI is the slice of the vault contract the agent talks to. Policy
// thresholds come back in basis points and are converted to percent here.
const vaultABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"depositor","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"policyOf","stateMutability":"view","inputs":[{"name":"depositor","type":"address"}],"outputs":[{"name":"yieldThresholdBps","type":"uint256"},{"name":"maxBorrow","type":"uint256"},{"name":"enabled","type":"bool"},{"name":"strategyTag","type":"string"}]},
	{"type":"function","name":"outstandingBorrowOf","stateMutability":"view","inputs":[{"name":"depositor","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"borrowOnBehalfOf","stateMutability":"nonpayable","inputs":[{"name":"depositor","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"repayOnBehalfOf","stateMutability":"nonpayable","inputs":[{"name":"depositor","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"depositFor","stateMutability":"nonpayable","inputs":[{"name":"depositor","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"requestWithdraw","stateMutability":"nonpayable","inputs":[{"name":"depositor","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"processWithdraw","stateMutability":"nonpayable","inputs":[{"name":"depositor","type":"address"}],"outputs":[{"name":"returned","type":"uint256"}]},
	{"type":"function","name":"totalAssets","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"totalBorrowed","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"event","name":"Deposited","inputs":[{"name":"depositor","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

// Vault implements the vault capability contract over a bound EVM contract.
// Depositor discovery runs off Deposited events with a block cursor so each
// Depositors call only scans new blocks.
type Vault struct {
	client   *Client
	signer   *Signer
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
	logger   *slog.Logger

	mu         sync.Mutex
	discovered map[common.Address]struct{}
	cursor     uint64
}

// NewVault binds the vault contract at address. deployBlock anchors the first
// depositor scan; providers reject queries from block zero on large chains.
func NewVault(client *Client, signer *Signer, address string, deployBlock uint64, logger *slog.Logger) (*Vault, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse vault abi: %w", err)
	}

	addr := common.HexToAddress(address)
	return &Vault{
		client:     client,
		signer:     signer,
		contract:   bind.NewBoundContract(addr, parsed, client.Eth(), client.Eth(), client.Eth()),
		abi:        parsed,
		address:    addr,
		logger:     logger.With(slog.String("component", "vault")),
		discovered: make(map[common.Address]struct{}),
		cursor:     deployBlock,
	}, nil
}

func (v *Vault) call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	if err := v.contract.Call(&bind.CallOpts{Context: ctx}, out, method, args...); err != nil {
		return fmt.Errorf("chain: call %s: %w", method, err)
	}
	return nil
}

func (v *Vault) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	opts, err := v.signer.Opts(ctx)
	if err != nil {
		return "", err
	}
	tx, err := v.contract.Transact(opts, method, args...)
	if err != nil {
		return "", fmt.Errorf("chain: transact %s: %w", method, err)
	}
	return tx.Hash().Hex(), nil
}

// Depositors returns every address that has ever deposited, discovered by
// scanning Deposited events from the cursor to the chain head.
func (v *Vault) Depositors(ctx context.Context) ([]string, error) {
	head, err := v.client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if head >= v.cursor {
		logs, err := v.client.FilterLogs(ctx, gethcore.FilterQuery{
			FromBlock: new(big.Int).SetUint64(v.cursor),
			ToBlock:   new(big.Int).SetUint64(head),
			Addresses: []common.Address{v.address},
			Topics:    [][]common.Hash{{v.abi.Events["Deposited"].ID}},
		})
		if err != nil {
			return nil, err
		}
		for _, log := range logs {
			if len(log.Topics) < 2 {
				continue
			}
			v.discovered[common.BytesToAddress(log.Topics[1].Bytes())] = struct{}{}
		}
		v.cursor = head + 1
	}

	out := make([]string, 0, len(v.discovered))
	for addr := range v.discovered {
		out = append(out, addr.Hex())
	}
	sort.Strings(out)
	return out, nil
}

// BalanceOf returns the depositor's idle vault balance in minor units.
func (v *Vault) BalanceOf(ctx context.Context, depositor string) (int64, error) {
	var out []interface{}
	if err := v.call(ctx, &out, "balanceOf", common.HexToAddress(depositor)); err != nil {
		return 0, err
	}
	return fromWire(out[0].(*big.Int))
}

// PolicyOf returns the depositor's on-chain rebalancing policy.
func (v *Vault) PolicyOf(ctx context.Context, depositor string) (domain.DepositorPolicy, error) {
	var out []interface{}
	if err := v.call(ctx, &out, "policyOf", common.HexToAddress(depositor)); err != nil {
		return domain.DepositorPolicy{}, err
	}

	thresholdBps, err := fromWire(out[0].(*big.Int))
	if err != nil {
		return domain.DepositorPolicy{}, err
	}
	maxBorrow, err := fromWire(out[1].(*big.Int))
	if err != nil {
		return domain.DepositorPolicy{}, err
	}
	return domain.DepositorPolicy{
		YieldThresholdPct: float64(thresholdBps) / 100,
		MaxBorrow:         maxBorrow,
		Enabled:           out[2].(bool),
		StrategyTag:       out[3].(string),
	}, nil
}

// OutstandingBorrow returns the depositor's unrepaid borrow.
func (v *Vault) OutstandingBorrow(ctx context.Context, depositor string) (int64, error) {
	var out []interface{}
	if err := v.call(ctx, &out, "outstandingBorrowOf", common.HexToAddress(depositor)); err != nil {
		return 0, err
	}
	return fromWire(out[0].(*big.Int))
}

// BorrowOnBehalfOf draws amount against the depositor's balance.
func (v *Vault) BorrowOnBehalfOf(ctx context.Context, depositor string, amount int64) (string, error) {
	return v.transact(ctx, "borrowOnBehalfOf", common.HexToAddress(depositor), toWire(amount))
}

// RepayOnBehalfOf pays amount back against the depositor's borrow.
func (v *Vault) RepayOnBehalfOf(ctx context.Context, depositor string, amount int64) (string, error) {
	return v.transact(ctx, "repayOnBehalfOf", common.HexToAddress(depositor), toWire(amount))
}

// DepositFor moves amount into the vault's yield pool for the depositor.
func (v *Vault) DepositFor(ctx context.Context, depositor string, amount int64) (string, error) {
	return v.transact(ctx, "depositFor", common.HexToAddress(depositor), toWire(amount))
}

// RequestWithdraw starts the withdraw lifecycle for amount.
func (v *Vault) RequestWithdraw(ctx context.Context, depositor string, amount int64) (string, error) {
	return v.transact(ctx, "requestWithdraw", common.HexToAddress(depositor), toWire(amount))
}

// ProcessWithdraw completes a pending withdraw. The returned amount is read
// with a simulated call before the transaction is sent; the chain does not
// expose transaction return values.
func (v *Vault) ProcessWithdraw(ctx context.Context, depositor string) (int64, string, error) {
	var out []interface{}
	if err := v.call(ctx, &out, "processWithdraw", common.HexToAddress(depositor)); err != nil {
		return 0, "", err
	}
	returned, err := fromWire(out[0].(*big.Int))
	if err != nil {
		return 0, "", err
	}

	txRef, err := v.transact(ctx, "processWithdraw", common.HexToAddress(depositor))
	if err != nil {
		return 0, "", err
	}
	return returned, txRef, nil
}

// Stats returns the vault's aggregate figures.
func (v *Vault) Stats(ctx context.Context) (domain.VaultStats, error) {
	var assets []interface{}
	if err := v.call(ctx, &assets, "totalAssets"); err != nil {
		return domain.VaultStats{}, err
	}
	var borrowed []interface{}
	if err := v.call(ctx, &borrowed, "totalBorrowed"); err != nil {
		return domain.VaultStats{}, err
	}

	tvl, err := fromWire(assets[0].(*big.Int))
	if err != nil {
		return domain.VaultStats{}, err
	}
	total, err := fromWire(borrowed[0].(*big.Int))
	if err != nil {
		return domain.VaultStats{}, err
	}
	return domain.VaultStats{TVL: tvl, TotalBorrowed: total}, nil
}

var _ strategy.VaultAPI = (*Vault)(nil)
