package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// Kind enumerates the known strategy plugins. The registry is an explicit
// constructor table over this enumeration rather than a runtime string table;
// configuration selects which subset is active.
type Kind string

const (
	KindHomeRebalance Kind = "home_rebalance"
	KindGatewayYield  Kind = "gateway_yield"
	KindPoolYield     Kind = "pool_yield"
)

// Config holds the tunables shared by the plugins. All thresholds and caps
// are overridable from configuration.
type Config struct {
	MinHold           time.Duration // cool-down before any return attempt
	YieldThresholdPct float64       // fallback when a policy has no threshold
	BorrowUtilization float64       // fraction of the deposit borrowable, e.g. 0.5
	AmountCap         int64         // per-transfer protocol cap, minor units
	BridgePollTimeout time.Duration // bound on one destination-balance poll
	GatewayVenue      string        // destination venue name, e.g. "aurora"
	TargetPoolKey     string        // destination pool identifier
	GatewayTag        string        // ranking bucket for the gateway venue
	LendingChain      string
	LendingProtocol   string
	LendingAsset      string
	LendingTag        string
}

// Deps bundles every collaborator a plugin constructor may need. Stores are
// passed in explicitly so tests can inject in-memory implementations.
type Deps struct {
	Vault            VaultAPI
	Gateway          GatewayAPI
	Lending          LendingAPI
	Keys             KeyProvider
	Observer         Observer
	Positions        domain.PositionStore
	PendingBridges   domain.PendingBridgeStore
	GatewayPositions domain.GatewayPositionStore
	LendingPositions domain.LendingPositionStore
	Cfg              Config
	Logger           *slog.Logger
}

// Constructor builds one plugin from the shared dependency bundle.
type Constructor func(Deps) (Plugin, error)

// Registry maps known plugin kinds to their constructors.
type Registry struct {
	constructors map[Kind]Constructor
}

// NewRegistry returns a Registry pre-populated with every known plugin kind.
func NewRegistry() *Registry {
	return &Registry{constructors: map[Kind]Constructor{
		KindHomeRebalance: func(d Deps) (Plugin, error) { return NewHomeRebalance(d) },
		KindGatewayYield:  func(d Deps) (Plugin, error) { return NewGatewayYield(d) },
		KindPoolYield:     func(d Deps) (Plugin, error) { return NewPoolYield(d) },
	}}
}

// Build constructs the configured subset of plugins in the given order.
// Unknown names are skipped with a warning; a name is never fatal. A
// constructor error for a known kind is returned, since it means a required
// dependency is missing.
func (r *Registry) Build(names []string, deps Deps, logger *slog.Logger) ([]Plugin, error) {
	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		ctor, ok := r.constructors[Kind(name)]
		if !ok {
			logger.Warn("unknown strategy plugin, skipping", slog.String("plugin", name))
			continue
		}
		p, err := ctor(deps)
		if err != nil {
			return nil, fmt.Errorf("strategy: build %s: %w", name, err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}
