package domain

// DepositorPolicy is the per-depositor configuration read from the vault
// contract. The agent only acts for depositors whose policy is enabled.
type DepositorPolicy struct {
	YieldThresholdPct float64 // act only when the venue yield beats this
	MaxBorrow         int64   // minor units
	Enabled           bool
	StrategyTag       string
}

// VaultStats are the vault's aggregate figures.
type VaultStats struct {
	TVL           int64
	TotalBorrowed int64
}

