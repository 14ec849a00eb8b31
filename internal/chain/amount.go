package chain

import (
	"fmt"
	"math/big"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// Amounts cross the RPC boundary as uint256 but live as int64 minor units
// everywhere else. Conversions fail loudly instead of truncating.

var maxInt64 = big.NewInt(1<<63 - 1)

// toWire converts a minor-unit amount to the big.Int the contract expects.
func toWire(amount int64) *big.Int {
	return big.NewInt(amount)
}

// fromWire converts a uint256 result back to minor units. Values that do not
// fit an int64 return domain.ErrAmountOverflow.
func fromWire(v *big.Int) (int64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || v.Cmp(maxInt64) > 0 {
		return 0, fmt.Errorf("chain: value %s out of range: %w", v.String(), domain.ErrAmountOverflow)
	}
	return v.Int64(), nil
}
