package telemetry

import (
	"fmt"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// FormatAction renders an executed action as one log line. The rendering is
// deterministic per kind and is part of the observable contract consumed by
// the console, so changes here are breaking.
func FormatAction(a domain.RebalanceAction) string {
	switch a.Kind {
	case domain.ActionBorrow:
		return fmt.Sprintf("borrowed %d for %s on %s tx=%s", a.Amount, a.Depositor, a.Venue, a.TxRef)
	case domain.ActionRepay:
		return fmt.Sprintf("repaid %d for %s on %s tx=%s", a.Amount, a.Depositor, a.Venue, a.TxRef)
	case domain.ActionBridge:
		return fmt.Sprintf("bridged %d for %s via %s tx=%s", a.Amount, a.Depositor, a.Venue, a.TxRef)
	case domain.ActionDeposit:
		return fmt.Sprintf("deposited %d for %s into %s tx=%s", a.Amount, a.Depositor, a.Venue, a.TxRef)
	case domain.ActionWithdraw:
		return fmt.Sprintf("withdrew %d for %s from %s tx=%s", a.Amount, a.Depositor, a.Venue, a.TxRef)
	case domain.ActionOrder:
		return fmt.Sprintf("placed order (%d) for %s on %s tx=%s", a.Amount, a.Depositor, a.Venue, a.TxRef)
	default:
		return fmt.Sprintf("%s %d for %s on %s tx=%s", a.Kind, a.Amount, a.Depositor, a.Venue, a.TxRef)
	}
}
