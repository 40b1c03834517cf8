package vault

import (
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
)

// Cross-entity consistency checks, re-run on the mutated copies as the final
// step before any store write. A failure aborts the operation with nothing
// persisted.

func checkAllyInvariants(a *domain.Ally) error {
	if a.Reserved > a.Balance {
		return fmt.Errorf("%w: ally %s reserved %d exceeds balance %d",
			domain.ErrInvariantViolated, a.NFTMint, a.Reserved, a.Balance)
	}
	return nil
}

func checkLedgerInvariants(l *domain.UserLedger) error {
	// Watermarks accumulate claim bases net of fees, so neither can outgrow
	// the lifetime claimed volume. TaxHWM may sit above HWMClaimed after a
	// conversion pulls the claimed watermark down.
	if l.HWMClaimed > l.TotalClaimed {
		return fmt.Errorf("%w: ledger (%s,%s) claimed hwm %d exceeds lifetime claimed %d",
			domain.ErrInvariantViolated, l.User, l.AllyMint, l.HWMClaimed, l.TotalClaimed)
	}
	if l.TaxHWM > l.TotalClaimed {
		return fmt.Errorf("%w: ledger (%s,%s) tax hwm %d exceeds lifetime claimed %d",
			domain.ErrInvariantViolated, l.User, l.AllyMint, l.TaxHWM, l.TotalClaimed)
	}
	return nil
}

func checkConfigInvariants(cfg *domain.VaultConfig) error {
	if err := cfg.ValidateBps(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvariantViolated, err)
	}
	return nil
}
