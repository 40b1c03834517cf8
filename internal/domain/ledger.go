package domain

// UserLedger tracks a member's balances within one ally's scope.
// Rows are created lazily on first use and never deleted.
type UserLedger struct {
	User     string
	AllyMint string

	// Claimable is the RP allowance redeemable back into FORCA.
	Claimable uint64
	// Points is the PP balance in micro-USD.
	Points uint64

	// HWMClaimed is the cumulative claim basis subject to future taxation.
	// A conversion pulls it down by the member's real wallet outflow.
	HWMClaimed uint64
	// TaxHWM is the watermark already taxed; equal to HWMClaimed immediately
	// after a claim, and possibly above it after conversions pull HWMClaimed
	// down.
	TaxHWM uint64

	// TotalClaimed is the lifetime claimed FORCA, monotonically
	// non-decreasing. Feeds the KYC threshold check.
	TotalClaimed uint64

	CreatedAt int64
	UpdatedAt int64
}

// NewUserLedger returns a zeroed ledger for lazy creation.
func NewUserLedger(user, allyMint string, now int64) *UserLedger {
	return &UserLedger{
		User:      user,
		AllyMint:  allyMint,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
