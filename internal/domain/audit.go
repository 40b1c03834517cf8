package domain

// Audit operation names.
const (
	OpConvert    = "convert"
	OpClaim      = "claim"
	OpAllocate   = "allocate"
	OpCancel     = "cancel"
	OpGrantBonus = "grant_bonus"
	OpConsume    = "consume"
	OpDeposit    = "deposit"
	OpWithdraw   = "withdraw"
)

// AuditRecord captures one committed operation with every computed
// intermediate value. Emission to external logging/eventing is the host's
// job; the core only produces the record.
type AuditRecord struct {
	// ID is a deterministic hash of the record's identifying fields,
	// assigned on append. Retried appends of the same committed operation
	// carry the same ID.
	ID string

	Op       string
	User     string
	AllyMint string

	Amount uint64

	// Conversion intermediates.
	Margin   uint64
	Discount uint64
	Points   uint64
	BonusPts uint64

	// Claim intermediates.
	FeeBase uint64
	Excess  uint64
	Tax     uint64
	Net     uint64

	// Watermarks before/after.
	HWMBefore    uint64
	HWMAfter     uint64
	TaxHWMBefore uint64
	TaxHWMAfter  uint64

	// Resolved pricing.
	SolUSD      uint64
	ForcaPerSol uint64
	ForcaUSD    uint64

	// Guard usage after the operation.
	UsedUSD     uint64
	MonthClaims uint16

	Timestamp int64
}
