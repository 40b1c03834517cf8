package domain

import "errors"

// Operation failure taxonomy. Every error is terminal for the current
// operation: the engine rejects before any state is persisted.

// Configuration errors.
var (
	// ErrInvalidBps is returned when a basis-point parameter exceeds 10000.
	ErrInvalidBps = errors.New("basis points out of range")

	// ErrInvalidPauseReason is returned for an unknown pause reason code.
	ErrInvalidPauseReason = errors.New("invalid pause reason code")

	// ErrInvalidBenefitMode is returned for an unknown benefit mode value.
	ErrInvalidBenefitMode = errors.New("invalid benefit mode")

	// ErrInvalidRiskTier is returned for an unknown risk tier value.
	ErrInvalidRiskTier = errors.New("invalid risk tier")

	// ErrVerifyPricesLocked is returned when an update attempts to disable
	// price verification after it has been enabled.
	ErrVerifyPricesLocked = errors.New("price verification cannot be disabled once enabled")

	// ErrMockOracleLocked is returned when an update attempts to re-enable
	// the mock oracle after live mode has been chosen.
	ErrMockOracleLocked = errors.New("mock oracle cannot be re-enabled once disabled")

	// ErrManualPriceDisabled is returned when the manual FORCA/USD price is
	// set outside mock-oracle mode.
	ErrManualPriceDisabled = errors.New("manual price only allowed in mock-oracle mode")

	// ErrOracleAddressMissing is returned when live verification is enabled
	// without all canonical oracle addresses configured.
	ErrOracleAddressMissing = errors.New("canonical oracle addresses missing")

	// ErrPolicyBounds is returned when an ally risk-policy override is
	// outside its permitted range.
	ErrPolicyBounds = errors.New("risk policy parameter out of bounds")
)

// Validation errors.
var (
	// ErrZeroAmount is returned when an operation amount is zero.
	ErrZeroAmount = errors.New("zero amount not allowed")

	// ErrPaused is returned when the vault is paused.
	ErrPaused = errors.New("vault is paused")

	// ErrInvalidMint is returned when a token account mint does not match
	// the vault FORCA mint (or WSOL for pool reserves).
	ErrInvalidMint = errors.New("invalid token mint")

	// ErrInvalidAuthority is returned when a signer does not match the
	// stored authority for the operation.
	ErrInvalidAuthority = errors.New("invalid authority")

	// ErrInvalidAddress is returned for a malformed base58 address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidCustody is returned when a custody account does not match
	// the ally's registered custody account.
	ErrInvalidCustody = errors.New("invalid custody account")

	// ErrVerificationRequired is returned when Convert is attempted while
	// price verification is disabled.
	ErrVerificationRequired = errors.New("price verification required")

	// ErrLedgerMissing is returned when an operation needs an existing
	// ledger row that has never been created.
	ErrLedgerMissing = errors.New("ledger not initialized")
)

// Oracle errors.
var (
	// ErrOracleParse is returned when the attestation buffer cannot be
	// decoded, the price is zero, or a derived value is not positive.
	ErrOracleParse = errors.New("oracle parse failed")

	// ErrOracleKeyMismatch is returned when a proof account identity does
	// not match the configured canonical address. Distinct from ErrOracleParse
	// so callers can tell "wrong proof" from "bad data".
	ErrOracleKeyMismatch = errors.New("oracle key mismatch")

	// ErrOracleStale is returned when the attestation publish time is too
	// old, or lies in the future.
	ErrOracleStale = errors.New("oracle price stale")

	// ErrOracleConfidence is returned when the attestation confidence
	// interval is too wide relative to the price.
	ErrOracleConfidence = errors.New("oracle confidence too wide")

	// ErrOracleOutOfTolerance is returned when a caller-asserted quote
	// deviates from the derived reference beyond the tolerance band.
	ErrOracleOutOfTolerance = errors.New("oracle values out of tolerance")

	// ErrInvalidQuote is returned for unusable caller-asserted quote values.
	ErrInvalidQuote = errors.New("invalid quote values")
)

// Arithmetic errors. Always fatal to the operation, never saturated.
var (
	// ErrOverflow is returned on any checked add/sub/mul overflow or a
	// narrowing conversion that loses value.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrDivideByZero is returned when a checked division has a zero divisor.
	ErrDivideByZero = errors.New("division by zero")
)

// Insufficient funds errors.
var (
	// ErrInsufficientBalance is returned when the ally custody balance
	// cannot cover the operation.
	ErrInsufficientBalance = errors.New("insufficient ally balance")

	// ErrInsufficientReserved is returned when the reserved sub-balance
	// cannot cover the claim.
	ErrInsufficientReserved = errors.New("insufficient reserved balance")

	// ErrInsufficientUnreserved is returned when a mutation would leave the
	// balance below the reserved amount.
	ErrInsufficientUnreserved = errors.New("insufficient unreserved balance")

	// ErrInsufficientClaimable is returned when the claimable-points balance
	// cannot cover the claim.
	ErrInsufficientClaimable = errors.New("insufficient claimable points")

	// ErrInsufficientPoints is returned when the points balance cannot cover
	// the consumption.
	ErrInsufficientPoints = errors.New("insufficient points balance")

	// ErrAmountTooSmall is returned when fee plus tax leave nothing to pay.
	ErrAmountTooSmall = errors.New("amount too small after fees")
)

// Policy errors.
var (
	// ErrTierDenied is returned when the member's risk tier denies the
	// allocation outright.
	ErrTierDenied = errors.New("risk tier denies allocation")

	// ErrDailyCapExceeded is returned when the rolling daily USD cap would
	// be exceeded.
	ErrDailyCapExceeded = errors.New("daily cap exceeded")

	// ErrCooldownActive is returned when the claim cooldown has not elapsed.
	ErrCooldownActive = errors.New("cooldown not elapsed")

	// ErrMonthlyLimitExceeded is returned when the monthly claim-count cap
	// has been reached.
	ErrMonthlyLimitExceeded = errors.New("monthly claim limit exceeded")

	// ErrKYCRequired is returned when the lifetime claimed USD value would
	// exceed the ally's KYC threshold.
	ErrKYCRequired = errors.New("kyc required for claim")
)

// Invariant errors.
var (
	// ErrInvariantViolated is returned when a post-condition check fails
	// just before commit. Nothing is persisted.
	ErrInvariantViolated = errors.New("ledger invariant violated")
)

// IsPolicy reports whether err belongs to the policy category
// (caps, cooldowns, limits, tier and KYC denials).
func IsPolicy(err error) bool {
	return errors.Is(err, ErrTierDenied) ||
		errors.Is(err, ErrDailyCapExceeded) ||
		errors.Is(err, ErrCooldownActive) ||
		errors.Is(err, ErrMonthlyLimitExceeded) ||
		errors.Is(err, ErrKYCRequired)
}

// IsOracle reports whether err belongs to the oracle category.
func IsOracle(err error) bool {
	return errors.Is(err, ErrOracleParse) ||
		errors.Is(err, ErrOracleKeyMismatch) ||
		errors.Is(err, ErrOracleStale) ||
		errors.Is(err, ErrOracleConfidence) ||
		errors.Is(err, ErrOracleOutOfTolerance) ||
		errors.Is(err, ErrInvalidQuote)
}

// IsArithmetic reports whether err belongs to the arithmetic category.
func IsArithmetic(err error) bool {
	return errors.Is(err, ErrOverflow) || errors.Is(err, ErrDivideByZero)
}

// IsInsufficientFunds reports whether err belongs to the funds category.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientReserved) ||
		errors.Is(err, ErrInsufficientUnreserved) ||
		errors.Is(err, ErrInsufficientClaimable) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrAmountTooSmall)
}
