package domain

// RiskTier classifies a member for claim gating. Members without a stored
// profile are Suspicious.
type RiskTier uint8

// Risk tiers.
const (
	// TierSuspicious members cannot receive allocations from enforcing allies.
	TierSuspicious RiskTier = iota
	// TierSoft members may claim, gated by the abuse guard.
	TierSoft
	// TierStrong members bypass the abuse guard and KYC threshold entirely.
	TierStrong
)

// String returns the tier label.
func (t RiskTier) String() string {
	switch t {
	case TierSuspicious:
		return "suspicious"
	case TierSoft:
		return "soft"
	case TierStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// RiskTierFromCode validates a raw tier value.
func RiskTierFromCode(code uint8) (RiskTier, error) {
	if code > uint8(TierStrong) {
		return TierSuspicious, ErrInvalidRiskTier
	}
	return RiskTier(code), nil
}

// RiskProfile is a member's tier assignment, set only by the risk admin.
type RiskProfile struct {
	User      string
	Tier      RiskTier
	UpdatedAt int64
}

// ClaimGuardState is the per-(member, ally) abuse-guard counter set.
// Windows are rolled in place rather than rows being recreated.
type ClaimGuardState struct {
	User     string
	AllyMint string

	Day     int64  // UTC day bucket (unix seconds / 86400, floored)
	UsedUSD uint64 // micro-USD claimed within the current day

	LastClaim int64 // unix seconds of the last admitted claim

	MonthIndex  int64 // civil month index (year*12 + month - 1)
	MonthClaims uint16
}
