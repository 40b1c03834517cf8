package domain

// AllyRole classifies the partner relationship. Informational only.
type AllyRole uint8

// Ally roles.
const (
	RoleMarketing AllyRole = iota
	RoleDev
	RoleOther
)

// BenefitMode selects the ally's conversion benefit program.
type BenefitMode uint8

// Benefit modes.
const (
	// BenefitNone applies no adjustment.
	BenefitNone BenefitMode = iota
	// BenefitDiscount reduces the amount the ally receives; the member's
	// wallet outflow shrinks by the same discount.
	BenefitDiscount
	// BenefitBonusPoints boosts the points credited without changing the
	// token flow.
	BenefitBonusPoints
)

// BenefitModeFromCode validates a raw benefit mode value.
func BenefitModeFromCode(code uint8) (BenefitMode, error) {
	if code > uint8(BenefitBonusPoints) {
		return BenefitNone, ErrInvalidBenefitMode
	}
	return BenefitMode(code), nil
}

// Ally is an economic partner holding custodial FORCA balance on behalf of
// its members, keyed by its identifying NFT mint.
type Ally struct {
	NFTMint string

	// OpsAuthority signs day-to-day allocation/consumption; WithdrawAuthority
	// signs custody movement and policy changes.
	OpsAuthority      string
	WithdrawAuthority string

	// Treasury is the ally's own token account; Custody is the vault-held
	// account its balance lives in.
	Treasury string
	Custody  string

	Role AllyRole

	Balance  uint64 // FORCA micro-units in custody
	Reserved uint64 // earmarked for pending claims, always <= Balance

	BenefitMode BenefitMode
	BenefitBps  uint16

	// Risk-policy overrides; default from VaultConfig at registration.
	Enforced        bool // whether claims are gated by the abuse guard
	DailyCapUSD     uint64
	CooldownSecs    uint64
	MonthlyLimit    uint16 // 0 = unlimited
	KYCThresholdUSD uint64 // 0 = no threshold
}

// Unreserved returns the custody balance not earmarked for claims.
func (a *Ally) Unreserved() uint64 {
	if a.Balance < a.Reserved {
		return 0
	}
	return a.Balance - a.Reserved
}

// ValidatePolicy checks the ally risk-policy override bounds.
func ValidatePolicy(dailyCapUSD, cooldownSecs uint64, monthlyLimit uint16, kycThresholdUSD uint64) error {
	if dailyCapUSD < MinDailyCapUSD {
		return ErrPolicyBounds
	}
	if cooldownSecs > MaxCooldownSecs {
		return ErrPolicyBounds
	}
	if monthlyLimit != 0 && (monthlyLimit < MinMonthlyLimit || monthlyLimit > MaxMonthlyLimit) {
		return ErrPolicyBounds
	}
	if kycThresholdUSD != 0 && kycThresholdUSD < MinKYCThresholdUSD {
		return ErrPolicyBounds
	}
	return nil
}
