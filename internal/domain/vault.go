package domain

// BpsDenominator is the basis-point scale: 100% = 10000 bps.
const BpsDenominator = 10_000

// Currency scales.
const (
	// ForcaScale is the FORCA fixed-point scale (6 decimals).
	ForcaScale = 1_000_000
	// WSOLScale is the wrapped-SOL fixed-point scale (9 decimals).
	WSOLScale = 1_000_000_000
	// USDScale is the micro-USD fixed-point scale.
	USDScale = 1_000_000
)

// Vault defaults, mirrored from the deployed program.
const (
	DefaultDailyCapUSD      = 1_000_000_000 // $1,000
	DefaultCooldownSecs     = 0
	DefaultManualForcaUSD   = 1_000_000 // $1.00 per FORCA
	DefaultToleranceBps     = 100       // 1%
	DefaultMaxStaleSecs     = 120
	DefaultMaxConfidenceBps = 100 // 1%
)

// Ally risk-policy bounds.
const (
	MinDailyCapUSD     = 1_000_000 // $1.00
	MaxCooldownSecs    = 86_400    // 24h
	MinMonthlyLimit    = 1
	MaxMonthlyLimit    = 31
	MinKYCThresholdUSD = 1_000_000 // $1.00
)

// PriceMode is the vault price-verification mode. Transitions are one-way:
// once verification is enabled it cannot be disabled, and once live mode is
// chosen mock mode cannot be re-enabled.
type PriceMode uint8

// Price modes.
const (
	PriceModeUnverified PriceMode = iota
	PriceModeVerifiedMock
	PriceModeVerifiedLive
)

// String returns the mode label.
func (m PriceMode) String() string {
	switch m {
	case PriceModeUnverified:
		return "unverified"
	case PriceModeVerifiedMock:
		return "verified-mock"
	case PriceModeVerifiedLive:
		return "verified-live"
	default:
		return "unknown"
	}
}

// Verified reports whether price verification is enabled in this mode.
func (m PriceMode) Verified() bool {
	return m == PriceModeVerifiedMock || m == PriceModeVerifiedLive
}

// PauseReason classifies why the vault was paused.
type PauseReason uint16

// Pause reasons.
const (
	PauseNone PauseReason = iota
	PauseNonPayment
	PauseSecurityIncident
	PauseComplianceHold
	PauseMarketAnomaly
	PauseOpsMaintenance
)

// PauseReasonFromCode validates a raw reason code.
func PauseReasonFromCode(code uint16) (PauseReason, error) {
	if code > uint16(PauseOpsMaintenance) {
		return PauseNone, ErrInvalidPauseReason
	}
	return PauseReason(code), nil
}

// MockOracle holds the mock price-oracle reference values, used only while
// the vault is in verified-mock mode.
type MockOracle struct {
	SolUSD      uint64 // micro-USD per SOL
	Expo        int32
	Conf        uint64
	PublishTime int64
	ForcaPerSol uint64 // 1e6-scaled FORCA per SOL
	ReserveF    uint64 // mock FORCA reserve (1e6)
	ReserveS    uint64 // mock SOL reserve (1e9)
}

// VaultConfig is the process-wide vault configuration. Operations receive it
// as an immutable snapshot; only admin operations replace it.
type VaultConfig struct {
	RiskAdmin string // sets risk tiers and the manual price
	EconAdmin string // sets fees, pauses, oracle config, registers allies
	ForcaMint string

	FeeBps    uint16 // base fee C
	TaxBps    uint16 // excess tax D
	MarginBps uint16 // margin B

	Paused      bool
	PauseReason PauseReason

	// Defaults copied onto newly registered allies.
	DailyCapUSD  uint64
	CooldownSecs uint64

	// Manual FORCA/USD micro rate; authoritative outside live mode.
	ManualForcaUSD uint64

	// Oracle configuration.
	PriceMode        PriceMode
	MockLocked       bool // latched once live mode is chosen
	ToleranceBps     uint16
	MaxStaleSecs     uint64
	MaxConfidenceBps uint16
	PriceFeed        string // Pyth SOL/USD price feed account
	Pool             string // canonical FORCA/SOL pool account
	PoolForcaReserve string
	PoolSolReserve   string

	Mock MockOracle
}

// ValidateBps checks every basis-point field of the config.
func (c *VaultConfig) ValidateBps() error {
	for _, bps := range []uint16{c.FeeBps, c.TaxBps, c.MarginBps, c.ToleranceBps, c.MaxConfidenceBps} {
		if bps > BpsDenominator {
			return ErrInvalidBps
		}
	}
	return nil
}
