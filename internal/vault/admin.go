package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// Admin surface. Signer fields are compared to the stored authority keys;
// the host has already verified the signatures themselves.

// InitParams configures a fresh vault.
type InitParams struct {
	RiskAdmin string
	EconAdmin string
	ForcaMint string
	FeeBps    uint16
	TaxBps    uint16
	MarginBps uint16
}

// InitializeVault creates the singleton config with the recovered defaults.
// A second initialization is rejected.
func (e *Engine) InitializeVault(ctx context.Context, p InitParams) (*domain.VaultConfig, error) {
	for _, bps := range []uint16{p.FeeBps, p.TaxBps, p.MarginBps} {
		if bps > domain.BpsDenominator {
			return nil, domain.ErrInvalidBps
		}
	}
	for _, addr := range []string{p.RiskAdmin, p.EconAdmin, p.ForcaMint} {
		if err := domain.ValidateAddress(addr); err != nil {
			return nil, err
		}
	}

	if _, err := e.stores.VaultState.Get(ctx); err == nil {
		return nil, storage.ErrDuplicateKey
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load vault state: %w", err)
	}

	cfg := &domain.VaultConfig{
		RiskAdmin:        p.RiskAdmin,
		EconAdmin:        p.EconAdmin,
		ForcaMint:        p.ForcaMint,
		FeeBps:           p.FeeBps,
		TaxBps:           p.TaxBps,
		MarginBps:        p.MarginBps,
		DailyCapUSD:      domain.DefaultDailyCapUSD,
		CooldownSecs:     domain.DefaultCooldownSecs,
		ManualForcaUSD:   domain.DefaultManualForcaUSD,
		PriceMode:        domain.PriceModeUnverified,
		ToleranceBps:     domain.DefaultToleranceBps,
		MaxStaleSecs:     domain.DefaultMaxStaleSecs,
		MaxConfidenceBps: domain.DefaultMaxConfidenceBps,
	}
	if err := e.stores.VaultState.Put(ctx, cfg); err != nil {
		return nil, fmt.Errorf("persist vault state: %w", err)
	}
	e.logger.Printf("vault initialized fee=%d tax=%d margin=%d", p.FeeBps, p.TaxBps, p.MarginBps)
	return cfg, nil
}

func (e *Engine) requireEconAdmin(ctx context.Context, signer string) (*domain.VaultConfig, error) {
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if signer != cfg.EconAdmin {
		return nil, domain.ErrInvalidAuthority
	}
	return cfg, nil
}

func (e *Engine) requireRiskAdmin(ctx context.Context, signer string) (*domain.VaultConfig, error) {
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if signer != cfg.RiskAdmin {
		return nil, domain.ErrInvalidAuthority
	}
	return cfg, nil
}

// SetPause halts or resumes member operations.
func (e *Engine) SetPause(ctx context.Context, signer string, paused bool, reasonCode uint16) error {
	cfg, err := e.requireEconAdmin(ctx, signer)
	if err != nil {
		return err
	}
	reason, err := domain.PauseReasonFromCode(reasonCode)
	if err != nil {
		return err
	}
	cfg.Paused = paused
	cfg.PauseReason = reason
	if !paused {
		cfg.PauseReason = domain.PauseNone
	}
	if err := e.stores.VaultState.Put(ctx, cfg); err != nil {
		return fmt.Errorf("persist vault state: %w", err)
	}
	if e.metrics != nil {
		v := 0.0
		if paused {
			v = 1.0
		}
		e.metrics.VaultPaused.Set(v)
	}
	e.logger.Printf("vault pause=%v reason=%d", paused, reasonCode)
	return nil
}

// SetParams updates the fee, tax, and margin basis points.
func (e *Engine) SetParams(ctx context.Context, signer string, feeBps, taxBps, marginBps uint16) error {
	cfg, err := e.requireEconAdmin(ctx, signer)
	if err != nil {
		return err
	}
	for _, bps := range []uint16{feeBps, taxBps, marginBps} {
		if bps > domain.BpsDenominator {
			return domain.ErrInvalidBps
		}
	}
	cfg.FeeBps = feeBps
	cfg.TaxBps = taxBps
	cfg.MarginBps = marginBps
	if err := e.stores.VaultState.Put(ctx, cfg); err != nil {
		return fmt.Errorf("persist vault state: %w", err)
	}
	return nil
}

// OracleConfig is the full oracle parameter set applied in one transition.
type OracleConfig struct {
	VerifyPrices     bool
	UseMockOracle    bool
	ToleranceBps     uint16
	MaxStaleSecs     uint64
	MaxConfidenceBps uint16
	PriceFeed        string
	Pool             string
	PoolForcaReserve string
	PoolSolReserve   string
}

// SetOracleConfig applies an oracle transition under the one-way locks:
// verification can never be disabled once enabled, and the mock oracle can
// never be re-enabled once it has been turned off.
func (e *Engine) SetOracleConfig(ctx context.Context, signer string, oc OracleConfig) error {
	cfg, err := e.requireEconAdmin(ctx, signer)
	if err != nil {
		return err
	}
	if oc.ToleranceBps > domain.BpsDenominator {
		return domain.ErrInvalidBps
	}
	if oc.MaxConfidenceBps == 0 || oc.MaxConfidenceBps > domain.BpsDenominator {
		return domain.ErrInvalidBps
	}
	if cfg.PriceMode.Verified() && !oc.VerifyPrices {
		return domain.ErrVerifyPricesLocked
	}
	if cfg.MockLocked && oc.UseMockOracle {
		return domain.ErrMockOracleLocked
	}
	if oc.VerifyPrices && !oc.UseMockOracle {
		for _, addr := range []string{oc.PriceFeed, oc.Pool, oc.PoolForcaReserve, oc.PoolSolReserve} {
			if addr == "" {
				return domain.ErrOracleAddressMissing
			}
			if err := domain.ValidateAddress(addr); err != nil {
				return err
			}
		}
	}

	switch {
	case !oc.VerifyPrices:
		cfg.PriceMode = domain.PriceModeUnverified
	case oc.UseMockOracle:
		cfg.PriceMode = domain.PriceModeVerifiedMock
	default:
		cfg.PriceMode = domain.PriceModeVerifiedLive
	}
	cfg.ToleranceBps = oc.ToleranceBps
	cfg.MaxStaleSecs = oc.MaxStaleSecs
	cfg.MaxConfidenceBps = oc.MaxConfidenceBps
	cfg.PriceFeed = oc.PriceFeed
	cfg.Pool = oc.Pool
	cfg.PoolForcaReserve = oc.PoolForcaReserve
	cfg.PoolSolReserve = oc.PoolSolReserve
	// Turning the mock off latches the lock for good.
	if !oc.UseMockOracle {
		cfg.MockLocked = true
	}

	if err := e.stores.VaultState.Put(ctx, cfg); err != nil {
		return fmt.Errorf("persist vault state: %w", err)
	}
	e.logger.Printf("oracle config mode=%s tolerance=%dbps stale=%ds", cfg.PriceMode, oc.ToleranceBps, oc.MaxStaleSecs)
	return nil
}

// SetManualPrice sets the manual FORCA/USD micro rate, allowed only while
// the mock oracle is active.
func (e *Engine) SetManualPrice(ctx context.Context, signer string, forcaUSD uint64) error {
	cfg, err := e.requireRiskAdmin(ctx, signer)
	if err != nil {
		return err
	}
	if cfg.PriceMode != domain.PriceModeVerifiedMock {
		return domain.ErrManualPriceDisabled
	}
	cfg.ManualForcaUSD = forcaUSD
	if err := e.stores.VaultState.Put(ctx, cfg); err != nil {
		return fmt.Errorf("persist vault state: %w", err)
	}
	return nil
}

// SetMockOracles sets the mock reference quote used by cross-checks while
// in verified-mock mode.
func (e *Engine) SetMockOracles(ctx context.Context, signer string, solUSD, forcaPerSol uint64) error {
	cfg, err := e.requireEconAdmin(ctx, signer)
	if err != nil {
		return err
	}
	now := e.now()
	cfg.Mock = domain.MockOracle{
		SolUSD:      solUSD,
		Expo:        -8,
		Conf:        1_000,
		PublishTime: now,
		ForcaPerSol: forcaPerSol,
		ReserveF:    1_000_000_000,
		ReserveS:    10_000_000_000,
	}
	if err := e.stores.VaultState.Put(ctx, cfg); err != nil {
		return fmt.Errorf("persist vault state: %w", err)
	}
	return nil
}

// SetRiskTier assigns a member's tier.
func (e *Engine) SetRiskTier(ctx context.Context, signer, user string, tierCode uint8) error {
	if _, err := e.requireRiskAdmin(ctx, signer); err != nil {
		return err
	}
	if err := domain.ValidateAddress(user); err != nil {
		return err
	}
	tier, err := domain.RiskTierFromCode(tierCode)
	if err != nil {
		return err
	}
	profile := &domain.RiskProfile{User: user, Tier: tier, UpdatedAt: e.now()}
	if err := e.stores.Risk.Put(ctx, profile); err != nil {
		return fmt.Errorf("persist risk profile: %w", err)
	}
	e.logger.Printf("risk tier user=%s tier=%s", user, tier)
	return nil
}

// SetEconAdmin rotates the economic admin key.
func (e *Engine) SetEconAdmin(ctx context.Context, signer, newAdmin string) error {
	cfg, err := e.requireEconAdmin(ctx, signer)
	if err != nil {
		return err
	}
	if err := domain.ValidateAddress(newAdmin); err != nil {
		return err
	}
	cfg.EconAdmin = newAdmin
	if err := e.stores.VaultState.Put(ctx, cfg); err != nil {
		return fmt.Errorf("persist vault state: %w", err)
	}
	return nil
}

// SetRiskAdmin rotates the risk admin key.
func (e *Engine) SetRiskAdmin(ctx context.Context, signer, newAdmin string) error {
	cfg, err := e.requireRiskAdmin(ctx, signer)
	if err != nil {
		return err
	}
	if err := domain.ValidateAddress(newAdmin); err != nil {
		return err
	}
	cfg.RiskAdmin = newAdmin
	if err := e.stores.VaultState.Put(ctx, cfg); err != nil {
		return fmt.Errorf("persist vault state: %w", err)
	}
	return nil
}

// RegisterAllyParams identifies a new ally and its accounts.
type RegisterAllyParams struct {
	NFTMint           string
	OpsAuthority      string
	WithdrawAuthority string
	Treasury          string
	Custody           string
	Role              domain.AllyRole
}

// RegisterAlly creates an ally with enforcement on and the policy defaults
// copied from the vault config.
func (e *Engine) RegisterAlly(ctx context.Context, signer string, p RegisterAllyParams) (*domain.Ally, error) {
	cfg, err := e.requireEconAdmin(ctx, signer)
	if err != nil {
		return nil, err
	}
	for _, addr := range []string{p.NFTMint, p.OpsAuthority, p.WithdrawAuthority, p.Treasury, p.Custody} {
		if err := domain.ValidateAddress(addr); err != nil {
			return nil, err
		}
	}
	// Custody must be program-derived. A custody key on the ed25519 curve
	// has a private key and could be drained outside the vault.
	if domain.IsOnCurve(p.Custody) {
		return nil, domain.ErrInvalidCustody
	}
	if _, err := e.stores.Allies.Get(ctx, p.NFTMint); err == nil {
		return nil, storage.ErrDuplicateKey
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load ally: %w", err)
	}

	ally := &domain.Ally{
		NFTMint:           p.NFTMint,
		OpsAuthority:      p.OpsAuthority,
		WithdrawAuthority: p.WithdrawAuthority,
		Treasury:          p.Treasury,
		Custody:           p.Custody,
		Role:              p.Role,
		BenefitMode:       domain.BenefitNone,
		Enforced:          true,
		DailyCapUSD:       cfg.DailyCapUSD,
		CooldownSecs:      cfg.CooldownSecs,
	}
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return nil, fmt.Errorf("persist ally: %w", err)
	}
	e.logger.Printf("ally registered mint=%s ops=%s withdraw=%s", p.NFTMint, p.OpsAuthority, p.WithdrawAuthority)
	return ally, nil
}

// SetAllyBenefit configures the ally's conversion benefit program.
func (e *Engine) SetAllyBenefit(ctx context.Context, signer, allyMint string, modeCode uint8, bps uint16) error {
	if bps > domain.BpsDenominator {
		return domain.ErrInvalidBps
	}
	mode, err := domain.BenefitModeFromCode(modeCode)
	if err != nil {
		return err
	}
	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return err
	}
	if signer != ally.OpsAuthority {
		return domain.ErrInvalidAuthority
	}
	ally.BenefitMode = mode
	ally.BenefitBps = bps
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return fmt.Errorf("persist ally: %w", err)
	}
	return nil
}

// SetAllyPolicy overrides the ally's guard policy within the global bounds.
func (e *Engine) SetAllyPolicy(ctx context.Context, signer, allyMint string, dailyCapUSD, cooldownSecs uint64, monthlyLimit uint16, kycThresholdUSD uint64) error {
	if err := domain.ValidatePolicy(dailyCapUSD, cooldownSecs, monthlyLimit, kycThresholdUSD); err != nil {
		return err
	}
	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return err
	}
	if signer != ally.WithdrawAuthority {
		return domain.ErrInvalidAuthority
	}
	ally.DailyCapUSD = dailyCapUSD
	ally.CooldownSecs = cooldownSecs
	ally.MonthlyLimit = monthlyLimit
	ally.KYCThresholdUSD = kycThresholdUSD
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return fmt.Errorf("persist ally: %w", err)
	}
	e.logger.Printf("ally policy mint=%s cap=%d cooldown=%d monthly=%d kyc=%d",
		allyMint, dailyCapUSD, cooldownSecs, monthlyLimit, kycThresholdUSD)
	return nil
}

// SetAllyEnforcement toggles guard gating for the ally's member pool.
func (e *Engine) SetAllyEnforcement(ctx context.Context, signer, allyMint string, enforce bool) error {
	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return err
	}
	if signer != ally.WithdrawAuthority {
		return domain.ErrInvalidAuthority
	}
	ally.Enforced = enforce
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return fmt.Errorf("persist ally: %w", err)
	}
	return nil
}

// SetAllyOpsAuthority rotates the ally's operations authority.
func (e *Engine) SetAllyOpsAuthority(ctx context.Context, signer, allyMint, newAuthority string) error {
	if err := domain.ValidateAddress(newAuthority); err != nil {
		return err
	}
	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return err
	}
	if signer != ally.OpsAuthority {
		return domain.ErrInvalidAuthority
	}
	ally.OpsAuthority = newAuthority
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return fmt.Errorf("persist ally: %w", err)
	}
	return nil
}

// SetAllyWithdrawAuthority rotates the withdraw authority together with the
// treasury it controls.
func (e *Engine) SetAllyWithdrawAuthority(ctx context.Context, signer, allyMint, newAuthority, newTreasury string) error {
	if err := domain.ValidateAddress(newAuthority); err != nil {
		return err
	}
	if err := domain.ValidateAddress(newTreasury); err != nil {
		return err
	}
	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return err
	}
	if signer != ally.WithdrawAuthority {
		return domain.ErrInvalidAuthority
	}
	ally.WithdrawAuthority = newAuthority
	ally.Treasury = newTreasury
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return fmt.Errorf("persist ally: %w", err)
	}
	return nil
}
