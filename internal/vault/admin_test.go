package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

func initVault(t *testing.T, env *testEnv) *domain.VaultConfig {
	t.Helper()
	cfg, err := env.engine.InitializeVault(context.Background(), InitParams{
		RiskAdmin: testRiskAdmin,
		EconAdmin: testEconAdmin,
		ForcaMint: testForcaMint,
		FeeBps:    100,
		TaxBps:    500,
		MarginBps: 200,
	})
	require.NoError(t, err)
	return cfg
}

func TestInitializeVaultDefaults(t *testing.T) {
	env := newTestEnv(t)
	cfg := initVault(t, env)

	assert.Equal(t, uint64(domain.DefaultDailyCapUSD), cfg.DailyCapUSD)
	assert.Equal(t, uint64(domain.DefaultManualForcaUSD), cfg.ManualForcaUSD)
	assert.Equal(t, domain.PriceModeUnverified, cfg.PriceMode)
	assert.Equal(t, uint16(domain.DefaultToleranceBps), cfg.ToleranceBps)
	assert.Equal(t, uint64(domain.DefaultMaxStaleSecs), cfg.MaxStaleSecs)
	assert.False(t, cfg.Paused)
	assert.False(t, cfg.MockLocked)

	_, err := env.engine.InitializeVault(context.Background(), InitParams{
		RiskAdmin: testRiskAdmin, EconAdmin: testEconAdmin, ForcaMint: testForcaMint,
	})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestInitializeVaultValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.InitializeVault(context.Background(), InitParams{
		RiskAdmin: testRiskAdmin, EconAdmin: testEconAdmin, ForcaMint: testForcaMint,
		FeeBps: 10_001,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBps)

	_, err = env.engine.InitializeVault(context.Background(), InitParams{
		RiskAdmin: "not-an-address", EconAdmin: testEconAdmin, ForcaMint: testForcaMint,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestSetPause(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()

	err := env.engine.SetPause(ctx, testEconAdmin, true, uint16(domain.PauseSecurityIncident))
	require.NoError(t, err)
	cfg, err := env.stores.VaultState.Get(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Paused)
	assert.Equal(t, domain.PauseSecurityIncident, cfg.PauseReason)

	// Unpausing clears the reason.
	require.NoError(t, env.engine.SetPause(ctx, testEconAdmin, false, 0))
	cfg, err = env.stores.VaultState.Get(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.Paused)
	assert.Equal(t, domain.PauseNone, cfg.PauseReason)

	err = env.engine.SetPause(ctx, testRiskAdmin, true, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)
	err = env.engine.SetPause(ctx, testEconAdmin, true, 99)
	assert.ErrorIs(t, err, domain.ErrInvalidPauseReason)
}

func TestSetParams(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.SetParams(ctx, testEconAdmin, 50, 250, 100))
	cfg, err := env.stores.VaultState.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(50), cfg.FeeBps)
	assert.Equal(t, uint16(250), cfg.TaxBps)
	assert.Equal(t, uint16(100), cfg.MarginBps)

	assert.ErrorIs(t, env.engine.SetParams(ctx, testEconAdmin, 10_001, 0, 0), domain.ErrInvalidBps)
	assert.ErrorIs(t, env.engine.SetParams(ctx, testRiskAdmin, 50, 250, 100), domain.ErrInvalidAuthority)
}

func mockOracleConfig() OracleConfig {
	return OracleConfig{
		VerifyPrices:     true,
		UseMockOracle:    true,
		ToleranceBps:     100,
		MaxStaleSecs:     120,
		MaxConfidenceBps: 100,
	}
}

func liveOracleConfig() OracleConfig {
	return OracleConfig{
		VerifyPrices:     true,
		UseMockOracle:    false,
		ToleranceBps:     100,
		MaxStaleSecs:     120,
		MaxConfidenceBps: 100,
		PriceFeed:        addr(0x10),
		Pool:             addr(0x11),
		PoolForcaReserve: addr(0x12),
		PoolSolReserve:   addr(0x13),
	}
}

func TestSetOracleConfigTransitions(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()

	// Unverified to verified-mock.
	require.NoError(t, env.engine.SetOracleConfig(ctx, testEconAdmin, mockOracleConfig()))
	cfg, err := env.stores.VaultState.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PriceModeVerifiedMock, cfg.PriceMode)
	assert.False(t, cfg.MockLocked)

	// Verification cannot be turned back off.
	oc := mockOracleConfig()
	oc.VerifyPrices = false
	assert.ErrorIs(t, env.engine.SetOracleConfig(ctx, testEconAdmin, oc), domain.ErrVerifyPricesLocked)

	// Mock to live latches the mock lock.
	require.NoError(t, env.engine.SetOracleConfig(ctx, testEconAdmin, liveOracleConfig()))
	cfg, err = env.stores.VaultState.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PriceModeVerifiedLive, cfg.PriceMode)
	assert.True(t, cfg.MockLocked)

	// Once live, mock mode is gone for good.
	assert.ErrorIs(t, env.engine.SetOracleConfig(ctx, testEconAdmin, mockOracleConfig()), domain.ErrMockOracleLocked)
}

func TestSetOracleConfigLiveRequiresAddresses(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()

	oc := liveOracleConfig()
	oc.PoolSolReserve = ""
	assert.ErrorIs(t, env.engine.SetOracleConfig(ctx, testEconAdmin, oc), domain.ErrOracleAddressMissing)

	oc = liveOracleConfig()
	oc.PriceFeed = "bad!"
	assert.ErrorIs(t, env.engine.SetOracleConfig(ctx, testEconAdmin, oc), domain.ErrInvalidAddress)
}

func TestSetOracleConfigValidation(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()

	oc := mockOracleConfig()
	oc.ToleranceBps = 10_001
	assert.ErrorIs(t, env.engine.SetOracleConfig(ctx, testEconAdmin, oc), domain.ErrInvalidBps)

	oc = mockOracleConfig()
	oc.MaxConfidenceBps = 0
	assert.ErrorIs(t, env.engine.SetOracleConfig(ctx, testEconAdmin, oc), domain.ErrInvalidBps)

	assert.ErrorIs(t, env.engine.SetOracleConfig(ctx, testRiskAdmin, mockOracleConfig()), domain.ErrInvalidAuthority)
}

func TestManualPriceOnlyInMockMode(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()

	err := env.engine.SetManualPrice(ctx, testRiskAdmin, 2_000_000)
	assert.ErrorIs(t, err, domain.ErrManualPriceDisabled)

	require.NoError(t, env.engine.SetOracleConfig(ctx, testEconAdmin, mockOracleConfig()))
	require.NoError(t, env.engine.SetManualPrice(ctx, testRiskAdmin, 2_000_000))
	cfg, err := env.stores.VaultState.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), cfg.ManualForcaUSD)

	err = env.engine.SetManualPrice(ctx, testEconAdmin, 3_000_000)
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)
}

func TestSetMockOracles(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.SetMockOracles(ctx, testEconAdmin, 150_000_000, 100_000_000))
	cfg, err := env.stores.VaultState.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000_000), cfg.Mock.SolUSD)
	assert.Equal(t, uint64(100_000_000), cfg.Mock.ForcaPerSol)
	assert.Equal(t, env.now, cfg.Mock.PublishTime)
	assert.NotZero(t, cfg.Mock.ReserveF)
	assert.NotZero(t, cfg.Mock.ReserveS)
}

func TestSetRiskTier(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.SetRiskTier(ctx, testRiskAdmin, testMember, uint8(domain.TierStrong)))
	profile, err := env.stores.Risk.Get(ctx, testMember)
	require.NoError(t, err)
	assert.Equal(t, domain.TierStrong, profile.Tier)

	err = env.engine.SetRiskTier(ctx, testEconAdmin, testMember, uint8(domain.TierSoft))
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)
	err = env.engine.SetRiskTier(ctx, testRiskAdmin, testMember, 99)
	assert.ErrorIs(t, err, domain.ErrInvalidRiskTier)
}

func TestAdminRotations(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ctx := context.Background()
	next := addr(0x20)

	assert.ErrorIs(t, env.engine.SetEconAdmin(ctx, testEconAdmin, ""), domain.ErrInvalidAddress)
	assert.ErrorIs(t, env.engine.SetEconAdmin(ctx, testRiskAdmin, next), domain.ErrInvalidAuthority)

	require.NoError(t, env.engine.SetEconAdmin(ctx, testEconAdmin, next))
	// The old key no longer signs.
	assert.ErrorIs(t, env.engine.SetParams(ctx, testEconAdmin, 1, 1, 1), domain.ErrInvalidAuthority)
	require.NoError(t, env.engine.SetParams(ctx, next, 1, 1, 1))

	require.NoError(t, env.engine.SetRiskAdmin(ctx, testRiskAdmin, next))
	cfg, err := env.stores.VaultState.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, cfg.RiskAdmin)
}

func registerTestAlly(t *testing.T, env *testEnv) *domain.Ally {
	t.Helper()
	ally, err := env.engine.RegisterAlly(context.Background(), testEconAdmin, RegisterAllyParams{
		NFTMint:           testAllyMint,
		OpsAuthority:      testOpsAuth,
		WithdrawAuthority: testWdAuth,
		Treasury:          testTreasury,
		Custody:           testCustody,
		Role:              domain.RoleMarketing,
	})
	require.NoError(t, err)
	return ally
}

func TestRegisterAllyDefaults(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	ally := registerTestAlly(t, env)

	assert.True(t, ally.Enforced)
	assert.Equal(t, uint64(domain.DefaultDailyCapUSD), ally.DailyCapUSD)
	assert.Equal(t, domain.BenefitNone, ally.BenefitMode)
	assert.Zero(t, ally.MonthlyLimit)
	assert.Zero(t, ally.KYCThresholdUSD)

	_, err := env.engine.RegisterAlly(context.Background(), testEconAdmin, RegisterAllyParams{
		NFTMint:           testAllyMint,
		OpsAuthority:      testOpsAuth,
		WithdrawAuthority: testWdAuth,
		Treasury:          testTreasury,
		Custody:           testCustody,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = env.engine.RegisterAlly(context.Background(), testOpsAuth, RegisterAllyParams{
		NFTMint: addr(0x30), OpsAuthority: testOpsAuth, WithdrawAuthority: testWdAuth,
		Treasury: testTreasury, Custody: testCustody,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)
}

func TestRegisterAllyRejectsOnCurveCustody(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)

	_, err := env.engine.RegisterAlly(context.Background(), testEconAdmin, RegisterAllyParams{
		NFTMint:           testAllyMint,
		OpsAuthority:      testOpsAuth,
		WithdrawAuthority: testWdAuth,
		Treasury:          testTreasury,
		Custody:           onCurveAddr(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCustody)

	_, getErr := env.stores.Allies.Get(context.Background(), testAllyMint)
	assert.ErrorIs(t, getErr, storage.ErrNotFound)
}

func TestSetAllyBenefit(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	registerTestAlly(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.SetAllyBenefit(ctx, testOpsAuth, testAllyMint, uint8(domain.BenefitDiscount), 1_000))
	ally := env.ally(t)
	assert.Equal(t, domain.BenefitDiscount, ally.BenefitMode)
	assert.Equal(t, uint16(1_000), ally.BenefitBps)

	err := env.engine.SetAllyBenefit(ctx, testWdAuth, testAllyMint, uint8(domain.BenefitDiscount), 1_000)
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)
	err = env.engine.SetAllyBenefit(ctx, testOpsAuth, testAllyMint, 99, 1_000)
	assert.ErrorIs(t, err, domain.ErrInvalidBenefitMode)
	err = env.engine.SetAllyBenefit(ctx, testOpsAuth, testAllyMint, uint8(domain.BenefitDiscount), 10_001)
	assert.ErrorIs(t, err, domain.ErrInvalidBps)
}

func TestSetAllyPolicyBounds(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	registerTestAlly(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.SetAllyPolicy(ctx, testWdAuth, testAllyMint, 5_000_000, 3_600, 10, 100_000_000))
	ally := env.ally(t)
	assert.Equal(t, uint64(5_000_000), ally.DailyCapUSD)
	assert.Equal(t, uint64(3_600), ally.CooldownSecs)
	assert.Equal(t, uint16(10), ally.MonthlyLimit)
	assert.Equal(t, uint64(100_000_000), ally.KYCThresholdUSD)

	err := env.engine.SetAllyPolicy(ctx, testWdAuth, testAllyMint, 100, 0, 0, 0)
	assert.ErrorIs(t, err, domain.ErrPolicyBounds)
	err = env.engine.SetAllyPolicy(ctx, testWdAuth, testAllyMint, 5_000_000, 100_000, 0, 0)
	assert.ErrorIs(t, err, domain.ErrPolicyBounds)
	err = env.engine.SetAllyPolicy(ctx, testWdAuth, testAllyMint, 5_000_000, 0, 40, 0)
	assert.ErrorIs(t, err, domain.ErrPolicyBounds)
	err = env.engine.SetAllyPolicy(ctx, testOpsAuth, testAllyMint, 5_000_000, 0, 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)
}

func TestSetAllyEnforcement(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	registerTestAlly(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.SetAllyEnforcement(ctx, testWdAuth, testAllyMint, false))
	assert.False(t, env.ally(t).Enforced)

	err := env.engine.SetAllyEnforcement(ctx, testOpsAuth, testAllyMint, true)
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)
}

func TestAllyAuthorityRotations(t *testing.T) {
	env := newTestEnv(t)
	initVault(t, env)
	registerTestAlly(t, env)
	ctx := context.Background()

	newOps := addr(0x31)
	require.NoError(t, env.engine.SetAllyOpsAuthority(ctx, testOpsAuth, testAllyMint, newOps))
	assert.Equal(t, newOps, env.ally(t).OpsAuthority)
	err := env.engine.SetAllyOpsAuthority(ctx, testOpsAuth, testAllyMint, addr(0x32))
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)

	newWd, newTreasury := addr(0x33), addr(0x34)
	require.NoError(t, env.engine.SetAllyWithdrawAuthority(ctx, testWdAuth, testAllyMint, newWd, newTreasury))
	ally := env.ally(t)
	assert.Equal(t, newWd, ally.WithdrawAuthority)
	assert.Equal(t, newTreasury, ally.Treasury)

	err = env.engine.SetAllyWithdrawAuthority(ctx, testWdAuth, testAllyMint, addr(0x35), addr(0x36))
	assert.ErrorIs(t, err, domain.ErrInvalidAuthority)
}
