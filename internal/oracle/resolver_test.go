package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
)

const (
	testFeed         = "FeedSoLUsd1111111111111111111111111111111111"
	testPool         = "Poo1ForcaSo1111111111111111111111111111111111"
	testForcaReserve = "Rsv1Forca11111111111111111111111111111111111"
	testSolReserve   = "Rsv1So111111111111111111111111111111111111111"
	testForcaMint    = "ForcaMint11111111111111111111111111111111111"
)

func liveConfig() *domain.VaultConfig {
	return &domain.VaultConfig{
		ForcaMint:        testForcaMint,
		PriceMode:        domain.PriceModeVerifiedLive,
		ToleranceBps:     100,
		MaxStaleSecs:     120,
		MaxConfidenceBps: 100,
		PriceFeed:        testFeed,
		Pool:             testPool,
		PoolForcaReserve: testForcaReserve,
		PoolSolReserve:   testSolReserve,
		ManualForcaUSD:   1_000_000,
	}
}

// liveProof builds a proof with SOL at $150 (expo -8), 1,000 FORCA / 10 SOL
// reserves, i.e. 100 FORCA per SOL and $1.50 per FORCA.
func liveProof(now int64) *Proof {
	return &Proof{
		Feed: FeedAccount{
			Address: testFeed,
			Owner:   PushOracleProgramID,
			Data:    buildAttestation(1, 15_000_000_000, 1_000, -8, now-10),
		},
		Pool: testPool,
		ForcaReserve: ReserveAccount{
			Address: testForcaReserve,
			Owner:   testPool,
			Mint:    testForcaMint,
			Amount:  1_000_000_000, // 1,000 FORCA (1e6)
		},
		SolReserve: ReserveAccount{
			Address: testSolReserve,
			Owner:   testPool,
			Mint:    domain.WSOLMint,
			Amount:  10_000_000_000, // 10 SOL (1e9)
		},
	}
}

func TestCrossCheck_Live(t *testing.T) {
	now := int64(1_700_000_000)
	cfg := liveConfig()

	res, err := CrossCheck(now, cfg, 150_000_000, 100_000_000, liveProof(now))
	require.NoError(t, err)

	assert.Equal(t, uint64(150_000_000), res.SolUSD)
	assert.Equal(t, uint64(100_000_000), res.ForcaPerSol)

	// Within the 1% band still passes.
	_, err = CrossCheck(now, cfg, 151_000_000, 99_500_000, liveProof(now))
	require.NoError(t, err)

	// Outside the band fails.
	_, err = CrossCheck(now, cfg, 152_000_000, 100_000_000, liveProof(now))
	assert.ErrorIs(t, err, domain.ErrOracleOutOfTolerance)

	_, err = CrossCheck(now, cfg, 150_000_000, 98_000_000, liveProof(now))
	assert.ErrorIs(t, err, domain.ErrOracleOutOfTolerance)
}

func TestCrossCheck_IdentityMismatch(t *testing.T) {
	now := int64(1_700_000_000)
	cfg := liveConfig()

	p := liveProof(now)
	p.Feed.Address = "WrongFeed11111111111111111111111111111111111"
	_, err := CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	assert.ErrorIs(t, err, domain.ErrOracleKeyMismatch)

	p = liveProof(now)
	p.ForcaReserve.Owner = "NotThePoo1111111111111111111111111111111111"
	_, err = CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	assert.ErrorIs(t, err, domain.ErrOracleKeyMismatch)

	p = liveProof(now)
	p.SolReserve.Mint = testForcaMint
	_, err = CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	assert.ErrorIs(t, err, domain.ErrInvalidMint)

	// Feed owned by an unknown program is a parse failure, not a key
	// mismatch: the account itself is the configured one.
	p = liveProof(now)
	p.Feed.Owner = "SomeOtherProgram1111111111111111111111111111"
	_, err = CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	assert.ErrorIs(t, err, domain.ErrOracleParse)

	_, err = CrossCheck(now, cfg, 150_000_000, 100_000_000, nil)
	assert.ErrorIs(t, err, domain.ErrOracleKeyMismatch)
}

func TestCrossCheck_Staleness(t *testing.T) {
	now := int64(1_700_000_000)
	cfg := liveConfig()

	p := liveProof(now)
	p.Feed.Data = buildAttestation(1, 15_000_000_000, 1_000, -8, now-121)
	_, err := CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	assert.ErrorIs(t, err, domain.ErrOracleStale)

	// Exactly at the limit is still fresh.
	p.Feed.Data = buildAttestation(1, 15_000_000_000, 1_000, -8, now-120)
	_, err = CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	require.NoError(t, err)

	// Future publish time is invalid, not merely stale.
	p.Feed.Data = buildAttestation(1, 15_000_000_000, 1_000, -8, now+1)
	_, err = CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	assert.ErrorIs(t, err, domain.ErrOracleStale)
}

func TestCrossCheck_Confidence(t *testing.T) {
	now := int64(1_700_000_000)
	cfg := liveConfig()

	// Confidence at 2% of price with a 1% limit.
	p := liveProof(now)
	p.Feed.Data = buildAttestation(1, 15_000_000_000, 300_000_000, -8, now-10)
	_, err := CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	assert.ErrorIs(t, err, domain.ErrOracleConfidence)

	// Limit of zero disables the check.
	cfg.MaxConfidenceBps = 0
	_, err = CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	require.NoError(t, err)
}

func TestCrossCheck_EmptySolReserve(t *testing.T) {
	now := int64(1_700_000_000)
	cfg := liveConfig()

	p := liveProof(now)
	p.SolReserve.Amount = 0
	_, err := CrossCheck(now, cfg, 150_000_000, 100_000_000, p)
	assert.ErrorIs(t, err, domain.ErrOracleParse)
}

func TestCrossCheck_Mock(t *testing.T) {
	now := int64(1_700_000_000)
	cfg := liveConfig()
	cfg.PriceMode = domain.PriceModeVerifiedMock
	cfg.Mock = domain.MockOracle{
		SolUSD:      150_000_000,
		ForcaPerSol: 100_000_000,
	}

	// No proof needed in mock mode.
	res, err := CrossCheck(now, cfg, 150_000_000, 100_000_000, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000_000), res.SolUSD)

	_, err = CrossCheck(now, cfg, 160_000_000, 100_000_000, nil)
	assert.ErrorIs(t, err, domain.ErrOracleOutOfTolerance)
}

func TestResolveForcaUSD_Live(t *testing.T) {
	now := int64(1_700_000_000)
	cfg := liveConfig()

	// $150/SOL at 100 FORCA/SOL -> $1.50 per FORCA.
	rate, err := ResolveForcaUSD(now, cfg, liveProof(now))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), rate)
}

func TestResolveForcaUSD_ManualFallback(t *testing.T) {
	now := int64(1_700_000_000)

	cfg := liveConfig()
	cfg.PriceMode = domain.PriceModeVerifiedMock
	cfg.ManualForcaUSD = 2_000_000

	rate, err := ResolveForcaUSD(now, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), rate)

	cfg.PriceMode = domain.PriceModeUnverified
	rate, err = ResolveForcaUSD(now, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), rate)
}
