package oracle

import (
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/fixedpoint"
)

// FeedAccount is the attestation proof account supplied by the host.
type FeedAccount struct {
	Address string
	Owner   string // owning program id
	Data    []byte
}

// ReserveAccount is one side of the canonical pool, as reported on-chain.
type ReserveAccount struct {
	Address string
	Owner   string // pool authority
	Mint    string
	Amount  uint64
}

// Proof bundles the live price-proof accounts for one operation.
type Proof struct {
	Feed         FeedAccount
	Pool         string // canonical pool account address
	ForcaReserve ReserveAccount
	SolReserve   ReserveAccount
}

// Resolved carries the values derived from a successful live verification,
// for audit enrichment.
type Resolved struct {
	SolUSD      uint64 // micro-USD per SOL
	ForcaPerSol uint64 // 1e6 FORCA per SOL
	ForcaUSD    uint64 // micro-USD per FORCA
	Expo        int32
	Conf        uint64
	PublishTime int64
}

// verifyIdentities checks every proof account against the configured
// canonical addresses. A mismatch is a distinct error from data validation.
func verifyIdentities(cfg *domain.VaultConfig, proof *Proof) error {
	if proof.Feed.Address != cfg.PriceFeed {
		return fmt.Errorf("%w: price feed %s", domain.ErrOracleKeyMismatch, proof.Feed.Address)
	}
	if proof.Pool != cfg.Pool {
		return fmt.Errorf("%w: pool %s", domain.ErrOracleKeyMismatch, proof.Pool)
	}
	if proof.ForcaReserve.Address != cfg.PoolForcaReserve {
		return fmt.Errorf("%w: forca reserve %s", domain.ErrOracleKeyMismatch, proof.ForcaReserve.Address)
	}
	if proof.SolReserve.Address != cfg.PoolSolReserve {
		return fmt.Errorf("%w: sol reserve %s", domain.ErrOracleKeyMismatch, proof.SolReserve.Address)
	}
	if proof.ForcaReserve.Mint != cfg.ForcaMint {
		return fmt.Errorf("%w: forca reserve mint", domain.ErrInvalidMint)
	}
	if proof.SolReserve.Mint != domain.WSOLMint {
		return fmt.Errorf("%w: sol reserve mint", domain.ErrInvalidMint)
	}
	if proof.ForcaReserve.Owner != cfg.Pool || proof.SolReserve.Owner != cfg.Pool {
		return fmt.Errorf("%w: reserve owner", domain.ErrOracleKeyMismatch)
	}
	if proof.Feed.Owner != PushOracleProgramID && proof.Feed.Owner != ReceiverProgramID {
		return fmt.Errorf("%w: feed owner %s", domain.ErrOracleParse, proof.Feed.Owner)
	}
	return nil
}

// verifyAttestation parses and validates the feed account, returning the
// SOL/USD micro rate and the raw attestation.
func verifyAttestation(now int64, cfg *domain.VaultConfig, feed FeedAccount) (uint64, *Attestation, error) {
	att, err := ParseAttestation(feed.Data)
	if err != nil {
		return 0, nil, err
	}
	if att.PublishTime > now {
		return 0, nil, fmt.Errorf("%w: publish time in the future", domain.ErrOracleStale)
	}
	age := uint64(now - att.PublishTime)
	if age > cfg.MaxStaleSecs {
		return 0, nil, fmt.Errorf("%w: age %ds exceeds %ds", domain.ErrOracleStale, age, cfg.MaxStaleSecs)
	}
	if cfg.MaxConfidenceBps > 0 {
		confBps, err := fixedpoint.ConfidenceBps(att.Price, att.Conf)
		if err != nil {
			return 0, nil, err
		}
		if confBps > uint64(cfg.MaxConfidenceBps) {
			return 0, nil, fmt.Errorf("%w: %d bps exceeds %d bps", domain.ErrOracleConfidence, confBps, cfg.MaxConfidenceBps)
		}
	}
	solUSD, err := fixedpoint.ScaleToMicro(att.Price, att.Expo)
	if err != nil {
		return 0, nil, err
	}
	if solUSD == 0 {
		return 0, nil, fmt.Errorf("%w: scaled price is zero", domain.ErrOracleParse)
	}
	return solUSD, att, nil
}

// poolRatio derives FORCA-per-SOL (1e6 scale) from reserve balances.
func poolRatio(forcaReserve, solReserve uint64) (uint64, error) {
	if solReserve == 0 {
		return 0, fmt.Errorf("%w: empty sol reserve", domain.ErrOracleParse)
	}
	ratio, err := fixedpoint.MulDiv(forcaReserve, domain.WSOLScale, solReserve)
	if err != nil {
		return 0, err
	}
	if ratio == 0 {
		return 0, fmt.Errorf("%w: pool ratio is zero", domain.ErrOracleParse)
	}
	return ratio, nil
}

// CrossCheck validates a caller-asserted (solUSD, forcaPerSol) quote pair
// against the configured oracle sources. In mock mode the reference values
// come from the config; in live mode they are derived independently from
// the attestation and the pool reserves. Returns the derived values for
// audit enrichment.
func CrossCheck(now int64, cfg *domain.VaultConfig, assertedSolUSD, assertedForcaPerSol uint64, proof *Proof) (*Resolved, error) {
	if cfg.PriceMode == domain.PriceModeVerifiedMock {
		if !fixedpoint.WithinBps(assertedSolUSD, cfg.Mock.SolUSD, cfg.ToleranceBps) {
			return nil, fmt.Errorf("%w: sol/usd %d vs mock %d", domain.ErrOracleOutOfTolerance, assertedSolUSD, cfg.Mock.SolUSD)
		}
		if !fixedpoint.WithinBps(assertedForcaPerSol, cfg.Mock.ForcaPerSol, cfg.ToleranceBps) {
			return nil, fmt.Errorf("%w: forca/sol %d vs mock %d", domain.ErrOracleOutOfTolerance, assertedForcaPerSol, cfg.Mock.ForcaPerSol)
		}
		return &Resolved{
			SolUSD:      cfg.Mock.SolUSD,
			ForcaPerSol: cfg.Mock.ForcaPerSol,
			Expo:        cfg.Mock.Expo,
			Conf:        cfg.Mock.Conf,
			PublishTime: cfg.Mock.PublishTime,
		}, nil
	}

	if proof == nil {
		return nil, fmt.Errorf("%w: no proof supplied", domain.ErrOracleKeyMismatch)
	}
	if err := verifyIdentities(cfg, proof); err != nil {
		return nil, err
	}
	solUSD, att, err := verifyAttestation(now, cfg, proof.Feed)
	if err != nil {
		return nil, err
	}
	if !fixedpoint.WithinBps(assertedSolUSD, solUSD, cfg.ToleranceBps) {
		return nil, fmt.Errorf("%w: sol/usd %d vs derived %d", domain.ErrOracleOutOfTolerance, assertedSolUSD, solUSD)
	}
	ratio, err := poolRatio(proof.ForcaReserve.Amount, proof.SolReserve.Amount)
	if err != nil {
		return nil, err
	}
	if !fixedpoint.WithinBps(assertedForcaPerSol, ratio, cfg.ToleranceBps) {
		return nil, fmt.Errorf("%w: forca/sol %d vs derived %d", domain.ErrOracleOutOfTolerance, assertedForcaPerSol, ratio)
	}
	return &Resolved{
		SolUSD:      solUSD,
		ForcaPerSol: ratio,
		Expo:        att.Expo,
		Conf:        att.Conf,
		PublishTime: att.PublishTime,
	}, nil
}

// ResolveForcaUSD returns the authoritative FORCA/USD micro rate for fee and
// guard computations. In live mode it combines the attested SOL/USD price
// with the pool ratio; otherwise the manually configured rate applies.
func ResolveForcaUSD(now int64, cfg *domain.VaultConfig, proof *Proof) (uint64, error) {
	if cfg.PriceMode != domain.PriceModeVerifiedLive {
		return cfg.ManualForcaUSD, nil
	}
	if proof == nil {
		return 0, fmt.Errorf("%w: no proof supplied", domain.ErrOracleKeyMismatch)
	}
	if err := verifyIdentities(cfg, proof); err != nil {
		return 0, err
	}
	solUSD, _, err := verifyAttestation(now, cfg, proof.Feed)
	if err != nil {
		return 0, err
	}
	ratio, err := poolRatio(proof.ForcaReserve.Amount, proof.SolReserve.Amount)
	if err != nil {
		return 0, err
	}
	forcaUSD, err := fixedpoint.MulDiv(solUSD, domain.USDScale, ratio)
	if err != nil {
		return 0, err
	}
	if forcaUSD == 0 {
		return 0, fmt.Errorf("%w: derived forca/usd is zero", domain.ErrOracleParse)
	}
	return forcaUSD, nil
}
