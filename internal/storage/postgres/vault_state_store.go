package postgres

import (
	"context"
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// VaultStateStore implements storage.VaultStateStore using PostgreSQL.
// The config lives in a single-row table; Put upserts row id 1.
type VaultStateStore struct {
	pool *Pool
}

// NewVaultStateStore creates a new VaultStateStore.
func NewVaultStateStore(pool *Pool) *VaultStateStore {
	return &VaultStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VaultStateStore = (*VaultStateStore)(nil)

// Get retrieves the vault config. Returns ErrNotFound before init.
func (s *VaultStateStore) Get(ctx context.Context) (*domain.VaultConfig, error) {
	query := `
		SELECT risk_admin, econ_admin, forca_mint, fee_bps, tax_bps, margin_bps,
			paused, pause_reason, daily_cap_usd, cooldown_secs, manual_forca_usd,
			price_mode, mock_locked, tolerance_bps, max_stale_secs, max_confidence_bps,
			price_feed, pool, pool_forca_reserve, pool_sol_reserve,
			mock_sol_usd, mock_expo, mock_conf, mock_publish_time,
			mock_forca_per_sol, mock_reserve_f, mock_reserve_s
		FROM vault_state
		WHERE id = 1
	`

	var (
		cfg        domain.VaultConfig
		feeBps     int32
		taxBps     int32
		marginBps  int32
		pauseCode  int16
		dailyCap   int64
		cooldown   int64
		manualUSD  int64
		priceMode  int16
		tolBps     int32
		maxStale   int64
		maxConfBps int32
		mockSolUSD int64
		mockConf   int64
		mockFPS    int64
		mockRF     int64
		mockRS     int64
	)

	row := s.pool.QueryRow(ctx, query)
	err := row.Scan(
		&cfg.RiskAdmin, &cfg.EconAdmin, &cfg.ForcaMint, &feeBps, &taxBps, &marginBps,
		&cfg.Paused, &pauseCode, &dailyCap, &cooldown, &manualUSD,
		&priceMode, &cfg.MockLocked, &tolBps, &maxStale, &maxConfBps,
		&cfg.PriceFeed, &cfg.Pool, &cfg.PoolForcaReserve, &cfg.PoolSolReserve,
		&mockSolUSD, &cfg.Mock.Expo, &mockConf, &cfg.Mock.PublishTime,
		&mockFPS, &mockRF, &mockRS,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get vault state: %w", err)
	}

	cfg.FeeBps = uint16(feeBps)
	cfg.TaxBps = uint16(taxBps)
	cfg.MarginBps = uint16(marginBps)
	cfg.PauseReason = domain.PauseReason(pauseCode)
	cfg.DailyCapUSD = uint64(dailyCap)
	cfg.CooldownSecs = uint64(cooldown)
	cfg.ManualForcaUSD = uint64(manualUSD)
	cfg.PriceMode = domain.PriceMode(priceMode)
	cfg.ToleranceBps = uint16(tolBps)
	cfg.MaxStaleSecs = uint64(maxStale)
	cfg.MaxConfidenceBps = uint16(maxConfBps)
	cfg.Mock.SolUSD = uint64(mockSolUSD)
	cfg.Mock.Conf = uint64(mockConf)
	cfg.Mock.ForcaPerSol = uint64(mockFPS)
	cfg.Mock.ReserveF = uint64(mockRF)
	cfg.Mock.ReserveS = uint64(mockRS)

	return &cfg, nil
}

// Put stores the vault config, replacing any existing one.
func (s *VaultStateStore) Put(ctx context.Context, cfg *domain.VaultConfig) error {
	if cfg == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO vault_state (
			id, risk_admin, econ_admin, forca_mint, fee_bps, tax_bps, margin_bps,
			paused, pause_reason, daily_cap_usd, cooldown_secs, manual_forca_usd,
			price_mode, mock_locked, tolerance_bps, max_stale_secs, max_confidence_bps,
			price_feed, pool, pool_forca_reserve, pool_sol_reserve,
			mock_sol_usd, mock_expo, mock_conf, mock_publish_time,
			mock_forca_per_sol, mock_reserve_f, mock_reserve_s, updated_at
		) VALUES (
			1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			risk_admin = EXCLUDED.risk_admin,
			econ_admin = EXCLUDED.econ_admin,
			forca_mint = EXCLUDED.forca_mint,
			fee_bps = EXCLUDED.fee_bps,
			tax_bps = EXCLUDED.tax_bps,
			margin_bps = EXCLUDED.margin_bps,
			paused = EXCLUDED.paused,
			pause_reason = EXCLUDED.pause_reason,
			daily_cap_usd = EXCLUDED.daily_cap_usd,
			cooldown_secs = EXCLUDED.cooldown_secs,
			manual_forca_usd = EXCLUDED.manual_forca_usd,
			price_mode = EXCLUDED.price_mode,
			mock_locked = EXCLUDED.mock_locked,
			tolerance_bps = EXCLUDED.tolerance_bps,
			max_stale_secs = EXCLUDED.max_stale_secs,
			max_confidence_bps = EXCLUDED.max_confidence_bps,
			price_feed = EXCLUDED.price_feed,
			pool = EXCLUDED.pool,
			pool_forca_reserve = EXCLUDED.pool_forca_reserve,
			pool_sol_reserve = EXCLUDED.pool_sol_reserve,
			mock_sol_usd = EXCLUDED.mock_sol_usd,
			mock_expo = EXCLUDED.mock_expo,
			mock_conf = EXCLUDED.mock_conf,
			mock_publish_time = EXCLUDED.mock_publish_time,
			mock_forca_per_sol = EXCLUDED.mock_forca_per_sol,
			mock_reserve_f = EXCLUDED.mock_reserve_f,
			mock_reserve_s = EXCLUDED.mock_reserve_s,
			updated_at = NOW()
	`

	_, err := s.pool.Exec(ctx, query,
		cfg.RiskAdmin, cfg.EconAdmin, cfg.ForcaMint,
		int32(cfg.FeeBps), int32(cfg.TaxBps), int32(cfg.MarginBps),
		cfg.Paused, int16(cfg.PauseReason),
		int64(cfg.DailyCapUSD), int64(cfg.CooldownSecs), int64(cfg.ManualForcaUSD),
		int16(cfg.PriceMode), cfg.MockLocked,
		int32(cfg.ToleranceBps), int64(cfg.MaxStaleSecs), int32(cfg.MaxConfidenceBps),
		cfg.PriceFeed, cfg.Pool, cfg.PoolForcaReserve, cfg.PoolSolReserve,
		int64(cfg.Mock.SolUSD), cfg.Mock.Expo, int64(cfg.Mock.Conf), cfg.Mock.PublishTime,
		int64(cfg.Mock.ForcaPerSol), int64(cfg.Mock.ReserveF), int64(cfg.Mock.ReserveS),
	)
	if err != nil {
		return fmt.Errorf("put vault state: %w", err)
	}
	return nil
}
