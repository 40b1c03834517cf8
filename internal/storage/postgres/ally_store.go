package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// AllyStore implements storage.AllyStore using PostgreSQL.
type AllyStore struct {
	pool *Pool
}

// NewAllyStore creates a new AllyStore.
func NewAllyStore(pool *Pool) *AllyStore {
	return &AllyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AllyStore = (*AllyStore)(nil)

const allyColumns = `
	nft_mint, ops_authority, withdraw_authority, treasury, custody, role,
	balance, reserved, benefit_mode, benefit_bps, enforced,
	daily_cap_usd, cooldown_secs, monthly_limit, kyc_threshold_usd
`

// Get retrieves an ally. Returns ErrNotFound if not registered.
func (s *AllyStore) Get(ctx context.Context, nftMint string) (*domain.Ally, error) {
	query := `SELECT ` + allyColumns + ` FROM allies WHERE nft_mint = $1`

	row := s.pool.QueryRow(ctx, query, nftMint)
	a, err := scanAlly(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ally: %w", err)
	}
	return a, nil
}

// Put inserts or replaces an ally.
func (s *AllyStore) Put(ctx context.Context, a *domain.Ally) error {
	if a == nil || a.NFTMint == "" {
		return storage.ErrInvalidInput
	}
	if err := checkBigint(a.Balance, a.Reserved, a.DailyCapUSD, a.CooldownSecs, a.KYCThresholdUSD); err != nil {
		return err
	}

	query := `
		INSERT INTO allies (
			nft_mint, ops_authority, withdraw_authority, treasury, custody, role,
			balance, reserved, benefit_mode, benefit_bps, enforced,
			daily_cap_usd, cooldown_secs, monthly_limit, kyc_threshold_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (nft_mint) DO UPDATE SET
			ops_authority = EXCLUDED.ops_authority,
			withdraw_authority = EXCLUDED.withdraw_authority,
			treasury = EXCLUDED.treasury,
			custody = EXCLUDED.custody,
			role = EXCLUDED.role,
			balance = EXCLUDED.balance,
			reserved = EXCLUDED.reserved,
			benefit_mode = EXCLUDED.benefit_mode,
			benefit_bps = EXCLUDED.benefit_bps,
			enforced = EXCLUDED.enforced,
			daily_cap_usd = EXCLUDED.daily_cap_usd,
			cooldown_secs = EXCLUDED.cooldown_secs,
			monthly_limit = EXCLUDED.monthly_limit,
			kyc_threshold_usd = EXCLUDED.kyc_threshold_usd,
			updated_at = NOW()
	`

	_, err := s.pool.Exec(ctx, query,
		a.NFTMint, a.OpsAuthority, a.WithdrawAuthority, a.Treasury, a.Custody,
		int16(a.Role),
		int64(a.Balance), int64(a.Reserved),
		int16(a.BenefitMode), int32(a.BenefitBps), a.Enforced,
		int64(a.DailyCapUSD), int64(a.CooldownSecs), int16(a.MonthlyLimit), int64(a.KYCThresholdUSD),
	)
	if err != nil {
		return fmt.Errorf("put ally: %w", err)
	}
	return nil
}

// List retrieves all registered allies, ordered by NFT mint.
func (s *AllyStore) List(ctx context.Context) ([]*domain.Ally, error) {
	query := `SELECT ` + allyColumns + ` FROM allies ORDER BY nft_mint ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list allies: %w", err)
	}
	defer rows.Close()

	var result []*domain.Ally
	for rows.Next() {
		a, err := scanAlly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ally: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allies: %w", err)
	}
	return result, nil
}

func scanAlly(row pgx.Row) (*domain.Ally, error) {
	var (
		a            domain.Ally
		role         int16
		balance      int64
		reserved     int64
		benefitMode  int16
		benefitBps   int32
		dailyCap     int64
		cooldown     int64
		monthlyLimit int16
		kycThreshold int64
	)

	err := row.Scan(
		&a.NFTMint, &a.OpsAuthority, &a.WithdrawAuthority, &a.Treasury, &a.Custody,
		&role, &balance, &reserved, &benefitMode, &benefitBps, &a.Enforced,
		&dailyCap, &cooldown, &monthlyLimit, &kycThreshold,
	)
	if err != nil {
		return nil, err
	}

	a.Role = domain.AllyRole(role)
	a.Balance = uint64(balance)
	a.Reserved = uint64(reserved)
	a.BenefitMode = domain.BenefitMode(benefitMode)
	a.BenefitBps = uint16(benefitBps)
	a.DailyCapUSD = uint64(dailyCap)
	a.CooldownSecs = uint64(cooldown)
	a.MonthlyLimit = uint16(monthlyLimit)
	a.KYCThresholdUSD = uint64(kycThreshold)

	return &a, nil
}
