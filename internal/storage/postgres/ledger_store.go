package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

const ledgerColumns = `
	user_addr, ally_mint, claimable, points, hwm_claimed, tax_hwm,
	total_claimed, created_at, updated_at
`

// Get retrieves a ledger. Returns ErrNotFound if never created.
func (s *LedgerStore) Get(ctx context.Context, user, allyMint string) (*domain.UserLedger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM user_ledgers WHERE user_addr = $1 AND ally_mint = $2`

	row := s.pool.QueryRow(ctx, query, user, allyMint)
	l, err := scanLedger(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return l, nil
}

// Put inserts or replaces a ledger.
func (s *LedgerStore) Put(ctx context.Context, l *domain.UserLedger) error {
	if l == nil || l.User == "" || l.AllyMint == "" {
		return storage.ErrInvalidInput
	}
	if err := checkBigint(l.Claimable, l.Points, l.HWMClaimed, l.TaxHWM, l.TotalClaimed); err != nil {
		return err
	}

	query := `
		INSERT INTO user_ledgers (
			user_addr, ally_mint, claimable, points, hwm_claimed, tax_hwm,
			total_claimed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_addr, ally_mint) DO UPDATE SET
			claimable = EXCLUDED.claimable,
			points = EXCLUDED.points,
			hwm_claimed = EXCLUDED.hwm_claimed,
			tax_hwm = EXCLUDED.tax_hwm,
			total_claimed = EXCLUDED.total_claimed,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		l.User, l.AllyMint,
		int64(l.Claimable), int64(l.Points), int64(l.HWMClaimed), int64(l.TaxHWM),
		int64(l.TotalClaimed), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put ledger: %w", err)
	}
	return nil
}

// GetByUser retrieves every ledger for a member, ordered by ally mint.
func (s *LedgerStore) GetByUser(ctx context.Context, user string) ([]*domain.UserLedger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM user_ledgers WHERE user_addr = $1 ORDER BY ally_mint ASC`

	rows, err := s.pool.Query(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("get ledgers by user: %w", err)
	}
	defer rows.Close()

	var result []*domain.UserLedger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledgers: %w", err)
	}
	return result, nil
}

func scanLedger(row pgx.Row) (*domain.UserLedger, error) {
	var (
		l            domain.UserLedger
		claimable    int64
		points       int64
		hwmClaimed   int64
		taxHWM       int64
		totalClaimed int64
	)

	err := row.Scan(
		&l.User, &l.AllyMint, &claimable, &points, &hwmClaimed, &taxHWM,
		&totalClaimed, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Claimable = uint64(claimable)
	l.Points = uint64(points)
	l.HWMClaimed = uint64(hwmClaimed)
	l.TaxHWM = uint64(taxHWM)
	l.TotalClaimed = uint64(totalClaimed)

	return &l, nil
}
