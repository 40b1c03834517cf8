package postgres

import (
	"context"
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// ClaimGuardStore implements storage.ClaimGuardStore using PostgreSQL.
type ClaimGuardStore struct {
	pool *Pool
}

// NewClaimGuardStore creates a new ClaimGuardStore.
func NewClaimGuardStore(pool *Pool) *ClaimGuardStore {
	return &ClaimGuardStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClaimGuardStore = (*ClaimGuardStore)(nil)

// Get retrieves guard state. Returns ErrNotFound before the first gated claim.
func (s *ClaimGuardStore) Get(ctx context.Context, user, allyMint string) (*domain.ClaimGuardState, error) {
	query := `
		SELECT user_addr, ally_mint, day, used_usd, last_claim, month_index, month_claims
		FROM claim_guards
		WHERE user_addr = $1 AND ally_mint = $2
	`

	var (
		g           domain.ClaimGuardState
		usedUSD     int64
		monthClaims int16
	)
	row := s.pool.QueryRow(ctx, query, user, allyMint)
	err := row.Scan(&g.User, &g.AllyMint, &g.Day, &usedUSD, &g.LastClaim, &g.MonthIndex, &monthClaims)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get claim guard: %w", err)
	}
	g.UsedUSD = uint64(usedUSD)
	g.MonthClaims = uint16(monthClaims)
	return &g, nil
}

// Put inserts or replaces guard state.
func (s *ClaimGuardStore) Put(ctx context.Context, g *domain.ClaimGuardState) error {
	if g == nil || g.User == "" || g.AllyMint == "" {
		return storage.ErrInvalidInput
	}
	if err := checkBigint(g.UsedUSD); err != nil {
		return err
	}

	query := `
		INSERT INTO claim_guards (user_addr, ally_mint, day, used_usd, last_claim, month_index, month_claims)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_addr, ally_mint) DO UPDATE SET
			day = EXCLUDED.day,
			used_usd = EXCLUDED.used_usd,
			last_claim = EXCLUDED.last_claim,
			month_index = EXCLUDED.month_index,
			month_claims = EXCLUDED.month_claims
	`

	_, err := s.pool.Exec(ctx, query,
		g.User, g.AllyMint, g.Day, int64(g.UsedUSD), g.LastClaim, g.MonthIndex, int16(g.MonthClaims),
	)
	if err != nil {
		return fmt.Errorf("put claim guard: %w", err)
	}
	return nil
}
