package postgres

import (
	"context"
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// RiskProfileStore implements storage.RiskProfileStore using PostgreSQL.
type RiskProfileStore struct {
	pool *Pool
}

// NewRiskProfileStore creates a new RiskProfileStore.
func NewRiskProfileStore(pool *Pool) *RiskProfileStore {
	return &RiskProfileStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RiskProfileStore = (*RiskProfileStore)(nil)

// Get retrieves a profile. Returns ErrNotFound if never set.
func (s *RiskProfileStore) Get(ctx context.Context, user string) (*domain.RiskProfile, error) {
	query := `SELECT user_addr, tier, updated_at FROM risk_profiles WHERE user_addr = $1`

	var (
		p    domain.RiskProfile
		tier int16
	)
	row := s.pool.QueryRow(ctx, query, user)
	if err := row.Scan(&p.User, &tier, &p.UpdatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get risk profile: %w", err)
	}
	p.Tier = domain.RiskTier(tier)
	return &p, nil
}

// Put inserts or replaces a profile.
func (s *RiskProfileStore) Put(ctx context.Context, p *domain.RiskProfile) error {
	if p == nil || p.User == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO risk_profiles (user_addr, tier, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_addr) DO UPDATE SET
			tier = EXCLUDED.tier,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, p.User, int16(p.Tier), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put risk profile: %w", err)
	}
	return nil
}
