package storage

import (
	"context"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
)

// VaultStateStore provides access to the singleton vault configuration.
type VaultStateStore interface {
	// Get retrieves the vault config. Returns ErrNotFound before init.
	Get(ctx context.Context) (*domain.VaultConfig, error)

	// Put stores the vault config, replacing any existing one.
	Put(ctx context.Context, cfg *domain.VaultConfig) error
}

// AllyStore provides access to ally accounts, keyed by NFT mint.
type AllyStore interface {
	// Get retrieves an ally. Returns ErrNotFound if not registered.
	Get(ctx context.Context, nftMint string) (*domain.Ally, error)

	// Put inserts or replaces an ally.
	Put(ctx context.Context, a *domain.Ally) error

	// List retrieves all registered allies, ordered by NFT mint.
	List(ctx context.Context) ([]*domain.Ally, error)
}

// LedgerStore provides access to per-(member, ally) ledgers.
type LedgerStore interface {
	// Get retrieves a ledger. Returns ErrNotFound if never created.
	Get(ctx context.Context, user, allyMint string) (*domain.UserLedger, error)

	// Put inserts or replaces a ledger.
	Put(ctx context.Context, l *domain.UserLedger) error

	// GetByUser retrieves every ledger for a member, ordered by ally mint.
	GetByUser(ctx context.Context, user string) ([]*domain.UserLedger, error)
}

// RiskProfileStore provides access to member risk profiles.
type RiskProfileStore interface {
	// Get retrieves a profile. Returns ErrNotFound if never set.
	Get(ctx context.Context, user string) (*domain.RiskProfile, error)

	// Put inserts or replaces a profile.
	Put(ctx context.Context, p *domain.RiskProfile) error
}

// ClaimGuardStore provides access to per-(member, ally) guard counters.
type ClaimGuardStore interface {
	// Get retrieves guard state. Returns ErrNotFound before the first
	// gated claim attempt.
	Get(ctx context.Context, user, allyMint string) (*domain.ClaimGuardState, error)

	// Put inserts or replaces guard state.
	Put(ctx context.Context, g *domain.ClaimGuardState) error
}

// AuditStore is the append-only sink for operation audit records.
type AuditStore interface {
	// Append stores one audit record.
	Append(ctx context.Context, r *domain.AuditRecord) error

	// GetByUser retrieves all records for a member, ordered by timestamp ASC.
	GetByUser(ctx context.Context, user string) ([]*domain.AuditRecord, error)
}
