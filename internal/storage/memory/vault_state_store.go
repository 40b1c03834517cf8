package memory

import (
	"context"
	"sync"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// VaultStateStore is an in-memory implementation of storage.VaultStateStore.
type VaultStateStore struct {
	mu  sync.RWMutex
	cfg *domain.VaultConfig
}

// NewVaultStateStore creates a new in-memory vault state store.
func NewVaultStateStore() *VaultStateStore {
	return &VaultStateStore{}
}

// Get retrieves the vault config. Returns ErrNotFound before init.
func (s *VaultStateStore) Get(_ context.Context) (*domain.VaultConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	cfgCopy := *s.cfg
	return &cfgCopy, nil
}

// Put stores the vault config, replacing any existing one.
func (s *VaultStateStore) Put(_ context.Context, cfg *domain.VaultConfig) error {
	if cfg == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	cfgCopy := *cfg
	s.cfg = &cfgCopy
	return nil
}

// Compile-time interface check
var _ storage.VaultStateStore = (*VaultStateStore)(nil)
