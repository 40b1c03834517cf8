package memory

import (
	"context"
	"sync"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// RiskProfileStore is an in-memory implementation of storage.RiskProfileStore.
type RiskProfileStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RiskProfile // keyed by user address
}

// NewRiskProfileStore creates a new in-memory risk profile store.
func NewRiskProfileStore() *RiskProfileStore {
	return &RiskProfileStore{
		data: make(map[string]*domain.RiskProfile),
	}
}

// Get retrieves a profile. Returns ErrNotFound if never set.
func (s *RiskProfileStore) Get(_ context.Context, user string) (*domain.RiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[user]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	profileCopy := *p
	return &profileCopy, nil
}

// Put inserts or replaces a profile.
func (s *RiskProfileStore) Put(_ context.Context, p *domain.RiskProfile) error {
	if p == nil || p.User == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	profileCopy := *p
	s.data[p.User] = &profileCopy
	return nil
}

// Compile-time interface check
var _ storage.RiskProfileStore = (*RiskProfileStore)(nil)
