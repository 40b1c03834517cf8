package memory

import (
	"context"
	"sync"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

type guardKey struct {
	user     string
	allyMint string
}

// ClaimGuardStore is an in-memory implementation of storage.ClaimGuardStore.
type ClaimGuardStore struct {
	mu   sync.RWMutex
	data map[guardKey]*domain.ClaimGuardState
}

// NewClaimGuardStore creates a new in-memory claim guard store.
func NewClaimGuardStore() *ClaimGuardStore {
	return &ClaimGuardStore{
		data: make(map[guardKey]*domain.ClaimGuardState),
	}
}

// Get retrieves guard state. Returns ErrNotFound before the first gated claim.
func (s *ClaimGuardStore) Get(_ context.Context, user, allyMint string) (*domain.ClaimGuardState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.data[guardKey{user: user, allyMint: allyMint}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	guardCopy := *g
	return &guardCopy, nil
}

// Put inserts or replaces guard state.
func (s *ClaimGuardStore) Put(_ context.Context, g *domain.ClaimGuardState) error {
	if g == nil || g.User == "" || g.AllyMint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	guardCopy := *g
	s.data[guardKey{user: g.User, allyMint: g.AllyMint}] = &guardCopy
	return nil
}

// Compile-time interface check
var _ storage.ClaimGuardStore = (*ClaimGuardStore)(nil)
