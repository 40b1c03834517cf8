package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// AllyStore is an in-memory implementation of storage.AllyStore.
type AllyStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Ally // keyed by nft_mint
}

// NewAllyStore creates a new in-memory ally store.
func NewAllyStore() *AllyStore {
	return &AllyStore{
		data: make(map[string]*domain.Ally),
	}
}

// Get retrieves an ally. Returns ErrNotFound if not registered.
func (s *AllyStore) Get(_ context.Context, nftMint string) (*domain.Ally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[nftMint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	allyCopy := *a
	return &allyCopy, nil
}

// Put inserts or replaces an ally.
func (s *AllyStore) Put(_ context.Context, a *domain.Ally) error {
	if a == nil || a.NFTMint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	allyCopy := *a
	s.data[a.NFTMint] = &allyCopy
	return nil
}

// List retrieves all registered allies, ordered by NFT mint.
func (s *AllyStore) List(_ context.Context) ([]*domain.Ally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Ally, 0, len(s.data))
	for _, a := range s.data {
		allyCopy := *a
		result = append(result, &allyCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].NFTMint < result[j].NFTMint
	})

	return result, nil
}

// Compile-time interface check
var _ storage.AllyStore = (*AllyStore)(nil)
