package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

type ledgerKey struct {
	user     string
	allyMint string
}

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu   sync.RWMutex
	data map[ledgerKey]*domain.UserLedger
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		data: make(map[ledgerKey]*domain.UserLedger),
	}
}

// Get retrieves a ledger. Returns ErrNotFound if never created.
func (s *LedgerStore) Get(_ context.Context, user, allyMint string) (*domain.UserLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.data[ledgerKey{user: user, allyMint: allyMint}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	ledgerCopy := *l
	return &ledgerCopy, nil
}

// Put inserts or replaces a ledger.
func (s *LedgerStore) Put(_ context.Context, l *domain.UserLedger) error {
	if l == nil || l.User == "" || l.AllyMint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	ledgerCopy := *l
	s.data[ledgerKey{user: l.User, allyMint: l.AllyMint}] = &ledgerCopy
	return nil
}

// GetByUser retrieves every ledger for a member, ordered by ally mint.
func (s *LedgerStore) GetByUser(_ context.Context, user string) ([]*domain.UserLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.UserLedger
	for k, l := range s.data {
		if k.user == user {
			ledgerCopy := *l
			result = append(result, &ledgerCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AllyMint < result[j].AllyMint
	})

	return result, nil
}

// Compile-time interface check
var _ storage.LedgerStore = (*LedgerStore)(nil)
