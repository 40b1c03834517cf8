package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// AuditStore is an in-memory implementation of storage.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	records []*domain.AuditRecord
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append stores one audit record.
func (s *AuditStore) Append(_ context.Context, r *domain.AuditRecord) error {
	if r == nil || r.Op == "" || r.User == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	recordCopy := *r
	s.records = append(s.records, &recordCopy)
	return nil
}

// GetByUser retrieves all records for a member, ordered by timestamp ASC.
func (s *AuditStore) GetByUser(_ context.Context, user string) ([]*domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AuditRecord
	for _, r := range s.records {
		if r.User == user {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// Compile-time interface check
var _ storage.AuditStore = (*AuditStore)(nil)
