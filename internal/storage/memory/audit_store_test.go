package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

func TestAuditStore_AppendAndGetByUser(t *testing.T) {
	store := NewAuditStore()
	ctx := context.Background()

	records := []*domain.AuditRecord{
		{Op: domain.OpClaim, User: "user1", AllyMint: "ally1", Amount: 1_000_000, Net: 940_500, Timestamp: 300},
		{Op: domain.OpConvert, User: "user1", AllyMint: "ally1", Amount: 500_000, Timestamp: 100},
		{Op: domain.OpClaim, User: "user2", AllyMint: "ally1", Amount: 200_000, Timestamp: 200},
	}
	for _, r := range records {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.GetByUser(ctx, "user1")
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	// Ordered by timestamp ASC
	if got[0].Op != domain.OpConvert || got[1].Op != domain.OpClaim {
		t.Errorf("records out of order: got [%s, %s]", got[0].Op, got[1].Op)
	}
	if got[1].Net != 940_500 {
		t.Errorf("Net mismatch: got %d, want 940500", got[1].Net)
	}
}

func TestAuditStore_GetByUserEmpty(t *testing.T) {
	store := NewAuditStore()
	ctx := context.Background()

	got, err := store.GetByUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestAuditStore_InvalidInput(t *testing.T) {
	store := NewAuditStore()
	ctx := context.Background()

	if err := store.Append(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil record: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Append(ctx, &domain.AuditRecord{User: "user1"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty op: expected ErrInvalidInput, got %v", err)
	}
}
