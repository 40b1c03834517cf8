package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// AuditStore implements storage.AuditStore using ClickHouse.
// Records are append-only; the ReplacingMergeTree key (user, ts, id)
// deduplicates retried appends of the same record.
type AuditStore struct {
	conn *Conn
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(conn *Conn) *AuditStore {
	return &AuditStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

const auditColumns = `
	id, op, user, ally_mint, amount, margin, discount, points, bonus_pts,
	fee_base, excess, tax, net,
	hwm_before, hwm_after, tax_hwm_before, tax_hwm_after,
	sol_usd, forca_per_sol, forca_usd, used_usd, month_claims, ts
`

// Append stores one audit record.
func (s *AuditStore) Append(ctx context.Context, r *domain.AuditRecord) error {
	if r == nil || r.Op == "" || r.User == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO audit_records (`+auditColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.ID, r.Op, r.User, r.AllyMint,
		r.Amount, r.Margin, r.Discount, r.Points, r.BonusPts,
		r.FeeBase, r.Excess, r.Tax, r.Net,
		r.HWMBefore, r.HWMAfter, r.TaxHWMBefore, r.TaxHWMAfter,
		r.SolUSD, r.ForcaPerSol, r.ForcaUSD, r.UsedUSD, r.MonthClaims,
		time.Unix(r.Timestamp, 0).UTC(),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByUser retrieves all records for a member, ordered by timestamp ASC.
func (s *AuditStore) GetByUser(ctx context.Context, user string) ([]*domain.AuditRecord, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_records
		WHERE user = ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("query audit records by user: %w", err)
	}
	defer rows.Close()

	var result []*domain.AuditRecord
	for rows.Next() {
		var (
			r  domain.AuditRecord
			ts time.Time
		)
		err := rows.Scan(
			&r.ID, &r.Op, &r.User, &r.AllyMint,
			&r.Amount, &r.Margin, &r.Discount, &r.Points, &r.BonusPts,
			&r.FeeBase, &r.Excess, &r.Tax, &r.Net,
			&r.HWMBefore, &r.HWMAfter, &r.TaxHWMBefore, &r.TaxHWMAfter,
			&r.SolUSD, &r.ForcaPerSol, &r.ForcaUSD, &r.UsedUSD, &r.MonthClaims,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Timestamp = ts.Unix()
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return result, nil
}
