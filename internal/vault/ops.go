package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/fixedpoint"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// Ally-side operations: allocation and cancellation of claimable allowance,
// bonus point grants, point consumption, and custody deposits/withdrawals.
// Signer fields are compared against stored authorities; signature
// verification itself is the host's job.

func (e *Engine) loadAlly(ctx context.Context, allyMint string) (*domain.Ally, error) {
	ally, err := e.stores.Allies.Get(ctx, allyMint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrInvalidCustody
		}
		return nil, fmt.Errorf("load ally: %w", err)
	}
	return ally, nil
}

// Allocate earmarks claimable allowance for a member, reserving the matching
// FORCA in ally custody. The member must already hold a ledger in this
// ally's scope, and when the ally enforces risk policy, a Soft or Strong
// tier.
func (e *Engine) Allocate(ctx context.Context, signer, allyMint, user string, amount uint64) (*domain.UserLedger, error) {
	err := e.allocate(ctx, signer, allyMint, user, amount)
	e.metrics.RecordOperation(domain.OpAllocate, err)
	if err != nil {
		return nil, err
	}
	return e.stores.Ledgers.Get(ctx, user, allyMint)
}

func (e *Engine) allocate(ctx context.Context, signer, allyMint, user string, amount uint64) error {
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return domain.ErrPaused
	}
	if amount == 0 {
		return domain.ErrZeroAmount
	}

	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return err
	}
	if signer != ally.OpsAuthority {
		return domain.ErrInvalidAuthority
	}

	ledger, err := e.stores.Ledgers.Get(ctx, user, allyMint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrLedgerMissing
		}
		return fmt.Errorf("load ledger: %w", err)
	}

	if ally.Enforced {
		tier := e.riskTier(ctx, user)
		if tier != domain.TierSoft && tier != domain.TierStrong {
			return fmt.Errorf("%w: tier %s", domain.ErrTierDenied, tier)
		}
	}

	newReserved, err := fixedpoint.Add(ally.Reserved, amount)
	if err != nil {
		return err
	}
	if ally.Balance < newReserved {
		return domain.ErrInsufficientUnreserved
	}
	ally.Reserved = newReserved

	ledger.Claimable, err = fixedpoint.Add(ledger.Claimable, amount)
	if err != nil {
		return err
	}
	now := e.now()
	ledger.UpdatedAt = now

	if err := checkAllyInvariants(ally); err != nil {
		return err
	}
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return fmt.Errorf("persist ally: %w", err)
	}
	if err := e.stores.Ledgers.Put(ctx, ledger); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}

	e.appendAudit(ctx, &domain.AuditRecord{
		Op: domain.OpAllocate, User: user, AllyMint: allyMint,
		Amount: amount, Timestamp: now,
	})
	return nil
}

// Cancel returns not-yet-claimed allowance to the ally, freeing the reserve.
func (e *Engine) Cancel(ctx context.Context, signer, allyMint, user string, amount uint64) error {
	err := e.cancel(ctx, signer, allyMint, user, amount)
	e.metrics.RecordOperation(domain.OpCancel, err)
	return err
}

func (e *Engine) cancel(ctx context.Context, signer, allyMint, user string, amount uint64) error {
	if amount == 0 {
		return domain.ErrZeroAmount
	}

	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return err
	}
	if signer != ally.OpsAuthority {
		return domain.ErrInvalidAuthority
	}

	ledger, err := e.stores.Ledgers.Get(ctx, user, allyMint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrLedgerMissing
		}
		return fmt.Errorf("load ledger: %w", err)
	}
	if ledger.Claimable < amount {
		return domain.ErrInsufficientClaimable
	}
	if ally.Reserved < amount {
		return domain.ErrInsufficientReserved
	}

	ledger.Claimable, err = fixedpoint.Sub(ledger.Claimable, amount)
	if err != nil {
		return err
	}
	ally.Reserved, err = fixedpoint.Sub(ally.Reserved, amount)
	if err != nil {
		return err
	}
	now := e.now()
	ledger.UpdatedAt = now

	if err := checkAllyInvariants(ally); err != nil {
		return err
	}
	if err := e.stores.Ledgers.Put(ctx, ledger); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return fmt.Errorf("persist ally: %w", err)
	}

	e.appendAudit(ctx, &domain.AuditRecord{
		Op: domain.OpCancel, User: user, AllyMint: allyMint,
		Amount: amount, Timestamp: now,
	})
	return nil
}

// GrantBonus credits points directly, lazily creating the scoped ledger.
func (e *Engine) GrantBonus(ctx context.Context, signer, allyMint, user string, amount uint64) (*domain.UserLedger, error) {
	ledger, err := e.grantBonus(ctx, signer, allyMint, user, amount)
	e.metrics.RecordOperation(domain.OpGrantBonus, err)
	return ledger, err
}

func (e *Engine) grantBonus(ctx context.Context, signer, allyMint, user string, amount uint64) (*domain.UserLedger, error) {
	if amount == 0 {
		return nil, domain.ErrZeroAmount
	}

	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return nil, err
	}
	if signer != ally.OpsAuthority {
		return nil, domain.ErrInvalidAuthority
	}

	now := e.now()
	ledger, err := e.loadOrCreateLedger(ctx, user, allyMint, now)
	if err != nil {
		return nil, err
	}

	ledger.Points, err = fixedpoint.Add(ledger.Points, amount)
	if err != nil {
		return nil, err
	}
	ledger.UpdatedAt = now

	if err := e.stores.Ledgers.Put(ctx, ledger); err != nil {
		return nil, fmt.Errorf("persist ledger: %w", err)
	}

	e.appendAudit(ctx, &domain.AuditRecord{
		Op: domain.OpGrantBonus, User: user, AllyMint: allyMint,
		Amount: amount, BonusPts: amount, Timestamp: now,
	})
	return ledger, nil
}

// Consume debits points from the member's scoped ledger.
func (e *Engine) Consume(ctx context.Context, signer, allyMint, user string, amount uint64) (*domain.UserLedger, error) {
	ledger, err := e.consume(ctx, signer, allyMint, user, amount)
	e.metrics.RecordOperation(domain.OpConsume, err)
	return ledger, err
}

func (e *Engine) consume(ctx context.Context, signer, allyMint, user string, amount uint64) (*domain.UserLedger, error) {
	if amount == 0 {
		return nil, domain.ErrZeroAmount
	}

	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return nil, err
	}
	if signer != ally.OpsAuthority {
		return nil, domain.ErrInvalidAuthority
	}

	ledger, err := e.stores.Ledgers.Get(ctx, user, allyMint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrLedgerMissing
		}
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if ledger.Points < amount {
		return nil, domain.ErrInsufficientPoints
	}

	ledger.Points, err = fixedpoint.Sub(ledger.Points, amount)
	if err != nil {
		return nil, err
	}
	now := e.now()
	ledger.UpdatedAt = now

	if err := e.stores.Ledgers.Put(ctx, ledger); err != nil {
		return nil, fmt.Errorf("persist ledger: %w", err)
	}

	e.appendAudit(ctx, &domain.AuditRecord{
		Op: domain.OpConsume, User: user, AllyMint: allyMint,
		Amount: amount, Timestamp: now,
	})
	return ledger, nil
}

// Deposit credits the ally's custody balance.
func (e *Engine) Deposit(ctx context.Context, signer, allyMint string, amount uint64) (*domain.Ally, error) {
	ally, err := e.deposit(ctx, signer, allyMint, amount)
	e.metrics.RecordOperation(domain.OpDeposit, err)
	return ally, err
}

func (e *Engine) deposit(ctx context.Context, signer, allyMint string, amount uint64) (*domain.Ally, error) {
	if amount == 0 {
		return nil, domain.ErrZeroAmount
	}

	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return nil, err
	}
	if signer != ally.WithdrawAuthority {
		return nil, domain.ErrInvalidAuthority
	}

	ally.Balance, err = fixedpoint.Add(ally.Balance, amount)
	if err != nil {
		return nil, err
	}

	if err := checkAllyInvariants(ally); err != nil {
		return nil, err
	}
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return nil, fmt.Errorf("persist ally: %w", err)
	}

	e.appendAudit(ctx, &domain.AuditRecord{
		Op: domain.OpDeposit, AllyMint: allyMint, User: signer,
		Amount: amount, Timestamp: e.now(),
	})
	return ally, nil
}

// Withdraw debits the ally's custody balance; the reserve earmarked for
// pending claims can never be pulled out.
func (e *Engine) Withdraw(ctx context.Context, signer, allyMint string, amount uint64) (*domain.Ally, error) {
	ally, err := e.withdraw(ctx, signer, allyMint, amount)
	e.metrics.RecordOperation(domain.OpWithdraw, err)
	return ally, err
}

func (e *Engine) withdraw(ctx context.Context, signer, allyMint string, amount uint64) (*domain.Ally, error) {
	if amount == 0 {
		return nil, domain.ErrZeroAmount
	}

	ally, err := e.loadAlly(ctx, allyMint)
	if err != nil {
		return nil, err
	}
	if signer != ally.WithdrawAuthority {
		return nil, domain.ErrInvalidAuthority
	}
	if ally.Balance < amount {
		return nil, domain.ErrInsufficientBalance
	}

	remaining, err := fixedpoint.Sub(ally.Balance, amount)
	if err != nil {
		return nil, err
	}
	if remaining < ally.Reserved {
		return nil, domain.ErrInsufficientUnreserved
	}
	ally.Balance = remaining

	if err := checkAllyInvariants(ally); err != nil {
		return nil, err
	}
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return nil, fmt.Errorf("persist ally: %w", err)
	}

	e.appendAudit(ctx, &domain.AuditRecord{
		Op: domain.OpWithdraw, AllyMint: allyMint, User: signer,
		Amount: amount, Timestamp: e.now(),
	})
	return ally, nil
}
