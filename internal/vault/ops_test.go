package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

func TestAllocateReservesCustody(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, func(a *domain.Ally) {
		a.Balance = 1_000_000
	})
	env.seedLedger(t, nil)
	env.seedTier(t, domain.TierSoft)

	ledger, err := env.engine.Allocate(context.Background(), testOpsAuth, testAllyMint, testMember, 600_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(600_000), ledger.Claimable)
	assert.Equal(t, uint64(600_000), env.ally(t).Reserved)

	// A second allocation may not exceed the unreserved balance.
	_, err = env.engine.Allocate(context.Background(), testOpsAuth, testAllyMint, testMember, 500_000)
	require.ErrorIs(t, err, domain.ErrInsufficientUnreserved)
	assert.Equal(t, uint64(600_000), env.ally(t).Reserved)
}

func TestAllocateRequiresOpsAuthority(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, func(a *domain.Ally) {
		a.Balance = 1_000_000
	})
	env.seedLedger(t, nil)
	env.seedTier(t, domain.TierSoft)

	_, err := env.engine.Allocate(context.Background(), testWdAuth, testAllyMint, testMember, 100_000)
	require.ErrorIs(t, err, domain.ErrInvalidAuthority)
}

func TestAllocateRequiresExistingLedger(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, func(a *domain.Ally) {
		a.Balance = 1_000_000
	})
	env.seedTier(t, domain.TierSoft)

	_, err := env.engine.Allocate(context.Background(), testOpsAuth, testAllyMint, testMember, 100_000)
	require.ErrorIs(t, err, domain.ErrLedgerMissing)
}

func TestAllocateTierGating(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, func(a *domain.Ally) {
		a.Balance = 1_000_000
	})
	env.seedLedger(t, nil)

	// No stored profile means Suspicious, denied under enforcement.
	_, err := env.engine.Allocate(context.Background(), testOpsAuth, testAllyMint, testMember, 100_000)
	require.ErrorIs(t, err, domain.ErrTierDenied)

	env.seedTier(t, domain.TierSuspicious)
	_, err = env.engine.Allocate(context.Background(), testOpsAuth, testAllyMint, testMember, 100_000)
	require.ErrorIs(t, err, domain.ErrTierDenied)

	env.seedTier(t, domain.TierSoft)
	_, err = env.engine.Allocate(context.Background(), testOpsAuth, testAllyMint, testMember, 100_000)
	require.NoError(t, err)
}

func TestAllocateUnverifiedMemberAllowedWithoutEnforcement(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, func(a *domain.Ally) {
		a.Balance = 1_000_000
		a.Enforced = false
	})
	env.seedLedger(t, nil)

	_, err := env.engine.Allocate(context.Background(), testOpsAuth, testAllyMint, testMember, 100_000)
	require.NoError(t, err)
}

func TestCancelReturnsAllowance(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, func(a *domain.Ally) {
		a.Balance = 1_000_000
		a.Reserved = 600_000
	})
	env.seedLedger(t, func(l *domain.UserLedger) {
		l.Claimable = 600_000
	})

	err := env.engine.Cancel(context.Background(), testOpsAuth, testAllyMint, testMember, 400_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), env.ledger(t).Claimable)
	assert.Equal(t, uint64(200_000), env.ally(t).Reserved)

	err = env.engine.Cancel(context.Background(), testOpsAuth, testAllyMint, testMember, 400_000)
	require.ErrorIs(t, err, domain.ErrInsufficientClaimable)

	err = env.engine.Cancel(context.Background(), testWdAuth, testAllyMint, testMember, 100_000)
	require.ErrorIs(t, err, domain.ErrInvalidAuthority)
}

func TestGrantBonusCreatesLedgerLazily(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, nil)

	_, err := env.stores.Ledgers.Get(context.Background(), testMember, testAllyMint)
	require.ErrorIs(t, err, storage.ErrNotFound)

	ledger, err := env.engine.GrantBonus(context.Background(), testOpsAuth, testAllyMint, testMember, 250_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000), ledger.Points)

	ledger, err = env.engine.GrantBonus(context.Background(), testOpsAuth, testAllyMint, testMember, 250_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), ledger.Points)
}

func TestConsumeDebitsPoints(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, nil)
	env.seedLedger(t, func(l *domain.UserLedger) {
		l.Points = 300_000
	})

	ledger, err := env.engine.Consume(context.Background(), testOpsAuth, testAllyMint, testMember, 100_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), ledger.Points)

	_, err = env.engine.Consume(context.Background(), testOpsAuth, testAllyMint, testMember, 300_000)
	require.ErrorIs(t, err, domain.ErrInsufficientPoints)
	assert.Equal(t, uint64(200_000), env.ledger(t).Points)

	_, err = env.engine.Consume(context.Background(), testOpsAuth, testAllyMint, addr(0xAA), 100_000)
	require.ErrorIs(t, err, domain.ErrLedgerMissing)
}

func TestDepositAndWithdraw(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, nil)

	ally, err := env.engine.Deposit(context.Background(), testWdAuth, testAllyMint, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), ally.Balance)

	_, err = env.engine.Deposit(context.Background(), testOpsAuth, testAllyMint, 1_000_000)
	require.ErrorIs(t, err, domain.ErrInvalidAuthority)

	ally, err = env.engine.Withdraw(context.Background(), testWdAuth, testAllyMint, 400_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(600_000), ally.Balance)

	_, err = env.engine.Withdraw(context.Background(), testWdAuth, testAllyMint, 800_000)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestWithdrawCannotTouchReserve(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, func(a *domain.Ally) {
		a.Balance = 1_000_000
		a.Reserved = 700_000
	})

	_, err := env.engine.Withdraw(context.Background(), testWdAuth, testAllyMint, 500_000)
	require.ErrorIs(t, err, domain.ErrInsufficientUnreserved)
	assert.Equal(t, uint64(1_000_000), env.ally(t).Balance)

	ally, err := env.engine.Withdraw(context.Background(), testWdAuth, testAllyMint, 300_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(700_000), ally.Balance)
}

func TestOpsRejectZeroAmounts(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, testConfig())
	env.seedAlly(t, func(a *domain.Ally) {
		a.Balance = 1_000_000
	})
	env.seedLedger(t, nil)

	ctx := context.Background()
	_, err := env.engine.Allocate(ctx, testOpsAuth, testAllyMint, testMember, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	err = env.engine.Cancel(ctx, testOpsAuth, testAllyMint, testMember, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	_, err = env.engine.GrantBonus(ctx, testOpsAuth, testAllyMint, testMember, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	_, err = env.engine.Consume(ctx, testOpsAuth, testAllyMint, testMember, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	_, err = env.engine.Deposit(ctx, testWdAuth, testAllyMint, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	_, err = env.engine.Withdraw(ctx, testWdAuth, testAllyMint, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}
