// Package guard implements the per-(member, ally) claim admission checks:
// a rolling daily USD cap, a monthly claim-count cap, and a cooldown timer.
package guard

import (
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/fixedpoint"
)

// Policy is the ally's guard configuration for one member pool.
type Policy struct {
	DailyCapUSD  uint64
	CooldownSecs uint64
	MonthlyLimit uint16 // 0 disables the monthly cap
}

// Decision reports the values computed during an admission, for auditing.
type Decision struct {
	ClaimUSD    uint64 // micro-USD value of this claim
	UsedUSD     uint64 // day usage after admission
	MonthClaims uint16 // month count after admission
}

// NewState initializes guard counters for the first gated attempt.
func NewState(user, allyMint string, now int64) *domain.ClaimGuardState {
	return &domain.ClaimGuardState{
		User:       user,
		AllyMint:   allyMint,
		Day:        fixedpoint.DayIndex(now),
		MonthIndex: fixedpoint.MonthIndex(now),
	}
}

// Admit runs the admission sequence for a claim of amount FORCA valued at
// forcaUSD micro-USD per token. On success it returns the rolled-and-updated
// state copy for the engine to persist; on rejection the stored state must
// remain untouched, so the caller discards the copy.
//
// Order: roll windows, monthly cap, daily USD cap, cooldown, then commit.
func Admit(state *domain.ClaimGuardState, policy Policy, now int64, amount, forcaUSD uint64) (*domain.ClaimGuardState, *Decision, error) {
	next := *state

	// Roll the month window in place.
	monthIndex := fixedpoint.MonthIndex(now)
	if next.MonthIndex != monthIndex {
		next.MonthIndex = monthIndex
		next.MonthClaims = 0
	}

	bumpMonth := false
	if policy.MonthlyLimit > 0 {
		if next.MonthClaims >= policy.MonthlyLimit {
			return nil, nil, fmt.Errorf("%w: %d claims this month", domain.ErrMonthlyLimitExceeded, next.MonthClaims)
		}
		bumpMonth = true
	}

	claimUSD, err := fixedpoint.MulDiv(amount, forcaUSD, domain.USDScale)
	if err != nil {
		return nil, nil, err
	}

	// Roll the day window in place.
	day := fixedpoint.DayIndex(now)
	if next.Day != day {
		next.Day = day
		next.UsedUSD = 0
	}

	newUsed, err := fixedpoint.Add(next.UsedUSD, claimUSD)
	if err != nil {
		return nil, nil, err
	}
	if newUsed > policy.DailyCapUSD {
		return nil, nil, fmt.Errorf("%w: %d of %d micro-USD", domain.ErrDailyCapExceeded, newUsed, policy.DailyCapUSD)
	}

	if policy.CooldownSecs > 0 {
		since := now - next.LastClaim
		if since < 0 || uint64(since) < policy.CooldownSecs {
			return nil, nil, fmt.Errorf("%w: %ds of %ds", domain.ErrCooldownActive, since, policy.CooldownSecs)
		}
	}

	next.UsedUSD = newUsed
	next.LastClaim = now
	if bumpMonth {
		next.MonthClaims++
	}

	return &next, &Decision{
		ClaimUSD:    claimUSD,
		UsedUSD:     newUsed,
		MonthClaims: next.MonthClaims,
	}, nil
}
