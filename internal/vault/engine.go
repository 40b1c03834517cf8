// Package vault implements the settlement engine: conversion of FORCA into
// scoped points, claim settlement with base fee and high-water-mark excess
// tax, ally custody accounting, and the admin surface around them.
//
// Every operation is atomic: all validation and arithmetic runs on copies of
// the stored entities, and stores are written only after every check has
// passed. The host serializes operations touching the same entities.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/fixedpoint"
	"github.com/qara-wq/flashorca-ally-devnet/internal/guard"
	"github.com/qara-wq/flashorca-ally-devnet/internal/idhash"
	"github.com/qara-wq/flashorca-ally-devnet/internal/observability"
	"github.com/qara-wq/flashorca-ally-devnet/internal/oracle"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

// Stores bundles the persistence dependencies of the engine.
type Stores struct {
	VaultState storage.VaultStateStore
	Allies     storage.AllyStore
	Ledgers    storage.LedgerStore
	Risk       storage.RiskProfileStore
	Guards     storage.ClaimGuardStore
	Audit      storage.AuditStore
}

// Engine executes vault operations against the configured stores.
type Engine struct {
	stores  Stores
	logger  *log.Logger
	metrics *observability.Metrics

	// now is swappable for tests.
	now func() int64
}

// NewEngine creates a settlement engine. metrics may be nil.
func NewEngine(stores Stores, logger *log.Logger, metrics *observability.Metrics, now func() int64) *Engine {
	return &Engine{
		stores:  stores,
		logger:  logger,
		metrics: metrics,
		now:     now,
	}
}

// ConvertRequest is a member's FORCA to points conversion.
type ConvertRequest struct {
	User     string
	AllyMint string
	Amount   uint64 // FORCA micro units

	// Caller-asserted quote, cross-checked against the oracle sources.
	SolUSD      uint64 // micro-USD per SOL
	ForcaPerSol uint64 // 1e6 FORCA per SOL

	// Live-mode price proof; ignored in mock mode.
	Proof *oracle.Proof
}

// ConvertResult reports the updated entities and the audit record.
type ConvertResult struct {
	Ledger *domain.UserLedger
	Ally   *domain.Ally
	Record *domain.AuditRecord
}

// Convert turns a member's FORCA into ally-scoped points. The margin is
// retained in ally custody, the benefit program adjusts either the ally's
// take (discount) or the points credited (bonus), and the member's claimed
// high-water mark is pulled down by the real wallet outflow.
func (e *Engine) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	res, err := e.convert(ctx, req)
	e.metrics.RecordOperation(domain.OpConvert, err)
	if err != nil {
		e.logger.Printf("convert rejected user=%s ally=%s amount=%d: %v", req.User, req.AllyMint, req.Amount, err)
		return nil, err
	}
	e.logger.Printf("convert user=%s ally=%s amount=%d points=%d", req.User, req.AllyMint, req.Amount, res.Record.Points+res.Record.BonusPts)
	return res, nil
}

func (e *Engine) convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, domain.ErrPaused
	}
	if req.Amount == 0 {
		return nil, domain.ErrZeroAmount
	}
	if !cfg.PriceMode.Verified() {
		return nil, domain.ErrVerificationRequired
	}
	if req.ForcaPerSol == 0 {
		return nil, domain.ErrInvalidQuote
	}

	now := e.now()
	resolved, err := oracle.CrossCheck(now, cfg, req.SolUSD, req.ForcaPerSol, req.Proof)
	if err != nil {
		return nil, err
	}

	ally, err := e.stores.Allies.Get(ctx, req.AllyMint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrInvalidCustody
		}
		return nil, fmt.Errorf("load ally: %w", err)
	}

	// Margin B is always retained in ally custody.
	margin, err := fixedpoint.MulBps(req.Amount, cfg.MarginBps)
	if err != nil {
		return nil, err
	}
	base, err := fixedpoint.Sub(req.Amount, margin)
	if err != nil {
		return nil, err
	}

	// Benefit program on the post-margin base. The member's real wallet
	// outflow shrinks under a discount, and that outflow is what pulls
	// the claimed high-water mark down.
	hwmReduce := req.Amount
	var discount uint64
	netToAlly := base
	mode := ally.BenefitMode
	if ally.BenefitBps == 0 {
		mode = domain.BenefitNone
	}
	if mode == domain.BenefitDiscount {
		discount, err = fixedpoint.MulBps(base, ally.BenefitBps)
		if err != nil {
			return nil, err
		}
		hwmReduce, err = fixedpoint.Sub(hwmReduce, discount)
		if err != nil {
			return nil, err
		}
		netToAlly, err = fixedpoint.Sub(base, discount)
		if err != nil {
			return nil, err
		}
	}

	totalToAlly, err := fixedpoint.Add(netToAlly, margin)
	if err != nil {
		return nil, err
	}

	// Points are valued off the asserted quote that was just cross-checked:
	// micro-USD = amount * solUSD / forcaPerSol.
	points, err := fixedpoint.MulDiv(req.Amount, req.SolUSD, req.ForcaPerSol)
	if err != nil {
		return nil, err
	}
	var bonus uint64
	if mode == domain.BenefitBonusPoints {
		bonus, err = fixedpoint.MulBps(points, ally.BenefitBps)
		if err != nil {
			return nil, err
		}
	}
	totalPoints, err := fixedpoint.Add(points, bonus)
	if err != nil {
		return nil, err
	}

	ally.Balance, err = fixedpoint.Add(ally.Balance, totalToAlly)
	if err != nil {
		return nil, err
	}

	ledger, err := e.loadOrCreateLedger(ctx, req.User, req.AllyMint, now)
	if err != nil {
		return nil, err
	}
	hwmBefore := ledger.HWMClaimed
	ledger.Points, err = fixedpoint.Add(ledger.Points, totalPoints)
	if err != nil {
		return nil, err
	}
	ledger.HWMClaimed = fixedpoint.SaturatingSub(ledger.HWMClaimed, hwmReduce)
	ledger.UpdatedAt = now

	if err := checkAllyInvariants(ally); err != nil {
		return nil, err
	}
	if err := checkLedgerInvariants(ledger); err != nil {
		return nil, err
	}

	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return nil, fmt.Errorf("persist ally: %w", err)
	}
	if err := e.stores.Ledgers.Put(ctx, ledger); err != nil {
		return nil, fmt.Errorf("persist ledger: %w", err)
	}

	record := &domain.AuditRecord{
		Op:           domain.OpConvert,
		User:         req.User,
		AllyMint:     req.AllyMint,
		Amount:       req.Amount,
		Margin:       margin,
		Discount:     discount,
		Points:       points,
		BonusPts:     bonus,
		HWMBefore:    hwmBefore,
		HWMAfter:     ledger.HWMClaimed,
		TaxHWMBefore: ledger.TaxHWM,
		TaxHWMAfter:  ledger.TaxHWM,
		SolUSD:       resolved.SolUSD,
		ForcaPerSol:  resolved.ForcaPerSol,
		Timestamp:    now,
	}
	e.appendAudit(ctx, record)

	if e.metrics != nil {
		e.metrics.PointsCredited.Add(float64(totalPoints))
	}

	return &ConvertResult{Ledger: ledger, Ally: ally, Record: record}, nil
}

// ClaimRequest is a member's points to FORCA redemption.
type ClaimRequest struct {
	User     string
	AllyMint string
	Amount   uint64 // FORCA micro units of claimable allowance to redeem

	// Live-mode price proof for the USD valuation; ignored otherwise.
	Proof *oracle.Proof
}

// ClaimResult reports the updated entities and the audit record.
type ClaimResult struct {
	Ledger *domain.UserLedger
	Ally   *domain.Ally
	Guard  *domain.ClaimGuardState // nil when the guard was bypassed
	Record *domain.AuditRecord
	Net    uint64
}

// Claim redeems claimable allowance into FORCA. The base fee C applies to
// the gross amount; the excess tax D applies only to the part of the new
// high-water mark above the already-taxed watermark. Risk tier, KYC
// threshold, and the abuse guard gate the redemption before any balance
// moves.
func (e *Engine) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	res, err := e.claim(ctx, req)
	e.metrics.RecordOperation(domain.OpClaim, err)
	if err != nil {
		e.logger.Printf("claim rejected user=%s ally=%s amount=%d: %v", req.User, req.AllyMint, req.Amount, err)
		return nil, err
	}
	e.logger.Printf("claim user=%s ally=%s amount=%d net=%d fee=%d tax=%d",
		req.User, req.AllyMint, req.Amount, res.Net, res.Record.FeeBase, res.Record.Tax)
	return res, nil
}

func (e *Engine) claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount == 0 {
		return nil, domain.ErrZeroAmount
	}
	if cfg.Paused {
		return nil, domain.ErrPaused
	}

	ledger, err := e.stores.Ledgers.Get(ctx, req.User, req.AllyMint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrLedgerMissing
		}
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if ledger.Claimable < req.Amount {
		return nil, domain.ErrInsufficientClaimable
	}

	ally, err := e.stores.Allies.Get(ctx, req.AllyMint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrInvalidCustody
		}
		return nil, fmt.Errorf("load ally: %w", err)
	}
	if ally.Balance < req.Amount {
		return nil, domain.ErrInsufficientBalance
	}
	if ally.Reserved < req.Amount {
		return nil, domain.ErrInsufficientReserved
	}

	now := e.now()
	tier := e.riskTier(ctx, req.User)
	strong := tier == domain.TierStrong

	newTotalClaimed, err := fixedpoint.Add(ledger.TotalClaimed, req.Amount)
	if err != nil {
		return nil, err
	}

	// A USD valuation is needed whenever the guard or the KYC threshold
	// applies; Strong members bypass both.
	var forcaUSD uint64
	needUSD := !strong && (ally.Enforced || ally.KYCThresholdUSD > 0)
	if needUSD {
		forcaUSD, err = oracle.ResolveForcaUSD(now, cfg, req.Proof)
		if err != nil {
			return nil, err
		}
		if forcaUSD == 0 {
			return nil, fmt.Errorf("%w: resolved forca/usd is zero", domain.ErrOracleParse)
		}
	}

	if !strong && ally.KYCThresholdUSD > 0 {
		lifetimeUSD, err := fixedpoint.MulDiv(newTotalClaimed, forcaUSD, domain.USDScale)
		if err != nil {
			return nil, err
		}
		if lifetimeUSD > ally.KYCThresholdUSD {
			return nil, fmt.Errorf("%w: lifetime %d exceeds %d micro-USD",
				domain.ErrKYCRequired, lifetimeUSD, ally.KYCThresholdUSD)
		}
	}

	// Abuse guard admission. Rejections leave stored counters untouched;
	// the updated copy is persisted only with the rest of the commit.
	var (
		nextGuard *domain.ClaimGuardState
		decision  *guard.Decision
	)
	if ally.Enforced && !strong {
		state, err := e.stores.Guards.Get(ctx, req.User, req.AllyMint)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("load claim guard: %w", err)
			}
			state = guard.NewState(req.User, req.AllyMint, now)
		}
		policy := guard.Policy{
			DailyCapUSD:  ally.DailyCapUSD,
			CooldownSecs: ally.CooldownSecs,
			MonthlyLimit: ally.MonthlyLimit,
		}
		nextGuard, decision, err = guard.Admit(state, policy, now, req.Amount, forcaUSD)
		if err != nil {
			e.recordGuardRejection(err)
			return nil, err
		}
	}

	// Base fee C on gross, then the HWM-on-excess tax D.
	feeBase, err := fixedpoint.MulBps(req.Amount, cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	claimBasis, err := fixedpoint.Sub(req.Amount, feeBase)
	if err != nil {
		return nil, err
	}
	newHWM, err := fixedpoint.Add(ledger.HWMClaimed, claimBasis)
	if err != nil {
		return nil, err
	}
	excess := fixedpoint.SaturatingSub(newHWM, ledger.TaxHWM)
	tax, err := fixedpoint.MulBps(excess, cfg.TaxBps)
	if err != nil {
		return nil, err
	}
	feeTotal, err := fixedpoint.Add(feeBase, tax)
	if err != nil {
		return nil, err
	}
	if req.Amount <= feeTotal {
		return nil, fmt.Errorf("%w: amount %d does not cover fees %d", domain.ErrAmountTooSmall, req.Amount, feeTotal)
	}
	net, err := fixedpoint.Sub(claimBasis, tax)
	if err != nil {
		return nil, err
	}

	hwmBefore := ledger.HWMClaimed
	taxHWMBefore := ledger.TaxHWM

	// Commit on the copies, then re-verify invariants before persisting.
	ledger.Claimable, err = fixedpoint.Sub(ledger.Claimable, req.Amount)
	if err != nil {
		return nil, err
	}
	ledger.HWMClaimed = newHWM
	ledger.TaxHWM = newHWM
	ledger.TotalClaimed = newTotalClaimed
	ledger.UpdatedAt = now

	ally.Reserved, err = fixedpoint.Sub(ally.Reserved, req.Amount)
	if err != nil {
		return nil, err
	}
	ally.Balance, err = fixedpoint.Sub(ally.Balance, net)
	if err != nil {
		return nil, err
	}

	if err := checkAllyInvariants(ally); err != nil {
		return nil, err
	}
	if err := checkLedgerInvariants(ledger); err != nil {
		return nil, err
	}

	if nextGuard != nil {
		if err := e.stores.Guards.Put(ctx, nextGuard); err != nil {
			return nil, fmt.Errorf("persist claim guard: %w", err)
		}
	}
	if err := e.stores.Ledgers.Put(ctx, ledger); err != nil {
		return nil, fmt.Errorf("persist ledger: %w", err)
	}
	if err := e.stores.Allies.Put(ctx, ally); err != nil {
		return nil, fmt.Errorf("persist ally: %w", err)
	}

	record := &domain.AuditRecord{
		Op:           domain.OpClaim,
		User:         req.User,
		AllyMint:     req.AllyMint,
		Amount:       req.Amount,
		FeeBase:      feeBase,
		Excess:       excess,
		Tax:          tax,
		Net:          net,
		HWMBefore:    hwmBefore,
		HWMAfter:     newHWM,
		TaxHWMBefore: taxHWMBefore,
		TaxHWMAfter:  newHWM,
		ForcaUSD:     forcaUSD,
		Timestamp:    now,
	}
	if decision != nil {
		record.UsedUSD = decision.UsedUSD
		record.MonthClaims = decision.MonthClaims
	}
	e.appendAudit(ctx, record)

	if e.metrics != nil {
		e.metrics.FeeRetained.Add(float64(feeBase))
		e.metrics.TaxRetained.Add(float64(tax))
		e.metrics.NetPaidOut.Add(float64(net))
	}

	return &ClaimResult{Ledger: ledger, Ally: ally, Guard: nextGuard, Record: record, Net: net}, nil
}

// riskTier returns the member's stored tier; members without a profile are
// Suspicious.
func (e *Engine) riskTier(ctx context.Context, user string) domain.RiskTier {
	profile, err := e.stores.Risk.Get(ctx, user)
	if err != nil {
		return domain.TierSuspicious
	}
	return profile.Tier
}

func (e *Engine) loadConfig(ctx context.Context) (*domain.VaultConfig, error) {
	cfg, err := e.stores.VaultState.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vault state: %w", err)
	}
	if err := checkConfigInvariants(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *Engine) loadOrCreateLedger(ctx context.Context, user, allyMint string, now int64) (*domain.UserLedger, error) {
	ledger, err := e.stores.Ledgers.Get(ctx, user, allyMint)
	if err == nil {
		return ledger, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return domain.NewUserLedger(user, allyMint, now), nil
}

// appendAudit stores the record; audit failures are logged, not fatal, since
// the state commit has already happened.
func (e *Engine) appendAudit(ctx context.Context, r *domain.AuditRecord) {
	if e.stores.Audit == nil {
		return
	}
	if r.ID == "" {
		r.ID = idhash.ComputeRecordID(r.Op, r.User, r.AllyMint, r.Amount, r.Timestamp)
	}
	if err := e.stores.Audit.Append(ctx, r); err != nil {
		e.logger.Printf("audit append failed op=%s user=%s: %v", r.Op, r.User, err)
	}
}

func (e *Engine) recordGuardRejection(err error) {
	if e.metrics == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, domain.ErrDailyCapExceeded):
		reason = "daily_cap"
	case errors.Is(err, domain.ErrCooldownActive):
		reason = "cooldown"
	case errors.Is(err, domain.ErrMonthlyLimitExceeded):
		reason = "monthly_limit"
	}
	e.metrics.GuardRejections.WithLabelValues(reason).Inc()
}
