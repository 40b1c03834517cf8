package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/observability"
	"github.com/qara-wq/flashorca-ally-devnet/internal/oracle"
	"github.com/qara-wq/flashorca-ally-devnet/internal/pricefeed"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
	"github.com/qara-wq/flashorca-ally-devnet/internal/vault"
)

// Server is the HTTP front of the settlement engine. Signature verification
// happens upstream; handlers pass caller-supplied signer keys through for the
// engine's authority equality checks.
type Server struct {
	engine  *vault.Engine
	stores  vault.Stores
	feed    *pricefeed.Subscriber
	metrics *observability.Metrics
	logger  *log.Logger
	started time.Time
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Member and ally operations.
	mux.HandleFunc("POST /v1/convert", s.handleConvert)
	mux.HandleFunc("POST /v1/claim", s.handleClaim)
	mux.HandleFunc("POST /v1/allocate", s.handleAllocate)
	mux.HandleFunc("POST /v1/cancel", s.handleCancel)
	mux.HandleFunc("POST /v1/grant-bonus", s.handleGrantBonus)
	mux.HandleFunc("POST /v1/consume", s.handleConsume)
	mux.HandleFunc("POST /v1/deposit", s.handleDeposit)
	mux.HandleFunc("POST /v1/withdraw", s.handleWithdraw)

	// Admin surface.
	mux.HandleFunc("POST /v1/admin/initialize", s.handleInitialize)
	mux.HandleFunc("POST /v1/admin/pause", s.handlePause)
	mux.HandleFunc("POST /v1/admin/params", s.handleParams)
	mux.HandleFunc("POST /v1/admin/oracle-config", s.handleOracleConfig)
	mux.HandleFunc("POST /v1/admin/manual-price", s.handleManualPrice)
	mux.HandleFunc("POST /v1/admin/mock-oracles", s.handleMockOracles)
	mux.HandleFunc("POST /v1/admin/risk-tier", s.handleRiskTier)
	mux.HandleFunc("POST /v1/admin/econ-admin", s.handleEconAdmin)
	mux.HandleFunc("POST /v1/admin/risk-admin", s.handleRiskAdmin)

	// Ally management.
	mux.HandleFunc("POST /v1/allies", s.handleRegisterAlly)
	mux.HandleFunc("POST /v1/allies/benefit", s.handleAllyBenefit)
	mux.HandleFunc("POST /v1/allies/policy", s.handleAllyPolicy)
	mux.HandleFunc("POST /v1/allies/enforcement", s.handleAllyEnforcement)
	mux.HandleFunc("POST /v1/allies/ops-authority", s.handleAllyOpsAuthority)
	mux.HandleFunc("POST /v1/allies/withdraw-authority", s.handleAllyWithdrawAuthority)

	// Reads.
	mux.HandleFunc("GET /v1/allies/{mint}", s.handleGetAlly)
	mux.HandleFunc("GET /v1/ledger/{user}/{ally}", s.handleGetLedger)
	mux.HandleFunc("GET /v1/ledgers/{user}", s.handleGetLedgers)
	mux.HandleFunc("GET /v1/audit/{user}", s.handleGetAudit)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

// proof returns the latest live proof snapshot, or nil when the feed is not
// running or incomplete. Mock and unverified modes never need one.
func (s *Server) proof() *oracle.Proof {
	if s.feed == nil {
		return nil
	}
	p, _, ok := s.feed.Snapshot()
	if !ok {
		return nil
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAuthority):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, domain.ErrLedgerMissing),
		errors.Is(err, domain.ErrInvalidCustody):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaused):
		return http.StatusServiceUnavailable
	case domain.IsPolicy(err):
		return http.StatusTooManyRequests
	case domain.IsInsufficientFunds(err):
		return http.StatusConflict
	case domain.IsOracle(err):
		return http.StatusUnprocessableEntity
	case domain.IsArithmetic(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvariantViolated):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}

type convertRequest struct {
	User        string `json:"user"`
	AllyMint    string `json:"ally_mint"`
	Amount      uint64 `json:"amount"`
	SolUSD      uint64 `json:"sol_usd"`
	ForcaPerSol uint64 `json:"forca_per_sol"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Convert(r.Context(), vault.ConvertRequest{
		User:        req.User,
		AllyMint:    req.AllyMint,
		Amount:      req.Amount,
		SolUSD:      req.SolUSD,
		ForcaPerSol: req.ForcaPerSol,
		Proof:       s.proof(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ledger": res.Ledger,
		"record": res.Record,
	})
}

type claimRequest struct {
	User     string `json:"user"`
	AllyMint string `json:"ally_mint"`
	Amount   uint64 `json:"amount"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Claim(r.Context(), vault.ClaimRequest{
		User:     req.User,
		AllyMint: req.AllyMint,
		Amount:   req.Amount,
		Proof:    s.proof(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"net":    res.Net,
		"ledger": res.Ledger,
		"record": res.Record,
	})
}

type allyOpRequest struct {
	Signer   string `json:"signer"`
	AllyMint string `json:"ally_mint"`
	User     string `json:"user"`
	Amount   uint64 `json:"amount"`
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allyOpRequest
	if !decode(w, r, &req) {
		return
	}
	ledger, err := s.engine.Allocate(r.Context(), req.Signer, req.AllyMint, req.User, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ledger": ledger})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req allyOpRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.Cancel(r.Context(), req.Signer, req.AllyMint, req.User, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGrantBonus(w http.ResponseWriter, r *http.Request) {
	var req allyOpRequest
	if !decode(w, r, &req) {
		return
	}
	ledger, err := s.engine.GrantBonus(r.Context(), req.Signer, req.AllyMint, req.User, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ledger": ledger})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req allyOpRequest
	if !decode(w, r, &req) {
		return
	}
	ledger, err := s.engine.Consume(r.Context(), req.Signer, req.AllyMint, req.User, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ledger": ledger})
}

type custodyRequest struct {
	Signer   string `json:"signer"`
	AllyMint string `json:"ally_mint"`
	Amount   uint64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req custodyRequest
	if !decode(w, r, &req) {
		return
	}
	ally, err := s.engine.Deposit(r.Context(), req.Signer, req.AllyMint, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ally": ally})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req custodyRequest
	if !decode(w, r, &req) {
		return
	}
	ally, err := s.engine.Withdraw(r.Context(), req.Signer, req.AllyMint, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ally": ally})
}

type initializeRequest struct {
	RiskAdmin string `json:"risk_admin"`
	EconAdmin string `json:"econ_admin"`
	ForcaMint string `json:"forca_mint"`
	FeeBps    uint16 `json:"fee_bps"`
	TaxBps    uint16 `json:"tax_bps"`
	MarginBps uint16 `json:"margin_bps"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !decode(w, r, &req) {
		return
	}
	cfg, err := s.engine.InitializeVault(r.Context(), vault.InitParams{
		RiskAdmin: req.RiskAdmin,
		EconAdmin: req.EconAdmin,
		ForcaMint: req.ForcaMint,
		FeeBps:    req.FeeBps,
		TaxBps:    req.TaxBps,
		MarginBps: req.MarginBps,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"config": cfg})
}

type pauseRequest struct {
	Signer     string `json:"signer"`
	Paused     bool   `json:"paused"`
	ReasonCode uint16 `json:"reason_code"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetPause(r.Context(), req.Signer, req.Paused, req.ReasonCode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type paramsRequest struct {
	Signer    string `json:"signer"`
	FeeBps    uint16 `json:"fee_bps"`
	TaxBps    uint16 `json:"tax_bps"`
	MarginBps uint16 `json:"margin_bps"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetParams(r.Context(), req.Signer, req.FeeBps, req.TaxBps, req.MarginBps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type oracleConfigRequest struct {
	Signer           string `json:"signer"`
	VerifyPrices     bool   `json:"verify_prices"`
	UseMockOracle    bool   `json:"use_mock_oracle"`
	ToleranceBps     uint16 `json:"tolerance_bps"`
	MaxStaleSecs     uint64 `json:"max_stale_secs"`
	MaxConfidenceBps uint16 `json:"max_confidence_bps"`
	PriceFeed        string `json:"price_feed"`
	Pool             string `json:"pool"`
	PoolForcaReserve string `json:"pool_forca_reserve"`
	PoolSolReserve   string `json:"pool_sol_reserve"`
}

func (s *Server) handleOracleConfig(w http.ResponseWriter, r *http.Request) {
	var req oracleConfigRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.engine.SetOracleConfig(r.Context(), req.Signer, vault.OracleConfig{
		VerifyPrices:     req.VerifyPrices,
		UseMockOracle:    req.UseMockOracle,
		ToleranceBps:     req.ToleranceBps,
		MaxStaleSecs:     req.MaxStaleSecs,
		MaxConfidenceBps: req.MaxConfidenceBps,
		PriceFeed:        req.PriceFeed,
		Pool:             req.Pool,
		PoolForcaReserve: req.PoolForcaReserve,
		PoolSolReserve:   req.PoolSolReserve,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type manualPriceRequest struct {
	Signer   string `json:"signer"`
	ForcaUSD uint64 `json:"forca_usd"`
}

func (s *Server) handleManualPrice(w http.ResponseWriter, r *http.Request) {
	var req manualPriceRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetManualPrice(r.Context(), req.Signer, req.ForcaUSD); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type mockOraclesRequest struct {
	Signer      string `json:"signer"`
	SolUSD      uint64 `json:"sol_usd"`
	ForcaPerSol uint64 `json:"forca_per_sol"`
}

func (s *Server) handleMockOracles(w http.ResponseWriter, r *http.Request) {
	var req mockOraclesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetMockOracles(r.Context(), req.Signer, req.SolUSD, req.ForcaPerSol); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type riskTierRequest struct {
	Signer string `json:"signer"`
	User   string `json:"user"`
	Tier   uint8  `json:"tier"`
}

func (s *Server) handleRiskTier(w http.ResponseWriter, r *http.Request) {
	var req riskTierRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetRiskTier(r.Context(), req.Signer, req.User, req.Tier); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type adminRotationRequest struct {
	Signer   string `json:"signer"`
	NewAdmin string `json:"new_admin"`
}

func (s *Server) handleEconAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRotationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetEconAdmin(r.Context(), req.Signer, req.NewAdmin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRiskAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRotationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetRiskAdmin(r.Context(), req.Signer, req.NewAdmin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerAllyRequest struct {
	Signer            string `json:"signer"`
	NFTMint           string `json:"nft_mint"`
	OpsAuthority      string `json:"ops_authority"`
	WithdrawAuthority string `json:"withdraw_authority"`
	Treasury          string `json:"treasury"`
	Custody           string `json:"custody"`
	Role              uint8  `json:"role"`
}

func (s *Server) handleRegisterAlly(w http.ResponseWriter, r *http.Request) {
	var req registerAllyRequest
	if !decode(w, r, &req) {
		return
	}
	ally, err := s.engine.RegisterAlly(r.Context(), req.Signer, vault.RegisterAllyParams{
		NFTMint:           req.NFTMint,
		OpsAuthority:      req.OpsAuthority,
		WithdrawAuthority: req.WithdrawAuthority,
		Treasury:          req.Treasury,
		Custody:           req.Custody,
		Role:              domain.AllyRole(req.Role),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ally": ally})
}

type allyBenefitRequest struct {
	Signer   string `json:"signer"`
	AllyMint string `json:"ally_mint"`
	Mode     uint8  `json:"mode"`
	Bps      uint16 `json:"bps"`
}

func (s *Server) handleAllyBenefit(w http.ResponseWriter, r *http.Request) {
	var req allyBenefitRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetAllyBenefit(r.Context(), req.Signer, req.AllyMint, req.Mode, req.Bps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type allyPolicyRequest struct {
	Signer          string `json:"signer"`
	AllyMint        string `json:"ally_mint"`
	DailyCapUSD     uint64 `json:"daily_cap_usd"`
	CooldownSecs    uint64 `json:"cooldown_secs"`
	MonthlyLimit    uint16 `json:"monthly_limit"`
	KYCThresholdUSD uint64 `json:"kyc_threshold_usd"`
}

func (s *Server) handleAllyPolicy(w http.ResponseWriter, r *http.Request) {
	var req allyPolicyRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.engine.SetAllyPolicy(r.Context(), req.Signer, req.AllyMint,
		req.DailyCapUSD, req.CooldownSecs, req.MonthlyLimit, req.KYCThresholdUSD)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type allyEnforcementRequest struct {
	Signer   string `json:"signer"`
	AllyMint string `json:"ally_mint"`
	Enforce  bool   `json:"enforce"`
}

func (s *Server) handleAllyEnforcement(w http.ResponseWriter, r *http.Request) {
	var req allyEnforcementRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetAllyEnforcement(r.Context(), req.Signer, req.AllyMint, req.Enforce); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type allyAuthorityRequest struct {
	Signer       string `json:"signer"`
	AllyMint     string `json:"ally_mint"`
	NewAuthority string `json:"new_authority"`
	NewTreasury  string `json:"new_treasury"`
}

func (s *Server) handleAllyOpsAuthority(w http.ResponseWriter, r *http.Request) {
	var req allyAuthorityRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetAllyOpsAuthority(r.Context(), req.Signer, req.AllyMint, req.NewAuthority); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAllyWithdrawAuthority(w http.ResponseWriter, r *http.Request) {
	var req allyAuthorityRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.engine.SetAllyWithdrawAuthority(r.Context(), req.Signer, req.AllyMint, req.NewAuthority, req.NewTreasury)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetAlly(w http.ResponseWriter, r *http.Request) {
	ally, err := s.stores.Allies.Get(r.Context(), r.PathValue("mint"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ally": ally})
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := s.stores.Ledgers.Get(r.Context(), r.PathValue("user"), r.PathValue("ally"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ledger": ledger})
}

func (s *Server) handleGetLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers, err := s.stores.Ledgers.GetByUser(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ledgers": ledgers})
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	records, err := s.stores.Audit.GetByUser(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Initialized bool   `json:"initialized"`
	Paused      bool   `json:"paused"`
	PriceMode   string `json:"price_mode,omitempty"`
	FeedFreshAt int64  `json:"feed_fresh_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Uptime: time.Since(s.started).String(),
	}
	if cfg, err := s.stores.VaultState.Get(r.Context()); err == nil {
		resp.Initialized = true
		resp.Paused = cfg.Paused
		resp.PriceMode = cfg.PriceMode.String()
	}
	if s.feed != nil {
		if _, at, ok := s.feed.Snapshot(); ok {
			resp.FeedFreshAt = at.Unix()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
