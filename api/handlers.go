/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the accounts, the ledger, and the settlement engine via REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                     List all accounts
    POST   /api/accounts                     Create account
    GET    /api/accounts/{id}                Get account details
    GET    /api/accounts/{id}/balance        Derived balance summary
    GET    /api/accounts/{id}/records        Ledger history
    GET    /api/accounts/{id}/dashboard      Composite view (triggers settlement)

  Money movement:
    POST   /api/accounts/{id}/deposits       Credit money
    POST   /api/accounts/{id}/withdrawals    Debit money

  Investments:
    GET    /api/accounts/{id}/investments    List investments
    POST   /api/accounts/{id}/investments    Open a fixed-term investment

  Admin:
    POST   /api/admin/sweep                  Settlement sweep (all accounts)

ACCESS-TIME SETTLEMENT:
  The dashboard endpoint runs the settlement engine for the account before
  rendering. A settlement failure never blocks the view: the account data
  is served anyway and the failure is reported in the payload.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, insufficient balance
  - 404: Resource not found
  - 409: Conflict (duplicate receipt, lost concurrent update)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - engine/engine.go: Settlement logic
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mesu/settlement-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  engine.TxStore
	Engine *engine.Engine
}

// NewHandler creates a new handler backed by the given engine.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{
		Store:  eng.Store,
		Engine: eng,
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

// CreateAccount creates a new account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	acct := engine.Account{
		ID:        engine.AccountID(req.ID),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if acct.ID == "" {
		acct.ID = engine.NewAccountID()
	}

	if err := h.Store.SaveAccount(r.Context(), acct); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acct))
}

// GetBalance returns the derived balance summary for an account.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}

	summary, err := h.Engine.Balances(r.Context(), acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(acct.ID, summary))
}

// GetRecords returns the account's ledger history.
func (h *Handler) GetRecords(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}

	records, err := h.Store.RecordsByAccount(r.Context(), acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load records", err)
		return
	}

	dtos := make([]RecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MONEY MOVEMENT
// =============================================================================

// Deposit credits money into an account.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.appendMovement(w, r, engine.RecordDeposit, req.Amount, req.ReceiptNumber, req.EffectiveDate)
}

// Withdraw debits money from an account. The amount must not exceed the
// uninvested balance: invested principal is locked until maturity.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.appendMovement(w, r, engine.RecordWithdrawal, req.Amount, req.ReceiptNumber, req.EffectiveDate)
}

func (h *Handler) appendMovement(w http.ResponseWriter, r *http.Request, kind engine.RecordKind, rawAmount, receiptNumber, effectiveDate string) {
	acct, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive", nil)
		return
	}

	effective := engine.Today()
	if effectiveDate != "" {
		effective, err = engine.ParseDate(effectiveDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_date (use YYYY-MM-DD)", err)
			return
		}
	}

	if kind == engine.RecordWithdrawal {
		summary, err := h.Engine.Balances(r.Context(), acct.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
			return
		}
		if amount.GreaterThan(summary.Uninvested) {
			writeDomainError(w, &engine.InsufficientBalanceError{
				AccountID: acct.ID,
				Available: summary.Uninvested,
				Requested: amount,
			})
			return
		}
	}

	receipt := receiptNumber
	if receipt == "" {
		receipt = fmt.Sprintf("%s-%s", movementPrefix(kind), engine.NewRecordID())
	}

	rec := engine.LedgerRecord{
		ID:            engine.NewRecordID(),
		AccountID:     acct.ID,
		Kind:          kind,
		Amount:        amount,
		ReceiptNumber: receipt,
		EffectiveDate: effective,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.Store.AppendRecord(r.Context(), rec); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

func movementPrefix(kind engine.RecordKind) string {
	if kind == engine.RecordWithdrawal {
		return "WD"
	}
	return "DEP"
}

// =============================================================================
// INVESTMENT HANDLERS
// =============================================================================

// ListInvestments returns the account's investments.
func (h *Handler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}

	investments, err := h.Store.InvestmentsByAccount(r.Context(), acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load investments", err)
		return
	}

	dtos := make([]InvestmentDTO, len(investments))
	for i, inv := range investments {
		dtos[i] = toInvestmentDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInvestment opens a fixed-term investment funded from the account's
// uninvested balance.
func (h *Handler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}

	var req CreateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid principal", err)
		return
	}
	rate, err := decimal.NewFromString(req.AnnualRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid annual_rate", err)
		return
	}
	startDate, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}

	// Validate the terms before touching balances.
	if _, err := engine.MaturityInterest(principal, rate, req.TermMonths); err != nil {
		writeDomainError(w, err)
		return
	}
	if !principal.IsPositive() {
		writeError(w, http.StatusBadRequest, "principal must be positive", nil)
		return
	}

	summary, err := h.Engine.Balances(r.Context(), acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	if principal.GreaterThan(summary.Uninvested) {
		writeDomainError(w, &engine.InsufficientBalanceError{
			AccountID: acct.ID,
			Available: summary.Uninvested,
			Requested: principal,
		})
		return
	}

	inv := engine.Investment{
		ID:         engine.NewInvestmentID(),
		AccountID:  acct.ID,
		Principal:  principal,
		AnnualRate: rate,
		TermMonths: req.TermMonths,
		StartDate:  startDate,
		Status:     engine.StatusActive,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.Store.SaveInvestment(r.Context(), inv); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create investment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvestmentDTO(inv))
}

// =============================================================================
// DASHBOARD - the access-time settlement hook
// =============================================================================

// GetDashboard runs settlement for the account, then returns the composite
// view. Settlement trouble is reported in the payload, never as an error:
// the account view must render regardless.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	results, err := h.Engine.RunForAccount(ctx, acct.ID, engine.Today())
	if err != nil {
		log.Printf("[API] dashboard settlement for account %s failed: %v", acct.ID, err)
	}

	summary, err := h.Engine.Balances(ctx, acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	investments, err := h.Store.InvestmentsByAccount(ctx, acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load investments", err)
		return
	}
	records, err := h.Store.RecordsByAccount(ctx, acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load records", err)
		return
	}

	dto := DashboardDTO{
		Account:     toAccountDTO(*acct),
		Balance:     toBalanceDTO(acct.ID, summary),
		Investments: make([]InvestmentDTO, len(investments)),
		Records:     make([]RecordDTO, len(records)),
	}
	for i, inv := range investments {
		dto.Investments[i] = toInvestmentDTO(inv)
	}
	for i, rec := range records {
		dto.Records[i] = toRecordDTO(rec)
	}
	for _, res := range results {
		dto.Settlements = append(dto.Settlements, toResultDTO(res))
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerSweep runs the settlement sweep over every account.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf := engine.Today()
	if req.AsOf != "" {
		var err error
		asOf, err = engine.ParseDate(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of (use YYYY-MM-DD)", err)
			return
		}
	}

	eng := h.Engine
	if req.DryRun {
		eng = eng.WithDryRun()
	}

	results, err := eng.RunSweep(r.Context(), asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}

	resp := SweepResponse{
		AsOf:    asOf.String(),
		DryRun:  req.DryRun,
		Results: make([]SettlementResultDTO, len(results)),
	}
	for i, res := range results {
		resp.Results[i] = toResultDTO(res)
		switch res.Status {
		case engine.SettlementSettled:
			resp.Settled++
		case engine.SettlementSkipped:
			resp.Skipped++
		case engine.SettlementFailed:
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) lookupAccount(w http.ResponseWriter, r *http.Request) (*engine.Account, bool) {
	id := engine.AccountID(chi.URLParam(r, "id"))

	acct, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return nil, false
	}
	if acct == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return nil, false
	}
	return acct, true
}

func toAccountDTO(a engine.Account) AccountDTO {
	dto := AccountDTO{ID: string(a.ID), Name: a.Name}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toInvestmentDTO(inv engine.Investment) InvestmentDTO {
	dto := InvestmentDTO{
		ID:              string(inv.ID),
		AccountID:       string(inv.AccountID),
		Principal:       inv.Principal.String(),
		AnnualRate:      inv.AnnualRate.String(),
		TermMonths:      inv.TermMonths,
		StartDate:       inv.StartDate.String(),
		MaturityDate:    inv.MaturityDate().String(),
		Status:          string(inv.Status),
		InterestSettled: inv.InterestSettled,
	}
	if inv.InterestSettledDate != nil {
		dto.InterestSettledDate = inv.InterestSettledDate.String()
	}
	if interest, err := engine.MaturityInterest(inv.Principal, inv.AnnualRate, inv.TermMonths); err == nil {
		dto.ExpectedInterest = interest.String()
	}
	return dto
}

func toRecordDTO(rec engine.LedgerRecord) RecordDTO {
	dto := RecordDTO{
		ID:            string(rec.ID),
		AccountID:     string(rec.AccountID),
		Kind:          string(rec.Kind),
		Amount:        rec.Amount.String(),
		ReceiptNumber: rec.ReceiptNumber,
		EffectiveDate: rec.EffectiveDate.String(),
	}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toBalanceDTO(id engine.AccountID, s engine.BalanceSummary) BalanceDTO {
	return BalanceDTO{
		AccountID:  string(id),
		Total:      s.Total.String(),
		Invested:   s.Invested.String(),
		Uninvested: s.Uninvested.String(),
	}
}

func toResultDTO(res engine.SettlementResult) SettlementResultDTO {
	dto := SettlementResultDTO{
		SubjectID: res.SubjectID,
		AccountID: string(res.AccountID),
		Kind:      string(res.Kind),
		Amount:    res.Amount.String(),
		Receipt:   res.Receipt,
		Status:    string(res.Status),
	}
	if res.Err != nil {
		dto.Error = res.Err.Error()
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrDuplicateReceipt),
		errors.Is(err, engine.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Conflict", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
