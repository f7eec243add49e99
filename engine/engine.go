/*
engine.go - The event trigger engine

PURPOSE:
  Orchestrates settlement: enumerate candidate subjects, evaluate
  eligibility, compute the amount, consult the guard, and atomically
  append a ledger record while flipping the settlement marker.

INVOCATION MODES:
  RunForAccount: scoped to one account; the opportunistic access-time
                 path (dashboard view).
  RunSweep:      every account; the operator/scheduled batch path.
  Both share the identical per-subject logic. A subject failing never
  aborts the others: each settlement is its own atomic unit.

PER-SUBJECT ALGORITHM:
  1. Eligibility predicate (pure date comparison). Not yet due = silent skip.
  2. Guard check. Already settled = skipped result; flag drift repaired.
  3. Calculator computes the amount.
  4. Atomic unit: ledger append + settlement marker, one commit.
  5. Report (subject, amount, receipt) as a SettlementResult.

AT-LEAST-ONCE INVOCATION, AT-MOST-ONCE EFFECT:
  A failed atomic unit leaves the subject eligible; the next invocation
  retries it. A concurrent duplicate loses on the receipt uniqueness
  constraint and resolves to "skipped", never a double credit.

ORDERING WITHIN AN ACCOUNT:
  Maturity interest first, then uninvested interest, then the transfer.
  The transfer settles the full balance including interest credited just
  before it in the same run.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config carries the calendar gates and rates for the global events.
type Config struct {
	// UninvestedRate is the flat rate for the year-end uninvested-savings
	// interest event. Defaults to DefaultUninvestedRate.
	UninvestedRate decimal.Decimal

	// UninvestedEventDate gates the uninvested-interest event (on-or-after).
	UninvestedEventDate Date

	// TransferEventDate gates the transfer-to-account event (on-or-after).
	TransferEventDate Date

	// ChallengeYear is the year token embedded in the global event receipts.
	// Defaults to the uninvested event date's year.
	ChallengeYear int
}

func (c Config) withDefaults() Config {
	if c.UninvestedRate.IsZero() {
		c.UninvestedRate = DefaultUninvestedRate
	}
	if c.ChallengeYear == 0 && !c.UninvestedEventDate.IsZero() {
		c.ChallengeYear = c.UninvestedEventDate.Year()
	}
	return c
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store  TxStore
	Guard  *Guard
	Config Config

	// DryRun computes and reports amounts through the identical code path
	// but suppresses every commit.
	DryRun bool
}

func New(store TxStore, cfg Config) *Engine {
	return &Engine{
		Store:  store,
		Guard:  NewGuard(store),
		Config: cfg.withDefaults(),
	}
}

// WithDryRun returns a copy of the engine that commits nothing.
func (e *Engine) WithDryRun() *Engine {
	clone := *e
	clone.DryRun = true
	return &clone
}

// =============================================================================
// INVOCATION MODES
// =============================================================================

// RunForAccount evaluates and settles every eligible event for one account.
func (e *Engine) RunForAccount(ctx context.Context, id AccountID, asOf Date) ([]SettlementResult, error) {
	acct, err := e.Store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("run for account %s: %w", id, ErrAccountNotFound)
	}
	return e.settleAccount(ctx, *acct, asOf), nil
}

// RunSweep applies the scoped logic to every account. One account's failure
// never aborts the rest.
func (e *Engine) RunSweep(ctx context.Context, asOf Date) ([]SettlementResult, error) {
	accounts, err := e.Store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var results []SettlementResult
	for _, acct := range accounts {
		results = append(results, e.settleAccount(ctx, acct, asOf)...)
	}
	return results, nil
}

// Balances returns the derived balance summary for one account.
func (e *Engine) Balances(ctx context.Context, id AccountID) (BalanceSummary, error) {
	total, err := e.Store.BalanceByAccount(ctx, id)
	if err != nil {
		return BalanceSummary{}, err
	}

	investments, err := e.Store.InvestmentsByAccount(ctx, id)
	if err != nil {
		return BalanceSummary{}, err
	}

	invested := decimal.Zero
	for _, inv := range investments {
		invested = invested.Add(inv.Principal)
	}

	return BalanceSummary{
		Total:      total,
		Invested:   invested,
		Uninvested: total.Sub(invested),
	}, nil
}

// =============================================================================
// PER-ACCOUNT SETTLEMENT
// =============================================================================

func (e *Engine) settleAccount(ctx context.Context, acct Account, asOf Date) []SettlementResult {
	var results []SettlementResult

	investments, err := e.Store.InvestmentsByAccount(ctx, acct.ID)
	if err != nil {
		results = append(results, SettlementResult{
			SubjectID: string(acct.ID),
			AccountID: acct.ID,
			Kind:      EventMaturityInterest,
			Status:    SettlementFailed,
			Err:       err,
		})
	} else {
		for _, inv := range investments {
			// Matured investments always produce a result: settled on first
			// payment, skipped on re-invocation, failed on flag/receipt drift.
			// Unmatured ones (and matured ones owing zero) stay silent.
			if !inv.MaturedAsOf(asOf) {
				continue
			}
			if !inv.InterestSettled && !MaturityDue(inv, asOf) {
				continue
			}
			results = append(results, e.settleMaturity(ctx, inv, asOf))
		}
	}

	if GlobalEventDue(asOf, e.Config.UninvestedEventDate) {
		results = append(results, e.settleGlobal(ctx, acct, EventUninvestedInterest))
	}
	if GlobalEventDue(asOf, e.Config.TransferEventDate) {
		results = append(results, e.settleGlobal(ctx, acct, EventTransfer))
	}

	return results
}

// =============================================================================
// MATURITY INTEREST
// =============================================================================

func (e *Engine) settleMaturity(ctx context.Context, inv Investment, asOf Date) SettlementResult {
	receipt := MaturityReceipt(inv.ID, inv.MaturityDate())
	res := SettlementResult{
		SubjectID: string(inv.ID),
		AccountID: inv.AccountID,
		Kind:      EventMaturityInterest,
		Receipt:   receipt,
	}

	decision, err := e.Guard.Check(ctx, string(inv.ID), receipt, inv.InterestSettled)
	if err != nil {
		res.Status, res.Err = SettlementFailed, err
		return res
	}
	if decision.Anomaly != nil {
		// Fail closed: do not pay on the strength of a flag alone.
		log.Printf("[Engine] integrity anomaly on investment %s: %v", inv.ID, decision.Anomaly)
		res.Status, res.Err = SettlementFailed, decision.Anomaly
		return res
	}
	if decision.Settled {
		if decision.RepairFlag && !e.DryRun {
			if err := e.Store.MarkSettled(ctx, inv.ID, asOf); err != nil && !errors.Is(err, ErrConcurrentModification) {
				log.Printf("[Engine] flag repair failed for investment %s: %v", inv.ID, err)
			}
		}
		res.Status = SettlementSkipped
		return res
	}

	amount, err := MaturityInterest(inv.Principal, inv.AnnualRate, inv.TermMonths)
	if err != nil {
		res.Status, res.Err = SettlementFailed, err
		return res
	}
	res.Amount = amount

	if e.DryRun {
		res.Status = SettlementSettled
		return res
	}

	err = e.commitMaturity(ctx, inv, receipt, amount, asOf)
	if errors.Is(err, ErrConcurrentModification) {
		// The flag update lost a race. Re-read, re-run the guard, retry once.
		err = e.retryMaturity(ctx, inv.ID, receipt, amount, asOf)
	}

	switch {
	case err == nil:
		res.Status = SettlementSettled
		log.Printf("[Engine] settled maturity interest %s for investment %s (receipt %s)", amount, inv.ID, receipt)
	case errors.Is(err, ErrDuplicateReceipt):
		// A concurrent invocation won; this event is already settled.
		res.Status = SettlementSkipped
	default:
		res.Status, res.Err = SettlementFailed, err
	}
	return res
}

func (e *Engine) commitMaturity(ctx context.Context, inv Investment, receipt string, amount decimal.Decimal, asOf Date) error {
	return e.Store.WithTx(ctx, func(s Store) error {
		rec := LedgerRecord{
			ID:            NewRecordID(),
			AccountID:     inv.AccountID,
			Kind:          RecordDeposit,
			Amount:        amount,
			ReceiptNumber: receipt,
			EffectiveDate: inv.MaturityDate(),
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.AppendRecord(ctx, rec); err != nil {
			return err
		}
		return s.MarkSettled(ctx, inv.ID, asOf)
	})
}

func (e *Engine) retryMaturity(ctx context.Context, id InvestmentID, receipt string, amount decimal.Decimal, asOf Date) error {
	fresh, err := e.Store.GetInvestment(ctx, id)
	if err != nil {
		return err
	}
	if fresh == nil {
		return ErrInvestmentNotFound
	}

	decision, err := e.Guard.Check(ctx, string(id), receipt, fresh.InterestSettled)
	if err != nil {
		return err
	}
	if decision.Anomaly != nil {
		// Same fail-closed rule as the initial pass: a flag with no ledger
		// record behind it is never resolved as "already settled".
		log.Printf("[Engine] integrity anomaly on investment %s: %v", id, decision.Anomaly)
		return decision.Anomaly
	}
	if decision.Settled {
		return ErrDuplicateReceipt
	}
	return e.commitMaturity(ctx, *fresh, receipt, amount, asOf)
}

// =============================================================================
// GLOBAL EVENTS - uninvested interest and the transfer
// =============================================================================

func (e *Engine) settleGlobal(ctx context.Context, acct Account, kind EventKind) SettlementResult {
	var (
		receipt       string
		recordKind    RecordKind
		effectiveDate Date
	)
	switch kind {
	case EventUninvestedInterest:
		receipt = UninvestedReceipt(e.Config.ChallengeYear, acct.ID)
		recordKind = RecordDeposit
		effectiveDate = e.Config.UninvestedEventDate
	case EventTransfer:
		receipt = TransferReceipt(e.Config.ChallengeYear, acct.ID, e.Config.TransferEventDate)
		recordKind = RecordTransfer
		effectiveDate = e.Config.TransferEventDate
	}

	res := SettlementResult{
		SubjectID: string(acct.ID),
		AccountID: acct.ID,
		Kind:      kind,
		Receipt:   receipt,
	}

	// Accounts keep no stored flag for global events; the receipt is the
	// sole settlement marker.
	decision, err := e.Guard.Check(ctx, string(acct.ID), receipt, false)
	if err != nil {
		res.Status, res.Err = SettlementFailed, err
		return res
	}
	if decision.Settled {
		res.Status = SettlementSkipped
		return res
	}

	amount, err := e.globalAmount(ctx, acct.ID, kind)
	if err != nil {
		res.Status, res.Err = SettlementFailed, err
		return res
	}
	res.Amount = amount

	if e.DryRun {
		res.Status = SettlementSettled
		return res
	}

	// A zero amount still settles: the zero-amount record marks the event
	// processed so the account is not re-evaluated on every visit.
	err = e.Store.AppendRecord(ctx, LedgerRecord{
		ID:            NewRecordID(),
		AccountID:     acct.ID,
		Kind:          recordKind,
		Amount:        amount,
		ReceiptNumber: receipt,
		EffectiveDate: effectiveDate,
		CreatedAt:     time.Now().UTC(),
	})

	switch {
	case err == nil:
		res.Status = SettlementSettled
		log.Printf("[Engine] settled %s %s for account %s (receipt %s)", kind, amount, acct.ID, receipt)
	case errors.Is(err, ErrDuplicateReceipt):
		res.Status = SettlementSkipped
	default:
		res.Status, res.Err = SettlementFailed, err
	}
	return res
}

func (e *Engine) globalAmount(ctx context.Context, id AccountID, kind EventKind) (decimal.Decimal, error) {
	summary, err := e.Balances(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}

	switch kind {
	case EventUninvestedInterest:
		return UninvestedInterest(summary.Uninvested, e.Config.UninvestedRate)
	case EventTransfer:
		return TransferAmount(summary.Total), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown event kind %q", kind)
	}
}
