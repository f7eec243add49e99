/*
Package engine provides the interest-accrual and ledger-event core.

PURPOSE:
  This package contains the domain model and algorithms for settling
  date-gated financial events exactly once per subject: maturity interest
  on fixed-term investments, the annual uninvested-savings interest event,
  and the end-of-challenge transfer event.

KEY CONCEPTS IN THIS FILE (types.go):
  - LedgerRecord: An immutable ledger entry recording a balance change
  - Investment: A fixed-term deposit with a one-shot settlement marker
  - Account: Aggregate owner of ledger records; balances are derived
  - SettlementResult: Per-subject outcome reported by the trigger engine

DESIGN PRINCIPLES:
  1. Immutability: Ledger records are never updated or deleted
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Derivation: Balances are folded from records, never stored
  4. Idempotency: Receipt numbers double as idempotency keys

SEE ALSO:
  - accrual.go: Pure interest calculators
  - guard.go: Duplicate-settlement prevention
  - engine.go: The trigger engine orchestration
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type InvestmentID string
type RecordID string

// =============================================================================
// MONEY
// =============================================================================

// RoundMoney rounds to the smallest currency unit, half up.
// Applied exactly once, at final results. Amounts here are never negative,
// so decimal's half-away-from-zero rounding is half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// =============================================================================
// LEDGER RECORD - Immutable balance change
// =============================================================================

type RecordKind string

const (
	RecordDeposit    RecordKind = "deposit"    // credit: savings deposit or interest credit
	RecordTransfer   RecordKind = "transfer"   // credit: end-of-challenge transfer to account
	RecordWithdrawal RecordKind = "withdrawal" // debit: member withdrawal
)

// LedgerRecord is one immutable entry in an account's ledger.
// Amounts are always positive; Kind determines the fold sign.
type LedgerRecord struct {
	ID            RecordID
	AccountID     AccountID
	Kind          RecordKind
	Amount        decimal.Decimal
	ReceiptNumber string // globally unique; the authoritative idempotency key
	EffectiveDate Date
	CreatedAt     time.Time
}

// Signed returns the record's contribution to the account balance.
func (r LedgerRecord) Signed() decimal.Decimal {
	if r.Kind == RecordWithdrawal {
		return r.Amount.Neg()
	}
	return r.Amount
}

// =============================================================================
// INVESTMENT - Fixed-term deposit with one-shot settlement
// =============================================================================

type InvestmentStatus string

const (
	StatusActive  InvestmentStatus = "active"
	StatusMatured InvestmentStatus = "matured"
)

type Investment struct {
	ID         InvestmentID
	AccountID  AccountID
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal // fraction, e.g. 0.30 for 30%
	TermMonths int
	StartDate  Date

	// Status is a display cache. Eligibility is decided on dates, never on
	// this field: a lagging status must not delay an interest payment.
	Status InvestmentStatus

	InterestSettled     bool
	InterestSettledDate *Date

	CreatedAt time.Time
}

// MaturityDate derives the maturity date from start date and term,
// clamping end-of-month (Jan 31 + 1 month = Feb 28/29).
func (inv Investment) MaturityDate() Date {
	return inv.StartDate.AddMonths(inv.TermMonths)
}

// MaturedAsOf reports whether the investment has reached maturity by date.
// Independent of Status.
func (inv Investment) MaturedAsOf(asOf Date) bool {
	return asOf.AfterOrEqual(inv.MaturityDate())
}

// ExpectedInterest is the simple interest over the full term.
func (inv Investment) ExpectedInterest() (decimal.Decimal, error) {
	return MaturityInterest(inv.Principal, inv.AnnualRate, inv.TermMonths)
}

// =============================================================================
// ACCOUNT - Aggregate owner; balances are derived, not stored
// =============================================================================

type Account struct {
	ID        AccountID
	Name      string
	CreatedAt time.Time
}

// BalanceSummary holds the derived balances for one account.
type BalanceSummary struct {
	Total      decimal.Decimal // fold over ledger records, signed by kind
	Invested   decimal.Decimal // sum of principal across investments
	Uninvested decimal.Decimal // Total - Invested (may be negative)
}

// =============================================================================
// SETTLEMENT RESULT - Per-subject outcome of an engine run
// =============================================================================

type EventKind string

const (
	EventMaturityInterest   EventKind = "maturity-interest"
	EventUninvestedInterest EventKind = "uninvested-interest"
	EventTransfer           EventKind = "transfer"
)

type SettlementStatus string

const (
	SettlementSettled SettlementStatus = "settled"
	SettlementSkipped SettlementStatus = "skipped"
	SettlementFailed  SettlementStatus = "failed"
)

type SettlementResult struct {
	SubjectID string // investment ID for maturity events, account ID for global events
	AccountID AccountID
	Kind      EventKind
	Amount    decimal.Decimal
	Receipt   string
	Status    SettlementStatus
	Err       error
}
