/*
store.go - Persistence interfaces for the ledger and the subject registry

PURPOSE:
  Defines the interface between the engine and the database. One Store
  implementation backs both halves of persistence: the append-only ledger
  and the subject registry (accounts and investments with their
  settlement markers).

APPEND-ONLY CONTRACT:
  Ledger records have exactly one write operation: AppendRecord. There is
  no update and no delete. The UNIQUE constraint on receipt_number is the
  single shared-resource coordination point: a losing concurrent writer
  gets ErrDuplicateReceipt and resolves it as "already settled".

ATOMIC SETTLEMENT:
  TxStore.WithTx lets the engine commit the ledger append and the
  settlement-flag flip as one atomic unit. Implementations roll the whole
  unit back if the callback errors.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - engine/store: in-memory store for tests/dev
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists ledger records, accounts, and investments.
type Store interface {
	// --- Ledger (append-only) ---

	// AppendRecord persists one immutable ledger record.
	// Returns ErrDuplicateReceipt if the receipt number already exists.
	AppendRecord(ctx context.Context, rec LedgerRecord) error

	// ReceiptExists checks for a record with the exact receipt number.
	ReceiptExists(ctx context.Context, receipt string) (bool, error)

	// RecordsByAccount returns an account's records ordered by effective date.
	RecordsByAccount(ctx context.Context, id AccountID) ([]LedgerRecord, error)

	// BalanceByAccount folds the account's records, signed by kind.
	BalanceByAccount(ctx context.Context, id AccountID) (decimal.Decimal, error)

	// --- Subject registry ---

	SaveAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)

	SaveInvestment(ctx context.Context, inv Investment) error
	GetInvestment(ctx context.Context, id InvestmentID) (*Investment, error)
	InvestmentsByAccount(ctx context.Context, id AccountID) ([]Investment, error)

	// UnsettledInvestments returns every investment whose interest_settled
	// flag is still false, across all accounts. Maturity filtering is the
	// caller's job: eligibility is a date comparison, not a stored status.
	UnsettledInvestments(ctx context.Context) ([]Investment, error)

	// MarkSettled flips the settlement flag, records the settlement date,
	// and updates the cached status to matured, exactly once.
	// Returns ErrConcurrentModification if the flag was already set
	// (the update lost a race), ErrInvestmentNotFound if the id is unknown.
	MarkSettled(ctx context.Context, id InvestmentID, on Date) error
}

// TxStore wraps Store with multi-write transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
