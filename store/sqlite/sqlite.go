/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.TxStore: the append-only ledger plus the subject
  registry (accounts, investments and their settlement markers).

APPEND-ONLY ENFORCEMENT:
  No UPDATE and no DELETE ever touch ledger_records. The UNIQUE index on
  receipt_number is the authoritative duplicate-prevention mechanism: a
  concurrent duplicate settlement fails its INSERT and is mapped to
  engine.ErrDuplicateReceipt.

ATOMIC SETTLEMENT:
  WithTx wraps the ledger append and the settlement-flag flip in one
  database transaction; either both commit or neither does.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/settlement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := engine.New(store, cfg)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/mesu/settlement-engine/engine"
)

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		principal TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		interest_settled INTEGER NOT NULL DEFAULT 0,
		interest_settled_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_investments_account
		ON investments(account_id);
	CREATE INDEX IF NOT EXISTS idx_investments_unsettled
		ON investments(interest_settled) WHERE interest_settled = 0;

	-- Ledger (append-only). No UPDATE, no DELETE, ever.
	CREATE TABLE IF NOT EXISTS ledger_records (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		receipt_number TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- The duplicate-settlement backstop. Two concurrent triggers for the
	-- same event race on this index; the loser's insert fails and resolves
	-- to "already settled".
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_receipt
		ON ledger_records(receipt_number);

	CREATE INDEX IF NOT EXISTS idx_records_account_date
		ON ledger_records(account_id, effective_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx. Public methods take the
// store mutex and run against the DB; the transaction view runs the same
// helpers against its open *sql.Tx without re-locking.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) AppendRecord(ctx context.Context, rec engine.LedgerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendRecord(ctx, s.db, rec)
}

func appendRecord(ctx context.Context, db dbtx, rec engine.LedgerRecord) error {
	query := `
		INSERT INTO ledger_records
		(id, account_id, kind, amount, receipt_number, effective_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		rec.ID,
		rec.AccountID,
		rec.Kind,
		rec.Amount.String(),
		rec.ReceiptNumber,
		rec.EffectiveDate.String(),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateReceipt
		}
		return fmt.Errorf("failed to append ledger record: %w", err)
	}
	return nil
}

func (s *Store) ReceiptExists(ctx context.Context, receipt string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return receiptExists(ctx, s.db, receipt)
}

func receiptExists(ctx context.Context, db dbtx, receipt string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_records WHERE receipt_number = ?",
		receipt,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check receipt: %w", err)
	}
	return count > 0, nil
}

func (s *Store) RecordsByAccount(ctx context.Context, id engine.AccountID) ([]engine.LedgerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recordsByAccount(ctx, s.db, id)
}

func recordsByAccount(ctx context.Context, db dbtx, id engine.AccountID) ([]engine.LedgerRecord, error) {
	query := `
		SELECT id, account_id, kind, amount, receipt_number, effective_date, created_at
		FROM ledger_records
		WHERE account_id = ?
		ORDER BY effective_date ASC, created_at ASC
	`

	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger records: %w", err)
	}
	defer rows.Close()

	var records []engine.LedgerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (engine.LedgerRecord, error) {
	var (
		rec           engine.LedgerRecord
		amount        string
		effectiveDate string
		createdAt     string
	)

	err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Kind, &amount,
		&rec.ReceiptNumber, &effectiveDate, &createdAt)
	if err != nil {
		return rec, fmt.Errorf("failed to scan ledger record: %w", err)
	}

	rec.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return rec, fmt.Errorf("invalid amount in ledger record %s: %w", rec.ID, err)
	}
	rec.EffectiveDate, err = engine.ParseDate(effectiveDate)
	if err != nil {
		return rec, fmt.Errorf("invalid effective date in ledger record %s: %w", rec.ID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return rec, nil
}

// BalanceByAccount folds the account's records in Go with exact decimals.
// A SQL SUM over a REAL cast would reintroduce binary-float drift.
func (s *Store) BalanceByAccount(ctx context.Context, id engine.AccountID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return balanceByAccount(ctx, s.db, id)
}

func balanceByAccount(ctx context.Context, db dbtx, id engine.AccountID) (decimal.Decimal, error) {
	records, err := recordsByAccount(ctx, db, id)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.Signed())
	}
	return total, nil
}

// =============================================================================
// SUBJECT REGISTRY
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a engine.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAccount(ctx, s.db, a)
}

func saveAccount(ctx context.Context, db dbtx, a engine.Account) error {
	query := `
		INSERT INTO accounts (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query, a.ID, a.Name, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id engine.AccountID) (*engine.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, db dbtx, id engine.AccountID) (*engine.Account, error) {
	var a engine.Account
	var createdAt string

	err := db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM accounts WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &a, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]engine.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccounts(ctx, s.db)
}

func listAccounts(ctx context.Context, db dbtx) ([]engine.Account, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, created_at FROM accounts ORDER BY created_at ASC, id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []engine.Account
	for rows.Next() {
		var a engine.Account
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) SaveInvestment(ctx context.Context, inv engine.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveInvestment(ctx, s.db, inv)
}

func saveInvestment(ctx context.Context, db dbtx, inv engine.Investment) error {
	query := `
		INSERT INTO investments
		(id, account_id, principal, annual_rate, term_months, start_date,
		 status, interest_settled, interest_settled_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			principal = excluded.principal,
			annual_rate = excluded.annual_rate,
			term_months = excluded.term_months,
			start_date = excluded.start_date,
			status = excluded.status,
			interest_settled = excluded.interest_settled,
			interest_settled_date = excluded.interest_settled_date
	`

	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	status := inv.Status
	if status == "" {
		status = engine.StatusActive
	}

	var settledDate any
	if inv.InterestSettledDate != nil {
		settledDate = inv.InterestSettledDate.String()
	}

	_, err := db.ExecContext(ctx, query,
		inv.ID, inv.AccountID,
		inv.Principal.String(), inv.AnnualRate.String(),
		inv.TermMonths, inv.StartDate.String(),
		status, boolToInt(inv.InterestSettled), settledDate,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save investment: %w", err)
	}
	return nil
}

const investmentColumns = `id, account_id, principal, annual_rate, term_months,
	start_date, status, interest_settled, interest_settled_date, created_at`

func (s *Store) GetInvestment(ctx context.Context, id engine.InvestmentID) (*engine.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvestment(ctx, s.db, id)
}

func getInvestment(ctx context.Context, db dbtx, id engine.InvestmentID) (*engine.Investment, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+investmentColumns+" FROM investments WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	inv, err := scanInvestment(rows)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) InvestmentsByAccount(ctx context.Context, id engine.AccountID) ([]engine.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return investmentsByAccount(ctx, s.db, id)
}

func investmentsByAccount(ctx context.Context, db dbtx, id engine.AccountID) ([]engine.Investment, error) {
	return queryInvestments(ctx, db,
		"SELECT "+investmentColumns+" FROM investments WHERE account_id = ? ORDER BY start_date ASC, created_at ASC",
		id)
}

func (s *Store) UnsettledInvestments(ctx context.Context) ([]engine.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return unsettledInvestments(ctx, s.db)
}

func unsettledInvestments(ctx context.Context, db dbtx) ([]engine.Investment, error) {
	return queryInvestments(ctx, db,
		"SELECT "+investmentColumns+" FROM investments WHERE interest_settled = 0 ORDER BY start_date ASC, created_at ASC")
}

func queryInvestments(ctx context.Context, db dbtx, query string, args ...any) ([]engine.Investment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	var investments []engine.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

func scanInvestment(rows *sql.Rows) (engine.Investment, error) {
	var (
		inv         engine.Investment
		principal   string
		annualRate  string
		startDate   string
		settled     int
		settledDate sql.NullString
		createdAt   string
	)

	err := rows.Scan(
		&inv.ID, &inv.AccountID, &principal, &annualRate, &inv.TermMonths,
		&startDate, &inv.Status, &settled, &settledDate, &createdAt,
	)
	if err != nil {
		return inv, fmt.Errorf("failed to scan investment: %w", err)
	}

	inv.Principal, err = decimal.NewFromString(principal)
	if err != nil {
		return inv, fmt.Errorf("invalid principal in investment %s: %w", inv.ID, err)
	}
	inv.AnnualRate, err = decimal.NewFromString(annualRate)
	if err != nil {
		return inv, fmt.Errorf("invalid annual rate in investment %s: %w", inv.ID, err)
	}
	inv.StartDate, err = engine.ParseDate(startDate)
	if err != nil {
		return inv, fmt.Errorf("invalid start date in investment %s: %w", inv.ID, err)
	}
	inv.InterestSettled = settled != 0
	if settledDate.Valid {
		if d, err := engine.ParseDate(settledDate.String); err == nil {
			inv.InterestSettledDate = &d
		}
	}
	inv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return inv, nil
}

// MarkSettled flips the settlement flag exactly once. The WHERE clause is
// the optimistic lock: an already-set flag means another writer won.
func (s *Store) MarkSettled(ctx context.Context, id engine.InvestmentID, on engine.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markSettled(ctx, s.db, id, on)
}

func markSettled(ctx context.Context, db dbtx, id engine.InvestmentID, on engine.Date) error {
	res, err := db.ExecContext(ctx, `
		UPDATE investments
		SET interest_settled = 1, interest_settled_date = ?, status = ?
		WHERE id = ? AND interest_settled = 0
	`, on.String(), engine.StatusMatured, id)
	if err != nil {
		return fmt.Errorf("failed to mark settlement: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a lost race from a missing row.
	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM investments WHERE id = ?", id,
	).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return engine.ErrInvestmentNotFound
	}
	return engine.ErrConcurrentModification
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is held
// for the duration so the transaction view never re-locks.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs every operation against the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendRecord(ctx context.Context, rec engine.LedgerRecord) error {
	return appendRecord(ctx, ts.tx, rec)
}

func (ts *txStore) ReceiptExists(ctx context.Context, receipt string) (bool, error) {
	return receiptExists(ctx, ts.tx, receipt)
}

func (ts *txStore) RecordsByAccount(ctx context.Context, id engine.AccountID) ([]engine.LedgerRecord, error) {
	return recordsByAccount(ctx, ts.tx, id)
}

func (ts *txStore) BalanceByAccount(ctx context.Context, id engine.AccountID) (decimal.Decimal, error) {
	return balanceByAccount(ctx, ts.tx, id)
}

func (ts *txStore) SaveAccount(ctx context.Context, a engine.Account) error {
	return saveAccount(ctx, ts.tx, a)
}

func (ts *txStore) GetAccount(ctx context.Context, id engine.AccountID) (*engine.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) ListAccounts(ctx context.Context) ([]engine.Account, error) {
	return listAccounts(ctx, ts.tx)
}

func (ts *txStore) SaveInvestment(ctx context.Context, inv engine.Investment) error {
	return saveInvestment(ctx, ts.tx, inv)
}

func (ts *txStore) GetInvestment(ctx context.Context, id engine.InvestmentID) (*engine.Investment, error) {
	return getInvestment(ctx, ts.tx, id)
}

func (ts *txStore) InvestmentsByAccount(ctx context.Context, id engine.AccountID) ([]engine.Investment, error) {
	return investmentsByAccount(ctx, ts.tx, id)
}

func (ts *txStore) UnsettledInvestments(ctx context.Context) ([]engine.Investment, error) {
	return unsettledInvestments(ctx, ts.tx)
}

func (ts *txStore) MarkSettled(ctx context.Context, id engine.InvestmentID, on engine.Date) error {
	return markSettled(ctx, ts.tx, id, on)
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
