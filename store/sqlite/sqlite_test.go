package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesu/settlement-engine/engine"
	"github.com/mesu/settlement-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedAccount(t *testing.T, st *sqlite.Store, id engine.AccountID) {
	t.Helper()
	require.NoError(t, st.SaveAccount(context.Background(), engine.Account{
		ID:        id,
		Name:      "Member " + string(id),
		CreatedAt: time.Now().UTC(),
	}))
}

func record(acctID engine.AccountID, kind engine.RecordKind, amount, receipt string) engine.LedgerRecord {
	return engine.LedgerRecord{
		ID:            engine.NewRecordID(),
		AccountID:     acctID,
		Kind:          kind,
		Amount:        dec(amount),
		ReceiptNumber: receipt,
		EffectiveDate: engine.NewDate(2025, time.June, 1),
		CreatedAt:     time.Now().UTC(),
	}
}

// =============================================================================
// RECEIPT UNIQUENESS
// =============================================================================

func TestAppendRecord_DuplicateReceiptRejected(t *testing.T) {
	// GIVEN: A record with receipt R already in the ledger
	// WHEN: Appending another record with receipt R
	// THEN: ErrDuplicateReceipt; the ledger keeps exactly one record

	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	require.NoError(t, st.AppendRecord(ctx, record("acct-1", engine.RecordDeposit, "200000", "INT-inv-1-20251201")))

	err := st.AppendRecord(ctx, record("acct-1", engine.RecordDeposit, "200000", "INT-inv-1-20251201"))
	assert.ErrorIs(t, err, engine.ErrDuplicateReceipt)

	records, err := st.RecordsByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReceiptExists(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	exists, err := st.ReceiptExists(ctx, "INT-inv-1-20251201")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, st.AppendRecord(ctx, record("acct-1", engine.RecordDeposit, "1", "INT-inv-1-20251201")))

	exists, err = st.ReceiptExists(ctx, "INT-inv-1-20251201")
	require.NoError(t, err)
	assert.True(t, exists)
}

// =============================================================================
// BALANCE FOLD
// =============================================================================

func TestBalanceByAccount_SignedByKind(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	require.NoError(t, st.AppendRecord(ctx, record("acct-1", engine.RecordDeposit, "100.50", "r-1")))
	require.NoError(t, st.AppendRecord(ctx, record("acct-1", engine.RecordWithdrawal, "40.25", "r-2")))
	require.NoError(t, st.AppendRecord(ctx, record("acct-1", engine.RecordTransfer, "10", "r-3")))

	balance, err := st.BalanceByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("70.25")), "100.50 - 40.25 + 10, got %s", balance)
}

// =============================================================================
// SETTLEMENT FLAG
// =============================================================================

func TestMarkSettled_ExactlyOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	inv := engine.Investment{
		ID:         "inv-1",
		AccountID:  "acct-1",
		Principal:  dec("1000000"),
		AnnualRate: dec("0.30"),
		TermMonths: 8,
		StartDate:  engine.NewDate(2025, time.April, 1),
		Status:     engine.StatusActive,
	}
	require.NoError(t, st.SaveInvestment(ctx, inv))

	on := engine.NewDate(2025, time.December, 2)
	require.NoError(t, st.MarkSettled(ctx, "inv-1", on))

	// Second attempt lost the race.
	err := st.MarkSettled(ctx, "inv-1", on)
	assert.ErrorIs(t, err, engine.ErrConcurrentModification)

	fresh, err := st.GetInvestment(ctx, "inv-1")
	require.NoError(t, err)
	assert.True(t, fresh.InterestSettled)
	require.NotNil(t, fresh.InterestSettledDate)
	assert.Equal(t, "2025-12-02", fresh.InterestSettledDate.String())
	assert.Equal(t, engine.StatusMatured, fresh.Status)
}

func TestMarkSettled_UnknownInvestment(t *testing.T) {
	st := newTestStore(t)
	err := st.MarkSettled(context.Background(), "nope", engine.Today())
	assert.ErrorIs(t, err, engine.ErrInvestmentNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that appends a record then fails
	// THEN: The append is rolled back; the receipt does not exist

	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.AppendRecord(ctx, record("acct-1", engine.RecordDeposit, "200000", "INT-inv-1-20251201")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := st.ReceiptExists(ctx, "INT-inv-1-20251201")
	require.NoError(t, err)
	assert.False(t, exists, "rolled-back append must leave no record")
}

func TestWithTx_CommitsAppendAndFlagTogether(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	inv := engine.Investment{
		ID:         "inv-1",
		AccountID:  "acct-1",
		Principal:  dec("1000000"),
		AnnualRate: dec("0.30"),
		TermMonths: 8,
		StartDate:  engine.NewDate(2025, time.April, 1),
		Status:     engine.StatusActive,
	}
	require.NoError(t, st.SaveInvestment(ctx, inv))

	on := engine.NewDate(2025, time.December, 2)
	err := st.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.AppendRecord(ctx, record("acct-1", engine.RecordDeposit, "200000", "INT-inv-1-20251201")); err != nil {
			return err
		}
		return tx.MarkSettled(ctx, "inv-1", on)
	})
	require.NoError(t, err)

	exists, err := st.ReceiptExists(ctx, "INT-inv-1-20251201")
	require.NoError(t, err)
	assert.True(t, exists)

	fresh, err := st.GetInvestment(ctx, "inv-1")
	require.NoError(t, err)
	assert.True(t, fresh.InterestSettled)
}

// =============================================================================
// ROUNDTRIPS
// =============================================================================

func TestInvestmentRoundtrip_PreservesDecimals(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	settledOn := engine.NewDate(2025, time.December, 2)
	inv := engine.Investment{
		ID:                  "inv-1",
		AccountID:           "acct-1",
		Principal:           dec("1000000.55"),
		AnnualRate:          dec("0.305"),
		TermMonths:          8,
		StartDate:           engine.NewDate(2025, time.April, 1),
		Status:              engine.StatusMatured,
		InterestSettled:     true,
		InterestSettledDate: &settledOn,
		CreatedAt:           time.Now().UTC(),
	}
	require.NoError(t, st.SaveInvestment(ctx, inv))

	fresh, err := st.GetInvestment(ctx, "inv-1")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.True(t, fresh.Principal.Equal(dec("1000000.55")))
	assert.True(t, fresh.AnnualRate.Equal(dec("0.305")))
	assert.Equal(t, 8, fresh.TermMonths)
	assert.Equal(t, "2025-04-01", fresh.StartDate.String())
	assert.True(t, fresh.InterestSettled)
	require.NotNil(t, fresh.InterestSettledDate)
	assert.Equal(t, "2025-12-02", fresh.InterestSettledDate.String())
}

func TestGetAccount_MissingReturnsNil(t *testing.T) {
	st := newTestStore(t)
	acct, err := st.GetAccount(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, acct)
}

func TestUnsettledInvestments_FiltersOnFlagOnly(t *testing.T) {
	// The filter is the flag, never the status: a matured-but-unsettled
	// investment must stay visible to the sweep.
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	unsettled := engine.Investment{
		ID: "inv-unsettled", AccountID: "acct-1",
		Principal: dec("100"), AnnualRate: dec("0.30"), TermMonths: 8,
		StartDate: engine.NewDate(2025, time.April, 1),
		Status:    engine.StatusMatured,
	}
	settled := engine.Investment{
		ID: "inv-settled", AccountID: "acct-1",
		Principal: dec("100"), AnnualRate: dec("0.30"), TermMonths: 8,
		StartDate:       engine.NewDate(2025, time.January, 1),
		Status:          engine.StatusMatured,
		InterestSettled: true,
	}
	require.NoError(t, st.SaveInvestment(ctx, unsettled))
	require.NoError(t, st.SaveInvestment(ctx, settled))

	got, err := st.UnsettledInvestments(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, engine.InvestmentID("inv-unsettled"), got[0].ID)
}

// =============================================================================
// ENGINE INTEGRATION - the real transaction path
// =============================================================================

func TestEngine_SettlesOnSQLiteStore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, st, "acct-1")

	require.NoError(t, st.AppendRecord(ctx, record("acct-1", engine.RecordDeposit, "1000000", "DEP-1")))
	require.NoError(t, st.SaveInvestment(ctx, engine.Investment{
		ID: "inv-1", AccountID: "acct-1",
		Principal: dec("1000000"), AnnualRate: dec("0.30"), TermMonths: 8,
		StartDate: engine.NewDate(2025, time.April, 1),
		Status:    engine.StatusActive,
	}))

	eng := engine.New(st, engine.Config{
		UninvestedRate:      dec("0.15"),
		UninvestedEventDate: engine.NewDate(2025, time.December, 31),
		TransferEventDate:   engine.NewDate(2026, time.January, 1),
	})

	results, err := eng.RunForAccount(ctx, "acct-1", engine.NewDate(2026, time.January, 5))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, engine.SettlementSettled, res.Status, "kind %s", res.Kind)
	}

	// Re-run is fully idempotent on the persistent store.
	results, err = eng.RunForAccount(ctx, "acct-1", engine.NewDate(2026, time.January, 6))
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, engine.SettlementSkipped, res.Status, "kind %s", res.Kind)
	}

	balance, err := st.BalanceByAccount(ctx, "acct-1")
	require.NoError(t, err)
	// 1,000,000 + 200,000 + 30,000 + 1,230,000 transfer-in
	assert.True(t, balance.Equal(dec("2460000")), "got %s", balance)
}
