package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesu/settlement-engine/engine"
	"github.com/mesu/settlement-engine/engine/store"
)

func rec(receipt string) engine.LedgerRecord {
	return engine.LedgerRecord{
		ID:            engine.NewRecordID(),
		AccountID:     "acct-1",
		Kind:          engine.RecordDeposit,
		Amount:        decimal.RequireFromString("100"),
		ReceiptNumber: receipt,
		EffectiveDate: engine.NewDate(2025, time.June, 1),
	}
}

func TestMemory_DuplicateReceiptRejected(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, st.AppendRecord(ctx, rec("r-1")))
	err := st.AppendRecord(ctx, rec("r-1"))
	assert.ErrorIs(t, err, engine.ErrDuplicateReceipt)
}

func TestMemory_WithTxRollsBackEverything(t *testing.T) {
	// GIVEN: A transaction that appends a record and flips a flag, then fails
	// THEN: Both effects are rolled back

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SaveInvestment(ctx, engine.Investment{
		ID:         "inv-1",
		AccountID:  "acct-1",
		Principal:  decimal.RequireFromString("100"),
		AnnualRate: decimal.RequireFromString("0.30"),
		TermMonths: 8,
		StartDate:  engine.NewDate(2025, time.April, 1),
		Status:     engine.StatusActive,
	}))

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.AppendRecord(ctx, rec("INT-inv-1-20251201")); err != nil {
			return err
		}
		if err := tx.MarkSettled(ctx, "inv-1", engine.NewDate(2025, time.December, 2)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := st.ReceiptExists(ctx, "INT-inv-1-20251201")
	require.NoError(t, err)
	assert.False(t, exists)

	inv, err := st.GetInvestment(ctx, "inv-1")
	require.NoError(t, err)
	assert.False(t, inv.InterestSettled)
}

func TestMemory_RecordsOrderedByEffectiveDate(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	later := rec("r-later")
	later.EffectiveDate = engine.NewDate(2025, time.December, 1)
	earlier := rec("r-earlier")
	earlier.EffectiveDate = engine.NewDate(2025, time.January, 1)

	require.NoError(t, st.AppendRecord(ctx, later))
	require.NoError(t, st.AppendRecord(ctx, earlier))

	records, err := st.RecordsByAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r-earlier", records[0].ReceiptNumber)
	assert.Equal(t, "r-later", records[1].ReceiptNumber)
}
