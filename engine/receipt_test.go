package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mesu/settlement-engine/engine"
)

// Receipt formats must stay bit-exact with the historical ledger data:
// any drift breaks the idempotency guarantee against existing records.

func TestMaturityReceipt_Format(t *testing.T) {
	maturity := engine.NewDate(2025, time.December, 1)
	got := engine.MaturityReceipt("inv-42", maturity)
	assert.Equal(t, "INT-inv-42-20251201", got)
}

func TestUninvestedReceipt_Format(t *testing.T) {
	got := engine.UninvestedReceipt(2025, "acct-7")
	assert.Equal(t, "UNINV-INT-2025-acct-7", got)
}

func TestTransferReceipt_Format(t *testing.T) {
	// The year token is the challenge year, not the transfer date's year.
	transferDate := engine.NewDate(2026, time.January, 1)
	got := engine.TransferReceipt(2025, "acct-7", transferDate)
	assert.Equal(t, "TRANSFER-2025-acct-7-20260101", got)
}

func TestReceipts_DeterministicAcrossCalls(t *testing.T) {
	maturity := engine.NewDate(2025, time.December, 1)
	assert.Equal(t,
		engine.MaturityReceipt("inv-1", maturity),
		engine.MaturityReceipt("inv-1", maturity))
}
