package engine

import "fmt"

// =============================================================================
// RECEIPT NUMBERS - Deterministic idempotency keys
// =============================================================================
//
// Receipt numbers identify one settlement event instance and double as the
// idempotency key: the ledger store enforces uniqueness on them, which is the
// authoritative duplicate-prevention mechanism. The formats below must stay
// bit-exact with the historical ledger data.

// MaturityReceipt: INT-{investment_id}-{maturity_date as YYYYMMDD}
func MaturityReceipt(id InvestmentID, maturity Date) string {
	return fmt.Sprintf("INT-%s-%s", id, maturity.Compact())
}

// UninvestedReceipt: UNINV-INT-{year}-{account_id}
func UninvestedReceipt(year int, id AccountID) string {
	return fmt.Sprintf("UNINV-INT-%d-%s", year, id)
}

// TransferReceipt: TRANSFER-{year}-{account_id}-{transfer_date as YYYYMMDD}
func TransferReceipt(year int, id AccountID, transferDate Date) string {
	return fmt.Sprintf("TRANSFER-%d-%s-%s", year, id, transferDate.Compact())
}
