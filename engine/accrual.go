/*
accrual.go - Pure interest calculators

PURPOSE:
  Deterministic, side-effect-free amount computation for each event kind.
  All arithmetic is exact decimal; rounding happens once, at the final
  result, half up to the smallest currency unit. Never on intermediate
  ratios.

ERROR CONDITIONS:
  Negative principal, negative rate, or non-positive term are programming
  errors. They fail fast with a ValidationError and are never clamped.
*/
package engine

import "github.com/shopspring/decimal"

var twelve = decimal.NewFromInt(12)

// DefaultUninvestedRate is the flat annual rate credited on uninvested
// savings at the year-end event.
var DefaultUninvestedRate = decimal.RequireFromString("0.15")

// MaturityInterest computes simple interest over the full term:
// principal * rate * (months / 12), rounded half-up at the end.
func MaturityInterest(principal, annualRate decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if principal.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "principal", Message: "must not be negative"}
	}
	if annualRate.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "annual_rate", Message: "must not be negative"}
	}
	if termMonths <= 0 {
		return decimal.Zero, &ValidationError{Field: "term_months", Message: "must be positive"}
	}

	months := decimal.NewFromInt(int64(termMonths))
	return RoundMoney(principal.Mul(annualRate).Mul(months).Div(twelve)), nil
}

// UninvestedInterest computes the flat-rate interest on an uninvested
// balance. A non-positive balance yields zero; the event is still settled
// (with a zero-amount record) so zero-balance accounts are not re-evaluated
// forever.
func UninvestedInterest(uninvested, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "rate", Message: "must not be negative"}
	}
	if !uninvested.IsPositive() {
		return decimal.Zero, nil
	}
	return RoundMoney(uninvested.Mul(rate)), nil
}

// TransferAmount is the full-settlement transfer: the entire account
// balance, nothing incremental. A negative balance transfers zero.
func TransferAmount(totalBalance decimal.Decimal) decimal.Decimal {
	if totalBalance.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(totalBalance)
}
