/*
errors.go - Centralized error types for the settlement engine

ERROR CATEGORIES:
  1. Duplicate/conflict errors - expected under concurrent or repeat invocation,
     recovered locally (treated as "already settled" or retried once)
  2. Validation errors - programming/data errors, fatal for that subject
  3. Integrity errors - flag/receipt drift requiring manual remediation
  4. Persistence errors - surfaced per subject; a sweep continues past them

USAGE:
  if errors.Is(err, engine.ErrDuplicateReceipt) {
      // concurrent winner already settled this event
  }
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateReceipt is returned when a ledger record with the same
	// receipt number already exists. Expected under retries and concurrent
	// triggers; the losing writer resolves it as "already settled".
	ErrDuplicateReceipt = errors.New("duplicate receipt number")

	// ErrConcurrentModification is returned when a settlement-flag update
	// lost a race with another writer.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvestmentNotFound is returned when a referenced investment doesn't exist.
	ErrInvestmentNotFound = errors.New("investment not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports invalid input to a calculator: negative principal,
// negative rate, non-positive term. Never silently coerced.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

// IntegrityError reports flag/receipt drift the engine refuses to pay over:
// a subject marked settled with no matching ledger record. The engine fails
// closed; remediation is manual.
type IntegrityError struct {
	SubjectID string
	Receipt   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s marked settled but no ledger record with receipt %s", e.SubjectID, e.Receipt)
}

// InsufficientBalanceError reports a withdrawal exceeding the account balance.
type InsufficientBalanceError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s", e.Available, e.Requested)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	var ib *InsufficientBalanceError
	return errors.As(err, &ve) ||
		errors.As(err, &ib) ||
		errors.Is(err, ErrDuplicateReceipt)
}

// IsNotFound returns true if the error indicates a missing subject.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInvestmentNotFound)
}
