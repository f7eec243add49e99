/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts cross the wire as decimal strings ("200000.00"), never floats.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: Domain model
*/
package api

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AccountDTO represents a savings account in API responses.
type AccountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateAccountRequest is the request to create an account.
type CreateAccountRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// InvestmentDTO represents a fixed-term investment in API responses.
type InvestmentDTO struct {
	ID                  string `json:"id"`
	AccountID           string `json:"account_id"`
	Principal           string `json:"principal"`
	AnnualRate          string `json:"annual_rate"`
	TermMonths          int    `json:"term_months"`
	StartDate           string `json:"start_date"`
	MaturityDate        string `json:"maturity_date"`
	Status              string `json:"status"`
	InterestSettled     bool   `json:"interest_settled"`
	InterestSettledDate string `json:"interest_settled_date,omitempty"`
	ExpectedInterest    string `json:"expected_interest"`
}

// CreateInvestmentRequest is the request to open an investment.
type CreateInvestmentRequest struct {
	Principal  string `json:"principal"`
	AnnualRate string `json:"annual_rate"`
	TermMonths int    `json:"term_months"`
	StartDate  string `json:"start_date"`
}

// DepositRequest credits money into an account.
// ReceiptNumber is optional; supplying one makes the deposit idempotent.
type DepositRequest struct {
	Amount        string `json:"amount"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

// WithdrawalRequest debits money from an account.
type WithdrawalRequest struct {
	Amount        string `json:"amount"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

// RecordDTO represents one immutable ledger record.
type RecordDTO struct {
	ID            string `json:"id"`
	AccountID     string `json:"account_id"`
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	ReceiptNumber string `json:"receipt_number"`
	EffectiveDate string `json:"effective_date"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// BalanceDTO is the derived balance summary for one account.
type BalanceDTO struct {
	AccountID  string `json:"account_id"`
	Total      string `json:"total"`
	Invested   string `json:"invested"`
	Uninvested string `json:"uninvested"`
}

// SettlementResultDTO reports the outcome of one settlement attempt.
type SettlementResultDTO struct {
	SubjectID string `json:"subject_id"`
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	Amount    string `json:"amount"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// DashboardDTO is the composite account view. Settlements triggered by the
// visit are reported alongside the data they produced.
type DashboardDTO struct {
	Account     AccountDTO            `json:"account"`
	Balance     BalanceDTO            `json:"balance"`
	Investments []InvestmentDTO       `json:"investments"`
	Records     []RecordDTO           `json:"records"`
	Settlements []SettlementResultDTO `json:"settlements,omitempty"`
}

// SweepRequest triggers a settlement sweep over every account.
type SweepRequest struct {
	AsOf   string `json:"as_of,omitempty"` // YYYY-MM-DD, defaults to today
	DryRun bool   `json:"dry_run,omitempty"`
}

// SweepResponse summarizes a sweep run.
type SweepResponse struct {
	AsOf    string                `json:"as_of"`
	DryRun  bool                  `json:"dry_run"`
	Settled int                   `json:"settled"`
	Skipped int                   `json:"skipped"`
	Failed  int                   `json:"failed"`
	Results []SettlementResultDTO `json:"results"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
