// Package model defines the core domain types shared across the investment
// engine. All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/accrual"
)

// Investment statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Withdrawal and verification statuses.
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalPaid     = "paid"
	WithdrawalRejected = "rejected"

	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// Transaction types.
const (
	TxDeposit    = "deposit"
	TxInvestment = "investment"
	TxWithdrawal = "withdrawal"
	TxRefund     = "refund"
)

// Plan is a fixed-term product users can place funds into.
type Plan struct {
	ID                string          `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Description       string          `json:"description" db:"description"`
	AnnualRatePercent decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	MinAmount         decimal.Decimal `json:"min_amount" db:"min_amount"`
	MaxAmount         decimal.Decimal `json:"max_amount" db:"max_amount"`
	DurationDays      int             `json:"duration_days" db:"duration_days"`
	CompoundingPeriod accrual.Period  `json:"compounding_period" db:"compounding_period"`
}

// Account is a user's wallet. Registration and login live elsewhere; the
// engine only knows the user's ID.
type Account struct {
	UserID        string          `json:"user_id" db:"user_id"`
	Email         string          `json:"email" db:"email"`
	WalletBalance decimal.Decimal `json:"wallet_balance" db:"wallet_balance"`
	TotalInvested decimal.Decimal `json:"total_invested" db:"total_invested"`
	Verified      bool            `json:"verified" db:"verified"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Investment is one placement of funds into a plan. CurrentInterest and
// ExpectedInterest hold the figures of the last accrual run and are
// overwritten on every run.
type Investment struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	PlanID            string          `json:"plan_id" db:"plan_id"`
	Principal         decimal.Decimal `json:"amount" db:"amount"`
	AnnualRatePercent decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	CompoundingPeriod accrual.Period  `json:"compounding_period" db:"compounding_period"`
	StartDate         time.Time       `json:"start_date" db:"start_date"`
	EndDate           time.Time       `json:"end_date" db:"end_date"`
	CurrentInterest   decimal.Decimal `json:"current_interest" db:"current_interest"`
	ExpectedInterest  decimal.Decimal `json:"expected_interest" db:"expected_interest"`
	Status            string          `json:"status" db:"status"`
	Reference         string          `json:"reference,omitempty" db:"reference"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// Terms returns the accrual terms of the investment.
func (i *Investment) Terms() accrual.Terms {
	return accrual.Terms{
		Principal:         i.Principal,
		AnnualRatePercent: i.AnnualRatePercent,
		Start:             i.StartDate,
		End:               i.EndDate,
		Period:            i.CompoundingPeriod,
	}
}

// Basis identifies the terms an accrual was computed from. A top-up
// replaces both fields, so a Basis read before it no longer matches.
type Basis struct {
	Principal decimal.Decimal
	StartDate time.Time
}

// Basis returns the current basis of the investment.
func (i *Investment) Basis() Basis {
	return Basis{Principal: i.Principal, StartDate: i.StartDate}
}

// Matches reports whether the investment still has basis b.
func (i *Investment) Matches(b Basis) bool {
	return i.Principal.Equal(b.Principal) && i.StartDate.Equal(b.StartDate)
}

// InterestLogEntry is the per-day record written by the accrual run.
// There is at most one entry per investment and calendar date.
type InterestLogEntry struct {
	InvestmentID   string          `json:"investment_id" db:"investment_id"`
	Date           string          `json:"date" db:"calculation_date"` // YYYY-MM-DD, UTC
	Principal      decimal.Decimal `json:"principal" db:"principal_amount"`
	InterestEarned decimal.Decimal `json:"interest_earned" db:"interest_earned"`
	TotalValue     decimal.Decimal `json:"total_value" db:"total_value"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Transaction is an immutable wallet movement.
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Type      string          `json:"type" db:"type"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    string          `json:"status" db:"status"`
	Reference string          `json:"reference,omitempty" db:"reference"` // gateway reference, unique when set
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Placement describes one atomic move of wallet funds into an
// investment. When Existing is true Investment replaces the stored row,
// otherwise it is inserted.
type Placement struct {
	UserID      string
	Amount      decimal.Decimal
	Existing    bool
	Investment  *Investment
	Transaction *Transaction
}

// Withdrawal is a user's request to take funds out of the wallet. The
// wallet is debited when the request is made and refunded on rejection.
type Withdrawal struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    string          `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Verification is an identity document submitted for review. The
// document itself is stored elsewhere and referenced by DocumentRef.
type Verification struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	DocumentType string    `json:"document_type" db:"document_type"`
	DocumentRef  string    `json:"document_ref" db:"document_ref"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// PlatformStats aggregates figures for the back office dashboard.
type PlatformStats struct {
	TotalUsers           int64           `json:"total_users"`
	TotalInvested        decimal.Decimal `json:"total_invested"`
	TotalWallet          decimal.Decimal `json:"total_wallet"`
	TotalWithdrawn       decimal.Decimal `json:"total_withdrawn"`
	ActiveInvestments    int64           `json:"active_investments"`
	PendingWithdrawals   int64           `json:"pending_withdrawals"`
	PendingVerifications int64           `json:"pending_verifications"`
}
