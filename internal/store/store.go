// Package store defines the persistence interface for the investment
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and local runs).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/model"
)

var (
	ErrNotFound           = errors.New("store: not found")
	ErrAlreadyExists      = errors.New("store: already exists")
	ErrInsufficientFunds  = errors.New("store: insufficient wallet balance")
	ErrDuplicateReference = errors.New("store: payment reference already recorded")
	ErrStatusConflict     = errors.New("store: unexpected current status")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Plans ---

	CreatePlan(ctx context.Context, p *model.Plan) error
	GetPlan(ctx context.Context, id string) (*model.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*model.Plan, error)
	ListPlans(ctx context.Context) ([]model.Plan, error)

	// --- Accounts ---

	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// CreditWallet adds tx.Amount to the user's wallet and records tx.
	// A non-empty tx.Reference may only be credited once.
	CreditWallet(ctx context.Context, tx *model.Transaction) error

	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)

	// --- Investments ---

	// PlaceInvestment debits the wallet, inserts or replaces the
	// investment, bumps total invested and records the transaction as
	// one atomic step.
	PlaceInvestment(ctx context.Context, p *model.Placement) error

	GetInvestment(ctx context.Context, id string) (*model.Investment, error)

	// FindActiveInvestment returns the user's active investment in a plan.
	FindActiveInvestment(ctx context.Context, userID, planID string) (*model.Investment, error)

	ListInvestmentsByUser(ctx context.Context, userID string) ([]model.Investment, error)

	// ListInvestments returns all investments with the given status, or
	// every investment when status is empty.
	ListInvestments(ctx context.Context, status string) ([]model.Investment, error)

	// UpdateAccrual overwrites the stored current/expected interest of an
	// active investment whose basis is still b. Otherwise it fails with
	// ErrStatusConflict.
	UpdateAccrual(ctx context.Context, id string, b model.Basis, current, expected decimal.Decimal) error

	// CompleteInvestment moves an active investment with basis b to
	// completed, failing with ErrStatusConflict otherwise.
	CompleteInvestment(ctx context.Context, id string, b model.Basis) error

	// --- Daily interest log ---

	UpsertInterestLog(ctx context.Context, e *model.InterestLogEntry) error
	LatestInterestLog(ctx context.Context, investmentID string) (*model.InterestLogEntry, error)
	ListInterestLog(ctx context.Context, investmentID string) ([]model.InterestLogEntry, error)

	// --- Withdrawals ---

	// RequestWithdrawal debits the wallet and records a pending request.
	RequestWithdrawal(ctx context.Context, w *model.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, status string) ([]model.Withdrawal, error)
	ListWithdrawalsByUser(ctx context.Context, userID string) ([]model.Withdrawal, error)

	// TransitionWithdrawal moves a withdrawal from one status to another,
	// failing with ErrStatusConflict if it is not currently in from.
	// Moving to rejected refunds the wallet.
	TransitionWithdrawal(ctx context.Context, id, from, to string) (*model.Withdrawal, error)

	// --- Verifications ---

	SubmitVerification(ctx context.Context, v *model.Verification) error
	ListVerifications(ctx context.Context, status string) ([]model.Verification, error)

	// TransitionVerification resolves a pending verification. Approving
	// marks the account verified.
	TransitionVerification(ctx context.Context, id, to string) (*model.Verification, error)

	// --- Back office ---

	Stats(ctx context.Context) (*model.PlatformStats, error)
}
