package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/accrual"
	"github.com/solari/invest-engine/internal/model"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// --- Plans ---

const planColumns = `id, name, description, interest_rate::TEXT, min_amount::TEXT,
	max_amount::TEXT, duration_days, compounding_period`

func (s *PostgresStore) CreatePlan(ctx context.Context, p *model.Plan) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO investment_plans (id, name, description, interest_rate, min_amount, max_amount, duration_days, compounding_period)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
		p.ID, p.Name, p.Description,
		p.AnnualRatePercent.String(), p.MinAmount.String(), p.MaxAmount.String(),
		p.DurationDays, string(p.CompoundingPeriod),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("plan %s: %w", p.ID, ErrAlreadyExists)
	}
	return err
}

func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM investment_plans WHERE id = $1`, id)
	p, err := scanPlan(row)
	if err != nil {
		return nil, notFound(err, "plan "+id)
	}
	return p, nil
}

func (s *PostgresStore) GetPlanByName(ctx context.Context, name string) (*model.Plan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM investment_plans WHERE lower(name) = lower($1)`, name)
	p, err := scanPlan(row)
	if err != nil {
		return nil, notFound(err, "plan "+name)
	}
	return p, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context) ([]model.Plan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+planColumns+` FROM investment_plans ORDER BY min_amount`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var p model.Plan
	var rate, minAmt, maxAmt, period string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &rate, &minAmt, &maxAmt,
		&p.DurationDays, &period); err != nil {
		return nil, err
	}
	p.AnnualRatePercent = dec(rate)
	p.MinAmount = dec(minAmt)
	p.MaxAmount = dec(maxAmt)
	p.CompoundingPeriod = accrual.Period(period)
	return &p, nil
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, email, wallet_balance, total_invested, verified, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6)`,
		a.UserID, a.Email, a.WalletBalance.String(), a.TotalInvested.String(), a.Verified, a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", a.UserID, ErrAlreadyExists)
	}
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	var wallet, invested string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, email, wallet_balance::TEXT, total_invested::TEXT, verified, created_at
		 FROM accounts WHERE user_id = $1`, userID).
		Scan(&a.UserID, &a.Email, &wallet, &invested, &a.Verified, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, "account "+userID)
	}
	a.WalletBalance = dec(wallet)
	a.TotalInvested = dec(invested)
	return &a, nil
}

func (s *PostgresStore) CreditWallet(ctx context.Context, t *model.Transaction) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET wallet_balance = wallet_balance + $2::NUMERIC WHERE user_id = $1`,
		t.UserID, t.Amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", t.UserID, ErrNotFound)
	}
	if err := insertTx(ctx, tx, t); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, amount::TEXT, status, COALESCE(reference, ''), created_at
		 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &amount, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Amount = dec(amount)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func insertTx(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	var ref *string
	if t.Reference != "" {
		ref = &t.Reference
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, status, reference, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`,
		t.ID, t.UserID, t.Type, t.Amount.String(), t.Status, ref, t.CreatedAt,
	)
	return err
}

// debitWallet subtracts amount from the wallet only if the balance covers it.
func debitWallet(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal, invest bool) error {
	q := `UPDATE accounts SET wallet_balance = wallet_balance - $2::NUMERIC
	      WHERE user_id = $1 AND wallet_balance >= $2::NUMERIC`
	if invest {
		q = `UPDATE accounts SET wallet_balance = wallet_balance - $2::NUMERIC,
		            total_invested = total_invested + $2::NUMERIC
		     WHERE user_id = $1 AND wallet_balance >= $2::NUMERIC`
	}
	tag, err := tx.Exec(ctx, q, userID, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return ErrInsufficientFunds
}

// --- Investments ---

const investmentColumns = `id, user_id, plan_id, amount::TEXT, interest_rate::TEXT, compounding_period,
	start_date, end_date, current_interest::TEXT, expected_interest::TEXT, status, reference,
	created_at, updated_at`

func (s *PostgresStore) PlaceInvestment(ctx context.Context, p *model.Placement) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := debitWallet(ctx, tx, p.UserID, p.Amount, true); err != nil {
		return err
	}

	inv := p.Investment
	if p.Existing {
		tag, err := tx.Exec(ctx,
			`UPDATE investments
			 SET amount = $2::NUMERIC, start_date = $3, end_date = $4,
			     current_interest = $5::NUMERIC, expected_interest = $6::NUMERIC,
			     reference = $7, updated_at = $8
			 WHERE id = $1 AND status = 'active'`,
			inv.ID, inv.Principal.String(), inv.StartDate, inv.EndDate,
			inv.CurrentInterest.String(), inv.ExpectedInterest.String(),
			inv.Reference, inv.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("investment %s: %w", inv.ID, ErrStatusConflict)
		}
	} else {
		_, err := tx.Exec(ctx,
			`INSERT INTO investments (id, user_id, plan_id, amount, interest_rate, compounding_period,
			                          start_date, end_date, current_interest, expected_interest,
			                          status, reference, created_at, updated_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9::NUMERIC, $10::NUMERIC, $11, $12, $13, $14)`,
			inv.ID, inv.UserID, inv.PlanID, inv.Principal.String(), inv.AnnualRatePercent.String(),
			string(inv.CompoundingPeriod), inv.StartDate, inv.EndDate,
			inv.CurrentInterest.String(), inv.ExpectedInterest.String(),
			inv.Status, inv.Reference, inv.CreatedAt, inv.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("investment %s: %w", inv.ID, ErrAlreadyExists)
			}
			return err
		}
	}

	if p.Transaction != nil {
		if err := insertTx(ctx, tx, p.Transaction); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetInvestment(ctx context.Context, id string) (*model.Investment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id)
	inv, err := scanInvestment(row)
	if err != nil {
		return nil, notFound(err, "investment "+id)
	}
	return inv, nil
}

func (s *PostgresStore) FindActiveInvestment(ctx context.Context, userID, planID string) (*model.Investment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+investmentColumns+` FROM investments
		 WHERE user_id = $1 AND plan_id = $2 AND status = 'active'
		 ORDER BY created_at DESC LIMIT 1`, userID, planID)
	inv, err := scanInvestment(row)
	if err != nil {
		return nil, notFound(err, "active investment for "+userID+" in "+planID)
	}
	return inv, nil
}

func (s *PostgresStore) ListInvestmentsByUser(ctx context.Context, userID string) ([]model.Investment, error) {
	return s.queryInvestments(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *PostgresStore) ListInvestments(ctx context.Context, status string) ([]model.Investment, error) {
	if status == "" {
		return s.queryInvestments(ctx, `SELECT `+investmentColumns+` FROM investments ORDER BY created_at DESC`)
	}
	return s.queryInvestments(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (s *PostgresStore) queryInvestments(ctx context.Context, q string, args ...any) ([]model.Investment, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}
	return result, rows.Err()
}

func scanInvestment(row pgx.Row) (*model.Investment, error) {
	var inv model.Investment
	var amount, rate, period, current, expected string
	if err := row.Scan(&inv.ID, &inv.UserID, &inv.PlanID, &amount, &rate, &period,
		&inv.StartDate, &inv.EndDate, &current, &expected, &inv.Status, &inv.Reference,
		&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.Principal = dec(amount)
	inv.AnnualRatePercent = dec(rate)
	inv.CompoundingPeriod = accrual.Period(period)
	inv.CurrentInterest = dec(current)
	inv.ExpectedInterest = dec(expected)
	return &inv, nil
}

func (s *PostgresStore) UpdateAccrual(ctx context.Context, id string, b model.Basis, current, expected decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE investments
		 SET current_interest = $4::NUMERIC, expected_interest = $5::NUMERIC, updated_at = now()
		 WHERE id = $1 AND status = 'active' AND amount = $2::NUMERIC AND start_date = $3`,
		id, b.Principal.String(), b.StartDate, current.String(), expected.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.basisConflict(ctx, id)
	}
	return nil
}

func (s *PostgresStore) CompleteInvestment(ctx context.Context, id string, b model.Basis) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE investments SET status = 'completed', updated_at = now()
		 WHERE id = $1 AND status = 'active' AND amount = $2::NUMERIC AND start_date = $3`,
		id, b.Principal.String(), b.StartDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.basisConflict(ctx, id)
	}
	return nil
}

// basisConflict tells a missing investment apart from one that was
// completed or re-based after it was read.
func (s *PostgresStore) basisConflict(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM investments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("investment %s changed since read: %w", id, ErrStatusConflict)
}

// --- Daily interest log ---

func (s *PostgresStore) UpsertInterestLog(ctx context.Context, e *model.InterestLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_interest_logs (investment_id, calculation_date, principal_amount, interest_earned, total_value, created_at)
		 VALUES ($1, $2::DATE, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
		 ON CONFLICT (investment_id, calculation_date) DO UPDATE
		 SET principal_amount = EXCLUDED.principal_amount,
		     interest_earned = EXCLUDED.interest_earned,
		     total_value = EXCLUDED.total_value`,
		e.InvestmentID, e.Date, e.Principal.String(), e.InterestEarned.String(), e.TotalValue.String(), e.CreatedAt,
	)
	return err
}

const logColumns = `investment_id, calculation_date::TEXT, principal_amount::TEXT,
	interest_earned::TEXT, total_value::TEXT, created_at`

func (s *PostgresStore) LatestInterestLog(ctx context.Context, investmentID string) (*model.InterestLogEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+logColumns+` FROM daily_interest_logs
		 WHERE investment_id = $1 ORDER BY calculation_date DESC LIMIT 1`, investmentID)
	e, err := scanLog(row)
	if err != nil {
		return nil, notFound(err, "interest log for "+investmentID)
	}
	return e, nil
}

func (s *PostgresStore) ListInterestLog(ctx context.Context, investmentID string) ([]model.InterestLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+logColumns+` FROM daily_interest_logs
		 WHERE investment_id = $1 ORDER BY calculation_date`, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.InterestLogEntry
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanLog(row pgx.Row) (*model.InterestLogEntry, error) {
	var e model.InterestLogEntry
	var principal, earned, total string
	if err := row.Scan(&e.InvestmentID, &e.Date, &principal, &earned, &total, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Principal = dec(principal)
	e.InterestEarned = dec(earned)
	e.TotalValue = dec(total)
	return &e, nil
}

// --- Withdrawals ---

const withdrawalColumns = `id, user_id, amount::TEXT, status, created_at, updated_at`

func (s *PostgresStore) RequestWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := debitWallet(ctx, tx, w.UserID, w.Amount, false); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO withdrawal_requests (id, user_id, amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6)`,
		w.ID, w.UserID, w.Amount.String(), w.Status, w.CreatedAt, w.UpdatedAt); err != nil {
		return err
	}
	if err := insertTx(ctx, tx, &model.Transaction{
		ID:        "wd-" + w.ID,
		UserID:    w.UserID,
		Type:      model.TxWithdrawal,
		Amount:    w.Amount,
		Status:    model.WithdrawalPending,
		CreatedAt: w.CreatedAt,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id)
	w, err := scanWithdrawal(row)
	if err != nil {
		return nil, notFound(err, "withdrawal "+id)
	}
	return w, nil
}

func (s *PostgresStore) ListWithdrawals(ctx context.Context, status string) ([]model.Withdrawal, error) {
	if status == "" {
		return s.queryWithdrawals(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests ORDER BY created_at DESC`)
	}
	return s.queryWithdrawals(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (s *PostgresStore) ListWithdrawalsByUser(ctx context.Context, userID string) ([]model.Withdrawal, error) {
	return s.queryWithdrawals(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *PostgresStore) queryWithdrawals(ctx context.Context, q string, args ...any) ([]model.Withdrawal, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	var amount string
	if err := row.Scan(&w.ID, &w.UserID, &amount, &w.Status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Amount = dec(amount)
	return &w, nil
}

func (s *PostgresStore) TransitionWithdrawal(ctx context.Context, id, from, to string) (*model.Withdrawal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`UPDATE withdrawal_requests SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+withdrawalColumns, id, from, to)
	w, err := scanWithdrawal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetWithdrawal(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("withdrawal %s is not %s: %w", id, from, ErrStatusConflict)
	}
	if err != nil {
		return nil, err
	}

	if to == model.WithdrawalRejected {
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET wallet_balance = wallet_balance + $2::NUMERIC WHERE user_id = $1`,
			w.UserID, w.Amount.String()); err != nil {
			return nil, err
		}
		if err := insertTx(ctx, tx, &model.Transaction{
			ID:        "refund-" + w.ID,
			UserID:    w.UserID,
			Type:      model.TxRefund,
			Amount:    w.Amount,
			Status:    "completed",
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// --- Verifications ---

const verificationColumns = `id, user_id, document_type, document_ref, status, created_at, updated_at`

func (s *PostgresStore) SubmitVerification(ctx context.Context, v *model.Verification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_requests (id, user_id, document_type, document_ref, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.UserID, v.DocumentType, v.DocumentRef, v.Status, v.CreatedAt, v.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("account %s: %w", v.UserID, ErrNotFound)
	}
	return err
}

func (s *PostgresStore) ListVerifications(ctx context.Context, status string) ([]model.Verification, error) {
	q := `SELECT ` + verificationColumns + ` FROM verification_requests ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		q = `SELECT ` + verificationColumns + ` FROM verification_requests WHERE status = $1 ORDER BY created_at DESC`
		args = append(args, status)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Verification
	for rows.Next() {
		var v model.Verification
		if err := rows.Scan(&v.ID, &v.UserID, &v.DocumentType, &v.DocumentRef, &v.Status,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (s *PostgresStore) TransitionVerification(ctx context.Context, id, to string) (*model.Verification, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var v model.Verification
	err = tx.QueryRow(ctx,
		`UPDATE verification_requests SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+verificationColumns, id, to).
		Scan(&v.ID, &v.UserID, &v.DocumentType, &v.DocumentRef, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM verification_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("verification %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("verification %s already resolved: %w", id, ErrStatusConflict)
	}
	if err != nil {
		return nil, err
	}

	if to == model.VerificationApproved {
		if _, err := tx.Exec(ctx, `UPDATE accounts SET verified = TRUE WHERE user_id = $1`, v.UserID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Back office ---

func (s *PostgresStore) Stats(ctx context.Context) (*model.PlatformStats, error) {
	var st model.PlatformStats
	var invested, wallet, withdrawn string
	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COALESCE(SUM(total_invested), 0)::TEXT FROM accounts),
			(SELECT COALESCE(SUM(wallet_balance), 0)::TEXT FROM accounts),
			(SELECT COALESCE(SUM(amount), 0)::TEXT FROM withdrawal_requests WHERE status = 'paid'),
			(SELECT COUNT(*) FROM investments WHERE status = 'active'),
			(SELECT COUNT(*) FROM withdrawal_requests WHERE status = 'pending'),
			(SELECT COUNT(*) FROM verification_requests WHERE status = 'pending')`).
		Scan(&st.TotalUsers, &invested, &wallet, &withdrawn,
			&st.ActiveInvestments, &st.PendingWithdrawals, &st.PendingVerifications)
	if err != nil {
		return nil, err
	}
	st.TotalInvested = dec(invested)
	st.TotalWallet = dec(wallet)
	st.TotalWithdrawn = dec(withdrawn)
	return &st, nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
