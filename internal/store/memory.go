package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	plans         map[string]*model.Plan
	accounts      map[string]*model.Account
	investments   map[string]*model.Investment
	logs          map[string]map[string]model.InterestLogEntry // investment -> date -> entry
	transactions  []model.Transaction
	references    map[string]bool
	withdrawals   map[string]*model.Withdrawal
	verifications map[string]*model.Verification
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:         make(map[string]*model.Plan),
		accounts:      make(map[string]*model.Account),
		investments:   make(map[string]*model.Investment),
		logs:          make(map[string]map[string]model.InterestLogEntry),
		references:    make(map[string]bool),
		withdrawals:   make(map[string]*model.Withdrawal),
		verifications: make(map[string]*model.Verification),
	}
}

// --- Plans ---

func (s *MemoryStore) CreatePlan(_ context.Context, p *model.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[p.ID]; ok {
		return fmt.Errorf("plan %s: %w", p.ID, ErrAlreadyExists)
	}
	copy := *p
	s.plans[p.ID] = &copy
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id string) (*model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) GetPlanByName(_ context.Context, name string) (*model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if strings.EqualFold(p.Name, name) {
			copy := *p
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("plan %q: %w", name, ErrNotFound)
}

func (s *MemoryStore) ListPlans(_ context.Context) ([]model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]model.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, *p)
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].MinAmount.LessThan(plans[j].MinAmount)
	})
	return plans, nil
}

// --- Accounts ---

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.UserID]; ok {
		return fmt.Errorf("account %s: %w", a.UserID, ErrAlreadyExists)
	}
	copy := *a
	s.accounts[a.UserID] = &copy
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) CreditWallet(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[tx.UserID]
	if !ok {
		return fmt.Errorf("account %s: %w", tx.UserID, ErrNotFound)
	}
	if tx.Reference != "" && s.references[tx.Reference] {
		return ErrDuplicateReference
	}
	a.WalletBalance = a.WalletBalance.Add(tx.Amount)
	s.recordTx(tx)
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			result = append(result, s.transactions[i])
		}
	}
	return result, nil
}

// recordTx appends a transaction. Caller holds the write lock.
func (s *MemoryStore) recordTx(tx *model.Transaction) {
	if tx.Reference != "" {
		s.references[tx.Reference] = true
	}
	s.transactions = append(s.transactions, *tx)
}

// --- Investments ---

func (s *MemoryStore) PlaceInvestment(_ context.Context, p *model.Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[p.UserID]
	if !ok {
		return fmt.Errorf("account %s: %w", p.UserID, ErrNotFound)
	}
	if a.WalletBalance.LessThan(p.Amount) {
		return ErrInsufficientFunds
	}
	if p.Existing {
		cur, ok := s.investments[p.Investment.ID]
		if !ok {
			return fmt.Errorf("investment %s: %w", p.Investment.ID, ErrNotFound)
		}
		if cur.Status != model.StatusActive {
			return fmt.Errorf("investment %s is %s: %w", cur.ID, cur.Status, ErrStatusConflict)
		}
	} else if _, ok := s.investments[p.Investment.ID]; ok {
		return fmt.Errorf("investment %s: %w", p.Investment.ID, ErrAlreadyExists)
	}

	a.WalletBalance = a.WalletBalance.Sub(p.Amount)
	a.TotalInvested = a.TotalInvested.Add(p.Amount)
	copy := *p.Investment
	s.investments[copy.ID] = &copy
	if p.Transaction != nil {
		s.recordTx(p.Transaction)
	}
	return nil
}

func (s *MemoryStore) GetInvestment(_ context.Context, id string) (*model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.investments[id]
	if !ok {
		return nil, fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	copy := *inv
	return &copy, nil
}

func (s *MemoryStore) FindActiveInvestment(_ context.Context, userID, planID string) (*model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.investments {
		if inv.UserID == userID && inv.PlanID == planID && inv.Status == model.StatusActive {
			copy := *inv
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("active investment for %s in %s: %w", userID, planID, ErrNotFound)
}

func (s *MemoryStore) ListInvestmentsByUser(_ context.Context, userID string) ([]model.Investment, error) {
	return s.filterInvestments(func(inv *model.Investment) bool { return inv.UserID == userID }), nil
}

func (s *MemoryStore) ListInvestments(_ context.Context, status string) ([]model.Investment, error) {
	return s.filterInvestments(func(inv *model.Investment) bool {
		return status == "" || inv.Status == status
	}), nil
}

// filterInvestments returns matches ordered newest first.
func (s *MemoryStore) filterInvestments(keep func(*model.Investment) bool) []model.Investment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Investment
	for _, inv := range s.investments {
		if keep(inv) {
			result = append(result, *inv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *MemoryStore) UpdateAccrual(_ context.Context, id string, b model.Basis, current, expected decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.investments[id]
	if !ok {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	if inv.Status != model.StatusActive || !inv.Matches(b) {
		return fmt.Errorf("investment %s changed since read: %w", id, ErrStatusConflict)
	}
	inv.CurrentInterest = current
	inv.ExpectedInterest = expected
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CompleteInvestment(_ context.Context, id string, b model.Basis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.investments[id]
	if !ok {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	if inv.Status != model.StatusActive {
		return fmt.Errorf("investment %s is %s: %w", id, inv.Status, ErrStatusConflict)
	}
	if !inv.Matches(b) {
		return fmt.Errorf("investment %s changed since read: %w", id, ErrStatusConflict)
	}
	inv.Status = model.StatusCompleted
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Daily interest log ---

func (s *MemoryStore) UpsertInterestLog(_ context.Context, e *model.InterestLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.investments[e.InvestmentID]; !ok {
		return fmt.Errorf("investment %s: %w", e.InvestmentID, ErrNotFound)
	}
	days, ok := s.logs[e.InvestmentID]
	if !ok {
		days = make(map[string]model.InterestLogEntry)
		s.logs[e.InvestmentID] = days
	}
	days[e.Date] = *e
	return nil
}

func (s *MemoryStore) LatestInterestLog(ctx context.Context, investmentID string) (*model.InterestLogEntry, error) {
	entries, _ := s.ListInterestLog(ctx, investmentID)
	if len(entries) == 0 {
		return nil, fmt.Errorf("interest log for %s: %w", investmentID, ErrNotFound)
	}
	latest := entries[len(entries)-1]
	return &latest, nil
}

// ListInterestLog returns entries ordered by date ascending.
func (s *MemoryStore) ListInterestLog(_ context.Context, investmentID string) ([]model.InterestLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.InterestLogEntry
	for _, e := range s.logs[investmentID] {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// --- Withdrawals ---

func (s *MemoryStore) RequestWithdrawal(_ context.Context, w *model.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[w.UserID]
	if !ok {
		return fmt.Errorf("account %s: %w", w.UserID, ErrNotFound)
	}
	if a.WalletBalance.LessThan(w.Amount) {
		return ErrInsufficientFunds
	}
	a.WalletBalance = a.WalletBalance.Sub(w.Amount)
	copy := *w
	s.withdrawals[w.ID] = &copy
	s.recordTx(&model.Transaction{
		ID:        "wd-" + w.ID,
		UserID:    w.UserID,
		Type:      model.TxWithdrawal,
		Amount:    w.Amount,
		Status:    model.WithdrawalPending,
		CreatedAt: w.CreatedAt,
	})
	return nil
}

func (s *MemoryStore) GetWithdrawal(_ context.Context, id string) (*model.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, ErrNotFound)
	}
	copy := *w
	return &copy, nil
}

func (s *MemoryStore) ListWithdrawals(_ context.Context, status string) ([]model.Withdrawal, error) {
	return s.filterWithdrawals(func(w *model.Withdrawal) bool {
		return status == "" || w.Status == status
	}), nil
}

func (s *MemoryStore) ListWithdrawalsByUser(_ context.Context, userID string) ([]model.Withdrawal, error) {
	return s.filterWithdrawals(func(w *model.Withdrawal) bool { return w.UserID == userID }), nil
}

func (s *MemoryStore) filterWithdrawals(keep func(*model.Withdrawal) bool) []model.Withdrawal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Withdrawal
	for _, w := range s.withdrawals {
		if keep(w) {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

func (s *MemoryStore) TransitionWithdrawal(_ context.Context, id, from, to string) (*model.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, ErrNotFound)
	}
	if w.Status != from {
		return nil, fmt.Errorf("withdrawal %s is %s, not %s: %w", id, w.Status, from, ErrStatusConflict)
	}
	now := time.Now().UTC()
	if to == model.WithdrawalRejected {
		if a, ok := s.accounts[w.UserID]; ok {
			a.WalletBalance = a.WalletBalance.Add(w.Amount)
		}
		s.recordTx(&model.Transaction{
			ID:        "refund-" + w.ID,
			UserID:    w.UserID,
			Type:      model.TxRefund,
			Amount:    w.Amount,
			Status:    "completed",
			CreatedAt: now,
		})
	}
	w.Status = to
	w.UpdatedAt = now
	copy := *w
	return &copy, nil
}

// --- Verifications ---

func (s *MemoryStore) SubmitVerification(_ context.Context, v *model.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[v.UserID]; !ok {
		return fmt.Errorf("account %s: %w", v.UserID, ErrNotFound)
	}
	copy := *v
	s.verifications[v.ID] = &copy
	return nil
}

func (s *MemoryStore) ListVerifications(_ context.Context, status string) ([]model.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Verification
	for _, v := range s.verifications {
		if status == "" || v.Status == status {
			result = append(result, *v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryStore) TransitionVerification(_ context.Context, id, to string) (*model.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.verifications[id]
	if !ok {
		return nil, fmt.Errorf("verification %s: %w", id, ErrNotFound)
	}
	if v.Status != model.VerificationPending {
		return nil, fmt.Errorf("verification %s already %s: %w", id, v.Status, ErrStatusConflict)
	}
	v.Status = to
	v.UpdatedAt = time.Now().UTC()
	if to == model.VerificationApproved {
		if a, ok := s.accounts[v.UserID]; ok {
			a.Verified = true
		}
	}
	copy := *v
	return &copy, nil
}

// --- Back office ---

func (s *MemoryStore) Stats(_ context.Context) (*model.PlatformStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &model.PlatformStats{TotalUsers: int64(len(s.accounts))}
	for _, a := range s.accounts {
		st.TotalInvested = st.TotalInvested.Add(a.TotalInvested)
		st.TotalWallet = st.TotalWallet.Add(a.WalletBalance)
	}
	for _, inv := range s.investments {
		if inv.Status == model.StatusActive {
			st.ActiveInvestments++
		}
	}
	for _, w := range s.withdrawals {
		switch w.Status {
		case model.WithdrawalPending:
			st.PendingWithdrawals++
		case model.WithdrawalPaid:
			st.TotalWithdrawn = st.TotalWithdrawn.Add(w.Amount)
		}
	}
	for _, v := range s.verifications {
		if v.Status == model.VerificationPending {
			st.PendingVerifications++
		}
	}
	return st, nil
}
