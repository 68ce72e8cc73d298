package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreatePlan(ctx context.Context, p *model.Plan) error {
	if err := s.primary.CreatePlan(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, plansKey)
	return nil
}

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	return s.primary.CreateAccount(ctx, a)
}

func (s *CachedStore) CreditWallet(ctx context.Context, tx *model.Transaction) error {
	if err := s.primary.CreditWallet(ctx, tx); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(tx.UserID))
	return nil
}

func (s *CachedStore) PlaceInvestment(ctx context.Context, p *model.Placement) error {
	if err := s.primary.PlaceInvestment(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(p.UserID), investmentKey(p.Investment.ID))
	return nil
}

func (s *CachedStore) UpdateAccrual(ctx context.Context, id string, b model.Basis, current, expected decimal.Decimal) error {
	if err := s.primary.UpdateAccrual(ctx, id, b, current, expected); err != nil {
		return err
	}
	s.rdb.Del(ctx, investmentKey(id))
	return nil
}

func (s *CachedStore) CompleteInvestment(ctx context.Context, id string, b model.Basis) error {
	if err := s.primary.CompleteInvestment(ctx, id, b); err != nil {
		return err
	}
	s.rdb.Del(ctx, investmentKey(id))
	return nil
}

func (s *CachedStore) RequestWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	if err := s.primary.RequestWithdrawal(ctx, w); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(w.UserID))
	return nil
}

func (s *CachedStore) TransitionWithdrawal(ctx context.Context, id, from, to string) (*model.Withdrawal, error) {
	w, err := s.primary.TransitionWithdrawal(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, accountKey(w.UserID))
	return w, nil
}

func (s *CachedStore) TransitionVerification(ctx context.Context, id, to string) (*model.Verification, error) {
	v, err := s.primary.TransitionVerification(ctx, id, to)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, accountKey(v.UserID))
	return v, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	var p model.Plan
	if s.load(ctx, planKey(id), &p) {
		return &p, nil
	}

	// Cache miss: read from primary.
	got, err := s.primary.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	s.save(ctx, planKey(id), got)
	return got, nil
}

func (s *CachedStore) GetPlanByName(ctx context.Context, name string) (*model.Plan, error) {
	// Try cache via name→planID mapping.
	planID, err := s.rdb.Get(ctx, planNameKey(name)).Result()
	if err == nil {
		return s.GetPlan(ctx, planID)
	}

	p, err := s.primary.GetPlanByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.save(ctx, planKey(p.ID), p)
	s.rdb.Set(ctx, planNameKey(name), p.ID, s.ttl)
	return p, nil
}

func (s *CachedStore) ListPlans(ctx context.Context) ([]model.Plan, error) {
	var plans []model.Plan
	if s.load(ctx, plansKey, &plans) {
		return plans, nil
	}

	plans, err := s.primary.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	s.save(ctx, plansKey, plans)
	return plans, nil
}

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	if s.load(ctx, accountKey(userID), &a) {
		return &a, nil
	}

	got, err := s.primary.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.save(ctx, accountKey(userID), got)
	return got, nil
}

func (s *CachedStore) GetInvestment(ctx context.Context, id string) (*model.Investment, error) {
	var inv model.Investment
	if s.load(ctx, investmentKey(id), &inv) {
		return &inv, nil
	}

	got, err := s.primary.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.save(ctx, investmentKey(id), got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx, userID)
}

func (s *CachedStore) FindActiveInvestment(ctx context.Context, userID, planID string) (*model.Investment, error) {
	return s.primary.FindActiveInvestment(ctx, userID, planID)
}

func (s *CachedStore) ListInvestmentsByUser(ctx context.Context, userID string) ([]model.Investment, error) {
	return s.primary.ListInvestmentsByUser(ctx, userID)
}

func (s *CachedStore) ListInvestments(ctx context.Context, status string) ([]model.Investment, error) {
	return s.primary.ListInvestments(ctx, status)
}

func (s *CachedStore) UpsertInterestLog(ctx context.Context, e *model.InterestLogEntry) error {
	return s.primary.UpsertInterestLog(ctx, e)
}

func (s *CachedStore) LatestInterestLog(ctx context.Context, investmentID string) (*model.InterestLogEntry, error) {
	return s.primary.LatestInterestLog(ctx, investmentID)
}

func (s *CachedStore) ListInterestLog(ctx context.Context, investmentID string) ([]model.InterestLogEntry, error) {
	return s.primary.ListInterestLog(ctx, investmentID)
}

func (s *CachedStore) GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	return s.primary.GetWithdrawal(ctx, id)
}

func (s *CachedStore) ListWithdrawals(ctx context.Context, status string) ([]model.Withdrawal, error) {
	return s.primary.ListWithdrawals(ctx, status)
}

func (s *CachedStore) ListWithdrawalsByUser(ctx context.Context, userID string) ([]model.Withdrawal, error) {
	return s.primary.ListWithdrawalsByUser(ctx, userID)
}

func (s *CachedStore) SubmitVerification(ctx context.Context, v *model.Verification) error {
	return s.primary.SubmitVerification(ctx, v)
}

func (s *CachedStore) ListVerifications(ctx context.Context, status string) ([]model.Verification, error) {
	return s.primary.ListVerifications(ctx, status)
}

func (s *CachedStore) Stats(ctx context.Context) (*model.PlatformStats, error) {
	return s.primary.Stats(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) load(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) save(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const plansKey = "plans"

func planKey(id string) string { return fmt.Sprintf("plan:%s", id) }
func planNameKey(name string) string { return fmt.Sprintf("plan-name:%s", strings.ToLower(name)) }
func accountKey(uid string) string { return fmt.Sprintf("account:%s", uid) }
func investmentKey(id string) string { return fmt.Sprintf("investment:%s", id) }
