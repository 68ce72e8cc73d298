// Package investment provides the HTTP handlers and business logic for
// wallets, plan placements, top-ups, live interest views, withdrawals and
// gateway deposits.
//
// All monetary values use shopspring/decimal. Interest figures always come
// from the accrual engine.
package investment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/solari/invest-engine/internal/accrual"
	"github.com/solari/invest-engine/internal/exposure"
	"github.com/solari/invest-engine/internal/feed"
	"github.com/solari/invest-engine/internal/lock"
	"github.com/solari/invest-engine/internal/metrics"
	"github.com/solari/invest-engine/internal/model"
	"github.com/solari/invest-engine/internal/plan"
	"github.com/solari/invest-engine/internal/store"
)

// Placement kinds.
const (
	KindNew   = "new"
	KindTopUp = "topup"
)

// placementLockTTL bounds how long one user's placement may hold the lock.
const placementLockTTL = 30 * time.Second

var (
	// ErrInvalidRequest is returned for malformed or incomplete input.
	ErrInvalidRequest = errors.New("investment: invalid request")

	// ErrInvalidSignature is returned when a webhook signature does not verify.
	ErrInvalidSignature = errors.New("investment: invalid webhook signature")
)

// Service handles investment operations. Placements are serialised per
// user through the Locker, so two requests for the same user never
// consolidate the same investment concurrently.
type Service struct {
	store         store.Store
	engine        *accrual.Engine
	limiter       *exposure.Limiter
	locker        lock.Locker
	feed          feed.Broadcaster // optional
	webhookSecret []byte
	tracer        trace.Tracer
	now           func() time.Time
}

// NewService creates a new investment service.
// Pass nil for fb if live feed broadcasting is not needed.
func NewService(st store.Store, engine *accrual.Engine, limiter *exposure.Limiter, locker lock.Locker, fb feed.Broadcaster, webhookSecret string) *Service {
	return &Service{
		store:         st,
		engine:        engine,
		limiter:       limiter,
		locker:        locker,
		feed:          fb,
		webhookSecret: []byte(webhookSecret),
		tracer:        otel.Tracer("invest-engine/investment"),
		now:           time.Now,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PlaceRequest is the JSON body for POST /invest.
type PlaceRequest struct {
	UserID   string          `json:"user_id"`
	PlanID   string          `json:"plan_id,omitempty"`
	PlanName string          `json:"plan_name,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// PlaceResult is the JSON body returned from POST /invest.
type PlaceResult struct {
	Type          string                 `json:"type"`
	Investment    *model.Investment      `json:"investment"`
	Snapshot      accrual.Snapshot       `json:"snapshot"`
	Consolidation *accrual.Consolidation `json:"consolidation,omitempty"`
	TransactionID string                 `json:"transaction_id"`
}

// Place moves Amount from the user's wallet into the plan. An existing
// active investment in the same plan is topped up: its accrued interest
// and the contribution are folded into the principal and a fresh term
// starts now.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*PlaceResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "investment.place")
	defer span.End()

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if req.PlanID == "" && req.PlanName == "" {
		return nil, fmt.Errorf("%w: plan_id or plan_name is required", ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	p, err := s.resolvePlan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := plan.CheckAmount(p, req.Amount); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("plan_id", p.ID),
		attribute.String("amount", req.Amount.String()),
	)

	unlock, err := s.locker.Lock(ctx, "invest:"+req.UserID, placementLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire placement lock: %w", err)
	}
	defer unlock()

	existing, err := s.store.FindActiveInvestment(ctx, req.UserID, p.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	end := plan.Maturity(p, now)
	result := &PlaceResult{Type: KindNew}
	delta := req.Amount

	var inv *model.Investment
	if existing != nil {
		cons, err := s.engine.Consolidate(existing.Terms(), now, req.Amount)
		if err != nil {
			return nil, err
		}
		result.Type = KindTopUp
		result.Consolidation = &cons
		delta = cons.NewPrincipal.Sub(existing.Principal)

		topped := *existing
		topped.Principal = cons.NewPrincipal
		topped.StartDate = now
		topped.EndDate = end
		topped.UpdatedAt = now
		inv = &topped
	} else {
		inv = &model.Investment{
			ID:                uuid.New().String(),
			UserID:            req.UserID,
			PlanID:            p.ID,
			Principal:         req.Amount,
			AnnualRatePercent: p.AnnualRatePercent,
			CompoundingPeriod: p.CompoundingPeriod,
			StartDate:         now,
			EndDate:           end,
			Status:            model.StatusActive,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}

	if err := s.checkExposure(ctx, req.UserID, p.ID, delta); err != nil {
		return nil, err
	}

	snap, err := s.engine.Snapshot(inv.Terms(), now)
	if err != nil {
		return nil, err
	}
	inv.CurrentInterest = snap.CurrentInterest
	inv.ExpectedInterest = snap.ExpectedInterest

	tx := &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Type:      model.TxInvestment,
		Amount:    req.Amount,
		Status:    "completed",
		CreatedAt: now,
	}
	if err := s.store.PlaceInvestment(ctx, &model.Placement{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Existing:    existing != nil,
		Investment:  inv,
		Transaction: tx,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place investment")
		return nil, err
	}

	result.Investment = inv
	result.Snapshot = snap
	result.TransactionID = tx.ID

	metrics.InvestmentsPlaced.WithLabelValues(result.Type).Inc()
	metrics.InvestedVolume.WithLabelValues(p.ID).Add(req.Amount.InexactFloat64())
	metrics.PlacementLatency.WithLabelValues(result.Type).Observe(time.Since(start).Seconds())

	slog.Info("investment placed",
		"investment_id", inv.ID,
		"user", req.UserID,
		"plan", p.ID,
		"type", result.Type,
		"amount", req.Amount.String(),
		"principal", inv.Principal.String(),
		"expected_interest", inv.ExpectedInterest.String(),
	)

	if s.feed != nil {
		s.feed.Broadcast(feed.Message{
			Type:             feed.TypePlacement,
			InvestmentID:     inv.ID,
			UserID:           inv.UserID,
			CurrentInterest:  inv.CurrentInterest.String(),
			ExpectedInterest: inv.ExpectedInterest.String(),
			Status:           inv.Status,
		})
	}
	return result, nil
}

func (s *Service) resolvePlan(ctx context.Context, req PlaceRequest) (*model.Plan, error) {
	if req.PlanID != "" {
		return s.store.GetPlan(ctx, req.PlanID)
	}
	return s.store.GetPlanByName(ctx, req.PlanName)
}

// checkExposure sums the user's active principal per plan and applies
// the limiter to delta more in planID.
func (s *Service) checkExposure(ctx context.Context, userID, planID string, delta decimal.Decimal) error {
	if s.limiter == nil {
		return nil
	}
	invs, err := s.store.ListInvestmentsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load exposure: %w", err)
	}
	held := make(map[string]decimal.Decimal)
	for _, inv := range invs {
		if inv.Status == model.StatusActive {
			held[inv.PlanID] = held[inv.PlanID].Add(inv.Principal)
		}
	}
	err = s.limiter.Check(planID, delta, held)
	switch {
	case errors.Is(err, exposure.ErrPerPlanLimitExceeded):
		metrics.ExposureRejections.WithLabelValues("per_plan").Inc()
	case errors.Is(err, exposure.ErrTotalLimitExceeded):
		metrics.ExposureRejections.WithLabelValues("total").Inc()
	}
	return err
}

// View is an investment with its live snapshot. LastLogged is the most
// recent daily log row, kept as a cross-check against the engine's
// yesterday figure.
type View struct {
	model.Investment
	Snapshot   accrual.Snapshot        `json:"snapshot"`
	LastLogged *model.InterestLogEntry `json:"last_logged,omitempty"`
}

// Views returns live snapshots for investments at the reference instant.
func Views(ctx context.Context, st store.Store, engine *accrual.Engine, invs []model.Investment, at time.Time) ([]View, error) {
	views := make([]View, 0, len(invs))
	for _, inv := range invs {
		snap, err := engine.Snapshot(inv.Terms(), at)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", inv.ID, err)
		}
		v := View{Investment: inv, Snapshot: snap}
		if last, err := st.LatestInterestLog(ctx, inv.ID); err == nil {
			v.LastLogged = last
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// UserInvestments returns the user's investments with live snapshots.
func (s *Service) UserInvestments(ctx context.Context, userID string) ([]View, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	invs, err := s.store.ListInvestmentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Views(ctx, s.store, s.engine, invs, s.now())
}

// SnapshotAt returns one investment's snapshot at an arbitrary instant.
func (s *Service) SnapshotAt(ctx context.Context, userID, investmentID string, at time.Time) (accrual.Snapshot, error) {
	inv, err := s.store.GetInvestment(ctx, investmentID)
	if err != nil {
		return accrual.Snapshot{}, err
	}
	if inv.UserID != userID {
		return accrual.Snapshot{}, fmt.Errorf("investment %s: %w", investmentID, store.ErrNotFound)
	}
	return s.engine.Snapshot(inv.Terms(), at)
}

// QuoteRequest is the JSON body for POST /quote. Either PlanID with
// Amount, or explicit terms.
type QuoteRequest struct {
	PlanID            string          `json:"plan_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent"`
	CompoundingPeriod string          `json:"compounding_period,omitempty"`
	Start             time.Time       `json:"start"`
	End               time.Time       `json:"end"`
	At                *time.Time      `json:"at,omitempty"`
}

// Quote computes a snapshot for ad-hoc terms without persisting anything.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (accrual.Snapshot, error) {
	at := s.now()
	if req.At != nil {
		at = *req.At
	}

	var terms accrual.Terms
	if req.PlanID != "" {
		p, err := s.store.GetPlan(ctx, req.PlanID)
		if err != nil {
			return accrual.Snapshot{}, err
		}
		start := req.Start
		if start.IsZero() {
			start = s.now()
		}
		terms = plan.Terms(p, req.Amount, start, plan.Maturity(p, start))
	} else {
		period, err := accrual.ParsePeriod(req.CompoundingPeriod)
		if err != nil {
			return accrual.Snapshot{}, err
		}
		terms = accrual.Terms{
			Principal:         req.Amount,
			AnnualRatePercent: req.AnnualRatePercent,
			Start:             req.Start,
			End:               req.End,
			Period:            period,
		}
	}
	return s.engine.Snapshot(terms, at)
}

// OpenAccount creates a wallet for a user.
func (s *Service) OpenAccount(ctx context.Context, userID, email string) (*model.Account, error) {
	if userID == "" {
		userID = uuid.New().String()
	}
	a := &model.Account{
		UserID:        userID,
		Email:         email,
		WalletBalance: decimal.Zero,
		TotalInvested: decimal.Zero,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	slog.Info("account opened", "user", userID)
	return a, nil
}

// RequestWithdrawal debits the wallet and records a pending request.
func (s *Service) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (*model.Withdrawal, error) {
	if userID == "" || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: user_id and a positive amount are required", ErrInvalidRequest)
	}
	now := s.now().UTC()
	wd := &model.Withdrawal{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    amount,
		Status:    model.WithdrawalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.RequestWithdrawal(ctx, wd); err != nil {
		return nil, err
	}
	metrics.Withdrawals.WithLabelValues(model.WithdrawalPending).Inc()
	slog.Info("withdrawal requested", "withdrawal_id", wd.ID, "user", userID, "amount", amount.String())
	return wd, nil
}

// SubmitVerification records an identity document for review.
func (s *Service) SubmitVerification(ctx context.Context, userID, docType, docRef string) (*model.Verification, error) {
	if userID == "" || docType == "" || docRef == "" {
		return nil, fmt.Errorf("%w: user_id, document_type and document_ref are required", ErrInvalidRequest)
	}
	now := s.now().UTC()
	v := &model.Verification{
		ID:           uuid.New().String(),
		UserID:       userID,
		DocumentType: docType,
		DocumentRef:  docRef,
		Status:       model.VerificationPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SubmitVerification(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}
