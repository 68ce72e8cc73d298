// Package exposure enforces per-user limits on the principal held in
// investment plans.
//
// A user may hold at most MaxPerPlan across active investments in a single
// plan, and at most MaxTotal across all active investments.
package exposure

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerPlanLimitExceeded is returned when a placement would push the
	// principal held in one plan beyond MaxPerPlan.
	ErrPerPlanLimitExceeded = errors.New("exposure: per-plan limit exceeded")

	// ErrTotalLimitExceeded is returned when a placement would push the
	// user's total active principal beyond MaxTotal.
	ErrTotalLimitExceeded = errors.New("exposure: total exposure limit exceeded")
)

// Limiter enforces exposure limits. A zero limit disables that check.
type Limiter struct {
	MaxPerPlan decimal.Decimal
	MaxTotal   decimal.Decimal
}

// NewLimiter creates a limiter with the given per-plan and total limits.
func NewLimiter(maxPerPlan, maxTotal decimal.Decimal) *Limiter {
	return &Limiter{
		MaxPerPlan: maxPerPlan,
		MaxTotal:   maxTotal,
	}
}

// Check validates whether adding delta to planID respects the limits.
//
// existing maps plan ID to the principal the user currently holds in that
// plan. Returns nil if the placement is within limits.
func (l *Limiter) Check(planID string, delta decimal.Decimal, existing map[string]decimal.Decimal) error {
	// 1. Per-plan limit.
	newInPlan := existing[planID].Add(delta)
	if l.MaxPerPlan.IsPositive() && newInPlan.GreaterThan(l.MaxPerPlan) {
		return ErrPerPlanLimitExceeded
	}

	// 2. Total across plans.
	total := newInPlan
	for id, held := range existing {
		if id == planID {
			continue // already counted via newInPlan
		}
		total = total.Add(held)
	}
	if l.MaxTotal.IsPositive() && total.GreaterThan(l.MaxTotal) {
		return ErrTotalLimitExceeded
	}

	return nil
}
