// Package plan validates investment plan definitions and derives the
// dates and accrual terms of placements made into them.
package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/accrual"
	"github.com/solari/invest-engine/internal/model"
)

var (
	ErrInvalidPlan      = errors.New("plan: invalid plan definition")
	ErrAmountOutOfRange = errors.New("plan: amount outside plan limits")
)

// Validate checks a plan definition before it is stored.
func Validate(p *model.Plan) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	if p.AnnualRatePercent.IsNegative() {
		return fmt.Errorf("%w: interest rate must not be negative", ErrInvalidPlan)
	}
	if !p.MinAmount.IsPositive() {
		return fmt.Errorf("%w: minimum amount must be positive", ErrInvalidPlan)
	}
	if p.MaxAmount.LessThan(p.MinAmount) {
		return fmt.Errorf("%w: maximum amount %s below minimum %s", ErrInvalidPlan, p.MaxAmount, p.MinAmount)
	}
	if p.DurationDays <= 0 {
		return fmt.Errorf("%w: duration must be at least one day", ErrInvalidPlan)
	}
	if !p.CompoundingPeriod.Valid() {
		return fmt.Errorf("%w: unsupported compounding period %q", ErrInvalidPlan, p.CompoundingPeriod)
	}
	return nil
}

// CheckAmount verifies that amount lies within [MinAmount, MaxAmount].
func CheckAmount(p *model.Plan, amount decimal.Decimal) error {
	if amount.LessThan(p.MinAmount) || amount.GreaterThan(p.MaxAmount) {
		return fmt.Errorf("%w: amount must be between %s and %s", ErrAmountOutOfRange,
			p.MinAmount.StringFixed(2), p.MaxAmount.StringFixed(2))
	}
	return nil
}

// Maturity returns the end of a term started at start.
func Maturity(p *model.Plan, start time.Time) time.Time {
	return start.Add(time.Duration(p.DurationDays) * 24 * time.Hour)
}

// Terms builds accrual terms for a principal placed in the plan.
func Terms(p *model.Plan, principal decimal.Decimal, start, end time.Time) accrual.Terms {
	return accrual.Terms{
		Principal:         principal,
		AnnualRatePercent: p.AnnualRatePercent,
		Start:             start,
		End:               end,
		Period:            p.CompoundingPeriod,
	}
}

// DefaultCatalogue returns the plans seeded into a fresh store.
func DefaultCatalogue() []model.Plan {
	return []model.Plan{
		{
			ID:                "starter",
			Name:              "Starter",
			Description:       "Entry plan, monthly compounding over 90 days",
			AnnualRatePercent: decimal.NewFromInt(12),
			MinAmount:         decimal.NewFromInt(1000),
			MaxAmount:         decimal.NewFromInt(49999),
			DurationDays:      90,
			CompoundingPeriod: accrual.Monthly,
		},
		{
			ID:                "growth",
			Name:              "Growth",
			Description:       "Six month plan with daily compounding",
			AnnualRatePercent: decimal.NewFromInt(18),
			MinAmount:         decimal.NewFromInt(50000),
			MaxAmount:         decimal.NewFromInt(499999),
			DurationDays:      180,
			CompoundingPeriod: accrual.Daily,
		},
		{
			ID:                "premium",
			Name:              "Premium",
			Description:       "One year plan with quarterly compounding",
			AnnualRatePercent: decimal.NewFromInt(24),
			MinAmount:         decimal.NewFromInt(500000),
			MaxAmount:         decimal.NewFromInt(5000000),
			DurationDays:      365,
			CompoundingPeriod: accrual.Quarterly,
		},
	}
}
