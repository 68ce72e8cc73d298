// Package accrual implements the compound-interest accrual engine used by
// every investment call site: the daily batch run, new placements, top-ups
// and the read-only dashboards.
//
// For a principal P, nominal annual rate r, compounding frequency f and a
// year of Y days, the value after d days is
//
//	V(d) = P * (1 + r/f)^(f * d/Y)
//
// The engine is stateless. Inputs and outputs are shopspring/decimal; the
// power is evaluated in float64 as exp(x * log1p(r/f)) and the growth
// factor is converted back before it touches money.
package accrual

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places money and rates are rounded to.
var Scale int32 = 8

const day = 24 * time.Hour

var (
	// ErrInvalidTerms is matched by every ValidationError.
	ErrInvalidTerms = errors.New("accrual: invalid investment terms")

	// ErrInvalidConvention is returned when the year length is not positive.
	ErrInvalidConvention = errors.New("accrual: year length must be positive")

	hundred = decimal.NewFromInt(100)
)

// ValidationError names the field of Terms that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("accrual: invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidTerms) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTerms
}

// Terms are the contractual inputs of a single investment.
type Terms struct {
	Principal         decimal.Decimal `json:"principal"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent"`
	Start             time.Time       `json:"start"`
	End               time.Time       `json:"end"`
	Period            Period          `json:"compounding_period"`
}

// Validate checks the preconditions of every calculation.
func (t Terms) Validate() error {
	if !t.Principal.IsPositive() {
		return &ValidationError{Field: "principal", Reason: "must be positive"}
	}
	if t.AnnualRatePercent.IsNegative() {
		return &ValidationError{Field: "annualRatePercent", Reason: "must not be negative"}
	}
	if t.Start.IsZero() {
		return &ValidationError{Field: "startInstant", Reason: "missing"}
	}
	if t.End.IsZero() {
		return &ValidationError{Field: "endInstant", Reason: "missing"}
	}
	if !t.Start.Before(t.End) {
		return &ValidationError{Field: "endInstant", Reason: "must be after startInstant"}
	}
	if !t.Period.Valid() {
		return &ValidationError{Field: "compoundingPeriod", Reason: fmt.Sprintf("unsupported value %q", t.Period)}
	}
	return nil
}

// Snapshot is the derived state of an investment at one instant. It is
// computed on demand and never stored as such.
type Snapshot struct {
	AsOf                time.Time       `json:"as_of"`
	CurrentInterest     decimal.Decimal `json:"current_interest"`
	CurrentValue        decimal.Decimal `json:"current_value"`
	ExpectedInterest    decimal.Decimal `json:"expected_interest"`
	ExpectedValue       decimal.Decimal `json:"expected_value"`
	YesterdayInterest   decimal.Decimal `json:"yesterday_interest"`
	YesterdayValue      decimal.Decimal `json:"yesterday_value"`
	DaysElapsed         int64           `json:"days_elapsed"`
	TotalDays           int64           `json:"total_days"`
	ProgressPercent     decimal.Decimal `json:"progress_percent"`
	EffectiveAnnualRate decimal.Decimal `json:"effective_annual_rate"`
	Matured             bool            `json:"matured"`
}

// Consolidation is the result of folding accrued interest and a new
// contribution into an existing principal.
type Consolidation struct {
	PreviousPrincipal decimal.Decimal `json:"previous_principal"`
	AccruedInterest   decimal.Decimal `json:"accrued_interest"`
	Contribution      decimal.Decimal `json:"contribution"`
	NewPrincipal      decimal.Decimal `json:"new_principal"`
}

// Engine evaluates Terms under one day-count convention.
type Engine struct {
	conv Convention
}

// NewEngine creates an engine for the given convention.
func NewEngine(conv Convention) (*Engine, error) {
	if !(conv.YearDays > 0) || math.IsInf(conv.YearDays, 0) {
		return nil, ErrInvalidConvention
	}
	return &Engine{conv: conv}, nil
}

// Convention returns the day-count convention of the engine.
func (e *Engine) Convention() Convention {
	return e.conv
}

// Frequency returns the number of compounding periods per year. Daily and
// weekly follow the year length so that both stay consistent with the
// convention.
func (e *Engine) Frequency(p Period) (float64, error) {
	switch p {
	case Daily:
		return e.conv.YearDays, nil
	case Weekly:
		return e.conv.YearDays / 7, nil
	case Monthly:
		return 12, nil
	case Quarterly:
		return 4, nil
	case Yearly:
		return 1, nil
	}
	return 0, &ValidationError{Field: "compoundingPeriod", Reason: fmt.Sprintf("unsupported value %q", p)}
}

// growth returns (1 + r/f)^(f * days/Y).
func (e *Engine) growth(r, f, days float64) float64 {
	if r == 0 || days <= 0 {
		return 1
	}
	return math.Exp(f * days / e.conv.YearDays * math.Log1p(r/f))
}

func (e *Engine) valueAt(principal decimal.Decimal, r, f, days float64) decimal.Decimal {
	g := e.growth(r, f, days)
	return principal.Mul(decimal.NewFromFloat(g)).Round(Scale)
}

// interestOf returns value - principal, floored at zero.
func interestOf(value, principal decimal.Decimal) decimal.Decimal {
	i := value.Sub(principal)
	if i.IsNegative() {
		return decimal.Zero
	}
	return i
}

// Snapshot computes current, expected and yesterday figures for terms at
// the reference instant. A reference after End is clamped to End and one
// before Start yields zero elapsed days.
func (e *Engine) Snapshot(terms Terms, reference time.Time) (Snapshot, error) {
	if err := terms.Validate(); err != nil {
		return Snapshot{}, err
	}
	f, err := e.Frequency(terms.Period)
	if err != nil {
		return Snapshot{}, err
	}
	r := terms.AnnualRatePercent.InexactFloat64() / 100

	effectiveNow := reference
	if effectiveNow.After(terms.End) {
		effectiveNow = terms.End
	}

	totalDays := int64(math.Ceil(daysBetween(terms.Start, terms.End)))
	if totalDays < 1 {
		totalDays = 1
	}
	elapsed := daysBetween(terms.Start, effectiveNow)
	daysElapsed := clampDays(int64(math.Ceil(elapsed)), totalDays)

	p := terms.Principal
	expectedValue := e.valueAt(p, r, f, float64(totalDays))
	currentValue := e.valueAt(p, r, f, float64(daysElapsed))

	snap := Snapshot{
		AsOf:                effectiveNow,
		CurrentValue:        currentValue,
		CurrentInterest:     interestOf(currentValue, p),
		ExpectedValue:       expectedValue,
		ExpectedInterest:    interestOf(expectedValue, p),
		YesterdayInterest:   decimal.Zero,
		YesterdayValue:      p,
		DaysElapsed:         daysElapsed,
		TotalDays:           totalDays,
		ProgressPercent:     progress(daysElapsed, totalDays),
		EffectiveAnnualRate: effectiveRate(r, f),
		Matured:             !reference.Before(terms.End),
	}

	// Last whole-day boundary before the reference instant.
	boundary := clampDays(int64(math.Floor(elapsed)), totalDays)
	if boundary >= 1 {
		yv := e.valueAt(p, r, f, float64(boundary))
		prev := e.valueAt(p, r, f, float64(boundary-1))
		snap.YesterdayValue = yv
		snap.YesterdayInterest = interestOf(yv, prev)
	}

	return snap, nil
}

// SnapshotNow is Snapshot at the current wall-clock time.
func (e *Engine) SnapshotNow(terms Terms) (Snapshot, error) {
	return e.Snapshot(terms, time.Now())
}

// EffectiveAnnualRate returns the APY in percent implied by a nominal rate
// and compounding period. It does not depend on elapsed time.
func (e *Engine) EffectiveAnnualRate(annualRatePercent decimal.Decimal, p Period) (decimal.Decimal, error) {
	if annualRatePercent.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "annualRatePercent", Reason: "must not be negative"}
	}
	f, err := e.Frequency(p)
	if err != nil {
		return decimal.Zero, err
	}
	return effectiveRate(annualRatePercent.InexactFloat64()/100, f), nil
}

// InterestForDays returns the interest a principal earns over a whole
// number of days, independent of any start date.
func (e *Engine) InterestForDays(principal, annualRatePercent decimal.Decimal, p Period, days int64) (decimal.Decimal, error) {
	if !principal.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "principal", Reason: "must be positive"}
	}
	if annualRatePercent.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "annualRatePercent", Reason: "must not be negative"}
	}
	if days < 0 {
		return decimal.Zero, &ValidationError{Field: "days", Reason: "must not be negative"}
	}
	f, err := e.Frequency(p)
	if err != nil {
		return decimal.Zero, err
	}
	v := e.valueAt(principal, annualRatePercent.InexactFloat64()/100, f, float64(days))
	return interestOf(v, principal), nil
}

// Consolidate folds the interest accrued on terms up to reference and a new
// contribution into a new principal:
//
//	newPrincipal = principal + currentInterest + contribution
func (e *Engine) Consolidate(terms Terms, reference time.Time, contribution decimal.Decimal) (Consolidation, error) {
	if contribution.IsNegative() {
		return Consolidation{}, &ValidationError{Field: "contribution", Reason: "must not be negative"}
	}
	snap, err := e.Snapshot(terms, reference)
	if err != nil {
		return Consolidation{}, err
	}
	return Consolidation{
		PreviousPrincipal: terms.Principal,
		AccruedInterest:   snap.CurrentInterest,
		Contribution:      contribution,
		NewPrincipal:      terms.Principal.Add(snap.CurrentInterest).Add(contribution),
	}, nil
}

// effectiveRate returns ((1 + r/f)^f - 1) * 100.
func effectiveRate(r, f float64) decimal.Decimal {
	if r == 0 {
		return decimal.Zero
	}
	ear := math.Expm1(f*math.Log1p(r/f)) * 100
	return decimal.NewFromFloat(ear).Round(Scale)
}

func progress(elapsed, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(elapsed).Mul(hundred).Div(decimal.NewFromInt(total)).Round(2)
}

func daysBetween(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(day)
}

func clampDays(d, total int64) int64 {
	if d < 0 {
		return 0
	}
	if d > total {
		return total
	}
	return d
}
