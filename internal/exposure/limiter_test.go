package exposure

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheck_WithinLimits(t *testing.T) {
	limiter := NewLimiter(d(1000), d(5000))

	if err := limiter.Check("growth", d(100), nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheck_PerPlanExceeded(t *testing.T) {
	limiter := NewLimiter(d(1000), d(5000))

	// Existing 950 + new 100 = 1050 > 1000.
	existing := map[string]decimal.Decimal{"growth": d(950)}

	if err := limiter.Check("growth", d(100), existing); err != ErrPerPlanLimitExceeded {
		t.Errorf("expected ErrPerPlanLimitExceeded, got %v", err)
	}
}

func TestCheck_PerPlanAtLimit(t *testing.T) {
	limiter := NewLimiter(d(1000), d(5000))
	existing := map[string]decimal.Decimal{"growth": d(900)}

	if err := limiter.Check("growth", d(100), existing); err != nil {
		t.Errorf("exactly at the limit should pass, got %v", err)
	}
}

func TestCheck_TotalExceeded(t *testing.T) {
	limiter := NewLimiter(d(1000), d(2000))

	existing := map[string]decimal.Decimal{
		"starter": d(800),
		"growth":  d(800),
		"premium": d(300),
	}

	// 200 more in a fourth plan: 800+800+300+200 = 2100 > 2000.
	if err := limiter.Check("flex", d(200), existing); err != ErrTotalLimitExceeded {
		t.Errorf("expected ErrTotalLimitExceeded, got %v", err)
	}
}

func TestCheck_TotalCountsTargetOnce(t *testing.T) {
	limiter := NewLimiter(d(1000), d(1500))
	existing := map[string]decimal.Decimal{
		"starter": d(700),
		"growth":  d(600),
	}

	// growth becomes 800, total 1500: allowed.
	if err := limiter.Check("growth", d(200), existing); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheck_ZeroLimitsDisabled(t *testing.T) {
	limiter := NewLimiter(decimal.Zero, decimal.Zero)
	existing := map[string]decimal.Decimal{"growth": d(1e9)}

	if err := limiter.Check("growth", d(1e9), existing); err != nil {
		t.Errorf("zero limits should disable checks, got %v", err)
	}
}
