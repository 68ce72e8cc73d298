package accrual

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var start = time.Date(2025, time.January, 1, 9, 30, 0, 0, time.UTC)

func mustEngine(t *testing.T, conv Convention) *Engine {
	t.Helper()
	e, err := NewEngine(conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

func terms(principal, rate float64, days int, p Period) Terms {
	return Terms{
		Principal:         d(principal),
		AnnualRatePercent: d(rate),
		Start:             start,
		End:               start.Add(time.Duration(days) * day),
		Period:            p,
	}
}

func within(a, b decimal.Decimal, tol float64) bool {
	return a.Sub(b).Abs().LessThanOrEqual(d(tol))
}

// --- Constructor tests ---

func TestNewEngine_Valid(t *testing.T) {
	e := mustEngine(t, Actual36525)
	if e.Convention().YearDays != 365.25 {
		t.Errorf("expected year of 365.25 days, got %v", e.Convention().YearDays)
	}
}

func TestNewEngine_InvalidYear(t *testing.T) {
	for _, y := range []float64{0, -365, math.NaN(), math.Inf(1)} {
		if _, err := NewEngine(Convention{Name: "bad", YearDays: y}); err != ErrInvalidConvention {
			t.Errorf("expected ErrInvalidConvention for year=%v, got %v", y, err)
		}
	}
}

// --- Frequency tests ---

func TestFrequency_Table(t *testing.T) {
	e := mustEngine(t, Actual365)
	tests := []struct {
		p    Period
		want float64
	}{
		{Daily, 365},
		{Weekly, 365.0 / 7},
		{Monthly, 12},
		{Quarterly, 4},
		{Yearly, 1},
	}
	for _, tt := range tests {
		got, err := e.Frequency(tt.p)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.p, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.p, tt.want, got)
		}
	}
}

func TestFrequency_FollowsConvention(t *testing.T) {
	e := mustEngine(t, Actual36525)
	daily, _ := e.Frequency(Daily)
	weekly, _ := e.Frequency(Weekly)
	if daily != 365.25 || weekly != 365.25/7 {
		t.Errorf("expected daily=365.25 weekly=%v, got %v and %v", 365.25/7, daily, weekly)
	}
}

func TestFrequency_UnknownPeriod(t *testing.T) {
	e := mustEngine(t, Actual365)
	if _, err := e.Frequency(Period("fortnightly")); !errors.Is(err, ErrInvalidTerms) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// --- Validation tests ---

func TestSnapshot_ValidationErrors(t *testing.T) {
	e := mustEngine(t, Actual365)

	tests := []struct {
		name  string
		mod   func(*Terms)
		field string
	}{
		{"zero principal", func(tm *Terms) { tm.Principal = decimal.Zero }, "principal"},
		{"negative principal", func(tm *Terms) { tm.Principal = d(-5) }, "principal"},
		{"negative rate", func(tm *Terms) { tm.AnnualRatePercent = d(-1) }, "annualRatePercent"},
		{"missing start", func(tm *Terms) { tm.Start = time.Time{} }, "startInstant"},
		{"missing end", func(tm *Terms) { tm.End = time.Time{} }, "endInstant"},
		{"start equals end", func(tm *Terms) { tm.End = tm.Start }, "endInstant"},
		{"inverted window", func(tm *Terms) { tm.End = tm.Start.Add(-day) }, "endInstant"},
		{"unknown period", func(tm *Terms) { tm.Period = "hourly" }, "compoundingPeriod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := terms(10000, 18, 180, Monthly)
			tt.mod(&tm)
			_, err := e.Snapshot(tm, start.Add(10*day))
			if !errors.Is(err, ErrInvalidTerms) {
				t.Fatalf("expected ErrInvalidTerms, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

// --- Snapshot tests ---

func TestSnapshot_ConcreteScenario(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(10000, 18, 180, Monthly)

	snap, err := e.Snapshot(tm, start.Add(90*day))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := 10000*math.Pow(1+0.18/12, 12*90.0/365) - 10000
	if !within(snap.CurrentInterest, d(want), 1e-6) {
		t.Errorf("expected current interest ≈ %.6f, got %s", want, snap.CurrentInterest)
	}
	wantExpected := 10000*math.Pow(1+0.18/12, 12*180.0/365) - 10000
	if !within(snap.ExpectedInterest, d(wantExpected), 1e-6) {
		t.Errorf("expected interest at maturity ≈ %.6f, got %s", wantExpected, snap.ExpectedInterest)
	}
	if snap.DaysElapsed != 90 || snap.TotalDays != 180 {
		t.Errorf("expected 90/180 days, got %d/%d", snap.DaysElapsed, snap.TotalDays)
	}
	if !snap.ProgressPercent.Equal(d(50)) {
		t.Errorf("expected progress 50, got %s", snap.ProgressPercent)
	}
	if !snap.CurrentValue.Equal(tm.Principal.Add(snap.CurrentInterest)) {
		t.Errorf("current value %s should equal principal + interest %s", snap.CurrentValue, snap.CurrentInterest)
	}
	if snap.Matured {
		t.Error("investment should not be matured at day 90")
	}
}

func TestSnapshot_ConventionChangesResult(t *testing.T) {
	tm := terms(10000, 18, 365, Daily)
	ref := start.Add(200 * day)

	a, _ := mustEngine(t, Actual365).Snapshot(tm, ref)
	b, _ := mustEngine(t, Actual36525).Snapshot(tm, ref)
	if !a.CurrentInterest.GreaterThan(b.CurrentInterest) {
		t.Errorf("ACT/365 should accrue more than ACT/365.25: %s vs %s", a.CurrentInterest, b.CurrentInterest)
	}
}

func TestSnapshot_Monotonic(t *testing.T) {
	e := mustEngine(t, Actual365)
	for _, p := range Periods {
		tm := terms(2500, 12.5, 120, p)
		prev := decimal.Zero
		prevValue := decimal.Zero
		for h := 0; h <= 120*24; h += 7 {
			snap, err := e.Snapshot(tm, start.Add(time.Duration(h)*time.Hour))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if snap.CurrentInterest.LessThan(prev) {
				t.Fatalf("%s: interest decreased at hour %d: %s < %s", p, h, snap.CurrentInterest, prev)
			}
			if snap.CurrentValue.LessThan(prevValue) {
				t.Fatalf("%s: value decreased at hour %d", p, h)
			}
			if snap.CurrentInterest.GreaterThan(snap.ExpectedInterest) {
				t.Fatalf("%s: current %s exceeds expected %s", p, snap.CurrentInterest, snap.ExpectedInterest)
			}
			prev = snap.CurrentInterest
			prevValue = snap.CurrentValue
		}
		atEnd, _ := e.Snapshot(tm, tm.End)
		if !atEnd.CurrentInterest.Equal(atEnd.ExpectedInterest) {
			t.Errorf("%s: at maturity current %s should equal expected %s", p, atEnd.CurrentInterest, atEnd.ExpectedInterest)
		}
	}
}

func TestSnapshot_NonNegativeAtStart(t *testing.T) {
	e := mustEngine(t, Actual365)
	for _, p := range Periods {
		snap, err := e.Snapshot(terms(1234.56, 9.75, 30, p), start)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.CurrentInterest.IsNegative() || snap.ExpectedInterest.IsNegative() {
			t.Errorf("%s: interest must not be negative: %+v", p, snap)
		}
		if !snap.CurrentInterest.IsZero() {
			t.Errorf("%s: expected zero interest at start, got %s", p, snap.CurrentInterest)
		}
		if snap.DaysElapsed != 0 {
			t.Errorf("%s: expected 0 days elapsed, got %d", p, snap.DaysElapsed)
		}
	}
}

func TestSnapshot_ZeroRate(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(5000.25, 0, 90, Daily)

	for _, ref := range []time.Time{start, start.Add(45 * day), tm.End, tm.End.AddDate(3, 0, 0)} {
		snap, err := e.Snapshot(tm, ref)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !snap.CurrentValue.Equal(tm.Principal) || !snap.ExpectedValue.Equal(tm.Principal) {
			t.Errorf("zero rate should keep value at principal: current=%s expected=%s", snap.CurrentValue, snap.ExpectedValue)
		}
		if !snap.CurrentInterest.IsZero() || !snap.ExpectedInterest.IsZero() || !snap.YesterdayInterest.IsZero() {
			t.Errorf("zero rate should produce zero interest: %+v", snap)
		}
		if !snap.EffectiveAnnualRate.IsZero() {
			t.Errorf("expected zero APY, got %s", snap.EffectiveAnnualRate)
		}
	}
}

func TestSnapshot_BeforeStartClampsToZero(t *testing.T) {
	e := mustEngine(t, Actual365)
	snap, err := e.Snapshot(terms(1000, 10, 30, Monthly), start.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("before-start reference must not be an error: %v", err)
	}
	if snap.DaysElapsed != 0 || !snap.CurrentInterest.IsZero() {
		t.Errorf("expected zero elapsed and interest, got %d / %s", snap.DaysElapsed, snap.CurrentInterest)
	}
	if !snap.YesterdayValue.Equal(d(1000)) {
		t.Errorf("yesterday value should be principal, got %s", snap.YesterdayValue)
	}
}

func TestSnapshot_ClampsAfterMaturity(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(10000, 18, 180, Monthly)

	snap, err := e.Snapshot(tm, tm.End.AddDate(10, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snap.CurrentInterest.Equal(snap.ExpectedInterest) {
		t.Errorf("current %s should equal expected %s ten years after maturity", snap.CurrentInterest, snap.ExpectedInterest)
	}
	if !snap.AsOf.Equal(tm.End) {
		t.Errorf("evaluation instant should be clamped to %v, got %v", tm.End, snap.AsOf)
	}
	if !snap.Matured {
		t.Error("expected matured")
	}
	if !snap.ProgressPercent.Equal(d(100)) {
		t.Errorf("expected progress 100, got %s", snap.ProgressPercent)
	}
}

func TestSnapshot_PartialDayRoundsUp(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(1000, 10, 10, Daily)
	tm.End = tm.End.Add(12 * time.Hour)

	snap, _ := e.Snapshot(tm, start.Add(2*day+time.Hour))
	if snap.TotalDays != 11 {
		t.Errorf("expected 11 total days for 10.5 day window, got %d", snap.TotalDays)
	}
	if snap.DaysElapsed != 3 {
		t.Errorf("expected 3 days elapsed after 2 days and an hour, got %d", snap.DaysElapsed)
	}
}

func TestSnapshot_SameDayWindow(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(1000, 10, 0, Daily)
	tm.End = start.Add(3 * time.Hour)

	snap, err := e.Snapshot(tm, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.TotalDays != 1 {
		t.Errorf("expected total days floored at 1, got %d", snap.TotalDays)
	}
}

// --- Yesterday tests ---

func TestSnapshot_YesterdayZeroOnFirstDay(t *testing.T) {
	e := mustEngine(t, Actual365)
	snap, _ := e.Snapshot(terms(1000, 10, 30, Daily), start.Add(23*time.Hour))
	if !snap.YesterdayInterest.IsZero() {
		t.Errorf("expected zero yesterday interest on day one, got %s", snap.YesterdayInterest)
	}
	if !snap.YesterdayValue.Equal(d(1000)) {
		t.Errorf("expected yesterday value = principal, got %s", snap.YesterdayValue)
	}
}

func TestSnapshot_YesterdayIsOneDayDelta(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(20000, 15, 90, Daily)

	snap, _ := e.Snapshot(tm, start.Add(10*day+5*time.Hour))
	v10 := 20000 * math.Pow(1+0.15/365, 10)
	v9 := 20000 * math.Pow(1+0.15/365, 9)
	if !within(snap.YesterdayInterest, d(v10-v9), 1e-6) {
		t.Errorf("expected yesterday interest ≈ %.8f, got %s", v10-v9, snap.YesterdayInterest)
	}
	if !within(snap.YesterdayValue, d(v10), 1e-6) {
		t.Errorf("expected yesterday value ≈ %.8f, got %s", v10, snap.YesterdayValue)
	}
}

func TestSnapshot_YesterdaySumsToExpected(t *testing.T) {
	e := mustEngine(t, Actual365)
	for _, p := range Periods {
		tm := terms(10000, 18, 180, p)
		sum := decimal.Zero
		var expected decimal.Decimal
		for k := 1; k <= 180; k++ {
			snap, err := e.Snapshot(tm, start.Add(time.Duration(k)*day))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			sum = sum.Add(snap.YesterdayInterest)
			expected = snap.ExpectedInterest
		}
		if !within(sum, expected, 1e-5) {
			t.Errorf("%s: daily deltas %s should add up to expected %s", p, sum, expected)
		}
	}
}

// A term ending mid-day rounds TotalDays up, but the last whole-day
// boundary is rounded down, so the final partial day never shows up as a
// yesterday delta.
func TestSnapshot_YesterdayFractionalTermStopsShort(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(10000, 18, 10, Daily)
	tm.End = tm.End.Add(12 * time.Hour)

	sum := decimal.Zero
	for k := 1; k <= 10; k++ {
		snap, err := e.Snapshot(tm, start.Add(time.Duration(k)*day))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sum = sum.Add(snap.YesterdayInterest)
	}

	i10, _ := e.InterestForDays(d(10000), d(18), Daily, 10)
	i11, _ := e.InterestForDays(d(10000), d(18), Daily, 11)

	for _, ref := range []time.Time{tm.End, tm.End.Add(3 * day)} {
		snap, _ := e.Snapshot(tm, ref)
		if snap.TotalDays != 11 || snap.DaysElapsed != 11 {
			t.Fatalf("expected 11/11 days at %s, got %d/%d", ref, snap.DaysElapsed, snap.TotalDays)
		}
		if !within(snap.ExpectedInterest, i11, 1e-6) {
			t.Errorf("expected interest should cover 11 days, got %s want %s", snap.ExpectedInterest, i11)
		}
		if !within(snap.YesterdayValue, d(10000).Add(i10), 1e-6) {
			t.Errorf("yesterday value should stay at day 10, got %s", snap.YesterdayValue)
		}
	}

	if !within(sum, i10, 1e-6) {
		t.Errorf("daily deltas %s should add up to day-10 interest %s", sum, i10)
	}
	gap := i11.Sub(i10)
	if !gap.IsPositive() || !within(i11.Sub(sum), gap, 1e-6) {
		t.Errorf("deltas should fall short of expected by %s, short by %s", gap, i11.Sub(sum))
	}
}

// --- Effective annual rate tests ---

func TestEffectiveAnnualRate_YearlyEqualsNominal(t *testing.T) {
	e := mustEngine(t, Actual365)
	for _, rate := range []float64{0, 1, 7.5, 12, 18, 33.3} {
		ear, err := e.EffectiveAnnualRate(d(rate), Yearly)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ear.Equal(d(rate)) {
			t.Errorf("yearly APY should equal nominal %v, got %s", rate, ear)
		}
	}
}

func TestEffectiveAnnualRate_ExceedsNominal(t *testing.T) {
	e := mustEngine(t, Actual365)
	prev := d(18)
	for _, p := range []Period{Quarterly, Monthly, Weekly, Daily} {
		ear, _ := e.EffectiveAnnualRate(d(18), p)
		if !ear.GreaterThan(prev) {
			t.Errorf("%s: APY %s should exceed %s", p, ear, prev)
		}
		prev = ear
	}
	monthly, _ := e.EffectiveAnnualRate(d(18), Monthly)
	want := (math.Pow(1+0.18/12, 12) - 1) * 100
	if !within(monthly, d(want), 1e-7) {
		t.Errorf("expected monthly APY ≈ %.8f, got %s", want, monthly)
	}
}

// --- Helpers ---

func TestInterestForDays(t *testing.T) {
	e := mustEngine(t, Actual365)
	got, err := e.InterestForDays(d(1000), d(10), Quarterly, 365)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1000*math.Pow(1.025, 4) - 1000
	if !within(got, d(want), 1e-6) {
		t.Errorf("expected ≈ %.6f, got %s", want, got)
	}
	if _, err := e.InterestForDays(d(1000), d(10), Quarterly, -1); !errors.Is(err, ErrInvalidTerms) {
		t.Errorf("expected validation error for negative days, got %v", err)
	}
}

func TestConsolidate(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(10000, 18, 180, Monthly)
	ref := start.Add(60 * day)

	c, err := e.Consolidate(tm, ref, d(2500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ := e.Snapshot(tm, ref)
	if !c.AccruedInterest.Equal(snap.CurrentInterest) {
		t.Errorf("accrued %s should match snapshot %s", c.AccruedInterest, snap.CurrentInterest)
	}
	want := d(12500).Add(snap.CurrentInterest)
	if !c.NewPrincipal.Equal(want) {
		t.Errorf("expected new principal %s, got %s", want, c.NewPrincipal)
	}

	if _, err := e.Consolidate(tm, ref, d(-1)); !errors.Is(err, ErrInvalidTerms) {
		t.Errorf("expected validation error for negative contribution, got %v", err)
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	e := mustEngine(t, Actual365)
	tm := terms(777.77, 21, 400, Weekly)
	ref := start.Add(123*day + 4*time.Hour)
	a, _ := e.Snapshot(tm, ref)
	b, _ := e.Snapshot(tm, ref)
	if !a.CurrentValue.Equal(b.CurrentValue) || !a.YesterdayInterest.Equal(b.YesterdayInterest) {
		t.Error("identical inputs must produce identical snapshots")
	}
}
