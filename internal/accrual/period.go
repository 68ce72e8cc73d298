package accrual

import (
	"errors"
	"fmt"
	"strings"
)

// Period is how often interest is credited and reinvested.
type Period string

const (
	Daily     Period = "daily"
	Weekly    Period = "weekly"
	Monthly   Period = "monthly"
	Quarterly Period = "quarterly"
	Yearly    Period = "yearly"
)

// ErrUnknownPeriod is returned by ParsePeriod for values outside the
// five supported periods.
var ErrUnknownPeriod = errors.New("accrual: unknown compounding period")

// Periods lists every supported compounding period.
var Periods = []Period{Daily, Weekly, Monthly, Quarterly, Yearly}

// Valid reports whether p is one of the supported periods.
func (p Period) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// ParsePeriod normalises a stored or user-supplied period name.
// The empty string maps to Daily, which is the column default for
// investments created before the period was recorded.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return Daily, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
	return p, nil
}

// Convention fixes the number of days in a year used to turn elapsed
// days into elapsed years.
type Convention struct {
	Name     string  `json:"name"`
	YearDays float64 `json:"year_days"`
}

var (
	// Actual365 divides elapsed days by 365.
	Actual365 = Convention{Name: "ACT/365", YearDays: 365}

	// Actual36525 divides elapsed days by 365.25.
	Actual36525 = Convention{Name: "ACT/365.25", YearDays: 365.25}
)

// ErrUnknownConvention is returned by ParseConvention.
var ErrUnknownConvention = errors.New("accrual: unknown day-count convention")

// ParseConvention accepts "ACT/365", "ACT/365.25" or the bare year
// lengths "365" and "365.25".
func ParseConvention(s string) (Convention, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ACT/365", "365":
		return Actual365, nil
	case "ACT/365.25", "365.25":
		return Actual36525, nil
	}
	return Convention{}, fmt.Errorf("%w: %q", ErrUnknownConvention, s)
}
