package accrual

import (
	"errors"
	"testing"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want Period
	}{
		{"daily", Daily},
		{"Weekly", Weekly},
		{" MONTHLY ", Monthly},
		{"quarterly", Quarterly},
		{"yearly", Yearly},
		{"", Daily},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestParsePeriod_Unknown(t *testing.T) {
	for _, in := range []string{"annually", "biweekly", "365"} {
		if _, err := ParsePeriod(in); !errors.Is(err, ErrUnknownPeriod) {
			t.Errorf("%q: expected ErrUnknownPeriod, got %v", in, err)
		}
	}
}

func TestParseConvention(t *testing.T) {
	tests := []struct {
		in   string
		want Convention
	}{
		{"", Actual365},
		{"act/365", Actual365},
		{"365", Actual365},
		{"ACT/365.25", Actual36525},
		{"365.25", Actual36525},
	}
	for _, tt := range tests {
		got, err := ParseConvention(tt.in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %+v, got %+v", tt.in, tt.want, got)
		}
	}
	if _, err := ParseConvention("30/360"); !errors.Is(err, ErrUnknownConvention) {
		t.Errorf("expected ErrUnknownConvention, got %v", err)
	}
}
