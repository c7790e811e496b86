package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 12.3456 ")
	if err != nil {
		t.Fatalf("ParseDecimal: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("12.3456")) {
		t.Fatalf("ParseDecimal = %s", d)
	}

	if _, err := ParseDecimal(""); err == nil {
		t.Fatal("expected error for empty string")
	}
	if _, err := ParseDecimal("abc"); err == nil {
		t.Fatal("expected error for non-numeric string")
	}
}

func TestRoundToInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"3", 3, true},
		{"3.00009", 3, true},
		{"2.9999", 3, true},
		{"-2.00005", -2, true},
		{"3.0002", 0, false},
		{"2.5", 0, false},
		{"4611686018427387904", 4611686018427387904, true},
		{"1000000000000000000000000000000", 0, false},
	}
	for _, tc := range tests {
		got, ok := RoundToInt(decimal.RequireFromString(tc.in))
		if ok != tc.ok || got != tc.want {
			t.Errorf("RoundToInt(%s) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeCodePrefix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Mumbai Traders", "mumbaitr"},
		{"ACME", "acme"},
		{"a b c", "abc"},
		{"   ", "lot"},
		{"", "lot"},
	}
	for _, tc := range tests {
		if got := NormalizeCodePrefix(tc.name, 8, "lot"); got != tc.want {
			t.Errorf("NormalizeCodePrefix(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFiscalYearKey(t *testing.T) {
	tests := []struct {
		start time.Month
		date  time.Time
		want  string
	}{
		{time.April, time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC), "2025-26"},
		{time.April, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), "2025-26"},
		{time.April, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), "2026-27"},
		{time.January, time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC), "2025"},
		{time.January, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), "2026"},
	}
	for _, tc := range tests {
		if got := FiscalYearKey(tc.start, tc.date); got != tc.want {
			t.Errorf("FiscalYearKey(%v, %s) = %q, want %q", tc.start, tc.date.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestGetFiscalYearStartMonth(t *testing.T) {
	m, err := GetFiscalYearStartMonth("Apr")
	if err != nil || m != time.April {
		t.Fatalf("GetFiscalYearStartMonth(Apr) = %v, %v", m, err)
	}
	if _, err := GetFiscalYearStartMonth("April"); err == nil {
		t.Fatal("expected error for unknown month key")
	}
}
