package models

import "testing"

func TestFormatLotNumberLegacy(t *testing.T) {
	tests := []struct {
		owner string
		n     int
		want  string
	}{
		{"Mumbai Traders", 7, "mumbaitr7"},
		{"Acme", 123, "acme123"},
		{"ACME", 1, "acme1"},
		{"  ", 4, "lot4"},
		{"", 4, "lot4"},
	}
	for _, tc := range tests {
		got := FormatLotNumber(SeriesFormatLegacy, tc.owner, tc.n)
		if got != tc.want {
			t.Errorf("FormatLotNumber(legacy, %q, %d) = %q, want %q", tc.owner, tc.n, got, tc.want)
		}
	}
}

func TestFormatLotNumberPadded(t *testing.T) {
	tests := []struct {
		owner string
		n     int
		want  string
	}{
		{"Acme", 7, "acme00007"},
		{"Acme", 123456, "acme123456"},
		{"", 1, "lot00001"},
	}
	for _, tc := range tests {
		got := FormatLotNumber(SeriesFormatPadded5, tc.owner, tc.n)
		if got != tc.want {
			t.Errorf("FormatLotNumber(padded5, %q, %d) = %q, want %q", tc.owner, tc.n, got, tc.want)
		}
	}
}

func TestFormatLotNumberPrefixTruncation(t *testing.T) {
	// Prefix caps at 8 characters after whitespace stripping.
	got := FormatLotNumber(SeriesFormatLegacy, "Very Long Factory Name", 2)
	if got != "verylong2" {
		t.Fatalf("expected verylong2, got %q", got)
	}
}

func TestFormatChallanNumber(t *testing.T) {
	if got := FormatChallanNumber("2025-26", 42); got != "CH/2025-26/00042" {
		t.Fatalf("FormatChallanNumber = %q", got)
	}
	if got := FormatChallanNumber("2025", 123456); got != "CH/2025/123456" {
		t.Fatalf("FormatChallanNumber overflow width = %q", got)
	}
}

func TestSeriesKeys(t *testing.T) {
	if got := LotSeriesKey(LotTypeCutting, 12); got != "lot:C:12" {
		t.Fatalf("LotSeriesKey = %q", got)
	}
	if got := LotSeriesKey(LotTypeApi, 3); got != "lot:A:3" {
		t.Fatalf("LotSeriesKey = %q", got)
	}
	if got := ChallanSeriesKey(9, "2025-26"); got != "challan:9:2025-26" {
		t.Fatalf("ChallanSeriesKey = %q", got)
	}
}
