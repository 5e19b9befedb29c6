package utils

import (
	"testing"
	"time"
)

func TestToCanonicalDay_Idempotent(t *testing.T) {
	inputs := []any{
		"2025-01-10",
		"2025-01-10T23:59:59+05:30",
		"2025-01-10T20:00:00Z",
		time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC),
	}
	for _, in := range inputs {
		first, err := ToCanonicalDay(in)
		if err != nil {
			t.Fatalf("ToCanonicalDay(%v): %v", in, err)
		}
		second, err := ToCanonicalDay(first)
		if err != nil {
			t.Fatalf("ToCanonicalDay(%q) second pass: %v", first, err)
		}
		if first != second {
			t.Fatalf("not idempotent: %q != %q (input %v)", first, second, in)
		}
	}
}

func TestToCanonicalDay_TimezoneBoundary(t *testing.T) {
	// 20:00 UTC is already past midnight in the operating timezone (UTC+5:30).
	day, err := ToCanonicalDay("2025-01-10T20:00:00Z")
	if err != nil {
		t.Fatalf("ToCanonicalDay: %v", err)
	}
	if day != "2025-01-11" {
		t.Fatalf("expected 2025-01-11, got %s", day)
	}

	// 10:00 UTC is still the same day.
	day, err = ToCanonicalDay("2025-01-10T10:00:00Z")
	if err != nil {
		t.Fatalf("ToCanonicalDay: %v", err)
	}
	if day != "2025-01-10" {
		t.Fatalf("expected 2025-01-10, got %s", day)
	}
}

func TestToCanonicalDay_NaiveStringsAreLocal(t *testing.T) {
	day, err := ToCanonicalDay("2025-01-10 23:30:00")
	if err != nil {
		t.Fatalf("ToCanonicalDay: %v", err)
	}
	if day != "2025-01-10" {
		t.Fatalf("expected 2025-01-10, got %s", day)
	}
}

func TestToCanonicalDay_Rejects(t *testing.T) {
	for _, in := range []any{"", "not-a-date", "2025-02-30", 42, time.Time{}} {
		if _, err := ToCanonicalDay(in); err == nil {
			t.Fatalf("expected error for %v", in)
		}
	}
}

func TestAddDays(t *testing.T) {
	cases := []struct {
		day  string
		n    int
		want string
	}{
		{"2025-01-10", 1, "2025-01-11"},
		{"2025-01-31", 1, "2025-02-01"},
		{"2025-03-01", -1, "2025-02-28"},
		{"2024-02-28", 1, "2024-02-29"},
		{"2025-01-10", 0, "2025-01-10"},
	}
	for _, c := range cases {
		got, err := AddDays(c.day, c.n)
		if err != nil {
			t.Fatalf("AddDays(%s, %d): %v", c.day, c.n, err)
		}
		if got != c.want {
			t.Fatalf("AddDays(%s, %d) = %s, want %s", c.day, c.n, got, c.want)
		}
	}

	if _, err := AddDays("10/01/2025", 1); err == nil {
		t.Fatal("expected error for non-canonical day key")
	}
}

func TestDayBounds(t *testing.T) {
	start, end, err := DayBounds("2025-01-10")
	if err != nil {
		t.Fatalf("DayBounds: %v", err)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("expected 24h span, got %s", end.Sub(start))
	}
	if got := start.Format(DayKeyLayout); got != "2025-01-10" {
		t.Fatalf("start day = %s", got)
	}
}
