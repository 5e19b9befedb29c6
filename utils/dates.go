package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// DayKeyLayout is the canonical calendar-day key used to partition ledger rows
// and cache entries. All producers and consumers must agree on it.
const DayKeyLayout = "2006-01-02"

const defaultTimezone = "Asia/Kolkata"

var (
	opLocOnce sync.Once
	opLoc     *time.Location
)

// OperatingLocation returns the fixed operating timezone.
// Env: REPORT_TIMEZONE (default Asia/Kolkata).
func OperatingLocation() *time.Location {
	opLocOnce.Do(func() {
		name := strings.TrimSpace(os.Getenv("REPORT_TIMEZONE"))
		if name == "" {
			name = defaultTimezone
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			// tzdata missing on the host; IST has no DST so a fixed offset is equivalent.
			loc = time.FixedZone("IST", 5*3600+1800)
		}
		opLoc = loc
	})
	return opLoc
}

// ToCanonicalDay converts a timestamp or date string to the calendar day it
// falls on in the operating timezone. Canonical input comes back unchanged,
// so ToCanonicalDay(ToCanonicalDay(x)) == ToCanonicalDay(x).
func ToCanonicalDay(value any) (string, error) {
	loc := OperatingLocation()
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return "", fmt.Errorf("zero time has no calendar day")
		}
		return v.In(loc).Format(DayKeyLayout), nil
	case *time.Time:
		if v == nil {
			return "", fmt.Errorf("nil time has no calendar day")
		}
		return ToCanonicalDay(*v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", fmt.Errorf("empty date string")
		}
		// Already canonical: parse in the operating zone to reject garbage like 2025-02-30.
		if t, err := time.ParseInLocation(DayKeyLayout, s, loc); err == nil {
			return t.Format(DayKeyLayout), nil
		}
		// Zoned timestamps convert into the operating zone.
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.In(loc).Format(DayKeyLayout), nil
			}
		}
		// Naive timestamps are taken to be local to the operating zone.
		for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t.Format(DayKeyLayout), nil
			}
		}
		return "", fmt.Errorf("unrecognized date %q", s)
	default:
		return "", fmt.Errorf("unsupported date value of type %T", value)
	}
}

// AddDays shifts a canonical day key by n calendar days.
func AddDays(day string, n int) (string, error) {
	t, err := time.ParseInLocation(DayKeyLayout, strings.TrimSpace(day), OperatingLocation())
	if err != nil {
		return "", fmt.Errorf("invalid day key %q: %w", day, err)
	}
	return t.AddDate(0, 0, n).Format(DayKeyLayout), nil
}

// IsDayKey reports whether s is a well-formed canonical day key.
func IsDayKey(s string) bool {
	_, err := time.ParseInLocation(DayKeyLayout, strings.TrimSpace(s), OperatingLocation())
	return err == nil
}

// DayBounds returns the [start, end) instants of a canonical day in the
// operating timezone, for range queries against timestamp columns.
func DayBounds(day string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DayKeyLayout, strings.TrimSpace(day), OperatingLocation())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid day key %q: %w", day, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}
