package utils

import (
	"fmt"
	"time"
)

// DateLayout is the YYYY-MM-DD layout used at every system boundary.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateToUnix converts a YYYY-MM-DD string to Unix seconds at midnight UTC.
func DateToUnix(date string) (int64, error) {
	t, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// UnixToDate converts Unix seconds to a midnight UTC time.
func UnixToDate(ts int64) time.Time {
	return Day(time.Unix(ts, 0).UTC())
}

// ParseDate parses YYYY-MM-DD into a midnight UTC time.
func ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", date, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
