package utils

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and display layout for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date into UTC midnight.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// TruncateDay maps t to UTC midnight of its own calendar date.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysInclusive counts calendar days between start and end, both included.
func DaysInclusive(start, end time.Time) int {
	start, end = TruncateDay(start), TruncateDay(end)
	if end.Before(start) {
		start, end = end, start
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// MonthBounds returns the first and last day of the month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

// QuarterBounds returns the first and last day of the quarter containing t.
func QuarterBounds(t time.Time) (time.Time, time.Time) {
	firstMonth := time.Month((int(t.Month())-1)/3*3 + 1)
	first := time.Date(t.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 3, -1)
}
