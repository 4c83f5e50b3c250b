package models

import (
	"fmt"
	"time"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
)

// DateLayout is the calendar-date format used on the wire and in logs.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidDate, s)
	}
	return t, nil
}

// TruncateDate drops the time-of-day component, keeping the calendar date of t.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders the calendar date of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatMonth renders t as YYYY-MM.
func FormatMonth(t time.Time) string {
	return t.Format("2006-01")
}

// FormatISOWeek renders t as YYYY-Www using ISO-8601 week numbering.
func FormatISOWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
