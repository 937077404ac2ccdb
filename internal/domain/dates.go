package domain

import (
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// DisplayLayout renders dates as "Sunday, Jan 1, 2023". Go's time package
// formats weekday and month names in English regardless of the host locale.
const DisplayLayout = "Monday, Jan 2, 2006"

// Layouts carrying an explicit offset are converted to UTC; all others are
// read as UTC wall time.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	DisplayLayout,
	"Mon, Jan 2, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"01/02/2006",
	"2006/01/02",
}

var errUnparseableDate = xerrors.New("unparseable date")

// ParseDate parses a user-supplied date and returns its calendar day at UTC
// midnight. Impossible dates such as 2023-02-30 are rejected.
func ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, errUnparseableDate
	}
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return CalendarDay(parsed), nil
		}
	}
	return time.Time{}, xerrors.Errorf("parse %q: %w", value, errUnparseableDate)
}

// CalendarDay truncates t to midnight UTC of the day it falls on in UTC.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDisplayDate renders the canonical day in DisplayLayout.
func FormatDisplayDate(t time.Time) string {
	return CalendarDay(t).Format(DisplayLayout)
}
