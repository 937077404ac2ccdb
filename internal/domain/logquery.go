package domain

import "time"

// LogFilter narrows a log view. Nil bounds and a negative Limit are ignored.
type LogFilter struct {
	From  *time.Time // inclusive
	To    *time.Time // exclusive
	Limit int
}

// NoLimit disables truncation in LogFilter.
const NoLimit = -1

// FilterLog returns a new slice with the entries of log that fall inside the
// filter's date range, truncated to the first Limit matches. log is never
// modified.
func FilterLog(log []ExerciseEntry, filter LogFilter) []ExerciseEntry {
	out := make([]ExerciseEntry, 0, len(log))
	for _, entry := range log {
		if filter.Limit >= 0 && len(out) >= filter.Limit {
			break
		}
		day := CalendarDay(entry.Date)
		if filter.From != nil && day.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !day.Before(*filter.To) {
			continue
		}
		out = append(out, entry)
	}
	return out
}
