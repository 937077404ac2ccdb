package domain

import "time"

// User is the aggregate holding a user's lifetime exercise log.
type User struct {
	ID       string
	Username string
	Count    int
	Log      []ExerciseEntry
}

// UserSummary is the projection returned when listing users.
type UserSummary struct {
	ID       string
	Username string
}

// ExerciseEntry is a single logged exercise. Date is the canonical calendar
// day (UTC midnight) used for filtering; DisplayDate is what clients see.
type ExerciseEntry struct {
	Description string
	Duration    int
	Date        time.Time
	DisplayDate string
}

// LogView is a filtered, read-only view of a user's log. Count stays the
// lifetime total regardless of filtering.
type LogView struct {
	ID       string
	Username string
	Count    int
	Log      []ExerciseEntry
}

// Clone returns a deep copy so callers never share the stored log slice.
func (u User) Clone() User {
	out := u
	if u.Log != nil {
		out.Log = make([]ExerciseEntry, len(u.Log))
		copy(out.Log, u.Log)
	}
	return out
}
