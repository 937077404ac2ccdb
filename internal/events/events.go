// Package events defines the payloads published for user and exercise changes.
package events

import "time"

// Event types and the topics they are routed to.
const (
	TypeUserCreated    = "user.created"
	TypeExerciseLogged = "exercise.logged"

	TopicUsers       = "exercise_users"
	TopicExerciseLog = "exercise_log"
)

// UserCreated is emitted when a new user is persisted.
type UserCreated struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// ExerciseLogged is emitted for every entry appended to a user's log. Count
// is the user's lifetime count after the append.
type ExerciseLogged struct {
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"`
	Date        string    `json:"date"`
	PerformedOn time.Time `json:"performed_on"`
	Count       int       `json:"count"`
	LoggedAt    time.Time `json:"logged_at"`
}

// TopicFor returns the topic an event type is routed to.
func TopicFor(eventType string) (string, bool) {
	switch eventType {
	case TypeUserCreated:
		return TopicUsers, true
	case TypeExerciseLogged:
		return TopicExerciseLog, true
	default:
		return "", false
	}
}
