package api

import (
	"encoding/json"
	"net/http"

	"example.com/exercisetracker/internal/domain"
)

// UserView is the public form of a user without its log.
type UserView struct {
	Username string `json:"username"`
	ID       string `json:"id"`
}

// EntryView is one exercise as clients see it.
type EntryView struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Date        string `json:"date"`
}

// LogView is returned by the add and log endpoints.
type LogView struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Count    int         `json:"count"`
	Log      []EntryView `json:"log"`
}

func toLogView(id, username string, count int, entries []domain.ExerciseEntry) LogView {
	view := LogView{
		ID:       id,
		Username: username,
		Count:    count,
		Log:      make([]EntryView, 0, len(entries)),
	}
	for _, entry := range entries {
		view.Log = append(view.Log, EntryView{
			Description: entry.Description,
			Duration:    entry.Duration,
			Date:        entry.DisplayDate,
		})
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
