// Package memory provides a process-local user store for local development
// and tests.
package memory

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"example.com/exercisetracker/internal/domain"
)

// ErrDuplicateID is returned when CreateUser receives an ID already in use.
var ErrDuplicateID = xerrors.New("user id already exists")

// Repository stores users in memory. Reads hand out copies so callers never
// alias the stored logs.
type Repository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
	order []string
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		users: make(map[string]*domain.User),
	}
}

// CreateUser implements domain.Repository.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return xerrors.Errorf("create %q: %w", user.ID, ErrDuplicateID)
	}
	stored := user.Clone()
	if stored.Log == nil {
		stored.Log = []domain.ExerciseEntry{}
	}
	r.users[user.ID] = &stored
	r.order = append(r.order, user.ID)
	return nil
}

// ListUsers returns users in creation order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.UserSummary, 0, len(r.order))
	for _, id := range r.order {
		user := r.users[id]
		out = append(out, domain.UserSummary{ID: user.ID, Username: user.Username})
	}
	return out, nil
}

// GetUser returns a copy of the user, or nil when absent.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	clone := user.Clone()
	return &clone, nil
}

// AppendExercise appends under the write lock so count and log move together.
func (r *Repository) AppendExercise(ctx context.Context, userID string, entry domain.ExerciseEntry) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	user.Log = append(user.Log, entry)
	user.Count++

	clone := user.Clone()
	return &clone, nil
}
