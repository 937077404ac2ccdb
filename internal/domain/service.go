// Package domain defines the business logic for the exercise tracker.
package domain

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/xerrors"
)

// Repository captures persistence operations. Get and AppendExercise return
// nil, nil when the user does not exist.
type Repository interface {
	CreateUser(ctx context.Context, user User) error
	ListUsers(ctx context.Context) ([]UserSummary, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// AppendExercise appends entry and increments the count as one atomic
	// store operation and returns the updated user.
	AppendExercise(ctx context.Context, userID string, entry ExerciseEntry) (*User, error)
}

var validate *validator.Validate

// A single validator instance caches struct parsing.
func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used when an exercise has no date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides how user IDs are generated.
func WithIDGenerator(next func() string) Option {
	return func(s *Service) {
		s.newID = next
	}
}

// Service orchestrates user and exercise-log workflows.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewService constructs a Service. newID must return a fresh identifier on
// every call.
func NewService(repo Repository, newID func() string, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		now:   time.Now,
		newID: newID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser validates the username and persists a new user with an empty log.
func (s *Service) CreateUser(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &FieldError{Field: "username", Message: "Username required."}
	}

	user := User{
		ID:       s.newID(),
		Username: username,
		Count:    0,
		Log:      []ExerciseEntry{},
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, xerrors.Errorf("create user: %w", err)
	}
	return &user, nil
}

// ListUsers returns every user projected to id and username.
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, xerrors.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []UserSummary{}
	}
	return users, nil
}

// FindUser fetches a user by ID.
func (s *Service) FindUser(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, xerrors.Errorf("get user %q: %w", id, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// AddExerciseInput carries the raw submission from the transport layer.
type AddExerciseInput struct {
	UserID      string `json:"userId" validate:"required"`
	Description string `json:"description" validate:"required"`
	Duration    string `json:"duration" validate:"required"`
	Date        string `json:"date"`
}

// Validate reports the first missing required field in declaration order.
func (in AddExerciseInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return requiredField(fieldErrs[0].Field())
	}
	return err
}

// AddExercise validates the submission, normalises its date and appends it
// to the user's log.
func (s *Service) AddExercise(ctx context.Context, input AddExerciseInput) (*User, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.FindUser(ctx, input.UserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, &notFoundError{message: "Invalid _id!"}
		}
		return nil, err
	}

	day := CalendarDay(s.now())
	if strings.TrimSpace(input.Date) != "" {
		parsed, err := ParseDate(input.Date)
		if err != nil {
			return nil, &FormatError{Field: "date", Message: "Invalid Date!"}
		}
		day = parsed
	}

	duration, err := strconv.Atoi(strings.TrimSpace(input.Duration))
	if err != nil {
		return nil, &FormatError{Field: "duration", Message: "Invalid duration!"}
	}

	entry := ExerciseEntry{
		Description: input.Description,
		Duration:    duration,
		Date:        day,
		DisplayDate: FormatDisplayDate(day),
	}

	updated, err := s.repo.AppendExercise(ctx, input.UserID, entry)
	if err != nil {
		return nil, xerrors.Errorf("append exercise for %q: %w", input.UserID, err)
	}
	if updated == nil {
		return nil, &notFoundError{message: "Invalid _id!"}
	}
	return updated, nil
}

// LogQuery carries the raw query-string values for QueryLog.
type LogQuery struct {
	UserID string
	From   string
	To     string
	Limit  string
}

// QueryLog returns a filtered view of the user's log.
func (s *Service) QueryLog(ctx context.Context, query LogQuery) (*LogView, error) {
	if query.UserID == "" {
		return nil, &FieldError{Field: "userId", Message: "userId not specified"}
	}

	user, err := s.FindUser(ctx, query.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, &notFoundError{message: "Invalid userId"}
		}
		return nil, err
	}

	filter, err := parseLogFilter(query)
	if err != nil {
		return nil, err
	}

	return &LogView{
		ID:       user.ID,
		Username: user.Username,
		Count:    user.Count,
		Log:      FilterLog(user.Log, filter),
	}, nil
}

func parseLogFilter(query LogQuery) (LogFilter, error) {
	filter := LogFilter{Limit: NoLimit}

	if query.From != "" {
		from, err := ParseDate(query.From)
		if err != nil {
			return filter, invalidQueryValue("from")
		}
		filter.From = &from
	}

	if query.To != "" {
		to, err := ParseDate(query.To)
		if err != nil {
			return filter, invalidQueryValue("to")
		}
		filter.To = &to
	}

	if query.Limit != "" {
		limit, err := strconv.ParseFloat(strings.TrimSpace(query.Limit), 64)
		if err != nil || math.IsNaN(limit) || limit < 0 {
			return filter, invalidQueryValue("limit")
		}
		if limit > math.MaxInt32 {
			limit = math.MaxInt32
		}
		filter.Limit = int(limit)
	}

	return filter, nil
}

// notFoundError wraps ErrUserNotFound with the message shown to clients.
type notFoundError struct {
	message string
}

func (e *notFoundError) Error() string {
	return e.message
}

func (e *notFoundError) Unwrap() error {
	return ErrUserNotFound
}
