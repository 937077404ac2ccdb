package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/xerrors"

	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/events"
)

// Repository provides Postgres-backed persistence for users, their exercise
// logs and outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository over an established pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// Dial opens a pool and verifies it with a ping.
func Dial(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, xerrors.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.Errorf("ping: %w", err)
	}
	return pool, nil
}

// CreateUser inserts the user and its user.created outbox event in one
// transaction.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	createdAt := r.now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO users (user_id, username, exercise_count, created_at) VALUES ($1,$2,0,$3)`,
		user.ID, user.Username, createdAt,
	); err != nil {
		return xerrors.Errorf("insert user: %w", err)
	}

	if err := insertOutbox(ctx, tx, user.ID, events.TypeUserCreated, events.UserCreated{
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: createdAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListUsers returns every user in creation order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, username FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.UserSummary, 0)
	for rows.Next() {
		var summary domain.UserSummary
		if err := rows.Scan(&summary.ID, &summary.Username); err != nil {
			return nil, err
		}
		results = append(results, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetUser retrieves a user and its full log, or nil when absent.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	user, err := loadUser(ctx, tx, id)
	if err != nil || user == nil {
		return user, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

// AppendExercise bumps the count, inserts the entry at the new sequence
// number and records the exercise.logged event in a single transaction. The
// UPDATE takes the row lock that serialises concurrent appends for a user.
func (r *Repository) AppendExercise(ctx context.Context, userID string, entry domain.ExerciseEntry) (*domain.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var count int
	err = tx.QueryRow(ctx,
		`UPDATE users SET exercise_count = exercise_count + 1 WHERE user_id = $1 RETURNING exercise_count`,
		userID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, xerrors.Errorf("bump count: %w", err)
	}

	loggedAt := r.now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO exercises (user_id, seq, description, duration, performed_on, display_date, logged_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		userID, count, entry.Description, entry.Duration, entry.Date, entry.DisplayDate, loggedAt,
	); err != nil {
		return nil, xerrors.Errorf("insert exercise: %w", err)
	}

	if err := insertOutbox(ctx, tx, userID, events.TypeExerciseLogged, events.ExerciseLogged{
		UserID:      userID,
		Description: entry.Description,
		Duration:    entry.Duration,
		Date:        entry.DisplayDate,
		PerformedOn: entry.Date,
		Count:       count,
		LoggedAt:    loggedAt,
	}); err != nil {
		return nil, err
	}

	user, err := loadUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func loadUser(ctx context.Context, tx pgx.Tx, id string) (*domain.User, error) {
	var user domain.User
	err := tx.QueryRow(ctx,
		`SELECT user_id, username, exercise_count FROM users WHERE user_id = $1`, id,
	).Scan(&user.ID, &user.Username, &user.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT description, duration, performed_on, display_date FROM exercises WHERE user_id = $1 ORDER BY seq`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	user.Log = make([]domain.ExerciseEntry, 0, user.Count)
	for rows.Next() {
		var entry domain.ExerciseEntry
		if err := rows.Scan(&entry.Description, &entry.Duration, &entry.Date, &entry.DisplayDate); err != nil {
			return nil, err
		}
		entry.Date = domain.CalendarDay(entry.Date)
		user.Log = append(user.Log, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &user, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload interface{}) error {
	topic, ok := events.TopicFor(eventType)
	if !ok {
		return xerrors.Errorf("unknown event type: %s", eventType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var dedupeKey string
	switch p := payload.(type) {
	case events.ExerciseLogged:
		dedupeKey = fmt.Sprintf("%s:%s:%d", aggregateID, eventType, p.Count)
	default:
		dedupeKey = fmt.Sprintf("%s:%s", aggregateID, eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt, "user", aggregateID, eventType, topic, aggregateID, body, dedupeKey)
	if err != nil {
		return xerrors.Errorf("insert outbox %s: %w", eventType, err)
	}
	return nil
}
