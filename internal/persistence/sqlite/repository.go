// Package sqlite is a single-file store for running without a database
// server.
package sqlite

import (
	"context"
	"errors"
	"time"

	"golang.org/x/xerrors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/exercisetracker/internal/domain"
)

type userRecord struct {
	ID        string `gorm:"primaryKey"`
	Username  string `gorm:"not null"`
	Count     int    `gorm:"column:exercise_count;not null;default:0"`
	CreatedAt time.Time
}

func (userRecord) TableName() string { return "users" }

type exerciseRecord struct {
	UserID      string `gorm:"primaryKey"`
	Seq         int    `gorm:"primaryKey"`
	Description string `gorm:"not null"`
	Duration    int    `gorm:"not null"`
	PerformedOn time.Time
	DisplayDate string `gorm:"not null"`
	CreatedAt   time.Time
}

func (exerciseRecord) TableName() string { return "exercises" }

// Repository implements domain.Repository with gorm over SQLite.
type Repository struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema. A single connection serialises writers, which SQLite requires.
func Open(path string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRecord{}, &exerciseRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, xerrors.Errorf("migrate: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying connection.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser implements domain.Repository.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	record := userRecord{ID: user.ID, Username: user.Username}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return xerrors.Errorf("insert user: %w", err)
	}
	return nil
}

// ListUsers returns users in creation order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	var records []userRecord
	err := r.db.WithContext(ctx).
		Select("id", "username").
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		return nil, xerrors.Errorf("list users: %w", err)
	}

	out := make([]domain.UserSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.UserSummary{ID: rec.ID, Username: rec.Username})
	}
	return out, nil
}

// GetUser returns the user with its log, or nil when absent.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return loadUser(r.db.WithContext(ctx), id)
}

// AppendExercise bumps the count and inserts the entry in one transaction.
func (r *Repository) AppendExercise(ctx context.Context, userID string, entry domain.ExerciseEntry) (*domain.User, error) {
	var updated *domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userRecord{}).
			Where("id = ?", userID).
			UpdateColumn("exercise_count", gorm.Expr("exercise_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var record userRecord
		if err := tx.Select("exercise_count").Where("id = ?", userID).Take(&record).Error; err != nil {
			return err
		}

		if err := tx.Create(&exerciseRecord{
			UserID:      userID,
			Seq:         record.Count,
			Description: entry.Description,
			Duration:    entry.Duration,
			PerformedOn: entry.Date,
			DisplayDate: entry.DisplayDate,
		}).Error; err != nil {
			return err
		}

		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("append exercise: %w", err)
	}
	return updated, nil
}

func loadUser(db *gorm.DB, id string) (*domain.User, error) {
	var record userRecord
	if err := db.Where("id = ?", id).Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entries []exerciseRecord
	if err := db.Where("user_id = ?", id).Order("seq").Find(&entries).Error; err != nil {
		return nil, err
	}

	user := domain.User{
		ID:       record.ID,
		Username: record.Username,
		Count:    record.Count,
		Log:      make([]domain.ExerciseEntry, 0, len(entries)),
	}
	for _, e := range entries {
		user.Log = append(user.Log, domain.ExerciseEntry{
			Description: e.Description,
			Duration:    e.Duration,
			Date:        domain.CalendarDay(e.PerformedOn),
			DisplayDate: e.DisplayDate,
		})
	}
	return &user, nil
}
