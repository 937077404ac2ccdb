// Package mongo stores each user as a single document holding its log, the
// layout earlier deployments already hold.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/xerrors"

	"example.com/exercisetracker/internal/domain"
)

const usersCollection = "users"

type userDocument struct {
	ID        string          `bson:"_id"`
	Username  string          `bson:"username"`
	Count     int             `bson:"count"`
	Log       []entryDocument `bson:"log"`
	CreatedAt time.Time       `bson:"created_at"`
}

type entryDocument struct {
	Description string    `bson:"description"`
	Duration    int       `bson:"duration"`
	Date        string    `bson:"date"`
	PerformedOn time.Time `bson:"performed_on"`
}

// Repository implements domain.Repository over a MongoDB collection.
type Repository struct {
	users *mongo.Collection
}

// NewRepository constructs a Repository over db.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{users: db.Collection(usersCollection)}
}

// Dial connects a client and verifies it with a ping.
func Dial(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, xerrors.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, xerrors.Errorf("ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the index backing creation-order listing.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return xerrors.Errorf("create index: %w", err)
	}
	return nil
}

// CreateUser implements domain.Repository.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	doc := userDocument{
		ID:        user.ID,
		Username:  user.Username,
		Count:     0,
		Log:       []entryDocument{},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		return xerrors.Errorf("insert user: %w", err)
	}
	return nil
}

// ListUsers projects every document to id and username.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	opts := options.Find().
		SetProjection(bson.M{"username": 1}).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, xerrors.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	results := make([]domain.UserSummary, 0)
	for cursor.Next(ctx) {
		var doc struct {
			ID       string `bson:"_id"`
			Username string `bson:"username"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, domain.UserSummary{ID: doc.ID, Username: doc.Username})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetUser returns the user document, or nil when absent.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, xerrors.Errorf("find user: %w", err)
	}
	user := doc.toDomain()
	return &user, nil
}

// AppendExercise pushes the entry and increments count in one document
// update, so the two can never diverge.
func (r *Repository) AppendExercise(ctx context.Context, userID string, entry domain.ExerciseEntry) (*domain.User, error) {
	update := bson.M{
		"$push": bson.M{"log": entryDocument{
			Description: entry.Description,
			Duration:    entry.Duration,
			Date:        entry.DisplayDate,
			PerformedOn: entry.Date,
		}},
		"$inc": bson.M{"count": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDocument
	err := r.users.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, xerrors.Errorf("append exercise: %w", err)
	}
	user := doc.toDomain()
	return &user, nil
}

func (d userDocument) toDomain() domain.User {
	log := make([]domain.ExerciseEntry, 0, len(d.Log))
	for _, e := range d.Log {
		day := e.PerformedOn
		if day.IsZero() {
			// Documents written before performed_on existed only carry the
			// display string.
			if parsed, err := domain.ParseDate(e.Date); err == nil {
				day = parsed
			}
		}
		log = append(log, domain.ExerciseEntry{
			Description: e.Description,
			Duration:    e.Duration,
			Date:        domain.CalendarDay(day),
			DisplayDate: e.Date,
		})
	}
	return domain.User{
		ID:       d.ID,
		Username: d.Username,
		Count:    d.Count,
		Log:      log,
	}
}
