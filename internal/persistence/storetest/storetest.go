// Package storetest holds the behaviour every domain.Repository must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/idgen"
)

// Run exercises repo against the repository contract. Each subtest creates
// its own users so a shared backing store is fine.
func Run(t *testing.T, repo domain.Repository) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, repo) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, repo) })
	t.Run("ListIncludesCreated", func(t *testing.T) { testListIncludesCreated(t, repo) })
	t.Run("AppendPreservesOrder", func(t *testing.T) { testAppendPreservesOrder(t, repo) })
	t.Run("AppendMissingUser", func(t *testing.T) { testAppendMissingUser(t, repo) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, repo) })
}

func newUser(t *testing.T, repo domain.Repository, username string) domain.User {
	t.Helper()
	user := domain.User{ID: idgen.New(), Username: username, Log: []domain.ExerciseEntry{}}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func entryOn(description string, duration int, day time.Time) domain.ExerciseEntry {
	return domain.ExerciseEntry{
		Description: description,
		Duration:    duration,
		Date:        domain.CalendarDay(day),
		DisplayDate: domain.FormatDisplayDate(day),
	}
}

func testCreateAndGet(t *testing.T, repo domain.Repository) {
	user := newUser(t, repo, "alice")

	stored, err := repo.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, user.ID, stored.ID)
	require.Equal(t, "alice", stored.Username)
	require.Zero(t, stored.Count)
	require.Empty(t, stored.Log)
}

func testGetMissing(t *testing.T, repo domain.Repository) {
	stored, err := repo.GetUser(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, stored)
}

func testListIncludesCreated(t *testing.T, repo domain.Repository) {
	first := newUser(t, repo, "list-a")
	second := newUser(t, repo, "list-b")

	users, err := repo.ListUsers(context.Background())
	require.NoError(t, err)
	require.Contains(t, users, domain.UserSummary{ID: first.ID, Username: "list-a"})
	require.Contains(t, users, domain.UserSummary{ID: second.ID, Username: "list-b"})
}

func testAppendPreservesOrder(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	user := newUser(t, repo, "ordered")

	days := []time.Time{
		time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
	}
	for i, day := range days {
		updated, err := repo.AppendExercise(ctx, user.ID, entryOn(fmt.Sprintf("e%d", i), i*10, day))
		require.NoError(t, err)
		require.NotNil(t, updated)
		require.Equal(t, i+1, updated.Count)
		require.Len(t, updated.Log, i+1)
	}

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Count)
	require.Len(t, stored.Log, 3)
	for i, day := range days {
		require.Equal(t, fmt.Sprintf("e%d", i), stored.Log[i].Description)
		require.Equal(t, i*10, stored.Log[i].Duration)
		require.True(t, day.Equal(stored.Log[i].Date), "entry %d date %s", i, stored.Log[i].Date)
		require.Equal(t, domain.FormatDisplayDate(day), stored.Log[i].DisplayDate)
	}
}

func testAppendMissingUser(t *testing.T, repo domain.Repository) {
	updated, err := repo.AppendExercise(context.Background(), "does-not-exist", entryOn("run", 1, time.Now()))
	require.NoError(t, err)
	require.Nil(t, updated)
}

func testConcurrentAppends(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	user := newUser(t, repo, "busy")

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := repo.AppendExercise(ctx, user.ID, entryOn(fmt.Sprintf("lap-%d", i), i, time.Now()))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, writers, stored.Count)
	require.Len(t, stored.Log, writers)
}
