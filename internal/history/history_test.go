package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-fitness-planner/internal/database"
	"ai-fitness-planner/internal/fitness/fitnesstest"
	"ai-fitness-planner/internal/shared"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.SQL)
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	base := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	plan := fitnesstest.Week()
	for i, req := range []string{"req-1", "req-2", "req-3"} {
		_, err := repo.Save(ctx, Entry{
			RequestID: req,
			UserID:    "alice",
			Input:     "build muscle",
			Plan:      plan,
			Usage:     shared.TokenUsage{PromptTokens: 100, CompletionTokens: 900, Model: "gemini-2.0-flash"},
			Latency:   4200 * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := repo.Save(ctx, Entry{RequestID: "req-bob", UserID: "bob", Plan: plan, CreatedAt: base})
	require.NoError(t, err)

	t.Run("list recent is newest first and scoped to the user", func(t *testing.T) {
		entries, err := repo.ListRecent(ctx, "alice", 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "req-3", entries[0].RequestID)
		assert.Equal(t, "req-2", entries[1].RequestID)

		e := entries[0]
		assert.Equal(t, plan, e.Plan)
		assert.Equal(t, 1000, e.Usage.TotalTokens)
		assert.Equal(t, "gemini-2.0-flash", e.Usage.Model)
		assert.Equal(t, 4200*time.Millisecond, e.Latency)
		assert.True(t, base.Add(2*time.Hour).Equal(e.CreatedAt))
	})

	t.Run("saving a request twice keeps one row", func(t *testing.T) {
		first, err := repo.ListRecent(ctx, "alice", 10)
		require.NoError(t, err)

		id, err := repo.Save(ctx, Entry{RequestID: "req-1", UserID: "alice", Plan: plan})
		require.NoError(t, err)
		assert.Equal(t, first[2].ID, id)

		again, err := repo.ListRecent(ctx, "alice", 10)
		require.NoError(t, err)
		assert.Len(t, again, 3)
	})

	t.Run("get", func(t *testing.T) {
		entries, err := repo.ListRecent(ctx, "bob", 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		got, err := repo.Get(ctx, "bob", entries[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "req-bob", got.RequestID)

		_, err = repo.Get(ctx, "alice", entries[0].ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
