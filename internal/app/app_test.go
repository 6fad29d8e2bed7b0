package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-fitness-planner/internal/config"
	"ai-fitness-planner/internal/database"
	"ai-fitness-planner/internal/fitness/fitnesstest"
	"ai-fitness-planner/internal/generator"
	"ai-fitness-planner/internal/llm/llmtest"
	"ai-fitness-planner/internal/render"
	"ai-fitness-planner/internal/session"
	"ai-fitness-planner/internal/shared"
	"ai-fitness-planner/internal/storage"
)

func newTestApp(t *testing.T, model *llmtest.Model, opts ...Option) (*App, *config.Config) {
	t.Helper()
	return newTestAppWithConfig(t, model, func(*config.Config) {}, opts...)
}

func newTestAppWithConfig(t *testing.T, model *llmtest.Model, configure func(*config.Config), opts ...Option) (*App, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		LLMProvider:       config.ProviderGemini,
		GenerationTimeout: 5 * time.Second,
		DatabasePath:      filepath.Join(dir, "fitness.db"),
		PlanExportDir:     filepath.Join(dir, "plans"),
	}
	configure(cfg)
	db, err := database.NewDB(cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts = append([]Option{WithGeneratorOptions(generator.WithDemoDelays(0, 0))}, opts...)
	a, err := NewApp(cfg, model, db, opts...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, cfg
}

func weekModel(promptTokens int) *llmtest.Model {
	return &llmtest.Model{Streams: []llmtest.Script{{
		Chunks: llmtest.Split(fitnesstest.JSON(fitnesstest.Week()), 64),
		Usage:  &shared.TokenUsage{PromptTokens: promptTokens, CompletionTokens: 800, TotalTokens: promptTokens + 800, Model: "scripted"},
	}}}
}

func TestGenerateSavesResult(t *testing.T) {
	ctx := context.Background()
	a, cfg := newTestApp(t, weekModel(120))

	s, err := a.Generate(ctx, "alice", "Build strength at home")
	require.NoError(t, err)
	require.Equal(t, generator.Completed, s.Phase)

	entries, err := a.History(ctx, "alice", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, s.RequestID, entries[0].RequestID)
	assert.Equal(t, "Build strength at home", entries[0].Input)
	assert.Equal(t, fitnesstest.Week(), entries[0].Plan)

	matches, err := filepath.Glob(filepath.Join(cfg.PlanExportDir, "alice_*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	latest, err := a.LatestPlan("alice")
	require.NoError(t, err)
	assert.Equal(t, fitnesstest.Week(), *latest)
	_, err = a.LatestPlan("bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	report, err := a.MetricsReport(ctx)
	require.NoError(t, err)
	assert.Contains(t, report, "1 runs (0 failed), 120 prompt / 800 completion tokens")

	t.Run("export", func(t *testing.T) {
		path, err := a.Export(ctx, "alice", entries[0].ID, render.FormatMarkdown)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "*Test Week*")

		_, err = a.Export(ctx, "bob", entries[0].ID, render.FormatHTML)
		assert.Error(t, err)
	})
}

func TestFailedGenerationIsMeasuredNotSaved(t *testing.T) {
	ctx := context.Background()
	model := &llmtest.Model{
		Streams: []llmtest.Script{{Chunks: []string{`{"title": "Half`}}},
		Replies: []string{"Here is a plan in prose."},
	}
	a, _ := newTestApp(t, model)

	s, err := a.Generate(ctx, "alice", "Run a 5k")
	require.Error(t, err)
	assert.Equal(t, generator.Failed, s.Phase)

	entries, err := a.History(ctx, "alice", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)

	report, err := a.MetricsReport(ctx)
	require.NoError(t, err)
	assert.Contains(t, report, "1 runs (1 failed)")
}

func TestDemoIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	model := &llmtest.Model{}
	a, _ := newTestApp(t, model)

	s, err := a.GenerateDemo(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, generator.Completed, s.Phase)
	require.NotNil(t, s.Plan)
	assert.Len(t, s.Plan.Days, 2)
	assert.Zero(t, model.StreamCalls())

	entries, err := a.History(ctx, "alice", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestControllersArePerUser(t *testing.T) {
	a, _ := newTestApp(t, weekModel(10))
	assert.Same(t, a.Controller("alice"), a.Controller("alice"))
	assert.NotSame(t, a.Controller("alice"), a.Controller("bob"))

	a.Cancel("nobody")
	a.Cancel("alice")
	assert.Equal(t, generator.Idle, a.Controller("alice").State().Phase)
}

func TestStateDoesNotCreateController(t *testing.T) {
	a, _ := newTestApp(t, weekModel(10))

	assert.Equal(t, generator.Idle, a.State("carol").Phase)
	a.Cancel("carol")
	_, ok := a.Lookup("carol")
	assert.False(t, ok, "read paths must not create controllers")

	c := a.Controller("carol")
	got, ok := a.Lookup("carol")
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestIdleControllersAreEvicted(t *testing.T) {
	ctx := context.Background()
	model := weekModel(10)
	a, _ := newTestApp(t, model)

	_, err := a.Generate(ctx, "alice", "Week one")
	require.NoError(t, err)
	a.Controller("bob")
	require.Equal(t, 1, model.Conversations())

	// Nothing is idle yet.
	assert.Zero(t, a.evictIdle(time.Now().Add(-time.Hour)))

	assert.Equal(t, 2, a.evictIdle(time.Now().Add(time.Second)))
	_, ok := a.Lookup("alice")
	assert.False(t, ok)
	assert.Equal(t, generator.Idle, a.State("alice").Phase)

	// The next request opens a fresh session; history is kept.
	_, err = a.Generate(ctx, "alice", "Week two")
	require.NoError(t, err)
	assert.Equal(t, 2, model.Conversations())
	entries, err := a.History(ctx, "alice", 5)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunningControllerIsNotEvicted(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{{
		Chunks: llmtest.Split(fitnesstest.JSON(fitnesstest.Week()), 64),
		Delay:  50 * time.Millisecond,
	}}}
	a, _ := newTestApp(t, model)

	_, err := a.Start("alice", "Week one")
	require.NoError(t, err)
	assert.Zero(t, a.evictIdle(time.Now().Add(time.Second)))
	_, ok := a.Lookup("alice")
	assert.True(t, ok)
}

func TestIdleSessionsAreReleasedInBackground(t *testing.T) {
	model := weekModel(10)
	a, _ := newTestAppWithConfig(t, model, func(cfg *config.Config) {
		cfg.SessionIdleTimeout = 20 * time.Millisecond
	})

	a.Controller("alice")
	assert.Eventually(t, func() bool {
		_, ok := a.Lookup("alice")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPrewarmOpensSession(t *testing.T) {
	model := weekModel(10)
	a, _ := newTestApp(t, model)

	a.Prewarm(context.Background(), "alice")
	assert.Equal(t, 1, model.Conversations())
	assert.Equal(t, 1, model.RespondCalls())
	assert.Equal(t, []string{session.WarmupPrompt}, model.Prompts())

	_, err := a.Generate(context.Background(), "alice", "Week one")
	require.NoError(t, err)
	assert.Equal(t, 1, model.Conversations(), "the warmed session is reused")
}

func TestPlanVersionsArePruned(t *testing.T) {
	ctx := context.Background()
	a, cfg := newTestAppWithConfig(t, weekModel(10), func(cfg *config.Config) {
		cfg.PlanVersionsKept = 2
	})

	for _, input := range []string{"Week one", "Week two", "Week three"} {
		_, err := a.Generate(ctx, "alice", input)
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(filepath.Join(cfg.PlanExportDir, "alice_*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	entries, err := a.History(ctx, "alice", 5)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "history keeps every plan")
}

func TestTimedOutRunWithoutUsageIsMeasured(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, weekModel(10))

	now := time.Now()
	err := SaveResult(ctx, a.plans, a.metricsStore, a.exports, "alice", generator.State{
		Phase:      generator.TimedOut,
		RequestID:  "r1",
		StartedAt:  now.Add(-15 * time.Second),
		FinishedAt: now,
	})
	require.NoError(t, err)

	report, err := a.MetricsReport(ctx)
	require.NoError(t, err)
	assert.Contains(t, report, "1 runs (1 failed)")
}

func TestBloatAlert(t *testing.T) {
	var alerts []string
	a, _ := newTestApp(t, weekModel(5000), WithAlertHandler(func(text string) { alerts = append(alerts, text) }))

	_, err := a.Generate(context.Background(), "alice", "Marathon prep")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "Prompt Tokens: 5000")
}

func TestSaveResultSkipsRunning(t *testing.T) {
	err := SaveResult(context.Background(), nil, nil, nil, "alice", generator.State{Phase: generator.Generating})
	assert.NoError(t, err)
}

func TestRepeatedGenerationsReuseSession(t *testing.T) {
	ctx := context.Background()
	model := weekModel(50)
	a, cfg := newTestApp(t, model)

	for _, input := range []string{"Week one", "Week two"} {
		_, err := a.Generate(ctx, "alice", input)
		require.NoError(t, err)
	}
	_, err := a.Generate(ctx, "bob", "Week one")
	require.NoError(t, err)

	assert.Equal(t, 3, model.StreamCalls())
	assert.Equal(t, 2, model.Conversations(), "one conversation per user, kept across requests")

	entries, err := a.History(ctx, "alice", 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Week two", entries[0].Input)
	assert.NotEqual(t, entries[0].RequestID, entries[1].RequestID)

	matches, err := filepath.Glob(filepath.Join(cfg.PlanExportDir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	// Cancel closes the session; the next request opens a fresh one.
	a.Cancel("alice")
	_, err = a.Generate(ctx, "alice", "Week three")
	require.NoError(t, err)
	assert.Equal(t, 3, model.Conversations())
}
