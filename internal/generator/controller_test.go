package generator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/fitness/fitnesstest"
	"ai-fitness-planner/internal/llm"
	"ai-fitness-planner/internal/llm/llmtest"
	"ai-fitness-planner/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu        sync.Mutex
	snapshots []State
	finished  []State
}

func (o *recordingObserver) OnSnapshot(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots = append(o.snapshots, s)
}

func (o *recordingObserver) OnFinish(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, s)
}

func weekStream(delay time.Duration) llmtest.Script {
	return llmtest.Script{
		Chunks: llmtest.Split(fitnesstest.JSON(fitnesstest.Week()), 40),
		Delay:  delay,
		Usage:  &shared.TokenUsage{PromptTokens: 100, CompletionTokens: 900, TotalTokens: 1000, Model: "scripted"},
	}
}

func TestGenerateCompletes(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{weekStream(0)}}
	obs := &recordingObserver{}
	c := New(model, WithObserver(obs))

	err := c.Generate(context.Background(), "Lose belly fat, 4 gym days a week")
	require.NoError(t, err)

	s := c.State()
	assert.Equal(t, Completed, s.Phase)
	assert.True(t, s.IsComplete)
	assert.False(t, s.IsLoading)
	assert.False(t, s.IsStreaming)
	require.NotNil(t, s.Plan)
	assert.Equal(t, fitnesstest.Week(), *s.Plan)
	assert.NoError(t, fitness.Validate(*s.Plan))
	assert.Equal(t, 7, s.CompleteDays)
	assert.Equal(t, 1000, s.Usage.TotalTokens)
	assert.NotEmpty(t, s.RequestID)
	assert.Equal(t, "Lose belly fat, 4 gym days a week", s.Input)
	assert.Nil(t, s.Err)

	prompts := model.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Lose belly fat")
	assert.Contains(t, prompts[0], "Generate a comprehensive 7-day fitness plan")
	assert.Equal(t, []string{BaseInstructions()}, model.Instructions())

	require.NotEmpty(t, obs.snapshots)
	prevDays := 0
	for _, snap := range obs.snapshots {
		assert.Equal(t, Generating, snap.Phase)
		assert.GreaterOrEqual(t, snap.Partial.DayCount(), prevDays)
		prevDays = snap.Partial.DayCount()
	}
	require.Len(t, obs.finished, 1)
	assert.Equal(t, Completed, obs.finished[0].Phase)
}

func TestGenerateProgressMessages(t *testing.T) {
	assert.Equal(t, MsgGenerating, progressMessage(fitness.PartialPlan{}))

	title := "Plan"
	assert.Equal(t, MsgCreatingDays, progressMessage(fitness.PartialPlan{Title: &title}))

	partial := fitness.FromPlan(fitnesstest.Week())
	partial.Days = partial.Days[:3]
	assert.Equal(t, "Creating day 3 of 7...", progressMessage(partial))
}

func TestGenerateTimeoutWinsOverLateData(t *testing.T) {
	script := llmtest.Script{Chunks: []string{fitnesstest.JSON(fitnesstest.Week())}, Delay: time.Millisecond}
	model := &llmtest.Model{Streams: []llmtest.Script{script}}
	c := New(model, WithTimeout(0), WithRawFallback(false))

	err := c.Generate(context.Background(), "anything")
	require.ErrorIs(t, err, ErrGenerationTimeout)

	s := c.State()
	assert.Equal(t, TimedOut, s.Phase)
	assert.Nil(t, s.Plan)
	assert.Nil(t, s.Partial)
	assert.Empty(t, s.RawResponse)
	assert.False(t, s.IsLoading)
	assert.False(t, s.IsStreaming)

	// Nothing may change the published state afterwards.
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, TimedOut, c.State().Phase)
}

func TestGenerateTimeoutDuringStream(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{weekStream(20 * time.Millisecond)}}
	c := New(model, WithTimeout(50*time.Millisecond))

	err := c.Generate(context.Background(), "anything")
	require.ErrorIs(t, err, ErrGenerationTimeout)

	s := c.State()
	assert.Equal(t, TimedOut, s.Phase)
	assert.Nil(t, s.Partial, "partial results are discarded on timeout")
	assert.Empty(t, s.RawResponse)
}

func TestGenerateWrongTypedFieldDropsOnlyItsDay(t *testing.T) {
	doc := fitnesstest.JSON(fitnesstest.Week())
	doc = strings.Replace(doc, `"reps":`, `"reps":"12 each side","r":`, 1)

	model := &llmtest.Model{Streams: []llmtest.Script{{Chunks: llmtest.Split(doc, 48)}}}
	c := New(model)

	err := c.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, IsIncompletePlan(err), "got %v", err)
	assert.False(t, llm.IsMalformed(err))

	s := c.State()
	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, 6, s.CompleteDays)
	assert.Equal(t, doc, s.RawResponse)
}

func TestGenerateIncompletePlan(t *testing.T) {
	partial := fitness.FromPlan(fitnesstest.Week())
	partial.Days[3].WellnessTip = nil

	model := &llmtest.Model{Streams: []llmtest.Script{{Chunks: llmtest.Split(partialJSON(t, partial), 64)}}}
	c := New(model)

	err := c.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, IsIncompletePlan(err))

	var ie *IncompletePlanError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 6, ie.CompleteDays)

	s := c.State()
	assert.Equal(t, Failed, s.Phase)
	assert.Nil(t, s.Plan, "six days are never published")
	require.NotNil(t, s.Partial)
	assert.Len(t, s.Partial.Days, 7)
	assert.NotEmpty(t, s.RawResponse)
	assert.Equal(t, 6, s.CompleteDays)
	assert.Equal(t, 0, model.RespondCalls(), "raw text exists, so no fallback request")
}

func TestGenerateMalformedKeepsRawText(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{{Chunks: []string{`{"title": "Half`}}}}
	c := New(model)

	err := c.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, llm.IsMalformed(err))

	s := c.State()
	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, `{"title": "Half`, s.RawResponse)
	assert.Equal(t, err, s.Err)
}

func TestGenerateConnectionFailureUsesRawFallback(t *testing.T) {
	dropped := llm.NewConnectionError(errors.New("unavailable"))
	model := &llmtest.Model{
		Streams: []llmtest.Script{{StartErr: dropped}},
		Replies: []string{"Day 1: walk for 20 minutes..."},
	}
	c := New(model)

	err := c.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, llm.IsConnection(err))

	s := c.State()
	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, "Day 1: walk for 20 minutes...", s.RawResponse)
	assert.Equal(t, 1, model.RespondCalls())
}

func TestGenerateWithoutRawFallback(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{{StartErr: llm.NewConnectionError(errors.New("down"))}}}
	c := New(model, WithRawFallback(false))

	err := c.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, 0, model.RespondCalls())
	assert.Empty(t, c.State().RawResponse)
}

func TestGenerateRejectsConcurrentRequests(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{weekStream(5 * time.Millisecond)}}
	c := New(model)

	states, unsubscribe := c.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- c.Generate(context.Background(), "first") }()

	require.Eventually(t, func() bool { return c.State().Phase == Generating }, time.Second, time.Millisecond)
	assert.ErrorIs(t, c.Generate(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, c.GenerateDemo(context.Background()), ErrBusy)

	require.NoError(t, <-done)
	assert.Equal(t, 1, model.StreamCalls())

	// The subscriber always ends up with the latest state.
	require.Eventually(t, func() bool {
		select {
		case s := <-states:
			return s.Phase == Completed
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestGenerateCallerCancellation(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{weekStream(20 * time.Millisecond)}}
	obs := &recordingObserver{}
	c := New(model, WithObserver(obs))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	err := c.Generate(ctx, "anything")
	require.ErrorIs(t, err, context.Canceled)

	s := c.State()
	assert.Equal(t, Cancelled, s.Phase)
	assert.Nil(t, s.Err)
	assert.Nil(t, s.Plan)
	assert.False(t, s.IsLoading)
	require.Len(t, obs.finished, 1)
}

func TestCleanupStopsRunAndResets(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{weekStream(20 * time.Millisecond)}}
	c := New(model)

	done := make(chan error, 1)
	go func() { done <- c.Generate(context.Background(), "anything") }()
	require.Eventually(t, func() bool { return c.State().Phase == Generating }, time.Second, time.Millisecond)

	c.Cleanup()
	assert.ErrorIs(t, <-done, ErrCancelled)
	assert.Equal(t, State{Phase: Idle}, c.State())

	// Cleanup with nothing running is a no-op, and the closed session is
	// reopened on next use.
	c.Cleanup()
	c.Prewarm(context.Background())
	assert.Equal(t, 2, model.Conversations())
}

func TestGenerateResetsPreviousResult(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{
		weekStream(0),
		{Chunks: []string{`{"title": "broken`}},
	}}
	c := New(model, WithRawFallback(false))

	require.NoError(t, c.Generate(context.Background(), "first"))
	first := c.State()

	require.Error(t, c.Generate(context.Background(), "second"))
	second := c.State()

	assert.Nil(t, second.Plan)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, 1, model.Conversations(), "the session persists across requests")
}

func TestGenerateDemo(t *testing.T) {
	model := &llmtest.Model{}
	c := New(model, WithDemoDelays(time.Millisecond, time.Millisecond))

	states, unsubscribe := c.Subscribe()
	defer unsubscribe()

	var (
		mu       sync.Mutex
		messages []string
	)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case s, ok := <-states:
				if !ok {
					return
				}
				mu.Lock()
				messages = append(messages, s.ProgressMessage)
				mu.Unlock()
			case <-stop:
				return
			}
		}
	}()

	require.NoError(t, c.GenerateDemo(context.Background()))
	close(stop)

	s := c.State()
	assert.Equal(t, Completed, s.Phase)
	assert.True(t, s.Demo)
	require.NotNil(t, s.Plan)
	require.Len(t, s.Plan.Days, 2)
	assert.Equal(t, "Day 1: Cardio Start", s.Plan.Days[0].Title)
	assert.Equal(t, "Day 2: Strength Building", s.Plan.Days[1].Title)
	assert.Equal(t, fitness.FocusCardio, s.Plan.Days[0].Workout.FocusArea)
	assert.Equal(t, 0, model.Conversations(), "the demo never touches the model")
	assert.Equal(t, 0, model.StreamCalls())

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, messages)
}

func TestGenerateDemoCancelled(t *testing.T) {
	c := New(&llmtest.Model{}, WithDemoDelays(time.Second, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.GenerateDemo(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Cancelled, c.State().Phase)
	assert.Nil(t, c.State().Plan)
}

func TestGenerateEmptyInput(t *testing.T) {
	c := New(&llmtest.Model{})
	assert.ErrorIs(t, c.Generate(context.Background(), "   "), ErrEmptyInput)
	assert.Equal(t, Idle, c.State().Phase)
}

func TestCustomInstructions(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{weekStream(0)}}
	c := New(model, WithInstructions("Only bodyweight exercises."))

	require.NoError(t, c.Generate(context.Background(), "anything"))
	assert.Equal(t, []string{"Only bodyweight exercises."}, model.Instructions())
}

func TestPrewarmNeverFails(t *testing.T) {
	model := &llmtest.Model{RespondErr: errors.New("cold")}
	c := New(model)

	c.Prewarm(context.Background())
	assert.Equal(t, 1, model.RespondCalls())
	assert.Equal(t, Idle, c.State().Phase)
}

func TestBuildPlanPrompt(t *testing.T) {
	prompt, err := buildPlanPrompt("  I want <strong> arms & abs  ")
	require.NoError(t, err)
	assert.Contains(t, prompt, "I want <strong> arms & abs")
	assert.Contains(t, prompt, "at most 4 exercises")
	assert.Contains(t, prompt, strings.Join([]string{"arms", "core", "full-body"}, ", "))
}

func partialJSON(t *testing.T, p fitness.PartialPlan) string {
	t.Helper()
	doc, err := json.Marshal(p)
	require.NoError(t, err)
	return string(doc)
}

func TestStartReturnsBeforeCompletion(t *testing.T) {
	model := &llmtest.Model{Streams: []llmtest.Script{weekStream(2 * time.Millisecond)}}
	c := New(model)

	id, done, err := c.Start(context.Background(), "Tone up for summer")
	require.NoError(t, err)
	assert.Equal(t, id, c.State().RequestID)

	_, _, err = c.Start(context.Background(), "again")
	assert.ErrorIs(t, err, ErrBusy)
	_, _, err = c.StartDemo(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, <-done)
	s := c.State()
	assert.Equal(t, Completed, s.Phase)
	assert.Equal(t, id, s.RequestID)

	_, _, err = c.Start(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestStartDemo(t *testing.T) {
	c := New(&llmtest.Model{}, WithDemoDelays(0, 0))

	id, done, err := c.StartDemo(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-done)

	s := c.State()
	assert.Equal(t, id, s.RequestID)
	assert.True(t, s.Demo)
	require.NotNil(t, s.Plan)
	assert.Len(t, s.Plan.Days, 2)
}
