// Package generator drives a fitness plan request from user input to a
// published, validated plan while the model streams partial results.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/llm"
	"ai-fitness-planner/internal/session"
	"ai-fitness-planner/internal/shared"

	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// DefaultTimeout bounds one generation request.
const DefaultTimeout = 15 * time.Second

// Observer receives controller telemetry. OnSnapshot runs for every
// accepted stream snapshot and OnFinish once per request, after the
// terminal state is published.
type Observer interface {
	OnSnapshot(s State)
	OnFinish(s State)
}

// Controller owns one generation request at a time and publishes its state.
type Controller struct {
	session      *session.Session
	schema       *llm.Schema
	instructions string
	timeout      time.Duration
	rawFallback  bool
	demoDelays   [2]time.Duration
	logger       *slog.Logger
	observers    []Observer

	mu      sync.Mutex
	state   State
	run     *run
	subs    map[int]chan State
	nextSub int
}

// run is the cancellation token shared by the stream consumer and the
// timeout watcher of one request.
type run struct {
	id          string
	ctx         context.Context
	cancel      context.CancelCauseFunc
	watcherDone chan struct{}

	phase Phase
	err   error
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout sets the per-request time budget. Zero times out at once;
// negative values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithInstructions replaces the base system instructions.
func WithInstructions(instructions string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(instructions) != "" {
			c.instructions = instructions
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithRawFallback toggles the plain-text request made when a run fails
// before any text arrived. It is on by default.
func WithRawFallback(enabled bool) Option {
	return func(c *Controller) {
		c.rawFallback = enabled
	}
}

// WithDemoDelays sets the two pauses of the demo path.
func WithDemoDelays(first, second time.Duration) Option {
	return func(c *Controller) {
		c.demoDelays = [2]time.Duration{first, second}
	}
}

// New creates a Controller generating plans with model.
func New(model llm.Model, opts ...Option) *Controller {
	c := &Controller{
		schema:       fitness.PlanSchema(),
		instructions: BaseInstructions(),
		timeout:      DefaultTimeout,
		rawFallback:  true,
		demoDelays:   [2]time.Duration{time.Second, 1500 * time.Millisecond},
		logger:       slog.Default(),
		subs:         make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = session.New(model, c.instructions, c.logger)
	return c
}

// State returns the latest published snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel that always holds the most recent state. Older
// undelivered states are dropped. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// publishLocked fans the current state out to subscribers. c.mu must be
// held; as the only sender, it never blocks.
func (c *Controller) publishLocked() {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}

// Prewarm opens the session and sends a warm-up prompt. It never fails.
func (c *Controller) Prewarm(ctx context.Context) {
	c.session.Prewarm(ctx)
}

// Generate runs one request for input and blocks until it reaches a
// terminal phase. The returned error is the published one, ctx.Err() or
// ErrCancelled for cancelled runs, and ErrBusy if another run is active.
func (c *Controller) Generate(ctx context.Context, input string) error {
	r, prompt, err := c.prepare(ctx, input)
	if err != nil {
		return err
	}
	return c.execute(ctx, r, prompt)
}

// Start begins a request like Generate but returns as soon as the run is
// installed. done receives what Generate would have returned.
func (c *Controller) Start(ctx context.Context, input string) (requestID string, done <-chan error, err error) {
	r, prompt, err := c.prepare(ctx, input)
	if err != nil {
		return "", nil, err
	}
	ch := make(chan error, 1)
	go func() { ch <- c.execute(ctx, r, prompt) }()
	return r.id, ch, nil
}

func (c *Controller) prepare(ctx context.Context, input string) (*run, string, error) {
	if strings.TrimSpace(input) == "" {
		return nil, "", ErrEmptyInput
	}
	prompt, err := buildPlanPrompt(input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build plan prompt: %w", err)
	}
	r, err := c.begin(ctx, input, false)
	if err != nil {
		return nil, "", err
	}
	return r, prompt, nil
}

func (c *Controller) execute(ctx context.Context, r *run, prompt string) error {
	defer c.finish(r, Cancelled, nil, nil)

	c.armTimeout(r)
	c.consume(r, prompt)

	return c.wait(ctx, r)
}

// GenerateDemo publishes the fixed demo plan after two scripted progress
// steps. It never calls the model and has no timeout.
func (c *Controller) GenerateDemo(ctx context.Context) error {
	r, err := c.begin(ctx, "", true)
	if err != nil {
		return err
	}
	return c.executeDemo(ctx, r)
}

// StartDemo is the non-blocking form of GenerateDemo.
func (c *Controller) StartDemo(ctx context.Context) (requestID string, done <-chan error, err error) {
	r, err := c.begin(ctx, "", true)
	if err != nil {
		return "", nil, err
	}
	ch := make(chan error, 1)
	go func() { ch <- c.executeDemo(ctx, r) }()
	return r.id, ch, nil
}

func (c *Controller) executeDemo(ctx context.Context, r *run) error {
	defer c.finish(r, Cancelled, nil, nil)
	close(r.watcherDone)

	steps := []string{"Preparing your demo plan...", "Adding meals and wellness tips..."}
	for i, msg := range steps {
		if !c.update(r, func(s *State) { s.ProgressMessage = msg }) {
			break
		}
		if !sleep(r.ctx, c.demoDelays[i]) {
			break
		}
	}

	if r.ctx.Err() == nil {
		plan := fitness.DemoPlan()
		if err := fitness.ValidateShape(plan); err != nil {
			c.finish(r, Failed, err, nil)
		} else {
			partial := fitness.FromPlan(plan)
			c.finish(r, Completed, nil, func(s *State) {
				s.Plan = &plan
				s.Partial = &partial
				s.CompleteDays = len(plan.Days)
				s.ProgressMessage = ""
			})
		}
	} else {
		c.finish(r, Cancelled, nil, nil)
	}

	return c.wait(ctx, r)
}

// Cleanup cancels a running request, closes the session and resets the
// published state to Idle. It is safe to call at any time.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	if r != nil {
		c.finish(r, Cancelled, nil, nil)
		<-r.watcherDone
	}

	if err := c.session.Close(); err != nil {
		c.logger.Warn("Failed to close session", "error", err)
	}

	c.mu.Lock()
	if c.run == nil {
		c.state = State{Phase: Idle}
		c.publishLocked()
	}
	c.mu.Unlock()
}

// begin resets the published fields and installs a new run.
func (c *Controller) begin(ctx context.Context, input string, demo bool) (*run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		return nil, ErrBusy
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	r := &run{
		id:          uuid.NewString(),
		ctx:         runCtx,
		cancel:      cancel,
		watcherDone: make(chan struct{}),
		phase:       Generating,
	}
	c.run = r
	c.state = State{
		Phase:           Generating,
		IsLoading:       true,
		IsStreaming:     !demo,
		ProgressMessage: MsgGenerating,
		RequestID:       r.id,
		Input:           input,
		Demo:            demo,
		StartedAt:       time.Now(),
	}
	c.publishLocked()

	c.logger.Info("Plan generation started", "request_id", r.id, "demo", demo)
	return r, nil
}

// update applies fn to the published state unless the run has ended or its
// token was cancelled.
func (c *Controller) update(r *run, fn func(*State)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != r || r.ctx.Err() != nil {
		return false
	}
	fn(&c.state)
	c.publishLocked()
	return true
}

// finish moves the run to a terminal phase. Only the first call for a run
// has any effect; it clears the loading flags and cancels the token so the
// other unit of work stops.
func (c *Controller) finish(r *run, phase Phase, err error, fn func(*State)) bool {
	c.mu.Lock()
	if c.run != r {
		c.mu.Unlock()
		return false
	}
	c.run = nil
	r.phase, r.err = phase, err

	s := c.state
	s.Phase = phase
	s.Err = err
	s.IsLoading = false
	s.IsStreaming = false
	s.IsComplete = phase == Completed
	s.FinishedAt = time.Now()
	if fn != nil {
		fn(&s)
	}
	c.state = s
	c.publishLocked()
	c.mu.Unlock()

	cause := errRunFinished
	if phase == TimedOut {
		cause = ErrGenerationTimeout
	}
	r.cancel(cause)

	attrs := []any{"request_id", r.id, "phase", phase.String(), "elapsed", s.Elapsed()}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	c.logger.Info("Plan generation finished", attrs...)

	for _, o := range c.observers {
		o.OnFinish(s)
	}
	return true
}

func (c *Controller) wait(ctx context.Context, r *run) error {
	<-r.watcherDone

	c.mu.Lock()
	phase, err := r.phase, r.err
	c.mu.Unlock()

	switch phase {
	case Completed:
		return nil
	case Cancelled:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrCancelled
	}
	return err
}

// armTimeout starts the timeout watcher. A zero timeout expires the run
// before any stream data can be consumed.
func (c *Controller) armTimeout(r *run) {
	if c.timeout == 0 {
		c.expire(r)
		close(r.watcherDone)
		return
	}
	go c.watchTimeout(r)
}

func (c *Controller) watchTimeout(r *run) {
	defer close(r.watcherDone)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		c.expire(r)
	case <-r.ctx.Done():
	}
}

// expire ends the run as timed out and discards everything it produced.
func (c *Controller) expire(r *run) {
	c.finish(r, TimedOut, ErrGenerationTimeout, func(s *State) {
		s.Partial = nil
		s.Plan = nil
		s.RawResponse = ""
		s.CompleteDays = 0
		s.ProgressMessage = ""
	})
}

// consume reads the snapshot stream until it ends and publishes the
// outcome. Every publish is gated on the run token.
func (c *Controller) consume(r *run, prompt string) {
	stream, err := c.session.StreamStructured(r.ctx, prompt, c.schema)
	if err != nil {
		c.fail(r, prompt, err, "", shared.TokenUsage{})
		return
	}
	defer stream.Close()

	var last fitness.PartialPlan
	for {
		snap, err := stream.Next(r.ctx)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			c.fail(r, prompt, err, stream.Raw(), stream.Usage())
			return
		}

		last = snap.Partial
		partial := snap.Partial
		progress, _ := fitness.Reconcile(partial)
		var published State
		ok := c.update(r, func(s *State) {
			s.Partial = &partial
			s.RawResponse = snap.Raw
			s.ProgressMessage = progressMessage(partial)
			s.CompleteDays = len(progress.Days)
			published = *s
		})
		if !ok {
			c.finish(r, Cancelled, nil, nil)
			return
		}
		for _, o := range c.observers {
			o.OnSnapshot(published)
		}
	}

	if r.ctx.Err() != nil {
		c.finish(r, Cancelled, nil, nil)
		return
	}

	usage := stream.Usage()
	raw := stream.Raw()
	plan, ok := fitness.Assemble(last)
	if !ok {
		reconciled, _ := fitness.Reconcile(last)
		c.finish(r, Failed, &IncompletePlanError{CompleteDays: len(reconciled.Days)}, func(s *State) {
			s.RawResponse = raw
			s.Usage = usage
		})
		return
	}
	if err := fitness.Validate(plan); err != nil {
		c.finish(r, Failed, &IncompletePlanError{CompleteDays: len(plan.Days), Err: err}, func(s *State) {
			s.RawResponse = raw
			s.Usage = usage
		})
		return
	}

	c.finish(r, Completed, nil, func(s *State) {
		s.Plan = &plan
		s.RawResponse = raw
		s.CompleteDays = len(plan.Days)
		s.ProgressMessage = ""
		s.Usage = usage
	})
}

// fail publishes a session error, keeping the captured raw text. Without
// any text, one plain response is requested for fallback display.
func (c *Controller) fail(r *run, prompt string, err error, raw string, usage shared.TokenUsage) {
	if r.ctx.Err() != nil {
		c.finish(r, Cancelled, nil, nil)
		return
	}

	if raw == "" && c.rawFallback {
		resp, ferr := c.session.Respond(r.ctx, prompt)
		if ferr != nil {
			c.logger.Debug("Raw fallback failed", "request_id", r.id, "error", ferr)
		} else {
			raw = resp.Content
			usage = usage.Add(resp.Usage)
		}
		if r.ctx.Err() != nil {
			c.finish(r, Cancelled, nil, nil)
			return
		}
	}

	c.finish(r, Failed, err, func(s *State) {
		s.RawResponse = raw
		s.Usage = usage
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
