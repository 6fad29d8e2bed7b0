package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ai-fitness-planner/internal/config"
	"ai-fitness-planner/internal/database"
	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/generator"
	"ai-fitness-planner/internal/history"
	"ai-fitness-planner/internal/llm"
	"ai-fitness-planner/internal/metrics"
	"ai-fitness-planner/internal/render"
	"ai-fitness-planner/internal/storage"
)

// App holds the application's dependencies and one controller per user.
type App struct {
	cfg          *config.Config
	model        llm.Model
	db           *database.DB
	plans        *history.Repository
	metricsStore *metrics.Store
	exports      *storage.PlanStore
	registry     *prometheus.Registry
	collector    *metrics.Collector
	logger       *slog.Logger
	genOpts      []generator.Option
	onAlert      func(string)

	mu          sync.Mutex
	controllers map[string]*userController

	stop      chan struct{}
	stopOnce  sync.Once
	janitorWG sync.WaitGroup
}

// userController is a user's controller and when the app last handed it out.
type userController struct {
	c        *generator.Controller
	lastUsed time.Time
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger passed down to controllers.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithGeneratorOptions appends options applied to every controller.
func WithGeneratorOptions(opts ...generator.Option) Option {
	return func(a *App) { a.genOpts = append(a.genOpts, opts...) }
}

// WithAlertHandler receives operational alerts such as prompt bloat.
func WithAlertHandler(fn func(text string)) Option {
	return func(a *App) { a.onAlert = fn }
}

// NewApp creates and initializes a new App instance.
func NewApp(cfg *config.Config, model llm.Model, db *database.DB, opts ...Option) (*App, error) {
	exports, err := storage.NewPlanStore(cfg.PlanExportDir, cfg.PlanVersionsKept)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:          cfg,
		model:        model,
		db:           db,
		plans:        history.NewRepository(db.SQL),
		metricsStore: metrics.NewStore(db.SQL),
		exports:      exports,
		registry:     prometheus.NewRegistry(),
		logger:       slog.Default(),
		controllers:  make(map[string]*userController),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.collector, err = metrics.NewCollector(a.registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	if cfg.SessionIdleTimeout > 0 {
		a.janitorWG.Add(1)
		go a.evictLoop(cfg.SessionIdleTimeout)
	}
	return a, nil
}

// Registry exposes the Prometheus registry for the /metrics endpoint.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Controller returns the user's controller, creating it on first use.
func (a *App) Controller(userID string) *generator.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()

	if uc, ok := a.controllers[userID]; ok {
		uc.lastUsed = time.Now()
		return uc.c
	}

	opts := []generator.Option{
		generator.WithTimeout(a.cfg.GenerationTimeout),
		generator.WithLogger(a.logger.With("user_id", userID)),
		generator.WithObserver(a.collector),
		generator.WithObserver(recorder{app: a, userID: userID}),
	}
	if a.cfg.SystemInstructions != "" {
		opts = append(opts, generator.WithInstructions(a.cfg.SystemInstructions))
	}
	opts = append(opts, a.genOpts...)

	c := generator.New(a.model, opts...)
	a.controllers[userID] = &userController{c: c, lastUsed: time.Now()}
	return c
}

// Lookup returns the user's controller without creating one. It does not
// count as activity for idle eviction.
func (a *App) Lookup(userID string) (*generator.Controller, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	uc, ok := a.controllers[userID]
	if !ok {
		return nil, false
	}
	return uc.c, true
}

// State returns the user's latest state, or Idle if they have no controller.
func (a *App) State(userID string) generator.State {
	if c, ok := a.Lookup(userID); ok {
		return c.State()
	}
	return generator.State{Phase: generator.Idle}
}

// Prewarm opens the user's session ahead of their first request.
func (a *App) Prewarm(ctx context.Context, userID string) {
	a.Controller(userID).Prewarm(ctx)
}

func (a *App) evictLoop(idle time.Duration) {
	defer a.janitorWG.Done()

	ticker := time.NewTicker(min(idle, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case now := <-ticker.C:
			if n := a.evictIdle(now.Add(-idle)); n > 0 {
				a.logger.Info("Released idle sessions", "count", n)
			}
		}
	}
}

// evictIdle drops the controllers of users who have not been active since
// cutoff and have no generation running, and closes their sessions.
func (a *App) evictIdle(cutoff time.Time) int {
	a.mu.Lock()
	var idle []*generator.Controller
	for userID, uc := range a.controllers {
		if uc.lastUsed.Before(cutoff) && uc.c.State().Phase != generator.Generating {
			idle = append(idle, uc.c)
			delete(a.controllers, userID)
		}
	}
	a.mu.Unlock()

	for _, c := range idle {
		c.Cleanup()
	}
	return len(idle)
}

// Generate runs a model generation for the user and returns its final state.
func (a *App) Generate(ctx context.Context, userID, input string) (generator.State, error) {
	c := a.Controller(userID)
	err := c.Generate(ctx, input)
	return c.State(), err
}

// GenerateDemo runs the demo generation for the user.
func (a *App) GenerateDemo(ctx context.Context, userID string) (generator.State, error) {
	c := a.Controller(userID)
	err := c.GenerateDemo(ctx)
	return c.State(), err
}

// Start begins a model generation for the user in the background and
// returns its request ID. The run outlives the caller's request.
func (a *App) Start(userID, input string) (string, error) {
	id, _, err := a.Controller(userID).Start(context.Background(), input)
	return id, err
}

// StartDemo begins the demo generation in the background.
func (a *App) StartDemo(userID string) (string, error) {
	id, _, err := a.Controller(userID).StartDemo(context.Background())
	return id, err
}

// Cancel stops the user's running generation and releases their session.
func (a *App) Cancel(userID string) {
	if c, ok := a.Lookup(userID); ok {
		c.Cleanup()
	}
}

// History lists the user's most recent plans.
func (a *App) History(ctx context.Context, userID string, limit int) ([]history.Entry, error) {
	return a.plans.ListRecent(ctx, userID, limit)
}

// Plan returns one of the user's saved plans.
func (a *App) Plan(ctx context.Context, userID string, planID int64) (history.Entry, error) {
	return a.plans.Get(ctx, userID, planID)
}

// LatestPlan loads the newest plan file saved for the user.
func (a *App) LatestPlan(userID string) (*fitness.Plan, error) {
	return a.exports.Latest(userID)
}

// Export renders one of the user's saved plans and writes it next to the
// JSON versions. It returns the file path.
func (a *App) Export(ctx context.Context, userID string, planID int64, f render.Format) (string, error) {
	e, err := a.Plan(ctx, userID, planID)
	if err != nil {
		return "", err
	}
	data, err := render.Render(e.Plan, f)
	if err != nil {
		return "", err
	}
	return a.exports.WriteExport(e.RequestID, string(f), data)
}

// MetricsReport summarises the last week of usage and system health.
func (a *App) MetricsReport(ctx context.Context) (string, error) {
	usage, err := a.metricsStore.GetDailyUsage(ctx, 7)
	if err != nil {
		return "", err
	}
	health := metrics.GetSysHealth(filepath.Dir(a.db.Path), a.cfg.PlanExportDir)
	return metrics.Report(health, usage), nil
}

// CleanupMetrics removes metric rows older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	return a.metricsStore.Cleanup(ctx, days)
}

// Close cancels every running generation and closes the sessions.
func (a *App) Close() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.janitorWG.Wait()

	a.mu.Lock()
	controllers := make([]*generator.Controller, 0, len(a.controllers))
	for _, uc := range a.controllers {
		controllers = append(controllers, uc.c)
	}
	a.mu.Unlock()

	for _, c := range controllers {
		c.Cleanup()
	}
}
