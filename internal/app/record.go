package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ai-fitness-planner/internal/generator"
	"ai-fitness-planner/internal/history"
	"ai-fitness-planner/internal/metrics"
	"ai-fitness-planner/internal/shared"
	"ai-fitness-planner/internal/storage"
)

// AgentName identifies plan generations in the metrics table.
const AgentName = "generator"

const saveTimeout = 10 * time.Second

// SaveResult persists the outcome of a finished model generation: a metric
// row for every outcome, and for completed plans a history entry plus a
// versioned JSON file under the user's id. Demo runs are not recorded.
func SaveResult(
	ctx context.Context,
	plans *history.Repository,
	metricsStore *metrics.Store,
	exports *storage.PlanStore,
	userID string,
	s generator.State,
) error {
	if s.Demo || !s.Phase.Terminal() {
		return nil
	}

	// 1. Record Metrics
	if err := metricsStore.RecordMeta(ctx, agentMeta(s)); err != nil {
		return err
	}

	if s.Phase != generator.Completed || s.Plan == nil {
		return nil
	}

	// 2. Save to history
	if _, err := plans.Save(ctx, history.Entry{
		RequestID: s.RequestID,
		UserID:    userID,
		Input:     s.Input,
		Plan:      *s.Plan,
		Usage:     s.Usage,
		Latency:   s.Elapsed(),
		CreatedAt: s.FinishedAt,
	}); err != nil {
		return err
	}

	// 3. Keep the user's versioned plan file
	if exports != nil {
		if _, err := exports.Save(userID, storage.Version(s.FinishedAt), *s.Plan); err != nil {
			return fmt.Errorf("failed to export plan %s: %w", s.RequestID, err)
		}
	}
	return nil
}

func agentMeta(s generator.State) shared.AgentMeta {
	return shared.AgentMeta{
		AgentName: AgentName,
		RequestID: s.RequestID,
		Outcome:   s.Phase.String(),
		Usage:     s.Usage,
		Latency:   s.Elapsed(),
	}
}

// recorder saves every finished generation of one user.
type recorder struct {
	app    *App
	userID string
}

func (r recorder) OnSnapshot(generator.State) {}

func (r recorder) OnFinish(s generator.State) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := SaveResult(ctx, r.app.plans, r.app.metricsStore, r.app.exports, r.userID, s); err != nil {
		r.app.logger.Warn("Failed to save generation result",
			slog.String("user_id", r.userID),
			slog.String("request_id", s.RequestID),
			slog.Any("error", err))
	}

	// Alert on context bloat
	if r.app.onAlert != nil && s.Usage.PromptTokens > promptTokenAlert {
		r.app.onAlert(bloatAlert(s.Usage))
	}
}

const promptTokenAlert = 4000

func bloatAlert(u shared.TokenUsage) string {
	return fmt.Sprintf("⚠️ *Context Bloat Alert*\nModel: %s\nPrompt Tokens: %d", u.Model, u.PromptTokens)
}
