package app

import (
	"context"
	"fmt"

	"ai-fitness-planner/internal/config"
	"ai-fitness-planner/internal/llm"
)

// NewModel builds the configured model backend behind the client-side rate
// limit. The returned close function releases the backend.
func NewModel(ctx context.Context, cfg *config.Config) (llm.Model, func() error, error) {
	var (
		model   llm.Model
		closeFn = func() error { return nil }
	)

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		gm, err := llm.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.ModelName(llm.DefaultGeminiModel))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini model: %w", err)
		}
		model, closeFn = gm, gm.Close
	case config.ProviderGroq:
		model = llm.NewGroqModel(cfg.GroqAPIKey, cfg.ModelName(llm.DefaultGroqModel))
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	return llm.NewRateLimitedModel(model, cfg.LLMRequestsPerMinute), closeFn, nil
}
