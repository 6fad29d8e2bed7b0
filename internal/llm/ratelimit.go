package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedModel throttles every model call made through its
// conversations, keeping the app inside a provider's free-tier quota.
type RateLimitedModel struct {
	Model
	limiter *rate.Limiter
}

// NewRateLimitedModel allows perMinute requests per minute with a burst of
// one. A non-positive perMinute disables throttling.
func NewRateLimitedModel(m Model, perMinute int) *RateLimitedModel {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	return &RateLimitedModel{Model: m, limiter: rate.NewLimiter(limit, 1)}
}

// NewConversation wraps the underlying conversation with the limiter.
func (m *RateLimitedModel) NewConversation(ctx context.Context, instructions string) (Conversation, error) {
	conv, err := m.Model.NewConversation(ctx, instructions)
	if err != nil {
		return nil, err
	}
	return &rateLimitedConversation{Conversation: conv, limiter: m.limiter}, nil
}

type rateLimitedConversation struct {
	Conversation
	limiter *rate.Limiter
}

func (c *rateLimitedConversation) Respond(ctx context.Context, prompt string) (ContentResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ContentResponse{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.Conversation.Respond(ctx, prompt)
}

func (c *rateLimitedConversation) StreamStructured(ctx context.Context, prompt string, schema *Schema) (TextStream, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.Conversation.StreamStructured(ctx, prompt, schema)
}
