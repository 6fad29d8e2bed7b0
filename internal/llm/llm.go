package llm

import (
	"context"

	"ai-fitness-planner/internal/shared"
)

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// Model opens conversations with a language model.
type Model interface {
	// Name returns the model identifier used for metrics.
	Name() string
	// NewConversation starts a conversation bound to fixed system instructions.
	NewConversation(ctx context.Context, instructions string) (Conversation, error)
}

// Conversation is a live exchange with the model. Calls share history.
type Conversation interface {
	// Respond performs a single blocking round trip.
	Respond(ctx context.Context, prompt string) (ContentResponse, error)
	// StreamStructured asks for JSON output matching schema and returns the
	// raw text as it is generated. The stream is bound to ctx.
	StreamStructured(ctx context.Context, prompt string, schema *Schema) (TextStream, error)
	Closer
}

// Chunk is one increment of streamed text. Usage is set on the chunk that
// carries the provider's usage report, usually the last one.
type Chunk struct {
	Text  string
	Usage *shared.TokenUsage
}

// TextStream yields chunks until it returns iterator.Done. It is not
// restartable and must be closed by the consumer.
type TextStream interface {
	Next() (Chunk, error)
	Closer
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}
