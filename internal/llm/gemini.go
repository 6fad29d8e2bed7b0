package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ai-fitness-planner/internal/shared"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiModel opens conversations with a Google Gemini model.
type GeminiModel struct {
	client *genai.Client
	name   string
}

// NewGeminiModel creates a new Gemini API client for the named model.
func NewGeminiModel(ctx context.Context, apiKey, name string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if name == "" {
		name = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiModel{client: client, name: name}, nil
}

// Name returns the model identifier.
func (m *GeminiModel) Name() string {
	return m.name
}

// NewConversation starts a conversation whose turns share one history.
func (m *GeminiModel) NewConversation(_ context.Context, instructions string) (Conversation, error) {
	return &geminiConversation{
		client:       m.client,
		name:         m.name,
		instructions: instructions,
	}, nil
}

// Close closes the underlying Gemini client.
func (m *GeminiModel) Close() error {
	return m.client.Close()
}

type geminiConversation struct {
	client       *genai.Client
	name         string
	instructions string

	mu      sync.Mutex
	history []*genai.Content
	closed  bool
}

// model returns a generative model configured for one turn. A nil schema
// means free-form text.
func (c *geminiConversation) model(schema *Schema) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.name)
	if c.instructions != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(c.instructions)},
		}
	}
	if schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(schema)
	}
	return model
}

func (c *geminiConversation) startChat(schema *Schema) (*genai.ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("conversation is closed")
	}
	cs := c.model(schema).StartChat()
	cs.History = append([]*genai.Content(nil), c.history...)
	return cs, nil
}

func (c *geminiConversation) saveHistory(cs *genai.ChatSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.history = cs.History
	}
}

// Respond sends prompt and waits for the full answer.
func (c *geminiConversation) Respond(ctx context.Context, prompt string) (ContentResponse, error) {
	cs, err := c.startChat(nil)
	if err != nil {
		return ContentResponse{}, err
	}

	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return ContentResponse{}, classifyGeminiError(err)
	}
	c.saveHistory(cs)

	content := responseText(resp)
	if content == "" {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}

	var usage shared.TokenUsage
	if u := geminiUsage(resp, c.name); u != nil {
		usage = *u
	}
	return ContentResponse{Content: content, Usage: usage}, nil
}

// StreamStructured asks for JSON matching schema and streams the text.
func (c *geminiConversation) StreamStructured(ctx context.Context, prompt string, schema *Schema) (TextStream, error) {
	cs, err := c.startChat(schema)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &geminiStream{
		conv:   c,
		cs:     cs,
		iter:   cs.SendMessageStream(ctx, genai.Text(prompt)),
		cancel: cancel,
		model:  c.name,
	}, nil
}

// Close drops the history. Further calls fail.
func (c *geminiConversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.history = nil
	return nil
}

type geminiStream struct {
	conv   *geminiConversation
	cs     *genai.ChatSession
	iter   *genai.GenerateContentResponseIterator
	cancel context.CancelFunc
	model  string
	done   bool
}

func (s *geminiStream) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, iterator.Done
	}
	resp, err := s.iter.Next()
	if errors.Is(err, iterator.Done) {
		s.done = true
		// The chat session appends the merged answer to its history once
		// the iterator is exhausted.
		s.conv.saveHistory(s.cs)
		return Chunk{}, iterator.Done
	}
	if err != nil {
		s.done = true
		return Chunk{}, classifyGeminiError(err)
	}
	return Chunk{Text: responseText(resp), Usage: geminiUsage(resp, s.model)}, nil
}

func (s *geminiStream) Close() error {
	s.done = true
	s.cancel()
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func geminiUsage(resp *genai.GenerateContentResponse, model string) *shared.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return &shared.TokenUsage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		Model:            model,
	}
}

// classifyGeminiError maps blocked content to MalformedStreamError and
// everything else, apart from context errors, to ConnectionError.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return NewMalformedStreamError(err, "")
	}
	return NewConnectionError(err)
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        toGenaiType(s.Type),
		Description: s.Description,
		Nullable:    s.Nullable,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
		out.Enum = s.Enum
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func toGenaiType(t SchemaType) genai.Type {
	switch t {
	case TypeString:
		return genai.TypeString
	case TypeInteger:
		return genai.TypeInteger
	case TypeNumber:
		return genai.TypeNumber
	case TypeBoolean:
		return genai.TypeBoolean
	case TypeArray:
		return genai.TypeArray
	case TypeObject:
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}
