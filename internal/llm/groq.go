package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ai-fitness-planner/internal/shared"

	"google.golang.org/api/iterator"
)

const (
	// DefaultGroqBaseURL points at Groq's OpenAI-compatible API.
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	// DefaultGroqModel is used when no model name is configured.
	DefaultGroqModel = "llama-3.3-70b-versatile"
)

// GroqModel talks to any OpenAI-compatible chat completions endpoint.
type GroqModel struct {
	apiKey     string
	name       string
	baseURL    string
	httpClient *http.Client
}

// GroqOption configures a GroqModel.
type GroqOption func(*GroqModel)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) GroqOption {
	return func(m *GroqModel) {
		m.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) GroqOption {
	return func(m *GroqModel) {
		m.httpClient = c
	}
}

// NewGroqModel creates a new Groq API client.
func NewGroqModel(apiKey, name string, opts ...GroqOption) *GroqModel {
	if name == "" {
		name = DefaultGroqModel
	}
	m := &GroqModel{
		apiKey:  apiKey,
		name:    name,
		baseURL: DefaultGroqBaseURL,
		// Streams are bounded by the caller's context, not a client timeout.
		httpClient: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second}},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the model identifier.
func (m *GroqModel) Name() string {
	return m.name
}

// NewConversation starts a conversation with the given system message.
func (m *GroqModel) NewConversation(_ context.Context, instructions string) (Conversation, error) {
	conv := &groqConversation{model: m}
	if instructions != "" {
		conv.history = []groqMessage{{Role: "system", Content: instructions}}
	}
	return conv, nil
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequest struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	Stream         bool              `json:"stream"`
	StreamOptions  *groqStreamOpts   `json:"stream_options,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type groqStreamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type groqUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
	Usage *groqUsage `json:"usage"`
}

type groqStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *groqUsage `json:"usage"`
	XGroq *struct {
		Usage *groqUsage `json:"usage"`
	} `json:"x_groq"`
}

type groqConversation struct {
	model *GroqModel

	mu      sync.Mutex
	history []groqMessage
	closed  bool
}

func (c *groqConversation) messages(prompt string) ([]groqMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("conversation is closed")
	}
	msgs := make([]groqMessage, 0, len(c.history)+1)
	msgs = append(msgs, c.history...)
	return append(msgs, groqMessage{Role: "user", Content: prompt}), nil
}

func (c *groqConversation) record(prompt, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.history = append(c.history,
		groqMessage{Role: "user", Content: prompt},
		groqMessage{Role: "assistant", Content: answer},
	)
}

func (c *groqConversation) post(ctx context.Context, body groqRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.model.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.model.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.model.apiKey)
	}

	resp, err := c.model.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewConnectionError(fmt.Errorf("failed to send request: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, NewConnectionError(fmt.Errorf("groq api error: status=%d body=%s", resp.StatusCode, string(bodyBytes)))
	}
	return resp, nil
}

// Respond sends prompt and waits for the full answer.
func (c *groqConversation) Respond(ctx context.Context, prompt string) (ContentResponse, error) {
	msgs, err := c.messages(prompt)
	if err != nil {
		return ContentResponse{}, err
	}

	resp, err := c.post(ctx, groqRequest{
		Model:       c.model.name,
		Messages:    msgs,
		Temperature: 0.7,
	})
	if err != nil {
		return ContentResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var groqResp groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return ContentResponse{}, NewConnectionError(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(groqResp.Choices) == 0 || groqResp.Choices[0].Message.Content == "" {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}

	content := groqResp.Choices[0].Message.Content
	c.record(prompt, content)

	out := ContentResponse{Content: content}
	if u := c.usage(groqResp.Usage); u != nil {
		out.Usage = *u
	}
	return out, nil
}

// StreamStructured streams a JSON answer. The OpenAI protocol only offers a
// generic JSON mode, so the schema travels inside the prompt.
func (c *groqConversation) StreamStructured(ctx context.Context, prompt string, schema *Schema) (TextStream, error) {
	turn := prompt
	if schema != nil {
		turn = prompt + "\n\nRespond only with a JSON object that matches this JSON schema:\n" + schema.JSON()
	}
	msgs, err := c.messages(turn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.post(ctx, groqRequest{
		Model:          c.model.name,
		Messages:       msgs,
		Temperature:    0.2,
		Stream:         true,
		StreamOptions:  &groqStreamOpts{IncludeUsage: true},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &groqStream{
		ctx:     ctx,
		cancel:  cancel,
		body:    resp.Body,
		scanner: scanner,
		conv:    c,
		prompt:  turn,
	}, nil
}

func (c *groqConversation) usage(u *groqUsage) *shared.TokenUsage {
	if u == nil {
		return nil
	}
	return &shared.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		Model:            c.model.name,
	}
}

// Close drops the history. Further calls fail.
func (c *groqConversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.history = nil
	return nil
}

type groqStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	body    io.ReadCloser
	scanner *bufio.Scanner
	conv    *groqConversation
	prompt  string

	answer   strings.Builder
	finished bool
	done     bool
}

// Next reads server-sent events until one carries text or usage.
func (s *groqStream) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, iterator.Done
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return s.complete()
		}

		var chunk groqStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.done = true
			return Chunk{}, NewMalformedStreamError(fmt.Errorf("failed to decode stream event: %w", err), s.answer.String())
		}

		out := Chunk{}
		if len(chunk.Choices) > 0 {
			out.Text = chunk.Choices[0].Delta.Content
			if chunk.Choices[0].FinishReason != nil {
				s.finished = true
			}
		}
		u := chunk.Usage
		if u == nil && chunk.XGroq != nil {
			u = chunk.XGroq.Usage
		}
		out.Usage = s.conv.usage(u)

		if out.Text == "" && out.Usage == nil {
			continue
		}
		s.answer.WriteString(out.Text)
		return out, nil
	}

	if err := s.ctx.Err(); err != nil {
		s.done = true
		return Chunk{}, err
	}
	if err := s.scanner.Err(); err != nil {
		s.done = true
		return Chunk{}, NewConnectionError(fmt.Errorf("failed to read stream: %w", err))
	}
	if s.finished {
		return s.complete()
	}
	s.done = true
	return Chunk{}, NewConnectionError(fmt.Errorf("stream ended before completion"))
}

func (s *groqStream) complete() (Chunk, error) {
	s.done = true
	s.conv.record(s.prompt, s.answer.String())
	return Chunk{}, iterator.Done
}

func (s *groqStream) Close() error {
	s.done = true
	s.cancel()
	return s.body.Close()
}
