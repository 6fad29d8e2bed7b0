// Package llmtest provides a scripted llm.Model for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-fitness-planner/internal/llm"
	"ai-fitness-planner/internal/shared"

	"google.golang.org/api/iterator"
)

// Script describes one StreamStructured call.
type Script struct {
	// StartErr is returned by StreamStructured itself.
	StartErr error
	// Chunks are delivered in order, each after Delay.
	Chunks []string
	Delay  time.Duration
	// Err is returned after the chunks instead of iterator.Done.
	Err error
	// Usage is attached to the last chunk.
	Usage *shared.TokenUsage
}

// Model is a scripted llm.Model. Streams are consumed in order; once they run
// out, the last one is repeated.
type Model struct {
	ModelName string
	Streams   []Script
	// Replies are returned by Respond in order; the last one repeats.
	Replies    []string
	RespondErr error
	OpenErr    error
	// OpenGate, if set, holds every NewConversation call until it receives.
	OpenGate chan struct{}

	mu            sync.Mutex
	streamCalls   int
	respondCalls  int
	openCalls     int
	conversations int
	closed        int
	prompts       []string
	instructions  []string
}

var _ llm.Model = (*Model)(nil)

// Name returns the configured model name.
func (m *Model) Name() string {
	if m.ModelName == "" {
		return "scripted"
	}
	return m.ModelName
}

// NewConversation records instructions and returns a scripted conversation.
func (m *Model) NewConversation(ctx context.Context, instructions string) (llm.Conversation, error) {
	m.mu.Lock()
	m.openCalls++
	m.mu.Unlock()

	if m.OpenGate != nil {
		select {
		case <-m.OpenGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.conversations++
	m.instructions = append(m.instructions, instructions)
	return &conversation{model: m}, nil
}

// Conversations returns how many conversations were opened.
func (m *Model) Conversations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversations
}

// OpenCalls returns how many NewConversation calls started, including ones
// still held by OpenGate.
func (m *Model) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// Closed returns how many conversations were closed.
func (m *Model) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// StreamCalls returns how many streams were requested.
func (m *Model) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// RespondCalls returns how many plain responses were requested.
func (m *Model) RespondCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.respondCalls
}

// Prompts returns every prompt received, in order.
func (m *Model) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Instructions returns the system instructions of every conversation.
func (m *Model) Instructions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.instructions...)
}

type conversation struct {
	model *Model

	mu     sync.Mutex
	closed bool
}

func (c *conversation) Respond(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m := c.model
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	idx := m.respondCalls
	m.respondCalls++
	m.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return llm.ContentResponse{}, err
	}
	if m.RespondErr != nil {
		return llm.ContentResponse{}, m.RespondErr
	}
	if len(m.Replies) == 0 {
		return llm.ContentResponse{Content: "ok"}, nil
	}
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	}
	return llm.ContentResponse{
		Content: m.Replies[idx],
		Usage:   shared.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2, Model: m.Name()},
	}, nil
}

func (c *conversation) StreamStructured(ctx context.Context, prompt string, _ *llm.Schema) (llm.TextStream, error) {
	m := c.model
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	idx := m.streamCalls
	m.streamCalls++
	m.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if len(m.Streams) == 0 {
		return nil, fmt.Errorf("no stream scripted")
	}
	if idx >= len(m.Streams) {
		idx = len(m.Streams) - 1
	}
	script := m.Streams[idx]
	if script.StartErr != nil {
		return nil, script.StartErr
	}
	return &stream{ctx: ctx, script: script}, nil
}

func (c *conversation) check(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("conversation is closed")
	}
	return ctx.Err()
}

func (c *conversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.model.mu.Lock()
		c.model.closed++
		c.model.mu.Unlock()
	}
	return nil
}

type stream struct {
	ctx    context.Context
	script Script
	pos    int
	closed bool
}

func (s *stream) Next() (llm.Chunk, error) {
	if s.closed {
		return llm.Chunk{}, iterator.Done
	}
	if s.pos >= len(s.script.Chunks) {
		if s.script.Err != nil {
			return llm.Chunk{}, s.script.Err
		}
		return llm.Chunk{}, iterator.Done
	}
	if s.script.Delay > 0 {
		timer := time.NewTimer(s.script.Delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return llm.Chunk{}, s.ctx.Err()
		case <-timer.C:
		}
	} else if err := s.ctx.Err(); err != nil {
		return llm.Chunk{}, err
	}

	chunk := llm.Chunk{Text: s.script.Chunks[s.pos]}
	s.pos++
	if s.pos == len(s.script.Chunks) {
		chunk.Usage = s.script.Usage
	}
	return chunk, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}

// Split cuts text into pieces of at most size bytes, imitating a model that
// streams a document a few tokens at a time.
func Split(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
