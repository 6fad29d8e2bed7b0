// Package session wraps a language model conversation behind a small state
// machine so that one conversation at most is live at any time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ai-fitness-planner/internal/llm"
)

// WarmupPrompt is sent by Prewarm.
const WarmupPrompt = "Quick tip"

// ErrClosed is returned to a caller whose conversation was still opening
// when the session was closed.
var ErrClosed = errors.New("session closed while opening")

// State is the lifecycle state of a Session.
type State int

const (
	Uninitialized State = iota
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session lazily opens a conversation with fixed system instructions and
// keeps it across generation calls until Close.
type Session struct {
	model        llm.Model
	instructions string
	logger       *slog.Logger

	mu    sync.Mutex
	state State
	conv  llm.Conversation
	closes int
}

// New creates a Session. No conversation is opened until first use.
func New(model llm.Model, instructions string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		model:        model,
		instructions: instructions,
		logger:       logger,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CreateIfAbsent opens the conversation unless one is already live. A closed
// session is reopened.
func (s *Session) CreateIfAbsent(ctx context.Context) error {
	_, err := s.conversation(ctx)
	return err
}

// conversation returns the live conversation, opening one if needed. The
// lock is not held while the model opens it.
func (s *Session) conversation(ctx context.Context) (llm.Conversation, error) {
	s.mu.Lock()
	if s.state == Ready {
		conv := s.conv
		s.mu.Unlock()
		return conv, nil
	}
	reopened := s.state == Closed
	closes := s.closes
	s.mu.Unlock()

	conv, err := s.model.NewConversation(ctx, s.instructions)
	if err != nil {
		if llm.IsConnection(err) {
			return nil, err
		}
		return nil, llm.NewConnectionError(fmt.Errorf("failed to open conversation: %w", err))
	}

	s.mu.Lock()
	switch {
	case s.closes != closes:
		s.mu.Unlock()
		conv.Close()
		return nil, ErrClosed
	case s.state == Ready:
		// Another caller opened one first.
		live := s.conv
		s.mu.Unlock()
		conv.Close()
		return live, nil
	}
	s.conv = conv
	s.state = Ready
	s.mu.Unlock()

	s.logger.Debug("Session opened", "model", s.model.Name(), "reopened", reopened)
	return conv, nil
}

// Respond performs a single blocking round trip on the conversation.
func (s *Session) Respond(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	conv, err := s.conversation(ctx)
	if err != nil {
		return llm.ContentResponse{}, err
	}
	resp, err := conv.Respond(ctx, prompt)
	if err != nil {
		return llm.ContentResponse{}, fmt.Errorf("failed to get response: %w", err)
	}
	return resp, nil
}

// StreamStructured starts a structured generation. The returned stream is
// finite and cannot be restarted.
func (s *Session) StreamStructured(ctx context.Context, prompt string, schema *llm.Schema) (*SnapshotStream, error) {
	conv, err := s.conversation(ctx)
	if err != nil {
		return nil, err
	}
	text, err := conv.StreamStructured(ctx, prompt, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}
	return newSnapshotStream(text), nil
}

// Prewarm sends a throwaway prompt to cut first-response latency. Its result
// is discarded and failures are only logged.
func (s *Session) Prewarm(ctx context.Context) {
	if _, err := s.Respond(ctx, WarmupPrompt); err != nil {
		s.logger.Debug("Session warm-up failed", "error", err)
	}
}

// Close tears down the conversation. It is a no-op when none is live.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes++
	if s.state != Ready {
		return nil
	}
	conv := s.conv
	s.conv = nil
	s.state = Closed
	if err := conv.Close(); err != nil {
		return fmt.Errorf("failed to close conversation: %w", err)
	}
	return nil
}
