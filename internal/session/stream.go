package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/llm"
	"ai-fitness-planner/internal/shared"

	"google.golang.org/api/iterator"
)

// Snapshot is the cumulative state of a structured stream.
type Snapshot struct {
	Partial fitness.PartialPlan
	// Raw is all text received so far.
	Raw string
}

// SnapshotStream turns streamed text into partial plan snapshots. Every
// snapshot is decoded into fresh values, so callers may keep them.
type SnapshotStream struct {
	text llm.TextStream

	raw      strings.Builder
	lastJSON string
	lastRaw  string
	emitted  bool
	usage    shared.TokenUsage
	done     bool
}

func newSnapshotStream(text llm.TextStream) *SnapshotStream {
	return &SnapshotStream{text: text}
}

// Next returns the next snapshot that differs from the previous one, or
// iterator.Done once the model has finished. A chunk is pulled only when
// Next is called.
func (s *SnapshotStream) Next(ctx context.Context) (Snapshot, error) {
	for {
		if s.done {
			return Snapshot{}, iterator.Done
		}
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}

		chunk, err := s.text.Next()
		if errors.Is(err, iterator.Done) {
			s.done = true
			return s.final()
		}
		if err != nil {
			s.done = true
			return Snapshot{}, s.classify(ctx, err)
		}
		if chunk.Usage != nil {
			s.usage = *chunk.Usage
		}
		if chunk.Text == "" {
			continue
		}
		s.raw.WriteString(chunk.Text)

		repaired, ok := llm.RepairJSON(s.raw.String())
		if !ok || repaired == s.lastJSON {
			continue
		}
		partial, err := decodePartial(repaired)
		if err != nil {
			// Keep the previous snapshot; a later prefix may decode.
			continue
		}
		return s.emit(repaired, partial), nil
	}
}

func (s *SnapshotStream) emit(doc string, partial fitness.PartialPlan) Snapshot {
	s.lastJSON = doc
	s.lastRaw = s.raw.String()
	s.emitted = true
	return Snapshot{Partial: partial, Raw: s.lastRaw}
}

// decodePartial decodes a repaired document. A value of the wrong type
// leaves its field zero or absent instead of failing the whole snapshot,
// so the completeness checks reject it and the rest of the plan survives.
func decodePartial(doc string) (fitness.PartialPlan, error) {
	var partial fitness.PartialPlan
	err := json.Unmarshal([]byte(doc), &partial)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		err = nil
	}
	return partial, err
}

// final decodes the whole answer once the model is done. If the document or
// the raw text differs from the last snapshot it is returned, and Done
// follows on the next call.
func (s *SnapshotStream) final() (Snapshot, error) {
	raw := s.raw.String()
	doc, err := llm.ExtractJSON(raw)
	if err != nil {
		return Snapshot{}, llm.NewMalformedStreamError(err, raw)
	}
	partial, err := decodePartial(doc)
	if err != nil {
		return Snapshot{}, llm.NewMalformedStreamError(fmt.Errorf("failed to decode plan: %w", err), raw)
	}
	if s.emitted && doc == s.lastJSON && raw == s.lastRaw {
		return Snapshot{}, iterator.Done
	}
	return s.emit(doc, partial), nil
}

func (s *SnapshotStream) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var malformed *llm.MalformedStreamError
	if errors.As(err, &malformed) {
		if malformed.Raw == "" {
			return llm.NewMalformedStreamError(malformed.Unwrap(), s.raw.String())
		}
		return err
	}
	if llm.IsConnection(err) {
		return err
	}
	return llm.NewMalformedStreamError(err, s.raw.String())
}

// Raw returns all text received so far.
func (s *SnapshotStream) Raw() string {
	return s.raw.String()
}

// Usage returns the token usage reported by the model. It is complete only
// after the stream has ended.
func (s *SnapshotStream) Usage() shared.TokenUsage {
	return s.usage
}

// Close releases the underlying stream.
func (s *SnapshotStream) Close() error {
	s.done = true
	return s.text.Close()
}
