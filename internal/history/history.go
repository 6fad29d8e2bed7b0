// Package history keeps the plans users have generated.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/shared"
)

// ErrNotFound is returned when a plan does not exist for the user.
var ErrNotFound = errors.New("plan not found")

// Entry is a stored fitness plan.
type Entry struct {
	ID        int64
	RequestID string
	UserID    string
	Input     string
	Plan      fitness.Plan
	Usage     shared.TokenUsage
	Latency   time.Duration
	CreatedAt time.Time
}

// Repository is a database-backed repository for fitness plans.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts a plan and returns its ID. Saving the same request twice is
// a no-op that returns the existing ID.
func (r *Repository) Save(ctx context.Context, e Entry) (int64, error) {
	data, err := json.Marshal(e.Plan)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal plan: %w", err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO fitness_plans
			(request_id, user_id, input, title, plan_data, model, prompt_tokens, completion_tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING`,
		e.RequestID, e.UserID, e.Input, e.Plan.Title, data, e.Usage.Model,
		e.Usage.PromptTokens, e.Usage.CompletionTokens, e.Latency.Milliseconds(), created.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save plan %s: %w", e.RequestID, err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM fitness_plans WHERE request_id = ?`, e.RequestID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back plan %s: %w", e.RequestID, err)
	}
	return id, nil
}

const selectColumns = `id, request_id, user_id, input, plan_data, model, prompt_tokens, completion_tokens, latency_ms, created_at`

// ListRecent retrieves the N most recent plans for a given user.
func (r *Repository) ListRecent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM fitness_plans WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent plans for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list recent plans for user %s: %w", userID, err)
	}
	return entries, nil
}

// Get returns one of the user's plans.
func (r *Repository) Get(ctx context.Context, userID string, id int64) (Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM fitness_plans WHERE user_id = ? AND id = ?`, userID, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e         Entry
		data      []byte
		latencyMS int64
	)
	err := s.Scan(&e.ID, &e.RequestID, &e.UserID, &e.Input, &data, &e.Usage.Model,
		&e.Usage.PromptTokens, &e.Usage.CompletionTokens, &latencyMS, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("failed to scan plan: %w", err)
	}
	if err := json.Unmarshal(data, &e.Plan); err != nil {
		return Entry{}, fmt.Errorf("failed to decode plan %d: %w", e.ID, err)
	}
	e.Usage.TotalTokens = e.Usage.PromptTokens + e.Usage.CompletionTokens
	e.Latency = time.Duration(latencyMS) * time.Millisecond
	return e, nil
}
