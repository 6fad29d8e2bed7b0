package httpapi

import (
	"time"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/generator"
	"ai-fitness-planner/internal/history"
)

type usageResponse struct {
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	TotalTokens      int    `json:"totalTokens"`
	Model            string `json:"model,omitempty"`
}

type stateResponse struct {
	Phase           generator.Phase      `json:"phase"`
	IsLoading       bool                 `json:"isLoading"`
	IsStreaming     bool                 `json:"isStreaming"`
	IsComplete      bool                 `json:"isComplete"`
	ProgressMessage string               `json:"progressMessage,omitempty"`
	CompleteDays    int                  `json:"completeDays"`
	Partial         *fitness.PartialPlan `json:"partial,omitempty"`
	Plan            *fitness.Plan        `json:"plan,omitempty"`
	RawResponse     string               `json:"rawResponse,omitempty"`
	Error           string               `json:"error,omitempty"`
	RequestID       string               `json:"requestId,omitempty"`
	Demo            bool                 `json:"demo"`
	StartedAt       *time.Time           `json:"startedAt,omitempty"`
	FinishedAt      *time.Time           `json:"finishedAt,omitempty"`
	Usage           *usageResponse       `json:"usage,omitempty"`
}

func newStateResponse(s generator.State) stateResponse {
	resp := stateResponse{
		Phase:           s.Phase,
		IsLoading:       s.IsLoading,
		IsStreaming:     s.IsStreaming,
		IsComplete:      s.IsComplete,
		ProgressMessage: s.ProgressMessage,
		CompleteDays:    s.CompleteDays,
		Partial:         s.Partial,
		Plan:            s.Plan,
		RawResponse:     s.RawResponse,
		RequestID:       s.RequestID,
		Demo:            s.Demo,
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	if !s.StartedAt.IsZero() {
		resp.StartedAt = &s.StartedAt
	}
	if !s.FinishedAt.IsZero() {
		resp.FinishedAt = &s.FinishedAt
	}
	if s.Usage.TotalTokens > 0 || s.Usage.PromptTokens > 0 {
		resp.Usage = &usageResponse{
			PromptTokens:     s.Usage.PromptTokens,
			CompletionTokens: s.Usage.CompletionTokens,
			TotalTokens:      s.Usage.TotalTokens,
			Model:            s.Usage.Model,
		}
	}
	return resp
}

type historyItem struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"requestId"`
	Title       string    `json:"title"`
	Input       string    `json:"input"`
	Model       string    `json:"model,omitempty"`
	TotalTokens int       `json:"totalTokens"`
	LatencyMS   int64     `json:"latencyMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newHistoryItem(e history.Entry) historyItem {
	return historyItem{
		ID:          e.ID,
		RequestID:   e.RequestID,
		Title:       e.Plan.Title,
		Input:       e.Input,
		Model:       e.Usage.Model,
		TotalTokens: e.Usage.TotalTokens,
		LatencyMS:   e.Latency.Milliseconds(),
		CreatedAt:   e.CreatedAt,
	}
}
