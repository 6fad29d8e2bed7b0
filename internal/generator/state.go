package generator

import (
	"fmt"
	"time"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/shared"
)

// Phase is the lifecycle position of the current request.
type Phase int

const (
	Idle Phase = iota
	Generating
	Completed
	Failed
	TimedOut
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Generating:
		return "generating"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Terminal reports whether no further transition can happen in this request.
func (p Phase) Terminal() bool {
	return p >= Completed
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Progress messages derived from the latest snapshot.
const (
	MsgGenerating     = "Generating your fitness plan..."
	MsgCreatingDays   = "Creating daily routines..."
	msgCreatingDayFmt = "Creating day %d of %d..."
)

// State is an immutable snapshot of the controller. Partial and Plan point
// at values that are never modified after publication; treat them as
// read-only.
type State struct {
	Phase           Phase
	IsLoading       bool
	IsStreaming     bool
	IsComplete      bool
	ProgressMessage string
	// CompleteDays counts the days of Partial that already pass every
	// completeness check.
	CompleteDays int
	Partial      *fitness.PartialPlan
	Plan         *fitness.Plan
	RawResponse  string
	Err          error
	RequestID    string
	Input        string
	Demo         bool
	StartedAt    time.Time
	FinishedAt   time.Time
	Usage        shared.TokenUsage
}

// Elapsed returns the run duration, or the time since start while running.
func (s State) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func progressMessage(p fitness.PartialPlan) string {
	switch {
	case p.DayCount() > 0:
		return fmt.Sprintf(msgCreatingDayFmt, min(p.DayCount(), fitness.DaysPerPlan), fitness.DaysPerPlan)
	case p.HasTitle():
		return MsgCreatingDays
	}
	return MsgGenerating
}
