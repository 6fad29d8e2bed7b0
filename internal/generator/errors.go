package generator

import (
	"errors"
	"fmt"

	"ai-fitness-planner/internal/fitness"
)

var (
	// ErrBusy is returned when a generation is started while another one is
	// still running on the same Controller.
	ErrBusy = errors.New("a plan generation is already in progress")
	// ErrGenerationTimeout is published when a run exceeds its time budget.
	ErrGenerationTimeout = errors.New("plan generation timed out")
	// ErrCancelled is returned by Generate when the run was stopped by Cleanup.
	ErrCancelled = errors.New("plan generation cancelled")
	// ErrEmptyInput is returned for blank user input.
	ErrEmptyInput = errors.New("fitness goals must not be empty")

	errRunFinished = errors.New("run finished")
)

// IncompletePlanError means the model finished without producing a full
// week of complete days.
type IncompletePlanError struct {
	CompleteDays int
	// Err is the validation failure, when the days were all present but the
	// plan still broke a rule.
	Err error
}

func (e *IncompletePlanError) Error() string {
	msg := fmt.Sprintf("incomplete plan: %d of %d days complete", e.CompleteDays, fitness.DaysPerPlan)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IncompletePlanError) Unwrap() error {
	return e.Err
}

// IsIncompletePlan returns true if err is an IncompletePlanError.
func IsIncompletePlan(err error) bool {
	var ie *IncompletePlanError
	return errors.As(err, &ie)
}
