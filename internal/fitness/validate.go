package fitness

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidationError reports a plan that violates the domain invariants.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid fitness plan: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks every invariant of a complete plan: exactly DaysPerPlan
// days, non-empty exercise and meal lists, named exercises with positive sets
// and reps, non-negative calories and a known focus area.
func Validate(p Plan) error {
	return validatePlan(p, true)
}

// ValidateShape checks the same per-entity invariants as Validate without
// requiring a full week. The demo plan is validated this way.
func ValidateShape(p Plan) error {
	return validatePlan(p, false)
}

func validatePlan(p Plan, fullWeek bool) error {
	dayRules := []validation.Rule{validation.Required}
	if fullWeek {
		dayRules = append(dayRules, validation.Length(DaysPerPlan, DaysPerPlan))
	}

	err := validation.ValidateStruct(&p,
		validation.Field(&p.Days, dayRules...),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func (d DayRoutine) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Workout),
		validation.Field(&d.MealPlan),
	)
}

func (w Workout) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.FocusArea, validation.Required, validation.By(knownFocusArea)),
		validation.Field(&w.Exercises, validation.Required),
	)
}

func (e Exercise) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required),
		validation.Field(&e.Sets, validation.Required, validation.Min(1)),
		validation.Field(&e.Reps, validation.Required, validation.Min(1)),
	)
}

func (m MealPlan) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Meals, validation.Required),
	)
}

func (m Meal) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Calories, validation.Min(0)),
	)
}

func knownFocusArea(value interface{}) error {
	if f, _ := value.(FocusArea); !f.Valid() {
		return errors.New("must be a known focus area")
	}
	return nil
}
