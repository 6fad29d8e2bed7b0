package fitness

import "strings"

// DaysPerPlan is the number of day routines a complete plan carries.
const DaysPerPlan = 7

// FocusArea tags the primary muscle group or activity type of a workout.
type FocusArea string

const (
	FocusArms     FocusArea = "arms"
	FocusCore     FocusArea = "core"
	FocusFullBody FocusArea = "full-body"
	FocusLegs     FocusArea = "legs"
	FocusChest    FocusArea = "chest"
	FocusBack     FocusArea = "back"
	FocusCardio   FocusArea = "cardio"
	FocusRecovery FocusArea = "recovery"
)

// FocusAreas lists every known focus area in schema order.
var FocusAreas = []FocusArea{
	FocusArms, FocusCore, FocusFullBody, FocusLegs,
	FocusChest, FocusBack, FocusCardio, FocusRecovery,
}

// Valid reports whether f is one of the known focus areas.
func (f FocusArea) Valid() bool {
	for _, known := range FocusAreas {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFocusArea maps loosely formatted model output ("fullBody", "Full Body",
// "full_body") onto a known focus area. Unknown values report false.
func ParseFocusArea(s string) (FocusArea, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '-' || r == '_' || r == ' ':
			continue
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	key := b.String()
	for _, known := range FocusAreas {
		if strings.ReplaceAll(string(known), "-", "") == key {
			return known, true
		}
	}
	return "", false
}

// Plan is a complete, immutable 7-day fitness plan.
type Plan struct {
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description" yaml:"description"`
	Rationale   string       `json:"rationale" yaml:"rationale"`
	Days        []DayRoutine `json:"days" yaml:"days"`
}

// IsComplete reports whether the plan carries exactly DaysPerPlan days.
func (p Plan) IsComplete() bool {
	return len(p.Days) == DaysPerPlan
}

// DayRoutine is one day of the plan.
type DayRoutine struct {
	Title       string      `json:"title" yaml:"title"`
	Subtitle    string      `json:"subtitle" yaml:"subtitle"`
	Workout     Workout     `json:"workout" yaml:"workout"`
	MealPlan    MealPlan    `json:"mealPlan" yaml:"mealPlan"`
	WellnessTip WellnessTip `json:"wellnessTip" yaml:"wellnessTip"`
}

type Workout struct {
	FocusArea FocusArea  `json:"focusArea" yaml:"focusArea"`
	Exercises []Exercise `json:"exercises" yaml:"exercises"`
}

type Exercise struct {
	Name        string  `json:"name" yaml:"name"`
	Sets        int     `json:"sets" yaml:"sets"`
	Reps        int     `json:"reps" yaml:"reps"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
}

type MealPlan struct {
	Meals []Meal `json:"meals" yaml:"meals"`
}

type Meal struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Calories    *int   `json:"calories,omitempty" yaml:"calories,omitempty"`
}

// TotalCalories sums the known calorie counts of the meal plan.
func (m MealPlan) TotalCalories() int {
	total := 0
	for _, meal := range m.Meals {
		if meal.Calories != nil {
			total += *meal.Calories
		}
	}
	return total
}

type WellnessTip struct {
	Tip string `json:"tip" yaml:"tip"`
}

// TotalExercises counts the exercises across every day.
func (p Plan) TotalExercises() int {
	n := 0
	for _, d := range p.Days {
		n += len(d.Workout.Exercises)
	}
	return n
}

// TotalMeals counts the meals across every day.
func (p Plan) TotalMeals() int {
	n := 0
	for _, d := range p.Days {
		n += len(d.MealPlan.Meals)
	}
	return n
}
