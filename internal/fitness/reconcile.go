package fitness

// Reconcile assembles the complete parts of a partial snapshot.
//
// The plan header (title, description, rationale) and the day sequence must
// be present, otherwise ok is false. Each of the first DaysPerPlan day entries
// is checked on its own; incomplete days are dropped from the result rather
// than failing the whole plan, so len(plan.Days) is always in [0, DaysPerPlan].
//
// Leniency policy:
//   - a workout that is otherwise complete but lacks a recognisable focus area
//     is tagged FocusFullBody;
//   - a wellness tip object without its inner text yields an empty tip.
//
// Reconcile is pure: the same snapshot always yields the same plan.
func Reconcile(p PartialPlan) (plan Plan, ok bool) {
	if p.Title == nil || p.Description == nil || p.Rationale == nil || p.Days == nil {
		return Plan{}, false
	}

	entries := p.Days
	if len(entries) > DaysPerPlan {
		entries = entries[:DaysPerPlan]
	}

	days := make([]DayRoutine, 0, len(entries))
	for _, pd := range entries {
		if d, ok := completeDay(pd); ok {
			days = append(days, d)
		}
	}

	return Plan{
		Title:       *p.Title,
		Description: *p.Description,
		Rationale:   *p.Rationale,
		Days:        days,
	}, true
}

// Assemble returns a plan only when the snapshot reconciles to exactly
// DaysPerPlan complete days.
func Assemble(p PartialPlan) (Plan, bool) {
	plan, ok := Reconcile(p)
	if !ok || !plan.IsComplete() {
		return Plan{}, false
	}
	return plan, true
}

func completeDay(pd PartialDayRoutine) (DayRoutine, bool) {
	if pd.Title == nil || pd.Subtitle == nil || pd.Workout == nil || pd.MealPlan == nil || pd.WellnessTip == nil {
		return DayRoutine{}, false
	}

	workout, ok := completeWorkout(*pd.Workout)
	if !ok {
		return DayRoutine{}, false
	}
	meals, ok := completeMealPlan(*pd.MealPlan)
	if !ok {
		return DayRoutine{}, false
	}

	tip := ""
	if pd.WellnessTip.Tip != nil {
		tip = *pd.WellnessTip.Tip
	}

	return DayRoutine{
		Title:       *pd.Title,
		Subtitle:    *pd.Subtitle,
		Workout:     workout,
		MealPlan:    meals,
		WellnessTip: WellnessTip{Tip: tip},
	}, true
}

func completeWorkout(pw PartialWorkout) (Workout, bool) {
	if len(pw.Exercises) == 0 {
		return Workout{}, false
	}

	exercises := make([]Exercise, 0, len(pw.Exercises))
	for _, pe := range pw.Exercises {
		e, ok := completeExercise(pe)
		if !ok {
			return Workout{}, false
		}
		exercises = append(exercises, e)
	}

	focus := FocusFullBody
	if pw.FocusArea != nil {
		if parsed, ok := ParseFocusArea(*pw.FocusArea); ok {
			focus = parsed
		}
	}

	return Workout{FocusArea: focus, Exercises: exercises}, true
}

func completeExercise(pe PartialExercise) (Exercise, bool) {
	if pe.Name == nil || *pe.Name == "" || pe.Sets == nil || pe.Reps == nil {
		return Exercise{}, false
	}
	if *pe.Sets <= 0 || *pe.Reps <= 0 {
		return Exercise{}, false
	}
	return Exercise{
		Name:        *pe.Name,
		Sets:        *pe.Sets,
		Reps:        *pe.Reps,
		Description: copyPtr(pe.Description),
	}, true
}

func completeMealPlan(pm PartialMealPlan) (MealPlan, bool) {
	if len(pm.Meals) == 0 {
		return MealPlan{}, false
	}

	meals := make([]Meal, 0, len(pm.Meals))
	for _, m := range pm.Meals {
		meal, ok := completeMeal(m)
		if !ok {
			return MealPlan{}, false
		}
		meals = append(meals, meal)
	}
	return MealPlan{Meals: meals}, true
}

func completeMeal(pm PartialMeal) (Meal, bool) {
	if pm.Name == nil || pm.Description == nil {
		return Meal{}, false
	}
	if pm.Calories != nil && *pm.Calories < 0 {
		return Meal{}, false
	}
	return Meal{
		Name:        *pm.Name,
		Description: *pm.Description,
		Calories:    copyPtr(pm.Calories),
	}, true
}
