package fitness

// PartialPlan is the cumulative, partially generated form of a Plan. Every
// field may be absent while the model is still streaming. Values are produced
// fresh for every stream element and must be treated as read-only.
type PartialPlan struct {
	Title       *string             `json:"title,omitempty"`
	Description *string             `json:"description,omitempty"`
	Rationale   *string             `json:"rationale,omitempty"`
	Days        []PartialDayRoutine `json:"days,omitempty"`
}

type PartialDayRoutine struct {
	Title       *string             `json:"title,omitempty"`
	Subtitle    *string             `json:"subtitle,omitempty"`
	Workout     *PartialWorkout     `json:"workout,omitempty"`
	MealPlan    *PartialMealPlan    `json:"mealPlan,omitempty"`
	WellnessTip *PartialWellnessTip `json:"wellnessTip,omitempty"`
}

// PartialWorkout keeps the focus area as raw text; it is only mapped onto a
// FocusArea during reconciliation.
type PartialWorkout struct {
	FocusArea *string           `json:"focusArea,omitempty"`
	Exercises []PartialExercise `json:"exercises,omitempty"`
}

type PartialExercise struct {
	Name        *string `json:"name,omitempty"`
	Sets        *int    `json:"sets,omitempty"`
	Reps        *int    `json:"reps,omitempty"`
	Description *string `json:"description,omitempty"`
}

type PartialMealPlan struct {
	Meals []PartialMeal `json:"meals,omitempty"`
}

type PartialMeal struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Calories    *int    `json:"calories,omitempty"`
}

type PartialWellnessTip struct {
	Tip *string `json:"tip,omitempty"`
}

// DayCount returns how many day entries have started streaming.
func (p PartialPlan) DayCount() int {
	return len(p.Days)
}

// HasTitle reports whether the plan title has started streaming.
func (p PartialPlan) HasTitle() bool {
	return p.Title != nil
}

// FromPlan lifts a complete plan back into its partial form.
func FromPlan(p Plan) PartialPlan {
	out := PartialPlan{
		Title:       ptr(p.Title),
		Description: ptr(p.Description),
		Rationale:   ptr(p.Rationale),
		Days:        make([]PartialDayRoutine, 0, len(p.Days)),
	}
	for _, d := range p.Days {
		w := &PartialWorkout{
			FocusArea: ptr(string(d.Workout.FocusArea)),
			Exercises: make([]PartialExercise, 0, len(d.Workout.Exercises)),
		}
		for _, e := range d.Workout.Exercises {
			w.Exercises = append(w.Exercises, PartialExercise{
				Name:        ptr(e.Name),
				Sets:        ptr(e.Sets),
				Reps:        ptr(e.Reps),
				Description: copyPtr(e.Description),
			})
		}
		mp := &PartialMealPlan{Meals: make([]PartialMeal, 0, len(d.MealPlan.Meals))}
		for _, m := range d.MealPlan.Meals {
			mp.Meals = append(mp.Meals, PartialMeal{
				Name:        ptr(m.Name),
				Description: ptr(m.Description),
				Calories:    copyPtr(m.Calories),
			})
		}
		out.Days = append(out.Days, PartialDayRoutine{
			Title:       ptr(d.Title),
			Subtitle:    ptr(d.Subtitle),
			Workout:     w,
			MealPlan:    mp,
			WellnessTip: &PartialWellnessTip{Tip: ptr(d.WellnessTip.Tip)},
		})
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
