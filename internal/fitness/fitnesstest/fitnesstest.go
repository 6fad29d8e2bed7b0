// Package fitnesstest builds plans for tests.
package fitnesstest

import (
	"encoding/json"
	"fmt"

	"ai-fitness-planner/internal/fitness"
)

// Week returns a complete, valid 7-day plan.
func Week() fitness.Plan {
	focus := []fitness.FocusArea{
		fitness.FocusArms, fitness.FocusCore, fitness.FocusLegs, fitness.FocusChest,
		fitness.FocusBack, fitness.FocusCardio, fitness.FocusRecovery,
	}
	calories := 420

	plan := fitness.Plan{
		Title:       "Test Week",
		Description: "A week of balanced training.",
		Rationale:   "Alternates muscle groups and keeps meals simple.",
	}
	for i := 0; i < fitness.DaysPerPlan; i++ {
		plan.Days = append(plan.Days, fitness.DayRoutine{
			Title:    fmt.Sprintf("Day %d", i+1),
			Subtitle: fmt.Sprintf("Focus on %s", focus[i]),
			Workout: fitness.Workout{
				FocusArea: focus[i],
				Exercises: []fitness.Exercise{
					{Name: "Warm-up Jog", Sets: 1, Reps: 1},
					{Name: "Main Lift", Sets: 4, Reps: 8},
				},
			},
			MealPlan: fitness.MealPlan{
				Meals: []fitness.Meal{
					{Name: "Breakfast", Description: "Eggs and toast.", Calories: &calories},
					{Name: "Lunch", Description: "Chicken and rice."},
					{Name: "Dinner", Description: "Fish and greens."},
				},
			},
			WellnessTip: fitness.WellnessTip{Tip: "Stretch before bed."},
		})
	}
	return plan
}

// JSON encodes p the way a model would stream it.
func JSON(p fitness.Plan) string {
	data, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return string(data)
}
