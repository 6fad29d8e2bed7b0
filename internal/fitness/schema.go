package fitness

import (
	"ai-fitness-planner/internal/llm"
)

// PlanSchema describes a complete Plan for structured generation. Property
// names match the JSON tags of the partial and complete types.
func PlanSchema() *llm.Schema {
	focus := make([]string, len(FocusAreas))
	for i, f := range FocusAreas {
		focus[i] = string(f)
	}

	str := func(desc string) *llm.Schema {
		return &llm.Schema{Type: llm.TypeString, Description: desc}
	}
	positive := func(desc string) *llm.Schema {
		return &llm.Schema{Type: llm.TypeInteger, Description: desc}
	}

	exercise := &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"name":        str("Exercise name."),
			"sets":        positive("Number of sets, at least 1."),
			"reps":        positive("Repetitions per set, at least 1."),
			"description": {Type: llm.TypeString, Description: "Optional one-line cue.", Nullable: true},
		},
		Required: []string{"name", "sets", "reps"},
	}

	meal := &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"name":        str("Meal name, e.g. Breakfast."),
			"description": str("Brief description of the meal."),
			"calories":    {Type: llm.TypeInteger, Description: "Approximate calories.", Nullable: true},
		},
		Required: []string{"name", "description"},
	}

	day := &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"title":    str("A catchy and unique title for the day."),
			"subtitle": str("Short subtitle for the day."),
			"workout": {
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"focusArea": {Type: llm.TypeString, Enum: focus},
					"exercises": {Type: llm.TypeArray, Items: exercise, MinItems: 1},
				},
				Required: []string{"focusArea", "exercises"},
			},
			"mealPlan": {
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"meals": {Type: llm.TypeArray, Items: meal, MinItems: 1},
				},
				Required: []string{"meals"},
			},
			"wellnessTip": {
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"tip": str("One wellness tip."),
				},
				Required: []string{"tip"},
			},
		},
		Required: []string{"title", "subtitle", "workout", "mealPlan", "wellnessTip"},
	}

	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"title":       str("A motivational name for the plan."),
			"description": str("Short motivational introduction."),
			"rationale":   str("Summary of how the plan addresses the user's fitness goals."),
			"days": {
				Type:        llm.TypeArray,
				Description: "Exactly 7 day routines.",
				Items:       day,
				MinItems:    DaysPerPlan,
				MaxItems:    DaysPerPlan,
			},
		},
		Required: []string{"title", "description", "rationale", "days"},
	}
}
