package generator

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"ai-fitness-planner/internal/fitness"
)

//go:embed prompts/instructions.md
var baseInstructions string

//go:embed prompts/plan_prompt.md
var planPrompt string

// BaseInstructions returns the default system instructions.
func BaseInstructions() string {
	return strings.TrimSpace(baseInstructions)
}

type planPromptData struct {
	Input        string
	Days         int
	MaxExercises int
	Meals        int
	FocusAreas   []string
}

func buildPlanPrompt(input string) (string, error) {
	focus := make([]string, len(fitness.FocusAreas))
	for i, f := range fitness.FocusAreas {
		focus[i] = string(f)
	}

	tmpl, err := template.New("plan").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(planPrompt)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, planPromptData{
		Input:        strings.TrimSpace(input),
		Days:         fitness.DaysPerPlan,
		MaxExercises: 4,
		Meals:        3,
		FocusAreas:   focus,
	}); err != nil {
		return "", err
	}

	return buf.String(), nil
}
