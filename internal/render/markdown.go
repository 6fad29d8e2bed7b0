// Package render turns plans into text formats for the bot, the CLI and
// exported files.
package render

import (
	"fmt"
	"strings"

	"ai-fitness-planner/internal/fitness"
)

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// EscapeMarkdown escapes the characters Telegram's legacy Markdown treats
// as markup.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Markdown renders the whole plan.
func Markdown(p fitness.Plan) string {
	return strings.Join(MarkdownParts(p), "\n")
}

// MarkdownParts renders the plan header and each day as separate parts, so
// callers with message size limits can send them one by one.
func MarkdownParts(p fitness.Plan) []string {
	parts := make([]string, 0, len(p.Days)+1)
	parts = append(parts, markdownHeader(p))
	for i, d := range p.Days {
		parts = append(parts, MarkdownDay(i+1, d))
	}
	return parts
}

func markdownHeader(p fitness.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏋️ *%s*\n\n", EscapeMarkdown(p.Title))
	if p.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", EscapeMarkdown(p.Description))
	}
	if p.Rationale != "" {
		fmt.Fprintf(&b, "_%s_\n\n", EscapeMarkdown(p.Rationale))
	}
	fmt.Fprintf(&b, "📋 %d days, %d exercises, %d meals\n", len(p.Days), p.TotalExercises(), p.TotalMeals())
	return b.String()
}

// MarkdownDay renders one day routine.
func MarkdownDay(n int, d fitness.DayRoutine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 *Day %d: %s*\n", n, EscapeMarkdown(d.Title))
	if d.Subtitle != "" {
		fmt.Fprintf(&b, "%s\n", EscapeMarkdown(d.Subtitle))
	}

	fmt.Fprintf(&b, "\n💪 *Workout* (%s)\n", d.Workout.FocusArea)
	for _, ex := range d.Workout.Exercises {
		fmt.Fprintf(&b, "• %s: %d x %d\n", EscapeMarkdown(ex.Name), ex.Sets, ex.Reps)
		if ex.Description != nil && *ex.Description != "" {
			fmt.Fprintf(&b, "  _%s_\n", EscapeMarkdown(*ex.Description))
		}
	}

	b.WriteString("\n🥗 *Meals*")
	if total := d.MealPlan.TotalCalories(); total > 0 {
		fmt.Fprintf(&b, " (%d kcal)", total)
	}
	b.WriteString("\n")
	for _, m := range d.MealPlan.Meals {
		fmt.Fprintf(&b, "• *%s*: %s", EscapeMarkdown(m.Name), EscapeMarkdown(m.Description))
		if m.Calories != nil {
			fmt.Fprintf(&b, " (%d kcal)", *m.Calories)
		}
		b.WriteString("\n")
	}

	if d.WellnessTip.Tip != "" {
		fmt.Fprintf(&b, "\n🧘 %s\n", EscapeMarkdown(d.WellnessTip.Tip))
	}
	return b.String()
}
