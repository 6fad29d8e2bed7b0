package telegram

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/generator"
	"ai-fitness-planner/internal/history"
	"ai-fitness-planner/internal/render"
)

func formatProgress(s generator.State) string {
	text := "🏋️ *" + render.EscapeMarkdown(s.ProgressMessage) + "*"
	if s.CompleteDays > 0 {
		text += fmt.Sprintf("\n(%d of %d days ready)", s.CompleteDays, fitness.DaysPerPlan)
	}
	return text
}

// formatOutcome renders the terminal state as one or more messages. The
// first replaces the status message.
func formatOutcome(s generator.State, err error) []string {
	switch {
	case s.Phase == generator.Completed && s.Plan != nil:
		return render.MarkdownParts(*s.Plan)
	case s.Phase == generator.TimedOut:
		return []string{"⌛ *Generation timed out.* Please try again with a shorter request."}
	case s.Phase == generator.Cancelled:
		return []string{"🛑 Generation cancelled."}
	}

	if err == nil {
		err = s.Err
	}
	var incomplete *generator.IncompletePlanError
	var parts []string
	if errors.As(err, &incomplete) {
		parts = append(parts, fmt.Sprintf("⚠️ *Plan incomplete:* only %d of %d days came back complete.",
			incomplete.CompleteDays, fitness.DaysPerPlan))
	} else {
		safeErr := "unknown error"
		if err != nil {
			safeErr = strings.ReplaceAll(err.Error(), "`", "'")
		}
		parts = append(parts, fmt.Sprintf("❌ *Error generating plan:*\n```\n%v\n```", safeErr))
	}

	if raw := strings.TrimSpace(s.RawResponse); raw != "" {
		parts = append(parts, truncate("📝 Raw model response:\n\n"+render.EscapeMarkdown(raw), messageLimit))
	}
	return parts
}

func formatHistory(entries []history.Entry) string {
	if len(entries) == 0 {
		return "📚 No saved plans yet. Send me your goals to create one."
	}
	var sb strings.Builder
	sb.WriteString("📚 *Your recent plans*\n\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "• #%d *%s* (%s)\n", e.ID, render.EscapeMarkdown(e.Plan.Title), e.CreatedAt.Format("2006-01-02"))
	}
	sb.WriteString("\nSend /plan <id> to see one again.")
	return sb.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len("…")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
