package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/fitness/fitnesstest"
)

func TestMarkdown(t *testing.T) {
	plan := fitness.ExamplePlan()
	out := Markdown(plan)

	assert.Contains(t, out, "🏋️ *7-Day Arms & Belly Fat Blast*")
	assert.Contains(t, out, "📅 *Day 1: Strength Starter*")
	assert.Contains(t, out, "💪 *Workout* (full-body)")
	assert.Contains(t, out, "• Squat: 3 x 12")
	assert.Contains(t, out, "_Barbell or bodyweight, good form._")
	assert.Contains(t, out, "🥗 *Meals* (1000 kcal)")
	assert.Contains(t, out, "• *Lunch*: Grilled tandoori chicken salad with avocado. (350 kcal)")
	assert.Contains(t, out, "🧘 Hydrate early.")
}

func TestMarkdownParts(t *testing.T) {
	parts := MarkdownParts(fitnesstest.Week())
	require.Len(t, parts, 8)
	assert.True(t, strings.HasPrefix(parts[7], "📅 *Day 7: Day 7*"), parts[7])
	assert.Contains(t, parts[0], "📋 7 days, 14 exercises, 21 meals")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `push\_ups \*fast\* \[x]`, EscapeMarkdown("push_ups *fast* [x]"))
}

func TestYAML(t *testing.T) {
	plan := fitnesstest.Week()
	data, err := YAML(plan)
	require.NoError(t, err)
	assert.Contains(t, string(data), "title: Test Week")
	assert.Contains(t, string(data), "focusArea: arms")

	var decoded fitness.Plan
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, plan, decoded)
}

func TestHTML(t *testing.T) {
	plan := fitness.ExamplePlan()
	plan.Days[0].WellnessTip.Tip = "<script>alert(1)</script>"

	data, err := HTML(plan)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "7-Day Arms & Belly Fat Blast", doc.Find("h1.plan-title").Text())
	assert.Equal(t, 1, doc.Find("section.day").Length())
	assert.Equal(t, "Day 1: Strength Starter", doc.Find("#day-1 h2").Text())
	assert.Equal(t, "full-body", doc.Find("#day-1 .focus").Text())
	assert.Equal(t, 5, doc.Find("#day-1 li.exercise").Length())
	assert.Equal(t, "Controlled descent.", doc.Find("#day-1 li.exercise").Eq(1).Find(".note").Text())
	assert.Equal(t, "1000 kcal", doc.Find("#day-1 .calories").Text())
	assert.Contains(t, doc.Find("#day-1 li.meal").Eq(0).Text(), "(250 kcal)")

	assert.Equal(t, 0, doc.Find("script").Length(), "model text must be escaped")
	assert.Equal(t, "<script>alert(1)</script>", doc.Find("#day-1 p.tip").Text())
}

func TestRender(t *testing.T) {
	plan := fitnesstest.Week()
	for _, name := range []string{"md", "yaml", ".html", "json"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		data, err := Render(plan, f)
		require.NoError(t, err, name)
		assert.Contains(t, string(data), "Test Week", name)
	}

	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}
