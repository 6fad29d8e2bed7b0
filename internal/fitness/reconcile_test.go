package fitness_test

import (
	"testing"

	"ai-fitness-planner/internal/fitness"
	"ai-fitness-planner/internal/fitness/fitnesstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestReconcileCompleteWeek(t *testing.T) {
	week := fitnesstest.Week()

	plan, ok := fitness.Assemble(fitness.FromPlan(week))
	require.True(t, ok)
	assert.Equal(t, week, plan)
	assert.NoError(t, fitness.Validate(plan))
}

func TestReconcileRequiresHeader(t *testing.T) {
	partial := fitness.FromPlan(fitnesstest.Week())
	partial.Rationale = nil

	_, ok := fitness.Reconcile(partial)
	assert.False(t, ok)

	partial = fitness.FromPlan(fitnesstest.Week())
	partial.Days = nil
	_, ok = fitness.Reconcile(partial)
	assert.False(t, ok)
}

func TestReconcileDefaultsMissingFocusArea(t *testing.T) {
	partial := fitness.FromPlan(fitnesstest.Week())
	partial.Days[0].Workout.FocusArea = nil
	partial.Days[1].Workout.FocusArea = str("underwater basket weaving")
	partial.Days[2].Workout.FocusArea = str("Full Body")

	plan, ok := fitness.Reconcile(partial)
	require.True(t, ok)
	require.Len(t, plan.Days, 7)
	assert.Equal(t, fitness.FocusFullBody, plan.Days[0].Workout.FocusArea)
	assert.Equal(t, fitness.FocusFullBody, plan.Days[1].Workout.FocusArea)
	assert.Equal(t, fitness.FocusFullBody, plan.Days[2].Workout.FocusArea)
	assert.Equal(t, fitness.FocusChest, plan.Days[3].Workout.FocusArea)
}

func TestReconcileEmptyWellnessTip(t *testing.T) {
	partial := fitness.FromPlan(fitnesstest.Week())
	partial.Days[5].WellnessTip = &fitness.PartialWellnessTip{}

	plan, ok := fitness.Assemble(partial)
	require.True(t, ok)
	assert.Equal(t, "", plan.Days[5].WellnessTip.Tip)
}

func TestReconcileDropsIncompleteDay(t *testing.T) {
	partial := fitness.FromPlan(fitnesstest.Week())
	partial.Days[3].WellnessTip = nil

	plan, ok := fitness.Reconcile(partial)
	require.True(t, ok)
	require.Len(t, plan.Days, 6)
	for _, d := range plan.Days {
		assert.NotEqual(t, "Day 4", d.Title)
	}

	_, ok = fitness.Assemble(partial)
	assert.False(t, ok, "six days must never assemble into a plan")
}

func TestReconcileItemChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *fitness.PartialPlan)
	}{
		{"exercise without name", func(p *fitness.PartialPlan) { p.Days[0].Workout.Exercises[0].Name = str("") }},
		{"exercise without sets", func(p *fitness.PartialPlan) { p.Days[0].Workout.Exercises[0].Sets = nil }},
		{"zero reps", func(p *fitness.PartialPlan) { zero := 0; p.Days[0].Workout.Exercises[1].Reps = &zero }},
		{"no exercises", func(p *fitness.PartialPlan) { p.Days[0].Workout.Exercises = nil }},
		{"meal without description", func(p *fitness.PartialPlan) { p.Days[0].MealPlan.Meals[2].Description = nil }},
		{"negative calories", func(p *fitness.PartialPlan) { neg := -5; p.Days[0].MealPlan.Meals[0].Calories = &neg }},
		{"no meals", func(p *fitness.PartialPlan) { p.Days[0].MealPlan.Meals = []fitness.PartialMeal{} }},
		{"missing subtitle", func(p *fitness.PartialPlan) { p.Days[0].Subtitle = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partial := fitness.FromPlan(fitnesstest.Week())
			tt.mutate(&partial)

			plan, ok := fitness.Reconcile(partial)
			require.True(t, ok)
			assert.Len(t, plan.Days, 6)
			assert.Equal(t, "Day 2", plan.Days[0].Title)
		})
	}
}

func TestReconcileCapsAtSevenDays(t *testing.T) {
	partial := fitness.FromPlan(fitnesstest.Week())
	partial.Days = append(partial.Days, partial.Days[0])

	plan, ok := fitness.Assemble(partial)
	require.True(t, ok)
	assert.Len(t, plan.Days, 7)
	assert.Equal(t, "Day 7", plan.Days[6].Title)
}

func TestReconcileIsIdempotent(t *testing.T) {
	snapshots := []fitness.PartialPlan{
		{},
		{Title: str("Only a title")},
		fitness.FromPlan(fitness.ExamplePlan()),
		fitness.FromPlan(fitness.DemoPlan()),
		fitness.FromPlan(fitnesstest.Week()),
	}
	broken := fitness.FromPlan(fitnesstest.Week())
	broken.Days[3].WellnessTip = nil
	broken.Days[0].Workout.FocusArea = nil
	snapshots = append(snapshots, broken)

	for i, snap := range snapshots {
		first, ok1 := fitness.Reconcile(snap)
		again, ok2 := fitness.Reconcile(snap)
		assert.Equal(t, ok1, ok2, "snapshot %d", i)
		assert.Equal(t, first, again, "snapshot %d", i)

		if !ok1 {
			continue
		}
		replayed, ok := fitness.Reconcile(fitness.FromPlan(first))
		require.True(t, ok, "snapshot %d", i)
		assert.Equal(t, first, replayed, "snapshot %d", i)

		assert.LessOrEqual(t, len(first.Days), fitness.DaysPerPlan)
		assert.NoError(t, fitness.ValidateShape(first), "snapshot %d", i)
	}
}
