package fitness

import (
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("demo plan has the right shape but not a full week", func(t *testing.T) {
		demo := DemoPlan()
		require.NoError(t, ValidateShape(demo))

		err := Validate(demo)
		require.True(t, IsValidationError(err), "got %v", err)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		var fields validation.Errors
		require.ErrorAs(t, ve.Err, &fields)
		assert.Contains(t, fields, "days")
	})

	t.Run("unknown focus area", func(t *testing.T) {
		p := DemoPlan()
		p.Days[0].Workout.FocusArea = "yoga"
		err := ValidateShape(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be a known focus area")
	})

	t.Run("missing focus area", func(t *testing.T) {
		p := DemoPlan()
		p.Days[0].Workout.FocusArea = ""
		assert.Error(t, ValidateShape(p))
	})

	t.Run("non-positive sets", func(t *testing.T) {
		p := DemoPlan()
		p.Days[1].Workout.Exercises[0].Sets = 0
		assert.Error(t, ValidateShape(p))
	})

	t.Run("negative calories", func(t *testing.T) {
		p := DemoPlan()
		p.Days[0].MealPlan.Meals[0].Calories = ptr(-1)
		assert.Error(t, ValidateShape(p))
	})

	t.Run("empty meal list", func(t *testing.T) {
		p := DemoPlan()
		p.Days[0].MealPlan.Meals = nil
		assert.Error(t, ValidateShape(p))
	})
}

func TestFocusAreaValid(t *testing.T) {
	for _, f := range FocusAreas {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, FocusArea("").Valid())
	assert.False(t, FocusArea("fullBody").Valid(), "only the canonical spelling is valid")
}

func TestParseFocusArea(t *testing.T) {
	tests := map[string]FocusArea{
		"fullBody":  FocusFullBody,
		"Full Body": FocusFullBody,
		"full_body": FocusFullBody,
		"ARMS":      FocusArms,
		" cardio ":  FocusCardio,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, ok := ParseFocusArea(in)
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}

	_, ok := ParseFocusArea("pilates")
	assert.False(t, ok)
}

func TestPlanTotals(t *testing.T) {
	demo := DemoPlan()
	assert.Equal(t, 5, demo.TotalExercises())
	assert.Equal(t, 6, demo.TotalMeals())
	assert.Equal(t, 1200, demo.Days[0].MealPlan.TotalCalories())
}
