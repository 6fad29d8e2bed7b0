package fitness

// ExamplePlan returns the sample plan used for previews and tests. Only its
// first day is filled in, so it is not a complete plan.
func ExamplePlan() Plan {
	return Plan{
		Title:       "7-Day Arms & Belly Fat Blast",
		Description: "Gym-based program focused on trimming belly fat and building lean arm muscle, paired with an Indian non-veg meal plan for steady energy and recovery.",
		Rationale:   "Combines resistance training and HIIT for fat reduction, focuses on arms/core, and pairs workouts with high protein, fiber-rich meals. Wellness tips reinforce hydration, sleep and consistency.",
		Days: []DayRoutine{
			{
				Title:    "Strength Starter",
				Subtitle: "Full-body muscle activation",
				Workout: Workout{
					FocusArea: FocusFullBody,
					Exercises: []Exercise{
						{Name: "Squat", Sets: 3, Reps: 12, Description: ptr("Barbell or bodyweight, good form.")},
						{Name: "Push-ups", Sets: 3, Reps: 10, Description: ptr("Controlled descent.")},
						{Name: "Dumbbell Row", Sets: 3, Reps: 12, Description: ptr("Each arm, moderate weight.")},
						{Name: "Plank", Sets: 3, Reps: 1, Description: ptr("Hold 30s each.")},
						{Name: "Lunges", Sets: 3, Reps: 12, Description: ptr("Each leg, add weights optional.")},
					},
				},
				MealPlan: MealPlan{
					Meals: []Meal{
						{Name: "Breakfast", Description: "Curd with papaya and basil seeds.", Calories: ptr(250)},
						{Name: "Lunch", Description: "Grilled tandoori chicken salad with avocado.", Calories: ptr(350)},
						{Name: "Dinner", Description: "Steamed rohu fish, sautéed lauki, bajra khichdi.", Calories: ptr(400)},
					},
				},
				WellnessTip: WellnessTip{Tip: "Hydrate early. Drink water before breakfast to boost metabolism."},
			},
		},
	}
}

// DemoPlan returns the fixed two-day plan published by the demo path.
func DemoPlan() Plan {
	return Plan{
		Title:       "Demo Fitness Plan",
		Description: "A quick sample plan to preview the app without calling the model.",
		Rationale:   "Mixes an easy cardio day with a strength day so every section of a plan is populated.",
		Days: []DayRoutine{
			{
				Title:    "Day 1: Cardio Start",
				Subtitle: "Light cardio to build your base",
				Workout: Workout{
					FocusArea: FocusCardio,
					Exercises: []Exercise{
						{Name: "Brisk Walk", Sets: 1, Reps: 1, Description: ptr("20 minutes at a steady pace.")},
						{Name: "Jumping Jacks", Sets: 3, Reps: 20},
					},
				},
				MealPlan: MealPlan{
					Meals: []Meal{
						{Name: "Breakfast", Description: "Oatmeal with berries.", Calories: ptr(300)},
						{Name: "Lunch", Description: "Grilled chicken salad.", Calories: ptr(400)},
						{Name: "Dinner", Description: "Baked salmon with vegetables.", Calories: ptr(500)},
					},
				},
				WellnessTip: WellnessTip{Tip: "Drink a glass of water as soon as you wake up."},
			},
			{
				Title:    "Day 2: Strength Building",
				Subtitle: "Bodyweight strength basics",
				Workout: Workout{
					FocusArea: FocusFullBody,
					Exercises: []Exercise{
						{Name: "Push-ups", Sets: 3, Reps: 10},
						{Name: "Squats", Sets: 3, Reps: 15},
						{Name: "Plank", Sets: 3, Reps: 1, Description: ptr("Hold for 30 seconds.")},
					},
				},
				MealPlan: MealPlan{
					Meals: []Meal{
						{Name: "Breakfast", Description: "Greek yogurt with granola.", Calories: ptr(350)},
						{Name: "Lunch", Description: "Turkey wrap with spinach.", Calories: ptr(450)},
						{Name: "Dinner", Description: "Lean beef stir fry with rice.", Calories: ptr(600)},
					},
				},
				WellnessTip: WellnessTip{Tip: "Aim for seven to eight hours of sleep to help your muscles recover."},
			},
		},
	}
}
