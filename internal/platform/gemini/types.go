package gemini

import "github.com/phrazzld/platewise-api/internal/analysis"

// mealPromptData is passed to the meal prompt template
type mealPromptData struct {
	Description string
}

// weekPromptData is passed to the weekly prompt template
type weekPromptData struct {
	WeekStart    string
	AverageScore float64
	Meals        []analysis.MealFeedback
}

// mealResponseSchema is the JSON structure requested for a meal analysis
type mealResponseSchema struct {
	Items []struct {
		Name         string  `json:"name"`
		PortionGrams float64 `json:"portion_grams"`
		Calories     float64 `json:"calories"`
	} `json:"items"`
	ProteinGrams float64  `json:"protein_g"`
	CarbsGrams   float64  `json:"carbs_g"`
	FatGrams     float64  `json:"fat_g"`
	Score        int      `json:"score"`
	Suggestions  []string `json:"suggestions"`
}

// weekResponseSchema is the JSON structure requested for a weekly insight
type weekResponseSchema struct {
	Highlights      []string `json:"highlights"`
	Recommendations []string `json:"recommendations"`
}
