package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MealPhoto identifies the photo of one meal to be analyzed
type MealPhoto struct {
	MealID   uuid.UUID `json:"meal_id" validate:"required"`
	UserID   uuid.UUID `json:"user_id" validate:"required"`
	PhotoURI string    `json:"photo_uri" validate:"required,uri"`
	MIMEType string    `json:"mime_type" validate:"required,oneof=image/jpeg image/png image/webp image/heic"`

	// Description is optional free text the user typed alongside the photo
	Description string `json:"description,omitempty" validate:"max=1000"`
}

// Validate checks the fields the analyzers rely on
func (p MealPhoto) Validate() error {
	if p.MealID == uuid.Nil {
		return fmt.Errorf("%w: meal ID cannot be empty", ErrInvalidInput)
	}
	if p.PhotoURI == "" {
		return fmt.Errorf("%w: photo URI cannot be empty", ErrInvalidInput)
	}
	if p.MIMEType == "" {
		return fmt.Errorf("%w: MIME type cannot be empty", ErrInvalidInput)
	}
	return nil
}

// FoodItem is one recognised component of a meal
type FoodItem struct {
	Name         string  `json:"name"`
	PortionGrams float64 `json:"portion_grams"`
	Calories     float64 `json:"calories"`
}

// Macros holds macronutrient totals in grams
type Macros struct {
	ProteinGrams float64 `json:"protein_g"`
	CarbsGrams   float64 `json:"carbs_g"`
	FatGrams     float64 `json:"fat_g"`
}

// MealFeedback is the nutrition feedback produced for one meal
type MealFeedback struct {
	MealID        uuid.UUID  `json:"meal_id"`
	Items         []FoodItem `json:"items"`
	TotalCalories float64    `json:"total_calories"`
	Macros        Macros     `json:"macros"`

	// Score rates the meal's balance from 0 to 100
	Score       int      `json:"score"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// WeekRequest asks for an insight over one user's week of meals
type WeekRequest struct {
	UserID    uuid.UUID      `json:"user_id" validate:"required"`
	WeekStart time.Time      `json:"week_start" validate:"required"`
	Meals     []MealFeedback `json:"meals" validate:"required,min=1,dive"`
}

// Validate checks the fields the analyzers rely on
func (r WeekRequest) Validate() error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("%w: user ID cannot be empty", ErrInvalidInput)
	}
	if len(r.Meals) == 0 {
		return fmt.Errorf("%w: at least one meal is required", ErrInvalidInput)
	}
	return nil
}

// AverageScore returns the mean meal score of the week
func (r WeekRequest) AverageScore() float64 {
	if len(r.Meals) == 0 {
		return 0
	}
	total := 0
	for _, m := range r.Meals {
		total += m.Score
	}
	return float64(total) / float64(len(r.Meals))
}

// WeeklyInsight summarizes a user's week of meals
type WeeklyInsight struct {
	UserID          uuid.UUID `json:"user_id"`
	WeekStart       time.Time `json:"week_start"`
	MealCount       int       `json:"meal_count"`
	AverageScore    float64   `json:"average_score"`
	Highlights      []string  `json:"highlights"`
	Recommendations []string  `json:"recommendations"`
}

// Analyzer produces nutrition feedback. Implementations call external
// models and may be slow; they are run from background tasks.
type Analyzer interface {
	// AnalyzeMeal produces feedback for a single meal photo
	AnalyzeMeal(ctx context.Context, photo MealPhoto) (*MealFeedback, error)

	// SummarizeWeek produces an insight over a week of meal feedback
	SummarizeWeek(ctx context.Context, req WeekRequest) (*WeeklyInsight, error)
}
