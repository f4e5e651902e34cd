package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/platewise-api/internal/analysis"
)

// Common request/response structures. Single meal and weekly requests decode
// straight into analysis.MealPhoto and analysis.WeekRequest.

// BatchAnalysisRequest defines the payload for submitting several meal photos.
type BatchAnalysisRequest struct {
	Meals []analysis.MealPhoto `json:"meals" validate:"required,min=1,max=50,dive"`
}

// MaxCleanupAgeSeconds caps max_age_seconds at one year
const MaxCleanupAgeSeconds = 365 * 24 * 60 * 60

// CleanupRequest defines the payload for purging finished tasks.
type CleanupRequest struct {
	// MaxAgeSeconds defaults to the configured completed TTL when omitted
	MaxAgeSeconds *int `json:"max_age_seconds,omitempty" validate:"omitempty,gte=0,lte=31536000"`
}

// TaskAcceptedResponse is returned when work has been queued.
type TaskAcceptedResponse struct {
	TaskID    uuid.UUID `json:"task_id"`
	StatusURL string    `json:"status_url"`
}

// CancelResponse is returned when a task was cancelled.
type CancelResponse struct {
	TaskID    uuid.UUID `json:"task_id"`
	Cancelled bool      `json:"cancelled"`
}

// CleanupResponse reports how many finished tasks were purged.
type CleanupResponse struct {
	Removed       int `json:"removed"`
	MaxAgeSeconds int `json:"max_age_seconds"`
}
