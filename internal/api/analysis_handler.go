package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/platewise-api/internal/analysis"
	"github.com/phrazzld/platewise-api/internal/api/shared"
)

// DefaultSubmitTimeout bounds how long a request waits for queue space
const DefaultSubmitTimeout = 5 * time.Second

// AnalysisService submits analysis workflows
type AnalysisService interface {
	SubmitMealAnalysis(ctx context.Context, photo analysis.MealPhoto) (uuid.UUID, error)
	SubmitBatchAnalysis(ctx context.Context, photos []analysis.MealPhoto) (uuid.UUID, error)
	SubmitWeeklyInsight(ctx context.Context, req analysis.WeekRequest) (uuid.UUID, error)
}

// AnalysisHandler accepts analysis requests and answers 202 with the task
// to poll.
type AnalysisHandler struct {
	service       AnalysisService
	submitTimeout time.Duration
	logger        *slog.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler. A non-positive
// submitTimeout uses DefaultSubmitTimeout.
func NewAnalysisHandler(service AnalysisService, submitTimeout time.Duration, logger *slog.Logger) *AnalysisHandler {
	if submitTimeout <= 0 {
		submitTimeout = DefaultSubmitTimeout
	}
	return &AnalysisHandler{
		service:       service,
		submitTimeout: submitTimeout,
		logger:        logger.With("component", "analysis_handler"),
	}
}

// SubmitMealAnalysis handles POST /api/meals/analyses
func (h *AnalysisHandler) SubmitMealAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysis.MealPhoto
	if !decodeAndValidate(w, r, &req) {
		return
	}

	h.accept(w, r, func(ctx context.Context) (uuid.UUID, error) {
		return h.service.SubmitMealAnalysis(ctx, req)
	})
}

// SubmitBatchAnalysis handles POST /api/meals/analyses/batch
func (h *AnalysisHandler) SubmitBatchAnalysis(w http.ResponseWriter, r *http.Request) {
	var req BatchAnalysisRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	h.accept(w, r, func(ctx context.Context) (uuid.UUID, error) {
		return h.service.SubmitBatchAnalysis(ctx, req.Meals)
	})
}

// SubmitWeeklyInsight handles POST /api/insights/weekly
func (h *AnalysisHandler) SubmitWeeklyInsight(w http.ResponseWriter, r *http.Request) {
	var req analysis.WeekRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	h.accept(w, r, func(ctx context.Context) (uuid.UUID, error) {
		return h.service.SubmitWeeklyInsight(ctx, req)
	})
}

// accept runs submit under the submit timeout and writes the 202 response
func (h *AnalysisHandler) accept(
	w http.ResponseWriter,
	r *http.Request,
	submit func(ctx context.Context) (uuid.UUID, error),
) {
	ctx, cancel := context.WithTimeout(r.Context(), h.submitTimeout)
	defer cancel()

	id, err := submit(ctx)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	statusURL := taskStatusURL(id)
	w.Header().Set("Location", statusURL)
	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{
		TaskID:    id,
		StatusURL: statusURL,
	})

	h.logger.DebugContext(r.Context(), "task accepted",
		"task_id", id,
		"path", r.URL.Path,
		"trace_id", shared.GetTraceID(r.Context()))
}
