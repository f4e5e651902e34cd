package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/platewise-api/internal/api/shared"
	"github.com/phrazzld/platewise-api/internal/redact"
	"github.com/phrazzld/platewise-api/internal/task"
)

// TaskService is the part of the task processor exposed over HTTP
type TaskService interface {
	Status(id uuid.UUID) (task.Snapshot, bool)
	Cancel(id uuid.UUID) bool
	Stats() task.Stats
	Cleanup(maxAge time.Duration) int
}

// TaskHandler serves task status, cancellation, stats and cleanup.
type TaskHandler struct {
	tasks         TaskService
	defaultMaxAge time.Duration
	logger        *slog.Logger
}

// NewTaskHandler creates a new TaskHandler. defaultMaxAge is used by cleanup
// requests that do not name an age.
func NewTaskHandler(tasks TaskService, defaultMaxAge time.Duration, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:         tasks,
		defaultMaxAge: defaultMaxAge,
		logger:        logger.With("component", "task_handler"),
	}
}

// GetTask handles GET /api/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	snap, ok := h.tasks.Status(id)
	if !ok {
		HandleAPIError(w, r, ErrTaskNotFound, "")
		return
	}

	// task errors often quote upstream responses
	snap.Error = redact.String(snap.Error)
	shared.RespondWithJSON(w, r, http.StatusOK, snap)
}

// CancelTask handles DELETE /api/tasks/{id}. Only running or retrying tasks
// can be cancelled.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if h.tasks.Cancel(id) {
		h.logger.InfoContext(r.Context(), "task cancelled via API",
			"task_id", id,
			"trace_id", shared.GetTraceID(r.Context()))
		shared.RespondWithJSON(w, r, http.StatusOK, CancelResponse{TaskID: id, Cancelled: true})
		return
	}

	if _, ok := h.tasks.Status(id); ok {
		HandleAPIError(w, r, ErrTaskNotCancellable, "")
		return
	}
	HandleAPIError(w, r, ErrTaskNotFound, "")
}

// GetStats handles GET /api/tasks/stats
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.tasks.Stats())
}

// RequireRunning rejects requests with 503 while the processor is stopped.
// Submissions accepted then would sit in the queue with nobody to run them.
func (h *TaskHandler) RequireRunning(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.tasks.Stats().Running {
			HandleAPIError(w, r, task.ErrProcessorStopped, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup handles POST /api/maintenance/cleanup. An empty body uses the
// default age.
func (h *TaskHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, shared.ErrEmptyBody) {
		HandleAPIError(w, r, err, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	maxAge := h.defaultMaxAge
	if req.MaxAgeSeconds != nil {
		maxAge = time.Duration(*req.MaxAgeSeconds) * time.Second
	}

	removed := h.tasks.Cleanup(maxAge)
	h.logger.InfoContext(r.Context(), "cleanup requested via API",
		"removed", removed,
		"max_age", maxAge)

	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{
		Removed:       removed,
		MaxAgeSeconds: int(maxAge / time.Second),
	})
}
