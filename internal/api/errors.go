package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/platewise-api/internal/analysis"
	"github.com/phrazzld/platewise-api/internal/api/shared"
	"github.com/phrazzld/platewise-api/internal/task"
	"github.com/phrazzld/platewise-api/internal/workflow"
)

// API-level sentinel errors
var (
	// ErrTaskNotFound indicates that no record exists for the requested ID
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotCancellable indicates the task is pending or already finished
	ErrTaskNotCancellable = errors.New("task cannot be cancelled in its current status")

	// ErrInvalidID indicates a malformed path identifier
	ErrInvalidID = errors.New("invalid identifier")
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	// Not found errors
	case errors.Is(err, ErrTaskNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, ErrTaskNotCancellable):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, shared.ErrEmptyBody),
		errors.Is(err, shared.ErrInvalidJSON),
		errors.Is(err, analysis.ErrInvalidInput),
		errors.Is(err, workflow.ErrEmptyBatch),
		errors.Is(err, workflow.ErrBatchTooLarge),
		errors.Is(err, task.ErrInvalidPriority),
		errors.Is(err, task.ErrInvalidRetryPolicy),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	// The queue stayed full for the whole submit window, or the processor is
	// shutting down
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, task.ErrProcessorStopped):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, ErrTaskNotCancellable):
		return "Task cannot be cancelled in its current status"
	case errors.Is(err, ErrInvalidID):
		return "Invalid task ID"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, shared.ErrInvalidJSON):
		return "Invalid request format"
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)
	case errors.Is(err, workflow.ErrEmptyBatch):
		return "Batch must contain at least one meal"
	case errors.Is(err, workflow.ErrBatchTooLarge):
		return fmt.Sprintf("Batch must contain at most %d meals", workflow.MaxBatchSize)
	case errors.Is(err, analysis.ErrInvalidInput):
		return "Invalid meal data"
	case errors.Is(err, context.DeadlineExceeded):
		return "Task queue is full, try again later"
	case errors.Is(err, task.ErrProcessorStopped):
		return "Service is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}

	fe := validationErrs[0]
	field := fe.Field()
	if ns := fe.Namespace(); ns != "" {
		// drop the top-level struct name, keep nested paths like Meals[0].PhotoURI
		if i := strings.Index(ns, "."); i >= 0 {
			field = ns[i+1:]
		}
	}
	return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uri", "url":
		return "invalid URI"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes an error response derived from err. defaultMsg
// replaces the generic message for errors without a specific mapping.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}
