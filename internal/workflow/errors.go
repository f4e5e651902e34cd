package workflow

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the workflow service
var (
	// ErrEmptyBatch indicates a batch request without any photos
	ErrEmptyBatch = errors.New("batch contains no meal photos")

	// ErrBatchTooLarge indicates a batch request above MaxBatchSize
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrBatchFailed is the task error when every item of a batch failed
	ErrBatchFailed = errors.New("every analysis in the batch failed")
)

// SubmitError wraps a failure to hand a workflow to the task processor.
type SubmitError struct {
	// Workflow is the name of the task that could not be submitted
	Workflow string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for SubmitError.
func (e *SubmitError) Error() string {
	return fmt.Sprintf("failed to submit %s: %v", e.Workflow, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *SubmitError) Unwrap() error {
	return e.Err
}
