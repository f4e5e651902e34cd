package analysis

import "errors"

// Common errors returned by analyzers
var (
	// ErrInvalidInput is returned when a request is missing required data
	ErrInvalidInput = errors.New("invalid analysis input")

	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidConfig is returned when the analyzer configuration is invalid
	ErrInvalidConfig = errors.New("invalid analyzer configuration")
)
