// Package api exposes the task processor and the analysis workflows over
// HTTP. Submission endpoints answer 202 Accepted with the ID and status URL
// of the queued task; clients poll the task endpoints for the outcome.
// Errors are mapped to status codes here and only sanitized messages reach
// the client.
package api
