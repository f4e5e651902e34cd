// Package gemini provides an implementation of the analysis.Analyzer interface
// that uses Google's Gemini API to turn meal photos into nutrition feedback and
// a week of feedback into a weekly insight.
//
// This package is an infrastructure adapter: it builds prompts from templates,
// sends the meal photo as file data alongside them, asks the model for JSON,
// and validates the decoded response before converting it to domain types.
// It makes a single call per request; retrying failed analyses is the job of
// the task processor that runs them.
package gemini
