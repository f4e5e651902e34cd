// Package analysis defines the meal nutrition analysis domain: the photo
// submitted for a meal, the feedback produced for it, the weekly insight
// built from a week of feedback, and the Analyzer interface implemented by
// LLM adapters such as the Gemini platform package.
package analysis
