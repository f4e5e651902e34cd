// Package redact strips credentials, signed URLs, file paths and other
// sensitive fragments from strings before they are logged or returned to
// clients. Task errors frequently embed upstream API messages and photo
// locations, so everything that leaves the process through an error string
// should pass through String or Error first.
package redact

import "regexp"

// Placeholders substituted for redacted fragments
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedEmailPlaceholder      = "[REDACTED_EMAIL]"
	RedactedStackPlaceholder      = "[STACK_TRACE_REDACTED]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// rules are applied in order. URLs are collapsed to scheme and host before
// the path rule runs so that object paths and signatures never survive.
var rules = []rule{
	{
		// Google API keys as issued for the Gemini API
		pattern:     regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
		replacement: RedactedKeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/=]{8,}`),
		replacement: "Bearer " + RedactedCredentialPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`\b(https?|gs)://([^/\s"'?]+)[^\s"']*`),
		replacement: "$1://$2/" + RedactionPlaceholder,
	},
	{
		pattern: regexp.MustCompile(
			`(?i)(api[_-]?key|x-goog-api-key|token|secret|password|signature)(['"\s:=]+)[A-Za-z0-9_\-.~+/%]{6,}`,
		),
		replacement: "$1$2" + RedactedKeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`),
		replacement: RedactedStackPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		replacement: RedactedEmailPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(/[\w.-]+){2,}`),
		replacement: RedactedPathPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`[A-Za-z]:\\[^\\\s]+(\\[^\\\s]+)+`),
		replacement: RedactedPathPlaceholder,
	},
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
