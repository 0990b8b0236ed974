// Package redact removes credentials and other sensitive fragments from
// strings before they are logged. Connection strings for the history store,
// Redis and Kafka often end up in error messages; so do bearer tokens.
package redact

import "regexp"

// Placeholders written in place of redacted fragments
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedStackPlaceholder      = "[STACK_TRACE_REDACTED]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules are applied in order; earlier rules see the original text.
var rules = []rule{
	{
		// Goroutine dumps recorded for panicking task bodies
		pattern:     regexp.MustCompile(`goroutine \d+ \[[^\]]*\]:[\s\S]*`),
		replacement: RedactedStackPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		replacement: RedactedJWTPlaceholder,
	},
	{
		// user:password@ in URLs such as postgres://, redis:// or sasl brokers
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://)[^/\s:@]*(:[^/\s@]*)?@`),
		replacement: "${1}" + RedactedCredentialPlaceholder + "@",
	},
	{
		// password=..., secret: ..., jwt_secret=..., api_key=...
		pattern:     regexp.MustCompile(`(?i)\b(\w*(?:password|passwd|pwd|secret|token|api[_-]?key))(\s*[=:]\s*)['"]?[^'"&\s]+['"]?`),
		replacement: "${1}${2}" + RedactionPlaceholder,
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
