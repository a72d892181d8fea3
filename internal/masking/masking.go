// Package masking redacts secrets out of Brain Router context items before
// they are allowed onto the CLOUD path. Structured the way tarsy's
// pkg/masking/service.go separates code-based maskers (structural, applied
// first) from a regex sweep (general, applied second), but built around the
// Brain Router's sanitization step instead of MCP tool-result/alert masking.
package masking

import (
	"regexp"
)

// CompiledPattern pairs a regex with its replacement, mirroring tarsy's
// CompiledPattern shape.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns is the secret-redaction set from spec.md §4.C step 5.
var builtinPatterns = []CompiledPattern{
	{
		Name:        "key_value_secret",
		Regex:       regexp.MustCompile(`(?i)(api_key|token|secret|password|passphrase)\s*=\s*\S+`),
		Replacement: "$1=[REDACTED]",
	},
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)bearer\s+\S+`),
		Replacement: "[REDACTED]",
	},
	{
		Name:        "openai_style_key",
		Regex:       regexp.MustCompile(`sk-[A-Za-z0-9]{10,}`),
		Replacement: "[REDACTED]",
	},
}

// RedactSecrets applies the builtin pattern sweep to a single context item's
// text, in order. Each pattern is independent and idempotent; order does not
// change the outcome for disjoint matches.
func RedactSecrets(content string) string {
	masked := content
	for _, p := range builtinPatterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// ContainsSecret reports whether content matches any builtin pattern, used
// by callers that want to count redactions without mutating content.
func ContainsSecret(content string) bool {
	for _, p := range builtinPatterns {
		if p.Regex.MatchString(content) {
			return true
		}
	}
	return false
}
