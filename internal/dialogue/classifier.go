package dialogue

import (
	"strings"

	"medical-voice-agent/internal/catalog"
)

// Classify returns the status of the first pattern whose phrase occurs in the
// message, ignoring case. Patterns are tried in declaration order, so a phrase
// that contains another one must be declared before it; catalog.ValidatePatterns
// enforces that. Unknown means the answer could not be resolved.
func Classify(message string, patterns []catalog.Pattern) catalog.Status {
	lower := strings.ToLower(message)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p.Phrase)) {
			return p.Status
		}
	}
	return catalog.Unknown
}
