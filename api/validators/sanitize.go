package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims, collapses inner whitespace runs (including newlines
// from pasted text) and caps the result at maxLen runes. maxLen <= 0 means
// no cap.
func SanitizeString(input string, maxLen int) string {
	collapsed := strings.Join(strings.FieldsFunc(input, unicode.IsSpace), " ")
	if maxLen <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= maxLen {
		return collapsed
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
