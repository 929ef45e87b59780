package util

import (
	"strings"
	"unicode"
)

// Snippet returns s cleaned for display and cut to maxRunes, with "..." appended
// when anything was cut.
func Snippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 200
	}
	s = normalizeWhitespace(SanitizeText(s))
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return strings.TrimRightFunc(string(runes[:maxRunes]), unicode.IsSpace) + "..."
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
