package util

import (
	"strings"
	"unicode"
)

// pdfReplacer undoes typography that PDF text layers commonly carry.
var pdfReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u00ad", "", // soft hyphen
	"\ufeff", "",
	"\ufb00", "ff",
	"\ufb01", "fi",
	"\ufb02", "fl",
	"\ufb03", "ffi",
	"\ufb04", "ffl",
)

// SanitizeText makes extracted manual text safe for Postgres text columns and
// for prompts. Invalid UTF-8 and control characters are dropped, ligatures are
// expanded and more than one blank line in a row is collapsed.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = pdfReplacer.Replace(strings.ToValidUTF8(s, ""))

	var b strings.Builder
	b.Grow(len(s))
	newlines := 0
	for _, ch := range s {
		switch {
		case ch == '\n':
			newlines++
			if newlines > 2 {
				continue
			}
		case ch == '\t':
		case unicode.IsControl(ch), ch == unicode.ReplacementChar:
			continue
		case unicode.IsSpace(ch):
			ch = ' '
		default:
			newlines = 0
		}
		b.WriteRune(ch)
	}
	return strings.TrimSpace(b.String())
}
