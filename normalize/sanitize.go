package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Sanitize canonicalizes text for chunking: NFC normal form, line endings
// unified to \n, control characters dropped (tabs and newlines kept), and
// runs of three or more newlines collapsed to one paragraph break. Char
// offsets assigned during chunking refer to the sanitized text, so all
// ingestion paths must go through here exactly once.
func Sanitize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	newlines := 0
	for _, r := range text {
		if r == '\n' {
			if newlines++; newlines <= 2 {
				b.WriteRune(r)
			}
			continue
		}
		newlines = 0
		if r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
