package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// span is a half-open byte range into the source text. Chunkers work in
// spans rather than strings so every fragment keeps an exact char range back
// into the document it came from.
type span struct {
	start, end int
}

// trimSpan shrinks sp until the spanned text carries no leading or trailing
// whitespace, keeping the offsets aligned with the trimmed content.
func trimSpan(text string, sp span) span {
	for sp.start < sp.end {
		r, size := utf8.DecodeRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.start += size
	}
	for sp.end > sp.start {
		r, size := utf8.DecodeLastRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.end -= size
	}
	return sp
}

// splitOverlapping cuts text into spans no longer than maxChars, breaking at
// paragraph boundaries first, then sentence ends, then line breaks, then
// spaces, with a hard cut as the last resort. Each span after the first
// starts up to overlapChars before the previous cut, re-aligned forward to a
// word boundary, so a forced mid-section cut keeps its surrounding context.
func splitOverlapping(text string, maxChars, overlapChars int) []span {
	if len(text) <= maxChars {
		return []span{{0, len(text)}}
	}

	var spans []span
	start := 0
	for len(text)-start > maxChars {
		limit := start + maxChars
		cut := start + lastBreak(text[start:limit])
		if cut <= start {
			// Hard cut. Back up so it cannot land inside a multibyte rune;
			// when maxChars is smaller than the rune itself, take the rune.
			cut = limit
			for cut > start && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == start {
				_, size := utf8.DecodeRuneInString(text[start:])
				cut = start + size
			}
		}
		spans = append(spans, span{start: start, end: cut})

		next := cut - overlapChars
		if next <= start {
			next = cut
		} else {
			for next < cut && !utf8.RuneStart(text[next]) {
				next++
			}
			if idx := strings.IndexByte(text[next:cut], ' '); idx >= 0 {
				next += idx + 1
			}
		}
		start = next
	}
	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

// lastBreak returns the byte offset just past the best break point in s, or
// 0 when s contains none.
func lastBreak(s string) int {
	if i := strings.LastIndex(s, "\n\n"); i > 0 {
		return i + 2
	}
	if bs := sentenceBoundaries(s); len(bs) > 0 {
		if last := bs[len(bs)-1]; last > 0 {
			return last
		}
	}
	if i := strings.LastIndexByte(s, '\n'); i > 0 {
		return i + 1
	}
	if i := strings.LastIndexByte(s, ' '); i > 0 {
		return i + 1
	}
	return 0
}

// abbreviations whose trailing dot does not end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true,
	"prof": true, "sr": true, "jr": true,
	"vs": true, "etc": true, "inc": true, "ltd": true,
	"e.g": true, "i.e": true, "viz": true, "al": true,
	"approx": true, "dept": true, "est": true,
	"fig": true, "no": true, "vol": true,
}

// sentenceBoundaries returns byte offsets where a new sentence begins.
// ASCII terminators (.!?) must be followed by whitespace, with dots inside
// decimal numbers (3.14) and after common abbreviations (Dr., e.g.) skipped.
// CJK terminators (。！？) are always boundaries.
func sentenceBoundaries(text string) []int {
	var boundaries []int
	runes := []rune(text)
	n := len(runes)

	offsets := make([]int, n+1)
	off := 0
	for i, r := range runes {
		offsets[i] = off
		off += utf8.RuneLen(r)
	}
	offsets[n] = off

	for i := 0; i < n; i++ {
		r := runes[i]

		if r == '。' || r == '！' || r == '？' {
			boundaries = append(boundaries, offsets[i+1])
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		pos := offsets[i]
		if r == '.' && (isDecimalDot(text, pos) || isAbbreviation(text, pos)) {
			continue
		}

		if i+1 >= n || (runes[i+1] != ' ' && runes[i+1] != '\n') {
			continue
		}
		switch {
		case runes[i+1] == '\n':
			boundaries = append(boundaries, offsets[i+1])
		case i+2 >= n:
			boundaries = append(boundaries, offsets[n])
		case unicode.IsUpper(runes[i+2]):
			boundaries = append(boundaries, offsets[i+2])
		}
	}
	return boundaries
}

// isAbbreviation reports whether the word ending at the dot at dotPos is a
// common abbreviation.
func isAbbreviation(text string, dotPos int) bool {
	start := dotPos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(r) && r != '.' {
			break
		}
		start -= size
	}
	return abbreviations[strings.ToLower(text[start:dotPos])]
}

// isDecimalDot reports whether the dot at dotPos sits inside a number such
// as 3.14 or $1.50.
func isDecimalDot(text string, dotPos int) bool {
	if dotPos == 0 || dotPos+1 >= len(text) {
		return false
	}
	prev, next := text[dotPos-1], text[dotPos+1]
	return prev >= '0' && prev <= '9' && next >= '0' && next <= '9'
}
