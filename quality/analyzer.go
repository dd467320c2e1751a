// Package quality scores fragments against a fixed rule set and repairs
// flagged fragments with a bounded auto-fix loop.
package quality

import (
	"strings"
	"unicode"
	"unicode/utf8"

	quarry "github.com/quarrydocs/quarry"
)

// FragmentHeuristic decides whether content looks like it begins or ends
// mid-sentence. The rule is pluggable because no single definition fits every
// corpus; the default is documented on DefaultFragmentHeuristic.
type FragmentHeuristic func(content string, chunkType quarry.ChunkType) bool

// DefaultFragmentHeuristic flags content as a mid-sentence cut when either:
//
//   - the first letter (after skipping markdown decoration such as heading
//     markers, blockquote markers, list bullets, and digits) is lowercase, or
//   - the fragment is a prose section and does not end with terminal
//     punctuation (. ! ? : ;) or a closing code fence. Only the prose
//     strategy force-splits mid-sentence, so the ending check is limited to
//     it to avoid flagging slides and table rows that legitimately end bare.
func DefaultFragmentHeuristic(content string, chunkType quarry.ChunkType) bool {
	for _, r := range content {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.IsLower(r) {
			return true
		}
		break
	}

	if chunkType != quarry.ChunkProseSection {
		return false
	}
	if strings.HasSuffix(content, "```") {
		return false
	}
	last := rune(0)
	for _, r := range content {
		last = r
	}
	switch last {
	case '.', '!', '?', ':', ';':
		return false
	}
	return true
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMinChars sets the minimum content length in runes before TOO_SHORT
// (default 50).
func WithMinChars(n int) Option {
	return func(a *Analyzer) { a.minChars = n }
}

// WithMaxChars sets the maximum content length in runes before TOO_LONG
// (default 2000).
func WithMaxChars(n int) Option {
	return func(a *Analyzer) { a.maxChars = n }
}

// WithPenaltyPerFlag sets the score reduction per flag (default 0.15).
func WithPenaltyPerFlag(p float64) Option {
	return func(a *Analyzer) { a.penaltyPerFlag = p }
}

// WithFragmentHeuristic replaces the mid-sentence cut detection rule.
func WithFragmentHeuristic(h FragmentHeuristic) Option {
	return func(a *Analyzer) { a.isFragment = h }
}

// Analyzer scores a single fragment against the quality rule set. It is a
// pure function over its input and never fails; degenerate input simply
// yields EMPTY with score 0.
type Analyzer struct {
	minChars       int
	maxChars       int
	penaltyPerFlag float64
	isFragment     FragmentHeuristic
}

// NewAnalyzer creates an Analyzer with the given options.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		minChars:       50,
		maxChars:       2000,
		penaltyPerFlag: 0.15,
		isFragment:     DefaultFragmentHeuristic,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Result holds the quality assessment of one fragment.
type Result struct {
	Flags        []quarry.QualityFlag
	Score        float64
	CharCount    int
	HasTitle     bool
	Completeness quarry.Completeness
}

// Has reports whether the result carries the given flag.
func (r Result) Has(flag quarry.QualityFlag) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Analyze scores one fragment. Flags are evaluated independently and may all
// apply at once; the score is 1 minus the per-flag penalty, floored at 0.
// Whitespace-only content short-circuits to EMPTY with score 0.
func (a *Analyzer) Analyze(f quarry.Fragment) Result {
	trimmed := strings.TrimSpace(f.Content)
	if trimmed == "" {
		return Result{
			Flags:        []quarry.QualityFlag{quarry.FlagEmpty},
			Score:        0.0,
			Completeness: quarry.CompletenessIncomplete,
		}
	}

	charCount := utf8.RuneCountInString(trimmed)
	hasTitle := len(f.Breadcrumbs) > 0 ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, ">")

	var flags []quarry.QualityFlag
	if charCount < a.minChars {
		flags = append(flags, quarry.FlagTooShort)
	}
	if charCount > a.maxChars {
		flags = append(flags, quarry.FlagTooLong)
	}
	if !hasTitle {
		flags = append(flags, quarry.FlagNoContext)
	}
	if a.isFragment(trimmed, f.ChunkType) {
		flags = append(flags, quarry.FlagFragment)
	}

	score := 1.0 - a.penaltyPerFlag*float64(len(flags))
	if score < 0 {
		score = 0
	}

	return Result{
		Flags:        flags,
		Score:        score,
		CharCount:    charCount,
		HasTitle:     hasTitle,
		Completeness: completenessFor(flags),
	}
}

// Annotate writes the quality assessment onto the fragment in place.
func (a *Analyzer) Annotate(f *quarry.Fragment) {
	res := a.Analyze(*f)
	f.QualityScore = res.Score
	f.QualityFlags = res.Flags
	f.Completeness = res.Completeness
	f.HasTitle = res.HasTitle
}

// completenessFor derives the categorical label from a flag set. FRAGMENT
// takes precedence over size flags; EMPTY and TOO_SHORT both read as
// incomplete content.
func completenessFor(flags []quarry.QualityFlag) quarry.Completeness {
	if len(flags) == 0 {
		return quarry.CompletenessComplete
	}
	for _, f := range flags {
		if f == quarry.FlagFragment {
			return quarry.CompletenessFragment
		}
	}
	for _, f := range flags {
		if f == quarry.FlagTooShort || f == quarry.FlagEmpty {
			return quarry.CompletenessIncomplete
		}
	}
	return quarry.CompletenessWithIssues
}
