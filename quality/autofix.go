package quality

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	quarry "github.com/quarrydocs/quarry"
)

// nopLogger is a logger that discards all output. Used when WithFixLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// maxFixPasses bounds the repair loop. Two passes catch the common cascade
// (a split producing a short tail that then merges) while keeping the loop
// from oscillating on pathological input.
const maxFixPasses = 2

// FixerOption configures a Fixer.
type FixerOption func(*Fixer)

// WithFixAnalyzer sets the analyzer used to detect and re-score flags.
func WithFixAnalyzer(a *Analyzer) FixerOption {
	return func(fx *Fixer) { fx.analyzer = a }
}

// WithFixLogger sets a structured logger for repair actions.
func WithFixLogger(l *slog.Logger) FixerOption {
	return func(fx *Fixer) { fx.logger = l }
}

// Fixer repairs flagged fragments in place-order: oversized fragments are
// split, undersized ones merged into a sibling, empty ones dropped, and
// context-free ones prefixed with a breadcrumb line. The loop runs at most
// twice and stops early once a pass changes nothing; fragments still flagged
// after that keep their flags and reduced score.
type Fixer struct {
	analyzer *Analyzer
	logger   *slog.Logger
}

// NewFixer creates a Fixer with the given options.
func NewFixer(opts ...FixerOption) *Fixer {
	fx := &Fixer{
		analyzer: NewAnalyzer(),
		logger:   nopLogger,
	}
	for _, o := range opts {
		o(fx)
	}
	return fx
}

// Fix returns a repaired copy of fragments. The input slice is never
// mutated. Every returned fragment carries a fresh quality assessment and a
// dense Index starting at 0; char ranges of merged and split fragments are
// recomputed so they stay within the source document and never overlap.
func (fx *Fixer) Fix(fragments []quarry.Fragment) []quarry.Fragment {
	out := make([]quarry.Fragment, len(fragments))
	copy(out, fragments)

	for pass := 0; pass < maxFixPasses; pass++ {
		changed := false

		var c bool
		out, c = fx.splitLong(out)
		changed = changed || c
		out, c = fx.mergeShort(out)
		changed = changed || c
		out, c = fx.dropEmpty(out)
		changed = changed || c
		out, c = fx.injectContext(out)
		changed = changed || c

		for i := range out {
			out[i].Index = i
			fx.analyzer.Annotate(&out[i])
		}

		if !changed {
			break
		}
		fx.logger.Debug("auto-fix pass applied", "pass", pass+1, "fragments", len(out))
	}
	return out
}

// splitLong breaks every TOO_LONG fragment at paragraph, then sentence, then
// word boundaries. Child ranges are mapped back into the parent's span
// proportionally, so they partition it without overlap even when the content
// length no longer matches the span exactly (after an earlier merge).
func (fx *Fixer) splitLong(in []quarry.Fragment) ([]quarry.Fragment, bool) {
	out := make([]quarry.Fragment, 0, len(in))
	changed := false
	for _, f := range in {
		if !fx.analyzer.Analyze(f).Has(quarry.FlagTooLong) {
			out = append(out, f)
			continue
		}
		spans := splitSpans(f.Content, fx.analyzer.maxChars)
		if len(spans) <= 1 {
			out = append(out, f)
			continue
		}
		changed = true
		contentLen := len(f.Content)
		spanLen := f.CharEnd - f.CharStart
		for _, sp := range spans {
			child := f
			child.ID = quarry.NewID()
			child.Content = strings.TrimSpace(f.Content[sp.start:sp.end])
			child.CharStart = f.CharStart + sp.start*spanLen/contentLen
			child.CharEnd = f.CharStart + sp.end*spanLen/contentLen
			out = append(out, child)
		}
	}
	return out, changed
}

// mergeShort folds every TOO_SHORT fragment into its following sibling, or
// into the preceding one when it is last. Merged ranges span from the
// earliest start to the latest end of the pair.
func (fx *Fixer) mergeShort(in []quarry.Fragment) ([]quarry.Fragment, bool) {
	out := make([]quarry.Fragment, 0, len(in))
	changed := false
	for i := 0; i < len(in); i++ {
		f := in[i]
		if !fx.analyzer.Analyze(f).Has(quarry.FlagTooShort) {
			out = append(out, f)
			continue
		}
		switch {
		case i+1 < len(in):
			out = append(out, mergeFragments(f, in[i+1]))
			i++
			changed = true
		case len(out) > 0:
			out[len(out)-1] = mergeFragments(out[len(out)-1], f)
			changed = true
		default:
			// A lone short fragment has no sibling; it keeps its flag.
			out = append(out, f)
		}
	}
	return out, changed
}

// dropEmpty removes whitespace-only fragments.
func (fx *Fixer) dropEmpty(in []quarry.Fragment) ([]quarry.Fragment, bool) {
	out := make([]quarry.Fragment, 0, len(in))
	changed := false
	for _, f := range in {
		if strings.TrimSpace(f.Content) == "" {
			changed = true
			continue
		}
		out = append(out, f)
	}
	return out, changed
}

// injectContext prefixes NO_CONTEXT fragments with a breadcrumb quote line
// and records the label in the fragment's breadcrumbs, so the repaired
// fragment reads with context and passes the title check on re-analysis.
func (fx *Fixer) injectContext(in []quarry.Fragment) ([]quarry.Fragment, bool) {
	changed := false
	for i := range in {
		if !fx.analyzer.Analyze(in[i]).Has(quarry.FlagNoContext) {
			continue
		}
		label := nearestLabel(in, i)
		in[i].Content = "> " + label + "\n\n" + in[i].Content
		in[i].Breadcrumbs = append([]string{label}, in[i].Breadcrumbs...)
		changed = true
	}
	return in, changed
}

// nearestLabel finds a context label for fragment i: the deepest breadcrumb
// of the closest preceding fragment that has one, then the closest following
// one, then a label derived from the fragment's own location.
func nearestLabel(in []quarry.Fragment, i int) string {
	for j := i - 1; j >= 0; j-- {
		if n := len(in[j].Breadcrumbs); n > 0 {
			return in[j].Breadcrumbs[n-1]
		}
	}
	for j := i + 1; j < len(in); j++ {
		if n := len(in[j].Breadcrumbs); n > 0 {
			return in[j].Breadcrumbs[n-1]
		}
	}
	return locationLabel(in[i])
}

func locationLabel(f quarry.Fragment) string {
	switch f.Location.Kind {
	case quarry.LocationSlides:
		if len(f.Location.Slides) > 0 {
			return fmt.Sprintf("Slide %d", f.Location.Slides[0])
		}
	case quarry.LocationSheetRows:
		if f.Location.Sheet != "" {
			return f.Location.Sheet
		}
	}
	return fmt.Sprintf("Section %d", f.Index+1)
}

// mergeFragments combines two sibling fragments in document order. The first
// fragment's identity, type, and position metadata win; breadcrumbs are
// unioned and locations widened to cover both.
func mergeFragments(a, b quarry.Fragment) quarry.Fragment {
	merged := a
	merged.Content = strings.TrimSpace(a.Content) + "\n\n" + strings.TrimSpace(b.Content)
	merged.CharStart = min(a.CharStart, b.CharStart)
	merged.CharEnd = max(a.CharEnd, b.CharEnd)
	merged.Breadcrumbs = unionStrings(a.Breadcrumbs, b.Breadcrumbs)
	merged.Location = mergeLocations(a.Location, b.Location)
	merged.TokenCount = a.TokenCount + b.TokenCount
	return merged
}

func mergeLocations(a, b quarry.Location) quarry.Location {
	if a.Kind != b.Kind {
		if a.Kind == "" {
			return b
		}
		return a
	}
	switch a.Kind {
	case quarry.LocationSlides:
		seen := make(map[int]bool, len(a.Slides)+len(b.Slides))
		slides := make([]int, 0, len(a.Slides)+len(b.Slides))
		for _, s := range append(append([]int{}, a.Slides...), b.Slides...) {
			if !seen[s] {
				seen[s] = true
				slides = append(slides, s)
			}
		}
		sort.Ints(slides)
		merged := a
		merged.Slides = slides
		return merged
	case quarry.LocationSheetRows:
		if a.Sheet != b.Sheet {
			return a
		}
		merged := a
		merged.RowStart = min(a.RowStart, b.RowStart)
		merged.RowEnd = max(a.RowEnd, b.RowEnd)
		return merged
	}
	return a
}

func unionStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// span is a half-open byte range into a content string.
type span struct {
	start, end int
}

// splitSpans cuts content into pieces no longer than maxChars, preferring
// paragraph breaks, then line breaks, then sentence ends, then spaces. The
// spans partition the whole string.
func splitSpans(content string, maxChars int) []span {
	var spans []span
	start := 0
	for len(content)-start > maxChars {
		limit := start + maxChars
		cut := lastBoundary(content[start:limit])
		if cut <= 0 {
			// Hard cut, aligned back to a rune start.
			cut = maxChars
			for cut > 0 && !utf8.RuneStart(content[start+cut]) {
				cut--
			}
			if cut == 0 {
				_, size := utf8.DecodeRuneInString(content[start:])
				cut = size
			}
		}
		spans = append(spans, span{start: start, end: start + cut})
		start += cut
	}
	if start < len(content) {
		spans = append(spans, span{start: start, end: len(content)})
	}
	return spans
}

// lastBoundary returns the byte offset just past the latest break point in s,
// or 0 when s contains none.
func lastBoundary(s string) int {
	if i := strings.LastIndex(s, "\n\n"); i > 0 {
		return i + 2
	}
	if i := strings.LastIndex(s, "\n"); i > 0 {
		return i + 1
	}
	if i := strings.LastIndex(s, ". "); i > 0 {
		return i + 2
	}
	if i := strings.LastIndex(s, " "); i > 0 {
		return i + 1
	}
	return 0
}
