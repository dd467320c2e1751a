package chunk

import (
	"strings"

	quarry "github.com/quarrydocs/quarry"
)

// SlideMarker delimits slides in normalized presentation text.
const SlideMarker = "<!-- slide -->"

var _ Chunker = (*PresentationChunker)(nil)

// PresentationChunker groups marker-delimited slides into fragments. Slides
// are accumulated in order until a group reaches the minimum size, so a deck
// of sparse bullet slides does not shatter into one-line fragments; a small
// trailing group folds backward into the previous fragment.
type PresentationChunker struct {
	minSlideChars int
}

// NewPresentationChunker creates a PresentationChunker with the given options.
func NewPresentationChunker(opts ...Option) *PresentationChunker {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &PresentationChunker{minSlideChars: cfg.minSlideChars}
}

// Chunk implements Chunker. Each fragment records the 1-based numbers of the
// slides it covers; its char range spans from the first slide's content to
// the last slide's, with the markers between them dropped from the content.
func (pc *PresentationChunker) Chunk(text string) ([]quarry.Fragment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &quarry.ErrChunking{Category: quarry.CategoryPresentation, Reason: "empty content"}
	}

	slides := splitSlides(text)
	if len(slides) == 0 {
		return nil, &quarry.ErrChunking{Category: quarry.CategoryPresentation, Reason: "no slide content"}
	}

	var groups [][]slide
	var cur []slide
	curLen := 0
	for _, s := range slides {
		cur = append(cur, s)
		curLen += s.span.end - s.span.start
		if curLen >= pc.minSlideChars {
			groups = append(groups, cur)
			cur = nil
			curLen = 0
		}
	}
	if len(cur) > 0 {
		if len(groups) > 0 && curLen < pc.minSlideChars {
			groups[len(groups)-1] = append(groups[len(groups)-1], cur...)
		} else {
			groups = append(groups, cur)
		}
	}

	frags := make([]quarry.Fragment, 0, len(groups))
	for i, group := range groups {
		frags = append(frags, slideFragment(text, group, i))
	}
	return frags, nil
}

// slide is one marker-delimited region with its 1-based deck position.
type slide struct {
	number int
	span   span
}

// splitSlides cuts text at slide markers. Whitespace-only slides are dropped
// but still consume a slide number, so numbering stays aligned with the deck.
func splitSlides(text string) []slide {
	start := 0
	// A leading marker opens slide 1 rather than closing an empty slide.
	if i := strings.Index(text, SlideMarker); i >= 0 && strings.TrimSpace(text[:i]) == "" {
		start = i + len(SlideMarker)
	}

	var slides []slide
	number := 0
	for {
		number++
		idx := strings.Index(text[start:], SlideMarker)
		raw := span{start: start, end: len(text)}
		if idx >= 0 {
			raw.end = start + idx
		}
		if sp := trimSpan(text, raw); sp.start < sp.end {
			slides = append(slides, slide{number: number, span: sp})
		}
		if idx < 0 {
			return slides
		}
		start += idx + len(SlideMarker)
	}
}

func slideFragment(text string, group []slide, index int) quarry.Fragment {
	parts := make([]string, len(group))
	numbers := make([]int, len(group))
	for i, s := range group {
		parts[i] = text[s.span.start:s.span.end]
		numbers[i] = s.number
	}
	content := strings.Join(parts, "\n\n")

	return quarry.Fragment{
		Content:     content,
		Index:       index,
		CharStart:   group[0].span.start,
		CharEnd:     group[len(group)-1].span.end,
		Breadcrumbs: leadingHeading(content),
		Location: quarry.Location{
			Kind:   quarry.LocationSlides,
			Slides: numbers,
		},
		ChunkType: quarry.ChunkSlide,
	}
}

// leadingHeading returns the content's first line as a single breadcrumb when
// it is a markdown heading, which is how slide titles survive normalization.
func leadingHeading(content string) []string {
	line, _, _ := strings.Cut(content, "\n")
	if !strings.HasPrefix(line, "#") {
		return nil
	}
	label := strings.TrimSpace(strings.TrimLeft(line, "# "))
	if label == "" {
		return nil
	}
	return []string{label}
}
