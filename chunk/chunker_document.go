package chunk

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	quarry "github.com/quarrydocs/quarry"
)

var _ Chunker = (*DocumentChunker)(nil)

// DocumentChunker splits prose markdown at heading boundaries into sections.
// The markdown is parsed into an AST, so headings inside fenced code blocks
// never become section boundaries. Each fragment carries the heading path
// from the document root down to its own heading as breadcrumbs; sections
// over the size cap are split recursively with overlap.
type DocumentChunker struct {
	maxChars     int
	overlapChars int
	md           goldmark.Markdown
}

// NewDocumentChunker creates a DocumentChunker with the given options.
func NewDocumentChunker(opts ...Option) *DocumentChunker {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &DocumentChunker{
		maxChars:     cfg.maxChars,
		overlapChars: cfg.overlapChars,
		md:           goldmark.New(),
	}
}

// Chunk implements Chunker. Every fragment's content is the exact substring
// text[CharStart:CharEnd].
func (dc *DocumentChunker) Chunk(text string) ([]quarry.Fragment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &quarry.ErrChunking{Category: quarry.CategoryDocument, Reason: "empty content"}
	}

	src := []byte(text)
	doc := dc.md.Parser().Parse(gmtext.NewReader(src))
	sections := buildSections(text, headingMarks(doc, src))

	var frags []quarry.Fragment
	for _, sec := range sections {
		sp := trimSpan(text, sec.span)
		if sp.start >= sp.end {
			continue
		}
		for _, sub := range splitOverlapping(text[sp.start:sp.end], dc.maxChars, dc.overlapChars) {
			abs := trimSpan(text, span{start: sp.start + sub.start, end: sp.start + sub.end})
			if abs.start >= abs.end {
				continue
			}
			frags = append(frags, quarry.Fragment{
				Content:     text[abs.start:abs.end],
				Index:       len(frags),
				CharStart:   abs.start,
				CharEnd:     abs.end,
				Breadcrumbs: sec.path,
				Location: quarry.Location{
					Kind:       quarry.LocationHeaderPath,
					HeaderPath: sec.path,
				},
				ChunkType: quarry.ChunkProseSection,
			})
		}
	}
	return frags, nil
}

// headingMark is a heading found at the top level of the document, with the
// byte offset of the line it starts on.
type headingMark struct {
	level     int
	text      string
	lineStart int
}

func headingMarks(doc ast.Node, src []byte) []headingMark {
	var marks []headingMark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		marks = append(marks, headingMark{
			level:     h.Level,
			text:      headingText(h, src),
			lineStart: bytes.LastIndexByte(src[:seg.Start], '\n') + 1,
		})
	}
	return marks
}

func headingText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// section is a contiguous document region under one heading path. The span
// runs from the section's heading line to the next same-or-higher heading.
type section struct {
	span span
	path []string
}

// buildSections cuts the document at heading lines. Content before the first
// heading becomes a preamble section with no path; a document without
// headings is one section. The path for each section is maintained as a
// stack: a new heading pops everything at its level or deeper.
func buildSections(text string, marks []headingMark) []section {
	if len(marks) == 0 {
		return []section{{span: span{start: 0, end: len(text)}}}
	}

	var sections []section
	if marks[0].lineStart > 0 {
		sections = append(sections, section{span: span{start: 0, end: marks[0].lineStart}})
	}

	type stackEntry struct {
		level int
		text  string
	}
	var stack []stackEntry
	for i, m := range marks {
		for len(stack) > 0 && stack[len(stack)-1].level >= m.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, stackEntry{level: m.level, text: m.text})

		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1].lineStart
		}
		path := make([]string, len(stack))
		for j, h := range stack {
			path[j] = h.text
		}
		sections = append(sections, section{span: span{start: m.lineStart, end: end}, path: path})
	}
	return sections
}
