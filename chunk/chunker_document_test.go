package chunk

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	quarry "github.com/quarrydocs/quarry"
)

func TestDocumentChunkerSections(t *testing.T) {
	dc := NewDocumentChunker()

	text := "# Guide\n\nThe guide explains how the exporter is configured and operated in production.\n\n" +
		"## Setup\n\nInstall the binary, point it at the config file, and start the service with systemd.\n\n" +
		"## Usage\n\nRun the export command with a date range to produce one archive per day."

	frags, err := dc.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(frags) != 3 {
		t.Fatalf("Chunk() returned %d fragments, want 3 sections", len(frags))
	}

	wantPaths := [][]string{
		{"Guide"},
		{"Guide", "Setup"},
		{"Guide", "Usage"},
	}
	for i, f := range frags {
		if len(f.Breadcrumbs) != len(wantPaths[i]) {
			t.Fatalf("fragment %d breadcrumbs = %v, want %v", i, f.Breadcrumbs, wantPaths[i])
		}
		for j := range wantPaths[i] {
			if f.Breadcrumbs[j] != wantPaths[i][j] {
				t.Errorf("fragment %d breadcrumbs = %v, want %v", i, f.Breadcrumbs, wantPaths[i])
			}
		}
		if f.ChunkType != quarry.ChunkProseSection {
			t.Errorf("fragment %d chunk type = %q, want prose-section", i, f.ChunkType)
		}
		if f.Location.Kind != quarry.LocationHeaderPath {
			t.Errorf("fragment %d location kind = %q, want header_path", i, f.Location.Kind)
		}
	}
}

func TestDocumentChunkerExactRanges(t *testing.T) {
	dc := NewDocumentChunker()

	text := "# One\n\nFirst section body text for the range check.\n\n# Two\n\nSecond section body text for the range check."

	frags, err := dc.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	for i, f := range frags {
		if got := text[f.CharStart:f.CharEnd]; got != f.Content {
			t.Errorf("fragment %d content != text[%d:%d]:\n content: %q\n   range: %q",
				i, f.CharStart, f.CharEnd, f.Content, got)
		}
	}
}

func TestDocumentChunkerSplitsOversizedSection(t *testing.T) {
	dc := NewDocumentChunker(WithMaxChars(300), WithOverlapChars(60))

	var b strings.Builder
	b.WriteString("# Long\n\n")
	for i := 0; i < 20; i++ {
		b.WriteString("Another sentence describing the retry behavior of the export worker. ")
	}
	text := strings.TrimSpace(b.String())

	frags, err := dc.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("Chunk() returned %d fragments, want an oversized section split", len(frags))
	}
	for i, f := range frags {
		if len(f.Content) > 300 {
			t.Errorf("fragment %d is %d chars, want <= 300", i, len(f.Content))
		}
		if got := text[f.CharStart:f.CharEnd]; got != f.Content {
			t.Errorf("fragment %d range does not match content", i)
		}
		if len(f.Breadcrumbs) != 1 || f.Breadcrumbs[0] != "Long" {
			t.Errorf("fragment %d breadcrumbs = %v, want [Long]", i, f.Breadcrumbs)
		}
	}

	// Forced splits carry overlap, bounded by the configured window.
	overlapped := false
	for i := 1; i < len(frags); i++ {
		ov := frags[i-1].CharEnd - frags[i].CharStart
		if ov > 60 {
			t.Errorf("fragments %d and %d overlap by %d chars, want <= 60", i-1, i, ov)
		}
		if ov > 0 {
			overlapped = true
		}
	}
	if !overlapped {
		t.Error("no adjacent fragments overlap; forced splits must carry context")
	}
}

func TestDocumentChunkerPreamble(t *testing.T) {
	dc := NewDocumentChunker()

	text := "Intro text before any heading explains what the document is about.\n\n# Body\n\nThe body section carries the actual instructions for the operator."

	frags, err := dc.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("Chunk() returned %d fragments, want preamble + section", len(frags))
	}
	if len(frags[0].Breadcrumbs) != 0 {
		t.Errorf("preamble breadcrumbs = %v, want none", frags[0].Breadcrumbs)
	}
	if frags[0].CharStart != 0 {
		t.Errorf("preamble CharStart = %d, want 0", frags[0].CharStart)
	}
}

func TestDocumentChunkerNoHeadings(t *testing.T) {
	dc := NewDocumentChunker()

	text := "Plain prose with no headings at all, short enough to stay in one piece."

	frags, err := dc.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("Chunk() returned %d fragments, want 1", len(frags))
	}
	if frags[0].Content != text {
		t.Errorf("content = %q, want full text", frags[0].Content)
	}
}

func TestDocumentChunkerIgnoresHeadingsInCodeFences(t *testing.T) {
	dc := NewDocumentChunker()

	text := "# Real\n\nBefore the code block.\n\n```\n# not a heading\n```\n\nAfter the code block."

	frags, err := dc.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("Chunk() returned %d fragments, want 1; fenced lines must not split sections", len(frags))
	}
	if frags[0].Breadcrumbs[0] != "Real" {
		t.Errorf("breadcrumbs = %v, want [Real]", frags[0].Breadcrumbs)
	}
}

func TestDocumentChunkerEmptyInput(t *testing.T) {
	dc := NewDocumentChunker()

	_, err := dc.Chunk("   \n\t ")
	if err == nil {
		t.Fatal("Chunk() on blank input returned nil error")
	}
	var chunkErr *quarry.ErrChunking
	if !errors.As(err, &chunkErr) {
		t.Fatalf("error type = %T, want *ErrChunking", err)
	}
	if !strings.Contains(err.Error(), "document") {
		t.Errorf("error = %v, want category in message", err)
	}
}

func TestDocumentChunkerHardCutKeepsRuneBoundaries(t *testing.T) {
	dc := NewDocumentChunker()

	// Continuous CJK prose with no spaces, newlines, or terminators: every
	// split is a forced hard cut and must still land between runes.
	text := strings.Repeat("あ", 500)

	frags, err := dc.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("Chunk() returned %d fragments, want a forced split", len(frags))
	}
	for i, f := range frags {
		if !utf8.ValidString(f.Content) {
			t.Errorf("fragment %d content is invalid UTF-8, starts %q", i, f.Content[:min(6, len(f.Content))])
		}
		if got := text[f.CharStart:f.CharEnd]; got != f.Content {
			t.Errorf("fragment %d range does not match content", i)
		}
	}
}

func TestSplitOverlappingRuneAlignment(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"cjk without boundaries", strings.Repeat("語", 400)},
		{"one long token", strings.Repeat("x", 950) + strings.Repeat("é", 200)},
		{"mixed ascii and cjk", strings.Repeat("a", 999) + strings.Repeat("あ", 300)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := splitOverlapping(tt.text, 1000, 200)
			for i, sp := range spans {
				if !utf8.ValidString(tt.text[sp.start:sp.end]) {
					t.Errorf("span %d [%d:%d] is invalid UTF-8", i, sp.start, sp.end)
				}
			}
			last := spans[len(spans)-1]
			if last.end != len(tt.text) {
				t.Errorf("last span ends at %d, want %d", last.end, len(tt.text))
			}
		})
	}
}

func TestSplitOverlappingMaxSmallerThanRune(t *testing.T) {
	// A cap below one rune's width still may not slice the rune.
	spans := splitOverlapping("語語", 2, 0)
	for i, sp := range spans {
		if !utf8.ValidString("語語"[sp.start:sp.end]) {
			t.Errorf("span %d [%d:%d] is invalid UTF-8", i, sp.start, sp.end)
		}
	}
}
