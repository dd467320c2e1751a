package normalize

import (
	"strings"
	"testing"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/chunk"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf unified", "line one\r\nline two\r", "line one\nline two"},
		{"blank runs collapsed", "para one\n\n\n\n\npara two", "para one\n\npara two"},
		{"control chars dropped", "ab\x00c\x07d", "abcd"},
		{"tabs kept", "col1\tcol2", "col1\tcol2"},
		{"surrounding space trimmed", "  body  \n", "body"},
		{"nfc form", "étude", "étude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatFromExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want Format
	}{
		{"md", FormatMarkdown},
		{"MARKDOWN", FormatMarkdown},
		{"html", FormatHTML},
		{"htm", FormatHTML},
		{"pdf", FormatPDF},
		{"csv", FormatCSV},
		{"tsv", FormatCSV},
		{"txt", FormatPlainText},
		{"xyz", FormatPlainText},
	}
	for _, tt := range tests {
		if got := FormatFromExtension(tt.ext); got != tt.want {
			t.Errorf("FormatFromExtension(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		text   string
		want   quarry.Category
	}{
		{"csv is tabular", FormatCSV, "Name: Widget", quarry.CategoryTabular},
		{"markdown is prose", FormatMarkdown, "# Title\n\nBody.", quarry.CategoryDocument},
		{"slide markers make a presentation", FormatMarkdown,
			"Slide one\n\n" + chunk.SlideMarker + "\n\nSlide two", quarry.CategoryPresentation},
		{"plain text is prose", FormatPlainText, "Just text.", quarry.CategoryDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.format, tt.text); got != tt.want {
				t.Errorf("Categorize(%q) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

func TestCSVNormalizer(t *testing.T) {
	var n CSVNormalizer

	got, err := n.Normalize([]byte("name,qty,color\nwidget,4,red\ngadget,,blue\n"))
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("Normalize() = %q, want one line per record", got)
	}
	if lines[0] != "name: widget, qty: 4, color: red" {
		t.Errorf("first row = %q", lines[0])
	}
	if lines[1] != "name: gadget, color: blue" {
		t.Errorf("second row = %q, want empty cell omitted", lines[1])
	}
}

func TestCSVNormalizerEmpty(t *testing.T) {
	var n CSVNormalizer

	for _, in := range []string{"", "  \n", "\xef\xbb\xbf"} {
		got, err := n.Normalize([]byte(in))
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", in, err)
		}
		if got != "" {
			t.Errorf("Normalize(%q) = %q, want empty", in, got)
		}
	}
}

func TestHTMLNormalizerFallback(t *testing.T) {
	var n HTMLNormalizer

	// Too small for article extraction: exercises the tag-strip fallback.
	got, err := n.Normalize([]byte("<p>Hello &amp; goodbye</p><script>var x = 1;</script>"))
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if !strings.Contains(got, "Hello & goodbye") {
		t.Errorf("Normalize() = %q, want decoded text content", got)
	}
	if strings.Contains(got, "var x") {
		t.Errorf("Normalize() = %q, want script body dropped", got)
	}
}

func TestStripTags(t *testing.T) {
	in := "<div><h1>Title</h1><p>First line</p><style>.a{}</style><p>Second &lt;line&gt;</p></div>"
	got := stripTags(in)

	if strings.Contains(got, "<p>") || strings.Contains(got, ".a{}") {
		t.Fatalf("stripTags() = %q, want markup and style removed", got)
	}
	for _, want := range []string{"Title", "First line", "Second <line>"} {
		if !strings.Contains(got, want) {
			t.Errorf("stripTags() = %q, missing %q", got, want)
		}
	}
}

func TestDocumentFromFile(t *testing.T) {
	doc, err := Document("notes/plan.md", []byte("# Plan\r\n\r\nShip the importer.\n"))
	if err != nil {
		t.Fatalf("Document() error: %v", err)
	}
	if doc.Title != "plan.md" {
		t.Errorf("Title = %q, want plan.md", doc.Title)
	}
	if doc.Source != "notes/plan.md" {
		t.Errorf("Source = %q, want the full path", doc.Source)
	}
	if doc.Category != quarry.CategoryDocument {
		t.Errorf("Category = %q, want document", doc.Category)
	}
	if doc.Content != "# Plan\n\nShip the importer." {
		t.Errorf("Content = %q, want sanitized markdown", doc.Content)
	}
}

func TestPDFNormalizerEmpty(t *testing.T) {
	var n PDFNormalizer

	if _, err := n.Normalize(nil); err == nil {
		t.Fatal("Normalize(nil) returned nil error")
	}
}
