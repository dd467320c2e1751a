// Package normalize converts raw source files into chunker input: sanitized
// text plus the content category that selects a chunking strategy.
package normalize

import (
	"path/filepath"
	"strings"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/chunk"
)

// Format identifies the source form of raw content.
type Format string

const (
	FormatPlainText Format = "text/plain"
	FormatMarkdown  Format = "text/markdown"
	FormatHTML      Format = "text/html"
	FormatPDF       Format = "application/pdf"
	FormatCSV       Format = "text/csv"
)

// FormatFromExtension maps a file extension (without the dot) to a Format.
// Unknown extensions are treated as plain text.
func FormatFromExtension(ext string) Format {
	switch strings.ToLower(ext) {
	case "md", "markdown":
		return FormatMarkdown
	case "html", "htm":
		return FormatHTML
	case "pdf":
		return FormatPDF
	case "csv", "tsv":
		return FormatCSV
	default:
		return FormatPlainText
	}
}

// Normalizer converts raw bytes of one source format into sanitized text.
type Normalizer interface {
	Normalize(content []byte) (string, error)
}

// For returns the normalizer for a format. Markdown and plain text need
// sanitization only.
func For(format Format) Normalizer {
	switch format {
	case FormatHTML:
		return HTMLNormalizer{}
	case FormatPDF:
		return PDFNormalizer{}
	case FormatCSV:
		return CSVNormalizer{}
	default:
		return TextNormalizer{}
	}
}

// Categorize routes normalized text to a content category. CSV input is
// always tabular; markdown and plain text carrying slide markers are
// presentations; everything else is prose.
func Categorize(format Format, text string) quarry.Category {
	if format == FormatCSV {
		return quarry.CategoryTabular
	}
	if strings.Contains(text, chunk.SlideMarker) {
		return quarry.CategoryPresentation
	}
	return quarry.CategoryDocument
}

// Document normalizes one raw file into a Document ready for ingestion. The
// format is detected from the filename extension.
func Document(filename string, content []byte) (quarry.Document, error) {
	format := FormatFromExtension(strings.TrimPrefix(filepath.Ext(filename), "."))
	text, err := For(format).Normalize(content)
	if err != nil {
		return quarry.Document{}, err
	}
	return quarry.Document{
		Title:    filepath.Base(filename),
		Source:   filename,
		Content:  text,
		Category: Categorize(format, text),
	}, nil
}

// TextNormalizer passes markdown or plain text through sanitization.
type TextNormalizer struct{}

var _ Normalizer = TextNormalizer{}

func (TextNormalizer) Normalize(content []byte) (string, error) {
	return Sanitize(string(content)), nil
}
