package normalize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var _ Normalizer = PDFNormalizer{}

// PDFNormalizer extracts plain text from PDF bytes, one page per paragraph.
// Unreadable pages are skipped rather than failing the whole document.
type PDFNormalizer struct{}

func (PDFNormalizer) Normalize(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty pdf content")
	}

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return Sanitize(b.String()), nil
}
