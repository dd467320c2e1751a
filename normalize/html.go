package normalize

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

var _ Normalizer = HTMLNormalizer{}

// HTMLNormalizer extracts the readable article from an HTML page using
// readability, falling back to plain tag stripping when the page has no
// extractable article (fragments, boilerplate-only pages).
type HTMLNormalizer struct{}

func (HTMLNormalizer) Normalize(content []byte) (string, error) {
	pageURL, _ := url.Parse("https://localhost/")
	article, err := readability.FromReader(bytes.NewReader(content), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		text := article.TextContent
		if article.Title != "" {
			text = "# " + article.Title + "\n\n" + text
		}
		return Sanitize(text), nil
	}
	return Sanitize(stripTags(string(content))), nil
}

// stripTags removes markup, drops script and style bodies, turns block tags
// into line breaks, and decodes the common named entities.
func stripTags(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	inTag, skipBody := false, false
	var tag strings.Builder

	i := 0
	for i < len(content) {
		r, size := utf8.DecodeRuneInString(content[i:])
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case inTag:
			if r == '>' {
				inTag = false
				name := ""
				if fields := strings.Fields(strings.TrimSuffix(tag.String(), "/")); len(fields) > 0 {
					name = strings.ToLower(fields[0])
				}
				switch name {
				case "script", "style":
					skipBody = true
				case "/script", "/style":
					skipBody = false
				}
				if isBlockTag(strings.TrimPrefix(name, "/")) {
					b.WriteByte('\n')
				}
			} else {
				tag.WriteRune(r)
			}
		case skipBody:
		default:
			b.WriteRune(r)
		}
		i += size
	}

	return entityReplacer.Replace(b.String())
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", "\"",
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

func isBlockTag(name string) bool {
	switch name {
	case "p", "div", "br", "hr", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "ul", "ol", "table", "tr", "blockquote", "pre",
		"section", "article", "header", "footer", "nav", "main":
		return true
	}
	return false
}
