package chunk

import (
	"fmt"
	"strings"

	quarry "github.com/quarrydocs/quarry"
)

// sheetSeparator delimits sheets in normalized tabular text.
const sheetSeparator = "\n\n---\n\n"

var _ Chunker = (*TabularChunker)(nil)

// TabularChunker splits normalized spreadsheet text into fragments, one sheet
// at a time. A sheet rendered as a markdown table stays whole as a single
// table fragment; a sheet rendered as sentence-style rows is cut into fixed
// row groups, each repeating the sheet heading so the group reads in context
// on its own.
type TabularChunker struct {
	rowsPerGroup int
}

// NewTabularChunker creates a TabularChunker with the given options.
func NewTabularChunker(opts ...Option) *TabularChunker {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &TabularChunker{rowsPerGroup: cfg.rowsPerGroup}
}

// Chunk implements Chunker.
func (tc *TabularChunker) Chunk(text string) ([]quarry.Fragment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &quarry.ErrChunking{Category: quarry.CategoryTabular, Reason: "empty content"}
	}

	var frags []quarry.Fragment
	start := 0
	sheetNum := 0
	for {
		sheetNum++
		idx := strings.Index(text[start:], sheetSeparator)
		end := len(text)
		if idx >= 0 {
			end = start + idx
		}
		if sp := trimSpan(text, span{start: start, end: end}); sp.start < sp.end {
			frags = tc.appendSheet(frags, text, sp, sheetNum)
		}
		if idx < 0 {
			break
		}
		start += idx + len(sheetSeparator)
	}

	if len(frags) == 0 {
		return nil, &quarry.ErrChunking{Category: quarry.CategoryTabular, Reason: "no sheet content"}
	}
	return frags, nil
}

func (tc *TabularChunker) appendSheet(frags []quarry.Fragment, text string, sp span, sheetNum int) []quarry.Fragment {
	name := fmt.Sprintf("Sheet %d", sheetNum)
	body := sp
	if strings.HasPrefix(text[sp.start:sp.end], "# ") {
		lineEnd := sp.end
		if idx := strings.IndexByte(text[sp.start:sp.end], '\n'); idx >= 0 {
			lineEnd = sp.start + idx
		}
		if label := strings.TrimSpace(text[sp.start+2 : lineEnd]); label != "" {
			name = label
		}
		body = trimSpan(text, span{start: lineEnd, end: sp.end})
	}

	content := text[body.start:body.end]
	if isMarkdownTable(content) {
		return append(frags, quarry.Fragment{
			Content:     text[sp.start:sp.end],
			Index:       len(frags),
			CharStart:   sp.start,
			CharEnd:     sp.end,
			Breadcrumbs: []string{name},
			Location: quarry.Location{
				Kind:     quarry.LocationSheetRows,
				Sheet:    name,
				RowStart: 1,
				RowEnd:   tableDataRows(content),
			},
			ChunkType: quarry.ChunkTable,
		})
	}

	rows := rowSpans(text, body)
	for g := 0; g < len(rows); g += tc.rowsPerGroup {
		e := min(g+tc.rowsPerGroup, len(rows))
		group := rows[g:e]

		var b strings.Builder
		b.WriteString("# ")
		b.WriteString(name)
		b.WriteString("\n\n")
		for i, r := range group {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(text[r.start:r.end])
		}

		frags = append(frags, quarry.Fragment{
			Content:     b.String(),
			Index:       len(frags),
			CharStart:   group[0].start,
			CharEnd:     group[len(group)-1].end,
			Breadcrumbs: []string{name},
			Location: quarry.Location{
				Kind:     quarry.LocationSheetRows,
				Sheet:    name,
				RowStart: g + 1,
				RowEnd:   e,
			},
			ChunkType: quarry.ChunkTableRowGroup,
		})
	}
	return frags
}

// isMarkdownTable reports whether a sheet body is a rendered markdown table:
// pipes, a header separator line, and more than two pipe characters overall.
func isMarkdownTable(s string) bool {
	return strings.Contains(s, "|") &&
		strings.Contains(s, "\n|-") &&
		strings.Count(s, "|") > 2
}

// tableDataRows counts the data rows of a markdown table, excluding the
// header and separator lines.
func tableDataRows(s string) int {
	rows := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			rows++
		}
	}
	if rows -= 2; rows < 1 {
		rows = 1
	}
	return rows
}

// rowSpans returns the trimmed span of every non-empty line inside body.
func rowSpans(text string, body span) []span {
	var rows []span
	start := body.start
	for start < body.end {
		end := body.end
		if idx := strings.IndexByte(text[start:body.end], '\n'); idx >= 0 {
			end = start + idx
		}
		if sp := trimSpan(text, span{start: start, end: end}); sp.start < sp.end {
			rows = append(rows, sp)
		}
		start = end + 1
	}
	return rows
}
