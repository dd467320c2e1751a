package normalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

var _ Normalizer = CSVNormalizer{}

// CSVNormalizer renders CSV data as labeled sentence rows, one line per
// record: "Header1: Value1, Header2: Value2". The tabular chunker groups
// these lines; empty cells are omitted so sparse rows stay readable.
type CSVNormalizer struct{}

func (CSVNormalizer) Normalize(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(content)) == 0 {
		return "", nil
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	headers, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return "", nil
		}
		return "", fmt.Errorf("read headers: %w", err)
	}

	var rows []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read row: %w", err)
		}
		var fields []string
		for i, val := range record {
			if i >= len(headers) {
				break
			}
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			fields = append(fields, headers[i]+": "+val)
		}
		if len(fields) > 0 {
			rows = append(rows, strings.Join(fields, ", "))
		}
	}
	return Sanitize(strings.Join(rows, "\n")), nil
}
