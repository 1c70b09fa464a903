// Package format turns raw redbiom output into tables and lists for display.
package format

import (
	"encoding/csv"
	"strings"
	"unicode"

	"github.com/kris-hansen/redbiomctl/utils/qiita"
)

// Shape is the detected layout of command output
type Shape int

const (
	Empty Shape = iota
	Scalar
	List
	Table
)

func (s Shape) String() string {
	switch s {
	case Scalar:
		return "scalar"
	case List:
		return "list"
	case Table:
		return "table"
	default:
		return "empty"
	}
}

// Output is parsed command output
type Output struct {
	Shape       Shape      `json:"shape"`
	Delimiter   string     `json:"delimiter,omitempty"`
	Headers     []string   `json:"headers,omitempty"`
	Rows        [][]string `json:"rows,omitempty"`
	Items       []string   `json:"items,omitempty"`
	Scalar      string     `json:"scalar,omitempty"`
	StudyColumn int        `json:"study_column"` // index into Headers, -1 when none
	StudyIDs    []string   `json:"study_ids,omitempty"`
	Raw         string     `json:"-"`
}

// Detect classifies raw output without keeping the parsed data
func Detect(raw string) Shape {
	return Parse(raw).Shape
}

// Parse classifies and splits raw output.
//
// Tab-separated output with a header whose width matches the first data row
// is a table, as is comma-separated output with at least three header fields.
// Any other output with several non-blank lines is a list, a single line is a scalar.
func Parse(raw string) Output {
	out := Output{Raw: raw, StudyColumn: -1}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out
	}
	lines := splitLines(trimmed)

	if len(lines) > 1 {
		if strings.Contains(lines[0], "\t") {
			if headers, rows, ok := parseDelimited(lines, '\t'); ok {
				out.Shape, out.Delimiter, out.Headers, out.Rows = Table, "\t", headers, rows
				out.findStudies()
				return out
			}
		} else if len(strings.Split(lines[0], ",")) > 2 {
			if headers, rows, ok := parseDelimited(lines, ','); ok {
				out.Shape, out.Delimiter, out.Headers, out.Rows = Table, ",", headers, rows
				out.findStudies()
				return out
			}
		}
	}

	var items []string
	for _, l := range lines {
		if s := strings.TrimSpace(l); s != "" {
			items = append(items, s)
		}
	}
	if len(items) == 1 {
		out.Shape, out.Scalar = Scalar, items[0]
		return out
	}
	out.Shape, out.Items = List, items
	out.StudyIDs = studiesIn(items)
	return out
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// parseDelimited splits a header and data rows. Rows narrower or wider than
// the header are padded or truncated, except the first, which must match.
func parseDelimited(lines []string, delim rune) ([]string, [][]string, bool) {
	r := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = delim == ','

	records, err := r.ReadAll()
	if err != nil || len(records) < 2 {
		return nil, nil, false
	}
	headers := records[0]
	if len(records[1]) != len(headers) {
		return nil, nil, false
	}
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row := make([]string, len(headers))
		copy(row, rec)
		rows = append(rows, row)
	}
	return headers, rows, true
}

// StudyID returns the Qiita study of a "<study>.<sample>" identifier
func StudyID(value string) (string, bool) {
	value = strings.TrimSpace(value)
	study, rest, found := strings.Cut(value, ".")
	if !found || study == "" || rest == "" {
		return "", false
	}
	for _, r := range study {
		if !unicode.IsDigit(r) {
			return "", false
		}
	}
	return study, true
}

// findStudies picks the first column holding sample identifiers
func (o *Output) findStudies() {
	for col := range o.Headers {
		values := make([]string, 0, len(o.Rows))
		for _, row := range o.Rows {
			values = append(values, row[col])
		}
		if ids := studiesIn(values); len(ids) > 0 {
			o.StudyColumn = col
			o.StudyIDs = ids
			return
		}
	}
}

// studiesIn returns the distinct study ids in first-seen order
func studiesIn(values []string) []string {
	seen := map[string]bool{}
	var ids []string
	for _, v := range values {
		if id, ok := StudyID(v); ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// StudyLink returns the Qiita page for a study id
func StudyLink(id string) string {
	return qiita.StudyURL(id)
}
