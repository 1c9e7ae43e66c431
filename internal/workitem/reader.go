// Package workitem reads the style table a job is submitted with and groups
// its rows into work items.
package workitem

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/techpack-cli/internal/fetcher"
	"github.com/sells-group/techpack-cli/internal/model"
)

// KeySeparator splits a style identifier into its key and variant suffix.
const KeySeparator = "-"

var headerPattern = regexp.MustCompile(`(?i)^(style|item)`)

// KeyOf derives the work item key from a raw identifier: the trimmed text
// before the first separator. Identifiers that start with the separator
// keep their whole trimmed text.
func KeyOf(identifier string) string {
	id := strings.TrimSpace(identifier)
	prefix, _, _ := strings.Cut(id, KeySeparator)
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		return prefix
	}
	return id
}

// Read parses the table at path (.xlsx, or delimited text otherwise). It
// fails only when the file cannot be opened or read; malformed records
// degrade to a plain comma split.
func Read(path string) (*model.WorkItems, error) {
	var records [][]string
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "workitem: read %s", path)
		}
		records = rows
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "workitem: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		records, err = ParseDelimited(f)
		if err != nil {
			return nil, eris.Wrapf(err, "workitem: read %s", path)
		}
	}

	items := Group(records)
	zap.L().Info("workitem: read style table",
		zap.String("path", path),
		zap.Int("keys", len(items.Keys)),
		zap.Int("rows", items.TotalRows),
		zap.Int("unkeyed_rows", len(items.Unkeyed)),
		zap.Bool("has_header", items.HasHeader),
	)
	return items, nil
}

// ParseDelimited splits r into logical CSV records. A UTF-8 byte order
// mark is dropped, physical lines are joined while a quoted field is still
// open, and blank lines are ignored.
func ParseDelimited(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, eris.Wrap(err, "workitem: read input")
	}

	var records [][]string
	var pending []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		pending = append(pending, line)
		logical := strings.Join(pending, "\n")
		if quoteOpen(logical) {
			continue
		}
		pending = pending[:0]
		if strings.TrimSpace(logical) == "" {
			continue
		}
		records = append(records, parseRecord(logical))
	}
	// An unterminated quote at EOF still yields its record.
	if len(pending) > 0 {
		if logical := strings.Join(pending, "\n"); strings.TrimSpace(logical) != "" {
			records = append(records, parseRecord(logical))
		}
	}
	return records, nil
}

// quoteOpen reports whether s ends inside a quoted field. A quote only
// opens a field when it is the field's first non-blank character, so stray
// inch marks in unquoted cells do not swallow following lines.
func quoteOpen(s string) bool {
	inQuotes, fieldStart := false, true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuotes && c == '"':
			if i+1 < len(s) && s[i+1] == '"' {
				i++
				continue
			}
			inQuotes = false
		case inQuotes:
		case c == '"' && fieldStart:
			inQuotes = true
			fieldStart = false
		case c == ',':
			fieldStart = true
		case c != ' ' && c != '\t':
			fieldStart = false
		}
	}
	return inQuotes
}

func parseRecord(logical string) []string {
	cr := csv.NewReader(strings.NewReader(logical))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	rec, err := cr.Read()
	if err != nil {
		zap.L().Debug("workitem: malformed record, splitting on commas", zap.Error(err))
		return strings.Split(logical, ",")
	}
	return rec
}

// Group turns raw records into work items. The first record is a header
// only when its first cell starts with "style" or "item"; otherwise
// columns get positional names. Records with an empty identifier go to
// Unkeyed so they still reach the output.
func Group(records [][]string) *model.WorkItems {
	items := &model.WorkItems{Rows: make(map[string][]model.Row)}

	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}

	body := records
	if len(records) > 0 && len(records[0]) > 0 && headerPattern.MatchString(strings.TrimSpace(records[0][0])) {
		items.HasHeader = true
		items.Header = make([]string, len(records[0]))
		for i, h := range records[0] {
			items.Header[i] = strings.TrimSpace(h)
		}
		body = records[1:]
	}
	for i := len(items.Header); i < width; i++ {
		items.Header = append(items.Header, positionalName(i))
	}

	for _, rec := range body {
		items.TotalRows++
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			items.Unkeyed = append(items.Unkeyed, newRow(items.Header, rec))
			continue
		}
		key := KeyOf(rec[0])
		if _, seen := items.Rows[key]; !seen {
			items.Keys = append(items.Keys, key)
		}
		items.Rows[key] = append(items.Rows[key], newRow(items.Header, rec))
	}
	return items
}

func newRow(header, values []string) model.Row {
	row := model.Row{
		Values: append([]string(nil), values...),
		Fields: make(map[string]string, len(values)),
	}
	for i, v := range values {
		name := model.NormalizeColumn(header[i])
		if name == "" {
			name = model.NormalizeColumn(positionalName(i))
		}
		if _, dup := row.Fields[name]; !dup {
			row.Fields[name] = v
		}
	}
	return row
}

func positionalName(i int) string {
	if i == 0 {
		return "Style"
	}
	return fmt.Sprintf("Column %d", i+1)
}
