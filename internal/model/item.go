package model

import (
	"strings"
	"time"
	"unicode"
)

// Row is one original input row. Values keeps the positional cells exactly
// as read; Fields indexes the same cells by normalized column name.
type Row struct {
	Values []string          `json:"values"`
	Fields map[string]string `json:"fields"`
}

// Get looks a column up by name, ignoring case, spacing and punctuation.
func (r Row) Get(name string) string {
	return r.Fields[NormalizeColumn(name)]
}

// NormalizeColumn folds a header name to its lookup form: lower-case
// letters and digits only.
func NormalizeColumn(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// WorkItems is the parsed input table: unique keys in first-seen order and
// every original row grouped by key. Rows with a blank identifier have no
// key; they are kept in Unkeyed, in input order, and never acquired.
// TotalRows counts both.
type WorkItems struct {
	Header    []string         `json:"header"`
	HasHeader bool             `json:"has_header"`
	Keys      []string         `json:"keys"`
	Rows      map[string][]Row `json:"rows"`
	Unkeyed   []Row            `json:"unkeyed,omitempty"`
	TotalRows int              `json:"total_rows"`
}

// Artifact describes a stored tech pack document for one work item.
type Artifact struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// AcquisitionResult is the outcome of acquiring one item's artifact.
type AcquisitionResult struct {
	Key      string    `json:"key"`
	Success  bool      `json:"success"`
	Skipped  bool      `json:"skipped,omitempty"` // fresh cached artifact reused
	Artifact *Artifact `json:"artifact,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// ExtractionOutcome is the outcome of extracting one item's artifact.
type ExtractionOutcome struct {
	Key      string           `json:"key"`
	Success  bool             `json:"success"`
	Result   ExtractionResult `json:"result,omitempty"`
	Attempts int              `json:"attempts"`
	Error    string           `json:"error,omitempty"`
}
