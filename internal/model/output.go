package model

// JobOutput is the final payload written to a job on success.
type JobOutput struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	Audit  []AuditRow `json:"audit"`
}

// AuditRow records one extracted (key, field) pair for human review. Audit
// rows are never merged into the primary table.
type AuditRow struct {
	Key         string `json:"key"`
	Field       string `json:"field"`
	Value       string `json:"value"`
	Rationale   string `json:"rationale"`
	NeedsReview bool   `json:"needs_review"`
}

// AuditHeader is the column order used when the audit table is exported.
var AuditHeader = []string{"Style", "Field", "Value", "Rationale", "Needs Review"}
