package model

import (
	"slices"
	"time"
)

// JobStatus represents the lifecycle state of a tech pack job.
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusReadyForExport JobStatus = "ready_for_export"
	JobStatusFailed         JobStatus = "failed"
)

// Terminal reports whether the status ends a worker's run.
func (s JobStatus) Terminal() bool {
	return s == JobStatusReadyForExport || s == JobStatusFailed
}

// Job is the persisted record for one pipeline run. It is the single source
// of truth shared by the worker and the watchdog.
type Job struct {
	ID              string    `json:"id"`
	Status          JobStatus `json:"status"`
	InputFile       string    `json:"input_file"`
	StyleCount      int       `json:"style_count"`
	ProgressPercent int       `json:"progress_percent"`
	CurrentStyle    string    `json:"current_style,omitempty"`

	// Resume tracking. CompletedExtractions is always a subset of
	// CompletedDownloads and PartialExtractions is keyed by exactly
	// CompletedExtractions.
	CompletedDownloads   []string                    `json:"completed_downloads"`
	CompletedExtractions []string                    `json:"completed_extractions"`
	PartialExtractions   map[string]ExtractionResult `json:"partial_extractions"`

	SuccessfulCount int        `json:"successful_count"`
	FailedCount     int        `json:"failed_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ExtractedData   *JobOutput `json:"extracted_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // heartbeat, not a business timestamp
}

// Downloaded reports whether key is in CompletedDownloads.
func (j *Job) Downloaded(key string) bool {
	return slices.Contains(j.CompletedDownloads, key)
}

// Extracted reports whether key is in CompletedExtractions.
func (j *Job) Extracted(key string) bool {
	return slices.Contains(j.CompletedExtractions, key)
}

// FieldExtraction is one extracted canonical field.
type FieldExtraction struct {
	Value       string `json:"value"`
	Rationale   string `json:"rationale"`
	NeedsReview bool   `json:"needs_review"`
}

// ExtractionResult maps canonical field name to its extracted bundle.
// Immutable once stored in a job's partial extractions.
type ExtractionResult map[string]FieldExtraction
