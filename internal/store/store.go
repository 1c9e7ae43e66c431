package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/techpack-cli/internal/model"
)

// ErrJobNotFound is returned when a job id has no record.
var ErrJobNotFound = eris.New("job not found")

// ErrNotDownloaded is returned when an extraction is recorded for an item
// whose download is not marked complete.
var ErrNotDownloaded = eris.New("item download not recorded")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status        model.JobStatus `json:"status,omitempty"`
	UpdatedBefore time.Time       `json:"updated_before,omitempty"`
	UpdatedAfter  time.Time       `json:"updated_after,omitempty"`
	Limit         int             `json:"limit,omitempty"`
}

// JobPatch is a partial update of a job record. Nil fields are left as
// they are; every patch also refreshes updated_at.
type JobPatch struct {
	Status          *model.JobStatus
	StyleCount      *int
	ProgressPercent *int
	CurrentStyle    *string
	ErrorMessage    *string
	SuccessfulCount *int
	FailedCount     *int
	ExtractedData   *model.JobOutput
	ClearError      bool
}

// Store defines the job store operations used by the worker and watchdog.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, inputFile string) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	UpdateJob(ctx context.Context, jobID string, patch JobPatch) error
	Touch(ctx context.Context, jobID string) error

	// Resume tracking
	AddCompletedDownload(ctx context.Context, jobID, key string) error
	RemoveCompletedDownloads(ctx context.Context, jobID string, keys []string) error
	RecordExtraction(ctx context.Context, jobID, key string, result model.ExtractionResult) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// buildPatch renders the SET clause of a job update. placeholder formats
// the n-th (1-based) bind parameter for the driver.
func buildPatch(p JobPatch, now time.Time, placeholder func(n int) string) (string, []any, error) {
	var sets string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		if sets != "" {
			sets += ", "
		}
		sets += fmt.Sprintf("%s = %s", col, placeholder(len(args)))
	}

	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.StyleCount != nil {
		add("style_count", *p.StyleCount)
	}
	if p.ProgressPercent != nil {
		add("progress_percent", *p.ProgressPercent)
	}
	if p.CurrentStyle != nil {
		add("current_style", *p.CurrentStyle)
	}
	switch {
	case p.ErrorMessage != nil:
		add("error_message", *p.ErrorMessage)
	case p.ClearError:
		add("error_message", "")
	}
	if p.SuccessfulCount != nil {
		add("successful_count", *p.SuccessfulCount)
	}
	if p.FailedCount != nil {
		add("failed_count", *p.FailedCount)
	}
	if p.ExtractedData != nil {
		data, err := json.Marshal(p.ExtractedData)
		if err != nil {
			return "", nil, eris.Wrap(err, "store: marshal extracted data")
		}
		add("extracted_data", string(data))
	}
	add("updated_at", now)

	return sets, args, nil
}

// itemState is one job_items row as loaded by GetJob.
type itemState struct {
	key        string
	downloaded bool
	extracted  bool
	extraction []byte
}

// applyItems fills the three resume-tracking fields of j from its item rows.
func applyItems(j *model.Job, items []itemState) error {
	j.CompletedDownloads = []string{}
	j.CompletedExtractions = []string{}
	j.PartialExtractions = make(map[string]model.ExtractionResult)
	for _, it := range items {
		if it.downloaded || it.extracted {
			j.CompletedDownloads = append(j.CompletedDownloads, it.key)
		}
		if !it.extracted {
			continue
		}
		var res model.ExtractionResult
		if len(it.extraction) > 0 {
			if err := json.Unmarshal(it.extraction, &res); err != nil {
				return eris.Wrapf(err, "store: unmarshal extraction for %s", it.key)
			}
		}
		if res == nil {
			res = model.ExtractionResult{}
		}
		j.CompletedExtractions = append(j.CompletedExtractions, it.key)
		j.PartialExtractions[it.key] = res
	}
	return nil
}
