// Package job runs one tech pack job end to end: resume, acquisition,
// extraction and output assembly.
package job

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/acquire"
	"github.com/sells-group/techpack-cli/internal/artifact"
	"github.com/sells-group/techpack-cli/internal/assemble"
	"github.com/sells-group/techpack-cli/internal/extract"
	"github.com/sells-group/techpack-cli/internal/model"
	"github.com/sells-group/techpack-cli/internal/resume"
	"github.com/sells-group/techpack-cli/internal/store"
	"github.com/sells-group/techpack-cli/internal/workitem"
)

// Config holds the runner settings.
type Config struct {
	Parallelism int
	Extraction  extract.StageConfig
	OutputDir   string
	XLSX        bool
}

// Runner drives a job through both phases.
type Runner struct {
	Store  store.Store
	Cache  *artifact.Cache
	Engine acquire.Engine
	Model  extract.Model
	Fields *model.FieldSet
	Config Config
	// OnPanic is handed to the acquisition pool for panics in its workers.
	OnPanic func(any)
}

// Summary describes a finished run.
type Summary struct {
	JobID      string
	Successful int
	Failed     int
	Files      []string
	Skipped    bool // job was already complete
}

// Run processes jobID. Item failures are reflected in the counts; an
// error is returned only when the job cannot be run or finalized.
func (r *Runner) Run(ctx context.Context, jobID string) (*Summary, error) {
	log := zap.L().With(zap.String("job_id", jobID))

	job, err := r.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "job: load")
	}
	if job.Status == model.JobStatusReadyForExport {
		log.Info("job: already complete, nothing to do")
		return &Summary{JobID: jobID, Successful: job.SuccessfulCount, Failed: job.FailedCount, Skipped: true}, nil
	}

	processing := model.JobStatusProcessing
	if err := r.Store.UpdateJob(ctx, jobID, store.JobPatch{Status: &processing, ClearError: true}); err != nil {
		return nil, eris.Wrap(err, "job: mark processing")
	}

	items, err := workitem.Read(job.InputFile)
	if err != nil {
		return nil, err
	}
	total := len(items.Keys)
	if err := r.Store.UpdateJob(ctx, jobID, store.JobPatch{StyleCount: &total}); err != nil {
		return nil, eris.Wrap(err, "job: set style count")
	}

	ctl := &resume.Controller{Store: r.Store, Cache: r.Cache}
	plan, err := ctl.Reconcile(ctx, job, items.Keys)
	if err != nil {
		return nil, err
	}

	progress := NewProgress(total, plan.Done())
	r.report(ctx, log, jobID, progress.Percent(), "")

	// Phase 1: acquisition.
	start := time.Now()
	pool := &acquire.Pool{Engine: r.Engine, Cache: r.Cache, Parallelism: r.Config.Parallelism, OnPanic: r.OnPanic}
	acquired := pool.Run(ctx, plan.RemainingDownloads, func(res model.AcquisitionResult) {
		r.report(ctx, log, jobID, progress.Advance(), res.Key)
		if !res.Success {
			return
		}
		if err := r.Store.AddCompletedDownload(ctx, jobID, res.Key); err != nil {
			log.Warn("job: could not record download", zap.String("key", res.Key), zap.Error(err))
		}
	})

	var successful []string
	for _, res := range acquired {
		if res.Success {
			successful = append(successful, res.Key)
		}
	}
	log.Info("job: phase complete",
		zap.String("phase", "acquire"),
		zap.Int("attempted", len(acquired)),
		zap.Int("succeeded", len(successful)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	// Phase 2: extraction.
	start = time.Now()
	results := make(map[string]model.ExtractionResult, total)
	for k, res := range plan.Prior {
		results[k] = res
	}
	stage := extract.NewStage(r.Model, r.Cache.Store, r.Fields, r.Config.Extraction)
	queue := plan.ExtractionQueue(successful)
	stage.Run(ctx, queue, func(out model.ExtractionOutcome) {
		r.report(ctx, log, jobID, progress.Advance(), out.Key)
		if !out.Success {
			return
		}
		// Only recorded extractions count, so the final counts always agree
		// with completed_extractions.
		if err := r.Store.RecordExtraction(ctx, jobID, out.Key, out.Result); err != nil {
			log.Warn("job: could not record extraction", zap.String("key", out.Key), zap.Error(err))
			return
		}
		results[out.Key] = out.Result
	})
	log.Info("job: phase complete",
		zap.String("phase", "extract"),
		zap.Int("attempted", len(queue)),
		zap.Int("prior", len(plan.Prior)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	// Assembly.
	links := make(map[string]string, len(results))
	for k := range results {
		link, err := r.Cache.Store.Link(ctx, k)
		if err != nil {
			log.Warn("job: no link for artifact", zap.String("key", k), zap.Error(err))
			continue
		}
		links[k] = link
	}
	out := assemble.Assemble(items, r.Fields, results, links)
	files, err := assemble.WriteFiles(out, filepath.Join(r.Config.OutputDir, jobID), r.Config.XLSX)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		JobID:      jobID,
		Successful: len(results),
		Failed:     total - len(results),
		Files:      files,
	}
	ready := model.JobStatusReadyForExport
	if err := r.Store.UpdateJob(ctx, jobID, store.JobPatch{
		Status:          &ready,
		ProgressPercent: store.Ptr(100),
		CurrentStyle:    store.Ptr(""),
		SuccessfulCount: &sum.Successful,
		FailedCount:     &sum.Failed,
		ExtractedData:   out,
		ClearError:      true,
	}); err != nil {
		return nil, eris.Wrap(err, "job: finalize")
	}

	log.Info("job: complete",
		zap.Int("successful", sum.Successful),
		zap.Int("failed", sum.Failed),
		zap.Strings("files", files),
	)
	return sum, nil
}

// report writes progress and the current style cursor. Failures are logged;
// the heartbeat, not progress, is the liveness signal.
func (r *Runner) report(ctx context.Context, log *zap.Logger, jobID string, pct int, key string) {
	patch := store.JobPatch{ProgressPercent: &pct}
	if key != "" {
		patch.CurrentStyle = &key
	}
	if err := r.Store.UpdateJob(ctx, jobID, patch); err != nil {
		log.Warn("job: could not update progress", zap.Int("progress", pct), zap.Error(err))
	}
}
