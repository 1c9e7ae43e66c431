// Package watchdog restarts stalled or transiently failed jobs with a
// bounded number of attempts per job.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/config"
	"github.com/sells-group/techpack-cli/internal/model"
	"github.com/sells-group/techpack-cli/internal/process"
	"github.com/sells-group/techpack-cli/internal/resilience"
	"github.com/sells-group/techpack-cli/internal/store"
)

// Config holds the restart policy.
type Config struct {
	PollInterval       time.Duration
	StaleThreshold     time.Duration
	RecentWindow       time.Duration
	MaxRestartAttempts int
	RetryablePatterns  []string
}

// ConfigFrom converts the watchdog config section.
func ConfigFrom(c config.WatchdogConfig) Config {
	return Config{
		PollInterval:       c.PollInterval(),
		StaleThreshold:     c.StaleThreshold(),
		RecentWindow:       c.RecentWindow(),
		MaxRestartAttempts: c.MaxRestartAttempts,
		RetryablePatterns:  c.RetryablePatterns,
	}
}

// Reason says why a job was picked up.
type Reason string

const (
	ReasonStalled         Reason = "stalled"
	ReasonRetryableFailed Reason = "retryable_failure"
)

// PollResult summarizes one poll.
type PollResult struct {
	Restarted []string
	Abandoned []string
	Forgotten []string
}

// Watchdog polls the job store and restarts workers. Attempt counts live
// only in memory for the life of the Watchdog.
type Watchdog struct {
	Store   store.Store
	Spawner process.Spawner
	Config  Config

	mu       sync.Mutex
	attempts map[string]int
	now      func() time.Time
}

// New creates a Watchdog.
func New(st store.Store, sp process.Spawner, cfg Config) *Watchdog {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Watchdog{
		Store:    st,
		Spawner:  sp,
		Config:   cfg,
		attempts: make(map[string]int),
		now:      time.Now,
	}
}

// Retryable reports whether a job error message describes a transient
// crash worth restarting.
func (w *Watchdog) Retryable(msg string) bool {
	return resilience.MatchesAny(msg, w.Config.RetryablePatterns)
}

// Attempts returns a copy of the restart counters.
func (w *Watchdog) Attempts() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.attempts)
}

// Run polls until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	zap.L().Info("watchdog: started",
		zap.Duration("poll_interval", w.Config.PollInterval),
		zap.Duration("stale_threshold", w.Config.StaleThreshold),
		zap.Int("max_restart_attempts", w.Config.MaxRestartAttempts),
	)

	ticker := time.NewTicker(w.Config.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			zap.L().Error("watchdog: poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			zap.L().Info("watchdog: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

type candidate struct {
	job    model.Job
	reason Reason
}

// Poll runs one detection and restart pass.
func (w *Watchdog) Poll(ctx context.Context) (*PollResult, error) {
	now := w.now().UTC()

	stalled, err := w.Store.ListJobs(ctx, store.JobFilter{
		Status:        model.JobStatusProcessing,
		UpdatedBefore: now.Add(-w.Config.StaleThreshold),
	})
	if err != nil {
		return nil, eris.Wrap(err, "watchdog: list stalled jobs")
	}
	failed, err := w.Store.ListJobs(ctx, store.JobFilter{
		Status:       model.JobStatusFailed,
		UpdatedAfter: now.Add(-w.Config.RecentWindow),
	})
	if err != nil {
		return nil, eris.Wrap(err, "watchdog: list failed jobs")
	}

	var candidates []candidate
	picked := make(map[string]bool)
	for _, j := range stalled {
		candidates = append(candidates, candidate{job: j, reason: ReasonStalled})
		picked[j.ID] = true
	}
	for _, j := range failed {
		if w.Retryable(j.ErrorMessage) {
			candidates = append(candidates, candidate{job: j, reason: ReasonRetryableFailed})
			picked[j.ID] = true
		}
	}

	res := &PollResult{}
	res.Forgotten = w.forgetFinished(ctx, picked)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		restarted, err := w.handle(ctx, c)
		if err != nil {
			zap.L().Error("watchdog: could not handle job",
				zap.String("job_id", c.job.ID), zap.Error(err))
			continue
		}
		if restarted {
			res.Restarted = append(res.Restarted, c.job.ID)
		} else {
			res.Abandoned = append(res.Abandoned, c.job.ID)
		}
	}
	return res, nil
}

// handle restarts the job or, when its attempts are used up, fails it
// permanently. It reports whether a restart happened.
func (w *Watchdog) handle(ctx context.Context, c candidate) (bool, error) {
	log := zap.L().With(zap.String("job_id", c.job.ID), zap.String("reason", string(c.reason)))

	w.mu.Lock()
	n := w.attempts[c.job.ID]
	w.mu.Unlock()

	if n >= w.Config.MaxRestartAttempts {
		msg := AbandonMessage(n, c.job.ProgressPercent)
		failed := model.JobStatusFailed
		if err := w.Store.UpdateJob(ctx, c.job.ID, store.JobPatch{Status: &failed, ErrorMessage: &msg}); err != nil {
			return false, eris.Wrap(err, "watchdog: mark abandoned")
		}
		w.mu.Lock()
		delete(w.attempts, c.job.ID)
		w.mu.Unlock()
		log.Warn("watchdog: job abandoned", zap.Int("attempts", n), zap.Int("progress", c.job.ProgressPercent))
		return false, nil
	}

	processing := model.JobStatusProcessing
	if err := w.Store.UpdateJob(ctx, c.job.ID, store.JobPatch{Status: &processing, ClearError: true}); err != nil {
		return false, eris.Wrap(err, "watchdog: mark processing")
	}

	w.mu.Lock()
	w.attempts[c.job.ID] = n + 1
	w.mu.Unlock()

	// A failed spawn leaves the job processing without a heartbeat; it is
	// picked up again as stalled and spends another attempt.
	if _, err := w.Spawner.Start(ctx, c.job.ID); err != nil {
		log.Error("watchdog: spawn failed", zap.Int("attempt", n+1), zap.Error(err))
		return true, nil
	}
	log.Info("watchdog: worker restarted",
		zap.Int("attempt", n+1),
		zap.Int("max_attempts", w.Config.MaxRestartAttempts),
		zap.String("previous_error", c.job.ErrorMessage),
	)
	return true, nil
}

// forgetFinished drops counters for tracked jobs that left processing for
// a reason that will not be retried.
func (w *Watchdog) forgetFinished(ctx context.Context, picked map[string]bool) []string {
	var forgotten []string
	for id := range w.Attempts() {
		if picked[id] {
			continue
		}
		j, err := w.Store.GetJob(ctx, id)
		switch {
		case errors.Is(err, store.ErrJobNotFound):
		case err != nil:
			zap.L().Warn("watchdog: could not check tracked job", zap.String("job_id", id), zap.Error(err))
			continue
		case !j.Status.Terminal():
			continue
		}

		w.mu.Lock()
		delete(w.attempts, id)
		w.mu.Unlock()
		forgotten = append(forgotten, id)
		zap.L().Info("watchdog: stopped tracking job", zap.String("job_id", id))
	}
	return forgotten
}

// AbandonMessage is the error recorded on a job that used up its restarts.
// It must not match any retryable pattern.
func AbandonMessage(attempts, progress int) string {
	return fmt.Sprintf("abandoned after %d crash cycles (last progress %d%%)", attempts, progress)
}
