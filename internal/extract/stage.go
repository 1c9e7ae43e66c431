package extract

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/artifact"
	"github.com/sells-group/techpack-cli/internal/config"
	"github.com/sells-group/techpack-cli/internal/model"
	"github.com/sells-group/techpack-cli/internal/resilience"
)

// StageConfig holds the pacing and retry limits of the extraction stage.
type StageConfig struct {
	InterCallDelay  time.Duration
	ParseRetries    int
	ParseRetryDelay time.Duration

	RateLimitRetries        int
	RateLimitInitialBackoff time.Duration
	RateLimitMaxBackoff     time.Duration
}

// StageConfigFrom converts the extraction config section.
func StageConfigFrom(c config.ExtractionConfig) StageConfig {
	return StageConfig{
		InterCallDelay:          c.InterCallDelay(),
		ParseRetries:            c.ParseRetries,
		ParseRetryDelay:         c.ParseRetryDelay(),
		RateLimitRetries:        c.RateLimitRetries,
		RateLimitInitialBackoff: c.RateLimitInitialBackoff(),
		RateLimitMaxBackoff:     c.RateLimitMaxBackoff(),
	}
}

// Stage runs extraction over acquired artifacts one item at a time.
type Stage struct {
	Model     Model
	Artifacts artifact.Store
	Fields    *model.FieldSet
	Config    StageConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewStage creates a Stage.
func NewStage(m Model, artifacts artifact.Store, fields *model.FieldSet, cfg StageConfig) *Stage {
	return &Stage{
		Model:     m,
		Artifacts: artifacts,
		Fields:    fields,
		Config:    cfg,
		sleep:     resilience.Sleep,
	}
}

// Run extracts each key in order. onDone, when set, is called after every
// item with its outcome. Item failures are reported in the outcomes and
// never stop the stage.
func (s *Stage) Run(ctx context.Context, keys []string, onDone func(model.ExtractionOutcome)) []model.ExtractionOutcome {
	log := zap.L().With(zap.String("component", "extract"))
	outcomes := make([]model.ExtractionOutcome, 0, len(keys))

	for i, key := range keys {
		if i > 0 {
			_ = s.pause(ctx, s.Config.InterCallDelay)
		}

		out := s.extractOne(ctx, key)
		if out.Success {
			log.Info("extracted", zap.String("key", key), zap.Int("attempts", out.Attempts))
		} else {
			log.Warn("extraction failed",
				zap.String("key", key),
				zap.Int("attempts", out.Attempts),
				zap.String("error", out.Error),
			)
		}

		outcomes = append(outcomes, out)
		if onDone != nil {
			onDone(out)
		}
	}
	return outcomes
}

func (s *Stage) extractOne(ctx context.Context, key string) model.ExtractionOutcome {
	out := model.ExtractionOutcome{Key: key}
	fail := func(err error) model.ExtractionOutcome {
		out.Error = err.Error()
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	doc, err := s.Artifacts.Load(ctx, key)
	if err != nil {
		return fail(eris.Wrapf(err, "extract: load artifact %s", key))
	}

	req := ExtractRequest{Key: key, Document: doc, Fields: s.Fields}
	backoff := resilience.RetryConfig{
		InitialBackoff: s.Config.RateLimitInitialBackoff,
		MaxBackoff:     s.Config.RateLimitMaxBackoff,
		Multiplier:     2,
	}

	var parseFailures, rateLimits int
	for {
		out.Attempts++
		text, err := s.Model.Extract(ctx, req)
		if err == nil {
			var result model.ExtractionResult
			result, err = ParseResponse(text, s.Fields)
			if err == nil {
				out.Success = true
				out.Result = result
				return out
			}
		}

		var wait time.Duration
		switch {
		case errors.Is(err, ErrParse):
			if parseFailures >= s.Config.ParseRetries {
				return fail(err)
			}
			parseFailures++
			wait = s.Config.ParseRetryDelay
			zap.L().Debug("extract: retrying after parse failure",
				zap.String("key", key), zap.Int("retry", parseFailures), zap.Error(err))
		case IsRateLimited(err):
			if rateLimits >= s.Config.RateLimitRetries {
				return fail(err)
			}
			wait = resilience.Backoff(rateLimits, backoff)
			rateLimits++
			zap.L().Warn("extract: rate limited, backing off",
				zap.String("key", key), zap.Int("retry", rateLimits), zap.Duration("wait", wait))
		default:
			return fail(err)
		}

		if err := s.pause(ctx, wait); err != nil {
			return fail(err)
		}
	}
}

func (s *Stage) pause(ctx context.Context, d time.Duration) error {
	if s.sleep == nil {
		return resilience.Sleep(ctx, d)
	}
	return s.sleep(ctx, d)
}
