// Package acquire turns work item keys into stored tech pack artifacts
// with a bounded pool of workers.
package acquire

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/fetcher"
	"github.com/sells-group/techpack-cli/internal/resilience"
)

// Engine produces per-worker sessions against the document source.
type Engine interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one worker's isolated connection to the document source. A
// session is used by a single goroutine.
type Session interface {
	// Acquire returns the document bytes for key.
	Acquire(ctx context.Context, key string) ([]byte, error)
	// Recover resets the session after a failed item.
	Recover(ctx context.Context) error
	Close() error
}

// KeyPlaceholder is replaced by the escaped work item key in URL templates.
const KeyPlaceholder = "{key}"

// FetchEngine downloads documents from a URL template through a Fetcher
// (HTTP or FTP). An optional breaker makes acquisitions fail fast while the
// source is down.
type FetchEngine struct {
	Fetcher     fetcher.Fetcher
	URLTemplate string
	Breaker     *resilience.CircuitBreaker
}

// URLFor expands the template for key.
func (e *FetchEngine) URLFor(key string) string {
	return strings.ReplaceAll(e.URLTemplate, KeyPlaceholder, url.PathEscape(key))
}

func (e *FetchEngine) NewSession(_ context.Context) (Session, error) {
	if !strings.Contains(e.URLTemplate, KeyPlaceholder) {
		return nil, eris.Errorf("acquire: url template %q has no %s placeholder", e.URLTemplate, KeyPlaceholder)
	}
	return &fetchSession{engine: e}, nil
}

type fetchSession struct {
	engine *FetchEngine
}

func (s *fetchSession) Acquire(ctx context.Context, key string) ([]byte, error) {
	u := s.engine.URLFor(key)
	fetch := func(ctx context.Context) ([]byte, error) {
		return fetcher.Fetch(ctx, s.engine.Fetcher, u)
	}

	var data []byte
	var err error
	if s.engine.Breaker != nil {
		data, err = resilience.ExecuteVal(ctx, s.engine.Breaker, fetch)
	} else {
		data, err = fetch(ctx)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "acquire %s", key)
	}
	if len(data) == 0 {
		return nil, eris.Errorf("acquire %s: empty document", key)
	}
	return data, nil
}

// Recover holds no per-item state to reset. It reports an open source
// breaker so a run of fast failures is visible in the worker log.
func (s *fetchSession) Recover(context.Context) error {
	if b := s.engine.Breaker; b != nil && b.State() == resilience.CircuitOpen {
		zap.L().Warn("acquire: source breaker open, items fail fast",
			zap.String("url_template", s.engine.URLTemplate),
		)
	}
	return nil
}

func (s *fetchSession) Close() error { return nil }

// OfflineEngine returns a small deterministic placeholder document per key.
// Used with --offline to exercise the pipeline without a document source.
type OfflineEngine struct{}

func (OfflineEngine) NewSession(context.Context) (Session, error) {
	zap.L().Debug("acquire: offline session opened")
	return offlineSession{}, nil
}

type offlineSession struct{}

func (offlineSession) Acquire(_ context.Context, key string) ([]byte, error) {
	return []byte(fmt.Sprintf("%%PDF-1.4\n%% offline tech pack for %s\n%%%%EOF\n", key)), nil
}

func (offlineSession) Recover(context.Context) error { return nil }
func (offlineSession) Close() error                  { return nil }
