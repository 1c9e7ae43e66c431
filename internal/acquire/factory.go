package acquire

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/config"
	"github.com/sells-group/techpack-cli/internal/fetcher"
	"github.com/sells-group/techpack-cli/internal/resilience"
)

// NewEngine builds the engine named by cfg.Engine: http, ftp or offline.
func NewEngine(cfg config.AcquisitionConfig) (Engine, error) {
	var f fetcher.Fetcher
	switch strings.ToLower(cfg.Engine) {
	case "offline":
		return OfflineEngine{}, nil
	case "http", "https", "":
		retry := retryFrom(cfg)
		f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.UserAgent,
			Timeout:    cfg.Timeout(),
			MaxRetries: cfg.MaxRetries,
			RatePerSec: float64(cfg.RatePerSec),
			Retry:      &retry,
		})
	case "ftp":
		f = fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: cfg.Timeout()})
	default:
		return nil, eris.Errorf("acquire: unknown engine %q", cfg.Engine)
	}

	e := &FetchEngine{Fetcher: f, URLTemplate: cfg.URLTemplate}
	if bcfg, ok := resilience.FromCircuitConfig(cfg.BreakerThreshold, cfg.BreakerResetSecs); ok {
		bcfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("acquire: source breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		e.Breaker = resilience.NewCircuitBreaker(bcfg)
	}
	return e, nil
}

func retryFrom(cfg config.AcquisitionConfig) resilience.RetryConfig {
	return resilience.FromRetryConfig(cfg.MaxRetries, cfg.RetryInitialBackoffMs, cfg.RetryMaxBackoffMs, cfg.RetryMultiplier, cfg.RetryJitter)
}
