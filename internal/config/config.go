package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Acquisition AcquisitionConfig `yaml:"acquisition" mapstructure:"acquisition"`
	Artifacts   ArtifactsConfig   `yaml:"artifacts" mapstructure:"artifacts"`
	Worker      WorkerConfig      `yaml:"worker" mapstructure:"worker"`
	Extraction  ExtractionConfig  `yaml:"extraction" mapstructure:"extraction"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat" mapstructure:"heartbeat"`
	Watchdog    WatchdogConfig    `yaml:"watchdog" mapstructure:"watchdog"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Fields      FieldsConfig      `yaml:"fields" mapstructure:"fields"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the job store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the extraction model.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AcquisitionConfig selects and configures the document acquisition engine.
type AcquisitionConfig struct {
	Engine      string `yaml:"engine" mapstructure:"engine"` // http, ftp or offline
	URLTemplate string `yaml:"url_template" mapstructure:"url_template"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  int    `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`

	// Backoff between download attempts.
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryMultiplier       float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
	RetryJitter           float64 `yaml:"retry_jitter" mapstructure:"retry_jitter"`

	// BreakerThreshold consecutive source failures make the remaining
	// acquisitions fail fast until BreakerResetSecs pass. 0 disables.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns the per-request acquisition timeout.
func (c AcquisitionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ArtifactsConfig configures where tech packs are cached.
type ArtifactsConfig struct {
	Driver         string      `yaml:"driver" mapstructure:"driver"` // local or minio
	Dir            string      `yaml:"dir" mapstructure:"dir"`
	FreshnessDays  int         `yaml:"freshness_days" mapstructure:"freshness_days"`
	LinkExpireDays int         `yaml:"link_expire_days" mapstructure:"link_expire_days"`
	Minio          MinioConfig `yaml:"minio" mapstructure:"minio"`
}

// MinioConfig holds object storage credentials for the minio artifact driver.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// WorkerConfig configures the acquisition worker pool.
type WorkerConfig struct {
	Parallelism int `yaml:"parallelism" mapstructure:"parallelism"`
}

// ExtractionConfig configures the serialized extraction stage.
type ExtractionConfig struct {
	InterCallDelayMs           int `yaml:"inter_call_delay_ms" mapstructure:"inter_call_delay_ms"`
	ParseRetries               int `yaml:"parse_retries" mapstructure:"parse_retries"`
	ParseRetryDelayMs          int `yaml:"parse_retry_delay_ms" mapstructure:"parse_retry_delay_ms"`
	RateLimitRetries           int `yaml:"rate_limit_retries" mapstructure:"rate_limit_retries"`
	RateLimitInitialBackoffSec int `yaml:"rate_limit_initial_backoff_secs" mapstructure:"rate_limit_initial_backoff_secs"`
	RateLimitMaxBackoffSec     int `yaml:"rate_limit_max_backoff_secs" mapstructure:"rate_limit_max_backoff_secs"`
}

// InterCallDelay returns the fixed pause between consecutive model calls.
func (c ExtractionConfig) InterCallDelay() time.Duration {
	return time.Duration(c.InterCallDelayMs) * time.Millisecond
}

// ParseRetryDelay returns the pause before re-asking after a parse failure.
func (c ExtractionConfig) ParseRetryDelay() time.Duration {
	return time.Duration(c.ParseRetryDelayMs) * time.Millisecond
}

// RateLimitInitialBackoff returns the first backoff after a rate limit.
func (c ExtractionConfig) RateLimitInitialBackoff() time.Duration {
	return time.Duration(c.RateLimitInitialBackoffSec) * time.Second
}

// RateLimitMaxBackoff caps the rate limit backoff.
func (c ExtractionConfig) RateLimitMaxBackoff() time.Duration {
	return time.Duration(c.RateLimitMaxBackoffSec) * time.Second
}

// HeartbeatConfig configures the worker liveness signal.
type HeartbeatConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
}

// Interval returns the heartbeat period.
func (c HeartbeatConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// WatchdogConfig configures the restart policy.
type WatchdogConfig struct {
	PollIntervalSecs   int      `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	StaleThresholdSecs int      `yaml:"stale_threshold_secs" mapstructure:"stale_threshold_secs"`
	RecentWindowSecs   int      `yaml:"recent_window_secs" mapstructure:"recent_window_secs"`
	MaxRestartAttempts int      `yaml:"max_restart_attempts" mapstructure:"max_restart_attempts"`
	RetryablePatterns  []string `yaml:"retryable_patterns" mapstructure:"retryable_patterns"`
	LogDir             string   `yaml:"log_dir" mapstructure:"log_dir"`
	HTTPAddr           string   `yaml:"http_addr" mapstructure:"http_addr"`
}

// PollInterval returns the store polling period.
func (c WatchdogConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// StaleThreshold returns how old a processing job's heartbeat may get.
func (c WatchdogConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdSecs) * time.Second
}

// RecentWindow returns how recent a failure must be to be retried.
func (c WatchdogConfig) RecentWindow() time.Duration {
	return time.Duration(c.RecentWindowSecs) * time.Second
}

// OutputConfig configures where assembled tables are written.
type OutputConfig struct {
	Dir  string `yaml:"dir" mapstructure:"dir"`
	XLSX bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// FieldsConfig points at an optional canonical field definition file.
type FieldsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// ServerConfig configures the watchdog status endpoint.
type ServerConfig struct {
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultRetryablePatterns are the error substrings that mark a failed job
// as a transient crash the watchdog may restart.
var DefaultRetryablePatterns = []string{
	"ECONNRESET",
	"connection reset",
	"socket hang up",
	"timeout",
	"timed out",
	"Target closed",
	"browser has been closed",
	"context was destroyed",
	"page closed",
	"browser closed",
	"context closed",
	"popup",
	"navigation",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TECHPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "techpack.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("acquisition.engine", "http")
	v.SetDefault("acquisition.user_agent", "techpack-cli/1.0")
	v.SetDefault("acquisition.timeout_secs", 60)
	v.SetDefault("acquisition.max_retries", 3)
	v.SetDefault("acquisition.rate_per_sec", 5)
	v.SetDefault("acquisition.retry_initial_backoff_ms", 1000)
	v.SetDefault("acquisition.retry_max_backoff_ms", 30000)
	v.SetDefault("acquisition.retry_multiplier", 2.0)
	v.SetDefault("acquisition.retry_jitter", 0.25)
	v.SetDefault("acquisition.breaker_threshold", 5)
	v.SetDefault("acquisition.breaker_reset_secs", 30)
	v.SetDefault("artifacts.driver", "local")
	v.SetDefault("artifacts.dir", "techpacks")
	v.SetDefault("artifacts.freshness_days", 7)
	v.SetDefault("artifacts.link_expire_days", 7)
	v.SetDefault("artifacts.minio.bucket", "techpacks")
	v.SetDefault("artifacts.minio.region", "us-east-1")
	v.SetDefault("worker.parallelism", 3)
	v.SetDefault("extraction.inter_call_delay_ms", 2000)
	v.SetDefault("extraction.parse_retries", 3)
	v.SetDefault("extraction.parse_retry_delay_ms", 2000)
	v.SetDefault("extraction.rate_limit_retries", 4)
	v.SetDefault("extraction.rate_limit_initial_backoff_secs", 30)
	v.SetDefault("extraction.rate_limit_max_backoff_secs", 480)
	v.SetDefault("heartbeat.interval_secs", 20)
	v.SetDefault("watchdog.poll_interval_secs", 60)
	v.SetDefault("watchdog.stale_threshold_secs", 180)
	v.SetDefault("watchdog.recent_window_secs", 600)
	v.SetDefault("watchdog.max_restart_attempts", 3)
	v.SetDefault("watchdog.retryable_patterns", DefaultRetryablePatterns)
	v.SetDefault("watchdog.log_dir", "logs")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.xlsx", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command needs are present. mode is
// "worker", "worker-offline" or "watchdog".
func (c *Config) Validate(mode string) error {
	var missing []string

	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		missing = append(missing, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "worker":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Acquisition.Engine != "offline" && c.Acquisition.URLTemplate == "" {
			missing = append(missing, "acquisition.url_template is required")
		}
		missing = append(missing, c.validatePipeline()...)
	case "worker-offline":
		missing = append(missing, c.validatePipeline()...)
	case "watchdog":
		if c.Watchdog.MaxRestartAttempts < 0 {
			missing = append(missing, "watchdog.max_restart_attempts must be >= 0")
		}
		if c.Watchdog.StaleThresholdSecs <= c.Heartbeat.IntervalSecs {
			missing = append(missing, "watchdog.stale_threshold_secs must exceed heartbeat.interval_secs")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid for %s:\n  %s", mode, strings.Join(missing, "\n  "))
	}
	return nil
}

func (c *Config) validatePipeline() []string {
	var missing []string
	if c.Worker.Parallelism <= 0 {
		missing = append(missing, "worker.parallelism must be > 0")
	}
	if c.Artifacts.FreshnessDays <= 0 {
		missing = append(missing, "artifacts.freshness_days must be > 0")
	}
	if c.Artifacts.Driver == "minio" && c.Artifacts.Minio.Endpoint == "" {
		missing = append(missing, "artifacts.minio.endpoint is required")
	}
	return missing
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
