// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers file and env on top.
// - Validation lives in Validate so callers building a Config by hand get the same checks.
package config

import (
	"fmt"
	"time"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported scoring rules.
const (
	RuleMean        = "mean"
	RuleTrimmedMean = "trimmed_mean"
	RuleMedian      = "median"
)

// Config contains process configuration for the scoring server.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBDriver is postgres or sqlite.
	DBDriver string `koanf:"db_driver"`

	// DBDSN is the driver specific connection string.
	DBDSN string `koanf:"db_dsn"`

	// DBMaxOpenConns caps the pool. Forced to 1 for sqlite.
	DBMaxOpenConns int `koanf:"db_max_open_conns"`

	// ScoringRule picks how one run's judge scores reduce to a run score.
	ScoringRule string `koanf:"scoring_rule"`

	// TrimMinJudges is the panel size at which trimmed_mean starts dropping extremes.
	TrimMinJudges int `koanf:"trim_min_judges"`

	// ScorePrecision is the number of decimals run scores are rounded to.
	ScorePrecision int `koanf:"score_precision"`

	// ScoreMin and ScoreMax bound an accepted judge score.
	ScoreMin float64 `koanf:"score_min"`
	ScoreMax float64 `koanf:"score_max"`

	// DedupeSize sets how many submission ids are remembered for replay detection.
	DedupeSize int `koanf:"dedupe_size"`

	// RequirePanelSession makes POST /api/scores demand a panel token.
	RequirePanelSession bool `koanf:"require_panel_session"`

	// SessionSecret signs panel session tokens.
	SessionSecret string `koanf:"session_secret"`

	// SessionTTL is the lifetime of an issued panel session.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// SessionRatePerSec and SessionBurst throttle passcode attempts per client IP.
	SessionRatePerSec float64 `koanf:"session_rate_per_sec"`
	SessionBurst      int     `koanf:"session_burst"`

	// RequestTimeoutMS bounds store work done for one request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`
	// SeedFile optionally names a YAML file of heats inserted at startup.
	SeedFile string `koanf:"seed_file"`
	// MetricsIntervalMS is how often store and runtime gauges are refreshed.
	MetricsIntervalMS int `koanf:"metrics_interval_ms"`
}

// New creates a Config with defaults suitable for local development.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		DBDriver:            DriverSQLite,
		DBDSN:               "file:heatscore.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		DBMaxOpenConns:      10,
		ScoringRule:         RuleMean,
		TrimMinJudges:       5,
		ScorePrecision:      2,
		ScoreMin:            0,
		ScoreMax:            100,
		DedupeSize:          100_000,
		RequirePanelSession: false,
		SessionTTL:          12 * time.Hour,
		SessionRatePerSec:   1,
		SessionBurst:        10,
		RequestTimeoutMS:    5_000,
		MetricsIntervalMS:   10_000,
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// MetricsInterval returns MetricsIntervalMS as a duration.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite:
		return fmt.Errorf("%w: db_driver must be %q or %q, got %q", ErrInvalidConfig, DriverPostgres, DriverSQLite, c.DBDriver)
	case c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.ScoringRule != RuleMean && c.ScoringRule != RuleTrimmedMean && c.ScoringRule != RuleMedian:
		return fmt.Errorf("%w: unknown scoring_rule %q", ErrInvalidConfig, c.ScoringRule)
	case c.TrimMinJudges < 3:
		return fmt.Errorf("%w: trim_min_judges must be at least 3", ErrInvalidConfig)
	case c.ScorePrecision < 0 || c.ScorePrecision > 6:
		return fmt.Errorf("%w: score_precision must be between 0 and 6", ErrInvalidConfig)
	case c.ScoreMin >= c.ScoreMax:
		return fmt.Errorf("%w: score_min must be below score_max", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.RequirePanelSession && c.SessionSecret == "":
		return fmt.Errorf("%w: session_secret is required when require_panel_session is set", ErrInvalidConfig)
	case c.SessionTTL <= 0:
		return fmt.Errorf("%w: session_ttl must be positive", ErrInvalidConfig)
	case c.SessionRatePerSec <= 0 || c.SessionBurst <= 0:
		return fmt.Errorf("%w: session rate and burst must be positive", ErrInvalidConfig)
	case c.RequestTimeoutMS <= 0:
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	case c.MetricsIntervalMS <= 0:
		return fmt.Errorf("%w: metrics_interval_ms must be positive", ErrInvalidConfig)
	}
	return nil
}
