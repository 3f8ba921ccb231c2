// Package config loads client-sniper settings from config.yaml and SNIPER_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Resolve ResolveConfig `yaml:"resolve" mapstructure:"resolve"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ResolveConfig tunes entity resolution.
type ResolveConfig struct {
	Threshold       float64 `yaml:"threshold" mapstructure:"threshold"`
	MaxCandidates   int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	LookupTimeoutMs int     `yaml:"lookup_timeout_ms" mapstructure:"lookup_timeout_ms"`
	WriteTimeoutMs  int     `yaml:"write_timeout_ms" mapstructure:"write_timeout_ms"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// LookupTimeout returns LookupTimeoutMs as a duration.
func (r ResolveConfig) LookupTimeout() time.Duration {
	return time.Duration(r.LookupTimeoutMs) * time.Millisecond
}

// WriteTimeout returns WriteTimeoutMs as a duration.
func (r ResolveConfig) WriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutMs) * time.Millisecond
}

// IngestConfig configures batch ingestion.
type IngestConfig struct {
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	DLQPath     string        `yaml:"dlq_path" mapstructure:"dlq_path"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures whole-resolution retries during ingestion.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the store circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "client-sniper.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("resolve.threshold", 0.7)
	v.SetDefault("resolve.max_candidates", 20)
	v.SetDefault("resolve.lookup_timeout_ms", 2000)
	v.SetDefault("resolve.write_timeout_ms", 5000)
	v.SetDefault("resolve.max_attempts", 5)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.dlq_path", "ingest-dlq.jsonl")
	v.SetDefault("ingest.retry.max_attempts", 3)
	v.SetDefault("ingest.retry.initial_backoff_ms", 100)
	v.SetDefault("ingest.retry.max_backoff_ms", 5000)
	v.SetDefault("ingest.circuit.failure_threshold", 5)
	v.SetDefault("ingest.circuit.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on. mode is one of
// "resolve", "ingest" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Resolve.Threshold <= 0 || c.Resolve.Threshold >= 1 {
		errs = append(errs, "resolve.threshold must be between 0 and 1 (exclusive)")
	}
	if c.Resolve.MaxCandidates < 1 {
		errs = append(errs, "resolve.max_candidates must be >= 1")
	}
	if c.Resolve.MaxAttempts < 1 {
		errs = append(errs, "resolve.max_attempts must be >= 1")
	}

	switch mode {
	case "resolve":
	case "ingest":
		if c.Ingest.Concurrency < 1 || c.Ingest.Concurrency > 64 {
			errs = append(errs, "ingest.concurrency must be between 1 and 64")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
