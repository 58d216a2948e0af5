// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/dmn/metrics"
)

// Default values for configuration fields
const (
	DefaultPort              = "8080"
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultRequestTimeout    = 60 * time.Second
	DefaultModelsDir         = "models"
	DefaultWatchDebounce     = 500 * time.Millisecond
	DefaultRecorderBackend   = "log"
	DefaultSQLitePath        = "data/results.db"
	DefaultRetentionDays     = 30
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultParseCacheSize    = 10000
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Models   ModelsConfig   `yaml:"models"`
	Recorder RecorderConfig `yaml:"recorder"`
	Metrics  metrics.Config `yaml:"metrics"`
	Settings Settings       `yaml:"settings"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// ModelsConfig locates model files. With Watch set the directory is
// reloaded when files change.
type ModelsConfig struct {
	Dir           string        `yaml:"dir"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watchDebounce"`
}

// RecorderConfig selects where evaluation results go. Backend is one of
// "none", "log", "postgres" or "sqlite".
type RecorderConfig struct {
	Backend           string `yaml:"backend"`
	DatabaseURL       string `yaml:"databaseURL"`
	SQLitePath        string `yaml:"sqlitePath"`
	RetentionDays     int    `yaml:"retentionDays"`
	RetentionSchedule string `yaml:"retentionSchedule"`
}

// Settings toggle observability only; they never change evaluation results
type Settings struct {
	EnableLexerLogging     bool `yaml:"enableLexerLogging"`
	EnableExecutionLogging bool `yaml:"enableExecutionLogging"`
	LogResult              bool `yaml:"logResult"`
	ParseCacheSize         int  `yaml:"parseCacheSize"`
}

// Load reads path when it is not empty, then applies defaults, environment
// overrides and validation
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every zero field that has a default
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Models.Dir == "" {
		cfg.Models.Dir = DefaultModelsDir
	}
	if cfg.Models.WatchDebounce == 0 {
		cfg.Models.WatchDebounce = DefaultWatchDebounce
	}
	if cfg.Recorder.Backend == "" {
		cfg.Recorder.Backend = DefaultRecorderBackend
	}
	if cfg.Recorder.SQLitePath == "" {
		cfg.Recorder.SQLitePath = DefaultSQLitePath
	}
	if cfg.Recorder.RetentionDays == 0 {
		cfg.Recorder.RetentionDays = DefaultRetentionDays
	}
	if cfg.Recorder.RetentionSchedule == "" {
		cfg.Recorder.RetentionSchedule = DefaultRetentionSchedule
	}
	if cfg.Settings.ParseCacheSize == 0 {
		cfg.Settings.ParseCacheSize = DefaultParseCacheSize
	}
}

// applyEnvOverrides lets the environment win over the file
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PORT"); val != "" {
		cfg.Server.Port = val
	}
	if val := os.Getenv("MODELS_DIR"); val != "" {
		cfg.Models.Dir = val
	}
	if val := os.Getenv("DMN_MODELS_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Models.Watch = b
		}
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		cfg.Recorder.DatabaseURL = val
		if os.Getenv("DMN_RECORDER_BACKEND") == "" {
			cfg.Recorder.Backend = "postgres"
		}
	}
	if val := os.Getenv("DMN_RECORDER_BACKEND"); val != "" {
		cfg.Recorder.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("DMN_SQLITE_PATH"); val != "" {
		cfg.Recorder.SQLitePath = val
	}
	if val := os.Getenv("DMN_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Recorder.RetentionDays = i
		}
	}
	if val := os.Getenv("DMN_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	envBool("DMN_LEXER_LOGGING", &cfg.Settings.EnableLexerLogging)
	envBool("DMN_EXECUTION_LOGGING", &cfg.Settings.EnableExecutionLogging)
	envBool("DMN_LOG_RESULT", &cfg.Settings.LogResult)
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a valid port", c.Server.Port))
	}
	if c.Server.RequestTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	switch c.Recorder.Backend {
	case "none", "log", "sqlite":
	case "postgres":
		if c.Recorder.DatabaseURL == "" {
			errs = append(errs, errors.New("recorder.databaseURL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("recorder.backend %q must be one of none, log, postgres, sqlite", c.Recorder.Backend))
	}
	if c.Recorder.RetentionDays < 0 {
		errs = append(errs, errors.New("recorder.retentionDays must not be negative"))
	}
	if _, err := cron.ParseStandard(c.Recorder.RetentionSchedule); err != nil {
		errs = append(errs, fmt.Errorf("recorder.retentionSchedule: %w", err))
	}
	if c.Settings.ParseCacheSize < 0 {
		errs = append(errs, errors.New("settings.parseCacheSize must not be negative"))
	}
	return errors.Join(errs...)
}
