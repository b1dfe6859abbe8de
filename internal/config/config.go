// Package config loads tracker settings from TRACKER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "TRACKER"

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the tracker settings
type Config struct {
	DBPath         string        `envconfig:"DB_PATH" default:"data/tracker.db"`
	DBBusyTimeout  time.Duration `envconfig:"DB_BUSY_TIMEOUT" default:"5s"`
	DBMaxOpenConns int           `envconfig:"DB_MAX_OPEN_CONNS" default:"5"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	OpenRetryAttempts int           `envconfig:"OPEN_RETRY_ATTEMPTS" default:"3"`
	OpenRetryDelay    time.Duration `envconfig:"OPEN_RETRY_DELAY" default:"200ms"`

	// MetricsFile receives operation metrics in Prometheus text format after
	// each command, for node_exporter's textfile collector. Empty disables it.
	MetricsFile string `envconfig:"METRICS_FILE"`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%s_DB_PATH must not be empty", EnvPrefix)
	}
	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("%s_DB_MAX_OPEN_CONNS must be at least 1, got %d", EnvPrefix, c.DBMaxOpenConns)
	}
	if c.OpenRetryAttempts < 1 {
		return fmt.Errorf("%s_OPEN_RETRY_ATTEMPTS must be at least 1, got %d", EnvPrefix, c.OpenRetryAttempts)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s_LOG_LEVEL: %w", EnvPrefix, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("%s_LOG_FORMAT must be %q or %q, got %q", EnvPrefix, LogFormatText, LogFormatJSON, c.LogFormat)
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
// Logs go to stderr so command output on stdout stays clean.
func (c *Config) ConfigureLogging() {
	ConfigureLogger(logrus.StandardLogger(), c.LogLevel, c.LogFormat)
}

// ConfigureLogger sets level and format on logger. Unknown values fall back to info and text.
func ConfigureLogger(logger *logrus.Logger, level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stderr)

	if strings.EqualFold(format, LogFormatJSON) {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
