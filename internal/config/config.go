// Package config provides configuration loading and validation for kiroku.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yelban/kiroku-memory/internal/paths"
)

// Monitor policies for reacting to a dead service process.
const (
	// PolicyReport marks the service as errored and leaves recovery to the operator.
	PolicyReport = "report"

	// PolicyRespawn attempts an automatic restart when the process dies.
	PolicyRespawn = "respawn"
)

// Default configuration values. These mirror the backend service's
// conventional bind address and the intervals the desktop shell expects.
const (
	DefaultBaseURL        = "http://127.0.0.1:8000"
	DefaultHealthPath     = "/health"
	DefaultStatsPath      = "/v2/stats"
	DefaultStartupTimeout = 30 * time.Second

	DefaultMonitorInterval  = 5 * time.Second
	DefaultFailureThreshold = 3

	DefaultStatusInterval = 2 * time.Second
	DefaultStatsInterval  = 30 * time.Second
)

// Duration wraps time.Duration so TOML values can be written as "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the daemon configuration loaded from config.toml.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Publisher PublisherConfig `toml:"publisher"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServiceConfig describes how to reach and gate the supervised service.
type ServiceConfig struct {
	// BaseURL is the root URL the service listens on.
	BaseURL string `toml:"base_url"`

	// HealthPath is the health endpoint path relative to BaseURL.
	HealthPath string `toml:"health_path"`

	// StatsPath is the stats endpoint path relative to BaseURL.
	StatsPath string `toml:"stats_path"`

	// StartupTimeout bounds the health wait after a start or restart.
	StartupTimeout Duration `toml:"startup_timeout"`

	// Autostart starts the service when the daemon launches.
	Autostart bool `toml:"autostart"`
}

// MonitorConfig controls the background health monitor.
type MonitorConfig struct {
	// Interval is how often the monitor checks liveness and health.
	Interval Duration `toml:"interval"`

	// FailureThreshold is the number of consecutive probe failures
	// before the service is declared unresponsive.
	FailureThreshold int `toml:"failure_threshold"`

	// Policy is what the monitor does when the process dies:
	// "report" (default) or "respawn".
	Policy string `toml:"policy"`
}

// PublisherConfig controls the status publisher.
type PublisherConfig struct {
	// StatusInterval is how often the publisher polls service status.
	StatusInterval Duration `toml:"status_interval"`

	// StatsInterval is how often the publisher polls the stats endpoint.
	StatsInterval Duration `toml:"stats_interval"`
}

// LoggingConfig controls daemon logging.
type LoggingConfig struct {
	// Level is the log level: debug, info, warn, error.
	Level string `toml:"level"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:        DefaultBaseURL,
			HealthPath:     DefaultHealthPath,
			StatsPath:      DefaultStatsPath,
			StartupTimeout: Duration(DefaultStartupTimeout),
			Autostart:      true,
		},
		Monitor: MonitorConfig{
			Interval:         Duration(DefaultMonitorInterval),
			FailureThreshold: DefaultFailureThreshold,
			Policy:           PolicyReport,
		},
		Publisher: PublisherConfig{
			StatusInterval: Duration(DefaultStatusInterval),
			StatsInterval:  Duration(DefaultStatsInterval),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads the daemon configuration from the default path.
// Returns defaults if the file doesn't exist.
func Load() (*Config, error) {
	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads the config from a specific path. Values absent from
// the file keep their defaults. Returns defaults if the file doesn't exist.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HealthURL returns the full health endpoint URL.
func (c *Config) HealthURL() string {
	return c.Service.BaseURL + c.Service.HealthPath
}

// StatsURL returns the full stats endpoint URL.
func (c *Config) StatsURL() string {
	return c.Service.BaseURL + c.Service.StatsPath
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid service base_url %q: %w", c.Service.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service base_url %q must include scheme and host", c.Service.BaseURL)
	}
	if c.Service.StartupTimeout.Std() <= 0 {
		return fmt.Errorf("service startup_timeout must be positive, got %s", c.Service.StartupTimeout.Std())
	}
	if c.Monitor.Interval.Std() <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", c.Monitor.Interval.Std())
	}
	if c.Monitor.FailureThreshold < 1 {
		return fmt.Errorf("monitor failure_threshold must be at least 1, got %d", c.Monitor.FailureThreshold)
	}
	switch c.Monitor.Policy {
	case PolicyReport, PolicyRespawn:
	default:
		return fmt.Errorf("monitor policy must be %q or %q, got %q", PolicyReport, PolicyRespawn, c.Monitor.Policy)
	}
	if c.Publisher.StatusInterval.Std() <= 0 {
		return fmt.Errorf("publisher status_interval must be positive, got %s", c.Publisher.StatusInterval.Std())
	}
	if c.Publisher.StatsInterval.Std() <= 0 {
		return fmt.Errorf("publisher stats_interval must be positive, got %s", c.Publisher.StatsInterval.Std())
	}
	return nil
}
