// Package config loads and validates the pathorama configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/pathorama/internal/errors"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/manager"
	"github.com/anstrom/pathorama/internal/probe"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600
)

// Config represents the complete configuration.
type Config struct {
	Scanner ScannerConfig  `yaml:"scanner" json:"scanner"`
	API     APIConfig      `yaml:"api" json:"api"`
	Logging logging.Config `yaml:"logging" json:"logging"`
	Metrics MetricsConfig  `yaml:"metrics" json:"metrics"`
	Daemon  DaemonConfig   `yaml:"daemon" json:"daemon"`
	Output  OutputConfig   `yaml:"output" json:"output"`
}

// ScannerConfig holds dictionary, worker and probe settings.
type ScannerConfig struct {
	DictionaryFile string `yaml:"dictionary_file" json:"dictionary_file" validate:"required"`

	// Number of targets scanned at once
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"min=1,max=64"`

	// Workers per target, clamped to [1, 50] when the scanner is built
	Threads int `yaml:"threads" json:"threads" validate:"min=0"`

	ProbeTimeout       time.Duration `yaml:"probe_timeout" json:"probe_timeout" validate:"gt=0"`
	JoinTimeout        time.Duration `yaml:"join_timeout" json:"join_timeout" validate:"gt=0"`
	PollInterval       time.Duration `yaml:"poll_interval" json:"poll_interval" validate:"gt=0"`
	ProgressEvery      int           `yaml:"progress_every" json:"progress_every" validate:"min=1"`
	UserAgent          string        `yaml:"user_agent" json:"user_agent" validate:"required"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes" json:"max_body_bytes" validate:"min=0"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Host         string        `yaml:"host" json:"host" validate:"required_if=Enabled true"`
	Port         int           `yaml:"port" json:"port" validate:"min=0,max=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout" validate:"gte=0"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path" validate:"omitempty,startswith=/"`
}

// DaemonConfig holds daemon-specific settings.
type DaemonConfig struct {
	PIDFile         string        `yaml:"pid_file" json:"pid_file"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`

	// Cron expression for the periodic stats report; empty disables it
	StatsSchedule string `yaml:"stats_schedule" json:"stats_schedule"`
}

// OutputConfig controls where hits are written besides the API.
type OutputConfig struct {
	// JSON lines file receiving every published row; empty disables it
	HitsFile string `yaml:"hits_file" json:"hits_file"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	mgr := manager.DefaultConfig()
	return &Config{
		Scanner: ScannerConfig{
			DictionaryFile:     mgr.DictionaryFile,
			Concurrency:        mgr.Concurrency,
			Threads:            mgr.Threads,
			ProbeTimeout:       mgr.Probe.Timeout,
			JoinTimeout:        mgr.JoinTimeout,
			PollInterval:       mgr.PollInterval,
			ProgressEvery:      mgr.ProgressEvery,
			UserAgent:          mgr.Probe.UserAgent,
			InsecureSkipVerify: mgr.Probe.InsecureSkipVerify,
			MaxBodyBytes:       mgr.Probe.MaxBodyBytes,
		},
		API: APIConfig{
			Enabled:      true,
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
			},
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Daemon: DaemonConfig{
			PIDFile:         "",
			ShutdownTimeout: 30 * time.Second,
			StatsSchedule:   "@every 1m",
		},
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	// JSON is a subset of YAML, so one decoder serves both.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config %s", filepath.Base(path)), err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewConfigFieldError(errors.CodeValidation,
				fmt.Sprintf("failed on %q", fe.Tag()), fieldPath(fe.Namespace()), fe.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "configuration validation failed", err)
	}

	switch c.Logging.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return errors.ErrConfigInvalid("metrics.path", c.Metrics.Path)
	}

	if c.Daemon.StatsSchedule != "" {
		if _, err := cron.ParseStandard(c.Daemon.StatsSchedule); err != nil {
			return errors.ErrConfigInvalid("daemon.stats_schedule", c.Daemon.StatsSchedule)
		}
	}
	return nil
}

// fieldPath turns "Config.Scanner.ProbeTimeout" into "Scanner.ProbeTimeout".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// ManagerConfig returns the scanner manager configuration.
func (c *Config) ManagerConfig() manager.Config {
	s := c.Scanner
	return manager.Config{
		DictionaryFile: s.DictionaryFile,
		Concurrency:    s.Concurrency,
		Threads:        s.Threads,
		PollInterval:   s.PollInterval,
		JoinTimeout:    s.JoinTimeout,
		ProgressEvery:  s.ProgressEvery,
		Probe: probe.Config{
			Timeout:            s.ProbeTimeout,
			UserAgent:          s.UserAgent,
			InsecureSkipVerify: s.InsecureSkipVerify,
			CaptureBody:        true,
			MaxBodyBytes:       s.MaxBodyBytes,
		},
	}
}

// APIAddress returns the API listen address.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
