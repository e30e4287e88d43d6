// Package config loads the YAML configuration used by the perform command:
// logging, the run journal backend, retry backoff and the worker pool.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jfet97/perform/pkg/api"
)

// Journal drivers understood by OpenJournal.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

const defaultConfigYAML = `# perform configuration
log:
  level: info
  format: text

journal:
  # none, memory, sqlite, postgres, redis or mongo
  driver: memory
  # dsn: file:perform.db
  # prefix: "perform:"   # redis only
  # database: perform    # mongo only

retry:
  initial_backoff: 0s
  multiplier: 2
  max_backoff: 0s

runner:
  workers: 4
`

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JournalConfig selects where runs and their events are recorded.
type JournalConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// RetryConfig spaces out retries requested by handlers.
type RetryConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// RunnerConfig sizes the local worker pool.
type RunnerConfig struct {
	Workers       int `yaml:"workers"`
	QueueCapacity int `yaml:"queue_capacity,omitempty"`
}

// Config models perform.yaml.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
	Retry   RetryConfig   `yaml:"retry"`
	Runner  RunnerConfig  `yaml:"runner"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		panic(fmt.Sprintf("config: default config is invalid: %v", err))
	}
	return cfg
}

// DefaultYAML returns a commented configuration file with the defaults.
func DefaultYAML() string {
	return defaultConfigYAML
}

// Load reads and validates the configuration at path. An empty path
// yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	if c.Journal.Driver == "" {
		c.Journal.Driver = DriverMemory
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}

	switch c.Journal.Driver {
	case DriverNone, DriverMemory:
	case DriverSQLite, DriverPostgres, DriverRedis, DriverMongo:
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn: required for driver %q", c.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal.driver: unknown driver %q", c.Journal.Driver)
	}

	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 {
		return errors.New("retry: backoff durations must not be negative")
	}
	if c.Retry.Multiplier < 0 {
		return errors.New("retry.multiplier: must not be negative")
	}
	if c.Runner.Workers < 0 {
		return errors.New("runner.workers: must not be negative")
	}
	if c.Runner.QueueCapacity < 0 {
		return errors.New("runner.queue_capacity: must not be negative")
	}
	return nil
}

// Backoff converts the retry section into the engine policy.
func (c Config) Backoff() api.BackoffPolicy {
	return api.BackoffPolicy{
		InitialBackoff: c.Retry.InitialBackoff,
		Multiplier:     c.Retry.Multiplier,
		MaxBackoff:     c.Retry.MaxBackoff,
	}
}
