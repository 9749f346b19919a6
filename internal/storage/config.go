package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as "1h30m" in both YAML
// and TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Database struct {
		Path string `yaml:"path" toml:"path" validate:"required"`
	} `yaml:"database" toml:"database"`

	API struct {
		BaseURL   string   `yaml:"base_url" toml:"base_url" validate:"required,url"`
		Timeout   Duration `yaml:"timeout" toml:"timeout"`
		UserAgent string   `yaml:"user_agent" toml:"user_agent"`
	} `yaml:"api" toml:"api"`

	Sync struct {
		Workers  int      `yaml:"workers" toml:"workers" validate:"min=1,max=16"`
		Interval Duration `yaml:"interval" toml:"interval"`
		// Debounce is added to a category's last update time before it is
		// sent as If-Modified-Since.
		Debounce Duration `yaml:"debounce" toml:"debounce"`
	} `yaml:"sync" toml:"sync"`

	Bootstrap struct {
		Enabled bool `yaml:"enabled" toml:"enabled"`
	} `yaml:"bootstrap" toml:"bootstrap"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./coviddash.db"
	cfg.API.BaseURL = "https://api.coronavirus.data.gov.uk"
	cfg.API.Timeout = Duration(30 * time.Second)
	cfg.API.UserAgent = "coviddash/1.0"
	cfg.Sync.Workers = 4
	cfg.Sync.Interval = Duration(30 * time.Minute)
	cfg.Sync.Debounce = Duration(time.Hour)
	cfg.Bootstrap.Enabled = true
	return cfg
}

// Environment variables that override the config file.
const (
	EnvDBPath       = "COVIDDASH_DB_PATH"
	EnvAPIBaseURL   = "COVIDDASH_API_BASE_URL"
	EnvSyncWorkers  = "COVIDDASH_SYNC_WORKERS"
	EnvSyncInterval = "COVIDDASH_SYNC_INTERVAL"
	EnvHTTPTimeout  = "COVIDDASH_HTTP_TIMEOUT"
)

var validate = validator.New()

// LoadConfig reads path (TOML if it ends in .toml, YAML otherwise), applies
// .env and environment overrides, then validates the result. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		case isTOML(path):
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvSyncWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSyncWorkers, err)
		}
		c.Sync.Workers = n
	}
	if v := os.Getenv(EnvSyncInterval); v != "" {
		if err := c.Sync.Interval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvSyncInterval, err)
		}
	}
	if v := os.Getenv(EnvHTTPTimeout); v != "" {
		if err := c.API.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvHTTPTimeout, err)
		}
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sync.Interval.Std() < time.Minute {
		return fmt.Errorf("invalid config: sync.interval must be at least 1m, got %s", c.Sync.Interval.Std())
	}
	if c.Sync.Debounce.Std() < 0 {
		return fmt.Errorf("invalid config: sync.debounce must not be negative")
	}
	if c.API.Timeout.Std() <= 0 {
		return fmt.Errorf("invalid config: api.timeout must be positive")
	}
	return nil
}

// MarshalConfig renders cfg as TOML when asTOML is set, YAML otherwise.
func MarshalConfig(cfg *Config, asTOML bool) ([]byte, error) {
	if !asTOML {
		return yaml.Marshal(cfg)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
