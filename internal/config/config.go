// Package config loads ledgerd.yml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the only supported config file version.
const Version = "1"

// Config is the top-level ledgerd.yml.
type Config struct {
	Version   string          `yaml:"version"`
	Journal   JournalConfig   `yaml:"journal"`
	Catalogue CatalogueConfig `yaml:"catalogue"`
	Feed      *FeedConfig     `yaml:"feed,omitempty"`
	Log       LogConfig       `yaml:"log"`
	Clock     ClockConfig     `yaml:"clock"`
}

// JournalConfig locates the SQLite journal. An empty path keeps the ledger
// in memory only.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// CatalogueConfig selects the template catalogue. An empty dir uses the
// catalogue built into the binary.
type CatalogueConfig struct {
	Dir string `yaml:"dir"`
}

// FeedConfig enables the Redis transition feed.
type FeedConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	Namespace string `yaml:"namespace,omitempty"` // default: "default"
	MaxLen    *int64 `yaml:"max_len,omitempty"`   // default: 100000, 0 = unbounded
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ClockConfig pins ledger time. Empty Fixed uses the system clock.
type ClockConfig struct {
	Fixed string `yaml:"fixed,omitempty"` // RFC 3339
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{Version: Version}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Feed != nil {
		if c.Feed.Namespace == "" {
			c.Feed.Namespace = "default"
		}
		if c.Feed.MaxLen == nil {
			n := int64(100_000)
			c.Feed.MaxLen = &n
		}
	}
}

// Validate applies defaults and checks every field.
func (c *Config) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("unsupported version: %q (expected: %q)", c.Version, Version)
	}
	c.applyDefaults()

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format: invalid value %q (must be 'text' or 'json')", c.Log.Format)
	}

	if c.Feed != nil {
		if c.Feed.Addr == "" {
			return errors.New("feed.addr is required when feed is configured")
		}
		if *c.Feed.MaxLen < 0 {
			return fmt.Errorf("feed.max_len must be >= 0 (0 = unbounded), got %d", *c.Feed.MaxLen)
		}
	}

	if c.Clock.Fixed != "" {
		if _, err := time.Parse(time.RFC3339, c.Clock.Fixed); err != nil {
			return fmt.Errorf("clock.fixed: %w", err)
		}
	}
	return nil
}

// FixedTime returns the pinned ledger time, if any. Call after Validate.
func (c *Config) FixedTime() (time.Time, bool) {
	if c.Clock.Fixed == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, c.Clock.Fixed)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: invalid value %q (must be debug, info, warn or error)", s)
	}
	return l, nil
}

// Logger builds the configured slog logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Load reads and validates a config file. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates config YAML.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("failed to parse YAML: empty config")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &c, nil
}
