// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	PhoneNumber string
	APIKey      string // empty disables API key checks on the HTTP service
	LogLevel    string
	Portal      PortalConfig
	Store       StoreConfig
	Briefing    BriefingConfig

	location *time.Location
}

// PortalConfig controls how the vendor portal is reached.
type PortalConfig struct {
	BaseURL    string
	Timezone   string // IANA name used for production range queries
	Timeout    time.Duration
	RetryDelay time.Duration
}

// StoreConfig selects the durable session store.
type StoreConfig struct {
	Backend string // "sqlite" or "bbolt"
	Path    string
}

// BriefingConfig controls the default briefing and the scheduler.
type BriefingConfig struct {
	Categories []string
	Interval   time.Duration // 0 disables the scheduler
}

// fileConfig mirrors Config for the optional TOML file.
type fileConfig struct {
	Port        string `toml:"port"`
	PhoneNumber string `toml:"phone_number"`
	APIKey      string `toml:"api_key"`
	LogLevel    string `toml:"log_level"`
	Portal      struct {
		BaseURL    string `toml:"base_url"`
		Timezone   string `toml:"timezone"`
		Timeout    string `toml:"timeout"`
		RetryDelay string `toml:"retry_delay"`
	} `toml:"portal"`
	Store struct {
		Backend string `toml:"backend"`
		Path    string `toml:"path"`
	} `toml:"store"`
	Briefing struct {
		Categories []string `toml:"categories"`
		Interval   string   `toml:"interval"`
	} `toml:"briefing"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:     "8080",
		LogLevel: "info",
		Portal: PortalConfig{
			BaseURL:    "https://gateway.sunrun.com",
			Timezone:   "Pacific/Honolulu",
			Timeout:    30 * time.Second,
			RetryDelay: 500 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "./data/sunbrief.db",
		},
		Briefing: BriefingConfig{
			Categories: []string{"gasoline", "coal", "propane"},
		},
	}
}

// Load reads the optional TOML file named by SUNBRIEF_CONFIG, then applies
// environment variable overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("SUNBRIEF_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.PhoneNumber = getEnv("PHONE_NUMBER", cfg.PhoneNumber)
	cfg.APIKey = getEnv("API_KEY", cfg.APIKey)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Portal.BaseURL = strings.TrimRight(getEnv("PORTAL_BASE_URL", cfg.Portal.BaseURL), "/")
	cfg.Portal.Timezone = getEnv("PORTAL_TIMEZONE", cfg.Portal.Timezone)
	cfg.Portal.Timeout = getEnvDuration("PORTAL_TIMEOUT", cfg.Portal.Timeout)
	cfg.Portal.RetryDelay = getEnvDuration("PORTAL_RETRY_DELAY", cfg.Portal.RetryDelay)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = getEnv("DB_PATH", cfg.Store.Path)
	cfg.Briefing.Categories = getEnvList("BRIEFING_CATEGORIES", cfg.Briefing.Categories)
	cfg.Briefing.Interval = getEnvDuration("BRIEFING_INTERVAL", cfg.Briefing.Interval)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.PhoneNumber, fc.PhoneNumber)
	setString(&c.APIKey, fc.APIKey)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.Portal.BaseURL, fc.Portal.BaseURL)
	setString(&c.Portal.Timezone, fc.Portal.Timezone)
	setString(&c.Store.Backend, fc.Store.Backend)
	setString(&c.Store.Path, fc.Store.Path)
	if len(fc.Briefing.Categories) > 0 {
		c.Briefing.Categories = fc.Briefing.Categories
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"portal.timeout", fc.Portal.Timeout, &c.Portal.Timeout},
		{"portal.retry_delay", fc.Portal.RetryDelay, &c.Portal.RetryDelay},
		{"briefing.interval", fc.Briefing.Interval, &c.Briefing.Interval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if strings.TrimSpace(c.PhoneNumber) == "" {
		return errors.New("PHONE_NUMBER cannot be empty")
	}
	if c.Portal.BaseURL == "" {
		return errors.New("PORTAL_BASE_URL cannot be empty")
	}
	if c.Portal.Timeout <= 0 {
		return errors.New("PORTAL_TIMEOUT must be > 0")
	}
	if c.Portal.RetryDelay < 0 {
		return errors.New("PORTAL_RETRY_DELAY must be >= 0")
	}
	if c.Store.Path == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	switch c.Store.Backend {
	case "sqlite", "bbolt":
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite or bbolt, got %q", c.Store.Backend)
	}
	if c.Briefing.Interval < 0 {
		return errors.New("BRIEFING_INTERVAL must be >= 0")
	}

	loc, err := time.LoadLocation(c.Portal.Timezone)
	if err != nil {
		return fmt.Errorf("PORTAL_TIMEZONE %q: %w", c.Portal.Timezone, err)
	}
	c.location = loc
	return nil
}

// Location returns the portal time zone. Valid only after Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are seconds.
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
