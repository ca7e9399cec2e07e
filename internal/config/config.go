package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sentinel configuration
type Config struct {
	// Backend API configuration
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Scan status polling configuration
	Polling PollingConfig `yaml:"polling" json:"polling"`

	// Background list refresh configuration
	Refresh RefreshConfig `yaml:"refresh" json:"refresh"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BackendConfig holds settings for the SentinelSecure backend API
type BackendConfig struct {
	// Base endpoint, e.g. http://localhost:8001/api
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Per-request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Default page size for list requests
	ListLimit int `yaml:"list_limit" json:"list_limit"`
}

// PollingConfig holds scan status polling settings
type PollingConfig struct {
	// Interval between status fetches for an active scan
	Interval time.Duration `yaml:"interval" json:"interval"`

	// Consecutive transport errors tolerated before a poll session
	// self-cancels and reports a fatal error
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
}

// RefreshConfig holds background list refresh settings
type RefreshConfig struct {
	// Enable the background refresher
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Device list refresh cadence
	DevicesInterval time.Duration `yaml:"devices_interval" json:"devices_interval"`

	// Dashboard stats refresh cadence
	DashboardInterval time.Duration `yaml:"dashboard_interval" json:"dashboard_interval"`

	// Alert list refresh cadence
	AlertsInterval time.Duration `yaml:"alerts_interval" json:"alerts_interval"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Endpoint:       "http://localhost:8001/api",
			RequestTimeout: 30 * time.Second,
			ListLimit:      100,
		},
		Polling: PollingConfig{
			Interval:             2 * time.Second,
			MaxConsecutiveErrors: 5,
		},
		Refresh: RefreshConfig{
			Enabled:           true,
			DevicesInterval:   15 * time.Second,
			DashboardInterval: 30 * time.Second,
			AlertsInterval:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	if path == "" {
		return config, nil
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate backend configuration
	if c.Backend.Endpoint == "" {
		return fmt.Errorf("backend endpoint is required")
	}
	if u, err := url.Parse(c.Backend.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend endpoint must be an absolute URL: %s", c.Backend.Endpoint)
	}
	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("backend request timeout must be positive")
	}
	if c.Backend.ListLimit <= 0 {
		return fmt.Errorf("backend list limit must be positive")
	}

	// Validate polling configuration
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.Polling.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("polling max consecutive errors must be positive")
	}

	// Validate refresh configuration. The refresh scheduler runs at
	// whole-second granularity, so enabled intervals must be at least 1s.
	if c.Refresh.Enabled {
		if c.Refresh.DevicesInterval < time.Second ||
			c.Refresh.DashboardInterval < time.Second ||
			c.Refresh.AlertsInterval < time.Second {
			return fmt.Errorf("refresh intervals must be at least 1s when refresh is enabled")
		}
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// GetEndpoint returns the backend API endpoint
func (c *Config) GetEndpoint() string {
	return c.Backend.Endpoint
}

// GetLogOutput returns the log output destination
func (c *Config) GetLogOutput() string {
	return c.Logging.Output
}
