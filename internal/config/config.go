// Package config handles bridgerpc client bootstrap configuration loading.
//
// This is distinct from the in-process rpc.ClientOption settings (middleware,
// subscription paths, lifecycle hooks) — config is what gets a process
// pointed at a host process in the first place: transport kind, endpoint,
// default timeout, reconnect schedule, log level.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is overridden in tests to avoid picking up real config
// files on the developer/CI machine.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./bridgerpc.yaml, ~/.config/bridgerpc/config.yaml,
// /config/bridgerpc.yaml, /etc/bridgerpc/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"bridgerpc.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "bridgerpc", "config.yaml"))
	}

	paths = append(paths, "/config/bridgerpc.yaml") // container convention
	paths = append(paths, "/etc/bridgerpc/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches searchPathsFunc() and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPathsFunc())
}

// TransportKind selects which concrete transport.Transport implementation
// the CLI wires up.
type TransportKind string

const (
	TransportWebSocket TransportKind = "websocket"
	TransportHTTP      TransportKind = "http"
	TransportMemory    TransportKind = "memory"
)

// Config holds bridgerpc client bootstrap configuration.
type Config struct {
	// Transport selects the wire implementation (websocket, http, memory).
	Transport TransportKind `yaml:"transport"`
	// Endpoint is the host process address (ws://, http(s)://).
	Endpoint string `yaml:"endpoint"`
	// Headers are additional headers/metadata sent with every request
	// (e.g. Authorization). Values may reference environment variables
	// via ${VAR} expansion.
	Headers map[string]string `yaml:"headers"`

	// Timeout is the default unary call timeout.
	Timeout time.Duration `yaml:"timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	LogLevel string `yaml:"log_level"`
}

// ReconnectConfig defines the default subscription reconnect schedule.
type ReconnectConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxReconnects int          `yaml:"max_reconnects"`
	BaseDelay    time.Duration `yaml:"base_delay"`
}

// RateLimitConfig defines the optional client-side token-bucket limiter
// applied to outgoing calls (see package ratelimit).
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable without
// additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOST_TOKEN}). Convenience for
	// container deployments; values may also be placed inline.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults. Called
// automatically by Load. After this, callers can read any field without
// checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportWebSocket
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if !c.Reconnect.Enabled && c.Reconnect.MaxReconnects == 0 {
		c.Reconnect.MaxReconnects = 5
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = 500 * time.Millisecond
	}
	if c.RateLimit.Enabled && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportWebSocket, TransportHTTP, TransportMemory:
	default:
		return fmt.Errorf("transport %q not recognized (want websocket, http, or memory)", c.Transport)
	}
	if c.Transport != TransportMemory && c.Endpoint == "" {
		return fmt.Errorf("endpoint must be set for transport %q", c.Transport)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Reconnect.MaxReconnects < 0 {
		return fmt.Errorf("reconnect.max_reconnects must not be negative")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive when rate_limit.enabled is true")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration pointed at an in-memory
// transport, suitable for examples and tests. All defaults are applied.
func Default() *Config {
	cfg := &Config{
		Transport: TransportMemory,
	}
	cfg.applyDefaults()
	return cfg
}
