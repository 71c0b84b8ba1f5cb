// Package config loads and validates the gateway's YAML configuration file.
// Parsing uses gopkg.in/yaml.v3, the same library the teacher repo already
// pulls in (internal/log's Loki/level overlay) and the same one the wider
// retrieved pack uses for its own config loaders.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"llmgateway/internal/gatewayerr"
)

// EndpointConfig describes one backend entry from the YAML file.
type EndpointConfig struct {
	URL            string `yaml:"url"`
	Weight         uint32 `yaml:"weight"`
	MaxConnections uint32 `yaml:"max_connections"`
}

// HealthCheckConfig controls the health-check loop.
type HealthCheckConfig struct {
	IntervalSeconds    uint64 `yaml:"interval_seconds"`
	TimeoutSeconds     uint64 `yaml:"timeout_seconds"`
	UnhealthyThreshold uint32 `yaml:"unhealthy_threshold"`
	HealthyThreshold   uint32 `yaml:"healthy_threshold"`
}

// Interval returns the configured tick interval, defaulting to 10s if unset.
func (h HealthCheckConfig) Interval() time.Duration {
	if h.IntervalSeconds == 0 {
		return 10 * time.Second
	}
	return time.Duration(h.IntervalSeconds) * time.Second
}

// Timeout returns the configured per-probe timeout, defaulting to 5s if unset.
func (h HealthCheckConfig) Timeout() time.Duration {
	if h.TimeoutSeconds == 0 {
		return 5 * time.Second
	}
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// RetryConfig is reserved configuration surface: the core does not retry a
// request across endpoints (spec.md §3, §9), but the field set is parsed and
// carried so a future caller can exercise it without a config schema change.
type RetryConfig struct {
	MaxAttempts        uint32 `yaml:"max_attempts"`
	InitialIntervalMS  uint64 `yaml:"initial_interval_ms"`
	MaxIntervalMS      uint64 `yaml:"max_interval_ms"`
}

// Config is the immutable, process-wide configuration record loaded once at
// startup.
type Config struct {
	ListenAddr     string           `yaml:"listen_addr"`
	Endpoints      []EndpointConfig `yaml:"endpoints"`
	HealthCheck    HealthCheckConfig `yaml:"health_check"`
	Strategy       string           `yaml:"strategy"`
	Retry          RetryConfig      `yaml:"retry"`
	RequiredModel  string           `yaml:"required_model"`
}

const defaultListenAddr = "0.0.0.0:3000"

// Load reads and parses the YAML file at path, applying the process default
// listen address when the file omits one, and validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &gatewayerr.SerializationError{Err: err}
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural requirements the core depends on: at least one
// endpoint with a parseable absolute URL, and a non-empty required model.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return &gatewayerr.ConfigError{Message: "config: at least one endpoint is required"}
	}
	for i, ec := range c.Endpoints {
		trimmed := strings.TrimSpace(ec.URL)
		if trimmed == "" {
			return &gatewayerr.ConfigError{Message: fmt.Sprintf("config: endpoints[%d].url is empty", i)}
		}
		u, err := url.Parse(trimmed)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &gatewayerr.ConfigError{Message: fmt.Sprintf("config: endpoints[%d].url %q is not an absolute URL", i, ec.URL)}
		}
	}
	if strings.TrimSpace(c.RequiredModel) == "" {
		return &gatewayerr.ConfigError{Message: "config: required_model must not be empty"}
	}
	return nil
}
