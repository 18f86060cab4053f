// Package config handles coordination service configuration.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (SDNLB_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	expected_controllers: ["1", "2", "3"]
//
//	thresholds:
//	  load: 50
//	  latency_ms: 300
//
//	monitor_period: 10s
//	window_timeout: 30s
//
//	bus:
//	  backend: redis
//	  url: redis://localhost:6379/0
//
//	database_url: op://sdn/history-db/url
//	cache_url: redis://localhost:6379/1
//
//	http:
//	  port: 8080
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pilot-net/sdn-balance/pkg/bus"
	"github.com/pilot-net/sdn-balance/pkg/secrets"
	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Config is the complete coordination service configuration.
type Config struct {
	// ExpectedControllers is the fixed set of controllers whose snapshots
	// make a window complete.
	ExpectedControllers []string `yaml:"expected_controllers"`

	Thresholds ThresholdsConfig `yaml:"thresholds"`

	// MonitorPeriod is the agents' reporting period. The window worker
	// checks the window this often.
	MonitorPeriod time.Duration `yaml:"monitor_period"`

	// WindowTimeout enables best-effort evaluation of an incomplete window
	// whose oldest entry is older than this. Zero disables it.
	WindowTimeout time.Duration `yaml:"window_timeout"`

	Bus bus.Config `yaml:"bus"`

	// DatabaseURL enables the history store. May be a secret reference.
	DatabaseURL string `yaml:"database_url"`

	// CacheURL enables the redis topology cache. May be a secret reference.
	CacheURL string `yaml:"cache_url"`

	HTTP HTTPConfig `yaml:"http"`

	Secrets secrets.Config `yaml:"secrets"`
}

// ThresholdsConfig holds the overload thresholds. A controller is overloaded
// only when it exceeds both.
type ThresholdsConfig struct {
	Load      int     `yaml:"load"`
	LatencyMs float64 `yaml:"latency_ms"`
}

// HTTPConfig configures the read-only API.
type HTTPConfig struct {
	Port int `yaml:"port"`

	// TokenHash is a bcrypt hash of the bearer token required by the
	// topology and migration endpoints. Empty leaves them open.
	TokenHash string `yaml:"token_hash"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ExpectedControllers: []string{"1", "2", "3"},
		Thresholds: ThresholdsConfig{
			Load:      50,
			LatencyMs: 300,
		},
		MonitorPeriod: 10 * time.Second,
		Bus: bus.Config{
			Backend: bus.BackendRedis,
			URL:     "redis://localhost:6379/0",
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
		Secrets: secrets.Config{
			Backend: "auto",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bus.Backend == bus.BackendMemory {
		return fmt.Errorf("bus.backend memory only works within one process; use redis or nats")
	}
	if len(c.ExpectedControllers) == 0 {
		return fmt.Errorf("expected_controllers must not be empty")
	}
	seen := make(map[string]bool, len(c.ExpectedControllers))
	for _, id := range c.ExpectedControllers {
		if id == "" {
			return fmt.Errorf("expected_controllers must not contain an empty id")
		}
		if seen[id] {
			return fmt.Errorf("expected_controllers contains %q twice", id)
		}
		seen[id] = true
	}
	if c.Thresholds.Load < 0 {
		return fmt.Errorf("thresholds.load must be non-negative")
	}
	if c.Thresholds.LatencyMs < 0 {
		return fmt.Errorf("thresholds.latency_ms must be non-negative")
	}
	if c.MonitorPeriod <= 0 {
		return fmt.Errorf("monitor_period must be positive")
	}
	if c.WindowTimeout < 0 {
		return fmt.Errorf("window_timeout must be non-negative")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	return nil
}

// Expected returns ExpectedControllers as controller identities.
func (c *Config) Expected() []types.ControllerID {
	out := make([]types.ControllerID, len(c.ExpectedControllers))
	for i, id := range c.ExpectedControllers {
		out[i] = types.ControllerID(id)
	}
	return out
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SDNLB_EXPECTED_CONTROLLERS"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		c.ExpectedControllers = ids
	}
	if v := os.Getenv("SDNLB_LOAD_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Thresholds.Load = n
		}
	}
	if v := os.Getenv("SDNLB_LATENCY_THRESHOLD_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Thresholds.LatencyMs = f
		}
	}
	if v := os.Getenv("SDNLB_MONITOR_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MonitorPeriod = d
		}
	}
	if v := os.Getenv("SDNLB_WINDOW_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WindowTimeout = d
		}
	}
	if v := os.Getenv("SDNLB_BUS_BACKEND"); v != "" {
		c.Bus.Backend = v
	}
	if v := os.Getenv("SDNLB_BUS_URL"); v != "" {
		c.Bus.URL = v
	}
	if v := os.Getenv("SDNLB_BUS_PASSWORD"); v != "" {
		c.Bus.Password = v
	}
	if v := os.Getenv("SDNLB_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("SDNLB_CACHE_URL"); v != "" {
		c.CacheURL = v
	}
	if v := os.Getenv("SDNLB_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = n
		}
	}
	if v := os.Getenv("SDNLB_API_TOKEN_HASH"); v != "" {
		c.HTTP.TokenHash = v
	}
	c.Secrets.ApplyEnv()
}
