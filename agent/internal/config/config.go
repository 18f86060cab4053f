// Package config handles agent configuration loading and validation.
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
//	controller:
//	  id: "1"
//	  openflow_target: tcp:127.0.0.1:6653
//
//	peers:
//	  "2": tcp:127.0.0.1:6654
//	  "3": tcp:127.0.0.1:6655
//
//	bus:
//	  backend: redis
//	  url: redis://localhost:6379/0
//	  password: op://sdn/bus/password
//
//	monitor:
//	  period: 10s
//	  round_timeout: 5s
//
//	transport:
//	  mode: ssh
//	  ssh:
//	    host: ovs-host
//	    username: sdn
//	    private_key: file:/etc/sdnlb/id_ed25519
//
//	classifier:
//	  mode: http
//	  url: http://localhost:9000/classify
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pilot-net/sdn-balance/pkg/bus"
	"github.com/pilot-net/sdn-balance/pkg/secrets"
)

// Config is the complete agent configuration.
type Config struct {
	Controller ControllerConfig  `yaml:"controller"`
	Peers      map[string]string `yaml:"peers"` // controller id -> OpenFlow target
	Bus        bus.Config        `yaml:"bus"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Transport  TransportConfig   `yaml:"transport"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Secrets    secrets.Config    `yaml:"secrets"`
}

// ControllerConfig defines the identity of the controller this agent serves.
type ControllerConfig struct {
	ID             string `yaml:"id"`              // Stable controller id, e.g. "1"
	OpenFlowTarget string `yaml:"openflow_target"` // e.g. tcp:127.0.0.1:6653
}

// MonitorConfig defines monitor round behavior.
type MonitorConfig struct {
	Period          time.Duration `yaml:"period"`
	RoundTimeout    time.Duration `yaml:"round_timeout"`
	PollConcurrency int           `yaml:"poll_concurrency"`
}

// TransportConfig defines how the agent talks to the switches.
type TransportConfig struct {
	Mode              string        `yaml:"mode"` // local | ssh
	OpenFlowVersion   string        `yaml:"openflow_version"`
	WatchInterval     time.Duration `yaml:"watch_interval"`
	CommandsPerMinute int           `yaml:"commands_per_minute"`
	OfctlPath         string        `yaml:"ofctl_path,omitempty"`
	VsctlPath         string        `yaml:"vsctl_path,omitempty"`
	SSH               SSHConfig     `yaml:"ssh"`
}

// SSHConfig defines the SSH connection used in ssh transport mode.
type SSHConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	PrivateKey string        `yaml:"private_key"` // PEM or secret reference
	Password   string        `yaml:"password"`    // literal or secret reference
	Timeout    time.Duration `yaml:"timeout"`
}

// ClassifierConfig defines the anomaly classifier.
type ClassifierConfig struct {
	Mode                string        `yaml:"mode"` // threshold | http
	URL                 string        `yaml:"url"`
	Timeout             time.Duration `yaml:"timeout"`
	PacketRateThreshold float64       `yaml:"packet_rate_threshold"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Peers: make(map[string]string),
		Bus: bus.Config{
			Backend: bus.BackendRedis,
			URL:     "redis://localhost:6379/0",
		},
		Monitor: MonitorConfig{
			Period:          10 * time.Second,
			RoundTimeout:    5 * time.Second,
			PollConcurrency: 16,
		},
		Transport: TransportConfig{
			Mode:              "local",
			OpenFlowVersion:   "OpenFlow13",
			WatchInterval:     5 * time.Second,
			CommandsPerMinute: 600,
			SSH: SSHConfig{
				Port:    22,
				Timeout: 30 * time.Second,
			},
		},
		Classifier: ClassifierConfig{
			Mode:                "threshold",
			Timeout:             5 * time.Second,
			PacketRateThreshold: 1000,
		},
		Secrets: secrets.Config{
			Backend: "auto",
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
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
	if c.Controller.ID == "" {
		return fmt.Errorf("controller.id is required")
	}
	if c.Controller.OpenFlowTarget == "" {
		return fmt.Errorf("controller.openflow_target is required")
	}
	if _, ok := c.Peers[c.Controller.ID]; ok {
		return fmt.Errorf("peers must not contain this controller (%s)", c.Controller.ID)
	}
	if c.Monitor.Period <= 0 {
		return fmt.Errorf("monitor.period must be positive")
	}
	if c.Monitor.RoundTimeout <= 0 || c.Monitor.RoundTimeout > c.Monitor.Period {
		return fmt.Errorf("monitor.round_timeout must be positive and no longer than monitor.period")
	}
	if c.Monitor.PollConcurrency < 1 {
		return fmt.Errorf("monitor.poll_concurrency must be at least 1")
	}

	if c.Bus.Backend == bus.BackendMemory {
		return fmt.Errorf("bus.backend memory only works within one process; use redis or nats")
	}

	switch c.Transport.Mode {
	case "local":
	case "ssh":
		if c.Transport.SSH.Host == "" || c.Transport.SSH.Username == "" {
			return fmt.Errorf("transport.ssh.host and transport.ssh.username are required in ssh mode")
		}
		if c.Transport.SSH.PrivateKey == "" && c.Transport.SSH.Password == "" {
			return fmt.Errorf("transport.ssh needs a private_key or password")
		}
	default:
		return fmt.Errorf("unknown transport.mode: %s", c.Transport.Mode)
	}

	switch c.Classifier.Mode {
	case "threshold":
		if c.Classifier.PacketRateThreshold <= 0 {
			return fmt.Errorf("classifier.packet_rate_threshold must be positive")
		}
	case "http":
		if c.Classifier.URL == "" {
			return fmt.Errorf("classifier.url is required in http mode")
		}
	default:
		return fmt.Errorf("unknown classifier.mode: %s", c.Classifier.Mode)
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use SDNLB_ prefix:
// - SDNLB_CONTROLLER_ID
// - SDNLB_OPENFLOW_TARGET
// - SDNLB_PEERS (JSON object, e.g., '{"2":"tcp:127.0.0.1:6654"}')
// - SDNLB_BUS_BACKEND
// - SDNLB_BUS_URL
// - SDNLB_BUS_PASSWORD
// - SDNLB_MONITOR_PERIOD
// - SDNLB_CLASSIFIER_URL
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SDNLB_CONTROLLER_ID"); v != "" {
		c.Controller.ID = v
	}
	if v := os.Getenv("SDNLB_OPENFLOW_TARGET"); v != "" {
		c.Controller.OpenFlowTarget = v
	}
	if v := os.Getenv("SDNLB_PEERS"); v != "" {
		var peers map[string]string
		if err := json.Unmarshal([]byte(v), &peers); err == nil {
			if c.Peers == nil {
				c.Peers = make(map[string]string)
			}
			for k, val := range peers {
				c.Peers[k] = val
			}
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
	if v := os.Getenv("SDNLB_MONITOR_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Monitor.Period = d
		}
	}
	if v := os.Getenv("SDNLB_POLL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.PollConcurrency = n
		}
	}
	if v := os.Getenv("SDNLB_CLASSIFIER_URL"); v != "" {
		c.Classifier.URL = v
		c.Classifier.Mode = "http"
	}
	c.Secrets.ApplyEnv()
}
