package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/bus"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Controller.ID = "1"
	cfg.Controller.OpenFlowTarget = "tcp:127.0.0.1:6653"
	cfg.Peers["2"] = "tcp:127.0.0.1:6654"
	return cfg
}

func TestDefaultConfig_Validate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := DefaultConfig().Validate(); err == nil {
		t.Error("expected error without controller id")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"self in peers", func(c *Config) { c.Peers["1"] = "tcp:127.0.0.1:6653" }},
		{"round longer than period", func(c *Config) { c.Monitor.RoundTimeout = time.Minute }},
		{"zero concurrency", func(c *Config) { c.Monitor.PollConcurrency = 0 }},
		{"ssh without host", func(c *Config) { c.Transport.Mode = "ssh" }},
		{"unknown transport", func(c *Config) { c.Transport.Mode = "netconf" }},
		{"http classifier without url", func(c *Config) { c.Classifier.Mode = "http" }},
		{"unknown classifier", func(c *Config) { c.Classifier.Mode = "xgboost" }},
		{"in-process bus", func(c *Config) { c.Bus.Backend = bus.BackendMemory }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `
controller:
  id: "2"
  openflow_target: tcp:127.0.0.1:6654
peers:
  "1": tcp:127.0.0.1:6653
monitor:
  period: 20s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Controller.ID != "2" || cfg.Peers["1"] != "tcp:127.0.0.1:6653" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Monitor.Period != 20*time.Second {
		t.Errorf("expected 20s period, got %v", cfg.Monitor.Period)
	}
	// Defaults survive for unset fields
	if cfg.Monitor.RoundTimeout != 5*time.Second {
		t.Errorf("expected default round timeout, got %v", cfg.Monitor.RoundTimeout)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SDNLB_CONTROLLER_ID", "3")
	t.Setenv("SDNLB_PEERS", `{"1":"tcp:10.0.0.1:6653"}`)
	t.Setenv("SDNLB_MONITOR_PERIOD", "30s")
	t.Setenv("SDNLB_CLASSIFIER_URL", "http://model:9000/classify")

	cfg := validConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Controller.ID != "3" {
		t.Errorf("expected id 3, got %s", cfg.Controller.ID)
	}
	if cfg.Peers["1"] != "tcp:10.0.0.1:6653" || cfg.Peers["2"] == "" {
		t.Errorf("unexpected peers: %v", cfg.Peers)
	}
	if cfg.Monitor.Period != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.Monitor.Period)
	}
	if cfg.Classifier.Mode != "http" {
		t.Errorf("expected http classifier, got %s", cfg.Classifier.Mode)
	}
}
