package secrets

import (
	"fmt"
	"log/slog"
	"os"
)

// Config holds configuration for the secrets backend.
type Config struct {
	// Backend specifies which backend to use: "1password", "local", or "auto"
	// "auto" (default) uses 1Password if configured, otherwise local
	Backend string `yaml:"backend"`

	// 1Password Connect server, set via OP_CONNECT_HOST / OP_CONNECT_TOKEN
	OnePasswordHost  string `yaml:"-"`
	OnePasswordToken string `yaml:"-"`
}

// ApplyEnv fills the Connect credentials from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OP_CONNECT_HOST"); v != "" {
		c.OnePasswordHost = v
	}
	if v := os.Getenv("OP_CONNECT_TOKEN"); v != "" {
		c.OnePasswordToken = v
	}
	if v := os.Getenv("SDNLB_SECRETS_BACKEND"); v != "" {
		c.Backend = v
	}
}

// NewFromConfig creates a Resolver based on configuration.
func NewFromConfig(cfg Config, logger *slog.Logger) (*Resolver, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "auto"
	}

	switch backend {
	case "1password":
		store, err := NewOnePasswordStore(cfg.OnePasswordHost, cfg.OnePasswordToken, logger)
		if err != nil {
			return nil, err
		}
		return NewResolver(store, logger), nil

	case "local":
		return NewResolver(nil, logger), nil

	case "auto":
		// Try 1Password first, fall back to local
		if cfg.OnePasswordHost != "" && cfg.OnePasswordToken != "" {
			store, err := NewOnePasswordStore(cfg.OnePasswordHost, cfg.OnePasswordToken, logger)
			if err != nil {
				logger.Warn("failed to initialize 1Password, falling back to local secrets", "error", err)
				return NewResolver(nil, logger), nil
			}
			return NewResolver(store, logger), nil
		}
		logger.Debug("OP_CONNECT_HOST/OP_CONNECT_TOKEN not set, using local secrets only")
		return NewResolver(nil, logger), nil

	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", backend)
	}
}
