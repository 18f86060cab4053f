package bus

import (
	"fmt"
	"log/slog"
)

// Backends
const (
	BackendRedis  = "redis"
	BackendNATS   = "nats"
	BackendMemory = "memory"
)

// Config selects and parameterizes a bus backend.
type Config struct {
	// Backend is "redis" (default), "nats" or "memory". The memory backend
	// only connects callers sharing one process.
	Backend string `yaml:"backend"`

	// URL of the broker, e.g. redis://localhost:6379/0 or nats://localhost:4222
	URL string `yaml:"url"`

	// Password (redis) or token (nats); may be a secret reference
	Password string `yaml:"password"`
}

// New creates a Bus based on configuration.
func New(cfg Config, logger *slog.Logger) (Bus, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendRedis
	}

	switch backend {
	case BackendRedis:
		if cfg.URL == "" {
			return nil, fmt.Errorf("redis bus requires a url")
		}
		return NewRedisBus(cfg.URL, cfg.Password, logger)

	case BackendNATS:
		if cfg.URL == "" {
			return nil, fmt.Errorf("nats bus requires a url")
		}
		return NewNATSBus(cfg.URL, cfg.Password, logger)

	case BackendMemory:
		return NewMemoryBus(logger), nil

	default:
		return nil, fmt.Errorf("unknown bus backend: %s", backend)
	}
}
