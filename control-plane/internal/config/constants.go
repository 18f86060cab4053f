package config

import "time"

// Connectivity checks made at startup.
const (
	// DatabasePingTimeout is the timeout for database connectivity checks.
	DatabasePingTimeout = 5 * time.Second

	// RedisConnectionTimeout is the timeout for Redis connectivity checks.
	RedisConnectionTimeout = 5 * time.Second
)

// Pagination defaults for API list endpoints.
const (
	// DefaultPaginationLimit is the number of migrations returned when no
	// limit is specified.
	DefaultPaginationLimit = 50

	// MaxPaginationLimit is the most migrations returned by one call.
	MaxPaginationLimit = 500
)

// Cache TTLs for API response caching.
const (
	// CacheTTLTopology bounds how long a cached topology view is served.
	// Every evaluation rewrites the entry, so this only matters when the
	// coordinator stops evaluating.
	CacheTTLTopology = 5 * time.Minute

	// CacheTTLHealth is the TTL for process health data.
	CacheTTLHealth = 30 * time.Second
)

// HTTP server timeouts.
const (
	HTTPReadTimeout     = 30 * time.Second
	HTTPWriteTimeout    = 30 * time.Second
	HTTPIdleTimeout     = 120 * time.Second
	HTTPShutdownTimeout = 10 * time.Second
)

// StoreWriteTimeout bounds history writes made after an evaluation so a slow
// database never holds up the next window.
const StoreWriteTimeout = 5 * time.Second
