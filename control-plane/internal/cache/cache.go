// Package cache provides a Redis-backed cache for the coordinator's read-only
// exports. The topology view is written after every evaluation so that API
// replicas and dashboards can read it without reaching the coordinator.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pilot-net/sdn-balance/control-plane/internal/config"
	"github.com/pilot-net/sdn-balance/pkg/types"
)

const (
	keyPrefix   = "sdnlb:cache:"
	topologyKey = "topology"
)

// Cache provides Redis-backed response caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to redisURL. password, if set, overrides the URL's.
func New(redisURL, password string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.RedisConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    config.CacheTTLTopology,
		logger: logger.With("component", "cache"),
	}
}

// Get retrieves a cached value. Returns nil if not found or expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a value in the cache with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}

// GetJSON retrieves and unmarshals a cached JSON value. It reports false on
// a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals and stores a JSON value in the cache.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

// Delete removes a key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}

// StoreTopology caches the latest topology view.
func (c *Cache) StoreTopology(ctx context.Context, view types.TopologyView) error {
	if err := c.SetJSON(ctx, topologyKey, view, c.ttl); err != nil {
		return fmt.Errorf("caching topology: %w", err)
	}
	c.logger.Debug("topology cached", "controllers", len(view.Controllers), "pending", len(view.Pending))
	return nil
}

// LoadTopology returns the cached topology view. It reports false on a miss.
func (c *Cache) LoadTopology(ctx context.Context) (types.TopologyView, bool, error) {
	var view types.TopologyView
	ok, err := c.GetJSON(ctx, topologyKey, &view)
	if err != nil {
		return types.TopologyView{}, false, fmt.Errorf("reading cached topology: %w", err)
	}
	return view, ok, nil
}

// ClearTopology drops the cached topology view.
func (c *Cache) ClearTopology(ctx context.Context) error {
	if err := c.Delete(ctx, topologyKey); err != nil {
		return fmt.Errorf("clearing topology: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
