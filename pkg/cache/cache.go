package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config describes the connection to the shared counter store.
type Config struct {
	URL         string
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// Cache owns the redis connection shared by the rate limiter and health checks.
type Cache struct {
	client *redis.Client
}

// NewCache parses a redis connection string (redis:// or rediss://) and
// creates a client. No connection is made until the first command.
func NewCache(config Config) (*Cache, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
		opts.WriteTimeout = config.ReadTimeout
	}

	return &Cache{
		client: redis.NewClient(opts),
	}, nil
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// Ping reports whether the store is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
