// Package redis backs the engine's coordination primitives with go-redis/v9:
// settlement locks, bet rate limits, the live price cache, and the pub/sub
// event bus all share one connection pool.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the shared Redis pool.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client owns the shared go-redis pool handed to the lock manager, rate
// limiter, price cache, and signal bus.
type Client struct {
	rdb *redis.Client
}

// New connects and pings before returning. Locks and rate limits guard real
// money movements, so a dead Redis fails startup instead of the first sweep.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Close closes the shared pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the raw driver to the sibling constructors in this
// package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
