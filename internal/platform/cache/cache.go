// Package cache holds the Redis/Dragonfly connection used for derived,
// rebuildable data such as ranked leaderboard rows.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key this service writes.
const DefaultNamespace = "greenquest"

// Cache is a namespaced Redis client. Nothing in it is authoritative; a
// flushed cache only costs a recomputation.
type Cache struct {
	Client    *redis.Client
	namespace string
}

type options struct {
	namespace   string
	dialTimeout time.Duration
	ioTimeout   time.Duration
	poolSize    int
}

// Option tunes New.
type Option func(*options)

// WithNamespace replaces DefaultNamespace, letting several deployments share
// one instance.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = strings.Trim(ns, ":") }
}

// WithTimeouts sets the dial timeout and the read/write timeout.
func WithTimeouts(dial, io time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = dial
		o.ioTimeout = io
	}
}

// WithPoolSize caps the number of pooled connections.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// ParseURL validates a redis:// or rediss:// URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New connects and pings. The connection is closed again if the ping fails.
func New(ctx context.Context, url string, opts ...Option) (*Cache, error) {
	o := options{
		namespace:   DefaultNamespace,
		dialTimeout: 5 * time.Second,
		ioTimeout:   3 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ro, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	ro.DialTimeout = o.dialTimeout
	ro.ReadTimeout = o.ioTimeout
	ro.WriteTimeout = o.ioTimeout
	if o.poolSize > 0 {
		ro.PoolSize = o.poolSize
	}

	client := redis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging cache at %s: %w", ro.Addr, err)
	}

	return &Cache{Client: client, namespace: o.namespace}, nil
}

// Key joins parts under the cache namespace: Key("a", "b") is "greenquest:a:b".
func (c *Cache) Key(parts ...string) string {
	if c.namespace == "" {
		return strings.Join(parts, ":")
	}
	return c.namespace + ":" + strings.Join(parts, ":")
}

// Close shuts down the client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck is used by the readiness probe.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}
