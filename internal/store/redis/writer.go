// Package redis caches the raw scrip master so repeated runs on the same day
// skip the multi-megabyte download.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
)

const (
	// DefaultKey holds the raw master JSON.
	DefaultKey = "scripmaster:angel:raw"
	// fetched-at companion key, unix millis
	fetchedSuffix = ":fetched_at"
	defaultTTL    = 12 * time.Hour
)

// ErrCacheMiss is returned by Get when nothing is cached.
var ErrCacheMiss = errors.New("redis: master not cached")

// WriterConfig configures the Redis master cache.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Key      string        // default DefaultKey
	TTL      time.Duration // default 12h
}

// MasterCache stores the raw master body under one key. Calls go through a
// circuit breaker so an unreachable Redis fails fast after a few errors.
type MasterCache struct {
	client  *goredis.Client
	key     string
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (c *MasterCache) Client() *goredis.Client { return c.client }

// New creates a MasterCache and pings the server.
func New(cfg WriterConfig) (*MasterCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis: connected", "addr", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig) *MasterCache {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MasterCache{
		client: client,
		key:    key,
		ttl:    ttl,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "redis",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrCacheMiss)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("redis: circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Key returns the cache key.
func (c *MasterCache) Key() string { return c.key }

// Get returns the cached body and when it was fetched.
func (c *MasterCache) Get(ctx context.Context) ([]byte, time.Time, error) {
	type entry struct {
		body []byte
		at   time.Time
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		vals, err := c.client.MGet(ctx, c.key, c.key+fetchedSuffix).Result()
		if err != nil {
			return nil, err
		}
		body, ok := vals[0].(string)
		if !ok {
			return nil, ErrCacheMiss
		}
		var at time.Time
		if s, ok := vals[1].(string); ok {
			var ms int64
			if _, err := fmt.Sscan(s, &ms); err == nil {
				at = time.UnixMilli(ms)
			}
		}
		return entry{body: []byte(body), at: at}, nil
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	e := res.(entry)
	return e.body, e.at, nil
}

// Set stores body with the configured TTL.
func (c *MasterCache) Set(ctx context.Context, fetchedAt time.Time, body []byte) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		_, err := c.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, c.key, body, c.ttl)
			p.Set(ctx, c.key+fetchedSuffix, fetchedAt.UnixMilli(), c.ttl)
			return nil
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("redis set master: %w", err)
	}
	return nil
}

// Ping checks the server is reachable.
func (c *MasterCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Close closes the client.
func (c *MasterCache) Close() error { return c.client.Close() }
