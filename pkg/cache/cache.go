package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ReferenceCache remembers gateway references that have already been committed
// to the ledger. It is only a fast path: the database unique constraints stay
// the arbiter, so every method degrades to "not seen" when redis is unavailable.
type ReferenceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	hits   int64
	misses int64
}

// NewReferenceCache connects to redis. Callers treat an error as "run without a cache".
func NewReferenceCache(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*ReferenceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		PoolSize:        20,
		MinIdleConns:    2,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", addr), zap.Duration("ttl", ttl))

	return NewReferenceCacheFromClient(client, ttl, logger), nil
}

// NewReferenceCacheFromClient wraps an existing client.
func NewReferenceCacheFromClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReferenceCache {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &ReferenceCache{client: client, ttl: ttl, logger: logger}
}

// ReferenceKey formats the key for a processed gateway reference.
func ReferenceKey(channel, reference string) string {
	return fmt.Sprintf("payments:ref:v1:%s:%s", channel, reference)
}

// Seen reports whether the reference was remembered. A nil cache never has anything.
func (c *ReferenceCache) Seen(ctx context.Context, channel, reference string) (bool, error) {
	if c == nil || c.client == nil || reference == "" {
		return false, nil
	}

	n, err := c.client.Exists(ctx, ReferenceKey(channel, reference)).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists: %w", err)
	}
	if n > 0 {
		atomic.AddInt64(&c.hits, 1)
		return true, nil
	}
	atomic.AddInt64(&c.misses, 1)
	return false, nil
}

// Remember marks a reference as committed. It must only be called after the
// ledger transaction has been committed.
func (c *ReferenceCache) Remember(ctx context.Context, channel, reference string) error {
	if c == nil || c.client == nil || reference == "" {
		return nil
	}

	err := c.client.SetArgs(ctx, ReferenceKey(channel, reference), time.Now().UTC().Format(time.RFC3339), redis.SetArgs{
		Mode: "NX",
		TTL:  c.ttl,
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Stats returns hit and miss counters since start.
func (c *ReferenceCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

func (c *ReferenceCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
