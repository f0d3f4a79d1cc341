// Package cache implements the Cache Interface: a get/set/delete contract
// with TTL support, backed by an in-process LRU tier in front of a
// distributed Redis tier.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is not present in any tier.
var ErrCacheMiss = errors.New("cache: miss")

// Cache is the contract every collector adapter and enricher looks up
// signals through. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache is the distributed tier, backed by a single Redis instance
// or cluster. Values are stored as opaque byte strings (callers own
// serialization).
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis cache get: %w", err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis cache delete: %w", err)
	}
	return nil
}

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

// LRUCache is a bounded in-process tier. It never blocks on network I/O,
// so it is always checked before falling through to a distributed tier.
type LRUCache struct {
	entries *lru.Cache[string, lruEntry]
}

func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, fmt.Errorf("lru cache: %w", err)
	}
	return &LRUCache{entries: c}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.entries.Add(key, lruEntry{value: value, expiresAt: expiresAt})
	return nil
}

func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Layered composes an in-process L1 in front of a distributed L2. A hit
// in L2 is written back into L1 so subsequent lookups avoid the network
// round trip.
type Layered struct {
	l1 Cache
	l2 Cache
}

func NewLayered(l1, l2 Cache) *Layered {
	return &Layered{l1: l1, l2: l2}
}

func (l *Layered) Get(ctx context.Context, key string) ([]byte, error) {
	if val, err := l.l1.Get(ctx, key); err == nil {
		return val, nil
	}

	val, err := l.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := l.l1.Set(ctx, key, val, 0); err != nil {
		slog.DebugContext(ctx, "cache: failed to promote value to L1", "error", err)
	}
	return val, nil
}

func (l *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := l.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return l.l1.Set(ctx, key, value, ttl)
}

func (l *Layered) Delete(ctx context.Context, key string) error {
	err1 := l.l1.Delete(ctx, key)
	err2 := l.l2.Delete(ctx, key)
	if err1 != nil {
		return err1
	}
	return err2
}
