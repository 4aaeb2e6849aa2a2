// Package cache keeps the last known panel usage per service in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shawn/vesta-provisioner/internal/vesta"
)

const keyPrefix = "vesta:usage:"

// Usage caches v-list-user counters keyed by service id
type Usage interface {
	Get(ctx context.Context, serviceID string) (vesta.Usage, bool, error)
	Set(ctx context.Context, serviceID string, usage vesta.Usage) error
	Delete(ctx context.Context, serviceID string) error
}

// RedisUsage implements Usage with JSON values and a fixed TTL
type RedisUsage struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *RedisUsage {
	return &RedisUsage{rdb: rdb, ttl: ttl}
}

func (c *RedisUsage) Get(ctx context.Context, serviceID string) (vesta.Usage, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+serviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis Get: %w", err)
	}
	var u vesta.Usage
	if err := json.Unmarshal(raw, &u); err != nil {
		// A corrupt entry is a miss; the next refresh overwrites it.
		return nil, false, nil
	}
	return u, true, nil
}

func (c *RedisUsage) Set(ctx context.Context, serviceID string, usage vesta.Usage) error {
	raw, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+serviceID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis Set: %w", err)
	}
	return nil
}

func (c *RedisUsage) Delete(ctx context.Context, serviceID string) error {
	return c.rdb.Del(ctx, keyPrefix+serviceID).Err()
}

// MockUsage is an in-memory cache for testing
type MockUsage struct {
	mu      sync.RWMutex
	entries map[string]vesta.Usage
}

func NewMock() *MockUsage {
	return &MockUsage{entries: make(map[string]vesta.Usage)}
}

func (m *MockUsage) Get(_ context.Context, serviceID string) (vesta.Usage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.entries[serviceID]
	return u, ok, nil
}

func (m *MockUsage) Set(_ context.Context, serviceID string, usage vesta.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[serviceID] = usage
	return nil
}

func (m *MockUsage) Delete(_ context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, serviceID)
	return nil
}
