package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"triage/internal/constants"
	"triage/pkg/metrics"
	"triage/pkg/models"
)

// StatsCache remembers the last good queue stats per owner so a status read
// can still answer while the store is down.
type StatsCache interface {
	Get(ctx context.Context, ownerID string) (*models.QueueStats, error)
	Set(ctx context.Context, ownerID string, stats models.QueueStats) error
}

type RedisStatsCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStatsCache(client redis.UniversalClient, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = constants.DefaultStatsTTLSeconds * time.Second
	}
	return &RedisStatsCache{client: client, ttl: ttl}
}

func statsKey(ownerID string) string {
	return constants.CacheKeyPrefixStats + ownerID
}

func (c *RedisStatsCache) Get(ctx context.Context, ownerID string) (*models.QueueStats, error) {
	start := time.Now()
	raw, err := c.client.Get(ctx, statsKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveDatabaseQuery("redis", "stats_get", start, nil)
		return nil, nil
	}
	metrics.ObserveDatabaseQuery("redis", "stats_get", start, err)
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var stats models.QueueStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode cached stats: %w", err)
	}
	return &stats, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, ownerID string, stats models.QueueStats) error {
	now := time.Now().UTC()
	stats.CachedAt = &now
	stats.Degraded = false

	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	start := time.Now()
	err = c.client.Set(ctx, statsKey(ownerID), raw, c.ttl).Err()
	metrics.ObserveDatabaseQuery("redis", "stats_set", start, err)
	if err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

type MemoryStatsCache struct {
	mu      sync.RWMutex
	entries map[string]models.QueueStats
}

func NewMemoryStatsCache() *MemoryStatsCache {
	return &MemoryStatsCache{entries: make(map[string]models.QueueStats)}
}

func (c *MemoryStatsCache) Get(_ context.Context, ownerID string) (*models.QueueStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats, ok := c.entries[ownerID]
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

func (c *MemoryStatsCache) Set(_ context.Context, ownerID string, stats models.QueueStats) error {
	now := time.Now().UTC()
	stats.CachedAt = &now
	stats.Degraded = false

	c.mu.Lock()
	c.entries[ownerID] = stats
	c.mu.Unlock()
	return nil
}
