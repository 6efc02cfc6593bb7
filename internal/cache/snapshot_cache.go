// Package cache provides a Redis-backed read-through cache of per-coin
// indicator Snapshots. A failed Redis marks the cache unhealthy for a
// recovery backoff window rather than failing every caller.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"bithumbot/internal/logging"
	"bithumbot/internal/model"
)

const keyPrefix = "bithumbot:snapshot:"

// SnapshotCache caches the most recent indicator Snapshot per coin. It exists
// so the Portfolio Manager can fall back to the last known Snapshot when one
// cycle's candle fetch fails or times out, instead of treating the coin as a
// hard skip for the whole cycle.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	maxFailures  int
	lastCheck    time.Time
	recoveryWait time.Duration
}

// NewSnapshotCache connects to addr. Returns nil, nil if addr is empty;
// callers treat a nil *SnapshotCache as "no cache configured" and every
// method below is a documented no-op on a nil receiver, same pattern as
// internal/persist.PgMirror.
func NewSnapshotCache(addr string, db int, ttl time.Duration) (*SnapshotCache, error) {
	if addr == "" {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		MaxRetries:   2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	c := &SnapshotCache{
		client:       client,
		ttl:          ttl,
		log:          logging.Default().WithComponent("cache"),
		maxFailures:  3,
		recoveryWait: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.log.WithError(err).Warn("initial redis connection failed, starting in degraded mode")
		return c, nil
	}
	c.healthy = true
	c.lastCheck = time.Now()
	return c, nil
}

func (c *SnapshotCache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures {
		c.healthy = false
	}
}

func (c *SnapshotCache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = true
	c.failureCount = 0
	c.lastCheck = time.Now()
}

// IsHealthy reports whether the cache is currently accepting operations. A
// cache that has tripped unhealthy retries after recoveryWait has elapsed
// rather than hammering a downed Redis every cycle.
func (c *SnapshotCache) IsHealthy() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.healthy {
		return true
	}
	return time.Since(c.lastCheck) >= c.recoveryWait
}

// Set stores snap for coin. Failures are logged and swallowed; a cache
// write is never allowed to fail a trading cycle.
func (c *SnapshotCache) Set(ctx context.Context, coin string, snap model.Snapshot) {
	if c == nil || !c.IsHealthy() {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		c.log.WithError(err).Warn("failed to marshal snapshot for cache")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+coin, data, c.ttl).Err(); err != nil {
		c.recordFailure()
		c.log.WithError(err).Warn("failed to write snapshot to cache")
		return
	}
	c.recordSuccess()
}

// Get returns the last cached Snapshot for coin, if present and the cache is
// healthy.
func (c *SnapshotCache) Get(ctx context.Context, coin string) (model.Snapshot, bool) {
	if c == nil || !c.IsHealthy() {
		return model.Snapshot{}, false
	}
	data, err := c.client.Get(ctx, keyPrefix+coin).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.recordFailure()
		}
		return model.Snapshot{}, false
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.WithError(err).Warn(fmt.Sprintf("corrupt cached snapshot for %s", coin))
		return model.Snapshot{}, false
	}
	c.recordSuccess()
	return snap, true
}

// Close releases the underlying Redis client.
func (c *SnapshotCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
