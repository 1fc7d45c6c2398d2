package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/volume-engine/internal/logging"
	"github.com/irfndi/volume-engine/internal/telemetry"
	"github.com/irfndi/volume-engine/internal/volume"
)

const (
	defaultPrefix = "volume:"
	previousKind  = "previous:"
	inventoryKind = "inventory:"
)

// PlanCacheEntry wraps a cached value with when it was written. ComputedAt
// is the plan time for elasticity references and zero otherwise.
type PlanCacheEntry[T any] struct {
	Value      T         `json:"value"`
	ComputedAt time.Time `json:"computed_at,omitempty"`
	CachedAt   time.Time `json:"cached_at"`
}

// PlanCacheStats tracks cache performance metrics
type PlanCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// RedisPlanCache caches elasticity references and caption inventory per creator.
type RedisPlanCache struct {
	redis        *redis.Client
	planTTL      time.Duration
	inventoryTTL time.Duration
	prefix       string
	logger       logging.Logger
	tracer       trace.Tracer

	mu    sync.Mutex
	stats PlanCacheStats
}

// NewRedisPlanCache creates a Redis-backed plan cache. logger may be nil.
func NewRedisPlanCache(redisClient *redis.Client, planTTL, inventoryTTL time.Duration, logger logging.Logger) *RedisPlanCache {
	return &RedisPlanCache{
		redis:        redisClient,
		planTTL:      planTTL,
		inventoryTTL: inventoryTTL,
		prefix:       defaultPrefix,
		logger:       logger,
		tracer:       telemetry.GetCacheTracer(),
	}
}

func (c *RedisPlanCache) previousKey(creatorID string) string {
	return c.prefix + previousKind + creatorID
}

func (c *RedisPlanCache) inventoryKey(creatorID string) string {
	return c.prefix + inventoryKind + creatorID
}

// GetPrevious returns the cached elasticity reference for a creator, but only
// when it was computed strictly before asOf. A newer cached plan is a miss so
// the caller falls back to the database.
func (c *RedisPlanCache) GetPrevious(ctx context.Context, creatorID string, asOf time.Time) (*volume.PreviousPlan, bool) {
	var entry PlanCacheEntry[*volume.PreviousPlan]
	if !c.get(ctx, c.previousKey(creatorID), &entry) || entry.Value == nil {
		return nil, false
	}
	if !entry.ComputedAt.Before(asOf) {
		return nil, false
	}
	return entry.Value, true
}

// SetPrevious stores the elasticity reference for a creator's plan computed at
// computedAt. A cached reference for a later plan is kept.
func (c *RedisPlanCache) SetPrevious(ctx context.Context, creatorID string, prev *volume.PreviousPlan, computedAt time.Time) error {
	if prev == nil {
		return nil
	}
	var existing PlanCacheEntry[*volume.PreviousPlan]
	if data, err := c.redis.Get(ctx, c.previousKey(creatorID)).Bytes(); err == nil &&
		json.Unmarshal(data, &existing) == nil && existing.ComputedAt.After(computedAt) {
		return nil
	}
	entry := PlanCacheEntry[*volume.PreviousPlan]{Value: prev, ComputedAt: computedAt, CachedAt: time.Now()}
	return c.set(ctx, c.previousKey(creatorID), entry, c.planTTL)
}

// GetInventory returns cached caption inventory. A hit may carry a nil
// inventory, which means the creator has no inventory rows.
func (c *RedisPlanCache) GetInventory(ctx context.Context, creatorID string) (volume.CaptionInventory, bool) {
	var entry PlanCacheEntry[volume.CaptionInventory]
	if !c.get(ctx, c.inventoryKey(creatorID), &entry) {
		return nil, false
	}
	return entry.Value, true
}

// SetInventory stores caption inventory for a creator.
func (c *RedisPlanCache) SetInventory(ctx context.Context, creatorID string, inventory volume.CaptionInventory) error {
	return c.set(ctx, c.inventoryKey(creatorID), PlanCacheEntry[volume.CaptionInventory]{Value: inventory, CachedAt: time.Now()}, c.inventoryTTL)
}

// Invalidate drops every cached value for a creator.
func (c *RedisPlanCache) Invalidate(ctx context.Context, creatorID string) error {
	if err := c.redis.Del(ctx, c.previousKey(creatorID), c.inventoryKey(creatorID)).Err(); err != nil {
		return fmt.Errorf("error invalidating cache for %s: %w", creatorID, err)
	}
	return nil
}

func (c *RedisPlanCache) get(ctx context.Context, key string, dest any) bool {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "cache.get", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	data, err := c.redis.Get(ctx, key).Bytes()
	hit := false
	switch {
	case errors.Is(err, redis.Nil):
		c.record(func(s *PlanCacheStats) { s.Misses++ })
	case err != nil:
		telemetry.RecordError(span, err)
		logrus.WithError(err).WithField("key", key).Warn("Redis error reading plan cache")
		c.record(func(s *PlanCacheStats) { s.Misses++; s.Errors++ })
	default:
		if err := json.Unmarshal(data, dest); err != nil {
			telemetry.RecordError(span, err)
			logrus.WithError(err).WithField("key", key).Warn("Error deserializing plan cache entry")
			c.record(func(s *PlanCacheStats) { s.Misses++; s.Errors++ })
			break
		}
		hit = true
		c.record(func(s *PlanCacheStats) { s.Hits++ })
	}

	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if c.logger != nil {
		c.logger.LogCacheOperation("get", key, hit, time.Since(start).Milliseconds())
	}
	return hit
}

func (c *RedisPlanCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "cache.set", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("error serializing cache entry %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		telemetry.RecordError(span, err)
		c.record(func(s *PlanCacheStats) { s.Errors++ })
		return fmt.Errorf("error writing cache entry %s: %w", key, err)
	}

	c.record(func(s *PlanCacheStats) { s.Sets++ })
	if c.logger != nil {
		c.logger.LogCacheOperation("set", key, false, time.Since(start).Milliseconds())
	}
	return nil
}

func (c *RedisPlanCache) record(update func(*PlanCacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

// GetStats returns current cache statistics
func (c *RedisPlanCache) GetStats() PlanCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LogStats logs current cache performance statistics
func (c *RedisPlanCache) LogStats() {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	logrus.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"errors":   stats.Errors,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Redis plan cache stats")
}

// Clear removes all cached entries under the cache prefix.
func (c *RedisPlanCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	logrus.WithField("count", len(keys)).Info("Cleared plan cache entries")
	return nil
}
