// Package cache holds the Redis-backed read model for slot availability.
//
// Entries are keyed by (resource, date, version).  Every state transition
// bumps the version, which orphans older entries instead of deleting them, so
// a reader that computed a view from pre-transition data can only ever store
// it under a version nobody will look up again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rondo-space/venue-reservations/internal/config"
	"github.com/rondo-space/venue-reservations/internal/model"
)

// SlotCache stores the active reservations of one resource-day.
type SlotCache struct {
	rdb        redis.Cmdable
	prefix     string
	ttl        time.Duration
	versionTTL time.Duration
	now        func() time.Time

	mu    sync.Mutex
	dirty map[string]time.Time // resource-day key -> bypass deadline
}

// NewSlotCache returns a cache, or nil when caching is disabled or Redis is
// unavailable.  A nil *SlotCache must not be used; callers check for it.
func NewSlotCache(cfg config.ProjectionCacheConfig, rdb redis.Cmdable) *SlotCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &SlotCache{
		rdb:        rdb,
		prefix:     cfg.Prefix,
		ttl:        cfg.TTL,
		versionTTL: cfg.VersionTTL,
		now:        time.Now,
		dirty:      make(map[string]time.Time),
	}
}

func (c *SlotCache) versionKey(resourceID, dateKey string) string {
	return fmt.Sprintf("%s:slots:ver:%s:%s", c.prefix, resourceID, dateKey)
}

func (c *SlotCache) entryKey(resourceID, dateKey string, version int64) string {
	return fmt.Sprintf("%s:slots:%s:%s:v%d", c.prefix, resourceID, dateKey, version)
}

// Version returns the current version of a resource-day, 0 if never bumped.
func (c *SlotCache) Version(ctx context.Context, resourceID, dateKey string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(resourceID, dateKey)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get returns the cached reservations stored under version.
func (c *SlotCache) Get(ctx context.Context, resourceID, dateKey string, version int64) ([]model.Reservation, bool, error) {
	raw, err := c.rdb.Get(ctx, c.entryKey(resourceID, dateKey, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rows []model.Reservation
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false, fmt.Errorf("decode cached slots: %w", err)
	}
	return rows, true, nil
}

// Set stores rows under version.
func (c *SlotCache) Set(ctx context.Context, resourceID, dateKey string, version int64, rows []model.Reservation) error {
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.entryKey(resourceID, dateKey, version), raw, c.ttl).Err()
}

// Bump advances the version of a resource-day, invalidating every entry
// stored so far.
func (c *SlotCache) Bump(ctx context.Context, resourceID, dateKey string) error {
	key := c.versionKey(resourceID, dateKey)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.versionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate makes the next read of a resource-day miss.  It bumps the
// version; if the bump fails it deletes the current entry and, whatever the
// delete's outcome, marks the resource-day dirty for one entry TTL so this
// process bypasses the cache until an entry stored by a racing reader has
// expired.  The bump error is returned for logging.
func (c *SlotCache) Invalidate(ctx context.Context, resourceID, dateKey string) error {
	bumpErr := c.Bump(ctx, resourceID, dateKey)
	if bumpErr == nil {
		return nil
	}
	c.markDirty(resourceID, dateKey)

	ver, err := c.Version(ctx, resourceID, dateKey)
	if err == nil {
		err = c.rdb.Del(ctx, c.entryKey(resourceID, dateKey, ver)).Err()
	}
	if err != nil {
		return fmt.Errorf("bump slot version: %w; drop entry: %w", bumpErr, err)
	}
	return fmt.Errorf("bump slot version: %w", bumpErr)
}

// Bypassed reports whether reads of a resource-day must skip the cache
// because an invalidation could not be recorded in Redis.
func (c *SlotCache) Bypassed(resourceID, dateKey string) bool {
	key := c.versionKey(resourceID, dateKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.dirty[key]
	if !ok {
		return false
	}
	if !c.now().Before(until) {
		delete(c.dirty, key)
		return false
	}
	return true
}

func (c *SlotCache) markDirty(resourceID, dateKey string) {
	c.mu.Lock()
	c.dirty[c.versionKey(resourceID, dateKey)] = c.now().Add(c.ttl)
	c.mu.Unlock()
}
