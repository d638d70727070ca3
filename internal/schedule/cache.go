package schedule

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// CacheRecorder receives cache hit/miss events. metrics.Metrics implements it.
type CacheRecorder interface {
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
}

// CachedEngine memoizes day and week results per user and coalesces
// concurrent identical queries. Call Invalidate after a user's data changes.
type CachedEngine struct {
	next     Querier
	today    func() time.Time
	cache    *cache.Cache
	group    singleflight.Group
	recorder CacheRecorder
}

// NewCachedEngine wraps engine with a result cache of the given TTL.
func NewCachedEngine(engine *Engine, ttl time.Duration, recorder CacheRecorder) *CachedEngine {
	return &CachedEngine{
		next:     engine,
		today:    engine.Today,
		cache:    newGoCache(ttl),
		recorder: recorder,
	}
}

// Day implements Querier.
func (c *CachedEngine) Day(ctx context.Context, userID string, date time.Time) ([]Entry, error) {
	key := userKey(userID) + "day:" + date.Format(time.DateOnly)
	return c.load(ctx, "day", key, func(ctx context.Context) ([]Entry, error) {
		return c.next.Day(ctx, userID, date)
	})
}

// Week implements Querier.
func (c *CachedEngine) Week(ctx context.Context, userID string, ref *time.Time, week *int) ([]Entry, error) {
	base := c.today()
	if ref != nil {
		base = *ref
	}
	w := "auto"
	if week != nil {
		w = strconv.Itoa(*week)
	}
	key := userKey(userID) + "week:" + base.Format(time.DateOnly) + ":" + w
	return c.load(ctx, "week", key, func(ctx context.Context) ([]Entry, error) {
		return c.next.Week(ctx, userID, &base, week)
	})
}

// Invalidate drops every cached result of the user.
func (c *CachedEngine) Invalidate(userID string) {
	prefix := userKey(userID)
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}

// Flush drops all cached results.
func (c *CachedEngine) Flush() {
	c.cache.Flush()
}

func (c *CachedEngine) load(ctx context.Context, kind, key string, fn func(context.Context) ([]Entry, error)) ([]Entry, error) {
	if v, ok := c.cache.Get(key); ok {
		c.hit(kind)
		return v.([]Entry), nil
	}
	c.miss(kind)

	v, err, _ := c.group.Do(key, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(key, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

func (c *CachedEngine) hit(kind string) {
	if c.recorder != nil {
		c.recorder.RecordCacheHit(kind)
	}
}

func (c *CachedEngine) miss(kind string) {
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(kind)
	}
}

func newGoCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, 2*ttl)
}

func userKey(userID string) string {
	return userID + "|"
}
