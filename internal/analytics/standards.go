package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/claude/liftlog/internal/store"
	"github.com/coocood/freecache"
)

const megabyte = 1024 * 1024

// CachedStandards is a read-through cache in front of a standards lookup.
// Lookup errors are not cached.
type CachedStandards struct {
	next   store.Standards
	cache  *freecache.Cache
	expire int
	log    *slog.Logger
}

// NewCachedStandards caches next's answers for ttlSeconds in a cache of sizeMB.
func NewCachedStandards(next store.Standards, sizeMB, ttlSeconds int, log *slog.Logger) *CachedStandards {
	if sizeMB <= 0 {
		sizeMB = 1
	}
	return &CachedStandards{
		next:   next,
		cache:  freecache.NewCache(sizeMB * megabyte),
		expire: ttlSeconds,
		log:    log,
	}
}

func (c *CachedStandards) Ratios(ctx context.Context, exercise, gender string) ([]float64, error) {
	key := []byte("ratios::" + strings.ToLower(exercise) + "::" + strings.ToLower(gender))
	if data, err := c.cache.Get(key); err == nil {
		var ratios []float64
		if err := json.Unmarshal(data, &ratios); err == nil {
			return ratios, nil
		}
		c.log.Warn("dropping unreadable cached standards", "exercise", exercise, "gender", gender)
		c.cache.Del(key)
	}

	ratios, err := c.next.Ratios(ctx, exercise, gender)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(ratios)
	if err == nil {
		err = c.cache.Set(key, data, c.expire)
	}
	if err != nil {
		c.log.Warn("caching standards failed", "exercise", exercise, "error", err)
	}
	return ratios, nil
}

// HitRate reports the cache hit rate since creation.
func (c *CachedStandards) HitRate() float64 {
	return c.cache.HitRate()
}
