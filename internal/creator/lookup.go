// Package creator resolves the creator context used to weigh reach.
package creator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"viralscope/internal/model"
	"viralscope/internal/storage"
)

// Platform-wide fallbacks used when no creator has been stored yet.
const (
	DefaultFollowers  int64 = 10000
	DefaultEngagement       = 0.04
)

const cacheTTL = time.Hour

// Lookup reads creator profiles from the store, optionally through a redis cache.
type Lookup struct {
	store storage.CreatorStore
	cache *redis.Client
	log   *slog.Logger
}

// NewLookup creates a Lookup. cache may be nil.
func NewLookup(store storage.CreatorStore, cache *redis.Client, log *slog.Logger) *Lookup {
	return &Lookup{store: store, cache: cache, log: log}
}

// Get returns the creator behind handle. Unknown or empty handles resolve to
// platform averages with Known set to false.
func (l *Lookup) Get(ctx context.Context, handle, niche string) (model.CreatorContext, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return l.fallback(ctx, handle, niche)
	}

	if c, ok := l.cached(ctx, handle); ok {
		return withNiche(c, niche), nil
	}

	c, err := l.store.GetCreator(ctx, handle)
	if errors.Is(err, storage.ErrNotFound) {
		return l.fallback(ctx, handle, niche)
	}
	if err != nil {
		return model.CreatorContext{}, fmt.Errorf("get creator: %w", err)
	}
	l.remember(ctx, *c)
	return withNiche(*c, niche), nil
}

// withNiche fills a missing niche from the request. The cached record is
// shared across requests and keeps the stored value.
func withNiche(c model.CreatorContext, niche string) model.CreatorContext {
	if c.Niche == "" {
		c.Niche = niche
	}
	return c
}

func (l *Lookup) fallback(ctx context.Context, handle, niche string) (model.CreatorContext, error) {
	followers, engagement, err := l.store.CreatorAverages(ctx)
	if err != nil {
		return model.CreatorContext{}, fmt.Errorf("creator averages: %w", err)
	}
	if followers == 0 {
		followers = DefaultFollowers
	}
	if engagement == 0 {
		engagement = DefaultEngagement
	}
	return model.CreatorContext{
		Handle:        handle,
		Niche:         niche,
		FollowerCount: followers,
		AvgEngagement: engagement,
	}, nil
}

func cacheKey(handle string) string {
	return "creator:" + handle
}

func (l *Lookup) cached(ctx context.Context, handle string) (model.CreatorContext, bool) {
	if l.cache == nil {
		return model.CreatorContext{}, false
	}
	data, err := l.cache.Get(ctx, cacheKey(handle)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.log.Warn("creator cache read", "handle", handle, "error", err)
		}
		return model.CreatorContext{}, false
	}
	var c model.CreatorContext
	if err := json.Unmarshal(data, &c); err != nil {
		l.log.Warn("creator cache decode", "handle", handle, "error", err)
		return model.CreatorContext{}, false
	}
	return c, true
}

func (l *Lookup) remember(ctx context.Context, c model.CreatorContext) {
	if l.cache == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, cacheKey(c.Handle), data, cacheTTL).Err(); err != nil {
		l.log.Warn("creator cache write", "handle", c.Handle, "error", err)
	}
}
