package releases

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/digitalpulse/tsom-api/internal/cache"
	"github.com/digitalpulse/tsom-api/internal/telemetry"
)

// Cache keys of the two resolved release kinds.
const (
	UpdaterReleaseKey = "latest_updater_release"
	GameReleaseKey    = "latest_game_release"
)

// DefaultCacheLifespan is how long a resolved release is served before the
// release host is asked again.
const DefaultCacheLifespan = 5 * time.Minute

// Source resolves releases; *Fetcher implements it.
type Source interface {
	LatestGameRelease(ctx context.Context) (*GameRelease, error)
	LatestUpdaterRelease(ctx context.Context) (Assets, error)
}

// Cache serves resolved releases from memory and refreshes each kind on its
// own once its lifespan has elapsed. Failed refreshes are not remembered.
// Returned values are shared and must not be modified.
type Cache struct {
	source  Source
	game    *cache.Cache[*GameRelease]
	updater *cache.Cache[Assets]

	gameFilled    atomic.Bool
	updaterFilled atomic.Bool
}

// NewCache wraps source with a cache whose entries live for lifespan.
func NewCache(source Source, lifespan time.Duration) (*Cache, error) {
	hook := cache.WithLookupHook(func(key string, hit bool) {
		result := "miss"
		if hit {
			result = "hit"
		}
		telemetry.ReleaseCacheRequestsTotal.WithLabelValues(key, result).Inc()
	})

	game, err := cache.New[*GameRelease](lifespan, hook)
	if err != nil {
		return nil, fmt.Errorf("failed to create game release cache: %w", err)
	}
	updater, err := cache.New[Assets](lifespan, hook)
	if err != nil {
		game.Close()
		return nil, fmt.Errorf("failed to create updater release cache: %w", err)
	}

	return &Cache{source: source, game: game, updater: updater}, nil
}

// LatestGameRelease returns the cached game release, resolving it on a miss.
func (c *Cache) LatestGameRelease(ctx context.Context) (*GameRelease, error) {
	rel, err := c.game.GetOrCompute(ctx, GameReleaseKey, c.source.LatestGameRelease)
	if err == nil {
		c.gameFilled.Store(true)
	}
	return rel, err
}

// LatestUpdaterRelease returns the cached updater builds, resolving them on a
// miss.
func (c *Cache) LatestUpdaterRelease(ctx context.Context) (Assets, error) {
	assets, err := c.updater.GetOrCompute(ctx, UpdaterReleaseKey, c.source.LatestUpdaterRelease)
	if err == nil {
		c.updaterFilled.Store(true)
	}
	return assets, err
}

// Warm reports whether both release kinds have been resolved at least once.
func (c *Cache) Warm() bool {
	return c.gameFilled.Load() && c.updaterFilled.Load()
}

// Close stops the cache's background workers.
func (c *Cache) Close() {
	c.game.Close()
	c.updater.Close()
}
