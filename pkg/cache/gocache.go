package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocachelib "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocachestore "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
)

// GoCacheConfig configures the TTL based in-process cache.
type GoCacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// GoCache is an in-process cache whose entries expire after a TTL, built on
// eko/gocache over patrickmn/go-cache.
type GoCache[K comparable, V any] struct {
	cache *gocachelib.Cache[V]
	ttl   time.Duration
}

// NewGoCache creates a GoCache. A zero TTL keeps entries until invalidated.
func NewGoCache[K comparable, V any](cfg GoCacheConfig) *GoCache[K, V] {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	client := gocache.New(ttl, cleanup)
	return &GoCache[K, V]{
		cache: gocachelib.New[V](gocachestore.NewGoCache(client)),
		ttl:   ttl,
	}
}

func (c *GoCache[K, V]) FetchFromCache(ctx context.Context, key K) (V, error) {
	value, err := c.cache.Get(ctx, fmt.Sprintf("%v", key))
	if err != nil {
		var zero V
		if isGoCacheMiss(err) {
			return zero, notFound(key)
		}
		return zero, fmt.Errorf("gocache get: %w", err)
	}
	return value, nil
}

func (c *GoCache[K, V]) WriteToCache(ctx context.Context, key K, value V) error {
	if err := c.cache.Set(ctx, fmt.Sprintf("%v", key), value, store.WithExpiration(c.ttl)); err != nil {
		return fmt.Errorf("gocache set: %w", err)
	}
	return nil
}

func (c *GoCache[K, V]) Invalidate(ctx context.Context, key K) error {
	err := c.cache.Delete(ctx, fmt.Sprintf("%v", key))
	if err != nil && !isGoCacheMiss(err) {
		return fmt.Errorf("gocache delete: %w", err)
	}
	return nil
}

func isGoCacheMiss(err error) bool {
	return errors.As(err, new(*store.NotFound))
}

// Close is a no-op; go-cache has no external resources.
func (c *GoCache[K, V]) Close() error {
	return nil
}
