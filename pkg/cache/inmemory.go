// cache/inmemory.go
package cache

import (
	"context"
	"sync"
)

// InMemoryCache is a generic, thread-safe, unbounded in-memory cache.
// It is primarily intended for tests and short-lived processes.
type InMemoryCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// NewInMemoryCache creates a new in-memory cache.
func NewInMemoryCache[K comparable, V any]() *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		data: make(map[K]V),
	}
}

// FetchFromCache retrieves an item from the cache.
func (c *InMemoryCache[K, V]) FetchFromCache(_ context.Context, key K) (V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.data[key]
	if !ok {
		var zero V
		return zero, notFound(key)
	}
	return value, nil
}

// WriteToCache adds an item to the cache.
func (c *InMemoryCache[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// Invalidate removes a key.
func (c *InMemoryCache[K, V]) Invalidate(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Close is a no-op for the in-memory implementation.
func (c *InMemoryCache[K, V]) Close() error {
	return nil
}
