package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// lruCacheItem is the internal structure stored in the linked list.
type lruCacheItem[K comparable, V any] struct {
	key   K
	value V
}

// InMemoryLRUCache is a generic, thread-safe, in-memory cache with a fixed size
// and a Least Recently Used (LRU) eviction policy. It is the default storage
// engine for decoded-and-encoded image entries in a single process.
type InMemoryLRUCache[K comparable, V any] struct {
	maxSize int

	mu    sync.Mutex
	ll    *list.List          // Used to track the order of items (recency).
	cache map[K]*list.Element // Used for fast key lookups.
}

// NewInMemoryLRUCache creates a new size-limited, in-memory LRU cache.
// maxSize is the maximum number of items to store and must be > 0.
func NewInMemoryLRUCache[K comparable, V any](maxSize int) (*InMemoryLRUCache[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &InMemoryLRUCache[K, V]{
		maxSize: maxSize,
		ll:      list.New(),
		cache:   make(map[K]*list.Element),
	}, nil
}

// FetchFromCache retrieves an item and marks it as the most recently used.
func (c *InMemoryLRUCache[K, V]) FetchFromCache(_ context.Context, key K) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.ll.MoveToFront(elem)
		return elem.Value.(*lruCacheItem[K, V]).value, nil
	}
	var zero V
	return zero, notFound(key)
}

// WriteToCache adds or replaces an item. If the cache is over capacity afterwards,
// the least recently used item is evicted.
func (c *InMemoryLRUCache[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		elem.Value.(*lruCacheItem[K, V]).value = value
		c.ll.MoveToFront(elem)
		return nil
	}

	element := c.ll.PushFront(&lruCacheItem[K, V]{key: key, value: value})
	c.cache[key] = element

	if c.ll.Len() > c.maxSize {
		c.evict()
	}
	return nil
}

// Invalidate removes a key.
func (c *InMemoryLRUCache[K, V]) Invalidate(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.ll.Remove(elem)
		delete(c.cache, key)
	}
	return nil
}

// Len returns the number of items currently held.
func (c *InMemoryLRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// evict removes the least recently used item from the cache.
// This method is unexported and must be called within a locked mutex.
func (c *InMemoryLRUCache[K, V]) evict() {
	elementToRemove := c.ll.Back()
	if elementToRemove != nil {
		itemToRemove := c.ll.Remove(elementToRemove).(*lruCacheItem[K, V])
		delete(c.cache, itemToRemove.key)
	}
}

// Close is a no-op for the in-memory cache.
func (c *InMemoryLRUCache[K, V]) Close() error {
	return nil
}
