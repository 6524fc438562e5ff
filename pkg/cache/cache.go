// Package cache provides generic key/value storage engines that back the image cache.
//
// Every engine is safe for concurrent use and follows last-write-wins semantics per key.
// A miss is reported as ErrNotFound (possibly wrapped), never as a nil value.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNotFound is returned by FetchFromCache when the key has no entry.
var ErrNotFound = errors.New("key not found in cache")

// Cache is a generic interface for a caching layer.
type Cache[K any, V any] interface {
	// FetchFromCache retrieves an item from the cache.
	FetchFromCache(ctx context.Context, key K) (V, error)
	// WriteToCache adds or replaces an item in the cache.
	WriteToCache(ctx context.Context, key K, value V) error
}

// Invalidator is implemented by caches that support explicit removal of a key.
// Removing a key that is not present is not an error.
type Invalidator[K any] interface {
	Invalidate(ctx context.Context, key K) error
}

// HashKey returns a hex SHA-256 digest of the key's string form. Backends whose
// identifiers cannot contain '/' or are length limited use it to name entries.
func HashKey[K any](key K) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%v", key)))
	return hex.EncodeToString(sum[:])
}

func notFound[K any](key K) error {
	return fmt.Errorf("key '%v': %w", key, ErrNotFound)
}
