// Package imagecache stores decoded images under keys derived from their
// source URL and processor identity.
package imagecache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/illmade-knight/go-remoteimage/pkg/cache"
	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/rs/zerolog"
)

// ErrInvalidationUnsupported is returned when the backend cannot remove keys.
var ErrInvalidationUnsupported = errors.New("cache backend does not support invalidation")

// ImageCache is what the loader needs from a cache. Lookup is synchronous and
// reports any failure as a miss; Store is fire-and-forget.
type ImageCache interface {
	Store(ctx context.Context, key string, img image.Image, meta *downloader.Metadata)
	Lookup(ctx context.Context, key string) (image.Image, bool)
}

// Entry is the stored form of one image.
type Entry struct {
	Data        []byte               `json:"data" firestore:"data"`
	ContentType string               `json:"content_type" firestore:"content_type"`
	Metadata    *downloader.Metadata `json:"metadata,omitempty" firestore:"metadata,omitempty"`
	StoredAt    time.Time            `json:"stored_at" firestore:"stored_at"`
}

// BlobCache encodes images as PNG and keeps them in a key/value backend.
type BlobCache struct {
	backend cache.Cache[string, Entry]
	logger  zerolog.Logger
}

// NewBlobCache wraps backend.
func NewBlobCache(backend cache.Cache[string, Entry], logger zerolog.Logger) *BlobCache {
	return &BlobCache{
		backend: backend,
		logger:  logger.With().Str("component", "BlobCache").Logger(),
	}
}

// Store encodes img and writes it. Failures are logged, never returned.
func (c *BlobCache) Store(ctx context.Context, key string, img image.Image, meta *downloader.Metadata) {
	if img == nil {
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to encode image for cache.")
		return
	}
	entry := Entry{
		Data:        buf.Bytes(),
		ContentType: "image/png",
		Metadata:    meta,
		StoredAt:    time.Now().UTC(),
	}
	if err := c.backend.WriteToCache(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store image in cache.")
		return
	}
	c.logger.Debug().Str("key", key).Int("bytes", len(entry.Data)).Msg("Stored image.")
}

// Lookup returns the cached image for key.
func (c *BlobCache) Lookup(ctx context.Context, key string) (image.Image, bool) {
	entry, err := c.backend.FetchFromCache(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache lookup failed, treating as miss.")
		}
		return nil, false
	}
	img, err := imaging.Decode(bytes.NewReader(entry.Data))
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cached entry is not a decodable image.")
		return nil, false
	}
	return img, true
}

// Invalidate removes key from the backend.
func (c *BlobCache) Invalidate(ctx context.Context, key string) error {
	inv, ok := c.backend.(cache.Invalidator[string])
	if !ok {
		return ErrInvalidationUnsupported
	}
	return inv.Invalidate(ctx, key)
}

// Close closes the backend if it holds resources.
func (c *BlobCache) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
