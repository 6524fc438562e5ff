package remoteimage

import (
	"fmt"
	"sync"

	"github.com/illmade-knight/go-remoteimage/pkg/cache"
	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/illmade-knight/go-remoteimage/pkg/imagecache"
	"github.com/rs/zerolog"
)

// Tools holds the downloader and cache used by a Loader. Both can be replaced
// at any time; each SetImage reads the current values.
type Tools struct {
	mu         sync.RWMutex
	downloader downloader.Downloader
	cache      imagecache.ImageCache
}

// NewTools creates Tools from explicit collaborators.
func NewTools(d downloader.Downloader, c imagecache.ImageCache) *Tools {
	return &Tools{downloader: d, cache: c}
}

// DefaultTools returns an HTTP downloader and an in-process LRU image cache.
func DefaultTools(cfg downloader.Config, lruSize int, logger zerolog.Logger) (*Tools, error) {
	backend, err := cache.NewInMemoryLRUCache[string, imagecache.Entry](lruSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return NewTools(
		downloader.NewHTTPDownloader(cfg, logger),
		imagecache.NewBlobCache(backend, logger),
	), nil
}

func (t *Tools) Downloader() downloader.Downloader {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.downloader
}

func (t *Tools) SetDownloader(d downloader.Downloader) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloader = d
}

func (t *Tools) Cache() imagecache.ImageCache {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cache
}

func (t *Tools) SetCache(c imagecache.ImageCache) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = c
}
