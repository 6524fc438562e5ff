package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-remoteimage/pkg/cache"
	"github.com/illmade-knight/go-remoteimage/pkg/config"
	"github.com/illmade-knight/go-remoteimage/pkg/imagecache"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// newImageCache builds the configured backend. The returned cleanup releases
// clients the backend does not own; call it after closing the cache.
func newImageCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (*imagecache.BlobCache, func(), error) {
	noop := func() {}
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var backend cache.Cache[string, imagecache.Entry]
	cleanup := noop

	switch cfg.Backend {
	case config.BackendMemory:
		backend = cache.NewInMemoryCache[string, imagecache.Entry]()

	case config.BackendLRU:
		lru, err := cache.NewInMemoryLRUCache[string, imagecache.Entry](cfg.LRUSize)
		if err != nil {
			return nil, noop, err
		}
		backend = lru

	case config.BackendGoCache:
		backend = cache.NewGoCache[string, imagecache.Entry](cfg.GoCache)

	case config.BackendRedis:
		rc, err := cache.NewRedisCache[string, imagecache.Entry](ctx, &cfg.Redis, logger)
		if err != nil {
			return nil, noop, err
		}
		backend = rc

	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, clientOpts...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create firestore client: %w", err)
		}
		fc, err := cache.NewFirestoreCache[string, imagecache.Entry](&cfg.Firestore, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		backend = fc
		cleanup = func() { _ = client.Close() }

	case config.BackendGCS:
		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create storage client: %w", err)
		}
		gc, err := cache.NewGCSCache[string, imagecache.Entry](cache.NewGCSClientAdapter(client), cfg.GCS.GCSCacheConfig, logger)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		backend = gc
		cleanup = func() { _ = client.Close() }

	case config.BackendMinio:
		conn, err := cache.NewMinioConnection(ctx, cfg.Minio)
		if err != nil {
			return nil, noop, err
		}
		mc, err := cache.NewMinioCache[string, imagecache.Entry](conn, cfg.Minio.ObjectPrefix, logger)
		if err != nil {
			return nil, noop, err
		}
		backend = mc

	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	logger.Info().Str("backend", cfg.Backend).Msg("Image cache ready.")
	return imagecache.NewBlobCache(backend, logger), cleanup, nil
}
