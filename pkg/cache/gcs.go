package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// GCSCacheConfig holds configuration specific to the GCS backed cache.
type GCSCacheConfig struct {
	BucketName   string `yaml:"bucket"`
	ObjectPrefix string `yaml:"object_prefix"`
}

// GCSCache stores each value as a JSON object in a Cloud Storage bucket.
// Object names are <prefix>/<sha256(key)>.json. Expiry is left to the bucket's
// lifecycle rules.
type GCSCache[K comparable, V any] struct {
	client GCSClient
	config GCSCacheConfig
	logger zerolog.Logger
}

// NewGCSCache creates a new cache backed by Google Cloud Storage.
func NewGCSCache[K comparable, V any](
	gcsClient GCSClient,
	config GCSCacheConfig,
	logger zerolog.Logger,
) (*GCSCache[K, V], error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSCache[K, V]{
		client: gcsClient,
		config: config,
		logger: logger.With().Str("component", "GCSCache").Logger(),
	}, nil
}

func (c *GCSCache[K, V]) object(key K) (GCSObjectHandle, string) {
	objectName := path.Join(c.config.ObjectPrefix, HashKey(key)+".json")
	return c.client.Bucket(c.config.BucketName).Object(objectName), objectName
}

func (c *GCSCache[K, V]) FetchFromCache(ctx context.Context, key K) (V, error) {
	var zero V
	obj, objectName := c.object(key)

	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return zero, notFound(key)
		}
		return zero, fmt.Errorf("failed to open GCS object %s: %w", objectName, err)
	}
	defer func() { _ = reader.Close() }()

	var value V
	if err := json.NewDecoder(reader).Decode(&value); err != nil {
		return zero, fmt.Errorf("failed to decode GCS object %s: %w", objectName, err)
	}
	c.logger.Debug().Str("object_name", objectName).Msg("GCS cache hit.")
	return value, nil
}

func (c *GCSCache[K, V]) WriteToCache(ctx context.Context, key K, value V) error {
	obj, objectName := c.object(key)
	gcsWriter := obj.NewWriter(ctx)

	pr, pw := io.Pipe()
	go func() {
		err := json.NewEncoder(pw).Encode(value)
		_ = pw.CloseWithError(err)
	}()

	bytesWritten, pipeReadErr := io.Copy(gcsWriter, pr)
	closeErr := gcsWriter.Close() // This finalizes the GCS upload.

	if pipeReadErr != nil {
		return fmt.Errorf("failed to stream data for GCS object %s: %w", objectName, pipeReadErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close GCS object writer for %s: %w", objectName, closeErr)
	}

	c.logger.Debug().
		Str("object_name", objectName).
		Int64("bytes_written", bytesWritten).
		Msg("Stored cache entry in GCS.")
	return nil
}

func (c *GCSCache[K, V]) Invalidate(ctx context.Context, key K) error {
	obj, objectName := c.object(key)
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %s: %w", objectName, err)
	}
	return nil
}

// Close is a no-op; the storage client is owned by the caller.
func (c *GCSCache[K, V]) Close() error {
	return nil
}
