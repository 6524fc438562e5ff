package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioConfig configures the S3 compatible object store backend.
type MinioConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket"`
	Location     string `yaml:"location"`
	UseSSL       bool   `yaml:"use_ssl"`
	ObjectPrefix string `yaml:"object_prefix"`
}

// MinioConnection is the subset of object store calls MinioCache needs.
type MinioConnection interface {
	GetObject(ctx context.Context, objectName string) (io.ReadCloser, error)
	PutObject(ctx context.Context, objectName string, objectSize int64, mimeType string, reader io.Reader) error
	DeleteObject(ctx context.Context, objectName string) error
}

type minioConnection struct {
	client *minio.Client
	bucket string
}

// NewMinioConnection connects to the store and creates the bucket if needed.
func NewMinioConnection(ctx context.Context, cfg MinioConfig) (MinioConnection, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Location}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &minioConnection{client: client, bucket: cfg.Bucket}, nil
}

func (c *minioConnection) GetObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	return c.client.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
}

func (c *minioConnection) PutObject(ctx context.Context, objectName string, objectSize int64, mimeType string, reader io.Reader) error {
	_, err := c.client.PutObject(ctx, c.bucket, objectName, reader, objectSize, minio.PutObjectOptions{ContentType: mimeType})
	return err
}

func (c *minioConnection) DeleteObject(ctx context.Context, objectName string) error {
	return c.client.RemoveObject(ctx, c.bucket, objectName, minio.RemoveObjectOptions{})
}

// MinioCache stores JSON encoded values as objects in an S3 compatible bucket.
type MinioCache[K comparable, V any] struct {
	conn   MinioConnection
	prefix string
	logger zerolog.Logger
}

// NewMinioCache creates a cache on top of an existing connection.
func NewMinioCache[K comparable, V any](conn MinioConnection, prefix string, logger zerolog.Logger) (*MinioCache[K, V], error) {
	if conn == nil {
		return nil, errors.New("minio connection cannot be nil")
	}
	return &MinioCache[K, V]{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "MinioCache").Logger(),
	}, nil
}

func (c *MinioCache[K, V]) objectName(key K) string {
	return c.prefix + HashKey(key) + ".json"
}

func (c *MinioCache[K, V]) FetchFromCache(ctx context.Context, key K) (V, error) {
	var zero V
	name := c.objectName(key)

	obj, err := c.conn.GetObject(ctx, name)
	if err != nil {
		return zero, c.convertError(key, name, err)
	}
	defer func() { _ = obj.Close() }()

	// minio reports a missing object on the first read, not on GetObject.
	data, err := io.ReadAll(obj)
	if err != nil {
		return zero, c.convertError(key, name, err)
	}

	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal object %s: %w", name, err)
	}
	c.logger.Debug().Str("object_name", name).Msg("Minio cache hit.")
	return value, nil
}

func (c *MinioCache[K, V]) WriteToCache(ctx context.Context, key K, value V) error {
	name := c.objectName(key)
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := c.conn.PutObject(ctx, name, int64(len(data)), "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to put object %s: %w", name, err)
	}
	c.logger.Debug().Str("object_name", name).Int("bytes_written", len(data)).Msg("Stored cache entry in minio.")
	return nil
}

// Invalidate removes the object. S3 treats deleting a missing object as success.
func (c *MinioCache[K, V]) Invalidate(ctx context.Context, key K) error {
	name := c.objectName(key)
	if err := c.conn.DeleteObject(ctx, name); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", name, err)
	}
	return nil
}

// Close is a no-op; the minio client holds no persistent connection.
func (c *MinioCache[K, V]) Close() error {
	return nil
}

func (c *MinioCache[K, V]) convertError(key K, name string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return notFound(key)
	}
	return fmt.Errorf("failed to read object %s: %w", name, err)
}
