// Package config loads the remoteimage service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/illmade-knight/go-remoteimage/pkg/cache"
	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/illmade-knight/go-remoteimage/pkg/invalidation"
	"github.com/illmade-knight/go-remoteimage/pkg/logging"
	"github.com/illmade-knight/go-remoteimage/pkg/preview"
	"github.com/illmade-knight/go-remoteimage/pkg/remoteimage"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendMemory    = "memory"
	BackendLRU       = "lru"
	BackendGoCache   = "gocache"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendGCS       = "gcs"
	BackendMinio     = "minio"
)

// ErrInvalid is wrapped by every Verify failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Log          logging.Config              `yaml:"log"`
	HTTPPort     string                      `yaml:"http_port"`
	Downloader   downloader.Config           `yaml:"downloader"`
	Loader       remoteimage.LoaderConfig    `yaml:"loader"`
	Preview      preview.Config              `yaml:"preview"`
	Cache        CacheConfig                 `yaml:"cache"`
	Invalidation invalidation.ListenerConfig `yaml:"invalidation"`
}

// CacheConfig selects and configures the image cache backend.
type CacheConfig struct {
	Backend         string                `yaml:"backend"`
	LRUSize         int                   `yaml:"lru_size"`
	TTL             time.Duration         `yaml:"ttl"`
	CredentialsFile string                `yaml:"credentials_file"` // Google backends, optional
	GoCache         cache.GoCacheConfig   `yaml:"gocache"`
	Redis           cache.RedisConfig     `yaml:"redis"`
	Firestore       cache.FirestoreConfig `yaml:"firestore"`
	GCS             GCSConfig             `yaml:"gcs"`
	Minio           cache.MinioConfig     `yaml:"minio"`
}

// GCSConfig adds the project the storage client is created for.
type GCSConfig struct {
	ProjectID            string `yaml:"project_id"`
	cache.GCSCacheConfig `yaml:",inline"`
}

// Load reads path, applies defaults and verifies the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and verifies the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTPPort == "" {
		c.HTTPPort = ":8080"
	}
	if c.Downloader.Timeout == 0 {
		c.Downloader.Timeout = 30 * time.Second
	}
	if c.Downloader.MaxBytes == 0 {
		c.Downloader.MaxBytes = 20 << 20
	}
	if c.Loader.StoreWorkers == 0 {
		c.Loader.StoreWorkers = 4
	}
	if c.Loader.StoreQueueSize == 0 {
		c.Loader.StoreQueueSize = 128
	}
	if c.Loader.StoreTimeout == 0 {
		c.Loader.StoreTimeout = 10 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendLRU
	}
	if c.Cache.LRUSize == 0 {
		c.Cache.LRUSize = 512
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.GoCache.TTL == 0 {
		c.Cache.GoCache.TTL = c.Cache.TTL
	}
	if c.Cache.Redis.CacheTTL == 0 {
		c.Cache.Redis.CacheTTL = c.Cache.TTL
	}
	if c.Cache.Redis.KeyPrefix == "" {
		c.Cache.Redis.KeyPrefix = "remoteimage:"
	}
	if c.Cache.Firestore.CollectionName == "" {
		c.Cache.Firestore.CollectionName = "remote-images"
	}
	if c.Invalidation.MaxOutstandingMessages == 0 {
		c.Invalidation.MaxOutstandingMessages = 100
	}
	if c.Invalidation.NumGoroutines == 0 {
		c.Invalidation.NumGoroutines = 5
	}
}

// Verify rejects configurations the service cannot start with.
func (c *Config) Verify() error {
	if c.Downloader.Timeout < 0 || c.Downloader.MaxBytes < 0 {
		return fmt.Errorf("%w: downloader timeout and max_bytes must not be negative", ErrInvalid)
	}
	if c.Loader.StoreWorkers < 0 || c.Loader.StoreQueueSize < 0 {
		return fmt.Errorf("%w: loader store_workers and store_queue_size must not be negative", ErrInvalid)
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendGoCache:
	case BackendLRU:
		if c.Cache.LRUSize <= 0 {
			return fmt.Errorf("%w: cache.lru_size must be greater than 0", ErrInvalid)
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("%w: cache.redis.addr is required", ErrInvalid)
		}
	case BackendFirestore:
		if c.Cache.Firestore.ProjectID == "" {
			return fmt.Errorf("%w: cache.firestore.project_id is required", ErrInvalid)
		}
	case BackendGCS:
		if c.Cache.GCS.BucketName == "" {
			return fmt.Errorf("%w: cache.gcs.bucket is required", ErrInvalid)
		}
	case BackendMinio:
		if c.Cache.Minio.Endpoint == "" || c.Cache.Minio.Bucket == "" {
			return fmt.Errorf("%w: cache.minio.endpoint and cache.minio.bucket are required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalid, c.Cache.Backend)
	}

	if c.Invalidation.Enabled {
		if c.Invalidation.ProjectID == "" || c.Invalidation.SubscriptionID == "" {
			return fmt.Errorf("%w: invalidation requires project_id and subscription_id", ErrInvalid)
		}
	}
	return nil
}
