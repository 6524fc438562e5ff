package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-remoteimage/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Downloader.Timeout)
	assert.Equal(t, int64(20<<20), cfg.Downloader.MaxBytes)
	assert.Equal(t, config.BackendLRU, cfg.Cache.Backend)
	assert.Equal(t, 512, cfg.Cache.LRUSize)
	assert.Equal(t, 24*time.Hour, cfg.Cache.Redis.CacheTTL)
	assert.Equal(t, 4, cfg.Loader.StoreWorkers)
	assert.Equal(t, 10*time.Second, cfg.Loader.StoreTimeout)
}

func TestLoad(t *testing.T) {
	// Arrange
	yamlText := `
log:
  level: debug
http_port: ":9090"
downloader:
  timeout: 5s
  user_agent: remoteimage/1.0
cache:
  backend: gcs
  ttl: 1h
  gcs:
    project_id: my-project
    bucket: images
    object_prefix: cache
invalidation:
  enabled: true
  project_id: my-project
  subscription_id: image-updates
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlText), 0o600))

	// Act
	cfg, err := config.Load(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.Downloader.Timeout)
	assert.Equal(t, "remoteimage/1.0", cfg.Downloader.UserAgent)
	assert.Equal(t, config.BackendGCS, cfg.Cache.Backend)
	assert.Equal(t, "my-project", cfg.Cache.GCS.ProjectID)
	assert.Equal(t, "images", cfg.Cache.GCS.BucketName)
	assert.Equal(t, "cache", cfg.Cache.GCS.ObjectPrefix)
	assert.Equal(t, time.Hour, cfg.Cache.GoCache.TTL)
	assert.True(t, cfg.Invalidation.Enabled)
	assert.Equal(t, "image-updates", cfg.Invalidation.SubscriptionID)
}

func TestVerify(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{name: "unknown backend", yaml: "cache: {backend: disk}"},
		{name: "negative lru size", yaml: "cache: {backend: lru, lru_size: -1}"},
		{name: "redis without addr", yaml: "cache: {backend: redis}"},
		{name: "firestore without project", yaml: "cache: {backend: firestore}"},
		{name: "gcs without bucket", yaml: "cache: {backend: gcs}"},
		{name: "minio without endpoint", yaml: "cache: {backend: minio, minio: {bucket: b}}"},
		{name: "invalidation without subscription", yaml: "invalidation: {enabled: true, project_id: p}"},
		{name: "negative timeout", yaml: "downloader: {timeout: -1s}"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
