//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-remoteimage/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firestoreTestValue struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

// Run against the emulator: gcloud emulators firestore start, then export FIRESTORE_EMULATOR_HOST.
func TestFirestoreCache_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	const projectID = "test-project"
	client, err := firestore.NewClient(ctx, projectID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cfg := &cache.FirestoreConfig{ProjectID: projectID, CollectionName: "remote-images"}
	c, err := cache.NewFirestoreCache[string, firestoreTestValue](cfg, client, zerolog.Nop())
	require.NoError(t, err)

	key := "https://example.com/a.jpg/round_w30_h30_cR15_v1"

	t.Run("Write and Fetch", func(t *testing.T) {
		value := firestoreTestValue{Name: "test-item", Count: 42}
		require.NoError(t, c.WriteToCache(ctx, key, value))

		retrieved, err := c.FetchFromCache(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, retrieved)
	})

	t.Run("Fetch Miss", func(t *testing.T) {
		_, err := c.FetchFromCache(ctx, "https://example.com/missing.jpg")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, c.Invalidate(ctx, key))
		_, err := c.FetchFromCache(ctx, key)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})
}

func TestNewFirestoreCache_Validation(t *testing.T) {
	_, err := cache.NewFirestoreCache[string, firestoreTestValue](&cache.FirestoreConfig{CollectionName: "c"}, nil, zerolog.Nop())
	assert.Error(t, err)
}
