package cache

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore client.
type FirestoreConfig struct {
	ProjectID      string `yaml:"project_id"`
	CollectionName string `yaml:"collection"`
}

// FirestoreCache stores one document per key in a Firestore collection.
// Keys are hashed because document IDs cannot contain '/'.
//
// Don't use it like this in high volume deployments - that's what redis is for.
// Firestore also limits a document to 1 MiB, which bounds the cacheable image size.
type FirestoreCache[K comparable, V any] struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreCache creates a new generic FirestoreCache.
func NewFirestoreCache[K comparable, V any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreCache[K, V], error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, errors.New("firestore collection name is required")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreCache initialized.")

	return &FirestoreCache[K, V]{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreCache").Logger(),
	}, nil
}

// FetchFromCache retrieves a single document by its key.
func (c *FirestoreCache[K, V]) FetchFromCache(ctx context.Context, key K) (V, error) {
	var zero V
	docID := HashKey(key)
	docSnap, err := c.client.Collection(c.collectionName).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, notFound(key)
		}
		c.logger.Error().Err(err).Str("doc_id", docID).Msg("Failed to get document from Firestore.")
		return zero, fmt.Errorf("firestore get for %s: %w", docID, err)
	}

	var value V
	if err := docSnap.DataTo(&value); err != nil {
		c.logger.Error().Err(err).Str("doc_id", docID).Msg("Failed to map Firestore document data.")
		return zero, fmt.Errorf("firestore DataTo for %s: %w", docID, err)
	}

	c.logger.Debug().Str("doc_id", docID).Msg("Successfully fetched data from Firestore.")
	return value, nil
}

// WriteToCache creates or overwrites the document for key.
func (c *FirestoreCache[K, V]) WriteToCache(ctx context.Context, key K, value V) error {
	docID := HashKey(key)
	_, err := c.client.Collection(c.collectionName).Doc(docID).Set(ctx, value)
	if err != nil {
		c.logger.Error().Err(err).Str("doc_id", docID).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", docID, err)
	}
	c.logger.Debug().Str("doc_id", docID).Msg("Successfully wrote data to Firestore.")
	return nil
}

// Invalidate deletes the document for key. Deleting a missing document succeeds.
func (c *FirestoreCache[K, V]) Invalidate(ctx context.Context, key K) error {
	docID := HashKey(key)
	if _, err := c.client.Collection(c.collectionName).Doc(docID).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete for %s: %w", docID, err)
	}
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (c *FirestoreCache[K, V]) Close() error {
	c.logger.Info().Msg("FirestoreCache does not close the injected Firestore client.")
	return nil
}
