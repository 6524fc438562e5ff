package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// PublisherConfig configures the notice publisher.
type PublisherConfig struct {
	TopicID            string
	TopicExistsTimeout time.Duration
	PublishTimeout     time.Duration
}

// Publisher sends invalidation notices to a Pub/Sub topic.
type Publisher struct {
	topic          *pubsub.Topic
	publishTimeout time.Duration
	logger         zerolog.Logger
}

// NewPublisher checks that the topic exists before returning a publisher.
func NewPublisher(ctx context.Context, cfg PublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for publisher")
	}
	if cfg.TopicExistsTimeout <= 0 {
		cfg.TopicExistsTimeout = 15 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 20 * time.Second
	}

	topic := client.Topic(cfg.TopicID)
	// Notices are rare; publish each one immediately.
	topic.PublishSettings.CountThreshold = 1

	existsCtx, cancel := context.WithTimeout(ctx, cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	return &Publisher{
		topic:          topic,
		publishTimeout: cfg.PublishTimeout,
		logger:         logger.With().Str("component", "InvalidationPublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Publish validates n, sends it and waits for the server to confirm.
func (p *Publisher) Publish(ctx context.Context, n Notice) (string, error) {
	if _, err := n.Keys(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notice: %w", err)
	}

	getCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()
	id, err := p.topic.Publish(getCtx, &pubsub.Message{Data: payload}).Get(getCtx)
	if err != nil {
		return "", fmt.Errorf("failed to publish notice for %s: %w", n.URL, err)
	}
	p.logger.Debug().Str("msg_id", id).Str("url", n.URL).Msg("Published invalidation notice.")
	return id, nil
}

// Stop flushes pending publishes.
func (p *Publisher) Stop() {
	p.topic.Stop()
}

// NoticePublisher is the part of Publisher the HTTP handler needs.
type NoticePublisher interface {
	Publish(ctx context.Context, n Notice) (string, error)
}

// NewHandler accepts POSTed JSON notices and publishes them.
func NewHandler(publisher NoticePublisher, logger zerolog.Logger) http.Handler {
	log := logger.With().Str("component", "InvalidationHandler").Logger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var n Notice
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&n); err != nil {
			http.Error(w, "malformed notice", http.StatusBadRequest)
			return
		}
		if _, err := n.Keys(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, err := publisher.Publish(r.Context(), n)
		if err != nil {
			log.Error().Err(err).Str("url", n.URL).Msg("Failed to publish invalidation notice.")
			http.Error(w, "publish failed", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"message_id": id})
	})
}
