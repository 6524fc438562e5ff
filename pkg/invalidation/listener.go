// Package invalidation removes cached images when their source changes.
// Publishers send a Notice to a Pub/Sub topic; the Listener deletes the bare
// URL key and one key per listed processor identity.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-remoteimage/pkg/imagecache"
	"github.com/rs/zerolog"
)

// ListenerConfig configures the subscription consumer.
type ListenerConfig struct {
	Enabled                bool   `yaml:"enabled"`
	ProjectID              string `yaml:"project_id"`
	SubscriptionID         string `yaml:"subscription_id"`
	TopicID                string `yaml:"topic_id"`         // Optional, enables the publish endpoint
	CredentialsFile        string `yaml:"credentials_file"` // Optional
	MaxOutstandingMessages int    `yaml:"max_outstanding_messages"`
	NumGoroutines          int    `yaml:"num_goroutines"`
}

// KeyInvalidator deletes one cache key.
type KeyInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Notice is the JSON payload of an invalidation message.
type Notice struct {
	URL        string   `json:"url"`
	Identities []string `json:"identities,omitempty"`
}

// Keys returns the cache keys a notice covers.
func (n Notice) Keys() ([]string, error) {
	if n.URL == "" {
		return nil, errors.New("notice has no url")
	}
	u, err := url.Parse(n.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", n.URL, err)
	}
	keys := []string{imagecache.Key(u, nil)}
	for _, id := range n.Identities {
		if id != "" {
			keys = append(keys, imagecache.KeyForIdentity(u, id))
		}
	}
	return keys, nil
}

// Listener consumes invalidation notices from a Pub/Sub subscription.
type Listener struct {
	subscription       *pubsub.Subscription
	target             KeyInvalidator
	logger             zerolog.Logger
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// NewListener checks that the subscription exists and prepares to receive.
func NewListener(cfg ListenerConfig, client *pubsub.Client, target KeyInvalidator, logger zerolog.Logger) (*Listener, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	if target == nil {
		return nil, errors.New("invalidation target cannot be nil")
	}
	sub := client.Subscription(cfg.SubscriptionID)

	subContext, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	e, err := sub.Exists(subContext)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !e {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	if cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}

	return &Listener{
		subscription: sub,
		target:       target,
		logger:       logger.With().Str("component", "InvalidationListener").Str("subscription_id", cfg.SubscriptionID).Logger(),
		doneChan:     make(chan struct{}),
	}, nil
}

// Start begins receiving in the background.
func (l *Listener) Start(ctx context.Context) error {
	l.logger.Info().Msg("Starting invalidation listener...")
	receiveCtx, cancel := context.WithCancel(ctx)
	l.cancelSubscription = cancel
	go func() {
		defer close(l.doneChan)
		defer l.logger.Info().Msg("Invalidation listener stopped.")

		err := l.subscription.Receive(receiveCtx, l.handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
	return nil
}

func (l *Listener) handle(ctx context.Context, msg *pubsub.Message) {
	var notice Notice
	if err := json.Unmarshal(msg.Data, &notice); err != nil {
		l.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Malformed invalidation notice, Acking.")
		msg.Ack()
		return
	}
	keys, err := notice.Keys()
	if err != nil {
		l.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Unusable invalidation notice, Acking.")
		msg.Ack()
		return
	}

	for _, key := range keys {
		if err := l.target.Invalidate(ctx, key); err != nil {
			l.logger.Error().Err(err).Str("msg_id", msg.ID).Str("key", key).Msg("Failed to invalidate key, Nacking.")
			msg.Nack()
			return
		}
	}
	l.logger.Debug().Str("msg_id", msg.ID).Int("keys", len(keys)).Msg("Invalidated cache keys.")
	msg.Ack()
}

// Stop cancels the subscription and waits up to 30 seconds for it to end.
func (l *Listener) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		l.logger.Info().Msg("Stopping invalidation listener...")
		if l.cancelSubscription == nil {
			close(l.doneChan)
			return
		}
		l.cancelSubscription()
		select {
		case <-l.doneChan:
		case <-time.After(30 * time.Second):
			err = errors.New("timeout waiting for invalidation listener to stop")
			l.logger.Error().Err(err).Msg("Listener did not stop in time.")
		}
	})
	return err
}

// Done is closed once the listener has stopped.
func (l *Listener) Done() <-chan struct{} { return l.doneChan }
