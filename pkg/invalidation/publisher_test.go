package invalidation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/illmade-knight/go-remoteimage/pkg/invalidation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNoticePublisher struct {
	notices     []invalidation.Notice
	PublishFunc func(n invalidation.Notice) (string, error)
}

func (m *mockNoticePublisher) Publish(_ context.Context, n invalidation.Notice) (string, error) {
	m.notices = append(m.notices, n)
	if m.PublishFunc != nil {
		return m.PublishFunc(n)
	}
	return "msg-1", nil
}

func TestPublisher(t *testing.T) {
	const projectID = "test-project"

	t.Run("Missing topic is rejected", func(t *testing.T) {
		client, _, _ := setupListenerTest(t, projectID, "pub-topic-a", "pub-sub-a")
		_, err := invalidation.NewPublisher(context.Background(), invalidation.PublisherConfig{TopicID: "nope"}, client, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("Published notice is invalidated by a listener", func(t *testing.T) {
		// Arrange
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		t.Cleanup(cancel)
		client, _, _ := setupListenerTest(t, projectID, "pub-topic-b", "pub-sub-b")
		publisher, err := invalidation.NewPublisher(ctx, invalidation.PublisherConfig{TopicID: "pub-topic-b"}, client, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(publisher.Stop)

		target := &recordingInvalidator{}
		listener, err := invalidation.NewListener(invalidation.ListenerConfig{SubscriptionID: "pub-sub-b"}, client, target, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, listener.Start(ctx))
		t.Cleanup(func() { _ = listener.Stop() })

		// Act
		id, err := publisher.Publish(ctx, invalidation.Notice{URL: "https://example.com/c.png", Identities: []string{"thumb_w10_h10_v1"}})

		// Assert
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		require.Eventually(t, func() bool { return len(target.invalidated()) == 2 }, 5*time.Second, 20*time.Millisecond)
		assert.ElementsMatch(t, []string{
			"https://example.com/c.png",
			"https://example.com/c.png/thumb_w10_h10_v1",
		}, target.invalidated())
	})

	t.Run("Notice without url is not published", func(t *testing.T) {
		client, _, _ := setupListenerTest(t, projectID, "pub-topic-c", "pub-sub-c")
		publisher, err := invalidation.NewPublisher(context.Background(), invalidation.PublisherConfig{TopicID: "pub-topic-c"}, client, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(publisher.Stop)

		_, err = publisher.Publish(context.Background(), invalidation.Notice{})
		assert.Error(t, err)
	})
}

func TestHandler(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		body       string
		publishErr error
		wantStatus int
		wantCalls  int
	}{
		{name: "accepted", method: http.MethodPost, body: `{"url":"https://example.com/a.jpg"}`, wantStatus: http.StatusAccepted, wantCalls: 1},
		{name: "wrong method", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
		{name: "malformed body", method: http.MethodPost, body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing url", method: http.MethodPost, body: `{"identities":["x"]}`, wantStatus: http.StatusBadRequest},
		{name: "publish failure", method: http.MethodPost, body: `{"url":"https://example.com/a.jpg"}`, publishErr: errors.New("down"), wantStatus: http.StatusBadGateway, wantCalls: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			pub := &mockNoticePublisher{}
			if tc.publishErr != nil {
				pub.PublishFunc = func(invalidation.Notice) (string, error) { return "", tc.publishErr }
			}
			handler := invalidation.NewHandler(pub, zerolog.Nop())
			req := httptest.NewRequest(tc.method, "/invalidate", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			// Act
			handler.ServeHTTP(rec, req)

			// Assert
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Len(t, pub.notices, tc.wantCalls)
			if tc.wantStatus == http.StatusAccepted {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "msg-1", body["message_id"])
			}
		})
	}
}
