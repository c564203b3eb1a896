package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct {
	name string
	sent int
	err  error
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(context.Context, *Notification) error {
	s.sent++
	return s.err
}

func TestNewNotificationAssignsID(t *testing.T) {
	first := NewNotification("Overdue", "Tripod is overdue")
	second := NewNotification("Overdue", "Tripod is overdue")

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestManagerFansOutToAllChannels(t *testing.T) {
	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b"}
	m := NewManager(a, b)

	m.Notify(context.Background(), NewNotification("Overdue", "msg"))

	assert.Equal(t, 1, a.sent)
	assert.Equal(t, 1, b.sent)
	assert.Equal(t, uint64(2), m.Stats().Sent)
}

func TestManagerIsolatesFailingChannel(t *testing.T) {
	bad := &stubChannel{name: "bad", err: errors.New("boom")}
	good := &stubChannel{name: "good"}
	m := NewManager(bad, good)

	m.Notify(context.Background(), NewNotification("Overdue", "msg"))

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, 1, good.sent, "failure in one channel never blocks another")
}

func TestWebhookChannelPostsJSON(t *testing.T) {
	var received Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWebhookChannel(&WebhookConfig{URL: server.URL})
	notification := NewNotification("Overdue gear", "Tripod is overdue")
	notification.ItemID = "cam-01"

	require.NoError(t, channel.Send(context.Background(), notification))
	assert.Equal(t, notification.ID, received.ID)
	assert.Equal(t, "cam-01", received.ItemID)
}

func TestWebhookChannelRetriesUntilSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWebhookChannel(&WebhookConfig{
		URL:           server.URL,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})

	require.NoError(t, channel.Send(context.Background(), NewNotification("t", "m")))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookChannelFailsAfterRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	channel := NewWebhookChannel(&WebhookConfig{
		URL:           server.URL,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	})

	err := channel.Send(context.Background(), NewNotification("t", "m"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "after 2 attempts")
}

func TestLogChannelNeverFails(t *testing.T) {
	channel := NewLogChannel()
	assert.NoError(t, channel.Send(context.Background(), NewNotification("t", "m")))
	assert.Equal(t, "log", channel.Name())
}
