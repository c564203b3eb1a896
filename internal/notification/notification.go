package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gearbase/geartrack/internal/metrics"
	"github.com/gearbase/geartrack/pkg/utils"
)

// Notification represents an alert to be delivered to configured channels
type Notification struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	ItemID    string                 `json:"item_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotification creates a notification with a fresh id
func NewNotification(title, message string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// Channel delivers notifications over one transport
type Channel interface {
	Name() string
	Send(ctx context.Context, notification *Notification) error
}

// ManagerStats provides notification manager statistics
type ManagerStats struct {
	Sent     uint64 `json:"sent"`
	Failed   uint64 `json:"failed"`
	Channels int    `json:"channels"`
}

// Manager fans a notification out to every configured channel. Delivery is
// best effort: a failing channel is logged and counted, never fatal.
type Manager struct {
	channels []Channel
	logger   *logrus.Logger
	metrics  *metrics.PrometheusMetrics

	mu     sync.Mutex
	sent   uint64
	failed uint64
}

// NewManager creates a notification manager
func NewManager(channels ...Channel) *Manager {
	return &Manager{
		channels: channels,
		logger:   utils.GetLogger(),
		metrics:  metrics.GetMetrics(),
	}
}

// Notify sends the notification through every channel
func (m *Manager) Notify(ctx context.Context, notification *Notification) {
	for _, channel := range m.channels {
		if err := channel.Send(ctx, notification); err != nil {
			m.mu.Lock()
			m.failed++
			m.mu.Unlock()
			m.metrics.NotificationsFailedTotal.Inc()
			m.logger.WithFields(logrus.Fields{
				"channel":         channel.Name(),
				"notification_id": notification.ID,
			}).WithError(err).Warn("Notification delivery failed")
			continue
		}
		m.mu.Lock()
		m.sent++
		m.mu.Unlock()
		m.metrics.NotificationsSentTotal.Inc()
	}
}

// Stats returns delivery counters
func (m *Manager) Stats() *ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ManagerStats{
		Sent:     m.sent,
		Failed:   m.failed,
		Channels: len(m.channels),
	}
}
