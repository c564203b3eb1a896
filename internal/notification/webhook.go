package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gearbase/geartrack/pkg/utils"
)

// WebhookConfig holds webhook channel configuration
type WebhookConfig struct {
	URL           string        `json:"url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// WebhookChannel POSTs notifications as JSON to a configured URL
type WebhookChannel struct {
	config *WebhookConfig
	client *http.Client
	logger *logrus.Logger
}

// NewWebhookChannel creates a webhook notification channel
func NewWebhookChannel(config *WebhookConfig) *WebhookChannel {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: utils.GetLogger(),
	}
}

// Name returns the channel name
func (c *WebhookChannel) Name() string { return "webhook" }

// Send delivers the notification, retrying on failure
func (c *WebhookChannel) Send(ctx context.Context, notification *Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeNotification, "Failed to marshal notification", err.Error())
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.post(ctx, payload)
		if lastErr == nil {
			return nil
		}

		c.logger.WithFields(logrus.Fields{
			"notification_id": notification.ID,
			"attempt":         attempt,
		}).WithError(lastErr).Warn("Webhook delivery attempt failed")
	}

	return utils.NewAppError(utils.ErrCodeNotification,
		fmt.Sprintf("Webhook failed after %d attempts", attempts), lastErr.Error())
}

func (c *WebhookChannel) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
