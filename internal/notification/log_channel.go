package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/gearbase/geartrack/pkg/utils"
)

// LogChannel writes notifications to the application log
type LogChannel struct {
	logger *logrus.Logger
}

// NewLogChannel creates a log notification channel
func NewLogChannel() *LogChannel {
	return &LogChannel{logger: utils.GetLogger()}
}

// Name returns the channel name
func (c *LogChannel) Name() string { return "log" }

// Send logs the notification
func (c *LogChannel) Send(ctx context.Context, notification *Notification) error {
	c.logger.WithFields(logrus.Fields{
		"notification_id": notification.ID,
		"title":           notification.Title,
		"item_id":         notification.ItemID,
		"user_id":         notification.UserID,
	}).Info(notification.Message)
	return nil
}
