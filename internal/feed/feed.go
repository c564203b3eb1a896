package feed

import (
	"context"
	"time"

	"github.com/gearbase/geartrack/internal/models"
)

// Handler receives one live log entry. Handlers are invoked sequentially
// from a single dispatch goroutine, so a handler that applies entries to a
// projector satisfies the single-writer rule without extra locking.
type Handler func(entry *models.LogEntry)

// Feed supplies log entries: a one-shot historical batch plus live entries
// pushed to subscribers as the source appends them. Delivery is at least
// once; duplicates and reordering are the consumer's problem.
type Feed interface {
	// Lifecycle management
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool

	// Entry delivery
	FetchHistorical(ctx context.Context) ([]*models.LogEntry, error)
	Subscribe(handler Handler) (unsubscribe func())

	// Statistics
	Stats() *FeedStats
}

// FeedStats provides feed diagnostics
type FeedStats struct {
	IsRunning        bool      `json:"is_running"`
	Cursor           int64     `json:"cursor"`
	PollCount        uint64    `json:"poll_count"`
	ErrorCount       uint64    `json:"error_count"`
	EntriesDelivered uint64    `json:"entries_delivered"`
	LastPollTime     time.Time `json:"last_poll_time"`
	Subscribers      int       `json:"subscribers"`
}

// FeedConfig holds feed configuration
type FeedConfig struct {
	PollInterval time.Duration `json:"poll_interval"`
	BatchSize    int           `json:"batch_size"`
}
