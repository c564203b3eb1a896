package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gearbase/geartrack/internal/models"
)

// Storage defines the interface for log and catalog persistence. The logs
// table is append-only: entries are written once by the backend and only
// ever read by this service.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Log operations
	AppendLogEntry(ctx context.Context, entry *models.LogEntry) error
	GetLogEntry(ctx context.Context, id int64) (*models.LogEntry, error)
	GetLogEntries(ctx context.Context, filter models.LogFilter) ([]*models.LogEntry, error)
	GetLogEntriesAfter(ctx context.Context, afterID int64, limit int) ([]*models.LogEntry, error)
	GetLogCount(ctx context.Context, filter models.LogFilter) (int64, error)
	GetLatestLogID(ctx context.Context) (int64, error)

	// Catalog operations
	GetItems(ctx context.Context) ([]*models.Item, error)
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	UpsertItem(ctx context.Context, item *models.Item) error
	GetUsers(ctx context.Context) ([]*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalLogEntries int64      `json:"total_log_entries"`
	TotalItems      int64      `json:"total_items"`
	TotalUsers      int64      `json:"total_users"`
	OldestEntry     *time.Time `json:"oldest_entry,omitempty"`
	LatestEntry     *time.Time `json:"latest_entry,omitempty"`
	LatestEntryID   int64      `json:"latest_entry_id"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"` // sqlite, postgres
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// NewStorage creates a storage backend for the configured type
func NewStorage(config *StorageConfig) (Storage, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStorage(config), nil
	case "postgres":
		return NewPostgresStorage(config), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
