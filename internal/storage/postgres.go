package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/pkg/utils"
)

// PostgresStorage implements Storage using PostgreSQL
type PostgresStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(config *StorageConfig) *PostgresStorage {
	return &PostgresStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes the database connection
func (s *PostgresStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.Ping()
}

// Migrate applies pending migrations
func (s *PostgresStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return applyMigrations(s.db, s.migrations, s.logger)
}

// AppendLogEntry inserts a log entry and sets its source-assigned id
func (s *PostgresStorage) AppendLogEntry(ctx context.Context, entry *models.LogEntry) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO logs (item_id, item_name, action, user_id, user_name, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.ItemID, entry.ItemName, string(entry.Action), entry.UserID, entry.UserName, entry.Timestamp).
		Scan(&entry.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append log entry", err.Error())
	}
	return nil
}

// GetLogEntry fetches a single log entry by id
func (s *PostgresStorage) GetLogEntry(ctx context.Context, id int64) (*models.LogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, item_id, item_name, action, user_id, user_name, timestamp
		FROM logs WHERE id = $1`, id)

	entry, err := scanLogEntry(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Log entry not found", fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get log entry", err.Error())
	}
	return entry, nil
}

// GetLogEntries queries log entries by filter, newest first
func (s *PostgresStorage) GetLogEntries(ctx context.Context, filter models.LogFilter) ([]*models.LogEntry, error) {
	query := `SELECT id, item_id, item_name, action, user_id, user_name, timestamp FROM logs`
	where, args := buildLogFilter(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, rewritePlaceholders(query), args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query log entries", err.Error())
	}
	defer rows.Close()

	return collectLogEntries(rows)
}

// GetLogEntriesAfter fetches entries with id greater than afterID, in id order
func (s *PostgresStorage) GetLogEntriesAfter(ctx context.Context, afterID int64, limit int) ([]*models.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, item_name, action, user_id, user_name, timestamp
		FROM logs WHERE id > $1 ORDER BY id ASC LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query log entries after id", err.Error())
	}
	defer rows.Close()

	return collectLogEntries(rows)
}

// GetLogCount counts log entries matching a filter
func (s *PostgresStorage) GetLogCount(ctx context.Context, filter models.LogFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM logs`
	where, args := buildLogFilter(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, rewritePlaceholders(query), args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count log entries", err.Error())
	}
	return count, nil
}

// GetLatestLogID returns the greatest log id, zero when the table is empty
func (s *PostgresStorage) GetLatestLogID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM logs`).Scan(&id); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get latest log id", err.Error())
	}
	return id.Int64, nil
}

// GetItems returns all catalog items
func (s *PostgresStorage) GetItems(ctx context.Context) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, display_name, category, due_date, image_ref, created_at, updated_at
		FROM items ORDER BY item_id`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query items", err.Error())
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item := &models.Item{}
		if err := rows.Scan(&item.ItemID, &item.DisplayName, &item.Category,
			&item.DueDate, &item.ImageRef, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan item", err.Error())
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem fetches a single catalog item
func (s *PostgresStorage) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	item := &models.Item{}
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, display_name, category, due_date, image_ref, created_at, updated_at
		FROM items WHERE item_id = $1`, itemID).
		Scan(&item.ItemID, &item.DisplayName, &item.Category,
			&item.DueDate, &item.ImageRef, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Item not found", itemID)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get item", err.Error())
	}
	return item, nil
}

// UpsertItem inserts or updates a catalog item
func (s *PostgresStorage) UpsertItem(ctx context.Context, item *models.Item) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (item_id, display_name, category, due_date, image_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (item_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			category = EXCLUDED.category,
			due_date = EXCLUDED.due_date,
			image_ref = EXCLUDED.image_ref,
			updated_at = EXCLUDED.updated_at`,
		item.ItemID, item.DisplayName, item.Category, item.DueDate, item.ImageRef, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert item", err.Error())
	}
	return nil
}

// GetUsers returns all catalog users
func (s *PostgresStorage) GetUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, display_name, created_at, updated_at FROM users ORDER BY user_id`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query users", err.Error())
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.UserID, &user.DisplayName, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan user", err.Error())
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetUser fetches a single catalog user
func (s *PostgresStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, created_at, updated_at FROM users WHERE user_id = $1`, userID).
		Scan(&user.UserID, &user.DisplayName, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "User not found", userID)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get user", err.Error())
	}
	return user, nil
}

// UpsertUser inserts or updates a catalog user
func (s *PostgresStorage) UpsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			updated_at = EXCLUDED.updated_at`,
		user.UserID, user.DisplayName, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert user", err.Error())
	}
	return nil
}

// GetStorageStats returns storage statistics
func (s *PostgresStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&stats.TotalLogEntries); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count logs", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&stats.TotalItems); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count items", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count users", err.Error())
	}

	var oldest, latest sql.NullTime
	var latestID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(timestamp), MAX(timestamp), MAX(id) FROM logs`).Scan(&oldest, &latest, &latestID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get log time range", err.Error())
	}
	if oldest.Valid {
		stats.OldestEntry = &oldest.Time
	}
	if latest.Valid {
		stats.LatestEntry = &latest.Time
	}
	stats.LatestEntryID = latestID.Int64

	return stats, nil
}
