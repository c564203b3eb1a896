package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/gearbase/geartrack/internal/models"
	"github.com/gearbase/geartrack/pkg/utils"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes the database connection
func (s *SQLiteStorage) Connect() error {
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// WAL lets the dashboard read while the backend appends
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.Ping()
}

// Migrate applies pending migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return applyMigrations(s.db, s.migrations, s.logger)
}

// AppendLogEntry inserts a log entry and sets its source-assigned id
func (s *SQLiteStorage) AppendLogEntry(ctx context.Context, entry *models.LogEntry) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (item_id, item_name, action, user_id, user_name, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ItemID, entry.ItemName, string(entry.Action), entry.UserID, entry.UserName, entry.Timestamp)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append log entry", err.Error())
	}

	id, err := result.LastInsertId()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read inserted log id", err.Error())
	}
	entry.ID = id

	return nil
}

// GetLogEntry fetches a single log entry by id
func (s *SQLiteStorage) GetLogEntry(ctx context.Context, id int64) (*models.LogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, item_id, item_name, action, user_id, user_name, timestamp
		FROM logs WHERE id = ?`, id)

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
func (s *SQLiteStorage) GetLogEntries(ctx context.Context, filter models.LogFilter) ([]*models.LogEntry, error) {
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

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query log entries", err.Error())
	}
	defer rows.Close()

	return collectLogEntries(rows)
}

// GetLogEntriesAfter fetches entries with id greater than afterID, in id
// order, up to limit. This is the feed poller's cursor query.
func (s *SQLiteStorage) GetLogEntriesAfter(ctx context.Context, afterID int64, limit int) ([]*models.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, item_name, action, user_id, user_name, timestamp
		FROM logs WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query log entries after id", err.Error())
	}
	defer rows.Close()

	return collectLogEntries(rows)
}

// GetLogCount counts log entries matching a filter
func (s *SQLiteStorage) GetLogCount(ctx context.Context, filter models.LogFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM logs`
	where, args := buildLogFilter(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count log entries", err.Error())
	}
	return count, nil
}

// GetLatestLogID returns the greatest log id, zero when the table is empty
func (s *SQLiteStorage) GetLatestLogID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM logs`).Scan(&id); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get latest log id", err.Error())
	}
	return id.Int64, nil
}

// GetItems returns all catalog items
func (s *SQLiteStorage) GetItems(ctx context.Context) ([]*models.Item, error) {
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
func (s *SQLiteStorage) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	item := &models.Item{}
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, display_name, category, due_date, image_ref, created_at, updated_at
		FROM items WHERE item_id = ?`, itemID).
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
func (s *SQLiteStorage) UpsertItem(ctx context.Context, item *models.Item) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (item_id, display_name, category, due_date, image_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			display_name = excluded.display_name,
			category = excluded.category,
			due_date = excluded.due_date,
			image_ref = excluded.image_ref,
			updated_at = excluded.updated_at`,
		item.ItemID, item.DisplayName, item.Category, item.DueDate, item.ImageRef, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert item", err.Error())
	}
	return nil
}

// GetUsers returns all catalog users
func (s *SQLiteStorage) GetUsers(ctx context.Context) ([]*models.User, error) {
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
func (s *SQLiteStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, created_at, updated_at FROM users WHERE user_id = ?`, userID).
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
func (s *SQLiteStorage) UpsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`,
		user.UserID, user.DisplayName, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert user", err.Error())
	}
	return nil
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
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

// applyMigrations runs migrations not yet recorded in schema_migrations
func applyMigrations(db *sql.DB, migrations []*Migration, logger *logrus.Logger) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range migrations {
		var exists int
		err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, migration.Version).Scan(&exists)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check migration status", err.Error())
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to apply migration %s", migration.Version), err.Error())
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)`,
			migration.Version, migration.Description, time.Now().UTC()); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to record migration %s", migration.Version), err.Error())
		}

		logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applied migration")
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanLogEntry scans one log row
func scanLogEntry(row rowScanner) (*models.LogEntry, error) {
	entry := &models.LogEntry{}
	var action string
	if err := row.Scan(&entry.ID, &entry.ItemID, &entry.ItemName, &action,
		&entry.UserID, &entry.UserName, &entry.Timestamp); err != nil {
		return nil, err
	}
	entry.Action = models.Action(action)
	return entry, nil
}

// collectLogEntries drains rows into a slice
func collectLogEntries(rows *sql.Rows) ([]*models.LogEntry, error) {
	var entries []*models.LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan log entry", err.Error())
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate log entries", err.Error())
	}
	return entries, nil
}

// buildLogFilter builds a WHERE clause for a log filter using "?"
// placeholders. The postgres backend rewrites them to $n afterwards.
func buildLogFilter(filter models.LogFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.ItemID != nil {
		clauses = append(clauses, "item_id = ?")
		args = append(args, *filter.ItemID)
	}
	if filter.UserID != nil {
		clauses = append(clauses, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Action != nil {
		clauses = append(clauses, "action = ?")
		args = append(args, string(*filter.Action))
	}
	if filter.FromTime != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, *filter.FromTime)
	}
	if filter.ToTime != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, *filter.ToTime)
	}
	if filter.AfterID != nil {
		clauses = append(clauses, "id > ?")
		args = append(args, *filter.AfterID)
	}

	return strings.Join(clauses, " AND "), args
}

// rewritePlaceholders converts "?" placeholders to postgres $n form
func rewritePlaceholders(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
