package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					item_id TEXT NOT NULL,
					item_name TEXT NOT NULL,
					action TEXT NOT NULL CHECK (action IN ('check_in', 'check_out')),
					user_id TEXT NOT NULL,
					user_name TEXT NOT NULL,
					timestamp DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_logs_item_id ON logs(item_id);
				CREATE INDEX IF NOT EXISTS idx_logs_user_id ON logs(user_id);
				CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
			`,
		},
		{
			Version:     "002",
			Description: "Create items table",
			SQL: `
				CREATE TABLE IF NOT EXISTS items (
					item_id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					due_date DATETIME,
					image_ref TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_items_category ON items(category);
				CREATE INDEX IF NOT EXISTS idx_items_due_date ON items(due_date);
			`,
		},
		{
			Version:     "003",
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					user_id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS logs (
					id BIGSERIAL PRIMARY KEY,
					item_id TEXT NOT NULL,
					item_name TEXT NOT NULL,
					action TEXT NOT NULL CHECK (action IN ('check_in', 'check_out')),
					user_id TEXT NOT NULL,
					user_name TEXT NOT NULL,
					timestamp TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_logs_item_id ON logs(item_id);
				CREATE INDEX IF NOT EXISTS idx_logs_user_id ON logs(user_id);
				CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
			`,
		},
		{
			Version:     "002",
			Description: "Create items table",
			SQL: `
				CREATE TABLE IF NOT EXISTS items (
					item_id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					due_date TIMESTAMPTZ,
					image_ref TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_items_category ON items(category);
				CREATE INDEX IF NOT EXISTS idx_items_due_date ON items(due_date);
			`,
		},
		{
			Version:     "003",
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					user_id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);
			`,
		},
	}
}
