// internal/database/schema.go
// Database schema and migration logic for the storywatch SQLite store
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const Schema = `
-- Articles table, one row per URL
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    url TEXT UNIQUE NOT NULL,
    title TEXT,
    summary TEXT,
    content TEXT,
    source_name TEXT,
    published_at TIMESTAMP,
    image_url TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Tracked stories table
CREATE TABLE IF NOT EXISTS tracked_stories (
    id TEXT PRIMARY KEY,
    owner_user_id TEXT NOT NULL,
    keyword TEXT NOT NULL,
    source_article_id TEXT,
    status TEXT NOT NULL DEFAULT 'ACTIVE' CHECK(status IN ('ACTIVE', 'DELETED')),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Story to article links (junction table)
CREATE TABLE IF NOT EXISTS story_article_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    story_id TEXT NOT NULL,
    article_id TEXT NOT NULL,
    linked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (story_id) REFERENCES tracked_stories(id) ON DELETE CASCADE,
    FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE,
    UNIQUE(story_id, article_id)
);`

const Indexes = `
-- Article indexes
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC);

-- Story indexes
CREATE INDEX IF NOT EXISTS idx_stories_owner_status ON tracked_stories(owner_user_id, status);
CREATE INDEX IF NOT EXISTS idx_stories_status_created ON tracked_stories(status, created_at);

-- Link indexes
CREATE INDEX IF NOT EXISTS idx_links_story_linked ON story_article_links(story_id, linked_at DESC);`

// DB represents our database connection and operations
type DB struct {
	*sql.DB
}

// Configuration for the database
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns the default database configuration
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewDB opens the database at dbPath, creating its directory and schema
// when missing.
func NewDB(dbPath string, cfg Config) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON&_synchronous=NORMAL",
		dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}

	return &DB{db}, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
        PRAGMA journal_mode=WAL;
        PRAGMA synchronous=NORMAL;
        PRAGMA cache_size=10000;
        PRAGMA temp_store=MEMORY;
    `); err != nil {
		return fmt.Errorf("error setting pragmas: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing schema: %w", err)
	}

	// Columns added after the first release
	columnUpdates := []struct {
		table, column, definition string
	}{
		{"articles", "summary", "TEXT"},
		{"articles", "image_url", "TEXT"},
		{"tracked_stories", "source_article_id", "TEXT"},
	}

	for _, col := range columnUpdates {
		exists, err := columnExists(ctx, db, col.table, col.column)
		if err != nil {
			return fmt.Errorf("error checking column %s.%s: %w", col.table, col.column, err)
		}
		if !exists {
			_, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				col.table, col.column, col.definition))
			if err != nil {
				return fmt.Errorf("error adding column %s.%s: %w", col.table, col.column, err)
			}
		}
	}

	// Create indexes after tables are committed
	if _, err := db.ExecContext(ctx, Indexes); err != nil {
		return fmt.Errorf("error creating indexes: %w", err)
	}

	return nil
}

func columnExists(ctx context.Context, db *sql.DB, tableName, columnName string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s);", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int

		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}
