package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/mediaforge/media-archiver/internal/port"
)

// Store implements port.ProgressStore and port.ManifestStore on a
// single SQLite database kept under the storage root.
type Store struct {
	db *sql.DB
}

var (
	_ port.ProgressStore = (*Store)(nil)
	_ port.ManifestStore = (*Store)(nil)
)

// Open opens the SQLite database, applying WAL mode and running
// migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema.
func (s *Store) migrate() error {
	migrations := []string{
		// Singleton progress row holding the page cursor and the
		// cumulative committed byte count.
		`CREATE TABLE IF NOT EXISTS progress (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_page INTEGER NOT NULL DEFAULT 0,
			cumulative_bytes INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS committed_items (
			item_id TEXT PRIMARY KEY,
			page INTEGER NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			committed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS failed_items (
			item_id TEXT PRIMARY KEY,
			page INTEGER NOT NULL,
			reason TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			failed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS batches (
			batch_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			pages TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS batch_items (
			batch_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			item_id TEXT NOT NULL,
			page INTEGER NOT NULL,
			target_dir TEXT NOT NULL DEFAULT '',
			primary_url TEXT NOT NULL,
			cover_url TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			last_reason TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (batch_id, item_id),
			FOREIGN KEY (batch_id) REFERENCES batches(batch_id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_batch_items_status ON batch_items(batch_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_items_position ON batch_items(batch_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_committed_page ON committed_items(page)`,
		`CREATE INDEX IF NOT EXISTS idx_failed_page ON failed_items(page)`,

		`INSERT OR IGNORE INTO progress (id) VALUES (1)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}
