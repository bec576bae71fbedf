package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rpggio/dsheet/internal/repository"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB

	// relax guards the item number index while any shift has it dropped.
	relaxMu   sync.Mutex
	relaxRefs int
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and a :memory: database
	// exists per connection.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{DB: db}, nil
}

const itemNumberIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_items_project_number ON items(project_key, number)`

// RunMigrations creates the schema if it does not exist yet
func (db *DB) RunMigrations() error {
	migration := `
-- Projects table
CREATE TABLE IF NOT EXISTS projects (
    key TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Items table; number is unique per project through idx_items_project_number
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    project_key TEXT NOT NULL,
    number INTEGER NOT NULL CHECK(number >= 1),
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    detail TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    modified_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (project_key) REFERENCES projects(key)
);
` + itemNumberIndex + `;

-- Item images in display order
CREATE TABLE IF NOT EXISTS item_images (
    item_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    ref TEXT NOT NULL,
    PRIMARY KEY (item_id, position),
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
);

-- Activity log
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_key TEXT NOT NULL,
    item_id TEXT,
    activity_type TEXT NOT NULL,
    summary TEXT NOT NULL,
    details TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_project_activity ON activity_log(project_key);
CREATE INDEX IF NOT EXISTS idx_item_activity ON activity_log(item_id);
CREATE INDEX IF NOT EXISTS idx_created_at ON activity_log(created_at);

-- Bearer sessions
CREATE TABLE IF NOT EXISTS access_tokens (
    token_hash TEXT PRIMARY KEY,
    subject TEXT NOT NULL,
    role TEXT NOT NULL CHECK(role IN ('viewer', 'editor', 'admin')),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at INTEGER NOT NULL -- unix seconds
);
CREATE INDEX IF NOT EXISTS idx_token_expiry ON access_tokens(expires_at);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// relaxNumberIndex drops the item number index until the returned restore
// runs. Overlapping relaxations share one drop; the last restore rebuilds.
func (db *DB) relaxNumberIndex(ctx context.Context) (func(context.Context) error, error) {
	db.relaxMu.Lock()
	defer db.relaxMu.Unlock()

	if db.relaxRefs == 0 {
		if _, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS idx_items_project_number`); err != nil {
			return nil, fmt.Errorf("failed to drop number index: %w", err)
		}
	}
	db.relaxRefs++

	// restore may be retried; only the first call releases the reference.
	var once sync.Once
	return func(ctx context.Context) error {
		db.relaxMu.Lock()
		defer db.relaxMu.Unlock()

		once.Do(func() { db.relaxRefs-- })
		if db.relaxRefs > 0 {
			return nil
		}
		if _, err := db.ExecContext(ctx, itemNumberIndex); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("failed to rebuild number index: %w: %w", repository.ErrConflict, err)
			}
			return fmt.Errorf("failed to rebuild number index: %w", err)
		}
		return nil
	}, nil
}
