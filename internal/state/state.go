// Package state keeps scan history, the per-source fetch cache and sent articles in SQLite.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL DEFAULT '',
	run_date    TEXT NOT NULL,
	topic_count INTEGER NOT NULL DEFAULT 0,
	categories  TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_date ON runs(run_date);

CREATE TABLE IF NOT EXISTS run_topics (
	run        INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	rank       INTEGER NOT NULL,
	keyword    TEXT NOT NULL,
	trend_score   REAL NOT NULL DEFAULT 0,
	mention_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run, rank)
);

CREATE TABLE IF NOT EXISTS fetch_cache (
	source   TEXT PRIMARY KEY,
	last_run TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sent_articles (
	url_hash      TEXT NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	sent_date     TEXT NOT NULL,
	cluster_label TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (url_hash, sent_date)
);

CREATE INDEX IF NOT EXISTS idx_sent_date ON sent_articles(sent_date);
`

// Store is the interface the scan pipeline and the read-only surfaces depend on.
type Store interface {
	AddRun(ctx context.Context, run Run) error
	RunsCount(ctx context.Context) (int, error)
	Trending(ctx context.Context, days int) ([]TrendingTopic, error)
	NewTopics(ctx context.Context, days int) ([]NewTopic, error)

	LastFetch(ctx context.Context, source string) (*time.Time, error)
	TouchFetch(ctx context.Context, source string) error

	SentHashes(ctx context.Context, days int) (map[string]struct{}, error)
	MarkSent(ctx context.Context, rows []SentArticle) error

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// DB wraps a sql.DB with state-specific operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	if dir := filepath.Dir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: create dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("state: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: apply schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// WithClock overrides the clock used for run dates and cutoffs.
func (db *DB) WithClock(now func() time.Time) *DB {
	db.now = now
	return db
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) today() string {
	return db.now().Format(time.DateOnly)
}

// cutoff returns the ISO date days before today.
func (db *DB) cutoff(days int) string {
	return db.now().AddDate(0, 0, -days).Format(time.DateOnly)
}
