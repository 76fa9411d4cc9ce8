package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/newsletter-scanner/internal/models"
)

// LastFetch returns when source was last fetched successfully, or nil on the first run.
func (db *DB) LastFetch(ctx context.Context, source string) (*time.Time, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT last_run FROM fetch_cache WHERE source = ?`, source).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: last fetch: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, nil // unreadable timestamp behaves like a first run
	}
	return &t, nil
}

// TouchFetch records now as the last successful fetch of source.
func (db *DB) TouchFetch(ctx context.Context, source string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO fetch_cache (source, last_run) VALUES (?, ?)
		ON CONFLICT(source) DO UPDATE SET last_run = excluded.last_run
	`, source, db.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("state: touch fetch: %w", err)
	}
	return nil
}

// FilterSince drops items published at or before since. Undated items are kept,
// and a nil since keeps everything.
func FilterSince(items []models.Item, since *time.Time) []models.Item {
	if since == nil {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if it.Published == nil || it.Published.After(*since) {
			out = append(out, it)
		}
	}
	return out
}
