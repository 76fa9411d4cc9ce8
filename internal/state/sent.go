package state

import (
	"context"
	"fmt"
)

// SentArticle is one article included in a delivered newsletter.
type SentArticle struct {
	URLHash      string `json:"url_hash"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Source       string `json:"source"`
	SentDate     string `json:"sent_date"`
	ClusterLabel string `json:"cluster_label"`
}

// SentHashes returns the url hashes of articles sent in the last days.
func (db *DB) SentHashes(ctx context.Context, days int) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT url_hash FROM sent_articles WHERE sent_date >= ?`, db.cutoff(days))
	if err != nil {
		return nil, fmt.Errorf("state: sent hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out[h] = struct{}{}
	}
	return out, rows.Err()
}

// MarkSent stores sent articles. Rows without a date are stamped with today;
// re-sending the same url on the same day is a no-op.
func (db *DB) MarkSent(ctx context.Context, rows []SentArticle) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO sent_articles (url_hash, url, title, source, sent_date, cluster_label)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("state: prepare sent insert: %w", err)
	}
	defer stmt.Close()

	today := db.today()
	for _, r := range rows {
		date := r.SentDate
		if date == "" {
			date = today
		}
		if _, err := stmt.ExecContext(ctx, r.URLHash, r.URL, r.Title, r.Source, date, r.ClusterLabel); err != nil {
			return fmt.Errorf("state: insert sent: %w", err)
		}
	}
	return tx.Commit()
}

// SentCount returns how many articles were sent on date (YYYY-MM-DD).
func (db *DB) SentCount(ctx context.Context, date string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sent_articles WHERE sent_date = ?`, date).Scan(&n); err != nil {
		return 0, fmt.Errorf("state: sent count: %w", err)
	}
	return n, nil
}
