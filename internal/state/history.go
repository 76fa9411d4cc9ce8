package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/starford/newsletter-scanner/internal/models"
)

// topTopicsPerRun is how many topics of each run are kept for trend comparison.
const topTopicsPerRun = 10

// Run is one history record.
type Run struct {
	RunID      string         `json:"run_id,omitempty"`
	Date       string         `json:"date"`
	TopicCount int            `json:"topic_count"`
	TopTopics  []RunTopic     `json:"top_topics"`
	Categories map[string]int `json:"categories"`
}

// RunTopic is a topic snapshot inside a run.
type RunTopic struct {
	Keyword      string  `json:"keyword"`
	TrendScore   float64 `json:"trend_score"`
	MentionCount int     `json:"mention_count"`
}

// TrendingTopic is a keyword whose mean score rose between the two halves of a window.
type TrendingTopic struct {
	Keyword       string  `json:"keyword"`
	CurrentScore  float64 `json:"current_score"`
	PreviousScore float64 `json:"previous_score"`
	Change        float64 `json:"change"`
	Direction     string  `json:"direction"`
}

// NewTopic is a keyword that first appeared inside the window.
type NewTopic struct {
	Keyword    string  `json:"keyword"`
	FirstSeen  string  `json:"first_seen"`
	TrendScore float64 `json:"trend_score"`
}

// RunFromTopics summarises sorted topics into a history record. An empty date means today.
func RunFromTopics(runID, date string, topics []models.Topic) Run {
	cats := make(map[string]int)
	for _, t := range topics {
		for _, c := range t.Categories {
			cats[c.Category]++
		}
	}
	n := min(len(topics), topTopicsPerRun)
	top := make([]RunTopic, 0, n)
	for _, t := range topics[:n] {
		top = append(top, RunTopic{Keyword: t.Keyword, TrendScore: t.TrendScore, MentionCount: t.MentionCount})
	}
	return Run{RunID: runID, Date: date, TopicCount: len(topics), TopTopics: top, Categories: cats}
}

// AddRun appends a run and its top topics within a transaction.
func (db *DB) AddRun(ctx context.Context, run Run) error {
	if run.Date == "" {
		run.Date = db.today()
	}
	catsJSON, err := json.Marshal(run.Categories)
	if err != nil {
		return fmt.Errorf("state: encode categories: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, run_date, topic_count, categories, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.RunID, run.Date, run.TopicCount, string(catsJSON), db.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("state: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("state: run id: %w", err)
	}

	if len(run.TopTopics) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_topics (run, rank, keyword, trend_score, mention_count)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("state: prepare topic insert: %w", err)
		}
		defer stmt.Close()
		for i, t := range run.TopTopics {
			if _, err := stmt.ExecContext(ctx, id, i, t.Keyword, t.TrendScore, t.MentionCount); err != nil {
				return fmt.Errorf("state: insert topic: %w", err)
			}
		}
	}

	return tx.Commit()
}

// RunsCount returns the number of recorded runs.
func (db *DB) RunsCount(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("state: count runs: %w", err)
	}
	return n, nil
}

// runs loads runs matching the date predicate in insertion order, with their topics.
func (db *DB) runs(ctx context.Context, where string, arg string) ([]Run, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT r.id, r.run_id, r.run_date, r.topic_count, t.keyword, t.trend_score, t.mention_count
		FROM runs r
		LEFT JOIN run_topics t ON t.run = r.id
		WHERE r.run_date `+where+` ?
		ORDER BY r.id, t.rank
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("state: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	lastID := int64(-1)
	for rows.Next() {
		var (
			id       int64
			r        Run
			keyword  *string
			score    *float64
			mentions *int
		)
		if err := rows.Scan(&id, &r.RunID, &r.Date, &r.TopicCount, &keyword, &score, &mentions); err != nil {
			return nil, err
		}
		if id != lastID {
			out = append(out, r)
			lastID = id
		}
		if keyword != nil {
			cur := &out[len(out)-1]
			cur.TopTopics = append(cur.TopTopics, RunTopic{Keyword: *keyword, TrendScore: *score, MentionCount: *mentions})
		}
	}
	return out, rows.Err()
}

// Trending splits the runs of the last days into an older and a newer half and
// returns keywords whose mean trend score grew, largest change first.
// Fewer than two runs in the window yields nothing.
func (db *DB) Trending(ctx context.Context, days int) ([]TrendingTopic, error) {
	recent, err := db.runs(ctx, ">=", db.cutoff(days))
	if err != nil {
		return nil, err
	}
	if len(recent) < 2 {
		return nil, nil
	}

	mid := len(recent) / 2
	older := meanScores(recent[:mid])
	newer := meanScores(recent[mid:])

	var out []TrendingTopic
	for _, kw := range newer.order {
		cur := newer.mean[kw]
		prev := older.mean[kw]
		if cur > prev {
			out = append(out, TrendingTopic{
				Keyword:       kw,
				CurrentScore:  cur,
				PreviousScore: prev,
				Change:        cur - prev,
				Direction:     "rising",
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Change > out[j].Change })
	return out, nil
}

type keywordMeans struct {
	order []string
	mean  map[string]float64
}

func meanScores(runs []Run) keywordMeans {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	var order []string
	for _, r := range runs {
		for _, t := range r.TopTopics {
			if _, ok := counts[t.Keyword]; !ok {
				order = append(order, t.Keyword)
			}
			sums[t.Keyword] += t.TrendScore
			counts[t.Keyword]++
		}
	}
	mean := make(map[string]float64, len(sums))
	for kw, s := range sums {
		mean[kw] = s / float64(counts[kw])
	}
	return keywordMeans{order: order, mean: mean}
}

// NewTopics returns keywords seen in the last days that never appeared in older runs,
// in first-seen order.
func (db *DB) NewTopics(ctx context.Context, days int) ([]NewTopic, error) {
	cutoff := db.cutoff(days)
	older, err := db.runs(ctx, "<", cutoff)
	if err != nil {
		return nil, err
	}
	recent, err := db.runs(ctx, ">=", cutoff)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{})
	for _, r := range older {
		for _, t := range r.TopTopics {
			known[t.Keyword] = struct{}{}
		}
	}

	var out []NewTopic
	for _, r := range recent {
		for _, t := range r.TopTopics {
			if _, ok := known[t.Keyword]; ok {
				continue
			}
			known[t.Keyword] = struct{}{}
			out = append(out, NewTopic{Keyword: t.Keyword, FirstSeen: r.Date, TrendScore: t.TrendScore})
		}
	}
	return out, nil
}
