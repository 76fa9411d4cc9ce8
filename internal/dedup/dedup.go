// Package dedup keeps already-sent articles out of the next newsletter.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/newsletter-scanner/internal/checksum"
	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/state"
)

const (
	maxURLLength   = 1000
	maxTitleLength = 500
)

// Deduper filters items sent in recent newsletters and records new sends.
// Backend failures never abort a scan: FilterNew then returns items unchanged.
type Deduper interface {
	FilterNew(ctx context.Context, items []models.Item, days int) []models.Item
	MarkSent(ctx context.Context, items []models.Item, clusters []models.Cluster) error
}

// Backend is the storage a Deduper reads and writes.
type Backend interface {
	SentHashes(ctx context.Context, days int) (map[string]struct{}, error)
	MarkSent(ctx context.Context, rows []state.SentArticle) error
}

type deduper struct {
	name    string
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Deduper over b; name labels its log lines.
func New(name string, b Backend, logger *slog.Logger) Deduper {
	return newDeduper(name, b, logger)
}

func newDeduper(name string, b Backend, logger *slog.Logger) *deduper {
	if logger == nil {
		logger = slog.Default()
	}
	return &deduper{name: name, backend: b, logger: logger.With(slog.String("backend", name)), now: time.Now}
}

func (d *deduper) FilterNew(ctx context.Context, items []models.Item, days int) []models.Item {
	sent, err := d.backend.SentHashes(ctx, days)
	if err != nil {
		d.logger.Warn("dedup lookup failed, keeping all items", slog.String("error", err.Error()))
		return items
	}
	if len(sent) == 0 {
		return items
	}
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if _, ok := sent[checksum.URLHash(it.URL)]; !ok {
			out = append(out, it)
		}
	}
	d.logger.Info("dedup applied", slog.Int("new", len(out)), slog.Int("skipped", len(items)-len(out)))
	return out
}

func (d *deduper) MarkSent(ctx context.Context, items []models.Item, clusters []models.Cluster) error {
	rows := SentRows(items, clusters, d.now().Format(time.DateOnly))
	if len(rows) == 0 {
		return nil
	}
	if err := d.backend.MarkSent(ctx, rows); err != nil {
		return err
	}
	d.logger.Info("sent articles recorded", slog.Int("count", len(rows)))
	return nil
}

// SentRows converts items with a URL into sent records labelled by their cluster.
func SentRows(items []models.Item, clusters []models.Cluster, date string) []state.SentArticle {
	label := make(map[int]string)
	for _, c := range clusters {
		for _, idx := range c.ItemIndices {
			label[idx] = c.Label
		}
	}
	var rows []state.SentArticle
	for i, it := range items {
		if it.URL == "" {
			continue
		}
		rows = append(rows, state.SentArticle{
			URLHash:      checksum.URLHash(it.URL),
			URL:          clip(it.URL, maxURLLength),
			Title:        clip(it.Title, maxTitleLength),
			Source:       it.Source,
			SentDate:     date,
			ClusterLabel: label[i],
		})
	}
	return rows
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Nop is a Deduper that filters nothing and records nothing.
type Nop struct{}

func (Nop) FilterNew(_ context.Context, items []models.Item, _ int) []models.Item { return items }

func (Nop) MarkSent(context.Context, []models.Item, []models.Cluster) error { return nil }
