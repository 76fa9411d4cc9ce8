package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	hackerNewsURL      = "https://hacker-news.firebaseio.com/v0"
	hackerNewsItemURL  = "https://news.ycombinator.com/item?id=%d"
	hackerNewsParallel = 8
)

type hnStory struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
	Time  int64  `json:"time"`
}

// hackerNews reads top stories from the Hacker News Firebase API and keeps
// the ones whose title mentions a relevance keyword.
type hackerNews struct{ base }

func (f *hackerNews) Name() string { return HackerNews }

func (f *hackerNews) Fetch(ctx context.Context) ([]models.Item, error) {
	maxStories := f.cfg.MaxStories
	if maxStories <= 0 {
		maxStories = 200
	}
	root := strings.TrimSuffix(f.endpoint(hackerNewsURL), "/")

	// An unreachable story list yields no items rather than a failed source.
	var ids []int
	if err := f.getJSON(ctx, root+"/topstories.json", &ids); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("hackernews: top stories: %w", ctx.Err())
		}
		f.logger.Warn("hackernews top stories failed", slog.String("error", err.Error()))
		return []models.Item{}, nil
	}
	if len(ids) > maxStories {
		ids = ids[:maxStories]
	}

	// Stories are fetched concurrently; results keep the top-stories order.
	stories := make([]*hnStory, len(ids))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(hackerNewsParallel)
	for i, id := range ids {
		g.Go(func() error {
			var s hnStory
			if err := f.getJSON(gCtx, fmt.Sprintf("%s/item/%d.json", root, id), &s); err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				f.logger.Debug("story failed", slog.Int("id", id), slog.String("error", err.Error()))
				return nil
			}
			stories[i] = &s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []models.Item
	for i, s := range stories {
		if s == nil || s.Type != "story" {
			continue
		}
		if !relevant(s.Title, f.cfg.RelevanceKeywords) {
			continue
		}
		link := s.URL
		if link == "" {
			link = fmt.Sprintf(hackerNewsItemURL, ids[i])
		}
		var published *time.Time
		if s.Time > 0 {
			t := time.Unix(s.Time, 0).UTC()
			published = &t
		}
		items = append(items, models.Item{
			Title:        s.Title,
			URL:          link,
			Source:       HackerNews,
			SourceDetail: HackerNews,
			Published:    published,
			Score:        s.Score,
		})
	}

	f.logger.Info("hackernews fetched", slog.Int("items", len(items)), slog.Int("stories", len(ids)))
	return items, nil
}

func (f *hackerNews) getJSON(ctx context.Context, url string, v any) error {
	body, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// relevant reports whether title contains any keyword, case-insensitively.
// An empty keyword list accepts everything.
func relevant(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
