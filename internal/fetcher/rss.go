package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	googleNewsURL = "https://news.google.com/rss/search"
	redditURL     = "https://www.reddit.com"
)

// parseFeed downloads and parses an RSS/Atom feed.
func (b *base) parseFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := b.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse feed %s: %w", feedURL, err)
	}
	return feed, nil
}

// feedItems converts feed entries to items, skipping links already in seen.
func feedItems(feed *gofeed.Feed, source, detail string, seen map[string]struct{}) []models.Item {
	var out []models.Item
	for _, e := range feed.Items {
		if e == nil {
			continue
		}
		if _, dup := seen[e.Link]; dup {
			continue
		}
		seen[e.Link] = struct{}{}

		desc := e.Description
		if desc == "" {
			desc = e.Content
		}
		out = append(out, models.Item{
			Title:        e.Title,
			Description:  desc,
			URL:          e.Link,
			Source:       source,
			SourceDetail: detail,
			Published:    e.PublishedParsed,
		})
	}
	return out
}

// googleNews searches Google News RSS for every configured query.
type googleNews struct{ base }

func (f *googleNews) Name() string { return GoogleNews }

func (f *googleNews) Fetch(ctx context.Context) ([]models.Item, error) {
	if len(f.cfg.Queries) == 0 {
		f.logger.Warn("no search queries configured")
		return nil, nil
	}

	seen := make(map[string]struct{})
	var items []models.Item
	for _, q := range f.cfg.Queries {
		u := f.endpoint(googleNewsURL) + "?q=" + url.QueryEscape(q) + "&hl=en&gl=US&ceid=US:en"
		f.logger.Debug("fetching google news", slog.String("query", q))

		feed, err := f.parseFeed(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			f.logger.Error("query failed", slog.String("query", q), slog.String("error", err.Error()))
			continue
		}
		items = append(items, feedItems(feed, GoogleNews, q, seen)...)
	}

	f.logger.Info("google news fetched", slog.Int("items", len(items)), slog.Int("queries", len(f.cfg.Queries)))
	return items, nil
}

// reddit reads subreddit listing feeds.
type reddit struct{ base }

func (f *reddit) Name() string { return Reddit }

func (f *reddit) Fetch(ctx context.Context) ([]models.Item, error) {
	if len(f.cfg.Subreddits) == 0 {
		f.logger.Warn("no subreddits configured")
		return nil, nil
	}
	sort := orDefault(f.cfg.Sort, "top")
	timeFilter := orDefault(f.cfg.TimeFilter, "week")
	limit := f.cfg.Limit
	if limit <= 0 {
		limit = 50
	}

	seen := make(map[string]struct{})
	var items []models.Item
	for _, sub := range f.cfg.Subreddits {
		u := fmt.Sprintf("%s/r/%s/%s/.rss?t=%s&limit=%d",
			strings.TrimSuffix(f.endpoint(redditURL), "/"), url.PathEscape(sub), sort, url.QueryEscape(timeFilter), limit)

		feed, err := f.parseFeed(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			f.logger.Error("subreddit failed", slog.String("subreddit", sub), slog.String("error", err.Error()))
			continue
		}
		items = append(items, feedItems(feed, Reddit, "r/"+sub, seen)...)
	}

	f.logger.Info("reddit fetched", slog.Int("items", len(items)), slog.Int("subreddits", len(f.cfg.Subreddits)))
	return items, nil
}

// linkedIn reads LinkedIn newsletter feeds. Experimental; disabled in the default config.
type linkedIn struct{ base }

func (f *linkedIn) Name() string { return LinkedInRSS }

func (f *linkedIn) Fetch(ctx context.Context) ([]models.Item, error) {
	if len(f.cfg.NewsletterURLs) == 0 {
		f.logger.Debug("no newsletter urls configured")
		return nil, nil
	}

	seen := make(map[string]struct{})
	var items []models.Item
	for _, feedURL := range f.cfg.NewsletterURLs {
		feed, err := f.parseFeed(ctx, feedURL)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			f.logger.Error("feed failed", slog.String("url", feedURL), slog.String("error", err.Error()))
			continue
		}
		title := feed.Title
		if title == "" {
			title = feedURL
		}
		items = append(items, feedItems(feed, LinkedInRSS, title, seen)...)
	}

	f.logger.Info("linkedin fetched", slog.Int("items", len(items)), slog.Int("feeds", len(f.cfg.NewsletterURLs)))
	return items, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
