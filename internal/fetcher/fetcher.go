// Package fetcher downloads items from the configured news and trend sources.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/newsletter-scanner/internal/models"
)

// Source names, in the order a scan visits them.
const (
	GoogleNews   = "google_news"
	Reddit       = "reddit"
	HackerNews   = "hackernews"
	GoogleTrends = "google_trends"
	LinkedInRSS  = "linkedin_rss"
)

// Names lists every registered source in scan order.
var Names = []string{GoogleNews, Reddit, HackerNews, GoogleTrends, LinkedInRSS}

const (
	defaultRateLimit = 2.0
	defaultTimeout   = 10 * time.Second
	userAgent        = "NewsletterScanner/0.1"
)

// Fetcher downloads items from one source.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Item, error)
}

// SourceConfig is the per-source section of the config file. Fields that do not
// apply to a source are ignored by its fetcher.
type SourceConfig struct {
	Enabled   *bool    `yaml:"enabled"`
	RateLimit *float64 `yaml:"rate_limit"` // seconds between requests
	BaseURL   string   `yaml:"base_url"`   // endpoint override

	Queries           []string   `yaml:"queries,omitempty"`
	Subreddits        []string   `yaml:"subreddits,omitempty"`
	Sort              string     `yaml:"sort,omitempty"`
	TimeFilter        string     `yaml:"time_filter,omitempty"`
	Limit             int        `yaml:"limit,omitempty"`
	MaxStories        int        `yaml:"max_stories,omitempty"`
	RelevanceKeywords []string   `yaml:"relevance_keywords,omitempty"`
	Geo               string     `yaml:"geo,omitempty"`
	KeywordGroups     [][]string `yaml:"keyword_groups,omitempty"`
	NewsletterURLs    []string   `yaml:"newsletter_urls,omitempty"`
}

// IsEnabled reports whether the source should be fetched. Sources are enabled
// unless explicitly disabled.
func (c SourceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c SourceConfig) interval() time.Duration {
	secs := defaultRateLimit
	if c.RateLimit != nil {
		secs = *c.RateLimit
	}
	return time.Duration(secs * float64(time.Second))
}

// New returns the fetcher registered under name.
func New(name string, cfg SourceConfig, client *http.Client, logger *slog.Logger) (Fetcher, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := base{
		cfg:     cfg,
		client:  client,
		limiter: newLimiter(cfg.interval()),
		logger:  logger.With(slog.String("source", name)),
	}
	switch name {
	case GoogleNews:
		return &googleNews{base: b}, nil
	case Reddit:
		return &reddit{base: b}, nil
	case HackerNews:
		return &hackerNews{base: b}, nil
	case GoogleTrends:
		return &googleTrends{base: b}, nil
	case LinkedInRSS:
		return &linkedIn{base: b}, nil
	default:
		return nil, fmt.Errorf("fetcher: unknown source %q", name)
	}
}

// base carries what every fetcher shares: config, HTTP client and rate limiter.
type base struct {
	cfg     SourceConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

// get waits for the limiter, performs a GET and returns the body of a 2xx response.
// The caller must close the body.
func (b *base) get(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: get %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetcher: get %s: unexpected status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

func (b *base) endpoint(def string) string {
	if b.cfg.BaseURL != "" {
		return b.cfg.BaseURL
	}
	return def
}
