package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	googleTrendsURL = "https://trends.google.com/trending/rss"
	trendsAPIURL    = "https://trends.google.com/trends/api"
	trendsTimeframe = "now 7-d"
	trendsPerList   = 10
)

// googleTrends reads the daily trending searches feed, then the top and rising
// related queries of every configured keyword group. Both endpoints are
// unofficial; a failure of either part is logged and the rest is kept.
type googleTrends struct{ base }

func (f *googleTrends) Name() string { return GoogleTrends }

func (f *googleTrends) Fetch(ctx context.Context) ([]models.Item, error) {
	geo := orDefault(f.cfg.Geo, "US")

	items, err := f.trending(ctx, geo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("trending searches failed", slog.String("error", err.Error()))
	}

	now := time.Now().UTC()
	for _, group := range f.cfg.KeywordGroups {
		if len(group) == 0 {
			continue
		}
		related, err := f.related(ctx, group, geo, now)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("related queries failed",
				slog.String("group", strings.Join(group, ",")), slog.String("error", err.Error()))
			continue
		}
		items = append(items, related...)
	}

	f.logger.Info("google trends fetched", slog.Int("items", len(items)), slog.Int("groups", len(f.cfg.KeywordGroups)))
	return items, nil
}

func (f *googleTrends) trending(ctx context.Context, geo string) ([]models.Item, error) {
	feed, err := f.parseFeed(ctx, f.endpoint(googleTrendsURL)+"?geo="+url.QueryEscape(geo))
	if err != nil {
		return nil, err
	}
	items := make([]models.Item, 0, len(feed.Items))
	for _, e := range feed.Items {
		if e == nil || e.Title == "" {
			continue
		}
		items = append(items, models.Item{
			Title:        e.Title,
			Description:  "Trending search: " + e.Title,
			URL:          e.Link,
			Source:       GoogleTrends,
			SourceDetail: "trending_searches:" + geo,
			Published:    e.PublishedParsed,
			Score:        approxTraffic(e),
			Tags:         []string{"trending"},
		})
	}
	return items, nil
}

type trendsComparison struct {
	Keyword string `json:"keyword"`
	Geo     string `json:"geo"`
	Time    string `json:"time"`
}

type trendsExplore struct {
	Widgets []struct {
		ID      string          `json:"id"`
		Token   string          `json:"token"`
		Request json.RawMessage `json:"request"`
	} `json:"widgets"`
}

type trendsWidgetRequest struct {
	Restriction struct {
		ComplexKeywordsRestriction struct {
			Keyword []struct {
				Value string `json:"value"`
			} `json:"keyword"`
		} `json:"complexKeywordsRestriction"`
	} `json:"restriction"`
}

type trendsRanked struct {
	Default struct {
		RankedList []struct {
			RankedKeyword []struct {
				Query string `json:"query"`
				Value int    `json:"value"`
			} `json:"rankedKeyword"`
		} `json:"rankedList"`
	} `json:"default"`
}

// related resolves the related-queries widgets for group over the last seven
// days and turns their top and rising lists into items.
func (f *googleTrends) related(ctx context.Context, group []string, geo string, now time.Time) ([]models.Item, error) {
	root := trendsAPIURL
	if f.cfg.BaseURL != "" {
		root = strings.TrimSuffix(f.cfg.BaseURL, "/") + "/api"
	}

	comparison := make([]trendsComparison, len(group))
	for i, kw := range group {
		comparison[i] = trendsComparison{Keyword: kw, Geo: geo, Time: trendsTimeframe}
	}
	req, err := json.Marshal(map[string]any{"comparisonItem": comparison, "category": 0, "property": ""})
	if err != nil {
		return nil, fmt.Errorf("google_trends: encode explore: %w", err)
	}
	var explore trendsExplore
	q := url.Values{"hl": {"en-US"}, "tz": {"360"}, "req": {string(req)}}
	if err := f.trendsJSON(ctx, root+"/explore?"+q.Encode(), &explore); err != nil {
		return nil, err
	}

	var items []models.Item
	for _, w := range explore.Widgets {
		if !strings.HasPrefix(w.ID, "RELATED_QUERIES") {
			continue
		}
		keyword := group[0]
		var wr trendsWidgetRequest
		if json.Unmarshal(w.Request, &wr) == nil {
			if kws := wr.Restriction.ComplexKeywordsRestriction.Keyword; len(kws) > 0 && kws[0].Value != "" {
				keyword = kws[0].Value
			}
		}

		var ranked trendsRanked
		q := url.Values{"hl": {"en-US"}, "tz": {"360"}, "req": {string(w.Request)}, "token": {w.Token}}
		if err := f.trendsJSON(ctx, root+"/widgetdata/relatedsearches?"+q.Encode(), &ranked); err != nil {
			return nil, err
		}
		for i, list := range ranked.Default.RankedList {
			if i > 1 {
				break
			}
			rising := i == 1
			for n, rk := range list.RankedKeyword {
				if n == trendsPerList {
					break
				}
				published := now
				item := models.Item{
					Title:        rk.Query,
					Description:  "Related to: " + keyword,
					Source:       GoogleTrends,
					SourceDetail: "related_top:" + keyword,
					Published:    &published,
					Score:        rk.Value,
				}
				if rising {
					item.Description = "Rising related to: " + keyword
					item.SourceDetail = "related_rising:" + keyword
					item.Tags = []string{"rising"}
				}
				items = append(items, item)
			}
		}
	}
	return items, nil
}

// trendsJSON decodes a Trends API response. The API prefixes its JSON with an
// anti-hijacking guard such as ")]}'," that is skipped.
func (f *googleTrends) trendsJSON(ctx context.Context, u string, v any) error {
	body, err := f.get(ctx, u)
	if err != nil {
		return err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("google_trends: read: %w", err)
	}
	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return fmt.Errorf("google_trends: no JSON in response from %s", u)
	}
	if err := json.Unmarshal(data[start:], v); err != nil {
		return fmt.Errorf("google_trends: decode: %w", err)
	}
	return nil
}

// approxTraffic reads the ht:approx_traffic extension ("20,000+") as an integer.
func approxTraffic(e *gofeed.Item) int {
	exts, ok := e.Extensions["ht"]
	if !ok {
		return 0
	}
	vals := exts["approx_traffic"]
	if len(vals) == 0 {
		return 0
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, vals[0].Value)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}
