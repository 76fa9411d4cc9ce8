package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/newsletter-scanner/internal/dedup"
	"github.com/starford/newsletter-scanner/internal/fetcher"
	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/processing"
	"github.com/starford/newsletter-scanner/internal/report"
	"github.com/starford/newsletter-scanner/internal/storage"
	"github.com/starford/newsletter-scanner/internal/testutil"
)

type fakeFetcher struct {
	name  string
	items []models.Item
	err   error
	calls int
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(context.Context) ([]models.Item, error) {
	f.calls++
	return f.items, f.err
}

type fakeSender struct{ sent []report.Newsletter }

func (f *fakeSender) Send(_ context.Context, n report.Newsletter) error {
	f.sent = append(f.sent, n)
	return nil
}

func articles(source string, titles ...string) []models.Item {
	out := make([]models.Item, len(titles))
	for i, t := range titles {
		out[i] = models.Item{
			Title:  t,
			URL:    fmt.Sprintf("https://%s.example.com/%d", source, i),
			Source: source,
			Score:  10,
		}
	}
	return out
}

type fixture struct {
	pipeline *Pipeline
	fs       *storage.FS
	reddit   *fakeFetcher
	hn       *fakeFetcher
	broken   *fakeFetcher
	sender   *fakeSender
	progress []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		reddit: &fakeFetcher{name: "reddit", items: articles("reddit",
			"Marketing automation with generative AI",
			"Generative AI changes marketing automation",
			"Cloud analytics platform pricing")},
		hn: &fakeFetcher{name: "hackernews", items: articles("hackernews",
			"Generative AI agents for analytics",
			"Cloud analytics platform launch",
			"Marketing automation startup raises")},
		broken: &fakeFetcher{name: "google_news", err: errors.New("timeout")},
		sender: &fakeSender{},
	}
	db := testutil.TestDB(t)
	fs, store := testutil.TestDataDir(t)
	fx.fs = fs
	logger := testutil.QuietLogger()

	fx.pipeline = New(Deps{
		Fetchers:  []fetcher.Fetcher{fx.broken, fx.reddit, fx.hn},
		History:   db,
		Dedup:     dedup.New("sqlite", db, logger),
		DedupDays: 7,
		Store:     store,
		Processor: &processing.Processor{
			Extractor:   processing.NewExtractor(1, 2, 2, 30, logger),
			Categorizer: processing.NewCategorizer(map[string][]string{"ai": {"generative ai"}}, nil),
			Scorer:      processing.NewScorer(processing.Weights{Frequency: 0.3, Recency: 0.3, SourceDiversity: 0.25, Engagement: 0.15}, 48),
			Clusterer:   processing.NewClusterer(true, 2, 3, logger),
		},
		Console:    report.NewConsole(io.Discard, 15, true),
		ExportJSON: true,
		ExportCSV:  true,
		Email: report.EmailSettings{
			Enabled: true,
			Sender:  "me@example.com", Password: "pw", Recipients: []string{"you@example.com"},
		},
		Sender:   fx.sender,
		Progress: func(stage Stage, msg string) { fx.progress = append(fx.progress, string(stage)+": "+msg) },
		Logger:   logger,
	})
	return fx
}

func TestPipeline_FullRun(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.pipeline.Run(context.Background(), Options{Email: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("status = %s, progress = %v", res.Status, fx.progress)
	}
	if len(res.Items) != 6 || len(res.Topics) == 0 {
		t.Fatalf("items = %d topics = %d", len(res.Items), len(res.Topics))
	}
	if got := strings.Join(res.Metadata.SourcesUsed, ","); got != "reddit,hackernews" {
		t.Errorf("sources used = %s", got)
	}
	if len(res.ReportFiles) != 2 {
		t.Errorf("report files = %v", res.ReportFiles)
	}
	for _, dir := range []string{storage.RawDir, storage.ProcessedDir, storage.ReportsDir} {
		entries, err := os.ReadDir(filepath.Join(fx.fs.Root(), dir))
		if err != nil || len(entries) == 0 {
			t.Errorf("%s is empty: %v", dir, err)
		}
	}
	if !res.EmailSent || len(fx.sender.sent) != 1 {
		t.Fatalf("email sent = %v, deliveries = %d", res.EmailSent, len(fx.sender.sent))
	}

	// Everything was delivered, so the next scan has nothing new.
	again, err := fx.pipeline.Run(context.Background(), Options{Email: true})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Status != StatusNoNewItems {
		t.Fatalf("second status = %s, want %s", again.Status, StatusNoNewItems)
	}
}

func TestPipeline_SourceFilter(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.pipeline.Run(context.Background(), Options{Sources: []string{"reddit"}, NoReport: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fx.hn.calls != 0 || fx.broken.calls != 0 || fx.reddit.calls != 1 {
		t.Fatalf("calls reddit=%d hn=%d broken=%d", fx.reddit.calls, fx.hn.calls, fx.broken.calls)
	}
	if len(res.ReportFiles) != 0 || res.EmailSent {
		t.Fatal("no-report run must not export or send")
	}
}

func TestPipeline_NoItems(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.pipeline.Run(context.Background(), Options{Sources: []string{"google_news"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusNoItems {
		t.Fatalf("status = %s, want %s", res.Status, StatusNoItems)
	}
}

func TestPipeline_EmailEnabledInConfigSendsUnrequested(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.pipeline.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.EmailSent || len(fx.sender.sent) != 1 {
		t.Fatalf("email sent = %v, deliveries = %d", res.EmailSent, len(fx.sender.sent))
	}
}

func TestPipeline_EmailDisabledInConfigIgnoresRequest(t *testing.T) {
	fx := newFixture(t)
	fx.pipeline.d.Email.Enabled = false

	res, err := fx.pipeline.Run(context.Background(), Options{Email: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.EmailSent || len(fx.sender.sent) != 0 {
		t.Fatal("email disabled in config must not send, even when requested")
	}
	if !strings.Contains(strings.Join(fx.progress, "\n"), "email: email not sent") {
		t.Errorf("progress = %v", fx.progress)
	}
}
