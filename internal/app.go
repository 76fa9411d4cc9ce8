package internal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/starford/newsletter-scanner/internal/dedup"
	"github.com/starford/newsletter-scanner/internal/fetcher"
	"github.com/starford/newsletter-scanner/internal/processing"
	"github.com/starford/newsletter-scanner/internal/report"
	"github.com/starford/newsletter-scanner/internal/scan"
	"github.com/starford/newsletter-scanner/internal/state"
	"github.com/starford/newsletter-scanner/internal/storage"
	"github.com/starford/newsletter-scanner/internal/summarizer"
)

const fetchTimeout = 10 * time.Second

// NewLogger returns the JSON logger used by every command.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.keywords == nil {
		app.keywords = Keywords{}
	}
	if app.logger == nil {
		app.logger = NewLogger(app.config.App.LogLevel)
	}
	return app, nil
}

func (a *application) openState() (*state.DB, error) {
	db, err := state.Open(a.config.StatePath())
	if err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}
	return db, nil
}

func (a *application) dataStore() (*storage.FS, *storage.Store, error) {
	fs, err := storage.NewFS(a.config.DataDir())
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	return fs, storage.NewStore(fs, a.logger), nil
}

// fetchers builds every enabled source in registry order.
func (a *application) fetchers() ([]fetcher.Fetcher, error) {
	client := &http.Client{Timeout: fetchTimeout}
	var out []fetcher.Fetcher
	for _, name := range fetcher.Names {
		cfg := a.config.Source(name)
		if !cfg.IsEnabled() {
			continue
		}
		f, err := fetcher.New(name, cfg, client, a.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (a *application) processor() *processing.Processor {
	p := a.config.Processing
	w := a.config.Scoring.Weights
	proc := &processing.Processor{
		Extractor:   processing.NewExtractor(p.NgramRange[0], p.NgramRange[1], p.MinDocumentFrequency, p.TopKeywords, a.logger),
		Categorizer: processing.NewCategorizer(a.keywords, a.config.DisplayNames()),
		Scorer: processing.NewScorer(processing.Weights{
			Frequency:       w.Frequency,
			Recency:         w.Recency,
			SourceDiversity: w.SourceDiversity,
			Engagement:      w.Engagement,
		}, a.config.Scoring.RecencyDecayHours),
	}
	if p.Clustering.Enabled {
		proc.Clusterer = processing.NewClusterer(true, p.Clustering.MinClusters, p.Clustering.MaxClusters, a.logger)
	}
	return proc
}

func (a *application) summarizer() *summarizer.Summarizer {
	ai := a.config.AI
	return summarizer.NewFromKey(ai.APIKey, ai.Model, ai.Enabled, ai.MaxTokens, a.logger)
}

// deduper returns the BigQuery backend when enabled, otherwise the local state
// database. A BigQuery client that cannot be created falls back to SQLite.
func (a *application) deduper(ctx context.Context, db *state.DB) (dedup.Deduper, func()) {
	bq := a.config.BigQuery
	if bq.Enabled {
		client, err := dedup.NewBigQuery(ctx, bq.Project, bq.Dataset)
		if err == nil {
			return dedup.New(DedupBackendBigQuery, client, a.logger), func() { _ = client.Close() }
		}
		a.logger.Warn("bigquery dedup unavailable, using sqlite", slog.String("error", err.Error()))
	}
	return dedup.New(DedupBackendSQLite, db, a.logger), func() {}
}

func (a *application) emailSettings() report.EmailSettings {
	e := a.config.Email
	return report.EmailSettings{
		Enabled:    e.Enabled,
		Server:     e.SMTPServer,
		Port:       e.SMTPPort,
		Sender:     e.Sender,
		Password:   e.AppPassword,
		Recipients: e.Recipients,
	}
}

// pipeline wires a scan pipeline. The returned func releases the dedup backend.
func (a *application) pipeline(ctx context.Context, db *state.DB, store *storage.Store, console *report.Console, progress scan.Progress) (*scan.Pipeline, func(), error) {
	fetchers, err := a.fetchers()
	if err != nil {
		return nil, nil, err
	}
	d, closeDedup := a.deduper(ctx, db)
	p := scan.New(scan.Deps{
		Fetchers:   fetchers,
		History:    db,
		Dedup:      d,
		DedupDays:  a.config.BigQuery.DedupDays,
		Store:      store,
		Processor:  a.processor(),
		Summarizer: a.summarizer(),
		Console:    console,
		ExportJSON: a.config.Reporting.Export.JSON,
		ExportCSV:  a.config.Reporting.Export.CSV,
		Email:      a.emailSettings(),
		MaxItems:   a.config.General.MaxItemsPerSource,
		Progress:   progress,
		Logger:     a.logger,
	})
	return p, closeDedup, nil
}

func (a *application) console() *report.Console {
	c := a.config.Reporting.Console
	return report.NewConsole(a.out, c.TopN, c.ShowSources)
}
