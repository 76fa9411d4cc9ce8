// Package scan runs the fetch, dedup, process, report and delivery pipeline.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/starford/newsletter-scanner/internal/dedup"
	"github.com/starford/newsletter-scanner/internal/fetcher"
	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/processing"
	"github.com/starford/newsletter-scanner/internal/report"
	"github.com/starford/newsletter-scanner/internal/state"
	"github.com/starford/newsletter-scanner/internal/storage"
	"github.com/starford/newsletter-scanner/internal/summarizer"
)

// Stage names a pipeline phase in progress callbacks and metrics.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageDedup     Stage = "dedup"
	StageProcess   Stage = "process"
	StageSummarize Stage = "summarize"
	StageReport    Stage = "report"
	StageEmail     Stage = "email"
)

// Run statuses.
const (
	StatusOK         = "ok"
	StatusNoItems    = "no_items"
	StatusNoNewItems = "no_new_items"
	StatusNoTopics   = "no_topics"
	StatusFailed     = "failed"
)

// Progress receives human-readable progress lines.
type Progress func(stage Stage, message string)

// Options are per-run switches.
type Options struct {
	Sources  []string // empty means every configured fetcher
	NoReport bool
	Email    bool // ask for the newsletter; email.enabled in config still decides
}

// History is the part of the state store the pipeline writes to.
type History interface {
	AddRun(ctx context.Context, run state.Run) error
	LastFetch(ctx context.Context, source string) (*time.Time, error)
	TouchFetch(ctx context.Context, source string) error
}

// Deps are the collaborators of a Pipeline. Summarizer, Console and Sender may be nil.
type Deps struct {
	Fetchers   []fetcher.Fetcher
	History    History
	Dedup      dedup.Deduper
	DedupDays  int
	Store      *storage.Store
	Processor  *processing.Processor
	Summarizer *summarizer.Summarizer
	Console    *report.Console
	ExportJSON bool
	ExportCSV  bool
	Email      report.EmailSettings
	Sender     report.Sender
	MaxItems   int
	Progress   Progress
	Logger     *slog.Logger
}

// Pipeline executes scans.
type Pipeline struct {
	d   Deps
	now func() time.Time
}

// Result describes a finished run.
type Result struct {
	RunID       string
	Status      string
	Items       []models.Item
	Topics      []models.Topic
	Clusters    []models.Cluster
	Metadata    models.RunMetadata
	ReportFiles []string
	EmailSent   bool
}

// New returns a Pipeline.
func New(d Deps) *Pipeline {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Dedup == nil {
		d.Dedup = dedup.Nop{}
	}
	if d.Progress == nil {
		d.Progress = func(Stage, string) {}
	}
	return &Pipeline{d: d, now: time.Now}
}

// WithClock overrides the clock used for scan dates and timings.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run executes one scan. Outcomes without data are reported through Result.Status,
// not as errors.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	start := p.now()
	res := &Result{RunID: uuid.NewString()}
	logger := p.d.Logger.With(slog.String("run_id", res.RunID))
	logger.Info("scan started", slog.Any("sources", opts.Sources))

	res.Status = StatusFailed
	defer func() { RunsTotal.WithLabelValues(res.Status).Inc() }()

	items, sourcesUsed := p.fetch(ctx, opts.Sources, logger)
	if len(items) == 0 {
		p.d.Progress(StageFetch, "no data was fetched")
		res.Status = StatusNoItems
		return res, nil
	}

	stageStart := time.Now()
	before := len(items)
	items = p.d.Dedup.FilterNew(ctx, items, p.d.DedupDays)
	ItemsDeduplicated.Add(float64(before - len(items)))
	RecordStage(StageDedup, stageStart)
	if skipped := before - len(items); skipped > 0 {
		p.d.Progress(StageDedup, fmt.Sprintf("%d new, %d already sent", len(items), skipped))
	}
	if len(items) == 0 {
		p.d.Progress(StageDedup, "no new articles, everything was sent before")
		res.Status = StatusNoNewItems
		return res, nil
	}
	res.Items = items

	for _, source := range sourcesUsed {
		var own []models.Item
		for _, it := range items {
			if it.Source == source {
				own = append(own, it)
			}
		}
		if _, err := p.d.Store.SaveRaw(own, source); err != nil {
			return res, fmt.Errorf("scan: %w", err)
		}
	}

	p.d.Progress(StageProcess, fmt.Sprintf("processing %d items", len(items)))
	stageStart = time.Now()
	out, err := p.d.Processor.Process(items)
	if err != nil {
		return res, fmt.Errorf("scan: %w", err)
	}
	RecordStage(StageProcess, stageStart)
	res.Topics, res.Clusters = out.Topics, out.Clusters
	TopicsExtracted.Set(float64(len(out.Topics)))
	ClustersFound.Set(float64(len(out.Clusters)))
	p.d.Progress(StageProcess, fmt.Sprintf("%d keywords, %d clusters", len(out.Topics), len(out.Clusters)))
	if len(out.Topics) == 0 {
		res.Status = StatusNoTopics
		return res, nil
	}

	if _, err := p.d.Store.SaveProcessed(res.Topics); err != nil {
		return res, fmt.Errorf("scan: %w", err)
	}
	today := p.now().Format(time.DateOnly)
	if err := p.d.History.AddRun(ctx, state.RunFromTopics(res.RunID, today, res.Topics)); err != nil {
		return res, fmt.Errorf("scan: %w", err)
	}

	res.Metadata = models.RunMetadata{
		RunID:          res.RunID,
		ScanDate:       today,
		SourcesUsed:    sourcesUsed,
		TotalItems:     len(items),
		ProcessingTime: math.Round(p.now().Sub(start).Seconds()*10) / 10,
	}

	intro := p.summarize(ctx, res)

	if !opts.NoReport {
		if err := p.report(ctx, res, opts, intro, logger); err != nil {
			return res, err
		}
	}

	res.Status = StatusOK
	logger.Info("scan finished",
		slog.Int("items", len(res.Items)),
		slog.Int("topics", len(res.Topics)),
		slog.Int("clusters", len(res.Clusters)),
		slog.Bool("email_sent", res.EmailSent))
	return res, nil
}

func (p *Pipeline) fetch(ctx context.Context, filter []string, logger *slog.Logger) ([]models.Item, []string) {
	defer RecordStage(StageFetch, time.Now())
	var items []models.Item
	var used []string
	for _, f := range p.d.Fetchers {
		name := f.Name()
		if len(filter) > 0 && !slices.Contains(filter, name) {
			continue
		}
		fetched, err := f.Fetch(ctx)
		if err != nil {
			FetchErrors.WithLabelValues(name).Inc()
			logger.Error("fetcher failed", slog.String("source", name), slog.String("error", err.Error()))
			p.d.Progress(StageFetch, fmt.Sprintf("%s: error: %v", name, err))
			continue
		}
		if p.d.MaxItems > 0 && len(fetched) > p.d.MaxItems {
			fetched = fetched[:p.d.MaxItems]
		}

		total := len(fetched)
		if since, err := p.d.History.LastFetch(ctx, name); err != nil {
			logger.Warn("fetch cache read failed", slog.String("source", name), slog.String("error", err.Error()))
		} else {
			fetched = state.FilterSince(fetched, since)
		}
		if err := p.d.History.TouchFetch(ctx, name); err != nil {
			logger.Warn("fetch cache update failed", slog.String("source", name), slog.String("error", err.Error()))
		}

		ItemsFetched.WithLabelValues(name).Add(float64(len(fetched)))
		if skipped := total - len(fetched); skipped > 0 {
			p.d.Progress(StageFetch, fmt.Sprintf("%s: %d new (%d old skipped)", name, len(fetched), skipped))
		} else {
			p.d.Progress(StageFetch, fmt.Sprintf("%s: %d items", name, len(fetched)))
		}
		items = append(items, fetched...)
		used = append(used, name)
	}
	return items, used
}

func (p *Pipeline) summarize(ctx context.Context, res *Result) string {
	if p.d.Summarizer == nil || !p.d.Summarizer.Enabled() {
		return ""
	}
	defer RecordStage(StageSummarize, time.Now())
	p.d.Progress(StageSummarize, "summarising clusters")
	p.d.Summarizer.SummarizeClusters(ctx, res.Clusters, res.Items, summarizer.CategoriesByItem(res.Topics))
	p.d.Progress(StageSummarize, "writing newsletter intro")
	return p.d.Summarizer.Intro(ctx, res.Clusters, res.Metadata.TotalItems, res.Metadata.SourcesUsed)
}

func (p *Pipeline) report(ctx context.Context, res *Result, opts Options, intro string, logger *slog.Logger) error {
	stageStart := time.Now()
	if p.d.Console != nil {
		p.d.Console.Print(res.Topics, res.Clusters, res.Metadata)
	}
	if p.d.ExportJSON {
		path, err := p.d.Store.SaveReportJSON(report.Build(res.Topics, res.Clusters, res.Metadata, p.now()))
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		res.ReportFiles = append(res.ReportFiles, path)
		p.d.Progress(StageReport, "JSON report: "+path)
	}
	if p.d.ExportCSV {
		path, err := p.d.Store.SaveReportCSV(res.Topics)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		res.ReportFiles = append(res.ReportFiles, path)
		p.d.Progress(StageReport, "CSV report: "+path)
	}
	RecordStage(StageReport, stageStart)

	if !opts.Email && !p.d.Email.Enabled {
		return nil
	}
	sent, err := report.NewEmailer(p.d.Email, p.d.Sender, logger).Send(ctx, res.Clusters, res.Items, res.Metadata, intro)
	switch {
	case err != nil:
		NewslettersSent.WithLabelValues("failed").Inc()
		logger.Error("newsletter failed", slog.String("error", err.Error()))
		p.d.Progress(StageEmail, "email failed (check email settings)")
		return nil
	case !sent:
		NewslettersSent.WithLabelValues("skipped").Inc()
		p.d.Progress(StageEmail, "email not sent (check email settings)")
		return nil
	}
	NewslettersSent.WithLabelValues("sent").Inc()
	res.EmailSent = true
	p.d.Progress(StageEmail, "newsletter sent")
	if err := p.d.Dedup.MarkSent(ctx, res.Items, res.Clusters); err != nil {
		logger.Error("recording sent articles failed", slog.String("error", err.Error()))
	}
	return nil
}
