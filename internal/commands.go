package internal

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/starford/newsletter-scanner/internal/apperr"
	"github.com/starford/newsletter-scanner/internal/deploy"
	"github.com/starford/newsletter-scanner/internal/fetcher"
	"github.com/starford/newsletter-scanner/internal/mcpserver"
	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/report"
	"github.com/starford/newsletter-scanner/internal/scan"
	pkgconfig "github.com/starford/newsletter-scanner/pkg/config"
)

// Report output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatCSV     = "csv"
)

const (
	historyTrendingLimit = 15
	historyNewLimit      = 10
)

// ScanRequest holds the scan command switches.
type ScanRequest struct {
	Sources  []string
	NoReport bool
	Email    bool
	DryRun   bool
}

// Scan runs one scan and prints its progress and report.
func Scan(ctx context.Context, req ScanRequest, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if req.DryRun {
		return app.dryRun()
	}

	_, store, err := app.dataStore()
	if err != nil {
		return err
	}
	db, err := app.openState()
	if err != nil {
		return err
	}
	defer db.Close()

	p, closeDedup, err := app.pipeline(ctx, db, store, app.console(), func(stage scan.Stage, msg string) {
		fmt.Fprintf(app.out, "  [%s] %s\n", stage, msg)
	})
	if err != nil {
		return err
	}
	defer closeDedup()

	res, err := p.Run(ctx, scan.Options{Sources: req.Sources, NoReport: req.NoReport, Email: req.Email})
	if err != nil {
		return err
	}
	switch res.Status {
	case scan.StatusNoItems:
		fmt.Fprintln(app.out, "No data was fetched.")
	case scan.StatusNoNewItems:
		fmt.Fprintln(app.out, "No new articles, everything was sent before.")
	case scan.StatusNoTopics:
		fmt.Fprintln(app.out, "No topics were extracted.")
	default:
		fmt.Fprintf(app.out, "\nDone! (%.1fs)\n", res.Metadata.ProcessingTime)
	}
	return nil
}

func (a *application) dryRun() error {
	abs, err := filepath.Abs(a.config.DataDir())
	if err != nil {
		abs = a.config.DataDir()
	}
	fmt.Fprintln(a.out, "DRY RUN: checking configuration...")
	fmt.Fprintf(a.out, "  Data: %s\n", abs)
	fmt.Fprintf(a.out, "  State: %s\n", a.config.StatePath())
	fmt.Fprintf(a.out, "  Sources: %s\n", strings.Join(a.enabledSources(), ", "))
	fmt.Fprintf(a.out, "  Keyword categories: %s\n", strings.Join(a.keywords.Categories(), ", "))
	fmt.Fprintf(a.out, "  Dedup backend: %s\n", a.config.BigQuery.Backend())
	fmt.Fprintln(a.out, "Configuration OK")
	return nil
}

func (a *application) enabledSources() []string {
	var out []string
	for _, name := range fetcher.Names {
		if a.config.Source(name).IsEnabled() {
			out = append(out, name)
		}
	}
	return out
}

// Report rebuilds a report from the latest processed topics without fetching.
func Report(ctx context.Context, format string, topN int, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	_, store, err := app.dataStore()
	if err != nil {
		return err
	}

	topics, _, err := store.LoadLatestProcessed()
	if errors.Is(err, apperr.ErrNoData) {
		fmt.Fprintln(app.out, "No processed data found. Run 'scan' first.")
		return nil
	}
	if err != nil {
		return err
	}

	if topN <= 0 {
		topN = app.config.Reporting.Console.TopN
	}
	switch format {
	case FormatConsole:
		app.console().WithTopN(topN).Print(topics[:min(topN, len(topics))], nil, models.RunMetadata{})
	case FormatJSON:
		path, err := store.SaveReportJSON(report.Build(topics, nil, models.RunMetadata{ScanDate: "from_cache"}, time.Now()))
		if err != nil {
			return err
		}
		fmt.Fprintf(app.out, "JSON report: %s\n", path)
	case FormatCSV:
		path, err := store.SaveReportCSV(topics)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.out, "CSV report: %s\n", path)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	return nil
}

// History prints rising and new topics over the last days.
func History(ctx context.Context, days int, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	db, err := app.openState()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.RunsCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "History: %d runs recorded\n\n", runs)
	if runs < 2 {
		fmt.Fprintln(app.out, "At least 2 runs are needed to show trends.")
		return nil
	}

	trending, err := db.Trending(ctx, days)
	if err != nil {
		return err
	}
	if len(trending) == 0 {
		fmt.Fprintln(app.out, "No rising topics found")
	} else {
		fmt.Fprintf(app.out, "Rising Topics (last %d days)\n", days)
		table := tablewriter.NewWriter(app.out)
		table.SetHeader([]string{"Keyword", "Current Score", "Previous Score", "Change"})
		table.SetAlignment(tablewriter.ALIGN_RIGHT)
		for _, t := range trending[:min(historyTrendingLimit, len(trending))] {
			table.Append([]string{
				t.Keyword,
				fmt.Sprintf("%.3f", t.CurrentScore),
				fmt.Sprintf("%.3f", t.PreviousScore),
				fmt.Sprintf("+%.3f", t.Change),
			})
		}
		table.Render()
	}

	fresh, err := db.NewTopics(ctx, days)
	if err != nil {
		return err
	}
	if len(fresh) > 0 {
		fmt.Fprintf(app.out, "\nNew topics (last %d days):\n", days)
		for _, t := range fresh[:min(historyNewLimit, len(fresh))] {
			fmt.Fprintf(app.out, "  - %s (first seen: %s)\n", t.Keyword, t.FirstSeen)
		}
	}
	return nil
}

// requiredSections must be present in the config file itself, not only in defaults.
var requiredSections = []string{"general", "sources", "processing", "scoring", "categories"}

// ShowConfig dumps the effective configuration and, with validate, checks the
// raw file for required sections.
func ShowConfig(raw []byte, show, validate bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if show || !validate {
		out, err := pkgconfig.Dump(app.config)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.out, "Current configuration:\n\n%s\n", out)
	}
	if !validate {
		return nil
	}

	var sections map[string]any
	if len(raw) > 0 {
		if err := pkgconfig.Decode(raw, &sections); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	var missing []string
	for _, s := range requiredSections {
		if _, ok := sections[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(app.out, "Missing sections: %s\n", strings.Join(missing, ", "))
	} else if err := app.config.Validate(); err != nil {
		fmt.Fprintf(app.out, "Invalid configuration: %v\n", err)
	} else {
		fmt.Fprintln(app.out, "Configuration is valid.")
	}
	fmt.Fprintf(app.out, "Enabled sources: %s\n", strings.Join(app.enabledSources(), ", "))
	return nil
}

// MCP serves the scanner tools over stdio.
func MCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	_, store, err := app.dataStore()
	if err != nil {
		return err
	}
	db, err := app.openState()
	if err != nil {
		return err
	}
	defer db.Close()

	app.logger.Info("mcp server starting on stdio")
	return mcpserver.New(store, db, app.version).ServeStdio()
}

// DeployRequest holds deploy command overrides of the deploy config section.
type DeployRequest struct {
	Project        string
	Region         string
	ServiceAccount string
	Sender         string
	Recipient      string
	Dir            string
	DryRun         bool
}

// Deploy provisions the scheduled job with gcloud.
func Deploy(ctx context.Context, req DeployRequest, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	settings := app.deploySettings(req)
	steps, err := deploy.Plan(settings)
	if err != nil {
		return err
	}
	app.logger.Info("deploy starting",
		slog.String("project", settings.Project),
		slog.String("region", settings.Region),
		slog.String("image", settings.ImageURI()),
		slog.Bool("dry_run", req.DryRun))

	runner := deploy.Gcloud{Stdout: app.out, Stderr: app.out, Dir: req.Dir}
	if err := deploy.NewDeployer(runner, app.out, app.logger).Execute(ctx, steps, req.DryRun); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Job %s scheduled %q (%s)\n", settings.Job, settings.Schedule, settings.TimeZone)
	return nil
}

func (a *application) deploySettings(req DeployRequest) deploy.Settings {
	d := a.config.Deploy
	s := deploy.Settings{
		Project:        d.Project,
		Region:         d.Region,
		Repository:     d.Repository,
		Image:          d.Image,
		Job:            d.Job,
		Scheduler:      d.Scheduler,
		Schedule:       d.Schedule,
		TimeZone:       d.TimeZone,
		Secret:         d.Secret,
		AISecret:       d.AISecret,
		Sender:         cmp.Or(req.Sender, d.Sender, a.config.Email.Sender),
		Recipient:      cmp.Or(req.Recipient, d.Recipient),
		ServiceAccount: d.ServiceAccount,
	}
	if s.Recipient == "" && len(a.config.Email.Recipients) > 0 {
		s.Recipient = a.config.Email.Recipients[0]
	}
	if req.Project != "" {
		s.Project = req.Project
	}
	if req.Region != "" {
		s.Region = req.Region
	}
	if req.ServiceAccount != "" {
		s.ServiceAccount = req.ServiceAccount
	}
	return s
}
