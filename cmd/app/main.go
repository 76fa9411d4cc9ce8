package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/newsletter-scanner/internal"
)

var version = "dev"

// options loads the config and keyword files named by the global flags.
func options(cmd *cli.Command) ([]internal.Option, error) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	bootstrap := internal.NewLogger(level)

	cfg, err := internal.LoadConfig(cmd.String("config"), bootstrap)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.Bool("verbose") {
		cfg.App.LogLevel = slog.LevelDebug
	}
	keywords, err := internal.LoadKeywords(cmd.String("keywords"), bootstrap)
	if err != nil {
		return nil, err
	}

	logger := internal.NewLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithKeywords(keywords),
		internal.WithLogger(logger),
		internal.WithVersion(version),
	}, nil
}

func splitSources(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func scanCmd() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Fetch sources, extract trending topics and build the report",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sources", Aliases: []string{"s"}, Usage: "Comma-separated sources (google_news,reddit,hackernews,google_trends,linkedin_rss)"},
			&cli.BoolFlag{Name: "no-report", Usage: "Skip report generation"},
			&cli.BoolFlag{Name: "email", Usage: "Send the newsletter by email (requires email.enabled)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Only check the configuration"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			return internal.Scan(ctx, internal.ScanRequest{
				Sources:  splitSources(cmd.String("sources")),
				NoReport: cmd.Bool("no-report"),
				Email:    cmd.Bool("email"),
				DryRun:   cmd.Bool("dry-run"),
			}, opts...)
		},
	}
}

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Rebuild a report from the latest stored data without fetching",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: internal.FormatConsole, Usage: "console, json or csv"},
			&cli.IntFlag{Name: "top-n", Aliases: []string{"n"}, Value: 15, Usage: "Number of topics to show"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			return internal.Report(ctx, cmd.String("format"), int(cmd.Int("top-n")), opts...)
		},
	}
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show rising and new topics from scan history",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Aliases: []string{"d"}, Value: 7, Usage: "Days to look back"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			return internal.History(ctx, int(cmd.Int("days")), opts...)
		},
	}
}

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or validate the configuration",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "show", Usage: "Print the effective configuration"},
			&cli.BoolFlag{Name: "validate", Usage: "Check required sections and list enabled sources"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(cmd.String("config"))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return internal.ShowConfig(raw, cmd.Bool("show"), cmd.Bool("validate"), opts...)
		},
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with live scan events",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			if err := internal.Serve(ctx, opts...); err != nil {
				return fmt.Errorf("app run error: %w", err)
			}
			return nil
		},
	}
}

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve scan results as MCP tools over stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			return internal.MCP(ctx, opts...)
		},
	}
}

func deployCmd() *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Provision the daily Cloud Run Job and its scheduler trigger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Usage: "Google Cloud project", Sources: cli.EnvVars("GCP_PROJECT")},
			&cli.StringFlag{Name: "region", Usage: "Region of the job and registry", Sources: cli.EnvVars("GCP_REGION")},
			&cli.StringFlag{Name: "service-account", Usage: "Scheduler OAuth service account"},
			&cli.StringFlag{Name: "sender", Usage: "Newsletter sender address set on the job", Sources: cli.EnvVars("NEWSLETTER_SENDER")},
			&cli.StringFlag{Name: "recipient", Usage: "Newsletter recipient address set on the job", Sources: cli.EnvVars("NEWSLETTER_RECIPIENT")},
			&cli.StringFlag{Name: "dir", Value: ".", Usage: "Build context directory"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Print the gcloud commands only"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			return internal.Deploy(ctx, internal.DeployRequest{
				Project:        cmd.String("project"),
				Region:         cmd.String("region"),
				ServiceAccount: cmd.String("service-account"),
				Sender:         cmd.String("sender"),
				Recipient:      cmd.String("recipient"),
				Dir:            cmd.String("dir"),
				DryRun:         cmd.Bool("dry-run"),
			}, opts...)
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "scanner",
		Usage: "Track trending topics in marketing, AI and analytics and mail a daily newsletter",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:        "keywords",
				Aliases:     []string{"k"},
				Usage:       "Path to keyword categories file",
				DefaultText: "config/keywords.yaml",
				Value:       "config/keywords.yaml",
				Sources:     cli.EnvVars("APP_KEYWORDS_FILE"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Debug logging",
			},
		},
		Commands: []*cli.Command{
			scanCmd(), reportCmd(), historyCmd(), configCmd(), serveCmd(), mcpCmd(), deployCmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
