package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes one gcloud command.
type Runner interface {
	Run(ctx context.Context, args []string) error
}

// Gcloud runs the gcloud binary, streaming its output.
type Gcloud struct {
	Binary string
	Stdout io.Writer
	Stderr io.Writer
	Dir    string
}

// Run implements Runner.
func (g Gcloud) Run(ctx context.Context, args []string) error {
	bin := g.Binary
	if bin == "" {
		bin = "gcloud"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = g.Dir
	cmd.Stdout = g.Stdout
	cmd.Stderr = &stderr
	if g.Stderr != nil {
		cmd.Stderr = io.MultiWriter(g.Stderr, &stderr)
	}
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Deployer executes a plan.
type Deployer struct {
	runner Runner
	out    io.Writer
	logger *slog.Logger
}

// NewDeployer returns a Deployer printing progress to out.
func NewDeployer(runner Runner, out io.Writer, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{runner: runner, out: out, logger: logger}
}

// Execute runs the steps in order. With dryRun the commands are only printed.
// A failed create falls back to its update; a failed update, or any other
// failed step that is not marked Continue, aborts.
func (d *Deployer) Execute(ctx context.Context, steps []Step, dryRun bool) error {
	for i, step := range steps {
		fmt.Fprintf(d.out, "[%d/%d] %s\n", i+1, len(steps), step.Name)
		if dryRun {
			fmt.Fprintf(d.out, "  %s\n", step)
			if step.OnError == Update {
				fmt.Fprintf(d.out, "  (if it exists) %s\n", command(step.Fallback))
			}
			continue
		}

		err := d.runner.Run(ctx, step.Args)
		if err == nil {
			continue
		}
		switch step.OnError {
		case Continue:
			d.logger.Info("step failed, continuing", slog.String("step", step.Name), slog.String("error", err.Error()))
			fmt.Fprintln(d.out, "  already exists, continuing")
		case Update:
			d.logger.Info("create failed, updating", slog.String("step", step.Name), slog.String("error", err.Error()))
			fmt.Fprintln(d.out, "  exists, updating")
			if err := d.runner.Run(ctx, step.Fallback); err != nil {
				return fmt.Errorf("deploy: %s: update: %w", step.Name, err)
			}
		default:
			return fmt.Errorf("deploy: %s: %w", step.Name, err)
		}
	}
	return nil
}
