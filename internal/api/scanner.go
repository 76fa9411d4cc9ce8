package api

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/newsletter-scanner/internal/apperr"
	"github.com/starford/newsletter-scanner/internal/scan"
	"github.com/starford/newsletter-scanner/internal/sse"
)

// ScanFunc runs one scan.
type ScanFunc func(ctx context.Context, opts scan.Options) (*scan.Result, error)

// Publisher broadcasts events to connected clients.
type Publisher interface {
	Publish(event sse.Event)
}

// Scanner runs at most one background scan at a time.
type Scanner struct {
	ctx     context.Context
	run     ScanFunc
	pub     Publisher
	logger  *slog.Logger
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScanner returns a Scanner whose scans are cancelled with ctx.
func NewScanner(ctx context.Context, run ScanFunc, pub Publisher, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{ctx: ctx, run: run, pub: pub, logger: logger}
}

// Start launches a scan, or returns apperr.ErrConflict when one is running.
func (s *Scanner) Start(opts scan.Options) error {
	if !s.running.CompareAndSwap(false, true) {
		return apperr.ErrConflict
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		s.pub.Publish(sse.Event{Type: sse.TypeScanStarted, Data: map[string]any{"sources": opts.Sources, "email": opts.Email}})
		res, err := s.run(s.ctx, opts)
		data := map[string]any{}
		if res != nil {
			data["run_id"] = res.RunID
			data["status"] = res.Status
			data["topics"] = len(res.Topics)
			data["clusters"] = len(res.Clusters)
			data["email_sent"] = res.EmailSent
		}
		if err != nil {
			s.logger.Error("background scan failed", slog.String("error", err.Error()))
			data["error"] = err.Error()
		}
		s.pub.Publish(sse.Event{Type: sse.TypeScanFinished, Data: data})
	}()
	return nil
}

// Running reports whether a scan is in progress.
func (s *Scanner) Running() bool {
	return s.running.Load()
}

// Wait blocks until the current scan, if any, finishes.
func (s *Scanner) Wait() {
	s.wg.Wait()
}
