package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/newsletter-scanner/internal/apperr"
	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/scan"
	"github.com/starford/newsletter-scanner/internal/state"
)

const (
	defaultTopicLimit = 15
	maxTopicLimit     = 500
	defaultDays       = 7
)

// Reports reads stored scan output.
type Reports interface {
	LoadLatestReport() (*models.Report, string, error)
	LoadLatestProcessed() ([]models.Topic, string, error)
}

// History reads run history.
type History interface {
	RunsCount(ctx context.Context) (int, error)
	Trending(ctx context.Context, days int) ([]state.TrendingTopic, error)
	NewTopics(ctx context.Context, days int) ([]state.NewTopic, error)
}

// Handler holds API route handlers.
type Handler struct {
	reports Reports
	history History
	scanner *Scanner
}

// NewHandler creates a new Handler. scanner may be nil, which disables POST /scan.
func NewHandler(reports Reports, history History, scanner *Scanner) *Handler {
	return &Handler{reports: reports, history: history, scanner: scanner}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// LatestReport handles GET /api/reports/latest.
func (h *Handler) LatestReport(w http.ResponseWriter, _ *http.Request) {
	report, file, err := h.reports.LoadLatestReport()
	if err != nil {
		if errors.Is(err, apperr.ErrNoData) {
			writeJSON(w, http.StatusNotFound, errorBody("no report yet, run a scan first"))
			return
		}
		slog.Error("load report failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("X-Report-File", file)
	writeJSON(w, http.StatusOK, report)
}

// Topics handles GET /api/topics?limit=.
func (h *Handler) Topics(w http.ResponseWriter, r *http.Request) {
	limit := min(queryInt(r, "limit", defaultTopicLimit), maxTopicLimit)
	topics, file, err := h.reports.LoadLatestProcessed()
	if err != nil {
		if errors.Is(err, apperr.ErrNoData) {
			writeJSON(w, http.StatusNotFound, errorBody("no processed data yet, run a scan first"))
			return
		}
		slog.Error("load topics failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file":   file,
		"total":  len(topics),
		"topics": topics[:min(limit, len(topics))],
	})
}

// Trending handles GET /api/history/trending?days=.
func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultDays)
	runs, err := h.history.RunsCount(r.Context())
	if err != nil {
		slog.Error("count runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	topics, err := h.history.Trending(r.Context(), days)
	if err != nil {
		slog.Error("trending failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if topics == nil {
		topics = []state.TrendingTopic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "runs": runs, "topics": topics})
}

// NewTopics handles GET /api/history/new?days=.
func (h *Handler) NewTopics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultDays)
	topics, err := h.history.NewTopics(r.Context(), days)
	if err != nil {
		slog.Error("new topics failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if topics == nil {
		topics = []state.NewTopic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "topics": topics})
}

// ScanRequest is the optional body of POST /api/scan.
type ScanRequest struct {
	Sources []string `json:"sources"`
	Email   bool     `json:"email"`
}

// StartScan handles POST /api/scan. The scan runs in the background; progress
// and completion are published on /api/events.
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("scanning is not available"))
		return
	}
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.scanner.Start(scan.Options{Sources: req.Sources, Email: req.Email}); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			writeJSON(w, http.StatusConflict, errorBody("a scan is already running"))
			return
		}
		slog.Error("start scan failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
