package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/newsletter-scanner/internal/apperr"
	"github.com/starford/newsletter-scanner/internal/models"
)

// Data directory layout.
const (
	RawDir       = "raw"
	ProcessedDir = "processed"
	ReportsDir   = "reports"

	topicsSuffix     = "_topics.json"
	reportJSONSuffix = "_report.json"
	reportCSVSuffix  = "_report.csv"
)

// CSVHeader lists the report CSV columns in order.
var CSVHeader = []string{
	"keyword", "category", "trend_score", "frequency_score",
	"recency_score", "mention_count", "sources", "latest_date",
}

// Store writes date-prefixed scan output into the raw, processed and reports directories.
type Store struct {
	fs     Provider
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a Store over p.
func NewStore(p Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: p, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for file date prefixes.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) today() string {
	return s.now().Format(time.DateOnly)
}

// SaveRaw stores one source's items as raw/{date}_{source}.json.
func (s *Store) SaveRaw(items []models.Item, source string) (string, error) {
	if items == nil {
		items = []models.Item{}
	}
	p := path.Join(RawDir, fmt.Sprintf("%s_%s.json", s.today(), source))
	if err := s.writeJSON(p, items); err != nil {
		return "", err
	}
	s.logger.Info("raw items saved", slog.String("path", p), slog.Int("items", len(items)))
	return s.fs.Abs(p)
}

// SaveProcessed stores scored topics as processed/{date}_topics.json.
func (s *Store) SaveProcessed(topics []models.Topic) (string, error) {
	p := path.Join(ProcessedDir, s.today()+topicsSuffix)
	if err := s.writeJSON(p, topics); err != nil {
		return "", err
	}
	s.logger.Info("topics saved", slog.String("path", p), slog.Int("topics", len(topics)))
	return s.fs.Abs(p)
}

// SaveReportJSON stores the full report as reports/{date}_report.json.
func (s *Store) SaveReportJSON(r models.Report) (string, error) {
	p := path.Join(ReportsDir, s.today()+reportJSONSuffix)
	if err := s.writeJSON(p, r); err != nil {
		return "", err
	}
	s.logger.Info("json report saved", slog.String("path", p))
	return s.fs.Abs(p)
}

// SaveReportCSV stores one row per topic as reports/{date}_report.csv.
func (s *Store) SaveReportCSV(topics []models.Topic) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return "", fmt.Errorf("storage: csv header: %w", err)
	}
	for _, t := range topics {
		if err := w.Write(csvRow(t)); err != nil {
			return "", fmt.Errorf("storage: csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("storage: csv flush: %w", err)
	}

	p := path.Join(ReportsDir, s.today()+reportCSVSuffix)
	if err := s.fs.Write(p, buf.Bytes()); err != nil {
		return "", err
	}
	s.logger.Info("csv report saved", slog.String("path", p), slog.Int("rows", len(topics)))
	return s.fs.Abs(p)
}

func csvRow(t models.Topic) []string {
	names := make([]string, 0, len(t.Categories))
	for _, c := range t.Categories {
		name := c.DisplayName
		if name == "" {
			name = c.Category
		}
		names = append(names, name)
	}
	latest := ""
	if t.LatestDate != nil {
		latest = t.LatestDate.Format(time.RFC3339)
	}
	return []string{
		t.Keyword,
		strings.Join(names, ", "),
		formatFloat(t.TrendScore),
		formatFloat(t.FrequencyScore),
		formatFloat(t.RecencyScore),
		strconv.Itoa(t.MentionCount),
		strings.Join(t.Sources, ", "),
		latest,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LoadLatestProcessed returns the topics from the newest processed file and its path.
// It returns apperr.ErrNoData when no scan has been processed yet.
func (s *Store) LoadLatestProcessed() ([]models.Topic, string, error) {
	var topics []models.Topic
	p, err := s.loadLatest(ProcessedDir, topicsSuffix, &topics)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("processed topics loaded", slog.String("path", p), slog.Int("topics", len(topics)))
	return topics, p, nil
}

// LoadLatestReport returns the newest exported JSON report.
func (s *Store) LoadLatestReport() (*models.Report, string, error) {
	var r models.Report
	p, err := s.loadLatest(ReportsDir, reportJSONSuffix, &r)
	if err != nil {
		return nil, "", err
	}
	return &r, p, nil
}

// loadLatest decodes the lexicographically greatest file in dir with the suffix.
// Date prefixes make that the most recent one.
func (s *Store) loadLatest(dir, suffix string, v any) (string, error) {
	files, err := s.fs.List(dir, suffix)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("storage: no %s files in %s: %w", suffix, dir, apperr.ErrNoData)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path > files[j].Path })

	data, err := s.fs.Read(files[0].Path)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return "", fmt.Errorf("storage: decode %s: %w", files[0].Path, err)
	}
	return s.fs.Abs(files[0].Path)
}

func (s *Store) writeJSON(p string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("storage: encode %s: %w", p, err)
	}
	return s.fs.Write(p, buf.Bytes())
}
