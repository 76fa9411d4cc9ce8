package storage

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/newsletter-scanner/internal/apperr"
	"github.com/starford/newsletter-scanner/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fixedClock(day string) func() time.Time {
	t, _ := time.Parse(time.DateOnly, day)
	return func() time.Time { return t }
}

func testTopics() []models.Topic {
	latest := time.Date(2026, 10, 13, 9, 30, 0, 0, time.UTC)
	return []models.Topic{
		{
			Keyword:        "generative ai",
			TrendScore:     0.6123,
			FrequencyScore: 0.25,
			RecencyScore:   0.9,
			MentionCount:   4,
			Sources:        []string{"google_news", "reddit"},
			LatestDate:     &latest,
			Categories: []models.CategoryMatch{
				{Category: "ai_ml", DisplayName: "AI & ML", Confidence: 1},
				{Category: "marketing_digital", DisplayName: "Marketing", Confidence: 0.4},
			},
		},
		{Keyword: "ga4", TrendScore: 0.3},
	}
}

func TestStore_SaveRawPath(t *testing.T) {
	fs := tempStore(t)
	s := NewStore(fs, quietLogger()).WithClock(fixedClock("2026-10-14"))

	p, err := s.SaveRaw([]models.Item{{Title: "a", Source: "reddit"}}, "reddit")
	if err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}
	if !strings.HasSuffix(p, "raw/2026-10-14_reddit.json") {
		t.Errorf("path = %q", p)
	}
}

func TestStore_LoadLatestProcessedPicksNewest(t *testing.T) {
	fs := tempStore(t)
	s := NewStore(fs, quietLogger())

	s.WithClock(fixedClock("2026-10-01"))
	if _, err := s.SaveProcessed([]models.Topic{{Keyword: "old"}}); err != nil {
		t.Fatal(err)
	}
	s.WithClock(fixedClock("2026-10-12"))
	if _, err := s.SaveProcessed([]models.Topic{{Keyword: "new"}}); err != nil {
		t.Fatal(err)
	}

	topics, p, err := s.LoadLatestProcessed()
	if err != nil {
		t.Fatalf("LoadLatestProcessed: %v", err)
	}
	if len(topics) != 1 || topics[0].Keyword != "new" {
		t.Errorf("topics = %+v", topics)
	}
	if !strings.HasSuffix(p, "2026-10-12_topics.json") {
		t.Errorf("path = %q", p)
	}
}

func TestStore_LoadLatestProcessedNoData(t *testing.T) {
	s := NewStore(tempStore(t), quietLogger())
	_, _, err := s.LoadLatestProcessed()
	if !errors.Is(err, apperr.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestStore_ReportCSV(t *testing.T) {
	fs := tempStore(t)
	s := NewStore(fs, quietLogger()).WithClock(fixedClock("2026-10-14"))

	p, err := s.SaveReportCSV(testTopics())
	if err != nil {
		t.Fatalf("SaveReportCSV: %v", err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(CSVHeader, ",") {
		t.Errorf("header = %v", rows[0])
	}
	first := rows[1]
	if first[0] != "generative ai" || first[1] != "AI & ML, Marketing" {
		t.Errorf("row = %v", first)
	}
	if first[2] != "0.6123" || first[5] != "4" || first[6] != "google_news, reddit" {
		t.Errorf("row = %v", first)
	}
	if first[7] != "2026-10-13T09:30:00Z" {
		t.Errorf("latest_date = %q", first[7])
	}
	if rows[2][7] != "" {
		t.Errorf("missing latest_date should be empty, got %q", rows[2][7])
	}
}

func TestStore_ReportJSONRoundTrip(t *testing.T) {
	s := NewStore(tempStore(t), quietLogger()).WithClock(fixedClock("2026-10-14"))

	want := models.Report{
		Metadata: models.ReportMetadata{ScanDate: "2026-10-14", TopicsExtracted: 2, SourcesUsed: []string{"reddit"}},
		Topics:   testTopics(),
		Clusters: []models.Cluster{{ID: 0, Label: "ai, marketing, tools", Size: 3}},
	}
	if _, err := s.SaveReportJSON(want); err != nil {
		t.Fatalf("SaveReportJSON: %v", err)
	}
	got, _, err := s.LoadLatestReport()
	if err != nil {
		t.Fatalf("LoadLatestReport: %v", err)
	}
	if got.Metadata.ScanDate != "2026-10-14" || len(got.Topics) != 2 || len(got.Clusters) != 1 {
		t.Errorf("report = %+v", got.Metadata)
	}
}
