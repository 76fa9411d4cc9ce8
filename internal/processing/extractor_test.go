package processing

import (
	"io"
	"log/slog"
	"math"
	"slices"
	"testing"

	"github.com/starford/newsletter-scanner/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractor_TopKeywords(t *testing.T) {
	items := []models.Item{
		{Title: "Marketing automation trends"},
		{Title: "Marketing automation tools"},
		{Title: "Cloud analytics platform"},
		{Title: "", Description: ""},
	}
	topics, err := NewExtractor(1, 1, 2, 5, quietLogger()).Extract(items)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2: %+v", len(topics), topics)
	}
	first := topics[0]
	if first.Keyword != "automation" || first.Count != 2 {
		t.Errorf("first = %+v, want automation with count 2", first)
	}
	// Two L2-normalised rows split evenly between two terms: 2 * 1/sqrt(2).
	if math.Abs(first.Score-math.Sqrt2) > 1e-12 {
		t.Errorf("score = %v, want unrounded sqrt(2)", first.Score)
	}
	if !slices.Equal(first.SourceItems, []int{0, 1}) {
		t.Errorf("source items = %v, want [0 1]", first.SourceItems)
	}
	if topics[1].Keyword != "marketing" {
		t.Errorf("second keyword = %q, want marketing", topics[1].Keyword)
	}
}

func TestExtractor_TooFewDocuments(t *testing.T) {
	e := NewExtractor(1, 2, 1, 5, quietLogger())
	for _, items := range [][]models.Item{nil, {{Title: "only one document"}}} {
		topics, err := e.Extract(items)
		if err != nil || topics != nil {
			t.Errorf("Extract(%d items) = %v, %v; want nil, nil", len(items), topics, err)
		}
	}
}

func TestExtractor_TopNLimit(t *testing.T) {
	items := []models.Item{
		{Title: "alpha beta gamma delta"},
		{Title: "alpha beta gamma delta"},
		{Title: "unrelated words here"},
	}
	topics, err := NewExtractor(1, 1, 2, 2, quietLogger()).Extract(items)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}
}
