package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/starford/newsletter-scanner/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTopics() []models.Topic {
	return []models.Topic{
		{
			Keyword: "generative ai", TrendScore: 0.71, MentionCount: 4, Sources: []string{"hackernews", "reddit"},
			Categories: []models.CategoryMatch{{Category: "ai_ml", DisplayName: "AI & ML", Confidence: 0.8}},
		},
		{
			Keyword: "seo", TrendScore: 0.4, MentionCount: 2, Sources: []string{"google_news"},
			Categories: []models.CategoryMatch{{Category: "marketing", DisplayName: "Marketing", Confidence: 0.8}},
		},
		{Keyword: "weather", TrendScore: 0.1, MentionCount: 1},
	}
}

func testMeta() models.RunMetadata {
	return models.RunMetadata{ScanDate: "2026-01-02", SourcesUsed: []string{"reddit", "hackernews"}, TotalItems: 42, ProcessingTime: 1.5}
}

func TestConsole_Print(t *testing.T) {
	var buf bytes.Buffer
	clusters := []models.Cluster{{Label: "ai, llm, agents", Size: 7, TopTerms: []string{"ai", "llm"}}}
	NewConsole(&buf, 2, true).Print(testTopics(), clusters, testMeta())
	out := buf.String()

	for _, want := range []string{"SCAN REPORT", "Total items: 42 | Topics extracted: 3", "generative ai", "0.710",
		"AI & ML", "hackernews, reddit", "Topics by Category", "ai, llm, agents"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "weather") {
		t.Error("top-n limit not applied")
	}
}

func TestGroupByCategory(t *testing.T) {
	topics := testTopics()
	topics = append(topics, models.Topic{Keyword: "llm", Categories: topics[0].Categories})
	groups := groupByCategory(topics)
	if len(groups) != 2 || groups[0].key != "ai_ml" || len(groups[0].keywords) != 2 {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	r := Build(testTopics(), nil, testMeta(), now)
	if r.Metadata.TopicsExtracted != 3 || r.Metadata.ClustersFound != 0 || r.Metadata.TotalItemsFetched != 42 {
		t.Fatalf("metadata = %+v", r.Metadata)
	}
	if r.Clusters == nil || !r.Metadata.GeneratedAt.Equal(now) {
		t.Fatal("clusters must be an empty slice and generated_at set")
	}
}

func newsletterInput() ([]models.Cluster, []models.Item) {
	items := []models.Item{
		{Title: "LLM agents <ship>", URL: "https://example.com/a", Source: "reddit",
			Description: "<p>" + strings.Repeat("x", 200) + "</p>"},
		{Title: "No URL here", Source: "hackernews"},
		{Title: "Second story", URL: "https://example.com/b", Source: "hackernews", Description: "Fish &amp; chips"},
	}
	clusters := []models.Cluster{{
		Label: "llm agents", Size: 3, TopTerms: []string{"llm", "agents"}, ItemIndices: []int{0, 1, 2},
		Summary: &models.Summary{Summary: "Agents are everywhere.", ArticleIdea: "Agents 101"},
	}}
	return clusters, items
}

func TestBuildNewsletter(t *testing.T) {
	clusters, items := newsletterInput()
	n, err := BuildNewsletter(clusters, items, testMeta(), "Hello & welcome")
	if err != nil {
		t.Fatalf("BuildNewsletter: %v", err)
	}
	if n.Subject != "Trending Topics 2026-01-02 – Marketing, AI & Analytics" {
		t.Errorf("subject = %q", n.Subject)
	}
	for _, want := range []string{"Llm Agents", "LLM agents &lt;ship&gt;", "Hello &amp; welcome",
		"Agents are everywhere.", "Agents 101", "#7c3aed", "Fish &amp; chips", strings.Repeat("x", 150)} {
		if !strings.Contains(n.HTML, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(n.HTML, strings.Repeat("x", 151)) || strings.Contains(n.HTML, "No URL here") {
		t.Error("html should truncate descriptions and skip items without URL")
	}
	for _, want := range []string{"1. LLM AGENTS", "   - No URL here", "     https://example.com/b", "Article idea: Agents 101"} {
		if !strings.Contains(n.Text, want) {
			t.Errorf("text missing %q:\n%s", want, n.Text)
		}
	}
}

func TestBuildNewsletter_SectionLimit(t *testing.T) {
	var clusters []models.Cluster
	for i := 0; i < 15; i++ {
		clusters = append(clusters, models.Cluster{Label: "topic", Size: 1})
	}
	n, err := BuildNewsletter(clusters, nil, testMeta(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(n.Text, "TOPIC\n"); got != maxSections {
		t.Fatalf("sections = %d, want %d", got, maxSections)
	}
}

type fakeSender struct {
	sent []Newsletter
	err  error
}

func (f *fakeSender) Send(_ context.Context, n Newsletter) error {
	f.sent = append(f.sent, n)
	return f.err
}

func TestEmailer_Send(t *testing.T) {
	clusters, items := newsletterInput()
	full := EmailSettings{Enabled: true, Sender: "me@example.com", Password: "pw", Recipients: []string{"you@example.com"}}

	tests := []struct {
		name     string
		settings EmailSettings
		err      error
		want     bool
		wantErr  bool
	}{
		{"disabled", EmailSettings{Sender: "me@example.com", Password: "pw", Recipients: []string{"a@b.c"}}, nil, false, false},
		{"missing password", EmailSettings{Enabled: true, Sender: "me@example.com", Recipients: []string{"a@b.c"}}, nil, false, false},
		{"sent", full, nil, true, false},
		{"smtp failure", full, errors.New("refused"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSender{err: tt.err}
			got, err := NewEmailer(tt.settings, fake, quietLogger()).Send(context.Background(), clusters, items, testMeta(), "")
			if got != tt.want || (err != nil) != tt.wantErr {
				t.Fatalf("Send = %v, %v; want %v, err %v", got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestSMTPSender_InvalidSender(t *testing.T) {
	s := &SMTPSender{settings: EmailSettings{Sender: "not an address", Recipients: []string{"you@example.com"}}}
	if _, err := s.message(Newsletter{Subject: "x"}); err == nil {
		t.Fatal("expected invalid from address error")
	}
}
