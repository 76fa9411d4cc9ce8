// Package summarizer writes short editorial summaries of topic clusters with Claude.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	maxPromptArticles = 15
	maxDescription    = 200
	maxIntroClusters  = 10
	introMaxTokens    = 300
	fallbackTitles    = 5
)

// Completer sends a single-turn prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Summarizer generates cluster summaries and the newsletter intro.
// A nil Completer disables model calls.
type Summarizer struct {
	client    Completer
	enabled   bool
	maxTokens int
	logger    *slog.Logger
}

// New returns a Summarizer.
func New(client Completer, enabled bool, maxTokens int, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{client: client, enabled: enabled, maxTokens: maxTokens, logger: logger}
}

// Active reports whether model calls will be made.
func (s *Summarizer) Active() bool {
	return s.enabled && s.client != nil
}

type article struct {
	Title       string
	URL         string
	Source      string
	Description string
}

// SummarizeGroup summarises one topic. On API failure, or without a client, it
// returns a fallback listing the article count and top titles.
func (s *Summarizer) SummarizeGroup(ctx context.Context, label, category string, articles []article) models.Summary {
	if s.client == nil {
		return fallback(label, articles)
	}
	text, err := s.client.Complete(ctx, groupPrompt(label, category, articles), s.maxTokens)
	if err != nil {
		s.logger.Warn("cluster summary failed", slog.String("label", label), slog.String("error", err.Error()))
		return fallback(label, articles)
	}
	return parseResponse(text)
}

// SummarizeClusters sets Summary on every cluster. categories maps an item index
// to the categories of the topics it contributed to.
func (s *Summarizer) SummarizeClusters(ctx context.Context, clusters []models.Cluster, items []models.Item, categories map[int][]models.CategoryMatch) {
	if !s.enabled {
		s.logger.Info("ai summaries disabled")
		return
	}
	if s.client == nil {
		s.logger.Warn("ai summaries enabled but no api key configured")
		return
	}
	for i := range clusters {
		c := &clusters[i]
		var articles []article
		names := make(map[string]struct{})
		for _, idx := range c.ItemIndices {
			if idx < 0 || idx >= len(items) {
				continue
			}
			it := items[idx]
			articles = append(articles, article{
				Title:       it.Title,
				URL:         it.URL,
				Source:      it.Source,
				Description: truncate(it.Description, maxDescription),
			})
			for _, cat := range categories[idx] {
				names[cat.DisplayName] = struct{}{}
			}
		}
		sum := s.SummarizeGroup(ctx, c.Label, joinSorted(names), articles)
		c.Summary = &sum
		s.logger.Debug("cluster summarised", slog.String("label", c.Label))
	}
	s.logger.Info("ai summaries done", slog.Int("clusters", len(clusters)))
}

// Intro writes the opening paragraph of the newsletter. It returns "" without a
// client or on failure.
func (s *Summarizer) Intro(ctx context.Context, clusters []models.Cluster, totalItems int, sources []string) string {
	if s.client == nil {
		return ""
	}
	labels := make([]string, 0, maxIntroClusters)
	for _, c := range clusters[:min(len(clusters), maxIntroClusters)] {
		labels = append(labels, "- "+c.Label)
	}
	prompt := fmt.Sprintf(introTemplate, totalItems, strings.Join(sources, ", "), strings.Join(labels, "\n"))
	text, err := s.client.Complete(ctx, prompt, introMaxTokens)
	if err != nil {
		s.logger.Warn("newsletter intro failed", slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(text)
}

// CategoriesByItem maps each item index to the categories of the first (highest
// ranked) topic citing it.
func CategoriesByItem(topics []models.Topic) map[int][]models.CategoryMatch {
	out := make(map[int][]models.CategoryMatch)
	for _, t := range topics {
		for _, idx := range t.SourceItems {
			if _, ok := out[idx]; !ok {
				out[idx] = t.Categories
			}
		}
	}
	return out
}

func fallback(label string, articles []article) models.Summary {
	titles := make([]string, 0, fallbackTitles)
	for _, a := range articles[:min(len(articles), fallbackTitles)] {
		titles = append(titles, a.Title)
	}
	return models.Summary{
		Summary:     fmt.Sprintf("Topic '%s' – %d related articles.", label, len(articles)),
		TopArticles: titles,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func joinSorted(set map[string]struct{}) string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// Enabled reports whether summaries are switched on in config.
func (s *Summarizer) Enabled() bool {
	return s.enabled
}
