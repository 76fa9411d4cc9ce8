package summarizer

import (
	"fmt"
	"strings"

	"github.com/starford/newsletter-scanner/internal/models"
)

const groupTemplate = `You are an expert in digital marketing, AI and data analytics. Analyse this topic and the related articles.

TOPIC: %s
CATEGORY: %s

ARTICLES:
%s

Answer in this structured format:

SUMMARY (2-3 sentences):
What is happening in this topic right now? What is the main trend or event?

WHY IT MATTERS (1-2 sentences):
Why should a digital marketing or analytics professional care?

ARTICLE IDEA - TITLE:
Suggest a title for a LinkedIn post or article an analyst or consultant could write.

ARTICLE IDEA - ANGLE:
Which angle should it take? What exactly should it examine? (2-3 sentences)`

const introTemplate = `You are the editor of a daily newsletter about trends in digital marketing, AI and analytics.

Today %d articles were analysed from these sources: %s.

Main topics of the day:
%s

Write a short opening paragraph (3-4 sentences) for the daily newsletter. Be brief, factual and engaging. Focus on what is most interesting today and why. Do not use emoji.`

func groupPrompt(label, category string, articles []article) string {
	lines := make([]string, 0, maxPromptArticles)
	for _, a := range articles[:min(len(articles), maxPromptArticles)] {
		lines = append(lines, fmt.Sprintf("- %s (%s)", a.Title, a.Source))
	}
	return fmt.Sprintf(groupTemplate, label, category, strings.Join(lines, "\n"))
}

// Headings are matched as prefixes of the upper-cased line.
var sections = []struct {
	heading string
	field   func(*models.Summary) *string
}{
	{"ARTICLE IDEA - TITLE", func(s *models.Summary) *string { return &s.ArticleIdea }},
	{"ARTICLE IDEA - ANGLE", func(s *models.Summary) *string { return &s.ArticleAngle }},
	{"WHY IT MATTERS", func(s *models.Summary) *string { return &s.WhyItMatters }},
	{"SUMMARY", func(s *models.Summary) *string { return &s.Summary }},
}

func parseResponse(text string) models.Summary {
	var out models.Summary
	var current *string
	var lines []string

	flush := func() {
		if current != nil {
			*current = strings.TrimSpace(strings.Join(lines, "\n"))
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		matched := false
		for _, sec := range sections {
			if !strings.HasPrefix(upper, sec.heading) {
				continue
			}
			flush()
			current = sec.field(&out)
			lines = lines[:0]
			if _, after, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(after) != "" {
				lines = append(lines, strings.TrimSpace(after))
			}
			matched = true
			break
		}
		if !matched && current != nil {
			lines = append(lines, line)
		}
	}
	flush()
	return out
}
