package processing

import (
	"sort"
	"strings"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	// OtherCategory is assigned to keywords that match no dictionary.
	OtherCategory = "other"

	exactMatchWeight      = 0.8
	containsWeight        = 0.4
	containedInWeight     = 0.3
	contextHitWeight      = 0.1
	maxContextBonus       = 0.5
	minCategoryConfidence = 0.3
)

// Categorizer assigns dictionary categories to keywords.
type Categorizer struct {
	keywords map[string][]string
	display  map[string]string
}

// NewCategorizer returns a Categorizer over category dictionaries. display maps a
// category key to the name shown in reports; keys without one are shown as is.
func NewCategorizer(keywords map[string][]string, display map[string]string) *Categorizer {
	return &Categorizer{keywords: keywords, display: display}
}

// Categorize scores keyword against every category using context (the text of the
// items it came from). Matches are sorted by confidence descending.
func (c *Categorizer) Categorize(keyword, context string) []models.CategoryMatch {
	kw := strings.ToLower(keyword)
	text := strings.ToLower(context)

	var out []models.CategoryMatch
	for category, words := range c.keywords {
		var conf float64
		for _, w := range words {
			if w == kw {
				conf += exactMatchWeight
				break
			}
		}
		for _, w := range words {
			if w == "" || w == kw {
				continue
			}
			if strings.Contains(kw, w) {
				conf += containsWeight
				break
			}
			if strings.Contains(w, kw) {
				conf += containedInWeight
				break
			}
		}
		if text != "" {
			hits := 0
			for _, w := range words {
				if w != "" && strings.Contains(text, w) {
					hits++
				}
			}
			conf += min(contextHitWeight*float64(hits), maxContextBonus)
		}
		if conf >= minCategoryConfidence {
			out = append(out, models.CategoryMatch{
				Category:    category,
				DisplayName: c.displayName(category),
				Confidence:  round4(min(conf, 1.0)),
			})
		}
	}

	if len(out) == 0 {
		return []models.CategoryMatch{{Category: OtherCategory, DisplayName: "Other", Confidence: 0}}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (c *Categorizer) displayName(category string) string {
	if name := c.display[category]; name != "" {
		return name
	}
	return category
}

// CategorizeTopics fills Categories on every topic, using its source items as context.
func (c *Categorizer) CategorizeTopics(topics []models.Topic, items []models.Item) {
	for i := range topics {
		topics[i].Categories = c.Categorize(topics[i].Keyword, topicContext(topics[i], items))
	}
}

func topicContext(t models.Topic, items []models.Item) string {
	parts := make([]string, 0, len(t.SourceItems))
	for _, idx := range t.SourceItems {
		if idx < 0 || idx >= len(items) {
			continue
		}
		parts = append(parts, items[idx].Title+" "+items[idx].Description)
	}
	return strings.Join(parts, " ")
}
