package processing

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	extractorMaxFeatures = 5000
	extractorMaxDF       = 0.8
)

// Extractor pulls the highest-weighted TF-IDF keywords out of a batch of items.
type Extractor struct {
	ngramMin, ngramMax int
	minDF              int
	topN               int
	logger             *slog.Logger
}

// NewExtractor returns an Extractor for n-grams in [ngramMin, ngramMax].
func NewExtractor(ngramMin, ngramMax, minDF, topN int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ngramMin: ngramMin, ngramMax: ngramMax, minDF: minDF, topN: topN, logger: logger}
}

// Extract returns at most topN topics with Keyword, Score, Count and SourceItems set.
// SourceItems index into items.
func (e *Extractor) Extract(items []models.Item) ([]models.Topic, error) {
	var docs []string
	var origin []int
	for i, it := range items {
		doc := CleanText(strings.TrimSpace(it.Title + " " + it.Description))
		if doc == "" {
			continue
		}
		docs = append(docs, doc)
		origin = append(origin, i)
	}
	if len(docs) < 2 {
		e.logger.Warn("not enough documents for keyword extraction", slog.Int("documents", len(docs)))
		return nil, nil
	}

	v := vectorizer{
		ngramMin:    e.ngramMin,
		ngramMax:    e.ngramMax,
		minDF:       e.minDF,
		maxDF:       extractorMaxDF,
		maxFeatures: extractorMaxFeatures,
	}
	m, err := v.fitTransform(docs)
	if errors.Is(err, errNoTerms) {
		e.logger.Warn("no keywords survived document frequency pruning", slog.Int("documents", len(docs)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("processing: extract: %w", err)
	}

	sums := make([]float64, len(m.terms))
	sources := make([][]int, len(m.terms))
	for r, row := range m.rows {
		for k, j := range row.idx {
			if row.val[k] == 0 {
				continue
			}
			sums[j] += row.val[k]
			sources[j] = append(sources[j], origin[r])
		}
	}

	order := make([]int, len(m.terms))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if sums[order[a]] != sums[order[b]] {
			return sums[order[a]] > sums[order[b]]
		}
		return m.terms[order[a]] < m.terms[order[b]]
	})

	var topics []models.Topic
	for _, j := range order {
		if len(topics) == e.topN || sums[j] <= 0 {
			break
		}
		topics = append(topics, models.Topic{
			Keyword:     m.terms[j],
			Score:       sums[j],
			Count:       len(sources[j]),
			SourceItems: sources[j],
		})
	}
	e.logger.Debug("keywords extracted", slog.Int("documents", len(docs)), slog.Int("topics", len(topics)))
	return topics, nil
}
