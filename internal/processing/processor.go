package processing

import (
	"fmt"

	"github.com/starford/newsletter-scanner/internal/models"
)

// Processor runs extraction, categorization, scoring and clustering over one batch.
type Processor struct {
	Extractor   *Extractor
	Categorizer *Categorizer
	Scorer      *Scorer
	Clusterer   *Clusterer
}

// Result is the output of Process.
type Result struct {
	Topics   []models.Topic
	Clusters []models.Cluster
}

// Process turns items into scored topics sorted by trend score, plus clusters.
func (p *Processor) Process(items []models.Item) (Result, error) {
	topics, err := p.Extractor.Extract(items)
	if err != nil {
		return Result{}, err
	}
	p.Categorizer.CategorizeTopics(topics, items)
	p.Scorer.ScoreAll(topics, items)

	var clusters []models.Cluster
	if p.Clusterer != nil {
		clusters, err = p.Clusterer.Cluster(items)
		if err != nil {
			return Result{}, fmt.Errorf("processing: %w", err)
		}
	}
	return Result{Topics: topics, Clusters: clusters}, nil
}
