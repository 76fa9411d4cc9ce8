package report

import (
	"time"

	"github.com/starford/newsletter-scanner/internal/models"
)

// Build assembles the exported report of one scan.
func Build(topics []models.Topic, clusters []models.Cluster, meta models.RunMetadata, generatedAt time.Time) models.Report {
	if topics == nil {
		topics = []models.Topic{}
	}
	if clusters == nil {
		clusters = []models.Cluster{}
	}
	return models.Report{
		Metadata: models.ReportMetadata{
			ScanDate:              meta.ScanDate,
			GeneratedAt:           generatedAt,
			SourcesUsed:           meta.SourcesUsed,
			TotalItemsFetched:     meta.TotalItems,
			TopicsExtracted:       len(topics),
			ClustersFound:         len(clusters),
			ProcessingTimeSeconds: meta.ProcessingTime,
		},
		Topics:   topics,
		Clusters: clusters,
	}
}
