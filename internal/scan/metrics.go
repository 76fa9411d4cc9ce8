package scan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_runs_total",
			Help: "Total number of scan runs",
		},
		[]string{"status"}, // status: ok, no_items, no_new_items, no_topics, failed
	)

	ItemsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_items_fetched_total",
			Help: "Items kept per source after the fetch cache filter",
		},
		[]string{"source"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_fetch_errors_total",
			Help: "Failed source fetches",
		},
		[]string{"source"},
	)

	ItemsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_items_deduplicated_total",
			Help: "Items dropped because they were already sent",
		},
	)

	TopicsExtracted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanner_topics_extracted",
			Help: "Topics extracted by the last scan",
		},
	)

	ClustersFound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanner_clusters_found",
			Help: "Clusters found by the last scan",
		},
	)

	NewslettersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_newsletters_total",
			Help: "Newsletter delivery attempts",
		},
		[]string{"status"}, // status: sent, skipped, failed
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scanner_stage_duration_seconds",
			Help:    "Duration of scan stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"stage"},
	)
)

// RecordStage observes the duration of a finished stage.
func RecordStage(stage Stage, started time.Time) {
	StageDuration.WithLabelValues(string(stage)).Observe(time.Since(started).Seconds())
}
