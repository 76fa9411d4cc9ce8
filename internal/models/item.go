// Package models defines the domain types shared by the scanner pipeline.
package models

import "time"

// Item is a single article, post or query fetched from any source.
type Item struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	URL          string     `json:"url"`
	Source       string     `json:"source"`        // fetcher name, e.g. "reddit"
	SourceDetail string     `json:"source_detail"` // subreddit, query, feed title
	Published    *time.Time `json:"published"`
	Score        int        `json:"score"` // upvotes, points, traffic
	Tags         []string   `json:"tags"`
}

// CategoryMatch is one category assignment with its confidence.
type CategoryMatch struct {
	Category    string  `json:"category"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"`
}

// Topic is an extracted keyword enriched by categorization and scoring.
type Topic struct {
	Keyword     string  `json:"keyword"`
	Score       float64 `json:"score"` // aggregated TF-IDF weight
	Count       int     `json:"count"` // number of documents containing the keyword
	SourceItems []int   `json:"source_items"`

	Categories []CategoryMatch `json:"categories"`

	TrendScore           float64    `json:"trend_score"`
	FrequencyScore       float64    `json:"frequency_score"`
	RecencyScore         float64    `json:"recency_score"`
	SourceDiversityScore float64    `json:"source_diversity_score"`
	EngagementScore      float64    `json:"engagement_score"`
	MentionCount         int        `json:"mention_count"`
	Sources              []string   `json:"sources"`
	LatestDate           *time.Time `json:"latest_date"`
}

// PrimaryCategory returns the highest-confidence category, or nil.
func (t Topic) PrimaryCategory() *CategoryMatch {
	if len(t.Categories) == 0 {
		return nil
	}
	return &t.Categories[0]
}

// Summary is the AI-generated (or fallback) description of a cluster.
type Summary struct {
	Summary      string   `json:"summary"`
	WhyItMatters string   `json:"why_it_matters"`
	ArticleIdea  string   `json:"article_idea"`
	ArticleAngle string   `json:"article_angle"`
	TopArticles  []string `json:"top_articles,omitempty"`
}

// Cluster groups items that share vocabulary.
type Cluster struct {
	ID          int      `json:"cluster_id"`
	Label       string   `json:"label"`
	TopTerms    []string `json:"top_terms"`
	ItemIndices []int    `json:"item_indices"`
	Size        int      `json:"size"`
	Summary     *Summary `json:"ai_summary,omitempty"`
}

// RunMetadata describes a single scan run.
type RunMetadata struct {
	RunID          string   `json:"run_id,omitempty"`
	ScanDate       string   `json:"scan_date"`
	SourcesUsed    []string `json:"sources_used"`
	TotalItems     int      `json:"total_items"`
	ProcessingTime float64  `json:"processing_time"`
}

// ReportMetadata summarises a scan in an exported report.
type ReportMetadata struct {
	ScanDate              string    `json:"scan_date"`
	GeneratedAt           time.Time `json:"generated_at"`
	SourcesUsed           []string  `json:"sources_used"`
	TotalItemsFetched     int       `json:"total_items_fetched"`
	TopicsExtracted       int       `json:"topics_extracted"`
	ClustersFound         int       `json:"clusters_found"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
}

// Report is the exported result of one scan.
type Report struct {
	Metadata ReportMetadata `json:"metadata"`
	Topics   []Topic        `json:"topics"`
	Clusters []Cluster      `json:"clusters"`
}
