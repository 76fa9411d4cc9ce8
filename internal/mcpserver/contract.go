package mcpserver

// ReportFormat describes the exported report so LLM consumers can interpret
// get_report output without guessing.
const ReportFormat = `# Scan Report Format

A report is one JSON object with three keys.

## metadata

- ` + "`scan_date`" + `: ISO date of the scan.
- ` + "`generated_at`" + `: RFC 3339 timestamp.
- ` + "`sources_used`" + `: fetchers that returned items.
- ` + "`total_items_fetched`" + `, ` + "`topics_extracted`" + `, ` + "`clusters_found`" + `: counts.
- ` + "`processing_time_seconds`" + `: wall time of the scan.

## topics

Sorted by ` + "`trend_score`" + ` descending. Each topic carries:

- ` + "`keyword`" + `: a 1 to 3 word phrase.
- ` + "`trend_score`" + `: weighted sum of the component scores below, 0..1.
- ` + "`frequency_score`" + `: mentions relative to the most mentioned topic.
- ` + "`recency_score`" + `: exponential decay of the mean article age.
- ` + "`source_diversity_score`" + `: share of all sources that mention the keyword.
- ` + "`engagement_score`" + `: log-scaled upvotes, points or traffic.
- ` + "`mention_count`" + `, ` + "`sources`" + `, ` + "`latest_date`" + `.
- ` + "`categories`" + `: ` + "`{category, display_name, confidence}`" + `, best first. ` + "`other`" + ` means no match.

## clusters

Groups of articles sharing vocabulary.

- ` + "`label`" + `: the three strongest terms joined by commas.
- ` + "`top_terms`" + `: up to five terms.
- ` + "`item_indices`" + `, ` + "`size`" + `.
- ` + "`ai_summary`" + ` (optional): ` + "`summary`, `why_it_matters`, `article_idea`, `article_angle`" + `.
  Without an API key the summary lists the top article titles instead.
`
