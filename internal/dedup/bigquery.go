package dedup

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/starford/newsletter-scanner/internal/state"
)

const (
	sentTable       = "sent_articles"
	datasetLocation = "EU"
)

const createTableSQL = "CREATE TABLE IF NOT EXISTS `%s.%s.%s` (\n" +
	"  url_hash STRING NOT NULL,\n" +
	"  url STRING,\n" +
	"  title STRING,\n" +
	"  source STRING,\n" +
	"  sent_date DATE,\n" +
	"  cluster_label STRING\n" +
	")\n" +
	"PARTITION BY sent_date\n" +
	"OPTIONS(description='Articles already delivered by the newsletter scanner')"

// BigQuery stores sent articles in {project}.{dataset}.sent_articles.
type BigQuery struct {
	client  *bigquery.Client
	project string
	dataset string
}

// Verify *BigQuery satisfies Backend at compile time.
var _ Backend = (*BigQuery)(nil)

// NewBigQuery connects to BigQuery and ensures the dataset and table exist.
func NewBigQuery(ctx context.Context, project, dataset string, opts ...option.ClientOption) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("dedup: bigquery client: %w", err)
	}
	bq := &BigQuery{client: client, project: project, dataset: dataset}
	if err := bq.ensureTable(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return bq, nil
}

func (b *BigQuery) ensureTable(ctx context.Context) error {
	ds := b.client.Dataset(b.dataset)
	if _, err := ds.Metadata(ctx); err != nil {
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || gerr.Code != http.StatusNotFound {
			return fmt.Errorf("dedup: dataset metadata: %w", err)
		}
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: datasetLocation}); err != nil {
			return fmt.Errorf("dedup: create dataset: %w", err)
		}
	}
	job, err := b.client.Query(fmt.Sprintf(createTableSQL, b.project, b.dataset, sentTable)).Run(ctx)
	if err != nil {
		return fmt.Errorf("dedup: create table: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("dedup: create table: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("dedup: create table: %w", err)
	}
	return nil
}

// SentHashes returns url hashes sent within the last days.
func (b *BigQuery) SentHashes(ctx context.Context, days int) (map[string]struct{}, error) {
	q := b.client.Query(fmt.Sprintf(
		"SELECT DISTINCT url_hash FROM `%s.%s.%s` WHERE sent_date >= DATE_SUB(CURRENT_DATE(), INTERVAL @days DAY)",
		b.project, b.dataset, sentTable))
	q.Parameters = []bigquery.QueryParameter{{Name: "days", Value: days}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("dedup: query sent: %w", err)
	}
	out := make(map[string]struct{})
	for {
		var row struct {
			URLHash string `bigquery:"url_hash"`
		}
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dedup: read sent: %w", err)
		}
		out[row.URLHash] = struct{}{}
	}
	return out, nil
}

// MarkSent streams rows into the sent table.
func (b *BigQuery) MarkSent(ctx context.Context, rows []state.SentArticle) error {
	savers := make([]*sentRow, len(rows))
	for i := range rows {
		savers[i] = &sentRow{rows[i]}
	}
	if err := b.client.Dataset(b.dataset).Table(sentTable).Inserter().Put(ctx, savers); err != nil {
		return fmt.Errorf("dedup: insert sent: %w", err)
	}
	return nil
}

// Close releases the client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

// sentRow adapts a SentArticle to bigquery.ValueSaver. The insert id is the
// hash and date so retried inserts collapse.
type sentRow struct {
	state.SentArticle
}

func (r *sentRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"url_hash":      r.URLHash,
		"url":           r.URL,
		"title":         r.Title,
		"source":        r.Source,
		"sent_date":     r.SentDate,
		"cluster_label": r.ClusterLabel,
	}, r.URLHash + "_" + r.SentDate, nil
}
