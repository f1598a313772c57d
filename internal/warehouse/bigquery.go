package warehouse

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/example/devinsights/internal/apperr"
)

// BigQueryConfig identifies the project, credentials and datasets to query.
type BigQueryConfig struct {
	ProjectID       string
	CredentialsFile string
	Datasets        Datasets
}

// BigQuery is the Gateway backed by Google BigQuery.
type BigQuery struct {
	client    *bigquery.Client
	projectID string
	datasets  Datasets
	logger    *zap.Logger
}

var _ Gateway = (*BigQuery)(nil)

// NewBigQuery opens a BigQuery client for cfg.
func NewBigQuery(ctx context.Context, cfg BigQueryConfig, logger *zap.Logger) (*BigQuery, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("bigquery project id is required")
	}
	if err := cfg.Datasets.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		logger.Error("failed to create bigquery client", zap.Error(err), zap.String("project", cfg.ProjectID))
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}

	return &BigQuery{
		client:    client,
		projectID: cfg.ProjectID,
		datasets:  cfg.Datasets,
		logger:    logger.Named("warehouse"),
	}, nil
}

// TablePath implements Gateway.
func (b *BigQuery) TablePath(dataset Dataset, table string) string {
	return qualify(b.projectID, b.datasets[dataset], table)
}

// Query implements Gateway. The raw BigQuery error is logged and never returned verbatim to clients.
func (b *BigQuery) Query(ctx context.Context, name, query string, params Params) ([]Row, error) {
	q := b.client.Query(query)
	q.Parameters = toParameters(params)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, b.fail(name, err)
	}

	rows := make([]Row, 0, int(it.TotalRows))
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, b.fail(name, err)
		}
		row := make(Row, len(values))
		for column, value := range values {
			row[column] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Ping runs a trivial query to prove the warehouse answers.
func (b *BigQuery) Ping(ctx context.Context) error {
	rows, err := b.Query(ctx, "ping", "SELECT 1 AS ok", nil)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New("ping returned no rows")
	}
	return nil
}

// ListDatasets returns the dataset ids visible in the configured project.
func (b *BigQuery) ListDatasets(ctx context.Context) ([]string, error) {
	var ids []string
	it := b.client.Datasets(ctx)
	for {
		ds, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, b.fail("list_datasets", err)
		}
		ids = append(ids, ds.DatasetID)
	}
	return ids, nil
}

// Close releases the underlying client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

func (b *BigQuery) fail(name string, err error) error {
	op := fmt.Sprintf("warehouse.%s", name)
	b.logger.Error("bigquery query failed", zap.String("query", name), zap.Error(err))
	return apperr.Upstream(op, err)
}

// toParameters binds params by name in a stable order.
func toParameters(params Params) []bigquery.QueryParameter {
	if len(params) == 0 {
		return nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]bigquery.QueryParameter, 0, len(names))
	for _, name := range names {
		out = append(out, bigquery.QueryParameter{Name: name, Value: params[name]})
	}
	return out
}
