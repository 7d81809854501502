package bigquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/aardg/massabalans/pkg/config"
	"github.com/aardg/massabalans/pkg/logger"
	"google.golang.org/api/googleapi"
)

const (
	metadataCheckTimeout = 10 * time.Second
)

type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	cfg       config.BigQueryConfig
	logg      *logger.Logger
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

type Pinger interface {
	Ping(context.Context) error
}

// LoadOptions controls a newline-delimited JSON load job.
type LoadOptions struct {
	Schema bigquery.Schema
	// Truncate replaces the table contents; otherwise rows are appended.
	Truncate bool
}

// NewClient creates a BigQuery client and verifies the configured dataset.
// Tables are not checked because load jobs create them on demand.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}

	opts := gcp.ClientOptions()
	bqClient, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	if loc := strings.TrimSpace(cfg.Location); loc != "" {
		bqClient.Location = loc
	}

	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		cfg:       cfg,
		logg:      logg,
	}

	if err := client.ensureDataset(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", datasetID), "bigquery client initialized")
	}

	return client, nil
}

func (c *Client) ensureDataset(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}
	return nil
}

// Ping verifies the dataset is accessible.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.ensureDataset(ctx)
}

// ProjectID returns the project the client bills against.
func (c *Client) ProjectID() string {
	if c == nil {
		return ""
	}
	return c.projectID
}

// DatasetID returns the configured dataset.
func (c *Client) DatasetID() string {
	if c == nil || c.dataset == nil {
		return ""
	}
	return c.dataset.DatasetID
}

// TableRef renders a fully-qualified, backtick-quoted table reference for SQL.
func (c *Client) TableRef(table string) string {
	return QualifiedTable(c.ProjectID(), c.DatasetID(), table)
}

// QualifiedTable renders `project.dataset.table`.
func QualifiedTable(project, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, strings.TrimSpace(table))
}

// CreateTable creates an empty table that BigQuery deletes after ttl.
func (c *Client) CreateTable(ctx context.Context, table string, schema bigquery.Schema, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	name := strings.TrimSpace(table)
	if name == "" {
		return errTableNameRequired
	}
	meta := &bigquery.TableMetadata{Schema: schema}
	if ttl > 0 {
		meta.ExpirationTime = time.Now().Add(ttl)
	}
	if err := c.dataset.Table(name).Create(ctx, meta); err != nil {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	return nil
}

// LoadNDJSON runs a load job from newline-delimited JSON and waits for it.
func (c *Client) LoadNDJSON(ctx context.Context, table string, data io.Reader, opts LoadOptions) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	name := strings.TrimSpace(table)
	if name == "" {
		return errTableNameRequired
	}

	src := bigquery.NewReaderSource(data)
	src.SourceFormat = bigquery.JSON
	src.Schema = opts.Schema

	loader := c.dataset.Table(name).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteAppend
	if opts.Truncate {
		loader.WriteDisposition = bigquery.WriteTruncate
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("starting load into %q: %w", name, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for load into %q: %w", name, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load into %q: %w", name, err)
	}
	return nil
}

// Exec runs a DML statement as a job and returns the number of affected rows.
func (c *Client) Exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	if c == nil || c.client == nil {
		return 0, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return 0, errors.New("sql statement is required")
	}

	q := c.client.Query(sql)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("starting query job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for query job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("query job %s: %w", job.ID(), err)
	}

	var affected int64
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && stats != nil {
			affected = stats.NumDMLAffectedRows
		}
	}
	return affected, nil
}

// DeleteTable removes a table; a missing table is not an error.
func (c *Client) DeleteTable(ctx context.Context, table string) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	name := strings.TrimSpace(table)
	if name == "" {
		return errTableNameRequired
	}
	if err := c.dataset.Table(name).Delete(ctx); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting table %q: %w", name, err)
	}
	return nil
}

// InsertRows streams rows into the given table in the configured dataset.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	if strings.TrimSpace(table) == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}

	inserter := c.dataset.Table(strings.TrimSpace(table)).Inserter()
	return inserter.Put(ctx, rows)
}

// Query executes SQL against BigQuery and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}

// IsNotFound reports whether err is a BigQuery 404.
func IsNotFound(err error) bool {
	return isNotFound(err)
}

// IsAlreadyExists reports whether err is a 409 from creating an existing table.
func IsAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusConflict
	}
	return false
}
