// Package orderdetails appends flattened API orders, delivery address
// included, to the order details table.
package orderdetails

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aardg/massabalans/internal/source"
	pkgbigquery "github.com/aardg/massabalans/pkg/bigquery"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
)

const (
	defaultBatchSize      = 500
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Row mirrors the order details table.
type Row struct {
	OrderID             string    `bigquery:"order_id"`
	FirstName           string    `bigquery:"first_name"`
	LastName            string    `bigquery:"last_name"`
	Email               string    `bigquery:"email"`
	Street              string    `bigquery:"street"`
	HouseNumber         string    `bigquery:"house_number"`
	HouseNumberAddition string    `bigquery:"house_number_addition"`
	PostalCode          string    `bigquery:"postal_code"`
	City                string    `bigquery:"city"`
	Country             string    `bigquery:"country"`
	Ordered             string    `bigquery:"ordered"`
	Shipped             string    `bigquery:"shipped"`
	SKU                 string    `bigquery:"sku"`
	Quantity            int64     `bigquery:"quantity"`
	BatchTitle          string    `bigquery:"batch_title"`
	BatchBestBeforeDate string    `bigquery:"batch_bestbeforedate"`
	ProductName         string    `bigquery:"product_name"`
	LoadedAt            time.Time `bigquery:"loaded_at"`
}

// RowFromDetail converts a flattened order item.
func RowFromDetail(d source.OrderDetail, loadedAt time.Time) Row {
	return Row{
		OrderID:             d.OrderID,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		Email:               d.Email,
		Street:              d.Street,
		HouseNumber:         d.HouseNumber,
		HouseNumberAddition: d.HouseNumberAddition,
		PostalCode:          d.PostalCode,
		City:                d.City,
		Country:             d.Country,
		Ordered:             d.Ordered,
		Shipped:             d.Shipped,
		SKU:                 d.SKU,
		Quantity:            d.Quantity,
		BatchTitle:          d.BatchTitle,
		BatchBestBeforeDate: d.BatchBestBeforeDate,
		ProductName:         d.ProductName,
		LoadedAt:            loadedAt,
	}
}

// Config controls the writer behavior.
type Config struct {
	Table       string
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy controls how many times inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type warehouse interface {
	CreateTable(ctx context.Context, table string, schema cbigquery.Schema, ttl time.Duration) error
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer streams order detail rows into BigQuery in batches with retries.
type Writer struct {
	client    warehouse
	table     string
	batchSize int
	retry     RetryPolicy
	log       *logger.Logger
	now       func() time.Time
}

func New(client *pkgbigquery.Client, cfg Config, log *logger.Logger) (*Writer, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "bigquery client required")
	}
	return newWriter(client, cfg, log)
}

func newWriter(client warehouse, cfg Config, log *logger.Logger) (*Writer, error) {
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "order details table is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Writer{
		client:    client,
		table:     table,
		batchSize: batchSize,
		retry:     retry,
		log:       log,
		now:       time.Now,
	}, nil
}

// Write makes sure the table exists and appends one row per detail. It
// returns the number of rows inserted before any failure.
func (w *Writer) Write(ctx context.Context, details []source.OrderDetail) (int, error) {
	if len(details) == 0 {
		return 0, nil
	}
	if err := w.ensureTable(ctx); err != nil {
		return 0, err
	}

	loadedAt := w.now().UTC()
	written := 0
	for start := 0; start < len(details); start += w.batchSize {
		end := min(start+w.batchSize, len(details))
		rows := make([]any, 0, end-start)
		for _, d := range details[start:end] {
			row := RowFromDetail(d, loadedAt)
			rows = append(rows, &row)
		}
		if err := w.insertWithRetry(ctx, rows); err != nil {
			return written, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order details").
				WithDetails(map[string]any{"table": w.table, "written": written})
		}
		written += len(rows)
	}

	w.log.Info(w.log.WithFields(ctx, map[string]any{"table": w.table, "rows": written}), "orderdetails.written")
	return written, nil
}

func (w *Writer) ensureTable(ctx context.Context) error {
	schema, err := cbigquery.InferSchema(Row{})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "infer order details schema")
	}
	if err := w.client.CreateTable(ctx, w.table, schema, 0); err != nil && !pkgbigquery.IsAlreadyExists(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order details table")
	}
	return nil
}

func (w *Writer) insertWithRetry(ctx context.Context, rows []any) error {
	attempts := 0
	backoff := w.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}
		w.log.Warn(w.log.WithFields(ctx, map[string]any{"attempt": attempts, "backoff": backoff.String()}), "orderdetails.insert_retry: "+err.Error())

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}
