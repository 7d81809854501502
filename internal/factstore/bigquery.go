package factstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/aardg/massabalans/internal/orderline"
	"github.com/aardg/massabalans/internal/reconcile"
	pkgbigquery "github.com/aardg/massabalans/pkg/bigquery"
	"github.com/aardg/massabalans/pkg/logger"
)

const defaultStagingTTL = time.Hour

type warehouse interface {
	CreateTable(ctx context.Context, table string, schema bigquery.Schema, ttl time.Duration) error
	LoadNDJSON(ctx context.Context, table string, data io.Reader, opts pkgbigquery.LoadOptions) error
	Exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error)
	DeleteTable(ctx context.Context, table string) error
	TableRef(table string) string
}

// factSchema is the warehouse layout of the fact table. Dates are YYYY-MM-DD
// strings, as in the existing report table; a queued order has a blank ship
// date, which a DATE column would reject.
var factSchema = bigquery.Schema{
	{Name: orderline.ColumnOrderNumber, Type: bigquery.StringFieldType},
	{Name: orderline.ColumnOrderDate, Type: bigquery.StringFieldType},
	{Name: orderline.ColumnShipDate, Type: bigquery.StringFieldType},
	{Name: orderline.ColumnSKU, Type: bigquery.StringFieldType},
	{Name: orderline.ColumnDescription, Type: bigquery.StringFieldType},
	{Name: orderline.ColumnQuantity, Type: bigquery.IntegerFieldType},
	{Name: orderline.ColumnBatch, Type: bigquery.StringFieldType},
	{Name: orderline.ColumnBestBefore, Type: bigquery.StringFieldType},
	{Name: orderline.ColumnOrderStatus, Type: bigquery.StringFieldType},
}

type bigQueryRow struct {
	OrderNumber    string `json:"OrderNummer"`
	OrderDate      string `json:"Besteldatum"`
	ShipDate       string `json:"Verzenddatum"`
	SKU            string `json:"SKU"`
	Description    string `json:"Omschrijving"`
	Quantity       int64  `json:"Aantal"`
	Batch          string `json:"Batch"`
	BestBeforeDate string `json:"THT_Datum"`
	OrderStatus    string `json:"Orderstatus"`
}

// BigQueryStore keeps the fact table in BigQuery.
type BigQueryStore struct {
	client     warehouse
	table      string
	stagingTTL time.Duration
	logg       *logger.Logger
}

var _ reconcile.Store = (*BigQueryStore)(nil)

// NewBigQueryStore builds a store for table inside the client's dataset.
func NewBigQueryStore(client *pkgbigquery.Client, table string, stagingTTL time.Duration, logg *logger.Logger) (*BigQueryStore, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	return newBigQueryStore(client, table, stagingTTL, logg)
}

func newBigQueryStore(client warehouse, table string, stagingTTL time.Duration, logg *logger.Logger) (*BigQueryStore, error) {
	table = strings.TrimSpace(table)
	if err := validateIdentifier(table); err != nil {
		return nil, err
	}
	if stagingTTL <= 0 {
		stagingTTL = defaultStagingTTL
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &BigQueryStore{client: client, table: table, stagingTTL: stagingTTL, logg: logg}, nil
}

// ReplaceAll truncates the fact table and loads facts in one load job.
func (s *BigQueryStore) ReplaceAll(ctx context.Context, facts []orderline.OrderLine) error {
	payload, err := encodeNDJSON(facts)
	if err != nil {
		return err
	}
	if err := s.client.LoadNDJSON(ctx, s.table, payload, pkgbigquery.LoadOptions{Schema: factSchema, Truncate: true}); err != nil {
		return fmt.Errorf("replace %s: %w", s.table, err)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"table": s.table, "rows": len(facts)}), "bigquery fact table replaced")
	return nil
}

// Stage creates an expiring staging table and loads facts into it.
func (s *BigQueryStore) Stage(ctx context.Context, facts []orderline.OrderLine) (reconcile.StagedTable, error) {
	payload, err := encodeNDJSON(facts)
	if err != nil {
		return reconcile.StagedTable{}, err
	}

	name := stagingName(s.table)
	if err := s.client.CreateTable(ctx, name, factSchema, s.stagingTTL); err != nil {
		return reconcile.StagedTable{}, err
	}
	staged := reconcile.StagedTable{Name: name}
	if err := s.client.LoadNDJSON(ctx, name, payload, pkgbigquery.LoadOptions{Schema: factSchema}); err != nil {
		return staged, fmt.Errorf("stage into %s: %w", name, err)
	}
	staged.Rows = int64(len(facts))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"table": name, "rows": len(facts)}), "bigquery staging table loaded")
	return staged, nil
}

// Merge applies the staged facts with a single MERGE statement.
func (s *BigQueryStore) Merge(ctx context.Context, staged reconcile.StagedTable) (int64, error) {
	if err := validateIdentifier(staged.Name); err != nil {
		return 0, err
	}
	if _, err := s.client.Exec(ctx, createFactTableSQL(s.client.TableRef(s.table)), nil); err != nil {
		return 0, fmt.Errorf("ensure %s: %w", s.table, err)
	}
	affected, err := s.client.Exec(ctx, mergeSQL(s.client.TableRef(s.table), s.client.TableRef(staged.Name)), nil)
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// DropStaged deletes the staging table.
func (s *BigQueryStore) DropStaged(ctx context.Context, staged reconcile.StagedTable) error {
	return s.client.DeleteTable(ctx, staged.Name)
}

func encodeNDJSON(facts []orderline.OrderLine) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	for _, f := range facts {
		row := bigQueryRow{
			OrderNumber:    f.OrderNumber,
			OrderDate:      f.OrderDate,
			ShipDate:       f.ShipDate,
			SKU:            f.SKU,
			Description:    f.Description,
			Quantity:       f.Quantity,
			Batch:          f.Batch,
			BestBeforeDate: f.BestBeforeDate,
			OrderStatus:    f.OrderStatus,
		}
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("encode fact %s: %w", f.OrderNumber, err)
		}
	}
	return buf, nil
}

func createFactTableSQL(target string) string {
	cols := make([]string, 0, len(factSchema))
	for _, field := range factSchema {
		cols = append(cols, fmt.Sprintf("  %s %s", field.Name, sqlType(field.Type)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", target, strings.Join(cols, ",\n"))
}

func sqlType(t bigquery.FieldType) string {
	switch t {
	case bigquery.IntegerFieldType:
		return "INT64"
	default:
		return "STRING"
	}
}

// mergeSQL matches on the immutable part of the natural key. Rows written
// before best-before was normalized may hold NULL there.
func mergeSQL(target, source string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MERGE %s AS target\nUSING %s AS source\nON ", target, source)
	b.WriteString(strings.Join([]string{
		"target.OrderNummer = source.OrderNummer",
		"target.Besteldatum = source.Besteldatum",
		"target.SKU = source.SKU",
		"target.Omschrijving = source.Omschrijving",
		"target.Batch = source.Batch",
		"IFNULL(target.THT_Datum, '') = IFNULL(source.THT_Datum, '')",
	}, "\n  AND "))
	b.WriteString("\nWHEN MATCHED THEN UPDATE SET\n")
	b.WriteString("  Verzenddatum = source.Verzenddatum,\n  Orderstatus = source.Orderstatus,\n  Aantal = source.Aantal\n")
	b.WriteString("WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(strings.Join(orderline.Columns, ", "))
	b.WriteString(")\n  VALUES (")
	values := make([]string, len(orderline.Columns))
	for i, col := range orderline.Columns {
		values[i] = "source." + col
	}
	b.WriteString(strings.Join(values, ", "))
	b.WriteString(")")
	return b.String()
}
