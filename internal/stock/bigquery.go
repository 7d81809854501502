package stock

import (
	"context"
	"fmt"
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/aardg/massabalans/internal/orderline"
	pkgbigquery "github.com/aardg/massabalans/pkg/bigquery"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

type querier interface {
	Query(ctx context.Context, sql string, params []cbigquery.QueryParameter) (*cbigquery.RowIterator, error)
}

// rowIterator is satisfied by *cbigquery.RowIterator.
type rowIterator interface {
	Next(dst interface{}) error
}

// BigQuerySnapshots reads the daily stock table.
type BigQuerySnapshots struct {
	client querier
	table  string
}

// NewBigQuerySnapshots reads dataset.table in the client's project.
func NewBigQuerySnapshots(client *pkgbigquery.Client, dataset, table string) (*BigQuerySnapshots, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "bigquery client required")
	}
	if dataset == "" {
		dataset = client.DatasetID()
	}
	if table == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "stock table is required")
	}
	return &BigQuerySnapshots{
		client: client,
		table:  pkgbigquery.QualifiedTable(client.ProjectID(), dataset, table),
	}, nil
}

func snapshotSQL(table string) string {
	return fmt.Sprintf("SELECT Product, Batch, Aantal FROM %s WHERE DATE(Timestamp) = CAST(@day AS DATE)", table)
}

func (s *BigQuerySnapshots) Snapshot(ctx context.Context, day time.Time) ([]Entry, error) {
	params := []cbigquery.QueryParameter{{Name: "day", Value: day.Format(orderline.DateLayout)}}
	it, err := s.client.Query(ctx, snapshotSQL(s.table), params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query stock snapshot").
			WithDetails(map[string]any{"day": day.Format(orderline.DateLayout)})
	}
	return readEntries(it)
}

func readEntries(it rowIterator) ([]Entry, error) {
	var entries []Entry
	for {
		var row []cbigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			return entries, nil
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock snapshot")
		}
		if len(row) < 3 {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock row has too few columns")
		}
		qty, err := toDecimal(row[2])
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stock quantity")
		}
		entries = append(entries, Entry{
			Product:  toString(row[0]),
			Batch:    toString(row[1]),
			Quantity: qty,
		})
	}
}

func toString(v cbigquery.Value) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toDecimal(v cbigquery.Value) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case *big.Rat:
		return decimal.NewFromString(n.FloatString(9))
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("unsupported quantity type %T", v)
	}
}
