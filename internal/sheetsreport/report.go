// Package sheetsreport publishes per product line batch totals to the
// massabalans spreadsheet.
package sheetsreport

import (
	"context"
	"errors"
	"sort"

	"github.com/aardg/massabalans/internal/catalog"
	"github.com/aardg/massabalans/internal/orderline"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
	"github.com/aardg/massabalans/pkg/sheets"
)

// Header is the first row of every product-line worksheet.
var Header = []any{orderline.ColumnSKU, orderline.ColumnDescription, orderline.ColumnBatch, orderline.ColumnQuantity}

// SheetWriter is the subset of the Sheets client used to publish.
type SheetWriter interface {
	FindWorksheet(ctx context.Context, title string) (sheets.Worksheet, error)
	CreateWorksheet(ctx context.Context, title string, rows, cols int64) (sheets.Worksheet, error)
	ClearRange(ctx context.Context, a1Range string) error
	WriteValues(ctx context.Context, a1Cell string, values [][]any) error
}

// BatchTotal is the summed quantity of one (sku, description, batch).
type BatchTotal struct {
	SKU         string
	Description string
	Batch       string
	Quantity    int64
}

type batchKey struct {
	sku, description, batch string
}

// Aggregate sums quantities per (sku, description, batch), ordered by key.
func Aggregate(lines []orderline.OrderLine) []BatchTotal {
	totals := map[batchKey]int64{}
	for _, l := range lines {
		totals[batchKey{l.SKU, l.Description, l.Batch}] += l.Quantity
	}
	out := make([]BatchTotal, 0, len(totals))
	for k, q := range totals {
		out = append(out, BatchTotal{SKU: k.sku, Description: k.description, Batch: k.batch, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SKU != b.SKU {
			return a.SKU < b.SKU
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		return a.Batch < b.Batch
	})
	return out
}

// WorksheetResult reports what was written to one worksheet.
type WorksheetResult struct {
	Worksheet string
	Rows      int
	Created   bool
}

type Publisher struct {
	sheets SheetWriter
	lines  []catalog.ProductLine
	log    *logger.Logger
}

func NewPublisher(w SheetWriter, lines []catalog.ProductLine, log *logger.Logger) (*Publisher, error) {
	if w == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "sheet writer is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{sheets: w, lines: lines, log: log}, nil
}

// Publish replaces the contents of every product-line worksheet with the
// batch totals matching that line. Lines without matching rows still get a
// header so stale totals never linger.
func (p *Publisher) Publish(ctx context.Context, lines []orderline.OrderLine) ([]WorksheetResult, error) {
	totals := Aggregate(lines)
	results := make([]WorksheetResult, 0, len(p.lines))
	for _, pl := range p.lines {
		var values [][]any
		for _, t := range totals {
			if pl.Matches(t.SKU, t.Description) {
				values = append(values, []any{t.SKU, t.Description, t.Batch, t.Quantity})
			}
		}
		created, err := WriteWorksheet(ctx, p.sheets, pl.Worksheet, Header, values)
		if err != nil {
			return results, err
		}
		results = append(results, WorksheetResult{Worksheet: pl.Worksheet, Rows: len(values), Created: created})
		p.log.Info(p.log.WithFields(ctx, map[string]any{
			"worksheet": pl.Worksheet,
			"rows":      len(values),
			"created":   created,
		}), "sheetsreport.worksheet_written")
	}
	return results, nil
}

// WriteWorksheet clears title, creating it when absent, and writes the header
// followed by rows from A1. It reports whether the worksheet was created.
func WriteWorksheet(ctx context.Context, w SheetWriter, title string, header []any, rows [][]any) (bool, error) {
	values := make([][]any, 0, len(rows)+1)
	values = append(values, header)
	values = append(values, rows...)

	created := false
	_, err := w.FindWorksheet(ctx, title)
	switch {
	case errors.Is(err, sheets.ErrWorksheetNotFound):
		if _, err := w.CreateWorksheet(ctx, title, int64(len(values)), int64(len(header))); err != nil {
			return false, err
		}
		created = true
	case err != nil:
		return false, err
	default:
		if err := w.ClearRange(ctx, sheets.SheetRange(title, "")); err != nil {
			return false, err
		}
	}

	if err := w.WriteValues(ctx, sheets.SheetRange(title, "A1"), values); err != nil {
		return created, err
	}
	return created, nil
}
