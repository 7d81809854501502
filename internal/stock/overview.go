// Package stock compares two stock snapshots and reports the mutation per
// product batch.
package stock

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aardg/massabalans/internal/orderline"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
)

// Entry is the stock of one product batch.
type Entry struct {
	Product  string          `json:"product"`
	Batch    string          `json:"batch"`
	Quantity decimal.Decimal `json:"quantity"`
}

type entryKey struct {
	product, batch string
}

// Period is an inclusive range of snapshot days.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CurrentWeek returns Monday through Sunday of the week containing now.
func CurrentWeek(now time.Time) Period {
	offset := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, now.Location())
	return Period{Start: start, End: start.AddDate(0, 0, 6)}
}

// ParsePeriod parses YYYY-MM-DD bounds. Empty bounds default to the current week.
func ParsePeriod(start, end string, now time.Time) (Period, error) {
	period := CurrentWeek(now)
	if start != "" {
		day, err := time.ParseInLocation(orderline.DateLayout, start, now.Location())
		if err != nil {
			return Period{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid start date").
				WithDetails(map[string]any{"start": start})
		}
		period.Start = day
	}
	if end != "" {
		day, err := time.ParseInLocation(orderline.DateLayout, end, now.Location())
		if err != nil {
			return Period{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid end date").
				WithDetails(map[string]any{"end": end})
		}
		period.End = day
	}
	if period.End.Before(period.Start) {
		return Period{}, pkgerrors.New(pkgerrors.CodeValidation, "end date before start date").
			WithDetails(map[string]any{"start": period.Start.Format(orderline.DateLayout), "end": period.End.Format(orderline.DateLayout)})
	}
	return period, nil
}

// Overview holds aligned start, end and mutation entries. All three slices
// list the same product batches in the same order.
type Overview struct {
	Period   Period  `json:"period"`
	Start    []Entry `json:"start"`
	End      []Entry `json:"end"`
	Mutation []Entry `json:"mutation"`
}

// Compare aligns two snapshots. A batch missing on one side counts as zero
// there, and the mutation is end minus start.
func Compare(period Period, start, end []Entry) Overview {
	startQty := sumByKey(start)
	endQty := sumByKey(end)

	keys := make([]entryKey, 0, len(startQty)+len(endQty))
	for k := range startQty {
		keys = append(keys, k)
	}
	for k := range endQty {
		if _, ok := startQty[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].product != keys[j].product {
			return keys[i].product < keys[j].product
		}
		return keys[i].batch < keys[j].batch
	})

	ov := Overview{Period: period}
	for _, k := range keys {
		s, e := startQty[k], endQty[k]
		ov.Start = append(ov.Start, Entry{Product: k.product, Batch: k.batch, Quantity: s})
		ov.End = append(ov.End, Entry{Product: k.product, Batch: k.batch, Quantity: e})
		ov.Mutation = append(ov.Mutation, Entry{Product: k.product, Batch: k.batch, Quantity: e.Sub(s)})
	}
	return ov
}

func sumByKey(entries []Entry) map[entryKey]decimal.Decimal {
	out := make(map[entryKey]decimal.Decimal, len(entries))
	for _, e := range entries {
		k := entryKey{e.Product, e.Batch}
		out[k] = out[k].Add(e.Quantity)
	}
	return out
}

// Snapshotter returns the stock recorded on one day.
type Snapshotter interface {
	Snapshot(ctx context.Context, day time.Time) ([]Entry, error)
}

type Service struct {
	snapshots Snapshotter
	log       *logger.Logger
}

func NewService(snapshots Snapshotter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{snapshots: snapshots, log: log}
}

// Overview loads both snapshots of period and compares them.
func (s *Service) Overview(ctx context.Context, period Period) (Overview, error) {
	start, err := s.snapshots.Snapshot(ctx, period.Start)
	if err != nil {
		return Overview{}, err
	}
	end, err := s.snapshots.Snapshot(ctx, period.End)
	if err != nil {
		return Overview{}, err
	}

	ov := Compare(period, start, end)
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"start":         period.Start.Format(orderline.DateLayout),
		"end":           period.End.Format(orderline.DateLayout),
		"start_batches": len(start),
		"end_batches":   len(end),
		"batches":       len(ov.Mutation),
	}), "stock.overview_built")
	return ov, nil
}
