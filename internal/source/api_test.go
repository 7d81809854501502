package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aardg/massabalans/internal/normalize"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/monta"
)

type fakeMonta struct {
	reports  []monta.Report
	content  []byte
	pages    [][]monta.OrderRef
	orders   map[string]monta.Order
	batches  map[string]monta.OrderBatches
	orderErr error

	pagesRequested []int
}

func (f *fakeMonta) ListReports(context.Context, string) ([]monta.Report, error) {
	return f.reports, nil
}

func (f *fakeMonta) DownloadReport(_ context.Context, id string) ([]byte, error) {
	if id != f.reports[0].ID.String() {
		return nil, errors.New("unexpected report id")
	}
	return f.content, nil
}

func (f *fakeMonta) ListOrders(_ context.Context, _, _ time.Time, page, _ int) ([]monta.OrderRef, error) {
	f.pagesRequested = append(f.pagesRequested, page)
	if page >= len(f.pages) {
		return nil, nil
	}
	return f.pages[page], nil
}

func (f *fakeMonta) GetOrder(_ context.Context, id string) (monta.Order, error) {
	if f.orderErr != nil {
		return monta.Order{}, f.orderErr
	}
	order, ok := f.orders[id]
	if !ok {
		return monta.Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (f *fakeMonta) GetOrderBatches(_ context.Context, id string) (monta.OrderBatches, error) {
	return f.batches[id], nil
}

type namer map[string]string

func (n namer) ProductName(sku string) (string, bool) {
	name, ok := n[sku]
	return name, ok
}

func refs(ids ...string) []monta.OrderRef {
	out := make([]monta.OrderRef, len(ids))
	for i, id := range ids {
		out[i] = monta.OrderRef{WebshopOrderID: monta.FlexString(id)}
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestFetchLatestReportWritesFile(t *testing.T) {
	dir := t.TempDir()
	api := NewAPI(&fakeMonta{
		reports: []monta.Report{{ID: "77"}, {ID: "12"}},
		content: []byte("OrderNummer\nA1\n"),
	}, nil)

	path, err := api.FetchLatestReport(context.Background(), "2023-01-01T00:00:00", dir, "report_file.csv")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "OrderNummer\nA1\n" {
		t.Fatalf("unexpected file content %q (%v)", data, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the report in %s, got %d entries", dir, len(entries))
	}
}

func TestFetchLatestReportNoReports(t *testing.T) {
	api := NewAPI(&fakeMonta{}, nil)
	_, err := api.FetchLatestReport(context.Background(), "", t.TempDir(), "r.csv")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCollectOrderIDsPaging(t *testing.T) {
	ctx := context.Background()
	since := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 1, 0)

	cases := []struct {
		name      string
		pages     [][]monta.OrderRef
		max       int
		wantIDs   int
		wantPages int
	}{
		{name: "short page stops", pages: [][]monta.OrderRef{refs("1", "2"), refs("3")}, wantIDs: 3, wantPages: 2},
		{name: "empty page stops", pages: [][]monta.OrderRef{refs("1", "2"), refs("3", "4")}, wantIDs: 4, wantPages: 3},
		{name: "max truncates", pages: [][]monta.OrderRef{refs("1", "2"), refs("3", "4"), refs("5", "6")}, max: 3, wantIDs: 3, wantPages: 2},
	}
	for _, tc := range cases {
		fake := &fakeMonta{pages: tc.pages}
		ids, err := NewAPI(fake, nil).CollectOrderIDs(ctx, since, until, 2, tc.max)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(ids) != tc.wantIDs {
			t.Fatalf("%s: expected %d ids, got %v", tc.name, tc.wantIDs, ids)
		}
		if len(fake.pagesRequested) != tc.wantPages || fake.pagesRequested[0] != 0 {
			t.Fatalf("%s: unexpected pages requested %v", tc.name, fake.pagesRequested)
		}
	}
}

func TestCollectOrderIDsRejectsZeroPageSize(t *testing.T) {
	_, err := NewAPI(&fakeMonta{}, nil).CollectOrderIDs(context.Background(), time.Now(), time.Now(), 0, 10)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFlattenOrders(t *testing.T) {
	fake := &fakeMonta{
		orders: map[string]monta.Order{
			"1001": {
				WebshopOrderID: "1001",
				Received:       "2023-04-03T09:15:00",
				Shipped:        strPtr("2023-04-04T14:00:00"),
				ConsumerDetails: monta.ConsumerDetails{DeliveryAddress: monta.Address{
					FirstName: "Sam", City: "Utrecht", HouseNumber: "12", CountryCode: "NL",
				}},
			},
			"1002": {WebshopOrderID: "1002", Received: "2023-04-05T08:00:00"},
		},
		batches: map[string]monta.OrderBatches{
			"1001": {Items: []monta.BatchItem{
				{SKU: "8719327215180", Quantity: -2, Batch: monta.BatchInfo{Title: "L123", BestBeforeDate: strPtr("2024-01-09T00:00:00")}},
				{SKU: "0000000000000", Quantity: -1, Batch: monta.BatchInfo{Title: "X"}},
			}},
			"1002": {Items: []monta.BatchItem{
				{SKU: "8719326399386", Quantity: 4, Batch: monta.BatchInfo{Title: "K9"}},
			}},
		},
	}
	products := namer{
		"8719327215180": "Probiotica Ampullen 28x 9ml",
		"8719326399386": "Kombucha Original 4x 1L",
	}

	out, err := NewAPI(fake, nil).FlattenOrders(context.Background(), []string{"1001", "1002", "9999"}, products)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(out.Details) != 2 {
		t.Fatalf("expected unknown skus to be dropped, got %d details", len(out.Details))
	}
	if len(out.Missing) != 1 || out.Missing[0] != "9999" {
		t.Fatalf("expected 9999 to be reported missing, got %v", out.Missing)
	}
	first := out.Details[0]
	if first.Quantity != 2 || first.City != "Utrecht" || first.HouseNumber != "12" || first.ProductName != "Probiotica Ampullen 28x 9ml" {
		t.Fatalf("unexpected detail %+v", first)
	}

	result, err := normalize.New(normalize.APIOptions()).Normalize(out.Table)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(result.Skipped) != 0 {
		t.Fatalf("unexpected skipped rows %v", result.Skipped)
	}
	shipped, queued := result.Lines[0], result.Lines[1]
	if shipped.OrderDate != "2023-04-03" || shipped.ShipDate != "2023-04-04" || shipped.BestBeforeDate != "2024-01-09" || shipped.OrderStatus != StatusShipped {
		t.Fatalf("unexpected shipped line %+v", shipped)
	}
	if queued.ShipDate != "" || queued.OrderStatus != StatusQueued || queued.Quantity != 4 {
		t.Fatalf("unexpected queued line %+v", queued)
	}
}

func TestFlattenOrdersAbortsOnSourceFailure(t *testing.T) {
	fake := &fakeMonta{orderErr: pkgerrors.New(pkgerrors.CodeSourceUnavailable, "monta down")}
	_, err := NewAPI(fake, nil).FlattenOrders(context.Background(), []string{"1"}, namer{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeSourceUnavailable) {
		t.Fatalf("expected source unavailable, got %v", err)
	}
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeFileAtomic(path, []byte("new")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "new" {
		t.Fatalf("expected replaced content, got %q", data)
	}
}
