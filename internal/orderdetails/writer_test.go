package orderdetails

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aardg/massabalans/internal/source"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

type insertCall struct {
	table    string
	rowCount int
}

type fakeWarehouse struct {
	createErr error
	created   []string
	responses []error
	calls     []insertCall
	index     int
}

func (f *fakeWarehouse) CreateTable(_ context.Context, table string, schema cbigquery.Schema, _ time.Duration) error {
	f.created = append(f.created, table)
	return f.createErr
}

func (f *fakeWarehouse) InsertRows(_ context.Context, table string, rows []any) error {
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	var err error
	if f.index < len(f.responses) {
		err = f.responses[f.index]
	}
	f.index++
	return err
}

func newTestWriter(t *testing.T, batchSize int) (*Writer, *fakeWarehouse) {
	t.Helper()
	fake := &fakeWarehouse{}
	w, err := newWriter(fake, Config{
		Table:       "monta_order_details",
		BatchSize:   batchSize,
		RetryPolicy: RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond},
	}, nil)
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	return w, fake
}

func details(n int) []source.OrderDetail {
	out := make([]source.OrderDetail, n)
	for i := range out {
		out[i] = source.OrderDetail{OrderID: "100", SKU: "8719327215180", Quantity: 1}
	}
	return out
}

func TestNewWriterValidation(t *testing.T) {
	if _, err := New(nil, Config{Table: "t"}, nil); !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error without client, got %v", err)
	}
	if _, err := newWriter(&fakeWarehouse{}, Config{Table: " "}, nil); !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error without table, got %v", err)
	}
}

func TestWriteBatches(t *testing.T) {
	w, fake := newTestWriter(t, 2)
	written, err := w.Write(context.Background(), details(5))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if written != 5 {
		t.Fatalf("expected 5 rows written, got %d", written)
	}
	if len(fake.calls) != 3 || fake.calls[2].rowCount != 1 {
		t.Fatalf("unexpected insert calls %+v", fake.calls)
	}
	if len(fake.created) != 1 {
		t.Fatalf("expected the table to be ensured once, got %v", fake.created)
	}
}

func TestWriteToleratesExistingTable(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	fake.createErr = &googleapi.Error{Code: http.StatusConflict}
	if _, err := w.Write(context.Background(), details(1)); err != nil {
		t.Fatalf("expected existing table to be accepted, got %v", err)
	}
}

func TestWriteRetriesOnTransientError(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	fake.responses = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}
	if _, err := w.Write(context.Background(), details(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
}

func TestWriteGivesUpOnPermanentError(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{nil, &googleapi.Error{Code: http.StatusBadRequest}}
	written, err := w.Write(context.Background(), details(3))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if written != 1 || len(fake.calls) != 2 {
		t.Fatalf("expected to stop after the failing batch, written=%d calls=%d", written, len(fake.calls))
	}
}

func TestWriteNothing(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	if n, err := w.Write(context.Background(), nil); err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d %v", n, err)
	}
	if len(fake.created) != 0 {
		t.Fatal("expected no table calls for an empty write")
	}
}

func TestIsRetryableBigQueryError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"503", &googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		{"400", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"plain", errors.New("boom"), false},
		{"row errors all transient", cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
		}, true},
		{"row errors mixed", cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}},
		}, false},
	}
	for _, tc := range cases {
		if got := isRetryableBigQueryError(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRowFromDetail(t *testing.T) {
	loaded := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	row := RowFromDetail(source.OrderDetail{OrderID: "1", City: "Utrecht", Quantity: 3}, loaded)
	if row.OrderID != "1" || row.City != "Utrecht" || row.Quantity != 3 || !row.LoadedAt.Equal(loaded) {
		t.Fatalf("unexpected row %+v", row)
	}
	if _, err := cbigquery.InferSchema(Row{}); err != nil {
		t.Fatalf("row schema: %v", err)
	}
}
