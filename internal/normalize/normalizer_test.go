package normalize

import (
	"testing"

	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

var csvHeaders = []string{"OrderNummer", "BestelDatum", "Verzenddatum", "Sku", "Omschrijving", "Aantal", "Batch", "ThtDatum", "OrderStatus"}

func TestFormatSerialSpotChecks(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "0", want: "1899-12-30"},
		{in: "45000", want: "2023-03-15"},
		{in: "45000.75", want: "2023-03-15"},
		{in: " 44927 ", want: "2023-01-01"},
		{in: "1", want: "1899-12-31"},
	}
	for _, tt := range tests {
		got, err := FormatSerial(tt.in)
		if err != nil {
			t.Fatalf("FormatSerial(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("FormatSerial(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatSerialRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "NaN", "Inf"} {
		if _, err := FormatSerial(in); err == nil {
			t.Fatalf("FormatSerial(%q) expected error", in)
		}
	}
}

func TestFormatISO(t *testing.T) {
	got, err := FormatISO("2023-04-01T10:22:33.123")
	if err != nil || got != "2023-04-01" {
		t.Fatalf("FormatISO timestamp = %q, %v", got, err)
	}
	if _, err := FormatISO("01-04-2023"); err == nil {
		t.Fatal("expected error for non ISO date")
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "5", want: 5},
		{in: "-3", want: -3},
		{in: "5.0", want: 5},
		{in: "2.5", wantErr: true},
		{in: "", wantErr: true},
		{in: "x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseQuantity(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseQuantity(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseQuantity(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestNormalizeCSVExport(t *testing.T) {
	table := NewTable(csvHeaders, [][]string{
		{"A1", "45000", "45001", "SKU1", "Honing", "5", "B1", "45300", "shipped"},
		{"A2", "45000", "45001", "SKU2", "Was", "3", "B2", "", "queued"},
	})

	result, err := New(ExportOptions()).Normalize(table)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if result.Read != 2 || len(result.Lines) != 2 || len(result.Skipped) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	first := result.Lines[0]
	if first.OrderDate != "2023-03-15" || first.ShipDate != "2023-03-16" || first.BestBeforeDate != "2024-01-09" {
		t.Fatalf("unexpected dates %+v", first)
	}
	if first.Quantity != 5 || first.SKU != "SKU1" || first.OrderStatus != "shipped" {
		t.Fatalf("unexpected line %+v", first)
	}
	if result.Lines[1].BestBeforeDate != "" {
		t.Fatalf("blank best-before should be empty string, got %q", result.Lines[1].BestBeforeDate)
	}
}

func TestNormalizeXLSXHeaders(t *testing.T) {
	headers := []string{"OrderNummer", "Besteldatum", "Verzenddatum", "SKU", "Omschrijving", "Aantal", "Batch", "THT Datum", "Orderstatus", "Extra"}
	table := NewTable(headers, [][]string{
		{"A1", "45000", "45000", "SKU1", "Honing", "1", "B1", "45000", "shipped", "ignored"},
	})

	result, err := New(ExportOptions()).Normalize(table)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0].BestBeforeDate != "2023-03-15" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestNormalizeAbsentBestBeforeColumnMatchesBlank(t *testing.T) {
	withColumn := NewTable(csvHeaders, [][]string{
		{"A1", "45000", "45001", "SKU1", "Honing", "5", "B1", "", "shipped"},
	})
	without := NewTable(
		[]string{"OrderNummer", "BestelDatum", "Verzenddatum", "Sku", "Omschrijving", "Aantal", "Batch", "OrderStatus"},
		[][]string{{"A1", "45000", "45001", "SKU1", "Honing", "5", "B1", "shipped"}},
	)

	n := New(ExportOptions())
	a, err := n.Normalize(withColumn)
	if err != nil {
		t.Fatalf("normalize with column: %v", err)
	}
	b, err := n.Normalize(without)
	if err != nil {
		t.Fatalf("normalize without column: %v", err)
	}
	if a.Lines[0].Key() != b.Lines[0].Key() {
		t.Fatalf("expected identical keys, got %+v vs %+v", a.Lines[0].Key(), b.Lines[0].Key())
	}
}

func TestNormalizeSkipsBadRows(t *testing.T) {
	table := NewTable(csvHeaders, [][]string{
		{"A1", "", "45001", "SKU1", "Honing", "5", "B1", "", "shipped"},
		{"A2", "45000", "oops", "SKU1", "Honing", "5", "B1", "", "shipped"},
		{"A3", "45000", "45001", "SKU1", "Honing", "1.5", "B1", "", "shipped"},
		{"A4", "45000", "45001", "SKU1", "Honing", "2", "B1", "", "shipped"},
	})

	result, err := New(ExportOptions()).Normalize(table)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0].OrderNumber != "A4" {
		t.Fatalf("expected only A4 to survive, got %+v", result.Lines)
	}
	if len(result.Skipped) != 3 {
		t.Fatalf("expected 3 skipped rows, got %d", len(result.Skipped))
	}
	first := result.Skipped[0]
	if first.Line != 2 || first.Column != "BestelDatum" {
		t.Fatalf("unexpected row error %+v", first)
	}
	if !pkgerrors.IsCode(first, pkgerrors.CodeRowConversion) {
		t.Fatalf("expected row conversion code, got %v", first)
	}
	if result.Skipped[2].Column != "Aantal" {
		t.Fatalf("expected quantity failure, got %s", result.Skipped[2].Column)
	}
}

func TestNormalizeMissingRequiredColumn(t *testing.T) {
	table := NewTable([]string{"OrderNummer", "Sku"}, [][]string{{"A1", "SKU1"}})
	_, err := New(ExportOptions()).Normalize(table)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeAPIRowsUseISODates(t *testing.T) {
	table := NewTable(csvHeaders, [][]string{
		{"A1", "2023-04-01T10:00:00", "2023-04-02", "SKU1", "Honing", "5", "B1", "2024-04-01", "shipped"},
	})
	result, err := New(APIOptions()).Normalize(table)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got := result.Lines[0]; got.OrderDate != "2023-04-01" || got.ShipDate != "2023-04-02" || got.BestBeforeDate != "2024-04-01" {
		t.Fatalf("unexpected line %+v", got)
	}
}

func TestNormalizeIsPure(t *testing.T) {
	table := NewTable(csvHeaders, [][]string{
		{"A1", "45000", "45001", "SKU1", "Honing", "5", "B1", "", "shipped"},
	})
	n := New(ExportOptions())
	first, _ := n.Normalize(table)
	second, _ := n.Normalize(table)
	if first.Lines[0] != second.Lines[0] {
		t.Fatalf("expected identical output, got %+v vs %+v", first.Lines[0], second.Lines[0])
	}
}

func TestNormalizeQueuedOrderWithoutShipDate(t *testing.T) {
	table := NewTable(csvHeaders, [][]string{
		{"K1", "45000", "", "SKU1", "Honing", "2", "B1", "", "queued"},
	})
	result, err := New(ExportOptions()).Normalize(table)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(result.Skipped) != 0 || len(result.Lines) != 1 {
		t.Fatalf("expected the queued row to be kept, skipped=%v", result.Skipped)
	}
	if got := result.Lines[0]; got.ShipDate != "" || got.OrderStatus != "queued" {
		t.Fatalf("unexpected line %+v", got)
	}
}
