package normalize

import (
	"fmt"
	"strings"

	"github.com/aardg/massabalans/internal/orderline"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

// Field is a canonical order line field.
type Field string

const (
	FieldOrderNumber Field = "order_number"
	FieldOrderDate   Field = "order_date"
	FieldShipDate    Field = "ship_date"
	FieldSKU         Field = "sku"
	FieldDescription Field = "description"
	FieldQuantity    Field = "quantity"
	FieldBatch       Field = "batch"
	FieldBestBefore  Field = "best_before_date"
	FieldOrderStatus Field = "order_status"
)

// Fields lists the projected fields in output order.
var Fields = []Field{
	FieldOrderNumber,
	FieldOrderDate,
	FieldShipDate,
	FieldSKU,
	FieldDescription,
	FieldQuantity,
	FieldBatch,
	FieldBestBefore,
	FieldOrderStatus,
}

// DateFields are the fields holding calendar dates.
var DateFields = []Field{FieldOrderDate, FieldShipDate, FieldBestBefore}

// ColumnMap maps a canonical field to the source headers that may carry it.
// Headers match ignoring case, spaces and underscores.
type ColumnMap map[Field][]string

// DefaultColumnMap covers the CSV report, the XLSX export and the warehouse
// column names.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		FieldOrderNumber: {"OrderNummer", "order_number"},
		FieldOrderDate:   {"BestelDatum", "order_date"},
		FieldShipDate:    {"Verzenddatum", "ship_date"},
		FieldSKU:         {"Sku", "sku"},
		FieldDescription: {"Omschrijving", "description"},
		FieldQuantity:    {"Aantal", "quantity"},
		FieldBatch:       {"Batch", "batch"},
		FieldBestBefore:  {"ThtDatum", "best_before_date"},
		FieldOrderStatus: {"OrderStatus", "order_status"},
	}
}

// Options configures a Normalizer.
type Options struct {
	Columns ColumnMap
	// SerialDateFields hold spreadsheet serial day counts. The remaining date
	// fields are expected as ISO dates.
	SerialDateFields []Field
	// OptionalFields may be blank or absent from the export.
	OptionalFields []Field
}

// ExportOptions returns the options for the report exports, where every date
// column holds a serial. Orders that have not shipped yet carry no ship date,
// and best-before is not tracked for every product.
func ExportOptions() Options {
	return Options{
		Columns:          DefaultColumnMap(),
		SerialDateFields: append([]Field(nil), DateFields...),
		OptionalFields:   []Field{FieldShipDate, FieldBestBefore},
	}
}

// APIOptions returns the options for rows flattened from the orders API,
// which carry ISO dates.
func APIOptions() Options {
	return Options{
		Columns:        DefaultColumnMap(),
		OptionalFields: []Field{FieldShipDate, FieldBestBefore},
	}
}

// RowError describes one export row that could not be converted.
type RowError struct {
	Line   int
	Column string
	Value  string
	err    *pkgerrors.Error
}

func newRowError(line int, column, value string, cause error) *RowError {
	return &RowError{
		Line:   line,
		Column: column,
		Value:  value,
		err: pkgerrors.Wrap(pkgerrors.CodeRowConversion, cause, fmt.Sprintf("row %d column %s", line, column)).
			WithDetails(map[string]any{"line": line, "column": column, "value": value}),
	}
}

func (e *RowError) Error() string {
	return e.err.Error()
}

func (e *RowError) Unwrap() error {
	return e.err
}

// Result is the outcome of normalizing one table.
type Result struct {
	Read    int
	Lines   []orderline.OrderLine
	Skipped []*RowError
}

// Normalizer projects raw exports onto OrderLines.
type Normalizer struct {
	columns  ColumnMap
	serial   map[Field]bool
	optional map[Field]bool
}

// New builds a Normalizer. Unknown fields in opts are ignored.
func New(opts Options) *Normalizer {
	columns := opts.Columns
	if len(columns) == 0 {
		columns = DefaultColumnMap()
	}
	n := &Normalizer{
		columns:  columns,
		serial:   make(map[Field]bool, len(opts.SerialDateFields)),
		optional: make(map[Field]bool, len(opts.OptionalFields)),
	}
	for _, f := range opts.SerialDateFields {
		n.serial[f] = true
	}
	for _, f := range opts.OptionalFields {
		n.optional[f] = true
	}
	return n
}

// Normalize converts every record of table. A required column missing from
// the header fails the whole table; a bad value only skips its row.
func (n *Normalizer) Normalize(table Table) (Result, error) {
	resolved, err := n.resolve(table.Headers)
	if err != nil {
		return Result{}, err
	}

	result := Result{Read: len(table.Records)}
	for _, record := range table.Records {
		line, rowErr := n.convert(record, resolved)
		if rowErr != nil {
			result.Skipped = append(result.Skipped, rowErr)
			continue
		}
		result.Lines = append(result.Lines, line)
	}
	return result, nil
}

func (n *Normalizer) resolve(headers []string) (map[Field]string, error) {
	byKey := make(map[string]string, len(headers))
	for _, h := range headers {
		key := headerKey(h)
		if _, seen := byKey[key]; !seen {
			byKey[key] = h
		}
	}

	resolved := make(map[Field]string, len(Fields))
	var missing []string
	for _, field := range Fields {
		for _, alias := range n.columns[field] {
			if header, ok := byKey[headerKey(alias)]; ok {
				resolved[field] = header
				break
			}
		}
		if _, ok := resolved[field]; !ok && !n.optional[field] {
			missing = append(missing, string(field))
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errMissingField, "export header incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return resolved, nil
}

func (n *Normalizer) convert(record Record, resolved map[Field]string) (orderline.OrderLine, *RowError) {
	values := make(map[Field]string, len(Fields))
	for _, field := range Fields {
		column, ok := resolved[field]
		if !ok {
			continue
		}
		values[field] = strings.TrimSpace(record.Values[column])
	}

	for _, field := range DateFields {
		raw := values[field]
		if raw == "" && n.optional[field] {
			continue
		}
		var (
			day string
			err error
		)
		if n.serial[field] {
			day, err = FormatSerial(raw)
		} else {
			day, err = FormatISO(raw)
		}
		if err != nil {
			return orderline.OrderLine{}, newRowError(record.Line, resolved[field], raw, err)
		}
		values[field] = day
	}

	quantity, err := ParseQuantity(values[FieldQuantity])
	if err != nil {
		return orderline.OrderLine{}, newRowError(record.Line, resolved[FieldQuantity], values[FieldQuantity], err)
	}

	return orderline.OrderLine{
		OrderNumber:    values[FieldOrderNumber],
		OrderDate:      values[FieldOrderDate],
		ShipDate:       values[FieldShipDate],
		SKU:            values[FieldSKU],
		Description:    values[FieldDescription],
		Quantity:       quantity,
		Batch:          values[FieldBatch],
		BestBeforeDate: values[FieldBestBefore],
		OrderStatus:    values[FieldOrderStatus],
	}, nil
}

func headerKey(header string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(header)))
}
