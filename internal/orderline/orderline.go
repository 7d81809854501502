// Package orderline holds the canonical shipment row shared by the normalizer,
// the reconciler and the fact stores.
package orderline

// DateLayout is the calendar format of every date field.
const DateLayout = "2006-01-02"

// Warehouse column names. They match the table created by the original reports
// so existing dashboards keep working.
const (
	ColumnOrderNumber = "OrderNummer"
	ColumnOrderDate   = "Besteldatum"
	ColumnShipDate    = "Verzenddatum"
	ColumnSKU         = "SKU"
	ColumnDescription = "Omschrijving"
	ColumnQuantity    = "Aantal"
	ColumnBatch       = "Batch"
	ColumnBestBefore  = "THT_Datum"
	ColumnOrderStatus = "Orderstatus"
)

// Columns lists the persisted columns in table order.
var Columns = []string{
	ColumnOrderNumber,
	ColumnOrderDate,
	ColumnShipDate,
	ColumnSKU,
	ColumnDescription,
	ColumnQuantity,
	ColumnBatch,
	ColumnBestBefore,
	ColumnOrderStatus,
}

// OrderLine is one physical shipment item after normalization. Dates are
// YYYY-MM-DD strings; BestBeforeDate is "" when the export has no value.
type OrderLine struct {
	OrderNumber    string
	OrderDate      string
	ShipDate       string
	SKU            string
	Description    string
	Quantity       int64
	Batch          string
	BestBeforeDate string
	OrderStatus    string
}

// NaturalKey identifies one logical fact. Rows sharing it are aggregated.
type NaturalKey struct {
	OrderNumber    string
	OrderDate      string
	ShipDate       string
	SKU            string
	Description    string
	Batch          string
	BestBeforeDate string
	OrderStatus    string
}

// MatchKey is the immutable part of the natural key. The store matches on it
// when merging so that ship date and status changes update the existing row.
type MatchKey struct {
	OrderNumber    string
	OrderDate      string
	SKU            string
	Description    string
	Batch          string
	BestBeforeDate string
}

// Key returns the natural key of the line.
func (l OrderLine) Key() NaturalKey {
	return NaturalKey{
		OrderNumber:    l.OrderNumber,
		OrderDate:      l.OrderDate,
		ShipDate:       l.ShipDate,
		SKU:            l.SKU,
		Description:    l.Description,
		Batch:          l.Batch,
		BestBeforeDate: l.BestBeforeDate,
		OrderStatus:    l.OrderStatus,
	}
}

// MatchKey returns the merge identity of the line.
func (l OrderLine) MatchKey() MatchKey {
	return MatchKey{
		OrderNumber:    l.OrderNumber,
		OrderDate:      l.OrderDate,
		SKU:            l.SKU,
		Description:    l.Description,
		Batch:          l.Batch,
		BestBeforeDate: l.BestBeforeDate,
	}
}

// Values returns the line as a row in Columns order.
func (l OrderLine) Values() []any {
	return []any{
		l.OrderNumber,
		l.OrderDate,
		l.ShipDate,
		l.SKU,
		l.Description,
		l.Quantity,
		l.Batch,
		l.BestBeforeDate,
		l.OrderStatus,
	}
}
