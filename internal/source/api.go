package source

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aardg/massabalans/internal/normalize"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
	"github.com/aardg/massabalans/pkg/monta"
)

// MontaAPI is the subset of the Monta client the source needs.
type MontaAPI interface {
	ListReports(ctx context.Context, createdAfter string) ([]monta.Report, error)
	DownloadReport(ctx context.Context, reportID string) ([]byte, error)
	ListOrders(ctx context.Context, since, until time.Time, page, pageSize int) ([]monta.OrderRef, error)
	GetOrder(ctx context.Context, orderID string) (monta.Order, error)
	GetOrderBatches(ctx context.Context, orderID string) (monta.OrderBatches, error)
}

// ProductNamer resolves a SKU to its catalog name.
type ProductNamer interface {
	ProductName(sku string) (string, bool)
}

// Headers of the table produced by FlattenOrders. They are the CSV report
// headers so both sources share one normalizer column map.
var apiHeaders = []string{"OrderNummer", "BestelDatum", "Verzenddatum", "Sku", "Omschrijving", "Aantal", "Batch", "ThtDatum", "OrderStatus"}

const (
	StatusShipped = "shipped"
	StatusQueued  = "queued"
)

type API struct {
	client MontaAPI
	log    *logger.Logger
}

func NewAPI(client MontaAPI, log *logger.Logger) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{client: client, log: log}
}

// FetchLatestReport downloads the first report created after createdAfter and
// writes it to dir/name. The file is replaced atomically so a failed download
// never leaves a truncated report behind.
func (a *API) FetchLatestReport(ctx context.Context, createdAfter, dir, name string) (string, error) {
	reports, err := a.client.ListReports(ctx, createdAfter)
	if err != nil {
		return "", err
	}
	if len(reports) == 0 || reports[0].ID.String() == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "no report available").
			WithDetails(map[string]any{"created_after": createdAfter})
	}
	reportID := reports[0].ID.String()

	content, err := a.client.DownloadReport(ctx, reportID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := writeFileAtomic(path, content); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save report").
			WithDetails(map[string]any{"path": path})
	}

	a.log.Info(a.log.WithFields(ctx, map[string]any{
		"report_id": reportID,
		"path":      path,
		"bytes":     len(content),
	}), "source.report_saved")
	return path, nil
}

func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CollectOrderIDs pages through the orders created in [since, until]. Paging
// stops at an empty page, a short page or once max ids are collected.
func (a *API) CollectOrderIDs(ctx context.Context, since, until time.Time, pageSize, max int) ([]string, error) {
	if pageSize <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "page size must be positive")
	}
	var ids []string
	for page := 0; max <= 0 || len(ids) < max; page++ {
		refs, err := a.client.ListOrders(ctx, since, until, page, pageSize)
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			break
		}
		for _, ref := range refs {
			if id := ref.WebshopOrderID.String(); id != "" {
				ids = append(ids, id)
			}
		}
		if len(refs) < pageSize {
			break
		}
	}
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}

	a.log.Info(a.log.WithFields(ctx, map[string]any{
		"since":  since.Format(time.DateOnly),
		"until":  until.Format(time.DateOnly),
		"orders": len(ids),
	}), "source.orders_listed")
	return ids, nil
}

// OrderDetail is one shipped item of an API order including the delivery
// address.
type OrderDetail struct {
	OrderID             string
	FirstName           string
	LastName            string
	Email               string
	Street              string
	HouseNumber         string
	HouseNumberAddition string
	PostalCode          string
	City                string
	Country             string
	Ordered             string
	Shipped             string
	SKU                 string
	Quantity            int64
	BatchTitle          string
	BatchBestBeforeDate string
	ProductName         string
}

// Flattened is the result of FlattenOrders.
type Flattened struct {
	Table   normalize.Table
	Details []OrderDetail
	// Missing lists orders the API no longer knows.
	Missing []string
}

// FlattenOrders expands each order into one row per shipped batch item.
// Items whose SKU is not in the catalog are dropped and quantities are made
// absolute because the batches endpoint reports outbound stock as negative.
func (a *API) FlattenOrders(ctx context.Context, ids []string, products ProductNamer) (Flattened, error) {
	var (
		out  Flattened
		rows [][]string
	)
	for i, id := range ids {
		order, err := a.client.GetOrder(ctx, id)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			a.log.Warn(a.log.WithField(ctx, "order_id", id), "source.order_missing")
			out.Missing = append(out.Missing, id)
			continue
		}
		if err != nil {
			return Flattened{}, err
		}
		batches, err := a.client.GetOrderBatches(ctx, id)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			a.log.Warn(a.log.WithField(ctx, "order_id", id), "source.order_batches_missing")
			out.Missing = append(out.Missing, id)
			continue
		}
		if err != nil {
			return Flattened{}, err
		}

		for _, item := range batches.Items {
			sku := item.SKU.String()
			name, ok := products.ProductName(sku)
			if !ok {
				continue
			}
			detail := newOrderDetail(order, item, name)
			out.Details = append(out.Details, detail)
			rows = append(rows, apiRow(order, detail))
		}

		if (i+1)%100 == 0 {
			a.log.Debug(a.log.WithFields(ctx, map[string]any{"done": i + 1, "total": len(ids)}), "source.flatten_progress")
		}
	}
	out.Table = normalize.NewTable(apiHeaders, rows)
	return out, nil
}

func newOrderDetail(order monta.Order, item monta.BatchItem, name string) OrderDetail {
	addr := order.ConsumerDetails.DeliveryAddress
	quantity := item.Quantity
	if quantity < 0 {
		quantity = -quantity
	}
	detail := OrderDetail{
		OrderID:             order.WebshopOrderID.String(),
		FirstName:           addr.FirstName,
		LastName:            addr.LastName,
		Email:               addr.EmailAddress,
		Street:              addr.Street,
		HouseNumber:         addr.HouseNumber.String(),
		HouseNumberAddition: addr.HouseNumberAddition,
		PostalCode:          addr.PostalCode,
		City:                addr.City,
		Country:             addr.CountryCode,
		Ordered:             strings.TrimSpace(order.Received),
		SKU:                 item.SKU.String(),
		Quantity:            quantity,
		BatchTitle:          item.Batch.Title.String(),
		ProductName:         name,
	}
	if order.IsShipped() {
		detail.Shipped = strings.TrimSpace(*order.Shipped)
	}
	if item.Batch.BestBeforeDate != nil {
		detail.BatchBestBeforeDate = strings.TrimSpace(*item.Batch.BestBeforeDate)
	}
	return detail
}

func apiRow(order monta.Order, d OrderDetail) []string {
	status := StatusQueued
	if order.IsShipped() {
		status = StatusShipped
	}
	return []string{
		d.OrderID,
		d.Ordered,
		d.Shipped,
		d.SKU,
		d.ProductName,
		strconv.FormatInt(d.Quantity, 10),
		d.BatchTitle,
		d.BatchBestBeforeDate,
		status,
	}
}
