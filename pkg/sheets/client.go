package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/aardg/massabalans/pkg/config"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
)

const valueInputRaw = "RAW"

var (
	errSpreadsheetRequired  = errors.New("spreadsheet id is required")
	errClientNotInitialized = errors.New("sheets client not initialized")
	// ErrWorksheetNotFound is returned by FindWorksheet for an unknown title.
	ErrWorksheetNotFound = errors.New("worksheet not found")
)

// Worksheet is one tab of the spreadsheet.
type Worksheet struct {
	ID      int64
	Title   string
	Rows    int64
	Columns int64
}

// Client wraps the Sheets v4 API for one spreadsheet.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
	logg          *logger.Logger
}

// NewClient builds a client using the same credential precedence as BigQuery.
// Extra options are appended, so tests can point at a local endpoint.
func NewClient(ctx context.Context, gcp config.GCPConfig, spreadsheetID string, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	id := strings.TrimSpace(spreadsheetID)
	if id == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errSpreadsheetRequired, "sheets client")
	}

	opts := gcp.ClientOptions()
	opts = append(opts, option.WithScopes(gsheets.SpreadsheetsScope))
	opts = append(opts, extra...)

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating sheets service")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Client{svc: svc, spreadsheetID: id, logg: logg}, nil
}

// Worksheets lists the tabs of the spreadsheet.
func (c *Client) Worksheets(ctx context.Context) ([]Worksheet, error) {
	if c == nil || c.svc == nil {
		return nil, errClientNotInitialized
	}
	doc, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError(err, "get spreadsheet")
	}

	out := make([]Worksheet, 0, len(doc.Sheets))
	for _, sh := range doc.Sheets {
		if sh == nil || sh.Properties == nil {
			continue
		}
		out = append(out, worksheetFrom(sh.Properties))
	}
	return out, nil
}

// FindWorksheet returns the tab named title or ErrWorksheetNotFound.
func (c *Client) FindWorksheet(ctx context.Context, title string) (Worksheet, error) {
	sheets, err := c.Worksheets(ctx)
	if err != nil {
		return Worksheet{}, err
	}
	for _, ws := range sheets {
		if ws.Title == title {
			return ws, nil
		}
	}
	return Worksheet{}, ErrWorksheetNotFound
}

// CreateWorksheet adds a tab with at least one row and column.
func (c *Client) CreateWorksheet(ctx context.Context, title string, rows, cols int64) (Worksheet, error) {
	if c == nil || c.svc == nil {
		return Worksheet{}, errClientNotInitialized
	}
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{
					Title: title,
					GridProperties: &gsheets.GridProperties{
						RowCount:    max(rows, 1),
						ColumnCount: max(cols, 1),
					},
				},
			},
		}},
	}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return Worksheet{}, wrapAPIError(err, "add worksheet")
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return Worksheet{Title: title, Rows: max(rows, 1), Columns: max(cols, 1)}, nil
	}
	c.logg.Info(c.logg.WithField(ctx, "worksheet", title), "worksheet created")
	return worksheetFrom(resp.Replies[0].AddSheet.Properties), nil
}

// ClearRange empties an A1 range such as "'Kombucha'".
func (c *Client) ClearRange(ctx context.Context, a1Range string) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, a1Range, &gsheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return wrapAPIError(err, "clear range")
	}
	return nil
}

// WriteValues writes a block of values with its top-left corner at a1Cell.
func (c *Client) WriteValues(ctx context.Context, a1Cell string, values [][]any) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	vr := &gsheets.ValueRange{Values: values}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1Cell, vr).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return wrapAPIError(err, "write values")
	}
	return nil
}

// SheetRange quotes a worksheet title for A1 notation, optionally with a cell.
func SheetRange(title, cell string) string {
	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if cell == "" {
		return quoted
	}
	return quoted + "!" + cell
}

func worksheetFrom(p *gsheets.SheetProperties) Worksheet {
	ws := Worksheet{ID: p.SheetId, Title: p.Title}
	if p.GridProperties != nil {
		ws.Rows = p.GridProperties.RowCount
		ws.Columns = p.GridProperties.ColumnCount
	}
	return ws
}

func wrapAPIError(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		code := pkgerrors.CodeDependency
		switch apiErr.Code {
		case http.StatusNotFound:
			code = pkgerrors.CodeNotFound
		case http.StatusBadRequest:
			code = pkgerrors.CodeValidation
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("sheets %s", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("sheets %s", op))
}
