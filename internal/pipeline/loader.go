package pipeline

import (
	"context"
	"time"

	"github.com/aardg/massabalans/internal/normalize"
	"github.com/aardg/massabalans/internal/source"
)

// Input is a raw table plus the options it must be normalized with.
type Input struct {
	Table   normalize.Table
	Options normalize.Options
	Origin  string
	// Details is only set for API input.
	Details []source.OrderDetail
}

// Loader produces the raw input of a run. A loader error aborts the run
// before anything is written.
type Loader func(ctx context.Context) (Input, error)

// FileLoader reads a CSV report or XLSX export from path.
func FileLoader(path string) Loader {
	return func(ctx context.Context) (Input, error) {
		table, err := source.ReadExport(path)
		if err != nil {
			return Input{}, err
		}
		return Input{Table: table, Options: normalize.ExportOptions(), Origin: "file:" + path}, nil
	}
}

// Window selects the API orders created in [Since, Until].
type Window struct {
	Since     time.Time
	Until     time.Time
	PageSize  int
	MaxOrders int
}

// APILoader lists the orders of window and flattens them into report rows.
func APILoader(api *source.API, products source.ProductNamer, window Window) Loader {
	return func(ctx context.Context) (Input, error) {
		ids, err := api.CollectOrderIDs(ctx, window.Since, window.Until, window.PageSize, window.MaxOrders)
		if err != nil {
			return Input{}, err
		}
		flat, err := api.FlattenOrders(ctx, ids, products)
		if err != nil {
			return Input{}, err
		}
		return Input{
			Table:   flat.Table,
			Options: normalize.APIOptions(),
			Origin:  "api",
			Details: flat.Details,
		}, nil
	}
}
