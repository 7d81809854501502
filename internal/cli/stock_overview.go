package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aardg/massabalans/internal/stock"
)

// StockOverviewOptions holds flags for the stock-overview command.
type StockOverviewOptions struct {
	*RootOptions
	Start  string
	End    string
	Sheets bool
}

// NewStockOverviewCommand creates the stock-overview command.
func NewStockOverviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StockOverviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stock-overview",
		Short: "Compare the stock snapshots at the start and end of a period",
		Long: `Read the stock snapshots of the first and last day of the period and
report start, mutation and end quantity per product and batch. Without dates
the current week (Monday to Sunday) is used.

Example:
  massabalans stock-overview
  massabalans stock-overview --start 2024-06-24 --end 2024-06-30 --sheets`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStockOverview(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.End, "end", "", "last day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.Sheets, "sheets", false, "also write the overview to the spreadsheet")

	return cmd
}

func runStockOverview(cmd *cobra.Command, opts *StockOverviewOptions) error {
	ctx := opts.Logger.WithCommand(cmd.Context(), "stock-overview")
	cfg := opts.Config

	period, err := stock.ParsePeriod(opts.Start, opts.End, time.Now())
	if err != nil {
		return err
	}

	client, err := openBigQuery(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer client.Close()

	snapshots, err := stock.NewBigQuerySnapshots(client, cfg.BigQuery.StockDataset, cfg.BigQuery.StockTable)
	if err != nil {
		return err
	}
	ov, err := stock.NewService(snapshots, opts.Logger).Overview(ctx, period)
	if err != nil {
		return err
	}

	if opts.Sheets {
		sheetsClient, err := openSheets(ctx, opts.RootOptions)
		if err != nil {
			return err
		}
		if err := stock.WriteSheets(ctx, sheetsClient, ov); err != nil {
			return err
		}
	}

	return printResult(cmd, opts.RootOptions, ov, func(w io.Writer) error {
		return stock.Render(w, ov)
	})
}
