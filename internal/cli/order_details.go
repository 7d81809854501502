package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aardg/massabalans/internal/catalog"
	"github.com/aardg/massabalans/internal/orderdetails"
)

// OrderDetailsOptions holds flags for the order-details command.
type OrderDetailsOptions struct {
	*RootOptions
	Since string
	Until string
}

type orderDetailsOutput struct {
	Orders  int      `json:"orders"`
	Rows    int      `json:"rows"`
	Missing []string `json:"missing,omitempty"`
	Table   string   `json:"table"`
}

// NewOrderDetailsCommand creates the order-details command.
func NewOrderDetailsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderDetailsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "order-details",
		Short: "Append order and delivery details to the warehouse",
		Long: `Collect the orders received in the window, expand them into one row per
batch item with the delivery address and append the rows to the order details
table.

Example:
  massabalans order-details --since 2024-06-01 --until 2024-06-07`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrderDetails(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Since, "since", "", "first order day (YYYY-MM-DD, required)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "last order day (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("since")

	return cmd
}

func runOrderDetails(cmd *cobra.Command, opts *OrderDetailsOptions) error {
	ctx := opts.Logger.WithCommand(cmd.Context(), "order-details")
	cfg := opts.Config

	since, until, err := dayWindow(opts.Since, opts.Until, time.Now())
	if err != nil {
		return err
	}
	products, err := catalog.Load(cfg.Sheets.CatalogPath)
	if err != nil {
		return err
	}
	api, _, err := newMontaAPI(opts.RootOptions)
	if err != nil {
		return err
	}

	ids, err := api.CollectOrderIDs(ctx, since, until, cfg.Monta.PageSize, cfg.Monta.MaxOrders)
	if err != nil {
		return err
	}
	flat, err := api.FlattenOrders(ctx, ids, products)
	if err != nil {
		return err
	}

	client, err := openBigQuery(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer client.Close()

	writer, err := orderdetails.New(client, orderdetails.Config{Table: cfg.BigQuery.OrderDetailsTable}, opts.Logger)
	if err != nil {
		return err
	}
	written, err := writer.Write(ctx, flat.Details)
	if err != nil {
		return err
	}

	out := orderDetailsOutput{
		Orders:  len(ids),
		Rows:    written,
		Missing: flat.Missing,
		Table:   cfg.BigQuery.OrderDetailsTable,
	}
	return printResult(cmd, opts.RootOptions, out, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%d orders, %d rows appended to %s, %d missing\n",
			out.Orders, out.Rows, out.Table, len(out.Missing))
		return err
	})
}
