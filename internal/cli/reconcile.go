package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aardg/massabalans/internal/catalog"
	"github.com/aardg/massabalans/internal/pipeline"
	"github.com/aardg/massabalans/internal/reconcile"
	"github.com/aardg/massabalans/pkg/enums"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/metrics"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	File  string
	API   bool
	Since string
	Until string
	Mode  string
}

type reconcileOutput struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	Origin        string `json:"origin"`
	Mode          string `json:"mode"`
	RowsRead      int    `json:"rows_read"`
	RowsSkipped   int    `json:"rows_skipped"`
	FactsProposed int    `json:"facts_proposed"`
	Superseded    int    `json:"superseded"`
	RowsCommitted int64  `json:"rows_committed"`
	StagingLeft   bool   `json:"staging_left,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge an order export into the fact table",
		Long: `Normalize an order export and reconcile it into the fact table.

The export is read from --file (CSV report or XLSX export) or collected from the
orders API (--api with --since/--until). Rows that cannot be converted are
skipped and reported; a missing column or unreadable source aborts the run
before anything is written.

Example:
  massabalans reconcile --file ./report_file.csv
  massabalans reconcile --api --since 2024-06-01 --mode full_replace`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "path to a CSV report or XLSX export")
	cmd.Flags().BoolVar(&opts.API, "api", false, "collect the orders from the API instead of a file")
	cmd.Flags().StringVar(&opts.Since, "since", "", "first order day for --api (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "last order day for --api (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "merge mode (incremental|full_replace, defaults to MASSABALANS_MERGE_MODE)")
	cmd.MarkFlagsMutuallyExclusive("file", "api")
	cmd.MarkFlagsOneRequired("file", "api")

	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions) error {
	ctx := cmd.Context()
	cfg := opts.Config

	mode, err := enums.ParseMergeMode(firstNonEmpty(opts.Mode, cfg.Store.MergeMode))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "merge mode")
	}

	load, err := reconcileLoader(opts)
	if err != nil {
		return err
	}

	store, closeStore, err := openFactStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore()

	lock, closeLock, err := openRunLock(ctx, opts.RootOptions, "reconcile")
	if err != nil {
		return err
	}
	defer closeLock()

	events, closeEvents, err := openRunEvents(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeEvents()

	rec, err := reconcile.New(store, opts.Logger)
	if err != nil {
		return err
	}
	deps := pipeline.Deps{
		Reconciler:     rec,
		Lock:           lock,
		Metrics:        metrics.NewRunMetrics(),
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		MetricsJob:     cfg.Metrics.JobName,
		Events:         events,
		Logger:         opts.Logger,
	}
	runner, err := pipeline.New(deps)
	if err != nil {
		return err
	}

	report, runErr := runner.Run(ctx, load, mode)

	s := report.Summary
	out := reconcileOutput{
		RunID:         report.RunID,
		Status:        "succeeded",
		Origin:        report.Origin,
		Mode:          string(mode),
		RowsRead:      s.RowsRead,
		RowsSkipped:   s.RowsSkipped,
		FactsProposed: s.FactsProposed,
		Superseded:    s.Superseded,
		RowsCommitted: s.RowsCommitted,
		StagingLeft:   s.StagingLeft,
	}
	if runErr != nil {
		out.Status = "failed"
	}
	if err := printResult(cmd, opts.RootOptions, out, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "run\t%s\n", out.RunID)
		fmt.Fprintf(tw, "status\t%s\n", out.Status)
		fmt.Fprintf(tw, "source\t%s\n", out.Origin)
		fmt.Fprintf(tw, "mode\t%s\n", out.Mode)
		fmt.Fprintf(tw, "rows read\t%d\n", out.RowsRead)
		fmt.Fprintf(tw, "rows skipped\t%d\n", out.RowsSkipped)
		fmt.Fprintf(tw, "facts proposed\t%d\n", out.FactsProposed)
		fmt.Fprintf(tw, "rows committed\t%d\n", out.RowsCommitted)
		for _, rowErr := range report.Skipped {
			fmt.Fprintf(tw, "skipped line %d\t%s\n", rowErr.Line, rowErr.Error())
		}
		return tw.Flush()
	}); err != nil {
		return err
	}
	return runErr
}

func reconcileLoader(opts *ReconcileOptions) (pipeline.Loader, error) {
	if !opts.API {
		return pipeline.FileLoader(opts.File), nil
	}

	since, until, err := dayWindow(opts.Since, opts.Until, time.Now())
	if err != nil {
		return nil, err
	}
	products, err := catalog.Load(opts.Config.Sheets.CatalogPath)
	if err != nil {
		return nil, err
	}
	api, _, err := newMontaAPI(opts.RootOptions)
	if err != nil {
		return nil, err
	}
	return pipeline.APILoader(api, products, pipeline.Window{
		Since:     since,
		Until:     until,
		PageSize:  opts.Config.Monta.PageSize,
		MaxOrders: opts.Config.Monta.MaxOrders,
	}), nil
}
