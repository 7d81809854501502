package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aardg/massabalans/internal/catalog"
	"github.com/aardg/massabalans/internal/normalize"
	"github.com/aardg/massabalans/internal/sheetsreport"
	"github.com/aardg/massabalans/internal/source"
)

// SheetsReportOptions holds flags for the sheets-report command.
type SheetsReportOptions struct {
	*RootOptions
	File string
}

// NewSheetsReportCommand creates the sheets-report command.
func NewSheetsReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SheetsReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sheets-report",
		Short: "Write batch totals per product line to the spreadsheet",
		Long: `Sum the export quantities per SKU, description and batch and write one
worksheet per product line of the catalog. Existing worksheets are cleared
first; missing worksheets are created.

Example:
  massabalans sheets-report --file ./report_file.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSheetsReport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "export to aggregate (defaults to the downloaded report)")

	return cmd
}

func runSheetsReport(cmd *cobra.Command, opts *SheetsReportOptions) error {
	ctx := opts.Logger.WithCommand(cmd.Context(), "sheets-report")
	cfg := opts.Config

	path := opts.File
	if path == "" {
		path = filepath.Join(cfg.Report.Dir, cfg.Report.FileName)
	}

	products, err := catalog.Load(cfg.Sheets.CatalogPath)
	if err != nil {
		return err
	}
	table, err := source.ReadExport(path)
	if err != nil {
		return err
	}
	result, err := normalize.New(normalize.ExportOptions()).Normalize(table)
	if err != nil {
		return err
	}
	for _, rowErr := range result.Skipped {
		opts.Logger.Warn(opts.Logger.WithField(ctx, "line", rowErr.Line), "sheetsreport.row_skipped: "+rowErr.Error())
	}

	client, err := openSheets(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	publisher, err := sheetsreport.NewPublisher(client, products.ProductLines, opts.Logger)
	if err != nil {
		return err
	}
	written, err := publisher.Publish(ctx, result.Lines)
	if err != nil {
		return err
	}

	return printResult(cmd, opts.RootOptions, written, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "WORKSHEET\tROWS\tCREATED")
		for _, ws := range written {
			fmt.Fprintf(tw, "%s\t%d\t%t\n", ws.Worksheet, ws.Rows, ws.Created)
		}
		return tw.Flush()
	})
}
