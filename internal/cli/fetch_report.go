package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
)

// FetchReportOptions holds flags for the fetch-report command.
type FetchReportOptions struct {
	*RootOptions
	Dir          string
	Name         string
	CreatedAfter string
}

// NewFetchReportCommand creates the fetch-report command.
func NewFetchReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch-report",
		Short: "Download the latest Monta order report",
		Long: `Download the most recent order report generated after --created-after and
store it as a CSV file. The previous file is replaced atomically.

Example:
  massabalans fetch-report --dir ./data --created-after 2023-01-01T00:00:00`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetchReport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "download directory (defaults to MASSABALANS_REPORT_DIR)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "file name (defaults to MASSABALANS_REPORT_FILE)")
	cmd.Flags().StringVar(&opts.CreatedAfter, "created-after", "", "only consider reports created after this timestamp")

	return cmd
}

func runFetchReport(cmd *cobra.Command, opts *FetchReportOptions) error {
	cfg := opts.Config.Report
	dir := firstNonEmpty(opts.Dir, cfg.Dir)
	name := firstNonEmpty(opts.Name, cfg.FileName)
	createdAfter := firstNonEmpty(opts.CreatedAfter, cfg.CreatedAfter)

	api, _, err := newMontaAPI(opts.RootOptions)
	if err != nil {
		return err
	}
	ctx := opts.Logger.WithCommand(cmd.Context(), "fetch-report")
	path, err := api.FetchLatestReport(ctx, createdAfter, dir, name)
	if err != nil {
		return err
	}

	result := map[string]string{"path": filepath.Clean(path)}
	return printResult(cmd, opts.RootOptions, result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "report saved to %s\n", result["path"])
		return err
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
