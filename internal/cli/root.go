// Package cli wires the massabalans commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aardg/massabalans/pkg/config"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
)

// RootOptions holds what every command shares.
type RootOptions struct {
	Config *config.Config
	Logger *logger.Logger
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand(cfg *config.Config, logg *logger.Logger) *cobra.Command {
	if logg == nil {
		logg = logger.Nop()
	}
	opts := &RootOptions{Config: cfg, Logger: logg}

	cmd := &cobra.Command{
		Use:   "massabalans",
		Short: "Reconcile Monta order exports into the order fact table",
		Long: `massabalans keeps the order line fact table in line with the Monta
order exports and publishes the derived reports (batch totals per product line,
order details and the weekly stock overview).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Config == nil {
				return pkgerrors.New(pkgerrors.CodeConfiguration, "config is not loaded")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewFetchReportCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewSheetsReportCommand(opts))
	cmd.AddCommand(NewOrderDetailsCommand(opts))
	cmd.AddCommand(NewStockOverviewCommand(opts))
	cmd.AddCommand(NewInboundsCommand(opts))

	return cmd
}

// Execute runs the command line in args and returns the process exit code.
func Execute(ctx context.Context, cfg *config.Config, logg *logger.Logger, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(cfg, logg)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if pkgerrors.As(err) == nil {
		// cobra flag and argument errors
		err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid command line")
	}

	code := pkgerrors.ExitCode(err)
	if logg != nil {
		logg.Error(logg.WithField(ctx, "exit_code", code), "command failed", err)
	}
	dump, _ := json.Marshal(pkgerrors.Dump(err))
	fmt.Fprintf(stderr, "error: %v\n%s\n", err, dump)
	return code
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// printResult writes v as indented JSON or hands the writer to text.
func printResult(cmd *cobra.Command, opts *RootOptions, v any, text func(io.Writer) error) error {
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode output")
		}
		return nil
	}
	return text(out)
}
