package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

// InboundsOptions holds flags for the inbounds command.
type InboundsOptions struct {
	*RootOptions
	SinceID int64
}

// NewInboundsCommand creates the inbounds command.
func NewInboundsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InboundsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inbounds",
		Short: "Print the inbound deliveries registered after an id",
		Long: `Print the inbound deliveries with an id greater than --since-id as JSON.

Example:
  massabalans inbounds --since-id 1200`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInbounds(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.SinceID, "since-id", 0, "last inbound id already processed")

	return cmd
}

func runInbounds(cmd *cobra.Command, opts *InboundsOptions) error {
	if opts.SinceID < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "--since-id must not be negative")
	}
	_, client, err := newMontaAPI(opts.RootOptions)
	if err != nil {
		return err
	}
	ctx := opts.Logger.WithCommand(cmd.Context(), "inbounds")
	inbounds, err := client.ListInbounds(ctx, opts.SinceID)
	if err != nil {
		return err
	}
	opts.Logger.Info(opts.Logger.WithField(ctx, "count", len(inbounds)), "inbounds.listed")

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(inbounds); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode inbounds")
	}
	return nil
}
