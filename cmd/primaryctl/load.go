package main

import (
	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	var (
		format   string
		allocate bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Print the per-PSOC multi-link load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			e, err := setup(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close(ctx)

			if allocate {
				e.reg.AllocateAll(ctx, e.eng)
			}
			return renderLoad(cmd.OutOrStdout(), format, e.eng.Load())
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "Output format (table|json)")
	cmd.Flags().BoolVar(&allocate, "allocate", true,
		"Allocate every multi-link peer before aggregating")
	return cmd
}
