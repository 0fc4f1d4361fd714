package main

import (
	"github.com/spf13/cobra"
)

func newAllocateCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Assign a primary PSOC to every multi-link peer of the scenario",
		Long: `'allocate' walks the multi-link peers of the scenario in MLD order and
prints the primary PSOC chosen for each together with the deciding policy.
Each decision sees the load left by the ones before it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			e, err := setup(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close(ctx)

			return renderAssignments(cmd.OutOrStdout(), format, e.reg.AllocateAll(ctx, e.eng))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "Output format (table|json)")
	return cmd
}
