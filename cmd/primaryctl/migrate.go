package main

import (
	"fmt"
	"strconv"

	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/kb"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "migrate <mld> <link-id>",
		Short: "Allocate the scenario, then move one peer's primary to another link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			linkID, err := strconv.ParseUint(args[1], 10, 8)
			if err != nil || linkID >= core.MaxLinks {
				return fmt.Errorf("invalid link id %q", args[1])
			}

			ctx := cmd.Context()
			e, err := setup(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close(ctx)

			e.reg.AllocateAll(ctx, e.eng)
			if err := e.reg.Migrate(ctx, e.eng, args[0], uint8(linkID)); err != nil {
				return err
			}
			ml, _ := e.reg.MLPeer(args[0])
			after := kb.Assignment{
				MLD:      args[0],
				Decision: core.Decision{PSOC: ml.PrimaryPSOC(), Policy: core.PolicyRecorded},
			}
			return renderAssignments(cmd.OutOrStdout(), format, []kb.Assignment{after})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "Output format (table|json)")
	return cmd
}
