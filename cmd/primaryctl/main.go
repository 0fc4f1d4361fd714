// Command primaryctl runs the primary-link engine over a topology snapshot.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	config   string
	scenario string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "primaryctl",
		Short: "Assign primary PSOCs to multi-link peers",
		Long: `primaryctl loads a platform topology snapshot (PSOCs, vdevs, peers and
multi-link peers) and runs the primary-link selection over it.`,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&rootFlags.config, "config", "c", "",
		"YAML configuration file (defaults apply when empty)")
	root.PersistentFlags().StringVarP(&rootFlags.scenario, "scenario", "s", "",
		"JSON topology snapshot")

	root.AddCommand(
		newAllocateCmd(),
		newLoadCmd(),
		newMigrateCmd(),
		newServeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
