// Command monitor runs the market signal pipeline: three monitoring tiers
// over a watchlist, publishing confirmed signals to the work queue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "monitor",
		Short:         "Watchlist signal detection and dispatch",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "config/config.yaml", "path to config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newReconcileCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
