// The eventcore command provides small utilities around the wallet
// event-dispatch core, currently a synthetic demo workload with optional
// monitoring and dispatch recording.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "eventcore",
	Short: "Utilities for the wallet event-dispatch core",
	Long: `The eventcore tool exercises the wallet event-dispatch core outside of a ` +
		`full wallet: it can run a synthetic workload across several handlers, ` +
		`serve live handler state over HTTP, and record dispatch traces to SQLite.`,
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
