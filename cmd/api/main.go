package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marginledger",
	Short: "Leveraged trading ledger",
	Long: `marginledger opens, closes and liquidates leveraged positions against
per-user live accounts. Configuration is read from the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
