package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one liquidation sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		closed := a.sweeper.SweepOnce(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "closed %d positions\n", closed)
		return nil
	},
}
