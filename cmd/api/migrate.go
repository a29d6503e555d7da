package main

import (
	"errors"

	"lv-marginledger/internal/config"
	"lv-marginledger/internal/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store != config.StorePostgres {
			return errors.New("migrate needs STORE=postgres")
		}
		return db.Migrate(logger, cfg.DBDSN)
	},
}
