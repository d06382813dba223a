package main

import (
	"github.com/aditya/haggle/internal/database"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxConnections, cfg.DBMaxIdleConnections)
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := database.Migrate(cmd.Context(), db.DB)
		if err != nil {
			return err
		}
		log.WithField("version", version).Info("schema up to date")
		return nil
	},
}
