package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the Postgres schema",
	Long:      "Apply (up) or roll back (down) the embedded Postgres migrations. The SQLite store applies its schema on open.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		if strings.EqualFold(cfg.Database.Driver, string(db.DialectSQLite)) {
			return fmt.Errorf("migrations apply to the postgres driver only")
		}

		direction := db.MigrateUp
		if args[0] == "down" {
			direction = db.MigrateDown
		}
		version, err := db.RunMigrations(cfg.Database, direction)
		if err != nil {
			return err
		}
		logger.Info("[DB] migrations applied", zap.String("direction", args[0]), zap.Uint("version", version))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
