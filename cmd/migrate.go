/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"

	"github.com/shipnest/apiserver/config"
	"github.com/shipnest/apiserver/internal/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateDownSteps int

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run PostgreSQL database migrations",
	Long: `Run PostgreSQL database migrations. MongoDB needs none; its indexes
are created when the server starts.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := migrationConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := db.MigrateUp(cfg.Database); err != nil {
			return err
		}
		logger.Info("migrations applied", zap.String("database", cfg.Database.DBName))
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := migrationConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := db.MigrateDown(cfg.Database, migrateDownSteps); err != nil {
			return err
		}
		logger.Info("migrations rolled back",
			zap.String("database", cfg.Database.DBName),
			zap.Int("steps", migrateDownSteps),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateDownCmd.Flags().IntVarP(&migrateDownSteps, "steps", "n", 1, "number of migrations to roll back")
}

func migrationConfig() (config.Config, *zap.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return config.Config{}, nil, errors.New("migrations require DB_DRIVER=postgres")
	}
	return cfg, logger, nil
}
