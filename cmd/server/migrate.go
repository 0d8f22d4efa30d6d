package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsletter-go/internal/config"
	"newsletter-go/internal/database"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.NewLogger(settings.Log.Level)

		pool, err := database.NewPool(cmd.Context(), settings.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.Run(cmd.Context(), pool, logger); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}

		version, dirty, err := migrations.Version(cmd.Context(), pool, logger)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}

		fmt.Printf("schema at version %d (dirty=%t)\n", version, dirty)
		return nil
	},
}
