package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"salonsched/backend/internal/config"
	"salonsched/backend/internal/runtime"
	"salonsched/backend/internal/store/postgres"
)

func migrateCmd(configPath *string) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back) the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := runtime.NewLogger(serviceName, cfg.LogLevel).With(slog.String("component", "migrate"))

			log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
			db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = postgres.Close(db) }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if rollback {
				group, err := postgres.Rollback(ctx, db)
				if err != nil {
					return fmt.Errorf("rollback: %w", err)
				}
				if group.IsZero() {
					log.Info("nothing to roll back")
					return nil
				}
				log.Info("rolled back", slog.String("group", group.String()))
				return nil
			}

			group, err := postgres.Migrate(ctx, db)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if group.IsZero() {
				log.Info("schema up to date")
				return nil
			}
			log.Info("migrated", slog.String("group", group.String()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Roll back the last migration group")
	return cmd
}
