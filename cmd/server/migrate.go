package main

import (
	"fmt"

	"github.com/affiliatehub/backend/internal/config"
	"github.com/affiliatehub/backend/internal/repository"
	"github.com/affiliatehub/backend/internal/service"
	"github.com/affiliatehub/backend/pkg/logger"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger.Initialize(cfg.Env)
			defer logger.Sync()

			db, err := repository.NewDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer db.Close()

			if err := repository.RunMigrations(cmd.Context(), db); err != nil {
				return err
			}
			logger.Log.Info("database migrated")
			return nil
		},
	}
}

func seedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the admin account from ADMIN_EMAIL and ADMIN_PASSWORD if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger.Initialize(cfg.Env)
			defer logger.Sync()

			db, err := repository.NewDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer db.Close()

			auth := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, repository.NewUserRepository(db), nil)
			return auth.SeedAdmin(cmd.Context())
		},
	}
}
