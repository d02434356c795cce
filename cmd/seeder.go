package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/employee-management/internal/seed"
	"github.com/frahmantamala/employee-management/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed departments, permissions, roles and the administrator account",
	Long:  `Seed the reference data and the default administrator. Running it again changes nothing.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := openGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		lg := logger.LoggerWrapper()
		if err := seed.Run(context.Background(), db, seed.Options{BCryptCost: cfg.Security.BCryptCost}, lg); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
		lg.Info("seed complete", "admin_email", seed.AdminEmail)
	},
}
