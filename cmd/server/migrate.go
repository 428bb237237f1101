package main

import (
	"errors"

	"go-approvals/internal/bootstrap"
	"go-approvals/internal/config"
	"go-approvals/internal/core/postgres/repository"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the postgres schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Store.Driver != config.DriverPostgres {
		return errors.New("migrate only applies to store.driver=postgres")
	}

	db, err := bootstrap.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx, stop := signalContext()
	defer stop()

	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("schema migrated")
	return nil
}
