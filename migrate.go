package main

import (
	"database/sql"
	"fmt"

	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"
)

// runMigrate implements `ms-booking migrate up|down|version`.
func runMigrate(cfg *config.Config, log *logger.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: migrate up|down|version")
	}

	sqldb, err := connectPostgres(cfg.Database, log)
	if err != nil {
		return err
	}
	defer sqldb.Close()

	runner := migrations.NewRunner(sqldb, cfg.Migrations.Dir, log)
	defer runner.Close()

	switch args[0] {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		log.Info("MIGRATE", fmt.Sprintf("Schema version %d (dirty=%v)", version, dirty))
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q, want up, down or version", args[0])
	}
}

func migrateOnStartup(cfg *config.Config, sqldb *sql.DB, log *logger.Logger) error {
	runner := migrations.NewRunner(sqldb, cfg.Migrations.Dir, log)
	defer runner.Close()
	return runner.Up()
}
