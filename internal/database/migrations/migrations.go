package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"ms-booking/internal/logger"
)

// Runner applies the SQL files in Dir to a Postgres database.
type Runner struct {
	db       *sql.DB
	dir      string
	logger   *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(db *sql.DB, dir string, log *logger.Logger) *Runner {
	return &Runner{db: db, dir: dir, logger: log}
}

func (r *Runner) init() error {
	if r.migrator != nil {
		return nil
	}
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.dir)
	}

	// the driver closes whatever it is given, so it gets one connection, not the pool
	ctx := context.Background()
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to reserve a migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}
	migrator, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", r.dir), "postgres", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	r.migrator = migrator
	return nil
}

// Up applies every pending migration. A dirty version left by a crashed run
// is reported, not forced; it needs an operator.
func (r *Runner) Up() error {
	if err := r.init(); err != nil {
		return err
	}
	if version, dirty, err := r.migrator.Version(); err == nil && dirty {
		return fmt.Errorf("schema version %d is dirty, fix it manually before migrating", version)
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	r.logVersion()
	return nil
}

// Down rolls back every migration.
func (r *Runner) Down() error {
	if err := r.init(); err != nil {
		return err
	}
	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	r.logVersion()
	return nil
}

func (r *Runner) Version() (uint, bool, error) {
	if err := r.init(); err != nil {
		return 0, false, err
	}
	version, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (r *Runner) logVersion() {
	version, _, err := r.migrator.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		r.logger.Info("MIGRATE", "Schema is empty")
	case err != nil:
		r.logger.Warn("MIGRATE", fmt.Sprintf("Failed to read schema version: %v", err))
	default:
		r.logger.Info("MIGRATE", fmt.Sprintf("Current schema version: %d", version))
	}
}

// Close releases the migrator's source and its connection back to the pool.
// The *sql.DB passed to NewRunner stays open.
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	srcErr, dbErr := r.migrator.Close()
	r.migrator = nil
	return errors.Join(srcErr, dbErr)
}
