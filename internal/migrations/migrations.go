// Package migrations applies the reward ledger schema, embedded in the
// binary so a deployment needs no migration files on disk.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var ledgerSchema embed.FS

// RunMigrations brings the ledger schema up to date. With autoMigrate off it
// only reports the current version, leaving schema changes to the operator.
func RunMigrations(db *sql.DB, autoMigrate bool) error {
	sourceDriver, err := iofs.New(ledgerSchema, ".")
	if err != nil {
		return fmt.Errorf("open embedded schema: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("prepare postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("read schema version: %w", err)
	}

	if dirty {
		// A crash mid-migration leaves the version flagged dirty. With a
		// single baseline migration, forcing the recorded version back is a
		// safe recovery.
		slog.Warn("Ledger schema flagged dirty, forcing recorded version",
			"version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("recover dirty schema at version %d: %w", version, err)
		}
		slog.Info("Ledger schema recovered", "version", version)
	}

	if !autoMigrate {
		slog.Info("Auto-migration disabled, leaving schema untouched",
			"version", version)
		return nil
	}

	slog.Info("Applying ledger migrations", "from_version", version)

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			slog.Info("Ledger schema already current", "version", version)
			return nil
		}
		return fmt.Errorf("apply ledger migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version after migrate: %w", err)
	}

	slog.Info("Ledger migrations applied",
		"from_version", version,
		"to_version", newVersion)

	return nil
}
