package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepq "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending schema migration embedded in migrations/
// to db, the Go equivalent of the original Django app's `manage.py
// migrate` bootstrap step.
func Migrate(db *sql.DB) error {
	driver, err := migratepq.WithInstance(db, &migratepq.Config{})
	if err != nil {
		return fmt.Errorf("postgres.Migrate: driver: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("postgres.Migrate: source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "integrationhub", driver)
	if err != nil {
		return fmt.Errorf("postgres.Migrate: instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres.Migrate: up: %w", err)
	}
	return nil
}
